package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/homeledger/memberships/internal/db"
	"github.com/homeledger/memberships/internal/security"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// SetupRequest describes the database a fresh install should use.
type SetupRequest struct {
	DatabaseType     string
	DatabaseHost     string
	DatabasePort     int
	DatabaseUser     string
	DatabasePassword string
	DatabaseName     string
	DatabasePath     string
	DatabaseSSLMode  string
	RateLimit        int
}

// ConfigExists reports whether the config file exists at the path.
func ConfigExists(configPath string) bool {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return false
	}
	return true
}

// defaultSQLitePath is the default SQLite database file name.
const defaultSQLitePath = "memberships.db"

// BuildDSN builds a database DSN from the setup request.
func BuildDSN(req SetupRequest) (string, error) {
	switch strings.ToLower(strings.TrimSpace(req.DatabaseType)) {
	case "postgres":
		sslMode := req.DatabaseSSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		return fmt.Sprintf(
			"postgres://%s:%s@%s:%d/%s?sslmode=%s",
			req.DatabaseUser,
			req.DatabasePassword,
			req.DatabaseHost,
			req.DatabasePort,
			req.DatabaseName,
			sslMode,
		), nil
	case "", "sqlite":
		return buildSQLiteDSN(req.DatabasePath), nil
	default:
		return "", fmt.Errorf("unsupported database type %q", req.DatabaseType)
	}
}

// buildSQLiteDSN constructs a SQLite DSN with default parameters.
func buildSQLiteDSN(path string) string {
	dsn := strings.TrimSpace(path)
	if dsn == "" {
		dsn = defaultSQLitePath
	}
	if !strings.HasPrefix(strings.ToLower(dsn), "file:") {
		dsn = "file:" + dsn
	}
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + strings.Join([]string{
		"_busy_timeout=5000",
		"_journal_mode=WAL",
		"_foreign_keys=on",
		"_synchronous=NORMAL",
	}, "&")
}

// validateSetupRequest normalizes and validates setup input.
func validateSetupRequest(req *SetupRequest) error {
	dbType := strings.ToLower(strings.TrimSpace(req.DatabaseType))
	if dbType == "" {
		dbType = "sqlite"
	}
	req.DatabaseType = dbType

	switch dbType {
	case "postgres":
		if strings.TrimSpace(req.DatabaseHost) == "" {
			return fmt.Errorf("database host is required")
		}
		if req.DatabasePort <= 0 {
			req.DatabasePort = 5432
		}
		if strings.TrimSpace(req.DatabaseUser) == "" {
			return fmt.Errorf("database username is required")
		}
		if strings.TrimSpace(req.DatabaseName) == "" {
			return fmt.Errorf("database name is required")
		}
	case "sqlite":
		if strings.TrimSpace(req.DatabasePath) == "" {
			req.DatabasePath = defaultSQLitePath
		}
	default:
		return fmt.Errorf("unsupported database type %q", req.DatabaseType)
	}
	if req.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}
	return nil
}

// TestDatabaseConnection opens the DSN and pings it.
func TestDatabaseConnection(dsn string) error {
	conn, err := db.Open(dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql db: %w", err)
	}
	defer func() {
		if errClose := sqlDB.Close(); errClose != nil {
			log.Errorf("sql db close error: %v", errClose)
		}
	}()
	return sqlDB.Ping()
}

// configFile maps YAML fields for the generated config file.
type configFile struct {
	DatabaseDSN string       `yaml:"database-dsn"`
	JWT         jwtCfg       `yaml:"jwt"`
	RateLimit   rateLimitCfg `yaml:"rate-limit"`
	Sweeper     sweeperCfg   `yaml:"sweeper"`
}

// jwtCfg holds JWT settings for the generated config file.
type jwtCfg struct {
	Secret string `yaml:"secret"`
	Expiry string `yaml:"expiry"`
}

type rateLimitCfg struct {
	Limit int `yaml:"limit"`
}

type sweeperCfg struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
}

// WriteConfigFile writes a starter config with a fresh JWT secret.
func WriteConfigFile(configPath string, dsn string, rateLimit int) error {
	secret, errSecret := security.GenerateSecret(32)
	if errSecret != nil {
		return errSecret
	}
	cfg := configFile{
		DatabaseDSN: dsn,
		JWT: jwtCfg{
			Secret: secret,
			Expiry: "720h",
		},
		RateLimit: rateLimitCfg{Limit: rateLimit},
		Sweeper: sweeperCfg{
			Enabled:  true,
			Schedule: "@hourly",
		},
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(configPath)
	if errMkdir := os.MkdirAll(dir, 0755); errMkdir != nil {
		return fmt.Errorf("create config dir: %w", errMkdir)
	}

	if errWrite := os.WriteFile(configPath, data, 0600); errWrite != nil {
		return fmt.Errorf("write config file: %w", errWrite)
	}

	return nil
}

// Setup validates the request, checks the database, migrates it and writes
// the config file. An existing config file is never overwritten.
func Setup(configPath string, req SetupRequest) error {
	if ConfigExists(configPath) {
		return fmt.Errorf("config already exists at %s", configPath)
	}
	if errValidate := validateSetupRequest(&req); errValidate != nil {
		return errValidate
	}
	dsn, errBuild := BuildDSN(req)
	if errBuild != nil {
		return errBuild
	}
	if errTest := TestDatabaseConnection(dsn); errTest != nil {
		return errTest
	}
	conn, errOpen := db.Open(dsn)
	if errOpen != nil {
		return errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return fmt.Errorf("migrate database: %w", errMigrate)
	}
	if errWrite := WriteConfigFile(configPath, dsn, req.RateLimit); errWrite != nil {
		return errWrite
	}
	entry := log.WithField("config", configPath)
	if info, errDescribe := db.DescribeDSN(dsn); errDescribe == nil {
		entry = entry.WithField("database", info.String())
	}
	entry.Info("setup complete")
	return nil
}
