package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath      = "CONFIG_PATH"
	EnvDBConnection    = "DB_CONNECTION"
	EnvJWTSecret       = "JWT_SECRET"
	EnvJWTExpiry       = "JWT_EXPIRY"
	EnvRateLimit       = "RATE_LIMIT"
	EnvRedisAddr       = "REDIS_ADDR"
	EnvSweeperSchedule = "SWEEPER_SCHEDULE"
)

const (
	defaultJWTExpiry       = 30 * 24 * time.Hour
	defaultSweeperSchedule = "@hourly"
	defaultRedisPrefix     = "memberships:rl"
	defaultSweeperBatch    = 500
)

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file or environment.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file, or DB_CONNECTION)")

// ErrMissingJWTSecret indicates the token verification secret is not configured.
var ErrMissingJWTSecret = errors.New("missing jwt secret (set `jwt.secret` in config file, or JWT_SECRET)")

// JWTConfig holds JWT secret and expiry settings.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// RedisConfig points the rate limiter at a shared Redis.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// RateLimitConfig caps mutating requests per contractor per second. Zero disables it.
type RateLimitConfig struct {
	Limit int         `yaml:"limit"`
	Redis RedisConfig `yaml:"redis"`
}

// SweeperConfig controls the background expiry and renewal job.
type SweeperConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Schedule  string `yaml:"schedule"`
	BatchSize int    `yaml:"batch-size"`
}

// Config is the resolved service configuration.
type Config struct {
	ConfigPath  string
	DatabaseDSN string
	JWT         JWTConfig
	RateLimit   RateLimitConfig
	Sweeper     SweeperConfig
}

// fileConfig mirrors the YAML layout.
type fileConfig struct {
	DatabaseDSN string `yaml:"database-dsn"`
	Database    struct {
		DSN string `yaml:"dsn"`
	} `yaml:"database"`
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate-limit"`
	Sweeper   *SweeperConfig  `yaml:"sweeper"`
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = strings.TrimSpace(os.Getenv(EnvConfigPath))
	}
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// readFile parses the YAML config. A missing file yields an empty config so
// environment variables alone can configure the service.
func readFile(configPath string) (fileConfig, error) {
	var cfg fileConfig
	data, errRead := os.ReadFile(configPath)
	if errRead != nil {
		if errors.Is(errRead, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config file: %w", errRead)
	}
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return cfg, fmt.Errorf("parse config file: %w", errUnmarshal)
	}
	return cfg, nil
}

// Load resolves every setting from the config file and environment overrides.
func Load(configPath string) (Config, error) {
	configPath = ResolveConfigPath(configPath)
	file, errFile := readFile(configPath)
	if errFile != nil {
		return Config{}, errFile
	}

	dsn := resolveDSN(file)
	if dsn == "" {
		return Config{}, ErrMissingDatabaseDSN
	}
	jwtCfg := resolveJWT(file)
	if jwtCfg.Secret == "" {
		return Config{}, ErrMissingJWTSecret
	}
	return Config{
		ConfigPath:  configPath,
		DatabaseDSN: dsn,
		JWT:         jwtCfg,
		RateLimit:   resolveRateLimit(file),
		Sweeper:     resolveSweeper(file),
	}, nil
}

// LoadDatabaseDSN reads the database DSN, preferring DB_CONNECTION.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}
	file, errFile := readFile(configPath)
	if errFile != nil {
		return "", errFile
	}
	if dsn := resolveDSN(file); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// LoadJWTConfig loads JWT settings with environment overrides.
func LoadJWTConfig(configPath string) (JWTConfig, error) {
	file, errFile := readFile(configPath)
	if errFile != nil {
		return JWTConfig{}, errFile
	}
	return resolveJWT(file), nil
}

func resolveDSN(file fileConfig) string {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn
	}
	if dsn := strings.TrimSpace(file.DatabaseDSN); dsn != "" {
		return dsn
	}
	return strings.TrimSpace(file.Database.DSN)
}

func resolveJWT(file fileConfig) JWTConfig {
	result := file.JWT
	result.Secret = strings.TrimSpace(result.Secret)
	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		result.Secret = secret
	}
	if expiryRaw := strings.TrimSpace(os.Getenv(EnvJWTExpiry)); expiryRaw != "" {
		if expiry, errParse := time.ParseDuration(expiryRaw); errParse == nil && expiry > 0 {
			result.Expiry = expiry
		}
	}
	if result.Expiry <= 0 {
		result.Expiry = defaultJWTExpiry
	}
	return result
}

func resolveRateLimit(file fileConfig) RateLimitConfig {
	result := file.RateLimit
	if raw := strings.TrimSpace(os.Getenv(EnvRateLimit)); raw != "" {
		if limit, errParse := strconv.Atoi(raw); errParse == nil && limit >= 0 {
			result.Limit = limit
		}
	}
	if limit := result.Limit; limit < 0 {
		result.Limit = 0
	}
	if addr := strings.TrimSpace(os.Getenv(EnvRedisAddr)); addr != "" {
		result.Redis.Addr = addr
		result.Redis.Enabled = true
	}
	result.Redis.Addr = strings.TrimSpace(result.Redis.Addr)
	if result.Redis.Addr == "" {
		result.Redis.Enabled = false
	}
	if strings.TrimSpace(result.Redis.Prefix) == "" {
		result.Redis.Prefix = defaultRedisPrefix
	}
	return result
}

func resolveSweeper(file fileConfig) SweeperConfig {
	result := SweeperConfig{Enabled: true}
	if file.Sweeper != nil {
		result = *file.Sweeper
	}
	if schedule := strings.TrimSpace(os.Getenv(EnvSweeperSchedule)); schedule != "" {
		result.Schedule = schedule
	}
	result.Schedule = strings.TrimSpace(result.Schedule)
	if result.Schedule == "" {
		result.Schedule = defaultSweeperSchedule
	}
	if result.BatchSize <= 0 {
		result.BatchSize = defaultSweeperBatch
	}
	return result
}
