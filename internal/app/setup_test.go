package app

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/homeledger/memberships/internal/config"
	"github.com/homeledger/memberships/internal/security"
)

func TestBuildDSN(t *testing.T) {
	pg, err := BuildDSN(SetupRequest{
		DatabaseType:     "postgres",
		DatabaseHost:     "db.internal",
		DatabasePort:     5433,
		DatabaseUser:     "svc",
		DatabasePassword: "pw",
		DatabaseName:     "memberships",
	})
	if err != nil {
		t.Fatalf("BuildDSN postgres: %v", err)
	}
	if pg != "postgres://svc:pw@db.internal:5433/memberships?sslmode=disable" {
		t.Fatalf("unexpected postgres dsn %q", pg)
	}

	lite, err := BuildDSN(SetupRequest{DatabaseType: "sqlite", DatabasePath: "data/m.db"})
	if err != nil {
		t.Fatalf("BuildDSN sqlite: %v", err)
	}
	if !strings.HasPrefix(lite, "file:data/m.db?_busy_timeout=5000") {
		t.Fatalf("unexpected sqlite dsn %q", lite)
	}

	if _, errBad := BuildDSN(SetupRequest{DatabaseType: "mysql"}); errBad == nil {
		t.Fatalf("expected unsupported type to fail")
	}
}

func TestValidateSetupRequest(t *testing.T) {
	req := SetupRequest{}
	if err := validateSetupRequest(&req); err != nil {
		t.Fatalf("validate default: %v", err)
	}
	if req.DatabaseType != "sqlite" || req.DatabasePath != defaultSQLitePath {
		t.Fatalf("expected sqlite defaults, got %+v", req)
	}

	pg := SetupRequest{DatabaseType: "postgres", DatabaseUser: "u", DatabaseName: "n"}
	if err := validateSetupRequest(&pg); err == nil {
		t.Fatalf("expected missing host to fail")
	}
	pg.DatabaseHost = "localhost"
	if err := validateSetupRequest(&pg); err != nil {
		t.Fatalf("validate postgres: %v", err)
	}
	if pg.DatabasePort != 5432 {
		t.Fatalf("expected default port 5432, got %d", pg.DatabasePort)
	}
}

func TestSetup_WritesLoadableConfig(t *testing.T) {
	t.Setenv(config.EnvDBConnection, "")
	t.Setenv(config.EnvJWTSecret, "")
	t.Setenv(config.EnvRateLimit, "")
	t.Setenv(config.EnvRedisAddr, "")
	t.Setenv(config.EnvSweeperSchedule, "")

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	req := SetupRequest{DatabaseType: "sqlite", DatabasePath: filepath.Join(dir, "memberships.db"), RateLimit: 20}
	if err := Setup(configPath, req); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if !ConfigExists(configPath) {
		t.Fatalf("expected config file to exist")
	}
	if err := Setup(configPath, req); err == nil {
		t.Fatalf("expected second setup to refuse overwriting")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.JWT.Secret) != 64 {
		t.Fatalf("expected generated 64-char secret, got %q", cfg.JWT.Secret)
	}
	if cfg.RateLimit.Limit != 20 {
		t.Fatalf("expected rate limit 20, got %d", cfg.RateLimit.Limit)
	}
	if !cfg.Sweeper.Enabled || cfg.Sweeper.Schedule != "@hourly" {
		t.Fatalf("unexpected sweeper config %+v", cfg.Sweeper)
	}

	token, err := IssueToken(cfg, "contractor-9")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	claims, err := security.ParseContractorToken(cfg.JWT.Secret, token)
	if err != nil {
		t.Fatalf("parse issued token: %v", err)
	}
	if claims.ContractorID != "contractor-9" {
		t.Fatalf("unexpected contractor %q", claims.ContractorID)
	}
	if _, errEmpty := IssueToken(cfg, " "); errEmpty == nil {
		t.Fatalf("expected empty contractor to fail")
	}
}
