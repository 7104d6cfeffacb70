package main

import (
	"context"
	"path/filepath"
	"testing"
)

func TestValidatePort(t *testing.T) {
	for _, port := range []int{0, -1, 70000} {
		if err := validatePort(port); err == nil {
			t.Fatalf("expected port %d to be rejected", port)
		}
	}
	if err := validatePort(8320); err != nil {
		t.Fatalf("validatePort: %v", err)
	}
}

func TestRun_InitThenMigrate(t *testing.T) {
	t.Setenv("DB_CONNECTION", "")
	t.Setenv("JWT_SECRET", "")

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	ctx := context.Background()

	if err := run(ctx, []string{"-config", configPath, "-init", "-db-path", filepath.Join(dir, "m.db")}); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := run(ctx, []string{"-config", configPath, "-migrate"}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := run(ctx, []string{"-config", configPath, "-issue-token", "contractor-1"}); err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if err := run(ctx, []string{"-port", "0"}); err == nil {
		t.Fatalf("expected invalid port to fail")
	}
}
