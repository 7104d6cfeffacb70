package db

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// DSNInfo describes a DSN without its credentials, for logging.
type DSNInfo struct {
	Type        string
	Host        string
	Port        int
	User        string
	Name        string
	Path        string
	PasswordSet bool
}

// String renders the DSN description without secrets.
func (i DSNInfo) String() string {
	if i.Type == DialectSQLite {
		return fmt.Sprintf("sqlite:%s", i.Path)
	}
	return fmt.Sprintf("postgres://%s@%s:%d/%s", i.User, i.Host, i.Port, i.Name)
}

// DescribeDSN parses a DSN into loggable parts.
func DescribeDSN(dsn string) (DSNInfo, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return DSNInfo{}, fmt.Errorf("empty dsn")
	}

	if !isPostgresDSN(trimmed) {
		pathPart := trimmed
		if strings.HasPrefix(strings.ToLower(pathPart), "file:") {
			pathPart = pathPart[len("file:"):]
		}
		pathPart, _, _ = strings.Cut(pathPart, "?")
		return DSNInfo{Type: DialectSQLite, Path: strings.TrimSpace(pathPart)}, nil
	}

	cfg, errParse := pgx.ParseConfig(trimmed)
	if errParse != nil {
		return DSNInfo{}, fmt.Errorf("parse dsn: %w", errParse)
	}
	return DSNInfo{
		Type:        DialectPostgres,
		Host:        cfg.Host,
		Port:        int(cfg.Port),
		User:        cfg.User,
		Name:        cfg.Database,
		PasswordSet: cfg.Password != "",
	}, nil
}
