package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/homeledger/memberships/internal/app"
	"github.com/homeledger/memberships/internal/config"

	log "github.com/sirupsen/logrus"
)

// main runs the CLI entrypoint and exits on unrecoverable command errors.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if errRun := run(ctx, os.Args[1:]); errRun != nil {
		log.WithError(errRun).Error("command failed")
		stop()
		os.Exit(1)
	}
}

// run parses flags, loads config, and dispatches to setup, migrate, token
// issuance or the server.
func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("memberships", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file path (or env CONFIG_PATH)")
	port := fs.Int("port", 8320, "server port")
	migrateOnly := fs.Bool("migrate", false, "run database migrations and exit")
	issueToken := fs.String("issue-token", "", "print a bearer token for the given contractor id and exit")
	debug := fs.Bool("debug", false, "enable debug logging")

	setup := fs.Bool("init", false, "write a starter config file and exit")
	dbType := fs.String("db-type", "sqlite", "init: database type (sqlite or postgres)")
	dbPath := fs.String("db-path", "", "init: sqlite database file")
	dbHost := fs.String("db-host", "", "init: postgres host")
	dbPort := fs.Int("db-port", 5432, "init: postgres port")
	dbUser := fs.String("db-user", "", "init: postgres user")
	dbPassword := fs.String("db-password", "", "init: postgres password")
	dbName := fs.String("db-name", "", "init: postgres database")
	dbSSLMode := fs.String("db-sslmode", "", "init: postgres sslmode")
	rateLimit := fs.Int("rate-limit", 0, "init: mutating requests per contractor per second (0 disables)")

	if errParse := fs.Parse(args); errParse != nil {
		if errors.Is(errParse, flag.ErrHelp) {
			return nil
		}
		return errParse
	}

	if errValidate := validatePort(*port); errValidate != nil {
		return errValidate
	}
	if *debug {
		log.SetLevel(log.DebugLevel)
	}

	configPath := config.ResolveConfigPath(*cfgPath)

	if *setup {
		return app.Setup(configPath, app.SetupRequest{
			DatabaseType:     *dbType,
			DatabaseHost:     *dbHost,
			DatabasePort:     *dbPort,
			DatabaseUser:     *dbUser,
			DatabasePassword: *dbPassword,
			DatabaseName:     *dbName,
			DatabasePath:     *dbPath,
			DatabaseSSLMode:  *dbSSLMode,
			RateLimit:        *rateLimit,
		})
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if contractorID := strings.TrimSpace(*issueToken); contractorID != "" {
		token, errIssue := app.IssueToken(cfg, contractorID)
		if errIssue != nil {
			return errIssue
		}
		fmt.Println(token)
		return nil
	}

	if *migrateOnly {
		if errMigrate := app.Migrate(ctx, cfg); errMigrate != nil {
			return errMigrate
		}
		log.Info("migrations applied")
		return nil
	}

	return app.RunServer(ctx, cfg, *port)
}

func validatePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port: %d", port)
	}
	return nil
}
