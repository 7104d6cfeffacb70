package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/homeledger/memberships/internal/config"
	"github.com/homeledger/memberships/internal/db"
	"github.com/homeledger/memberships/internal/http/api"
	"github.com/homeledger/memberships/internal/membership"
	"github.com/homeledger/memberships/internal/metrics"
	"github.com/homeledger/memberships/internal/ratelimit"
	"github.com/homeledger/memberships/internal/security"
	"github.com/homeledger/memberships/internal/store"
	"github.com/homeledger/memberships/internal/sweeper"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	defaultPort     = 8320
	shutdownTimeout = 10 * time.Second
)

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.Config) error {
	conn, err := openDatabase(cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer closeDatabase(conn)
	return nil
}

// IssueToken signs a contractor bearer token with the configured secret.
func IssueToken(cfg config.Config, contractorID string) (string, error) {
	contractorID = strings.TrimSpace(contractorID)
	if contractorID == "" {
		return "", fmt.Errorf("contractor id is required")
	}
	return security.IssueContractorToken(cfg.JWT.Secret, contractorID, cfg.JWT.Expiry, time.Now())
}

// RunServer boots the membership API with its background sweeper and serves
// until ctx is cancelled.
func RunServer(ctx context.Context, cfg config.Config, port int) error {
	if port <= 0 {
		port = defaultPort
	}
	conn, err := openDatabase(cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer closeDatabase(conn)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.New(registry)

	st := store.NewGormStore(conn)
	service := membership.New(st, nil, appMetrics)

	limiter := ratelimit.NewManager(ratelimit.StaticSettings(rateLimitSettings(cfg.RateLimit)), nil, nil)
	defer func() {
		if errClose := limiter.Close(); errClose != nil {
			log.WithError(errClose).Warn("rate limiter close failed")
		}
	}()

	deps := api.Deps{
		DB:      conn,
		Service: service,
		JWT:     cfg.JWT,
		Limiter: limiter,
		Metrics: appMetrics,
	}
	if cfg.RateLimit.Redis.Enabled {
		deps.Redis = limiter
	}

	if cfg.Sweeper.Enabled {
		sw := sweeper.New(st, service.Memberships, sweeper.Options{
			Schedule:  cfg.Sweeper.Schedule,
			BatchSize: cfg.Sweeper.BatchSize,
			Observer:  appMetrics,
		})
		if errStart := sw.Start(ctx); errStart != nil {
			return errStart
		}
		defer sw.Stop()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := api.NewEngine(deps)

	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
			log.Errorf("server shutdown error: %v", errShutdown)
		}
	}()

	log.WithFields(log.Fields{
		"addr":       addr,
		"config":     cfg.ConfigPath,
		"rate_limit": cfg.RateLimit.Limit,
		"redis":      cfg.RateLimit.Redis.Enabled,
		"sweeper":    cfg.Sweeper.Enabled,
	}).Info("starting membership server")

	if errListen := srv.ListenAndServe(); errListen != nil && !errors.Is(errListen, http.ErrServerClosed) {
		return errListen
	}
	log.Info("membership server stopped")
	return nil
}

func openDatabase(dsn string) (*gorm.DB, error) {
	conn, err := db.Open(dsn)
	if err != nil {
		return nil, err
	}
	if info, errDescribe := db.DescribeDSN(dsn); errDescribe == nil {
		log.WithField("database", info.String()).Info("database opened")
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		closeDatabase(conn)
		return nil, errMigrate
	}
	return conn, nil
}

func closeDatabase(conn *gorm.DB) {
	sqlDB, err := conn.DB()
	if err != nil {
		return
	}
	if errClose := sqlDB.Close(); errClose != nil {
		log.WithError(errClose).Warn("database close failed")
	}
}

func rateLimitSettings(cfg config.RateLimitConfig) ratelimit.Settings {
	return ratelimit.Settings{
		Limit:         cfg.Limit,
		RedisEnabled:  cfg.Redis.Enabled,
		RedisAddr:     cfg.Redis.Addr,
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
		RedisPrefix:   cfg.Redis.Prefix,
	}
}
