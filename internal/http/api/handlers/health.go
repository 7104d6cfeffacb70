package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Health status values.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

const healthTimeout = 5 * time.Second

// Pinger is an optional dependency checked by the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports database and Redis reachability.
type HealthHandler struct {
	db    *gorm.DB
	redis Pinger
}

// NewHealthHandler constructs a health handler. redis may be nil.
func NewHealthHandler(db *gorm.DB, redis Pinger) *HealthHandler {
	return &HealthHandler{db: db, redis: redis}
}

type dependencyStatus struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// Healthz returns 503 when the database is down. A Redis failure only
// degrades the service since the rate limiter falls back to memory.
func (h *HealthHandler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	overall := StatusHealthy
	deps := map[string]dependencyStatus{}

	dbStatus := h.checkDatabase(ctx)
	deps["database"] = dbStatus
	if dbStatus.Status != StatusHealthy {
		overall = StatusUnhealthy
	}

	if h.redis != nil {
		redisStatus := check(ctx, h.redis.Ping)
		deps["redis"] = redisStatus
		if redisStatus.Status != StatusHealthy && overall == StatusHealthy {
			overall = StatusDegraded
		}
	}

	code := http.StatusOK
	if overall == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":       overall,
		"timestamp":    time.Now().UTC(),
		"dependencies": deps,
	})
}

func (h *HealthHandler) checkDatabase(ctx context.Context) dependencyStatus {
	if h.db == nil {
		return dependencyStatus{Status: StatusUnhealthy, Message: "database not configured"}
	}
	sqlDB, errDB := h.db.DB()
	if errDB != nil {
		return dependencyStatus{Status: StatusUnhealthy, Message: errDB.Error()}
	}
	return check(ctx, sqlDB.PingContext)
}

func check(ctx context.Context, ping func(context.Context) error) dependencyStatus {
	start := time.Now()
	errPing := ping(ctx)
	status := dependencyStatus{Status: StatusHealthy, LatencyMS: time.Since(start).Milliseconds()}
	if errPing != nil {
		status.Status = StatusUnhealthy
		status.Message = errPing.Error()
	}
	return status
}
