package api

import (
	"github.com/gin-gonic/gin"
	"github.com/homeledger/memberships/internal/config"
	"github.com/homeledger/memberships/internal/http/api/handlers"
	"github.com/homeledger/memberships/internal/membership"
	"github.com/homeledger/memberships/internal/metrics"
	"gorm.io/gorm"
)

// Deps are the collaborators the HTTP API is built from.
type Deps struct {
	DB      *gorm.DB
	Service *membership.Service
	JWT     config.JWTConfig
	Limiter RateLimiter      // Optional.
	Metrics *metrics.Metrics // Optional.
	Redis   handlers.Pinger  // Optional; reported by /healthz.
}

// NewEngine builds a gin engine with the standard middleware and all routes.
func NewEngine(deps Deps) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())
	engine.Use(requestLogger())
	if deps.Metrics != nil {
		engine.Use(deps.Metrics.Middleware())
	}
	RegisterRoutes(engine, deps)
	return engine
}

// RegisterRoutes registers health, metrics and the contractor API.
func RegisterRoutes(r *gin.Engine, deps Deps) {
	if r == nil || deps.Service == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(deps.DB, deps.Redis)
	r.GET("/healthz", healthHandler.Healthz)
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	authed := r.Group("/v1")
	authed.Use(contractorAuthMiddleware(deps.JWT.Secret))
	if deps.Limiter != nil {
		authed.Use(rateLimitMiddleware(deps.Limiter))
	}

	planHandler := handlers.NewPlanHandler(deps.Service.Plans)
	authed.POST("/plans", planHandler.Create)
	authed.GET("/plans", planHandler.List)
	authed.GET("/plans/:id", planHandler.Get)
	authed.PUT("/plans/:id", planHandler.Update)
	authed.DELETE("/plans/:id", planHandler.Delete)

	membershipHandler := handlers.NewMembershipHandler(deps.Service.Memberships)
	authed.POST("/memberships", membershipHandler.Create)
	authed.GET("/memberships", membershipHandler.List)
	authed.GET("/memberships/:id", membershipHandler.Get)
	authed.PUT("/memberships/:id", membershipHandler.Update)
	authed.POST("/memberships/:id/cancel", membershipHandler.Cancel)
	authed.POST("/memberships/:id/renew", membershipHandler.Renew)

	benefitHandler := handlers.NewBenefitHandler(deps.Service.Benefits)
	authed.POST("/memberships/:id/discounts", benefitHandler.ApplyDiscount)
	authed.POST("/memberships/:id/fee-waivers", benefitHandler.WaiveFee)
	authed.POST("/memberships/:id/service-usage", benefitHandler.RecordServiceUsage)
	authed.GET("/memberships/:id/availability", benefitHandler.Availability)
	authed.POST("/memberships/:id/benefits/preview", benefitHandler.Preview)

	analyticsHandler := handlers.NewAnalyticsHandler(deps.Service.Analytics)
	authed.GET("/analytics/expiring", analyticsHandler.Expiring)
	authed.GET("/analytics/stats", analyticsHandler.Stats)
}
