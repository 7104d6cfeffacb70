package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/homeledger/memberships/internal/membership"
)

// AnalyticsHandler serves read-only membership reports.
type AnalyticsHandler struct {
	analytics *membership.Aggregator
}

// NewAnalyticsHandler constructs an analytics handler.
func NewAnalyticsHandler(analytics *membership.Aggregator) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

// Expiring lists active memberships ending within within_days (default 30).
func (h *AnalyticsHandler) Expiring(c *gin.Context) {
	days := membership.ExpiringWindowDays
	if raw := strings.TrimSpace(c.Query("within_days")); raw != "" {
		parsed, errParse := strconv.Atoi(raw)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid within_days"})
			return
		}
		days = parsed
	}
	rows, errList := h.analytics.ListExpiring(c.Request.Context(), contractorID(c), days)
	if errList != nil {
		respondError(c, errList, "list expiring failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"within_days": days, "memberships": formatMemberships(rows)})
}

// Stats returns the contractor-wide membership summary.
func (h *AnalyticsHandler) Stats(c *gin.Context) {
	stats, errStats := h.analytics.ComputeStats(c.Request.Context(), contractorID(c))
	if errStats != nil {
		respondError(c, errStats, "compute stats failed")
		return
	}
	c.JSON(http.StatusOK, stats)
}
