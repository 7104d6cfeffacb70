package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/homeledger/memberships/internal/membership"
	"github.com/homeledger/memberships/internal/models"
)

// PlanHandler serves the plan catalog endpoints.
type PlanHandler struct {
	plans *membership.PlanCatalog
}

// NewPlanHandler constructs a plan handler.
func NewPlanHandler(plans *membership.PlanCatalog) *PlanHandler {
	return &PlanHandler{plans: plans}
}

// Create validates input and inserts a new plan.
func (h *PlanHandler) Create(c *gin.Context) {
	var body membership.PlanDraft
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	plan, errCreate := h.plans.Create(c.Request.Context(), contractorID(c), body)
	if errCreate != nil {
		respondError(c, errCreate, "create plan failed")
		return
	}
	c.JSON(http.StatusCreated, formatPlan(plan))
}

// List returns the contractor's plans; inactive ones only when asked.
func (h *PlanHandler) List(c *gin.Context) {
	includeInactive := false
	switch strings.ToLower(strings.TrimSpace(c.Query("include_inactive"))) {
	case "true", "1":
		includeInactive = true
	}

	rows, errList := h.plans.List(c.Request.Context(), contractorID(c), includeInactive)
	if errList != nil {
		respondError(c, errList, "list plans failed")
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatPlan(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"plans": out})
}

// Get fetches a plan by ID.
func (h *PlanHandler) Get(c *gin.Context) {
	plan, errGet := h.plans.Get(c.Request.Context(), contractorID(c), strings.TrimSpace(c.Param("id")))
	if errGet != nil {
		respondError(c, errGet, "query failed")
		return
	}
	c.JSON(http.StatusOK, formatPlan(plan))
}

// Update merges the supplied fields into a plan.
func (h *PlanHandler) Update(c *gin.Context) {
	var body membership.PlanPatch
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	plan, errUpdate := h.plans.Update(c.Request.Context(), contractorID(c), strings.TrimSpace(c.Param("id")), body)
	if errUpdate != nil {
		respondError(c, errUpdate, "update failed")
		return
	}
	c.JSON(http.StatusOK, formatPlan(plan))
}

// Delete deactivates a plan. Existing memberships are untouched.
func (h *PlanHandler) Delete(c *gin.Context) {
	if errDelete := h.plans.SoftDelete(c.Request.Context(), contractorID(c), strings.TrimSpace(c.Param("id"))); errDelete != nil {
		respondError(c, errDelete, "delete failed")
		return
	}
	c.Status(http.StatusNoContent)
}

// formatPlan converts a plan model into a response payload.
func formatPlan(p *models.Plan) gin.H {
	services := []models.IncludedService(p.IncludedServices)
	if services == nil {
		services = []models.IncludedService{}
	}
	return gin.H{
		"id":                    p.ID,
		"name":                  p.Name,
		"description":           p.Description,
		"color":                 p.Color,
		"price":                 p.Price,
		"billing_cycle":         p.BillingCycle,
		"included_services":     services,
		"benefits":              p.Benefits.Data(),
		"active":                p.Active,
		"member_count":          p.MemberCount,
		"renewal_reminder_days": p.RenewalReminderDays,
		"auto_renew_default":    p.AutoRenewDefault,
		"sort_order":            p.SortOrder,
		"created_at":            p.CreatedAt,
		"updated_at":            p.UpdatedAt,
	}
}
