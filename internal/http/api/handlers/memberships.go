package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/homeledger/memberships/internal/membership"
	"github.com/homeledger/memberships/internal/models"
)

// MembershipHandler serves membership lifecycle endpoints.
type MembershipHandler struct {
	memberships *membership.Lifecycle
}

// NewMembershipHandler constructs a membership handler.
func NewMembershipHandler(memberships *membership.Lifecycle) *MembershipHandler {
	return &MembershipHandler{memberships: memberships}
}

// createMembershipRequest is an enrolment request naming its plan.
type createMembershipRequest struct {
	PlanID string `json:"plan_id"` // Plan to enrol in.
	membership.MembershipRequest
}

// Create enrols a customer in a plan.
func (h *MembershipHandler) Create(c *gin.Context) {
	var body createMembershipRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	planID := strings.TrimSpace(body.PlanID)
	if planID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "plan_id is required"})
		return
	}
	m, errCreate := h.memberships.Create(c.Request.Context(), contractorID(c), planID, body.MembershipRequest)
	if errCreate != nil {
		respondError(c, errCreate, "create membership failed")
		return
	}
	c.JSON(http.StatusCreated, formatMembership(m))
}

// List returns memberships filtered by status, customer, plan or search text.
func (h *MembershipHandler) List(c *gin.Context) {
	filter := membership.ListFilter{
		Status:     models.MembershipStatus(strings.TrimSpace(c.Query("status"))),
		CustomerID: strings.TrimSpace(c.Query("customer_id")),
		PlanID:     strings.TrimSpace(c.Query("plan_id")),
		Search:     strings.TrimSpace(c.Query("search")),
	}
	rows, errList := h.memberships.List(c.Request.Context(), contractorID(c), filter)
	if errList != nil {
		respondError(c, errList, "list memberships failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"memberships": formatMemberships(rows)})
}

// Get fetches a membership by ID.
func (h *MembershipHandler) Get(c *gin.Context) {
	m, errGet := h.memberships.Get(c.Request.Context(), contractorID(c), strings.TrimSpace(c.Param("id")))
	if errGet != nil {
		respondError(c, errGet, "query failed")
		return
	}
	c.JSON(http.StatusOK, formatMembership(m))
}

// Update patches editable membership fields.
func (h *MembershipHandler) Update(c *gin.Context) {
	var body membership.MembershipPatch
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	m, errUpdate := h.memberships.Update(c.Request.Context(), contractorID(c), strings.TrimSpace(c.Param("id")), body)
	if errUpdate != nil {
		respondError(c, errUpdate, "update failed")
		return
	}
	c.JSON(http.StatusOK, formatMembership(m))
}

// cancelRequest carries an optional cancellation reason.
type cancelRequest struct {
	Reason string `json:"reason"`
}

// Cancel ends a membership. Repeating the call is harmless.
func (h *MembershipHandler) Cancel(c *gin.Context) {
	var body cancelRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil && !errors.Is(errBind, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	m, errCancel := h.memberships.Cancel(c.Request.Context(), contractorID(c), strings.TrimSpace(c.Param("id")), body.Reason)
	if errCancel != nil {
		respondError(c, errCancel, "cancel failed")
		return
	}
	c.JSON(http.StatusOK, formatMembership(m))
}

// Renew starts a new period from now.
func (h *MembershipHandler) Renew(c *gin.Context) {
	m, errRenew := h.memberships.Renew(c.Request.Context(), contractorID(c), strings.TrimSpace(c.Param("id")))
	if errRenew != nil {
		respondError(c, errRenew, "renew failed")
		return
	}
	c.JSON(http.StatusOK, formatMembership(m))
}

func formatMemberships(rows []models.Membership) []gin.H {
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatMembership(&rows[i]))
	}
	return out
}

// formatMembership converts a membership model into a response payload.
func formatMembership(m *models.Membership) gin.H {
	services := []models.ServiceUsage(m.ServicesUsed)
	if services == nil {
		services = []models.ServiceUsage{}
	}
	discounts := []models.DiscountRecord(m.DiscountsApplied)
	if discounts == nil {
		discounts = []models.DiscountRecord{}
	}
	waivers := []models.FeeWaiver(m.FeesWaived)
	if waivers == nil {
		waivers = []models.FeeWaiver{}
	}
	return gin.H{
		"id":                       m.ID,
		"plan_id":                  m.PlanID,
		"plan_name":                m.PlanName,
		"plan_color":               m.PlanColor,
		"price":                    m.Price,
		"billing_cycle":            m.BillingCycle,
		"benefits":                 m.BenefitSet(),
		"customer_id":              m.CustomerID,
		"customer_name":            m.CustomerName,
		"customer_email":           m.CustomerEmail,
		"customer_phone":           m.CustomerPhone,
		"service_address":          m.ServiceAddress,
		"status":                   m.Status,
		"start_date":               m.StartDate,
		"end_date":                 m.EndDate,
		"renewal_date":             m.RenewalDate,
		"auto_renew":               m.AutoRenew,
		"payment_method":           m.PaymentMethod,
		"services_used":            services,
		"discounts_applied":        discounts,
		"fees_waived":              waivers,
		"total_savings":            m.TotalSavings,
		"notes":                    m.Notes,
		"renewal_count":            m.RenewalCount,
		"renewal_reminder_sent_at": m.RenewalReminderSentAt,
		"version":                  m.Version,
		"created_at":               m.CreatedAt,
		"updated_at":               m.UpdatedAt,
		"renewed_at":               m.RenewedAt,
		"cancelled_at":             m.CancelledAt,
		"cancellation_reason":      m.CancellationReason,
	}
}
