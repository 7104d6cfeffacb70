package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/homeledger/memberships/internal/membership"
	"github.com/shopspring/decimal"
)

// BenefitHandler serves discount, fee waiver and quota endpoints.
type BenefitHandler struct {
	benefits *membership.BenefitEngine
}

// NewBenefitHandler constructs a benefit handler.
func NewBenefitHandler(benefits *membership.BenefitEngine) *BenefitHandler {
	return &BenefitHandler{benefits: benefits}
}

type discountRequest struct {
	JobID         string          `json:"job_id"`
	OriginalTotal decimal.Decimal `json:"original_total"`
}

// ApplyDiscount records the plan discount against a job total.
func (h *BenefitHandler) ApplyDiscount(c *gin.Context) {
	var body discountRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	res, errApply := h.benefits.ApplyDiscount(c.Request.Context(), contractorID(c), strings.TrimSpace(c.Param("id")), body.JobID, body.OriginalTotal)
	if errApply != nil {
		respondError(c, errApply, "apply discount failed")
		return
	}
	c.JSON(http.StatusOK, res)
}

type feeWaiverRequest struct {
	JobID     string          `json:"job_id"`
	FeeType   string          `json:"fee_type"`
	FeeAmount decimal.Decimal `json:"fee_amount"`
}

// WaiveFee records a waived fee.
func (h *BenefitHandler) WaiveFee(c *gin.Context) {
	var body feeWaiverRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	res, errWaive := h.benefits.WaiveFee(c.Request.Context(), contractorID(c), strings.TrimSpace(c.Param("id")), body.JobID, body.FeeType, body.FeeAmount)
	if errWaive != nil {
		respondError(c, errWaive, "waive fee failed")
		return
	}
	c.JSON(http.StatusOK, res)
}

type serviceUsageRequest struct {
	ServiceType string `json:"service_type"`
	JobID       string `json:"job_id"`
}

// RecordServiceUsage draws one use from an included service. An exhausted
// quota is a normal 200 response with success=false.
func (h *BenefitHandler) RecordServiceUsage(c *gin.Context) {
	var body serviceUsageRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	res, errRecord := h.benefits.RecordServiceUsage(c.Request.Context(), contractorID(c), strings.TrimSpace(c.Param("id")), body.ServiceType, body.JobID)
	if errRecord != nil {
		respondError(c, errRecord, "record service usage failed")
		return
	}
	c.JSON(http.StatusOK, res)
}

// Availability reports the remaining quota for one service type.
func (h *BenefitHandler) Availability(c *gin.Context) {
	serviceType := strings.TrimSpace(c.Query("service_type"))
	if serviceType == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "service_type is required"})
		return
	}
	res, errCheck := h.benefits.CheckAvailability(c.Request.Context(), contractorID(c), strings.TrimSpace(c.Param("id")), serviceType)
	if errCheck != nil {
		respondError(c, errCheck, "check availability failed")
		return
	}
	c.JSON(http.StatusOK, res)
}

// Preview computes the benefits a membership would grant on a quote.
func (h *BenefitHandler) Preview(c *gin.Context) {
	var body membership.Quote
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	res, errPreview := h.benefits.Preview(c.Request.Context(), contractorID(c), strings.TrimSpace(c.Param("id")), body)
	if errPreview != nil {
		respondError(c, errPreview, "preview benefits failed")
		return
	}
	c.JSON(http.StatusOK, res)
}
