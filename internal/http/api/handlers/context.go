package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/homeledger/memberships/internal/membership"
	log "github.com/sirupsen/logrus"
)

// ContractorIDKey is the gin context key holding the authenticated contractor.
const ContractorIDKey = "contractorID"

func contractorID(c *gin.Context) string {
	return c.GetString(ContractorIDKey)
}

// respondError maps membership error kinds to HTTP statuses. Anything
// unclassified is logged and reported as a 500 with a generic message.
func respondError(c *gin.Context, err error, action string) {
	switch {
	case errors.Is(err, membership.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, membership.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, membership.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": "invalid_state"})
	case errors.Is(err, membership.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": "conflict"})
	default:
		log.WithError(err).WithFields(log.Fields{
			"contractor_id": contractorID(c),
			"path":          c.FullPath(),
		}).Error(action)
		c.JSON(http.StatusInternalServerError, gin.H{"error": action})
	}
}
