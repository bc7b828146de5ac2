package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/OldStager01/cloud-vm-monitor/api/middleware"
	"github.com/OldStager01/cloud-vm-monitor/internal/alerting"
	"github.com/OldStager01/cloud-vm-monitor/internal/cloud"
	"github.com/OldStager01/cloud-vm-monitor/internal/logger"
	"github.com/OldStager01/cloud-vm-monitor/internal/orchestrator"
	"github.com/OldStager01/cloud-vm-monitor/internal/snapshot"
	"github.com/OldStager01/cloud-vm-monitor/internal/statesync"
	"github.com/OldStager01/cloud-vm-monitor/internal/store"
	"github.com/OldStager01/cloud-vm-monitor/pkg/validation"
)

type Limits struct {
	Default int
	Max     int
}

func (l Limits) parse(c *gin.Context) int {
	def, max := l.Default, l.Max
	if def <= 0 {
		def = 50
	}
	if max <= 0 {
		max = 500
	}
	n, _ := strconv.Atoi(c.Query("limit"))
	return validation.ValidateLimit(n, def, max)
}

func getUserID(c *gin.Context) (string, bool) {
	userID := middleware.GetUserID(c)
	return userID, userID != ""
}

func requireUser(c *gin.Context) (string, bool) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
	}
	return userID, ok
}

func requireID(c *gin.Context, param string) (string, bool) {
	id := c.Param(param)
	if err := validation.ValidateID(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	return id, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, validation.ErrInvalidInput), errors.Is(err, statesync.ErrUnknownAction):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound), errors.Is(err, orchestrator.ErrUnknownJob):
		return http.StatusNotFound
	case errors.Is(err, alerting.ErrInvalidTransition), errors.Is(err, snapshot.ErrAlreadyDeleted):
		return http.StatusConflict
	case errors.Is(err, snapshot.ErrNoVolumes), errors.Is(err, cloud.ErrNotConfigured):
		return http.StatusUnprocessableEntity
	}
	var perr *cloud.ProviderError
	if errors.As(err, &perr) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// respondError maps domain errors to status codes. Unexpected errors are
// logged and reported without detail.
func respondError(c *gin.Context, err error, action string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.WithError(err).WithField("trace_id", middleware.GetTraceID(c)).Errorf("Failed to %s", action)
		c.JSON(status, gin.H{"error": "failed to " + action})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
