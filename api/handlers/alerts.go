package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/OldStager01/cloud-vm-monitor/api/middleware"
	"github.com/OldStager01/cloud-vm-monitor/internal/store"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
	"github.com/OldStager01/cloud-vm-monitor/pkg/validation"
)

// AlertService applies the alert status lifecycle for the owning user.
type AlertService interface {
	Acknowledge(ctx context.Context, userID, alertID, by string) (*models.Alert, error)
	Resolve(ctx context.Context, userID, alertID, by, notes string) (*models.Alert, error)
	Ignore(ctx context.Context, userID, alertID string) (*models.Alert, error)
}

type AlertHandler struct {
	alerts  store.AlertStore
	service AlertService
	limits  Limits
}

func NewAlertHandler(alerts store.AlertStore, service AlertService, limits Limits) *AlertHandler {
	return &AlertHandler{alerts: alerts, service: service, limits: limits}
}

// List godoc
// @Summary List the caller's alerts
// @Description Newest first, optionally filtered by status and VM
// @Tags alerts
// @Produce json
// @Security BearerAuth
// @Param status query string false "Alert status" Enums(active, acknowledged, resolved, ignored)
// @Param vm_id query string false "VM ID"
// @Param limit query int false "Maximum number of alerts"
// @Success 200 {object} map[string]interface{} "Alerts and count"
// @Failure 400 {object} map[string]string "Invalid filter"
// @Failure 401 {object} map[string]string "User not authenticated"
// @Router /alerts [get]
func (h *AlertHandler) List(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	status := c.Query("status")
	if err := validation.ValidateAlertStatus(status); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	vmID := c.Query("vm_id")
	if vmID != "" {
		if err := validation.ValidateID(vmID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	alerts, err := h.alerts.List(c.Request.Context(), store.AlertFilter{
		UserID: userID,
		VMID:   vmID,
		Status: models.AlertStatus(status),
		Limit:  h.limits.parse(c),
	})
	if err != nil {
		respondError(c, err, "list alerts")
		return
	}
	if alerts == nil {
		alerts = []*models.Alert{}
	}

	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "count": len(alerts)})
}

// Acknowledge godoc
// @Summary Acknowledge an active alert
// @Tags alerts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Alert ID"
// @Success 200 {object} models.Alert "Updated alert"
// @Failure 404 {object} map[string]string "Alert not found"
// @Failure 409 {object} map[string]string "Invalid status transition"
// @Router /alerts/{id}/acknowledge [post]
func (h *AlertHandler) Acknowledge(c *gin.Context) {
	h.transition(c, func(ctx context.Context, userID, alertID string) (*models.Alert, error) {
		return h.service.Acknowledge(ctx, userID, alertID, middleware.GetUsername(c))
	})
}

type ResolveRequest struct {
	Notes string `json:"notes"`
}

// Resolve godoc
// @Summary Resolve an alert
// @Tags alerts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Alert ID"
// @Param request body ResolveRequest false "Resolution notes"
// @Success 200 {object} models.Alert "Updated alert"
// @Failure 400 {object} map[string]string "Invalid request body"
// @Failure 404 {object} map[string]string "Alert not found"
// @Failure 409 {object} map[string]string "Invalid status transition"
// @Router /alerts/{id}/resolve [post]
func (h *AlertHandler) Resolve(c *gin.Context) {
	var req ResolveRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}
	notes, err := validation.ValidateDescription(req.Notes)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.transition(c, func(ctx context.Context, userID, alertID string) (*models.Alert, error) {
		return h.service.Resolve(ctx, userID, alertID, middleware.GetUsername(c), notes)
	})
}

// Ignore godoc
// @Summary Ignore an active alert
// @Tags alerts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Alert ID"
// @Success 200 {object} models.Alert "Updated alert"
// @Failure 404 {object} map[string]string "Alert not found"
// @Failure 409 {object} map[string]string "Invalid status transition"
// @Router /alerts/{id}/ignore [post]
func (h *AlertHandler) Ignore(c *gin.Context) {
	h.transition(c, h.service.Ignore)
}

func (h *AlertHandler) transition(c *gin.Context, apply func(ctx context.Context, userID, alertID string) (*models.Alert, error)) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	alertID, ok := requireID(c, "id")
	if !ok {
		return
	}

	alert, err := apply(c.Request.Context(), userID, alertID)
	if err != nil {
		respondError(c, err, "update alert")
		return
	}
	c.JSON(http.StatusOK, alert)
}
