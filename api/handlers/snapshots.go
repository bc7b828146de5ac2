package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/OldStager01/cloud-vm-monitor/internal/store"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
	"github.com/OldStager01/cloud-vm-monitor/pkg/validation"
)

type SnapshotService interface {
	List(ctx context.Context, filter store.SnapshotFilter) ([]*models.Snapshot, error)
	Stats(ctx context.Context, userID string) (*models.SnapshotStats, error)
	CreateManual(ctx context.Context, userID, vmID, description string) ([]*models.Snapshot, error)
	Delete(ctx context.Context, userID, id string) (*models.Snapshot, error)
}

type SnapshotHandler struct {
	service SnapshotService
	limits  Limits
}

func NewSnapshotHandler(service SnapshotService, limits Limits) *SnapshotHandler {
	return &SnapshotHandler{service: service, limits: limits}
}

// List godoc
// @Summary List the caller's snapshots
// @Tags snapshots
// @Produce json
// @Security BearerAuth
// @Param status query string false "Snapshot status" Enums(pending, completed, error, deleted)
// @Param vm_id query string false "VM ID"
// @Param limit query int false "Maximum number of snapshots"
// @Success 200 {object} map[string]interface{} "Snapshots and count"
// @Failure 400 {object} map[string]string "Invalid filter"
// @Failure 401 {object} map[string]string "User not authenticated"
// @Router /snapshots [get]
func (h *SnapshotHandler) List(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	status := c.Query("status")
	if err := validation.ValidateSnapshotStatus(status); err != nil {
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

	snapshots, err := h.service.List(c.Request.Context(), store.SnapshotFilter{
		UserID: userID,
		VMID:   vmID,
		Status: models.SnapshotStatus(status),
		Limit:  h.limits.parse(c),
	})
	if err != nil {
		respondError(c, err, "list snapshots")
		return
	}
	if snapshots == nil {
		snapshots = []*models.Snapshot{}
	}

	c.JSON(http.StatusOK, gin.H{"snapshots": snapshots, "count": len(snapshots)})
}

// Stats godoc
// @Summary Snapshot statistics
// @Description Totals plus counts per provider and per status for the caller's snapshots
// @Tags snapshots
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.SnapshotStats "Statistics"
// @Failure 401 {object} map[string]string "User not authenticated"
// @Router /snapshots/stats [get]
func (h *SnapshotHandler) Stats(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	stats, err := h.service.Stats(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "compute snapshot stats")
		return
	}
	c.JSON(http.StatusOK, stats)
}

type CreateSnapshotRequest struct {
	Description string `json:"description"`
}

// Create godoc
// @Summary Take a manual snapshot of every volume
// @Tags snapshots
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "VM ID"
// @Param request body CreateSnapshotRequest false "Snapshot description"
// @Success 201 {object} map[string]interface{} "Snapshots and count"
// @Failure 400 {object} map[string]string "Invalid request body"
// @Failure 404 {object} map[string]string "VM not found"
// @Failure 422 {object} map[string]string "Provider not configured or VM has no volumes"
// @Failure 429 {object} map[string]interface{} "Rate limit exceeded"
// @Router /vms/{id}/snapshots [post]
func (h *SnapshotHandler) Create(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	vmID, ok := requireID(c, "id")
	if !ok {
		return
	}

	var req CreateSnapshotRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}
	description, err := validation.ValidateDescription(req.Description)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snapshots, err := h.service.CreateManual(c.Request.Context(), userID, vmID, description)
	if err != nil {
		respondError(c, err, "create snapshot")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"snapshots": snapshots, "count": len(snapshots)})
}

// Delete godoc
// @Summary Delete a snapshot
// @Description Delete the snapshot at the provider and mark it deleted
// @Tags snapshots
// @Produce json
// @Security BearerAuth
// @Param id path string true "Snapshot ID"
// @Success 200 {object} models.Snapshot "Deleted snapshot"
// @Failure 404 {object} map[string]string "Snapshot not found"
// @Failure 409 {object} map[string]string "Snapshot already deleted"
// @Failure 502 {object} map[string]string "Provider error"
// @Router /snapshots/{id} [delete]
func (h *SnapshotHandler) Delete(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := requireID(c, "id")
	if !ok {
		return
	}

	snap, err := h.service.Delete(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, err, "delete snapshot")
		return
	}
	c.JSON(http.StatusOK, snap)
}
