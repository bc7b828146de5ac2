package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/OldStager01/cloud-vm-monitor/internal/statesync"
	"github.com/OldStager01/cloud-vm-monitor/internal/store"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
	"github.com/OldStager01/cloud-vm-monitor/pkg/validation"
)

const defaultMetricsLookback = 24 * time.Hour

type PowerService interface {
	Power(ctx context.Context, userID, vmID string, action statesync.Action) (*models.VM, error)
}

type VMHandler struct {
	vms     store.VMStore
	samples store.MetricStore
	power   PowerService
	now     func() time.Time
}

func NewVMHandler(vms store.VMStore, samples store.MetricStore, power PowerService) *VMHandler {
	return &VMHandler{vms: vms, samples: samples, power: power, now: time.Now}
}

// Metrics returns the VM's samples since ?since= (RFC3339), default the last
// 24 hours, bounded to the retention window.
//
// @Summary Metric samples of a VM
// @Tags vms
// @Produce json
// @Security BearerAuth
// @Param id path string true "VM ID"
// @Param since query string false "RFC3339 start time"
// @Success 200 {object} map[string]interface{} "Summary and samples"
// @Failure 400 {object} map[string]string "Invalid since"
// @Failure 404 {object} map[string]string "VM not found"
// @Router /vms/{id}/metrics [get]
func (h *VMHandler) Metrics(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	vmID, ok := requireID(c, "id")
	if !ok {
		return
	}

	now := h.now()
	since := now.Add(-defaultMetricsLookback)
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be an RFC3339 timestamp"})
			return
		}
		since = parsed
	}
	if err := validation.ValidateSince(since, now); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	vm, err := h.vms.Get(ctx, vmID)
	if err == nil && vm.UserID != userID {
		err = store.ErrNotFound
	}
	if err != nil {
		respondError(c, err, "load vm")
		return
	}

	samples, err := h.samples.Query(ctx, vmID, since)
	if err != nil {
		respondError(c, err, "query metrics")
		return
	}
	if samples == nil {
		samples = []*models.MetricSample{}
	}

	c.JSON(http.StatusOK, gin.H{
		"vm_id":   vm.ID,
		"summary": vm.Metrics,
		"samples": samples,
		"count":   len(samples),
	})
}

// Power returns the handler for one power action. The response carries the
// transitional state; the state sync job records where the VM settles.
//
// @Summary Start, stop or reboot a VM
// @Tags vms
// @Produce json
// @Security BearerAuth
// @Param id path string true "VM ID"
// @Success 202 {object} map[string]interface{} "Action initiated"
// @Failure 404 {object} map[string]string "VM not found"
// @Failure 422 {object} map[string]string "Provider not configured"
// @Failure 429 {object} map[string]interface{} "Rate limit exceeded"
// @Failure 502 {object} map[string]string "Provider error"
// @Router /vms/{id}/start [post]
// @Router /vms/{id}/stop [post]
// @Router /vms/{id}/reboot [post]
func (h *VMHandler) Power(action statesync.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}
		vmID, ok := requireID(c, "id")
		if !ok {
			return
		}

		vm, err := h.power.Power(c.Request.Context(), userID, vmID, action)
		if err != nil {
			respondError(c, err, string(action)+" vm")
			return
		}
		c.JSON(http.StatusAccepted, gin.H{
			"message": "VM " + string(action) + " initiated",
			"vm_id":   vm.ID,
			"state":   vm.State,
		})
	}
}
