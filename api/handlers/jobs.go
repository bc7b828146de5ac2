package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/OldStager01/cloud-vm-monitor/internal/logger"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

type JobRunner interface {
	RunNow(ctx context.Context, job string) (*models.JobRun, error)
	Jobs() []string
}

type JobHandler struct {
	runner JobRunner
}

func NewJobHandler(runner JobRunner) *JobHandler {
	return &JobHandler{runner: runner}
}

// List godoc
// @Summary Registered jobs
// @Tags jobs
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{} "Job names"
// @Router /jobs [get]
func (h *JobHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": h.runner.Jobs()})
}

// Run executes a job synchronously and reports its run record. A job that
// ran but failed still answers 200 with the error in the record.
//
// @Summary Run a job now
// @Tags jobs
// @Produce json
// @Security BearerAuth
// @Param name path string true "Job name"
// @Success 200 {object} models.JobRun "Run record"
// @Failure 404 {object} map[string]string "Unknown job"
// @Failure 429 {object} map[string]interface{} "Rate limit exceeded"
// @Router /jobs/{name}/run [post]
func (h *JobHandler) Run(c *gin.Context) {
	name := c.Param("name")

	run, err := h.runner.RunNow(c.Request.Context(), name)
	if run == nil {
		respondError(c, err, "run job")
		return
	}
	if err != nil {
		logger.WithJob(name).WithError(err).Warn("Manually triggered job failed")
	}
	c.JSON(http.StatusOK, run)
}
