package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/camps/internal/scheduler"
	"github.com/wonny/camps/pkg/logger"
)

// JobController is the scheduler surface exposed to operators
type JobController interface {
	GetJobStats() map[string]scheduler.JobStats
	RunJob(jobName string) error
}

// JobHandler exposes scheduler state
type JobHandler struct {
	jobs   JobController
	logger *logger.Logger
}

// NewJobHandler creates a new job handler
func NewJobHandler(jobs JobController, log *logger.Logger) *JobHandler {
	return &JobHandler{jobs: jobs, logger: log.Module("api.jobs")}
}

// ListJobs returns statistics for every scheduled job
// GET /api/admin/jobs
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.jobs.GetJobStats())
}

// RunJob triggers a job outside its schedule
// POST /api/admin/jobs/{name}/run
func (h *JobHandler) RunJob(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	if err := h.jobs.RunJob(name); err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	h.logger.WithField("job", name).Info("Job triggered manually")
	respondJSON(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
		"job":    name,
	})
}
