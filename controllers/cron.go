package controllers

import (
	"context"
	"net/http"

	"gigtasks/utils"
)

// Sweeps is implemented by scheduler.Scheduler.
type Sweeps interface {
	RunArchive(ctx context.Context) (int64, error)
	RunCleanup(ctx context.Context) (int64, error)
}

// CronController exposes the sweeps to an external cron; routes guard it
// with X-CRON-KEY.
type CronController struct {
	sweeps Sweeps
}

func NewCronController(sweeps Sweeps) *CronController {
	return &CronController{sweeps: sweeps}
}

// POST /v1/cron/archive-rejected
func (c *CronController) ArchiveRejected(w http.ResponseWriter, r *http.Request) {
	n, err := c.sweeps.RunArchive(r.Context())
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Archived", Data: map[string]int64{"archived": n}})
}

// POST /v1/cron/cleanup-unsubmitted
func (c *CronController) CleanupUnsubmitted(w http.ResponseWriter, r *http.Request) {
	n, err := c.sweeps.RunCleanup(r.Context())
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Cleaned up", Data: map[string]int64{"deleted": n}})
}
