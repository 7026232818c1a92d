package admins

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"gigtasks/controllers"
	"gigtasks/controllers/telegram"
	"gigtasks/models"
	"gigtasks/services/assignment"
	"gigtasks/utils"

	"github.com/gorilla/mux"
)

func pathTgID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	tgID, err := strconv.ParseInt(mux.Vars(r)["tg_id"], 10, 64)
	if err != nil || tgID <= 0 {
		utils.WriteError(w, http.StatusBadRequest, "Invalid tg_id")
		return 0, false
	}
	return tgID, true
}

// GET /v1/admin/users?status=PENDING
func (c *ReviewController) ListWorkers(w http.ResponseWriter, r *http.Request) {
	status := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status")))
	switch status {
	case "", models.ApprovalPending, models.ApprovalApproved, models.ApprovalRejected:
	default:
		utils.WriteError(w, http.StatusBadRequest, "Invalid status")
		return
	}
	workers, err := c.svc.ListWorkers(r.Context(), status)
	if err != nil {
		controllers.WriteServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "OK", Data: workers})
}

// PUT /v1/admin/users/{tg_id}/approve
func (c *ReviewController) ApproveWorker(w http.ResponseWriter, r *http.Request) {
	c.decide(w, r, true)
}

// PUT /v1/admin/users/{tg_id}/reject
func (c *ReviewController) RejectWorker(w http.ResponseWriter, r *http.Request) {
	c.decide(w, r, false)
}

func (c *ReviewController) decide(w http.ResponseWriter, r *http.Request, approve bool) {
	tgID, ok := pathTgID(w, r)
	if !ok {
		return
	}
	admin, ok := reviewer(w, r)
	if !ok {
		return
	}
	u, err := c.svc.DecideRegistration(r.Context(), tgID, admin.TgID, approve)
	if errors.Is(err, assignment.ErrInvalidState) {
		utils.WriteError(w, http.StatusConflict, "Registration was already decided")
		return
	}
	if err != nil {
		controllers.WriteServiceError(w, r, err)
		return
	}
	if c.notifier != nil {
		telegram.Async(r.Context(), func(ctx context.Context) {
			c.notifier.NotifyApproval(ctx, u)
		})
	}
	msg := "Worker rejected"
	if approve {
		msg = "Worker approved"
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: msg, Data: u})
}

// PUT /v1/admin/users/{tg_id}/block
func (c *ReviewController) BlockWorker(w http.ResponseWriter, r *http.Request) {
	c.setBlocked(w, r, true)
}

// PUT /v1/admin/users/{tg_id}/unblock
func (c *ReviewController) UnblockWorker(w http.ResponseWriter, r *http.Request) {
	c.setBlocked(w, r, false)
}

func (c *ReviewController) setBlocked(w http.ResponseWriter, r *http.Request, blocked bool) {
	tgID, ok := pathTgID(w, r)
	if !ok {
		return
	}
	u, err := c.svc.SetWorkerBlocked(r.Context(), tgID, blocked)
	if err != nil {
		controllers.WriteServiceError(w, r, err)
		return
	}
	msg := "Worker unblocked"
	if blocked {
		msg = "Worker blocked"
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: msg, Data: u})
}
