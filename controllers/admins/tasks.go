package admins

import (
	"context"
	"net/http"
	"strconv"

	"gigtasks/controllers"
	"gigtasks/controllers/telegram"
	"gigtasks/middleware"
	"gigtasks/models"
	"gigtasks/services/assignment"
	"gigtasks/utils"

	"github.com/google/uuid"
)

// ArchiveScheduler is implemented by scheduler.Scheduler.
type ArchiveScheduler interface {
	ArchiveLater(id uuid.UUID)
}

// ReviewController serves the admin side of the task flow.
type ReviewController struct {
	svc      *assignment.Service
	notifier controllers.ReviewNotifier
	archiver ArchiveScheduler
}

// NewReviewController wires the controller; notifier and archiver may be nil.
func NewReviewController(svc *assignment.Service, notifier controllers.ReviewNotifier, archiver ArchiveScheduler) *ReviewController {
	return &ReviewController{svc: svc, notifier: notifier, archiver: archiver}
}

type CreateTasksRequest struct {
	Tasks []assignment.TaskInput `json:"tasks" validate:"required,min=1,max=1000"`
}

// GET /v1/admin/tasks?source=
func (c *ReviewController) ListTasks(w http.ResponseWriter, r *http.Request) {
	var source string
	if raw := r.URL.Query().Get("source"); raw != "" {
		s, ok := assignment.ParseSource(raw)
		if !ok {
			utils.WriteError(w, http.StatusBadRequest, "Invalid source")
			return
		}
		source = s
	}
	tasks, err := c.svc.ListAvailableTasks(r.Context(), source)
	if err != nil {
		controllers.WriteServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "OK", Data: tasks})
}

// POST /v1/admin/tasks
func (c *ReviewController) CreateTasks(w http.ResponseWriter, r *http.Request) {
	var req CreateTasksRequest
	if err := middleware.ValidateJSON(w, r, &req); err != nil {
		return
	}
	tasks, rowErrs, err := c.svc.CreateTasks(r.Context(), req.Tasks)
	if len(rowErrs) > 0 {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Some rows are invalid", Data: rowErrs})
		return
	}
	if err != nil {
		controllers.WriteServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.APIResponse{
		Success: true,
		Message: "Tasks created",
		Data:    map[string]interface{}{"created": len(tasks), "tasks": tasks},
	})
}

// GET /v1/admin/assignments/{id}
func (c *ReviewController) GetAssignment(w http.ResponseWriter, r *http.Request) {
	id, ok := controllers.PathUUID(w, r, "id")
	if !ok {
		return
	}
	a, err := c.svc.GetAssignment(r.Context(), id)
	if err != nil {
		controllers.WriteServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "OK", Data: a})
}

// PUT /v1/admin/assignments/{id}/approve
func (c *ReviewController) Approve(w http.ResponseWriter, r *http.Request) {
	c.review(w, r, true)
}

// PUT /v1/admin/assignments/{id}/reject
func (c *ReviewController) Reject(w http.ResponseWriter, r *http.Request) {
	c.review(w, r, false)
}

func (c *ReviewController) review(w http.ResponseWriter, r *http.Request, approve bool) {
	id, ok := controllers.PathUUID(w, r, "id")
	if !ok {
		return
	}
	admin, ok := reviewer(w, r)
	if !ok {
		return
	}

	a, err := c.svc.Review(r.Context(), id, admin.TgID, approve)
	if err != nil {
		controllers.WriteServiceError(w, r, err)
		return
	}
	if a == nil {
		// nothing processed: missing, or already decided by someone else
		if _, err := c.svc.GetAssignment(r.Context(), id); err != nil {
			controllers.WriteServiceError(w, r, err)
			return
		}
		utils.WriteError(w, http.StatusConflict, "Assignment was already processed")
		return
	}

	if c.notifier != nil {
		name := reviewerName(admin)
		telegram.Async(r.Context(), func(ctx context.Context) {
			c.notifier.NotifyVerdict(ctx, a, name, "")
		})
	}
	if !approve && c.archiver != nil {
		c.archiver.ArchiveLater(a.ID)
	}
	msg := "Report approved"
	if !approve {
		msg = "Report rejected"
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: msg, Data: a})
}

// reviewer returns the calling admin. Decisions are recorded by Telegram id,
// the same id the bot records, so panel admins need one linked.
func reviewer(w http.ResponseWriter, r *http.Request) (*models.Admin, bool) {
	admin, ok := middleware.AdminFromContext(r.Context())
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return nil, false
	}
	if admin.TgID <= 0 {
		utils.WriteError(w, http.StatusForbidden, "Link a Telegram account to this admin before reviewing")
		return nil, false
	}
	return admin, true
}

func reviewerName(a *models.Admin) string {
	if a.Name != "" {
		return a.Name
	}
	return a.Username + " (#" + strconv.FormatInt(a.ID, 10) + ")"
}

// PUT /v1/admin/assignments/{id}/archive
func (c *ReviewController) Archive(w http.ResponseWriter, r *http.Request) {
	id, ok := controllers.PathUUID(w, r, "id")
	if !ok {
		return
	}
	archived, err := c.svc.ArchiveOne(r.Context(), id)
	if err != nil {
		controllers.WriteServiceError(w, r, err)
		return
	}
	if !archived {
		if _, err := c.svc.GetAssignment(r.Context(), id); err != nil {
			controllers.WriteServiceError(w, r, err)
			return
		}
		utils.WriteError(w, http.StatusConflict, "Only rejected assignments can be archived")
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Assignment archived"})
}
