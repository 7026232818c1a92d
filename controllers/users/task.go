package users

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"gigtasks/controllers"
	"gigtasks/controllers/telegram"
	"gigtasks/middleware"
	"gigtasks/models"
	"gigtasks/services/assignment"
	"gigtasks/utils"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const maxPhotoBytes = 10 << 20

// PhotoUploader is implemented by utils.PhotoStore.
type PhotoUploader interface {
	Upload(ctx context.Context, key string, body io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
}

// TaskController serves the worker side of the task flow.
type TaskController struct {
	svc      *assignment.Service
	notifier controllers.ReportNotifier
	photos   PhotoUploader
}

// NewTaskController wires the controller; notifier and photos may be nil.
func NewTaskController(svc *assignment.Service, notifier controllers.ReportNotifier, photos PhotoUploader) *TaskController {
	return &TaskController{svc: svc, notifier: notifier, photos: photos}
}

type AssignRequest struct {
	Source string `json:"source" validate:"required,source"`
	Gender string `json:"gender" validate:"max=16"`
}

type ReportRequest struct {
	AccountName string `json:"account_name" validate:"required,max=256"`
	PhotoRef    string `json:"photo_ref" validate:"required,max=512"`
}

func workerID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	claims, ok := utils.ClaimsFromContext(r.Context())
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Invalid token")
		return uuid.Nil, false
	}
	return id, true
}

func (c *TaskController) writeAssigned(w http.ResponseWriter, r *http.Request, a *models.Assignment, d assignment.Denial, err error) {
	if err != nil {
		controllers.WriteServiceError(w, r, err)
		return
	}
	if a == nil {
		controllers.WriteDenial(w, d)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.APIResponse{Success: true, Message: "Task assigned", Data: a})
}

// POST /v1/tasks/assign
func (c *TaskController) Assign(w http.ResponseWriter, r *http.Request) {
	id, ok := workerID(w, r)
	if !ok {
		return
	}
	var req AssignRequest
	if err := middleware.ValidateJSON(w, r, &req); err != nil {
		return
	}
	source, _ := assignment.ParseSource(req.Source)
	gender, ok := assignment.ParseGender(req.Gender)
	if !ok {
		utils.WriteError(w, http.StatusBadRequest, "Invalid gender")
		return
	}
	f := assignment.Filter{Source: source}
	if gender != nil {
		f.Gender = *gender
	}
	a, d, err := c.svc.Assign(r.Context(), id, f)
	c.writeAssigned(w, r, a, d, err)
}

// POST /v1/tasks/assign-any
func (c *TaskController) AssignAny(w http.ResponseWriter, r *http.Request) {
	id, ok := workerID(w, r)
	if !ok {
		return
	}
	a, d, err := c.svc.AssignAny(r.Context(), id)
	c.writeAssigned(w, r, a, d, err)
}

// GET /v1/tasks/current
func (c *TaskController) Current(w http.ResponseWriter, r *http.Request) {
	id, ok := workerID(w, r)
	if !ok {
		return
	}
	a, err := c.svc.CurrentAssignment(r.Context(), id)
	if err != nil {
		controllers.WriteServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "OK", Data: a})
}

// GET /v1/tasks/active
func (c *TaskController) Active(w http.ResponseWriter, r *http.Request) {
	id, ok := workerID(w, r)
	if !ok {
		return
	}
	a, err := c.svc.ActiveAssignment(r.Context(), id)
	if err != nil {
		controllers.WriteServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "OK", Data: a})
}

// SubmitReport handles POST /v1/tasks/{id}/report. The photo is either a
// reference in a JSON body or a multipart "photo" file stored in the bucket.
func (c *TaskController) SubmitReport(w http.ResponseWriter, r *http.Request) {
	wid, ok := workerID(w, r)
	if !ok {
		return
	}
	id, ok := controllers.PathUUID(w, r, "id")
	if !ok {
		return
	}

	existing, err := c.svc.GetAssignment(r.Context(), id)
	if err != nil {
		controllers.WriteServiceError(w, r, err)
		return
	}
	// hide other workers' assignments
	if existing.UserID != wid {
		utils.WriteError(w, http.StatusNotFound, "Not found")
		return
	}

	var req ReportRequest
	var uploadedKey string
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		key, ref, ok := c.uploadPhoto(w, r, id)
		if !ok {
			return
		}
		uploadedKey = key
		req = ReportRequest{AccountName: strings.TrimSpace(r.FormValue("account_name")), PhotoRef: ref}
		if err := utils.ValidateStruct(&req); err != nil {
			c.discard(r.Context(), uploadedKey)
			utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Validation failed", Data: err.Error()})
			return
		}
	} else if err := middleware.ValidateJSON(w, r, &req); err != nil {
		return
	}

	payload, err := c.svc.SubmitReport(r.Context(), id, req.AccountName, req.PhotoRef)
	if err != nil {
		c.discard(r.Context(), uploadedKey)
		controllers.WriteServiceError(w, r, err)
		return
	}

	if c.notifier != nil {
		telegram.Async(r.Context(), func(ctx context.Context) {
			c.notifier.NotifyReport(ctx, payload)
		})
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Report submitted", Data: payload})
}

func (c *TaskController) uploadPhoto(w http.ResponseWriter, r *http.Request, id uuid.UUID) (string, string, bool) {
	if c.photos == nil {
		utils.WriteError(w, http.StatusServiceUnavailable, "Photo uploads are not configured")
		return "", "", false
	}
	if err := r.ParseMultipartForm(maxPhotoBytes); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid multipart body")
		return "", "", false
	}
	file, header, err := r.FormFile("photo")
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "photo is required")
		return "", "", false
	}
	defer file.Close()

	ext := strings.ToLower(path.Ext(header.Filename))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".webp":
	default:
		utils.WriteError(w, http.StatusBadRequest, "Unsupported photo format")
		return "", "", false
	}
	key := fmt.Sprintf("%s%s/%s%s", utils.ReportPhotoPrefix, id, uuid.NewString(), ext)
	ref, err := c.photos.Upload(r.Context(), key, file)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("photo upload failed")
		utils.WriteError(w, http.StatusBadGateway, "Failed to store photo")
		return "", "", false
	}
	return key, ref, true
}

func (c *TaskController) discard(ctx context.Context, key string) {
	if key == "" || c.photos == nil {
		return
	}
	if err := c.photos.Delete(context.WithoutCancel(ctx), key); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn().Err(err).Str("key", key).Msg("failed to delete orphaned photo")
	}
}
