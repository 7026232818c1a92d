// Package controllers holds the HTTP handlers shared by the worker, admin and
// cron routes.
package controllers

import (
	"context"
	"errors"
	"net/http"

	"gigtasks/models"
	"gigtasks/services/assignment"
	"gigtasks/utils"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// ReportNotifier and ReviewNotifier are implemented by telegram.Notifier.
type ReportNotifier interface {
	NotifyReport(ctx context.Context, p *assignment.ReportPayload)
}

type ReviewNotifier interface {
	NotifyVerdict(ctx context.Context, a *models.Assignment, reviewer, baseCaption string)
	NotifyApproval(ctx context.Context, u *models.User)
}

// WriteServiceError maps assignment errors to HTTP responses.
func WriteServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, assignment.ErrNotFound):
		utils.WriteError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, assignment.ErrForbidden):
		utils.WriteError(w, http.StatusForbidden, "Worker is blocked")
	case errors.Is(err, assignment.ErrInvalidState):
		utils.WriteError(w, http.StatusConflict, "Assignment is not in a state that allows this operation")
	case errors.Is(err, assignment.ErrInvalidInput):
		utils.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		rid, _ := r.Context().Value(utils.RequestIDKey).(string)
		log.Error().Err(err).Str("request_id", rid).Str("path", r.URL.Path).Msg("request failed")
		utils.WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// WriteDenial answers an allocation that handed out nothing.
func WriteDenial(w http.ResponseWriter, d assignment.Denial) {
	utils.WriteJSON(w, http.StatusConflict, utils.APIResponse{
		Success: false,
		Message: "No task assigned",
		Data:    map[string]string{"reason": string(d)},
	})
}

// PathUUID reads a uuid route variable, writing a 400 when it is malformed.
func PathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}
