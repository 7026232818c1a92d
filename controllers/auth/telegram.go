package auth

import (
	"errors"
	"net/http"
	"time"

	"gigtasks/controllers"
	"gigtasks/middleware"
	"gigtasks/services/assignment"
	"gigtasks/utils"

	"github.com/rs/zerolog/log"
)

const telegramLoginMaxAge = 24 * time.Hour

// TelegramLoginRequest is the login widget payload plus optional profile
// fields a worker can fill in on first sign-in.
type TelegramLoginRequest struct {
	utils.TelegramLogin
	Gender string `json:"gender" validate:"max=16"`
	City   string `json:"city" validate:"max=128"`
}

// Controller handles worker sign-in and logout for every role.
type Controller struct {
	svc      *assignment.Service
	tokens   *utils.TokenManager
	botToken string
	now      func() time.Time
}

func NewController(svc *assignment.Service, tokens *utils.TokenManager, botToken string) *Controller {
	return &Controller{svc: svc, tokens: tokens, botToken: botToken, now: time.Now}
}

// TelegramLogin handles POST /v1/auth/telegram.
func (c *Controller) TelegramLogin(w http.ResponseWriter, r *http.Request) {
	var req TelegramLoginRequest
	if err := middleware.ValidateJSON(w, r, &req); err != nil {
		return
	}
	if c.botToken == "" {
		utils.WriteError(w, http.StatusServiceUnavailable, "Telegram login is not configured")
		return
	}
	err := utils.VerifyTelegramLogin(c.botToken, req.TelegramLogin, telegramLoginMaxAge, c.now())
	switch {
	case errors.Is(err, utils.ErrTelegramExpired):
		utils.WriteError(w, http.StatusUnauthorized, "Login data expired, please sign in again")
		return
	case err != nil:
		utils.WriteError(w, http.StatusUnauthorized, "Invalid login data")
		return
	}

	u, err := c.svc.RegisterWorker(r.Context(), assignment.WorkerProfile{
		TgID:     req.ID,
		Username: req.Username,
		FullName: req.FullName(),
		Gender:   req.Gender,
		City:     req.City,
	})
	if err != nil {
		controllers.WriteServiceError(w, r, err)
		return
	}

	token, claims, err := c.tokens.Issue(u.ID.String(), u.TgID, utils.RoleWorker)
	if err != nil {
		log.Error().Err(err).Msg("failed to issue worker token")
		utils.WriteError(w, http.StatusInternalServerError, "Failed to create token")
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{
		Success: true,
		Message: "Logged in",
		Data: map[string]interface{}{
			"token":      token,
			"expires_at": claims.ExpiresAt,
			"user":       u,
		},
	})
}
