package admins

import (
	"errors"
	"net/http"
	"strconv"

	"gigtasks/middleware"
	"gigtasks/models"
	"gigtasks/utils"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type LoginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=128"`
}

// LoginController issues admin tokens for the review panel.
type LoginController struct {
	db     *gorm.DB
	tokens *utils.TokenManager
}

func NewLoginController(db *gorm.DB, tokens *utils.TokenManager) *LoginController {
	return &LoginController{db: db, tokens: tokens}
}

// POST /v1/admin/login
func (c *LoginController) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := middleware.ValidateJSON(w, r, &req); err != nil {
		return
	}

	admin, err := models.GetAdminByUsername(c.db.WithContext(r.Context()), req.Username)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Error().Err(err).Msg("admin lookup failed")
			utils.WriteError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		utils.WriteError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}
	if !admin.ValidatePassword(req.Password) {
		utils.WriteError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	token, claims, err := c.tokens.Issue(strconv.FormatInt(admin.ID, 10), admin.TgID, utils.RoleAdmin)
	if err != nil {
		log.Error().Err(err).Msg("failed to issue admin token")
		utils.WriteError(w, http.StatusInternalServerError, "Failed to create token")
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{
		Success: true,
		Message: "Logged in",
		Data: map[string]interface{}{
			"token":      token,
			"expires_at": claims.ExpiresAt,
			"admin":      admin,
		},
	})
}
