package auth

import (
	"net/http"

	"gigtasks/utils"

	"github.com/rs/zerolog/log"
)

// Logout revokes the caller's access token until it would have expired.
func (c *Controller) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := utils.ClaimsFromContext(r.Context())
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if err := c.tokens.Revoke(r.Context(), claims); err != nil {
		log.Error().Err(err).Str("jti", claims.JTI).Msg("failed to revoke token")
		utils.WriteError(w, http.StatusInternalServerError, "Server error")
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Logged out"})
}
