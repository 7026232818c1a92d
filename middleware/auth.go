package middleware

import (
	"context"
	"errors"
	"net/http"

	"gigtasks/models"
	"gigtasks/utils"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Auth validates bearer tokens and stores the caller in the request context.
type Auth struct {
	tokens *utils.TokenManager
	db     *gorm.DB
}

func NewAuth(tokens *utils.TokenManager, db *gorm.DB) *Auth {
	return &Auth{tokens: tokens, db: db}
}

func (a *Auth) authenticate(w http.ResponseWriter, r *http.Request) (*utils.Claims, bool) {
	tokenStr, ok := utils.BearerToken(r)
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return nil, false
	}
	claims, err := a.tokens.Validate(r.Context(), tokenStr)
	switch {
	case errors.Is(err, utils.ErrTokenExpired):
		utils.WriteError(w, http.StatusUnauthorized, "Session expired, please log in again")
		return nil, false
	case errors.Is(err, utils.ErrTokenRevoked), errors.Is(err, utils.ErrInvalidToken):
		utils.WriteError(w, http.StatusUnauthorized, "Invalid token")
		return nil, false
	case err != nil:
		log.Error().Err(err).Msg("token validation failed")
		utils.WriteError(w, http.StatusInternalServerError, "Internal server error")
		return nil, false
	}
	return claims, true
}

// Worker only admits worker tokens of workers an admin has approved.
func (a *Auth) Worker(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := a.authenticate(w, r)
		if !ok {
			return
		}
		// block admin role from worker endpoints
		if claims.Role != utils.RoleWorker {
			utils.WriteError(w, http.StatusForbidden, "Access denied")
			return
		}

		var user models.User
		if err := a.db.WithContext(r.Context()).First(&user, "id = ?", claims.Subject).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				log.Error().Err(err).Msg("worker lookup failed")
				utils.WriteError(w, http.StatusInternalServerError, "Internal server error")
				return
			}
			utils.WriteError(w, http.StatusUnauthorized, "Unauthorized: worker not found")
			return
		}
		switch user.ApprovalStatus {
		case models.ApprovalApproved:
		case models.ApprovalRejected:
			utils.WriteError(w, http.StatusForbidden, "Registration was rejected")
			return
		default:
			utils.WriteError(w, http.StatusForbidden, "Registration is awaiting approval")
			return
		}

		ctx := context.WithValue(r.Context(), utils.ClaimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Any admits every valid token, used by logout.
func (a *Auth) Any(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := a.authenticate(w, r)
		if !ok {
			return
		}
		ctx := context.WithValue(r.Context(), utils.ClaimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
