package utils

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gigtasks/config"
	"gigtasks/models"

	"github.com/golang-jwt/jwt/v5"
	redis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	RoleWorker = "worker"
	RoleAdmin  = "admin"

	workerTokenTTL = 24 * time.Hour
	adminTokenTTL  = 6 * time.Hour

	blacklistPrefix = "jwt:blacklist:"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrTokenRevoked = errors.New("token revoked")
)

type contextKey string

const (
	ClaimsKey    = contextKey("claims")
	RequestIDKey = contextKey("requestID")
)

// Claims is what the API needs to know about the caller. Subject is the
// worker uuid for workers and the admin row id for admins.
type Claims struct {
	Subject   string
	Role      string
	TgID      int64
	JTI       string
	ExpiresAt time.Time
}

// TokenManager issues and checks HS256 access tokens. Revoked token ids go to
// Redis when available, otherwise to the revoked_tokens table.
type TokenManager struct {
	secret   []byte
	issuer   string
	audience string
	redis    *redis.Client
	db       *gorm.DB
	now      func() time.Time
}

func NewTokenManager(cfg config.Config, rc *redis.Client, db *gorm.DB) *TokenManager {
	return &TokenManager{
		secret:   []byte(cfg.JWTSecret),
		issuer:   cfg.JWTIssuer,
		audience: cfg.JWTAud,
		redis:    rc,
		db:       db,
		now:      time.Now,
	}
}

// Issue signs a token for the subject. Admin tokens are shorter lived.
func (m *TokenManager) Issue(subject string, tgID int64, role string) (string, *Claims, error) {
	ttl := workerTokenTTL
	if role == RoleAdmin {
		ttl = adminTokenTTL
	}
	jti, err := generateJTI()
	if err != nil {
		return "", nil, err
	}
	now := m.now()
	exp := now.Add(ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   subject,
		"role":  role,
		"tg_id": tgID,
		"exp":   exp.Unix(),
		"iat":   now.Unix(),
		"nbf":   now.Unix(),
		"jti":   jti,
		"aud":   m.audience,
		"iss":   m.issuer,
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", nil, err
	}
	return signed, &Claims{Subject: subject, Role: role, TgID: tgID, JTI: jti, ExpiresAt: time.Unix(exp.Unix(), 0)}, nil
}

// Validate parses the token, checks the registered claims and the blacklist.
func (m *TokenManager) Validate(ctx context.Context, tokenStr string) (*Claims, error) {
	opts := []jwt.ParserOption{
		// exact HS256 to avoid algorithm confusion
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	if m.audience != "" {
		opts = append(opts, jwt.WithAudience(m.audience))
	}

	token, err := jwt.ParseWithClaims(tokenStr, jwt.MapClaims{}, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	c := &Claims{}
	c.Subject, _ = mc["sub"].(string)
	c.Role, _ = mc["role"].(string)
	c.JTI, _ = mc["jti"].(string)
	if v, ok := mc["tg_id"].(float64); ok {
		c.TgID = int64(v)
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	if c.Subject == "" || c.Role == "" || c.JTI == "" {
		return nil, ErrInvalidToken
	}

	revoked, err := m.isRevoked(ctx, c.JTI)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrTokenRevoked
	}
	return c, nil
}

// Revoke blacklists the token until it would have expired anyway.
func (m *TokenManager) Revoke(ctx context.Context, c *Claims) error {
	if c == nil || c.JTI == "" {
		return errors.New("empty jti")
	}
	ttl := c.ExpiresAt.Sub(m.now())
	if ttl <= 0 {
		return nil
	}
	if m.redis != nil {
		return m.redis.Set(ctx, blacklistPrefix+c.JTI, "1", ttl).Err()
	}
	if m.db != nil {
		rec := models.RevokedToken{ID: c.JTI, ExpiresAt: c.ExpiresAt.UTC(), RevokedAt: m.now().UTC()}
		return m.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec).Error
	}
	return errors.New("no revocation store configured")
}

func (m *TokenManager) isRevoked(ctx context.Context, jti string) (bool, error) {
	if m.redis != nil {
		res, err := m.redis.Get(ctx, blacklistPrefix+jti).Result()
		if err == nil && res == "1" {
			return true, nil
		}
		// ignore redis errors (do not fail auth due to redis outage)
		return false, nil
	}
	if m.db != nil {
		var n int64
		err := m.db.WithContext(ctx).Model(&models.RevokedToken{}).Where("id = ?", jti).Count(&n).Error
		if err != nil {
			return false, fmt.Errorf("check revocation: %w", err)
		}
		return n > 0, nil
	}
	return false, nil
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	return tok, tok != ""
}

// ClaimsFromContext returns the caller set by the auth middleware.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(ClaimsKey).(*Claims)
	return c, ok
}

// generateJTI creates a random identifier used as JWT ID
func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
