package middleware

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"gigtasks/config"
	"gigtasks/database"
	"gigtasks/models"
	"gigtasks/utils"
)

func TestWorkerRequiresApprovedRegistration(t *testing.T) {
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "auth.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	if err := database.Migrate(db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	tokens := utils.NewTokenManager(config.Config{JWTSecret: "test-secret", JWTIssuer: "gigtasks", JWTAud: "gigtasks"}, nil, db)
	h := NewAuth(tokens, db).Worker(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		status string
		want   int
	}{
		{models.ApprovalPending, http.StatusForbidden},
		{models.ApprovalRejected, http.StatusForbidden},
		{models.ApprovalApproved, http.StatusNoContent},
	}
	for i, tc := range cases {
		u := models.User{TgID: int64(100 + i), ApprovalStatus: tc.status}
		if err := db.Create(&u).Error; err != nil {
			t.Fatalf("create worker: %v", err)
		}
		tok, _, err := tokens.Issue(u.ID.String(), u.TgID, utils.RoleWorker)
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		req := httptest.NewRequest(http.MethodGet, "/v1/tasks/current", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != tc.want {
			t.Fatalf("%s worker: expected %d, got %d", tc.status, tc.want, rr.Code)
		}
	}

	// token of a worker that no longer exists
	tok, _, _ := tokens.Issue("00000000-0000-0000-0000-000000000000", 1, utils.RoleWorker)
	req := httptest.NewRequest(http.MethodGet, "/v1/tasks/current", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unknown worker: expected 401, got %d", rr.Code)
	}
}
