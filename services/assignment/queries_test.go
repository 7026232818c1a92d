package assignment

import (
	"errors"
	"testing"

	"gigtasks/models"
)

func TestActiveAssignment(t *testing.T) {
	s, db, _ := newTestService(t, Options{})
	w := createWorker(t, db, 100, nil)
	createTask(t, db, "X", nil, nil)

	if _, err := s.ActiveAssignment(ctx, w.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	a := mustAssign(t, s, w.ID, Filter{Source: "X"})

	cur, err := s.CurrentAssignment(ctx, w.ID)
	if err != nil || cur.ID != a.ID || cur.Task == nil {
		t.Fatalf("CurrentAssignment = %+v, %v", cur, err)
	}

	if _, err := s.SubmitReport(ctx, a.ID, "acct", "photo"); err != nil {
		t.Fatalf("SubmitReport: %v", err)
	}
	if _, err := s.CurrentAssignment(ctx, w.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected no current assignment once submitted, got %v", err)
	}
	active, err := s.ActiveAssignment(ctx, w.ID)
	if err != nil || active.ID != a.ID || active.Status != models.StatusSubmitted {
		t.Fatalf("ActiveAssignment = %+v, %v", active, err)
	}
}

func TestAdminMessages(t *testing.T) {
	s, db, _ := newTestService(t, Options{})
	w := createWorker(t, db, 100, nil)
	createTask(t, db, "X", nil, nil)
	a := mustAssign(t, s, w.ID, Filter{Source: "X"})

	for _, admin := range []int64{2, 1} {
		if err := s.SaveAdminMessage(ctx, a.ID, admin, admin*10); err != nil {
			t.Fatalf("SaveAdminMessage: %v", err)
		}
	}
	msgs, err := s.AdminMessages(ctx, a.ID)
	if err != nil || len(msgs) != 2 || msgs[0].AdminTgID != 1 {
		t.Fatalf("AdminMessages = %+v, %v", msgs, err)
	}
	if err := s.DeleteAdminMessages(ctx, a.ID); err != nil {
		t.Fatalf("DeleteAdminMessages: %v", err)
	}
	if msgs, _ := s.AdminMessages(ctx, a.ID); len(msgs) != 0 {
		t.Fatalf("expected messages deleted, got %d", len(msgs))
	}

	if err := s.SaveReportMessageID(ctx, a.ID, 77); err != nil {
		t.Fatalf("SaveReportMessageID: %v", err)
	}
	if got := loadAssignment(t, db, a.ID); got.ReportMessageID == nil || *got.ReportMessageID != 77 {
		t.Fatalf("report_message_id = %v", got.ReportMessageID)
	}
}

func TestRegisterAndBlockWorker(t *testing.T) {
	s, _, _ := newTestService(t, Options{})

	u, err := s.RegisterWorker(ctx, WorkerProfile{TgID: 9, Username: "anna", Gender: "ж", City: "Kazan"})
	if err != nil {
		t.Fatalf("RegisterWorker: %v", err)
	}
	if u.CityID == nil || u.Gender == nil || *u.Gender != models.GenderFemale {
		t.Fatalf("profile not stored: %+v", u)
	}
	again, err := s.RegisterWorker(ctx, WorkerProfile{TgID: 9, FullName: "Anna K"})
	if err != nil || again.ID != u.ID || again.CityID == nil {
		t.Fatalf("re-register = %+v, %v", again, err)
	}

	blocked, err := s.SetWorkerBlocked(ctx, 9, true)
	if err != nil || !blocked.IsBlocked || blocked.BlockedAt == nil {
		t.Fatalf("block = %+v, %v", blocked, err)
	}
	unblocked, err := s.SetWorkerBlocked(ctx, 9, false)
	if err != nil || unblocked.IsBlocked || unblocked.BlockedAt != nil {
		t.Fatalf("unblock = %+v, %v", unblocked, err)
	}
	if _, err := s.SetWorkerBlocked(ctx, 404, true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	w, err := s.WorkerByTgID(ctx, 9)
	if err != nil || w.City == nil || w.City.Name != "Kazan" {
		t.Fatalf("WorkerByTgID = %+v, %v", w, err)
	}
}

func TestDecideRegistration(t *testing.T) {
	s, db, clock := newTestService(t, Options{})
	createWorker(t, db, 100, nil)
	createWorker(t, db, 200, nil)

	if pending, err := s.ListWorkers(ctx, models.ApprovalPending); err != nil || len(pending) != 2 {
		t.Fatalf("ListWorkers(PENDING) = %d, %v", len(pending), err)
	}

	u, err := s.DecideRegistration(ctx, 100, 900, true)
	if err != nil {
		t.Fatalf("DecideRegistration: %v", err)
	}
	if !u.IsApproved() || u.ApprovedByAdminID == nil || *u.ApprovedByAdminID != 900 ||
		u.ApprovalAt == nil || !u.ApprovalAt.Equal(clock.Now()) {
		t.Fatalf("unexpected worker after approval %+v", u)
	}

	// first decision wins
	if _, err := s.DecideRegistration(ctx, 100, 901, false); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for decided worker, got %v", err)
	}
	if _, err := s.DecideRegistration(ctx, 999, 900, true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	u, err = s.DecideRegistration(ctx, 200, 901, false)
	if err != nil || u.ApprovalStatus != models.ApprovalRejected || u.IsApproved() {
		t.Fatalf("reject = %+v, %v", u, err)
	}
	if pending, _ := s.ListWorkers(ctx, models.ApprovalPending); len(pending) != 0 {
		t.Fatalf("expected no pending workers, got %d", len(pending))
	}
	if all, _ := s.ListWorkers(ctx, ""); len(all) != 2 {
		t.Fatalf("expected 2 workers, got %d", len(all))
	}
}
