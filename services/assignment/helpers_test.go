package assignment

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gigtasks/database"
	"gigtasks/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var msk = time.FixedZone("UTC+3", 3*3600)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func newTestService(t *testing.T, opts Options) (*Service, *gorm.DB, *fakeClock) {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "assignments.db"))
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
	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, msk)}
	opts.Now = clock.Now
	if opts.Location == nil {
		opts.Location = msk
	}
	return New(db, opts), db, clock
}

func createWorker(t *testing.T, db *gorm.DB, tgID int64, cityID *uuid.UUID) *models.User {
	t.Helper()
	u := &models.User{TgID: tgID, CityID: cityID}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create worker: %v", err)
	}
	return u
}

func createCity(t *testing.T, db *gorm.DB, name string) *models.City {
	t.Helper()
	c := &models.City{Name: name}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("create city: %v", err)
	}
	return c
}

func createTask(t *testing.T, db *gorm.DB, source string, cityID *uuid.UUID, gender *string) *models.Task {
	t.Helper()
	task := &models.Task{
		Text:           "leave a review",
		Source:         source,
		Link:           "https://maps.example/" + uuid.NewString(),
		CityID:         cityID,
		RequiredGender: gender,
	}
	if err := db.Create(task).Error; err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func mustAssign(t *testing.T, s *Service, workerID uuid.UUID, f Filter) *models.Assignment {
	t.Helper()
	a, denial, err := s.Assign(ctx, workerID, f)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if denial != "" {
		t.Fatalf("Assign denied: %s", denial)
	}
	return a
}

func expectDenial(t *testing.T, s *Service, workerID uuid.UUID, f Filter, want Denial) {
	t.Helper()
	a, denial, err := s.Assign(ctx, workerID, f)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if denial != want {
		t.Fatalf("expected denial %q, got %q (assignment %v)", want, denial, a)
	}
	if a != nil {
		t.Fatalf("expected no assignment with denial %q", want)
	}
}

func loadAssignment(t *testing.T, db *gorm.DB, id uuid.UUID) models.Assignment {
	t.Helper()
	var a models.Assignment
	if err := db.First(&a, "id = ?", id).Error; err != nil {
		t.Fatalf("load assignment: %v", err)
	}
	return a
}

func strPtr(s string) *string { return &s }
