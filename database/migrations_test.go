package database

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"gigtasks/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "gigtasks.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	if err := Migrate(db); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	if !db.Migrator().HasIndex(&models.Assignment{}, liveTaskIndex) {
		t.Fatalf("expected %s to exist", liveTaskIndex)
	}
}

func TestLiveTaskIndexRejectsSecondLiveAssignment(t *testing.T) {
	db := newTestDB(t)

	w1 := models.User{TgID: 1}
	w2 := models.User{TgID: 2}
	task := models.Task{Text: "review", Source: models.SourceYandex, Link: "https://maps.example/1"}
	for _, v := range []any{&w1, &w2, &task} {
		if err := db.Create(v).Error; err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	first := models.Assignment{UserID: w1.ID, TaskID: task.ID}
	if err := db.Create(&first).Error; err != nil {
		t.Fatalf("first assignment: %v", err)
	}
	err := db.Create(&models.Assignment{UserID: w2.ID, TaskID: task.ID}).Error
	if err == nil {
		t.Fatal("expected unique violation for a second live assignment")
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) && !strings.Contains(err.Error(), "UNIQUE") {
		t.Fatalf("expected unique violation, got %v", err)
	}

	// archiving frees the task
	if err := db.Model(&first).Update("is_archived", true).Error; err != nil {
		t.Fatalf("archive: %v", err)
	}
	if err := db.Create(&models.Assignment{ID: uuid.New(), UserID: w2.ID, TaskID: task.ID}).Error; err != nil {
		t.Fatalf("assignment after archive: %v", err)
	}
}
