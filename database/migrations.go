package database

import (
	"fmt"

	"gigtasks/models"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const liveTaskIndex = "ux_task_assignments_task_active"

// Migrate creates or updates the schema, including the index that keeps a
// task from having two live assignments.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.City{},
		&models.User{},
		&models.Admin{},
		&models.Task{},
		&models.Assignment{},
		&models.Report{},
		&models.AdminMessage{},
		&models.RevokedToken{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if err := ensureLiveTaskIndex(db); err != nil {
		return fmt.Errorf("live task index: %w", err)
	}
	return nil
}

// ensureLiveTaskIndex makes task_id unique among non-archived assignments.
// Postgres and SQLite support partial indexes directly. MySQL does not, so a
// stored generated column that is NULL for archived rows carries the unique
// index instead (NULLs never collide).
func ensureLiveTaskIndex(db *gorm.DB) error {
	m := db.Migrator()
	if m.HasIndex(&models.Assignment{}, liveTaskIndex) {
		return nil
	}
	log.Info().Str("dialect", db.Dialector.Name()).Msg("creating live task index")

	switch db.Dialector.Name() {
	case "mysql":
		if !m.HasColumn(&models.Assignment{}, "live_task_id") {
			if err := db.Exec(`ALTER TABLE task_assignments
				ADD COLUMN live_task_id VARCHAR(36)
				GENERATED ALWAYS AS (IF(is_archived, NULL, task_id)) STORED`).Error; err != nil {
				return err
			}
		}
		return db.Exec("CREATE UNIQUE INDEX " + liveTaskIndex + " ON task_assignments (live_task_id)").Error
	default:
		return db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS " + liveTaskIndex +
			" ON task_assignments (task_id) WHERE is_archived = false").Error
	}
}
