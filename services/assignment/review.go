package assignment

import (
	"context"
	"errors"
	"fmt"

	"gigtasks/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Review approves or rejects a SUBMITTED assignment on behalf of adminID.
//
// It returns nil, nil when this call did not process the assignment: it does
// not exist, it is not SUBMITTED, or a concurrent reviewer got there first.
// The returned assignment carries its worker and task.
func (s *Service) Review(ctx context.Context, assignmentID uuid.UUID, adminID int64, approve bool) (*models.Assignment, error) {
	status := models.StatusRejected
	if approve {
		status = models.StatusApproved
	}

	var reviewed *models.Assignment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var a models.Assignment
		err := forUpdate(tx).
			Where("id = ? AND status = ?", assignmentID, models.StatusSubmitted).
			First(&a).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load assignment: %w", err)
		}

		now := s.now().UTC()
		res := tx.Model(&models.Assignment{}).
			Where("id = ? AND status = ?", assignmentID, models.StatusSubmitted).
			Updates(map[string]any{
				"status":                status,
				"processed_at":          now,
				"processed_by_admin_id": adminID,
			})
		if res.Error != nil {
			return fmt.Errorf("update assignment: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}

		a.Status = status
		a.ProcessedAt = &now
		a.ProcessedByAdminID = &adminID
		if err := loadParties(tx, &a); err != nil {
			return err
		}
		reviewed = &a
		return nil
	})
	if err != nil {
		return nil, err
	}

	if reviewed == nil {
		log.Info().Str("assignment_id", assignmentID.String()).Int64("admin_id", adminID).
			Msg("review skipped, assignment not awaiting review")
		return nil, nil
	}
	log.Info().
		Str("assignment_id", assignmentID.String()).
		Int64("admin_id", adminID).
		Str("status", status).
		Msg("assignment reviewed")
	return reviewed, nil
}

func loadParties(tx *gorm.DB, a *models.Assignment) error {
	var worker models.User
	if err := tx.First(&worker, "id = ?", a.UserID).Error; err != nil {
		return fmt.Errorf("load worker: %w", err)
	}
	var task models.Task
	if err := tx.First(&task, "id = ?", a.TaskID).Error; err != nil {
		return fmt.Errorf("load task: %w", err)
	}
	a.User = &worker
	a.Task = &task
	return nil
}
