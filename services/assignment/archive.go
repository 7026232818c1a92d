package assignment

import (
	"context"
	"fmt"

	"gigtasks/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// ArchiveRejected archives every rejected assignment processed before the
// start of the current local day. The tasks become assignable again, though
// never to the worker who was rejected.
func (s *Service) ArchiveRejected(ctx context.Context) (int64, error) {
	cutoff := s.DayStart().UTC()
	res := s.db.WithContext(ctx).Model(&models.Assignment{}).
		Where("status = ? AND is_archived = ? AND processed_at < ?", models.StatusRejected, false, cutoff).
		Update("is_archived", true)
	if res.Error != nil {
		return 0, fmt.Errorf("archive rejected: %w", res.Error)
	}
	log.Info().Int64("archived", res.RowsAffected).Time("cutoff", cutoff).Msg("rejected assignments archived")
	return res.RowsAffected, nil
}

// ArchiveOne archives a single rejected assignment, ignoring the day boundary.
// It reports false when the assignment is missing, not rejected, or already
// archived.
func (s *Service) ArchiveOne(ctx context.Context, id uuid.UUID) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Assignment{}).
		Where("id = ? AND status = ? AND is_archived = ?", id, models.StatusRejected, false).
		Update("is_archived", true)
	if res.Error != nil {
		return false, fmt.Errorf("archive assignment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	log.Info().Str("assignment_id", id.String()).Msg("assignment archived")
	return true, nil
}

// PurgeUnsubmitted deletes assignments that stayed ASSIGNED past the retention
// window, together with their reports and admin messages.
func (s *Service) PurgeUnsubmitted(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().Add(-s.retention)

	var purged int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uuid.UUID
		err := forUpdate(tx).Model(&models.Assignment{}).
			Where("status = ? AND is_archived = ? AND created_at < ?", models.StatusAssigned, false, cutoff).
			Pluck("id", &ids).Error
		if err != nil {
			return fmt.Errorf("select stale assignments: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		if err := tx.Where("assignment_id IN ?", ids).Delete(&models.AdminMessage{}).Error; err != nil {
			return fmt.Errorf("delete admin messages: %w", err)
		}
		if err := tx.Where("assignment_id IN ?", ids).Delete(&models.Report{}).Error; err != nil {
			return fmt.Errorf("delete reports: %w", err)
		}
		res := tx.Where("id IN ? AND status = ?", ids, models.StatusAssigned).Delete(&models.Assignment{})
		if res.Error != nil {
			return fmt.Errorf("delete assignments: %w", res.Error)
		}
		purged = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	log.Info().Int64("purged", purged).Time("cutoff", cutoff).Msg("unsubmitted assignments purged")
	return purged, nil
}
