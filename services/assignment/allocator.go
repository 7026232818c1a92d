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

// Filter narrows the tasks a worker asks for.
type Filter struct {
	Source string
	// Gender, when set, admits tasks requiring that gender or none at all.
	Gender string
}

// Assign hands the worker one random eligible task matching the filter.
// Exactly one of the assignment and the denial is set when err is nil.
func (s *Service) Assign(ctx context.Context, workerID uuid.UUID, f Filter) (*models.Assignment, Denial, error) {
	return s.assign(ctx, workerID, &f)
}

// AssignAny is Assign for a single task category: tasks are filtered by the
// worker's city only.
func (s *Service) AssignAny(ctx context.Context, workerID uuid.UUID) (*models.Assignment, Denial, error) {
	return s.assign(ctx, workerID, nil)
}

func (s *Service) assign(ctx context.Context, workerID uuid.UUID, f *Filter) (*models.Assignment, Denial, error) {
	logger := log.With().Str("worker_id", workerID.String()).Logger()
	logger.Info().Msg("assigning task")

	var (
		created *models.Assignment
		denial  Denial
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// the worker row lock serializes allocations for one worker
		var worker models.User
		if err := forUpdate(tx).First(&worker, "id = ?", workerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("load worker: %w", err)
		}
		if worker.IsBlocked {
			denial = DenialBlocked
			return nil
		}

		counts, err := s.countOpen(tx, workerID)
		if err != nil {
			return err
		}
		if counts[models.StatusAssigned] > 0 {
			denial = DenialHasActive
			return nil
		}
		if counts[models.StatusSubmitted] >= int64(s.maxSubmitted) {
			denial = DenialSubmittedLimit
			return nil
		}

		ids, err := eligibleTaskIDs(tx, &worker, f)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			denial = DenialNoTasks
			return nil
		}

		a := &models.Assignment{
			UserID:    workerID,
			TaskID:    ids[s.intn(len(ids))],
			Status:    models.StatusAssigned,
			CreatedAt: s.now().UTC(),
		}
		if err := tx.Create(a).Error; err != nil {
			if isUniqueViolation(err) {
				return errTaskTaken
			}
			return fmt.Errorf("create assignment: %w", err)
		}
		created = a
		return nil
	})

	switch {
	case errors.Is(err, errTaskTaken):
		logger.Info().Msg("task taken concurrently, nothing assigned")
		return nil, DenialNoTasks, nil
	case err != nil:
		return nil, "", err
	case denial != "":
		logger.Info().Str("denial", string(denial)).Msg("task not assigned")
		return nil, denial, nil
	}
	logger.Info().
		Str("assignment_id", created.ID.String()).
		Str("task_id", created.TaskID.String()).
		Msg("task assigned")
	return created, "", nil
}

// countOpen counts the worker's non-archived ASSIGNED and SUBMITTED rows.
func (s *Service) countOpen(tx *gorm.DB, workerID uuid.UUID) (map[string]int64, error) {
	type row struct {
		Status string
		Cnt    int64
	}
	var rows []row
	err := tx.Model(&models.Assignment{}).
		Select("status, COUNT(*) AS cnt").
		Where("user_id = ? AND is_archived = ?", workerID, false).
		Where("status IN ?", []string{models.StatusAssigned, models.StatusSubmitted}).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count open assignments: %w", err)
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Cnt
	}
	return counts, nil
}

// eligibleTaskIDs lists tasks in the worker's city (or city-less) that are not
// live and were never given to this worker. A nil filter skips source and
// gender.
func eligibleTaskIDs(tx *gorm.DB, worker *models.User, f *Filter) ([]uuid.UUID, error) {
	q := tx.Model(&models.Task{})
	if worker.CityID == nil {
		q = q.Where("city_id IS NULL")
	} else {
		q = q.Where("(city_id IS NULL OR city_id = ?)", *worker.CityID)
	}
	if f != nil {
		q = q.Where("source = ?", f.Source)
		if f.Gender != "" {
			q = q.Where("(required_gender IS NULL OR required_gender = ?)", f.Gender)
		}
	}

	live := tx.Model(&models.Assignment{}).Select("task_id").Where("is_archived = ?", false)
	seen := tx.Model(&models.Assignment{}).Select("task_id").Where("user_id = ?", worker.ID)
	q = q.Where("id NOT IN (?)", live).Where("id NOT IN (?)", seen)

	var ids []uuid.UUID
	if err := q.Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("select eligible tasks: %w", err)
	}
	return ids, nil
}
