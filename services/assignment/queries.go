package assignment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gigtasks/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// CurrentAssignment returns the worker's ASSIGNED assignment with its task, or
// ErrNotFound.
func (s *Service) CurrentAssignment(ctx context.Context, workerID uuid.UUID) (*models.Assignment, error) {
	var a models.Assignment
	err := s.db.WithContext(ctx).Preload("Task").
		Where("user_id = ? AND status = ? AND is_archived = ?", workerID, models.StatusAssigned, false).
		Order("created_at DESC").
		First(&a).Error
	return found(&a, err)
}

// ActiveAssignment returns the worker's ASSIGNED assignment, falling back to
// the most recent one still awaiting review.
func (s *Service) ActiveAssignment(ctx context.Context, workerID uuid.UUID) (*models.Assignment, error) {
	a, err := s.CurrentAssignment(ctx, workerID)
	if !errors.Is(err, ErrNotFound) {
		return a, err
	}
	var sub models.Assignment
	err = s.db.WithContext(ctx).Preload("Task").
		Where("user_id = ? AND status = ? AND is_archived = ?", workerID, models.StatusSubmitted, false).
		Order("submitted_at DESC").
		First(&sub).Error
	return found(&sub, err)
}

// GetAssignment loads an assignment with its worker and task.
func (s *Service) GetAssignment(ctx context.Context, id uuid.UUID) (*models.Assignment, error) {
	var a models.Assignment
	err := s.db.WithContext(ctx).Preload("User").Preload("Task").First(&a, "id = ?", id).Error
	return found(&a, err)
}

func found(a *models.Assignment, err error) (*models.Assignment, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load assignment: %w", err)
	}
	return a, nil
}

// SaveReportMessageID records the chat message that carried the report.
func (s *Service) SaveReportMessageID(ctx context.Context, id uuid.UUID, messageID int64) error {
	res := s.db.WithContext(ctx).Model(&models.Assignment{}).
		Where("id = ?", id).
		Update("report_message_id", messageID)
	if res.Error != nil {
		return fmt.Errorf("save report message id: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Service) SaveAdminMessage(ctx context.Context, assignmentID uuid.UUID, adminTgID, messageID int64) error {
	m := models.AdminMessage{AssignmentID: assignmentID, AdminTgID: adminTgID, MessageID: messageID}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("save admin message: %w", err)
	}
	return nil
}

func (s *Service) AdminMessages(ctx context.Context, assignmentID uuid.UUID) ([]models.AdminMessage, error) {
	var msgs []models.AdminMessage
	err := s.db.WithContext(ctx).
		Where("assignment_id = ?", assignmentID).
		Order("admin_tg_id").
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("list admin messages: %w", err)
	}
	return msgs, nil
}

func (s *Service) DeleteAdminMessages(ctx context.Context, assignmentID uuid.UUID) error {
	err := s.db.WithContext(ctx).Where("assignment_id = ?", assignmentID).Delete(&models.AdminMessage{}).Error
	if err != nil {
		return fmt.Errorf("delete admin messages: %w", err)
	}
	return nil
}

// WorkerByTgID returns the worker registered under a Telegram id.
func (s *Service) WorkerByTgID(ctx context.Context, tgID int64) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).Preload("City").Where("tg_id = ?", tgID).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load worker: %w", err)
	}
	return &u, nil
}

// WorkerProfile carries what a worker tells about themselves on sign-up.
type WorkerProfile struct {
	TgID     int64
	Username string
	FullName string
	Gender   string
	City     string
}

// RegisterWorker creates the worker on first contact and refreshes the
// Telegram names afterwards. City and gender are only set when given.
func (s *Service) RegisterWorker(ctx context.Context, p WorkerProfile) (*models.User, error) {
	if p.TgID == 0 {
		return nil, fmt.Errorf("%w: telegram id is required", ErrInvalidInput)
	}
	var gender *string
	if p.Gender != "" {
		g, ok := ParseGender(p.Gender)
		if !ok {
			return nil, fmt.Errorf("%w: unknown gender %q", ErrInvalidInput, p.Gender)
		}
		gender = g
	}

	var u models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("tg_id = ?", p.TgID).First(&u).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("load worker: %w", err)
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			u = models.User{TgID: p.TgID}
		}
		if p.Username != "" {
			u.Username = &p.Username
		}
		if p.FullName != "" {
			u.FullName = &p.FullName
		}
		if gender != nil {
			u.Gender = gender
		}
		if name := strings.TrimSpace(p.City); name != "" {
			city, err := cityByName(tx, name)
			if err != nil {
				return err
			}
			u.CityID = &city.ID
		}
		if u.CreatedAt.IsZero() {
			u.CreatedAt = s.now().UTC()
		}
		if err := tx.Save(&u).Error; err != nil {
			return fmt.Errorf("save worker: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// SetWorkerBlocked blocks or unblocks a worker. Blocked workers get no new
// tasks and cannot submit reports; their open assignments are left as is.
func (s *Service) SetWorkerBlocked(ctx context.Context, tgID int64, blocked bool) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).Where("tg_id = ?", tgID).First(&u).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("load worker: %w", err)
		}
		updates := map[string]any{"is_blocked": blocked, "blocked_at": nil}
		if blocked {
			updates["blocked_at"] = s.now().UTC()
		}
		if err := tx.Model(&models.User{}).Where("id = ?", u.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("update worker: %w", err)
		}
		u.IsBlocked = blocked
		u.BlockedAt = nil
		if t, ok := updates["blocked_at"].(time.Time); ok {
			u.BlockedAt = &t
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// DecideRegistration approves or rejects a pending worker. Only PENDING
// registrations can be decided; a second decision yields ErrInvalidState.
func (s *Service) DecideRegistration(ctx context.Context, tgID, adminTgID int64, approve bool) (*models.User, error) {
	status := models.ApprovalRejected
	if approve {
		status = models.ApprovalApproved
	}
	var u models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now().UTC()
		res := tx.Model(&models.User{}).
			Where("tg_id = ? AND approval_status = ?", tgID, models.ApprovalPending).
			Updates(map[string]any{
				"approval_status":      status,
				"approval_at":          now,
				"approved_by_admin_id": adminTgID,
			})
		if res.Error != nil {
			return fmt.Errorf("decide registration: %w", res.Error)
		}
		err := tx.Preload("City").Where("tg_id = ?", tgID).First(&u).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("load worker: %w", err)
		}
		if res.RowsAffected == 0 {
			return ErrInvalidState
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info().Int64("tg_id", tgID).Int64("admin_id", adminTgID).Str("approval_status", status).Msg("registration decided")
	return &u, nil
}

// ListWorkers returns workers with the given approval status, or all workers
// when status is empty, newest first.
func (s *Service) ListWorkers(ctx context.Context, status string) ([]models.User, error) {
	q := s.db.WithContext(ctx).Preload("City")
	if status != "" {
		q = q.Where("approval_status = ?", status)
	}
	var out []models.User
	if err := q.Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	return out, nil
}
