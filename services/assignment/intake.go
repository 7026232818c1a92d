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
	"gorm.io/gorm/clause"
)

// ReportPayload is everything a notifier needs to present a fresh report to
// the admins.
type ReportPayload struct {
	Assignment AssignmentInfo `json:"assignment"`
	Worker     WorkerInfo     `json:"user"`
	Task       TaskInfo       `json:"task"`
	City       *CityInfo      `json:"city"`
	Report     ReportInfo     `json:"report"`
}

type AssignmentInfo struct {
	ID          uuid.UUID `json:"id"`
	Status      string    `json:"status"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type WorkerInfo struct {
	ID       uuid.UUID `json:"id"`
	TgID     int64     `json:"tg_id"`
	Username string    `json:"username,omitempty"`
	FullName string    `json:"full_name,omitempty"`
}

type TaskInfo struct {
	ID             uuid.UUID `json:"id"`
	HumanCode      string    `json:"human_code"`
	Source         string    `json:"source"`
	Text           string    `json:"text"`
	ExampleText    string    `json:"example_text,omitempty"`
	Link           string    `json:"link"`
	RequiredGender string    `json:"required_gender,omitempty"`
}

type CityInfo struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type ReportInfo struct {
	AccountName string `json:"account_name"`
	PhotoRef    string `json:"photo_file_id"`
}

// SubmitReport stores the worker's proof for an ASSIGNED assignment and moves
// it to SUBMITTED. A report left over from an earlier attempt is overwritten.
func (s *Service) SubmitReport(ctx context.Context, assignmentID uuid.UUID, accountName, photoRef string) (*ReportPayload, error) {
	accountName = strings.TrimSpace(accountName)
	photoRef = strings.TrimSpace(photoRef)
	if accountName == "" || photoRef == "" {
		return nil, fmt.Errorf("%w: account name and photo are required", ErrInvalidInput)
	}

	var payload *ReportPayload
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var a models.Assignment
		if err := forUpdate(tx).First(&a, "id = ?", assignmentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("load assignment: %w", err)
		}
		var worker models.User
		if err := tx.First(&worker, "id = ?", a.UserID).Error; err != nil {
			return fmt.Errorf("load worker: %w", err)
		}
		if worker.IsBlocked {
			return ErrForbidden
		}
		if a.Status != models.StatusAssigned {
			return ErrInvalidState
		}
		var task models.Task
		if err := tx.Preload("City").First(&task, "id = ?", a.TaskID).Error; err != nil {
			return fmt.Errorf("load task: %w", err)
		}

		now := s.now().UTC()
		report := models.Report{
			AssignmentID: a.ID,
			AccountName:  accountName,
			PhotoFileID:  photoRef,
			CreatedAt:    now,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "assignment_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"account_name", "photo_file_id", "created_at"}),
		}).Create(&report).Error; err != nil {
			return fmt.Errorf("save report: %w", err)
		}

		res := tx.Model(&models.Assignment{}).
			Where("id = ? AND status = ?", a.ID, models.StatusAssigned).
			Updates(map[string]any{"status": models.StatusSubmitted, "submitted_at": now})
		if res.Error != nil {
			return fmt.Errorf("mark submitted: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrInvalidState
		}

		a.Status = models.StatusSubmitted
		a.SubmittedAt = &now
		payload = buildPayload(&a, &worker, &task, &report)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("assignment_id", assignmentID.String()).
		Int64("tg_id", payload.Worker.TgID).
		Msg("report submitted")
	return payload, nil
}

func buildPayload(a *models.Assignment, w *models.User, t *models.Task, r *models.Report) *ReportPayload {
	p := &ReportPayload{
		Assignment: AssignmentInfo{ID: a.ID, Status: a.Status, SubmittedAt: *a.SubmittedAt},
		Worker: WorkerInfo{
			ID:       w.ID,
			TgID:     w.TgID,
			Username: deref(w.Username),
			FullName: deref(w.FullName),
		},
		Task: TaskInfo{
			ID:             t.ID,
			HumanCode:      t.HumanCode,
			Source:         t.Source,
			Text:           t.Text,
			ExampleText:    deref(t.ExampleText),
			Link:           t.Link,
			RequiredGender: deref(t.RequiredGender),
		},
		Report: ReportInfo{AccountName: r.AccountName, PhotoRef: r.PhotoFileID},
	}
	if t.City != nil {
		p.City = &CityInfo{ID: t.City.ID, Name: t.City.Name}
	}
	return p
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
