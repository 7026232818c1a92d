package assignment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gigtasks/models"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// TaskInput is one row of a task import.
type TaskInput struct {
	Text        string `json:"text" validate:"required"`
	ExampleText string `json:"example_text"`
	Comment     string `json:"comment"`
	Source      string `json:"source" validate:"required"`
	Link        string `json:"link" validate:"required"`
	City        string `json:"city"`
	Gender      string `json:"gender"`
}

// RowError points at an import row that could not be accepted.
type RowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// CreateTasks imports a batch of tasks. Either every row is stored or none:
// when any row is invalid the row errors are returned and nothing is written.
// Unknown cities are created on the fly.
func (s *Service) CreateTasks(ctx context.Context, inputs []TaskInput) ([]models.Task, []RowError, error) {
	if len(inputs) == 0 {
		return nil, nil, fmt.Errorf("%w: no tasks given", ErrInvalidInput)
	}

	tasks := make([]models.Task, len(inputs))
	cityNames := make([]string, len(inputs))
	var rowErrs []RowError
	for i, in := range inputs {
		t, err := taskFromInput(in)
		if err != nil {
			rowErrs = append(rowErrs, RowError{Row: i + 1, Reason: err.Error()})
			continue
		}
		tasks[i] = t
		cityNames[i] = strings.TrimSpace(in.City)
	}
	if len(rowErrs) > 0 {
		return nil, rowErrs, fmt.Errorf("%w: %d invalid rows", ErrInvalidInput, len(rowErrs))
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now().UTC()
		for i := range tasks {
			if cityNames[i] != "" {
				city, err := cityByName(tx, cityNames[i])
				if err != nil {
					return err
				}
				tasks[i].CityID = &city.ID
			}
			tasks[i].CreatedAt = now
			if err := tx.Create(&tasks[i]).Error; err != nil {
				return fmt.Errorf("create task row %d: %w", i+1, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	log.Info().Int("count", len(tasks)).Msg("tasks imported")
	return tasks, nil, nil
}

func taskFromInput(in TaskInput) (models.Task, error) {
	text := strings.TrimSpace(in.Text)
	link := strings.TrimSpace(in.Link)
	if text == "" {
		return models.Task{}, errors.New("text is empty")
	}
	if link == "" {
		return models.Task{}, errors.New("link is empty")
	}
	source, ok := ParseSource(in.Source)
	if !ok {
		return models.Task{}, fmt.Errorf("unknown source %q", in.Source)
	}
	gender, ok := ParseGender(in.Gender)
	if !ok {
		return models.Task{}, fmt.Errorf("unknown gender %q", in.Gender)
	}
	return models.Task{
		Text:           text,
		ExampleText:    optional(in.ExampleText),
		Comment:        optional(in.Comment),
		Source:         source,
		Link:           link,
		RequiredGender: gender,
	}, nil
}

// ListAvailableTasks returns tasks no live assignment holds, oldest first.
func (s *Service) ListAvailableTasks(ctx context.Context, source string) ([]models.Task, error) {
	live := s.db.Model(&models.Assignment{}).Select("task_id").Where("is_archived = ?", false)
	q := s.db.WithContext(ctx).Preload("City").Where("id NOT IN (?)", live)
	if source != "" {
		q = q.Where("source = ?", source)
	}
	var tasks []models.Task
	if err := q.Order("created_at").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list available tasks: %w", err)
	}
	return tasks, nil
}

// ParseSource normalizes a map service name.
func ParseSource(raw string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case models.SourceYandex, "yandex maps", "яндекс":
		return models.SourceYandex, true
	case models.SourceGoogle, "google maps", "гугл":
		return models.SourceGoogle, true
	case models.Source2GIS, "2гис", "дубльгис":
		return models.Source2GIS, true
	}
	return "", false
}

// ParseGender normalizes a gender requirement. An empty value or "any" means
// no requirement and yields nil.
func ParseGender(raw string) (*string, bool) {
	var g string
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "any", "любой", "-":
		return nil, true
	case "m", "male", "man", "м", "муж", "мужской", "мужчина":
		g = models.GenderMale
	case "f", "female", "woman", "ж", "жен", "женский", "женщина":
		g = models.GenderFemale
	default:
		return nil, false
	}
	return &g, true
}

// cityByName finds a city by exact name, creating it when missing.
func cityByName(tx *gorm.DB, name string) (*models.City, error) {
	var city models.City
	err := tx.Where("name = ?", name).First(&city).Error
	if err == nil {
		return &city, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load city: %w", err)
	}
	city = models.City{Name: name}
	if err := tx.Create(&city).Error; err != nil {
		return nil, fmt.Errorf("create city: %w", err)
	}
	return &city, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
