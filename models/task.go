package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Map services a task can point at.
const (
	SourceYandex = "yandex"
	SourceGoogle = "google"
	Source2GIS   = "2gis"
)

const (
	GenderMale   = "M"
	GenderFemale = "F"
)

type Task struct {
	ID             uuid.UUID  `gorm:"type:varchar(36);primaryKey" json:"id"`
	Text           string     `gorm:"type:text;not null" json:"text"`
	ExampleText    *string    `gorm:"type:text" json:"example_text,omitempty"`
	Comment        *string    `gorm:"type:text" json:"comment,omitempty"`
	Source         string     `gorm:"size:32;index" json:"source"`
	Link           string     `gorm:"size:512;not null" json:"link"`
	RequiredGender *string    `gorm:"size:16" json:"required_gender,omitempty"`
	CityID         *uuid.UUID `gorm:"type:varchar(36);index" json:"city_id,omitempty"`
	HumanCode      string     `gorm:"size:16;uniqueIndex:uq_tasks_human_code;not null" json:"human_code"`
	CreatedAt      time.Time  `json:"created_at"`

	City *City `gorm:"foreignKey:CityID" json:"city,omitempty"`
}

func (Task) TableName() string {
	return "tasks"
}

// BeforeCreate assigns the id and the human code derived from it.
func (t *Task) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.HumanCode == "" {
		t.HumanCode = HumanCode(t.ID, t.Source)
	}
	return nil
}

// HumanCode builds the short code admins and workers use to refer to a task,
// e.g. YAN-3F2A9C.
func HumanCode(id uuid.UUID, source string) string {
	var prefix string
	switch strings.ToLower(strings.TrimSpace(source)) {
	case SourceYandex:
		prefix = "YAN-"
	case SourceGoogle:
		prefix = "GGL-"
	case Source2GIS:
		prefix = "GIS-"
	default:
		prefix = "MAP-"
	}
	hex := strings.ReplaceAll(id.String(), "-", "")
	return prefix + strings.ToUpper(hex[:6])
}
