package catalog

import (
	"time"

	"github.com/google/uuid"
)

type Student struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name           string    `gorm:"column:name;not null" json:"name"`
	NormalizedName string    `gorm:"column:normalized_name;not null;index" json:"normalized_name"`
	Grade          *int      `gorm:"column:grade" json:"grade,omitempty"`
	Homeroom       string    `gorm:"column:homeroom" json:"homeroom,omitempty"`
	CreatedAt      time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt      time.Time `gorm:"not null" json:"updated_at"`
}

func (Student) TableName() string { return "student" }
