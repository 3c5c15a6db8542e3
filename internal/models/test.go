package models

import (
	"time"

	"github.com/gateprep/exam-service/internal/pagination"
	"github.com/google/uuid"
)

type TestType string

const (
	TestPractice TestType = "practice"
	TestMock     TestType = "mock"
)

type SelectionMode string

const (
	SelectionManual SelectionMode = "manual"
	SelectionRandom SelectionMode = "random"
	SelectionAI     SelectionMode = "ai"
)

type Test struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Name         string    `json:"name" gorm:"not null;size:255"`
	Type         TestType  `json:"type" gorm:"size:16;not null;default:practice"`
	DurationMins int       `json:"duration_mins" gorm:"not null"`
	IsActive     bool      `json:"is_active" gorm:"not null;default:true"`
	CreatedBy    uuid.UUID `json:"created_by" gorm:"type:uuid;not null;index"`
	CreatedAt    time.Time `json:"created_at" gorm:"index:,sort:desc"`

	Questions []TestQuestion `json:"questions,omitempty" gorm:"foreignKey:TestID;constraint:OnDelete:CASCADE"`

	// Computed fields (read only, filled by list queries)
	QuestionCount int `json:"question_count" gorm:"->;-:migration"`
}

func (Test) TableName() string {
	return "tests"
}

func (t *Test) Key() pagination.Cursor {
	return pagination.Cursor{CreatedAt: t.CreatedAt, ID: t.ID}
}

// TestQuestion is an ordered reference from a test to a question row. It is not a copy:
// deleting the question leaves the reference dangling.
type TestQuestion struct {
	ID            uuid.UUID    `json:"id" gorm:"type:uuid;primaryKey"`
	TestID        uuid.UUID    `json:"test_id" gorm:"type:uuid;not null;uniqueIndex:idx_test_question_order,priority:1"`
	QuestionID    uuid.UUID    `json:"question_id" gorm:"type:uuid;not null;index"`
	QuestionType  QuestionType `json:"question_type" gorm:"size:8;not null"`
	QuestionOrder int          `json:"question_order" gorm:"not null;uniqueIndex:idx_test_question_order,priority:2"`
}

func (TestQuestion) TableName() string {
	return "test_questions"
}

func (tq TestQuestion) Ref() QuestionRef {
	return QuestionRef{ID: tq.QuestionID, Type: tq.QuestionType}
}
