package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptSubmitted  AttemptStatus = "submitted"
	AttemptTimedOut   AttemptStatus = "timed_out"
)

// Finished reports whether the attempt has reached a terminal state.
func (s AttemptStatus) Finished() bool {
	return s == AttemptSubmitted || s == AttemptTimedOut
}

type TestAttempt struct {
	ID          uuid.UUID     `json:"id" gorm:"type:uuid;primaryKey"`
	StudentID   uuid.UUID     `json:"student_id" gorm:"type:uuid;not null;index;uniqueIndex:idx_active_attempt,where:status = 'in_progress'"`
	TestID      uuid.UUID     `json:"test_id" gorm:"type:uuid;not null;index;uniqueIndex:idx_active_attempt,where:status = 'in_progress'"`
	StartedAt   time.Time     `json:"started_at" gorm:"not null"`
	SubmittedAt *time.Time    `json:"submitted_at"`
	TotalScore  *float64      `json:"total_score" gorm:"type:numeric(8,2)"`
	MaxScore    *float64      `json:"max_score" gorm:"type:numeric(8,2)"`
	Status      AttemptStatus `json:"status" gorm:"size:16;not null;default:in_progress;index"`

	Test      *Test             `json:"test,omitempty" gorm:"foreignKey:TestID"`
	Responses []StudentResponse `json:"responses,omitempty" gorm:"foreignKey:AttemptID;constraint:OnDelete:CASCADE"`
}

func (TestAttempt) TableName() string {
	return "test_attempts"
}

// StudentResponse holds at most one of the three response payloads, matching QuestionType.
type StudentResponse struct {
	ID                uuid.UUID                      `json:"id" gorm:"type:uuid;primaryKey"`
	AttemptID         uuid.UUID                      `json:"attempt_id" gorm:"type:uuid;not null;uniqueIndex:idx_attempt_test_question,priority:1"`
	TestQuestionID    uuid.UUID                      `json:"test_question_id" gorm:"type:uuid;not null;uniqueIndex:idx_attempt_test_question,priority:2"`
	QuestionType      QuestionType                   `json:"question_type" gorm:"size:8;not null"`
	MCQResponse       *OptionKey                     `json:"mcq_response" gorm:"column:mcq_response;size:16"`
	NATResponse       *float64                       `json:"nat_response" gorm:"column:nat_response;type:numeric(12,4)"`
	MSQResponse       datatypes.JSONSlice[OptionKey] `json:"msq_response" gorm:"column:msq_response"`
	IsMarkedForReview bool                           `json:"is_marked_for_review" gorm:"not null;default:false"`
	IsCorrect         *bool                          `json:"is_correct"`
	ScoreAwarded      *float64                       `json:"score_awarded" gorm:"type:numeric(6,2)"`
	TimeSpentSecs     int                            `json:"time_spent_secs" gorm:"not null;default:0"`
	AnsweredAt        time.Time                      `json:"answered_at" gorm:"not null;index"`
}

func (StudentResponse) TableName() string {
	return "student_responses"
}
