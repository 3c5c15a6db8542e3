package models

import (
	"time"

	"github.com/google/uuid"
)

type ImportValidationError struct {
	Row     int    `json:"row"`
	Column  string `json:"column"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

type ImportSummary struct {
	TotalRows        int                     `json:"total_rows"`
	SuccessCount     int                     `json:"success_count"`
	ErrorCount       int                     `json:"error_count"`
	CreatedSubjects  []string                `json:"created_subjects,omitempty"`
	CreatedQuestions []QuestionRef           `json:"created_questions"`
	Errors           []ImportValidationError `json:"errors,omitempty"`
	ProcessingTime   time.Duration           `json:"processing_time"`
}

// ResultRow is one line of a test results export.
type ResultRow struct {
	AttemptID   uuid.UUID     `json:"attempt_id"`
	StudentID   uuid.UUID     `json:"student_id"`
	StudentName string        `json:"student_name"`
	Status      AttemptStatus `json:"status"`
	TotalScore  float64       `json:"total_score"`
	MaxScore    float64       `json:"max_score"`
	StartedAt   time.Time     `json:"started_at"`
	SubmittedAt *time.Time    `json:"submitted_at"`
}
