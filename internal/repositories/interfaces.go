package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/gateprep/exam-service/internal/models"
	"github.com/gateprep/exam-service/internal/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository aggregates the table repositories and owns the transaction boundary.
// Every repository method takes an optional tx; nil runs against the base connection.
type Repository interface {
	Subject() SubjectRepository
	Question() QuestionRepository
	Test() TestRepository
	Attempt() AttemptRepository
	Response() ResponseRepository
	User() UserRepository

	// WithTransaction runs fn in a transaction that is committed when fn returns nil
	// and rolled back on error or panic.
	WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error
	Ping(ctx context.Context) error
}

// ===== SHARED FILTER STRUCTS =====

type QuestionFilters struct {
	SubjectID *uuid.UUID         `json:"subject_id"`
	After     *pagination.Cursor `json:"-"`
	Limit     int                `json:"limit"`
}

type TestFilters struct {
	ActiveOnly bool               `json:"active_only"`
	After      *pagination.Cursor `json:"-"`
	Limit      int                `json:"limit"`
}

type UserFilters struct {
	Role  *models.UserRole   `json:"role"`
	After *pagination.Cursor `json:"-"`
	Limit int                `json:"limit"`
}

type MistakeFilters struct {
	StudentID uuid.UUID          `json:"student_id"`
	After     *pagination.Cursor `json:"-"`
	Limit     int                `json:"limit"`
}

// ===== SHARED RESULT STRUCTS =====

// AttemptSummary is an attempt joined with its test, used by history and analytics.
type AttemptSummary struct {
	models.TestAttempt
	TestName string          `json:"test_name"`
	TestType models.TestType `json:"test_type"`
}

// Mistake is an incorrect scored response together with the question it answered.
type Mistake struct {
	Response models.StudentResponse `json:"response"`
	TestID   uuid.UUID              `json:"test_id"`
	Question models.Question        `json:"question"`
}

func (m *Mistake) Key() pagination.Cursor {
	return pagination.Cursor{CreatedAt: m.Response.AnsweredAt, ID: m.Response.ID}
}

type AttemptStats struct {
	TotalAttempts     int64   `json:"total_attempts"`
	FinishedAttempts  int64   `json:"finished_attempts"`
	AverageTotalScore float64 `json:"average_total_score"`
}

type SubjectAccuracy struct {
	SubjectID   uuid.UUID `json:"subject_id"`
	SubjectName string    `json:"subject_name"`
	Correct     int64     `json:"correct"`
	Total       int64     `json:"total"`
}

type PerformancePoint struct {
	AttemptID  uuid.UUID `json:"attempt_id"`
	TestName   string    `json:"test_name"`
	TotalScore float64   `json:"total_score"`
	MaxScore   float64   `json:"max_score"`
	Date       time.Time `json:"date"`
}

// ===== ERROR CLASSIFIERS =====

func IsNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// IsDuplicateKeyError requires the connection to be opened with TranslateError.
func IsDuplicateKeyError(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

func IsForeignKeyError(err error) bool {
	return errors.Is(err, gorm.ErrForeignKeyViolated)
}
