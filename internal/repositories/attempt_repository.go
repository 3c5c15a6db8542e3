package repositories

import (
	"context"

	"github.com/gateprep/exam-service/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AttemptRepository interface for test attempt operations
type AttemptRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, tx *gorm.DB, attempt *models.TestAttempt) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.TestAttempt, error)
	Update(ctx context.Context, tx *gorm.DB, attempt *models.TestAttempt) error

	// Row locks, only meaningful inside a transaction
	GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.TestAttempt, error)
	GetByIDForShare(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.TestAttempt, error)

	// Active attempt management
	GetActive(ctx context.Context, tx *gorm.DB, studentID, testID uuid.UUID) (*models.TestAttempt, error)

	// Query operations
	ListByStudent(ctx context.Context, tx *gorm.DB, studentID uuid.UUID) ([]*AttemptSummary, error)
	ListResultsByTest(ctx context.Context, tx *gorm.DB, testID uuid.UUID) ([]*models.ResultRow, error)
	RecentPerformance(ctx context.Context, tx *gorm.DB, studentID uuid.UUID, limit int) ([]*PerformancePoint, error)

	// Statistics
	Stats(ctx context.Context, tx *gorm.DB) (*AttemptStats, error)
}

// ResponseRepository interface for student response operations
type ResponseRepository interface {
	// Upsert inserts or replaces the response keyed by (attempt_id, test_question_id)
	// and reloads the stored row into response.
	Upsert(ctx context.Context, tx *gorm.DB, response *models.StudentResponse) error
	GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID uuid.UUID) ([]*models.StudentResponse, error)
	UpdateScores(ctx context.Context, tx *gorm.DB, responses []*models.StudentResponse) error

	// Feeds and analytics
	ListMistakes(ctx context.Context, tx *gorm.DB, qType models.QuestionType, filters MistakeFilters) ([]*Mistake, error)
	SubjectAccuracy(ctx context.Context, tx *gorm.DB, studentID uuid.UUID) ([]*SubjectAccuracy, error)
}
