package repositories

import (
	"context"

	"github.com/gateprep/exam-service/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TestRepository interface for tests and their ordered question references
type TestRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, tx *gorm.DB, test *models.Test) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Test, error)
	Update(ctx context.Context, tx *gorm.DB, test *models.Test) error
	Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error

	// Query operations
	List(ctx context.Context, tx *gorm.DB, filters TestFilters) ([]*models.Test, error)
	Count(ctx context.Context, tx *gorm.DB) (int64, error)

	// Question sequence management
	AddQuestions(ctx context.Context, tx *gorm.DB, testQuestions []*models.TestQuestion) error
	GetQuestions(ctx context.Context, tx *gorm.DB, testID uuid.UUID) ([]*models.TestQuestion, error)
	GetQuestion(ctx context.Context, tx *gorm.DB, testQuestionID uuid.UUID) (*models.TestQuestion, error)
	NextOrder(ctx context.Context, tx *gorm.DB, testID uuid.UUID) (int, error)
	// RemoveQuestion deletes the reference and closes the gap in question_order.
	RemoveQuestion(ctx context.Context, tx *gorm.DB, testID, testQuestionID uuid.UUID) error

	HasAttempts(ctx context.Context, tx *gorm.DB, testID uuid.UUID) (bool, error)
}
