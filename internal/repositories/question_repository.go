package repositories

import (
	"context"

	"github.com/gateprep/exam-service/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SubjectRepository interface for subject operations
type SubjectRepository interface {
	Create(ctx context.Context, tx *gorm.DB, subject *models.Subject) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Subject, error)
	GetByName(ctx context.Context, tx *gorm.DB, name string) (*models.Subject, error)
	List(ctx context.Context, tx *gorm.DB) ([]*models.Subject, error)
	Update(ctx context.Context, tx *gorm.DB, subject *models.Subject) error
	Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	ExistsByName(ctx context.Context, tx *gorm.DB, name string, excludeID *uuid.UUID) (bool, error)
}

// QuestionRepository spans the three question tables. The table is chosen by the
// concrete type of the question or by an explicit QuestionType.
type QuestionRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, tx *gorm.DB, question models.Question) error
	CreateBatch(ctx context.Context, tx *gorm.DB, questions []models.Question) error
	GetByID(ctx context.Context, tx *gorm.DB, ref models.QuestionRef) (models.Question, error)
	Update(ctx context.Context, tx *gorm.DB, question models.Question) error
	Delete(ctx context.Context, tx *gorm.DB, ref models.QuestionRef) error

	// Query operations
	List(ctx context.Context, tx *gorm.DB, qType models.QuestionType, filters QuestionFilters) ([]models.Question, error)
	RandomIDs(ctx context.Context, tx *gorm.DB, qType models.QuestionType, count int, subjectID *uuid.UUID) ([]uuid.UUID, error)

	// Resolve loads every referenced question that still exists. Missing refs are absent from the map.
	Resolve(ctx context.Context, tx *gorm.DB, refs []models.QuestionRef) (map[models.QuestionRef]models.Question, error)

	// Statistics
	CountByType(ctx context.Context, tx *gorm.DB) (map[models.QuestionType]int64, error)
	CountBySubject(ctx context.Context, tx *gorm.DB, subjectID uuid.UUID) (int64, error)
}
