package repositories

import (
	"context"

	"github.com/gateprep/exam-service/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserRepository interface for user operations. Identities are owned by the auth
// provider; this service keeps a local mirror.
type UserRepository interface {
	Upsert(ctx context.Context, tx *gorm.DB, user *models.User) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.User, error)
	List(ctx context.Context, tx *gorm.DB, filters UserFilters) ([]*models.User, error)
	CountByRole(ctx context.Context, tx *gorm.DB, role models.UserRole) (int64, error)
}
