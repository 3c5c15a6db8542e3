package postgres

import (
	"context"
	"fmt"

	"github.com/gateprep/exam-service/internal/models"
	"github.com/gateprep/exam-service/internal/repositories"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SubjectPostgreSQL struct {
	helpers *SharedHelpers
}

func NewSubjectPostgreSQL(db *gorm.DB) repositories.SubjectRepository {
	return &SubjectPostgreSQL{helpers: NewSharedHelpers(db)}
}

func (s *SubjectPostgreSQL) Create(ctx context.Context, tx *gorm.DB, subject *models.Subject) error {
	newID(&subject.ID)
	if err := s.helpers.getDB(ctx, tx).Create(subject).Error; err != nil {
		return fmt.Errorf("failed to create subject: %w", err)
	}
	return nil
}

func (s *SubjectPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Subject, error) {
	var subject models.Subject
	if err := s.helpers.getDB(ctx, tx).Where("id = ?", id).First(&subject).Error; err != nil {
		return nil, err
	}
	return &subject, nil
}

func (s *SubjectPostgreSQL) GetByName(ctx context.Context, tx *gorm.DB, name string) (*models.Subject, error) {
	var subject models.Subject
	if err := s.helpers.getDB(ctx, tx).Where("LOWER(name) = LOWER(?)", name).First(&subject).Error; err != nil {
		return nil, err
	}
	return &subject, nil
}

func (s *SubjectPostgreSQL) List(ctx context.Context, tx *gorm.DB) ([]*models.Subject, error) {
	var subjects []*models.Subject
	if err := s.helpers.getDB(ctx, tx).Order("name ASC").Find(&subjects).Error; err != nil {
		return nil, fmt.Errorf("failed to list subjects: %w", err)
	}
	return subjects, nil
}

func (s *SubjectPostgreSQL) Update(ctx context.Context, tx *gorm.DB, subject *models.Subject) error {
	result := s.helpers.getDB(ctx, tx).
		Model(&models.Subject{}).
		Where("id = ?", subject.ID).
		Update("name", subject.Name)
	if result.Error != nil {
		return fmt.Errorf("failed to update subject: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *SubjectPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	result := s.helpers.getDB(ctx, tx).Where("id = ?", id).Delete(&models.Subject{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete subject: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *SubjectPostgreSQL) ExistsByName(ctx context.Context, tx *gorm.DB, name string, excludeID *uuid.UUID) (bool, error) {
	var count int64
	query := s.helpers.getDB(ctx, tx).Model(&models.Subject{}).Where("LOWER(name) = LOWER(?)", name)
	if excludeID != nil {
		query = query.Where("id <> ?", *excludeID)
	}
	if err := query.Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check subject name: %w", err)
	}
	return count > 0, nil
}
