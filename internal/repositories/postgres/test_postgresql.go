package postgres

import (
	"context"
	"fmt"

	"github.com/gateprep/exam-service/internal/models"
	"github.com/gateprep/exam-service/internal/repositories"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TestPostgreSQL struct {
	helpers *SharedHelpers
}

func NewTestPostgreSQL(db *gorm.DB) repositories.TestRepository {
	return &TestPostgreSQL{helpers: NewSharedHelpers(db)}
}

// ===== BASIC OPERATIONS =====

func (t *TestPostgreSQL) Create(ctx context.Context, tx *gorm.DB, test *models.Test) error {
	newID(&test.ID)
	// question references are inserted separately through AddQuestions
	if err := t.helpers.getDB(ctx, tx).Omit("Questions").Create(test).Error; err != nil {
		return fmt.Errorf("failed to create test: %w", err)
	}
	return nil
}

func (t *TestPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Test, error) {
	var test models.Test
	if err := t.helpers.getDB(ctx, tx).Where("id = ?", id).First(&test).Error; err != nil {
		return nil, err
	}
	return &test, nil
}

func (t *TestPostgreSQL) Update(ctx context.Context, tx *gorm.DB, test *models.Test) error {
	result := t.helpers.getDB(ctx, tx).
		Model(&models.Test{}).
		Where("id = ?", test.ID).
		Updates(map[string]interface{}{
			"name":          test.Name,
			"type":          test.Type,
			"duration_mins": test.DurationMins,
			"is_active":     test.IsActive,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update test: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (t *TestPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	db := t.helpers.getDB(ctx, tx)
	if err := db.Where("test_id = ?", id).Delete(&models.TestQuestion{}).Error; err != nil {
		return fmt.Errorf("failed to delete test questions: %w", err)
	}
	result := db.Where("id = ?", id).Delete(&models.Test{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete test: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ===== QUERY OPERATIONS =====

func (t *TestPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.TestFilters) ([]*models.Test, error) {
	query := t.helpers.getDB(ctx, tx).
		Model(&models.Test{}).
		Select("tests.*, (SELECT COUNT(*) FROM test_questions tq WHERE tq.test_id = tests.id) AS question_count")
	if filters.ActiveOnly {
		query = query.Where("tests.is_active = ?", true)
	}
	query = applyKeyset(query, "tests.created_at", "tests.id", filters.After, filters.Limit)

	var tests []*models.Test
	if err := query.Find(&tests).Error; err != nil {
		return nil, fmt.Errorf("failed to list tests: %w", err)
	}
	return tests, nil
}

func (t *TestPostgreSQL) Count(ctx context.Context, tx *gorm.DB) (int64, error) {
	var count int64
	if err := t.helpers.getDB(ctx, tx).Model(&models.Test{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count tests: %w", err)
	}
	return count, nil
}

// ===== QUESTION SEQUENCE =====

func (t *TestPostgreSQL) AddQuestions(ctx context.Context, tx *gorm.DB, testQuestions []*models.TestQuestion) error {
	if len(testQuestions) == 0 {
		return nil
	}
	for _, tq := range testQuestions {
		newID(&tq.ID)
	}
	if err := t.helpers.getDB(ctx, tx).CreateInBatches(testQuestions, questionBatchSize).Error; err != nil {
		return fmt.Errorf("failed to add test questions: %w", err)
	}
	return nil
}

func (t *TestPostgreSQL) GetQuestions(ctx context.Context, tx *gorm.DB, testID uuid.UUID) ([]*models.TestQuestion, error) {
	var testQuestions []*models.TestQuestion
	if err := t.helpers.getDB(ctx, tx).
		Where("test_id = ?", testID).
		Order("question_order ASC").
		Find(&testQuestions).Error; err != nil {
		return nil, fmt.Errorf("failed to get test questions: %w", err)
	}
	return testQuestions, nil
}

func (t *TestPostgreSQL) GetQuestion(ctx context.Context, tx *gorm.DB, testQuestionID uuid.UUID) (*models.TestQuestion, error) {
	var tq models.TestQuestion
	if err := t.helpers.getDB(ctx, tx).Where("id = ?", testQuestionID).First(&tq).Error; err != nil {
		return nil, err
	}
	return &tq, nil
}

func (t *TestPostgreSQL) NextOrder(ctx context.Context, tx *gorm.DB, testID uuid.UUID) (int, error) {
	var maxOrder int
	if err := t.helpers.getDB(ctx, tx).
		Model(&models.TestQuestion{}).
		Where("test_id = ?", testID).
		Select("COALESCE(MAX(question_order), 0)").
		Scan(&maxOrder).Error; err != nil {
		return 0, fmt.Errorf("failed to get next order: %w", err)
	}
	return maxOrder + 1, nil
}

func (t *TestPostgreSQL) RemoveQuestion(ctx context.Context, tx *gorm.DB, testID, testQuestionID uuid.UUID) error {
	db := t.helpers.getDB(ctx, tx)

	var tq models.TestQuestion
	if err := db.Where("id = ? AND test_id = ?", testQuestionID, testID).First(&tq).Error; err != nil {
		return err
	}
	if err := db.Delete(&tq).Error; err != nil {
		return fmt.Errorf("failed to remove test question: %w", err)
	}

	// Two passes keep (test_id, question_order) unique while shifting.
	if err := db.Model(&models.TestQuestion{}).
		Where("test_id = ? AND question_order > ?", testID, tq.QuestionOrder).
		Update("question_order", gorm.Expr("-(question_order - 1)")).Error; err != nil {
		return fmt.Errorf("failed to renumber test questions: %w", err)
	}
	if err := db.Model(&models.TestQuestion{}).
		Where("test_id = ? AND question_order < 0", testID).
		Update("question_order", gorm.Expr("-question_order")).Error; err != nil {
		return fmt.Errorf("failed to renumber test questions: %w", err)
	}
	return nil
}

func (t *TestPostgreSQL) HasAttempts(ctx context.Context, tx *gorm.DB, testID uuid.UUID) (bool, error) {
	var count int64
	if err := t.helpers.getDB(ctx, tx).
		Model(&models.TestAttempt{}).
		Where("test_id = ?", testID).
		Limit(1).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check test attempts: %w", err)
	}
	return count > 0, nil
}
