package postgres

import (
	"context"
	"fmt"

	"github.com/gateprep/exam-service/internal/models"
	"github.com/gateprep/exam-service/internal/repositories"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AttemptPostgreSQL struct {
	helpers *SharedHelpers
}

func NewAttemptPostgreSQL(db *gorm.DB) repositories.AttemptRepository {
	return &AttemptPostgreSQL{helpers: NewSharedHelpers(db)}
}

// ===== BASIC OPERATIONS =====

func (a *AttemptPostgreSQL) Create(ctx context.Context, tx *gorm.DB, attempt *models.TestAttempt) error {
	newID(&attempt.ID)
	if err := a.helpers.getDB(ctx, tx).Omit(clause.Associations).Create(attempt).Error; err != nil {
		return fmt.Errorf("failed to create attempt: %w", err)
	}
	return nil
}

func (a *AttemptPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.TestAttempt, error) {
	return a.get(a.helpers.getDB(ctx, tx), id)
}

func (a *AttemptPostgreSQL) Update(ctx context.Context, tx *gorm.DB, attempt *models.TestAttempt) error {
	result := a.helpers.getDB(ctx, tx).
		Model(&models.TestAttempt{}).
		Where("id = ?", attempt.ID).
		Updates(map[string]interface{}{
			"status":       attempt.Status,
			"submitted_at": attempt.SubmittedAt,
			"total_score":  attempt.TotalScore,
			"max_score":    attempt.MaxScore,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update attempt: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ===== ROW LOCKS =====

func (a *AttemptPostgreSQL) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.TestAttempt, error) {
	return a.get(a.helpers.getDB(ctx, tx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (a *AttemptPostgreSQL) GetByIDForShare(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.TestAttempt, error) {
	return a.get(a.helpers.getDB(ctx, tx).Clauses(clause.Locking{Strength: "SHARE"}), id)
}

func (a *AttemptPostgreSQL) get(db *gorm.DB, id uuid.UUID) (*models.TestAttempt, error) {
	var attempt models.TestAttempt
	if err := db.Where("id = ?", id).First(&attempt).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

// ===== ACTIVE ATTEMPT =====

func (a *AttemptPostgreSQL) GetActive(ctx context.Context, tx *gorm.DB, studentID, testID uuid.UUID) (*models.TestAttempt, error) {
	var attempt models.TestAttempt
	if err := a.helpers.getDB(ctx, tx).
		Where("student_id = ? AND test_id = ? AND status = ?", studentID, testID, models.AttemptInProgress).
		First(&attempt).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

// ===== QUERY OPERATIONS =====

func (a *AttemptPostgreSQL) ListByStudent(ctx context.Context, tx *gorm.DB, studentID uuid.UUID) ([]*repositories.AttemptSummary, error) {
	var rows []*repositories.AttemptSummary
	if err := a.helpers.getDB(ctx, tx).
		Table("test_attempts ta").
		Select("ta.*, t.name AS test_name, t.type AS test_type").
		Joins("JOIN tests t ON t.id = ta.test_id").
		Where("ta.student_id = ?", studentID).
		Order("ta.started_at DESC").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list attempts for student: %w", err)
	}
	return rows, nil
}

func (a *AttemptPostgreSQL) ListResultsByTest(ctx context.Context, tx *gorm.DB, testID uuid.UUID) ([]*models.ResultRow, error) {
	var rows []*models.ResultRow
	if err := a.helpers.getDB(ctx, tx).
		Table("test_attempts ta").
		Select(`ta.id AS attempt_id, ta.student_id, COALESCE(u.name, '') AS student_name, ta.status,
			COALESCE(ta.total_score, 0) AS total_score, COALESCE(ta.max_score, 0) AS max_score,
			ta.started_at, ta.submitted_at`).
		Joins("LEFT JOIN users u ON u.id = ta.student_id").
		Where("ta.test_id = ?", testID).
		Order("total_score DESC, ta.started_at ASC").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list results for test: %w", err)
	}
	return rows, nil
}

func (a *AttemptPostgreSQL) RecentPerformance(ctx context.Context, tx *gorm.DB, studentID uuid.UUID, limit int) ([]*repositories.PerformancePoint, error) {
	var points []*repositories.PerformancePoint
	if err := a.helpers.getDB(ctx, tx).
		Table("test_attempts ta").
		Select(`ta.id AS attempt_id, t.name AS test_name, COALESCE(ta.total_score, 0) AS total_score,
			COALESCE(ta.max_score, 0) AS max_score, ta.submitted_at AS date`).
		Joins("JOIN tests t ON t.id = ta.test_id").
		Where("ta.student_id = ? AND ta.status IN ?", studentID,
			[]models.AttemptStatus{models.AttemptSubmitted, models.AttemptTimedOut}).
		Order("ta.submitted_at DESC").
		Limit(limit).
		Scan(&points).Error; err != nil {
		return nil, fmt.Errorf("failed to get recent performance: %w", err)
	}
	return points, nil
}

// ===== STATISTICS =====

func (a *AttemptPostgreSQL) Stats(ctx context.Context, tx *gorm.DB) (*repositories.AttemptStats, error) {
	var stats repositories.AttemptStats
	if err := a.helpers.getDB(ctx, tx).
		Model(&models.TestAttempt{}).
		Select(`COUNT(*) AS total_attempts,
			COUNT(*) FILTER (WHERE status <> ?) AS finished_attempts,
			COALESCE(AVG(total_score) FILTER (WHERE status <> ?), 0) AS average_total_score`,
			models.AttemptInProgress, models.AttemptInProgress).
		Scan(&stats).Error; err != nil {
		return nil, fmt.Errorf("failed to get attempt stats: %w", err)
	}
	return &stats, nil
}
