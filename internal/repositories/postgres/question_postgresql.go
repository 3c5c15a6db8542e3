package postgres

import (
	"context"
	"fmt"

	"github.com/gateprep/exam-service/internal/models"
	"github.com/gateprep/exam-service/internal/repositories"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const questionBatchSize = 100

type QuestionPostgreSQL struct {
	helpers *SharedHelpers
}

func NewQuestionPostgreSQL(db *gorm.DB) repositories.QuestionRepository {
	return &QuestionPostgreSQL{helpers: NewSharedHelpers(db)}
}

// ===== BASIC OPERATIONS =====

func (q *QuestionPostgreSQL) Create(ctx context.Context, tx *gorm.DB, question models.Question) error {
	newID(&question.Base().ID)
	if err := q.helpers.getDB(ctx, tx).Create(question).Error; err != nil {
		return fmt.Errorf("failed to create %s question: %w", question.Type(), err)
	}
	return nil
}

// CreateBatch inserts questions grouped by table. Callers wanting all-or-nothing pass a tx.
func (q *QuestionPostgreSQL) CreateBatch(ctx context.Context, tx *gorm.DB, questions []models.Question) error {
	var (
		mcqs []*models.MCQQuestion
		msqs []*models.MSQQuestion
		nats []*models.NATQuestion
	)
	for _, question := range questions {
		newID(&question.Base().ID)
		switch v := question.(type) {
		case *models.MCQQuestion:
			mcqs = append(mcqs, v)
		case *models.MSQQuestion:
			msqs = append(msqs, v)
		case *models.NATQuestion:
			nats = append(nats, v)
		}
	}

	db := q.helpers.getDB(ctx, tx)
	if len(mcqs) > 0 {
		if err := db.CreateInBatches(mcqs, questionBatchSize).Error; err != nil {
			return fmt.Errorf("failed to create MCQ questions: %w", err)
		}
	}
	if len(msqs) > 0 {
		if err := db.CreateInBatches(msqs, questionBatchSize).Error; err != nil {
			return fmt.Errorf("failed to create MSQ questions: %w", err)
		}
	}
	if len(nats) > 0 {
		if err := db.CreateInBatches(nats, questionBatchSize).Error; err != nil {
			return fmt.Errorf("failed to create NAT questions: %w", err)
		}
	}
	return nil
}

func (q *QuestionPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, ref models.QuestionRef) (models.Question, error) {
	question := models.NewQuestion(ref.Type)
	if question == nil {
		return nil, fmt.Errorf("unknown question type %q", ref.Type)
	}
	if err := q.helpers.getDB(ctx, tx).Where("id = ?", ref.ID).First(question).Error; err != nil {
		return nil, err
	}
	return question, nil
}

func (q *QuestionPostgreSQL) Update(ctx context.Context, tx *gorm.DB, question models.Question) error {
	result := q.helpers.getDB(ctx, tx).
		Model(question).
		Select("*").
		Omit("id", "created_at").
		Updates(question)
	if result.Error != nil {
		return fmt.Errorf("failed to update %s question: %w", question.Type(), result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (q *QuestionPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, ref models.QuestionRef) error {
	model := models.NewQuestion(ref.Type)
	if model == nil {
		return fmt.Errorf("unknown question type %q", ref.Type)
	}
	result := q.helpers.getDB(ctx, tx).Where("id = ?", ref.ID).Delete(model)
	if result.Error != nil {
		return fmt.Errorf("failed to delete %s question: %w", ref.Type, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ===== QUERY OPERATIONS =====

// List returns one keyset page of a single question table.
func (q *QuestionPostgreSQL) List(ctx context.Context, tx *gorm.DB, qType models.QuestionType, filters repositories.QuestionFilters) ([]models.Question, error) {
	model := models.NewQuestion(qType)
	if model == nil {
		return nil, fmt.Errorf("unknown question type %q", qType)
	}

	query := q.helpers.getDB(ctx, tx).Model(model)
	if filters.SubjectID != nil {
		query = query.Where("subject_id = ?", *filters.SubjectID)
	}
	query = applyKeyset(query, "created_at", "id", filters.After, filters.Limit)

	questions, err := findQuestions(query, qType)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s questions: %w", qType, err)
	}
	return questions, nil
}

func (q *QuestionPostgreSQL) RandomIDs(ctx context.Context, tx *gorm.DB, qType models.QuestionType, count int, subjectID *uuid.UUID) ([]uuid.UUID, error) {
	model := models.NewQuestion(qType)
	if model == nil {
		return nil, fmt.Errorf("unknown question type %q", qType)
	}
	if count <= 0 {
		return nil, nil
	}

	query := q.helpers.getDB(ctx, tx).Model(model)
	if subjectID != nil {
		query = query.Where("subject_id = ?", *subjectID)
	}

	var ids []uuid.UUID
	if err := query.Order("RANDOM()").Limit(count).Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to draw random %s questions: %w", qType, err)
	}
	return ids, nil
}

func (q *QuestionPostgreSQL) Resolve(ctx context.Context, tx *gorm.DB, refs []models.QuestionRef) (map[models.QuestionRef]models.Question, error) {
	byType := make(map[models.QuestionType][]uuid.UUID)
	for _, ref := range refs {
		byType[ref.Type] = append(byType[ref.Type], ref.ID)
	}

	resolved := make(map[models.QuestionRef]models.Question, len(refs))
	db := q.helpers.getDB(ctx, tx)
	for _, qType := range models.QuestionTypes {
		ids := byType[qType]
		if len(ids) == 0 {
			continue
		}
		questions, err := findQuestions(db.Model(models.NewQuestion(qType)).Where("id IN ?", ids), qType)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s questions: %w", qType, err)
		}
		for _, question := range questions {
			resolved[models.RefOf(question)] = question
		}
	}
	return resolved, nil
}

// ===== STATISTICS =====

func (q *QuestionPostgreSQL) CountByType(ctx context.Context, tx *gorm.DB) (map[models.QuestionType]int64, error) {
	db := q.helpers.getDB(ctx, tx)
	counts := make(map[models.QuestionType]int64, len(models.QuestionTypes))
	for _, qType := range models.QuestionTypes {
		var count int64
		if err := db.Model(models.NewQuestion(qType)).Count(&count).Error; err != nil {
			return nil, fmt.Errorf("failed to count %s questions: %w", qType, err)
		}
		counts[qType] = count
	}
	return counts, nil
}

func (q *QuestionPostgreSQL) CountBySubject(ctx context.Context, tx *gorm.DB, subjectID uuid.UUID) (int64, error) {
	db := q.helpers.getDB(ctx, tx)
	var total int64
	for _, qType := range models.QuestionTypes {
		var count int64
		if err := db.Model(models.NewQuestion(qType)).Where("subject_id = ?", subjectID).Count(&count).Error; err != nil {
			return 0, fmt.Errorf("failed to count %s questions for subject: %w", qType, err)
		}
		total += count
	}
	return total, nil
}

// findQuestions runs query against the table for qType and returns the rows as the sum type.
func findQuestions(query *gorm.DB, qType models.QuestionType) ([]models.Question, error) {
	switch qType {
	case models.QuestionMCQ:
		var rows []*models.MCQQuestion
		if err := query.Find(&rows).Error; err != nil {
			return nil, err
		}
		return asQuestions(rows), nil
	case models.QuestionMSQ:
		var rows []*models.MSQQuestion
		if err := query.Find(&rows).Error; err != nil {
			return nil, err
		}
		return asQuestions(rows), nil
	case models.QuestionNAT:
		var rows []*models.NATQuestion
		if err := query.Find(&rows).Error; err != nil {
			return nil, err
		}
		return asQuestions(rows), nil
	}
	return nil, fmt.Errorf("unknown question type %q", qType)
}

func asQuestions[T models.Question](rows []T) []models.Question {
	out := make([]models.Question, len(rows))
	for i, row := range rows {
		out[i] = row
	}
	return out
}
