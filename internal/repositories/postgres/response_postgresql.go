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

var questionTables = map[models.QuestionType]string{
	models.QuestionMCQ: "mcq_questions",
	models.QuestionMSQ: "msq_questions",
	models.QuestionNAT: "nat_questions",
}

// answeredPredicates select responses that carry a payload. A row saved only to mark
// the question for review, or whose answer was cleared, is unattempted and not a mistake.
var answeredPredicates = map[models.QuestionType]string{
	models.QuestionMCQ: "sr.mcq_response IS NOT NULL",
	models.QuestionMSQ: "COALESCE(sr.msq_response, 'null'::jsonb) NOT IN ('null'::jsonb, '[]'::jsonb)",
	models.QuestionNAT: "sr.nat_response IS NOT NULL",
}

type ResponsePostgreSQL struct {
	helpers  *SharedHelpers
	question repositories.QuestionRepository
}

func NewResponsePostgreSQL(db *gorm.DB, question repositories.QuestionRepository) repositories.ResponseRepository {
	return &ResponsePostgreSQL{
		helpers:  NewSharedHelpers(db),
		question: question,
	}
}

func (r *ResponsePostgreSQL) Upsert(ctx context.Context, tx *gorm.DB, response *models.StudentResponse) error {
	newID(&response.ID)
	err := r.helpers.getDB(ctx, tx).
		Clauses(
			clause.OnConflict{
				Columns: []clause.Column{{Name: "attempt_id"}, {Name: "test_question_id"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"question_type",
					"mcq_response",
					"nat_response",
					"msq_response",
					"is_marked_for_review",
					"time_spent_secs",
					"answered_at",
				}),
			},
			clause.Returning{},
		).
		Create(response).Error
	if err != nil {
		return fmt.Errorf("failed to upsert response: %w", err)
	}
	return nil
}

func (r *ResponsePostgreSQL) GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID uuid.UUID) ([]*models.StudentResponse, error) {
	var responses []*models.StudentResponse
	if err := r.helpers.getDB(ctx, tx).
		Where("attempt_id = ?", attemptID).
		Order("answered_at ASC").
		Find(&responses).Error; err != nil {
		return nil, fmt.Errorf("failed to get responses: %w", err)
	}
	return responses, nil
}

func (r *ResponsePostgreSQL) UpdateScores(ctx context.Context, tx *gorm.DB, responses []*models.StudentResponse) error {
	db := r.helpers.getDB(ctx, tx)
	for _, response := range responses {
		if err := db.Model(&models.StudentResponse{}).
			Where("id = ?", response.ID).
			Updates(map[string]interface{}{
				"is_correct":    response.IsCorrect,
				"score_awarded": response.ScoreAwarded,
			}).Error; err != nil {
			return fmt.Errorf("failed to update response score: %w", err)
		}
	}
	return nil
}

// ===== FEEDS & ANALYTICS =====

type mistakeRow struct {
	models.StudentResponse
	TestID     uuid.UUID
	QuestionID uuid.UUID
}

// ListMistakes pages through answered, incorrect responses of one question type, newest
// answer first. Responses whose question has since been deleted are excluded.
func (r *ResponsePostgreSQL) ListMistakes(ctx context.Context, tx *gorm.DB, qType models.QuestionType, filters repositories.MistakeFilters) ([]*repositories.Mistake, error) {
	query, err := mistakeQuery(r.helpers.getDB(ctx, tx), qType, filters)
	if err != nil {
		return nil, err
	}

	var rows []*mistakeRow
	if err := query.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list %s mistakes: %w", qType, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	refs := make([]models.QuestionRef, len(rows))
	for i, row := range rows {
		refs[i] = models.QuestionRef{ID: row.QuestionID, Type: qType}
	}
	questions, err := r.question.Resolve(ctx, tx, refs)
	if err != nil {
		return nil, err
	}

	mistakes := make([]*repositories.Mistake, 0, len(rows))
	for i, row := range rows {
		mistakes = append(mistakes, &repositories.Mistake{
			Response: row.StudentResponse,
			TestID:   row.TestID,
			Question: questions[refs[i]],
		})
	}
	return mistakes, nil
}

func mistakeQuery(db *gorm.DB, qType models.QuestionType, filters repositories.MistakeFilters) (*gorm.DB, error) {
	table, ok := questionTables[qType]
	if !ok {
		return nil, fmt.Errorf("unknown question type %q", qType)
	}
	query := db.
		Table("student_responses sr").
		Select("sr.*, ta.test_id, tq.question_id").
		Joins("JOIN test_attempts ta ON ta.id = sr.attempt_id").
		Joins("JOIN test_questions tq ON tq.id = sr.test_question_id").
		Joins(fmt.Sprintf("JOIN %s q ON q.id = tq.question_id", table)).
		Where("ta.student_id = ? AND sr.question_type = ? AND sr.is_correct = ?", filters.StudentID, qType, false).
		Where(answeredPredicates[qType])
	return applyKeyset(query, "sr.answered_at", "sr.id", filters.After, filters.Limit), nil
}

func (r *ResponsePostgreSQL) SubjectAccuracy(ctx context.Context, tx *gorm.DB, studentID uuid.UUID) ([]*repositories.SubjectAccuracy, error) {
	var rows []*repositories.SubjectAccuracy
	err := r.helpers.getDB(ctx, tx).Raw(`
		SELECT s.id AS subject_id, s.name AS subject_name,
			COUNT(*) FILTER (WHERE sr.is_correct) AS correct,
			COUNT(*) AS total
		FROM student_responses sr
		JOIN test_attempts ta ON ta.id = sr.attempt_id
		JOIN test_questions tq ON tq.id = sr.test_question_id
		JOIN (
			SELECT id, subject_id FROM mcq_questions
			UNION ALL SELECT id, subject_id FROM msq_questions
			UNION ALL SELECT id, subject_id FROM nat_questions
		) q ON q.id = tq.question_id
		JOIN subjects s ON s.id = q.subject_id
		WHERE ta.student_id = ? AND sr.is_correct IS NOT NULL
		GROUP BY s.id, s.name
		ORDER BY s.name ASC`, studentID).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get subject accuracy: %w", err)
	}
	return rows, nil
}
