package services

import (
	"time"

	"github.com/gateprep/exam-service/internal/generator"
	"github.com/gateprep/exam-service/internal/models"
	"github.com/gateprep/exam-service/internal/repositories"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ===== SUBJECTS =====

type SubjectRequest struct {
	Name string `json:"name" validate:"required,min=1,max=255"`
}

// ===== QUESTIONS =====

// QuestionRequest carries any question kind, discriminated by Type. Fields that do not
// apply to the kind are ignored.
type QuestionRequest struct {
	Type        models.QuestionType `json:"type" validate:"required,question_type"`
	SubjectID   uuid.UUID           `json:"subject_id" validate:"required"`
	Question    string              `json:"question" validate:"required"`
	Code        *string             `json:"code,omitempty"`
	Marks       int                 `json:"marks" validate:"required,min=1,max=2"`
	Explanation *string             `json:"explanation,omitempty"`

	Option1 string `json:"option1,omitempty"`
	Option2 string `json:"option2,omitempty"`
	Option3 string `json:"option3,omitempty"`
	Option4 string `json:"option4,omitempty"`

	// MCQ
	CorrectAns    models.OptionKey `json:"correct_ans,omitempty" validate:"omitempty,option_key"`
	NegativeMarks *float64         `json:"negative_marks,omitempty"`

	// MSQ
	CorrectAnswers []models.OptionKey `json:"correct_answers,omitempty" validate:"omitempty,dive,option_key"`

	// NAT
	CorrectAnsMin *float64 `json:"correct_ans_min,omitempty"`
	CorrectAnsMax *float64 `json:"correct_ans_max,omitempty"`
}

// ToModel builds the unsaved row. A NAT request without a minimum is a validation error;
// a missing maximum equals the minimum. A missing MCQ penalty takes the catalog default.
func (r *QuestionRequest) ToModel() (models.Question, error) {
	base := models.QuestionBase{
		SubjectID:   r.SubjectID,
		Question:    r.Question,
		Code:        r.Code,
		Marks:       r.Marks,
		Explanation: r.Explanation,
	}
	opts := models.Options{Option1: r.Option1, Option2: r.Option2, Option3: r.Option3, Option4: r.Option4}

	switch r.Type {
	case models.QuestionMCQ:
		negative := models.DefaultNegativeMarks
		if r.NegativeMarks != nil {
			negative = *r.NegativeMarks
		}
		return &models.MCQQuestion{QuestionBase: base, Options: opts, CorrectAns: r.CorrectAns, NegativeMarks: negative}, nil
	case models.QuestionMSQ:
		return &models.MSQQuestion{QuestionBase: base, Options: opts, CorrectAnswers: datatypes.JSONSlice[models.OptionKey](r.CorrectAnswers)}, nil
	case models.QuestionNAT:
		if r.CorrectAnsMin == nil {
			return nil, NewValidationError("correct_ans_min", "is required", nil)
		}
		max := *r.CorrectAnsMin
		if r.CorrectAnsMax != nil {
			max = *r.CorrectAnsMax
		}
		return &models.NATQuestion{QuestionBase: base, CorrectAnsMin: *r.CorrectAnsMin, CorrectAnsMax: max}, nil
	}
	return nil, NewValidationError("type", "must be a valid question type (MCQ, MSQ, NAT)", r.Type)
}

type BulkQuestionsRequest struct {
	Questions []QuestionRequest `json:"questions" validate:"required,min=1,max=500,dive"`
}

type BulkQuestionsResponse struct {
	Created []models.QuestionRef `json:"created"`
}

// ===== TESTS =====

type RandomCounts struct {
	MCQ int `json:"mcq" validate:"min=0,max=100"`
	MSQ int `json:"msq" validate:"min=0,max=100"`
	NAT int `json:"nat" validate:"min=0,max=100"`
}

func (c RandomCounts) For(t models.QuestionType) int {
	switch t {
	case models.QuestionMCQ:
		return c.MCQ
	case models.QuestionMSQ:
		return c.MSQ
	case models.QuestionNAT:
		return c.NAT
	}
	return 0
}

func (c RandomCounts) Total() int {
	return c.MCQ + c.MSQ + c.NAT
}

// CreateTestRequest is the composer input. Which payload field is read depends on
// SelectionMode: QuestionIDs for manual, RandomCounts for random, GeneratedQuestions
// and SubjectID for ai. SubjectID optionally narrows random draws.
type CreateTestRequest struct {
	Name               string                        `json:"name" validate:"required,min=1,max=255"`
	Type               models.TestType               `json:"type" validate:"required,test_type"`
	DurationMins       int                           `json:"duration_mins" validate:"required,min=1,max=600"`
	SelectionMode      models.SelectionMode          `json:"selection_mode" validate:"required,selection_mode"`
	QuestionIDs        []models.QuestionRef          `json:"question_ids,omitempty" validate:"omitempty,dive"`
	RandomCounts       *RandomCounts                 `json:"random_counts,omitempty"`
	SubjectID          *uuid.UUID                    `json:"subject_id,omitempty"`
	GeneratedQuestions []generator.GeneratedQuestion `json:"generated_questions,omitempty" validate:"omitempty,dive"`
}

type UpdateTestRequest struct {
	Name         *string          `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	Type         *models.TestType `json:"type,omitempty" validate:"omitempty,test_type"`
	DurationMins *int             `json:"duration_mins,omitempty" validate:"omitempty,min=1,max=600"`
	IsActive     *bool            `json:"is_active,omitempty"`
}

type AddTestQuestionRequest struct {
	QuestionID   uuid.UUID           `json:"question_id" validate:"required"`
	QuestionType models.QuestionType `json:"question_type" validate:"required,question_type"`
}

type GenerateQuestionsRequest struct {
	SubjectID    uuid.UUID `json:"subject_id" validate:"required"`
	Count        int       `json:"count" validate:"omitempty,min=1,max=50"`
	Type         string    `json:"type" validate:"omitempty,oneof=MCQ MSQ NAT mixed"`
	Instructions string    `json:"instructions" validate:"max=2000"`
}

// TestDetail is a test with its resolved question sequence.
type TestDetail struct {
	Test      models.Test        `json:"test"`
	Questions []TestQuestionView `json:"questions"`
}

// TestQuestionView is one position in a test. Question is nil when the referenced
// question has been deleted.
type TestQuestionView struct {
	TestQuestionID uuid.UUID            `json:"test_question_id"`
	QuestionOrder  int                  `json:"question_order"`
	QuestionID     uuid.UUID            `json:"question_id"`
	QuestionType   models.QuestionType  `json:"question_type"`
	Question       *models.QuestionView `json:"question"`
}

// Public returns a copy safe to show a student.
func (d *TestDetail) Public() *TestDetail {
	out := &TestDetail{Test: d.Test, Questions: make([]TestQuestionView, len(d.Questions))}
	for i, q := range d.Questions {
		if q.Question != nil {
			q.Question = q.Question.Public()
		}
		out.Questions[i] = q
	}
	return out
}

// ===== ATTEMPTS =====

type StartAttemptRequest struct {
	TestID uuid.UUID `json:"test_id" validate:"required"`
}

// RespondRequest saves one answer. Only the response field matching QuestionType is kept.
// A nil or empty response clears the answer.
type RespondRequest struct {
	TestQuestionID    uuid.UUID           `json:"test_question_id" validate:"required"`
	QuestionType      models.QuestionType `json:"question_type" validate:"required,question_type"`
	MCQResponse       *models.OptionKey   `json:"mcq_response,omitempty" validate:"omitempty,option_key"`
	NATResponse       *string             `json:"nat_response,omitempty" validate:"omitempty,max=64"`
	MSQResponse       []models.OptionKey  `json:"msq_response,omitempty" validate:"omitempty,max=4,dive,option_key"`
	TimeSpentSecs     int                 `json:"time_spent_secs" validate:"min=0"`
	IsMarkedForReview bool                `json:"is_marked_for_review"`
}

type SubmitReason string

const (
	SubmitManual  SubmitReason = "manual"
	SubmitTimeout SubmitReason = "timeout"
)

type SubmitRequest struct {
	Reason SubmitReason `json:"reason" validate:"omitempty,oneof=manual timeout"`
}

type SubmitResult struct {
	AttemptID        uuid.UUID            `json:"attempt_id"`
	Status           models.AttemptStatus `json:"status"`
	TotalScore       float64              `json:"total_score"`
	MaxScore         float64              `json:"max_score"`
	SkippedQuestions int                  `json:"skipped_questions"`
	SubmittedAt      *time.Time           `json:"submitted_at"`
}

type AttemptDetail struct {
	Attempt   models.TestAttempt        `json:"attempt"`
	Responses []*models.StudentResponse `json:"responses"`
}

// ===== FEEDS =====

type PageRequest struct {
	Cursor string `form:"cursor" json:"cursor"`
	Limit  int    `form:"limit" json:"limit" validate:"omitempty,min=1,max=100"`
}

type ListQuestionsRequest struct {
	PageRequest
	SubjectID *uuid.UUID          `form:"subject_id" json:"subject_id"`
	Type      models.QuestionType `form:"type" json:"type" validate:"omitempty,question_type"`
}

type ListTestsRequest struct {
	PageRequest
	ActiveOnly bool `form:"active_only" json:"active_only"`
}

// MistakeItem is an incorrectly answered question with the student's answer.
type MistakeItem struct {
	ResponseID   uuid.UUID            `json:"response_id"`
	AttemptID    uuid.UUID            `json:"attempt_id"`
	TestID       uuid.UUID            `json:"test_id"`
	AnsweredAt   time.Time            `json:"answered_at"`
	MCQResponse  *models.OptionKey    `json:"mcq_response,omitempty"`
	NATResponse  *float64             `json:"nat_response,omitempty"`
	MSQResponse  []models.OptionKey   `json:"msq_response,omitempty"`
	ScoreAwarded *float64             `json:"score_awarded"`
	Question     *models.QuestionView `json:"question"`
}

// ===== ANALYTICS =====

type AdminStats struct {
	QuestionCounts   map[models.QuestionType]int64 `json:"question_counts"`
	TotalQuestions   int64                         `json:"total_questions"`
	Tests            int64                         `json:"tests"`
	Students         int64                         `json:"students"`
	Attempts         int64                         `json:"attempts"`
	FinishedAttempts int64                         `json:"finished_attempts"`
	AverageScore     float64                       `json:"average_score"`
	GeneratedAt      time.Time                     `json:"generated_at"`
}

type SubjectAccuracy struct {
	SubjectID   uuid.UUID `json:"subject_id"`
	SubjectName string    `json:"subject_name"`
	Correct     int64     `json:"correct"`
	Total       int64     `json:"total"`
	Accuracy    int       `json:"accuracy"`
}

type StudentAnalytics struct {
	Performance     []*repositories.PerformancePoint `json:"performance"`
	SubjectAccuracy []SubjectAccuracy                `json:"subject_accuracy"`
}
