package validator

import (
	"fmt"
	"math"
	"strings"

	"github.com/gateprep/exam-service/internal/errors"
	"github.com/gateprep/exam-service/internal/models"
)

const (
	minMarks = 1
	maxMarks = 2
)

// QuestionValidator handles the per-type rules that struct tags cannot express.
type QuestionValidator struct{}

// NewQuestionValidator creates a new question validator
func NewQuestionValidator() *QuestionValidator {
	return &QuestionValidator{}
}

// Normalize applies storage conventions in place: MCQ penalties are kept negative.
func (v *QuestionValidator) Normalize(question models.Question) {
	if mcq, ok := question.(*models.MCQQuestion); ok {
		mcq.NegativeMarks = -math.Abs(mcq.NegativeMarks)
	}
}

// ValidateQuestion validates a complete question object
func (v *QuestionValidator) ValidateQuestion(question models.Question) error {
	if question == nil {
		return errors.ValidationErrors{*errors.NewValidationError("question", "is required", nil)}
	}

	var errs errors.ValidationErrors
	base := question.Base()
	if strings.TrimSpace(base.Question) == "" {
		errs = append(errs, *errors.NewValidationErrorWithRule("question", "is required", "required", base.Question))
	}
	if base.Marks < minMarks || base.Marks > maxMarks {
		errs = append(errs, *errors.NewValidationErrorWithRule("marks",
			fmt.Sprintf("must be between %d and %d", minMarks, maxMarks), "marks", base.Marks))
	}

	switch q := question.(type) {
	case *models.MCQQuestion:
		errs = append(errs, v.validateOptions(q.Options)...)
		if !q.CorrectAns.Valid() {
			errs = append(errs, *errors.NewValidationErrorWithRule("correct_ans",
				"must be one of option1, option2, option3, option4", "option_key", q.CorrectAns))
		}
		if q.NegativeMarks > 0 {
			errs = append(errs, *errors.NewValidationErrorWithRule("negative_marks",
				"must not be positive", "lte", q.NegativeMarks))
		}
	case *models.MSQQuestion:
		errs = append(errs, v.validateOptions(q.Options)...)
		errs = append(errs, v.validateCorrectSet(q.CorrectAnswers)...)
	case *models.NATQuestion:
		if q.CorrectAnsMin > q.CorrectAnsMax {
			errs = append(errs, *errors.NewValidationErrorWithRule("correct_ans_max",
				"must not be less than correct_ans_min", "gte", q.CorrectAnsMax))
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ValidateBatch validates every question and reports all failures, field names
// prefixed with the item index.
func (v *QuestionValidator) ValidateBatch(questions []models.Question) error {
	if len(questions) == 0 {
		return errors.ValidationErrors{*errors.NewValidationError("questions", "must not be empty", nil)}
	}

	var all errors.ValidationErrors
	for i, question := range questions {
		err := v.ValidateQuestion(question)
		if err == nil {
			continue
		}
		if errs, ok := err.(errors.ValidationErrors); ok {
			for _, e := range errs {
				e.Field = fmt.Sprintf("questions[%d].%s", i, e.Field)
				all = append(all, e)
			}
		}
	}

	if len(all) > 0 {
		return all
	}
	return nil
}

func (v *QuestionValidator) validateOptions(opts models.Options) errors.ValidationErrors {
	var errs errors.ValidationErrors
	values := []string{opts.Option1, opts.Option2, opts.Option3, opts.Option4}
	for i, value := range values {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, *errors.NewValidationErrorWithRule(string(models.OptionKeys[i]), "is required", "required", value))
		}
	}
	return errs
}

func (v *QuestionValidator) validateCorrectSet(keys []models.OptionKey) errors.ValidationErrors {
	if len(keys) == 0 {
		return errors.ValidationErrors{*errors.NewValidationErrorWithRule("correct_answers",
			"must contain at least one option", "min", keys)}
	}

	seen := make(map[models.OptionKey]bool, len(keys))
	for _, key := range keys {
		if !key.Valid() {
			return errors.ValidationErrors{*errors.NewValidationErrorWithRule("correct_answers",
				"must be one of option1, option2, option3, option4", "option_key", key)}
		}
		if seen[key] {
			return errors.ValidationErrors{*errors.NewValidationErrorWithRule("correct_answers",
				"must not contain duplicates", "unique", key)}
		}
		seen[key] = true
	}
	return nil
}
