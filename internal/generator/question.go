package generator

import (
	"fmt"

	"github.com/gateprep/exam-service/internal/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// GeneratedQuestion is one element of the model's JSON array. Field names follow the
// schema given in the prompt.
type GeneratedQuestion struct {
	Type           models.QuestionType `json:"type" validate:"required,question_type"`
	Question       string              `json:"question" validate:"required"`
	Code           *string             `json:"code,omitempty"`
	Option1        string              `json:"option1,omitempty"`
	Option2        string              `json:"option2,omitempty"`
	Option3        string              `json:"option3,omitempty"`
	Option4        string              `json:"option4,omitempty"`
	CorrectAns     models.OptionKey    `json:"correctAns,omitempty"`
	CorrectAnswers []models.OptionKey  `json:"correctAnswers,omitempty"`
	CorrectAnsMin  *float64            `json:"correctAnsMin,omitempty"`
	CorrectAnsMax  *float64            `json:"correctAnsMax,omitempty"`
	Marks          int                 `json:"marks"`
	NegativeMarks  *float64            `json:"negativeMarks,omitempty"`
	Explanation    *string             `json:"explanation,omitempty"`
}

// ToModel builds an unsaved catalog row in the given subject. Marks default to 1 and
// the MCQ penalty to the catalog default; a missing NAT maximum equals the minimum.
func (g GeneratedQuestion) ToModel(subjectID uuid.UUID) (models.Question, error) {
	marks := g.Marks
	if marks == 0 {
		marks = 1
	}
	base := models.QuestionBase{
		SubjectID:   subjectID,
		Question:    g.Question,
		Code:        g.Code,
		Marks:       marks,
		Explanation: g.Explanation,
	}
	opts := models.Options{Option1: g.Option1, Option2: g.Option2, Option3: g.Option3, Option4: g.Option4}

	switch g.Type {
	case models.QuestionMCQ:
		negative := models.DefaultNegativeMarks
		if g.NegativeMarks != nil {
			negative = *g.NegativeMarks
		}
		return &models.MCQQuestion{QuestionBase: base, Options: opts, CorrectAns: g.CorrectAns, NegativeMarks: negative}, nil
	case models.QuestionMSQ:
		return &models.MSQQuestion{QuestionBase: base, Options: opts, CorrectAnswers: datatypes.JSONSlice[models.OptionKey](g.CorrectAnswers)}, nil
	case models.QuestionNAT:
		if g.CorrectAnsMin == nil {
			return nil, fmt.Errorf("NAT question is missing correctAnsMin")
		}
		max := *g.CorrectAnsMin
		if g.CorrectAnsMax != nil {
			max = *g.CorrectAnsMax
		}
		return &models.NATQuestion{QuestionBase: base, CorrectAnsMin: *g.CorrectAnsMin, CorrectAnsMax: max}, nil
	}
	return nil, fmt.Errorf("unknown question type %q", g.Type)
}
