package models

import (
	"time"

	"github.com/gateprep/exam-service/internal/pagination"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type QuestionType string

const (
	QuestionMCQ QuestionType = "MCQ"
	QuestionMSQ QuestionType = "MSQ"
	QuestionNAT QuestionType = "NAT"
)

// QuestionTypes lists every question kind in composer order.
var QuestionTypes = []QuestionType{QuestionMCQ, QuestionMSQ, QuestionNAT}

func (t QuestionType) Valid() bool {
	switch t {
	case QuestionMCQ, QuestionMSQ, QuestionNAT:
		return true
	}
	return false
}

type OptionKey string

const (
	Option1 OptionKey = "option1"
	Option2 OptionKey = "option2"
	Option3 OptionKey = "option3"
	Option4 OptionKey = "option4"
)

var OptionKeys = []OptionKey{Option1, Option2, Option3, Option4}

func (k OptionKey) Valid() bool {
	switch k {
	case Option1, Option2, Option3, Option4:
		return true
	}
	return false
}

// DefaultNegativeMarks is applied to MCQ questions created without an explicit penalty.
const DefaultNegativeMarks = -0.33

type Subject struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Name      string    `json:"name" gorm:"not null;size:255;uniqueIndex"`
	CreatedAt time.Time `json:"created_at"`
}

func (Subject) TableName() string {
	return "subjects"
}

// QuestionBase holds the columns shared by the three question tables.
type QuestionBase struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	SubjectID   uuid.UUID `json:"subject_id" gorm:"type:uuid;not null;index"`
	Question    string    `json:"question" gorm:"type:text;not null"`
	Code        *string   `json:"code,omitempty" gorm:"type:text"`
	Marks       int       `json:"marks" gorm:"not null;default:1"`
	Explanation *string   `json:"explanation,omitempty" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at" gorm:"index:,sort:desc"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Options struct {
	Option1 string `json:"option1" gorm:"type:text;not null"`
	Option2 string `json:"option2" gorm:"type:text;not null"`
	Option3 string `json:"option3" gorm:"type:text;not null"`
	Option4 string `json:"option4" gorm:"type:text;not null"`
}

type MCQQuestion struct {
	QuestionBase
	Options
	CorrectAns    OptionKey `json:"correct_ans" gorm:"size:16;not null"`
	NegativeMarks float64   `json:"negative_marks" gorm:"type:numeric(4,2);not null;default:-0.33"`
}

func (MCQQuestion) TableName() string {
	return "mcq_questions"
}

type MSQQuestion struct {
	QuestionBase
	Options
	CorrectAnswers datatypes.JSONSlice[OptionKey] `json:"correct_answers" gorm:"not null"`
}

func (MSQQuestion) TableName() string {
	return "msq_questions"
}

type NATQuestion struct {
	QuestionBase
	CorrectAnsMin float64 `json:"correct_ans_min" gorm:"type:numeric(12,4);not null"`
	CorrectAnsMax float64 `json:"correct_ans_max" gorm:"type:numeric(12,4);not null"`
}

func (NATQuestion) TableName() string {
	return "nat_questions"
}

// Question is implemented by exactly MCQQuestion, MSQQuestion and NATQuestion.
// Consumers switch on the concrete type.
type Question interface {
	Base() *QuestionBase
	Type() QuestionType
	Key() pagination.Cursor
	isQuestion()
}

func (q *QuestionBase) Base() *QuestionBase { return q }

func (q *QuestionBase) Key() pagination.Cursor {
	return pagination.Cursor{CreatedAt: q.CreatedAt, ID: q.ID}
}

func (*MCQQuestion) Type() QuestionType { return QuestionMCQ }
func (*MSQQuestion) Type() QuestionType { return QuestionMSQ }
func (*NATQuestion) Type() QuestionType { return QuestionNAT }

func (*MCQQuestion) isQuestion() {}
func (*MSQQuestion) isQuestion() {}
func (*NATQuestion) isQuestion() {}

// QuestionRef identifies a row in one of the question tables.
type QuestionRef struct {
	ID   uuid.UUID    `json:"question_id" validate:"required"`
	Type QuestionType `json:"question_type" validate:"required,question_type"`
}

func RefOf(q Question) QuestionRef {
	return QuestionRef{ID: q.Base().ID, Type: q.Type()}
}

// NewQuestion returns an empty question of the given kind, or nil for an unknown kind.
func NewQuestion(t QuestionType) Question {
	switch t {
	case QuestionMCQ:
		return &MCQQuestion{}
	case QuestionMSQ:
		return &MSQQuestion{}
	case QuestionNAT:
		return &NATQuestion{}
	}
	return nil
}

// QuestionView is a flat rendering of any question kind. Answer fields are set only
// for the matching kind and are cleared by Public.
type QuestionView struct {
	ID          uuid.UUID    `json:"id"`
	SubjectID   uuid.UUID    `json:"subject_id"`
	Type        QuestionType `json:"type"`
	Question    string       `json:"question"`
	Code        *string      `json:"code,omitempty"`
	Marks       int          `json:"marks"`
	Explanation *string      `json:"explanation,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	*Options

	CorrectAns     *OptionKey  `json:"correct_ans,omitempty"`
	NegativeMarks  *float64    `json:"negative_marks,omitempty"`
	CorrectAnswers []OptionKey `json:"correct_answers,omitempty"`
	CorrectAnsMin  *float64    `json:"correct_ans_min,omitempty"`
	CorrectAnsMax  *float64    `json:"correct_ans_max,omitempty"`
}

func View(q Question) *QuestionView {
	b := q.Base()
	v := &QuestionView{
		ID:          b.ID,
		SubjectID:   b.SubjectID,
		Type:        q.Type(),
		Question:    b.Question,
		Code:        b.Code,
		Marks:       b.Marks,
		Explanation: b.Explanation,
		CreatedAt:   b.CreatedAt,
	}
	switch q := q.(type) {
	case *MCQQuestion:
		opts, correct, negative := q.Options, q.CorrectAns, q.NegativeMarks
		v.Options, v.CorrectAns, v.NegativeMarks = &opts, &correct, &negative
	case *MSQQuestion:
		opts := q.Options
		v.Options = &opts
		v.CorrectAnswers = append([]OptionKey(nil), q.CorrectAnswers...)
	case *NATQuestion:
		min, max := q.CorrectAnsMin, q.CorrectAnsMax
		v.CorrectAnsMin, v.CorrectAnsMax = &min, &max
	}
	return v
}

// Public returns a copy without correct answers or explanation, for students.
// The MCQ penalty stays visible.
func (v *QuestionView) Public() *QuestionView {
	out := *v
	out.Explanation = nil
	out.CorrectAns = nil
	out.CorrectAnswers = nil
	out.CorrectAnsMin = nil
	out.CorrectAnsMax = nil
	return &out
}

func (v *QuestionView) Key() pagination.Cursor {
	return pagination.Cursor{CreatedAt: v.CreatedAt, ID: v.ID}
}
