// Package scoring turns a student's response to a single question into an awarded score.
// Every function here is pure; persisting results is the caller's job.
package scoring

import (
	"math"
	"strconv"
	"strings"

	"github.com/gateprep/exam-service/internal/models"
)

// Response is the student's answer to one question. Only the field matching the
// question type is consulted; a nil or empty value means the question was not attempted.
type Response struct {
	Option  *models.OptionKey
	Numeric *string
	Options []models.OptionKey
}

// FromStudentResponse adapts a stored response row. A nil row yields an empty Response.
func FromStudentResponse(r *models.StudentResponse) Response {
	if r == nil {
		return Response{}
	}
	var out Response
	switch r.QuestionType {
	case models.QuestionMCQ:
		out.Option = r.MCQResponse
	case models.QuestionNAT:
		if r.NATResponse != nil {
			s := strconv.FormatFloat(*r.NATResponse, 'f', -1, 64)
			out.Numeric = &s
		}
	case models.QuestionMSQ:
		out.Options = r.MSQResponse
	}
	return out
}

type Result struct {
	Score     float64 `json:"score"`
	IsCorrect bool    `json:"is_correct"`
	Attempted bool    `json:"attempted"`
}

// Evaluate scores r against q.
func Evaluate(q models.Question, r Response) Result {
	res := Result{Score: Score(q, r)}
	res.IsCorrect = res.Score > 0
	switch q.(type) {
	case *models.MCQQuestion:
		res.Attempted = r.Option != nil && *r.Option != ""
	case *models.NATQuestion:
		res.Attempted = r.Numeric != nil && strings.TrimSpace(*r.Numeric) != ""
	case *models.MSQQuestion:
		res.Attempted = len(r.Options) > 0
	}
	return res
}

// Score dispatches on the concrete question kind. Unknown kinds score zero.
func Score(q models.Question, r Response) float64 {
	switch v := q.(type) {
	case *models.MCQQuestion:
		return MCQ(v.Marks, v.CorrectAns, r.Option, v.NegativeMarks)
	case *models.NATQuestion:
		return NAT(v.Marks, v.CorrectAnsMin, v.CorrectAnsMax, r.Numeric)
	case *models.MSQQuestion:
		return MSQ(v.Marks, v.CorrectAnswers, r.Options)
	}
	return 0
}

// MCQ awards marks for the correct option and subtracts the magnitude of
// negativeMarks for any other selection.
func MCQ(marks int, correct models.OptionKey, response *models.OptionKey, negativeMarks float64) float64 {
	if response == nil || *response == "" {
		return 0
	}
	if *response == correct {
		return float64(marks)
	}
	return -math.Abs(negativeMarks)
}

// NAT awards marks when the response lies in [min, max]. Unparseable input scores zero.
func NAT(marks int, min, max float64, response *string) float64 {
	if response == nil {
		return 0
	}
	raw := strings.TrimSpace(*response)
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	if v >= min && v <= max {
		return float64(marks)
	}
	return 0
}

// MSQ awards marks only when the selected set equals the correct set.
func MSQ(marks int, correct []models.OptionKey, response []models.OptionKey) float64 {
	if len(response) == 0 {
		return 0
	}
	want := toSet(correct)
	got := toSet(response)
	if len(want) == 0 || len(want) != len(got) {
		return 0
	}
	for k := range got {
		if _, ok := want[k]; !ok {
			return 0
		}
	}
	return float64(marks)
}

func toSet(keys []models.OptionKey) map[models.OptionKey]struct{} {
	set := make(map[models.OptionKey]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

// Tally accumulates per-question scores into an attempt total.
type Tally struct {
	Total   float64 `json:"total_score"`
	Max     float64 `json:"max_score"`
	Scored  int     `json:"scored"`
	Skipped int     `json:"skipped"`
}

// Add records a resolved question worth marks that was awarded score.
func (t *Tally) Add(marks int, score float64) {
	t.Total = Round(t.Total + score)
	t.Max = Round(t.Max + float64(marks))
	t.Scored++
}

// Skip records a question reference that could not be resolved. It contributes nothing.
func (t *Tally) Skip() {
	t.Skipped++
}

// Round rounds to two decimal places, the precision scores are stored at.
func Round(v float64) float64 {
	return math.Round(v*100) / 100
}
