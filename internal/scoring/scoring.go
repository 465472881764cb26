// Package scoring evaluates a finished attempt against its test's questions.
package scoring

import (
	"math"
	"strings"

	"github.com/pavelanni/exambank/internal/model"
)

// Outcome is the frozen result of scoring one attempt.
type Outcome struct {
	Responses  []model.QuestionResponse `json:"responses"`
	RawScore   float64                  `json:"raw_score"` // may be negative
	Score      float64                  `json:"score"`     // never negative
	MaxScore   float64                  `json:"max_score"`
	Percentage int                      `json:"percentage"`
	Passed     bool                     `json:"passed"`
}

// ScoreResponse grades a single response. q is nil when the question no longer
// exists, which grades as incorrect with no points.
//
// Coding answers earn full points when any code was submitted; execution
// results are not consulted. Choice questions require the selected option set
// to equal the correct set exactly; a wrong non-blank answer costs the
// question's negative marking, a blank one costs nothing.
func ScoreResponse(q *model.Question, r model.QuestionResponse) model.QuestionResponse {
	r.IsCorrect = false
	r.PointsEarned = 0
	if q == nil {
		return r
	}

	if q.IsCoding() {
		if strings.TrimSpace(r.CodeAnswer) != "" {
			r.IsCorrect = true
			r.PointsEarned = q.Points
		}
		return r
	}

	correct := make(map[string]bool)
	for _, o := range q.Options {
		if o.IsCorrect {
			correct[o.ID] = true
		}
	}
	selected := make(map[string]bool)
	for _, id := range r.SelectedOptions {
		selected[id] = true
	}

	switch {
	case sameSet(correct, selected):
		r.IsCorrect = true
		r.PointsEarned = q.Points
	case len(selected) > 0:
		r.PointsEarned = -q.NegativeMarking
	}
	return r
}

func sameSet(a, b map[string]bool) bool {
	if len(a) == 0 || len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// Score grades every response and aggregates the attempt. passingScore is a
// percentage; values <= 0 use model.DefaultPassingScore.
func Score(questions []model.Question, responses []model.QuestionResponse, passingScore int) Outcome {
	if passingScore <= 0 {
		passingScore = model.DefaultPassingScore
	}

	byID := make(map[string]*model.Question, len(questions))
	var out Outcome
	for i := range questions {
		byID[questions[i].ID] = &questions[i]
		out.MaxScore += questions[i].Points
	}

	out.Responses = make([]model.QuestionResponse, 0, len(responses))
	for _, r := range responses {
		scored := ScoreResponse(byID[r.QuestionID], r)
		out.RawScore += scored.PointsEarned
		out.Responses = append(out.Responses, scored)
	}

	out.Score = math.Max(0, out.RawScore)
	out.Percentage = Percentage(out.Score, out.MaxScore)
	out.Passed = out.Percentage >= passingScore
	return out
}

// Percentage returns round(score/max*100), or 0 when max is not positive.
func Percentage(score, max float64) int {
	if max <= 0 {
		return 0
	}
	return int(math.Round(math.Max(0, score) / max * 100))
}
