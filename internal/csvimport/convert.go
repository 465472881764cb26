package csvimport

import (
	"time"

	"github.com/pavelanni/exambank/internal/model"
)

var difficultyTable = map[string]model.Difficulty{
	"Easy":   model.DifficultyEasy,
	"Medium": model.DifficultyMedium,
	"Hard":   model.DifficultyHard,
}

// NormalizeDifficulty maps a CSV difficulty label to the bank tier.
// Unknown labels fall back to medium.
func NormalizeDifficulty(label string) model.Difficulty {
	if d, ok := difficultyTable[label]; ok {
		return d
	}
	return model.DifficultyMedium
}

// Convert maps a validated row onto its canonical bank shape.
func Convert(r ValidRow, now time.Time) model.BankQuestion {
	q := model.BankQuestion{
		ID:          r.ID,
		Subject:     r.Subject,
		Topic:       r.Topic,
		Difficulty:  NormalizeDifficulty(r.Difficulty),
		Type:        r.Type,
		Text:        r.Question,
		UsedInExams: []string{},
		CreatedAt:   now,
	}
	if r.Type == model.BankTypeCoding {
		tcs := r.TestCases
		if tcs == nil {
			tcs = []model.TestCase{}
		}
		q.Coding = &model.CodingContent{
			SampleInput:  r.SampleInput,
			SampleOutput: r.SampleOutput,
			TestCases:    tcs,
			TimeLimit:    r.TimeLimit,
		}
		return q
	}
	q.MCQ = &model.MCQContent{
		Options:       r.Options,
		CorrectAnswer: r.CorrectAnswer,
		Explanation:   r.Explanation,
	}
	return q
}
