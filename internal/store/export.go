package store

import (
	"fmt"
	"time"

	"github.com/pavelanni/exambank/internal/model"
)

// ExportTest builds export-ready results for every attempt on a test.
func (s *Store) ExportTest(testID string) (*model.ExamExport, error) {
	t, err := s.GetTest(testID)
	if err != nil {
		return nil, fmt.Errorf("get test: %w", err)
	}
	if t == nil {
		return nil, fmt.Errorf("test %s not found", testID)
	}
	questions, err := s.ListQuestions(testID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	attempts, err := s.ListAttempts(testID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}

	exp := &model.ExamExport{
		TestID:       t.ID,
		Title:        t.Title,
		Subject:      t.Subject,
		PassingScore: t.EffectivePassingScore(),
		NumQuestions: len(questions),
		ExportedAt:   time.Now().UTC(),
		Results:      []model.StudentResult{},
	}
	for _, q := range questions {
		exp.MaxScore += q.Points
	}

	// Attempt number per candidate, in start order.
	attemptCount := make(map[string]int)

	for _, a := range attempts {
		attemptCount[a.Candidate.ID]++

		results := make([]model.QuestionResult, 0, len(questions))
		for _, q := range questions {
			qr := model.QuestionResult{
				Order:      q.Order,
				Text:       q.Text,
				Type:       q.Type,
				Topic:      q.Topic,
				Difficulty: q.Difficulty,
				Points:     q.Points,
			}
			if r, ok := a.Response(q.ID); ok {
				qr.SelectedOptions = r.SelectedOptions
				qr.CodeAnswer = r.CodeAnswer
				qr.IsCorrect = r.IsCorrect
				qr.PointsEarned = r.PointsEarned
			}
			results = append(results, qr)
		}

		exp.Results = append(exp.Results, model.StudentResult{
			AttemptID:        a.ID,
			Candidate:        a.Candidate,
			AttemptNumber:    attemptCount[a.Candidate.ID],
			Status:           a.Status,
			StartedAt:        a.StartedAt,
			CompletedAt:      a.CompletedAt,
			TimeSpentSeconds: a.TimeSpentSeconds,
			TabSwitchCount:   a.TabSwitchCount,
			Score:            a.Score,
			Percentage:       a.Percentage,
			Passed:           a.Passed,
			Questions:        results,
		})
	}
	return exp, nil
}

// ExportAll exports every test.
func (s *Store) ExportAll() ([]model.ExamExport, error) {
	tests, err := s.ListTests()
	if err != nil {
		return nil, fmt.Errorf("list tests: %w", err)
	}
	out := make([]model.ExamExport, 0, len(tests))
	for _, t := range tests {
		exp, err := s.ExportTest(t.ID)
		if err != nil {
			return nil, fmt.Errorf("export test %s: %w", t.ID, err)
		}
		out = append(out, *exp)
	}
	return out, nil
}
