package exam

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/pavelanni/exambank/internal/model"
	"github.com/pavelanni/exambank/internal/runner"
	"github.com/pavelanni/exambank/internal/scoring"
)

// deadlineGrace is added to the test duration before an attempt counts as
// timed out, to absorb network latency on the final submission.
const deadlineGrace = 30 * time.Second

// Deadline returns when an attempt must be submitted, or the zero time for
// untimed tests.
func Deadline(a model.Attempt, t model.Test) time.Time {
	if t.DurationMinutes <= 0 {
		return time.Time{}
	}
	return a.StartedAt.Add(t.Duration())
}

func overdue(a model.Attempt, t model.Test, now time.Time) bool {
	d := Deadline(a, t)
	return !d.IsZero() && now.After(d.Add(deadlineGrace))
}

// StartAttempt opens an attempt on a published test. A candidate that already
// has an attempt in progress on the test gets that attempt back.
func (s *Service) StartAttempt(testID string, c model.Candidate) (model.Attempt, error) {
	if strings.TrimSpace(c.ID) == "" {
		return model.Attempt{}, fmt.Errorf("%w: candidate id is required", ErrInvalid)
	}

	s.mu.Lock()
	t, ok := s.tests[testID]
	if !ok {
		s.mu.Unlock()
		return model.Attempt{}, fmt.Errorf("test %s: %w", testID, ErrNotFound)
	}
	if t.Status != model.TestPublished {
		s.mu.Unlock()
		return model.Attempt{}, ErrNotPublished
	}
	for _, a := range s.attempts {
		if a.TestID == testID && a.Candidate.ID == c.ID && a.Status == model.AttemptInProgress {
			s.mu.Unlock()
			return a.Clone(), nil
		}
	}

	a := model.Attempt{
		ID:        s.newID(),
		TestID:    testID,
		Candidate: c,
		Responses: []model.QuestionResponse{},
		Status:    model.AttemptInProgress,
		StartedAt: s.now(),
	}
	s.attempts[a.ID] = a
	s.mu.Unlock()

	s.saveAttempt(a)
	slog.Info("started attempt", "id", a.ID, "test", testID, "candidate", c.ID)
	return a.Clone(), nil
}

// GetAttempt returns an attempt by id.
func (s *Service) GetAttempt(id string) (model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok {
		return model.Attempt{}, fmt.Errorf("attempt %s: %w", id, ErrNotFound)
	}
	return a.Clone(), nil
}

// ListAttempts returns the attempts of a test, oldest first. An empty
// testID lists every attempt.
func (s *Service) ListAttempts(testID string) []model.Attempt {
	s.mu.Lock()
	out := make([]model.Attempt, 0)
	for _, a := range s.attempts {
		if testID == "" || a.TestID == testID {
			out = append(out, a.Clone())
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// openAttempt returns an in-progress attempt and its test, finalizing it as
// timed out first when its deadline has passed. Must be called with s.mu
// held; a non-nil finalized attempt must be handed to s.finalized after
// unlocking.
func (s *Service) openAttempt(id string) (model.Attempt, model.Test, *model.Attempt, error) {
	a, ok := s.attempts[id]
	if !ok {
		return model.Attempt{}, model.Test{}, nil, fmt.Errorf("attempt %s: %w", id, ErrNotFound)
	}
	t := s.tests[a.TestID]
	if a.Status.IsFinal() {
		return a, t, nil, ErrAttemptFinalized
	}
	if overdue(a, t, s.now()) {
		done := s.finalizeLocked(a, t, model.AttemptTimedOut)
		return done, t, &done, ErrAttemptFinalized
	}
	return a, t, nil, nil
}

// RecordResponse stores the candidate's current answer to one question,
// replacing any earlier answer. Grading happens on completion.
func (s *Service) RecordResponse(attemptID string, r model.QuestionResponse) (model.Attempt, error) {
	s.mu.Lock()
	a, _, done, err := s.openAttempt(attemptID)
	if err != nil {
		s.mu.Unlock()
		s.finalized(done)
		return a.Clone(), err
	}
	if !s.hasQuestion(a.TestID, r.QuestionID) {
		s.mu.Unlock()
		return model.Attempt{}, fmt.Errorf("question %s: %w", r.QuestionID, ErrNotFound)
	}

	r.IsCorrect = false
	r.PointsEarned = 0
	if r.SelectedOptions == nil {
		r.SelectedOptions = []string{}
	}
	a = a.Clone()
	if prev, ok := a.Response(r.QuestionID); ok && prev.CodeAnswer == r.CodeAnswer {
		r.TestCaseResults = prev.TestCaseResults
	} else {
		r.TestCaseResults = nil
	}
	a.Responses = upsertResponse(a.Responses, r)
	s.attempts[a.ID] = a
	s.mu.Unlock()

	s.saveAttempt(a)
	return a.Clone(), nil
}

// hasQuestion must be called with s.mu held.
func (s *Service) hasQuestion(testID, questionID string) bool {
	for _, q := range s.questions[testID] {
		if q.ID == questionID {
			return true
		}
	}
	return false
}

func upsertResponse(rs []model.QuestionResponse, r model.QuestionResponse) []model.QuestionResponse {
	for i := range rs {
		if rs[i].QuestionID == r.QuestionID {
			rs[i] = r
			return rs
		}
	}
	return append(rs, r)
}

// RecordTabSwitch counts a focus loss. Exceeding the test's tab switch limit
// finalizes the attempt as abandoned.
func (s *Service) RecordTabSwitch(attemptID string) (model.Attempt, error) {
	s.mu.Lock()
	a, t, done, err := s.openAttempt(attemptID)
	if err != nil {
		s.mu.Unlock()
		s.finalized(done)
		return a.Clone(), err
	}
	a = a.Clone()
	a.TabSwitchCount++
	if t.MaxTabSwitches > 0 && a.TabSwitchCount > t.MaxTabSwitches {
		a = s.finalizeLocked(a, t, model.AttemptAbandoned)
		s.mu.Unlock()
		s.finalized(&a)
		slog.Warn("attempt abandoned after tab switches", "id", a.ID, "switches", a.TabSwitchCount)
		return a.Clone(), nil
	}
	s.attempts[a.ID] = a
	s.mu.Unlock()

	s.saveAttempt(a)
	return a.Clone(), nil
}

// CompleteAttempt scores and finalizes an attempt with the given final
// status. An attempt is finalized exactly once; later calls fail with
// ErrAttemptFinalized. A completion that arrives after the deadline is
// recorded as timed out.
func (s *Service) CompleteAttempt(attemptID string, status model.AttemptStatus) (model.Attempt, error) {
	if !status.IsFinal() {
		return model.Attempt{}, fmt.Errorf("%w: %q is not a final status", ErrInvalid, status)
	}

	s.mu.Lock()
	a, ok := s.attempts[attemptID]
	if !ok {
		s.mu.Unlock()
		return model.Attempt{}, fmt.Errorf("attempt %s: %w", attemptID, ErrNotFound)
	}
	if a.Status.IsFinal() {
		s.mu.Unlock()
		return a.Clone(), ErrAttemptFinalized
	}
	a = s.finalizeLocked(a, s.tests[a.TestID], status)
	s.mu.Unlock()

	s.finalized(&a)
	return a.Clone(), nil
}

// ExpireAttempts finalizes every in-progress attempt whose deadline has
// passed and returns how many were closed.
func (s *Service) ExpireAttempts() int {
	s.mu.Lock()
	now := s.now()
	var done []model.Attempt
	for _, a := range s.attempts {
		if a.Status != model.AttemptInProgress {
			continue
		}
		t := s.tests[a.TestID]
		if overdue(a, t, now) {
			done = append(done, s.finalizeLocked(a, t, model.AttemptTimedOut))
		}
	}
	s.mu.Unlock()

	for i := range done {
		s.finalized(&done[i])
	}
	if len(done) > 0 {
		slog.Info("expired attempts", "count", len(done))
	}
	return len(done)
}

// finalizeLocked scores a and stores it with a final status. Must be called
// with s.mu held.
func (s *Service) finalizeLocked(a model.Attempt, t model.Test, status model.AttemptStatus) model.Attempt {
	now := s.now()
	if status == model.AttemptCompleted && overdue(a, t, now) {
		status = model.AttemptTimedOut
	}

	out := scoring.Score(s.questions[a.TestID], a.Responses, t.EffectivePassingScore())
	a = a.Clone()
	a.Responses = out.Responses
	a.Score = out.Score
	a.MaxScore = out.MaxScore
	a.Percentage = out.Percentage
	a.Passed = out.Passed
	a.Status = status
	a.CompletedAt = &now
	a.TimeSpentSeconds = int(now.Sub(a.StartedAt).Seconds())
	if d := t.Duration(); d > 0 && a.TimeSpentSeconds > int(d.Seconds()) {
		a.TimeSpentSeconds = int(d.Seconds())
	}
	s.attempts[a.ID] = a
	return a
}

// finalized persists and reports a freshly finalized attempt. Must be called
// without s.mu held.
func (s *Service) finalized(a *model.Attempt) {
	if a == nil {
		return
	}
	s.saveAttempt(*a)
	slog.Info("finalized attempt", "id", a.ID, "test", a.TestID, "status", a.Status,
		"score", a.Score, "max_score", a.MaxScore, "percentage", a.Percentage, "passed", a.Passed)
	if s.onFinalize != nil {
		s.onFinalize(a.Clone())
	}
}

// RunCode executes a code answer for a coding question. With full set it runs
// every test case of the question, otherwise only the sample. Results are
// stored on the response for review; they do not affect scoring. Output of
// hidden test cases is withheld from the returned results.
func (s *Service) RunCode(ctx context.Context, attemptID, questionID, code, language string, full bool) ([]model.TestCaseResult, error) {
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("%w: code is required", ErrInvalid)
	}
	if s.runner == nil {
		return nil, runner.ErrUnavailable
	}

	s.mu.Lock()
	a, _, done, err := s.openAttempt(attemptID)
	if err != nil {
		s.mu.Unlock()
		s.finalized(done)
		return nil, err
	}
	var q model.Question
	found := false
	for _, cand := range s.questions[a.TestID] {
		if cand.ID == questionID {
			q, found = cand, true
			break
		}
	}
	s.mu.Unlock()

	if !found {
		return nil, fmt.Errorf("question %s: %w", questionID, ErrNotFound)
	}
	if !q.IsCoding() {
		return nil, fmt.Errorf("%w: question %s is not a coding question", ErrInvalid, questionID)
	}

	cases := []model.TestCase{{ID: "sample", Input: q.SampleInput, ExpectedOutput: q.SampleOutput}}
	if full && len(q.TestCases) > 0 {
		cases = q.TestCases
	}
	limit := time.Duration(q.TimeLimit) * time.Second

	results, err := s.runner.Evaluate(ctx, code, language, cases, limit)
	if err != nil {
		return nil, fmt.Errorf("run code: %w", err)
	}

	s.mu.Lock()
	cur, ok := s.attempts[attemptID]
	if ok && cur.Status == model.AttemptInProgress {
		cur = cur.Clone()
		r, _ := cur.Response(questionID)
		r.QuestionID = questionID
		r.CodeAnswer = code
		r.Language = language
		r.TestCaseResults = results
		if r.SelectedOptions == nil {
			r.SelectedOptions = []string{}
		}
		cur.Responses = upsertResponse(cur.Responses, r)
		s.attempts[attemptID] = cur
	}
	s.mu.Unlock()
	if ok && cur.Status == model.AttemptInProgress {
		s.saveAttempt(cur)
	}

	hidden := make(map[string]bool)
	for _, tc := range cases {
		hidden[tc.ID] = tc.IsHidden
	}
	out := make([]model.TestCaseResult, len(results))
	for i, r := range results {
		if hidden[r.TestCaseID] {
			r.Stdout = ""
			r.Stderr = ""
		}
		out[i] = r
	}
	return out, nil
}
