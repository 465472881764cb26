package exam

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/exambank/internal/model"
	"github.com/pavelanni/exambank/internal/selector"
)

// FromBank converts a bank question into a question snapshot for a test.
// Option-based bank questions (mcq, reasoning, fill) become single-answer
// MCQs with options A to D.
func FromBank(bq model.BankQuestion, testID string, points, negativeMarking float64, now time.Time) model.Question {
	q := model.Question{
		TestID:          testID,
		Text:            bq.Text,
		Difficulty:      bq.Difficulty,
		Topic:           bq.Topic,
		Points:          points,
		NegativeMarking: negativeMarking,
		BankQuestionID:  bq.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	switch {
	case bq.Coding != nil:
		q.Type = model.KindCoding
		q.NegativeMarking = 0
		q.SampleInput = bq.Coding.SampleInput
		q.SampleOutput = bq.Coding.SampleOutput
		q.TestCases = append([]model.TestCase(nil), bq.Coding.TestCases...)
		q.TimeLimit = bq.Coding.TimeLimit
	case bq.MCQ != nil:
		q.Type = model.KindMCQ
		q.Explanation = bq.MCQ.Explanation
		q.Options = make([]model.Option, len(model.OptionLetters))
		for i, letter := range model.OptionLetters {
			q.Options[i] = model.Option{
				ID:        letter,
				Text:      bq.MCQ.Options[i],
				IsCorrect: letter == bq.MCQ.CorrectAnswer,
			}
		}
	}
	return q
}

// PreviewSelection runs a selection against the bank without touching any
// test or usage record.
func (s *Service) PreviewSelection(c selector.Criteria) (selector.Result, error) {
	return s.selector.Select(s.bank, c)
}

// ImportFromBank appends snapshots of the given bank questions to a test and
// records their usage. Unknown ids and questions the test already carries
// are skipped.
func (s *Service) ImportFromBank(testID string, bankIDs []string, points, negativeMarking float64) ([]model.Question, error) {
	if points < 0 || negativeMarking < 0 {
		return nil, fmt.Errorf("%w: points and negative marking must not be negative", ErrInvalid)
	}

	var sources []model.BankQuestion
	seen := make(map[string]bool, len(bankIDs))
	for _, id := range bankIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		bq, ok := s.bank.Get(id)
		if !ok {
			slog.Warn("bank question not found", "id", id, "test", testID)
			continue
		}
		sources = append(sources, bq)
	}

	s.mu.Lock()
	if _, ok := s.tests[testID]; !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("test %s: %w", testID, ErrNotFound)
	}
	onTest := make(map[string]bool)
	for _, q := range s.questions[testID] {
		if q.BankQuestionID != "" {
			onTest[q.BankQuestionID] = true
		}
	}
	now := s.now()
	next := append([]model.Question(nil), s.questions[testID]...)
	var added []model.Question
	var used []string
	for _, bq := range sources {
		if onTest[bq.ID] {
			continue
		}
		q := FromBank(bq, testID, points, negativeMarking, now)
		q.ID = s.newID()
		q.Order = len(next) + 1
		next = append(next, q)
		added = append(added, q)
		used = append(used, bq.ID)
	}
	s.questions[testID] = next
	s.mu.Unlock()

	if len(used) > 0 {
		s.bank.MarkQuestionsUsed(used, testID)
	}
	s.saveQuestions(added)
	slog.Info("imported bank questions", "test", testID, "requested", len(bankIDs), "added", len(added))
	return added, nil
}

// SelectIntoTest selects bank questions for a test and imports them. The
// selection always skips bank questions already used on the test.
func (s *Service) SelectIntoTest(testID string, c selector.Criteria, points, negativeMarking float64) (selector.Result, []model.Question, error) {
	if _, err := s.GetTest(testID); err != nil {
		return selector.Result{}, nil, err
	}
	c.ExamID = testID
	c.AvoidRepetition = true
	res, err := s.selector.Select(s.bank, c)
	if err != nil {
		return selector.Result{}, nil, err
	}
	added, err := s.ImportFromBank(testID, res.IDs(), points, negativeMarking)
	if err != nil {
		return res, nil, err
	}
	return res, added, nil
}
