package exam

import (
	"fmt"
	"strings"

	"github.com/pavelanni/exambank/internal/model"
)

func validateQuestion(q model.Question) error {
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("%w: question text is required", ErrInvalid)
	}
	if q.Points < 0 || q.NegativeMarking < 0 {
		return fmt.Errorf("%w: points and negative marking must not be negative", ErrInvalid)
	}
	if q.Difficulty != "" && !q.Difficulty.Valid() {
		return fmt.Errorf("%w: unknown difficulty %q", ErrInvalid, q.Difficulty)
	}

	correct := 0
	ids := make(map[string]bool, len(q.Options))
	for _, o := range q.Options {
		if strings.TrimSpace(o.Text) == "" {
			return fmt.Errorf("%w: option text is required", ErrInvalid)
		}
		if o.ID != "" && ids[o.ID] {
			return fmt.Errorf("%w: duplicate option id %q", ErrInvalid, o.ID)
		}
		ids[o.ID] = true
		if o.IsCorrect {
			correct++
		}
	}

	switch q.Type {
	case model.KindMCQ:
		if len(q.Options) < 2 || correct == 0 {
			return fmt.Errorf("%w: mcq needs at least two options and one correct answer", ErrInvalid)
		}
	case model.KindTrueFalse:
		if len(q.Options) != 2 || correct != 1 {
			return fmt.Errorf("%w: true/false needs two options with exactly one correct", ErrInvalid)
		}
	case model.KindCoding:
		if len(q.Options) > 0 {
			return fmt.Errorf("%w: coding questions have no options", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown question type %q", ErrInvalid, q.Type)
	}
	return nil
}

func (s *Service) fillOptionIDs(q *model.Question) {
	for i := range q.Options {
		if q.Options[i].ID == "" {
			q.Options[i].ID = s.newID()
		}
	}
}

// AddQuestion appends a question to a test.
func (s *Service) AddQuestion(testID string, q model.Question) (model.Question, error) {
	if err := validateQuestion(q); err != nil {
		return model.Question{}, err
	}

	s.mu.Lock()
	if _, ok := s.tests[testID]; !ok {
		s.mu.Unlock()
		return model.Question{}, fmt.Errorf("test %s: %w", testID, ErrNotFound)
	}
	now := s.now()
	q.ID = s.newID()
	q.TestID = testID
	q.Order = len(s.questions[testID]) + 1
	q.CreatedAt = now
	q.UpdatedAt = now
	s.fillOptionIDs(&q)
	s.questions[testID] = append(s.questions[testID], q)
	s.mu.Unlock()

	s.saveQuestions([]model.Question{q})
	return q, nil
}

// UpdateQuestion replaces the content of a question. Its test, position,
// bank origin and creation time are kept.
func (s *Service) UpdateQuestion(q model.Question) (model.Question, error) {
	if err := validateQuestion(q); err != nil {
		return model.Question{}, err
	}

	s.mu.Lock()
	testID, idx := s.findQuestion(q.ID)
	if idx < 0 {
		s.mu.Unlock()
		return model.Question{}, fmt.Errorf("question %s: %w", q.ID, ErrNotFound)
	}
	cur := s.questions[testID][idx]
	q.TestID = cur.TestID
	q.Order = cur.Order
	q.BankQuestionID = cur.BankQuestionID
	q.CreatedAt = cur.CreatedAt
	q.UpdatedAt = s.now()
	s.fillOptionIDs(&q)

	next := append([]model.Question(nil), s.questions[testID]...)
	next[idx] = q
	s.questions[testID] = next
	s.mu.Unlock()

	s.saveQuestions([]model.Question{q})
	return q, nil
}

// findQuestion must be called with s.mu held.
func (s *Service) findQuestion(id string) (testID string, idx int) {
	for tid, qs := range s.questions {
		for i, q := range qs {
			if q.ID == id {
				return tid, i
			}
		}
	}
	return "", -1
}

// DeleteQuestion removes a question and closes the gap in the ordering.
func (s *Service) DeleteQuestion(id string) error {
	s.mu.Lock()
	testID, idx := s.findQuestion(id)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("question %s: %w", id, ErrNotFound)
	}
	cur := s.questions[testID]
	next := make([]model.Question, 0, len(cur)-1)
	next = append(next, cur[:idx]...)
	next = append(next, cur[idx+1:]...)
	renumber(next)
	s.questions[testID] = next
	moved := append([]model.Question(nil), next[idx:]...)
	s.mu.Unlock()

	s.deleteQuestions([]string{id})
	s.saveQuestions(moved)
	return nil
}

// ReorderQuestions sets the presentation order of a test's questions. ids
// must list every question of the test exactly once.
func (s *Service) ReorderQuestions(testID string, ids []string) ([]model.Question, error) {
	s.mu.Lock()
	if _, ok := s.tests[testID]; !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("test %s: %w", testID, ErrNotFound)
	}
	cur := s.questions[testID]
	byID := make(map[string]model.Question, len(cur))
	for _, q := range cur {
		byID[q.ID] = q
	}
	if len(ids) != len(cur) {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: expected %d question ids, got %d", ErrInvalid, len(cur), len(ids))
	}
	next := make([]model.Question, 0, len(ids))
	for _, id := range ids {
		q, ok := byID[id]
		if !ok {
			s.mu.Unlock()
			return nil, fmt.Errorf("%w: question %s is not on this test or listed twice", ErrInvalid, id)
		}
		delete(byID, id)
		next = append(next, q)
	}
	renumber(next)
	s.questions[testID] = next
	out := append([]model.Question(nil), next...)
	s.mu.Unlock()

	s.saveQuestions(out)
	return out, nil
}

// Questions returns the questions of a test in presentation order.
func (s *Service) Questions(testID string) ([]model.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tests[testID]; !ok {
		return nil, fmt.Errorf("test %s: %w", testID, ErrNotFound)
	}
	return append([]model.Question{}, s.questions[testID]...), nil
}

// StudentQuestions returns the questions of a test with answer keys and
// hidden test cases removed.
func (s *Service) StudentQuestions(testID string) ([]model.Question, error) {
	qs, err := s.Questions(testID)
	if err != nil {
		return nil, err
	}
	for i := range qs {
		qs[i] = qs[i].StudentView()
	}
	return qs, nil
}

// MaxScore returns the sum of the points of a test's questions.
func (s *Service) MaxScore(testID string) (float64, error) {
	qs, err := s.Questions(testID)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, q := range qs {
		total += q.Points
	}
	return total, nil
}
