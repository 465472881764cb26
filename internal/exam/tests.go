package exam

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/pavelanni/exambank/internal/model"
)

func validateTest(t model.Test) error {
	switch {
	case strings.TrimSpace(t.Title) == "":
		return fmt.Errorf("%w: title is required", ErrInvalid)
	case t.DurationMinutes < 0:
		return fmt.Errorf("%w: duration must not be negative", ErrInvalid)
	case t.PassingScore < 0 || t.PassingScore > 100:
		return fmt.Errorf("%w: passing score must be between 0 and 100", ErrInvalid)
	case t.MaxTabSwitches < 0:
		return fmt.Errorf("%w: max tab switches must not be negative", ErrInvalid)
	}
	return nil
}

// CreateTest stores a new draft test.
func (s *Service) CreateTest(t model.Test) (model.Test, error) {
	t.Title = strings.TrimSpace(t.Title)
	if err := validateTest(t); err != nil {
		return model.Test{}, err
	}
	now := s.now()
	t.ID = s.newID()
	t.Status = model.TestDraft
	t.CreatedAt = now
	t.UpdatedAt = now

	s.mu.Lock()
	s.tests[t.ID] = t
	s.mu.Unlock()

	s.saveTest(t)
	slog.Info("created test", "id", t.ID, "title", t.Title)
	return t, nil
}

// UpdateTest replaces the editable fields of an existing test. Status,
// author and creation time are kept.
func (s *Service) UpdateTest(t model.Test) (model.Test, error) {
	t.Title = strings.TrimSpace(t.Title)
	if err := validateTest(t); err != nil {
		return model.Test{}, err
	}

	s.mu.Lock()
	cur, ok := s.tests[t.ID]
	if !ok {
		s.mu.Unlock()
		return model.Test{}, fmt.Errorf("test %s: %w", t.ID, ErrNotFound)
	}
	t.Status = cur.Status
	t.CreatedBy = cur.CreatedBy
	t.CreatedAt = cur.CreatedAt
	t.UpdatedAt = s.now()
	s.tests[t.ID] = t
	s.mu.Unlock()

	s.saveTest(t)
	return t, nil
}

// GetTest returns a test by id.
func (s *Service) GetTest(id string) (model.Test, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tests[id]
	if !ok {
		return model.Test{}, fmt.Errorf("test %s: %w", id, ErrNotFound)
	}
	return t, nil
}

// ListTests returns all tests, newest first. An empty status lists every test.
func (s *Service) ListTests(status model.TestStatus) []model.Test {
	s.mu.Lock()
	out := make([]model.Test, 0, len(s.tests))
	for _, t := range s.tests {
		if status == "" || t.Status == status {
			out = append(out, t)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// PublishTest makes a test available to candidates. A test without
// questions cannot be published.
func (s *Service) PublishTest(id string) (model.Test, error) {
	return s.setStatus(id, model.TestPublished, func() error {
		if len(s.questions[id]) == 0 {
			return fmt.Errorf("%w: test has no questions", ErrInvalid)
		}
		return nil
	})
}

// UnpublishTest returns a test to draft. Attempts already started can still
// be completed.
func (s *Service) UnpublishTest(id string) (model.Test, error) {
	return s.setStatus(id, model.TestDraft, nil)
}

// setStatus changes a test's status. check, when set, runs under the same
// lock as the change and can veto it.
func (s *Service) setStatus(id string, status model.TestStatus, check func() error) (model.Test, error) {
	s.mu.Lock()
	t, ok := s.tests[id]
	if !ok {
		s.mu.Unlock()
		return model.Test{}, fmt.Errorf("test %s: %w", id, ErrNotFound)
	}
	if check != nil {
		if err := check(); err != nil {
			s.mu.Unlock()
			return model.Test{}, err
		}
	}
	t.Status = status
	t.UpdatedAt = s.now()
	s.tests[id] = t
	s.mu.Unlock()

	s.saveTest(t)
	slog.Info("changed test status", "id", id, "status", status)
	return t, nil
}

// DeleteTest removes a test together with its questions and attempts and
// releases the bank questions it used.
func (s *Service) DeleteTest(id string) error {
	s.mu.Lock()
	if _, ok := s.tests[id]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("test %s: %w", id, ErrNotFound)
	}
	delete(s.tests, id)
	var qids []string
	for _, q := range s.questions[id] {
		qids = append(qids, q.ID)
	}
	delete(s.questions, id)
	var aids []string
	for aid, a := range s.attempts {
		if a.TestID == id {
			aids = append(aids, aid)
			delete(s.attempts, aid)
		}
	}
	s.mu.Unlock()

	released := 0
	if s.bank != nil {
		released = s.bank.UnmarkQuestionsUsed(id)
	}

	if s.persist != nil {
		if len(aids) > 0 {
			if err := s.persist.DeleteAttempts(aids); err != nil {
				slog.Error("failed to persist attempt deletion", "test", id, "error", err)
			}
		}
		s.deleteQuestions(qids)
		if err := s.persist.DeleteTest(id); err != nil {
			slog.Error("failed to persist test deletion", "id", id, "error", err)
		}
	}
	slog.Info("deleted test", "id", id, "questions", len(qids), "attempts", len(aids), "released", released)
	return nil
}
