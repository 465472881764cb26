// Package exam owns tests, their questions and candidate attempts.
//
// State lives in memory behind a single mutex and is the source of truth for
// the running process. Every mutation is pushed to a Persister afterwards;
// persistence failures are logged and never undo the in-memory change.
package exam

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/exambank/internal/model"
	"github.com/pavelanni/exambank/internal/selector"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalid          = errors.New("invalid input")
	ErrNotPublished     = errors.New("test is not published")
	ErrAttemptFinalized = errors.New("attempt already finalized")
)

// Persister durably stores exam state.
type Persister interface {
	UpsertTest(t model.Test) error
	DeleteTest(id string) error
	UpsertQuestions(qs []model.Question) error
	DeleteQuestions(ids []string) error
	UpsertAttempt(a model.Attempt) error
	DeleteAttempts(ids []string) error
}

// Bank is the part of the question bank the service relies on.
type Bank interface {
	selector.Source
	Get(id string) (model.BankQuestion, bool)
	MarkQuestionsUsed(ids []string, examID string) int
	UnmarkQuestionsUsed(examID string) int
}

// CodeRunner evaluates code answers against test cases.
type CodeRunner interface {
	Evaluate(ctx context.Context, code, language string, cases []model.TestCase, limit time.Duration) ([]model.TestCaseResult, error)
}

// Config wires the service's collaborators. Only Bank is required.
type Config struct {
	Bank      Bank
	Selector  *selector.Selector
	Runner    CodeRunner
	Persister Persister
	// OnFinalize is called once for every attempt that reaches a final status.
	OnFinalize func(model.Attempt)
	Now        func() time.Time
	NewID      func() string
}

// Service manages tests, questions and attempts.
type Service struct {
	mu        sync.Mutex
	tests     map[string]model.Test
	questions map[string][]model.Question // by test id, sorted by Order
	attempts  map[string]model.Attempt

	bank       Bank
	selector   *selector.Selector
	runner     CodeRunner
	persist    Persister
	onFinalize func(model.Attempt)
	now        func() time.Time
	newID      func() string
}

// New creates an empty service.
func New(cfg Config) *Service {
	s := &Service{
		tests:      make(map[string]model.Test),
		questions:  make(map[string][]model.Question),
		attempts:   make(map[string]model.Attempt),
		bank:       cfg.Bank,
		selector:   cfg.Selector,
		runner:     cfg.Runner,
		persist:    cfg.Persister,
		onFinalize: cfg.OnFinalize,
		now:        cfg.Now,
		newID:      cfg.NewID,
	}
	if s.selector == nil {
		s.selector = selector.New(nil)
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// Load replaces the service state with rows read back from storage.
// Questions and attempts that reference unknown tests are dropped.
func (s *Service) Load(tests []model.Test, questions []model.Question, attempts []model.Attempt) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tests = make(map[string]model.Test, len(tests))
	s.questions = make(map[string][]model.Question)
	s.attempts = make(map[string]model.Attempt, len(attempts))

	for _, t := range tests {
		s.tests[t.ID] = t
	}
	for _, q := range questions {
		if _, ok := s.tests[q.TestID]; ok {
			s.questions[q.TestID] = append(s.questions[q.TestID], q)
		}
	}
	for id, qs := range s.questions {
		sort.SliceStable(qs, func(i, j int) bool { return qs[i].Order < qs[j].Order })
		renumber(qs)
		s.questions[id] = qs
	}
	for _, a := range attempts {
		if _, ok := s.tests[a.TestID]; ok {
			s.attempts[a.ID] = a
		}
	}
	slog.Info("loaded exam state", "tests", len(s.tests), "attempts", len(s.attempts))
}

func renumber(qs []model.Question) {
	for i := range qs {
		qs[i].Order = i + 1
	}
}

func (s *Service) saveTest(t model.Test) {
	if s.persist == nil {
		return
	}
	if err := s.persist.UpsertTest(t); err != nil {
		slog.Error("failed to persist test", "id", t.ID, "error", err)
	}
}

func (s *Service) saveQuestions(qs []model.Question) {
	if s.persist == nil || len(qs) == 0 {
		return
	}
	if err := s.persist.UpsertQuestions(qs); err != nil {
		slog.Error("failed to persist questions", "count", len(qs), "error", err)
	}
}

func (s *Service) deleteQuestions(ids []string) {
	if s.persist == nil || len(ids) == 0 {
		return
	}
	if err := s.persist.DeleteQuestions(ids); err != nil {
		slog.Error("failed to persist question deletion", "count", len(ids), "error", err)
	}
}

func (s *Service) saveAttempt(a model.Attempt) {
	if s.persist == nil {
		return
	}
	if err := s.persist.UpsertAttempt(a); err != nil {
		slog.Error("failed to persist attempt", "id", a.ID, "error", err)
	}
}
