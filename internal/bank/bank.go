// Package bank holds the in-memory question bank and its usage tracking.
package bank

import (
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/pavelanni/exambank/internal/model"
)

// Persister durably stores bank questions. Writes are best effort: the bank
// logs failures and keeps its in-memory state.
type Persister interface {
	UpsertBankQuestions(qs []model.BankQuestion) error
	DeleteBankQuestions(ids []string) error
}

// Store owns the ordered collection of bank questions keyed by id.
// Every mutation replaces the slice under the lock, so snapshots handed out
// by All or Filter are never modified afterwards.
type Store struct {
	mu        sync.Mutex
	questions []model.BankQuestion
	persist   Persister
}

// New creates an empty bank. p may be nil for a purely in-memory bank.
func New(p Persister) *Store {
	return &Store{persist: p}
}

// Load replaces the bank contents without persisting, typically with rows
// read back from storage at startup.
func (s *Store) Load(qs []model.BankQuestion) {
	next := make([]model.BankQuestion, 0, len(qs))
	for _, q := range qs {
		next = append(next, q.Clone())
	}
	s.mu.Lock()
	s.questions = next
	s.mu.Unlock()
}

// Len returns the number of questions in the bank.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.questions)
}

// All returns a snapshot of every question in insertion order.
func (s *Store) All() []model.BankQuestion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.questions
}

// Get returns the question with the given id.
func (s *Store) Get(id string) (model.BankQuestion, bool) {
	for _, q := range s.All() {
		if q.ID == id {
			return q.Clone(), true
		}
	}
	return model.BankQuestion{}, false
}

// AddQuestions merges a batch into the bank. Items whose id is already present
// (in the bank or earlier in the batch) are skipped without error.
// It returns the questions that were actually added.
func (s *Store) AddQuestions(batch []model.BankQuestion) []model.BankQuestion {
	s.mu.Lock()
	existing := make(map[string]bool, len(s.questions))
	for _, q := range s.questions {
		existing[q.ID] = true
	}
	var added []model.BankQuestion
	for _, q := range batch {
		if q.ID == "" || existing[q.ID] {
			continue
		}
		existing[q.ID] = true
		c := q.Clone()
		if c.UsedInExams == nil {
			c.UsedInExams = []string{}
		}
		added = append(added, c)
	}
	if len(added) > 0 {
		next := make([]model.BankQuestion, 0, len(s.questions)+len(added))
		next = append(next, s.questions...)
		next = append(next, added...)
		s.questions = next
	}
	s.mu.Unlock()

	if len(added) > 0 {
		s.save(added)
		slog.Info("added bank questions", "added", len(added), "skipped", len(batch)-len(added))
	}
	return added
}

// RemoveQuestion deletes one question. Tests that already embed a converted
// copy are unaffected.
func (s *Store) RemoveQuestion(id string) bool {
	return s.RemoveQuestions([]string{id}) == 1
}

// RemoveQuestions deletes every question whose id is listed and returns how
// many were removed.
func (s *Store) RemoveQuestions(ids []string) int {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	s.mu.Lock()
	next := make([]model.BankQuestion, 0, len(s.questions))
	var removed []string
	for _, q := range s.questions {
		if drop[q.ID] {
			removed = append(removed, q.ID)
			continue
		}
		next = append(next, q)
	}
	s.questions = next
	s.mu.Unlock()

	if len(removed) > 0 && s.persist != nil {
		if err := s.persist.DeleteBankQuestions(removed); err != nil {
			slog.Error("failed to persist bank deletion", "count", len(removed), "error", err)
		}
	}
	return len(removed)
}

// MarkQuestionsUsed records that the listed questions were placed on examID.
// The exam id is appended once, but the usage counter grows on every call.
func (s *Store) MarkQuestionsUsed(ids []string, examID string) int {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	return s.update(func(q *model.BankQuestion) bool {
		if !want[q.ID] {
			return false
		}
		if !q.UsedIn(examID) {
			q.UsedInExams = append(q.UsedInExams, examID)
		}
		q.UsageCount++
		return true
	})
}

// UnmarkQuestionsUsed removes examID from the usage list of every question
// that carries it and decrements their counter, never below zero. Questions
// not used in examID keep their counter.
func (s *Store) UnmarkQuestionsUsed(examID string) int {
	return s.update(func(q *model.BankQuestion) bool {
		if !q.UsedIn(examID) {
			return false
		}
		kept := q.UsedInExams[:0]
		for _, id := range q.UsedInExams {
			if id != examID {
				kept = append(kept, id)
			}
		}
		q.UsedInExams = kept
		if q.UsageCount > 0 {
			q.UsageCount--
		}
		return true
	})
}

// ResetAllUsage clears usage tracking on every question.
func (s *Store) ResetAllUsage() int {
	return s.update(func(q *model.BankQuestion) bool {
		if len(q.UsedInExams) == 0 && q.UsageCount == 0 {
			return false
		}
		q.UsedInExams = []string{}
		q.UsageCount = 0
		return true
	})
}

// SetExplanation stores an explanation on an MCQ-shaped question.
func (s *Store) SetExplanation(id, explanation string) bool {
	return s.update(func(q *model.BankQuestion) bool {
		if q.ID != id || q.MCQ == nil {
			return false
		}
		q.MCQ.Explanation = explanation
		return true
	}) == 1
}

// update applies fn to a private copy of every question and swaps in the new
// collection. fn reports whether it changed the question.
func (s *Store) update(fn func(q *model.BankQuestion) bool) int {
	s.mu.Lock()
	next := make([]model.BankQuestion, len(s.questions))
	var changed []model.BankQuestion
	for i, q := range s.questions {
		c := q.Clone()
		if fn(&c) {
			changed = append(changed, c)
			next[i] = c
			continue
		}
		next[i] = q
	}
	s.questions = next
	s.mu.Unlock()

	if len(changed) > 0 {
		s.save(changed)
	}
	return len(changed)
}

func (s *Store) save(qs []model.BankQuestion) {
	if s.persist == nil {
		return
	}
	if err := s.persist.UpsertBankQuestions(qs); err != nil {
		slog.Error("failed to persist bank questions", "count", len(qs), "error", err)
	}
}

// Subjects returns the distinct subjects in the bank, sorted.
func (s *Store) Subjects() []string {
	seen := make(map[string]bool)
	var out []string
	for _, q := range s.All() {
		if !seen[q.Subject] {
			seen[q.Subject] = true
			out = append(out, q.Subject)
		}
	}
	sort.Strings(out)
	return out
}

// Topics returns the distinct topics of a subject (all subjects when empty), sorted.
func (s *Store) Topics(subject string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, q := range s.All() {
		if subject != "" && !strings.EqualFold(q.Subject, subject) {
			continue
		}
		if !seen[q.Topic] {
			seen[q.Topic] = true
			out = append(out, q.Topic)
		}
	}
	sort.Strings(out)
	return out
}
