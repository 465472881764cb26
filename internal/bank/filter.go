package bank

import (
	"strings"

	"github.com/pavelanni/exambank/internal/model"
)

// Usage narrows a filter to used or unused questions.
type Usage string

const (
	UsageAny    Usage = ""
	UsageUsed   Usage = "used"
	UsageUnused Usage = "unused"
)

// Filter selects bank questions. Zero-valued fields do not filter.
type Filter struct {
	Subject    string                 // case-insensitive exact match
	Topics     []string               // case-insensitive, any of
	Difficulty model.Difficulty       // exact tier
	Type       model.BankQuestionType // exact type
	Search     string                 // case-insensitive substring of id, text or topic
	Usage      Usage
	ExcludeFor string // drop questions already used in this exam
}

// Match reports whether q passes every constraint of f.
func (f Filter) Match(q model.BankQuestion) bool {
	if f.Subject != "" && !strings.EqualFold(q.Subject, f.Subject) {
		return false
	}
	if len(f.Topics) > 0 && !matchTopic(q.Topic, f.Topics) {
		return false
	}
	if f.Difficulty != "" && q.Difficulty != f.Difficulty {
		return false
	}
	if f.Type != "" && q.Type != f.Type {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(q.Text), needle) &&
			!strings.Contains(strings.ToLower(q.ID), needle) &&
			!strings.Contains(strings.ToLower(q.Topic), needle) {
			return false
		}
	}
	switch f.Usage {
	case UsageUsed:
		if len(q.UsedInExams) == 0 {
			return false
		}
	case UsageUnused:
		if len(q.UsedInExams) > 0 {
			return false
		}
	}
	if f.ExcludeFor != "" && q.UsedIn(f.ExcludeFor) {
		return false
	}
	return true
}

func matchTopic(topic string, topics []string) bool {
	for _, t := range topics {
		if strings.EqualFold(topic, strings.TrimSpace(t)) {
			return true
		}
	}
	return false
}

// Filter returns the questions matching f in bank order.
func (s *Store) Filter(f Filter) []model.BankQuestion {
	var out []model.BankQuestion
	for _, q := range s.All() {
		if f.Match(q) {
			out = append(out, q)
		}
	}
	return out
}
