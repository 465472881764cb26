// Package selector draws exam questions from the bank with stratified sampling.
package selector

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/pavelanni/exambank/internal/bank"
	"github.com/pavelanni/exambank/internal/model"
)

// ErrInvalidCriteria is returned for requests that cannot be evaluated at all.
var ErrInvalidCriteria = errors.New("invalid selection criteria")

// DifficultyMixed requests the 30/50/20 easy/medium/hard split.
const DifficultyMixed = "mixed"

// Split ratios for mixed selections; medium takes the remainder.
const (
	easyShare = 0.3
	hardShare = 0.2
)

// Warning codes, also used as translation message IDs.
const (
	WarnNoMatches    = "SelectNoMatches"
	WarnInsufficient = "SelectInsufficient"
)

// Source provides the questions to select from.
type Source interface {
	Filter(f bank.Filter) []model.BankQuestion
}

// Criteria describes what to select.
type Criteria struct {
	Subject         string   `json:"subject"`
	Topics          []string `json:"topics,omitempty"`
	Difficulty      string   `json:"difficulty"` // easy, medium, hard or mixed
	Count           int      `json:"count"`
	ExamID          string   `json:"exam_id,omitempty"`
	AvoidRepetition bool     `json:"avoid_repetition"`
}

// Result is the outcome of a selection. Success is false whenever fewer
// questions than requested were found; the partial selection is still usable.
type Result struct {
	Questions      []model.BankQuestion     `json:"questions"`
	RequestedCount int                      `json:"requested_count"`
	SelectedCount  int                      `json:"selected_count"`
	AvailablePool  int                      `json:"available_pool"`
	Breakdown      map[model.Difficulty]int `json:"breakdown"`
	Success        bool                     `json:"success"`
	Warning        string                   `json:"warning,omitempty"`
	WarningCode    string                   `json:"warning_code,omitempty"`
}

// IDs returns the ids of the selected questions in presentation order.
func (r Result) IDs() []string {
	ids := make([]string, len(r.Questions))
	for i, q := range r.Questions {
		ids[i] = q.ID
	}
	return ids
}

// Selector performs random selections. It is safe for concurrent use.
type Selector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a selector. A nil source seeds from the clock; tests pass a
// fixed source for reproducible draws.
func New(src rand.Source) *Selector {
	if src == nil {
		now := uint64(time.Now().UnixNano())
		src = rand.NewPCG(now, now>>1|1)
	}
	return &Selector{rng: rand.New(src)}
}

// Split returns the mixed-difficulty targets for count. The three values
// always add up to count.
func Split(count int) (easy, medium, hard int) {
	easy = int(math.Round(float64(count) * easyShare))
	hard = int(math.Round(float64(count) * hardShare))
	medium = count - easy - hard
	return easy, medium, hard
}

func (c Criteria) validate() error {
	if strings.TrimSpace(c.Subject) == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalidCriteria)
	}
	if c.Count <= 0 {
		return fmt.Errorf("%w: count must be positive", ErrInvalidCriteria)
	}
	switch c.Difficulty {
	case DifficultyMixed, string(model.DifficultyEasy), string(model.DifficultyMedium), string(model.DifficultyHard):
	default:
		return fmt.Errorf("%w: unknown difficulty %q", ErrInvalidCriteria, c.Difficulty)
	}
	if c.AvoidRepetition && c.ExamID == "" {
		return fmt.Errorf("%w: avoid_repetition needs an exam id", ErrInvalidCriteria)
	}
	return nil
}

// Select draws questions from src. It never marks usage; callers record
// accepted selections with bank.Store.MarkQuestionsUsed.
func (s *Selector) Select(src Source, c Criteria) (Result, error) {
	c.Difficulty = strings.ToLower(strings.TrimSpace(c.Difficulty))
	if err := c.validate(); err != nil {
		return Result{}, err
	}

	f := bank.Filter{Subject: strings.TrimSpace(c.Subject), Topics: c.Topics}
	if c.AvoidRepetition {
		f.ExcludeFor = c.ExamID
	}
	if c.Difficulty != DifficultyMixed {
		f.Difficulty = model.Difficulty(c.Difficulty)
	}
	pool := src.Filter(f)

	res := Result{
		Questions:      []model.BankQuestion{},
		RequestedCount: c.Count,
		AvailablePool:  len(pool),
		Breakdown:      make(map[model.Difficulty]int),
	}
	if len(pool) == 0 {
		res.WarningCode = WarnNoMatches
		res.Warning = "no questions match the selection criteria"
		return res, nil
	}

	s.mu.Lock()
	if c.Difficulty == DifficultyMixed {
		res.Questions = s.mixed(pool, c.Count)
	} else {
		res.Questions = s.take(pool, c.Count)
	}
	s.mu.Unlock()

	res.SelectedCount = len(res.Questions)
	for _, q := range res.Questions {
		res.Breakdown[q.Difficulty]++
	}
	res.Success = res.SelectedCount == c.Count
	if !res.Success {
		res.WarningCode = WarnInsufficient
		res.Warning = fmt.Sprintf("only %d of %d requested questions are available", res.SelectedCount, c.Count)
	}
	return res, nil
}

// take shuffles a copy of pool and returns up to n items.
func (s *Selector) take(pool []model.BankQuestion, n int) []model.BankQuestion {
	shuffled := append([]model.BankQuestion(nil), pool...)
	s.shuffle(shuffled)
	if n > len(shuffled) {
		n = len(shuffled)
	}
	return shuffled[:n]
}

func (s *Selector) mixed(pool []model.BankQuestion, count int) []model.BankQuestion {
	easy, medium, hard := Split(count)
	targets := map[model.Difficulty]int{
		model.DifficultyEasy:   easy,
		model.DifficultyMedium: medium,
		model.DifficultyHard:   hard,
	}

	buckets := make(map[model.Difficulty][]model.BankQuestion)
	for _, q := range pool {
		buckets[q.Difficulty] = append(buckets[q.Difficulty], q)
	}

	picked := make(map[string]bool)
	var out []model.BankQuestion
	for _, d := range model.Difficulties {
		for _, q := range s.take(buckets[d], targets[d]) {
			picked[q.ID] = true
			out = append(out, q)
		}
	}

	if short := count - len(out); short > 0 {
		var rest []model.BankQuestion
		for _, q := range pool {
			if !picked[q.ID] {
				rest = append(rest, q)
			}
		}
		out = append(out, s.take(rest, short)...)
	}

	s.shuffle(out)
	return out
}

// shuffle is a Fisher-Yates shuffle driven by the selector's source.
func (s *Selector) shuffle(qs []model.BankQuestion) {
	for i := len(qs) - 1; i > 0; i-- {
		j := s.rng.IntN(i + 1)
		qs[i], qs[j] = qs[j], qs[i]
	}
}
