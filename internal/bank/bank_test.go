package bank

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/exambank/internal/model"
)

type fakePersister struct {
	mu       sync.Mutex
	upserted []model.BankQuestion
	deleted  []string
	err      error
}

func (f *fakePersister) UpsertBankQuestions(qs []model.BankQuestion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, qs...)
	return f.err
}

func (f *fakePersister) DeleteBankQuestions(ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ids...)
	return f.err
}

func mcq(id, subject, topic string, d model.Difficulty) model.BankQuestion {
	return model.BankQuestion{
		ID: id, Subject: subject, Topic: topic, Difficulty: d, Type: model.BankTypeMCQ,
		Text: "question " + id,
		MCQ:  &model.MCQContent{Options: [4]string{"a", "b", "c", "d"}, CorrectAnswer: "A"},
	}
}

func coding(id, subject, topic string, d model.Difficulty) model.BankQuestion {
	return model.BankQuestion{
		ID: id, Subject: subject, Topic: topic, Difficulty: d, Type: model.BankTypeCoding,
		Text:   "write code " + id,
		Coding: &model.CodingContent{SampleInput: "1", SampleOutput: "1", TimeLimit: 2},
	}
}

func TestAddQuestionsIsIdempotent(t *testing.T) {
	p := &fakePersister{}
	s := New(p)
	batch := []model.BankQuestion{
		mcq("Q1", "Physics", "Mechanics", model.DifficultyEasy),
		mcq("Q2", "Physics", "Optics", model.DifficultyHard),
	}

	added := s.AddQuestions(batch)
	assert.Len(t, added, 2)
	added = s.AddQuestions(batch)
	assert.Empty(t, added, "second import is a no-op")

	require.Equal(t, 2, s.Len())
	assert.Equal(t, "Q1", s.All()[0].ID)
	assert.Equal(t, "Q2", s.All()[1].ID)
	assert.Len(t, p.upserted, 2, "only new questions are persisted")
}

func TestAddQuestionsSkipsDuplicatesWithinBatch(t *testing.T) {
	s := New(nil)
	added := s.AddQuestions([]model.BankQuestion{
		mcq("Q1", "Physics", "Mechanics", model.DifficultyEasy),
		mcq("Q1", "Math", "Algebra", model.DifficultyHard),
		{ID: ""},
	})
	require.Len(t, added, 1)
	q, ok := s.Get("Q1")
	require.True(t, ok)
	assert.Equal(t, "Physics", q.Subject)
	assert.NotNil(t, q.UsedInExams)
}

func TestRemoveQuestions(t *testing.T) {
	p := &fakePersister{}
	s := New(p)
	s.AddQuestions([]model.BankQuestion{
		mcq("Q1", "S", "T", model.DifficultyEasy),
		mcq("Q2", "S", "T", model.DifficultyEasy),
		mcq("Q3", "S", "T", model.DifficultyEasy),
	})

	assert.True(t, s.RemoveQuestion("Q2"))
	assert.False(t, s.RemoveQuestion("Q2"))
	assert.Equal(t, 1, s.RemoveQuestions([]string{"Q3", "missing"}))
	require.Equal(t, 1, s.Len())
	assert.Equal(t, []string{"Q2", "Q3"}, p.deleted)
}

func TestMarkQuestionsUsed(t *testing.T) {
	s := New(nil)
	s.AddQuestions([]model.BankQuestion{
		mcq("Q1", "S", "T", model.DifficultyEasy),
		mcq("Q2", "S", "T", model.DifficultyEasy),
	})

	assert.Equal(t, 1, s.MarkQuestionsUsed([]string{"Q1", "nope"}, "exam-1"))
	q, _ := s.Get("Q1")
	assert.Equal(t, []string{"exam-1"}, q.UsedInExams)
	assert.Equal(t, 1, q.UsageCount)

	// Marking twice for the same exam appends once but counts twice.
	s.MarkQuestionsUsed([]string{"Q1"}, "exam-1")
	q, _ = s.Get("Q1")
	assert.Equal(t, []string{"exam-1"}, q.UsedInExams)
	assert.Equal(t, 2, q.UsageCount)

	s.MarkQuestionsUsed([]string{"Q1"}, "exam-2")
	q, _ = s.Get("Q1")
	assert.Equal(t, []string{"exam-1", "exam-2"}, q.UsedInExams)
	assert.Equal(t, 3, q.UsageCount)

	untouched, _ := s.Get("Q2")
	assert.Empty(t, untouched.UsedInExams)
	assert.Zero(t, untouched.UsageCount)
}

func TestSnapshotsAreNotMutated(t *testing.T) {
	s := New(nil)
	s.AddQuestions([]model.BankQuestion{mcq("Q1", "S", "T", model.DifficultyEasy)})
	before := s.All()

	s.MarkQuestionsUsed([]string{"Q1"}, "exam-1")

	assert.Empty(t, before[0].UsedInExams)
	assert.Zero(t, before[0].UsageCount)
	assert.Equal(t, 1, s.All()[0].UsageCount)
}

func TestUnmarkQuestionsUsedOnlyTouchesMembers(t *testing.T) {
	s := New(nil)
	s.AddQuestions([]model.BankQuestion{
		mcq("Q1", "S", "T", model.DifficultyEasy),
		mcq("Q2", "S", "T", model.DifficultyEasy),
		mcq("Q3", "S", "T", model.DifficultyEasy),
	})
	s.MarkQuestionsUsed([]string{"Q1", "Q2"}, "exam-1")
	s.MarkQuestionsUsed([]string{"Q2"}, "exam-2")

	assert.Equal(t, 2, s.UnmarkQuestionsUsed("exam-1"))

	q1, _ := s.Get("Q1")
	assert.Empty(t, q1.UsedInExams)
	assert.Zero(t, q1.UsageCount)

	q2, _ := s.Get("Q2")
	assert.Equal(t, []string{"exam-2"}, q2.UsedInExams)
	assert.Equal(t, 1, q2.UsageCount)

	// A question never used in exam-1 keeps its counter.
	s.MarkQuestionsUsed([]string{"Q3"}, "exam-3")
	s.UnmarkQuestionsUsed("exam-1")
	q3, _ := s.Get("Q3")
	assert.Equal(t, 1, q3.UsageCount)
}

func TestUnmarkClampsAtZero(t *testing.T) {
	s := New(nil)
	q := mcq("Q1", "S", "T", model.DifficultyEasy)
	q.UsedInExams = []string{"exam-1"}
	q.UsageCount = 0
	s.Load([]model.BankQuestion{q})

	s.UnmarkQuestionsUsed("exam-1")
	got, _ := s.Get("Q1")
	assert.Zero(t, got.UsageCount)
	assert.Empty(t, got.UsedInExams)
}

func TestResetAllUsage(t *testing.T) {
	p := &fakePersister{}
	s := New(p)
	s.AddQuestions([]model.BankQuestion{
		mcq("Q1", "S", "T", model.DifficultyEasy),
		mcq("Q2", "S", "T", model.DifficultyEasy),
	})
	s.MarkQuestionsUsed([]string{"Q1"}, "exam-1")
	p.upserted = nil

	assert.Equal(t, 1, s.ResetAllUsage())
	for _, q := range s.All() {
		assert.Empty(t, q.UsedInExams)
		assert.Zero(t, q.UsageCount)
	}
	assert.Len(t, p.upserted, 1)
}

func TestPersistenceFailureKeepsMemoryState(t *testing.T) {
	p := &fakePersister{err: errors.New("disk full")}
	s := New(p)
	s.AddQuestions([]model.BankQuestion{mcq("Q1", "S", "T", model.DifficultyEasy)})
	s.MarkQuestionsUsed([]string{"Q1"}, "exam-1")

	q, ok := s.Get("Q1")
	require.True(t, ok)
	assert.Equal(t, 1, q.UsageCount)
	assert.Equal(t, 1, s.RemoveQuestions([]string{"Q1"}))
	assert.Zero(t, s.Len())
}

func TestSetExplanation(t *testing.T) {
	s := New(nil)
	s.AddQuestions([]model.BankQuestion{
		mcq("Q1", "S", "T", model.DifficultyEasy),
		coding("C1", "S", "T", model.DifficultyEasy),
	})
	assert.True(t, s.SetExplanation("Q1", "because"))
	assert.False(t, s.SetExplanation("C1", "nope"))
	q, _ := s.Get("Q1")
	assert.Equal(t, "because", q.MCQ.Explanation)
}

func TestFilter(t *testing.T) {
	s := New(nil)
	s.AddQuestions([]model.BankQuestion{
		mcq("Q1", "Physics", "Mechanics", model.DifficultyEasy),
		mcq("Q2", "physics", "Optics", model.DifficultyHard),
		coding("C1", "CS", "Arrays", model.DifficultyMedium),
		mcq("Q3", "Physics", "Thermo", model.DifficultyEasy),
	})
	s.MarkQuestionsUsed([]string{"Q3"}, "exam-1")

	ids := func(qs []model.BankQuestion) []string {
		var out []string
		for _, q := range qs {
			out = append(out, q.ID)
		}
		return out
	}

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"no filter", Filter{}, []string{"Q1", "Q2", "C1", "Q3"}},
		{"subject case-insensitive", Filter{Subject: "PHYSICS"}, []string{"Q1", "Q2", "Q3"}},
		{"topics any of", Filter{Topics: []string{"optics", "thermo "}}, []string{"Q2", "Q3"}},
		{"difficulty", Filter{Difficulty: model.DifficultyEasy}, []string{"Q1", "Q3"}},
		{"type", Filter{Type: model.BankTypeCoding}, []string{"C1"}},
		{"search text", Filter{Search: "WRITE CODE"}, []string{"C1"}},
		{"used", Filter{Usage: UsageUsed}, []string{"Q3"}},
		{"unused", Filter{Usage: UsageUnused}, []string{"Q1", "Q2", "C1"}},
		{"exclude exam", Filter{Subject: "physics", ExcludeFor: "exam-1"}, []string{"Q1", "Q2"}},
		{"exclude other exam keeps all", Filter{Subject: "physics", ExcludeFor: "exam-2"}, []string{"Q1", "Q2", "Q3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(s.Filter(tt.filter)))
		})
	}
}

func TestSubjectsAndTopics(t *testing.T) {
	s := New(nil)
	s.AddQuestions([]model.BankQuestion{
		mcq("Q1", "Physics", "Optics", model.DifficultyEasy),
		mcq("Q2", "Physics", "Mechanics", model.DifficultyEasy),
		mcq("Q3", "Math", "Algebra", model.DifficultyEasy),
	})
	assert.Equal(t, []string{"Math", "Physics"}, s.Subjects())
	assert.Equal(t, []string{"Mechanics", "Optics"}, s.Topics("physics"))
	assert.Equal(t, []string{"Algebra", "Mechanics", "Optics"}, s.Topics(""))
}

func TestStats(t *testing.T) {
	s := New(nil)
	s.AddQuestions([]model.BankQuestion{
		mcq("Q1", "Physics", "Optics", model.DifficultyEasy),
		mcq("Q2", "Physics", "Optics", model.DifficultyHard),
		coding("C1", "CS", "Arrays", model.DifficultyEasy),
	})
	s.MarkQuestionsUsed([]string{"Q2"}, "exam-1")

	st := s.Stats()
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, map[model.Difficulty]int{
		model.DifficultyEasy: 2, model.DifficultyMedium: 0, model.DifficultyHard: 1,
	}, st.ByDifficulty)
	assert.Equal(t, 2, st.ByType[model.BankTypeMCQ])
	assert.Equal(t, 1, st.ByType[model.BankTypeCoding])
	assert.Equal(t, map[string]int{"Physics": 2, "CS": 1}, st.BySubject)
	assert.Equal(t, map[string]int{"Optics": 2, "Arrays": 1}, st.ByTopic)
	assert.Equal(t, 1, st.Used)
	assert.Equal(t, 2, st.Unused)
}

func TestConcurrentMarking(t *testing.T) {
	s := New(nil)
	s.AddQuestions([]model.BankQuestion{mcq("Q1", "S", "T", model.DifficultyEasy)})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.MarkQuestionsUsed([]string{"Q1"}, fmt.Sprintf("exam-%d", i%5))
		}(i)
	}
	wg.Wait()

	q, _ := s.Get("Q1")
	assert.Equal(t, 50, q.UsageCount)
	assert.Len(t, q.UsedInExams, 5)
}
