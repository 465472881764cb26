package selector

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/exambank/internal/bank"
	"github.com/pavelanni/exambank/internal/model"
)

func newBank(t *testing.T, qs ...model.BankQuestion) *bank.Store {
	t.Helper()
	b := bank.New(nil)
	b.AddQuestions(qs)
	return b
}

func q(id, subject, topic string, d model.Difficulty) model.BankQuestion {
	return model.BankQuestion{
		ID: id, Subject: subject, Topic: topic, Difficulty: d, Type: model.BankTypeMCQ,
		Text: id, MCQ: &model.MCQContent{Options: [4]string{"a", "b", "c", "d"}, CorrectAnswer: "A"},
	}
}

func many(prefix, subject, topic string, d model.Difficulty, n int) []model.BankQuestion {
	out := make([]model.BankQuestion, n)
	for i := range out {
		out[i] = q(fmt.Sprintf("%s-%d", prefix, i), subject, topic, d)
	}
	return out
}

func fixed() *Selector {
	return New(rand.NewPCG(1, 2))
}

func TestSplit(t *testing.T) {
	tests := []struct {
		count, easy, medium, hard int
	}{
		{1, 0, 1, 0},
		{2, 1, 1, 0},
		{3, 1, 1, 1},
		{5, 2, 2, 1},
		{7, 2, 4, 1},
		{10, 3, 5, 2},
		{20, 6, 10, 4},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.count), func(t *testing.T) {
			e, m, h := Split(tt.count)
			assert.Equal(t, [3]int{tt.easy, tt.medium, tt.hard}, [3]int{e, m, h})
			assert.Equal(t, tt.count, e+m+h)
		})
	}
}

func TestSelectMixedSplit(t *testing.T) {
	var pool []model.BankQuestion
	pool = append(pool, many("e", "Physics", "Mechanics", model.DifficultyEasy, 10)...)
	pool = append(pool, many("m", "Physics", "Mechanics", model.DifficultyMedium, 10)...)
	pool = append(pool, many("h", "Physics", "Mechanics", model.DifficultyHard, 10)...)
	b := newBank(t, pool...)

	res, err := fixed().Select(b, Criteria{Subject: "physics", Difficulty: "mixed", Count: 10})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, res.Warning)
	assert.Equal(t, 10, res.SelectedCount)
	assert.Equal(t, 30, res.AvailablePool)
	assert.Equal(t, map[model.Difficulty]int{
		model.DifficultyEasy: 3, model.DifficultyMedium: 5, model.DifficultyHard: 2,
	}, res.Breakdown)

	seen := make(map[string]bool)
	for _, id := range res.IDs() {
		assert.False(t, seen[id], "duplicate %s", id)
		seen[id] = true
	}
}

func TestSelectMixedBackfillsShortBuckets(t *testing.T) {
	var pool []model.BankQuestion
	pool = append(pool, many("e", "Math", "Algebra", model.DifficultyEasy, 1)...)
	pool = append(pool, many("m", "Math", "Algebra", model.DifficultyMedium, 10)...)
	b := newBank(t, pool...)

	res, err := fixed().Select(b, Criteria{Subject: "Math", Difficulty: "mixed", Count: 10})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 10, res.SelectedCount)
	assert.Equal(t, 1, res.Breakdown[model.DifficultyEasy])
	assert.Equal(t, 9, res.Breakdown[model.DifficultyMedium], "medium backfills the missing easy and hard slots")
	assert.Zero(t, res.Breakdown[model.DifficultyHard])
}

func TestSelectMixedShortOverall(t *testing.T) {
	b := newBank(t, many("h", "Math", "Algebra", model.DifficultyHard, 4)...)

	res, err := fixed().Select(b, Criteria{Subject: "Math", Difficulty: "mixed", Count: 10})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 4, res.SelectedCount)
	assert.Equal(t, WarnInsufficient, res.WarningCode)
}

func TestSelectFixedDifficulty(t *testing.T) {
	var pool []model.BankQuestion
	pool = append(pool, many("e", "Physics", "Optics", model.DifficultyEasy, 6)...)
	pool = append(pool, many("h", "Physics", "Optics", model.DifficultyHard, 6)...)
	b := newBank(t, pool...)

	res, err := fixed().Select(b, Criteria{Subject: "Physics", Difficulty: "Hard", Count: 4})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 6, res.AvailablePool)
	for _, q := range res.Questions {
		assert.Equal(t, model.DifficultyHard, q.Difficulty)
	}
	assert.Len(t, res.Questions, 4)
}

func TestSelectIsDeterministicWithFixedSource(t *testing.T) {
	b := newBank(t, many("e", "Physics", "Optics", model.DifficultyEasy, 20)...)
	c := Criteria{Subject: "Physics", Difficulty: "easy", Count: 5}

	r1, err := fixed().Select(b, c)
	require.NoError(t, err)
	r2, err := fixed().Select(b, c)
	require.NoError(t, err)
	assert.Equal(t, r1.IDs(), r2.IDs())
}

func TestSelectInsufficientPool(t *testing.T) {
	b := newBank(t, many("e", "Physics", "Optics", model.DifficultyEasy, 3)...)

	res, err := fixed().Select(b, Criteria{Subject: "Physics", Difficulty: "easy", Count: 5})
	require.NoError(t, err)
	assert.Equal(t, 3, res.SelectedCount)
	assert.Equal(t, 5, res.RequestedCount)
	assert.Equal(t, 3, res.AvailablePool)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Warning)
	assert.Equal(t, WarnInsufficient, res.WarningCode)
}

func TestSelectNoMatches(t *testing.T) {
	b := newBank(t, many("e", "Physics", "Optics", model.DifficultyEasy, 3)...)

	res, err := fixed().Select(b, Criteria{Subject: "Chemistry", Difficulty: "mixed", Count: 5})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Empty(t, res.Questions)
	assert.Zero(t, res.AvailablePool)
	assert.Equal(t, WarnNoMatches, res.WarningCode)
	assert.NotEmpty(t, res.Warning)
}

func TestSelectTopicsAreOred(t *testing.T) {
	b := newBank(t,
		q("a", "Physics", "Optics", model.DifficultyEasy),
		q("b", "Physics", "Mechanics", model.DifficultyEasy),
		q("c", "Physics", "Thermo", model.DifficultyEasy),
	)
	res, err := fixed().Select(b, Criteria{Subject: "Physics", Topics: []string{"OPTICS", "thermo"}, Difficulty: "easy", Count: 5})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "c"}, res.IDs())
}

func TestSelectAvoidRepetitionIsPerExam(t *testing.T) {
	b := newBank(t, many("e", "Physics", "Optics", model.DifficultyEasy, 4)...)
	b.MarkQuestionsUsed([]string{"e-0", "e-1"}, "exam-1")
	b.MarkQuestionsUsed([]string{"e-2"}, "exam-2")

	res, err := fixed().Select(b, Criteria{
		Subject: "Physics", Difficulty: "easy", Count: 4, ExamID: "exam-1", AvoidRepetition: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.AvailablePool)
	assert.ElementsMatch(t, []string{"e-2", "e-3"}, res.IDs(), "questions used in other exams stay eligible")

	res, err = fixed().Select(b, Criteria{Subject: "Physics", Difficulty: "easy", Count: 4, ExamID: "exam-1"})
	require.NoError(t, err)
	assert.Equal(t, 4, res.SelectedCount, "repetition allowed unless requested")
}

func TestSelectDoesNotMarkUsage(t *testing.T) {
	b := newBank(t, many("e", "Physics", "Optics", model.DifficultyEasy, 5)...)

	res, err := fixed().Select(b, Criteria{Subject: "Physics", Difficulty: "easy", Count: 3, ExamID: "exam-1"})
	require.NoError(t, err)
	require.Len(t, res.Questions, 3)
	for _, q := range b.All() {
		assert.Zero(t, q.UsageCount)
		assert.Empty(t, q.UsedInExams)
	}

	b.MarkQuestionsUsed(res.IDs(), "exam-1")
	assert.Equal(t, 3, b.Stats().Used)
}

func TestSelectInvalidCriteria(t *testing.T) {
	b := newBank(t)
	tests := []struct {
		name string
		c    Criteria
	}{
		{"no subject", Criteria{Difficulty: "easy", Count: 1}},
		{"zero count", Criteria{Subject: "S", Difficulty: "easy"}},
		{"bad difficulty", Criteria{Subject: "S", Difficulty: "brutal", Count: 1}},
		{"avoid without exam", Criteria{Subject: "S", Difficulty: "easy", Count: 1, AvoidRepetition: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fixed().Select(b, tt.c)
			assert.ErrorIs(t, err, ErrInvalidCriteria)
		})
	}
}
