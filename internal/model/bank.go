package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Difficulty represents question difficulty level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Difficulties lists the difficulty tiers in ascending order.
var Difficulties = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

// Valid reports whether d is one of the known tiers.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// BankQuestionType is the declared type of a bank question.
type BankQuestionType string

const (
	BankTypeMCQ       BankQuestionType = "mcq"
	BankTypeReasoning BankQuestionType = "reasoning"
	BankTypeFill      BankQuestionType = "fill"
	BankTypeCoding    BankQuestionType = "coding"
)

// ParseBankQuestionType maps a free-form cell value onto a question type.
func ParseBankQuestionType(s string) (BankQuestionType, bool) {
	switch t := BankQuestionType(strings.ToLower(strings.TrimSpace(s))); t {
	case BankTypeMCQ, BankTypeReasoning, BankTypeFill, BankTypeCoding:
		return t, true
	}
	return "", false
}

// OptionLetters are the option labels of an MCQ-shaped bank question.
var OptionLetters = [4]string{"A", "B", "C", "D"}

// TestCase is one input/expected-output pair of a coding question.
type TestCase struct {
	ID             string `json:"id"`
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
	IsHidden       bool   `json:"is_hidden"`
}

// MCQContent carries the fields of an option-based bank question.
type MCQContent struct {
	Options       [4]string `json:"options"`
	CorrectAnswer string    `json:"correct_answer"`
	Explanation   string    `json:"explanation,omitempty"`
}

// CodingContent carries the fields of a coding bank question.
type CodingContent struct {
	SampleInput  string     `json:"sample_input"`
	SampleOutput string     `json:"sample_output"`
	TestCases    []TestCase `json:"test_cases"`
	TimeLimit    int        `json:"time_limit"`
}

// BankQuestion is a reusable question stored in the question bank.
// Exactly one of MCQ and Coding is set, selected by Type.
type BankQuestion struct {
	ID          string           `json:"id"`
	Subject     string           `json:"subject"`
	Topic       string           `json:"topic"`
	Difficulty  Difficulty       `json:"difficulty"`
	Type        BankQuestionType `json:"question_type"`
	Text        string           `json:"question"`
	MCQ         *MCQContent      `json:"mcq,omitempty"`
	Coding      *CodingContent   `json:"coding,omitempty"`
	UsedInExams []string         `json:"used_in_exams"`
	UsageCount  int              `json:"usage_count"`
	CreatedAt   time.Time        `json:"created_at"`
}

// IsCoding reports whether the question is coding-shaped.
func (q BankQuestion) IsCoding() bool {
	return q.Type == BankTypeCoding
}

// UsedIn reports whether the question was placed on the given exam.
func (q BankQuestion) UsedIn(examID string) bool {
	for _, id := range q.UsedInExams {
		if id == examID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can mutate it without touching shared state.
func (q BankQuestion) Clone() BankQuestion {
	c := q
	if q.MCQ != nil {
		m := *q.MCQ
		c.MCQ = &m
	}
	if q.Coding != nil {
		cd := *q.Coding
		if q.Coding.TestCases != nil {
			cd.TestCases = make([]TestCase, len(q.Coding.TestCases))
			copy(cd.TestCases, q.Coding.TestCases)
		}
		c.Coding = &cd
	}
	if q.UsedInExams != nil {
		c.UsedInExams = make([]string, len(q.UsedInExams))
		copy(c.UsedInExams, q.UsedInExams)
	}
	return c
}

// Validate checks the MCQ-or-coding shape invariant.
func (q BankQuestion) Validate() error {
	if q.ID == "" {
		return errors.New("missing id")
	}
	if q.IsCoding() {
		if q.MCQ != nil {
			return fmt.Errorf("question %s: coding question carries MCQ fields", q.ID)
		}
		if q.Coding == nil {
			return fmt.Errorf("question %s: coding question without coding fields", q.ID)
		}
		if q.Coding.SampleInput == "" || q.Coding.SampleOutput == "" || q.Coding.TimeLimit <= 0 {
			return fmt.Errorf("question %s: incomplete coding fields", q.ID)
		}
		return nil
	}
	if q.Coding != nil {
		return fmt.Errorf("question %s: %s question carries coding fields", q.ID, q.Type)
	}
	if q.MCQ == nil {
		return fmt.Errorf("question %s: %s question without options", q.ID, q.Type)
	}
	for i, opt := range q.MCQ.Options {
		if opt == "" {
			return fmt.Errorf("question %s: option %s is empty", q.ID, OptionLetters[i])
		}
	}
	switch q.MCQ.CorrectAnswer {
	case "A", "B", "C", "D":
	default:
		return fmt.Errorf("question %s: invalid correct answer %q", q.ID, q.MCQ.CorrectAnswer)
	}
	return nil
}
