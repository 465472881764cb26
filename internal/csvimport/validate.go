package csvimport

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pavelanni/exambank/internal/model"
)

// Column names recognized in the header row.
const (
	ColID              = "id"
	ColSubject         = "subject"
	ColTopic           = "topic"
	ColDifficulty      = "difficulty"
	ColQuestionType    = "question_type"
	ColQuestion        = "question"
	ColOptionA         = "option_a"
	ColOptionB         = "option_b"
	ColOptionC         = "option_c"
	ColOptionD         = "option_d"
	ColCorrectAnswer   = "correct_answer"
	ColExplanation     = "explanation"
	ColSampleInput     = "sample_input"
	ColSampleOutput    = "sample_output"
	ColHiddenTestCases = "hidden_test_cases"
	ColTimeLimit       = "time_limit"
)

// ExtendedColumns is the full header in its canonical order.
var ExtendedColumns = []string{
	ColID, ColSubject, ColTopic, ColDifficulty, ColQuestionType, ColQuestion,
	ColOptionA, ColOptionB, ColOptionC, ColOptionD, ColCorrectAnswer, ColExplanation,
	ColSampleInput, ColSampleOutput, ColHiddenTestCases, ColTimeLimit,
}

// LegacyColumns is the 11-column MCQ-only header.
var LegacyColumns = []string{
	ColID, ColSubject, ColTopic, ColDifficulty, ColQuestion,
	ColOptionA, ColOptionB, ColOptionC, ColOptionD, ColCorrectAnswer, ColExplanation,
}

var requiredColumns = []string{
	ColID, ColSubject, ColTopic, ColDifficulty, ColQuestion,
	ColOptionA, ColOptionB, ColOptionC, ColOptionD, ColCorrectAnswer,
}

var optionColumns = [4]string{ColOptionA, ColOptionB, ColOptionC, ColOptionD}

// Difficulty labels accepted in the difficulty column (case-sensitive).
var allowedDifficulties = map[string]bool{"Easy": true, "Medium": true, "Hard": true}

// Error codes carried by FieldError. They double as translation message IDs.
const (
	CodeEmptyDocument        = "CSVEmptyDocument"
	CodeHeaderMissing        = "CSVHeaderMissing"
	CodeRequired             = "CSVFieldRequired"
	CodeDuplicateID          = "CSVDuplicateID"
	CodeInvalidDifficulty    = "CSVInvalidDifficulty"
	CodeInvalidCorrectAnswer = "CSVInvalidCorrectAnswer"
	CodeInvalidQuestionType  = "CSVInvalidQuestionType"
	CodeInvalidTimeLimit     = "CSVInvalidTimeLimit"
	CodeInvalidTestCases     = "CSVInvalidTestCases"
)

// FieldError points at one problem in one CSV cell (or header column).
// Row is 1-based and counts the header row as 1.
type FieldError struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("row %d: %s", e.Row, e.Message)
	}
	return fmt.Sprintf("row %d, %s: %s", e.Row, e.Field, e.Message)
}

// Format identifies which header layout a document uses.
type Format string

const (
	FormatExtended Format = "extended"
	FormatLegacy   Format = "legacy"
)

// Header maps column names (case-insensitive) to field positions.
type Header struct {
	index  map[string]int
	format Format
}

// NewHeader builds the column index from the first row and checks that every
// required column is present. A non-empty error list means no row may be
// processed.
func NewHeader(row []string) (*Header, []FieldError) {
	h := &Header{index: make(map[string]int, len(row))}
	for i, name := range row {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		if _, dup := h.index[key]; !dup {
			h.index[key] = i
		}
	}

	h.format = FormatLegacy
	if h.Has(ColQuestionType) {
		h.format = FormatExtended
	}

	var errs []FieldError
	for _, col := range requiredColumns {
		if !h.Has(col) {
			errs = append(errs, FieldError{
				Row:     1,
				Field:   col,
				Code:    CodeHeaderMissing,
				Message: fmt.Sprintf("missing required column %q", col),
			})
		}
	}
	return h, errs
}

// Format returns the detected header layout.
func (h *Header) Format() Format { return h.format }

// Has reports whether the header names the column.
func (h *Header) Has(col string) bool {
	_, ok := h.index[col]
	return ok
}

func (h *Header) value(fields []string, col string) string {
	i, ok := h.index[col]
	if !ok || i >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[i])
}

// ValidRow is a data row that passed validation, still in CSV vocabulary.
type ValidRow struct {
	ID            string
	Subject       string
	Topic         string
	Difficulty    string
	Type          model.BankQuestionType
	Question      string
	Options       [4]string
	CorrectAnswer string
	Explanation   string
	SampleInput   string
	SampleOutput  string
	TestCases     []model.TestCase
	TimeLimit     int
}

type hiddenCase struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// ValidateRow checks one data row. seen holds the ids already claimed in the
// document and is updated with this row's id. Either the row or a non-empty
// error list is returned, never both.
func (h *Header) ValidateRow(rowNum int, fields []string, seen map[string]bool) (ValidRow, []FieldError) {
	var errs []FieldError
	fail := func(field, code, msg string) {
		errs = append(errs, FieldError{Row: rowNum, Field: field, Code: code, Message: msg})
	}
	required := func(col string) string {
		v := h.value(fields, col)
		if v == "" {
			fail(col, CodeRequired, col+" is required")
		}
		return v
	}

	r := ValidRow{Type: model.BankTypeMCQ}

	r.ID = required(ColID)
	if r.ID != "" {
		if seen[r.ID] {
			fail(ColID, CodeDuplicateID, fmt.Sprintf("duplicate id %q", r.ID))
		} else {
			seen[r.ID] = true
		}
	}

	if h.format == FormatExtended {
		if raw := h.value(fields, ColQuestionType); raw != "" {
			t, ok := model.ParseBankQuestionType(raw)
			if !ok {
				fail(ColQuestionType, CodeInvalidQuestionType,
					fmt.Sprintf("question_type must be one of mcq, reasoning, fill, coding (got %q)", raw))
			} else {
				r.Type = t
			}
		}
	}

	r.Subject = required(ColSubject)
	r.Topic = required(ColTopic)
	r.Difficulty = h.value(fields, ColDifficulty)
	if !allowedDifficulties[r.Difficulty] {
		fail(ColDifficulty, CodeInvalidDifficulty,
			fmt.Sprintf("difficulty must be one of Easy, Medium, Hard (got %q)", r.Difficulty))
	}
	r.Question = required(ColQuestion)

	if r.Type == model.BankTypeCoding {
		h.validateCoding(fields, &r, fail, required)
	} else {
		for i, col := range optionColumns {
			r.Options[i] = required(col)
		}
		r.CorrectAnswer = strings.ToUpper(h.value(fields, ColCorrectAnswer))
		switch r.CorrectAnswer {
		case "A", "B", "C", "D":
		default:
			fail(ColCorrectAnswer, CodeInvalidCorrectAnswer,
				fmt.Sprintf("correct_answer must be one of A, B, C, D (got %q)", r.CorrectAnswer))
		}
		r.Explanation = h.value(fields, ColExplanation)
	}

	if len(errs) > 0 {
		return ValidRow{}, errs
	}
	return r, nil
}

func (h *Header) validateCoding(fields []string, r *ValidRow, fail func(field, code, msg string), required func(string) string) {
	r.SampleInput = required(ColSampleInput)
	r.SampleOutput = required(ColSampleOutput)

	raw := h.value(fields, ColTimeLimit)
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		fail(ColTimeLimit, CodeInvalidTimeLimit,
			fmt.Sprintf("time_limit must be a positive integer (got %q)", raw))
	} else {
		r.TimeLimit = limit
	}

	raw = h.value(fields, ColHiddenTestCases)
	if raw == "" {
		return
	}
	var cases []hiddenCase
	if err := json.Unmarshal([]byte(raw), &cases); err != nil {
		fail(ColHiddenTestCases, CodeInvalidTestCases,
			"hidden_test_cases must be a JSON array of {\"input\", \"output\"} objects: "+err.Error())
		return
	}
	if cases == nil {
		fail(ColHiddenTestCases, CodeInvalidTestCases, "hidden_test_cases must be a JSON array, not null")
		return
	}
	r.TestCases = make([]model.TestCase, 0, len(cases))
	for i, c := range cases {
		r.TestCases = append(r.TestCases, model.TestCase{
			ID:             fmt.Sprintf("%s-tc-%d", r.ID, i+1),
			Input:          c.Input,
			ExpectedOutput: c.Output,
			IsHidden:       true,
		})
	}
}
