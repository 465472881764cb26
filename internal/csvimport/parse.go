package csvimport

import (
	"errors"
	"time"

	"github.com/pavelanni/exambank/internal/model"
)

// ErrInvalidHeader is returned by Parse when the header row is unusable.
var ErrInvalidHeader = errors.New("invalid csv header")

// Status summarizes the outcome of a parse.
type Status string

const (
	StatusOK            Status = "ok"
	StatusWithErrors    Status = "parsed_with_errors"
	StatusHeaderInvalid Status = "header_invalid"
)

// Result is the outcome of parsing one CSV document.
type Result struct {
	Format    Format               `json:"format"`
	Questions []model.BankQuestion `json:"questions"`
	Errors    []FieldError         `json:"errors"`
	TotalRows int                  `json:"total_rows"`
	Status    Status               `json:"status"`
}

// ValidCount returns the number of accepted rows.
func (r *Result) ValidCount() int { return len(r.Questions) }

// InvalidRows returns the number of distinct rows with at least one error.
func (r *Result) InvalidRows() int {
	rows := make(map[int]bool)
	for _, e := range r.Errors {
		rows[e.Row] = true
	}
	return len(rows)
}

// CountByType tallies accepted questions per declared type.
func (r *Result) CountByType() map[model.BankQuestionType]int {
	out := make(map[model.BankQuestionType]int)
	for _, q := range r.Questions {
		out[q.Type]++
	}
	return out
}

// Parse runs a whole document through tokenizer, validator and converter.
// Row problems are collected in Result.Errors; only a missing or incomplete
// header returns ErrInvalidHeader, in which case no row is processed.
func Parse(text string) (*Result, error) {
	return parseAt(text, time.Now().UTC())
}

func parseAt(text string, now time.Time) (*Result, error) {
	rows := Tokenize(text)
	res := &Result{Questions: []model.BankQuestion{}, Errors: []FieldError{}}
	if len(rows) == 0 {
		res.Status = StatusHeaderInvalid
		res.Errors = append(res.Errors, FieldError{
			Row: 1, Code: CodeEmptyDocument, Message: "document has no header row",
		})
		return res, ErrInvalidHeader
	}

	header, herrs := NewHeader(rows[0])
	res.Format = header.Format()
	if len(herrs) > 0 {
		res.Status = StatusHeaderInvalid
		res.Errors = append(res.Errors, herrs...)
		return res, ErrInvalidHeader
	}

	seen := make(map[string]bool)
	for i, fields := range rows[1:] {
		res.TotalRows++
		row, errs := header.ValidateRow(i+2, fields, seen)
		if len(errs) > 0 {
			res.Errors = append(res.Errors, errs...)
			continue
		}
		res.Questions = append(res.Questions, Convert(row, now))
	}

	res.Status = StatusOK
	if len(res.Errors) > 0 {
		res.Status = StatusWithErrors
	}
	return res, nil
}
