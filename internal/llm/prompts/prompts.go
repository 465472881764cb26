package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/exambank/internal/model"
)

//go:embed templates/*.txt
var templateFS embed.FS

var (
	questionTagRegex           = regexp.MustCompile(`(?i)</?\s*question\b[^>]*>`)
	systemInstructionsTagRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

const maxFieldRunes = 10000

// Variant selects how much detail an explanation carries.
type Variant string

const (
	// Concise asks for one or two sentences.
	Concise Variant = "concise"
	// Standard is the default variant.
	Standard Variant = "standard"
	// Detailed asks for a worked solution covering every option.
	Detailed Variant = "detailed"
)

var variants = []Variant{Concise, Standard, Detailed}

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	for _, known := range variants {
		if Variant(v) == known {
			return true
		}
	}
	return false
}

// Option is one labelled answer choice.
type Option struct {
	Letter string
	Text   string
}

// ExplainData holds template data for explanation prompts.
type ExplainData struct {
	Subject    string
	Topic      string
	Difficulty string
	Question   string
	Options    []Option
	Correct    string
	Existing   string
}

// Set holds the parsed explanation templates.
type Set struct {
	templates map[Variant]*template.Template
}

var (
	defaultOnce sync.Once
	defaultSet  *Set
	defaultErr  error
)

// Default returns the templates compiled into the binary.
func Default() (*Set, error) {
	defaultOnce.Do(func() {
		defaultSet, defaultErr = Load(templateFS)
	})
	return defaultSet, defaultErr
}

// Load parses templates/explain_<variant>.txt for every variant from fsys.
func Load(fsys fs.FS) (*Set, error) {
	s := &Set{templates: make(map[Variant]*template.Template, len(variants))}
	for _, v := range variants {
		name := "templates/explain_" + string(v) + ".txt"
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read prompt file %s: %w", name, err)
		}
		tmpl, err := template.New(string(v)).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("parse prompt template %s: %w", name, err)
		}
		s.templates[v] = tmpl
	}
	return s, nil
}

// BuildExplainPrompt renders the prompt for an option-based bank question.
func (s *Set) BuildExplainPrompt(v Variant, q model.BankQuestion) (string, error) {
	tmpl, ok := s.templates[v]
	if !ok {
		return "", errors.New("invalid prompt variant: " + string(v))
	}
	if q.MCQ == nil {
		return "", fmt.Errorf("question %s has no options", q.ID)
	}

	data := ExplainData{
		Subject:    sanitize(q.Subject),
		Topic:      sanitize(q.Topic),
		Difficulty: string(q.Difficulty),
		Question:   sanitize(q.Text),
		Correct:    q.MCQ.CorrectAnswer,
		Existing:   sanitize(q.MCQ.Explanation),
	}
	for i, text := range q.MCQ.Options {
		data.Options = append(data.Options, Option{Letter: model.OptionLetters[i], Text: sanitize(text)})
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// sanitize strips tags that could close the data block early and caps the
// length of a single field.
func sanitize(s string) string {
	s = questionTagRegex.ReplaceAllString(s, "")
	s = systemInstructionsTagRegex.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > maxFieldRunes {
		s = string([]rune(s)[:maxFieldRunes]) + " [truncated]"
	}
	return s
}
