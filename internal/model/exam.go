package model

import "time"

// DefaultPassingScore is the pass threshold (percent) for tests that do not set one.
const DefaultPassingScore = 60

// TestStatus represents the publication state of a test.
type TestStatus string

const (
	TestDraft     TestStatus = "draft"
	TestPublished TestStatus = "published"
)

// Test is an exam authored by an administrator.
type Test struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	Subject         string     `json:"subject,omitempty"`
	DurationMinutes int        `json:"duration_minutes"` // 0 means untimed
	PassingScore    int        `json:"passing_score"`    // 0 means DefaultPassingScore
	MaxTabSwitches  int        `json:"max_tab_switches"` // 0 means unlimited
	Status          TestStatus `json:"status"`
	CreatedBy       int64      `json:"created_by,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// EffectivePassingScore returns the configured threshold or the default.
func (t Test) EffectivePassingScore() int {
	if t.PassingScore <= 0 {
		return DefaultPassingScore
	}
	return t.PassingScore
}

// Duration returns the time limit of the test, zero when untimed.
func (t Test) Duration() time.Duration {
	return time.Duration(t.DurationMinutes) * time.Minute
}

// QuestionKind is the type of a question placed on a test.
type QuestionKind string

const (
	KindMCQ       QuestionKind = "mcq"
	KindTrueFalse QuestionKind = "true-false"
	KindCoding    QuestionKind = "coding"
)

// Option is one answer choice of an MCQ or true/false question.
type Option struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

// Question is a question instance placed on a specific test.
// Questions imported from the bank are snapshots, not live references.
type Question struct {
	ID              string       `json:"id"`
	TestID          string       `json:"test_id"`
	Type            QuestionKind `json:"type"`
	Text            string       `json:"text"`
	Options         []Option     `json:"options,omitempty"`
	CorrectAnswer   string       `json:"correct_answer,omitempty"`
	Explanation     string       `json:"explanation,omitempty"`
	Difficulty      Difficulty   `json:"difficulty,omitempty"`
	Topic           string       `json:"topic,omitempty"`
	Points          float64      `json:"points"`
	NegativeMarking float64      `json:"negative_marking"`
	Order           int          `json:"order"`
	SampleInput     string       `json:"sample_input,omitempty"`
	SampleOutput    string       `json:"sample_output,omitempty"`
	TestCases       []TestCase   `json:"test_cases,omitempty"`
	TimeLimit       int          `json:"time_limit,omitempty"`
	BankQuestionID  string       `json:"bank_question_id,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// IsCoding reports whether the question expects a code answer.
func (q Question) IsCoding() bool {
	return q.Type == KindCoding
}

// StudentView strips answer keys and hidden test cases.
func (q Question) StudentView() Question {
	v := q
	v.CorrectAnswer = ""
	v.Explanation = ""
	v.Options = make([]Option, len(q.Options))
	for i, o := range q.Options {
		v.Options[i] = Option{ID: o.ID, Text: o.Text}
	}
	v.TestCases = nil
	for _, tc := range q.TestCases {
		if !tc.IsHidden {
			v.TestCases = append(v.TestCases, tc)
		}
	}
	return v
}

// Candidate is the opaque identity of the person taking a test.
type Candidate struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	StudentID string `json:"student_id,omitempty"`
}

// AttemptStatus represents the status of an attempt.
type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in-progress"
	AttemptCompleted  AttemptStatus = "completed"
	AttemptTimedOut   AttemptStatus = "timed-out"
	AttemptAbandoned  AttemptStatus = "abandoned"
)

// IsFinal reports whether the status is terminal.
func (s AttemptStatus) IsFinal() bool {
	switch s {
	case AttemptCompleted, AttemptTimedOut, AttemptAbandoned:
		return true
	}
	return false
}

// TestCaseResult is the outcome of running a code answer against one test case.
type TestCaseResult struct {
	TestCaseID string `json:"test_case_id"`
	Passed     bool   `json:"passed"`
	Stdout     string `json:"stdout,omitempty"`
	Stderr     string `json:"stderr,omitempty"`
	ElapsedMs  int64  `json:"elapsed_ms"`
	Error      string `json:"error,omitempty"`
}

// QuestionResponse is a candidate's answer to one question.
type QuestionResponse struct {
	QuestionID      string           `json:"question_id"`
	SelectedOptions []string         `json:"selected_options"`
	CodeAnswer      string           `json:"code_answer,omitempty"`
	Language        string           `json:"language,omitempty"`
	IsCorrect       bool             `json:"is_correct"`
	PointsEarned    float64          `json:"points_earned"`
	TimeTaken       int              `json:"time_taken"`
	TestCaseResults []TestCaseResult `json:"test_case_results,omitempty"`
}

// Attempt is one candidate's pass through one test.
type Attempt struct {
	ID               string             `json:"id"`
	TestID           string             `json:"test_id"`
	Candidate        Candidate          `json:"candidate"`
	Responses        []QuestionResponse `json:"responses"`
	Status           AttemptStatus      `json:"status"`
	Score            float64            `json:"score"`
	MaxScore         float64            `json:"max_score"`
	Percentage       int                `json:"percentage"`
	Passed           bool               `json:"passed"`
	StartedAt        time.Time          `json:"started_at"`
	CompletedAt      *time.Time         `json:"completed_at,omitempty"`
	TimeSpentSeconds int                `json:"time_spent_seconds"`
	TabSwitchCount   int                `json:"tab_switch_count"`
}

// Response returns the stored response for a question, if any.
func (a Attempt) Response(questionID string) (QuestionResponse, bool) {
	for _, r := range a.Responses {
		if r.QuestionID == questionID {
			return r, true
		}
	}
	return QuestionResponse{}, false
}

// Clone returns a deep copy of the attempt.
func (a Attempt) Clone() Attempt {
	c := a
	c.Responses = make([]QuestionResponse, len(a.Responses))
	for i, r := range a.Responses {
		r.SelectedOptions = append([]string(nil), r.SelectedOptions...)
		r.TestCaseResults = append([]TestCaseResult(nil), r.TestCaseResults...)
		c.Responses[i] = r
	}
	if a.CompletedAt != nil {
		t := *a.CompletedAt
		c.CompletedAt = &t
	}
	return c
}
