package model

import "time"

// ExamExport is the top-level JSON structure for attempt result export.
type ExamExport struct {
	TestID       string          `json:"test_id"`
	Title        string          `json:"title"`
	Subject      string          `json:"subject"`
	PassingScore int             `json:"passing_score"`
	NumQuestions int             `json:"num_questions"`
	MaxScore     float64         `json:"max_score"`
	ExportedAt   time.Time       `json:"exported_at"`
	Results      []StudentResult `json:"results"`
}

// StudentResult holds one candidate's attempt data for export.
type StudentResult struct {
	AttemptID        string           `json:"attempt_id"`
	Candidate        Candidate        `json:"candidate"`
	AttemptNumber    int              `json:"attempt_number"`
	Status           AttemptStatus    `json:"status"`
	StartedAt        time.Time        `json:"started_at"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
	TimeSpentSeconds int              `json:"time_spent_seconds"`
	TabSwitchCount   int              `json:"tab_switch_count"`
	Score            float64          `json:"score"`
	Percentage       int              `json:"percentage"`
	Passed           bool             `json:"passed"`
	Questions        []QuestionResult `json:"questions"`
}

// QuestionResult holds per-question data for export.
type QuestionResult struct {
	Order           int          `json:"order"`
	Text            string       `json:"text"`
	Type            QuestionKind `json:"type"`
	Topic           string       `json:"topic"`
	Difficulty      Difficulty   `json:"difficulty"`
	Points          float64      `json:"points"`
	SelectedOptions []string     `json:"selected_options,omitempty"`
	CodeAnswer      string       `json:"code_answer,omitempty"`
	IsCorrect       bool         `json:"is_correct"`
	PointsEarned    float64      `json:"points_earned"`
}
