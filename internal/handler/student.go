package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/exambank/internal/exam"
	"github.com/pavelanni/exambank/internal/model"
)

// ExamSummary describes a published test to candidates.
type ExamSummary struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Description     string  `json:"description,omitempty"`
	Subject         string  `json:"subject,omitempty"`
	DurationMinutes int     `json:"duration_minutes"`
	PassingScore    int     `json:"passing_score"`
	MaxTabSwitches  int     `json:"max_tab_switches"`
	NumQuestions    int     `json:"num_questions"`
	MaxScore        float64 `json:"max_score"`
}

// ExamView is what a candidate sees of a test: no answer keys, no hidden
// test cases.
type ExamView struct {
	ExamSummary
	Questions []model.Question `json:"questions"`
}

// AttemptView is an attempt as shown to its candidate.
type AttemptView struct {
	model.Attempt
	Deadline  string           `json:"deadline,omitempty"`
	Questions []model.Question `json:"questions,omitempty"`
}

func (h *Handler) examView(t model.Test) (ExamView, error) {
	qs, err := h.exams.StudentQuestions(t.ID)
	if err != nil {
		return ExamView{}, err
	}
	v := ExamView{
		ExamSummary: ExamSummary{
			ID:              t.ID,
			Title:           t.Title,
			Description:     t.Description,
			Subject:         t.Subject,
			DurationMinutes: t.DurationMinutes,
			PassingScore:    t.EffectivePassingScore(),
			MaxTabSwitches:  t.MaxTabSwitches,
			NumQuestions:    len(qs),
		},
		Questions: qs,
	}
	for _, q := range qs {
		v.MaxScore += q.Points
	}
	return v, nil
}

func (h *Handler) handleListExams(w http.ResponseWriter, r *http.Request) {
	tests := h.exams.ListTests(model.TestPublished)
	out := make([]ExamSummary, 0, len(tests))
	for _, t := range tests {
		v, err := h.examView(t)
		if err != nil {
			continue
		}
		out = append(out, v.ExamSummary)
	}
	writeJSON(w, http.StatusOK, out)
}

// publishedTest returns a test only when candidates may see it.
func (h *Handler) publishedTest(id string) (model.Test, error) {
	t, err := h.exams.GetTest(id)
	if err != nil {
		return model.Test{}, err
	}
	if t.Status != model.TestPublished {
		return model.Test{}, exam.ErrNotPublished
	}
	return t, nil
}

func (h *Handler) handleGetExam(w http.ResponseWriter, r *http.Request) {
	t, err := h.publishedTest(chi.URLParam(r, "testID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	v, err := h.examView(t)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// attemptView hides the output of hidden test cases. Questions are attached
// in their candidate form when withQuestions is set.
func (h *Handler) attemptView(a model.Attempt, withQuestions bool) AttemptView {
	v := AttemptView{Attempt: a.Clone()}
	qs, err := h.exams.Questions(a.TestID)
	if err != nil {
		return v
	}
	hidden := make(map[string]bool)
	for _, q := range qs {
		for _, tc := range q.TestCases {
			if tc.IsHidden {
				hidden[tc.ID] = true
			}
		}
	}
	for i := range v.Responses {
		for j, res := range v.Responses[i].TestCaseResults {
			if hidden[res.TestCaseID] {
				res.Stdout, res.Stderr = "", ""
				v.Responses[i].TestCaseResults[j] = res
			}
		}
	}
	if t, err := h.exams.GetTest(a.TestID); err == nil {
		if d := exam.Deadline(a, t); !d.IsZero() {
			v.Deadline = d.UTC().Format(time.RFC3339)
		}
	}
	if withQuestions {
		for _, q := range qs {
			v.Questions = append(v.Questions, q.StudentView())
		}
	}
	return v
}

func (h *Handler) handleStartAttempt(w http.ResponseWriter, r *http.Request) {
	u := model.UserFromContext(r.Context())
	a, err := h.exams.StartAttempt(chi.URLParam(r, "testID"), model.Candidate{
		ID:   userKey(u),
		Name: u.DisplayName,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.attemptView(a, true))
}

// ownAttempt loads an attempt and checks it belongs to the caller. Authors
// may read any attempt.
func (h *Handler) ownAttempt(w http.ResponseWriter, r *http.Request) (model.Attempt, bool) {
	u := model.UserFromContext(r.Context())
	a, err := h.exams.GetAttempt(chi.URLParam(r, "attemptID"))
	if err != nil {
		writeServiceError(w, r, err)
		return model.Attempt{}, false
	}
	if a.Candidate.ID != userKey(u) && !(r.Method == http.MethodGet && u.CanAuthor()) {
		writeError(w, r, http.StatusNotFound, "ErrNotFound", "")
		return model.Attempt{}, false
	}
	return a, true
}

func (h *Handler) handleGetAttempt(w http.ResponseWriter, r *http.Request) {
	a, ok := h.ownAttempt(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.attemptView(a, a.Status == model.AttemptInProgress))
}

func (h *Handler) handleRecordResponse(w http.ResponseWriter, r *http.Request) {
	a, ok := h.ownAttempt(w, r)
	if !ok {
		return
	}
	var resp model.QuestionResponse
	if !decodeJSON(w, r, &resp) {
		return
	}
	updated, err := h.exams.RecordResponse(a.ID, resp)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.attemptView(updated, false))
}

func (h *Handler) handleTabSwitch(w http.ResponseWriter, r *http.Request) {
	a, ok := h.ownAttempt(w, r)
	if !ok {
		return
	}
	updated, err := h.exams.RecordTabSwitch(a.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.attemptView(updated, false))
}

type runCodeRequest struct {
	QuestionID string `json:"question_id"`
	Code       string `json:"code"`
	Language   string `json:"language"`
	Full       bool   `json:"full"`
}

func (h *Handler) handleRunCode(w http.ResponseWriter, r *http.Request) {
	a, ok := h.ownAttempt(w, r)
	if !ok {
		return
	}
	var req runCodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	results, err := h.exams.RunCode(r.Context(), a.ID, req.QuestionID, req.Code, req.Language, req.Full)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	passed := 0
	for _, res := range results {
		if res.Passed {
			passed++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"passed":  passed,
		"total":   len(results),
	})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	a, ok := h.ownAttempt(w, r)
	if !ok {
		return
	}
	done, err := h.exams.CompleteAttempt(a.ID, model.AttemptCompleted)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.attemptView(done, false))
}
