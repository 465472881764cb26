package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/pavelanni/exambank/internal/i18n"
	"github.com/pavelanni/exambank/internal/metrics"
	"github.com/pavelanni/exambank/internal/model"
	"github.com/pavelanni/exambank/internal/selector"
)

func (h *Handler) testRoutes(r chi.Router) {
	r.Post("/selection/preview", h.handlePreviewSelection)

	r.Route("/tests", func(r chi.Router) {
		r.Get("/", h.handleListTests)
		r.Post("/", h.handleCreateTest)
		r.Route("/{testID}", func(r chi.Router) {
			r.Get("/", h.handleGetTest)
			r.Put("/", h.handleUpdateTest)
			r.Delete("/", h.handleDeleteTest)
			r.Post("/publish", h.handlePublishTest)
			r.Post("/unpublish", h.handleUnpublishTest)
			r.Get("/questions", h.handleListQuestions)
			r.Post("/questions", h.handleAddQuestion)
			r.Post("/questions/reorder", h.handleReorderQuestions)
			r.Post("/import-bank", h.handleImportFromBank)
			r.Post("/select", h.handleSelectIntoTest)
			r.Get("/analytics", h.handleAnalytics)
			r.Get("/attempts", h.handleListAttempts)
			r.Get("/export", h.handleExportTest)
		})
	})

	r.Put("/questions/{questionID}", h.handleUpdateQuestion)
	r.Delete("/questions/{questionID}", h.handleDeleteQuestion)
}

// TestDetail is a test with its questions and answer keys.
type TestDetail struct {
	model.Test
	Questions []model.Question `json:"questions"`
	MaxScore  float64          `json:"max_score"`
}

func (h *Handler) testDetail(id string) (TestDetail, error) {
	t, err := h.exams.GetTest(id)
	if err != nil {
		return TestDetail{}, err
	}
	qs, err := h.exams.Questions(id)
	if err != nil {
		return TestDetail{}, err
	}
	d := TestDetail{Test: t, Questions: qs}
	for _, q := range qs {
		d.MaxScore += q.Points
	}
	return d, nil
}

func (h *Handler) handleListTests(w http.ResponseWriter, r *http.Request) {
	status := model.TestStatus(r.URL.Query().Get("status"))
	writeJSON(w, http.StatusOK, orEmpty(h.exams.ListTests(status)))
}

func (h *Handler) handleCreateTest(w http.ResponseWriter, r *http.Request) {
	var t model.Test
	if !decodeJSON(w, r, &t) {
		return
	}
	if t.PassingScore == 0 {
		t.PassingScore = h.config.DefaultPassingScore
	}
	if u := model.UserFromContext(r.Context()); u != nil {
		t.CreatedBy = u.ID
	}
	created, err := h.exams.CreateTest(t)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleGetTest(w http.ResponseWriter, r *http.Request) {
	d, err := h.testDetail(chi.URLParam(r, "testID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) handleUpdateTest(w http.ResponseWriter, r *http.Request) {
	var t model.Test
	if !decodeJSON(w, r, &t) {
		return
	}
	t.ID = chi.URLParam(r, "testID")
	updated, err := h.exams.UpdateTest(t)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleDeleteTest(w http.ResponseWriter, r *http.Request) {
	if err := h.exams.DeleteTest(chi.URLParam(r, "testID")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePublishTest(w http.ResponseWriter, r *http.Request) {
	t, err := h.exams.PublishTest(chi.URLParam(r, "testID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) handleUnpublishTest(w http.ResponseWriter, r *http.Request) {
	t, err := h.exams.UnpublishTest(chi.URLParam(r, "testID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	qs, err := h.exams.Questions(chi.URLParam(r, "testID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, qs)
}

func (h *Handler) handleAddQuestion(w http.ResponseWriter, r *http.Request) {
	var q model.Question
	if !decodeJSON(w, r, &q) {
		return
	}
	added, err := h.exams.AddQuestion(chi.URLParam(r, "testID"), q)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, added)
}

func (h *Handler) handleUpdateQuestion(w http.ResponseWriter, r *http.Request) {
	var q model.Question
	if !decodeJSON(w, r, &q) {
		return
	}
	q.ID = chi.URLParam(r, "questionID")
	updated, err := h.exams.UpdateQuestion(q)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	if err := h.exams.DeleteQuestion(chi.URLParam(r, "questionID")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleReorderQuestions(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	qs, err := h.exams.ReorderQuestions(chi.URLParam(r, "testID"), req.IDs)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, qs)
}

// scoringRequest carries the points applied to questions taken from the bank.
type scoringRequest struct {
	Points          float64 `json:"points"`
	NegativeMarking float64 `json:"negative_marking"`
}

func (s scoringRequest) points() float64 {
	if s.Points == 0 {
		return 1
	}
	return s.Points
}

type importBankRequest struct {
	BankIDs []string `json:"bank_ids"`
	scoringRequest
}

func (h *Handler) handleImportFromBank(w http.ResponseWriter, r *http.Request) {
	var req importBankRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	added, err := h.exams.ImportFromBank(chi.URLParam(r, "testID"), req.BankIDs, req.points(), req.NegativeMarking)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"added": orEmpty(added)})
}

// SelectionResponse is a selector result with its warning localized.
type SelectionResponse struct {
	selector.Result
	Added []model.Question `json:"added,omitempty"`
}

func localizeSelection(r *http.Request, res selector.Result) selector.Result {
	switch res.WarningCode {
	case selector.WarnNoMatches:
		res.Warning = appI18n.T(r.Context(), res.WarningCode)
	case selector.WarnInsufficient:
		res.Warning = appI18n.Td(r.Context(), res.WarningCode, map[string]any{
			"Selected":  res.SelectedCount,
			"Requested": res.RequestedCount,
		})
	}
	return res
}

func observeSelection(res selector.Result, err error) {
	switch {
	case errors.Is(err, selector.ErrInvalidCriteria):
		metrics.ObserveSelection(metrics.SelectionInvalid)
	case err != nil:
	case res.SelectedCount == 0:
		metrics.ObserveSelection(metrics.SelectionEmpty)
	case res.Success:
		metrics.ObserveSelection(metrics.SelectionFull)
	default:
		metrics.ObserveSelection(metrics.SelectionPartial)
	}
}

func (h *Handler) handlePreviewSelection(w http.ResponseWriter, r *http.Request) {
	var c selector.Criteria
	if !decodeJSON(w, r, &c) {
		return
	}
	res, err := h.exams.PreviewSelection(c)
	observeSelection(res, err)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SelectionResponse{Result: localizeSelection(r, res)})
}

type selectRequest struct {
	selector.Criteria
	scoringRequest
}

func (h *Handler) handleSelectIntoTest(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, added, err := h.exams.SelectIntoTest(chi.URLParam(r, "testID"), req.Criteria, req.points(), req.NegativeMarking)
	observeSelection(res, err)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SelectionResponse{Result: localizeSelection(r, res), Added: orEmpty(added)})
}

func (h *Handler) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	a, err := h.exams.Analytics(chi.URLParam(r, "testID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) handleListAttempts(w http.ResponseWriter, r *http.Request) {
	testID := chi.URLParam(r, "testID")
	if _, err := h.exams.GetTest(testID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(h.exams.ListAttempts(testID)))
}

func (h *Handler) handleExportTest(w http.ResponseWriter, r *http.Request) {
	testID := chi.URLParam(r, "testID")
	if _, err := h.exams.GetTest(testID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	exp, err := h.store.ExportTest(testID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="results-`+testID+`.json"`)
	writeJSON(w, http.StatusOK, exp)
}
