package handler

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/exambank/internal/bank"
	"github.com/pavelanni/exambank/internal/csvimport"
	appI18n "github.com/pavelanni/exambank/internal/i18n"
	"github.com/pavelanni/exambank/internal/llm"
	"github.com/pavelanni/exambank/internal/metrics"
	"github.com/pavelanni/exambank/internal/model"
	"github.com/pavelanni/exambank/internal/store"
)

const maxUploadBytes = 10 << 20

func (h *Handler) bankRoutes(r chi.Router) {
	r.Route("/bank", func(r chi.Router) {
		r.Get("/", h.handleListBank)
		r.Post("/import", h.handleImportCSV)
		r.Get("/imports", h.handleListImports)
		r.Get("/sample.csv", h.handleSampleCSV)
		r.Get("/stats", h.handleBankStats)
		r.Get("/subjects", h.handleSubjects)
		r.Get("/topics", h.handleTopics)
		r.Post("/delete", h.handleDeleteBankQuestions)
		r.Post("/reset-usage", h.handleResetUsage)
		r.Get("/{questionID}", h.handleGetBankQuestion)
		r.Delete("/{questionID}", h.handleDeleteBankQuestion)
		r.Post("/{questionID}/explain", h.handleExplain)
	})
}

// FieldProblem is a localized CSV validation error.
type FieldProblem struct {
	Row     int    `json:"row"`
	Field   string `json:"field,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ImportResponse reports the outcome of a CSV upload.
type ImportResponse struct {
	Status          csvimport.Status               `json:"status"`
	Format          csvimport.Format               `json:"format,omitempty"`
	DryRun          bool                           `json:"dry_run"`
	TotalRows       int                            `json:"total_rows"`
	Valid           int                            `json:"valid"`
	Added           int                            `json:"added"`
	SkippedExisting int                            `json:"skipped_existing"`
	RejectedRows    int                            `json:"rejected_rows"`
	ByType          map[model.BankQuestionType]int `json:"by_type"`
	Errors          []FieldProblem                 `json:"errors"`
	Message         string                         `json:"message"`
	Notice          string                         `json:"notice,omitempty"`
}

func localizeFieldErrors(r *http.Request, errs []csvimport.FieldError) []FieldProblem {
	out := make([]FieldProblem, 0, len(errs))
	for _, e := range errs {
		out = append(out, FieldProblem{
			Row:     e.Row,
			Field:   e.Field,
			Code:    e.Code,
			Message: appI18n.Td(r.Context(), e.Code, map[string]any{"Row": e.Row, "Field": e.Field}),
		})
	}
	return out
}

// readUpload returns the CSV document from a multipart "file" field or, for
// any other content type, the raw request body.
func readUpload(w http.ResponseWriter, r *http.Request) (data []byte, filename string, err error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return nil, "", err
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, "", err
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		return data, header.Filename, err
	}
	data, err = io.ReadAll(r.Body)
	name := r.URL.Query().Get("filename")
	if name == "" {
		name = "upload.csv"
	}
	return data, name, err
}

func (h *Handler) handleImportCSV(w http.ResponseWriter, r *http.Request) {
	data, filename, err := readUpload(w, r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "ErrBadRequest", err.Error())
		return
	}
	dryRun := r.URL.Query().Get("dry_run") == "true"

	res, err := csvimport.Parse(string(data))
	resp := ImportResponse{
		Status:       res.Status,
		Format:       res.Format,
		DryRun:       dryRun,
		TotalRows:    res.TotalRows,
		Valid:        res.ValidCount(),
		RejectedRows: res.InvalidRows(),
		ByType:       res.CountByType(),
		Errors:       localizeFieldErrors(r, res.Errors),
	}
	if errors.Is(err, csvimport.ErrInvalidHeader) {
		resp.Message = appI18n.T(r.Context(), "ErrHeaderInvalid")
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}

	hash := store.HashContent(data)
	prev, err := h.store.GetImport(hash)
	if err != nil {
		slog.Error("failed to check import history", "error", err)
	}
	if prev != nil {
		resp.Notice = appI18n.Td(r.Context(), "ImportAlreadySeen", map[string]any{
			"Date": prev.ImportedAt.Format(time.DateTime),
		})
	}

	if !dryRun {
		added := h.bank.AddQuestions(res.Questions)
		resp.Added = len(added)
		resp.SkippedExisting = res.ValidCount() - len(added)
		metrics.ObserveImport(resp.Added, resp.RejectedRows)
		metrics.SetBankSize(h.bank.Len())

		rec := store.ImportRecord{
			Hash:       hash,
			Filename:   filename,
			Added:      resp.Added,
			Rejected:   resp.RejectedRows,
			ImportedAt: time.Now().UTC(),
		}
		if err := h.store.RecordImport(rec); err != nil {
			slog.Error("failed to record import", "filename", filename, "error", err)
		}
		slog.Info("imported bank csv", "filename", filename, "added", resp.Added,
			"skipped", resp.SkippedExisting, "rejected", resp.RejectedRows)
	}
	resp.Message = appI18n.Tp(r.Context(), "QuestionsImported", resp.Added)
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListImports(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListImports()
	if err != nil {
		slog.Error("failed to list imports", "error", err)
		writeError(w, r, http.StatusInternalServerError, "ErrInternal", "")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleSampleCSV(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="question-bank-sample.csv"`)
	if _, err := io.WriteString(w, csvimport.SampleCSV()); err != nil {
		slog.Error("write sample csv", "error", err)
	}
}

// splitList turns repeated and comma-separated query values into one list.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func (h *Handler) handleListBank(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := bank.Filter{
		Subject:    q.Get("subject"),
		Topics:     splitList(q["topic"]),
		Difficulty: model.Difficulty(strings.ToLower(q.Get("difficulty"))),
		Search:     q.Get("q"),
		Usage:      bank.Usage(q.Get("usage")),
		ExcludeFor: q.Get("exclude_exam"),
	}
	if t := q.Get("type"); t != "" {
		typ, ok := model.ParseBankQuestionType(t)
		if !ok {
			writeError(w, r, http.StatusBadRequest, "ErrBadRequest", "unknown question type "+t)
			return
		}
		f.Type = typ
	}
	if f.Difficulty != "" && !f.Difficulty.Valid() {
		writeError(w, r, http.StatusBadRequest, "ErrBadRequest", "unknown difficulty "+string(f.Difficulty))
		return
	}
	questions := orEmpty(h.bank.Filter(f))
	writeJSON(w, http.StatusOK, map[string]any{
		"questions": questions,
		"count":     len(questions),
		"message":   appI18n.Tp(r.Context(), "QuestionsAvailable", len(questions)),
	})
}

func (h *Handler) handleBankStats(w http.ResponseWriter, r *http.Request) {
	reset, err := h.store.LastBankReset()
	if err != nil {
		slog.Error("failed to read bank reset time", "error", err)
	}
	body := map[string]any{"stats": h.bank.Stats()}
	if !reset.IsZero() {
		body["usage_reset_at"] = reset
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *Handler) handleSubjects(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, orEmpty(h.bank.Subjects()))
}

func (h *Handler) handleTopics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, orEmpty(h.bank.Topics(r.URL.Query().Get("subject"))))
}

func (h *Handler) handleGetBankQuestion(w http.ResponseWriter, r *http.Request) {
	q, ok := h.bank.Get(chi.URLParam(r, "questionID"))
	if !ok {
		writeError(w, r, http.StatusNotFound, "ErrNotFound", "")
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *Handler) handleDeleteBankQuestion(w http.ResponseWriter, r *http.Request) {
	if !h.bank.RemoveQuestion(chi.URLParam(r, "questionID")) {
		writeError(w, r, http.StatusNotFound, "ErrNotFound", "")
		return
	}
	metrics.SetBankSize(h.bank.Len())
	w.WriteHeader(http.StatusNoContent)
}

type idsRequest struct {
	IDs []string `json:"ids"`
}

func (h *Handler) handleDeleteBankQuestions(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	removed := h.bank.RemoveQuestions(req.IDs)
	metrics.SetBankSize(h.bank.Len())
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (h *Handler) handleResetUsage(w http.ResponseWriter, r *http.Request) {
	n := h.bank.ResetAllUsage()
	if err := h.store.MarkBankReset(time.Now()); err != nil {
		slog.Error("failed to record bank reset", "error", err)
	}
	slog.Info("reset bank usage", "questions", n)
	writeJSON(w, http.StatusOK, map[string]any{
		"reset":   n,
		"message": appI18n.Tp(r.Context(), "UsageReset", n),
	})
}

// handleExplain drafts an explanation with the LLM. With ?apply=true the
// draft is stored on the question.
func (h *Handler) handleExplain(w http.ResponseWriter, r *http.Request) {
	if !h.llm.Enabled() {
		writeError(w, r, http.StatusServiceUnavailable, "ErrExplainUnavailable", "")
		return
	}
	q, ok := h.bank.Get(chi.URLParam(r, "questionID"))
	if !ok {
		writeError(w, r, http.StatusNotFound, "ErrNotFound", "")
		return
	}

	exp, err := h.llm.Explain(r.Context(), q)
	if errors.Is(err, llm.ErrNotExplainable) {
		writeError(w, r, http.StatusBadRequest, "ErrBadRequest", err.Error())
		return
	}
	if err != nil {
		slog.Error("explanation failed", "question", q.ID, "error", err)
		writeError(w, r, http.StatusBadGateway, "ErrInternal", "")
		return
	}

	applied := false
	if r.URL.Query().Get("apply") == "true" {
		applied = h.bank.SetExplanation(q.ID, exp.Explanation)
	}
	writeJSON(w, http.StatusOK, map[string]any{"explanation": exp, "applied": applied})
}
