// Package handler serves the JSON API for question bank authoring, test
// management and candidate attempts.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pavelanni/exambank/internal/bank"
	"github.com/pavelanni/exambank/internal/exam"
	appI18n "github.com/pavelanni/exambank/internal/i18n"
	"github.com/pavelanni/exambank/internal/llm"
	"github.com/pavelanni/exambank/internal/metrics"
	"github.com/pavelanni/exambank/internal/model"
	"github.com/pavelanni/exambank/internal/runner"
	"github.com/pavelanni/exambank/internal/selector"
	"github.com/pavelanni/exambank/internal/store"
)

const maxBodyBytes = 1 << 20

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store  *store.Store
	bank   *bank.Store
	exams  *exam.Service
	llm    *llm.Client
	config model.ServerConfig
}

// New creates a new Handler. l may be nil when explanations are disabled.
func New(s *store.Store, b *bank.Store, e *exam.Service, l *llm.Client, cfg model.ServerConfig) *Handler {
	return &Handler{store: s, bank: b, exams: e, llm: l, config: cfg}
}

// Router builds the complete HTTP handler, mounted under the configured base
// path.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(appI18n.Middleware())

	if h.config.BasePath != "" {
		r.Route(h.config.BasePath, h.Routes)
	} else {
		h.Routes(r)
	}
	return r
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Use(h.basePathMiddleware)
	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(h.csrfMiddleware)
		r.Get("/csrf", h.handleCSRF)
		r.Post("/login", h.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Post("/logout", h.handleLogout)
			r.Get("/me", h.handleMe)

			// Candidate surface, open to every signed-in user.
			r.Get("/exams", h.handleListExams)
			r.Get("/exams/{testID}", h.handleGetExam)
			r.Post("/exams/{testID}/attempts", h.handleStartAttempt)
			r.Route("/attempts/{attemptID}", func(r chi.Router) {
				r.Get("/", h.handleGetAttempt)
				r.Put("/responses", h.handleRecordResponse)
				r.Post("/tab-switch", h.handleTabSwitch)
				r.Post("/run", h.handleRunCode)
				r.Post("/submit", h.handleSubmit)
			})

			r.Group(func(r chi.Router) {
				r.Use(requireRole(model.UserRoleAdmin, model.UserRoleTeacher))
				h.bankRoutes(r)
				h.testRoutes(r)
			})

			r.Group(func(r chi.Router) {
				r.Use(requireRole(model.UserRoleAdmin))
				r.Get("/users", h.handleListUsers)
				r.Post("/users", h.handleCreateUser)
				r.Post("/users/{userID}/toggle-active", h.handleToggleUserActive)
				r.Post("/users/{userID}/password", h.handleResetPassword)
			})
		})
	})
}

func (h *Handler) basePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// cookiePath scopes cookies to the base path.
func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	body := map[string]any{
		"status":          "ok",
		"bank_questions":  h.bank.Len(),
		"languages":       appI18n.Languages(),
		"explain_enabled": h.llm.Enabled(),
	}
	if err := h.store.Ping(ctx); err != nil {
		slog.Error("health check: database unreachable", "error", err)
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
		body["database"] = err.Error()
	}
	writeJSON(w, status, body)
}

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// writeError sends a localized error. msgID doubles as the machine-readable
// code.
func writeError(w http.ResponseWriter, r *http.Request, status int, msgID, detail string) {
	writeJSON(w, status, ErrorResponse{
		Code:    msgID,
		Message: appI18n.T(r.Context(), msgID),
		Detail:  detail,
	})
}

// writeServiceError maps domain errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, exam.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "ErrNotFound", err.Error())
	case errors.Is(err, exam.ErrInvalid):
		writeError(w, r, http.StatusBadRequest, "ErrBadRequest", err.Error())
	case errors.Is(err, selector.ErrInvalidCriteria):
		writeError(w, r, http.StatusBadRequest, "ErrInvalidCriteria", err.Error())
	case errors.Is(err, exam.ErrNotPublished):
		writeError(w, r, http.StatusConflict, "ErrTestNotPublished", "")
	case errors.Is(err, exam.ErrAttemptFinalized):
		writeError(w, r, http.StatusConflict, "ErrAttemptFinalized", "")
	case errors.Is(err, runner.ErrUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, "ErrRunnerUnavailable", "")
	default:
		slog.Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, r, http.StatusInternalServerError, "ErrInternal", "")
	}
}

// decodeJSON reads a size-limited JSON body into v and answers 400 on
// failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, "ErrBadRequest", err.Error())
		return false
	}
	return true
}

// orEmpty keeps empty lists from encoding as null.
func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// userKey is the candidate id used for a signed-in user.
func userKey(u *model.User) string {
	return strconv.FormatInt(u.ID, 10)
}
