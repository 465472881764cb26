package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/exambank/internal/model"
)

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/api/tests/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/tests/{id}", "418"))
	for _, id := range []string{"a", "b", "c"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/tests/"+id, nil))
	}
	after := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/tests/{id}", "418"))
	assert.Equal(t, 3.0, after-before)
	assert.Equal(t, 0.0, testutil.ToFloat64(httpInFlight))
}

func TestDomainCounters(t *testing.T) {
	imported := testutil.ToFloat64(csvRows.WithLabelValues("imported"))
	rejected := testutil.ToFloat64(csvRows.WithLabelValues("rejected"))
	ObserveImport(7, 2)
	assert.Equal(t, 7.0, testutil.ToFloat64(csvRows.WithLabelValues("imported"))-imported)
	assert.Equal(t, 2.0, testutil.ToFloat64(csvRows.WithLabelValues("rejected"))-rejected)

	SetBankSize(42)
	assert.Equal(t, 42.0, testutil.ToFloat64(bankSize))

	partial := testutil.ToFloat64(selections.WithLabelValues(SelectionPartial))
	ObserveSelection(SelectionPartial)
	assert.Equal(t, 1.0, testutil.ToFloat64(selections.WithLabelValues(SelectionPartial))-partial)

	timedOut := testutil.ToFloat64(attemptsFinalized.WithLabelValues("timed-out"))
	ObserveAttempt(model.Attempt{Status: model.AttemptTimedOut, Percentage: 55})
	assert.Equal(t, 1.0, testutil.ToFloat64(attemptsFinalized.WithLabelValues("timed-out"))-timedOut)
}

func TestHandlerExposesCollectors(t *testing.T) {
	ObserveSelection(SelectionFull)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "exambank_selections_total"))
}
