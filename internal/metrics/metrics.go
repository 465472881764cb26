// Package metrics exposes Prometheus collectors for the HTTP layer and the
// bank, selection and attempt lifecycle.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pavelanni/exambank/internal/model"
)

const namespace = "exambank"

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests received",
	}, []string{"method", "route", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	httpInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "http_in_flight_requests",
		Help:      "Current number of in-flight HTTP requests",
	})

	csvRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "csv_rows_total",
		Help:      "CSV data rows processed by import, by outcome",
	}, []string{"outcome"})

	bankSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "bank_questions",
		Help:      "Number of questions currently in the bank",
	})

	selections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "selections_total",
		Help:      "Question selections, by outcome",
	}, []string{"outcome"})

	attemptsFinalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "attempts_finalized_total",
		Help:      "Finalized attempts, by final status",
	}, []string{"status"})

	attemptPercentage = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "attempt_percentage",
		Help:      "Percentage scored by finalized attempts",
		Buckets:   prometheus.LinearBuckets(10, 10, 10),
	})
)

// Selection outcomes.
const (
	SelectionFull    = "full"
	SelectionPartial = "partial"
	SelectionEmpty   = "empty"
	SelectionInvalid = "invalid"
)

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware records request metrics. Requests are labelled with the chi
// route pattern so path parameters do not create new series.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		labels := prometheus.Labels{
			"method": r.Method,
			"route":  route,
			"status": strconv.Itoa(rec.status),
		}
		httpRequests.With(labels).Inc()
		httpLatency.With(labels).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes the default Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveImport counts accepted and rejected CSV rows.
func ObserveImport(added, rejected int) {
	csvRows.WithLabelValues("imported").Add(float64(added))
	csvRows.WithLabelValues("rejected").Add(float64(rejected))
}

// SetBankSize reports the current number of bank questions.
func SetBankSize(n int) {
	bankSize.Set(float64(n))
}

// ObserveSelection counts a selection by outcome.
func ObserveSelection(outcome string) {
	selections.WithLabelValues(outcome).Inc()
}

// ObserveAttempt records a finalized attempt. It matches the signature of
// the exam service's finalize hook.
func ObserveAttempt(a model.Attempt) {
	attemptsFinalized.WithLabelValues(string(a.Status)).Inc()
	attemptPercentage.Observe(float64(a.Percentage))
}
