// Package middleware provides HTTP middleware for the kernel server.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orket_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orket_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	cardClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orket_card_claims_total",
			Help: "Total card claim attempts by outcome",
		},
		[]string{"outcome"}, // success, not_found, conflict, error
	)

	cardRenewalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orket_card_renewals_total",
			Help: "Total card renewal attempts by outcome",
		},
		[]string{"outcome"}, // success, not_found, expired, conflict, error
	)

	cardTerminationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orket_card_terminations_total",
			Help: "Total card complete/fail calls by transition",
		},
		[]string{"transition", "first_writer"}, // complete|fail, true|false
	)

	promotionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orket_promotions_total",
			Help: "Total promotion attempts by outcome code",
		},
		[]string{"code"},
	)

	odrStopsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orket_odr_stops_total",
			Help: "Total ODR reactor stops by reason",
		},
		[]string{"reason"},
	)

	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orket_errors_total",
			Help: "Total number of HTTP errors by class",
		},
		[]string{"type"},
	)
)

type metricsResponseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.status = code
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}

// Metrics returns a middleware that records Prometheus metrics for every request.
func Metrics() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			path := normalizePath(r)
			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.status)

			httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)

			if wrapped.status >= 400 {
				errorType := "client_error"
				if wrapped.status >= 500 {
					errorType = "server_error"
				}
				errorsTotal.WithLabelValues(errorType).Inc()
			}
		})
	}
}

// RecordCardClaim records the outcome of a claim attempt.
func RecordCardClaim(outcome string) { cardClaimsTotal.WithLabelValues(outcome).Inc() }

// RecordCardRenewal records the outcome of a renew attempt.
func RecordCardRenewal(outcome string) { cardRenewalsTotal.WithLabelValues(outcome).Inc() }

// RecordCardTermination records a complete/fail call and whether it was the first writer.
func RecordCardTermination(transition string, firstWriter bool) {
	cardTerminationsTotal.WithLabelValues(transition, strconv.FormatBool(firstWriter)).Inc()
}

// RecordPromotion records a promotion attempt's outcome code.
func RecordPromotion(code string) { promotionsTotal.WithLabelValues(code).Inc() }

// RecordODRStop records an ODR reactor stop reason.
func RecordODRStop(reason string) { odrStopsTotal.WithLabelValues(reason).Inc() }

// normalizePath normalizes URL paths to prevent cardinality explosion.
func normalizePath(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}

	path := r.URL.Path
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if len(seg) == 36 && strings.Count(seg, "-") == 4 {
			segments[i] = "{id}"
		}
		if len(seg) == 26 && isAlphanumeric(seg) {
			segments[i] = "{id}"
		}
	}
	return strings.Join(segments, "/")
}

func isAlphanumeric(s string) bool {
	for _, c := range s {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')) {
			return false
		}
	}
	return true
}
