package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/chloebot/chloe/server/metrics"
)

// PrometheusMetrics records per-endpoint request counts, durations and the
// active-request gauge.
func PrometheusMetrics(m *metrics.Metrics) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			m.ActiveRequests.WithLabelValues(r.URL.Path).Inc()
			defer m.ActiveRequests.WithLabelValues(r.URL.Path).Dec()

			rec := record(w)
			next.ServeHTTP(rec, r)

			status := rec.statusCode()
			m.RequestsTotal.WithLabelValues(r.URL.Path, strconv.Itoa(status)).Inc()
			m.RequestDuration.WithLabelValues(r.URL.Path).Observe(time.Since(start).Seconds())

			switch {
			case status >= 500:
				m.ErrorsTotal.WithLabelValues("server_error").Inc()
			case status >= 400:
				m.ErrorsTotal.WithLabelValues("client_error").Inc()
			}
		})
	}
}
