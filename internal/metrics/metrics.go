// Package metrics exposes service counters and histograms in Prometheus text
// format.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	vm "github.com/VictoriaMetrics/metrics"
)

// Mutation results.
const (
	ResultOK       = "ok"
	ResultInvalid  = "invalid"
	ResultNotFound = "not_found"
	ResultError    = "error"
)

// ObserveRequest records one served HTTP request.
func ObserveRequest(route string, code int, start time.Time) {
	vm.GetOrCreateCounter(fmt.Sprintf(`heroes_http_requests_total{route=%q,code="%d"}`, route, code)).Inc()
	vm.GetOrCreateHistogram(fmt.Sprintf(`heroes_http_request_duration_seconds{route=%q}`, route)).UpdateDuration(start)
}

// ObserveMutation records the outcome of one create, update or delete.
func ObserveMutation(op, result string) {
	vm.GetOrCreateCounter(fmt.Sprintf(`heroes_mutations_total{op=%q,result=%q}`, op, result)).Inc()
}

// ObserveStorageError counts failed loads and saves.
func ObserveStorageError(op string) {
	vm.GetOrCreateCounter(fmt.Sprintf(`heroes_storage_errors_total{op=%q}`, op)).Inc()
}

// ObserveSearch records the size of a search result.
func ObserveSearch(results int) {
	vm.GetOrCreateHistogram(`heroes_search_results`).Update(float64(results))
}

// Handler serves every registered metric plus process metrics.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		vm.WritePrometheus(w, true)
	})
}
