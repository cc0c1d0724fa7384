// health.go — liveness/readiness probes и /metrics.
// Readiness собирает проверки PostgreSQL и файлового сервиса.
package handlers

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/edushare/internal/config"
)

// serviceName — имя сервиса в ответах health endpoints.
const serviceName = "edushare"

// Статусы health check.
const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusFail     = "fail"
)

// ReadinessChecker — проверка готовности одной зависимости.
type ReadinessChecker interface {
	// Name возвращает ключ проверки в ответе.
	Name() string
	// CheckReady возвращает статус ("ok", "degraded", "fail") и сообщение.
	CheckReady() (status, message string)
}

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	checkers    []ReadinessChecker
	promHandler http.Handler
}

// NewHealthHandler создаёт обработчик health endpoints.
func NewHealthHandler(checkers ...ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		checkers:    checkers,
		promHandler: promhttp.Handler(),
	}
}

// healthCheckResult — результат проверки одной зависимости.
type healthCheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthHeader — общие поля ответов /health/*.
type healthHeader struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
}

type healthLiveResponse struct {
	healthHeader
}

type healthReadyResponse struct {
	healthHeader
	Checks map[string]healthCheckResult `json:"checks"`
}

func newHealthHeader(status string) healthHeader {
	return healthHeader{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
	}
}

// HealthLive отвечает 200, пока процесс обслуживает запросы.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthLiveResponse{newHealthHeader(statusOK)})
}

// HealthReady опрашивает все проверки: ok и degraded — 200, fail — 503.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	checks := make(map[string]healthCheckResult, len(h.checkers))
	worst := statusOK
	for _, c := range h.checkers {
		status, msg := c.CheckReady()
		checks[c.Name()] = healthCheckResult{Status: status, Message: msg}
		worst = worseStatus(worst, status)
	}

	code := http.StatusOK
	if worst == statusFail {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, healthReadyResponse{healthHeader: newHealthHeader(worst), Checks: checks})
}

// GetMetrics отдаёт Prometheus-метрики процесса.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}

// statusRank упорядочивает статусы по тяжести; неизвестный статус считается fail.
func statusRank(s string) int {
	switch s {
	case statusOK:
		return 0
	case statusDegraded:
		return 1
	default:
		return 2
	}
}

func worseStatus(a, b string) string {
	if statusRank(b) > statusRank(a) {
		if statusRank(b) == 2 {
			return statusFail
		}
		return b
	}
	return a
}
