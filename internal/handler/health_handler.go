package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"chamber-agent/internal/notify"
)

// Health returns basic health check
func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
	})
}

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status    string                 `json:"status"`
	LatencyMs int64                  `json:"latency_ms,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// Ready returns readiness check with dependencies. Both dependencies are
// optional: the agent can run with a file store and without a broker.
func Ready(db *sql.DB, notifier *notify.AMQPNotifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		checks := map[string]HealthCheckResult{}
		allHealthy := true

		if db != nil {
			result := checkDatabase(ctx, db)
			checks["database"] = result
			allHealthy = allHealthy && result.Status == "up"
		}
		if notifier != nil {
			result := checkBroker(notifier)
			checks["rabbitmq"] = result
			allHealthy = allHealthy && result.Status == "up"
		}

		response := map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"checks":    checks,
		}

		w.Header().Set("Content-Type", "application/json")
		if allHealthy {
			response["status"] = "ready"
			w.WriteHeader(http.StatusOK)
		} else {
			response["status"] = "not_ready"
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		json.NewEncoder(w).Encode(response)
	}
}

// checkDatabase verifies database connectivity
func checkDatabase(ctx context.Context, db *sql.DB) HealthCheckResult {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	if err != nil {
		return HealthCheckResult{
			Status:    "down",
			LatencyMs: latency.Milliseconds(),
			Error:     err.Error(),
		}
	}

	stats := db.Stats()
	return HealthCheckResult{
		Status:    "up",
		LatencyMs: latency.Milliseconds(),
		Metadata: map[string]interface{}{
			"connections_open":   stats.OpenConnections,
			"connections_in_use": stats.InUse,
			"connections_idle":   stats.Idle,
			"max_open":           stats.MaxOpenConnections,
		},
	}
}

// checkBroker verifies RabbitMQ connectivity
func checkBroker(notifier *notify.AMQPNotifier) HealthCheckResult {
	if notifier.IsClosed() {
		return HealthCheckResult{
			Status: "down",
			Error:  "connection closed",
		}
	}
	return HealthCheckResult{Status: "up"}
}
