// Package obshttp serves the ambient observability surface: liveness and
// Prometheus metrics. It carries no rule/limiter CRUD — that surface stays
// an external collaborator reachable only through the Store/Observer Go
// interfaces.
package obshttp

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"

	"github.com/sentinelgate/policyd/internal/domain/rule"
)

// HealthResponse is the JSON response from the /healthz endpoint.
type HealthResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks"`
	Version string            `json:"version,omitempty"`
}

// ConnectionServer reports whether the Connection Server has finished
// binding its listener. Satisfied by *policyserver.Server.
type ConnectionServer interface {
	Ready() <-chan struct{}
}

// HealthChecker verifies component health for the /healthz endpoint. Pass
// nil for components that aren't wired (e.g. no policy server in a
// library-only embedding).
type HealthChecker struct {
	rules   *rule.Registry
	server  ConnectionServer
	version string
}

// NewHealthChecker builds a HealthChecker. rules and server may be nil.
func NewHealthChecker(rules *rule.Registry, server ConnectionServer, version string) *HealthChecker {
	return &HealthChecker{rules: rules, server: server, version: version}
}

// Check performs health checks on all configured components.
func (h *HealthChecker) Check() HealthResponse {
	checks := make(map[string]string)
	healthy := true

	if h.rules != nil {
		checks["rules"] = fmt.Sprintf("ok: %d loaded", len(h.rules.List()))
	} else {
		checks["rules"] = "not configured"
	}

	if h.server != nil {
		select {
		case <-h.server.Ready():
			checks["policy_server"] = "ready"
		default:
			checks["policy_server"] = "starting"
			healthy = false
		}
	} else {
		checks["policy_server"] = "not configured"
	}

	checks["goroutines"] = fmt.Sprintf("%d", runtime.NumGoroutine())

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	return HealthResponse{Status: status, Checks: checks, Version: h.version}
}

// Handler returns an HTTP handler for the /healthz endpoint.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := h.Check()

		w.Header().Set("Content-Type", "application/json")
		if health.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		_ = json.NewEncoder(w).Encode(health)
	})
}
