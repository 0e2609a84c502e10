package gateway

import (
	"context"
	"net/http"
	"time"
)

const readyTimeout = 5 * time.Second

// HealthResponse is the JSON response for GET /health and GET /ready.
type HealthResponse struct {
	Status string `json:"status"`

	// Modules maps each checked module to "ok" or its error.
	Modules map[string]string `json:"modules,omitempty"`
}

// handleHealth is the liveness probe: the process is up and serving HTTP.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
	}
}

// handleReady is the readiness probe. It answers 503 when a module
// reports itself unhealthy, such as a closed ledger database or an MCP
// server that stopped answering pings.
func (g *Gateway) handleReady() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{Status: "ok"}
		code := http.StatusOK
		if g.health == nil {
			writeJSON(w, code, resp)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		results := g.health.Health(ctx)
		resp.Modules = make(map[string]string, len(results))
		for id, err := range results {
			if err != nil {
				resp.Modules[string(id)] = err.Error()
				resp.Status = "unavailable"
				code = http.StatusServiceUnavailable
				g.logger.Warn("module unhealthy", "module", string(id), "error", err)
				continue
			}
			resp.Modules[string(id)] = "ok"
		}
		writeJSON(w, code, resp)
	}
}
