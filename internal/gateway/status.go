package gateway

import (
	"net/http"
	"time"

	"github.com/flemzord/agentbridge/internal/cron"
	"github.com/flemzord/agentbridge/internal/ledger"
	"github.com/flemzord/agentbridge/internal/provider"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Uptime          int64            `json:"uptime_seconds"`
	Sessions        int              `json:"sessions"`
	RunningSessions int              `json:"running_sessions"`
	Metrics         MetricsSnapshot  `json:"metrics"`
	Ledger          *ledger.Totals   `json:"ledger,omitempty"`
	Providers       []provider.Kind  `json:"providers"`
	Tools           []string         `json:"tools"`
	Jobs            []cron.JobStatus `json:"jobs,omitempty"`
}

// handleStatus returns an http.HandlerFunc for GET /status.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := StatusResponse{
			Uptime:    int64(time.Since(g.startedAt).Seconds()),
			Providers: []provider.Kind{},
			Tools:     []string{},
		}
		if g.metrics != nil {
			resp.Metrics = g.metrics.Snapshot()
		}
		if g.sessions != nil {
			resp.Sessions = g.sessions.Len()
			resp.RunningSessions = g.sessions.Running()
		}
		if g.ledger != nil {
			totals, err := g.ledger.Totals(r.Context())
			if err != nil {
				g.logger.Warn("ledger totals unavailable", "error", err)
			} else {
				resp.Ledger = &totals
			}
		}
		if g.providers != nil {
			resp.Providers = g.providers.Kinds()
		}
		if g.tools != nil {
			resp.Tools = g.tools.Names()
		}
		if g.scheduler != nil {
			resp.Jobs = g.scheduler.Status()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
