package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/flemzord/agentbridge/internal/core"
	"github.com/flemzord/agentbridge/internal/cron"
	"github.com/flemzord/agentbridge/internal/ledger"
	"github.com/flemzord/agentbridge/internal/session"
	"github.com/go-chi/chi/v5"
)

const (
	defaultRunsLimit = 50
	maxRunsLimit     = 1000
)

// handleListSessions returns all connected sessions as JSON.
func (g *Gateway) handleListSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		sessions := []session.Info{}
		if g.sessions != nil {
			if snap := g.sessions.Snapshot(); snap != nil {
				sessions = snap
			}
		}
		writeJSON(w, http.StatusOK, sessions)
	}
}

// handleDeleteSession disconnects a session by its ID, cancelling its
// running loop execution if any.
func (g *Gateway) handleDeleteSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			http.Error(w, "missing session id", http.StatusBadRequest)
			return
		}
		if g.sessions == nil {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		sess, ok := g.sessions.Get(id)
		if !ok {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		sess.Disconnect("closed by administrator")
		g.logger.Info("session disconnected by administrator", "session_id", id)
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleListRuns returns the most recent ledger entries. The limit query
// parameter defaults to 50.
func (g *Gateway) handleListRuns() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.ledger == nil {
			http.Error(w, "ledger not available", http.StatusServiceUnavailable)
			return
		}

		limit := defaultRunsLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = min(n, maxRunsLimit)
		}

		entries, err := g.ledger.Recent(r.Context(), limit)
		if err != nil {
			g.logger.Error("ledger query failed", "error", err)
			http.Error(w, "ledger query failed", http.StatusInternalServerError)
			return
		}
		if entries == nil {
			entries = []ledger.Entry{}
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

// handleTriggerJob runs a scheduled job immediately.
func (g *Gateway) handleTriggerJob() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.scheduler == nil {
			http.Error(w, "scheduler not available", http.StatusServiceUnavailable)
			return
		}

		name := chi.URLParam(r, "name")
		ran, err := g.scheduler.Trigger(name)
		switch {
		case errors.Is(err, cron.ErrUnknownJob):
			http.Error(w, "job not found", http.StatusNotFound)
		case err != nil:
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		case !ran:
			writeJSON(w, http.StatusConflict, map[string]string{"status": "already running"})
		default:
			g.logger.Info("job triggered by administrator", "job", name)
			writeJSON(w, http.StatusOK, map[string]string{"status": "done"})
		}
	}
}

// moduleJSON is a serializable module info snapshot.
type moduleJSON struct {
	ID string `json:"id"`
}

// handleListModules lists all compiled modules.
func (g *Gateway) handleListModules() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		mods := core.GetModules()
		out := make([]moduleJSON, 0, len(mods))
		for _, m := range mods {
			out = append(out, moduleJSON{ID: string(m.ID)})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
