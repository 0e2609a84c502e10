package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flemzord/agentbridge/internal/core"
)

type healthFunc func(ctx context.Context) map[core.ModuleID]error

func (f healthFunc) Health(ctx context.Context) map[core.ModuleID]error { return f(ctx) }

func TestHealth_Liveness(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	rr := httptest.NewRecorder()
	g.handleHealth().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if got := rr.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := rr.Body.String(); got != "{\"status\":\"ok\"}\n" {
		t.Errorf("body = %q", got)
	}
}

func TestHealth_Readiness(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		health   HealthReporter
		wantCode int
		want     HealthResponse
	}{
		{
			name:     "no reporter",
			wantCode: http.StatusOK,
			want:     HealthResponse{Status: "ok"},
		},
		{
			name: "all healthy",
			health: healthFunc(func(context.Context) map[core.ModuleID]error {
				return map[core.ModuleID]error{"ledger.sqlite": nil, "tool.mcp": nil}
			}),
			wantCode: http.StatusOK,
			want: HealthResponse{Status: "ok", Modules: map[string]string{
				"ledger.sqlite": "ok",
				"tool.mcp":      "ok",
			}},
		},
		{
			name: "one unhealthy",
			health: healthFunc(func(context.Context) map[core.ModuleID]error {
				return map[core.ModuleID]error{
					"ledger.sqlite": nil,
					"tool.mcp":      errors.New(`mcp: server "git": ping: broken pipe`),
				}
			}),
			wantCode: http.StatusServiceUnavailable,
			want: HealthResponse{Status: "unavailable", Modules: map[string]string{
				"ledger.sqlite": "ok",
				"tool.mcp":      `mcp: server "git": ping: broken pipe`,
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := &Gateway{health: tt.health, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
			rr := httptest.NewRecorder()
			g.handleReady().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))

			if rr.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantCode)
			}
			var got HealthResponse
			if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
				t.Fatal(err)
			}
			if got.Status != tt.want.Status || len(got.Modules) != len(tt.want.Modules) {
				t.Fatalf("response = %+v, want %+v", got, tt.want)
			}
			for id, v := range tt.want.Modules {
				if got.Modules[id] != v {
					t.Errorf("modules[%s] = %q, want %q", id, got.Modules[id], v)
				}
			}
		})
	}
}
