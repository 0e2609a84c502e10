package gateway

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/agentbridge/internal/agent"
	"github.com/flemzord/agentbridge/internal/provider"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_ModelCalls(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	m.ObserveModelCall(provider.KindAnthropic, "claude", 500*time.Millisecond,
		provider.TokenUsage{PromptTokens: 80, CompletionTokens: 20, TotalTokens: 100}, nil)
	m.ObserveModelCall(provider.KindAnthropic, "claude", time.Second,
		provider.TokenUsage{PromptTokens: 150, CompletionTokens: 50, TotalTokens: 200}, nil)
	m.ObserveModelCall(provider.KindBedrock, "claude", 0, provider.TokenUsage{}, errors.New("overloaded"))

	snap := m.Snapshot()
	if snap.ModelCalls != 3 || snap.ModelErrors != 1 {
		t.Errorf("ModelCalls = %d, ModelErrors = %d, want 3 and 1", snap.ModelCalls, snap.ModelErrors)
	}
	if snap.TotalTokens != 300 {
		t.Errorf("TotalTokens = %d, want 300", snap.TotalTokens)
	}
	if snap.AvgModelLatency != 500*time.Millisecond {
		t.Errorf("AvgModelLatency = %v, want 500ms", snap.AvgModelLatency)
	}

	if got := testutil.ToFloat64(m.modelCalls.WithLabelValues("anthropic", "claude", "ok")); got != 2 {
		t.Errorf("ok calls = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.modelCalls.WithLabelValues("bedrock", "claude", "error")); got != 1 {
		t.Errorf("error calls = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.tokens.WithLabelValues("input")); got != 230 {
		t.Errorf("input tokens = %v, want 230", got)
	}
}

func TestMetrics_SessionsAndRuns(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()
	m.BatchRejected("invalid")
	m.RunFinished(agent.StopReasonComplete, time.Second)
	m.RunFinished(agent.StopReasonAPIError, time.Second)

	if got := testutil.ToFloat64(m.sessionsActive); got != 1 {
		t.Errorf("active sessions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.sessionsTotal); got != 2 {
		t.Errorf("opened sessions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.batchesRejected.WithLabelValues("invalid")); got != 1 {
		t.Errorf("rejected = %v, want 1", got)
	}
	snap := m.Snapshot()
	if snap.Runs != 2 || snap.FailedRuns != 1 {
		t.Errorf("Runs = %d, FailedRuns = %d, want 2 and 1", snap.Runs, snap.FailedRuns)
	}
}

func TestMetrics_ToolCalls(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	m.ObserveToolCall("bash", time.Millisecond, false)
	m.ObserveToolCall("bash", time.Millisecond, true)

	if got := testutil.ToFloat64(m.toolCalls.WithLabelValues("bash", "error")); got != 1 {
		t.Errorf("bash errors = %v, want 1", got)
	}
}

func TestMetrics_SnapshotEmpty(t *testing.T) {
	t.Parallel()

	if snap := NewMetrics().Snapshot(); snap != (MetricsSnapshot{}) {
		t.Errorf("empty snapshot should be all zeros: %+v", snap)
	}
}

func TestMetrics_Handler(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	m.SessionOpened()

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"agentbridge_session_active 1", "go_goroutines"} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestMetrics_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	var wg sync.WaitGroup
	for range 100 {
		wg.Go(func() {
			m.ObserveModelCall(provider.KindAnthropic, "claude", time.Millisecond, provider.TokenUsage{TotalTokens: 10}, nil)
		})
		wg.Go(func() { m.ObserveToolCall("bash", time.Millisecond, false) })
		wg.Go(func() { m.RunFinished(agent.StopReasonComplete, time.Millisecond) })
	}
	wg.Wait()

	snap := m.Snapshot()
	if snap.ModelCalls != 100 || snap.Runs != 100 || snap.TotalTokens != 1000 {
		t.Errorf("snapshot = %+v", snap)
	}
}
