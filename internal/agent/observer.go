package agent

import (
	"time"

	"github.com/flemzord/agentbridge/internal/provider"
)

// Observer receives measurements of model and tool calls. Implementations
// must be safe for concurrent use; one Observer serves every session.
type Observer interface {
	ObserveModelCall(kind provider.Kind, model string, d time.Duration, usage provider.TokenUsage, err error)
	ObserveToolCall(name string, d time.Duration, isError bool)
}

type nopObserver struct{}

func (nopObserver) ObserveModelCall(provider.Kind, string, time.Duration, provider.TokenUsage, error) {
}

func (nopObserver) ObserveToolCall(string, time.Duration, bool) {}
