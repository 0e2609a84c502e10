// Package provider defines the contract for calling a hosted language model:
// one request in, one ordered list of assistant content blocks out. Concrete
// implementations live in modules/provider and register a Factory per Kind.
package provider

import (
	"context"

	"github.com/flemzord/agentbridge/pkg/message"
)

// Provider executes one model call.
type Provider interface {
	// Complete sends a completion request and returns the full response.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

// Streamer is an optional interface for providers that can surface content
// blocks incrementally. onBlock is invoked once per block, in production
// order, as soon as the block is complete. If onBlock returns an error the
// stream is abandoned and that error is returned.
//
// On a mid-stream failure the blocks already delivered are returned in the
// response together with the error.
type Streamer interface {
	Stream(ctx context.Context, req CompletionRequest, onBlock func(message.ContentBlock) error) (CompletionResponse, error)
}

// Credentials carries the per-connection secrets a Factory needs.
type Credentials struct {
	APIKey string
}

// Factory builds providers for one or more kinds. Providers are built per
// loop execution because the API key arrives with every inbound batch.
type Factory interface {
	// Kinds lists the provider kinds this factory serves.
	Kinds() []Kind

	// New returns a provider bound to the given credentials.
	New(ctx context.Context, kind Kind, creds Credentials) (Provider, error)
}
