// Package providertest provides test helpers for the provider package.
package providertest

import (
	"context"
	"sync"

	"github.com/flemzord/agentbridge/internal/provider"
	"github.com/flemzord/agentbridge/pkg/message"
)

// MockProvider is a configurable test double for provider.Provider.
// Set the Func fields to control behavior. Unset funcs panic on call.
// All methods are safe for concurrent use.
type MockProvider struct {
	CompleteFunc func(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error)

	mu            sync.Mutex
	CompleteCalls int
	Requests      []provider.CompletionRequest
}

// Complete delegates to CompleteFunc and records the request.
func (m *MockProvider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	m.mu.Lock()
	m.CompleteCalls++
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
	return m.CompleteFunc(ctx, req)
}

// Calls returns the number of Complete calls so far.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CompleteCalls
}

// LastRequest returns the most recent request, or a zero value.
func (m *MockProvider) LastRequest() provider.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Requests) == 0 {
		return provider.CompletionRequest{}
	}
	return m.Requests[len(m.Requests)-1]
}

// MockStreamer extends MockProvider with provider.Streamer.
type MockStreamer struct {
	MockProvider
	StreamFunc func(ctx context.Context, req provider.CompletionRequest, onBlock func(message.ContentBlock) error) (provider.CompletionResponse, error)

	StreamCalls int
}

// Stream delegates to StreamFunc and tracks call count.
func (m *MockStreamer) Stream(ctx context.Context, req provider.CompletionRequest, onBlock func(message.ContentBlock) error) (provider.CompletionResponse, error) {
	m.mu.Lock()
	m.StreamCalls++
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
	return m.StreamFunc(ctx, req, onBlock)
}

// Script returns a CompleteFunc that replays the given responses in order.
// Calls past the end of the script return the last response.
func Script(responses ...provider.CompletionResponse) func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
	var (
		mu sync.Mutex
		i  int
	)
	return func(_ context.Context, _ provider.CompletionRequest) (provider.CompletionResponse, error) {
		mu.Lock()
		defer mu.Unlock()
		resp := responses[min(i, len(responses)-1)]
		i++
		return resp, nil
	}
}

// Factory is a provider.Factory that hands out a fixed provider and
// records the credentials it was asked for.
type Factory struct {
	KindList []provider.Kind
	Provider provider.Provider
	Err      error

	mu    sync.Mutex
	Creds []provider.Credentials
}

// Kinds implements provider.Factory.
func (f *Factory) Kinds() []provider.Kind {
	if len(f.KindList) == 0 {
		return []provider.Kind{provider.KindAnthropic}
	}
	return f.KindList
}

// New implements provider.Factory.
func (f *Factory) New(_ context.Context, _ provider.Kind, creds provider.Credentials) (provider.Provider, error) {
	f.mu.Lock()
	f.Creds = append(f.Creds, creds)
	f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Provider, nil
}

// Credentials returns a copy of the credentials passed to New so far.
func (f *Factory) Credentials() []provider.Credentials {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]provider.Credentials(nil), f.Creds...)
}

// Interface guards.
var (
	_ provider.Provider = (*MockProvider)(nil)
	_ provider.Streamer = (*MockStreamer)(nil)
	_ provider.Factory  = (*Factory)(nil)
)
