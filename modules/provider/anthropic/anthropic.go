// Package anthropic implements the provider.anthropic module, bridging
// agentbridge to the Anthropic Messages API. The same module serves the
// bedrock and vertex provider kinds through the SDK's platform options.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/vertex"
	"github.com/flemzord/agentbridge/internal/core"
	"github.com/flemzord/agentbridge/internal/provider"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Anthropic{})
}

// Interface guards.
var (
	_ core.Module       = (*Anthropic)(nil)
	_ core.Configurable = (*Anthropic)(nil)
	_ core.Provisioner  = (*Anthropic)(nil)
	_ core.Validator    = (*Anthropic)(nil)
	_ provider.Factory  = (*Anthropic)(nil)
	_ provider.Provider = (*Client)(nil)
	_ provider.Streamer = (*Client)(nil)
)

// Anthropic is the provider.anthropic module. It is a provider.Factory:
// every loop execution gets a Client bound to the API key of its batch.
type Anthropic struct {
	config Config
	logger *slog.Logger
	http   *http.Client
}

// ModuleInfo implements core.Module.
func (a *Anthropic) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "provider.anthropic",
		New: func() core.Module { return &Anthropic{} },
	}
}

// Configure implements core.Configurable.
func (a *Anthropic) Configure(node *yaml.Node) error {
	if err := node.Decode(&a.config); err != nil {
		return err
	}
	a.config.defaults()
	return nil
}

// Provision implements core.Provisioner. It publishes the module on the
// shared provider registry.
func (a *Anthropic) Provision(ctx *core.AppContext) error {
	a.logger = ctx.Logger
	a.config.defaults()
	a.http = newHTTPClient(a.config.Timeout)

	reg, err := core.RequireService[*provider.Registry](ctx, provider.RegistryService)
	if err != nil {
		return fmt.Errorf("provider.anthropic: %w", err)
	}
	if err := reg.Register(a); err != nil {
		return fmt.Errorf("provider.anthropic: %w", err)
	}

	a.logger.Info("provider registered", "kinds", a.Kinds(), "stream", a.config.streaming())
	return nil
}

// Validate implements core.Validator.
func (a *Anthropic) Validate() error {
	if err := a.config.validate(); err != nil {
		return fmt.Errorf("provider.anthropic: %w", err)
	}
	if a.http == nil {
		return errors.New("provider.anthropic: client not initialized (Provision not called)")
	}
	return nil
}

// Kinds implements provider.Factory.
func (a *Anthropic) Kinds() []provider.Kind {
	kinds := []provider.Kind{provider.KindAnthropic}
	if a.config.Bedrock.Enabled {
		kinds = append(kinds, provider.KindBedrock)
	}
	if a.config.Vertex.Enabled {
		kinds = append(kinds, provider.KindVertex)
	}
	return kinds
}

// New implements provider.Factory.
func (a *Anthropic) New(ctx context.Context, kind provider.Kind, creds provider.Credentials) (provider.Provider, error) {
	opts := []option.RequestOption{
		option.WithHTTPClient(a.http),
		// The loop reports every failed call to the client; no silent retries.
		option.WithMaxRetries(0),
	}

	switch kind {
	case provider.KindAnthropic:
		if creds.APIKey == "" {
			return nil, fmt.Errorf("%w: missing api key", provider.ErrAuth)
		}
		opts = append(opts, option.WithAPIKey(creds.APIKey))
		if a.config.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(a.config.BaseURL))
		}
	case provider.KindBedrock:
		if !a.config.Bedrock.Enabled {
			return nil, fmt.Errorf("%w: %s", provider.ErrNoProvider, kind)
		}
		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx))
	case provider.KindVertex:
		if !a.config.Vertex.Enabled {
			return nil, fmt.Errorf("%w: %s", provider.ErrNoProvider, kind)
		}
		opts = append(opts, vertex.WithGoogleAuth(ctx, a.config.Vertex.Region, a.config.Vertex.ProjectID))
	default:
		return nil, fmt.Errorf("%w: %q", provider.ErrUnknownKind, kind)
	}

	sdk := sdkanthropic.NewClient(opts...)
	return &Client{
		sdk:    &sdk,
		kind:   kind,
		stream: a.config.streaming(),
	}, nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout
	return &http.Client{Transport: transport}
}
