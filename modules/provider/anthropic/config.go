package anthropic

import (
	"fmt"
	"time"
)

// defaultTimeout is the HTTP response-header timeout applied to the
// underlying transport. Streaming responses are not affected once the
// first byte arrives; only the initial connection phase is bounded.
const defaultTimeout = 60 * time.Second

// Config holds the YAML-decoded configuration for the Anthropic provider.
type Config struct {
	// BaseURL overrides the Anthropic API endpoint (anthropic kind only).
	BaseURL string `yaml:"base_url"`

	// Timeout bounds the wait for response headers.
	Timeout time.Duration `yaml:"timeout"`

	// Stream enables server-sent-event streaming so content blocks are
	// surfaced as soon as each one closes.
	Stream *bool `yaml:"stream"`

	Bedrock BedrockConfig `yaml:"bedrock"`
	Vertex  VertexConfig  `yaml:"vertex"`
}

// BedrockConfig enables the bedrock provider kind. Credentials come from
// the standard AWS configuration chain.
type BedrockConfig struct {
	Enabled bool `yaml:"enabled"`
}

// VertexConfig enables the vertex provider kind. Credentials come from
// Google application default credentials.
type VertexConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	ProjectID string `yaml:"project_id"`
}

// defaults fills in zero-value fields with sensible defaults.
func (c *Config) defaults() {
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	if c.Stream == nil {
		stream := true
		c.Stream = &stream
	}
}

func (c *Config) validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout)
	}
	if c.Vertex.Enabled && (c.Vertex.Region == "" || c.Vertex.ProjectID == "") {
		return fmt.Errorf("vertex requires region and project_id")
	}
	return nil
}

func (c *Config) streaming() bool {
	return c.Stream == nil || *c.Stream
}
