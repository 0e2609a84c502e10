// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for agentbridge.
package config

import (
	"github.com/flemzord/agentbridge/internal/security"
	"github.com/flemzord/agentbridge/internal/telemetry"
	"github.com/flemzord/agentbridge/internal/tool"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// DataDir overrides the persistent data directory.
	DataDir string `yaml:"data_dir,omitempty"`

	// Workspace is the directory tools run in. Defaults to the current
	// working directory.
	Workspace string `yaml:"workspace,omitempty"`

	Log LogConfig `yaml:"log"`

	Telemetry telemetry.Config `yaml:"telemetry"`

	Security *SecurityConfig `yaml:"security,omitempty"`

	Tools ToolsConfig `yaml:"tools"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "provider.anthropic").
	Modules map[string]yaml.Node `yaml:"modules"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string `yaml:"level"`

	// Format is one of text, json, pretty. Defaults to text.
	Format string `yaml:"format"`
}

// Log formats.
const (
	FormatText   = "text"
	FormatJSON   = "json"
	FormatPretty = "pretty"
)

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	RateLimits security.RateLimitConfig `yaml:"rate_limits"`

	Audit AuditConfig `yaml:"audit"`

	// RedactPatterns are extra regular expressions whose matches are
	// redacted from logs and the audit trail.
	RedactPatterns []string `yaml:"redact_patterns"`
}

// AuditConfig controls the JSONL audit trail.
type AuditConfig struct {
	// Path is the audit file. Empty disables file output; relative paths
	// are resolved against the data directory.
	Path string `yaml:"path"`
}

// ToolsConfig applies to every registered tool.
type ToolsConfig struct {
	Policy tool.Policy `yaml:"policy"`
}
