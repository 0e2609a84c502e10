package config

import (
	"os"
	"slices"
	"strings"
	"testing"

	"github.com/flemzord/agentbridge/internal/core"
	"github.com/flemzord/agentbridge/internal/security"
	"github.com/flemzord/agentbridge/internal/tool"
	"gopkg.in/yaml.v3"
)

// stubModule is a basic module for testing.
type stubModule struct {
	id string
}

func (m *stubModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  core.ModuleID(m.id),
		New: func() core.Module { return &stubModule{id: m.id} },
	}
}

const testProvider = "provider.stub"

func TestMain(m *testing.M) {
	for _, id := range []string{moduleGateway, moduleSession, testProvider} {
		core.RegisterModule(&stubModule{id: id})
	}
	os.Exit(m.Run())
}

func validConfig() *Config {
	return &Config{
		Version: "1",
		Modules: map[string]yaml.Node{
			moduleGateway: {},
			moduleSession: {},
			testProvider:  {},
		},
	}
}

func TestValidate_Valid(t *testing.T) {
	t.Parallel()

	if err := Validate(validConfig()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		want   []string
	}{
		{"missing version", func(c *Config) { c.Version = "" }, []string{"version field is required"}},
		{"unsupported version", func(c *Config) { c.Version = "99" }, []string{"unsupported version"}},
		{"empty modules", func(c *Config) { c.Modules = nil }, []string{"at least one module"}},
		{
			"unknown modules",
			func(c *Config) { c.Modules["bad.one"] = yaml.Node{}; c.Modules["bad.two"] = yaml.Node{} },
			[]string{`"bad.one"`, `"bad.two"`},
		},
		{"missing session", func(c *Config) { delete(c.Modules, moduleSession) }, []string{`"session.websocket" is required`}},
		{"missing gateway", func(c *Config) { delete(c.Modules, moduleGateway) }, []string{`"gateway.http" is required`}},
		{"missing provider", func(c *Config) { delete(c.Modules, testProvider) }, []string{"provider module is required", "compiled: provider.stub"}},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, []string{"log.level"}},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, []string{"log.format"}},
		{"telemetry", func(c *Config) { c.Telemetry.SampleRatio = 2 }, []string{"telemetry", "sample_ratio"}},
		{
			"tool policy",
			func(c *Config) { c.Tools.Policy = tool.Policy{Allow: []string{"bash"}, Deny: []string{"bash"}} },
			[]string{"config: tools"},
		},
		{
			"negative rate limit",
			func(c *Config) {
				c.Security = &SecurityConfig{RateLimits: security.RateLimitConfig{MessagesPerMin: -1}}
			},
			[]string{"rate_limits.messages_per_min"},
		},
		{
			"redact patterns",
			func(c *Config) {
				c.Security = &SecurityConfig{RedactPatterns: []string{`corp-[0-9]+`, `(`, ""}}
			},
			[]string{"redact_patterns[1]", "redact_patterns[2] is empty"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected error")
			}
			for _, want := range tt.want {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q should contain %q", err, want)
				}
			}
		})
	}
}

func TestValidate_LogSettings(t *testing.T) {
	t.Parallel()

	for _, format := range []string{"", FormatText, FormatJSON, FormatPretty} {
		cfg := validConfig()
		cfg.Log = LogConfig{Level: "DEBUG", Format: format}
		if err := Validate(cfg); err != nil {
			t.Errorf("format %q: unexpected error: %v", format, err)
		}
	}
}

func TestResolve_Order(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modules []string
		want    []string
	}{
		{
			name:    "required modules",
			modules: []string{moduleGateway, moduleSession, testProvider},
			want:    []string{testProvider, moduleSession, moduleGateway},
		},
		{
			name:    "all roles",
			modules: []string{moduleGateway, "tool.edit", "ledger.sqlite", "tool.bash", "custom.x", moduleSession, "provider.b", "provider.a"},
			want:    []string{"provider.a", "provider.b", "ledger.sqlite", "custom.x", "tool.bash", "tool.edit", moduleSession, moduleGateway},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := &Config{Modules: map[string]yaml.Node{}}
			for _, id := range tt.modules {
				cfg.Modules[id] = yaml.Node{}
			}
			if got := Resolve(cfg); !slices.Equal(got, tt.want) {
				t.Errorf("Resolve() = %v, want %v", got, tt.want)
			}
		})
	}
}
