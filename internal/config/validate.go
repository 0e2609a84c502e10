package config

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/flemzord/agentbridge/internal/core"
)

// Modules every deployment needs: a provider, the chat channel and the
// HTTP gateway serving it.
const (
	moduleGateway = "gateway.http"
	moduleSession = "session.websocket"
	providerNS    = "provider"
)

var (
	logLevels  = []string{"", "debug", "info", "warn", "error"}
	logFormats = []string{"", FormatText, FormatJSON, FormatPretty}
)

// Validate checks the structural validity of a Config.
// It verifies the version field, the log, telemetry, security and tool
// policy sections, and checks that all referenced module IDs exist in the
// registry and that the modules needed to serve chat sessions are present.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if !slices.Contains(logLevels, strings.ToLower(cfg.Log.Level)) {
		errs = append(errs, fmt.Errorf("config: log.level %q is not one of debug, info, warn, error", cfg.Log.Level))
	}
	if !slices.Contains(logFormats, cfg.Log.Format) {
		errs = append(errs, fmt.Errorf("config: log.format %q is not one of text, json, pretty", cfg.Log.Format))
	}

	if err := cfg.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("config: telemetry: %w", err))
	}
	if err := cfg.Tools.Policy.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("config: tools: %w", err))
	}
	errs = append(errs, validateSecurity(cfg.Security)...)

	if len(cfg.Modules) == 0 {
		errs = append(errs, errors.New("config: at least one module must be configured"))
	}

	hasProvider := false
	for id := range cfg.Modules {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
		}
		if core.ModuleID(id).In(providerNS) {
			hasProvider = true
		}
	}

	if len(cfg.Modules) > 0 {
		for _, id := range []string{moduleSession, moduleGateway} {
			if _, ok := cfg.Modules[id]; !ok {
				errs = append(errs, fmt.Errorf("config: module %q is required", id))
			}
		}
		if !hasProvider {
			var available []string
			for _, info := range core.GetModulesByNamespace(providerNS) {
				available = append(available, string(info.ID))
			}
			errs = append(errs, fmt.Errorf("config: at least one provider module is required (compiled: %s)", strings.Join(available, ", ")))
		}
	}

	return errors.Join(errs...)
}

func validateSecurity(sec *SecurityConfig) []error {
	if sec == nil {
		return nil
	}
	var errs []error
	rl := sec.RateLimits
	for name, v := range map[string]int{
		"max_sessions":       rl.MaxSessions,
		"messages_per_min":   rl.MessagesPerMin,
		"tool_calls_per_min": rl.ToolCallsPerMin,
		"tokens_per_hour":    rl.TokensPerHour,
		"auth_per_min":       rl.AuthPerMin,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("config: security.rate_limits.%s must not be negative", name))
		}
	}
	for i, expr := range sec.RedactPatterns {
		if expr == "" {
			errs = append(errs, fmt.Errorf("config: security.redact_patterns[%d] is empty", i))
			continue
		}
		if _, err := regexp.Compile(expr); err != nil {
			errs = append(errs, fmt.Errorf("config: security.redact_patterns[%d]: %w", i, err))
		}
	}
	return errs
}
