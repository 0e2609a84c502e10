package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"slices"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Provider kinds offered by the starter configuration.
const (
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
	ProviderVertex    = "vertex"
)

// Tools offered by the starter configuration.
const (
	ToolBash = "bash"
	ToolEdit = "edit"
)

// StarterParams controls the generated configuration file.
type StarterParams struct {
	Bind       string
	Providers  []string
	Tools      []string
	Ledger     bool
	AdminToken bool
	LogFormat  string

	// VertexRegion and VertexProject are used when vertex is selected.
	VertexRegion  string
	VertexProject string
}

// Has reports whether name is in list. It is exported to the template.
func (StarterParams) Has(list []string, name string) bool {
	return slices.Contains(list, name)
}

var starterTmpl = template.Must(template.New("starter").Parse(`version: "1"

log:
  level: info
  format: {{.LogFormat}}

telemetry:
  enabled: false
  endpoint: ${OTEL_EXPORTER_OTLP_ENDPOINT:-localhost:4318}

security:
  rate_limits:
    max_sessions: 16
    messages_per_min: 60
    tool_calls_per_min: 300
  audit:
    path: audit.jsonl
  # Extra regular expressions redacted from logs and the audit trail.
  # redact_patterns: ["corp-[0-9]{6}"]

tools:
  policy:
    deny: []

modules:
  gateway.http:
    bind: "{{.Bind}}"
{{- if .AdminToken}}
    auth:
      bearer_token: ${AGENTBRIDGE_ADMIN_TOKEN}
{{- end}}

  session.websocket:
    origin_patterns: []
    loop:
      default_max_tokens: 4096

  provider.anthropic:
{{- if .Has .Providers "bedrock"}}
    bedrock:
      enabled: true
{{- end}}
{{- if .Has .Providers "vertex"}}
    vertex:
      enabled: true
      region: "{{.VertexRegion}}"
      project_id: "{{.VertexProject}}"
{{- end}}
{{- if .Ledger}}

  ledger.sqlite:
    retention: 720h
{{- end}}
{{- if .Has .Tools "bash"}}

  tool.bash:
    timeout: 120s
{{- end}}
{{- if .Has .Tools "edit"}}

  tool.edit:
    restrict_to_workspace: true
{{- end}}
`))

// WriteStarter renders a starter configuration to w. The output is parsed
// back before it is written, so a rendering bug never produces an
// unreadable file.
func WriteStarter(w io.Writer, p StarterParams) error {
	if p.Bind == "" {
		p.Bind = "127.0.0.1:8080"
	}
	if p.LogFormat == "" {
		p.LogFormat = FormatText
	}
	if !slices.Contains(logFormats, p.LogFormat) {
		return fmt.Errorf("config: unknown log format %q", p.LogFormat)
	}
	if slices.Contains(p.Providers, ProviderVertex) && (p.VertexRegion == "" || p.VertexProject == "") {
		return errors.New("config: vertex requires a region and a project")
	}

	var buf bytes.Buffer
	if err := starterTmpl.Execute(&buf, p); err != nil {
		return fmt.Errorf("config: render starter: %w", err)
	}
	var check Config
	if err := yaml.Unmarshal(buf.Bytes(), &check); err != nil {
		return fmt.Errorf("config: render starter: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}
