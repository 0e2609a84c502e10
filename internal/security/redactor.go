package security

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
	"sync"
)

// RedactPlaceholder is the replacement string for redacted secrets.
const RedactPlaceholder = "***REDACTED***"

// minLiteralLen is the shortest literal secret the redactor replaces.
// Shorter values would match ordinary words in logs and tool output.
const minLiteralLen = 8

// rule is one pattern and its replacement. Patterns that keep a prefix,
// such as a JSON key, reference it as ${1} in repl.
type rule struct {
	re   *regexp.Regexp
	repl string
}

// Redactor replaces secret values in strings with RedactPlaceholder.
// It combines patterns for the credential formats agentbridge handles
// (Anthropic, AWS and Google Cloud keys, bearer tokens, api_key fields of
// inbound batches) with literal values taken from a CredentialStore.
// All methods are safe for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	rules    []rule
	literals []string
}

// NewRedactor creates a Redactor loaded with the built-in patterns.
func NewRedactor() *Redactor {
	return &Redactor{rules: defaultRules()}
}

// AddPattern adds a pattern whose matches are replaced entirely.
func (r *Redactor) AddPattern(pattern *regexp.Regexp) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, rule{re: pattern, repl: RedactPlaceholder})
}

// AddLiteral adds a literal secret value. Values shorter than eight bytes
// are ignored.
func (r *Redactor) AddLiteral(secret string) {
	if len(secret) < minLiteralLen {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.literals = sortLiterals(append(r.literals, secret))
}

// SyncCredentials replaces the literal values with the current contents
// of store.
func (r *Redactor) SyncCredentials(store *CredentialStore) {
	var values []string
	for _, v := range store.Values() {
		if len(v) >= minLiteralLen {
			values = append(values, v)
		}
	}
	values = sortLiterals(values)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.literals = values
}

// Watch syncs the literal values with store now and after every change to
// it, so session API keys are redacted for exactly as long as the session
// holds them.
func (r *Redactor) Watch(store *CredentialStore) {
	r.SyncCredentials(store)
	store.Watch(func() { r.SyncCredentials(store) })
}

// sortLiterals orders literals longest first so a secret containing
// another is replaced whole.
func sortLiterals(literals []string) []string {
	slices.SortFunc(literals, func(a, b string) int {
		return cmp.Compare(len(b), len(a))
	})
	return slices.Compact(literals)
}

// Redact replaces every known pattern and literal value in s with
// RedactPlaceholder.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}

	r.mu.RLock()
	rules := r.rules
	literals := r.literals
	r.mu.RUnlock()

	for _, lit := range literals {
		if strings.Contains(s, lit) {
			s = strings.ReplaceAll(s, lit, RedactPlaceholder)
		}
	}
	for _, ru := range rules {
		s = ru.re.ReplaceAllString(s, ru.repl)
	}
	return s
}

// defaultRules returns the built-in secret patterns.
func defaultRules() []rule {
	whole := func(expr string) rule {
		return rule{re: regexp.MustCompile(expr), repl: RedactPlaceholder}
	}
	keep := func(expr string) rule {
		return rule{re: regexp.MustCompile(expr), repl: "${1}" + RedactPlaceholder}
	}
	return []rule{
		// api_key string fields of inbound batches.
		keep(`("api_key"\s*:\s*")[^"]+`),
		// Anthropic API and admin keys.
		whole(`sk-ant-[a-zA-Z0-9_\-]{20,}`),
		// Other sk- style keys passed to MCP servers.
		whole(`sk-[a-zA-Z0-9]{20,}`),
		// AWS access key ids, long-term and temporary.
		whole(`\b(AKIA|ASIA)[A-Z0-9]{16}\b`),
		// AWS secret access keys in env or config form.
		keep(`(?i)(aws_secret_access_key\s*[=:]\s*"?)[A-Za-z0-9/+=]{40}`),
		// Google OAuth access tokens used by Vertex AI.
		whole(`ya29\.[0-9A-Za-z_\-]{20,}`),
		// PEM private keys, such as service account credentials.
		whole(`-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]*?-----END [A-Z ]*PRIVATE KEY-----`),
		// Authorization header values.
		keep(`(?i)(\bbearer\s+)[A-Za-z0-9\-._~+/]{8,}=*`),
		// GitHub tokens, common in shell tool output.
		whole(`(ghp_|gho_|ghs_|github_pat_)[a-zA-Z0-9_]{20,}`),
	}
}
