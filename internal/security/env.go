package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// sensitiveEnvPrefixes are stripped from subprocess environments: provider
// credentials agentbridge itself may hold, and forge tokens a shell command
// could push with.
var sensitiveEnvPrefixes = []string{
	"ANTHROPIC_",
	"OPENAI_",
	"AWS_SECRET",
	"AWS_SESSION_TOKEN",
	"CLOUDSDK_AUTH_",
	"GITHUB_TOKEN",
	"GH_TOKEN",
	"GITLAB_TOKEN",
}

// sensitiveEnvExact are stripped by exact name. AGENTBRIDGE_ is not a
// prefix entry: only the admin token is secret among its variables.
var sensitiveEnvExact = map[string]struct{}{
	"AGENTBRIDGE_ADMIN_TOKEN":        {},
	"GOOGLE_APPLICATION_CREDENTIALS": {},
	"GOOGLE_OAUTH_ACCESS_TOKEN":      {},
	"DATABASE_URL":                   {},
}

// SanitizedEnv returns os.Environ() filtered by SanitizeEnv.
func SanitizedEnv(store *CredentialStore) []string {
	return SanitizeEnv(os.Environ(), store)
}

// SanitizeEnv drops sensitive variables from environ and replaces any
// value of store found in the remaining ones with RedactPlaceholder.
// Malformed entries without '=' are dropped.
func SanitizeEnv(environ []string, store *CredentialStore) []string {
	var secrets []string
	if store != nil {
		for _, v := range store.Values() {
			if len(v) >= minLiteralLen {
				secrets = append(secrets, v)
			}
		}
		secrets = sortLiterals(secrets)
	}

	out := make([]string, 0, len(environ))
	for _, entry := range environ {
		key, _, ok := strings.Cut(entry, "=")
		if !ok || isSensitiveEnvVar(key) {
			continue
		}
		for _, secret := range secrets {
			entry = strings.ReplaceAll(entry, secret, RedactPlaceholder)
		}
		out = append(out, entry)
	}
	return out
}

func isSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)
	if _, ok := sensitiveEnvExact[upper]; ok {
		return true
	}
	for _, prefix := range sensitiveEnvPrefixes {
		if strings.HasPrefix(upper, prefix) {
			return true
		}
	}
	return false
}

var (
	// ErrRestrictedPath is returned for paths under /proc, /sys or /dev.
	ErrRestrictedPath = errors.New("access to restricted path is not allowed")

	// ErrOutsideRoot is returned by ConfinePath for paths that leave the root.
	ErrOutsideRoot = errors.New("path is outside the workspace")
)

// ValidatePath rejects paths that resolve, after symlinks, into /proc,
// /sys or /dev.
func ValidatePath(path string) error {
	resolved := resolvePath(path)
	normalized := strings.ToLower(resolved)
	for _, prefix := range []string{"/proc/", "/sys/", "/dev/"} {
		if strings.HasPrefix(normalized, prefix) || normalized+"/" == prefix {
			return fmt.Errorf("%w: %s", ErrRestrictedPath, path)
		}
	}
	return nil
}

// ConfinePath reports ErrOutsideRoot when path, with symlinks resolved,
// is not root or below it. A path that does not exist yet is resolved
// through its nearest existing parent, so create targets are checked too.
func ConfinePath(root, path string) error {
	rel, err := filepath.Rel(resolvePath(root), resolvePath(path))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	return nil
}

// resolvePath returns path made absolute with symlinks resolved in its
// longest existing prefix.
func resolvePath(path string) string {
	cleaned := filepath.Clean(path)
	if abs, err := filepath.Abs(cleaned); err == nil {
		cleaned = abs
	}
	var rest []string
	for dir := cleaned; ; {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			return filepath.Join(append([]string{resolved}, rest...)...)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return cleaned
		}
		rest = append([]string{filepath.Base(dir)}, rest...)
		dir = parent
	}
}
