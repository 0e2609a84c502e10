package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Stdin is the path Load reads standard input for.
const Stdin = "-"

// envPattern matches ${VAR} and ${VAR:-default} expressions. A default
// may contain \} to include a closing brace.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-((?:[^}\\]|\\.)*))?\}`)

// Load reads the configuration file at path, or standard input when path
// is Stdin.
func Load(path string) (*Config, error) {
	if path == Stdin {
		return LoadReader(os.Stdin, "<stdin>")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	defer f.Close()
	return LoadReader(f, path)
}

// LoadReader reads a YAML configuration from r, expands environment
// variables outside comments, and decodes it. Unknown top-level and
// section keys are errors; module sections are kept raw for the modules
// to decode. name is used in error messages.
func LoadReader(r io.Reader, name string) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", name, err)
	}

	expanded, err := expandEnv(raw)
	if err != nil {
		return nil, fmt.Errorf("config: expanding variables in %s: %w", name, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(expanded))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("config: %s is empty", name)
		}
		return nil, fmt.Errorf("config: parsing %s: %w", name, err)
	}
	return &cfg, nil
}

// expandEnv replaces ${VAR} and ${VAR:-default} in every line that is not
// a comment. It reports every variable that is unset and has no default.
func expandEnv(raw []byte) ([]byte, error) {
	var errs []error
	lines := bytes.SplitAfter(raw, []byte("\n"))
	for i, line := range lines {
		if bytes.HasPrefix(bytes.TrimSpace(line), []byte("#")) {
			continue
		}
		lines[i] = envPattern.ReplaceAllFunc(line, func(match []byte) []byte {
			subs := envPattern.FindSubmatch(match)
			name := string(subs[1])
			if value, ok := os.LookupEnv(name); ok {
				return []byte(value)
			}
			if subs[2] != nil {
				return []byte(strings.ReplaceAll(string(subs[2]), `\}`, "}"))
			}
			errs = append(errs, fmt.Errorf("line %d: unresolved variable: %s", i+1, name))
			return match
		})
	}
	return bytes.Join(lines, nil), errors.Join(errs...)
}
