package tool

import (
	"fmt"
	"slices"
)

// Policy decides which registered tools the model may see and call.
// Deny always wins. A non-empty Allow list restricts the set to the
// listed tools.
type Policy struct {
	Allow      []string `yaml:"allow"`
	Deny       []string `yaml:"deny"`
	DenyScopes []Scope  `yaml:"deny_scopes"`
}

// Permits reports whether the policy lets t run.
func (p Policy) Permits(t Tool) bool {
	name := t.Name()
	if slices.Contains(p.Deny, name) {
		return false
	}
	if slices.ContainsFunc(t.Scopes(), func(s Scope) bool { return slices.Contains(p.DenyScopes, s) }) {
		return false
	}
	return len(p.Allow) == 0 || slices.Contains(p.Allow, name)
}

// Validate rejects malformed names, unknown scopes and a name that is
// both allowed and denied.
func (p Policy) Validate() error {
	for _, list := range []struct {
		key   string
		names []string
	}{{"allow", p.Allow}, {"deny", p.Deny}} {
		for _, name := range list.names {
			if err := ValidateName(name); err != nil {
				return fmt.Errorf("policy: %s: %w", list.key, err)
			}
		}
	}
	for _, name := range p.Allow {
		if slices.Contains(p.Deny, name) {
			return fmt.Errorf("%w: %q is both allowed and denied", ErrToolInMultipleLists, name)
		}
	}
	for _, s := range p.DenyScopes {
		switch s {
		case ScopeReadOnly, ScopeReadWrite, ScopeExec, ScopeNetwork:
		default:
			return fmt.Errorf("policy: deny_scopes: unknown scope %q", s)
		}
	}
	return nil
}
