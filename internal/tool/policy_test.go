package tool

import (
	"errors"
	"testing"
)

func TestPolicy_Permits(t *testing.T) {
	t.Parallel()

	bash := exec("bash")
	view := stubTool{name: "view", scopes: []Scope{ScopeReadOnly}}
	fetch := stubTool{name: "mcp_fetch", scopes: []Scope{ScopeReadOnly, ScopeNetwork}}

	tests := []struct {
		name   string
		policy Policy
		tool   Tool
		want   bool
	}{
		{"zero policy", Policy{}, bash, true},
		{"denied by name", Policy{Deny: []string{"bash"}}, bash, false},
		{"allow list hit", Policy{Allow: []string{"view"}}, view, true},
		{"allow list miss", Policy{Allow: []string{"view"}}, bash, false},
		{"deny beats allow", Policy{Allow: []string{"bash"}, Deny: []string{"bash"}}, bash, false},
		{"denied scope", Policy{DenyScopes: []Scope{ScopeExec}}, bash, false},
		{"any scope denied", Policy{DenyScopes: []Scope{ScopeNetwork}}, fetch, false},
		{"other scope", Policy{DenyScopes: []Scope{ScopeExec}}, view, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.policy.Permits(tt.tool); got != tt.want {
				t.Errorf("Permits = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPolicy_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		policy  Policy
		wantErr bool
		is      error
	}{
		{name: "disjoint lists", policy: Policy{Allow: []string{"view"}, Deny: []string{"bash"}}},
		{name: "conflict", policy: Policy{Allow: []string{"bash"}, Deny: []string{"bash"}}, wantErr: true, is: ErrToolInMultipleLists},
		{name: "padded name", policy: Policy{Deny: []string{" bash "}}, wantErr: true, is: ErrInvalidToolName},
		{name: "empty name", policy: Policy{Allow: []string{""}}, wantErr: true, is: ErrInvalidToolName},
		{name: "unknown scope", policy: Policy{DenyScopes: []Scope{"root"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.policy.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("Validate = %v, want %v", err, tt.is)
			}
		})
	}
}
