package core

import (
	"bytes"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

// stubModule records the lifecycle methods it sees in calls and fails the
// phases listed in errs.
type stubModule struct {
	id    ModuleID
	calls *[]string
	errs  map[Phase]error
	key   string
}

func (m *stubModule) ModuleInfo() ModuleInfo {
	return ModuleInfo{ID: m.id, New: func() Module {
		return &stubModule{id: m.id, calls: m.calls, errs: m.errs}
	}}
}

func (m *stubModule) record(p Phase) error {
	if m.calls != nil {
		*m.calls = append(*m.calls, string(p))
	}
	return m.errs[p]
}

func (m *stubModule) Configure(node *yaml.Node) error {
	if err := m.record(PhaseConfigure); err != nil {
		return err
	}
	var cfg struct {
		Key string `yaml:"key"`
	}
	if err := node.Decode(&cfg); err != nil {
		return err
	}
	m.key = cfg.Key
	return nil
}

func (m *stubModule) Provision(*AppContext) error { return m.record(PhaseProvision) }
func (m *stubModule) Validate() error             { return m.record(PhaseValidate) }

// plainModule implements only Provisioner.
type plainModule struct {
	id          ModuleID
	provisioned *bool
}

func (m *plainModule) ModuleInfo() ModuleInfo {
	return ModuleInfo{ID: m.id, New: func() Module { return m }}
}

func (m *plainModule) Provision(*AppContext) error {
	*m.provisioned = true
	return nil
}

func configs(t *testing.T, entries map[string]string) map[string]yaml.Node {
	t.Helper()
	out := make(map[string]yaml.Node, len(entries))
	for id, src := range entries {
		var doc yaml.Node
		if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
			t.Fatalf("config for %s: %v", id, err)
		}
		out[id] = *doc.Content[0]
	}
	return out
}

func TestLoadModule_Phases(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name      string
		config    string
		errs      map[Phase]error
		wantCalls []string
		wantPhase Phase
	}{
		{
			name:      "configured",
			config:    "key: hello",
			wantCalls: []string{"configure", "provision", "validate"},
		},
		{
			name:      "no config entry skips configure",
			wantCalls: []string{"provision", "validate"},
		},
		{
			name:      "configure fails",
			config:    "key: hello",
			errs:      map[Phase]error{PhaseConfigure: boom},
			wantCalls: []string{"configure"},
			wantPhase: PhaseConfigure,
		},
		{
			name:      "provision fails",
			errs:      map[Phase]error{PhaseProvision: boom},
			wantCalls: []string{"provision"},
			wantPhase: PhaseProvision,
		},
		{
			name:      "validate fails",
			errs:      map[Phase]error{PhaseValidate: boom},
			wantCalls: []string{"provision", "validate"},
			wantPhase: PhaseValidate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Cleanup(resetRegistry)

			var calls []string
			RegisterModule(&stubModule{id: "test.stub", calls: &calls, errs: tt.errs})

			ctx := NewAppContext(nil, "/data", "/ws")
			if tt.config != "" {
				ctx = ctx.WithModuleConfigs(configs(t, map[string]string{"test.stub": tt.config}))
			}

			mod, err := ctx.LoadModule("test.stub")
			if !slices.Equal(calls, tt.wantCalls) {
				t.Errorf("calls = %v, want %v", calls, tt.wantCalls)
			}
			if tt.wantPhase == "" {
				if err != nil {
					t.Fatalf("LoadModule: %v", err)
				}
				if tt.config != "" && mod.(*stubModule).key != "hello" {
					t.Errorf("key = %q, want hello", mod.(*stubModule).key)
				}
				return
			}

			var modErr *ModuleError
			if !errors.As(err, &modErr) {
				t.Fatalf("err = %v, want *ModuleError", err)
			}
			if modErr.ID != "test.stub" || modErr.Phase != tt.wantPhase || !errors.Is(err, boom) {
				t.Errorf("err = %+v", modErr)
			}
		})
	}
}

func TestLoadModule_Unknown(t *testing.T) {
	t.Cleanup(resetRegistry)

	_, err := NewAppContext(nil, "", "").LoadModule("provider.nope")
	if !errors.Is(err, ErrUnknownModule) {
		t.Errorf("err = %v, want ErrUnknownModule", err)
	}
}

func TestLoadModule_ConfigIgnoredWithoutConfigure(t *testing.T) {
	t.Cleanup(resetRegistry)

	provisioned := false
	RegisterModule(&plainModule{id: "test.plain", provisioned: &provisioned})

	ctx := NewAppContext(nil, "", "").WithModuleConfigs(configs(t, map[string]string{"test.plain": "key: val"}))
	if _, err := ctx.LoadModule("test.plain"); err != nil {
		t.Fatalf("LoadModule: %v", err)
	}
	if !provisioned {
		t.Error("Provision not called")
	}
}

func TestAppContext_ForModule(t *testing.T) {
	var buf bytes.Buffer
	root := NewAppContext(slog.New(slog.NewTextHandler(&buf, nil)), "/data", "/ws").
		WithModuleConfigs(configs(t, map[string]string{"tool.bash": "timeout: 5s"}))

	child := root.ForModule("tool.bash")
	child.Logger.Info("registered")
	grandchild := child.ForModule("tool.edit")
	grandchild.Logger.Info("registered")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || !strings.Contains(lines[0], "module=tool.bash") {
		t.Fatalf("log = %q", buf.String())
	}
	if strings.Contains(lines[1], "tool.bash") || !strings.Contains(lines[1], "module=tool.edit") {
		t.Errorf("module attribute nested instead of replaced: %q", lines[1])
	}
	if child.DataDir != "/data" || child.Workspace != "/ws" {
		t.Errorf("dirs = %q %q", child.DataDir, child.Workspace)
	}
	if _, ok := child.ModuleConfig("tool.bash"); !ok {
		t.Error("module config not visible from child context")
	}
}

func TestAppContext_ModuleConfigIsCopy(t *testing.T) {
	ctx := NewAppContext(nil, "", "").WithModuleConfigs(configs(t, map[string]string{"tool.edit": "key: a"}))

	node, _ := ctx.ModuleConfig("tool.edit")
	node.Content = nil

	again, ok := ctx.ModuleConfig("tool.edit")
	if !ok || len(again.Content) == 0 {
		t.Error("caller modified the stored config")
	}
	if _, ok := ctx.ModuleConfig("tool.mcp"); ok {
		t.Error("config found for unconfigured module")
	}
}

func TestAppContext_Services(t *testing.T) {
	root := NewAppContext(nil, "", "")
	bash := root.ForModule("tool.bash")
	session := root.WithModuleConfigs(nil).ForModule("session.websocket")

	bash.RegisterService("tool.registry", 42)

	if got, ok := ServiceAs[int](session, "tool.registry"); !ok || got != 42 {
		t.Errorf("ServiceAs = %d, %v; services must be shared across derived contexts", got, ok)
	}
	if _, ok := ServiceAs[string](session, "tool.registry"); ok {
		t.Error("ServiceAs accepted the wrong type")
	}
	if _, ok := ServiceAs[int](session, "ledger.store"); ok {
		t.Error("ServiceAs found a missing service")
	}

	if got, err := RequireService[int](session, "tool.registry"); err != nil || got != 42 {
		t.Errorf("RequireService = %d, %v", got, err)
	}
	if _, err := RequireService[int](session, "ledger.store"); !errors.Is(err, ErrServiceMissing) {
		t.Errorf("missing service err = %v", err)
	}
	if _, err := RequireService[string](session, "tool.registry"); err == nil || !strings.Contains(err.Error(), "is int, want string") {
		t.Errorf("wrong type err = %v", err)
	}
}
