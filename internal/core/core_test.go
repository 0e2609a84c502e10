package core

import (
	"context"
	"errors"
	"slices"
	"testing"
)

// lifecycleModule records Start and Stop calls into a shared log.
type lifecycleModule struct {
	id       ModuleID
	log      *[]string
	startErr error
	stopErr  error
}

func (m *lifecycleModule) ModuleInfo() ModuleInfo {
	return ModuleInfo{ID: m.id, New: func() Module { return m }}
}

func (m *lifecycleModule) Start() error {
	*m.log = append(*m.log, "start "+string(m.id))
	return m.startErr
}

func (m *lifecycleModule) Stop(context.Context) error {
	*m.log = append(*m.log, "stop "+string(m.id))
	return m.stopErr
}

func newTestApp() *App {
	return NewApp(NewAppContext(nil, "/data", "/ws"))
}

func TestApp_StartStopOrder(t *testing.T) {
	var log []string
	app := newTestApp()
	app.AppendModule("a", &lifecycleModule{id: "a", log: &log})
	app.AppendModule("b", &lifecycleModule{id: "b", log: &log})
	app.AppendModule("c", &lifecycleModule{id: "c", log: &log})

	if err := app.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	app.Stop()

	want := []string{"start a", "start b", "start c", "stop c", "stop b", "stop a"}
	if !slices.Equal(log, want) {
		t.Errorf("lifecycle = %v, want %v", log, want)
	}
}

func TestApp_StartFailureRollsBack(t *testing.T) {
	var log []string
	app := newTestApp()
	app.AppendModule("a", &lifecycleModule{id: "a", log: &log})
	app.AppendModule("b", &lifecycleModule{id: "b", log: &log, startErr: errors.New("boom")})
	app.AppendModule("c", &lifecycleModule{id: "c", log: &log})

	if err := app.Start(); err == nil {
		t.Fatal("expected start error")
	}

	want := []string{"start a", "start b", "stop a"}
	if !slices.Equal(log, want) {
		t.Errorf("lifecycle = %v, want %v", log, want)
	}

	// Nothing left running.
	log = nil
	app.Stop()
	if len(log) != 0 {
		t.Errorf("Stop after failed Start = %v, want nothing", log)
	}
}

func TestApp_StopJoinsErrors(t *testing.T) {
	var log []string
	app := newTestApp()
	app.AppendModule("a", &lifecycleModule{id: "a", log: &log, stopErr: errors.New("flush failed")})
	app.AppendModule("b", &lifecycleModule{id: "b", log: &log})
	app.AppendModule("c", &lifecycleModule{id: "c", log: &log, stopErr: errors.New("socket busy")})

	if err := app.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	err := app.Stop()
	if err == nil {
		t.Fatal("Stop returned nil")
	}
	want := "stop module c: socket busy\nstop module a: flush failed"
	if err.Error() != want {
		t.Errorf("Stop = %q, want %q", err.Error(), want)
	}
	if !slices.Equal(log, []string{"start a", "start b", "start c", "stop c", "stop b", "stop a"}) {
		t.Errorf("lifecycle = %v", log)
	}
	if err := app.Stop(); err != nil {
		t.Errorf("second Stop = %v", err)
	}
}

func TestApp_Module(t *testing.T) {
	var log []string
	app := newTestApp()
	mod := &lifecycleModule{id: "x", log: &log}
	app.AppendModule("x", mod)

	got, ok := app.Module("x")
	if !ok || got != mod {
		t.Errorf("Module(x) = %v, %v", got, ok)
	}
	if _, ok := app.Module("y"); ok {
		t.Error("Module(y) should not be found")
	}
}

func TestApp_LoadModulesFailureCleansUp(t *testing.T) {
	t.Cleanup(resetRegistry)

	RegisterModule(&stubModule{id: "test.ok"})
	RegisterModule(&stubModule{id: "test.bad", errs: map[Phase]error{PhaseValidate: errors.New("invalid")}})

	app := newTestApp()
	err := app.LoadModules([]string{"test.ok", "test.bad"})
	var modErr *ModuleError
	if !errors.As(err, &modErr) || modErr.ID != "test.bad" || modErr.Phase != PhaseValidate {
		t.Fatalf("err = %v, want validate error from test.bad", err)
	}
	if _, ok := app.Module("test.ok"); ok {
		t.Error("loaded modules should be discarded after failure")
	}
}

// stopOnlyModule has a Stopper and a HealthChecker but no Starter, like
// a module that opens its database in Provision.
type stopOnlyModule struct {
	log       *[]string
	healthErr error
}

func (m *stopOnlyModule) ModuleInfo() ModuleInfo {
	return ModuleInfo{ID: "test.db", New: func() Module { return m }}
}

func (m *stopOnlyModule) Stop(context.Context) error {
	*m.log = append(*m.log, "stop test.db")
	return nil
}

func (m *stopOnlyModule) Health(context.Context) error { return m.healthErr }

func TestApp_StopsModulesWithoutStarter(t *testing.T) {
	var log []string
	app := newTestApp()
	app.AppendModule("test.db", &stopOnlyModule{log: &log})
	app.AppendModule("test.web", &lifecycleModule{id: "test.web", log: &log})

	if err := app.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	app.Stop()

	want := []string{"start test.web", "stop test.web", "stop test.db"}
	if !slices.Equal(log, want) {
		t.Errorf("lifecycle = %v, want %v", log, want)
	}
}

func TestApp_Health(t *testing.T) {
	var log []string
	app := newTestApp()
	db := &stopOnlyModule{log: &log}
	app.AppendModule("test.db", db)
	app.AppendModule("test.web", &lifecycleModule{id: "test.web", log: &log})

	if got := app.Health(context.Background()); len(got) != 0 {
		t.Errorf("Health before Start = %v, want empty", got)
	}

	if err := app.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer app.Stop()

	got := app.Health(context.Background())
	if len(got) != 1 {
		t.Fatalf("Health = %v, want only test.db", got)
	}
	if err, ok := got["test.db"]; !ok || err != nil {
		t.Errorf("test.db = %v, %v", err, ok)
	}

	db.healthErr = errors.New("database is closed")
	if err := app.Health(context.Background())["test.db"]; err == nil {
		t.Error("expected test.db to report its error")
	}
}
