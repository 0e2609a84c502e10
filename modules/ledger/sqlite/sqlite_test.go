package sqlite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/agentbridge/internal/core"
	"github.com/flemzord/agentbridge/internal/cron"
	"github.com/flemzord/agentbridge/internal/ledger"
)

var base = time.Date(2024, time.October, 22, 12, 0, 0, 0, time.UTC)

func newTestModule(t *testing.T) *Module {
	t.Helper()

	dir := t.TempDir()
	m := &Module{
		config: Config{Path: filepath.Join(dir, "test.db")},
	}
	m.config.defaults()

	ctx := core.NewAppContext(slog.Default(), dir, dir)

	if err := m.Provision(ctx); err != nil {
		t.Fatalf("provision: %v", err)
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	t.Cleanup(func() {
		_ = m.Stop(context.Background())
	})

	return m
}

func testEntry(id string, startedAt time.Time) ledger.Entry {
	return ledger.Entry{
		RunID:        id,
		SessionID:    "s1",
		Model:        "claude-3-5-sonnet-20241022",
		Provider:     "anthropic",
		Iterations:   2,
		ToolCalls:    1,
		InputTokens:  60,
		OutputTokens: 40,
		TotalTokens:  100,
		StopReason:   "complete",
		StartedAt:    startedAt,
		Duration:     1500 * time.Millisecond,
	}
}

func TestRecordAndRecent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestModule(t).Store()

	for i := range 3 {
		if err := s.Record(ctx, testEntry(fmt.Sprintf("r%d", i), base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	want := testEntry("r2", base.Add(2*time.Minute))
	if !got[0].StartedAt.Equal(want.StartedAt) {
		t.Errorf("StartedAt = %v, want %v", got[0].StartedAt, want.StartedAt)
	}
	got[0].StartedAt = want.StartedAt
	if got[0] != want {
		t.Errorf("Recent[0] = %+v, want %+v", got[0], want)
	}
	if got[1].RunID != "r1" {
		t.Errorf("Recent[1].RunID = %q, want r1", got[1].RunID)
	}
}

func TestRecordReplaces(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestModule(t).Store()

	_ = s.Record(ctx, testEntry("r1", base))
	e := testEntry("r1", base)
	e.StopReason = "api_error"
	e.Error = "model api error (HTTP 529): provider unavailable"
	if err := s.Record(ctx, e); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, _ := s.Recent(ctx, 10)
	if len(got) != 1 || got[0].StopReason != "api_error" || !got[0].Failed() {
		t.Errorf("Recent = %+v", got)
	}
}

func TestRecordInvalid(t *testing.T) {
	t.Parallel()

	err := newTestModule(t).Store().Record(context.Background(), ledger.Entry{})
	if !errors.Is(err, ledger.ErrInvalidEntry) {
		t.Errorf("err = %v, want ErrInvalidEntry", err)
	}
}

func TestTotals(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestModule(t).Store()

	empty, err := s.Totals(ctx)
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	if empty != (ledger.Totals{}) {
		t.Errorf("empty Totals = %+v", empty)
	}

	_ = s.Record(ctx, testEntry("ok", base))
	bad := testEntry("bad", base)
	bad.Error = "boom"
	_ = s.Record(ctx, bad)

	got, err := s.Totals(ctx)
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	want := ledger.Totals{Runs: 2, Failed: 1, ToolCalls: 2, TotalTokens: 200}
	if got != want {
		t.Errorf("Totals = %+v, want %+v", got, want)
	}
}

func TestPrune(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestModule(t).Store()

	_ = s.Record(ctx, testEntry("old", base.Add(-72*time.Hour)))
	_ = s.Record(ctx, testEntry("new", base))

	n, err := s.Prune(ctx, base.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned = %d, want 1", n)
	}
	got, _ := s.Recent(ctx, 10)
	if len(got) != 1 || got[0].RunID != "new" {
		t.Errorf("Recent = %+v", got)
	}
}

func TestReopenKeepsRows(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "ledger.db")

	s, err := Open(ctx, path, Options{WAL: true, BusyTimeout: 1000})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = s.Record(ctx, testEntry("r1", base))
	_ = s.Close()

	s, err = Open(ctx, path, Options{WAL: true, BusyTimeout: 1000})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = s.Close() }()

	got, _ := s.Recent(ctx, 10)
	if len(got) != 1 {
		t.Errorf("rows after reopen = %d, want 1", len(got))
	}
}

func TestConcurrentRecord(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestModule(t).Store()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Go(func() {
			if err := s.Record(ctx, testEntry(fmt.Sprintf("r%d", i), base)); err != nil {
				t.Errorf("Record: %v", err)
			}
		})
	}
	wg.Wait()

	got, _ := s.Totals(ctx)
	if got.Runs != 20 {
		t.Errorf("Runs = %d, want 20", got.Runs)
	}
}

func TestProvisionRegistersServices(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := core.NewAppContext(slog.Default(), dir, dir)
	sched := cron.NewScheduler(slog.Default())
	ctx.RegisterService(cron.Service, sched)

	m := &Module{}
	if err := m.Provision(ctx); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	t.Cleanup(func() { _ = m.Stop(context.Background()) })

	if m.config.Path != filepath.Join(dir, dbFile) {
		t.Errorf("Path = %q", m.config.Path)
	}
	if _, ok := core.ServiceAs[ledger.Store](ctx, ledger.Service); !ok {
		t.Error("ledger store not registered")
	}
	if jobs := sched.Jobs(); len(jobs) != 1 || jobs[0] != "ledger_prune" {
		t.Errorf("Jobs() = %v, want [ledger_prune]", jobs)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	m := newTestModule(t)
	if err := m.Health(context.Background()); err != nil {
		t.Fatalf("Health on open store: %v", err)
	}
	if err := m.store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := m.Health(context.Background()); err == nil {
		t.Error("Health on closed store returned nil")
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", Config{}, false},
		{"negative busy_timeout", Config{BusyTimeout: -1}, true},
		{"bad prune schedule", Config{PruneSchedule: "every hour"}, true},
		{"bad schedule ignored without retention", Config{Retention: -1, PruneSchedule: "every hour"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := tt.cfg
			cfg.defaults()
			if err := cfg.validate(); (err != nil) != tt.wantErr {
				t.Errorf("validate = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMigrate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")
	s, err := Open(ctx, path, Options{BusyTimeout: 1000})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		t.Fatal(err)
	}
	if version != len(migrations) {
		t.Errorf("user_version = %d, want %d", version, len(migrations))
	}
	if err := migrate(ctx, s.db); err != nil {
		t.Errorf("second migrate: %v", err)
	}

	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", len(migrations)+1)); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	if _, err := Open(ctx, path, Options{BusyTimeout: 1000}); err == nil {
		t.Error("Open accepted a schema from a newer build")
	}
}

func TestDSN(t *testing.T) {
	t.Parallel()

	got := dsn("/data/ledger.db", Options{WAL: true, BusyTimeout: 250})
	for _, want := range []string{"file:/data/ledger.db?", "busy_timeout%28250%29", "journal_mode%28WAL%29"} {
		if !strings.Contains(got, want) {
			t.Errorf("dsn = %q, missing %q", got, want)
		}
	}
	if got := dsn("ledger.db", Options{}); strings.Contains(got, "journal_mode") {
		t.Errorf("dsn without WAL = %q", got)
	}
}
