package daemon

import (
	"context"
	"testing"
	"time"

	"go.uber.org/fx"

	"github.com/qiaoborui/telegram-search-bot/internal/lock"
	"github.com/qiaoborui/telegram-search-bot/internal/session"
	"github.com/qiaoborui/telegram-search-bot/internal/status"
	"github.com/qiaoborui/telegram-search-bot/internal/store"
)

// TestDaemonLifecycle boots the full fx graph against a temp data dir and
// verifies the daemon reaches READY and releases its resources on stop.
func TestDaemonLifecycle(t *testing.T) {
	tmpDir := t.TempDir()

	var (
		machine *status.Machine
		sess    *session.Session
		db      *store.DB
	)
	app := fx.New(
		Module(Params{DataDir: tmpDir}),
		fx.Populate(&machine, &sess, &db),
		fx.NopLogger,
	)
	if err := app.Err(); err != nil {
		t.Fatalf("fx graph error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if got := machine.Current(); got != status.Ready {
		t.Errorf("state = %s, want READY", got)
	}
	if sess == nil {
		t.Fatal("session not provided")
	}

	// The archive is usable through the started daemon's store handle.
	if err := db.UpsertChat(&store.Chat{ID: 1, Title: "Smoke", Enabled: true}); err != nil {
		t.Errorf("store write through daemon: %v", err)
	}

	// A second daemon on the same data dir must be refused.
	if _, err := lock.Acquire(tmpDir); err == nil {
		t.Error("second Acquire() on a running daemon's data dir should fail")
	}

	if err := app.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	// Lock is released after stop.
	l, err := lock.Acquire(tmpDir)
	if err != nil {
		t.Fatalf("Acquire() after stop error = %v", err)
	}
	_ = l.Release()
}

// TestFxModuleWiring verifies the dependency graph resolves without
// running lifecycle hooks.
func TestFxModuleWiring(t *testing.T) {
	tmpDir := t.TempDir()

	err := fx.ValidateApp(
		Module(Params{DataDir: tmpDir}),
		fx.NopLogger,
	)
	if err != nil {
		t.Fatalf("ValidateApp() error = %v", err)
	}
}
