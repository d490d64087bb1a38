package cli

import (
	"context"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestScheduleRunsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32

	done := make(chan struct{})
	go func() {
		schedule(ctx, 5*time.Millisecond, func(runCtx context.Context) {
			if runCtx.Err() != nil {
				t.Error("patrol context should not be cancelled")
			}
			if calls.Add(1) == 3 {
				cancel()
			}
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("schedule did not stop after cancel")
	}
	if n := calls.Load(); n < 3 {
		t.Errorf("calls = %d, want at least 3", n)
	}
}

func TestScheduleStopsBeforeFirstTick(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	schedule(ctx, time.Hour, func(context.Context) { called = true })
	if called {
		t.Error("fn called after cancellation")
	}
}

func TestScheduledPatrolInvalidPipeline(t *testing.T) {
	c := testConfig(t)
	c.Agent.AllowedTools = []string{"Bash"}

	// a pipeline that cannot be built is logged, not fatal to the scheduler
	if report := scheduledPatrol(context.Background(), c, zerolog.Nop()); report != nil {
		t.Errorf("report = %+v, want nil", report)
	}
}

func TestRunLockPathOutsideRepository(t *testing.T) {
	c := testConfig(t)

	path, err := runLockPath(context.Background(), c, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(c.StorageDir, "patrol.lock"); path != want {
		t.Errorf("lock path = %q, want %q", path, want)
	}
}

func TestRunLockPathSharedAcrossStorageDirs(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	a := testConfig(t)
	if out, err := exec.Command("git", "init", "-q", a.Workdir).CombinedOutput(); err != nil {
		t.Fatalf("git init: %v: %s", err, out)
	}
	b := testConfig(t)
	b.Workdir = a.Workdir

	pa, err := runLockPath(context.Background(), a, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	pb, err := runLockPath(context.Background(), b, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if pa != pb {
		t.Errorf("lock paths differ: %q vs %q", pa, pb)
	}
	if filepath.Base(pa) != "codepatrol.lock" || filepath.Base(filepath.Dir(pa)) != ".git" {
		t.Errorf("lock path = %q, want <workdir>/.git/codepatrol.lock", pa)
	}
}
