package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"aipa/internal/platform"
)

type fakeLifecycle struct {
	state         platform.ServiceState
	statusErr     error
	shutdownErr   error
	shutdownCalls int
}

func (f *fakeLifecycle) Status(_ context.Context) (platform.ServiceState, error) {
	if f.statusErr != nil {
		return platform.ServiceState{}, f.statusErr
	}
	return f.state, nil
}

func (f *fakeLifecycle) Shutdown(_ context.Context) (platform.ServiceState, error) {
	if f.shutdownErr != nil {
		return platform.ServiceState{}, f.shutdownErr
	}
	f.shutdownCalls++
	f.state = platform.ServiceState{Desired: 0, Running: f.state.Running}
	return f.state, nil
}

type fakeActivity struct {
	count int64
	err   error
}

func (f *fakeActivity) CountWindow(_ context.Context, _ time.Duration) (int64, error) {
	return f.count, f.err
}

func newChecker(lc *fakeLifecycle, act *fakeActivity, threshold int) *IdleChecker {
	return NewIdleChecker(lc, act, 30*time.Minute, threshold, 15*time.Minute)
}

func TestIdleChecker_ShutdownBelowThreshold(t *testing.T) {
	lc := &fakeLifecycle{state: platform.ServiceState{Desired: 1, Running: 1}}
	checker := newChecker(lc, &fakeActivity{count: 4}, 5)

	if err := checker.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if lc.shutdownCalls != 1 {
		t.Errorf("Expected shutdown at count 4 < threshold 5, got %d calls", lc.shutdownCalls)
	}
}

func TestIdleChecker_NoShutdownAtThreshold(t *testing.T) {
	// Threshold is exclusive-below: count == threshold keeps the service up
	lc := &fakeLifecycle{state: platform.ServiceState{Desired: 1, Running: 1}}
	checker := newChecker(lc, &fakeActivity{count: 5}, 5)

	if err := checker.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if lc.shutdownCalls != 0 {
		t.Errorf("Expected no shutdown at count == threshold, got %d calls", lc.shutdownCalls)
	}
}

func TestIdleChecker_NeverShutsDownWhileStarting(t *testing.T) {
	lc := &fakeLifecycle{state: platform.ServiceState{Desired: 1, Running: 0}}
	// Zero activity would otherwise trigger shutdown
	checker := newChecker(lc, &fakeActivity{count: 0}, 5)

	if err := checker.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if lc.shutdownCalls != 0 {
		t.Errorf("Must never shut down a starting service, got %d calls", lc.shutdownCalls)
	}
}

func TestIdleChecker_NoopWhenStopped(t *testing.T) {
	lc := &fakeLifecycle{state: platform.ServiceState{Desired: 0, Running: 0}}
	checker := newChecker(lc, &fakeActivity{count: 0}, 5)

	if err := checker.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if lc.shutdownCalls != 0 {
		t.Errorf("Expected no-op for stopped service, got %d calls", lc.shutdownCalls)
	}
}

func TestIdleChecker_ProbeErrorFailsClosed(t *testing.T) {
	lc := &fakeLifecycle{statusErr: platform.ErrPlatformUnavailable}
	checker := newChecker(lc, &fakeActivity{count: 0}, 5)

	err := checker.Run(context.Background())
	if !errors.Is(err, platform.ErrPlatformUnavailable) {
		t.Fatalf("Expected probe error to propagate, got %v", err)
	}
	if lc.shutdownCalls != 0 {
		t.Errorf("Must not shut down on unknown state, got %d calls", lc.shutdownCalls)
	}
}

func TestIdleChecker_ActivityErrorFailsClosed(t *testing.T) {
	lc := &fakeLifecycle{state: platform.ServiceState{Desired: 1, Running: 1}}
	checker := newChecker(lc, &fakeActivity{err: errors.New("redis down")}, 5)

	if err := checker.Run(context.Background()); err == nil {
		t.Fatal("Expected activity read error to propagate")
	}
	if lc.shutdownCalls != 0 {
		t.Errorf("Must not shut down when activity is unknown, got %d calls", lc.shutdownCalls)
	}
}

func TestIdleChecker_ShutdownErrorSurfaced(t *testing.T) {
	lc := &fakeLifecycle{
		state:       platform.ServiceState{Desired: 1, Running: 1},
		shutdownErr: platform.ErrScaleRequestFailed,
	}
	checker := newChecker(lc, &fakeActivity{count: 0}, 5)

	err := checker.Run(context.Background())
	if !errors.Is(err, platform.ErrScaleRequestFailed) {
		t.Fatalf("Expected scale failure to propagate, got %v", err)
	}
}
