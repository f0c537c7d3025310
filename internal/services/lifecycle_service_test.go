package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"aipa/internal/platform"
)

// fakePlatform scripts the platform's replica state and records scale calls
type fakePlatform struct {
	state       platform.ServiceState
	describeErr error
	scaleErr    error
	scaleCalls  []int
}

func (f *fakePlatform) DescribeService(_ context.Context) (platform.ServiceState, error) {
	if f.describeErr != nil {
		return platform.ServiceState{}, f.describeErr
	}
	return f.state, nil
}

func (f *fakePlatform) ScaleService(_ context.Context, desired int) error {
	if f.scaleErr != nil {
		return f.scaleErr
	}
	f.scaleCalls = append(f.scaleCalls, desired)
	f.state.Desired = desired
	return nil
}

func TestWake_FromStopped(t *testing.T) {
	fake := &fakePlatform{state: platform.ServiceState{Desired: 0, Running: 0}}
	svc := NewLifecycleService(fake, time.Minute)

	state, err := svc.Wake(context.Background())
	if err != nil {
		t.Fatalf("Wake failed: %v", err)
	}
	if state.Status() != platform.StatusStarting {
		t.Errorf("Expected starting, got %s", state.Status())
	}
	if len(fake.scaleCalls) != 1 || fake.scaleCalls[0] != 1 {
		t.Errorf("Expected one scale-to-1 call, got %v", fake.scaleCalls)
	}
}

func TestWake_IdempotentWhileStarting(t *testing.T) {
	fake := &fakePlatform{state: platform.ServiceState{Desired: 0, Running: 0}}
	svc := NewLifecycleService(fake, time.Minute)

	ctx := context.Background()
	if _, err := svc.Wake(ctx); err != nil {
		t.Fatalf("First wake failed: %v", err)
	}

	// Service is now starting; further wakes must not take new action
	for i := 0; i < 3; i++ {
		state, err := svc.Wake(ctx)
		if err != nil {
			t.Fatalf("Repeated wake failed: %v", err)
		}
		if state.Status() != platform.StatusStarting {
			t.Errorf("Expected starting, got %s", state.Status())
		}
	}

	if len(fake.scaleCalls) != 1 {
		t.Errorf("Expected exactly one scale call, got %d", len(fake.scaleCalls))
	}
}

func TestWake_NoActionWhileRunning(t *testing.T) {
	fake := &fakePlatform{state: platform.ServiceState{Desired: 1, Running: 1}}
	svc := NewLifecycleService(fake, time.Minute)

	state, err := svc.Wake(context.Background())
	if err != nil {
		t.Fatalf("Wake failed: %v", err)
	}
	if state.Status() != platform.StatusRunning {
		t.Errorf("Expected running, got %s", state.Status())
	}
	if len(fake.scaleCalls) != 0 {
		t.Errorf("Expected no scale calls, got %v", fake.scaleCalls)
	}
}

func TestWake_ProbeErrorPropagates(t *testing.T) {
	fake := &fakePlatform{describeErr: platform.ErrPlatformUnavailable}
	svc := NewLifecycleService(fake, time.Minute)

	_, err := svc.Wake(context.Background())
	if !errors.Is(err, platform.ErrPlatformUnavailable) {
		t.Fatalf("Expected ErrPlatformUnavailable, got %v", err)
	}
	if len(fake.scaleCalls) != 0 {
		t.Errorf("Must not scale on unknown state, got %v", fake.scaleCalls)
	}
}

func TestWake_ScaleFailureSurfaced(t *testing.T) {
	fake := &fakePlatform{
		state:    platform.ServiceState{Desired: 0, Running: 0},
		scaleErr: platform.ErrScaleRequestFailed,
	}
	svc := NewLifecycleService(fake, time.Minute)

	_, err := svc.Wake(context.Background())
	if !errors.Is(err, platform.ErrScaleRequestFailed) {
		t.Fatalf("Expected ErrScaleRequestFailed, got %v", err)
	}
}

func TestShutdown(t *testing.T) {
	fake := &fakePlatform{state: platform.ServiceState{Desired: 1, Running: 1}}
	svc := NewLifecycleService(fake, time.Minute)

	state, err := svc.Shutdown(context.Background())
	if err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if state.Desired != 0 {
		t.Errorf("Expected desired=0, got %d", state.Desired)
	}
	if len(fake.scaleCalls) != 1 || fake.scaleCalls[0] != 0 {
		t.Errorf("Expected one scale-to-0 call, got %v", fake.scaleCalls)
	}
}

func TestShutdown_NoActionWhenStopped(t *testing.T) {
	fake := &fakePlatform{state: platform.ServiceState{Desired: 0, Running: 0}}
	svc := NewLifecycleService(fake, time.Minute)

	state, err := svc.Shutdown(context.Background())
	if err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if state.Status() != platform.StatusStopped {
		t.Errorf("Expected stopped, got %s", state.Status())
	}
	if len(fake.scaleCalls) != 0 {
		t.Errorf("Expected no scale calls, got %v", fake.scaleCalls)
	}
}

func TestWaitUntilRunning_Succeeds(t *testing.T) {
	fake := &fakePlatform{state: platform.ServiceState{Desired: 1, Running: 1}}
	svc := NewLifecycleService(fake, 5*time.Second)

	state, err := svc.WaitUntilRunning(context.Background())
	if err != nil {
		t.Fatalf("WaitUntilRunning failed: %v", err)
	}
	if state.Status() != platform.StatusRunning {
		t.Errorf("Expected running, got %s", state.Status())
	}
}

func TestWaitUntilRunning_Timeout(t *testing.T) {
	fake := &fakePlatform{state: platform.ServiceState{Desired: 1, Running: 0}}
	svc := NewLifecycleService(fake, 2*time.Second)

	_, err := svc.WaitUntilRunning(context.Background())
	if !errors.Is(err, ErrWakeTimeout) {
		t.Fatalf("Expected ErrWakeTimeout, got %v", err)
	}
}

func TestWaitUntilRunning_ContextCancelled(t *testing.T) {
	fake := &fakePlatform{state: platform.ServiceState{Desired: 1, Running: 0}}
	svc := NewLifecycleService(fake, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.WaitUntilRunning(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}
