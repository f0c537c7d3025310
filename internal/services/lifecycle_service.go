package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"aipa/internal/platform"
)

// ErrWakeTimeout means the service did not reach running within the
// configured readiness window. Transient: the service may still come up.
var ErrWakeTimeout = errors.New("service did not become ready in time")

// LifecycleService is the wake controller for the managed agent service.
// It holds no state of its own: every decision starts from a fresh platform
// probe, so concurrent calls are safe without locking.
type LifecycleService struct {
	platform platform.Client
	maxWait  time.Duration
}

// NewLifecycleService creates the wake controller
func NewLifecycleService(client platform.Client, maxWait time.Duration) *LifecycleService {
	if maxWait <= 0 {
		maxWait = 2 * time.Minute
	}
	return &LifecycleService{platform: client, maxWait: maxWait}
}

// Status returns the current service state from a fresh platform probe.
// Probe failures propagate; they are never mapped to a stopped state.
func (s *LifecycleService) Status(ctx context.Context) (platform.ServiceState, error) {
	return s.platform.DescribeService(ctx)
}

// Wake requests the service scale from zero to one. Idempotent in effect:
// while the service is starting or running no additional scale action is
// taken. It does not block until the service is ready.
func (s *LifecycleService) Wake(ctx context.Context) (platform.ServiceState, error) {
	state, err := s.platform.DescribeService(ctx)
	if err != nil {
		return platform.ServiceState{}, err
	}

	if state.Status() != platform.StatusStopped {
		return state, nil
	}

	if err := s.platform.ScaleService(ctx, 1); err != nil {
		if m := GetMetrics(); m != nil {
			m.RecordScaleFailure()
		}
		return platform.ServiceState{}, err
	}

	if m := GetMetrics(); m != nil {
		m.RecordWake()
	}
	slog.Info("wake: scale-up requested", "running", state.Running)

	return platform.ServiceState{Desired: 1, Running: state.Running}, nil
}

// Shutdown requests the service scale to zero. No action if already stopped.
func (s *LifecycleService) Shutdown(ctx context.Context) (platform.ServiceState, error) {
	state, err := s.platform.DescribeService(ctx)
	if err != nil {
		return platform.ServiceState{}, err
	}

	if state.Desired == 0 {
		return state, nil
	}

	if err := s.platform.ScaleService(ctx, 0); err != nil {
		if m := GetMetrics(); m != nil {
			m.RecordScaleFailure()
		}
		return platform.ServiceState{}, err
	}

	if m := GetMetrics(); m != nil {
		m.RecordShutdown()
	}
	slog.Info("shutdown: scale-to-zero requested", "was_desired", state.Desired, "was_running", state.Running)

	return platform.ServiceState{Desired: 0, Running: state.Running}, nil
}

// WaitUntilRunning polls the platform with capped exponential backoff until
// the service reports running, the context ends, or the configured maximum
// wait expires (ErrWakeTimeout). Transient probe errors do not abort the
// wait; the state stays unknown until the next poll.
func (s *LifecycleService) WaitUntilRunning(ctx context.Context) (platform.ServiceState, error) {
	deadline := time.Now().Add(s.maxWait)
	backoff := time.Second

	for {
		state, err := s.platform.DescribeService(ctx)
		if err == nil && state.Status() == platform.StatusRunning {
			return state, nil
		}
		if err != nil {
			slog.Debug("readiness probe failed, retrying", "error", err)
		}

		if time.Now().Add(backoff).After(deadline) {
			return platform.ServiceState{}, fmt.Errorf("%w (waited %v)", ErrWakeTimeout, s.maxWait)
		}

		select {
		case <-ctx.Done():
			return platform.ServiceState{}, ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > 10*time.Second {
			backoff = 10 * time.Second
		}
	}
}
