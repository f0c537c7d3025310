package platform

import (
	"context"
	"errors"
)

// Errors returned by platform operations. Both are transient: callers may
// retry, but must never interpret them as a known service state.
var (
	// ErrPlatformUnavailable means the platform API could not be reached or
	// did not recognize the managed service. The service state is unknown,
	// not stopped.
	ErrPlatformUnavailable = errors.New("compute platform unavailable")

	// ErrScaleRequestFailed means a scale request was dispatched but not
	// accepted. The caller owns retries; swallowing this would strand the
	// service in an unintended state.
	ErrScaleRequestFailed = errors.New("scale request failed")
)

// Status is the derived three-state view of the managed service
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
)

// ServiceState is the platform-reported replica picture of the managed
// service. It is derived fresh on every probe and never cached.
type ServiceState struct {
	Desired int `json:"desired"`
	Running int `json:"running"`
}

// Status maps replica counts onto the three-state enumeration. It is a pure
// function of (Desired, Running); no other state feeds into it.
func (s ServiceState) Status() Status {
	switch {
	case s.Running > 0:
		return StatusRunning
	case s.Desired > 0:
		return StatusStarting
	default:
		return StatusStopped
	}
}

// Client talks to the compute platform that hosts the agent service.
// DescribeService has no side effects; ScaleService is idempotent at the
// platform level (setting the same desired count twice is a no-op).
type Client interface {
	DescribeService(ctx context.Context) (ServiceState, error)
	ScaleService(ctx context.Context, desired int) error
}
