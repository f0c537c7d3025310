package jobs

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"aipa/internal/platform"
	"aipa/internal/services"
)

// LifecycleController is the slice of the wake controller the idle checker
// needs: probing and scale-to-zero.
type LifecycleController interface {
	Status(ctx context.Context) (platform.ServiceState, error)
	Shutdown(ctx context.Context) (platform.ServiceState, error)
}

// IdleChecker shuts the agent service down when traffic over the trailing
// idle window drops below the activity threshold. On any error during a
// tick it skips the shutdown decision entirely: an erroneous shutdown is
// more disruptive than a missed idle cycle, and the next tick retries.
type IdleChecker struct {
	lifecycle LifecycleController
	activity  services.ActivitySource
	window    time.Duration
	threshold int
	interval  time.Duration
	ticks     atomic.Int64
}

// NewIdleChecker creates the idle checker job. The window doubles as both
// the metric query span and the no-activity decision span, so the check
// always matches the timeout policy. The threshold must sit above the
// control API's own background polling volume, or it will never fire.
func NewIdleChecker(lifecycle LifecycleController, activity services.ActivitySource, window time.Duration, threshold int, interval time.Duration) *IdleChecker {
	return &IdleChecker{
		lifecycle: lifecycle,
		activity:  activity,
		window:    window,
		threshold: threshold,
		interval:  interval,
	}
}

// Name identifies the job in scheduler logs
func (c *IdleChecker) Name() string { return "idle-checker" }

// Interval is how often the checker ticks
func (c *IdleChecker) Interval() time.Duration { return c.interval }

// Run executes one idle check tick
func (c *IdleChecker) Run(ctx context.Context) error {
	logger := slog.With("tick", c.ticks.Add(1))

	state, err := c.lifecycle.Status(ctx)
	if err != nil {
		// Unknown state, not stopped: no decision this tick
		c.record("error", 0)
		logger.Warn("idle check skipped, probe failed", "error", err)
		return err
	}

	switch state.Status() {
	case platform.StatusStopped:
		logger.Debug("idle check: service already stopped")
		return nil
	case platform.StatusStarting:
		// A service mid-start is never eligible for idle shutdown
		logger.Info("idle check: service starting, skipping")
		return nil
	}

	count, err := c.activity.CountWindow(ctx, c.window)
	if err != nil {
		c.record("error", 0)
		logger.Warn("idle check skipped, activity read failed", "error", err)
		return err
	}

	logger = logger.With("observed", count, "threshold", c.threshold, "window", c.window)

	if count >= int64(c.threshold) {
		c.record("active", count)
		logger.Info("idle check: service active")
		return nil
	}

	if _, err := c.lifecycle.Shutdown(ctx); err != nil {
		c.record("error", count)
		logger.Error("idle shutdown failed", "error", err)
		return err
	}

	c.record("shutdown", count)
	logger.Info("idle check: shutdown issued")
	return nil
}

func (c *IdleChecker) record(outcome string, observed int64) {
	if m := services.GetMetrics(); m != nil {
		m.RecordIdleTick(outcome, observed)
	}
}
