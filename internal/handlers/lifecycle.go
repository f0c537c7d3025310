package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"aipa/internal/platform"
	"aipa/internal/services"
)

// LifecycleHandler adapts the wake/status/shutdown control plane to HTTP
type LifecycleHandler struct {
	lifecycle *services.LifecycleService
}

// NewLifecycleHandler creates a new lifecycle handler
func NewLifecycleHandler(lifecycle *services.LifecycleService) *LifecycleHandler {
	return &LifecycleHandler{lifecycle: lifecycle}
}

// Status returns the current service status from a fresh platform read.
// GET /status
func (h *LifecycleHandler) Status(c *fiber.Ctx) error {
	state, err := h.lifecycle.Status(c.UserContext())
	if err != nil {
		return platformError(c, err)
	}

	return c.JSON(fiber.Map{
		"status":  state.Status(),
		"desired": state.Desired,
		"running": state.Running,
	})
}

// Wake triggers a scale-up if the service is stopped. Fire-and-return: the
// caller polls /status for readiness.
// GET|POST /wake
func (h *LifecycleHandler) Wake(c *fiber.Ctx) error {
	state, err := h.lifecycle.Wake(c.UserContext())
	if err != nil {
		return platformError(c, err)
	}

	message := "Service is starting"
	if state.Status() == platform.StatusRunning {
		message = "Service is already running"
	}

	return c.JSON(fiber.Map{
		"status":  state.Status(),
		"message": message,
		"desired": state.Desired,
		"running": state.Running,
	})
}

// Shutdown triggers a scale-to-zero if the service has replicas desired.
// POST /shutdown
func (h *LifecycleHandler) Shutdown(c *fiber.Ctx) error {
	state, err := h.lifecycle.Shutdown(c.UserContext())
	if err != nil {
		return platformError(c, err)
	}

	// Replicas may still be draining after the scale request lands
	status := "stopped"
	message := "Service is stopped"
	if state.Running > 0 {
		status = "stopping"
		message = "Service is shutting down"
	}

	return c.JSON(fiber.Map{
		"status":  status,
		"message": message,
	})
}

// platformError maps platform failures onto a generic 5xx. Internal detail
// stays in the server log; the caller only learns the failure class.
func platformError(c *fiber.Ctx, err error) error {
	log.Printf("❌ [LIFECYCLE] Platform call failed: %v", err)

	switch {
	case errors.Is(err, platform.ErrScaleRequestFailed):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Scale request failed",
		})
	case errors.Is(err, platform.ErrPlatformUnavailable):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Compute platform unavailable",
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unexpected platform failure",
		})
	}
}
