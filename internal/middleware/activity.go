package middleware

import (
	"github.com/gofiber/fiber/v2"

	"aipa/internal/services"
)

// ActivityRecorder counts every request through the control API into the
// trailing activity window the idle checker reads. Health checks and
// metrics scrapes are excluded; they are infrastructure, not user traffic.
// Status polls are deliberately included: the idle threshold is calibrated
// above that background noise, not around it.
func ActivityRecorder(activity *services.ActivityService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch c.Path() {
		case "/health", "/metrics":
			return c.Next()
		}

		if activity != nil {
			activity.RecordRequest(c.UserContext())
		}
		return c.Next()
	}
}
