package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"aipa/internal/store"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	repo store.Repository
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(repo store.Repository) *HealthHandler {
	return &HealthHandler{repo: repo}
}

// Handle responds with server health status
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	storage := "none"
	if h.repo != nil {
		storage = h.repo.Name()
		if err := h.repo.Ping(c.UserContext()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status":  "degraded",
				"storage": storage,
				"error":   "session store unreachable",
			})
		}
	}

	return c.JSON(fiber.Map{
		"status":    "healthy",
		"storage":   storage,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
