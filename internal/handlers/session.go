package handlers

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"aipa/internal/models"
	"aipa/internal/services"
	"aipa/internal/store"
)

// SessionHandler handles session-related HTTP requests
type SessionHandler struct {
	sessions *services.SessionService
	namer    *services.NamerService
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions *services.SessionService, namer *services.NamerService) *SessionHandler {
	return &SessionHandler{sessions: sessions, namer: namer}
}

// List returns sessions, most recently active first.
// GET /api/sessions?limit=20&cursor=...
func (h *SessionHandler) List(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}

	sessions, nextCursor, err := h.sessions.ListSessions(c.UserContext(), limit, c.Query("cursor"))
	if err != nil {
		return storeError(c, err)
	}

	return c.JSON(models.SessionListResponse{
		Sessions:   sessions,
		NextCursor: nextCursor,
	})
}

// Create creates a new session.
// POST /api/sessions
func (h *SessionHandler) Create(c *fiber.Ctx) error {
	var req models.CreateSessionRequest
	if err := c.BodyParser(&req); err != nil && !errors.Is(err, fiber.ErrUnprocessableEntity) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	session, err := h.sessions.CreateSession(c.UserContext(), req.Name)
	if err != nil {
		return storeError(c, err)
	}

	return c.JSON(fiber.Map{"session": session})
}

// Get returns a session with its full message history.
// GET /api/sessions/:id
func (h *SessionHandler) Get(c *fiber.Ctx) error {
	sessionID := c.Params("id")
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Session ID is required",
		})
	}

	detail, err := h.sessions.GetSession(c.UserContext(), sessionID)
	if err != nil {
		return storeError(c, err)
	}

	return c.JSON(detail)
}

// Update patches session metadata (name, status).
// PATCH /api/sessions/:id
func (h *SessionHandler) Update(c *fiber.Ctx) error {
	sessionID := c.Params("id")

	var req models.UpdateSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Name != nil {
		if err := h.sessions.SetName(c.UserContext(), sessionID, *req.Name); err != nil {
			return storeError(c, err)
		}
	}
	if req.Status != nil {
		if *req.Status != models.SessionActive && *req.Status != models.SessionArchived {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid session status",
			})
		}
		if err := h.sessions.SetStatus(c.UserContext(), sessionID, *req.Status); err != nil {
			return storeError(c, err)
		}
	}

	return c.JSON(fiber.Map{"success": true, "session_id": sessionID})
}

// AddMessage appends a message to a session's history. On the first message
// of a session still carrying the default name, a title is generated
// asynchronously from the message content.
// POST /api/sessions/:id/messages
func (h *SessionHandler) AddMessage(c *fiber.Ctx) error {
	sessionID := c.Params("id")

	var req models.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Message content is required",
		})
	}
	if req.Role == "" {
		req.Role = models.RoleUser
	}
	if req.Source == "" {
		req.Source = models.SourceText
	}

	session, err := h.sessions.GetSessionInfo(c.UserContext(), sessionID)
	if err != nil {
		return storeError(c, err)
	}

	msg, err := h.sessions.AppendMessage(c.UserContext(), sessionID, req.Role, req.Content, req.Source)
	if err != nil {
		return storeError(c, err)
	}

	if session.MessageCount == 0 && session.Name == "New Session" && h.namer != nil {
		go h.nameSession(sessionID, req.Content)
	}

	return c.JSON(fiber.Map{"message": msg})
}

// nameSession runs name generation off the request path. The request ctx is
// gone by the time this runs, so it carries its own deadline.
func (h *SessionHandler) nameSession(sessionID, firstMessage string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	name := h.namer.GenerateName(ctx, firstMessage)
	if name == "" {
		return
	}
	if err := h.sessions.SetName(ctx, sessionID, name); err != nil {
		log.Printf("⚠️ Failed to set generated session name: %v", err)
	}
}

// Fork creates a copy of a session with its message history.
// POST /api/sessions/:id/fork
func (h *SessionHandler) Fork(c *fiber.Ctx) error {
	sessionID := c.Params("id")

	var req models.ForkSessionRequest
	if err := c.BodyParser(&req); err != nil && !errors.Is(err, fiber.ErrUnprocessableEntity) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	session, err := h.sessions.ForkSession(c.UserContext(), sessionID, req.Name)
	if err != nil {
		return storeError(c, err)
	}

	return c.JSON(fiber.Map{"session": session})
}

// StorageMode reports which storage engine backs the session store.
// GET /api/sessions/:id/storage-mode
func (h *SessionHandler) StorageMode(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"persistent":   true,
		"storage_type": h.sessions.StorageMode(),
	})
}

// ResolveArtifactOwner returns the session that produced an artifact.
// GET /api/artifacts/owner?path=report.csv
func (h *SessionHandler) ResolveArtifactOwner(c *fiber.Ctx) error {
	path := c.Query("path")
	if path == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Artifact path is required",
		})
	}

	owner, err := h.sessions.ResolveArtifactOwner(c.UserContext(), path)
	if err != nil {
		return storeError(c, err)
	}

	return c.JSON(fiber.Map{"session_id": owner, "path": path})
}

// storeError maps session store failures onto HTTP statuses. Missing
// records are caller errors; transient store failures are retryable 503s.
func storeError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found",
		})
	case errors.Is(err, services.ErrArtifactNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Artifact not found",
		})
	case errors.Is(err, store.ErrStoreUnavailable):
		log.Printf("❌ [SESSIONS] Store unavailable: %v", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Session store unavailable",
		})
	default:
		log.Printf("❌ [SESSIONS] Unexpected error: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Internal error",
		})
	}
}
