package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v2"

	"aipa/internal/services"
	"aipa/internal/store"
)

func setupSessionApp(t *testing.T) *fiber.App {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test_sessions.db")
	repo, err := store.NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close(context.Background()) })

	// Namer nil: async title generation stays out of handler tests
	handler := NewSessionHandler(services.NewSessionService(repo), nil)

	app := fiber.New()
	api := app.Group("/api")
	api.Get("/sessions", handler.List)
	api.Post("/sessions", handler.Create)
	api.Get("/sessions/:id", handler.Get)
	api.Patch("/sessions/:id", handler.Update)
	api.Post("/sessions/:id/messages", handler.AddMessage)
	api.Post("/sessions/:id/fork", handler.Fork)
	api.Get("/sessions/:id/storage-mode", handler.StorageMode)
	api.Get("/artifacts/owner", handler.ResolveArtifactOwner)
	return app
}

func request(t *testing.T, app *fiber.App, method, path string, payload any) (int, map[string]any) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("Failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Request %s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	var parsed map[string]any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		t.Fatalf("Invalid JSON response %q: %v", raw, err)
	}
	return resp.StatusCode, parsed
}

func createSession(t *testing.T, app *fiber.App, name string) string {
	t.Helper()

	var payload any
	if name != "" {
		payload = map[string]string{"name": name}
	}
	code, body := request(t, app, "POST", "/api/sessions", payload)
	if code != fiber.StatusOK {
		t.Fatalf("Create session failed: %d %v", code, body)
	}
	session, ok := body["session"].(map[string]any)
	if !ok {
		t.Fatalf("Missing session in response: %v", body)
	}
	id, _ := session["id"].(string)
	if id == "" {
		t.Fatalf("Session has no id: %v", session)
	}
	return id
}

func TestSessionHandler_CreateAndGet(t *testing.T) {
	app := setupSessionApp(t)

	id := createSession(t, app, "")

	code, body := request(t, app, "GET", "/api/sessions/"+id, nil)
	if code != fiber.StatusOK {
		t.Fatalf("Get failed: %d %v", code, body)
	}
	if body["name"] != "New Session" {
		t.Errorf("Expected default name, got %v", body["name"])
	}
	if body["status"] != "active" {
		t.Errorf("Expected active status, got %v", body["status"])
	}
	if msgs, ok := body["messages"].([]any); ok && len(msgs) != 0 {
		t.Errorf("Expected empty history, got %d messages", len(msgs))
	}
}

func TestSessionHandler_GetUnknownSessionIs404(t *testing.T) {
	app := setupSessionApp(t)

	code, body := request(t, app, "GET", "/api/sessions/nonexistent", nil)
	if code != fiber.StatusNotFound {
		t.Fatalf("Expected 404, got %d %v", code, body)
	}
	if body["error"] != "Session not found" {
		t.Errorf("Unexpected error body: %v", body)
	}
}

func TestSessionHandler_AddMessageAndHistory(t *testing.T) {
	app := setupSessionApp(t)
	id := createSession(t, app, "Trip planning")

	code, body := request(t, app, "POST", "/api/sessions/"+id+"/messages", map[string]string{
		"content": "Find me a flight to Lisbon",
		"source":  "voice",
	})
	if code != fiber.StatusOK {
		t.Fatalf("AddMessage failed: %d %v", code, body)
	}
	msg := body["message"].(map[string]any)
	if msg["role"] != "user" {
		t.Errorf("Expected default role user, got %v", msg["role"])
	}
	if msg["source"] != "voice" {
		t.Errorf("Expected voice source, got %v", msg["source"])
	}

	code, body = request(t, app, "POST", "/api/sessions/"+id+"/messages", map[string]string{
		"content": "Three options found",
		"role":    "assistant",
	})
	if code != fiber.StatusOK {
		t.Fatalf("Second AddMessage failed: %d %v", code, body)
	}

	code, body = request(t, app, "GET", "/api/sessions/"+id, nil)
	if code != fiber.StatusOK {
		t.Fatalf("Get failed: %d %v", code, body)
	}
	msgs := body["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(msgs))
	}
	first := msgs[0].(map[string]any)
	if first["content"] != "Find me a flight to Lisbon" {
		t.Errorf("History out of order: %v", first)
	}

	if body["message_count"] != float64(2) {
		t.Errorf("Expected message_count 2, got %v", body["message_count"])
	}
	if body["preview"] != "Find me a flight to Lisbon" {
		t.Errorf("Expected preview from first user message, got %v", body["preview"])
	}
}

func TestSessionHandler_AddMessageValidation(t *testing.T) {
	app := setupSessionApp(t)
	id := createSession(t, app, "")

	code, body := request(t, app, "POST", "/api/sessions/"+id+"/messages", map[string]string{})
	if code != fiber.StatusBadRequest {
		t.Fatalf("Expected 400 for empty content, got %d %v", code, body)
	}

	code, body = request(t, app, "POST", "/api/sessions/missing/messages", map[string]string{
		"content": "hello",
	})
	if code != fiber.StatusNotFound {
		t.Fatalf("Expected 404 for unknown session, got %d %v", code, body)
	}
}

func TestSessionHandler_ListOrdersByRecency(t *testing.T) {
	app := setupSessionApp(t)

	idA := createSession(t, app, "First")
	idB := createSession(t, app, "Second")

	// Touch A after B was created: A must list first
	code, body := request(t, app, "POST", "/api/sessions/"+idA+"/messages", map[string]string{
		"content": "bump",
	})
	if code != fiber.StatusOK {
		t.Fatalf("AddMessage failed: %d %v", code, body)
	}

	code, body = request(t, app, "GET", "/api/sessions?limit=10", nil)
	if code != fiber.StatusOK {
		t.Fatalf("List failed: %d %v", code, body)
	}
	sessions := body["sessions"].([]any)
	if len(sessions) != 2 {
		t.Fatalf("Expected 2 sessions, got %d", len(sessions))
	}
	if got := sessions[0].(map[string]any)["id"]; got != idA {
		t.Errorf("Expected most recently active session first, got %v (want %v)", got, idA)
	}
	if got := sessions[1].(map[string]any)["id"]; got != idB {
		t.Errorf("Expected stale session last, got %v (want %v)", got, idB)
	}
}

func TestSessionHandler_UpdateNameAndStatus(t *testing.T) {
	app := setupSessionApp(t)
	id := createSession(t, app, "")

	code, body := request(t, app, "PATCH", "/api/sessions/"+id, map[string]string{
		"name": "Grocery run",
	})
	if code != fiber.StatusOK {
		t.Fatalf("Update name failed: %d %v", code, body)
	}

	code, body = request(t, app, "PATCH", "/api/sessions/"+id, map[string]string{
		"status": "archived",
	})
	if code != fiber.StatusOK {
		t.Fatalf("Update status failed: %d %v", code, body)
	}

	code, body = request(t, app, "PATCH", "/api/sessions/"+id, map[string]string{
		"status": "bogus",
	})
	if code != fiber.StatusBadRequest {
		t.Fatalf("Expected 400 for invalid status, got %d %v", code, body)
	}

	code, body = request(t, app, "GET", "/api/sessions/"+id, nil)
	if code != fiber.StatusOK {
		t.Fatalf("Get failed: %d %v", code, body)
	}
	if body["name"] != "Grocery run" {
		t.Errorf("Expected renamed session, got %v", body["name"])
	}
	if body["status"] != "archived" {
		t.Errorf("Expected archived session, got %v", body["status"])
	}
}

func TestSessionHandler_Fork(t *testing.T) {
	app := setupSessionApp(t)
	id := createSession(t, app, "Research")

	code, body := request(t, app, "POST", "/api/sessions/"+id+"/messages", map[string]string{
		"content": "Summarize the paper",
	})
	if code != fiber.StatusOK {
		t.Fatalf("AddMessage failed: %d %v", code, body)
	}

	code, body = request(t, app, "POST", "/api/sessions/"+id+"/fork", nil)
	if code != fiber.StatusOK {
		t.Fatalf("Fork failed: %d %v", code, body)
	}
	fork := body["session"].(map[string]any)
	forkID, _ := fork["id"].(string)
	if forkID == "" || forkID == id {
		t.Fatalf("Fork must have its own id, got %v", forkID)
	}
	if fork["name"] != "Fork of Research" {
		t.Errorf("Unexpected fork name: %v", fork["name"])
	}

	code, body = request(t, app, "GET", "/api/sessions/"+forkID, nil)
	if code != fiber.StatusOK {
		t.Fatalf("Get fork failed: %d %v", code, body)
	}
	msgs := body["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("Expected copied history, got %d messages", len(msgs))
	}
}

func TestSessionHandler_StorageMode(t *testing.T) {
	app := setupSessionApp(t)
	id := createSession(t, app, "")

	code, body := request(t, app, "GET", "/api/sessions/"+id+"/storage-mode", nil)
	if code != fiber.StatusOK {
		t.Fatalf("StorageMode failed: %d %v", code, body)
	}
	if body["persistent"] != true {
		t.Errorf("Expected persistent store, got %v", body)
	}
	if body["storage_type"] != "sqlite" {
		t.Errorf("Expected sqlite engine, got %v", body["storage_type"])
	}
}

func TestSessionHandler_ResolveArtifactOwner(t *testing.T) {
	app := setupSessionApp(t)

	code, body := request(t, app, "GET", "/api/artifacts/owner?path=missing.csv", nil)
	if code != fiber.StatusNotFound {
		t.Fatalf("Expected 404 for unknown artifact, got %d %v", code, body)
	}

	code, body = request(t, app, "GET", "/api/artifacts/owner", nil)
	if code != fiber.StatusBadRequest {
		t.Fatalf("Expected 400 for missing path, got %d %v", code, body)
	}
}
