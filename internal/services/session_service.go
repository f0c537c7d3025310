package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	cache "github.com/patrickmn/go-cache"
	"github.com/google/uuid"

	"aipa/internal/models"
	"aipa/internal/store"
)

// Session store errors. Both are permanent caller errors; retrying with the
// same identifier will not succeed until the referenced record exists.
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrArtifactNotFound = errors.New("artifact not found")
)

const (
	defaultSessionName = "New Session"
	previewLength      = 100
)

// SessionService manages conversation sessions on top of the keyed
// repository. All operations are single-session; atomicity is delegated to
// the store's per-item write guarantee, so no in-process locking is held.
type SessionService struct {
	repo store.Repository

	// Artifact ownership is immutable once written, so resolved owners are
	// safe to cache indefinitely.
	ownerCache *cache.Cache

	now func() time.Time // test hook
}

// NewSessionService creates a session service backed by the given repository
func NewSessionService(repo store.Repository) *SessionService {
	return &SessionService{
		repo:       repo,
		ownerCache: cache.New(cache.NoExpiration, 10*time.Minute),
		now:        time.Now,
	}
}

// StorageMode identifies the storage engine behind the service
func (s *SessionService) StorageMode() string {
	return s.repo.Name()
}

// CreateSession allocates a new session with an empty history
func (s *SessionService) CreateSession(ctx context.Context, name string) (models.Session, error) {
	if name == "" {
		name = defaultSessionName
	}

	now := s.now().UTC()
	session := models.Session{
		ID:        uuid.New().String(),
		Name:      name,
		Created:   now,
		Updated:   now,
		Status:    models.SessionActive,
		Artifacts: []models.Artifact{},
	}

	if err := s.putMeta(ctx, &session); err != nil {
		return models.Session{}, err
	}

	if m := GetMetrics(); m != nil {
		m.RecordSessionOp("create")
	}
	slog.Info("session created", "session_id", session.ID)

	return session, nil
}

// GetSessionInfo returns a session's metadata without its message history
func (s *SessionService) GetSessionInfo(ctx context.Context, sessionID string) (models.Session, error) {
	return s.getMeta(ctx, sessionID)
}

// GetSession returns a session with its full message history
func (s *SessionService) GetSession(ctx context.Context, sessionID string) (models.SessionDetail, error) {
	session, err := s.getMeta(ctx, sessionID)
	if err != nil {
		return models.SessionDetail{}, err
	}

	detail := models.SessionDetail{Session: session, Messages: []models.Message{}}
	for msg, err := range s.GetMessages(ctx, sessionID) {
		if err != nil {
			return models.SessionDetail{}, err
		}
		detail.Messages = append(detail.Messages, msg)
	}

	return detail, nil
}

// GetMessages returns the session's messages in timestamp order as a lazy,
// restartable sequence: each range over it re-reads from the store, and no
// cursor state is held between calls.
func (s *SessionService) GetMessages(ctx context.Context, sessionID string) iter.Seq2[models.Message, error] {
	return func(yield func(models.Message, error) bool) {
		items, err := s.repo.QueryByPrefix(ctx, store.SessionPK(sessionID), store.MsgSKPrefix)
		if err != nil {
			yield(models.Message{}, err)
			return
		}

		for _, item := range items {
			var msg models.Message
			if err := json.Unmarshal(item.Data, &msg); err != nil {
				yield(models.Message{}, fmt.Errorf("corrupt message record %s: %w", item.SK, err))
				return
			}
			if !yield(msg, nil) {
				return
			}
		}
	}
}

// AppendMessage writes a message to the session's append-only log and
// advances the session's updated time (which repositions it in the recency
// index, since the index keys live on the META item).
func (s *SessionService) AppendMessage(ctx context.Context, sessionID string, role models.MessageRole, content string, source models.MessageSource) (models.Message, error) {
	session, err := s.getMeta(ctx, sessionID)
	if err != nil {
		return models.Message{}, err
	}

	ts := s.now().UTC()
	// Timestamps are the message sort key; keep them strictly increasing
	// within the session even if appends land in the same clock tick
	if !ts.After(session.Updated) {
		ts = session.Updated.Add(time.Microsecond)
	}

	msg := models.Message{
		SessionID: sessionID,
		Timestamp: ts,
		Role:      role,
		Content:   content,
		Source:    source,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to encode message: %w", err)
	}

	if err := s.repo.PutItem(ctx, store.Item{
		PK:   store.SessionPK(sessionID),
		SK:   store.MessageSK(ts),
		Data: data,
	}); err != nil {
		return models.Message{}, err
	}

	session.Updated = ts
	session.MessageCount++
	if role == models.RoleUser && session.Preview == "" {
		session.Preview = preview(content)
	}

	if err := s.putMeta(ctx, &session); err != nil {
		return models.Message{}, err
	}

	if m := GetMetrics(); m != nil {
		m.RecordMessageAppend()
	}

	return msg, nil
}

// ListSessions returns session summaries, most recently active first. The
// cursor, when non-empty, continues a previous listing.
func (s *SessionService) ListSessions(ctx context.Context, limit int, cursor string) ([]models.SessionSummary, string, error) {
	if limit <= 0 {
		limit = 20
	}

	items, err := s.repo.QueryByIndex(ctx, store.ListPartition, limit, cursor)
	if err != nil {
		return nil, "", err
	}

	summaries := make([]models.SessionSummary, 0, len(items))
	for _, item := range items {
		var session models.Session
		if err := json.Unmarshal(item.Data, &session); err != nil {
			slog.Warn("skipping corrupt session record", "pk", item.PK, "error", err)
			continue
		}
		summaries = append(summaries, session.Summary())
	}

	nextCursor := ""
	if len(items) == limit {
		nextCursor = items[len(items)-1].GSI1SK
	}

	return summaries, nextCursor, nil
}

// SetName updates the session's display name. Idempotent: setting the same
// name twice is a no-op beyond the write itself.
func (s *SessionService) SetName(ctx context.Context, sessionID, name string) error {
	session, err := s.getMeta(ctx, sessionID)
	if err != nil {
		return err
	}

	session.Name = name
	if err := s.putMeta(ctx, &session); err != nil {
		return err
	}

	if m := GetMetrics(); m != nil {
		m.RecordSessionOp("set_name")
	}
	return nil
}

// SetStatus updates the session's lifecycle status (active/archived)
func (s *SessionService) SetStatus(ctx context.Context, sessionID string, status models.SessionStatus) error {
	session, err := s.getMeta(ctx, sessionID)
	if err != nil {
		return err
	}

	session.Status = status
	return s.putMeta(ctx, &session)
}

// RecordArtifact appends an artifact to the session and writes the reverse
// lookup entry mapping the artifact path back to its owning session.
func (s *SessionService) RecordArtifact(ctx context.Context, sessionID string, artifact models.Artifact) error {
	session, err := s.getMeta(ctx, sessionID)
	if err != nil {
		return err
	}

	session.Artifacts = append(session.Artifacts, artifact)
	if err := s.putMeta(ctx, &session); err != nil {
		return err
	}

	data, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("failed to encode artifact: %w", err)
	}

	if err := s.repo.PutItem(ctx, store.Item{
		PK:   store.ArtifactPK(artifact.Path),
		SK:   store.SessionPK(sessionID),
		Data: data,
	}); err != nil {
		return err
	}

	if m := GetMetrics(); m != nil {
		m.RecordSessionOp("record_artifact")
	}
	slog.Info("artifact recorded", "session_id", sessionID, "path", artifact.Path)

	return nil
}

// ResolveArtifactOwner returns the ID of the session that produced the
// artifact at the given path.
func (s *SessionService) ResolveArtifactOwner(ctx context.Context, artifactPath string) (string, error) {
	if owner, found := s.ownerCache.Get(artifactPath); found {
		return owner.(string), nil
	}

	items, err := s.repo.QueryByPrefix(ctx, store.ArtifactPK(artifactPath), "SESSION#")
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return "", ErrArtifactNotFound
	}

	owner := strings.TrimPrefix(items[0].SK, "SESSION#")
	s.ownerCache.Set(artifactPath, owner, cache.NoExpiration)

	return owner, nil
}

// ForkSession creates a new session seeded with a copy of another session's
// message history.
func (s *SessionService) ForkSession(ctx context.Context, fromID, name string) (models.Session, error) {
	original, err := s.GetSession(ctx, fromID)
	if err != nil {
		return models.Session{}, err
	}

	if name == "" {
		name = "Fork of " + original.Name
	}

	session, err := s.CreateSession(ctx, name)
	if err != nil {
		return models.Session{}, err
	}

	for _, msg := range original.Messages {
		copied := msg
		copied.SessionID = session.ID

		data, err := json.Marshal(copied)
		if err != nil {
			return models.Session{}, fmt.Errorf("failed to encode message: %w", err)
		}
		if err := s.repo.PutItem(ctx, store.Item{
			PK:   store.SessionPK(session.ID),
			SK:   store.MessageSK(copied.Timestamp),
			Data: data,
		}); err != nil {
			return models.Session{}, err
		}
	}

	session.MessageCount = len(original.Messages)
	session.Preview = original.Preview
	if err := s.putMeta(ctx, &session); err != nil {
		return models.Session{}, err
	}

	if m := GetMetrics(); m != nil {
		m.RecordSessionOp("fork")
	}

	return session, nil
}

// MostRecentActive returns the most recently updated active session, if any
func (s *SessionService) MostRecentActive(ctx context.Context) (models.SessionSummary, bool, error) {
	summaries, _, err := s.ListSessions(ctx, 5, "")
	if err != nil {
		return models.SessionSummary{}, false, err
	}

	for _, summary := range summaries {
		session, err := s.getMeta(ctx, summary.ID)
		if err != nil {
			continue
		}
		if session.Status == models.SessionActive {
			return summary, true, nil
		}
	}
	return models.SessionSummary{}, false, nil
}

func (s *SessionService) getMeta(ctx context.Context, sessionID string) (models.Session, error) {
	item, err := s.repo.GetItem(ctx, store.SessionPK(sessionID), store.SKMeta)
	if errors.Is(err, store.ErrItemNotFound) {
		return models.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return models.Session{}, err
	}

	var session models.Session
	if err := json.Unmarshal(item.Data, &session); err != nil {
		return models.Session{}, fmt.Errorf("corrupt session record %s: %w", sessionID, err)
	}
	return session, nil
}

// putMeta writes the META item. The recency index keys are part of the item,
// so metadata and index position move together in one write; they cannot
// drift.
func (s *SessionService) putMeta(ctx context.Context, session *models.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	return s.repo.PutItem(ctx, store.Item{
		PK:     store.SessionPK(session.ID),
		SK:     store.SKMeta,
		Data:   data,
		GSI1PK: store.ListPartition,
		GSI1SK: store.UpdatedSK(session.Updated),
	})
}

func preview(content string) string {
	if len(content) <= previewLength {
		return content
	}
	return content[:previewLength]
}
