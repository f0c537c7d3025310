package services

import (
	"context"
	"log"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"aipa/internal/models"
)

// ArtifactWatcher watches the workspace files directory and records files
// created there as artifacts of the most recently active session. This is
// how agent-produced files get attributed without the agent calling back
// into the store.
type ArtifactWatcher struct {
	sessions *SessionService
	dir      string
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// NewArtifactWatcher creates a watcher over the given files directory
func NewArtifactWatcher(sessions *SessionService, dir string) (*ArtifactWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		watcher.Close()
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	return &ArtifactWatcher{
		sessions: sessions,
		dir:      dir,
		watcher:  watcher,
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching in a background goroutine
func (w *ArtifactWatcher) Start() {
	log.Printf("👀 Artifact watcher started on %s", w.dir)
	go w.loop()
}

// Stop shuts the watcher down
func (w *ArtifactWatcher) Stop() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *ArtifactWatcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create != 0 {
				w.handleCreate(event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("artifact watcher error", "error", err)
		}
	}
}

func (w *ArtifactWatcher) handleCreate(path string) {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".db") {
		return
	}

	// Let the writer finish before stat; partially written sizes are noise
	time.Sleep(500 * time.Millisecond)

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	owner, found, err := w.sessions.MostRecentActive(ctx)
	if err != nil {
		slog.Warn("artifact attribution skipped, listing failed", "path", name, "error", err)
		return
	}
	if !found {
		slog.Debug("artifact created with no active session", "path", name)
		return
	}

	artifact := models.Artifact{
		Path:    name,
		Created: info.ModTime().UTC(),
		Type:    mimeType(name),
		Size:    info.Size(),
	}

	if err := w.sessions.RecordArtifact(ctx, owner.ID, artifact); err != nil {
		slog.Warn("failed to record artifact", "path", name, "session_id", owner.ID, "error", err)
	}
}

func mimeType(name string) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}
