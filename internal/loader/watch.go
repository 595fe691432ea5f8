package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/hostedat/vgraph/internal/specifier"
)

// maxWatchMessageBytes bounds a single rebuild notification frame.
const maxWatchMessageBytes = 4096

// rebuildEvent is the JSON frame NotifyRebuilt broadcasts to watchers. The
// engines' InvalidateCache, Evaluate and EnsureCompiled do not call
// NotifyRebuilt themselves.
type rebuildEvent struct {
	RunID string `json:"runId"`
	Root  string `json:"root"`
	Event string `json:"event"`
}

// Watcher fans out rebuild notifications to connected websocket clients, so
// an external dev-mode process can re-run a standalone loader's consumer
// whenever the module table backing a root changes. Grounded on the
// teacher's WebSocketHandler.Bridge connection-management pattern
// (websocket.go), simplified from a bidirectional JS bridge to one-way
// server push since loader watchers never talk back.
type Watcher struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewWatcher returns an empty Watcher.
func NewWatcher() *Watcher {
	return &Watcher{conns: map[*websocket.Conn]struct{}{}}
}

// Add registers conn as a watcher and blocks, reading (and discarding) its
// frames, until the connection closes or ctx is cancelled — mirroring the
// teacher's reader-goroutine-into-channel shape so a dead peer is pruned
// promptly instead of lingering in the broadcast set.
func (w *Watcher) Add(ctx context.Context, conn *websocket.Conn) {
	conn.SetReadLimit(maxWatchMessageBytes)

	w.mu.Lock()
	w.conns[conn] = struct{}{}
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		delete(w.conns, conn)
		w.mu.Unlock()
	}()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	select {
	case <-closed:
	case <-ctx.Done():
		_ = conn.Close(websocket.StatusNormalClosure, "watcher context done")
	}
}

// NotifyRebuilt broadcasts a rebuild event for root to every connected
// watcher, tagging it with a fresh run id for cache-bust correlation in
// logs.
func (w *Watcher) NotifyRebuilt(root specifier.Specifier) error {
	evt := rebuildEvent{
		RunID: uuid.New().String(),
		Root:  string(root),
		Event: "rebuilt",
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("watch: marshaling rebuild event: %w", err)
	}

	w.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(w.conns))
	for c := range w.conns {
		conns = append(conns, c)
	}
	w.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var firstErr error
	for _, c := range conns {
		if err := c.Write(ctx, websocket.MessageText, data); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
