package collab

import (
	"context"
	"github.com/life-stream-dev/life-stream-go-coedit/internal/event"
	"github.com/life-stream-dev/life-stream-go-coedit/internal/logger"
	"github.com/life-stream-dev/life-stream-go-coedit/internal/protocol"
)

func (h *Hub) member(connID string) *member {
	m, ok := h.members[connID]
	if !ok {
		m = &member{name: AnonymousName}
		h.members[connID] = m
	}
	return m
}

// Join attaches connID to document docID, creating its session on first use.
// A connection already in another document leaves it first.
func (h *Hub) Join(connID, docID string) {
	if docID == "" {
		logger.WarnF("[%s] Join without document id", connID)
		return
	}
	m := h.member(connID)
	if m.docID != "" && m.docID != docID {
		h.leave(connID, m)
	}

	sess, created := h.sessions.GetOrCreate(docID)
	if created {
		logger.DebugF("Session created for document %s", docID)
		h.metrics.setSessions(h.sessions.Len())
	}
	h.rooms.join(docID, connID)
	m.docID = docID
	m.name = AnonymousName
	sess.SetName(connID, m.name)
	logger.InfoF("[%s] Joined document %s", connID, docID)

	if h.opts.AnnounceOnJoin {
		h.broadcastNames(sess)
	}
}

// Disconnect forgets connID. Field locks it holds are kept until their
// debounce timers fire unless ReleaseOnDisconnect is set.
func (h *Hub) Disconnect(connID string) {
	m, ok := h.members[connID]
	if !ok {
		return
	}
	delete(h.members, connID)
	if m.docID != "" {
		h.leave(connID, m)
	}
}

func (h *Hub) leave(connID string, m *member) {
	docID := m.docID
	m.docID = ""
	h.rooms.leave(docID, connID)

	sess := h.sessions.Get(docID)
	if sess == nil {
		return
	}
	if h.opts.ReleaseOnDisconnect {
		h.releaseOwned(sess, connID)
	}
	h.RemoveEditor(sess, connID)
	logger.InfoF("[%s] Left document %s", connID, docID)
}

// Delete drops the session of connID's document and deletes the document
// from storage. The room hears about it only if storage confirms.
func (h *Hub) Delete(connID string) {
	m, ok := h.members[connID]
	if !ok || m.docID == "" {
		return
	}
	docID := m.docID
	if h.sessions.Delete(docID) {
		h.metrics.setSessions(h.sessions.Len())
	}

	h.runner.Go(func(ctx context.Context) error {
		_, err := h.docs.DeleteDocument(ctx, docID)
		return err
	}, func(err error) {
		h.metrics.delete(err)
		if err != nil {
			logger.WarnF("[%s] Could not delete document %s, details: %v", connID, docID, err)
			return
		}
		logger.InfoF("[%s] Deleted document %s", connID, docID)
		h.toAll(docID, protocol.EventDeleted, nil)
	})
}

// FlushOnStop returns a Callable that runs FlushAll on loop and waits for it.
// It must be invoked before loop itself is stopped, which then awaits the
// writes it started.
func (h *Hub) FlushOnStop(loop *event.Loop) event.Callable {
	return event.CallableFunc(func(ctx context.Context) error {
		flushed := make(chan struct{})
		if !loop.Submit(func() {
			h.FlushAll()
			close(flushed)
		}) {
			return nil
		}
		select {
		case <-flushed:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}
