package collab

import (
	"context"
	"fmt"
	"github.com/life-stream-dev/life-stream-go-coedit/internal/database"
	"github.com/life-stream-dev/life-stream-go-coedit/internal/logger"
	"github.com/life-stream-dev/life-stream-go-coedit/internal/protocol"
)

// Input applies an edit of field f from connID.
//
// Idle: connID takes the lock, the rest of the room is told to stop typing
// in f and everybody sees who is typing. Held by connID: the debounce timer
// restarts. Held by someone else: the edit is dropped without a reply. So is
// input from a connection that is not an editor of the current session.
func (h *Hub) Input(connID string, f Field, value string) {
	m, ok := h.members[connID]
	if !ok || m.docID == "" {
		return
	}
	sess := h.sessions.Get(m.docID)
	if sess == nil || !sess.HasEditor(connID) {
		// The session was deleted, and possibly recreated by another join,
		// since connID joined.
		return
	}
	fs := sess.field(f)
	if fs == nil {
		return
	}

	if fs.owner != "" && fs.owner != connID {
		logger.DebugF("[%s] Dropping %s input for %s, held by %s", connID, f, sess.ID, fs.owner)
		h.metrics.input(f, false)
		return
	}

	acquired := fs.owner == ""
	fs.owner = connID
	fs.value = value

	if acquired {
		h.toRoom(sess.ID, connID, protocol.AllowEvent(string(f)), false)
		h.toAll(sess.ID, protocol.StatusEvent(string(f)), fmt.Sprintf("%s is typing...", m.name))
	}
	h.toRoom(sess.ID, connID, string(f), value)

	if fs.pending != nil {
		fs.pending.Cancel()
	}
	fs.pending = h.sched.Schedule(h.opts.DebounceWindow, func() {
		h.flush(sess, f, connID)
	})
	h.metrics.input(f, true)
}

// flush releases f held by owner and writes its last value to storage. The
// lock is free before the write starts; the outcome is only reported.
func (h *Hub) flush(sess *Session, f Field, owner string) {
	fs := sess.field(f)
	if fs.owner != owner {
		return
	}
	value := fs.value
	fs.owner = ""
	fs.pending = nil

	h.toRoom(sess.ID, owner, protocol.AllowEvent(string(f)), true)

	update := database.DocumentUpdate{}
	switch f {
	case FieldTitle:
		update.Title = &value
	case FieldText:
		update.Text = &value
	}
	h.runner.Go(func(ctx context.Context) error {
		_, err := h.docs.UpdateDocument(ctx, sess.ID, update)
		return err
	}, func(err error) {
		h.reportFlush(sess, f, err)
	})
}

func (h *Hub) reportFlush(sess *Session, f Field, err error) {
	h.metrics.flush(f, err)
	if err != nil {
		logger.ErrorF("Could not save %s of document %s, details: %v", f, sess.ID, err)
	}
	// The session may have been deleted while the write was in flight.
	if h.sessions.Get(sess.ID) != sess {
		return
	}

	status := StatusSaved
	if err != nil {
		status = StatusSaveFailed
	}
	statusEvent := protocol.StatusEvent(string(f))
	h.toAll(sess.ID, statusEvent, status)

	fs := sess.field(f)
	if fs.clear != nil {
		fs.clear.Cancel()
	}
	fs.clear = h.sched.Schedule(h.opts.StatusClearDelay, func() {
		fs.clear = nil
		if fs.owner != "" {
			return
		}
		h.toAll(sess.ID, statusEvent, "")
	})
}

// releaseOwned flushes every field of sess held by connID right away.
func (h *Hub) releaseOwned(sess *Session, connID string) {
	for _, f := range Fields {
		fs := sess.field(f)
		if fs.owner != connID {
			continue
		}
		if fs.pending != nil {
			fs.pending.Cancel()
		}
		h.flush(sess, f, connID)
	}
}

// FlushAll releases and writes every held field of every session. It is
// used at shutdown, when pending debounce timers would otherwise be lost.
func (h *Hub) FlushAll() int {
	n := 0
	for _, sess := range h.sessions.sessions {
		for _, f := range Fields {
			fs := sess.field(f)
			if fs.owner == "" {
				continue
			}
			if fs.pending != nil {
				fs.pending.Cancel()
			}
			h.flush(sess, f, fs.owner)
			n++
		}
	}
	if n > 0 {
		logger.InfoF("Flushed %d held fields", n)
	}
	return n
}
