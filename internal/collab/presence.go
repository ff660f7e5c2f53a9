package collab

import "github.com/life-stream-dev/life-stream-go-coedit/internal/protocol"

// SetName records connID's display name in sess and tells the room.
func (h *Hub) SetName(sess *Session, connID, name string) {
	sess.SetName(connID, name)
	h.broadcastNames(sess)
}

// RemoveEditor drops connID from sess and tells the room.
func (h *Hub) RemoveEditor(sess *Session, connID string) {
	sess.RemoveEditor(connID)
	h.broadcastNames(sess)
}

func (h *Hub) broadcastNames(sess *Session) {
	h.toAll(sess.ID, protocol.EventEditorNames, sess.Names())
}

// Name handles a name event. A name sent before join is remembered but
// join resets it, so it only takes effect once sent again.
func (h *Hub) Name(connID, name string) {
	if name == "" {
		name = AnonymousName
	}
	m := h.member(connID)
	m.name = name
	if m.docID == "" {
		return
	}
	sess := h.sessions.Get(m.docID)
	if sess == nil {
		return
	}
	h.SetName(sess, connID, name)
}
