package collab

import (
	"github.com/life-stream-dev/life-stream-go-coedit/internal/logger"
	"github.com/life-stream-dev/life-stream-go-coedit/internal/protocol"
)

// Dispatch routes one inbound frame from connID. Disconnects do not arrive
// as frames; the transport calls Disconnect directly.
func (h *Hub) Dispatch(connID string, msg protocol.Message) {
	switch msg.Event {
	case protocol.EventJoin:
		docID, err := msg.String()
		if err != nil {
			logger.WarnF("[%s] Invalid join frame, details: %v", connID, err)
			return
		}
		h.Join(connID, docID)
	case protocol.EventTitle, protocol.EventText:
		value, err := msg.String()
		if err != nil {
			logger.WarnF("[%s] Invalid %s frame, details: %v", connID, msg.Event, err)
			return
		}
		h.Input(connID, Field(msg.Event), value)
	case protocol.EventName:
		name, err := msg.String()
		if err != nil {
			logger.WarnF("[%s] Invalid name frame, details: %v", connID, err)
			return
		}
		h.Name(connID, name)
	case protocol.EventDelete:
		h.Delete(connID)
	default:
		logger.WarnF("[%s] %s event has not been supported", connID, msg.Event)
	}
}
