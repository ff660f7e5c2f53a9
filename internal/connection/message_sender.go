package connection

import (
	"github.com/life-stream-dev/life-stream-go-coedit/internal/logger"
	"github.com/life-stream-dev/life-stream-go-coedit/internal/protocol"
)

// MessageSender delivers a frame to one connection.
type MessageSender interface {
	SendMessage(connID string, msg protocol.Message) error
}

// SendMessage encodes msg and queues it. Unknown connections are ignored:
// a client may vanish between a handler deciding the audience and the send.
func (cm *ConnectionManager) SendMessage(connID string, msg protocol.Message) error {
	conn, ok := cm.GetConnection(connID)
	if !ok {
		return nil
	}
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	if err := conn.Enqueue(data); err != nil {
		logger.WarnF("[%s] Fail to queue %s frame, details: %v", connID, msg.Event, err)
		return err
	}
	logger.DebugF("[%s] Queued %s frame, %d bytes", connID, msg.Event, len(data))
	return nil
}
