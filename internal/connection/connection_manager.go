// Package connection tracks live realtime connections and their outbound
// queues.
package connection

import (
	"errors"
	"github.com/life-stream-dev/life-stream-go-coedit/internal/logger"
	"sync"
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("send buffer full")
)

// Connection is one client's outbound side. Frames queued on it are written
// by the transport's write pump.
type Connection struct {
	ConnID string

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func NewConnection(connID string, bufferSize int) *Connection {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Connection{ConnID: connID, send: make(chan []byte, bufferSize)}
}

// Outbound is drained by the write pump; it is closed by Close.
func (c *Connection) Outbound() <-chan []byte {
	return c.send
}

// Enqueue never blocks; a full buffer means the client is not keeping up.
func (c *Connection) Enqueue(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnectionClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

type ConnectionManager struct {
	connections sync.Map
}

func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{}
}

func (cm *ConnectionManager) AddConnection(conn *Connection) {
	cm.connections.Store(conn.ConnID, conn)
	logger.InfoF("[%s] Client connected", conn.ConnID)
}

// RemoveConnection unregisters and closes the connection's queue.
func (cm *ConnectionManager) RemoveConnection(connID string) {
	if value, ok := cm.connections.LoadAndDelete(connID); ok {
		value.(*Connection).Close()
		logger.InfoF("[%s] Client disconnected", connID)
	}
}

func (cm *ConnectionManager) GetConnection(connID string) (*Connection, bool) {
	if value, ok := cm.connections.Load(connID); ok {
		return value.(*Connection), true
	}
	return nil, false
}

func (cm *ConnectionManager) Count() int {
	n := 0
	cm.connections.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
