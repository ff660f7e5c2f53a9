package server

import (
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/life-stream-dev/life-stream-go-coedit/internal/connection"
	"github.com/life-stream-dev/life-stream-go-coedit/internal/logger"
	"github.com/life-stream-dev/life-stream-go-coedit/internal/protocol"
	"net/http"
	"time"
)

type ConnectionHandler struct {
	server *Server
	ws     *websocket.Conn
	conn   *connection.Connection
	connId string
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	select {
	case s.sem <- struct{}{}:
	default:
		logger.WarnF("Connection limit %d reached, rejecting %s", cap(s.sem), r.RemoteAddr)
		writeError(w, http.StatusServiceUnavailable, "too many connections")
		return
	}
	defer func() { <-s.sem }()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnF("Fail to upgrade connection from %s, details: %v", r.RemoteAddr, err)
		return
	}

	connId := uuid.NewString()
	logger.DebugF("[%s] Accepted new connection from %s", connId, r.RemoteAddr)
	c := &ConnectionHandler{
		server: s,
		ws:     ws,
		conn:   connection.NewConnection(connId, s.opts.SendBuffer),
		connId: connId,
	}
	c.handleConnection()
}

func (c *ConnectionHandler) handleConnection() {
	s := c.server
	s.conns.AddConnection(c.conn)
	s.metrics.ConnectionOpened()

	written := make(chan struct{})
	go func() {
		c.writePump()
		close(written)
	}()

	c.readPump()

	connId := c.connId
	if !s.loop.Submit(func() { s.hub.Disconnect(connId) }) {
		logger.DebugF("[%s] Loop stopped before disconnect was handled", connId)
	}
	s.conns.RemoveConnection(connId)
	<-written
	s.metrics.ConnectionClosed()

	logger.DebugF("[%s] Connection closed", connId)
	if err := c.ws.Close(); err != nil && !isNetClosedError(err) {
		logger.WarnF("[%s] Error occured while closing connection, details: %v", connId, err)
	}
}

// readPump decodes frames until the client goes away and forwards each one
// to the hub on the loop.
func (c *ConnectionHandler) readPump() {
	opts := c.server.opts
	c.ws.SetReadLimit(opts.MaxFrameSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(opts.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(opts.PongWait))
	})

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			handleReadError(c.connId, err)
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(opts.PongWait))

		msg, err := protocol.Decode(frame)
		if err != nil {
			logger.WarnF("[%s] Ignoring malformed frame, details: %v", c.connId, err)
			continue
		}
		logger.DebugF("[%s] Receive %s event, data %s", c.connId, msg.Event, msg.Data)

		connId := c.connId
		if !c.server.loop.Submit(func() { c.server.hub.Dispatch(connId, msg) }) {
			logger.WarnF("[%s] Loop stopped, dropping connection", connId)
			return
		}
	}
}

// writePump drains the outbound queue and keeps the connection alive with
// pings. A closed queue ends the connection with a normal close frame.
func (c *ConnectionHandler) writePump() {
	opts := c.server.opts
	ticker := time.NewTicker(opts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-c.conn.Outbound():
			_ = c.ws.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				logger.ErrorF("[%s] Fail to send data, details: %v", c.connId, err)
				_ = c.ws.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.WarnF("[%s] Fail to send ping, details: %v", c.connId, err)
				_ = c.ws.Close()
				return
			}
		}
	}
}
