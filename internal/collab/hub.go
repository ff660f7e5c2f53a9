// Package collab coordinates live editing of documents: who is present,
// who may write each field, and when edits are flushed to storage.
//
// A Hub is not safe for concurrent use. All of its methods, and every
// callback it hands to its Scheduler and Runner, must execute on a single
// dispatcher goroutine (see event.Loop).
package collab

import (
	"github.com/life-stream-dev/life-stream-go-coedit/internal/connection"
	"github.com/life-stream-dev/life-stream-go-coedit/internal/database"
	"github.com/life-stream-dev/life-stream-go-coedit/internal/event"
	"github.com/life-stream-dev/life-stream-go-coedit/internal/logger"
	"github.com/life-stream-dev/life-stream-go-coedit/internal/protocol"
	"time"
)

const (
	StatusSaved      = "Saved!"
	StatusSaveFailed = "Error while saving..."
)

type Options struct {
	// DebounceWindow is the inactivity period after which a held field is
	// released and flushed.
	DebounceWindow time.Duration
	// StatusClearDelay is how long a save status stays up; it must exceed
	// DebounceWindow.
	StatusClearDelay time.Duration
	// AnnounceOnJoin broadcasts editor_names when a connection joins.
	AnnounceOnJoin bool
	// ReleaseOnDisconnect flushes and frees a field as soon as its owner
	// disconnects instead of waiting for the debounce timer.
	ReleaseOnDisconnect bool
}

func DefaultOptions() Options {
	return Options{
		DebounceWindow:   1000 * time.Millisecond,
		StatusClearDelay: 1500 * time.Millisecond,
	}
}

// member is what the hub knows about one connection.
type member struct {
	docID string
	name  string
}

type Hub struct {
	sessions *SessionStore
	rooms    *rooms
	members  map[string]*member

	docs    database.DocumentStore
	sender  connection.MessageSender
	sched   event.Scheduler
	runner  event.Runner
	opts    Options
	metrics *Metrics
}

func NewHub(docs database.DocumentStore, sender connection.MessageSender, sched event.Scheduler,
	runner event.Runner, opts Options, metrics *Metrics) *Hub {
	return &Hub{
		sessions: NewSessionStore(),
		rooms:    newRooms(),
		members:  make(map[string]*member),
		docs:     docs,
		sender:   sender,
		sched:    sched,
		runner:   runner,
		opts:     opts,
		metrics:  metrics,
	}
}

func (h *Hub) Sessions() *SessionStore {
	return h.sessions
}

// send delivers the named event to every connection in room except the one
// named by except; pass "" to reach the whole room.
func (h *Hub) send(room, except, name string, data any) {
	msg, err := protocol.NewMessage(name, data)
	if err != nil {
		logger.ErrorF("Fail to encode %s for room %s, details: %v", name, room, err)
		return
	}
	for _, connID := range h.rooms.list(room) {
		if connID == except {
			continue
		}
		_ = h.sender.SendMessage(connID, msg)
	}
}

func (h *Hub) toRoom(room, sender, name string, data any) {
	h.send(room, sender, name, data)
}

func (h *Hub) toAll(room, name string, data any) {
	h.send(room, "", name, data)
}
