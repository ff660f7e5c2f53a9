package collab

import (
	"github.com/life-stream-dev/life-stream-go-coedit/internal/event"
	"sort"
)

// Field is one independently locked part of a document.
type Field string

const (
	FieldTitle Field = "title"
	FieldText  Field = "text"
)

var Fields = []Field{FieldTitle, FieldText}

const AnonymousName = "Anonymous"

// fieldState is the lock/debounce state of one field. pending is set exactly
// when owner is; clear is the informational status-reset timer and never
// affects the lock.
type fieldState struct {
	owner   string
	value   string
	pending event.Task
	clear   event.Task
}

// Session is the in-memory coordination state for one document. It is only
// touched from the dispatcher goroutine.
type Session struct {
	ID      string
	editors map[string]string
	fields  map[Field]*fieldState
}

func newSession(id string) *Session {
	s := &Session{
		ID:      id,
		editors: make(map[string]string),
		fields:  make(map[Field]*fieldState, len(Fields)),
	}
	for _, f := range Fields {
		s.fields[f] = &fieldState{}
	}
	return s
}

func (s *Session) field(f Field) *fieldState {
	return s.fields[f]
}

// Owner returns the connection holding f, or "" when the field is idle.
func (s *Session) Owner(f Field) string {
	if fs := s.fields[f]; fs != nil {
		return fs.owner
	}
	return ""
}

// SetName upserts a connection's display name and returns the stored value.
func (s *Session) SetName(connID, name string) string {
	if name == "" {
		name = AnonymousName
	}
	s.editors[connID] = name
	return name
}

func (s *Session) RemoveEditor(connID string) bool {
	if _, ok := s.editors[connID]; !ok {
		return false
	}
	delete(s.editors, connID)
	return true
}

func (s *Session) HasEditor(connID string) bool {
	_, ok := s.editors[connID]
	return ok
}

// Names lists display names ordered by connection id.
func (s *Session) Names() []string {
	ids := make([]string, 0, len(s.editors))
	for id := range s.editors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = s.editors[id]
	}
	return names
}

func (s *Session) cancelTasks() {
	for _, fs := range s.fields {
		if fs.pending != nil {
			fs.pending.Cancel()
			fs.pending = nil
		}
		if fs.clear != nil {
			fs.clear.Cancel()
			fs.clear = nil
		}
		fs.owner = ""
	}
}
