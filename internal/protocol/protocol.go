// Package protocol defines the JSON frames exchanged over the realtime
// connection. Every frame is {"event": <name>, "data": <payload>}.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound event names.
const (
	EventJoin   = "join"
	EventTitle  = "title"
	EventText   = "text"
	EventName   = "name"
	EventDelete = "delete"
)

// Outbound event names. Field-specific names are built with AllowEvent and
// StatusEvent.
const (
	EventEditorNames = "editor_names"
	EventDeleted     = "deleted"
)

var ErrMissingEvent = errors.New("frame has no event name")

type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// AllowEvent returns "allow_<field>_input".
func AllowEvent(field string) string {
	return "allow_" + field + "_input"
}

// StatusEvent returns "<field>_status".
func StatusEvent(field string) string {
	return field + "_status"
}

func NewMessage(event string, data any) (Message, error) {
	msg := Message{Event: event}
	if data == nil {
		return msg, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return msg, fmt.Errorf("encode %s payload: %w", event, err)
	}
	msg.Data = raw
	return msg, nil
}

func Decode(frame []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(frame, &msg); err != nil {
		return msg, fmt.Errorf("invalid frame: %w", err)
	}
	if msg.Event == "" {
		return msg, ErrMissingEvent
	}
	return msg, nil
}

func Encode(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// String decodes a string payload. A missing or null payload yields "".
func (m Message) String() (string, error) {
	if len(m.Data) == 0 || string(m.Data) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(m.Data, &s); err != nil {
		return "", fmt.Errorf("%s payload is not a string: %w", m.Event, err)
	}
	return s, nil
}
