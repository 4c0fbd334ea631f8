// Package ws bridges the event bus to websocket clients.
package ws

import (
	"encoding/json"
	"fmt"
)

// Frame types exchanged over the websocket.
const (
	FrameTypeEvent    = "event"
	FrameTypeRequest  = "request"
	FrameTypeResponse = "response"
)

// Frame is the wire envelope for every websocket message.
type Frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`     // request/response correlation
	Method  string          `json:"method,omitempty"` // request dispatch
	Event   string          `json:"event,omitempty"`  // event type name
	Params  json.RawMessage `json:"params,omitempty"`
	OK      bool            `json:"ok,omitempty"`
	Error   string          `json:"error,omitempty"`
	Payload any             `json:"payload,omitempty"`
}

// NewEventFrame wraps a bus event for broadcast.
func NewEventFrame(eventType string, payload any) Frame {
	return Frame{Type: FrameTypeEvent, Event: eventType, Payload: payload}
}

// NewResponseFrame answers a request frame.
func NewResponseFrame(id string, ok bool, payload any, errText string) Frame {
	return Frame{Type: FrameTypeResponse, ID: id, OK: ok, Payload: payload, Error: errText}
}

// MarshalFrame encodes a frame for the wire.
func MarshalFrame(f Frame) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("marshal frame: %w", err)
	}
	return data, nil
}

// UnmarshalFrame decodes a wire frame.
func UnmarshalFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("unmarshal frame: %w", err)
	}
	if f.Type == "" {
		return Frame{}, fmt.Errorf("frame missing type")
	}
	return f, nil
}
