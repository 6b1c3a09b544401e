// Package protocol defines the WebSocket messages exchanged between session
// participants and the relay. Every frame is a JSON Envelope whose Data
// shape is determined by Event.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Event names. Clients send Join, CodeChange, LanguageChange and SyncCode;
// the relay sends Joined, CodeChange, LanguageChange, Disconnected and Error.
const (
	EventJoin           = "join"
	EventJoined         = "joined"
	EventCodeChange     = "code-change"
	EventLanguageChange = "language-change"
	EventSyncCode       = "sync-code"
	EventDisconnected   = "disconnected"
	EventError          = "error"
)

// Envelope is one WebSocket text frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type JoinPayload struct {
	SessionID   string `json:"sessionId"`
	DisplayName string `json:"displayName"`
}

type Member struct {
	ConnID      string `json:"connId"`
	DisplayName string `json:"displayName"`
}

// JoinedPayload is sent to every member, the joiner included, when someone
// joins. DisplayName and ConnID identify the joiner.
type JoinedPayload struct {
	Members         []Member `json:"members"`
	DisplayName     string   `json:"displayName"`
	ConnID          string   `json:"connId"`
	CurrentLanguage string   `json:"currentLanguage"`
}

// CodeChangePayload carries the full buffer text. A nil Code means the
// sender has never had a buffer; receivers ignore it.
type CodeChangePayload struct {
	SessionID string  `json:"sessionId,omitempty"`
	Code      *string `json:"code"`
}

type LanguageChangePayload struct {
	SessionID string `json:"sessionId,omitempty"`
	Language  string `json:"language"`
}

// SyncCodePayload is a participant pushing its buffer to one newcomer.
type SyncCodePayload struct {
	TargetConnID string  `json:"targetConnId"`
	Code         *string `json:"code"`
}

type DisconnectedPayload struct {
	ConnID      string `json:"connId"`
	DisplayName string `json:"displayName"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// Encode marshals an event with its payload into a frame.
func Encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: encoding %s: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// Decode parses a frame into its envelope. The payload is left raw.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("protocol: malformed frame: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("protocol: frame has no event")
	}
	return env, nil
}

// Bind unmarshals the envelope's payload into v.
func (e Envelope) Bind(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("protocol: %s: missing data", e.Event)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("protocol: %s: malformed data: %w", e.Event, err)
	}
	return nil
}

// Text returns a pointer to s for the optional code fields.
func Text(s string) *string {
	return &s
}
