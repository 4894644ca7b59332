package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientMessage      MessageType = "client_message"
	TypeClientControl      MessageType = "client_control"
	TypeAssistantTextDelta MessageType = "assistant_text_delta"
	TypeAssistantTurnEnd   MessageType = "assistant_turn_end"
	TypeKarmaEvent         MessageType = "karma_event"
	TypeMemoryEvent        MessageType = "memory_event"
	TypeSystemEvent        MessageType = "system_event"
	TypeErrorEvent         MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ClientMessage is one user turn: text, attachments, or both.
type ClientMessage struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Text      string      `json:"text"`
	// Images carries base64 attachment payloads.
	Images []string `json:"images,omitempty"`
	TSMs   int64    `json:"ts_ms"`
}

type ClientControl struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	// Action is "end" to close the session or "ping" to keep it alive.
	Action string `json:"action"`
}

type AssistantTextDelta struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	TurnID    string      `json:"turn_id"`
	TextDelta string      `json:"text_delta"`
}

// AssistantTurnEnd carries the finalized reply, after directive tags are
// stripped and every karma change has been applied.
type AssistantTurnEnd struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	TurnID    string      `json:"turn_id"`
	Text      string      `json:"text"`
	// Images holds references servable via /v1/images/{name}.
	Images     []string `json:"images,omitempty"`
	KarmaDelta int      `json:"karma_delta"`
	Score      int      `json:"score"`
	Directive  string   `json:"directive"`
}

// KarmaEvent is pushed when a turn changed the user's score.
type KarmaEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	TurnID    string      `json:"turn_id"`
	Delta     int         `json:"delta"`
	Score     int         `json:"score"`
	Directive string      `json:"directive"`
}

// MemoryEvent reports a finished background ingestion run.
type MemoryEvent struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id"`
	JobID       string      `json:"job_id"`
	FactsStored int         `json:"facts_stored"`
	Summarized  bool        `json:"summarized"`
	Error       string      `json:"error,omitempty"`
}

type SystemEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Detail    string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientMessage:
		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || (msg.Text == "" && len(msg.Images) == 0) {
			return nil, errors.New("invalid client_message")
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || msg.Action == "" {
			return nil, errors.New("invalid client_control")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
