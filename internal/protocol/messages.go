package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ent0n29/summitchat/internal/completion"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeChatRequest   MessageType = "chat_request"
	TypeClientControl MessageType = "client_control"
	TypeChatStarted   MessageType = "chat_started"
	TypeTextDelta     MessageType = "text_delta"
	TypeChatCompleted MessageType = "chat_completed"
	TypeErrorEvent    MessageType = "error_event"
)

const ActionCancel = "cancel"

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ChatRequest carries the same body as POST /api/chat plus a client-chosen
// request id echoed on every reply frame.
type ChatRequest struct {
	Type         MessageType          `json:"type"`
	RequestID    string               `json:"request_id"`
	ID           string               `json:"id,omitempty"`
	Messages     []completion.Message `json:"messages"`
	PreviewToken string               `json:"previewToken,omitempty"`
}

type ClientControl struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"request_id"`
	Action    string      `json:"action"`
}

type ChatStarted struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"request_id"`
	ChatID    string      `json:"chat_id"`
}

type TextDelta struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"request_id"`
	ChatID    string      `json:"chat_id"`
	TextDelta string      `json:"text_delta"`
}

type ChatCompleted struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"request_id"`
	ChatID    string      `json:"chat_id"`
	// Reason is "completed", "cancelled" or "failed".
	Reason string `json:"reason"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	Code      string      `json:"code"`
	Status    int         `json:"status,omitempty"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeChatRequest:
		var msg ChatRequest
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.RequestID == "" {
			return nil, errors.New("invalid chat_request: missing request_id")
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Action != ActionCancel {
			return nil, fmt.Errorf("invalid client_control action %q", msg.Action)
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
