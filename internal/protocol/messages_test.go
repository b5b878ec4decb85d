package protocol

import (
	"errors"
	"testing"

	"github.com/ent0n29/summitchat/internal/completion"
)

func TestParseClientMessageChatRequest(t *testing.T) {
	raw := []byte(`{"type":"chat_request","request_id":"r1","id":"c1","messages":[{"role":"user","content":"When is the conference?"}],"previewToken":"sk-a"}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}

	req, ok := msg.(ChatRequest)
	if !ok {
		t.Fatalf("message type = %T, want ChatRequest", msg)
	}
	if req.RequestID != "r1" || req.ID != "c1" || req.PreviewToken != "sk-a" {
		t.Fatalf("unexpected chat request: %+v", req)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != completion.RoleUser {
		t.Fatalf("Messages = %+v, want one user message", req.Messages)
	}
}

func TestParseClientMessageRequiresRequestID(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"chat_request","messages":[]}`))
	if err == nil {
		t.Fatal("expected error for chat_request without request_id")
	}
}

func TestParseClientMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wat"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseClientMessageRejectsMalformedJSON(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{"type":`)); err == nil {
		t.Fatal("expected error for malformed envelope")
	}
}

func TestParseClientMessageControl(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"client_control","request_id":"r1","action":"cancel"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	control, ok := msg.(ClientControl)
	if !ok {
		t.Fatalf("message type = %T, want ClientControl", msg)
	}
	if control.RequestID != "r1" || control.Action != ActionCancel {
		t.Fatalf("unexpected client control: %+v", control)
	}

	if _, err := ParseClientMessage([]byte(`{"type":"client_control","action":"pause"}`)); err == nil {
		t.Fatal("expected error for unknown action")
	}
}
