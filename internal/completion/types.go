package completion

import (
	"context"
	"errors"
	"fmt"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is the provider-agnostic chat message shape.
type Message struct {
	Role    Role   `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content" validate:"maxbytes"`
}

// Request is the normalized request sent to a provider.
type Request struct {
	Model       string
	Temperature float32
	Messages    []Message
	// APIKey overrides the provider's default credential for this call only.
	APIKey string
}

// Stream is a lazy, forward-only sequence of generated text chunks.
// Recv returns io.EOF once the provider signals the end of the stream.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Provider issues streamed chat completions against a text-generation service.
type Provider interface {
	Name() string
	StreamChat(ctx context.Context, req Request) (Stream, error)
}

// ErrStreamAbandoned is reported when a stream is closed before it was exhausted.
var ErrStreamAbandoned = errors.New("completion stream closed before end")

// UpstreamError describes a provider failure that happened before any output
// was streamed.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s upstream status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s upstream error: %s", e.Provider, e.Message)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
