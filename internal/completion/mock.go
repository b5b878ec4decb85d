package completion

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// MockProvider provides deterministic local replies when no real provider is configured.
type MockProvider struct{}

func NewMockProvider() *MockProvider { return &MockProvider{} }

func (p *MockProvider) Name() string { return "mock" }

func (p *MockProvider) StreamChat(ctx context.Context, req Request) (Stream, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	return NewSliceStream(splitWords(buildMockReply(req))...), nil
}

func buildMockReply(req Request) string {
	var last string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == RoleUser {
			last = strings.TrimSpace(req.Messages[i].Content)
			break
		}
	}
	if last == "" {
		return "Ask me anything about the AI Engineer Summit."
	}
	return fmt.Sprintf("I heard you: %s", last)
}

// splitWords keeps the separating spaces attached so the chunks concatenate
// back to the original text.
func splitWords(text string) []string {
	if text == "" {
		return nil
	}
	var out []string
	for len(text) > 0 {
		i := strings.IndexByte(text[1:], ' ')
		if i < 0 {
			out = append(out, text)
			break
		}
		out = append(out, text[:i+1])
		text = text[i+1:]
	}
	return out
}

// SliceStream replays a fixed list of chunks.
type SliceStream struct {
	mu     sync.Mutex
	chunks []string
	next   int
	closed bool
}

func NewSliceStream(chunks ...string) *SliceStream {
	return &SliceStream{chunks: chunks}
}

func (s *SliceStream) Recv() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.next >= len(s.chunks) {
		return "", io.EOF
	}
	chunk := s.chunks[s.next]
	s.next++
	return chunk, nil
}

func (s *SliceStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
