package completion

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

// Result is handed to the completion hook once a TextStream finishes.
type Result struct {
	Text string
	// Complete is true only when the provider signalled the end of the stream.
	Complete bool
	Err      error
}

// CompletionHook receives the accumulated text when a stream finishes.
type CompletionHook func(Result)

// TextStream re-exposes a provider Stream as plain text chunks and reports the
// accumulated output to a hook exactly once, however the stream ends.
type TextStream struct {
	src    Stream
	onDone CompletionHook

	mu       sync.Mutex
	out      strings.Builder
	finished bool
}

func NewTextStream(src Stream, onDone CompletionHook) *TextStream {
	return &TextStream{src: src, onDone: onDone}
}

// Next returns the next non-empty chunk, or io.EOF after the last one.
func (s *TextStream) Next() (string, error) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return "", io.EOF
	}
	s.mu.Unlock()

	for {
		chunk, err := s.src.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.finish(Result{Complete: true})
				return "", io.EOF
			}
			s.finish(Result{Err: err})
			return "", err
		}
		if chunk == "" {
			continue
		}
		s.mu.Lock()
		s.out.WriteString(chunk)
		s.mu.Unlock()
		return chunk, nil
	}
}

// Text returns everything received so far.
func (s *TextStream) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.String()
}

// Close releases the provider stream. Closing before exhaustion reports an
// incomplete result to the hook.
func (s *TextStream) Close() error {
	s.finish(Result{Err: ErrStreamAbandoned})
	return s.src.Close()
}

func (s *TextStream) finish(res Result) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.finished = true
	res.Text = s.out.String()
	hook := s.onDone
	s.mu.Unlock()

	if hook != nil {
		hook(res)
	}
}

// Bridge binds a provider to the model settings used for every request.
type Bridge struct {
	provider    Provider
	model       string
	temperature float32
}

func NewBridge(provider Provider, model string, temperature float32) *Bridge {
	return &Bridge{
		provider:    provider,
		model:       model,
		temperature: temperature,
	}
}

func (b *Bridge) ProviderName() string { return b.provider.Name() }

// Open issues the upstream request. Failures before the first chunk are
// returned here; nothing is retried. apiKey, when set, replaces the default
// credential for this call only.
func (b *Bridge) Open(ctx context.Context, messages []Message, apiKey string, onDone CompletionHook) (*TextStream, error) {
	src, err := b.provider.StreamChat(ctx, Request{
		Model:       b.model,
		Temperature: b.temperature,
		Messages:    messages,
		APIKey:      apiKey,
	})
	if err != nil {
		return nil, err
	}
	return NewTextStream(src, onDone), nil
}
