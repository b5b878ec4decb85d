// Package chat runs one conversational turn: it validates the request,
// opens the completion stream and hands the finished transcript to the
// recorder.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/ent0n29/summitchat/internal/auth"
	"github.com/ent0n29/summitchat/internal/completion"
	"github.com/ent0n29/summitchat/internal/observability"
	"github.com/ent0n29/summitchat/internal/prompt"
	"github.com/ent0n29/summitchat/internal/reliability"
	"github.com/ent0n29/summitchat/internal/transcript"
)

// maxMessageContentBytes bounds a single message; the request also caps the
// history at 100 messages.
const maxMessageContentBytes = 32 * 1024

// ErrInvalidRequest wraps every request validation failure.
var ErrInvalidRequest = errors.New("invalid chat request")

// Request is the body accepted by the chat endpoints.
type Request struct {
	ID       string               `json:"id,omitempty"`
	Messages []completion.Message `json:"messages" validate:"required,min=1,max=100,dive"`
	// PreviewToken replaces the default provider credential for this request.
	PreviewToken string `json:"previewToken,omitempty"`
}

// Config holds the per-turn streaming policy.
type Config struct {
	StreamTimeout     time.Duration
	DrainOnDisconnect bool
	AllowPreviewToken bool
}

// Service runs chat turns against one completion bridge and recorder.
type Service struct {
	bridge   *completion.Bridge
	recorder *transcript.Recorder
	cfg      Config
	validate *validator.Validate
	metrics  *observability.Metrics
	log      zerolog.Logger
}

// NewService builds a Service. A non-positive StreamTimeout defaults to two
// minutes.
func NewService(bridge *completion.Bridge, recorder *transcript.Recorder, cfg Config, metrics *observability.Metrics, log zerolog.Logger) *Service {
	if cfg.StreamTimeout <= 0 {
		cfg.StreamTimeout = 2 * time.Minute
	}
	v := validator.New()
	_ = v.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= maxMessageContentBytes
	})
	return &Service{
		bridge:   bridge,
		recorder: recorder,
		cfg:      cfg,
		validate: v,
		metrics:  metrics,
		log:      log.With().Str("component", "chat").Logger(),
	}
}

func (s *Service) ProviderName() string { return s.bridge.ProviderName() }

// Validate checks the request shape before any upstream work.
func (s *Service) Validate(req Request) error {
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(fields, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// Start validates the request and opens the upstream stream. Errors returned
// here happen before any output and leave nothing to record. A nil or
// anonymous session streams normally but is never persisted.
func (s *Service) Start(ctx context.Context, sess *auth.Session, req Request) (*Turn, error) {
	if err := s.Validate(req); err != nil {
		s.metrics.ObserveChatRequest("invalid")
		return nil, err
	}

	apiKey := strings.TrimSpace(req.PreviewToken)
	if apiKey != "" && !s.cfg.AllowPreviewToken {
		s.log.Debug().Msg("ignoring preview token override")
		apiKey = ""
	}
	if apiKey != "" {
		s.metrics.ObserveIndicator("credential_override")
	}

	userID := ""
	if !sess.Anonymous() {
		userID = sess.UserID
	}

	// A store outage here is not fatal; the recorder checks again before writing.
	if err := s.recorder.CheckOwner(ctx, strings.TrimSpace(req.ID), userID); err != nil {
		if errors.Is(err, transcript.ErrChatNotOwned) {
			s.metrics.ObserveIndicator("chat_id_conflict")
			s.metrics.ObserveChatRequest("forbidden")
			s.log.Warn().Str("user_id", userID).Str("chat_id", req.ID).Msg("chat id belongs to another user")
			return nil, err
		}
		s.log.Warn().Err(err).Str("chat_id", req.ID).Msg("chat ownership check failed")
	}

	// Draining keeps the upstream call alive after the client leaves so the
	// transcript can still be recorded complete.
	var (
		streamCtx context.Context
		cancel    context.CancelFunc
	)
	if s.cfg.DrainOnDisconnect {
		streamCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), s.cfg.StreamTimeout)
	} else {
		streamCtx, cancel = context.WithTimeout(ctx, s.cfg.StreamTimeout)
	}

	turn := &Turn{
		ChatID:    transcript.ResolveChatID(req.ID),
		UserID:    userID,
		clientCtx: ctx,
		cancel:    cancel,
		drain:     s.cfg.DrainOnDisconnect,
		started:   time.Now(),
		metrics:   s.metrics,
		persisted: make(chan error, 1),
	}
	history := toTranscript(req.Messages)
	system := prompt.System()

	onDone := func(res completion.Result) {
		elapsed := time.Since(turn.started)
		s.metrics.StreamFinished(elapsed)
		outcome := "completed"
		if !res.Complete {
			outcome = "failed"
			if errors.Is(res.Err, completion.ErrStreamAbandoned) {
				outcome = "abandoned"
			} else {
				c := reliability.Classify(res.Err)
				s.metrics.ObserveProviderError(s.bridge.ProviderName(), c.Code)
			}
			s.log.Warn().
				Err(res.Err).
				Str("chat_id", turn.ChatID).
				Int("chars", len(res.Text)).
				Msg("completion stream ended early")
		}
		s.metrics.ObserveChatRequest(outcome)

		done := s.recorder.RecordDetached(transcript.Turn{
			ChatID:       turn.ChatID,
			UserID:       userID,
			SystemPrompt: system,
			History:      history,
			Reply:        res.Text,
			Incomplete:   !res.Complete,
			CreatedAt:    time.Now().UTC(),
		})
		go func() {
			err := <-done
			s.metrics.ObservePersistLatency(time.Since(turn.started) - elapsed)
			turn.persisted <- err
			close(turn.persisted)
		}()
	}

	stream, err := s.bridge.Open(streamCtx, prompt.Assemble(req.Messages), apiKey, onDone)
	if err != nil {
		cancel()
		c := reliability.Classify(err)
		s.metrics.ObserveProviderError(s.bridge.ProviderName(), c.Code)
		s.metrics.ObserveChatRequest("upstream_error")
		s.log.Error().
			Err(err).
			Str("chat_id", turn.ChatID).
			Int("status", c.Status).
			Msg("failed to open completion stream")
		return nil, err
	}
	turn.stream = stream
	s.metrics.StreamStarted()

	s.log.Debug().
		Str("chat_id", turn.ChatID).
		Bool("persist", userID != "").
		Bool("override_credential", apiKey != "").
		Int("messages", len(req.Messages)).
		Msg("completion stream opened")
	return turn, nil
}

// Turn is an open completion stream bound to one request.
type Turn struct {
	ChatID string
	UserID string

	stream    *completion.TextStream
	clientCtx context.Context
	cancel    context.CancelFunc
	drain     bool
	started   time.Time
	metrics   *observability.Metrics
	persisted chan error

	closeOnce sync.Once
}

// Pump forwards chunks to sink in provider order until the stream ends. When
// sink fails or the client context ends, the turn either keeps draining the
// upstream without forwarding or closes it, depending on configuration. The
// returned error is the mid-stream upstream failure or the client's departure.
func (t *Turn) Pump(sink func(chunk string) error) error {
	defer t.Close()

	var (
		clientErr error
		first     = true
	)
	for {
		if clientErr == nil {
			if err := t.clientCtx.Err(); err != nil {
				clientErr = err
			}
		}
		if clientErr != nil && !t.drain {
			return clientErr
		}

		chunk, err := t.stream.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return clientErr
			}
			if clientErr != nil {
				return clientErr
			}
			return err
		}
		if first {
			first = false
			t.metrics.ObserveFirstChunkLatency(time.Since(t.started))
		}
		if clientErr != nil {
			continue
		}
		if err := sink(chunk); err != nil {
			clientErr = err
		}
	}
}

// Text returns what has been streamed so far.
func (t *Turn) Text() string { return t.stream.Text() }

// Persisted yields the outcome of the transcript write once the stream has
// finished. It is closed afterwards; anonymous turns yield nil.
func (t *Turn) Persisted() <-chan error { return t.persisted }

// Close releases the upstream stream. It is safe to call more than once.
func (t *Turn) Close() {
	t.closeOnce.Do(func() {
		_ = t.stream.Close()
		t.cancel()
	})
}

func toTranscript(msgs []completion.Message) []transcript.Message {
	out := make([]transcript.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, transcript.Message{Role: string(m.Role), Content: m.Content})
	}
	return out
}
