package transcript

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ent0n29/summitchat/internal/observability"
	"github.com/ent0n29/summitchat/internal/policy"
)

// Turn is one finished exchange ready to be recorded.
type Turn struct {
	ChatID       string
	UserID       string
	SystemPrompt string
	History      []Message
	Reply        string
	// Incomplete marks a reply cut short by an upstream failure or abandonment.
	Incomplete bool
	CreatedAt  time.Time
}

// BuildRecord assembles the persisted record for a turn.
func BuildRecord(turn Turn) ChatRecord {
	id := ResolveChatID(turn.ChatID)
	messages := make([]Message, 0, len(turn.History)+2)
	if turn.SystemPrompt != "" {
		messages = append(messages, Message{Role: "system", Content: turn.SystemPrompt})
	}
	messages = append(messages, turn.History...)
	messages = append(messages, Message{Role: "assistant", Content: turn.Reply})

	return ChatRecord{
		ID:         id,
		Title:      Title(turn.History),
		UserID:     turn.UserID,
		CreatedAt:  turn.CreatedAt,
		Path:       ChatPath(id),
		Messages:   messages,
		Incomplete: turn.Incomplete,
	}
}

// Recorder writes finished turns to the store.
type Recorder struct {
	store        Store
	storeMode    string
	redactor     policy.Redactor
	writeTimeout time.Duration
	metrics      *observability.Metrics
	log          zerolog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// ErrRecorderClosed is returned for writes handed over after Close.
var ErrRecorderClosed = errors.New("transcript recorder closed")

type RecorderConfig struct {
	StoreMode    string
	Redactor     policy.Redactor
	WriteTimeout time.Duration
}

func NewRecorder(store Store, cfg RecorderConfig, metrics *observability.Metrics, log zerolog.Logger) *Recorder {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &Recorder{
		store:        store,
		storeMode:    cfg.StoreMode,
		redactor:     cfg.Redactor,
		writeTimeout: cfg.WriteTimeout,
		metrics:      metrics,
		log:          log.With().Str("component", "transcript_recorder").Logger(),
	}
}

// CheckOwner reports ErrChatNotOwned when chatID is already stored for a
// different user. Unknown ids are free to claim.
func (r *Recorder) CheckOwner(ctx context.Context, chatID, userID string) error {
	if chatID == "" || userID == "" {
		return nil
	}
	rec, err := r.store.GetChat(ctx, chatID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", ChatKey(chatID), err)
	}
	if rec.UserID != userID {
		return fmt.Errorf("%w: %s", ErrChatNotOwned, ChatKey(chatID))
	}
	return nil
}

// Record saves the chat record and then indexes it under the user. Turns
// without a user id are skipped, and a chat id held by another user is never
// overwritten. The two writes are not atomic: a failed index write leaves the
// saved record in place.
func (r *Recorder) Record(ctx context.Context, turn Turn) error {
	if turn.UserID == "" {
		return nil
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}

	rec := BuildRecord(turn)
	if err := r.CheckOwner(ctx, rec.ID, rec.UserID); err != nil {
		r.metrics.ObserveTranscriptWrite(r.storeMode, "check_owner", err)
		return err
	}
	if r.redactor.Enabled() {
		for i := range rec.Messages {
			if rec.Messages[i].Role == "system" {
				continue
			}
			var changed bool
			rec.Messages[i].Content, changed = r.redactor.Apply(rec.Messages[i].Content)
			rec.PIIRedacted = rec.PIIRedacted || changed
		}
		title, _ := r.redactor.Apply(rec.Title)
		rec.Title = truncateChars(title, titleMaxChars)
	}

	if err := r.store.SaveChat(ctx, rec); err != nil {
		r.metrics.ObserveTranscriptWrite(r.storeMode, "save_chat", err)
		return fmt.Errorf("save %s: %w", ChatKey(rec.ID), err)
	}
	r.metrics.ObserveTranscriptWrite(r.storeMode, "save_chat", nil)

	err := r.store.IndexChat(ctx, rec.UserID, IndexEntry{Member: ChatKey(rec.ID), CreatedAt: rec.CreatedAt})
	r.metrics.ObserveTranscriptWrite(r.storeMode, "index_chat", err)
	if err != nil {
		return fmt.Errorf("index %s under %s: %w", ChatKey(rec.ID), UserChatKey(rec.UserID), err)
	}
	return nil
}

// RecordDetached runs Record on a background goroutine bounded by the write
// timeout and independent of the caller's context, so a departed client
// cannot cancel it. Failures are logged; the channel yields the outcome once.
func (r *Recorder) RecordDetached(turn Turn) <-chan error {
	errCh := make(chan error, 1)
	if turn.UserID == "" {
		close(errCh)
		return errCh
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.log.Warn().Str("chat_id", turn.ChatID).Msg("transcript dropped after shutdown")
		errCh <- ErrRecorderClosed
		close(errCh)
		return errCh
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer close(errCh)

		ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
		defer cancel()

		err := r.Record(ctx, turn)
		if err != nil {
			r.log.Error().
				Err(err).
				Str("chat_id", turn.ChatID).
				Str("user_id", turn.UserID).
				Msg("transcript not persisted")
		} else {
			r.log.Debug().
				Str("chat_id", turn.ChatID).
				Bool("incomplete", turn.Incomplete).
				Msg("transcript persisted")
		}
		errCh <- err
	}()
	return errCh
}

// Wait blocks until every detached write has finished.
func (r *Recorder) Wait() {
	r.wg.Wait()
}

// Close stops accepting detached writes and waits for those in flight.
func (r *Recorder) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.wg.Wait()
}
