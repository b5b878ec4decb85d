package transcript

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/summitchat/internal/policy"
)

type countingStore struct {
	*InMemoryStore
	saves   int
	indexes int
	saveErr error
	idxErr  error
}

func (s *countingStore) SaveChat(ctx context.Context, rec ChatRecord) error {
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	return s.InMemoryStore.SaveChat(ctx, rec)
}

func (s *countingStore) IndexChat(ctx context.Context, userID string, entry IndexEntry) error {
	s.indexes++
	if s.idxErr != nil {
		return s.idxErr
	}
	return s.InMemoryStore.IndexChat(ctx, userID, entry)
}

func newRecorder(store Store, redact bool) *Recorder {
	return NewRecorder(store, RecorderConfig{
		StoreMode: "in-memory",
		Redactor:  policy.NewRedactor(redact),
	}, nil, zerolog.Nop())
}

func TestRecordPersistsRecordAndIndex(t *testing.T) {
	store := &countingStore{InMemoryStore: NewInMemoryStore()}
	r := newRecorder(store, false)
	created := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	err := r.Record(context.Background(), Turn{
		ChatID:       "c1",
		UserID:       "u1",
		SystemPrompt: "be helpful",
		History:      []Message{{Role: "user", Content: "When is the conference?"}},
		Reply:        "Oct 8-10 in San Francisco.",
		CreatedAt:    created,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, store.saves)
	assert.Equal(t, 1, store.indexes)

	rec, err := store.GetChat(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", rec.ID)
	assert.Equal(t, "When is the conference?", rec.Title)
	assert.Equal(t, "u1", rec.UserID)
	assert.Equal(t, "/chat/c1", rec.Path)
	assert.Equal(t, []Message{
		{Role: "system", Content: "be helpful"},
		{Role: "user", Content: "When is the conference?"},
		{Role: "assistant", Content: "Oct 8-10 in San Francisco."},
	}, rec.Messages)

	score, ok := store.IndexScore("u1", "chat:c1")
	require.True(t, ok)
	assert.Equal(t, float64(created.UnixMilli()), score)
}

func TestRecordSkipsAnonymousTurns(t *testing.T) {
	store := &countingStore{InMemoryStore: NewInMemoryStore()}
	r := newRecorder(store, false)

	require.NoError(t, r.Record(context.Background(), Turn{ChatID: "c1", Reply: "hi"}))
	err, ok := <-r.RecordDetached(Turn{ChatID: "c2", Reply: "hi"})
	assert.False(t, ok)
	assert.NoError(t, err)
	assert.Zero(t, store.saves)
	assert.Zero(t, store.indexes)
}

func TestRecordSameIDOverwrites(t *testing.T) {
	store := NewInMemoryStore()
	r := newRecorder(store, false)
	first := time.UnixMilli(1_000)
	second := time.UnixMilli(2_000)

	history := []Message{{Role: "user", Content: "hello"}}
	require.NoError(t, r.Record(context.Background(), Turn{ChatID: "c1", UserID: "u1", History: history, Reply: "one", CreatedAt: first}))
	history = append(history, Message{Role: "assistant", Content: "one"}, Message{Role: "user", Content: "again"})
	require.NoError(t, r.Record(context.Background(), Turn{ChatID: "c1", UserID: "u1", History: history, Reply: "two", CreatedAt: second}))

	rec, err := store.GetChat(context.Background(), "c1")
	require.NoError(t, err)
	assert.Len(t, rec.Messages, 4)
	assert.Equal(t, "two", rec.Messages[3].Content)
	assert.Equal(t, 1, store.IndexLen("u1"))
	score, _ := store.IndexScore("u1", "chat:c1")
	assert.Equal(t, float64(2_000), score)
}

func TestRecordRedactsWhenEnabled(t *testing.T) {
	store := NewInMemoryStore()
	r := newRecorder(store, true)

	require.NoError(t, r.Record(context.Background(), Turn{
		ChatID:       "c1",
		UserID:       "u1",
		SystemPrompt: "contact help@example.com",
		History:      []Message{{Role: "user", Content: "mail me at ada@example.com"}},
		Reply:        "ok",
	}))

	rec, err := store.GetChat(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, rec.PIIRedacted)
	assert.Equal(t, "contact help@example.com", rec.Messages[0].Content)
	assert.NotContains(t, rec.Messages[1].Content, "ada@example.com")
	assert.NotContains(t, rec.Title, "ada@example.com")
}

func TestRecordReportsStoreFailures(t *testing.T) {
	boom := errors.New("boom")

	store := &countingStore{InMemoryStore: NewInMemoryStore(), saveErr: boom}
	err := newRecorder(store, false).Record(context.Background(), Turn{ChatID: "c1", UserID: "u1", Reply: "x"})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, store.indexes)

	store = &countingStore{InMemoryStore: NewInMemoryStore(), idxErr: boom}
	err = newRecorder(store, false).Record(context.Background(), Turn{ChatID: "c1", UserID: "u1", Reply: "x"})
	assert.ErrorIs(t, err, boom)
	_, getErr := store.GetChat(context.Background(), "c1")
	assert.NoError(t, getErr)
}

func TestRecordDetachedOutlivesCallerContext(t *testing.T) {
	store := NewInMemoryStore()
	r := newRecorder(store, false)

	errCh := r.RecordDetached(Turn{ChatID: "c1", UserID: "u1", Reply: "x"})
	r.Wait()
	require.NoError(t, <-errCh)

	_, err := store.GetChat(context.Background(), "c1")
	assert.NoError(t, err)
}

func TestBuildRecordMarksIncomplete(t *testing.T) {
	rec := BuildRecord(Turn{ChatID: "c1", UserID: "u1", History: []Message{{Role: "user", Content: "q"}}, Reply: "partial", Incomplete: true})
	assert.True(t, rec.Incomplete)
	assert.Equal(t, "partial", rec.Messages[len(rec.Messages)-1].Content)
	assert.Len(t, rec.Messages, 2)
}

func TestRecorderCloseRejectsLateWrites(t *testing.T) {
	store := &countingStore{InMemoryStore: NewInMemoryStore()}
	r := newRecorder(store, false)

	require.NoError(t, <-r.RecordDetached(Turn{ChatID: "c1", UserID: "u1", Reply: "x"}))
	r.Close()

	err := <-r.RecordDetached(Turn{ChatID: "c2", UserID: "u1", Reply: "late"})
	assert.ErrorIs(t, err, ErrRecorderClosed)
	assert.Equal(t, 1, store.saves)

	_, err = store.GetChat(context.Background(), "c2")
	assert.ErrorIs(t, err, ErrNotFound)
}
