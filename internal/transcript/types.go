package transcript

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const titleMaxChars = 100

var (
	// ErrNotFound is returned when a chat record does not exist.
	ErrNotFound = errors.New("chat not found")
	// ErrChatNotOwned is returned when a chat id already belongs to another user.
	ErrChatNotOwned = errors.New("chat belongs to another user")
)

// Message is one persisted chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRecord is the persisted form of one conversation. Every write replaces
// the whole record.
type ChatRecord struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	UserID      string    `json:"userId"`
	CreatedAt   time.Time `json:"createdAt"`
	Path        string    `json:"path"`
	Messages    []Message `json:"messages"`
	Incomplete  bool      `json:"incomplete,omitempty"`
	PIIRedacted bool      `json:"piiRedacted,omitempty"`
}

// IndexEntry places a chat in a user's chronological index.
type IndexEntry struct {
	Member    string
	CreatedAt time.Time
}

// Score is the creation time in epoch milliseconds.
func (e IndexEntry) Score() float64 {
	return float64(e.CreatedAt.UnixMilli())
}

// Store persists chat records and the per-user chat index.
type Store interface {
	SaveChat(ctx context.Context, rec ChatRecord) error
	IndexChat(ctx context.Context, userID string, entry IndexEntry) error
	GetChat(ctx context.Context, id string) (ChatRecord, error)
	// ListChats returns the user's chats, newest first.
	ListChats(ctx context.Context, userID string, limit int) ([]ChatRecord, error)
	Ping(ctx context.Context) error
	Close() error
}

func ChatKey(id string) string { return "chat:" + id }

func UserChatKey(userID string) string { return "user:chat:" + userID }

func ChatPath(id string) string { return "/chat/" + id }

// ResolveChatID reuses a caller-supplied id or generates a new one.
func ResolveChatID(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return uuid.NewString()
}

// Title derives a chat title from the first user message, falling back to the
// first message when the history holds no user turn.
func Title(messages []Message) string {
	if len(messages) == 0 {
		return ""
	}
	src := messages[0].Content
	for _, m := range messages {
		if m.Role == "user" {
			src = m.Content
			break
		}
	}
	return truncateChars(src, titleMaxChars)
}

func truncateChars(s string, n int) string {
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
