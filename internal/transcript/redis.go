package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps chats as hashes (chat:{id}) and each user's chats in a
// sorted set (user:chat:{userId}) scored by creation time in milliseconds.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return NewRedisStoreWithClient(client), nil
}

func NewRedisStoreWithClient(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// SaveChat replaces the whole hash so fields from an earlier write never linger.
func (s *RedisStore) SaveChat(ctx context.Context, rec ChatRecord) error {
	fields, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	key := ChatKey(rec.ID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fields)
		return nil
	})
	if err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) IndexChat(ctx context.Context, userID string, entry IndexEntry) error {
	key := UserChatKey(userID)
	if err := s.client.ZAdd(ctx, key, redis.Z{Score: entry.Score(), Member: entry.Member}).Err(); err != nil {
		return fmt.Errorf("zadd %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) GetChat(ctx context.Context, id string) (ChatRecord, error) {
	fields, err := s.client.HGetAll(ctx, ChatKey(id)).Result()
	if err != nil {
		return ChatRecord{}, fmt.Errorf("hgetall %s: %w", ChatKey(id), err)
	}
	if len(fields) == 0 {
		return ChatRecord{}, ErrNotFound
	}
	return decodeRecord(fields)
}

// ListChats skips index members whose hash is gone or now belongs to another user.
func (s *RedisStore) ListChats(ctx context.Context, userID string, limit int) ([]ChatRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	key := UserChatKey(userID)
	members, err := s.client.ZRevRange(ctx, key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrange %s: %w", key, err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, 0, len(members))
	for _, m := range members {
		cmds = append(cmds, pipe.HGetAll(ctx, m))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("load chats for %s: %w", key, err)
	}

	out := make([]ChatRecord, 0, len(cmds))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		rec, err := decodeRecord(fields)
		if err != nil {
			return nil, err
		}
		if rec.UserID != userID {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func encodeRecord(rec ChatRecord) (map[string]any, error) {
	messages, err := json.Marshal(rec.Messages)
	if err != nil {
		return nil, fmt.Errorf("encode messages: %w", err)
	}
	return map[string]any{
		"id":          rec.ID,
		"title":       rec.Title,
		"userId":      rec.UserID,
		"createdAt":   strconv.FormatInt(rec.CreatedAt.UnixMilli(), 10),
		"path":        rec.Path,
		"messages":    string(messages),
		"incomplete":  strconv.FormatBool(rec.Incomplete),
		"piiRedacted": strconv.FormatBool(rec.PIIRedacted),
	}, nil
}

func decodeRecord(fields map[string]string) (ChatRecord, error) {
	rec := ChatRecord{
		ID:     fields["id"],
		Title:  fields["title"],
		UserID: fields["userId"],
		Path:   fields["path"],
	}
	if raw := fields["createdAt"]; raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return ChatRecord{}, fmt.Errorf("decode createdAt for %s: %w", rec.ID, err)
		}
		rec.CreatedAt = time.UnixMilli(ms).UTC()
	}
	if raw := fields["messages"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &rec.Messages); err != nil {
			return ChatRecord{}, fmt.Errorf("decode messages for %s: %w", rec.ID, err)
		}
	}
	rec.Incomplete, _ = strconv.ParseBool(fields["incomplete"])
	rec.PIIRedacted, _ = strconv.ParseBool(fields["piiRedacted"])
	return rec, nil
}
