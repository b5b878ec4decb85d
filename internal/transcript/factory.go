package transcript

import (
	"context"
	"strings"
)

// NewStore picks redis when configured, then postgres, otherwise in-memory.
func NewStore(ctx context.Context, redisURL, databaseURL string) (Store, error) {
	if strings.TrimSpace(redisURL) != "" {
		return NewRedisStore(ctx, redisURL)
	}
	if strings.TrimSpace(databaseURL) != "" {
		return NewPostgresStore(ctx, databaseURL)
	}
	return NewInMemoryStore(), nil
}
