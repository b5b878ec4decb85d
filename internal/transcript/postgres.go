package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists chat records in PostgreSQL. The user_chats table
// mirrors the sorted-set index: one row per (user, member) with a millisecond score.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chats (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			path TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			messages JSONB NOT NULL,
			incomplete BOOLEAN NOT NULL DEFAULT FALSE,
			pii_redacted BOOLEAN NOT NULL DEFAULT FALSE
		);`,
		`CREATE TABLE IF NOT EXISTS user_chats (
			user_id TEXT NOT NULL,
			member TEXT NOT NULL,
			score DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (user_id, member)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_user_chats_score ON user_chats (user_id, score DESC);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) SaveChat(ctx context.Context, rec ChatRecord) error {
	messages, err := json.Marshal(rec.Messages)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO chats (id, user_id, title, path, created_at, messages, incomplete, pii_redacted)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			title = EXCLUDED.title,
			path = EXCLUDED.path,
			created_at = EXCLUDED.created_at,
			messages = EXCLUDED.messages,
			incomplete = EXCLUDED.incomplete,
			pii_redacted = EXCLUDED.pii_redacted`,
		rec.ID,
		rec.UserID,
		rec.Title,
		rec.Path,
		rec.CreatedAt,
		messages,
		rec.Incomplete,
		rec.PIIRedacted,
	)
	if err != nil {
		return fmt.Errorf("save chat: %w", err)
	}
	return nil
}

func (s *PostgresStore) IndexChat(ctx context.Context, userID string, entry IndexEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_chats (user_id, member, score) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, member) DO UPDATE SET score = EXCLUDED.score`,
		userID,
		entry.Member,
		entry.Score(),
	)
	if err != nil {
		return fmt.Errorf("index chat: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetChat(ctx context.Context, id string) (ChatRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, user_id, title, path, created_at, messages, incomplete, pii_redacted
		 FROM chats WHERE id=$1`,
		id,
	)
	rec, err := scanChat(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ChatRecord{}, ErrNotFound
	}
	if err != nil {
		return ChatRecord{}, fmt.Errorf("get chat: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) ListChats(ctx context.Context, userID string, limit int) ([]ChatRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx,
		`SELECT c.id, c.user_id, c.title, c.path, c.created_at, c.messages, c.incomplete, c.pii_redacted
		 FROM user_chats u JOIN chats c ON u.member = 'chat:' || c.id AND c.user_id = u.user_id
		 WHERE u.user_id=$1 ORDER BY u.score DESC LIMIT $2`,
		userID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}
	defer rows.Close()

	items := make([]ChatRecord, 0, limit)
	for rows.Next() {
		rec, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chat row: %w", err)
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat rows: %w", err)
	}
	return items, nil
}

func scanChat(row pgx.Row) (ChatRecord, error) {
	var (
		rec      ChatRecord
		messages []byte
	)
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.Title, &rec.Path, &rec.CreatedAt, &messages, &rec.Incomplete, &rec.PIIRedacted); err != nil {
		return ChatRecord{}, err
	}
	if err := json.Unmarshal(messages, &rec.Messages); err != nil {
		return ChatRecord{}, fmt.Errorf("decode messages: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
