package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlTurns = `
CREATE TABLE IF NOT EXISTS conversation_turns (
    id         BIGSERIAL    PRIMARY KEY,
    role       TEXT         NOT NULL,
    text       TEXT         NOT NULL,
    started_at TIMESTAMPTZ  NOT NULL,
    ended_at   TIMESTAMPTZ  NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversation_turns_started_at
    ON conversation_turns (started_at);
`

// PostgresStore is a [Store] backed by a conversation_turns table.
// All methods are safe for concurrent use.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and creates the schema if missing.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("history: connect: %w", err)
	}
	if _, err := pool.Exec(ctx, ddlTurns); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history: migrate: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Append implements [Store].
func (s *PostgresStore) Append(ctx context.Context, turn Turn) error {
	const q = `
		INSERT INTO conversation_turns (role, text, started_at, ended_at)
		VALUES ($1, $2, $3, $4)`

	_, err := s.pool.Exec(ctx, q, string(turn.Role), turn.Text, turn.StartedAt, turn.EndedAt)
	if err != nil {
		return fmt.Errorf("history: append turn: %w", err)
	}
	return nil
}

// Recent implements [Store].
func (s *PostgresStore) Recent(ctx context.Context, n int) ([]Turn, error) {
	const q = `
		SELECT role, text, started_at, ended_at
		FROM   (SELECT role, text, started_at, ended_at, id
		        FROM conversation_turns
		        ORDER BY id DESC
		        LIMIT $1) latest
		ORDER  BY id`

	rows, err := s.pool.Query(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("history: recent turns: %w", err)
	}

	turns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Turn, error) {
		var (
			t    Turn
			role string
		)
		if err := row.Scan(&role, &t.Text, &t.StartedAt, &t.EndedAt); err != nil {
			return Turn{}, err
		}
		t.Role = Role(role)
		return t, nil
	})
	if err != nil {
		return nil, fmt.Errorf("history: scan turns: %w", err)
	}
	return turns, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
