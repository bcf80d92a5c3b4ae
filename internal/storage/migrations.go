package storage

import "context"

// schema is applied once at startup by cmd/server; every Store method
// assumes these tables already exist.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id BIGSERIAL PRIMARY KEY,
    name TEXT NOT NULL,
    handle TEXT UNIQUE NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS queue_entries (
    user_id BIGINT PRIMARY KEY REFERENCES users (id),
    enqueued_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS matches (
    id BIGSERIAL PRIMARY KEY,
    user_a BIGINT NOT NULL REFERENCES users (id),
    user_b BIGINT NOT NULL REFERENCES users (id),
    started_at TIMESTAMPTZ NOT NULL,
    timed_out BOOLEAN NOT NULL DEFAULT FALSE,
    lives_a INT NOT NULL DEFAULT 3,
    lives_b INT NOT NULL DEFAULT 3,
    turn_started_at TIMESTAMPTZ NOT NULL,
    current_turn_user_id BIGINT NOT NULL,
    CHECK (user_a <> user_b),
    CHECK (current_turn_user_id IN (user_a, user_b))
);

CREATE INDEX IF NOT EXISTS idx_matches_active_a ON matches (user_a) WHERE NOT timed_out;
CREATE INDEX IF NOT EXISTS idx_matches_active_b ON matches (user_b) WHERE NOT timed_out;

CREATE TABLE IF NOT EXISTS messages (
    id BIGSERIAL PRIMARY KEY,
    match_id BIGINT NOT NULL REFERENCES matches (id),
    sender_id BIGINT NOT NULL REFERENCES users (id),
    body TEXT NOT NULL,
    edited BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_match_created ON messages (match_id, created_at);

CREATE TABLE IF NOT EXISTS transcripts (
    match_id BIGINT PRIMARY KEY REFERENCES matches (id),
    payload JSONB NOT NULL,
    saved_at TIMESTAMPTZ NOT NULL
);
`

// Migrate applies the schema. It is idempotent and intended to be called
// exactly once from main, never from request paths.
func (s *Store) Migrate(ctx context.Context) error {
	s.logger.Debug("Applying schema")

	_, err := s.db.Exec(ctx, schema)
	if err != nil {
		return err
	}

	s.logger.Debug("Schema is up to date")

	return nil
}
