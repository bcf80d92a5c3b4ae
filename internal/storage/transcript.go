package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
)

// TranscriptSavedAt returns when the match transcript was archived,
// or found=false when no transcript exists yet
func (s *Store) TranscriptSavedAt(ctx context.Context, match int64) (time.Time, bool, error) {
	var savedAt time.Time
	sql := "select saved_at from transcripts where match_id = $1"
	err := s.db.QueryRow(ctx, sql, match).Scan(&savedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}

	return savedAt, true, nil
}

// CreateTranscript archives payload for the match exactly once. A concurrent
// or repeated save loses the insert on the match_id primary key and gets the
// original saved_at back, so the stored snapshot never changes.
func (s *Store) CreateTranscript(ctx context.Context, match int64, payload []byte, now time.Time) (time.Time, error) {
	s.logger.Debugf("Archiving transcript for match (id: %d)", match)

	var savedAt time.Time
	sql := `insert into transcripts (match_id, payload, saved_at)
			values ($1, $2, $3)
			on conflict (match_id) do nothing
			returning saved_at`
	err := s.db.QueryRow(ctx, sql, match, payload, now).Scan(&savedAt)
	if err == nil {
		return savedAt, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, err
	}

	// insert lost to an existing row, report its timestamp instead
	sql = "select saved_at from transcripts where match_id = $1"
	err = s.db.QueryRow(ctx, sql, match).Scan(&savedAt)
	if err != nil {
		return time.Time{}, err
	}

	return savedAt, nil
}

// TranscriptByMatch returns the archived transcript for the match
func (s *Store) TranscriptByMatch(ctx context.Context, match int64) (*Transcript, error) {
	var payload pgtype.JSONB
	t := Transcript{MatchID: match}

	sql := "select payload, saved_at from transcripts where match_id = $1"
	err := s.db.QueryRow(ctx, sql, match).Scan(&payload, &t.SavedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}

	err = payload.AssignTo(&t.Payload)
	if err != nil {
		return nil, err
	}

	return &t, nil
}
