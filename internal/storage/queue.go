package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4"
)

// UpsertQueueEntry puts user into the waiting queue. Re-enqueueing an already
// waiting user only refreshes their enqueued_at timestamp.
func (s *Store) UpsertQueueEntry(ctx context.Context, user int64, now time.Time) error {
	s.logger.Debugf("Enqueueing user (id: %d)", user)

	sql := `insert into queue_entries (user_id, enqueued_at)
			values ($1, $2)
			on conflict (user_id) do update set enqueued_at = excluded.enqueued_at`
	_, err := s.db.Exec(ctx, sql, user, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.ForeignKeyViolation {
				return ErrUserNotFound
			}
		}
		return err
	}

	return nil
}

// DeleteQueueEntry removes user's queue entry if one exists
func (s *Store) DeleteQueueEntry(ctx context.Context, user int64) error {
	s.logger.Debugf("Removing queue entry for user (id: %d)", user)

	sql := "delete from queue_entries where user_id = $1"
	_, err := s.db.Exec(ctx, sql, user)

	return err
}

// HasQueueEntry reports whether user is currently waiting in the queue
func (s *Store) HasQueueEntry(ctx context.Context, user int64) (bool, error) {
	var i int8
	sql := "select 1 from queue_entries where user_id = $1"
	err := s.db.QueryRow(ctx, sql, user).Scan(&i)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

// ClaimOldestWaiting atomically removes and returns the longest-waiting queue
// entry belonging to anyone but exclude. The delete claims the row, so two
// concurrent matchmaking calls can never claim the same partner; skip locked
// makes the loser pick the next entry instead of blocking.
func (s *Store) ClaimOldestWaiting(ctx context.Context, exclude int64) (int64, bool, error) {
	s.logger.Debugf("Claiming oldest waiting partner for user (id: %d)", exclude)

	var partner int64
	sql := `delete from queue_entries
			 where user_id = (
				select user_id from queue_entries
				 where user_id <> $1
				 order by enqueued_at asc
				 limit 1
				   for update skip locked
			 )
			returning user_id`
	err := s.db.QueryRow(ctx, sql, exclude).Scan(&partner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}

	s.logger.Debugf("Claimed waiting user (id: %d)", partner)

	return partner, true, nil
}
