package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4"
)

const matchColumns = `id, user_a, user_b, started_at, timed_out, lives_a, lives_b, turn_started_at, current_turn_user_id`

func scanMatch(row pgx.Row) (*Match, error) {
	var m Match
	err := row.Scan(&m.ID, &m.UserA, &m.UserB, &m.StartedAt, &m.TimedOut,
		&m.LivesA, &m.LivesB, &m.TurnStartedAt, &m.CurrentTurn)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateMatch creates a match between userA and userB with firstTurn holding
// the opening turn and returns the stored row
func (s *Store) CreateMatch(ctx context.Context, userA, userB, firstTurn int64, lives int, now time.Time) (*Match, error) {
	s.logger.Debugf("Creating match between users (%d, %d)", userA, userB)

	sql := `insert into matches
			(user_a, user_b, started_at, timed_out, lives_a, lives_b, turn_started_at, current_turn_user_id)
			values ($1, $2, $3, false, $4, $4, $3, $5)
			returning ` + matchColumns
	m, err := scanMatch(s.db.QueryRow(ctx, sql, userA, userB, now, lives, firstTurn))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgerrcode.ForeignKeyViolation, pgerrcode.CheckViolation:
				return nil, ErrBadParticipants
			}
		}
		return nil, err
	}

	s.logger.Debugf("Created match with id %d", m.ID)

	return m, nil
}

// MatchByID returns the match with provided id
func (s *Store) MatchByID(ctx context.Context, match int64) (*Match, error) {
	sql := "select " + matchColumns + " from matches where id = $1"
	m, err := scanMatch(s.db.QueryRow(ctx, sql, match))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}

	return m, nil
}

// ActiveMatchByUser returns user's single non-timed-out match,
// or ErrMatchNotFound when the user has no active session
func (s *Store) ActiveMatchByUser(ctx context.Context, user int64) (*Match, error) {
	sql := `select ` + matchColumns + `
			  from matches
			 where (user_a = $1 or user_b = $1) and not timed_out
			 order by started_at desc
			 limit 1`
	m, err := scanMatch(s.db.QueryRow(ctx, sql, user))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}

	return m, nil
}

// ExpireUserMatches force-expires every active match user participates in.
// Run before enqueueing so a user can never hold two live sessions.
func (s *Store) ExpireUserMatches(ctx context.Context, user int64) error {
	s.logger.Debugf("Force-expiring active matches of user (id: %d)", user)

	sql := "update matches set timed_out = true where (user_a = $1 or user_b = $1) and not timed_out"
	_, err := s.db.Exec(ctx, sql, user)

	return err
}

// ExpireMatch marks the match timed out regardless of its turn clock
func (s *Store) ExpireMatch(ctx context.Context, match int64) error {
	s.logger.Debugf("Expiring match (id: %d)", match)

	sql := "update matches set timed_out = true where id = $1 and not timed_out"
	_, err := s.db.Exec(ctx, sql, match)

	return err
}

// ExpireDueMatch persists the timed_out flag if the match's turn started at
// or before cutoff. Reports whether the flag flipped during this call.
// The where clause keeps the transition monotonic.
func (s *Store) ExpireDueMatch(ctx context.Context, match int64, cutoff time.Time) (bool, error) {
	sql := `update matches set timed_out = true
			 where id = $1 and not timed_out and turn_started_at <= $2`
	tag, err := s.db.Exec(ctx, sql, match, cutoff)
	if err != nil {
		return false, err
	}

	return tag.RowsAffected() == 1, nil
}

// AdvanceTurn hands the turn from sender to next and restarts the turn clock.
// The conditional update is the single atomic claim step: it succeeds only if
// the match is still live and sender actually holds the turn, so two
// participants racing for the same turn slot cannot both win.
func (s *Store) AdvanceTurn(ctx context.Context, match, sender, next int64, now time.Time) (bool, error) {
	s.logger.Debugf("Advancing turn in match (id: %d) from user %d to user %d", match, sender, next)

	sql := `update matches
			   set current_turn_user_id = $1, turn_started_at = $2
			 where id = $3 and not timed_out and current_turn_user_id = $4`
	tag, err := s.db.Exec(ctx, sql, next, now, match, sender)
	if err != nil {
		return false, err
	}

	return tag.RowsAffected() == 1, nil
}
