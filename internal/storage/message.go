package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4"
)

// CreateMessage creates new message in provided match and returns the stored row
func (s *Store) CreateMessage(ctx context.Context, match, sender int64, body string, now time.Time) (*Message, error) {
	s.logger.Debugf("Creating message from user (id: %d) in match (id: %d)", sender, match)

	var m Message
	sql := `insert into messages (match_id, sender_id, body, edited, created_at)
			values ($1, $2, $3, false, $4)
			returning id, match_id, sender_id, body, edited, created_at`
	err := s.db.QueryRow(ctx, sql, match, sender, body, now).
		Scan(&m.ID, &m.MatchID, &m.SenderID, &m.Body, &m.Edited, &m.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.ForeignKeyViolation {
				return nil, ErrMatchNotFound
			}
		}
		return nil, err
	}

	return &m, nil
}

// MessagesSince returns all match messages created at or after since,
// sorted by creation time (from earliest to latest)
func (s *Store) MessagesSince(ctx context.Context, match int64, since time.Time) ([]Message, error) {
	s.logger.Debugf("Retrieving messages for match (id: %d)", match)

	sql := `select id, match_id, sender_id, body, edited, created_at
			  from messages
			 where match_id = $1 and created_at >= $2
			 order by created_at asc`

	rows, err := s.db.Query(ctx, sql, match, since)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		err = rows.Scan(&m.ID, &m.MatchID, &m.SenderID, &m.Body, &m.Edited, &m.CreatedAt)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	s.logger.Debugf("Retrieved %d messages", len(messages))

	return messages, nil
}

// MessageByID returns the message with provided id scoped to match
func (s *Store) MessageByID(ctx context.Context, match, message int64) (*Message, error) {
	var m Message
	sql := `select id, match_id, sender_id, body, edited, created_at
			  from messages
			 where id = $1 and match_id = $2`
	err := s.db.QueryRow(ctx, sql, message, match).
		Scan(&m.ID, &m.MatchID, &m.SenderID, &m.Body, &m.Edited, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}

	return &m, nil
}

// UpdateMessageBody rewrites the message body and marks it edited. The update
// is conditioned on sender owning the message; zero affected rows means the
// row is missing or belongs to someone else.
func (s *Store) UpdateMessageBody(ctx context.Context, match, message, sender int64, body string) (*Message, error) {
	s.logger.Debugf("Updating message (id: %d) in match (id: %d)", message, match)

	var m Message
	sql := `update messages set body = $1, edited = true
			 where id = $2 and match_id = $3 and sender_id = $4
			returning id, match_id, sender_id, body, edited, created_at`
	err := s.db.QueryRow(ctx, sql, body, message, match, sender).
		Scan(&m.ID, &m.MatchID, &m.SenderID, &m.Body, &m.Edited, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}

	return &m, nil
}

// DeleteMessage hard-deletes the message if it is owned by sender.
// Reports whether a row was actually removed.
func (s *Store) DeleteMessage(ctx context.Context, match, message, sender int64) (bool, error) {
	s.logger.Debugf("Deleting message (id: %d) in match (id: %d)", message, match)

	sql := "delete from messages where id = $1 and match_id = $2 and sender_id = $3"
	tag, err := s.db.Exec(ctx, sql, message, match, sender)
	if err != nil {
		return false, err
	}

	return tag.RowsAffected() == 1, nil
}
