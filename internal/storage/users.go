package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4"
)

// CreateUser creates user and returns its id.
func (s *Store) CreateUser(ctx context.Context, name, handle string) (int64, error) {
	s.logger.Debugf("Creating user (%s)", handle)

	var id int64
	sql := "insert into users (name, handle, created_at) values ($1, $2, $3) returning id"
	err := s.db.QueryRow(ctx, sql, name, handle, time.Now()).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.UniqueViolation {
				return 0, ErrHandleTaken
			}
		}
		return 0, err
	}

	s.logger.Debugf("Created user (%s) with id %d", handle, id)

	return id, nil
}

// UserByID returns the user with provided id
func (s *Store) UserByID(ctx context.Context, user int64) (*User, error) {
	var u User
	sql := "select id, name, handle, created_at from users where id = $1"
	err := s.db.QueryRow(ctx, sql, user).Scan(&u.ID, &u.Name, &u.Handle, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return &u, nil
}
