package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"

	"campus-ranked/internal/storage/zapadapter"
)

var (
	ErrUserNotFound    = errors.New("user does not exist")
	ErrHandleTaken     = errors.New("handle already taken")
	ErrMatchNotFound   = errors.New("match not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrBadParticipants = errors.New("bad participant ids")
)

// Store defines fields used in db interaction processes
type Store struct {
	logger *zap.SugaredLogger
	db     *pgxpool.Pool
}

// New sets provided zap.Logger via zapadapter to pgxpool.Pool and returns instance of Store struct
func New(logger *zap.SugaredLogger, cfg Config, opts ...Option) (*Store, error) {
	config, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, err
	}
	config.ConnConfig.Logger = zapadapter.NewLogger(logger.Desugar())

	for _, opt := range opts {
		opt.apply(config)
	}

	pool, err := pgxpool.ConnectConfig(context.Background(), config)
	if err != nil {
		return nil, err
	}

	return &Store{
		logger: logger,
		db:     pool,
	}, nil
}

// Close releases all pooled connections
func (s *Store) Close() {
	s.db.Close()
}
