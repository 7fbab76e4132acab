package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"siteRelay/internal/model"
	"siteRelay/internal/storage"
)

// Store provides Postgres persistence for event records.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// CreateSchema creates the events table if it does not exist.
func (s *Store) CreateSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS website_events (
			id bigserial PRIMARY KEY,
			user_address text NOT NULL,
			payload_url text NOT NULL,
			tx_hash text NOT NULL,
			observed_at timestamptz NOT NULL,
			persisted_at timestamptz NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("create website_events: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS website_events_tx_hash_idx ON website_events (tx_hash)
	`)
	if err != nil {
		return fmt.Errorf("create tx_hash index: %w", err)
	}
	return nil
}

// Append inserts one event record.
func (s *Store) Append(ctx context.Context, record model.EventRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO website_events (user_address, payload_url, tx_hash, observed_at)
		VALUES ($1, $2, $3, $4)
	`,
		record.UserAddress,
		record.PayloadURL,
		record.TxHash,
		record.ObservedAt,
	)
	if err == nil {
		return nil
	}

	// A PgError means the server answered and rejected the write;
	// anything else is a connectivity problem.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%w: %s", storage.ErrWriteFailed, pgErr.Message)
	}
	return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
}

// FindByTxHash returns the newest record for the hash, or nil.
func (s *Store) FindByTxHash(ctx context.Context, txHash string) (*model.EventRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT user_address, payload_url, tx_hash, observed_at, persisted_at
		FROM website_events
		WHERE tx_hash = $1
		ORDER BY persisted_at DESC
		LIMIT 1
	`, txHash)

	var record model.EventRecord
	if err := row.Scan(
		&record.UserAddress,
		&record.PayloadURL,
		&record.TxHash,
		&record.ObservedAt,
		&record.PersistedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query event: %w", err)
	}

	return &record, nil
}

// Connected reports whether the database answers a ping.
func (s *Store) Connected(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.pool.Ping(pingCtx) == nil
}
