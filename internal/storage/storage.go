package storage

import (
	"context"
	"errors"

	"siteRelay/internal/model"
)

// ErrUnavailable indicates the store connection is down.
var ErrUnavailable = errors.New("event store unavailable")

// ErrWriteFailed indicates the store rejected a write.
var ErrWriteFailed = errors.New("event store write failed")

// EventStore persists event records and serves lookups by transaction
// hash. A record becomes visible to FindByTxHash only after Append
// returns nil.
type EventStore interface {
	// Append persists one record. Fails with ErrUnavailable when the
	// connection is down, ErrWriteFailed otherwise.
	Append(ctx context.Context, record model.EventRecord) error

	// FindByTxHash returns the most relevant record for the hash, or
	// nil when none exists. With duplicate hashes any one record may
	// be returned.
	FindByTxHash(ctx context.Context, txHash string) (*model.EventRecord, error)

	// Connected reports whether the store is reachable.
	Connected(ctx context.Context) bool
}
