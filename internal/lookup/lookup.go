package lookup

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"siteRelay/internal/model"
)

// Finder is the store-side query the service polls.
type Finder interface {
	FindByTxHash(ctx context.Context, txHash string) (*model.EventRecord, error)
}

// Config holds the polling policy. It is fixed service-wide, not
// parameterized per request.
type Config struct {
	MaxAttempts int
	Interval    time.Duration
}

// DefaultConfig is the 30-attempt, 1-second policy: a 30-second
// ceiling on every lookup.
func DefaultConfig() Config {
	return Config{MaxAttempts: 30, Interval: time.Second}
}

// Result is a resolved lookup.
type Result struct {
	URL        string
	Attempts   int
	Elapsed    time.Duration
	ObservedAt time.Time
}

// NotFoundError reports deadline exhaustion without a match.
type NotFoundError struct {
	TxHash   string
	Attempts int
	Elapsed  time.Duration
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no event for transaction %s after %d attempts (%s)", e.TxHash, e.Attempts, e.Elapsed)
}

// Service correlates a transaction hash with its event record by
// polling the store on a fixed cadence. Each call is independent:
// concurrent lookups, even for the same hash, run their own loops.
type Service struct {
	store  Finder
	cfg    Config
	logger *zap.Logger

	// injectable for tests
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewService builds a Service. A zero cfg falls back to DefaultConfig.
func NewService(store Finder, cfg Config, logger *zap.Logger) *Service {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  store,
		cfg:    cfg,
		logger: logger,
		sleep:  sleepContext,
		now:    time.Now,
	}
}

// Await polls the store until a record for txHash appears or the
// attempt budget is spent. Queries are strictly sequential; the
// interval is waited only between attempts, so exhaustion makes
// exactly MaxAttempts queries over (MaxAttempts-1) intervals.
func (s *Service) Await(ctx context.Context, txHash string) (*Result, error) {
	logger := s.logger.With(
		zap.String("lookup_id", uuid.NewString()),
		zap.String("tx_hash", txHash),
	)
	start := s.now()

	for attempt := 1; ; attempt++ {
		record, err := s.store.FindByTxHash(ctx, txHash)
		if err != nil {
			logger.Error("store query failed", zap.Int("attempt", attempt), zap.Error(err))
			return nil, fmt.Errorf("query event store: %w", err)
		}

		if record != nil {
			elapsed := s.now().Sub(start)
			logger.Info("lookup resolved",
				zap.Int("attempts", attempt),
				zap.Duration("elapsed", elapsed),
			)
			return &Result{
				URL:        record.PayloadURL,
				Attempts:   attempt,
				Elapsed:    elapsed,
				ObservedAt: record.ObservedAt,
			}, nil
		}

		if attempt >= s.cfg.MaxAttempts {
			elapsed := s.now().Sub(start)
			logger.Info("lookup exhausted",
				zap.Int("attempts", attempt),
				zap.Duration("elapsed", elapsed),
			)
			return nil, &NotFoundError{TxHash: txHash, Attempts: attempt, Elapsed: elapsed}
		}

		if err := s.sleep(ctx, s.cfg.Interval); err != nil {
			return nil, err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
