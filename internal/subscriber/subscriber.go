package subscriber

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"siteRelay/internal/metrics"
	"siteRelay/internal/model"
	"siteRelay/internal/storage"
)

// State describes the subscription lifecycle.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
	StateRecovering
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateRecovering:
		return "recovering"
	default:
		return "unknown"
	}
}

// LogSource opens live log subscriptions. *chain.Client implements it.
type LogSource interface {
	SubscribeLogs(ctx context.Context, query ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
}

// Config holds runtime settings for the subscriber.
type Config struct {
	Contract     common.Address
	RecoverDelay time.Duration
}

// Subscriber maintains a live subscription to the registry contract's
// WebsitePublished stream and persists each event. It has no terminal
// state: on any failure it waits RecoverDelay and reconnects, forever.
type Subscriber struct {
	cfg     Config
	source  LogSource
	store   storage.EventStore
	journal *storage.Journal
	decoder *EventDecoder
	logger  *zap.Logger

	state atomic.Int32

	// injectable for tests
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// New builds a Subscriber with its dependencies. journal may be nil.
func New(cfg Config, source LogSource, store storage.EventStore, journal *storage.Journal, logger *zap.Logger) (*Subscriber, error) {
	if source == nil {
		return nil, fmt.Errorf("log source is nil")
	}
	if store == nil {
		return nil, fmt.Errorf("event store is nil")
	}
	if cfg.RecoverDelay <= 0 {
		cfg.RecoverDelay = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	decoder, err := NewEventDecoder()
	if err != nil {
		return nil, fmt.Errorf("build decoder: %w", err)
	}

	return &Subscriber{
		cfg:     cfg,
		source:  source,
		store:   store,
		journal: journal,
		decoder: decoder,
		logger:  logger,
		sleep:   sleepContext,
		now:     time.Now,
	}, nil
}

// State returns the current lifecycle state.
func (s *Subscriber) State() State {
	return State(s.state.Load())
}

// Connected reports whether the node link is live.
func (s *Subscriber) Connected() bool {
	return s.State() == StateSubscribed
}

func (s *Subscriber) setState(state State) {
	s.state.Store(int32(state))
}

// Run drives the subscription until ctx is canceled. Errors from the
// node or the store never escape as a permanent failure; every loss is
// followed by a fixed delay and a fresh subscription attempt.
func (s *Subscriber) Run(ctx context.Context) error {
	for {
		s.setState(StateConnecting)
		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			s.setState(StateDisconnected)
			return ctx.Err()
		}

		s.logger.Warn("subscription lost",
			zap.Error(err),
			zap.Duration("recover_delay", s.cfg.RecoverDelay),
		)
		metrics.SubscriptionRestarts.Inc()

		s.setState(StateRecovering)
		if err := s.sleep(ctx, s.cfg.RecoverDelay); err != nil {
			s.setState(StateDisconnected)
			return err
		}
	}
}

// runOnce opens one subscription and consumes it until it fails.
func (s *Subscriber) runOnce(ctx context.Context) error {
	logs := make(chan types.Log, 64)
	query := ethereum.FilterQuery{
		Addresses: []common.Address{s.cfg.Contract},
		Topics:    [][]common.Hash{{s.decoder.Topic()}},
	}

	sub, err := s.source.SubscribeLogs(ctx, query, logs)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	s.setState(StateSubscribed)
	s.logger.Info("subscribed",
		zap.String("contract", s.cfg.Contract.Hex()),
		zap.String("topic0", s.decoder.Topic().Hex()),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			if err == nil {
				return fmt.Errorf("subscription closed")
			}
			return fmt.Errorf("subscription error: %w", err)
		case log := <-logs:
			s.handleLog(ctx, log)
		}
	}
}

// handleLog persists one notification. Failures are logged and
// swallowed so the subscription keeps running; the event is lost.
func (s *Subscriber) handleLog(ctx context.Context, log types.Log) {
	observedAt := s.now().UTC()

	if s.journal != nil {
		entry := storage.JournalEntry{
			BlockNumber: log.BlockNumber,
			TxHash:      log.TxHash.Hex(),
			LogIndex:    log.Index,
			Address:     log.Address.Hex(),
			Removed:     log.Removed,
			ObservedAt:  observedAt,
		}
		if err := s.journal.Write(entry); err != nil {
			s.logger.Warn("journal write failed", zap.Error(err))
		}
	}

	if log.Removed {
		// Reorg retraction: surfaced as a signal only, stored records
		// are not corrected.
		s.logger.Warn("log retracted by reorg",
			zap.String("tx_hash", log.TxHash.Hex()),
			zap.Uint64("block_number", log.BlockNumber),
		)
		metrics.ReorgNotices.Inc()
		return
	}

	event, err := s.decoder.Decode(log)
	if err != nil {
		s.logger.Warn("decode failed",
			zap.Error(err),
			zap.String("tx_hash", log.TxHash.Hex()),
		)
		return
	}

	record := model.EventRecord{
		UserAddress: event.User.Hex(),
		PayloadURL:  event.WebsiteURL,
		TxHash:      log.TxHash.Hex(),
		ObservedAt:  observedAt,
	}

	if err := s.store.Append(ctx, record); err != nil {
		s.logger.Error("event dropped, store write failed",
			zap.Error(err),
			zap.String("tx_hash", record.TxHash),
		)
		metrics.EventWritesDropped.Inc()
		return
	}

	metrics.EventsIngested.Inc()
	s.logger.Info("event persisted",
		zap.String("tx_hash", record.TxHash),
		zap.String("user", record.UserAddress),
		zap.Uint64("block_number", log.BlockNumber),
	)
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
