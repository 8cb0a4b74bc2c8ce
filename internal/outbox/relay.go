package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/cimillas/storefront/internal/domain"
	"go.uber.org/zap"
)

type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Store interface {
	FetchPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error)
	MarkSent(ctx context.Context, id int64) error
}

type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte, eventID string) error
}

type Metrics interface {
	OutboxPublished(n int)
}

type Config struct {
	PollInterval time.Duration
	BatchSize    int
}

// Relay moves recorded events from the outbox table to the broker. Delivery
// is at least once: an event is marked sent only after the broker accepts it.
type Relay struct {
	tx      Transactor
	store   Store
	pub     Publisher
	cfg     Config
	logger  *zap.Logger
	metrics Metrics
}

func NewRelay(tx Transactor, store Store, pub Publisher, cfg Config, logger *zap.Logger, metrics Metrics) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		tx:      tx,
		store:   store,
		pub:     pub,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
	}
}

// Run flushes the outbox every poll interval until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	r.logger.Info("outbox relay started",
		zap.Duration("poll_interval", r.cfg.PollInterval),
		zap.Int("batch_size", r.cfg.BatchSize),
	)
	for {
		for {
			n, err := r.Flush(ctx)
			if err != nil {
				if ctx.Err() != nil {
					break
				}
				r.logger.Warn("outbox flush failed", zap.Int("published", n), zap.Error(err))
				break
			}
			if n < r.cfg.BatchSize {
				break
			}
		}

		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Flush publishes one batch of pending events and returns how many were
// delivered. Rows locked by another relay are skipped. Events published before
// a failure stay marked as sent.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	var published int
	var pubErr error
	err := r.tx.WithTx(ctx, func(txCtx context.Context) error {
		events, err := r.store.FetchPending(txCtx, r.cfg.BatchSize)
		if err != nil {
			return err
		}
		for _, ev := range events {
			if err := r.pub.Publish(txCtx, ev.Topic, ev.Key, ev.Payload, ev.EventID.String()); err != nil {
				pubErr = fmt.Errorf("publish event %s: %w", ev.EventID, err)
				return nil
			}
			if err := r.store.MarkSent(txCtx, ev.ID); err != nil {
				return err
			}
			published++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if published > 0 {
		if r.metrics != nil {
			r.metrics.OutboxPublished(published)
		}
		r.logger.Debug("outbox events published", zap.Int("count", published))
	}
	return published, pubErr
}
