package sessionkey

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// WALCheckpointer truncates the database write-ahead log after large deletes.
type WALCheckpointer interface {
	CheckpointWAL() error
}

// Purger periodically deletes session keys that expired or were revoked
// longer ago than the retention period.
type Purger struct {
	store           *Store
	checkpointer    WALCheckpointer
	ticker          *time.Ticker
	logger          zerolog.Logger
	stopCh          chan struct{}
	stopOnce        sync.Once
	purgeInterval   time.Duration
	retentionPeriod time.Duration
	onPurge         func(deleted int64)
}

// NewPurger creates a new purger. checkpointer may be nil.
func NewPurger(
	store *Store,
	checkpointer WALCheckpointer,
	purgeInterval time.Duration,
	retentionPeriod time.Duration,
	logger zerolog.Logger,
) *Purger {
	return &Purger{
		store:           store,
		checkpointer:    checkpointer,
		purgeInterval:   purgeInterval,
		retentionPeriod: retentionPeriod,
		logger:          logger.With().Str("component", "session_key_purger").Logger(),
		stopCh:          make(chan struct{}),
	}
}

// OnPurge registers fn to observe each non-empty purge. Call before Start.
func (p *Purger) OnPurge(fn func(deleted int64)) {
	p.onPurge = fn
}

// Start begins the periodic purge process
func (p *Purger) Start(ctx context.Context) error {
	p.logger.Info().
		Dur("purge_interval", p.purgeInterval).
		Dur("retention_period", p.retentionPeriod).
		Msg("starting session key purger")

	// Perform initial purge
	if _, err := p.PurgeOnce(ctx); err != nil {
		p.logger.Error().Err(err).Msg("failed to perform initial purge")
		// Don't fail startup on purge error, just log it
	}

	p.ticker = time.NewTicker(p.purgeInterval)

	go func() {
		defer p.ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				p.logger.Info().Msg("context cancelled, stopping session key purger")
				return
			case <-p.stopCh:
				p.logger.Info().Msg("stop signal received, stopping session key purger")
				return
			case <-p.ticker.C:
				if _, err := p.PurgeOnce(ctx); err != nil {
					p.logger.Error().Err(err).Msg("failed to perform scheduled purge")
				}
			}
		}
	}()

	return nil
}

// Stop gracefully stops the purger
func (p *Purger) Stop() {
	p.stopOnce.Do(func() {
		p.logger.Info().Msg("stopping session key purger")
		close(p.stopCh)
	})
}

// PurgeOnce deletes keys that left the usable state before now - retention.
func (p *Purger) PurgeOnce(ctx context.Context) (int64, error) {
	start := time.Now()
	cutoff := p.store.now().Add(-p.retentionPeriod)

	deleted, err := p.store.Purge(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		p.logger.Info().
			Int64("deleted", deleted).
			Time("cutoff", cutoff).
			Dur("duration", time.Since(start)).
			Msg("session key purge completed")
		if p.onPurge != nil {
			p.onPurge(deleted)
		}
		p.checkpointWAL()
	} else {
		p.logger.Debug().
			Time("cutoff", cutoff).
			Dur("duration", time.Since(start)).
			Msg("session key purge completed - nothing to delete")
	}
	return deleted, nil
}

// checkpointWAL prevents WAL file growth after deletes
func (p *Purger) checkpointWAL() {
	if p.checkpointer == nil {
		return
	}
	if err := p.checkpointer.CheckpointWAL(); err != nil {
		p.logger.Warn().Err(err).Msg("failed to checkpoint WAL")
	}
}
