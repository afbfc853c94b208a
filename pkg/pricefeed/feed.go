// Package pricefeed keeps the quote store populated from one or more price sources.
package pricefeed

import (
	"context"
	"time"

	"github.com/Layr-Labs/usdf-signer/pkg/persistence"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

type Feed struct {
	store   persistence.IPriceQuoteStore
	sources []IPriceSource
	logger  *zap.Logger
}

// NewFeed creates a feed. Sources are applied in order, so later sources win for the same token.
func NewFeed(store persistence.IPriceQuoteStore, logger *zap.Logger, sources ...IPriceSource) *Feed {
	return &Feed{
		store:   store,
		sources: sources,
		logger:  logger,
	}
}

// SyncOnce fetches every source and writes valid quotes to the store. It returns the number of
// quotes written. Source failures are aggregated; a store failure aborts the sync.
func (f *Feed) SyncOnce(ctx context.Context) (int, error) {
	var sourceErrs []error
	written := 0

	for _, src := range f.sources {
		quotes, err := src.Fetch(ctx)
		if err != nil {
			f.logger.Sugar().Errorw("Failed to fetch prices", "source", src.Name(), "error", err)
			sourceErrs = append(sourceErrs, errors.Wrapf(err, "source %s", src.Name()))
			continue
		}

		for _, tq := range quotes {
			if tq == nil || tq.Token == "" {
				f.logger.Sugar().Warnw("Skipping quote without token", "source", src.Name())
				continue
			}
			if _, ok := tq.Quote.PriceInt(); !ok {
				f.logger.Sugar().Warnw("Skipping malformed quote", "source", src.Name(), "token", tq.Token)
				continue
			}
			if err := f.store.SavePriceQuote(ctx, tq.Token, tq.Quote); err != nil {
				return written, errors.Wrapf(err, "failed to save quote for %s", tq.Token)
			}
			written++
		}
		f.logger.Sugar().Debugw("Synced prices", "source", src.Name(), "quotes", len(quotes))
	}

	return written, utilerrors.NewAggregate(sourceErrs)
}

// Run syncs immediately and then every interval until ctx is done. A non-positive
// interval performs a single sync.
func (f *Feed) Run(ctx context.Context, interval time.Duration) error {
	if _, err := f.SyncOnce(ctx); err != nil {
		if interval <= 0 {
			return err
		}
		f.logger.Sugar().Errorw("Initial price sync failed", "error", err)
	}
	if interval <= 0 {
		return nil
	}
	f.loop(ctx, interval)
	return nil
}

// Start performs a blocking initial sync and then refreshes in the background.
func (f *Feed) Start(ctx context.Context, interval time.Duration) error {
	n, err := f.SyncOnce(ctx)
	if err != nil {
		return err
	}
	f.logger.Sugar().Infow("Loaded price quotes", "count", n, "refreshInterval", interval)
	if interval > 0 {
		go f.loop(ctx, interval)
	}
	return nil
}

func (f *Feed) loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.logger.Sugar().Infow("Price feed stopped")
			return
		case <-ticker.C:
			if n, err := f.SyncOnce(ctx); err != nil {
				f.logger.Sugar().Errorw("Price refresh failed", "written", n, "error", err)
			}
		}
	}
}
