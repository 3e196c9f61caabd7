package inventory

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/event-ticket-inventory/internal/observability"
	"golang.org/x/sync/errgroup"
)

// ExpirePending fails up to limit Pending bookings whose payment window has
// passed. It is safe to run from several workers at once: a booking that has
// moved on since it was listed is skipped.
func (c *Coordinator) ExpirePending(ctx context.Context, limit int) (int, error) {
	ctx, span := c.startSpan(ctx, "ExpirePending")
	defer span.End()

	if limit <= 0 {
		limit = 100
	}
	stale, err := c.store.ListExpiredPending(ctx, c.now(), limit)
	if err != nil {
		return 0, errors.Wrap(err, "list expired bookings")
	}

	var expired int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.SweepConcurrency)
	for _, b := range stale {
		b := b
		g.Go(func() error {
			_, changed, err := c.failPending(gctx, b.ID, reasonExpired)
			if err != nil {
				c.logger.WithError(err).WithFields(map[string]interface{}{"booking_id": b.ID}).Warn("expire booking failed")
				return nil
			}
			if changed {
				atomic.AddInt64(&expired, 1)
				observability.ExpiredBookings.Inc()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(expired), err
	}
	if expired > 0 {
		c.logger.WithFields(map[string]interface{}{"expired": expired}).Info("expired pending bookings")
	}
	return int(expired), ctx.Err()
}

// RunSweeper calls ExpirePending every interval until ctx is done, draining
// full batches on each tick. It is used when no expiry worker shares the store.
func (c *Coordinator) RunSweeper(ctx context.Context, interval time.Duration, batch int) {
	if batch <= 0 {
		batch = 100
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				n, err := c.ExpirePending(ctx, batch)
				if err != nil {
					if ctx.Err() == nil {
						c.logger.WithError(err).Error("expiry sweep failed")
					}
					break
				}
				if n < batch {
					break
				}
			}
		}
	}
}
