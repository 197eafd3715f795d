package session

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically removes expired sessions. Expiry is still
// enforced lazily at validation time; the sweep only bounds the table's
// memory footprint and is disabled when interval is zero.
type Sweeper struct {
	Store    Store
	Policy   Policy
	Interval time.Duration
	Logger   *slog.Logger
}

// Run blocks until ctx is done.
func (sw *Sweeper) Run(ctx context.Context) {
	if sw.Interval <= 0 {
		return
	}
	ticker := time.NewTicker(sw.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			sw.sweep(ctx, now.UTC())
		}
	}
}

func (sw *Sweeper) sweep(ctx context.Context, now time.Time) {
	dead, err := sw.Store.ScanExpired(ctx, sw.Policy, now)
	if err != nil {
		sw.Logger.Error("scan expired sessions", "err", err)
		return
	}
	for _, tok := range dead {
		if _, err := sw.Store.Delete(ctx, tok); err != nil {
			sw.Logger.Error("delete expired session", "err", err)
		}
	}
	if len(dead) > 0 {
		sw.Logger.Info("swept expired sessions", "count", len(dead))
	}
}
