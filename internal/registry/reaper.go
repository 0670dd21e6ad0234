package registry

import (
	"context"
	"time"
)

// RunReaper loops ReapIdle on the configured interval until ctx is
// done (spec.md §4.2: "invoked periodically"). Callers typically run
// this inside an errgroup alongside the other long-lived background
// tasks (spec.md §5).
func (r *Registry) RunReaper(ctx context.Context) error {
	interval := r.cfg.ReapInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := r.ReapIdle(ctx); n > 0 {
				r.log.Info("reaped idle sessions")
			}
		}
	}
}
