package session

import (
	"context"
	"time"
)

// VisibilityEvent is one foreground/background transition reported by the host.
type VisibilityEvent struct {
	Visible bool
	At      time.Time
}

// Watch feeds visibility losses from events into the controller until ctx
// is done or events is closed. Regaining visibility has no effect.
func (c *Controller) Watch(ctx context.Context, events <-chan VisibilityEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Visible {
				continue
			}
			if _, err := c.OnVisibilityLost(ctx); err != nil {
				c.log.Error().Err(err).Msg("visibility loss not recorded")
			}
		}
	}
}
