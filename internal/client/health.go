package client

import (
	"context"
	"time"
)

// PollHealth probes the backend on a fixed interval and reports each
// result until ctx is cancelled. The first probe fires immediately so the
// UI is not blank for a full interval at startup.
func (c *Client) PollHealth(ctx context.Context, interval time.Duration, report func(up bool)) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	report(c.Health(ctx))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			report(c.Health(ctx))
		case <-ctx.Done():
			return
		}
	}
}
