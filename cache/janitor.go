package cache

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
)

// Sweep removes every expired entry from all backends, along with persistent
// records that no longer decode. It returns the number of entries removed.
func (c *Cache) Sweep(ctx context.Context) int {
	now := c.now()
	removed := 0
	for _, b := range Backends {
		removed += c.stores[b].sweep(ctx, now)
	}
	return removed
}

// Start schedules Sweep every sweep interval. Calling Start on a running
// cache does nothing.
func (c *Cache) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.scheduler != nil {
		return
	}

	s := cron.New()
	spec := fmt.Sprintf("@every %s", c.sweepInterval)
	_, err := s.AddFunc(spec, func() {
		if n := c.Sweep(context.Background()); n > 0 {
			c.log.Debug().Int("removed", n).Msg("cache sweep")
		}
	})
	if err != nil {
		c.log.Error().Err(err).Str("spec", spec).Msg("cache sweep not scheduled")
		return
	}

	s.Start()
	c.scheduler = s
	c.log.Debug().Dur("interval", c.sweepInterval).Msg("cache sweep started")
}

// Stop halts the background sweep. The returned context is done once a
// sweep in progress has finished.
func (c *Cache) Stop() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.scheduler == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}

	ctx := c.scheduler.Stop()
	c.scheduler = nil
	return ctx
}

// Running reports whether the background sweep is scheduled.
func (c *Cache) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scheduler != nil
}
