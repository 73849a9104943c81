package kudos

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
)

// DefaultWatchInterval is how often the feed page refetches.
const DefaultWatchInterval = 5 * time.Second

// Watch polls the feed every interval and calls fn with kudos not seen in
// earlier polls, oldest first. The first poll runs immediately and reports
// the current feed. Watch blocks until ctx ends and returns ctx.Err().
// Polling errors are logged and retried at the next tick; ErrNotLoggedIn
// stops the watch.
func (c *Client) Watch(ctx context.Context, interval time.Duration, fn func([]Kudos)) error {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	if _, err := c.me(); err != nil {
		return err
	}

	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu      sync.Mutex
		seen    = make(map[string]struct{})
		stopErr error
	)
	poll := func() {
		feed, err := c.Feed(ctx, DefaultFeedLimit)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if _, meErr := c.me(); meErr != nil {
				mu.Lock()
				stopErr = meErr
				mu.Unlock()
				cancel()
				return
			}
			c.logger.WithError(err).Warn("feed poll failed")
			return
		}

		mu.Lock()
		fresh := unseen(feed, seen)
		mu.Unlock()
		if len(fresh) > 0 {
			fn(fresh)
		}
	}

	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	if _, err := s.Every(interval).Do(poll); err != nil {
		return err
	}
	s.StartAsync()
	c.logger.WithField("interval", interval).Debug("watching kudos feed")

	<-ctx.Done()
	s.Stop()

	mu.Lock()
	defer mu.Unlock()
	c.logger.WithField("seen", len(seen)).Debug("kudos feed watch stopped")
	if stopErr != nil {
		return stopErr
	}
	return parent.Err()
}

// unseen returns the kudos of feed missing from seen, oldest first. Afterwards
// seen holds exactly the IDs of feed: kudos that scrolled out of the feed
// window are forgotten.
func unseen(feed []Kudos, seen map[string]struct{}) []Kudos {
	var fresh []Kudos
	current := make(map[string]struct{}, len(feed))
	for i := len(feed) - 1; i >= 0; i-- {
		k := feed[i]
		current[k.ID] = struct{}{}
		if _, ok := seen[k.ID]; ok {
			continue
		}
		seen[k.ID] = struct{}{}
		fresh = append(fresh, k)
	}
	for id := range seen {
		if _, ok := current[id]; !ok {
			delete(seen, id)
		}
	}
	return fresh
}
