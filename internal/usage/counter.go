// Package usage tracks how many primary-key recognitions succeeded per UTC day.
package usage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/at-ishikawa/wordbroker/internal/kv"
)

const (
	DefaultPrefix = "usage"
	DefaultTTL    = 48 * time.Hour
)

// Counter is advisory: concurrent requests may overshoot the ceiling slightly.
type Counter struct {
	store  kv.Store
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

func NewCounter(store kv.Store, prefix string, ttl time.Duration) *Counter {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Counter{
		store:  store,
		prefix: prefix,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (c *Counter) Key(t time.Time) string {
	return c.prefix + "/" + t.UTC().Format(time.DateOnly)
}

func (c *Counter) Today(ctx context.Context) (int64, error) {
	key := c.Key(c.now())
	value, found, err := c.store.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("store.Get(%s) > %w", key, err)
	}
	if !found {
		return 0, nil
	}
	count, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("strconv.ParseInt(%s) > %w", value, err)
	}
	return count, nil
}

func (c *Counter) Increment(ctx context.Context) error {
	key := c.Key(c.now())
	if _, err := c.store.Incr(ctx, key, c.ttl); err != nil {
		return fmt.Errorf("store.Incr(%s) > %w", key, err)
	}
	return nil
}
