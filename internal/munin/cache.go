package munin

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/user/monitoring/internal/util"
)

// DefaultTTL is how long a parsed datafile is served before it is re-read.
const DefaultTTL = 15 * time.Second

// Opener opens the datafile.
type Opener func() (io.ReadCloser, error)

// Cache serves the parsed datafile and re-reads it once the TTL expired.
type Cache struct {
	ttl  time.Duration
	now  func() time.Time
	open Opener
	log  *util.Logger

	mu     sync.Mutex
	stats  *Stats
	loaded time.Time

	group singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithOpener replaces how the datafile is opened.
func WithOpener(open Opener) Option {
	return func(c *Cache) { c.open = open }
}

// WithTTL sets how long parsed stats stay valid.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithLogger sets the logger for parse warnings.
func WithLogger(log *util.Logger) Option {
	return func(c *Cache) { c.log = log.Named("munin") }
}

// NewCache creates a cache over the datafile at path.
func NewCache(path string, opts ...Option) *Cache {
	c := &Cache{
		ttl: DefaultTTL,
		now: time.Now,
		open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
		log: util.GetLogger().Named("munin"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the parsed datafile, reading it when nothing is cached or the
// cached copy is at least TTL old. Concurrent refreshes share one read.
func (c *Cache) Get(ctx context.Context) (*Stats, error) {
	if s := c.fresh(); s != nil {
		return s, nil
	}

	ch := c.group.DoChan("stats", func() (interface{}, error) {
		if s := c.fresh(); s != nil {
			return s, nil
		}
		return c.refresh()
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Stats), nil
	}
}

// Invalidate drops the cached copy.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.stats = nil
	c.mu.Unlock()
}

func (c *Cache) fresh() *Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stats != nil && c.now().Sub(c.loaded) < c.ttl {
		return c.stats
	}
	return nil
}

func (c *Cache) refresh() (*Stats, error) {
	f, err := c.open()
	if err != nil {
		return nil, errors.Wrap(err, "failed to open munin datafile")
	}
	defer f.Close()

	stats, err := Parse(f, c.log)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.stats = stats
	c.loaded = c.now()
	c.mu.Unlock()
	return stats, nil
}
