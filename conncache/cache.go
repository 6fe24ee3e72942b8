// Package conncache keeps one live connection per authority.
package conncache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("connection cache closed")

type Conn interface {
	Alive() bool
	Close() error
}

type DialFunc[C Conn] func(ctx context.Context, authority string) (C, error)

// Cache maps authorities to connections. A cached connection that is no
// longer alive is replaced on the next Get; it is not closed by the cache, it
// closes itself once its streams are done.
type Cache[C Conn] struct {
	dial   DialFunc[C]
	log    *zap.Logger
	conns  sync.Map // authority -> C
	closed atomic.Bool
	mu     sync.RWMutex
}

func New[C Conn](dial DialFunc[C], log *zap.Logger) *Cache[C] {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache[C]{dial: dial, log: log.Named("conncache")}
}

// Get returns a live connection to authority, dialing one if needed.
// Concurrent callers may dial at the same time; only one connection wins and
// the others are closed.
func (c *Cache[C]) Get(ctx context.Context, authority string) (C, error) {
	var zero C
	for {
		if c.closed.Load() {
			return zero, ErrClosed
		}
		cur, ok := c.conns.Load(authority)
		if ok && cur.(C).Alive() {
			return cur.(C), nil
		}

		conn, err := c.dial(ctx, authority)
		if err != nil {
			return zero, err
		}

		if c.store(authority, cur, ok, conn) {
			c.log.Info("connection cached", zap.String("authority", authority))
			return conn, nil
		}
		if err := conn.Close(); err != nil {
			c.log.Debug("closing surplus connection", zap.String("authority", authority), zap.Error(err))
		}
	}
}

// store publishes conn unless another goroutine got there first. The read
// lock keeps Close from missing a connection stored concurrently.
func (c *Cache[C]) store(authority string, old any, hadOld bool, conn C) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed.Load() {
		return false
	}
	if !hadOld {
		_, loaded := c.conns.LoadOrStore(authority, conn)
		return !loaded
	}
	return c.conns.CompareAndSwap(authority, old, conn)
}

// Evict drops conn if it is still the one cached for authority.
func (c *Cache[C]) Evict(authority string, conn C) bool {
	return c.conns.CompareAndDelete(authority, conn)
}

func (c *Cache[C]) Len() int {
	n := 0
	c.conns.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}

// Close closes every cached connection. Get fails with ErrClosed afterwards.
func (c *Cache[C]) Close() error {
	c.mu.Lock()
	already := c.closed.Swap(true)
	c.mu.Unlock()
	if already {
		return nil
	}

	var err error
	c.conns.Range(func(k, v any) bool {
		c.conns.Delete(k)
		err = multierr.Append(err, v.(C).Close())
		return true
	})
	return err
}
