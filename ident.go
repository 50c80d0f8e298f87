package clob

import (
	"sync/atomic"
	"time"

	"github.com/rs/xid"
)

// IDGenerator produces unique order and trade identifiers.
type IDGenerator interface {
	NewOrderID() string
	NewTradeID() string
}

// xidGenerator is the default IDGenerator backed by rs/xid.
type xidGenerator struct{}

func (xidGenerator) NewOrderID() string { return xid.New().String() }
func (xidGenerator) NewTradeID() string { return xid.New().String() }

// NewXIDGenerator returns the default xid-backed IDGenerator.
func NewXIDGenerator() IDGenerator { return xidGenerator{} }

// Clock produces arrival and execution timestamps. Stamps are opaque to
// callers; only < comparisons are meaningful. Implementations must be
// strictly monotonic: two calls never return the same value.
type Clock interface {
	Now() int64
}

// monotonicClock is a wall-clock-seeded atomic counter. When the wall clock
// stalls or steps backwards it keeps ticking by one, so distinct orders never
// tie on arrival time.
type monotonicClock struct {
	last atomic.Int64
}

// NewMonotonicClock returns the default strictly monotonic Clock.
func NewMonotonicClock() Clock {
	c := &monotonicClock{}
	c.last.Store(time.Now().UnixNano())
	return c
}

func (c *monotonicClock) Now() int64 {
	for {
		now := time.Now().UnixNano()
		last := c.last.Load()
		if now <= last {
			now = last + 1
		}
		if c.last.CompareAndSwap(last, now) {
			return now
		}
	}
}
