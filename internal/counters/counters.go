package counters

import "sync/atomic"

type counterName int

// stats
const (
	// BytesFetched counts every block payload written to disk, including
	// duplicate and overlapping blocks. It is never decremented.
	BytesFetched counterName = iota
	// BytesVerified counts only bytes of pieces that passed the hash check.
	BytesVerified
	BytesUploaded
	// BytesWasted counts bytes of pieces that failed the hash check.
	BytesWasted
)

// Counters provides concurrent-safe access over a set of integers.
type Counters [4]int64

func New(fetched, verified, uploaded, wasted int64) Counters {
	var c Counters
	c.Incr(BytesFetched, fetched)
	c.Incr(BytesVerified, verified)
	c.Incr(BytesUploaded, uploaded)
	c.Incr(BytesWasted, wasted)
	return c
}

func (c *Counters) Incr(name counterName, value int64) {
	atomic.AddInt64(&c[name], value)
}

func (c *Counters) Read(name counterName) int64 {
	return atomic.LoadInt64(&c[name])
}
