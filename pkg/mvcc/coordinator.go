package mvcc

import (
	"sync"

	"github.com/zhangyunhao116/skipset"
)

// Coordinator is the versioning authority: it assigns write counters
// within the current epoch, tracks which transactions are still in
// flight, and issues the immutable descriptor each write attempt
// operates under. The epoch only advances on Restart, modeling an
// authority failover.
type Coordinator struct {
	// mu serializes counter assignment with the active-set snapshot,
	// so a descriptor's active set is consistent with its counter.
	mu          sync.Mutex
	epoch       uint64
	nextCounter uint64

	// active holds the counters of in-flight transactions. Concurrent
	// readers (conflict waiters, the purger) query it without the lock.
	active *skipset.Uint64Set
}

// NewCoordinator creates a coordinator for the given epoch.
// Counters start at 1; CounterNA (0) is never assigned.
func NewCoordinator(epoch uint64) *Coordinator {
	return &Coordinator{
		epoch:       epoch,
		nextCounter: CounterNA + 1,
		active:      skipset.NewUint64(),
	}
}

// BeginWrite assigns the next counter, marks it in flight and returns
// the descriptor for the write. The descriptor's active set holds the
// other in-flight counters at assignment time; the cleanup watermark
// sits just below the oldest of them (or just below the new counter
// when nothing else is in flight).
func (c *Coordinator) BeginWrite() (Descriptor, error) {
	c.mu.Lock()
	counter := c.nextCounter
	c.nextCounter++
	epoch := c.epoch

	var inFlight []uint64
	c.active.Range(func(v uint64) bool {
		inFlight = append(inFlight, v)
		return true
	})
	c.active.Add(counter)
	c.mu.Unlock()

	watermark := counter - 1
	if len(inFlight) > 0 && inFlight[0] <= watermark {
		// skipset ranges in ascending order, so inFlight[0] is oldest.
		watermark = inFlight[0] - 1
	}

	return NewDescriptor(Version{Epoch: epoch, Counter: counter}, watermark, NewCounterSet(inFlight...))
}

// BeginInitialLoad returns a descriptor for an initial data load,
// which runs with no concurrent transactions.
func (c *Coordinator) BeginInitialLoad() (Descriptor, error) {
	c.mu.Lock()
	counter := c.nextCounter
	c.nextCounter++
	epoch := c.epoch
	c.mu.Unlock()

	return NewInitialLoadDescriptor(Version{Epoch: epoch, Counter: counter})
}

// Finish marks the transaction with the given counter as resolved
// (committed or aborted), removing it from the in-flight set.
func (c *Coordinator) Finish(counter uint64) {
	c.active.Remove(counter)
}

// IsActive reports whether the counter is still in flight.
func (c *Coordinator) IsActive(counter uint64) bool {
	return c.active.Contains(counter)
}

// ActiveCount returns the number of in-flight transactions.
func (c *Coordinator) ActiveCount() int {
	return c.active.Len()
}

// Epoch returns the current coordinator epoch.
func (c *Coordinator) Epoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// Restart advances the epoch and resets the counter space, as happens
// when the versioning authority fails over. In-flight transactions of
// the previous epoch are considered finished.
func (c *Coordinator) Restart() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.nextCounter = CounterNA + 1
	c.active = skipset.NewUint64()
}
