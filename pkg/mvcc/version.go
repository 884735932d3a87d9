// Package mvcc implements multi-version concurrency control for the
// ignite storage engine. Each logical key keeps multiple physical row
// versions in the tree, tagged with (epoch, counter). This package
// provides the version descriptor handed out per write attempt, the
// row-tag codec, the update scanner that classifies a write, detects
// conflicts against in-flight transactions and selects rows safe to
// purge, and the coordinator that issues descriptors.
package mvcc

import (
	"fmt"
	"sort"
)

// CounterNA marks an MVCC counter that was never assigned. The
// coordinator hands out counters starting at 1.
const CounterNA uint64 = 0

// Version identifies one write: the coordinator epoch it happened
// under and the strictly increasing counter within that epoch. The
// epoch only moves forward when the versioning authority restarts or
// fails over.
type Version struct {
	Epoch   uint64
	Counter uint64
}

// Compare orders versions lexicographically, epoch first.
// Returns -1 if v < o, 0 if equal, 1 if v > o.
func (v Version) Compare(o Version) int {
	switch {
	case v.Epoch < o.Epoch:
		return -1
	case v.Epoch > o.Epoch:
		return 1
	case v.Counter < o.Counter:
		return -1
	case v.Counter > o.Counter:
		return 1
	default:
		return 0
	}
}

func (v Version) String() string {
	return fmt.Sprintf("%d:%d", v.Epoch, v.Counter)
}

// CounterSet is an immutable, sorted set of transaction counters.
// It is built once per snapshot and only queried afterwards.
type CounterSet struct {
	counters []uint64
}

// NewCounterSet copies, sorts and deduplicates the given counters.
func NewCounterSet(counters ...uint64) CounterSet {
	if len(counters) == 0 {
		return CounterSet{}
	}
	cs := make([]uint64, len(counters))
	copy(cs, counters)
	sort.Slice(cs, func(i, j int) bool { return cs[i] < cs[j] })

	// Deduplicate in place.
	out := cs[:1]
	for _, c := range cs[1:] {
		if c != out[len(out)-1] {
			out = append(out, c)
		}
	}
	return CounterSet{counters: out}
}

// Contains reports whether c is in the set.
func (s CounterSet) Contains(c uint64) bool {
	i := sort.Search(len(s.counters), func(i int) bool { return s.counters[i] >= c })
	return i < len(s.counters) && s.counters[i] == c
}

// Len returns the number of counters in the set.
func (s CounterSet) Len() int {
	return len(s.counters)
}

// Min returns the smallest counter in the set; ok is false when empty.
func (s CounterSet) Min() (min uint64, ok bool) {
	if len(s.counters) == 0 {
		return 0, false
	}
	return s.counters[0], true
}

// Values returns a copy of the counters in ascending order.
func (s CounterSet) Values() []uint64 {
	if len(s.counters) == 0 {
		return nil
	}
	out := make([]uint64, len(s.counters))
	copy(out, s.counters)
	return out
}

// Descriptor is the immutable point-in-time snapshot a writer operates
// under: its own version, the cleanup watermark (committed versions in
// the same epoch with counter <= watermark are unreachable by any
// current or future snapshot) and the counters of transactions that
// were still in flight when the snapshot was taken.
type Descriptor struct {
	ver         Version
	cleanup     uint64
	active      CounterSet
	initialLoad bool
}

// NewDescriptor builds a descriptor and validates its invariants:
// the watermark may not exceed the counter, and no active counter may
// exceed the counter.
func NewDescriptor(ver Version, cleanupWatermark uint64, active CounterSet) (Descriptor, error) {
	if ver.Counter == CounterNA {
		return Descriptor{}, fmt.Errorf("%w: counter not assigned", ErrInvalidDescriptor)
	}
	if cleanupWatermark > ver.Counter {
		return Descriptor{}, fmt.Errorf("%w: cleanup watermark %d > counter %d",
			ErrInvalidDescriptor, cleanupWatermark, ver.Counter)
	}
	if n := len(active.counters); n > 0 && active.counters[n-1] > ver.Counter {
		return Descriptor{}, fmt.Errorf("%w: active counter %d > counter %d",
			ErrInvalidDescriptor, active.counters[n-1], ver.Counter)
	}
	return Descriptor{ver: ver, cleanup: cleanupWatermark, active: active}, nil
}

// NewInitialLoadDescriptor builds a descriptor flagged as belonging to
// an initial data load, where no concurrent transactions can exist.
func NewInitialLoadDescriptor(ver Version) (Descriptor, error) {
	d, err := NewDescriptor(ver, 0, CounterSet{})
	if err != nil {
		return Descriptor{}, err
	}
	d.initialLoad = true
	return d, nil
}

// Version returns the descriptor's own (epoch, counter) pair.
func (d Descriptor) Version() Version { return d.ver }

// Epoch returns the coordinator epoch.
func (d Descriptor) Epoch() uint64 { return d.ver.Epoch }

// Counter returns the write's counter within the epoch.
func (d Descriptor) Counter() uint64 { return d.ver.Counter }

// CleanupWatermark returns the counter below or at which committed
// versions of the same epoch are safe to remove.
func (d Descriptor) CleanupWatermark() uint64 { return d.cleanup }

// Active returns the set of in-flight transaction counters.
func (d Descriptor) Active() CounterSet { return d.active }

// InitialLoad reports whether this descriptor is for an initial load.
func (d Descriptor) InitialLoad() bool { return d.initialLoad }

func (d Descriptor) String() string {
	return fmt.Sprintf("desc[ver=%s cleanup=%d active=%d]", d.ver, d.cleanup, d.active.Len())
}
