package mvcc

import (
	"fmt"

	"github.com/dataignite/ignite/pkg/storage"
)

// Classification is the scanner's verdict on the most recent
// pre-existing value of the key being written.
type Classification uint8

const (
	// PrevAbsent means the key had no prior value: either the chain is
	// empty or the newest row is a tombstone.
	PrevAbsent Classification = iota

	// VersionFound means a row with exactly the writer's version is
	// already present (e.g. a backup replay or retry); the caller must
	// treat the write as a no-op.
	VersionFound

	// PrevPresent means the newest row holds a live prior value.
	PrevPresent
)

func (c Classification) String() string {
	switch c {
	case PrevAbsent:
		return "PREV_ABSENT"
	case VersionFound:
		return "VERSION_FOUND"
	case PrevPresent:
		return "PREV_PRESENT"
	default:
		return "UNKNOWN"
	}
}

// UpdateScan accumulates the outcome of scanning one key's version
// chain for a write at the descriptor's version. The tree cursor must
// deliver rows in strict newest-to-oldest version order; Visit is
// called once per row and always asks to continue, since conflicts and
// cleanup candidates can sit anywhere in the chain.
//
// One UpdateScan serves exactly one write attempt. It is not safe for
// concurrent use; writers to the same key are serialized upstream.
type UpdateScan struct {
	desc Descriptor

	cls    Classification
	clsSet bool

	// canCleanup flips when the first cleanup-eligible row is seen.
	// That row itself is the boundary version and stays: it is still
	// needed to answer a query pinned exactly at the cleanup watermark.
	canCleanup bool

	activeTxs   []uint64
	cleanupRows []storage.RowID

	failed bool
}

// NewUpdateScan creates a scan accumulator for one write attempt under
// the given descriptor.
func NewUpdateScan(desc Descriptor) *UpdateScan {
	return &UpdateScan{desc: desc}
}

// Visit examines one version row of the key, newest first. It returns
// whether the traversal should continue (always true on success) and a
// non-nil error only on a broken invariant, in which case all
// accumulated state is discarded.
func (s *UpdateScan) Visit(tag RowTag, id storage.RowID) (bool, error) {
	// The version authority only moves forward, so no row may carry a
	// version newer than the descriptor's. Equal is allowed: a backup
	// replay re-applies the same version.
	cmp := s.desc.Version().Compare(tag.Version)
	if cmp < 0 {
		s.fail()
		return false, fmt.Errorf("%w: row %s, descriptor %s", ErrConsistency, tag.Version, s.desc.Version())
	}
	// A row without an assigned counter can never have committed and
	// must not exist in the chain.
	if tag.Counter == CounterNA {
		s.fail()
		return false, fmt.Errorf("%w: row %s has unassigned counter", ErrConsistency, tag.Version)
	}

	// Classification happens once, on the newest row.
	if !s.clsSet {
		s.clsSet = true
		switch {
		case cmp == 0:
			s.cls = VersionFound
		case tag.Tombstone:
			s.cls = PrevAbsent
		default:
			s.cls = PrevPresent
		}
	}

	// Conflict detection runs on every row: a row written by a
	// transaction still in flight at snapshot time blocks the writer.
	// Transactions from previous epochs are assumed finished.
	txActive := false
	if s.desc.Active().Len() > 0 &&
		tag.Epoch == s.desc.Epoch() &&
		s.desc.Active().Contains(tag.Counter) {
		txActive = true
		s.activeTxs = append(s.activeTxs, tag.Counter)
	}

	// Cleanup eligibility is only evaluated for rows not written by an
	// in-flight transaction. Rows from strictly older epochs are
	// always eligible; same-epoch rows only at or below the watermark.
	if !txActive {
		eligible := tag.Epoch < s.desc.Epoch() ||
			tag.Counter <= s.desc.CleanupWatermark()
		if eligible {
			if s.canCleanup {
				s.cleanupRows = append(s.cleanupRows, id)
			} else {
				s.canCleanup = true
			}
		}
	}

	return true, nil
}

func (s *UpdateScan) fail() {
	s.failed = true
	s.clsSet = false
	s.cls = PrevAbsent
	s.canCleanup = false
	s.activeTxs = nil
	s.cleanupRows = nil
}

// Classification returns the verdict on the previous value. It
// defaults to PrevAbsent when the key had no version rows at all.
func (s *UpdateScan) Classification() Classification {
	return s.cls
}

// ActiveTxs returns the counters of conflicting in-flight
// transactions, in visit (newest-to-oldest) order. A non-empty result
// means the caller must wait for those transactions or abort; the
// policy is the caller's.
func (s *UpdateScan) ActiveTxs() []uint64 {
	return s.activeTxs
}

// HasConflicts reports whether any conflicting transaction was found.
func (s *UpdateScan) HasConflicts() bool {
	return len(s.activeTxs) > 0
}

// CleanupRows returns the rows that are safe to physically remove, in
// visit order. The newest eligible row (the boundary version) is never
// included. The scanner itself removes nothing; purging re-validates
// eligibility under its own concurrency control.
func (s *UpdateScan) CleanupRows() []storage.RowID {
	return s.cleanupRows
}

// Failed reports whether the scan hit a consistency fault. A failed
// scan carries no usable accumulator state.
func (s *UpdateScan) Failed() bool {
	return s.failed
}
