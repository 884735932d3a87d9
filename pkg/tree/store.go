// Package tree provides the multi-version row index of the engine: an
// ordered store of (key, version) rows that delivers each key's
// version chain to the mvcc update scanner in newest-to-oldest order,
// applies classified writes, and physically purges rows selected for
// cleanup after re-validating their eligibility.
package tree

import (
	"bytes"
	"errors"
	"sync"

	"github.com/tidwall/btree"

	"github.com/dataignite/ignite/pkg/mvcc"
	"github.com/dataignite/ignite/pkg/storage"
)

// ErrConflict is returned by Update when the chain holds rows written
// by transactions still in flight. The write is not applied; waiting
// or aborting is the caller's policy.
var ErrConflict = errors.New("tree: write conflicts with active transactions")

// rowEntry is one physical row version in the index.
type rowEntry struct {
	key []byte
	tag mvcc.RowTag
	id  storage.RowID
	val []byte
}

// entryLess orders rows by key, then by version descending, so an
// ascending scan within one key walks the chain newest to oldest --
// the order the update scanner depends on.
func entryLess(a, b rowEntry) bool {
	if c := bytes.Compare(a.key, b.key); c != 0 {
		return c < 0
	}
	return a.tag.Version.Compare(b.tag.Version) > 0
}

// slotsPerPage fixes how synthetic row IDs map onto (page, slot).
// Page 0 is the meta page, so data rows start at page 1.
const slotsPerPage = 64

// Store is the version-chain index. Writers to the same key are
// serialized by the store's lock; the scanner itself holds no state
// across calls.
type Store struct {
	mu      sync.RWMutex
	bt      *btree.BTreeG[rowEntry]
	nextRow uint64
}

// NewStore creates an empty version-chain store.
func NewStore() *Store {
	return &Store{
		bt: btree.NewBTreeG(entryLess),
	}
}

func (s *Store) allocRowID() storage.RowID {
	n := s.nextRow
	s.nextRow++
	return storage.RowID{
		Page: 1 + uint32(n/slotsPerPage),
		Slot: uint16(n % slotsPerPage),
	}
}

// chainPivot sorts before every real row of key, so Ascend starts at
// the key's newest version.
func chainPivot(key []byte) rowEntry {
	return rowEntry{
		key: key,
		tag: mvcc.RowTag{Version: mvcc.Version{Epoch: ^uint64(0), Counter: ^uint64(0)}},
	}
}

// forEachLocked walks the key's version chain newest to oldest.
// Callers hold s.mu.
func (s *Store) forEachLocked(key []byte, visit func(e rowEntry) (bool, error)) error {
	var err error
	s.bt.Ascend(chainPivot(key), func(e rowEntry) bool {
		if !bytes.Equal(e.key, key) {
			return false
		}
		var cont bool
		cont, err = visit(e)
		return err == nil && cont
	})
	return err
}

// ForEachVersionRow delivers the key's version rows to the visitor in
// strict newest-to-oldest order, stopping early when the visitor
// returns false.
func (s *Store) ForEachVersionRow(key []byte, visit func(tag mvcc.RowTag, id storage.RowID) (bool, error)) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.forEachLocked(key, func(e rowEntry) (bool, error) {
		return visit(e.tag, e.id)
	})
}

// UpdateResult carries the three outputs of a write attempt's chain
// scan, plus the ID of the inserted row when one was written.
type UpdateResult struct {
	Classification mvcc.Classification

	// ActiveTxs lists conflicting in-flight counters; non-empty means
	// the write was not applied.
	ActiveTxs []uint64

	// CleanupRows lists rows now safe to purge; hand them to Purge.
	CleanupRows []storage.RowID

	// RowID identifies the newly written row. Zero when the write was
	// a no-op (VersionFound) or was blocked by conflicts.
	RowID storage.RowID
}

// Update writes a new version of key at the descriptor's version. The
// existing chain is scanned once to classify the write, detect
// conflicts and select purgeable rows. On conflicts the write is not
// applied and ErrConflict is returned alongside the scan result; on a
// VersionFound classification the write is a no-op.
func (s *Store) Update(key, val []byte, desc mvcc.Descriptor) (*UpdateResult, error) {
	return s.apply(key, val, false, desc)
}

// Delete writes a tombstone version of key at the descriptor's
// version. Deletions move through the same scan as updates.
func (s *Store) Delete(key []byte, desc mvcc.Descriptor) (*UpdateResult, error) {
	return s.apply(key, nil, true, desc)
}

func (s *Store) apply(key, val []byte, tombstone bool, desc mvcc.Descriptor) (*UpdateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	scan := mvcc.NewUpdateScan(desc)
	err := s.forEachLocked(key, func(e rowEntry) (bool, error) {
		return scan.Visit(e.tag, e.id)
	})
	if err != nil {
		return nil, err
	}

	res := &UpdateResult{
		Classification: scan.Classification(),
		ActiveTxs:      scan.ActiveTxs(),
		CleanupRows:    scan.CleanupRows(),
	}

	if scan.HasConflicts() {
		return res, ErrConflict
	}
	if res.Classification == mvcc.VersionFound {
		// Same version already present (backup replay / retry).
		return res, nil
	}

	e := rowEntry{
		key: append([]byte(nil), key...),
		tag: mvcc.RowTag{Version: desc.Version(), Tombstone: tombstone},
		id:  s.allocRowID(),
		val: append([]byte(nil), val...),
	}
	s.bt.Set(e)
	res.RowID = e.id
	return res, nil
}

// Purge physically unlinks the candidate rows from key's chain. The
// active-transaction picture can change between scan and purge, so
// eligibility is re-validated against the given (fresh) descriptor:
// only candidates the re-scan still reports as purgeable are removed.
// Returns the number of rows removed.
func (s *Store) Purge(key []byte, candidates []storage.RowID, desc mvcc.Descriptor) (int, error) {
	if len(candidates) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	scan := mvcc.NewUpdateScan(desc)
	entries := make(map[storage.RowID]rowEntry)
	err := s.forEachLocked(key, func(e rowEntry) (bool, error) {
		entries[e.id] = e
		return scan.Visit(e.tag, e.id)
	})
	if err != nil {
		return 0, err
	}

	still := make(map[storage.RowID]bool, len(scan.CleanupRows()))
	for _, id := range scan.CleanupRows() {
		still[id] = true
	}

	purged := 0
	for _, id := range candidates {
		if !still[id] {
			continue
		}
		if e, ok := entries[id]; ok {
			s.bt.Delete(e)
			purged++
		}
	}
	return purged, nil
}

// ChainLen returns the number of version rows key currently holds.
func (s *Store) ChainLen(key []byte) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	_ = s.forEachLocked(key, func(rowEntry) (bool, error) {
		n++
		return true, nil
	})
	return n
}

// Len returns the total number of version rows in the store.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bt.Len()
}
