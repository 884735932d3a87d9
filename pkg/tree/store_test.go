package tree

import (
	"errors"
	"reflect"
	"testing"

	"github.com/dataignite/ignite/pkg/mvcc"
	"github.com/dataignite/ignite/pkg/storage"
)

func mustDesc(t *testing.T, epoch, counter, watermark uint64, active ...uint64) mvcc.Descriptor {
	t.Helper()
	d, err := mvcc.NewDescriptor(mvcc.Version{Epoch: epoch, Counter: counter}, watermark, mvcc.NewCounterSet(active...))
	if err != nil {
		t.Fatalf("descriptor: %v", err)
	}
	return d
}

func mustUpdate(t *testing.T, s *Store, key, val string, desc mvcc.Descriptor) *UpdateResult {
	t.Helper()
	res, err := s.Update([]byte(key), []byte(val), desc)
	if err != nil {
		t.Fatalf("update %q at %s: %v", key, desc.Version(), err)
	}
	return res
}

func TestFirstWriteClassifiedAbsent(t *testing.T) {
	s := NewStore()
	res := mustUpdate(t, s, "k", "v1", mustDesc(t, 5, 1, 0))

	if res.Classification != mvcc.PrevAbsent {
		t.Errorf("expected PREV_ABSENT, got %s", res.Classification)
	}
	if !res.RowID.IsValid() {
		t.Error("expected a row to be written")
	}
	if s.ChainLen([]byte("k")) != 1 {
		t.Errorf("expected chain length 1, got %d", s.ChainLen([]byte("k")))
	}
}

func TestSecondWriteClassifiedPresent(t *testing.T) {
	s := NewStore()
	mustUpdate(t, s, "k", "v1", mustDesc(t, 5, 1, 0))
	res := mustUpdate(t, s, "k", "v2", mustDesc(t, 5, 2, 0))

	if res.Classification != mvcc.PrevPresent {
		t.Errorf("expected PREV_PRESENT, got %s", res.Classification)
	}
	if s.ChainLen([]byte("k")) != 2 {
		t.Errorf("expected chain length 2, got %d", s.ChainLen([]byte("k")))
	}
}

func TestReplaySameVersionIsNoop(t *testing.T) {
	s := NewStore()
	desc := mustDesc(t, 5, 1, 0)
	mustUpdate(t, s, "k", "v1", desc)
	res := mustUpdate(t, s, "k", "v1", desc)

	if res.Classification != mvcc.VersionFound {
		t.Errorf("expected VERSION_FOUND on replay, got %s", res.Classification)
	}
	if res.RowID.IsValid() {
		t.Error("replay must not write a new row")
	}
	if s.ChainLen([]byte("k")) != 1 {
		t.Errorf("replay grew the chain to %d rows", s.ChainLen([]byte("k")))
	}
}

func TestDeleteThenWriteClassifiedAbsent(t *testing.T) {
	s := NewStore()
	mustUpdate(t, s, "k", "v1", mustDesc(t, 5, 1, 0))

	if _, err := s.Delete([]byte("k"), mustDesc(t, 5, 2, 0)); err != nil {
		t.Fatalf("delete: %v", err)
	}

	res := mustUpdate(t, s, "k", "v2", mustDesc(t, 5, 3, 0))
	if res.Classification != mvcc.PrevAbsent {
		t.Errorf("expected PREV_ABSENT after tombstone, got %s", res.Classification)
	}
}

func TestChainDeliveredNewestFirst(t *testing.T) {
	s := NewStore()
	mustUpdate(t, s, "k", "v1", mustDesc(t, 4, 9, 0))
	mustUpdate(t, s, "k", "v2", mustDesc(t, 5, 1, 0))
	mustUpdate(t, s, "k", "v3", mustDesc(t, 5, 7, 0))

	var seen []mvcc.Version
	err := s.ForEachVersionRow([]byte("k"), func(tag mvcc.RowTag, _ storage.RowID) (bool, error) {
		seen = append(seen, tag.Version)
		return true, nil
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	want := []mvcc.Version{{Epoch: 5, Counter: 7}, {Epoch: 5, Counter: 1}, {Epoch: 4, Counter: 9}}
	if !reflect.DeepEqual(seen, want) {
		t.Errorf("expected versions %v, got %v", want, seen)
	}
}

func TestForEachHonorsEarlyStop(t *testing.T) {
	s := NewStore()
	mustUpdate(t, s, "k", "v1", mustDesc(t, 5, 1, 0))
	mustUpdate(t, s, "k", "v2", mustDesc(t, 5, 2, 0))

	visits := 0
	err := s.ForEachVersionRow([]byte("k"), func(mvcc.RowTag, storage.RowID) (bool, error) {
		visits++
		return false, nil
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if visits != 1 {
		t.Errorf("expected 1 visit after early stop, got %d", visits)
	}
}

func TestScanStaysWithinKey(t *testing.T) {
	s := NewStore()
	mustUpdate(t, s, "a", "v", mustDesc(t, 5, 1, 0))
	mustUpdate(t, s, "b", "v", mustDesc(t, 5, 2, 0))
	mustUpdate(t, s, "c", "v", mustDesc(t, 5, 3, 0))

	if n := s.ChainLen([]byte("b")); n != 1 {
		t.Errorf("expected chain length 1 for key b, got %d", n)
	}
}

func TestConflictBlocksWrite(t *testing.T) {
	s := NewStore()
	mustUpdate(t, s, "k", "v1", mustDesc(t, 5, 7, 0))

	// Counter 7 is still in flight from the new writer's snapshot.
	res, err := s.Update([]byte("k"), []byte("v2"), mustDesc(t, 5, 10, 0, 7))
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if got := res.ActiveTxs; len(got) != 1 || got[0] != 7 {
		t.Errorf("expected conflicting counters [7], got %v", got)
	}
	if s.ChainLen([]byte("k")) != 1 {
		t.Error("conflicting write must not be applied")
	}
}

func TestUpdateReportsCleanupAndPurge(t *testing.T) {
	s := NewStore()
	mustUpdate(t, s, "k", "v1", mustDesc(t, 5, 3, 0))
	mustUpdate(t, s, "k", "v2", mustDesc(t, 5, 7, 0))
	mustUpdate(t, s, "k", "v3", mustDesc(t, 5, 9, 0))

	// Watermark 8: ctr 7 is the retained boundary, ctr 3 purgeable.
	res := mustUpdate(t, s, "k", "v4", mustDesc(t, 5, 10, 8))
	if len(res.CleanupRows) != 1 {
		t.Fatalf("expected 1 cleanup row, got %v", res.CleanupRows)
	}

	purged, err := s.Purge([]byte("k"), res.CleanupRows, mustDesc(t, 5, 10, 8))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 1 {
		t.Errorf("expected 1 purged row, got %d", purged)
	}
	if n := s.ChainLen([]byte("k")); n != 3 {
		t.Errorf("expected 3 rows after purge, got %d", n)
	}
}

func TestPurgeRevalidatesEligibility(t *testing.T) {
	s := NewStore()
	mustUpdate(t, s, "k", "v1", mustDesc(t, 5, 3, 0))
	mustUpdate(t, s, "k", "v2", mustDesc(t, 5, 7, 0))

	res := mustUpdate(t, s, "k", "v3", mustDesc(t, 5, 10, 8))
	if len(res.CleanupRows) != 1 {
		t.Fatalf("expected 1 cleanup row, got %v", res.CleanupRows)
	}

	// Between scan and purge, counter 3 shows up as active again
	// (e.g. a late-arriving snapshot); the purge must refuse it.
	stale := mustDesc(t, 5, 11, 8, 3)
	purged, err := s.Purge([]byte("k"), res.CleanupRows, stale)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 0 {
		t.Errorf("purge removed %d rows despite active transaction", purged)
	}
	if n := s.ChainLen([]byte("k")); n != 3 {
		t.Errorf("expected chain intact, got %d rows", n)
	}
}

func TestPurgeEmptyCandidates(t *testing.T) {
	s := NewStore()
	purged, err := s.Purge([]byte("k"), nil, mustDesc(t, 5, 1, 0))
	if err != nil || purged != 0 {
		t.Errorf("expected no-op purge, got purged=%d err=%v", purged, err)
	}
}

func TestMonotonicityFaultSurfacesFromUpdate(t *testing.T) {
	s := NewStore()
	mustUpdate(t, s, "k", "v1", mustDesc(t, 5, 10, 0))

	// A writer with an older version than the stored row is a version
	// authority bug and must fail loudly.
	_, err := s.Update([]byte("k"), []byte("v0"), mustDesc(t, 5, 9, 0))
	if !errors.Is(err, mvcc.ErrConsistency) {
		t.Fatalf("expected ErrConsistency, got %v", err)
	}
}
