package mvcc

import "errors"

var (
	// ErrConsistency is returned when a row version newer than the
	// scanning descriptor's version is encountered. The version
	// authority only moves forward, so this indicates corruption or an
	// authority bug; the current operation must abort and no scan
	// output may be used.
	ErrConsistency = errors.New("mvcc: row version ahead of descriptor")

	// ErrInvalidDescriptor is returned when descriptor invariants are
	// violated at construction.
	ErrInvalidDescriptor = errors.New("mvcc: invalid version descriptor")

	// ErrEpochOverflow is returned when an epoch collides with the
	// tombstone flag bit of the row-tag encoding.
	ErrEpochOverflow = errors.New("mvcc: epoch exceeds maskable range")

	// ErrShortRowTag is returned when a row slot buffer cannot hold a
	// version tag.
	ErrShortRowTag = errors.New("mvcc: row tag buffer too short")
)
