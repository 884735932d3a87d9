package mvcc

import (
	"encoding/binary"
	"fmt"
)

// Row tag physical encoding. Each row slot carries a fixed 16-byte
// version tag:
//
//	[0:8] epoch word (uint64) - top bit marks a tombstone
//	[8:16] counter (uint64)
//
// The tombstone flag shares storage with the epoch on disk, but it is
// separated exactly once at decode time: everything above this codec
// works with an explicit RowTag and never masks bits itself.
const (
	// RowTagSize is the encoded size of a version tag in a row slot.
	RowTagSize = 16

	tombstoneFlag = uint64(1) << 63

	// MaxEpoch is the largest epoch representable alongside the
	// tombstone flag.
	MaxEpoch = tombstoneFlag - 1
)

// RowTag is the decoded version tag of one physical row: the row's
// write version plus whether the row represents a deletion rather
// than a value.
type RowTag struct {
	Version
	Tombstone bool
}

func (t RowTag) String() string {
	if t.Tombstone {
		return t.Version.String() + " (tombstone)"
	}
	return t.Version.String()
}

// EncodeRowTag writes tag into the first RowTagSize bytes of slot.
func EncodeRowTag(slot []byte, tag RowTag) error {
	if len(slot) < RowTagSize {
		return ErrShortRowTag
	}
	if tag.Epoch > MaxEpoch {
		return fmt.Errorf("%w: epoch %d", ErrEpochOverflow, tag.Epoch)
	}
	word := tag.Epoch
	if tag.Tombstone {
		word |= tombstoneFlag
	}
	binary.LittleEndian.PutUint64(slot[0:8], word)
	binary.LittleEndian.PutUint64(slot[8:16], tag.Counter)
	return nil
}

// DecodeRowTag reads a version tag from the first RowTagSize bytes of
// slot, separating the tombstone flag from the epoch.
func DecodeRowTag(slot []byte) (RowTag, error) {
	if len(slot) < RowTagSize {
		return RowTag{}, ErrShortRowTag
	}
	word := binary.LittleEndian.Uint64(slot[0:8])
	return RowTag{
		Version: Version{
			Epoch:   word &^ tombstoneFlag,
			Counter: binary.LittleEndian.Uint64(slot[8:16]),
		},
		Tombstone: word&tombstoneFlag != 0,
	}, nil
}
