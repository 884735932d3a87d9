package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Meta page layout. The meta page is page 0 of a data file and carries
// engine-wide metadata that must survive restarts. Every meta page
// starts with the common header:
//
//	[0:8]   pageLSN (uint64) - LSN of the last change applied to this page
//	[8:10]  magic (uint16)
//	[10:12] format version (uint16)
//
// The remainder of the layout depends on the format version and is
// resolved through MetaForPage, so callers never hardcode field offsets.
const (
	PageLSNOffset  = 0
	PageLSNSize    = 8
	metaMagicOff   = 8
	metaVersionOff = 10

	// MetaPageMagic identifies a meta page.
	MetaPageMagic uint16 = 0x16A7
)

var (
	// ErrFormatMismatch is returned when a page's stored format version
	// is unknown or lacks a requested field. Recovery must stop on this
	// rather than guess an offset.
	ErrFormatMismatch = errors.New("storage: page format mismatch")

	// ErrPageTooSmall is returned when a buffer cannot hold the layout.
	ErrPageTooSmall = errors.New("storage: page buffer too small")
)

// MetaIO decodes and mutates the meta page fields for one format
// version. Instances are shared and immutable; all state lives in the
// page buffer itself.
type MetaIO struct {
	version uint16

	// Field offsets within the page buffer.
	treeRootOff     int
	lastBackupIDOff int

	// size is the minimum buffer length the layout needs.
	size int
}

// metaVersions holds every known meta page layout, newest last.
// Version 1:
//
//	[12:16] tree root page ID (uint32)
//	[16:24] last successful full backup ID (uint64)
var metaVersions = map[uint16]*MetaIO{
	1: {
		version:         1,
		treeRootOff:     12,
		lastBackupIDOff: 16,
		size:            24,
	},
}

// latestMetaVersion is the layout used when initializing new meta pages.
const latestMetaVersion uint16 = 1

// InitMetaPage formats buf as an empty meta page with the latest layout.
func InitMetaPage(buf []byte) error {
	io, ok := metaVersions[latestMetaVersion]
	if !ok || len(buf) < io.size {
		return ErrPageTooSmall
	}
	binary.LittleEndian.PutUint64(buf[PageLSNOffset:], 0)
	binary.LittleEndian.PutUint16(buf[metaMagicOff:], MetaPageMagic)
	binary.LittleEndian.PutUint16(buf[metaVersionOff:], latestMetaVersion)
	binary.LittleEndian.PutUint32(buf[io.treeRootOff:], 0)
	binary.LittleEndian.PutUint64(buf[io.lastBackupIDOff:], 0)
	return nil
}

// MetaForPage reads the stored format version from buf and returns the
// matching layout decoder.
func MetaForPage(buf []byte) (*MetaIO, error) {
	if len(buf) < metaVersionOff+2 {
		return nil, ErrPageTooSmall
	}
	if magic := binary.LittleEndian.Uint16(buf[metaMagicOff:]); magic != MetaPageMagic {
		return nil, fmt.Errorf("%w: bad meta page magic 0x%04x", ErrFormatMismatch, magic)
	}
	ver := binary.LittleEndian.Uint16(buf[metaVersionOff:])
	io, ok := metaVersions[ver]
	if !ok {
		return nil, fmt.Errorf("%w: unknown meta page version %d", ErrFormatMismatch, ver)
	}
	return io, nil
}

// Version returns the format version this layout decodes.
func (io *MetaIO) Version() uint16 {
	return io.version
}

// TreeRoot returns the root page ID of the index tree.
func (io *MetaIO) TreeRoot(buf []byte) uint32 {
	return binary.LittleEndian.Uint32(buf[io.treeRootOff:])
}

// SetTreeRoot stores the root page ID of the index tree.
func (io *MetaIO) SetTreeRoot(buf []byte, pageID uint32) {
	binary.LittleEndian.PutUint32(buf[io.treeRootOff:], pageID)
}

// LastBackupID returns the identifier of the last successful full backup.
func (io *MetaIO) LastBackupID(buf []byte) uint64 {
	return binary.LittleEndian.Uint64(buf[io.lastBackupIDOff:])
}

// SetLastBackupID overwrites the last successful full backup identifier.
// The new value fully replaces the field; there is no merge logic, so
// applying the same value twice is a no-op.
func (io *MetaIO) SetLastBackupID(buf []byte, id uint64) {
	binary.LittleEndian.PutUint64(buf[io.lastBackupIDOff:], id)
}

// PageLSN reads the LSN header common to all page layouts.
func PageLSN(buf []byte) uint64 {
	if len(buf) < PageLSNSize {
		return 0
	}
	return binary.LittleEndian.Uint64(buf[PageLSNOffset:])
}

// SetPageLSN writes the LSN header common to all page layouts.
func SetPageLSN(buf []byte, lsn uint64) {
	if len(buf) >= PageLSNSize {
		binary.LittleEndian.PutUint64(buf[PageLSNOffset:], lsn)
	}
}
