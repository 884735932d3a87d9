// Package wal provides the redo log for page mutations. Changes to
// data pages are described by small, typed delta records appended to
// the log before the page itself is written; after a crash, replaying
// the log restores every page to its logged state. Delta application
// is idempotent, so records may be re-applied after a crash during
// recovery itself.
package wal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/dataignite/ignite/pkg/storage"
)

// LSN (Log Sequence Number) is a monotonically increasing identifier
// for log records: the record's byte offset in the log file.
type LSN uint64

// InvalidLSN represents an invalid/unset LSN. Real records always sit
// past the file header, so no record carries LSN 0.
const InvalidLSN LSN = 0

// RecordKind identifies the type of a log record.
type RecordKind uint8

const (
	// KindInvalid is an invalid/uninitialized record kind.
	KindInvalid RecordKind = iota

	// KindPageSnapshot carries a full page image.
	KindPageSnapshot

	// KindMetaPageUpdateBackupID updates the meta page's last
	// successful full backup identifier.
	KindMetaPageUpdateBackupID

	// KindCheckpoint marks a point from which redo may safely start:
	// all earlier page changes were on disk when it was written.
	KindCheckpoint
)

func (k RecordKind) String() string {
	switch k {
	case KindPageSnapshot:
		return "PAGE_SNAPSHOT"
	case KindMetaPageUpdateBackupID:
		return "META_PAGE_UPDATE_BACKUP_ID"
	case KindCheckpoint:
		return "CHECKPOINT"
	default:
		return "INVALID"
	}
}

// Record is one framed log entry. Format on disk:
//
//	[Length:4][Kind:1][CacheID:4][PageID:8][DataLen:4][Data:var][CRC:4]
//
// Length counts everything after the length field itself.
type Record struct {
	// LSN is the record's position in the log, set on append/decode.
	LSN LSN

	// Kind identifies how Data is interpreted.
	Kind RecordKind

	// CacheID is the cache/data-file the page belongs to.
	CacheID int32

	// PageID is the affected page's address within the cache.
	PageID uint64

	// Data is the kind-specific payload.
	Data []byte
}

// frameOverhead is the fixed framing cost of a record.
// [Length:4][Kind:1][CacheID:4][PageID:8][DataLen:4][CRC:4]
const frameOverhead = 4 + 1 + 4 + 8 + 4 + 4 // = 25 bytes

// maxPageSize is the largest page size the engine accepts.
const maxPageSize = 64 * 1024

// MaxRecordSize bounds a single record. It is derived from the largest
// page size plus framing, so a full image of any valid page always
// fits in one frame.
const MaxRecordSize = maxPageSize + frameOverhead

var (
	ErrRecordTooLarge  = errors.New("wal: record too large")
	ErrInvalidRecord   = errors.New("wal: invalid record")
	ErrCorruptedRecord = errors.New("wal: corrupted record (CRC mismatch)")
	ErrUnknownKind     = errors.New("wal: unknown record kind")
	ErrWALClosed       = errors.New("wal: log is closed")
)

// Encode serializes the record into its on-disk frame.
func (r *Record) Encode() ([]byte, error) {
	total := frameOverhead + len(r.Data)
	if total > MaxRecordSize {
		return nil, ErrRecordTooLarge
	}

	buf := make([]byte, total)
	binary.LittleEndian.PutUint32(buf[0:], uint32(total-4))
	buf[4] = byte(r.Kind)
	binary.LittleEndian.PutUint32(buf[5:], uint32(r.CacheID))
	binary.LittleEndian.PutUint64(buf[9:], r.PageID)
	binary.LittleEndian.PutUint32(buf[17:], uint32(len(r.Data)))
	copy(buf[21:], r.Data)

	crc := crc32.ChecksumIEEE(buf[:total-4])
	binary.LittleEndian.PutUint32(buf[total-4:], crc)
	return buf, nil
}

// DecodeRecord deserializes one record frame starting at data[0].
func DecodeRecord(data []byte, lsn LSN) (*Record, error) {
	if len(data) < frameOverhead {
		return nil, ErrInvalidRecord
	}
	length := binary.LittleEndian.Uint32(data[0:])
	total := int(length) + 4
	if total < frameOverhead || total > len(data) {
		return nil, ErrInvalidRecord
	}

	wantCRC := binary.LittleEndian.Uint32(data[total-4:])
	if crc := crc32.ChecksumIEEE(data[:total-4]); crc != wantCRC {
		return nil, ErrCorruptedRecord
	}

	r := &Record{
		LSN:     lsn,
		Kind:    RecordKind(data[4]),
		CacheID: int32(binary.LittleEndian.Uint32(data[5:])),
		PageID:  binary.LittleEndian.Uint64(data[9:]),
	}
	dataLen := binary.LittleEndian.Uint32(data[17:])
	if 21+int(dataLen) > total-4 {
		return nil, ErrInvalidRecord
	}
	r.Data = make([]byte, dataLen)
	copy(r.Data, data[21:21+dataLen])
	return r, nil
}

// DeltaRecord is a typed, replayable mutation against one page's
// in-memory buffer. Records are immutable once constructed; applying
// one twice yields the same page state.
type DeltaRecord interface {
	Kind() RecordKind
	CacheID() int32
	PageID() uint64

	// ApplyDelta mutates the already-located, pinned page buffer.
	// Persisting the buffer afterwards is the caller's responsibility.
	ApplyDelta(pageBuf []byte) error
}

// MetaPageUpdateBackupID records a new "last successful full backup"
// identifier on a meta page. The value fully replaces the field.
type MetaPageUpdateBackupID struct {
	cacheID  int32
	pageID   uint64
	backupID uint64
}

// NewMetaPageUpdateBackupID builds the delta for the given meta page.
func NewMetaPageUpdateBackupID(cacheID int32, pageID, backupID uint64) *MetaPageUpdateBackupID {
	return &MetaPageUpdateBackupID{cacheID: cacheID, pageID: pageID, backupID: backupID}
}

// Kind returns KindMetaPageUpdateBackupID.
func (d *MetaPageUpdateBackupID) Kind() RecordKind { return KindMetaPageUpdateBackupID }

// CacheID returns the target cache.
func (d *MetaPageUpdateBackupID) CacheID() int32 { return d.cacheID }

// PageID returns the target meta page address.
func (d *MetaPageUpdateBackupID) PageID() uint64 { return d.pageID }

// BackupID returns the identifier being recorded.
func (d *MetaPageUpdateBackupID) BackupID() uint64 { return d.backupID }

// ApplyDelta resolves the page's meta layout by its stored format
// version and overwrites the backup-ID field. Fails with
// storage.ErrFormatMismatch when the page's format lacks the field.
func (d *MetaPageUpdateBackupID) ApplyDelta(pageBuf []byte) error {
	io, err := storage.MetaForPage(pageBuf)
	if err != nil {
		return err
	}
	io.SetLastBackupID(pageBuf, d.backupID)
	return nil
}

// Record frames the delta for appending to the log. The payload is a
// single fixed-width uint64: the new backup identifier.
func (d *MetaPageUpdateBackupID) Record() *Record {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint64(data, d.backupID)
	return &Record{
		Kind:    KindMetaPageUpdateBackupID,
		CacheID: d.cacheID,
		PageID:  d.pageID,
		Data:    data,
	}
}

// DecodeDelta turns a logged record back into its typed delta.
func DecodeDelta(rec *Record) (DeltaRecord, error) {
	switch rec.Kind {
	case KindMetaPageUpdateBackupID:
		if len(rec.Data) != 8 {
			return nil, fmt.Errorf("%w: backup-ID payload is %d bytes, want 8", ErrInvalidRecord, len(rec.Data))
		}
		return &MetaPageUpdateBackupID{
			cacheID:  rec.CacheID,
			pageID:   rec.PageID,
			backupID: binary.LittleEndian.Uint64(rec.Data),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, rec.Kind)
	}
}

// NewPageSnapshotRecord frames a full page image.
func NewPageSnapshotRecord(cacheID int32, pageID uint64, page []byte) *Record {
	data := make([]byte, len(page))
	copy(data, page)
	return &Record{Kind: KindPageSnapshot, CacheID: cacheID, PageID: pageID, Data: data}
}

// NewCheckpointRecord frames a checkpoint marker.
func NewCheckpointRecord() *Record {
	return &Record{Kind: KindCheckpoint}
}
