package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Pager provides page-level read/write access to a data file with a
// fixed page size. Page 0 is the meta page. The pager keeps the LSN of
// the last modification per page in memory (mirroring the pageLSN
// header) so redo recovery can skip changes already on disk.
type Pager struct {
	mu       sync.Mutex
	file     *os.File
	path     string
	pageSize int

	// pageLSNs caches the pageLSN header of each written page.
	pageLSNs map[uint32]uint64
}

// OpenPager opens or creates the named data file under dataDir.
func OpenPager(dataDir, name string, pageSize int) (*Pager, error) {
	if pageSize < 512 {
		return nil, fmt.Errorf("storage: page size %d too small (min 512)", pageSize)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir data dir: %w", err)
	}
	path := filepath.Join(dataDir, name)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open data file: %w", err)
	}
	return &Pager{
		file:     f,
		path:     path,
		pageSize: pageSize,
		pageLSNs: make(map[uint32]uint64),
	}, nil
}

// PageSize returns the fixed page size of this file.
func (p *Pager) PageSize() int {
	return p.pageSize
}

// Path returns the file path of this pager.
func (p *Pager) Path() string {
	return p.path
}

// ReadPage reads exactly one page into buf. buf must be pageSize long.
// Pages beyond the current end of file read back zeroed.
func (p *Pager) ReadPage(pageID uint32, buf []byte) error {
	if len(buf) != p.pageSize {
		return fmt.Errorf("buffer size %d != page size %d", len(buf), p.pageSize)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	off := int64(pageID) * int64(p.pageSize)
	n, err := p.file.ReadAt(buf, off)
	if err != nil && err != io.EOF {
		return fmt.Errorf("read page %d: %w", pageID, err)
	}
	for i := n; i < len(buf); i++ {
		buf[i] = 0
	}
	return nil
}

// WritePage writes one page from buf and syncs. The in-memory pageLSN
// is refreshed from the buffer's LSN header.
func (p *Pager) WritePage(pageID uint32, buf []byte) error {
	if len(buf) != p.pageSize {
		return fmt.Errorf("buffer size %d != page size %d", len(buf), p.pageSize)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.writeLocked(pageID, buf); err != nil {
		return err
	}
	if lsn := PageLSN(buf); lsn > 0 {
		p.pageLSNs[pageID] = lsn
	}
	return p.file.Sync()
}

// WritePageWithLSN embeds lsn in the page header, writes the page and
// records lsn as the page's last modification. Call after the matching
// log record is durable.
func (p *Pager) WritePageWithLSN(pageID uint32, buf []byte, lsn uint64) error {
	if len(buf) != p.pageSize {
		return fmt.Errorf("buffer size %d != page size %d", len(buf), p.pageSize)
	}
	SetPageLSN(buf, lsn)

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.writeLocked(pageID, buf); err != nil {
		return err
	}
	p.pageLSNs[pageID] = lsn
	return p.file.Sync()
}

func (p *Pager) writeLocked(pageID uint32, buf []byte) error {
	off := int64(pageID) * int64(p.pageSize)
	n, err := p.file.WriteAt(buf, off)
	if err != nil {
		return fmt.Errorf("write page %d: %w", pageID, err)
	}
	if n != len(buf) {
		return fmt.Errorf("write page %d: short write", pageID)
	}
	return nil
}

// GetPageLSN returns the cached LSN of the last modification to a page.
func (p *Pager) GetPageLSN(pageID uint32) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pageLSNs[pageID]
}

// NumPages returns the number of pages currently in the file.
func (p *Pager) NumPages() (uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	info, err := p.file.Stat()
	if err != nil {
		return 0, err
	}
	return uint32(info.Size() / int64(p.pageSize)), nil
}

// Sync flushes pending writes without closing.
func (p *Pager) Sync() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.file.Sync()
}

// Close closes the underlying file.
func (p *Pager) Close() error {
	return p.file.Close()
}
