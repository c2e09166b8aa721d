// Package diskmanager owns the single on-disk file backing one index and
// performs blocking, page-granularity reads and writes against it.
package diskmanager

import (
	"fmt"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/daemondb/ixcore/storage/page"
)

const checksumLen = 8

// DiskManager owns one *os.File and the page-allocation cursor for it. An
// index file is addressed by a plain local page number — there is no
// multi-file global-page-ID indirection to resolve.
type DiskManager struct {
	mu         sync.Mutex
	file       *os.File
	nextPageID int64
	log        *zap.Logger
}

// Open opens or creates the backing file and recovers the allocation cursor
// from its current size.
func Open(path string, log *zap.Logger) (*DiskManager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("open index file %s: %w", path, err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat index file %s: %w", path, err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &DiskManager{
		file:       f,
		nextPageID: stat.Size() / page.Size,
		log:        log,
	}, nil
}

// ReadPage reads a page from disk, verifying its checksum trailer.
func (dm *DiskManager) ReadPage(pageNo int64) (*page.Page, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	pg := page.New(pageNo)
	offset := pageNo * page.Size
	n, err := dm.file.ReadAt(pg.Data, offset)
	if err != nil && n == 0 {
		dm.log.Error("diskmanager read failed", zap.Int64("page", pageNo), zap.Error(err))
		return nil, fmt.Errorf("read page %d: %w", pageNo, err)
	}
	for i := n; i < page.Size; i++ {
		pg.Data[i] = 0
	}

	body := pg.Data[:page.Size-checksumLen]
	want := xxhash.Sum64(body)
	got := readChecksum(pg.Data)
	if got != 0 && got != want {
		dm.log.Error("diskmanager checksum mismatch",
			zap.Int64("page", pageNo), zap.Uint64("want", want), zap.Uint64("got", got))
		return nil, ErrChecksumMismatch{PageNo: pageNo}
	}
	pg.Checksum = want
	dm.log.Debug("diskmanager read", zap.Int64("page", pageNo))
	return pg, nil
}

// WritePage writes a page's body plus a freshly computed checksum trailer.
func (dm *DiskManager) WritePage(pg *page.Page) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if len(pg.Data) != page.Size {
		return fmt.Errorf("page %d: data size %d != page size %d", pg.ID, len(pg.Data), page.Size)
	}
	sum := xxhash.Sum64(pg.Data[:page.Size-checksumLen])
	writeChecksum(pg.Data, sum)
	pg.Checksum = sum

	offset := pg.ID * page.Size
	if _, err := dm.file.WriteAt(pg.Data, offset); err != nil {
		dm.log.Error("diskmanager write failed", zap.Int64("page", pg.ID), zap.Error(err))
		return fmt.Errorf("write page %d: %w", pg.ID, err)
	}
	if pg.ID >= dm.nextPageID {
		dm.nextPageID = pg.ID + 1
	}
	pg.IsDirty = false
	dm.log.Debug("diskmanager write", zap.Int64("page", pg.ID))
	return nil
}

// AllocatePage reserves the next page number without writing anything.
func (dm *DiskManager) AllocatePage() int64 {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	id := dm.nextPageID
	dm.nextPageID++
	return id
}

// TotalPages reports the number of pages currently allocated.
func (dm *DiskManager) TotalPages() int64 {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.nextPageID
}

func (dm *DiskManager) Sync() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.file.Sync()
}

func (dm *DiskManager) Close() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if err := dm.file.Sync(); err != nil {
		return err
	}
	return dm.file.Close()
}

func readChecksum(data []byte) uint64 {
	var v uint64
	for i := 0; i < checksumLen; i++ {
		v |= uint64(data[page.Size-checksumLen+i]) << (8 * i)
	}
	return v
}

func writeChecksum(data []byte, sum uint64) {
	for i := 0; i < checksumLen; i++ {
		data[page.Size-checksumLen+i] = byte(sum >> (8 * i))
	}
}

// ErrChecksumMismatch reports that a page's trailing checksum does not
// match its body, the IOError specialization for a corrupted read.
type ErrChecksumMismatch struct {
	PageNo int64
}

func (e ErrChecksumMismatch) Error() string {
	return fmt.Sprintf("page %d: checksum mismatch", e.PageNo)
}
