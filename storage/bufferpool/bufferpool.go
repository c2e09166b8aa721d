// Package bufferpool caches index pages in memory with pin-aware LRU
// eviction, flushing dirty frames to the disk manager before they are ever
// reused.
package bufferpool

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/daemondb/ixcore/storage/diskmanager"
	"github.com/daemondb/ixcore/storage/page"
)

// BufferPool is the sole owner of page frame memory for one index file.
// Callers only ever hold borrowed references obtained through Fetch/New and
// returned through Unpin.
type BufferPool struct {
	mu          sync.Mutex
	pages       map[int64]*page.Page
	capacity    int
	disk        *diskmanager.DiskManager
	accessOrder []int64
	log         *zap.Logger
}

// Stats summarizes a pool's occupancy for monitoring/debugging.
type Stats struct {
	TotalPages  int
	PinnedPages int
	DirtyPages  int
	Capacity    int
}

func New(capacity int, disk *diskmanager.DiskManager, log *zap.Logger) *BufferPool {
	if log == nil {
		log = zap.NewNop()
	}
	return &BufferPool{
		pages:       make(map[int64]*page.Page, capacity),
		capacity:    capacity,
		disk:        disk,
		accessOrder: make([]int64, 0, capacity),
		log:         log,
	}
}

// FetchPage returns a pinned page, loading it from disk on a cache miss.
func (bp *BufferPool) FetchPage(pageNo int64) (*page.Page, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if pg, ok := bp.pages[pageNo]; ok {
		bp.log.Debug("bufferpool hit", zap.Int64("page", pageNo), zap.Int32("pin", pg.PinCount()))
		bp.touch(pageNo)
		pg.Pin()
		return pg, nil
	}

	bp.log.Debug("bufferpool miss", zap.Int64("page", pageNo))
	pg, err := bp.disk.ReadPage(pageNo)
	if err != nil {
		return nil, fmt.Errorf("fetch page %d: %w", pageNo, err)
	}
	if err := bp.addLocked(pg); err != nil {
		return nil, err
	}
	pg.Pin()
	return pg, nil
}

// NewPage allocates a fresh, pinned, dirty page.
func (bp *BufferPool) NewPage() (*page.Page, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	pageNo := bp.disk.AllocatePage()
	pg := page.New(pageNo)
	pg.IsDirty = true
	pg.Pin()
	if err := bp.addLocked(pg); err != nil {
		pg.Unpin()
		return nil, err
	}
	return pg, nil
}

// UnpinPage must be called exactly once for every successful Fetch/New, and
// only after the caller has released the page's latch.
func (bp *BufferPool) UnpinPage(pageNo int64, dirty bool) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	pg, ok := bp.pages[pageNo]
	if !ok {
		return fmt.Errorf("unpin: page %d not in buffer pool", pageNo)
	}
	if pg.PinCount() > 0 {
		pg.Unpin()
	}
	if dirty {
		pg.IsDirty = true
	}
	return nil
}

// FlushPage writes a page to disk if dirty.
func (bp *BufferPool) FlushPage(pageNo int64) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	pg, ok := bp.pages[pageNo]
	if !ok {
		return fmt.Errorf("flush: page %d not in buffer pool", pageNo)
	}
	if !pg.IsDirty {
		return nil
	}
	bp.log.Debug("bufferpool flush", zap.Int64("page", pageNo))
	if err := bp.disk.WritePage(pg); err != nil {
		return fmt.Errorf("flush page %d: %w", pageNo, err)
	}
	return nil
}

// FlushAllPages writes every dirty frame to disk.
func (bp *BufferPool) FlushAllPages() error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	bp.log.Debug("bufferpool flush-all", zap.Int("pages", len(bp.pages)))
	for pageNo, pg := range bp.pages {
		if !pg.IsDirty {
			continue
		}
		if err := bp.disk.WritePage(pg); err != nil {
			return fmt.Errorf("flush page %d: %w", pageNo, err)
		}
	}
	return nil
}

// DeletePage removes a page from the pool. The caller must guarantee it is
// unpinned and unlatched first — the index layer enforces this through its
// deferred-delete bag (storage/txn).
func (bp *BufferPool) DeletePage(pageNo int64) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	pg, ok := bp.pages[pageNo]
	if !ok {
		return nil
	}
	if pg.PinCount() > 0 {
		return fmt.Errorf("cannot delete pinned page %d", pageNo)
	}
	delete(bp.pages, pageNo)
	bp.removeFromOrder(pageNo)
	return nil
}

func (bp *BufferPool) Stats() Stats {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	s := Stats{TotalPages: len(bp.pages), Capacity: bp.capacity}
	for _, pg := range bp.pages {
		if pg.PinCount() > 0 {
			s.PinnedPages++
		}
		if pg.IsDirty {
			s.DirtyPages++
		}
	}
	return s
}

func (bp *BufferPool) Size() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return len(bp.pages)
}

// addLocked inserts a page into the pool, evicting the LRU unpinned frame
// first if the pool is at capacity. Caller must hold bp.mu.
func (bp *BufferPool) addLocked(pg *page.Page) error {
	if _, exists := bp.pages[pg.ID]; exists {
		bp.touch(pg.ID)
		return nil
	}
	if len(bp.pages) >= bp.capacity {
		if err := bp.evictLRULocked(); err != nil {
			return fmt.Errorf("evict to make room for page %d: %w", pg.ID, err)
		}
	}
	bp.pages[pg.ID] = pg
	bp.touch(pg.ID)
	return nil
}

// evictLRULocked scans the access order for the oldest unpinned page,
// flushing it first if dirty. It never touches a pinned frame.
func (bp *BufferPool) evictLRULocked() error {
	for i := 0; i < len(bp.accessOrder); i++ {
		pageNo := bp.accessOrder[i]
		pg, ok := bp.pages[pageNo]
		if !ok {
			bp.accessOrder = append(bp.accessOrder[:i], bp.accessOrder[i+1:]...)
			i--
			continue
		}
		if pg.PinCount() > 0 {
			continue
		}
		bp.log.Debug("bufferpool evict", zap.Int64("page", pageNo), zap.Bool("dirty", pg.IsDirty))
		if pg.IsDirty {
			if err := bp.disk.WritePage(pg); err != nil {
				return fmt.Errorf("write page %d during eviction: %w", pageNo, err)
			}
		}
		delete(bp.pages, pageNo)
		bp.accessOrder = append(bp.accessOrder[:i], bp.accessOrder[i+1:]...)
		return nil
	}
	return errBufferExhausted
}

var errBufferExhausted = fmt.Errorf("buffer pool exhausted: every frame is pinned")

func (bp *BufferPool) touch(pageNo int64) {
	bp.removeFromOrder(pageNo)
	bp.accessOrder = append(bp.accessOrder, pageNo)
}

func (bp *BufferPool) removeFromOrder(pageNo int64) {
	for i, id := range bp.accessOrder {
		if id == pageNo {
			bp.accessOrder = append(bp.accessOrder[:i], bp.accessOrder[i+1:]...)
			return
		}
	}
}
