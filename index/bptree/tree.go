// Package bptree implements a persistent, latch-coupled B+ tree index: the
// node layout, file header, crabbing search/insert/delete protocols, split/
// redistribute/coalesce structural modifications, and a forward scan cursor.
package bptree

import (
	"sync"

	"go.uber.org/zap"

	"github.com/daemondb/ixcore/storage/bufferpool"
	"github.com/daemondb/ixcore/storage/diskmanager"
	"github.com/daemondb/ixcore/storage/page"
	"github.com/daemondb/ixcore/storage/txn"
	"github.com/daemondb/ixcore/types"
)

// Tree is a handle onto one index file. It owns no file descriptor itself —
// the disk manager does — and holds only the root latch and an in-memory
// cache of the file header.
type Tree struct {
	disk *diskmanager.DiskManager
	pool *bufferpool.BufferPool
	cmp  *Comparator
	log  *zap.Logger

	// rootLatch is the tree-global structural latch: writers
	// hold it exclusively until the root is proven safe; it serializes the
	// empty-tree transition and any SMO that replaces the root.
	rootLatch sync.Mutex
	// hdrMu guards reads/writes of FileHeader fields that change incidental
	// to a split/coalesce happening away from the root (e.g. the
	// first/last-leaf pointers moving when the leftmost or rightmost leaf
	// splits) — a finer-grained lock than rootLatch so those updates don't
	// need the big structural latch to already be held.
	hdrMu sync.Mutex
	hdr   *FileHeader
}

// Create initializes a brand-new, empty index file: page 0 (FileHeader) and
// page 1 (the leaf-header sentinel).
func Create(disk *diskmanager.DiskManager, pool *bufferpool.BufferPool, schema types.Schema, log *zap.Logger) (*Tree, error) {
	if log == nil {
		log = zap.NewNop()
	}
	hdr := NewFileHeader(schema)

	hdrPage := page.New(FileHeaderPageNo)
	hdr.Serialize(hdrPage.Data)
	if err := disk.WritePage(hdrPage); err != nil {
		return nil, wrap(err, "create: write file header")
	}

	leafHdrPage := page.New(LeafHeaderPageNo)
	sentinel := &LeafHeader{Prev: LeafHeaderPageNo, Next: LeafHeaderPageNo}
	sentinel.Serialize(leafHdrPage.Data)
	if err := disk.WritePage(leafHdrPage); err != nil {
		return nil, wrap(err, "create: write leaf header")
	}
	// Reserve pages 0 and 1 in the allocator (the writes above normally have
	// already), so the first node lands on firstDataPageNo.
	for disk.TotalPages() < firstDataPageNo {
		disk.AllocatePage()
	}

	t := &Tree{
		disk: disk,
		pool: pool,
		cmp:  NewComparator(schema),
		log:  log,
		hdr:  hdr,
	}
	return t, nil
}

// Open reconstructs a tree handle from an existing index file's page 0.
func Open(disk *diskmanager.DiskManager, pool *bufferpool.BufferPool, log *zap.Logger) (*Tree, error) {
	if log == nil {
		log = zap.NewNop()
	}
	hdrPage, err := disk.ReadPage(FileHeaderPageNo)
	if err != nil {
		return nil, wrap(err, "open: read file header")
	}
	hdr := DeserializeFileHeader(hdrPage.Data)
	return &Tree{
		disk: disk,
		pool: pool,
		cmp:  NewComparator(hdr.Schema),
		log:  log,
		hdr:  hdr,
	}, nil
}

func (t *Tree) Comparator() *Comparator { return t.cmp }
func (t *Tree) KeyLen() int             { return t.cmp.KeyLen() }

// RootPageNo exposes the current root page number for read-only tooling
// (e.g. cmd/ixinspect's tree walk). NoPage means the tree is empty.
func (t *Tree) RootPageNo() int64 { return t.getRootPageNo() }

// FetchNode exposes a pinned, unlatched node view for read-only tooling
// that walks the tree outside of any crabbing descent. Callers must call
// ReleaseNode when done.
func (t *Tree) FetchNode(pageNo int64) (*Node, error) { return t.fetchNode(pageNo) }

// ReleaseNode unpins a node obtained through FetchNode.
func (t *Tree) ReleaseNode(n *Node) { t.unpinNode(n, false) }

// flushFileHeaderLocked persists the in-memory header. Callers must hold hdrMu.
func (t *Tree) flushFileHeaderLocked() error {
	pg, err := t.disk.ReadPage(FileHeaderPageNo)
	if err != nil {
		return wrap(err, "flush file header: read page 0")
	}
	t.hdr.Serialize(pg.Data)
	return wrap(t.disk.WritePage(pg), "flush file header: write page 0")
}

func (t *Tree) setRootPageNo(p int64) error {
	t.hdrMu.Lock()
	defer t.hdrMu.Unlock()
	t.hdr.RootPageNo = p
	return t.flushFileHeaderLocked()
}

func (t *Tree) setFirstLeafPageNo(p int64) error {
	t.hdrMu.Lock()
	defer t.hdrMu.Unlock()
	t.hdr.FirstLeafPageNo = p
	return t.flushFileHeaderLocked()
}

func (t *Tree) setLastLeafPageNo(p int64) error {
	t.hdrMu.Lock()
	defer t.hdrMu.Unlock()
	t.hdr.LastLeafPageNo = p
	return t.flushFileHeaderLocked()
}

func (t *Tree) getFirstLeafPageNo() int64 {
	t.hdrMu.Lock()
	defer t.hdrMu.Unlock()
	return t.hdr.FirstLeafPageNo
}

func (t *Tree) getLastLeafPageNo() int64 {
	t.hdrMu.Lock()
	defer t.hdrMu.Unlock()
	return t.hdr.LastLeafPageNo
}

func (t *Tree) getRootPageNo() int64 {
	t.hdrMu.Lock()
	defer t.hdrMu.Unlock()
	return t.hdr.RootPageNo
}

// setBootstrapHeader installs a freshly allocated leaf as root/first-leaf/
// last-leaf in one pass, used only by the empty-tree transition.
func (t *Tree) setBootstrapHeader(pageNo int64) error {
	t.hdrMu.Lock()
	defer t.hdrMu.Unlock()
	t.hdr.RootPageNo = pageNo
	t.hdr.FirstLeafPageNo = pageNo
	t.hdr.LastLeafPageNo = pageNo
	return t.flushFileHeaderLocked()
}

// setEmptyTreeHeader clears root/first-leaf/last-leaf in one pass, used only
// when adjust_root collapses the last leaf of a leaf-root tree.
func (t *Tree) setEmptyTreeHeader() error {
	t.hdrMu.Lock()
	defer t.hdrMu.Unlock()
	t.hdr.RootPageNo = NoPage
	t.hdr.FirstLeafPageNo = NoPage
	t.hdr.LastLeafPageNo = NoPage
	return t.flushFileHeaderLocked()
}

func (t *Tree) readLeafHeader() (*LeafHeader, error) {
	pg, err := t.disk.ReadPage(LeafHeaderPageNo)
	if err != nil {
		return nil, wrap(err, "read leaf header")
	}
	return DeserializeLeafHeader(pg.Data), nil
}

func (t *Tree) writeLeafHeader(h *LeafHeader) error {
	pg, err := t.disk.ReadPage(LeafHeaderPageNo)
	if err != nil {
		return wrap(err, "write leaf header: read page 1")
	}
	h.Serialize(pg.Data)
	return wrap(t.disk.WritePage(pg), "write leaf header: write page 1")
}

// fetchNode pins and returns a page-backed Node view. Caller must latch it
// and eventually call unpinNode.
func (t *Tree) fetchNode(pageNo int64) (*Node, error) {
	pg, err := t.pool.FetchPage(pageNo)
	if err != nil {
		return nil, wrap(err, "fetch node")
	}
	return newNodeView(pg, t.cmp.KeyLen(), t.hdr.MaxSize), nil
}

// newNode allocates a fresh page and initializes it as a node.
func (t *Tree) newNode(isLeaf bool) (*Node, error) {
	pg, err := t.pool.NewPage()
	if err != nil {
		return nil, wrap(err, "allocate node")
	}
	n := newNodeView(pg, t.cmp.KeyLen(), t.hdr.MaxSize)
	n.SetLeaf(isLeaf)
	n.SetParentPageNo(NoPage)
	n.SetPrevLeafPageNo(NoPage)
	n.SetNextLeafPageNo(NoPage)
	return n, nil
}

// unpinNode returns a node's page to the buffer pool.
func (t *Tree) unpinNode(n *Node, dirty bool) error {
	return t.pool.UnpinPage(n.PageNo(), dirty)
}

// releaseLatchBag unlatches then unpins every page collected by an
// operation, in that order — unpin must follow latch release.
func (t *Tree) releaseLatchBag(transaction *txn.Transaction, write bool) {
	bag := transaction.IndexLatchPageSet()
	for _, pg := range bag {
		if write {
			pg.Unlock()
		} else {
			pg.RUnlock()
		}
		t.pool.UnpinPage(pg.ID, write)
	}
}

// drainDeletedPages frees every page accumulated in the deferred-delete bag.
// Must run after releaseLatchBag so nothing still holds their latch.
func (t *Tree) drainDeletedPages(transaction *txn.Transaction) {
	for _, pageNo := range transaction.IndexDeletedPageSet() {
		t.pool.DeletePage(pageNo)
	}
}

func (t *Tree) isEmpty() bool {
	return t.getRootPageNo() == NoPage
}
