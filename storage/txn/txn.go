// Package txn models the two per-operation collections the B+ tree core
// needs from a transaction object: the write-latch bag crabbing accumulates
// while descending, and the deferred-page-deletion bag a coalesce defers
// until every latch on the freed page is released. Commit/abort state and
// logical undo rows belong to the record-manager layer and are out of
// scope here (see DESIGN.md).
package txn

import (
	"sync/atomic"

	"github.com/daemondb/ixcore/storage/page"
)

// Transaction carries the latch bag and deferred-delete bag a single
// index operation accumulates while crabbing down the tree.
type Transaction struct {
	ID uint64

	latchBag  []*page.Page
	deleteBag []int64
}

// Manager issues monotonically increasing transaction IDs via an atomic
// counter.
type Manager struct {
	nextID uint64
}

func NewManager() *Manager {
	return &Manager{nextID: 1}
}

// New creates a bare transaction with no manager-issued ID, for one-shot
// index operations (a single find_leaf call) that only need the latch and
// deferred-delete bags.
func New() *Transaction {
	return &Transaction{}
}

func (m *Manager) Begin() *Transaction {
	id := atomic.AddUint64(&m.nextID, 1) - 1
	return &Transaction{ID: id}
}

// AppendIndexLatchPage pushes a page that is currently write-latched by this
// operation onto the bag, to be released in one pass once the SMO completes.
func (t *Transaction) AppendIndexLatchPage(pg *page.Page) {
	t.latchBag = append(t.latchBag, pg)
}

// IndexLatchPageSet returns the current latch bag and clears it.
func (t *Transaction) IndexLatchPageSet() []*page.Page {
	bag := t.latchBag
	t.latchBag = nil
	return bag
}

// FindLatchPage returns the page with the given ID if this transaction
// already holds its write latch, without removing it from the bag. Used to
// avoid re-acquiring (and deadlocking on) a latch a caller's own ancestor
// walk already holds.
func (t *Transaction) FindLatchPage(pageNo int64) *page.Page {
	for _, pg := range t.latchBag {
		if pg.ID == pageNo {
			return pg
		}
	}
	return nil
}

// AppendIndexDeletedPage records a page number that must be deleted once its
// latch has been released — never while anyone might still hold it.
func (t *Transaction) AppendIndexDeletedPage(pageNo int64) {
	t.deleteBag = append(t.deleteBag, pageNo)
}

// IndexDeletedPageSet returns the current deferred-delete bag and clears it.
func (t *Transaction) IndexDeletedPageSet() []int64 {
	bag := t.deleteBag
	t.deleteBag = nil
	return bag
}
