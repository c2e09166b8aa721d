package bptree

import "github.com/daemondb/ixcore/storage/txn"

// maintainParent walks the ancestor chain from (childPageNo, parentPageNo)
// upward, overwriting each ancestor's cached first-key copy with
// firstKey, stopping at the first ancestor that already matches.
//
// Ancestor latches are obtained via latchNode, which reuses an
// already-held latch in place of re-acquiring it when the leftmost-bypass
// probe forced a pessimistic descent that kept it — sync.RWMutex is not
// reentrant, and the crabbing descent already guarantees no one else holds
// it.
func (t *Tree) maintainParent(transaction *txn.Transaction, childPageNo, parentPageNo int64, firstKey []byte) error {
	curChild := childPageNo
	curParent := parentPageNo
	curKey := firstKey

	for curParent != NoPage {
		parent, err := t.latchNode(transaction, curParent)
		if err != nil {
			return wrap(err, "maintain_parent: fetch ancestor")
		}

		rank := parent.findChild(curChild)
		if rank < 0 {
			return wrap(ErrBadSlot, "maintain_parent: child not found in ancestor")
		}

		if t.cmp.Compare(parent.KeyAt(rank), curKey) == 0 {
			return nil
		}
		parent.setKeyAt(rank, curKey)

		if rank != 0 {
			return nil
		}
		curChild = parent.PageNo()
		curParent = parent.ParentPageNo()
		curKey = append([]byte(nil), parent.KeyAt(0)...)
	}
	return nil
}
