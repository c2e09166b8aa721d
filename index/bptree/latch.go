package bptree

import "github.com/daemondb/ixcore/storage/txn"

// latchNode returns a write-latched view of pageNo, reusing the
// transaction's already-held latch if this page is on our own ancestor
// chain (avoiding a self-deadlock on the non-reentrant page mutex), or
// fetching and write-latching it fresh and adding it to the bag otherwise.
// Every page reached this way is released in the single end-of-operation
// pass over the latch bag — callers never unlock/unpin it themselves.
func (t *Tree) latchNode(transaction *txn.Transaction, pageNo int64) (*Node, error) {
	if held := transaction.FindLatchPage(pageNo); held != nil {
		return newNodeView(held, t.cmp.KeyLen(), t.hdr.MaxSize), nil
	}
	n, err := t.fetchNode(pageNo)
	if err != nil {
		return nil, wrap(err, "latch node")
	}
	n.Page().Lock()
	transaction.AppendIndexLatchPage(n.Page())
	return n, nil
}
