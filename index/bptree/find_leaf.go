package bptree

import (
	"go.uber.org/zap"

	"github.com/daemondb/ixcore/storage/txn"
)

// findLeaf descends the tree under a latch-crabbing protocol, returning the
// target leaf still latched (read latch for Find* ops, write latch — and
// present in the transaction's latch bag — for Insert/Delete), plus whether
// the caller is still responsible for releasing t.rootLatch: it stays held
// past this call exactly when the root itself was never proven safe, i.e.
// when the operation may yet need to replace or collapse the root.
//
// findFirst forces descent via child 0 at every level, disabling the
// safety-based early-release heuristic; it is used by the leftmost-bypass
// probe in InsertEntry/DeleteEntry.
func (t *Tree) findLeaf(key []byte, op OpKind, transaction *txn.Transaction, findFirst bool) (leaf *Node, rootHeld bool, err error) {
	write := op == OpInsert || op == OpDelete

	t.rootLatch.Lock()
	rootHeld = true
	releaseRoot := func() {
		if rootHeld {
			t.rootLatch.Unlock()
			rootHeld = false
		}
	}

	if t.isEmpty() {
		releaseRoot()
		return nil, false, ErrEmptyTree
	}
	rootPageNo := t.getRootPageNo()

	cur, ferr := t.fetchNode(rootPageNo)
	if ferr != nil {
		releaseRoot()
		return nil, false, wrap(ferr, "find_leaf: fetch root")
	}
	if write {
		cur.Page().Lock()
		transaction.AppendIndexLatchPage(cur.Page())
	} else {
		cur.Page().RLock()
	}

	for !cur.IsLeaf() {
		childNo := t.chooseChild(cur, key, op, findFirst)
		child, ferr := t.fetchNode(childNo)
		if ferr != nil {
			if write {
				t.abortLatchBag(transaction)
			} else {
				cur.Page().RUnlock()
				t.unpinNode(cur, false)
			}
			releaseRoot()
			return nil, false, wrap(ferr, "find_leaf: fetch child")
		}

		if write {
			child.Page().Lock()
			transaction.AppendIndexLatchPage(child.Page())
			// child is never the root, so the root's relaxed thresholds
			// do not apply to it.
			if !findFirst && child.isSafe(op, false) {
				t.releaseAncestors(transaction)
				releaseRoot()
			}
		} else {
			child.Page().RLock()
			cur.Page().RUnlock()
			t.unpinNode(cur, false)
			releaseRoot()
		}
		cur = child
	}
	if !write {
		releaseRoot()
	}
	t.log.Debug("find_leaf reached leaf", zap.Int64("page", cur.PageNo()), zap.Bool("write", write))
	return cur, rootHeld, nil
}

func (t *Tree) chooseChild(cur *Node, key []byte, op OpKind, findFirst bool) int64 {
	if findFirst {
		return cur.ChildAt(0)
	}
	return cur.internalLookup(key, op, t.cmp)
}

// releaseAncestors drops every write latch in the bag except the
// most-recently-acquired one (the node just proven safe).
func (t *Tree) releaseAncestors(transaction *txn.Transaction) {
	bag := transaction.IndexLatchPageSet()
	if len(bag) == 0 {
		return
	}
	last := bag[len(bag)-1]
	for _, pg := range bag[:len(bag)-1] {
		pg.Unlock()
		t.pool.UnpinPage(pg.ID, false)
	}
	transaction.AppendIndexLatchPage(last)
}

// abortLatchBag unwinds every write latch currently held, used only on the
// fetch-error path mid-descent.
func (t *Tree) abortLatchBag(transaction *txn.Transaction) {
	bag := transaction.IndexLatchPageSet()
	for _, pg := range bag {
		pg.Unlock()
		t.pool.UnpinPage(pg.ID, false)
	}
}
