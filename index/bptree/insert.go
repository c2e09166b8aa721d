package bptree

import (
	"go.uber.org/zap"

	"github.com/daemondb/ixcore/storage/txn"
)

// InsertEntry inserts (key, rid). It returns false, nil if key already
// exists.
func (t *Tree) InsertEntry(key []byte, rid Rid) (bool, error) {
	if len(key) != t.cmp.KeyLen() {
		return false, ErrInvalidKeyLength
	}

	for {
		if t.isEmpty() {
			inserted, empty, err := t.bootstrapInsert(key, rid)
			if empty {
				return inserted, err
			}
			// Lost the race to another inserter; fall through and retry
			// against the now-nonempty tree.
		}
		inserted, retry, err := t.insertIntoExistingTree(key, rid)
		if retry {
			continue
		}
		return inserted, err
	}
}

// bootstrapInsert handles the empty-tree transition under the exclusive
// root latch. empty=false signals the caller lost a
// race and should retry against the (now nonempty) tree instead.
func (t *Tree) bootstrapInsert(key []byte, rid Rid) (inserted, empty bool, err error) {
	t.rootLatch.Lock()
	defer t.rootLatch.Unlock()

	if !t.isEmpty() {
		return false, false, nil
	}

	leaf, err := t.newNode(true)
	if err != nil {
		return false, true, wrap(err, "bootstrap: allocate leaf root")
	}
	leaf.Page().Lock()
	leaf.SetPrevLeafPageNo(LeafHeaderPageNo)
	leaf.SetNextLeafPageNo(LeafHeaderPageNo)

	ins, err := leaf.insert(key, rid, t.cmp)
	if err != nil {
		leaf.Page().Unlock()
		t.unpinNode(leaf, false)
		return false, true, err
	}

	sentinel := &LeafHeader{Prev: leaf.PageNo(), Next: leaf.PageNo()}
	if err := t.writeLeafHeader(sentinel); err != nil {
		leaf.Page().Unlock()
		t.unpinNode(leaf, false)
		return false, true, err
	}

	if err := t.setBootstrapHeader(leaf.PageNo()); err != nil {
		leaf.Page().Unlock()
		t.unpinNode(leaf, false)
		return false, true, err
	}

	leaf.Page().Unlock()
	t.unpinNode(leaf, true)
	return ins, true, nil
}

// insertIntoExistingTree runs the leftmost-bypass probe, the crabbing
// descent, the leaf insert, ancestor-key maintenance, and the split
// cascade. retry=true means the tree went empty out from under us (a
// concurrent delete) and the caller should restart from bootstrapInsert.
func (t *Tree) insertIntoExistingTree(key []byte, rid Rid) (inserted, retry bool, err error) {
	findFirst, dup, err := t.probeLeftmost(key)
	if err != nil {
		if err == ErrEmptyTree {
			return false, true, nil
		}
		return false, false, err
	}
	if dup {
		return false, false, nil
	}

	transaction := txn.New()
	leaf, rootHeld, err := t.findLeaf(key, OpInsert, transaction, findFirst)
	if err != nil {
		if err == ErrEmptyTree {
			return false, true, nil
		}
		return false, false, err
	}

	ins, err := leaf.insert(key, rid, t.cmp)
	if err != nil {
		t.releaseLatchBag(transaction, true)
		if rootHeld {
			t.rootLatch.Unlock()
		}
		return false, false, err
	}
	if !ins {
		t.releaseLatchBag(transaction, true)
		if rootHeld {
			t.rootLatch.Unlock()
		}
		return false, false, nil
	}

	leafPageNo := leaf.PageNo()
	leafParentNo := leaf.ParentPageNo()
	leafFirstKey := append([]byte(nil), leaf.KeyAt(0)...)

	if mErr := t.maintainParent(transaction, leafPageNo, leafParentNo, leafFirstKey); mErr != nil {
		t.releaseLatchBag(transaction, true)
		if rootHeld {
			t.rootLatch.Unlock()
		}
		return false, false, mErr
	}

	var splitErr error
	if leaf.NumKeys() == leaf.MaxSize() {
		sibling, sepKey, sErr := t.splitNode(transaction, leaf)
		if sErr == nil {
			sErr = t.insertIntoParent(transaction, leaf, sepKey, sibling)
		}
		splitErr = sErr
	}

	t.releaseLatchBag(transaction, true)
	if rootHeld {
		t.rootLatch.Unlock()
	}
	if splitErr != nil {
		return false, false, splitErr
	}
	t.log.Debug("insert_entry committed", zap.Int64("leaf", leafPageNo))
	return true, false, nil
}

// probeLeftmost checks whether key is a duplicate of the current global
// minimum, and whether it would become the new global minimum (forcing a
// pessimistic leftmost descent).
func (t *Tree) probeLeftmost(key []byte) (findFirst bool, dup bool, err error) {
	firstNo := t.getFirstLeafPageNo()
	if firstNo == NoPage {
		return false, false, ErrEmptyTree
	}
	first, err := t.fetchNode(firstNo)
	if err != nil {
		return false, false, wrap(err, "probe leftmost: fetch first leaf")
	}
	first.Page().RLock()
	defer func() {
		first.Page().RUnlock()
		t.unpinNode(first, false)
	}()

	if first.NumKeys() == 0 {
		return true, false, nil
	}
	cmp := t.cmp.Compare(key, first.KeyAt(0))
	if cmp == 0 {
		return false, true, nil
	}
	return cmp < 0, false, nil
}

// splitNode splits a full node (leaf or internal) in two, moving the upper
// half into a freshly allocated, write-latched sibling added to the
// transaction's latch bag. It returns the sibling and the separator key to
// promote into the parent.
func (t *Tree) splitNode(transaction *txn.Transaction, node *Node) (*Node, []byte, error) {
	sibling, err := t.newNode(node.IsLeaf())
	if err != nil {
		return nil, nil, wrap(err, "split: allocate sibling")
	}
	sibling.Page().Lock()
	transaction.AppendIndexLatchPage(sibling.Page())

	splitPoint := node.minSize()
	moveCount := node.NumKeys() - splitPoint
	for i := 0; i < moveCount; i++ {
		if err := sibling.insertPair(i, node.KeyAt(splitPoint+i), node.RidAt(splitPoint+i)); err != nil {
			return nil, nil, wrap(err, "split: move entries to sibling")
		}
	}
	node.setNumKeys(splitPoint)
	sibling.SetParentPageNo(node.ParentPageNo())

	if node.IsLeaf() {
		oldNext := node.NextLeafPageNo()
		sibling.SetPrevLeafPageNo(node.PageNo())
		sibling.SetNextLeafPageNo(oldNext)
		node.SetNextLeafPageNo(sibling.PageNo())

		if oldNext == LeafHeaderPageNo {
			if err := t.setLastLeafPageNo(sibling.PageNo()); err != nil {
				return nil, nil, err
			}
			lh, err := t.readLeafHeader()
			if err != nil {
				return nil, nil, err
			}
			lh.Prev = sibling.PageNo()
			if err := t.writeLeafHeader(lh); err != nil {
				return nil, nil, err
			}
		} else if err := t.relinkLeafPrev(transaction, oldNext, sibling.PageNo()); err != nil {
			return nil, nil, err
		}
	} else {
		for i := 0; i < sibling.NumKeys(); i++ {
			if err := t.setChildParent(transaction, sibling.ChildAt(i), sibling.PageNo()); err != nil {
				return nil, nil, err
			}
		}
	}

	sepKey := append([]byte(nil), sibling.KeyAt(0)...)
	return sibling, sepKey, nil
}

// insertIntoParent inserts the (sepKey, right) separator that split
// produced into left's parent, creating a new root if left had none, and
// recursing if the parent itself overflows.
func (t *Tree) insertIntoParent(transaction *txn.Transaction, left *Node, sepKey []byte, right *Node) error {
	parentNo := left.ParentPageNo()
	if parentNo == NoPage {
		return t.createNewRoot(left, sepKey, right)
	}

	parent, err := t.latchNode(transaction, parentNo)
	if err != nil {
		return wrap(err, "insert_into_parent: fetch parent")
	}

	rank := parent.findChild(left.PageNo())
	if rank < 0 {
		return wrap(ErrBadSlot, "insert_into_parent: child not found in parent")
	}
	if err := parent.insertPair(rank+1, sepKey, Rid{PageNo: int32(right.PageNo())}); err != nil {
		return wrap(err, "insert_into_parent: insert separator")
	}

	if parent.NumKeys() == parent.MaxSize() {
		grandSibling, grandSep, err := t.splitNode(transaction, parent)
		if err != nil {
			return err
		}
		if err := t.insertIntoParent(transaction, parent, grandSep, grandSibling); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tree) createNewRoot(left *Node, sepKey []byte, right *Node) error {
	newRoot, err := t.newNode(false)
	if err != nil {
		return wrap(err, "create new root: allocate")
	}
	newRoot.Page().Lock()
	defer func() {
		newRoot.Page().Unlock()
		t.unpinNode(newRoot, true)
	}()

	if err := newRoot.insertPair(0, left.KeyAt(0), Rid{PageNo: int32(left.PageNo())}); err != nil {
		return wrap(err, "create new root: insert left")
	}
	if err := newRoot.insertPair(1, sepKey, Rid{PageNo: int32(right.PageNo())}); err != nil {
		return wrap(err, "create new root: insert right")
	}
	left.SetParentPageNo(newRoot.PageNo())
	right.SetParentPageNo(newRoot.PageNo())
	return t.setRootPageNo(newRoot.PageNo())
}

// setChildParent updates a child's parent pointer, reusing the caller's
// already-held latch when the child happens to be on our own descent path.
func (t *Tree) setChildParent(transaction *txn.Transaction, childPageNo, parentPageNo int64) error {
	child, err := t.latchNode(transaction, childPageNo)
	if err != nil {
		return wrap(err, "re-parent child: fetch")
	}
	child.SetParentPageNo(parentPageNo)
	return nil
}

// relinkLeafPrev updates a leaf's prev pointer after a new sibling is
// spliced in before it, reusing the caller's latch if held.
func (t *Tree) relinkLeafPrev(transaction *txn.Transaction, leafPageNo, newPrev int64) error {
	n, err := t.latchNode(transaction, leafPageNo)
	if err != nil {
		return wrap(err, "relink leaf prev: fetch")
	}
	n.SetPrevLeafPageNo(newPrev)
	return nil
}
