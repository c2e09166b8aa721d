package bptree

import (
	"go.uber.org/zap"

	"github.com/daemondb/ixcore/storage/txn"
)

// DeleteEntry removes the entry for key, if present.
func (t *Tree) DeleteEntry(key []byte) (bool, error) {
	if len(key) != t.cmp.KeyLen() {
		return false, ErrInvalidKeyLength
	}
	if t.isEmpty() {
		return false, nil
	}

	findFirst, cannotExist, err := t.probeLeftmostForDelete(key)
	if err != nil {
		return false, err
	}
	if cannotExist {
		return false, nil
	}

	transaction := txn.New()
	leaf, rootHeld, err := t.findLeaf(key, OpDelete, transaction, findFirst)
	if err != nil {
		if err == ErrEmptyTree {
			return false, nil
		}
		return false, err
	}

	removed, err := leaf.remove(key, t.cmp)
	if err != nil || !removed {
		t.releaseLatchBag(transaction, true)
		if rootHeld {
			t.rootLatch.Unlock()
		}
		return false, err
	}

	if leaf.NumKeys() > 0 {
		firstKey := append([]byte(nil), leaf.KeyAt(0)...)
		if mErr := t.maintainParent(transaction, leaf.PageNo(), leaf.ParentPageNo(), firstKey); mErr != nil {
			t.releaseLatchBag(transaction, true)
			if rootHeld {
				t.rootLatch.Unlock()
			}
			return false, mErr
		}
	}

	smoErr := t.coalesceOrRedistribute(transaction, leaf)

	leafPageNo := leaf.PageNo()
	t.releaseLatchBag(transaction, true)
	if rootHeld {
		t.rootLatch.Unlock()
	}
	t.drainDeletedPages(transaction)

	if smoErr != nil {
		return false, smoErr
	}
	t.log.Debug("delete_entry committed", zap.Int64("leaf", leafPageNo))
	return true, nil
}

// probeLeftmostForDelete mirrors probeLeftmost for the delete path: a key
// smaller than the current global minimum cannot
// exist in the tree, so the descent can be skipped entirely; a key equal to
// the minimum forces the pessimistic leftmost descent because deleting it
// will change the tree's global minimum.
func (t *Tree) probeLeftmostForDelete(key []byte) (findFirst bool, cannotExist bool, err error) {
	firstNo := t.getFirstLeafPageNo()
	if firstNo == NoPage {
		return false, true, nil
	}
	first, err := t.fetchNode(firstNo)
	if err != nil {
		return false, false, wrap(err, "probe leftmost (delete): fetch first leaf")
	}
	first.Page().RLock()
	defer func() {
		first.Page().RUnlock()
		t.unpinNode(first, false)
	}()

	if first.NumKeys() == 0 {
		return false, true, nil
	}
	cmp := t.cmp.Compare(key, first.KeyAt(0))
	if cmp < 0 {
		return false, true, nil
	}
	return cmp == 0, false, nil
}

// coalesceOrRedistribute restores the minimum-occupancy invariant for node
// after an entry was removed from it, recursing up through the ancestor
// chain when a coalesce empties out node's parent slot too.
func (t *Tree) coalesceOrRedistribute(transaction *txn.Transaction, node *Node) error {
	parentNo := node.ParentPageNo()
	if parentNo == NoPage {
		return t.adjustRoot(transaction, node)
	}
	if node.NumKeys() >= node.minSize() {
		return nil
	}

	parent, err := t.latchNode(transaction, parentNo)
	if err != nil {
		return wrap(err, "coalesce_or_redistribute: fetch parent")
	}

	rank := parent.findChild(node.PageNo())
	if rank < 0 {
		return wrap(ErrBadSlot, "coalesce_or_redistribute: child not found in parent")
	}
	var siblingRank int
	if rank > 0 {
		siblingRank = rank - 1
	} else {
		siblingRank = rank + 1
	}
	siblingNo := parent.ChildAt(siblingRank)

	sibling, err := t.fetchNode(siblingNo)
	if err != nil {
		return wrap(err, "coalesce_or_redistribute: fetch sibling")
	}
	sibling.Page().Lock()
	transaction.AppendIndexLatchPage(sibling.Page())

	if node.NumKeys()+sibling.NumKeys() >= 2*node.minSize() {
		return t.redistribute(transaction, node, sibling, parent, rank, siblingRank)
	}
	if err := t.coalesce(transaction, node, sibling, parent, rank, siblingRank); err != nil {
		return err
	}
	return t.coalesceOrRedistribute(transaction, parent)
}

// redistribute borrows a single entry across the node/sibling boundary so
// both sides clear minSize again, then propagates whichever side's first
// key moved up through the ancestor chain.
func (t *Tree) redistribute(transaction *txn.Transaction, node, sibling, parent *Node, rank, siblingRank int) error {
	if siblingRank < rank {
		last := sibling.NumKeys() - 1
		key := append([]byte(nil), sibling.KeyAt(last)...)
		rid := sibling.RidAt(last)
		if err := node.insertPair(0, key, rid); err != nil {
			return wrap(err, "redistribute: borrow from left sibling")
		}
		if err := sibling.erasePair(last); err != nil {
			return err
		}
		if !node.IsLeaf() {
			if err := t.setChildParent(transaction, int64(rid.PageNo), node.PageNo()); err != nil {
				return err
			}
		}
		newFirst := append([]byte(nil), node.KeyAt(0)...)
		return t.maintainParent(transaction, node.PageNo(), parent.PageNo(), newFirst)
	}

	key := append([]byte(nil), sibling.KeyAt(0)...)
	rid := sibling.RidAt(0)
	if err := node.insertPair(node.NumKeys(), key, rid); err != nil {
		return wrap(err, "redistribute: borrow from right sibling")
	}
	if err := sibling.erasePair(0); err != nil {
		return err
	}
	if !node.IsLeaf() {
		if err := t.setChildParent(transaction, int64(rid.PageNo), node.PageNo()); err != nil {
			return err
		}
	}
	newSiblingFirst := append([]byte(nil), sibling.KeyAt(0)...)
	return t.maintainParent(transaction, sibling.PageNo(), parent.PageNo(), newSiblingFirst)
}

// coalesce merges the right of {node, sibling} into the left, removes the
// separator from parent, and marks the emptied page for deferred deletion:
// it is not actually freed until every latch on it is released, via
// drainDeletedPages after the top-level operation's releaseLatchBag.
func (t *Tree) coalesce(transaction *txn.Transaction, node, sibling, parent *Node, rank, siblingRank int) error {
	var left, right *Node
	var rightRank int
	if siblingRank < rank {
		left, right = sibling, node
		rightRank = rank
	} else {
		left, right = node, sibling
		rightRank = siblingRank
	}

	moveCount := right.NumKeys()
	for i := 0; i < moveCount; i++ {
		if err := left.insertPair(left.NumKeys(), right.KeyAt(i), right.RidAt(i)); err != nil {
			return wrap(err, "coalesce: move entries into left sibling")
		}
	}
	if !left.IsLeaf() {
		for i := 0; i < moveCount; i++ {
			if err := t.setChildParent(transaction, right.ChildAt(i), left.PageNo()); err != nil {
				return err
			}
		}
	}
	if left.IsLeaf() {
		rightNext := right.NextLeafPageNo()
		left.SetNextLeafPageNo(rightNext)
		if rightNext == LeafHeaderPageNo {
			if err := t.setLastLeafPageNo(left.PageNo()); err != nil {
				return err
			}
			lh, err := t.readLeafHeader()
			if err != nil {
				return err
			}
			lh.Prev = left.PageNo()
			if err := t.writeLeafHeader(lh); err != nil {
				return err
			}
		} else if err := t.relinkLeafPrev(transaction, rightNext, left.PageNo()); err != nil {
			return err
		}
	}

	if err := parent.erasePair(rightRank); err != nil {
		return wrap(err, "coalesce: remove separator from parent")
	}
	right.setNumKeys(0)
	transaction.AppendIndexDeletedPage(right.PageNo())
	return nil
}

// adjustRoot handles the two ways a root can shrink out of existence: an
// internal root left with a single child promotes that child to root; a
// leaf root left with zero entries empties the tree.
func (t *Tree) adjustRoot(transaction *txn.Transaction, node *Node) error {
	if node.IsLeaf() {
		if node.NumKeys() == 0 {
			if err := t.setEmptyTreeHeader(); err != nil {
				return err
			}
			sentinel := &LeafHeader{Prev: LeafHeaderPageNo, Next: LeafHeaderPageNo}
			if err := t.writeLeafHeader(sentinel); err != nil {
				return err
			}
			transaction.AppendIndexDeletedPage(node.PageNo())
		}
		return nil
	}
	if node.NumKeys() == 1 {
		onlyChild := node.ChildAt(0)
		if err := t.setChildParent(transaction, onlyChild, NoPage); err != nil {
			return err
		}
		if err := t.setRootPageNo(onlyChild); err != nil {
			return err
		}
		transaction.AppendIndexDeletedPage(node.PageNo())
	}
	return nil
}
