package bptree

import "github.com/daemondb/ixcore/storage/txn"

// Iid identifies one entry's position in the leaf chain by the leaf page
// that holds it and the slot within that leaf. A SlotNo equal to the
// leaf's key count (as LeafEnd returns) names the position just past the
// last real entry, not a valid slot.
type Iid struct {
	PageNo int64
	SlotNo int
}

// Cursor is a forward scan position over the leaf chain, read-latching one
// leaf at a time and crabbing hand-over-hand to the next leaf: the next
// leaf is read-latched before the current one is released, so a concurrent
// split or coalesce can never leave the cursor holding a dangling link.
type Cursor struct {
	t        *Tree
	leaf     *Node
	pos      int
	upperKey []byte
	done     bool
}

// LeafBegin positions a cursor at the first entry in the index, in key
// order.
func (t *Tree) LeafBegin() (*Cursor, error) {
	return t.LowerBound(nil)
}

// LowerBound positions a cursor at the first entry with key >= target. A
// nil target is equivalent to LeafBegin.
func (t *Tree) LowerBound(target []byte) (*Cursor, error) {
	if t.isEmpty() {
		return &Cursor{t: t, done: true}, nil
	}

	var leaf *Node
	var pos int
	if target == nil {
		firstNo := t.getFirstLeafPageNo()
		n, err := t.fetchNode(firstNo)
		if err != nil {
			return nil, wrap(err, "lower_bound: fetch first leaf")
		}
		n.Page().RLock()
		leaf, pos = n, 0
	} else {
		transaction := txn.New()
		n, _, err := t.findLeaf(target, OpFindLower, transaction, false)
		if err != nil {
			if err == ErrEmptyTree {
				return &Cursor{t: t, done: true}, nil
			}
			return nil, err
		}
		leaf, pos = n, n.lowerBound(target, t.cmp)
	}

	for pos >= leaf.NumKeys() {
		nextNo := leaf.NextLeafPageNo()
		if nextNo == NoPage || nextNo == LeafHeaderPageNo {
			leaf.Page().RUnlock()
			t.unpinNode(leaf, false)
			return &Cursor{t: t, done: true}, nil
		}
		next, err := t.fetchNode(nextNo)
		if err != nil {
			leaf.Page().RUnlock()
			t.unpinNode(leaf, false)
			return nil, wrap(err, "lower_bound: fetch next leaf")
		}
		next.Page().RLock()
		leaf.Page().RUnlock()
		t.unpinNode(leaf, false)
		leaf, pos = next, 0
	}
	return &Cursor{t: t, leaf: leaf, pos: pos}, nil
}

// UpperBound positions a cursor at the first entry with key > target,
// returning its Iid alongside the cursor. The descent is driven by
// OpFindUpper rather than OpFindLower, and the landing slot is computed
// with leaf.upperBound, forced to 0 if the leaf's own first key already
// sorts past target: upperBound's binary search ranges over [1, numKeys)
// because index 0 doubles as an internal node's cached subtree-min, a
// convention a leaf has no use for.
func (t *Tree) UpperBound(target []byte) (*Cursor, Iid, error) {
	if t.isEmpty() {
		return &Cursor{t: t, done: true}, Iid{PageNo: NoPage, SlotNo: -1}, nil
	}

	transaction := txn.New()
	leaf, _, err := t.findLeaf(target, OpFindUpper, transaction, false)
	if err != nil {
		if err == ErrEmptyTree {
			return &Cursor{t: t, done: true}, Iid{PageNo: NoPage, SlotNo: -1}, nil
		}
		return nil, Iid{}, err
	}

	pos := leaf.upperBound(target, t.cmp)
	if leaf.NumKeys() > 0 && t.cmp.Compare(leaf.KeyAt(0), target) > 0 {
		pos = 0
	}

	for pos >= leaf.NumKeys() {
		nextNo := leaf.NextLeafPageNo()
		if nextNo == NoPage || nextNo == LeafHeaderPageNo {
			id := Iid{PageNo: leaf.PageNo(), SlotNo: leaf.NumKeys()}
			leaf.Page().RUnlock()
			t.unpinNode(leaf, false)
			return &Cursor{t: t, done: true}, id, nil
		}
		next, err := t.fetchNode(nextNo)
		if err != nil {
			leaf.Page().RUnlock()
			t.unpinNode(leaf, false)
			return nil, Iid{}, wrap(err, "upper_bound: fetch next leaf")
		}
		next.Page().RLock()
		leaf.Page().RUnlock()
		t.unpinNode(leaf, false)
		leaf, pos = next, 0
	}
	id := Iid{PageNo: leaf.PageNo(), SlotNo: pos}
	return &Cursor{t: t, leaf: leaf, pos: pos}, id, nil
}

// LeafEnd returns the Iid one past the last entry in the index: the last
// leaf's page number paired with its key count as slot. An empty tree
// reports NoPage.
func (t *Tree) LeafEnd() (Iid, error) {
	lastNo := t.getLastLeafPageNo()
	if lastNo == NoPage {
		return Iid{PageNo: NoPage, SlotNo: -1}, nil
	}
	leaf, err := t.fetchNode(lastNo)
	if err != nil {
		return Iid{}, wrap(err, "leaf_end: fetch last leaf")
	}
	leaf.Page().RLock()
	id := Iid{PageNo: leaf.PageNo(), SlotNo: leaf.NumKeys()}
	leaf.Page().RUnlock()
	t.unpinNode(leaf, false)
	return id, nil
}

// ScanRange positions a cursor at the first entry with key >= lower and
// bounds it to stop once it would return an entry with key >= upper. A nil
// lower starts from LeafBegin; a nil upper leaves the scan open-ended.
func (t *Tree) ScanRange(lower, upper []byte) (*Cursor, error) {
	c, err := t.LowerBound(lower)
	if err != nil {
		return nil, err
	}
	c.upperKey = upper
	if !c.done && upper != nil && t.cmp.Compare(c.leaf.KeyAt(c.pos), upper) >= 0 {
		c.Close()
		c.done = true
	}
	return c, nil
}

// Valid reports whether Key/Rid may be called.
func (c *Cursor) Valid() bool { return !c.done }

// Key returns a copy of the current entry's key.
func (c *Cursor) Key() []byte {
	return append([]byte(nil), c.leaf.KeyAt(c.pos)...)
}

// Rid returns the current entry's record pointer.
func (c *Cursor) Rid() Rid { return c.leaf.RidAt(c.pos) }

// Next advances the cursor by one entry, crabbing to the next leaf when the
// current one is exhausted.
func (c *Cursor) Next() error {
	if c.done {
		return nil
	}
	c.pos++
	for c.pos >= c.leaf.NumKeys() {
		nextNo := c.leaf.NextLeafPageNo()
		if nextNo == NoPage || nextNo == LeafHeaderPageNo {
			c.leaf.Page().RUnlock()
			c.t.unpinNode(c.leaf, false)
			c.leaf = nil
			c.done = true
			return nil
		}
		next, err := c.t.fetchNode(nextNo)
		if err != nil {
			c.leaf.Page().RUnlock()
			c.t.unpinNode(c.leaf, false)
			c.leaf = nil
			c.done = true
			return wrap(err, "cursor next: fetch next leaf")
		}
		next.Page().RLock()
		c.leaf.Page().RUnlock()
		c.t.unpinNode(c.leaf, false)
		c.leaf, c.pos = next, 0
	}
	if c.upperKey != nil && c.t.cmp.Compare(c.leaf.KeyAt(c.pos), c.upperKey) >= 0 {
		c.Close()
	}
	return nil
}

// Close releases the cursor's current leaf latch. Safe to call multiple
// times and on an already-exhausted cursor.
func (c *Cursor) Close() {
	if c.leaf != nil {
		c.leaf.Page().RUnlock()
		c.t.unpinNode(c.leaf, false)
		c.leaf = nil
	}
	c.done = true
}
