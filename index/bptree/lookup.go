package bptree

import "github.com/daemondb/ixcore/storage/txn"

// GetValue returns the rid(s) associated with key (at most one for a unique
// index), or an empty slice if absent.
func (t *Tree) GetValue(key []byte) ([]Rid, error) {
	if len(key) != t.cmp.KeyLen() {
		return nil, ErrInvalidKeyLength
	}
	if t.isEmpty() {
		return nil, nil
	}

	transaction := txn.New()
	leaf, _, err := t.findLeaf(key, OpFind, transaction, false)
	if err != nil {
		if err == ErrEmptyTree {
			return nil, nil
		}
		return nil, err
	}
	defer func() {
		leaf.Page().RUnlock()
		t.unpinNode(leaf, false)
	}()

	if rid, ok := leaf.leafLookup(key, t.cmp); ok {
		return []Rid{rid}, nil
	}

	// The target key may have just moved into the next leaf via a split
	// that completed after another reader last observed this boundary but
	// before this descent chose it. Only the last leaf has no "next" to
	// consult.
	nextNo := leaf.NextLeafPageNo()
	if nextNo == NoPage || nextNo == LeafHeaderPageNo {
		return nil, nil
	}
	next, err := t.fetchNode(nextNo)
	if err != nil {
		return nil, err
	}
	next.Page().RLock()
	defer func() {
		next.Page().RUnlock()
		t.unpinNode(next, false)
	}()
	if rid, ok := next.leafLookup(key, t.cmp); ok {
		return []Rid{rid}, nil
	}
	return nil, nil
}
