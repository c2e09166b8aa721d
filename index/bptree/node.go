package bptree

import (
	"encoding/binary"

	"github.com/daemondb/ixcore/storage/page"
)

// OpKind distinguishes the five ways a descent can be driven: it selects
// which branch internalLookup takes and which latch regime findLeaf uses.
type OpKind uint8

const (
	OpFind OpKind = iota
	OpFindLower
	OpFindUpper
	OpInsert
	OpDelete
)

// Rid is either a heap-file record pointer (leaf entries) or a child page
// number (internal entries, SlotNo unused).
type Rid struct {
	PageNo int32
	SlotNo int32
}

// Node is a page-backed view of one B+ tree node. It never outlives the
// page's pin; all accessors read/write directly into pg.Data.
type Node struct {
	pg      *page.Page
	keyLen  int
	maxSize int
}

func newNodeView(pg *page.Page, keyLen, maxSize int) *Node {
	return &Node{pg: pg, keyLen: keyLen, maxSize: maxSize}
}

func (n *Node) Page() *page.Page { return n.pg }
func (n *Node) PageNo() int64    { return n.pg.ID }
func (n *Node) MaxSize() int     { return n.maxSize }

func (n *Node) IsLeaf() bool      { return n.pg.Data[0] != 0 }
func (n *Node) SetLeaf(leaf bool) {
	if leaf {
		n.pg.Data[0] = 1
	} else {
		n.pg.Data[0] = 0
	}
}

func (n *Node) NumKeys() int { return int(binary.LittleEndian.Uint32(n.pg.Data[4:])) }
func (n *Node) setNumKeys(k int) {
	binary.LittleEndian.PutUint32(n.pg.Data[4:], uint32(k))
}

func (n *Node) ParentPageNo() int64 {
	return int64(int32(binary.LittleEndian.Uint32(n.pg.Data[8:])))
}
func (n *Node) SetParentPageNo(p int64) {
	binary.LittleEndian.PutUint32(n.pg.Data[8:], uint32(int32(p)))
}

func (n *Node) PrevLeafPageNo() int64 {
	return int64(int32(binary.LittleEndian.Uint32(n.pg.Data[12:])))
}
func (n *Node) SetPrevLeafPageNo(p int64) {
	binary.LittleEndian.PutUint32(n.pg.Data[12:], uint32(int32(p)))
}

func (n *Node) NextLeafPageNo() int64 {
	return int64(int32(binary.LittleEndian.Uint32(n.pg.Data[16:])))
}
func (n *Node) SetNextLeafPageNo(p int64) {
	binary.LittleEndian.PutUint32(n.pg.Data[16:], uint32(int32(p)))
}

func (n *Node) keysOffset() int { return nodeHeaderLen }
func (n *Node) ridsOffset() int { return nodeHeaderLen + n.maxSize*n.keyLen }

// KeyAt returns a view (not a copy) of the i-th key.
func (n *Node) KeyAt(i int) []byte {
	off := n.keysOffset() + i*n.keyLen
	return n.pg.Data[off : off+n.keyLen]
}

func (n *Node) setKeyAt(i int, key []byte) {
	off := n.keysOffset() + i*n.keyLen
	copy(n.pg.Data[off:off+n.keyLen], key)
}

func (n *Node) RidAt(i int) Rid {
	off := n.ridsOffset() + i*ridLen
	return Rid{
		PageNo: int32(binary.LittleEndian.Uint32(n.pg.Data[off:])),
		SlotNo: int32(binary.LittleEndian.Uint32(n.pg.Data[off+4:])),
	}
}

func (n *Node) setRidAt(i int, r Rid) {
	off := n.ridsOffset() + i*ridLen
	binary.LittleEndian.PutUint32(n.pg.Data[off:], uint32(r.PageNo))
	binary.LittleEndian.PutUint32(n.pg.Data[off+4:], uint32(r.SlotNo))
}

// ChildAt is a convenience for internal nodes: the i-th rid's PageNo read
// as a child page number.
func (n *Node) ChildAt(i int) int64 { return int64(n.RidAt(i).PageNo) }

func (n *Node) setChildAt(i int, childPageNo int64) {
	n.setRidAt(i, Rid{PageNo: int32(childPageNo)})
}

// lowerBound returns the smallest index i in [0, numKeys] with key[i] >= target.
func (n *Node) lowerBound(target []byte, cmp *Comparator) int {
	lo, hi := 0, n.NumKeys()
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp.Compare(n.KeyAt(mid), target) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// upperBound returns the smallest index i in [1, numKeys] with key[i] > target.
// Starts at 1 because key[0] is the subtree-min cache copy, never a real
// separator.
func (n *Node) upperBound(target []byte, cmp *Comparator) int {
	lo, hi := 1, n.NumKeys()
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp.Compare(n.KeyAt(mid), target) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// internalLookup returns the child page number to descend into for target,
// branching on op.
func (n *Node) internalLookup(target []byte, op OpKind, cmp *Comparator) int64 {
	var pos int
	switch op {
	case OpFind, OpFindLower:
		pos = n.lowerBound(target, cmp) - 1
		if pos < 0 {
			pos = 0
		}
	default:
		pos = n.upperBound(target, cmp) - 1
	}
	return n.ChildAt(pos)
}

// leafLookup returns the rid for an exact key match within this leaf only
// (the cross-leaf-boundary race is handled one level up, in Tree.GetValue).
func (n *Node) leafLookup(key []byte, cmp *Comparator) (Rid, bool) {
	pos := n.lowerBound(key, cmp)
	if pos < n.NumKeys() && cmp.Compare(n.KeyAt(pos), key) == 0 {
		return n.RidAt(pos), true
	}
	return Rid{}, false
}

// insertPair shifts entries right by one and inserts (key, rid) at pos.
func (n *Node) insertPair(pos int, key []byte, rid Rid) error {
	if pos < 0 || pos > n.NumKeys() {
		return ErrBadSlot
	}
	num := n.NumKeys()
	if num >= n.maxSize {
		return wrap(ErrBufferExhausted, "node full, caller must split before inserting")
	}
	for i := num; i > pos; i-- {
		n.setKeyAt(i, n.KeyAt(i-1))
		n.setRidAt(i, n.RidAt(i-1))
	}
	n.setKeyAt(pos, key)
	n.setRidAt(pos, rid)
	n.setNumKeys(num + 1)
	return nil
}

// erasePair shifts entries left by one, removing the entry at pos.
func (n *Node) erasePair(pos int) error {
	num := n.NumKeys()
	if pos < 0 || pos >= num {
		return ErrBadSlot
	}
	for i := pos; i < num-1; i++ {
		n.setKeyAt(i, n.KeyAt(i+1))
		n.setRidAt(i, n.RidAt(i+1))
	}
	n.setNumKeys(num - 1)
	return nil
}

// insert inserts (key, rid) unless key is already present, in which case it
// is a no-op. Returns true if an insert happened.
//
// Duplicate detection is `pos < numKeys && cmp == 0` — NOT the inverted
// `pos >= numKeys || cmp != 0` form, which reads key[numKeys] out of bounds
// whenever the new key is a new maximum.
func (n *Node) insert(key []byte, rid Rid, cmp *Comparator) (bool, error) {
	pos := n.lowerBound(key, cmp)
	if pos < n.NumKeys() && cmp.Compare(n.KeyAt(pos), key) == 0 {
		return false, nil
	}
	if err := n.insertPair(pos, key, rid); err != nil {
		return false, err
	}
	return true, nil
}

// remove deletes the exact-match entry for key, if present.
func (n *Node) remove(key []byte, cmp *Comparator) (bool, error) {
	pos := n.lowerBound(key, cmp)
	if pos >= n.NumKeys() || cmp.Compare(n.KeyAt(pos), key) != 0 {
		return false, nil
	}
	if err := n.erasePair(pos); err != nil {
		return false, err
	}
	return true, nil
}

// findChild returns the rank of childPageNo among this internal node's
// children, or -1 if absent.
func (n *Node) findChild(childPageNo int64) int {
	for i := 0; i < n.NumKeys(); i++ {
		if n.ChildAt(i) == childPageNo {
			return i
		}
	}
	return -1
}

func (n *Node) minSize() int { return (n.maxSize + 1) / 2 }

// isSafe reports whether this node can absorb/lose one entry without
// triggering a further SMO, with the root's relaxed thresholds.
func (n *Node) isSafe(op OpKind, isRoot bool) bool {
	switch op {
	case OpInsert:
		return n.NumKeys()+1 < n.maxSize
	case OpDelete:
		if isRoot {
			if n.IsLeaf() {
				return n.NumKeys() > 1
			}
			return n.NumKeys() > 2
		}
		return n.NumKeys()-1 >= n.minSize()
	default:
		return true
	}
}
