package bptree

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daemondb/ixcore/storage/page"
	"github.com/daemondb/ixcore/types"
)

func newTestNode(leaf bool, maxSize int) *Node {
	pg := page.New(7)
	n := newNodeView(pg, 8, maxSize)
	n.SetLeaf(leaf)
	n.SetParentPageNo(NoPage)
	n.SetPrevLeafPageNo(NoPage)
	n.SetNextLeafPageNo(NoPage)
	n.setNumKeys(0)
	return n
}

func testComparator() *Comparator {
	return NewComparator(types.Schema{{Name: "id", Type: types.TypeBigInt, Len: 8}})
}

// TestInsert_NewMaximum_NoDuplicateFalsePositive guards against the
// inverted duplicate-check form `pos >= numKeys || cmp != 0`, which treats
// inserting a brand-new maximum key (pos == numKeys) as already-present and
// silently drops the insert.
func TestInsert_NewMaximum_NoDuplicateFalsePositive(t *testing.T) {
	cmp := testComparator()
	n := newTestNode(true, 8)

	ins, err := n.insert(bigIntKey(10), Rid{PageNo: 1}, cmp)
	require.NoError(t, err)
	require.True(t, ins)

	ins, err = n.insert(bigIntKey(20), Rid{PageNo: 2}, cmp)
	require.NoError(t, err)
	require.True(t, ins)
	require.Equal(t, 2, n.NumKeys())

	rid, ok := n.leafLookup(bigIntKey(20), cmp)
	require.True(t, ok)
	require.Equal(t, int32(2), rid.PageNo)
}

func TestInsert_DuplicateRejected(t *testing.T) {
	cmp := testComparator()
	n := newTestNode(true, 8)

	ins, err := n.insert(bigIntKey(5), Rid{PageNo: 1}, cmp)
	require.NoError(t, err)
	require.True(t, ins)

	ins, err = n.insert(bigIntKey(5), Rid{PageNo: 99}, cmp)
	require.NoError(t, err)
	require.False(t, ins)
	require.Equal(t, 1, n.NumKeys())
}

func TestRemove_UpdatesOrderAndCount(t *testing.T) {
	cmp := testComparator()
	n := newTestNode(true, 8)
	for _, v := range []int64{1, 2, 3, 4} {
		_, err := n.insert(bigIntKey(v), Rid{PageNo: int32(v)}, cmp)
		require.NoError(t, err)
	}

	removed, err := n.remove(bigIntKey(2), cmp)
	require.NoError(t, err)
	require.True(t, removed)
	require.Equal(t, 3, n.NumKeys())

	_, ok := n.leafLookup(bigIntKey(2), cmp)
	require.False(t, ok)

	rid, ok := n.leafLookup(bigIntKey(3), cmp)
	require.True(t, ok)
	require.Equal(t, int32(3), rid.PageNo)
}

func TestIsSafe_RootVsNonRootThresholds(t *testing.T) {
	leaf := newTestNode(true, 8)
	for _, v := range []int64{1, 2} {
		_, _ = leaf.insert(bigIntKey(v), Rid{}, testComparator())
	}
	require.True(t, leaf.isSafe(OpDelete, true), "leaf root with 2 keys may safely lose one")

	nonRootLeaf := newTestNode(true, 8)
	_, _ = nonRootLeaf.insert(bigIntKey(1), Rid{}, testComparator())
	require.False(t, nonRootLeaf.isSafe(OpDelete, false), "non-root leaf below minSize is unsafe to shrink")
}
