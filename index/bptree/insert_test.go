package bptree

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInsertAndGetValue(t *testing.T) {
	tree := newTestTree(t, 64)

	for i := int64(0); i < 50; i++ {
		ins, err := tree.InsertEntry(bigIntKey(i), Rid{PageNo: int32(i), SlotNo: 1})
		require.NoError(t, err)
		require.True(t, ins)
	}

	for i := int64(0); i < 50; i++ {
		rids, err := tree.GetValue(bigIntKey(i))
		require.NoError(t, err)
		require.Len(t, rids, 1)
		require.Equal(t, int32(i), rids[0].PageNo)
	}

	rids, err := tree.GetValue(bigIntKey(999))
	require.NoError(t, err)
	require.Empty(t, rids)
}

func TestInsertDuplicateRejected(t *testing.T) {
	tree := newTestTree(t, 64)

	ins, err := tree.InsertEntry(bigIntKey(1), Rid{PageNo: 1})
	require.NoError(t, err)
	require.True(t, ins)

	ins, err = tree.InsertEntry(bigIntKey(1), Rid{PageNo: 2})
	require.NoError(t, err)
	require.False(t, ins)

	rids, err := tree.GetValue(bigIntKey(1))
	require.NoError(t, err)
	require.Len(t, rids, 1)
	require.Equal(t, int32(1), rids[0].PageNo)
}

// TestInsertForcesSplit drives enough sequential inserts that the leaf
// root must split at least once, exercising split/insert_into_parent/
// create_new_root and leaving the root an internal node.
func TestInsertForcesSplit(t *testing.T) {
	tree := newTestTree(t, 256)

	const n = 400
	for i := int64(0); i < n; i++ {
		ins, err := tree.InsertEntry(bigIntKey(i), Rid{PageNo: int32(i)})
		require.NoError(t, err)
		require.True(t, ins)
	}

	rootNo := tree.getRootPageNo()
	root, err := tree.fetchNode(rootNo)
	require.NoError(t, err)
	require.False(t, root.IsLeaf(), "root should have split into an internal node")
	require.NoError(t, tree.unpinNode(root, false))

	for i := int64(0); i < n; i++ {
		rids, err := tree.GetValue(bigIntKey(i))
		require.NoError(t, err)
		require.Len(t, rids, 1, "key %d should be findable after the split cascade", i)
		require.Equal(t, int32(i), rids[0].PageNo)
	}
}

// TestInsertDescendingOrder exercises the leftmost-bypass probe's findFirst
// path on every insert, since each new key becomes the new global minimum.
func TestInsertDescendingOrder(t *testing.T) {
	tree := newTestTree(t, 256)

	const n = 300
	for i := int64(n); i > 0; i-- {
		ins, err := tree.InsertEntry(bigIntKey(i), Rid{PageNo: int32(i)})
		require.NoError(t, err)
		require.True(t, ins)
	}

	for i := int64(1); i <= n; i++ {
		rids, err := tree.GetValue(bigIntKey(i))
		require.NoError(t, err)
		require.Len(t, rids, 1)
	}
}
