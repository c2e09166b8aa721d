package bptree

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScanLeafBeginOrdered(t *testing.T) {
	tree := newTestTree(t, 256)

	inserted := []int64{50, 10, 30, 20, 40, 5, 45}
	for _, v := range inserted {
		_, err := tree.InsertEntry(bigIntKey(v), Rid{PageNo: int32(v)})
		require.NoError(t, err)
	}

	cur, err := tree.LeafBegin()
	require.NoError(t, err)

	var got []int64
	for cur.Valid() {
		got = append(got, int64(binary.LittleEndian.Uint64(cur.Key())))
		require.NoError(t, cur.Next())
	}

	require.Equal(t, []int64{5, 10, 20, 30, 40, 45, 50}, got)
}

func TestScanRangeBounds(t *testing.T) {
	tree := newTestTree(t, 256)

	for i := int64(0); i < 100; i++ {
		_, err := tree.InsertEntry(bigIntKey(i), Rid{PageNo: int32(i)})
		require.NoError(t, err)
	}

	cur, err := tree.ScanRange(bigIntKey(20), bigIntKey(25))
	require.NoError(t, err)

	var got []int64
	for cur.Valid() {
		got = append(got, int64(binary.LittleEndian.Uint64(cur.Key())))
		require.NoError(t, cur.Next())
	}
	require.Equal(t, []int64{20, 21, 22, 23, 24}, got)
}

func TestScanAcrossLeafSplit(t *testing.T) {
	tree := newTestTree(t, 256)

	const n = 400
	for i := int64(0); i < n; i++ {
		_, err := tree.InsertEntry(bigIntKey(i), Rid{PageNo: int32(i)})
		require.NoError(t, err)
	}

	cur, err := tree.LeafBegin()
	require.NoError(t, err)

	count := int64(0)
	for cur.Valid() {
		require.Equal(t, count, int64(binary.LittleEndian.Uint64(cur.Key())))
		count++
		require.NoError(t, cur.Next())
	}
	require.Equal(t, int64(n), count)
}

func TestUpperBoundSkipsEqualKeys(t *testing.T) {
	tree := newTestTree(t, 256)

	for i := int64(0); i < 50; i += 5 {
		_, err := tree.InsertEntry(bigIntKey(i), Rid{PageNo: int32(i)})
		require.NoError(t, err)
	}

	cur, id, err := tree.UpperBound(bigIntKey(20))
	require.NoError(t, err)
	require.True(t, cur.Valid())
	require.Equal(t, int64(25), int64(binary.LittleEndian.Uint64(cur.Key())))
	require.NotEqual(t, int64(NoPage), id.PageNo)
	cur.Close()
}

func TestUpperBoundOnMissingKeyLandsOnSuccessor(t *testing.T) {
	tree := newTestTree(t, 256)

	for _, v := range []int64{10, 20, 30} {
		_, err := tree.InsertEntry(bigIntKey(v), Rid{PageNo: int32(v)})
		require.NoError(t, err)
	}

	cur, _, err := tree.UpperBound(bigIntKey(15))
	require.NoError(t, err)
	require.True(t, cur.Valid())
	require.Equal(t, int64(20), int64(binary.LittleEndian.Uint64(cur.Key())))
	cur.Close()
}

func TestUpperBoundPastLastKeyIsDone(t *testing.T) {
	tree := newTestTree(t, 256)

	for _, v := range []int64{10, 20, 30} {
		_, err := tree.InsertEntry(bigIntKey(v), Rid{PageNo: int32(v)})
		require.NoError(t, err)
	}

	cur, id, err := tree.UpperBound(bigIntKey(30))
	require.NoError(t, err)
	require.False(t, cur.Valid())

	end, err := tree.LeafEnd()
	require.NoError(t, err)
	require.Equal(t, end, id)
}

func TestLeafEndOnEmptyTree(t *testing.T) {
	tree := newTestTree(t, 256)

	end, err := tree.LeafEnd()
	require.NoError(t, err)
	require.Equal(t, int64(NoPage), end.PageNo)
}
