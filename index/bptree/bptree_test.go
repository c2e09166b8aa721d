package bptree

import (
	"encoding/binary"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daemondb/ixcore/storage/bufferpool"
	"github.com/daemondb/ixcore/storage/diskmanager"
	"github.com/daemondb/ixcore/types"
)

// newTestTree builds a fresh single-BigInt-column index backed by a temp
// file and a buffer pool of poolCapacity frames.
func newTestTree(t *testing.T, poolCapacity int) *Tree {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "ixcore-*.idx")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	disk, err := diskmanager.Open(f.Name(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { disk.Close() })

	pool := bufferpool.New(poolCapacity, disk, nil)
	schema := types.Schema{{Name: "id", Type: types.TypeBigInt, Len: 8}}

	tree, err := Create(disk, pool, schema, nil)
	require.NoError(t, err)
	return tree
}

func bigIntKey(v int64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(v))
	return buf
}
