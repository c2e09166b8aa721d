package bptree

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daemondb/ixcore/types"
)

func TestComparator_BigIntOrdering(t *testing.T) {
	cmp := NewComparator(types.Schema{{Name: "id", Type: types.TypeBigInt, Len: 8}})
	require.Negative(t, cmp.Compare(bigIntKey(-5), bigIntKey(3)))
	require.Positive(t, cmp.Compare(bigIntKey(10), bigIntKey(2)))
	require.Zero(t, cmp.Compare(bigIntKey(7), bigIntKey(7)))
}

func TestComparator_FloatOrdering(t *testing.T) {
	cmp := NewComparator(types.Schema{{Name: "score", Type: types.TypeFloat, Len: 8}})
	a := floatKey(-1.5)
	b := floatKey(2.25)
	require.Negative(t, cmp.Compare(a, b))
	require.Positive(t, cmp.Compare(b, a))
}

func TestComparator_CompositeKey(t *testing.T) {
	schema := types.Schema{
		{Name: "dept", Type: types.TypeChar, Len: 4},
		{Name: "id", Type: types.TypeBigInt, Len: 8},
	}
	cmp := NewComparator(schema)

	a := append([]byte("eng\x00"), bigIntKey(1)...)
	b := append([]byte("eng\x00"), bigIntKey(2)...)
	c := append([]byte("hr\x00\x00"), bigIntKey(0)...)

	require.Negative(t, cmp.Compare(a, b), "same department, lower id sorts first")
	require.Negative(t, cmp.Compare(b, c), "department column dominates the comparison")
}

func floatKey(v float64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
	return buf
}
