package bptree

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/daemondb/ixcore/types"
)

// Comparator compares two composite keys encoded per a fixed Schema. It is
// total and deterministic: every structural decision in the tree routes
// through it.
type Comparator struct {
	schema types.Schema
}

func NewComparator(schema types.Schema) *Comparator {
	return &Comparator{schema: schema}
}

func (c *Comparator) KeyLen() int { return c.schema.KeyLen() }

// Compare returns -1, 0, or +1 comparing a to b column by column, in
// schema-declaration order.
func (c *Comparator) Compare(a, b []byte) int {
	off := 0
	for _, col := range c.schema {
		av := a[off : off+col.Len]
		bv := b[off : off+col.Len]
		if cmp := compareColumn(col, av, bv); cmp != 0 {
			return cmp
		}
		off += col.Len
	}
	return 0
}

func compareColumn(col types.ColumnDef, a, b []byte) int {
	switch col.Type {
	case types.TypeInt:
		av := int32(binary.LittleEndian.Uint32(a))
		bv := int32(binary.LittleEndian.Uint32(b))
		return cmpInt64(int64(av), int64(bv))
	case types.TypeBigInt:
		av := int64(binary.LittleEndian.Uint64(a))
		bv := int64(binary.LittleEndian.Uint64(b))
		return cmpInt64(av, bv)
	case types.TypeFloat:
		av := math.Float64frombits(binary.LittleEndian.Uint64(a))
		bv := math.Float64frombits(binary.LittleEndian.Uint64(b))
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case types.TypeChar:
		return bytes.Compare(a, b)
	case types.TypeDateTime:
		// Packed big-endian so byte-lexicographic order already matches
		// temporal order.
		return bytes.Compare(a, b)
	default:
		return bytes.Compare(a, b)
	}
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
