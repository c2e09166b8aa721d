package bptree

import (
	"encoding/binary"

	"github.com/daemondb/ixcore/storage/page"
	"github.com/daemondb/ixcore/types"
)

// NoPage marks the absence of a page reference (empty tree, no parent, no
// sibling).
const NoPage int64 = -1

const (
	// FileHeaderPageNo is where the FileHeader lives.
	FileHeaderPageNo int64 = 0
	// LeafHeaderPageNo is the sentinel anchoring the leaf ring.
	LeafHeaderPageNo int64 = 1
	// firstDataPageNo is the first page number available for real nodes.
	firstDataPageNo int64 = 2

	checksumTrailerLen = 8
	nodeHeaderLen       = 20
	ridLen               = 8
)

// FileHeader is the persistent root of an index file (page 0).
type FileHeader struct {
	Schema   types.Schema
	MaxSize  int // max keys per node, derived from key width and page size
	NumPages int64

	RootPageNo      int64
	FirstLeafPageNo int64
	LastLeafPageNo  int64
}

// NewFileHeader computes MaxSize from the schema's key width and
// initializes an empty tree.
func NewFileHeader(schema types.Schema) *FileHeader {
	keyLen := schema.KeyLen()
	maxSize := (page.Size - checksumTrailerLen - nodeHeaderLen) / (keyLen + ridLen)
	return &FileHeader{
		Schema:          schema,
		MaxSize:         maxSize,
		NumPages:        firstDataPageNo,
		RootPageNo:      NoPage,
		FirstLeafPageNo: NoPage,
		LastLeafPageNo:  NoPage,
	}
}

// Serialize writes the header into a page's byte buffer.
func (h *FileHeader) Serialize(buf []byte) {
	off := 0
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(h.Schema)))
	off += 4
	for _, col := range h.Schema {
		buf[off] = byte(col.Type)
		off++
		binary.LittleEndian.PutUint32(buf[off:], uint32(col.Len))
		off += 4
	}
	binary.LittleEndian.PutUint32(buf[off:], uint32(h.MaxSize))
	off += 4
	binary.LittleEndian.PutUint64(buf[off:], uint64(h.NumPages))
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], uint64(h.RootPageNo))
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], uint64(h.FirstLeafPageNo))
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], uint64(h.LastLeafPageNo))
}

// DeserializeFileHeader reconstructs a header from a page's byte buffer.
func DeserializeFileHeader(buf []byte) *FileHeader {
	off := 0
	colCount := int(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	schema := make(types.Schema, colCount)
	for i := 0; i < colCount; i++ {
		schema[i].Type = types.ColType(buf[off])
		off++
		schema[i].Len = int(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
	}
	h := &FileHeader{Schema: schema}
	h.MaxSize = int(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	h.NumPages = int64(binary.LittleEndian.Uint64(buf[off:]))
	off += 8
	h.RootPageNo = int64(binary.LittleEndian.Uint64(buf[off:]))
	off += 8
	h.FirstLeafPageNo = int64(binary.LittleEndian.Uint64(buf[off:]))
	off += 8
	h.LastLeafPageNo = int64(binary.LittleEndian.Uint64(buf[off:]))
	return h
}

// LeafHeader is the sentinel page (page 1) closing the leaf ring: its Next
// is the first leaf, its Prev is the last leaf, so first.Prev and last.Next
// always resolve to a fetchable page.
type LeafHeader struct {
	Prev int64
	Next int64
}

func (h *LeafHeader) Serialize(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:], uint64(h.Prev))
	binary.LittleEndian.PutUint64(buf[8:], uint64(h.Next))
}

func DeserializeLeafHeader(buf []byte) *LeafHeader {
	return &LeafHeader{
		Prev: int64(binary.LittleEndian.Uint64(buf[0:])),
		Next: int64(binary.LittleEndian.Uint64(buf[8:])),
	}
}
