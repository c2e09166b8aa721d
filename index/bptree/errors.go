package bptree

import "github.com/pkg/errors"

// Sentinel errors for the tree's failure modes. Duplicate/not-found are
// normal, expected outcomes: the public API reports them as a false result
// (or an empty slice) with a nil error and never returns ErrDuplicateKey or
// ErrKeyNotFound.
var (
	ErrDuplicateKey     = errors.New("bptree: duplicate key")
	ErrKeyNotFound      = errors.New("bptree: key not found")
	ErrBadSlot          = errors.New("bptree: slot index out of range")
	ErrBufferExhausted  = errors.New("bptree: buffer pool exhausted")
	ErrEmptyTree        = errors.New("bptree: tree is empty")
	ErrInvalidKeyLength = errors.New("bptree: key length does not match schema")
)

// wrap attaches a stack trace the first time an error crosses an SMO
// boundary.
func wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, msg)
}
