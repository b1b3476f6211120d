package btree

import "errors"

var (
	ErrExists        = errors.New("index file already exists")
	ErrInvalidFormat = errors.New("the file is not recognized as a block index")
	ErrIOFault       = errors.New("block read or write failed")
	ErrReadOnly      = errors.New("index was opened read-only")
	ErrCorrupt       = errors.New("b-tree invariant violated")
	ErrClosed        = errors.New("index is closed")
)
