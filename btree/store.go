package btree

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// BlockSize is the size of every addressable unit of the index file.
const BlockSize = 512

// maxBlockID keeps id*BlockSize inside a file offset.
const maxBlockID = math.MaxInt64 / BlockSize

// BlockStore maps a block id to a fixed BlockSize region of storage. It moves
// raw bytes only; the header and node codecs own the byte order of the fields.
type BlockStore interface {
	ReadBlock(id uint64) ([]byte, error)
	WriteBlock(id uint64, data []byte) error
	Sync() error
	Close() error
}

// FileStore is a BlockStore over a single file, block n at offset n*BlockSize.
type FileStore struct {
	file     *os.File
	path     string
	readOnly bool
}

// CreateFileStore creates a new, empty file. It refuses to touch an existing path.
func CreateFileStore(path string) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrExists, path)
		}
		return nil, fmt.Errorf("failed to create index file: %w", err)
	}
	return &FileStore{file: f, path: path}, nil
}

func OpenFileStore(path string, readOnly bool) (*FileStore, error) {
	flag := os.O_RDWR
	if readOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open index file: %w", err)
	}
	return &FileStore{file: f, path: path, readOnly: readOnly}, nil
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) ReadBlock(id uint64) ([]byte, error) {
	if id > maxBlockID {
		return nil, fmt.Errorf("%w: block %d out of range", ErrIOFault, id)
	}
	buf := make([]byte, BlockSize)
	n, err := s.file.ReadAt(buf, int64(id)*BlockSize)
	if n == BlockSize {
		return buf, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: block %d truncated (%d of %d bytes)", ErrIOFault, id, n, BlockSize)
	}
	return nil, fmt.Errorf("%w: reading block %d: %v", ErrIOFault, id, err)
}

func (s *FileStore) WriteBlock(id uint64, data []byte) error {
	if s.readOnly {
		return ErrReadOnly
	}
	if len(data) != BlockSize {
		return fmt.Errorf("%w: block %d write of %d bytes", ErrIOFault, id, len(data))
	}
	if id > maxBlockID {
		return fmt.Errorf("%w: block %d out of range", ErrIOFault, id)
	}
	if _, err := s.file.WriteAt(data, int64(id)*BlockSize); err != nil {
		return fmt.Errorf("%w: writing block %d: %v", ErrIOFault, id, err)
	}
	return nil
}

func (s *FileStore) Sync() error {
	if s.readOnly {
		return nil
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("%w: sync: %v", ErrIOFault, err)
	}
	return nil
}

func (s *FileStore) Close() error {
	return s.file.Close()
}

// MemStore keeps blocks in a slice indexed by block id. Tests use it to run
// the engine without a file; the contract matches FileStore.
type MemStore struct {
	blocks [][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{}
}

func (m *MemStore) Len() int { return len(m.blocks) }

func (m *MemStore) ReadBlock(id uint64) ([]byte, error) {
	if id >= uint64(len(m.blocks)) {
		return nil, fmt.Errorf("%w: block %d out of range", ErrIOFault, id)
	}
	buf := make([]byte, BlockSize)
	copy(buf, m.blocks[id])
	return buf, nil
}

func (m *MemStore) WriteBlock(id uint64, data []byte) error {
	if len(data) != BlockSize {
		return fmt.Errorf("%w: block %d write of %d bytes", ErrIOFault, id, len(data))
	}
	if id > maxBlockID {
		return fmt.Errorf("%w: block %d out of range", ErrIOFault, id)
	}
	for uint64(len(m.blocks)) <= id {
		m.blocks = append(m.blocks, make([]byte, BlockSize))
	}
	copy(m.blocks[id], data)
	return nil
}

func (m *MemStore) Sync() error  { return nil }
func (m *MemStore) Close() error { return nil }
