package database

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"blockidx/btree"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrBadRecord = errors.New("malformed key,value record")

// ReadPairs parses "key,value" lines of base-10 u64s and hands each pair to
// fn in file order. Blank lines are skipped. It returns the number of pairs
// passed to fn.
func ReadPairs(r io.Reader, fn func(key, value uint64) error) (int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	n := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				return n, fmt.Errorf("%w: line %d: %v", ErrBadRecord, perr.StartLine, perr.Err)
			}
			return n, err
		}
		line, _ := cr.FieldPos(0)

		key, err := strconv.ParseUint(strings.TrimSpace(rec[0]), 10, 64)
		if err != nil {
			return n, fmt.Errorf("%w: line %d: key %q", ErrBadRecord, line, rec[0])
		}
		value, err := strconv.ParseUint(strings.TrimSpace(rec[1]), 10, 64)
		if err != nil {
			return n, fmt.Errorf("%w: line %d: value %q", ErrBadRecord, line, rec[1])
		}
		if err := fn(key, value); err != nil {
			return n, err
		}
		n++
	}
}

// WritePairs writes one "key,value" line per visited pair. traverse is
// normally BTree.Traverse, so lines come out in ascending key order.
func WritePairs(w io.Writer, traverse func(btree.Visitor) error) (int, error) {
	cw := csv.NewWriter(w)
	rec := make([]string, 2)
	n := 0
	err := traverse(func(key, value uint64) error {
		rec[0] = strconv.FormatUint(key, 10)
		rec[1] = strconv.FormatUint(value, 10)
		if err := cw.Write(rec); err != nil {
			return err
		}
		n++
		return nil
	})
	if err != nil {
		return n, err
	}
	cw.Flush()
	return n, cw.Error()
}

// Load inserts every pair of the text file. Pairs before a bad line stay
// inserted.
func (db *Database) Load(textPath string) (int, error) {
	f, err := os.Open(textPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open input file: %w", err)
	}
	defer f.Close()

	var n int
	err = db.withTree(false, func(bt *btree.BTree) error {
		n, err = ReadPairs(f, bt.Insert)
		return err
	})
	if err != nil {
		return n, fmt.Errorf("failed to load %s: %w", textPath, err)
	}
	db.cfg.Logger.Info("pairs loaded", zap.String("file", textPath), zap.Int("pairs", n))
	return n, nil
}

// Extract writes all pairs in ascending key order. The output is written to
// a temporary file next to textPath and renamed into place once complete.
func (db *Database) Extract(textPath string) (int, error) {
	tmp := filepath.Join(filepath.Dir(textPath),
		fmt.Sprintf(".%s.%s.tmp", filepath.Base(textPath), uuid.NewString()))
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to create output file: %w", err)
	}
	defer os.Remove(tmp)

	var n int
	err = db.withTree(true, func(bt *btree.BTree) error {
		n, err = WritePairs(f, bt.Traverse)
		return err
	})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("failed to extract to %s: %w", textPath, err)
	}
	if err := os.Rename(tmp, textPath); err != nil {
		return n, fmt.Errorf("failed to move output into place: %w", err)
	}
	db.cfg.Logger.Info("pairs extracted", zap.String("file", textPath), zap.Int("pairs", n))
	return n, nil
}
