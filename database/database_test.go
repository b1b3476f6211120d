package database_test

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"blockidx/btree"
	"blockidx/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDatabase(t *testing.T) (*database.Database, string) {
	t.Helper()
	dir := t.TempDir()
	db := database.New(filepath.Join(dir, "test.idx"), database.DefaultConfig())
	require.NoError(t, db.Create(false))
	return db, dir
}

func TestSearchOnEmptyIndex(t *testing.T) {
	db, _ := newDatabase(t)

	_, found, err := db.Search(42)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCreateRefusesExistingUnlessOverwrite(t *testing.T) {
	db, _ := newDatabase(t)
	require.NoError(t, db.Insert(1, 10))

	err := db.Create(false)
	assert.ErrorIs(t, err, btree.ErrExists)

	_, found, err := db.Search(1)
	require.NoError(t, err)
	assert.True(t, found, "refused create must leave the index intact")

	require.NoError(t, db.Create(true))
	_, found, err = db.Search(1)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLoadThenExtract(t *testing.T) {
	db, dir := newDatabase(t)

	in := filepath.Join(dir, "in.csv")
	require.NoError(t, os.WriteFile(in, []byte("30,300\n10,100\n50,500\n20,200\n40,400\n"), 0644))

	n, err := db.Load(in)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	out := filepath.Join(dir, "out.csv")
	n, err = db.Extract(out)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "10,100\n20,200\n30,300\n40,400\n50,500\n", string(got))

	leftovers, err := filepath.Glob(filepath.Join(dir, ".*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestLoadExtractRoundTrip(t *testing.T) {
	db, dir := newDatabase(t)

	const count = 1000
	var in bytes.Buffer
	for i := count; i > 0; i-- {
		fmt.Fprintf(&in, "%d,%d\n", i*3, i*7)
	}
	inPath := filepath.Join(dir, "bulk.csv")
	require.NoError(t, os.WriteFile(inPath, in.Bytes(), 0644))

	start := time.Now()
	n, err := db.Load(inPath)
	require.NoError(t, err)
	require.Equal(t, count, n)
	t.Logf("loaded %d pairs in %v", n, time.Since(start))

	outPath := filepath.Join(dir, "bulk-out.csv")
	_, err = db.Extract(outPath)
	require.NoError(t, err)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, count)
	for i, line := range lines {
		assert.Equal(t, fmt.Sprintf("%d,%d", (i+1)*3, (i+1)*7), line)
	}

	stats, err := db.Verify()
	require.NoError(t, err)
	assert.EqualValues(t, count, stats.Keys)
}

func TestLoadReportsBadLine(t *testing.T) {
	db, dir := newDatabase(t)

	tests := []struct {
		name    string
		content string
		loaded  int
		line    string
	}{
		{"non numeric key", "1,1\n2,2\nthree,3\n", 2, "line 3"},
		{"negative value", "5,-5\n", 0, "line 1"},
		{"too many fields", "1,2,3\n", 0, "line 1"},
		{"overflow", "18446744073709551616,1\n", 0, "line 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "_")+".csv")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			n, err := db.Load(path)
			assert.ErrorIs(t, err, database.ErrBadRecord)
			assert.Contains(t, err.Error(), tt.line)
			assert.Equal(t, tt.loaded, n)
		})
	}
}

func TestReadPairsSkipsBlankLines(t *testing.T) {
	var keys []uint64
	n, err := database.ReadPairs(strings.NewReader("\n1, 2\r\n\n18446744073709551615,0\n"), func(k, v uint64) error {
		keys = append(keys, k)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []uint64{1, 18446744073709551615}, keys)
}

func TestExtractEmptyIndex(t *testing.T) {
	db, dir := newDatabase(t)
	out := filepath.Join(dir, "empty.csv")

	n, err := db.Extract(out)
	require.NoError(t, err)
	assert.Zero(t, n)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestForeignFileIsNotModified(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "foreign.idx")
	content := append([]byte("NOTMAGIC"), make([]byte, 1016)...)
	require.NoError(t, os.WriteFile(path, content, 0644))

	db := database.New(path, database.DefaultConfig())

	err := db.Insert(1, 1)
	assert.ErrorIs(t, err, btree.ErrInvalidFormat)
	_, _, err = db.Search(1)
	assert.ErrorIs(t, err, btree.ErrInvalidFormat)

	csvPath := filepath.Join(dir, "in.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("1,1\n"), 0644))
	_, err = db.Load(csvPath)
	assert.ErrorIs(t, err, btree.ErrInvalidFormat)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, after)
}

func TestMissingIndex(t *testing.T) {
	db := database.New(filepath.Join(t.TempDir(), "nope.idx"), database.DefaultConfig())
	_, _, err := db.Search(1)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSeed(t *testing.T) {
	db, _ := newDatabase(t)

	n, err := db.Seed(300)
	require.NoError(t, err)
	assert.Equal(t, 300, n)

	stats, err := db.Verify()
	require.NoError(t, err)
	assert.NotZero(t, stats.Keys)
	assert.LessOrEqual(t, stats.Keys, uint64(300))
}

func TestInfo(t *testing.T) {
	db, _ := newDatabase(t)
	for k := uint64(1); k <= 25; k++ {
		require.NoError(t, db.Insert(k, k))
	}
	h, stats, err := db.Info()
	require.NoError(t, err)
	assert.EqualValues(t, 2, h.RootID)
	assert.Equal(t, 2, stats.Height)
}
