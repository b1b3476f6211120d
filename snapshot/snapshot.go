package snapshot

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"blockidx/btree"

	"github.com/golang/snappy"
	"github.com/google/uuid"
)

var (
	ErrNotFound    = errors.New("snapshot not found")
	ErrChecksum    = errors.New("snapshot checksum mismatch")
	ErrBadManifest = errors.New("malformed snapshot manifest")
)

const manifestName = "snapshots.json"

// Snapshot is one manifest entry. The object file holds the snappy-encoded
// bytes of the index as it was when the snapshot was taken.
type Snapshot struct {
	ID        string `json:"id"`
	Checksum  string `json:"checksum"`
	Size      int64  `json:"size"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

func (s Snapshot) Time() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s.Timestamp)
}

// Dir returns the snapshot directory kept next to an index file.
func Dir(indexPath string) string {
	return filepath.Join(filepath.Dir(indexPath), "."+filepath.Base(indexPath)+".snapshots")
}

func objectPath(indexPath, id string) string {
	return filepath.Join(Dir(indexPath), "objects", id+".sz")
}

func loadManifest(indexPath string) (map[string]Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(Dir(indexPath), manifestName))
	if os.IsNotExist(err) {
		return map[string]Snapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	snapshots := map[string]Snapshot{}
	if err := json.Unmarshal(data, &snapshots); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return snapshots, nil
}

func storeManifest(indexPath string, snapshots map[string]Snapshot) error {
	data, err := json.MarshalIndent(snapshots, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	return writeFileAtomic(filepath.Join(Dir(indexPath), manifestName), data)
}

func writeFileAtomic(path string, data []byte) error {
	tmp := filepath.Join(filepath.Dir(path), fmt.Sprintf(".%s.%s.tmp", filepath.Base(path), uuid.NewString()))
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// Take copies the index file into the snapshot store and records it in the
// manifest. The file must carry a valid header.
func Take(indexPath, message string) (Snapshot, error) {
	raw, err := os.ReadFile(indexPath)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read index: %w", err)
	}
	if _, err := btree.DecodeHeader(raw); err != nil {
		return Snapshot{}, fmt.Errorf("refusing to snapshot %s: %w", indexPath, err)
	}

	if err := os.MkdirAll(filepath.Join(Dir(indexPath), "objects"), 0755); err != nil {
		return Snapshot{}, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	snapshots, err := loadManifest(indexPath)
	if err != nil {
		return Snapshot{}, err
	}

	sum := sha1.Sum(raw)
	snap := Snapshot{
		ID:        uuid.NewString(),
		Checksum:  hex.EncodeToString(sum[:]),
		Size:      int64(len(raw)),
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := os.WriteFile(objectPath(indexPath, snap.ID), snappy.Encode(nil, raw), 0644); err != nil {
		return Snapshot{}, fmt.Errorf("failed to write snapshot object: %w", err)
	}

	snapshots[snap.ID] = snap
	if err := storeManifest(indexPath, snapshots); err != nil {
		os.Remove(objectPath(indexPath, snap.ID))
		return Snapshot{}, err
	}
	return snap, nil
}

// List returns the snapshots of an index, oldest first. An index that was
// never snapshotted has none. An entry with an unparsable timestamp fails
// the whole listing with ErrBadManifest.
func List(indexPath string) ([]Snapshot, error) {
	snapshots, err := loadManifest(indexPath)
	if err != nil {
		return nil, err
	}
	list := make([]Snapshot, 0, len(snapshots))
	times := make(map[string]time.Time, len(snapshots))
	for id, s := range snapshots {
		t, err := s.Time()
		if err != nil {
			return nil, fmt.Errorf("%w: snapshot %s: %v", ErrBadManifest, id, err)
		}
		times[s.ID] = t
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool {
		ti, tj := times[list[i].ID], times[list[j].ID]
		if ti.Equal(tj) {
			return list[i].ID < list[j].ID
		}
		return ti.Before(tj)
	})
	return list, nil
}

// Restore replaces the index file with the contents of snapshot id. The
// object is checked against its recorded checksum and header before the
// index is touched.
func Restore(indexPath, id string) (Snapshot, error) {
	snapshots, err := loadManifest(indexPath)
	if err != nil {
		return Snapshot{}, err
	}
	snap, ok := snapshots[id]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	encoded, err := os.ReadFile(objectPath(indexPath, id))
	if err != nil {
		return snap, fmt.Errorf("failed to read snapshot object: %w", err)
	}
	raw, err := snappy.Decode(nil, encoded)
	if err != nil {
		return snap, fmt.Errorf("failed to decode snapshot object: %w", err)
	}
	sum := sha1.Sum(raw)
	if hex.EncodeToString(sum[:]) != snap.Checksum || int64(len(raw)) != snap.Size {
		return snap, fmt.Errorf("%w: %s", ErrChecksum, id)
	}
	if _, err := btree.DecodeHeader(raw); err != nil {
		return snap, fmt.Errorf("snapshot %s: %w", id, err)
	}

	if err := writeFileAtomic(indexPath, raw); err != nil {
		return snap, fmt.Errorf("failed to restore index: %w", err)
	}
	return snap, nil
}
