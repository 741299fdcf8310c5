package workspace

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/KaramelBytes/clinicpulse-cli/internal/records"
	"github.com/KaramelBytes/clinicpulse-cli/internal/utils"
)

// SnapshotFile is the compressed record store inside a workspace.
const SnapshotFile = "snapshot.json.zst"

// SnapshotStore loads and saves the parsed records of a workspace.
type SnapshotStore interface {
	Load() (*records.Snapshot, error)
	Save(*records.Snapshot) error
}

// FileStore keeps the snapshot as zstd-compressed JSON at Path.
type FileStore struct {
	Path string
}

// Load returns an empty snapshot when the file does not exist yet.
func (s FileStore) Load() (*records.Snapshot, error) {
	raw, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return records.NewSnapshot(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()
	plain, err := dec.DecodeAll(raw, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot: %w", err)
	}
	snap := records.NewSnapshot()
	if err := json.Unmarshal(plain, snap); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	if snap.Version > records.SnapshotVersion {
		return nil, fmt.Errorf("snapshot version %d is newer than supported %d", snap.Version, records.SnapshotVersion)
	}
	if snap.Batches == nil {
		snap.Batches = make(map[string]*records.Batch)
	}
	return snap, nil
}

// Save compresses and atomically replaces the snapshot file.
func (s FileStore) Save(snap *records.Snapshot) error {
	if snap.Version == 0 {
		snap.Version = records.SnapshotVersion
	}
	plain, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}
	if _, err := enc.Write(plain); err != nil {
		enc.Close()
		return fmt.Errorf("compress snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("compress snapshot: %w", err)
	}
	return utils.SafeWriteFile(s.Path, buf.Bytes())
}
