// Package workspace keeps the registered source files of one clinic analysis
// and the records parsed from them.
package workspace

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/KaramelBytes/clinicpulse-cli/internal/records"
	"github.com/KaramelBytes/clinicpulse-cli/internal/utils"
)

var (
	// ErrDuplicateSource is returned when a file with identical content is already registered.
	ErrDuplicateSource = errors.New("source already added")
	// ErrSourceNotFound is returned by RemoveSource for an unknown ID.
	ErrSourceNotFound = errors.New("source not found")
)

// Parser turns one source file into a batch of records.
type Parser interface {
	Load(path string, kind records.Kind) (*records.Batch, error)
}

// Source is a registered input file.
type Source struct {
	ID          string       `json:"id"`
	Path        string       `json:"path"`
	Name        string       `json:"name"`
	Kind        records.Kind `json:"kind"`
	Description string       `json:"description,omitempty"`
	Records     int          `json:"records"`
	Checksum    string       `json:"checksum"`
	AddedAt     time.Time    `json:"added_at"`
}

// Workspace is persisted as workspace.json next to its snapshot.
type Workspace struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Sources     map[string]*Source `json:"sources"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`

	rootDir string
	store   SnapshotStore
}

// New constructs an in-memory workspace. Call Save to persist.
func New(name, description, rootDir string) *Workspace {
	now := time.Now()
	return &Workspace{
		Name:        name,
		Description: description,
		Sources:     make(map[string]*Source),
		CreatedAt:   now,
		UpdatedAt:   now,
		rootDir:     rootDir,
	}
}

// Load reads workspace.json from dir.
func Load(dir string) (*Workspace, error) {
	path := filepath.Join(dir, utils.WorkspaceFile)
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("workspace not found at %s: %w", path, err)
		}
		return nil, fmt.Errorf("read workspace: %w", err)
	}
	var w Workspace
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, fmt.Errorf("parse workspace: %w", err)
	}
	if w.Sources == nil {
		w.Sources = make(map[string]*Source)
	}
	w.rootDir = dir
	return &w, nil
}

// RootDir returns the on-disk workspace directory.
func (w *Workspace) RootDir() string { return w.rootDir }

// Store returns the snapshot store, by default the compressed file in the workspace directory.
func (w *Workspace) Store() SnapshotStore {
	if w.store == nil {
		w.store = FileStore{Path: filepath.Join(w.rootDir, SnapshotFile)}
	}
	return w.store
}

// SetStore replaces the snapshot store.
func (w *Workspace) SetStore(s SnapshotStore) { w.store = s }

// Save writes workspace.json atomically.
func (w *Workspace) Save() error {
	if w.rootDir == "" {
		return errors.New("workspace root directory not set")
	}
	if err := utils.EnsureDir(w.rootDir); err != nil {
		return fmt.Errorf("ensure dir: %w", err)
	}
	w.UpdatedAt = time.Now()
	data, err := utils.PrettyJSON(w)
	if err != nil {
		return err
	}
	return utils.SafeWriteFile(filepath.Join(w.rootDir, utils.WorkspaceFile), data)
}

// AddSource parses path and stores its records under a new source ID.
// The snapshot is saved before the source is registered; call Save afterwards.
func (w *Workspace) AddSource(p Parser, path string, kind records.Kind, description string) (*Source, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	sum := sha256.Sum256(content)
	checksum := hex.EncodeToString(sum[:])
	for _, s := range w.Sources {
		if s.Checksum == checksum {
			return nil, fmt.Errorf("%w: %s is identical to %s (%s)", ErrDuplicateSource, filepath.Base(path), s.Name, s.ID)
		}
	}

	batch, err := p.Load(path, kind)
	if err != nil {
		return nil, err
	}
	snap, err := w.Store().Load()
	if err != nil {
		return nil, err
	}
	src := &Source{
		ID:          uuid.NewString(),
		Path:        path,
		Name:        filepath.Base(path),
		Kind:        batch.Kind,
		Description: description,
		Records:     batch.Len(),
		Checksum:    checksum,
		AddedAt:     time.Now().UTC(),
	}
	batch.ID = src.ID
	batch.AddedAt = src.AddedAt
	snap.Put(batch)
	if err := w.Store().Save(snap); err != nil {
		return nil, err
	}
	if w.Sources == nil {
		w.Sources = make(map[string]*Source)
	}
	w.Sources[src.ID] = src
	w.UpdatedAt = time.Now()
	return src, nil
}

// RemoveSource drops a source and its records.
func (w *Workspace) RemoveSource(id string) (*Source, error) {
	src, ok := w.Sources[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, id)
	}
	snap, err := w.Store().Load()
	if err != nil {
		return nil, err
	}
	if snap.Remove(id) {
		if err := w.Store().Save(snap); err != nil {
			return nil, err
		}
	}
	delete(w.Sources, id)
	w.UpdatedAt = time.Now()
	return src, nil
}

// SortedSources lists sources oldest first.
func (w *Workspace) SortedSources() []*Source {
	out := make([]*Source, 0, len(w.Sources))
	for _, s := range w.Sources {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AddedAt.Equal(out[j].AddedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].AddedAt.Before(out[j].AddedAt)
	})
	return out
}

// Records loads the snapshot and flattens it for aggregation.
func (w *Workspace) Records() (records.Set, error) {
	snap, err := w.Store().Load()
	if err != nil {
		return records.Set{}, err
	}
	return snap.Flatten(), nil
}
