package harvest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/harvestlab/harvest/internal/domain"
)

const (
	// CanonicalBasename is the default snapshot filename placed in the
	// working directory when no explicit output is given.
	CanonicalBasename = "codebase.harvest.json"

	// CanonicalExt marks snapshot files; anything ending in it is never
	// harvested back into a snapshot.
	CanonicalExt = ".harvest.json"
)

// ErrSnapshotNotFound is returned by LoadSnapshot when the file does not
// exist. Callers distinguish it from parse failures: a missing previous
// snapshot is normal, a corrupt one is not.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// LoadSnapshot reads and parses a snapshot document from disk.
func LoadSnapshot(path string) (*domain.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrSnapshotNotFound)
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}

	// Tolerate hand-edited documents with null arrays.
	if snap.Data == nil {
		snap.Data = []domain.FileEntry{}
	}
	if snap.Chunks == nil {
		snap.Chunks = []domain.ChunkEntry{}
	}
	return &snap, nil
}

// SaveSnapshot writes a snapshot to disk atomically.
// Uses write-to-temp + rename so readers never observe a partial document.
func SaveSnapshot(path string, snap *domain.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename snapshot file: %w", err)
	}

	return nil
}

// BumpVersion advances the snapshot's watch-mode version counter and
// stamps the generation time. A document without a version starts at 1.
func BumpVersion(snap *domain.Snapshot) {
	snap.Metadata.Version++
	snap.Metadata.GeneratedAt = time.Now().Unix()
}

// ResolveReapOut resolves the harvest output path: the given argument,
// or the canonical basename inside cwd when empty.
func ResolveReapOut(arg, cwd string) string {
	if arg == "" {
		return filepath.Join(cwd, CanonicalBasename)
	}
	if filepath.IsAbs(arg) {
		return filepath.Clean(arg)
	}
	return filepath.Join(cwd, arg)
}

// ResolveDataPath resolves a snapshot argument for reading: empty means
// the canonical basename in cwd, and a directory means the canonical
// basename inside that directory.
func ResolveDataPath(arg, cwd string) string {
	path := ResolveReapOut(arg, cwd)
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return filepath.Join(path, CanonicalBasename)
	}
	return path
}
