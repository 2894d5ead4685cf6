package store

import (
	"encoding/json"
	"os"
	"path/filepath"

	cerr "github.com/opencoderank/coderank/internal/errors"
)

// Layout names the fixed files an index directory holds.
const (
	ChunksDBFile     = "chunks.db"
	VectorsFile      = "vectors.bin"
	VectorsMetaFile  = "vectors.bin.meta"
	ManifestFile     = "manifest.json"
	LockFile         = "index.lock"
)

// Manifest records the facts that must never silently drift across process
// restarts: the embedding dimension and metric a vector store was built
// with, and the set of chunk-store migrations applied.
type Manifest struct {
	SchemaVersion    int      `json:"schema_version"`
	Dimension        int      `json:"dimension"`
	Metric           string   `json:"metric"`
	AppliedMigrations []string `json:"applied_migrations"`
}

// CurrentSchemaVersion is bumped whenever the manifest shape itself
// changes, independent of the chunk-store migration ladder.
const CurrentSchemaVersion = 1

// LoadManifest reads manifest.json from dir. A missing file is not an
// error: it signals a fresh index directory.
func LoadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestFile)
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, cerr.Wrap(cerr.ErrCodeStoreCorrupt, err)
	}
	return &m, nil
}

// SaveManifest writes manifest.json atomically via temp-file-then-rename.
func SaveManifest(dir string, m Manifest) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	m.SchemaVersion = CurrentSchemaVersion

	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return cerr.Wrap(cerr.ErrCodeInternal, err)
	}

	path := filepath.Join(dir, ManifestFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	return nil
}

// CheckDimension verifies a requested dimension against a previously
// persisted one, failing fatally on mismatch rather than silently
// rebuilding.
func CheckDimension(m *Manifest, requested int) error {
	if m == nil || m.Dimension == 0 {
		return nil
	}
	if m.Dimension != requested {
		return cerr.Wrap(cerr.ErrCodeDimensionMismatch,
			DimensionMismatchError{Expected: m.Dimension, Actual: requested})
	}
	return nil
}
