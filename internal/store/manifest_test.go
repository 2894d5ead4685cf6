package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := Manifest{Dimension: 384, Metric: "cos", AppliedMigrations: []string{"M1_initial_tables"}}
	require.NoError(t, SaveManifest(dir, m))

	loaded, err := LoadManifest(dir)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 384, loaded.Dimension)
	assert.Equal(t, CurrentSchemaVersion, loaded.SchemaVersion)
}

func TestLoadManifestMissingIsNil(t *testing.T) {
	dir := t.TempDir()
	loaded, err := LoadManifest(dir)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestCheckDimensionMismatch(t *testing.T) {
	m := &Manifest{Dimension: 384}
	err := CheckDimension(m, 768)
	require.Error(t, err)

	err = CheckDimension(m, 384)
	require.NoError(t, err)

	err = CheckDimension(nil, 768)
	require.NoError(t, err)
}

func TestManifestPathLayout(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, SaveManifest(dir, Manifest{Dimension: 3, Metric: "cos"}))
	assert.FileExists(t, filepath.Join(dir, ManifestFile))
}
