package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for path, content := range files {
		full := filepath.Join(root, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
}

func TestWalk_FindsAllFilesByDefault(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"main.go":     "package main\n",
		"pkg/lib.go":  "package pkg\n",
		"README.md":   "# hi\n",
	})

	files, err := Walk(root, Options{})
	require.NoError(t, err)
	assert.Len(t, files, 3)
}

func TestWalk_ExcludesNodeModules(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"index.js":                     "console.log(1)\n",
		"node_modules/lodash/index.js": "module.exports = {}\n",
	})

	files, err := Walk(root, Options{Exclude: []string{"**/node_modules/**"}})
	require.NoError(t, err)

	require.Len(t, files, 1)
	assert.Equal(t, "index.js", files[0].Path)
}

func TestWalk_ExcludesBySuffixGlob(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"app.js":     "1\n",
		"app.min.js": "1\n",
	})

	files, err := Walk(root, Options{Exclude: []string{"**/*.min.js"}})
	require.NoError(t, err)

	require.Len(t, files, 1)
	assert.Equal(t, "app.js", files[0].Path)
}

func TestWalk_FiltersByIncludeExtensions(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"main.go":   "package main\n",
		"README.md": "# hi\n",
	})

	files, err := Walk(root, Options{IncludeExtensions: []string{".go"}})
	require.NoError(t, err)

	require.Len(t, files, 1)
	assert.Equal(t, "main.go", files[0].Path)
}

func TestWalk_DropsFilesOverMaxSize(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"small.go": "package main\n",
		"big.go":   string(make([]byte, 4096)),
	})

	files, err := Walk(root, Options{MaxFileSize: 100})
	require.NoError(t, err)

	require.Len(t, files, 1)
	assert.Equal(t, "small.go", files[0].Path)
}

func TestWalk_GitDirectoryIsSkippedWithPattern(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"main.go":         "package main\n",
		".git/HEAD":       "ref: refs/heads/main\n",
		".git/objects/aa": "blob\n",
	})

	files, err := Walk(root, Options{Exclude: []string{"**/.git/**"}})
	require.NoError(t, err)

	require.Len(t, files, 1)
	assert.Equal(t, "main.go", files[0].Path)
}
