package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetFilePaths(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.yaml", "a.yaml", "notes.txt", "nested/c.yaml", "skip/d.yaml", "nested/old.yaml"} {
		path := filepath.Join(dir, name)
		require.Nil(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.Nil(t, os.WriteFile(path, nil, 0o644))
	}

	paths, err := GetFilePaths(filepath.Join(dir, "*.yaml"), "skip", "old.*")
	require.Nil(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.yaml"),
		filepath.Join(dir, "b.yaml"),
		filepath.Join(dir, "nested", "c.yaml"),
	}, paths)

	paths, err = GetFilePaths(filepath.Join(dir, "notes.txt"))
	require.Nil(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "notes.txt")}, paths)

	_, err = GetFilePaths(filepath.Join(dir, "missing", "*.yaml"))
	assert.NotNil(t, err)
}
