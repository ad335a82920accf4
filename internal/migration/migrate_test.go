package migration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePathFindsRepositoryMigrations(t *testing.T) {
	path, err := ResolvePath(filepath.Join("..", "..", DefaultPath))
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(path))
	assert.FileExists(t, filepath.Join(path, "000001_init.up.sql"))
	assert.FileExists(t, filepath.Join(path, "000001_init.down.sql"))
}

func TestResolvePathRejectsFiles(t *testing.T) {
	file := filepath.Join(t.TempDir(), "schema.sql")
	require.NoError(t, os.WriteFile(file, []byte("select 1;"), 0o600))

	_, err := ResolvePath(file)
	assert.ErrorContains(t, err, "not a directory")

	_, err = ResolvePath(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
