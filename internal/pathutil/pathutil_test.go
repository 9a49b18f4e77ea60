package pathutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDBRootDefaultsWhenUnset(t *testing.T) {
	t.Setenv("VICTOR_DB_ROOT", "")
	assert.Equal(t, DefaultDBRoot, DBRoot())
}

func TestDBRootHonorsEnv(t *testing.T) {
	t.Setenv("VICTOR_DB_ROOT", "/tmp/custom-root")
	assert.Equal(t, "/tmp/custom-root", DBRoot())
}

func TestDatabaseDirAndSocketPath(t *testing.T) {
	t.Setenv("VICTOR_DB_ROOT", "/srv/victor")
	assert.Equal(t, "/srv/victor/mydb", DatabaseDir("mydb"))
	assert.Equal(t, "/srv/victor/mydb/socket.unix", DefaultSocketPath("mydb"))
}

func TestEnsureAndChdirCreatesDirectoryAndChanges(t *testing.T) {
	root := t.TempDir()
	t.Setenv("VICTOR_DB_ROOT", root)

	origWD, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Chdir(origWD) })

	dir, err := EnsureAndChdir("db1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "db1"), dir)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())

	cwd, err := os.Getwd()
	require.NoError(t, err)
	resolvedDir, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	resolvedCwd, err := filepath.EvalSymlinks(cwd)
	require.NoError(t, err)
	assert.Equal(t, resolvedDir, resolvedCwd)
}

func TestEnsureAndChdirFailsIfPathIsAFile(t *testing.T) {
	root := t.TempDir()
	t.Setenv("VICTOR_DB_ROOT", root)

	clash := filepath.Join(root, "notadir")
	require.NoError(t, os.WriteFile(clash, []byte("x"), 0o600))

	origWD, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Chdir(origWD) })

	_, err = EnsureAndChdir("notadir")
	assert.Error(t, err)
}

func TestEnsureAndChdirIsIdempotentOnExistingDir(t *testing.T) {
	root := t.TempDir()
	t.Setenv("VICTOR_DB_ROOT", root)

	origWD, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Chdir(origWD) })

	_, err = EnsureAndChdir("db2")
	require.NoError(t, err)
	require.NoError(t, os.Chdir(origWD))

	_, err = EnsureAndChdir("db2")
	assert.NoError(t, err)
}
