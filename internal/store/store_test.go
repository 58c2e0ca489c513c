package store

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pacquet/pacquet/internal/turbopath"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := turbopath.AbsoluteSystemPathFromUpstream(t.TempDir())
	s, err := New(dir)
	require.NoError(t, err)
	return s
}

func hashOf(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func TestFilePathShardsByTwoCharPrefix(t *testing.T) {
	s := newTestStore(t)
	hash := hashOf("hello")
	path, err := s.FilePath(hash)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Dir.ToString(), "files", hash[:2], hash[2:]), path.ToString())
}

func TestInsertThenHasAndOpen(t *testing.T) {
	s := newTestStore(t)
	hash := hashOf("hello world")

	ok, err := s.Has(hash)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Insert(hash, bytes.NewBufferString("hello world"), false))

	ok, err = s.Has(hash)
	require.NoError(t, err)
	assert.True(t, ok)

	f, err := s.Open(hash)
	require.NoError(t, err)
	defer f.Close()
	info, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(len("hello world")), info.Size())
}

func TestInsertSkipsExistingEntry(t *testing.T) {
	s := newTestStore(t)
	hash := hashOf("content")

	require.NoError(t, s.Insert(hash, bytes.NewBufferString("content"), false))
	// A second insert with different (wrong) bytes must be a no-op —
	// the store trusts the first writer and never re-verifies.
	require.NoError(t, s.Insert(hash, bytes.NewBufferString("different"), false))

	path, err := s.FilePath(hash)
	require.NoError(t, err)
	data, err := os.ReadFile(path.ToString())
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))
}

func TestInsertSetsExecutableBit(t *testing.T) {
	if os.Getenv("GOOS") == "windows" {
		t.Skip("executable bit is not meaningful on windows")
	}
	s := newTestStore(t)
	hash := hashOf("#!/bin/sh\necho hi\n")
	require.NoError(t, s.Insert(hash, bytes.NewBufferString("#!/bin/sh\necho hi\n"), true))

	path, err := s.FilePath(hash)
	require.NoError(t, err)
	info, err := os.Stat(path.ToString())
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0111)
}

func TestPackagePathEncodesRegistryHost(t *testing.T) {
	s := newTestStore(t)
	path, err := s.PackagePath("https://registry.npmjs.org/", "left-pad", "1.3.0")
	require.NoError(t, err)
	assert.Contains(t, path.ToString(), "registry.npmjs.org")
	assert.Contains(t, path.ToString(), "left-pad@1.3.0")
}

func TestPruneRemovesPackageAnchorsButKeepsFiles(t *testing.T) {
	s := newTestStore(t)
	hash := hashOf("kept")
	require.NoError(t, s.Insert(hash, bytes.NewBufferString("kept"), false))

	pkgPath, err := s.PackagePath("https://registry.npmjs.org/", "left-pad", "1.3.0")
	require.NoError(t, err)
	require.NoError(t, pkgPath.MkdirAll())

	require.NoError(t, s.Prune())

	ok, err := s.Has(hash)
	require.NoError(t, err)
	assert.True(t, ok, "files/ entries survive prune")
	assert.False(t, pkgPath.DirExists(), "package anchor dirs are pruned")
}
