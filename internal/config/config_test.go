package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultHasSaneValues(t *testing.T) {
	cfg := Default()
	assert.Equal(t, defaultRegistry, cfg.Registry)
	assert.Equal(t, ImportAuto, cfg.PackageImportMethod)
	assert.False(t, cfg.AutoInstallPeers)
	assert.Greater(t, cfg.NetworkConcurrency, 0)
	assert.Greater(t, cfg.ChildConcurrency, 0)
}

func TestLoadAppliesProjectNpmrc(t *testing.T) {
	dir := t.TempDir()
	npmrc := "registry=https://example.com/npm/\nauto-install-peers=true\npackage-import-method=hardlink\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".npmrc"), []byte(npmrc), 0o644))

	cfg, unknown, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/npm/", cfg.Registry)
	assert.True(t, cfg.AutoInstallPeers)
	assert.Equal(t, ImportHardlink, cfg.PackageImportMethod)
	assert.Empty(t, unknown)
}

func TestLoadWithoutNpmrcKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, _, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, defaultRegistry, cfg.Registry)
}

func TestLoadEnvOverridesProjectFile(t *testing.T) {
	dir := t.TempDir()
	npmrc := "registry=https://example.com/npm/\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".npmrc"), []byte(npmrc), 0o644))

	t.Setenv("npm_config_registry", "https://env.example.com/npm/")

	cfg, _, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com/npm/", cfg.Registry)
}

func TestLoadRejectsUnknownPackageImportMethod(t *testing.T) {
	dir := t.TempDir()
	npmrc := "package-import-method=bogus\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".npmrc"), []byte(npmrc), 0o644))

	cfg, _, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, ImportAuto, cfg.PackageImportMethod)
}

func TestLoadReportsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	npmrc := "registry=https://example.com/npm/\nsave-exact=true\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".npmrc"), []byte(npmrc), 0o644))

	_, unknown, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"save-exact"}, unknown)
}
