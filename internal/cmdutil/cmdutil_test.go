package cmdutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCmdBaseUsesProjectRegistryOverride(t *testing.T) {
	dir := t.TempDir()
	npmrc := "registry=https://example.com/custom-npm/\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".npmrc"), []byte(npmrc), 0o644))

	flags := pflag.NewFlagSet("test-flags", pflag.ContinueOnError)
	h := NewHelper("test-version")
	h.AddFlags(flags)
	require.NoError(t, flags.Set("dir", dir))

	base, err := h.GetCmdBase(flags)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/custom-npm/", base.Config.Registry)
	assert.NotNil(t, base.Registry)
	assert.NotNil(t, base.Logger)
	assert.NotNil(t, base.UI)
}

func TestGetCmdBaseDefaultsToCwd(t *testing.T) {
	flags := pflag.NewFlagSet("test-flags", pflag.ContinueOnError)
	h := NewHelper("test-version")
	h.AddFlags(flags)

	base, err := h.GetCmdBase(flags)
	require.NoError(t, err)
	assert.NotEmpty(t, base.ProjectDir.ToString())
}

func TestVerbosityControlsLogLevel(t *testing.T) {
	flags := pflag.NewFlagSet("test-flags", pflag.ContinueOnError)
	h := NewHelper("test-version")
	h.AddFlags(flags)
	require.NoError(t, flags.Set("verbosity", "2"))

	base, err := h.GetCmdBase(flags)
	require.NoError(t, err)
	assert.True(t, base.Logger.IsDebug())
}
