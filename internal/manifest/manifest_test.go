package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pacquet/pacquet/internal/turbopath"
)

const sampleManifest = `{
  "name": "widgets",
  "version": "1.0.0",
  "scripts": {
    "build": "tsc"
  },
  "dependencies": {
    "left-pad": "^1.0.0",
    "zzz-last": "^2.0.0"
  },
  "devDependencies": {
    "typescript": "^5.0.0"
  }
}
`

func TestParseReadsAllDependencyFields(t *testing.T) {
	m, err := Parse([]byte(sampleManifest), "")
	require.NoError(t, err)

	assert.Equal(t, "widgets", m.Name)
	assert.Equal(t, "1.0.0", m.Version)
	assert.Equal(t, "^1.0.0", m.Dependencies["left-pad"])
	assert.Equal(t, "^5.0.0", m.DevDependencies["typescript"])
	assert.Nil(t, m.PeerDependencies)
}

func TestParseRejectsInvalidJSON(t *testing.T) {
	_, err := Parse([]byte("not json"), "")
	assert.Error(t, err)
}

func TestSetDependencyPreservesKeyOrder(t *testing.T) {
	m, err := Parse([]byte(sampleManifest), "")
	require.NoError(t, err)

	require.NoError(t, m.SetDependency(Dependencies, "axios", "^1.6.0"))

	raw := string(m.Raw())
	leftPadIdx := indexOf(t, raw, `"left-pad"`)
	axiosIdx := indexOf(t, raw, `"axios"`)
	zzzIdx := indexOf(t, raw, `"zzz-last"`)

	// axios is appended after the existing keys rather than the whole
	// dependencies object being re-sorted or re-emitted.
	assert.Less(t, leftPadIdx, zzzIdx)
	assert.Greater(t, axiosIdx, zzzIdx)
	assert.Equal(t, "^1.6.0", m.Dependencies["axios"])
}

func TestSetDependencyOnScopedPackage(t *testing.T) {
	m, err := Parse([]byte(sampleManifest), "")
	require.NoError(t, err)

	require.NoError(t, m.SetDependency(Dependencies, "@types/node", "^20.0.0"))
	assert.Equal(t, "^20.0.0", m.Dependencies["@types/node"])
}

func TestRemoveDependency(t *testing.T) {
	m, err := Parse([]byte(sampleManifest), "")
	require.NoError(t, err)

	require.NoError(t, m.RemoveDependency(Dependencies, "left-pad"))
	_, ok := m.Dependencies["left-pad"]
	assert.False(t, ok)
	assert.NotContains(t, string(m.Raw()), "left-pad")
}

func TestAllDependenciesPrecedence(t *testing.T) {
	m := &Manifest{
		Dependencies:     map[string]string{"shared": "1.0.0"},
		PeerDependencies: map[string]string{"shared": "^0.9.0"},
	}
	all := m.AllDependencies()
	assert.Equal(t, "1.0.0", all["shared"])
}

func TestSaveRequiresBackingPath(t *testing.T) {
	m, err := Parse([]byte(sampleManifest), "")
	require.NoError(t, err)
	assert.Error(t, m.Save())
}

func TestReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := turbopath.AbsoluteSystemPathFromUpstream(dir).UntypedJoin("package.json")
	require.NoError(t, path.WriteFile([]byte(sampleManifest), 0o644))

	m, err := Read(path)
	require.NoError(t, err)
	require.NoError(t, m.SetDependency(DevDependencies, "vitest", "^1.0.0"))
	require.NoError(t, m.Save())

	reread, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, "^1.0.0", reread.DevDependencies["vitest"])
	assert.Equal(t, "widgets", reread.Name)
}

func indexOf(t *testing.T, haystack, needle string) int {
	t.Helper()
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	t.Fatalf("expected to find %q in %q", needle, haystack)
	return -1
}
