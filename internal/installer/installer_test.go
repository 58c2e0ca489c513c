package installer

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pacquet/pacquet/internal/config"
	"github.com/pacquet/pacquet/internal/manifest"
	"github.com/pacquet/pacquet/internal/registry"
	"github.com/pacquet/pacquet/internal/store"
	"github.com/pacquet/pacquet/internal/tarball"
	"github.com/pacquet/pacquet/internal/turbopath"
)

// fixturePackage is one package served by the fake registry/tarball
// server below: a name, version, and its own runtime dependencies.
type fixturePackage struct {
	Name    string
	Version string
	Deps    map[string]string
}

func sriOf(body []byte) string {
	sum := sha512.Sum512(body)
	return "sha512-" + base64.StdEncoding.EncodeToString(sum[:])
}

func buildTarball(t *testing.T, name, version string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	pkgJSON := fmt.Sprintf(`{"name":%q,"version":%q}`, name, version)
	files := []struct{ path, content string }{
		{"package.json", pkgJSON},
		{"index.js", "module.exports = {};"},
	}
	for _, f := range files {
		hdr := &tar.Header{Name: "package/" + f.path, Mode: 0644, Size: int64(len(f.content))}
		require.NoError(t, tw.WriteHeader(hdr))
		_, err := tw.Write([]byte(f.content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

// newFixtureServer serves both registry metadata and tarball downloads
// for the given packages from a single httptest server, mimicking a
// stub npm registry closely enough to exercise the full resolve ->
// materialize -> link pipeline end to end.
func newFixtureServer(t *testing.T, pkgs []fixturePackage) *httptest.Server {
	t.Helper()
	byName := make(map[string][]fixturePackage)
	for _, p := range pkgs {
		byName[p.Name] = append(byName[p.Name], p)
	}

	var ts *httptest.Server
	ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tb := r.URL.Query().Get("tarball"); tb != "" {
			for _, p := range pkgs {
				if p.Name+"@"+p.Version == tb {
					w.Write(buildTarball(t, p.Name, p.Version))
					return
				}
			}
			w.WriteHeader(http.StatusNotFound)
			return
		}

		name := r.URL.Path[1:]
		versions, ok := byName[name]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		body := `{"versions":{`
		for i, v := range versions {
			if i > 0 {
				body += ","
			}
			body += fmt.Sprintf(`%q:{"name":%q,"version":%q,"dist":{"tarball":%q,"integrity":%q},"dependencies":%s}`,
				v.Version, v.Name, v.Version,
				ts.URL+"/?tarball="+v.Name+"@"+v.Version,
				sriOf(buildTarball(t, v.Name, v.Version)),
				depsJSON(v.Deps),
			)
		}
		body += "}}"
		w.Write([]byte(body))
	}))
	return ts
}

func depsJSON(deps map[string]string) string {
	if len(deps) == 0 {
		return "{}"
	}
	out := "{"
	first := true
	for name, rng := range deps {
		if !first {
			out += ","
		}
		first = false
		out += fmt.Sprintf("%q:%q", name, rng)
	}
	return out + "}"
}

func newTestInstaller(t *testing.T, registryURL string, manifestJSON string) *Installer {
	t.Helper()
	dir := turbopath.AbsoluteSystemPathFromUpstream(t.TempDir())
	require.NoError(t, os.WriteFile(filepath.Join(dir.ToString(), "package.json"), []byte(manifestJSON), 0o644))

	cfg := config.Default()
	cfg.Registry = registryURL + "/"
	cfg.StoreDir = dir.UntypedJoin("store")

	logger := hclog.NewNullLogger()
	regClient := registry.New(registry.Opts{BaseURL: cfg.Registry}, logger)
	casStore, err := store.New(cfg.StoreDir)
	require.NoError(t, err)
	pipeline := tarball.New(casStore, logger)

	return New(dir, cfg, regClient, casStore, pipeline, logger)
}

func TestInstallMaterializesDirectAndTransitiveDependencies(t *testing.T) {
	ts := newFixtureServer(t, []fixturePackage{
		{Name: "left-pad", Version: "1.3.0", Deps: map[string]string{"is-number": "^1.0.0"}},
		{Name: "is-number", Version: "1.0.0"},
	})
	defer ts.Close()

	inst := newTestInstaller(t, ts.URL, `{"name":"app","version":"1.0.0","dependencies":{"left-pad":"^1.3.0"}}`)

	err := inst.Install(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, StateDone, inst.State)

	directLink := inst.modulesDir().UntypedJoin("left-pad")
	assert.True(t, directLink.Exists())

	pkgFile := inst.virtualStoreDir().UntypedJoin("left-pad@1.3.0", "node_modules", "left-pad", "package.json")
	assert.True(t, pkgFile.FileExists())

	// is-number is only a transitive dependency: it must exist inside
	// left-pad's private node_modules, not at the project root.
	transitiveLink := inst.virtualStoreDir().UntypedJoin("left-pad@1.3.0", "node_modules", "is-number")
	assert.True(t, transitiveLink.Exists())
	assert.False(t, inst.modulesDir().UntypedJoin("is-number").Exists())
}

func TestInstallIsIdempotentOnSecondRun(t *testing.T) {
	ts := newFixtureServer(t, []fixturePackage{
		{Name: "left-pad", Version: "1.3.0"},
	})
	defer ts.Close()

	inst := newTestInstaller(t, ts.URL, `{"name":"app","version":"1.0.0","dependencies":{"left-pad":"^1.3.0"}}`)

	require.NoError(t, inst.Install(context.Background(), Options{}))
	require.NoError(t, inst.Install(context.Background(), Options{}))

	pkgFile := inst.virtualStoreDir().UntypedJoin("left-pad@1.3.0", "node_modules", "left-pad", "package.json")
	assert.True(t, pkgFile.FileExists())
}

func TestAddWritesManifestAndInstalls(t *testing.T) {
	ts := newFixtureServer(t, []fixturePackage{
		{Name: "left-pad", Version: "1.3.0"},
	})
	defer ts.Close()

	inst := newTestInstaller(t, ts.URL, `{"name":"app","version":"1.0.0"}`)

	err := inst.Add(context.Background(), "left-pad", AddOptions{Group: manifest.Dependencies})
	require.NoError(t, err)

	m, err := manifest.Read(inst.ProjectDir.UntypedJoin("package.json"))
	require.NoError(t, err)
	assert.Equal(t, "^1.3.0", m.Dependencies["left-pad"])

	directLink := inst.modulesDir().UntypedJoin("left-pad")
	assert.True(t, directLink.Exists())
}

func TestRunExecutesScript(t *testing.T) {
	inst := newTestInstaller(t, "http://unused.invalid", `{"name":"app","version":"1.0.0","scripts":{"build":"exit 0"}}`)
	err := inst.Run(context.Background(), "build", false)
	assert.NoError(t, err)
}

func TestRunMissingScriptWithoutIfPresentFails(t *testing.T) {
	inst := newTestInstaller(t, "http://unused.invalid", `{"name":"app","version":"1.0.0"}`)
	err := inst.Run(context.Background(), "build", false)
	var notFound *ScriptNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestRunMissingScriptWithIfPresentSucceeds(t *testing.T) {
	inst := newTestInstaller(t, "http://unused.invalid", `{"name":"app","version":"1.0.0"}`)
	err := inst.Run(context.Background(), "build", true)
	assert.NoError(t, err)
}

func TestRunPropagatesScriptFailureExitCode(t *testing.T) {
	inst := newTestInstaller(t, "http://unused.invalid", `{"name":"app","version":"1.0.0","scripts":{"build":"exit 3"}}`)
	err := inst.Run(context.Background(), "build", false)
	var failure *ScriptFailureError
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, 3, failure.ExitCode)
}
