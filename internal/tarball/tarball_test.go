package tarball

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha512"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pacquet/pacquet/internal/integrity"
	"github.com/pacquet/pacquet/internal/store"
	"github.com/pacquet/pacquet/internal/turbopath"
)

func buildTarball(t *testing.T, files map[string]string, executable map[string]bool) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	for name, content := range files {
		mode := int64(0644)
		if executable[name] {
			mode = 0755
		}
		hdr := &tar.Header{
			Name: "package/" + name,
			Mode: mode,
			Size: int64(len(content)),
		}
		require.NoError(t, tw.WriteHeader(hdr))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	dir := turbopath.AbsoluteSystemPathFromUpstream(t.TempDir())
	s, err := store.New(dir)
	require.NoError(t, err)
	return New(s, hclog.NewNullLogger())
}

func sriOf(body []byte) string {
	sum := sha512.Sum512(body)
	return "sha512-" + base64.StdEncoding.EncodeToString(sum[:])
}

func TestDownloadAndExplodeExtractsFiles(t *testing.T) {
	body := buildTarball(t, map[string]string{
		"package.json": `{"name":"left-pad","version":"1.3.0"}`,
		"index.js":     "module.exports = leftPad;",
	}, nil)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	}))
	defer ts.Close()

	p := newTestPipeline(t)
	entries, err := p.DownloadAndExplode(context.Background(), ts.URL, sriOf(body))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Contains(t, entries, "package.json")
	assert.Contains(t, entries, "index.js")
}

func TestDownloadAndExplodeCapturesExecutableBit(t *testing.T) {
	body := buildTarball(t, map[string]string{
		"bin/cli.js": "#!/usr/bin/env node\n",
	}, map[string]bool{"bin/cli.js": true})

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	}))
	defer ts.Close()

	p := newTestPipeline(t)
	entries, err := p.DownloadAndExplode(context.Background(), ts.URL, sriOf(body))
	require.NoError(t, err)
	assert.True(t, entries["bin/cli.js"].Executable)
}

func TestDownloadAndExplodeRejectsIntegrityMismatch(t *testing.T) {
	body := buildTarball(t, map[string]string{"index.js": "ok"}, nil)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	}))
	defer ts.Close()

	p := newTestPipeline(t)
	_, err := p.DownloadAndExplode(context.Background(), ts.URL, "sha512-"+base64.StdEncoding.EncodeToString([]byte("wrong digest bytes here")))
	require.Error(t, err)
	var mismatch *integrity.MismatchError
	assert.ErrorAs(t, err, &mismatch)
}

func TestDownloadAndExplodeRejectsMalformedGzip(t *testing.T) {
	body := []byte("not actually gzip data")

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	}))
	defer ts.Close()

	p := newTestPipeline(t)
	_, err := p.DownloadAndExplode(context.Background(), ts.URL, sriOf(body))
	require.Error(t, err)
	var formatErr *FormatError
	assert.ErrorAs(t, err, &formatErr)
}

func TestDownloadAndExplodeSurfacesHTTPErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	p := newTestPipeline(t)
	_, err := p.DownloadAndExplode(context.Background(), ts.URL, "sha512-aaaa")
	require.Error(t, err)
	var netErr *NetworkError
	assert.ErrorAs(t, err, &netErr)
}
