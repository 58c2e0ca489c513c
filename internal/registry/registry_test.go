package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const leftPadMetadata = `{
	"name": "left-pad",
	"versions": {
		"1.2.0": {
			"name": "left-pad",
			"version": "1.2.0",
			"dist": {"tarball": "https://registry.example.com/left-pad/-/left-pad-1.2.0.tgz", "integrity": "sha512-aaaa"},
			"dependencies": {}
		},
		"1.3.0": {
			"name": "left-pad",
			"version": "1.3.0",
			"dist": {"tarball": "https://registry.example.com/left-pad/-/left-pad-1.3.0.tgz", "integrity": "sha512-bbbb"},
			"dependencies": {}
		},
		"2.0.0-beta.1": {
			"name": "left-pad",
			"version": "2.0.0-beta.1",
			"dist": {"tarball": "https://registry.example.com/left-pad/-/left-pad-2.0.0-beta.1.tgz", "integrity": "sha512-cccc"},
			"dependencies": {}
		}
	}
}`

func testServer(t *testing.T, requestCount *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*requestCount++
		switch r.URL.Path {
		case "/left-pad":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(leftPadMetadata))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestFetchPackageParsesVersions(t *testing.T) {
	var requests int
	ts := testServer(t, &requests)
	defer ts.Close()

	client := New(Opts{BaseURL: ts.URL}, hclog.NewNullLogger())
	versions, err := client.FetchPackage(context.Background(), "left-pad")
	require.NoError(t, err)
	assert.Len(t, versions.Versions, 3)
	assert.Equal(t, "sha512-bbbb", versions.Versions["1.3.0"].Integrity)
}

func TestFetchPackageMemoizesPerName(t *testing.T) {
	var requests int
	ts := testServer(t, &requests)
	defer ts.Close()

	client := New(Opts{BaseURL: ts.URL}, hclog.NewNullLogger())
	for i := 0; i < 5; i++ {
		_, err := client.FetchPackage(context.Background(), "left-pad")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, requests)
}

func TestFetchPackageNotFound(t *testing.T) {
	var requests int
	ts := testServer(t, &requests)
	defer ts.Close()

	client := New(Opts{BaseURL: ts.URL}, hclog.NewNullLogger())
	_, err := client.FetchPackage(context.Background(), "does-not-exist")
	require.Error(t, err)
	var notFound *NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestPickVersionSelectsHighestMatching(t *testing.T) {
	var requests int
	ts := testServer(t, &requests)
	defer ts.Close()

	client := New(Opts{BaseURL: ts.URL}, hclog.NewNullLogger())
	versions, err := client.FetchPackage(context.Background(), "left-pad")
	require.NoError(t, err)

	picked, err := PickVersion(versions, "^1.2.0")
	require.NoError(t, err)
	assert.Equal(t, "1.3.0", picked.Version)
}

func TestPickVersionExcludesPrereleaseUnlessRequested(t *testing.T) {
	var requests int
	ts := testServer(t, &requests)
	defer ts.Close()

	client := New(Opts{BaseURL: ts.URL}, hclog.NewNullLogger())
	versions, err := client.FetchPackage(context.Background(), "left-pad")
	require.NoError(t, err)

	picked, err := PickVersion(versions, "^2.0.0-beta.1")
	require.NoError(t, err)
	assert.Equal(t, "2.0.0-beta.1", picked.Version)

	picked, err = PickVersion(versions, ">=1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "1.3.0", picked.Version)
}

func TestPickVersionNoMatch(t *testing.T) {
	var requests int
	ts := testServer(t, &requests)
	defer ts.Close()

	client := New(Opts{BaseURL: ts.URL}, hclog.NewNullLogger())
	versions, err := client.FetchPackage(context.Background(), "left-pad")
	require.NoError(t, err)

	_, err = PickVersion(versions, "^9.0.0")
	require.Error(t, err)
	var noMatch *NoMatchingVersionError
	assert.ErrorAs(t, err, &noMatch)
}

func TestPickVersionInvalidRange(t *testing.T) {
	var requests int
	ts := testServer(t, &requests)
	defer ts.Close()

	client := New(Opts{BaseURL: ts.URL}, hclog.NewNullLogger())
	versions, err := client.FetchPackage(context.Background(), "left-pad")
	require.NoError(t, err)

	_, err = PickVersion(versions, "not a range")
	require.Error(t, err)
	var invalid *InvalidRangeError
	assert.ErrorAs(t, err, &invalid)
}
