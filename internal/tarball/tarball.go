// Package tarball implements the download-and-explode pipeline: fetch
// one package's tarball, verify its integrity, decompress and walk its
// tar entries, and insert each regular file into the content-addressed
// store.
package tarball

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha512"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/schollz/progressbar/v3"

	"github.com/pacquet/pacquet/internal/integrity"
	"github.com/pacquet/pacquet/internal/store"
)

// Entry describes one regular file extracted from a tarball: its
// project-relative path inside the package, the CAS hash of its
// content, and whether it carried the executable bit.
type Entry struct {
	Path       string
	Hash       string
	Executable bool
}

// Pipeline downloads and explodes package tarballs into a Store.
type Pipeline struct {
	httpClient *retryablehttp.Client
	store      *store.Store

	// ProgressOutput, when set, renders a byte progress bar for each
	// tarball download to this writer. Left nil (the default) downloads
	// stay silent, which is what package-level tests want.
	ProgressOutput io.Writer
}

// New returns a Pipeline that inserts exploded tarball contents into s,
// retrying transient download failures per §7's NetworkTransient policy.
func New(s *store.Store, logger hclog.Logger) *Pipeline {
	return &Pipeline{
		store: s,
		httpClient: &retryablehttp.Client{
			HTTPClient:   &http.Client{},
			RetryWaitMin: 500 * time.Millisecond,
			RetryWaitMax: 5 * time.Second,
			RetryMax:     4,
			Backoff:      retryablehttp.DefaultBackoff,
			CheckRetry:   retryablehttp.DefaultRetryPolicy,
			Logger:       logger,
		},
	}
}

// DownloadAndExplode fetches url, verifies its bytes against
// expectedIntegrity as they stream, decompresses the gzip body, and
// inserts every regular tar entry into the store, returning the
// relative-path-to-entry map the virtual-store projector clones from.
func (p *Pipeline) DownloadAndExplode(ctx context.Context, url string, expectedIntegrity string) (map[string]Entry, error) {
	expected, err := integrity.Parse(expectedIntegrity)
	if err != nil {
		return nil, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: url, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &NetworkError{URL: url, Cause: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	h, err := expected.Algorithm.New()
	if err != nil {
		return nil, err
	}
	var body io.Reader = resp.Body
	if p.ProgressOutput != nil {
		bar := progressbar.NewOptions64(resp.ContentLength,
			progressbar.OptionSetDescription(url),
			progressbar.OptionSetWriter(p.ProgressOutput),
			progressbar.OptionClearOnFinish(),
		)
		body = io.TeeReader(resp.Body, bar)
	}
	hashed := io.TeeReader(body, h)

	// The whole body must be buffered before we can trust any bytes from
	// it, since the integrity digest covers the compressed body as a
	// whole and a mismatch must abort before any CAS write occurs.
	buf, err := io.ReadAll(hashed)
	if err != nil {
		return nil, &NetworkError{URL: url, Cause: err}
	}
	if err := expected.Verify(h); err != nil {
		return nil, err
	}

	return p.explode(buf)
}

func (p *Pipeline) explode(body []byte) (map[string]Entry, error) {
	gz, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, &FormatError{Cause: err}
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	entries := make(map[string]Entry)

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &FormatError{Cause: err}
		}

		switch header.Typeflag {
		case tar.TypeReg:
			entry, err := p.insertEntry(header, tr)
			if err != nil {
				return nil, err
			}
			entries[stripPackagePrefix(header.Name)] = entry
		default:
			// Directories, symlinks, and device nodes are not part of
			// the CAS; the virtual-store projector recreates directory
			// structure itself and the tarball format never contains
			// meaningful symlinks across packages.
			continue
		}
	}

	return entries, nil
}

func (p *Pipeline) insertEntry(header *tar.Header, r io.Reader) (Entry, error) {
	sum := sha512.New()
	buf, err := io.ReadAll(io.TeeReader(r, sum))
	if err != nil {
		return Entry{}, &FormatError{Cause: err}
	}

	hexHash := fmt.Sprintf("%x", sum.Sum(nil))
	executable := header.FileInfo().Mode()&0111 != 0

	if err := p.store.Insert(hexHash, bytes.NewReader(buf), executable); err != nil {
		return Entry{}, err
	}

	return Entry{
		Path:       stripPackagePrefix(header.Name),
		Hash:       hexHash,
		Executable: executable,
	}, nil
}

// stripPackagePrefix removes the "package/" directory npm tarballs
// always wrap their contents in.
func stripPackagePrefix(name string) string {
	const prefix = "package/"
	if len(name) > len(prefix) && name[:len(prefix)] == prefix {
		return name[len(prefix):]
	}
	return name
}

