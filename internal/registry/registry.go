// Package registry implements an HTTP client for the npm-compatible
// package registry: fetching a package's version manifest and picking
// the version that satisfies a dependency's range.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"
)

// PackageVersion is one version of a package as reported by the registry:
// its tarball location, integrity string, and declared dependencies.
type PackageVersion struct {
	Name                 string
	Version              string
	TarballURL           string
	Integrity            string
	Dependencies         map[string]string
	OptionalDependencies map[string]string
	PeerDependencies     map[string]string
}

// PackageVersions is the full set of versions known for a package name,
// keyed by version string.
type PackageVersions struct {
	Name     string
	Versions map[string]PackageVersion
}

// Client fetches package metadata from a single registry host. It
// memoizes in-flight and completed fetch-package calls per package name,
// so a worklist resolving the same package from many dependents only
// ever issues one request.
type Client struct {
	baseURL    string
	userAgent  string
	authHeader string
	httpClient *retryablehttp.Client

	group singleflight.Group
	// fetched holds every successfully completed fetch, keyed by name.
	fetched sync.Map
}

// Opts configures a Client.
type Opts struct {
	// BaseURL is the registry's base URL, e.g. "https://registry.npmjs.org/".
	BaseURL string
	// Timeout bounds a single HTTP request.
	Timeout time.Duration
	// AuthHeader, when non-empty, is sent as the Authorization header on
	// every request. The core never populates this itself.
	AuthHeader string
}

const defaultTimeout = 30 * time.Second

// New creates a registry Client that logs retry attempts through logger.
func New(opts Opts, logger hclog.Logger) *Client {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	httpClient := &retryablehttp.Client{
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		RetryWaitMin: 500 * time.Millisecond,
		RetryWaitMax: 5 * time.Second,
		RetryMax:     4,
		Backoff:      retryablehttp.DefaultBackoff,
		CheckRetry:   checkRetry,
		Logger:       logger,
	}

	return &Client{
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/"),
		userAgent:  fmt.Sprintf("pacquet %s %s (%s)", runtime.Version(), runtime.GOOS, runtime.GOARCH),
		authHeader: opts.AuthHeader,
		httpClient: httpClient,
	}
}

// checkRetry retries on transient network errors and 5xx/429 responses,
// but never on 4xx (other than 429), matching §7's NetworkTransient
// versus resolution-error split.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return true, nil
	}
	if resp.StatusCode >= 500 {
		return true, nil
	}
	return false, nil
}

// FetchPackage retrieves every known version of name, memoized
// per-name for the lifetime of the Client. A failed fetch is not
// remembered, so a later call for the same name tries again.
func (c *Client) FetchPackage(ctx context.Context, name string) (PackageVersions, error) {
	if cached, ok := c.fetched.Load(name); ok {
		return cached.(PackageVersions), nil
	}
	result, err, _ := c.group.Do(name, func() (interface{}, error) {
		versions, err := c.fetchPackage(ctx, name)
		if err == nil {
			c.fetched.Store(name, versions)
		}
		return versions, err
	})
	if err != nil {
		return PackageVersions{}, err
	}
	return result.(PackageVersions), nil
}

func (c *Client) fetchPackage(ctx context.Context, name string) (PackageVersions, error) {
	url := fmt.Sprintf("%s/%s", c.baseURL, escapePackageName(name))

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return PackageVersions{}, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if c.authHeader != "" {
		req.Header.Set("Authorization", c.authHeader)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return PackageVersions{}, &NetworkError{Name: name, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return PackageVersions{}, &NotFoundError{Name: name}
	}
	if resp.StatusCode != http.StatusOK {
		return PackageVersions{}, &NetworkError{Name: name, Cause: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	body := make([]byte, 0)
	buf := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			body = append(body, buf[:n]...)
		}
		if readErr != nil {
			break
		}
	}
	if !gjson.ValidBytes(body) {
		return PackageVersions{}, fmt.Errorf("registry: malformed JSON for package %q", name)
	}

	doc := gjson.ParseBytes(body)
	versions := make(map[string]PackageVersion)
	doc.Get("versions").ForEach(func(key, value gjson.Result) bool {
		versions[key.String()] = PackageVersion{
			Name:                 name,
			Version:              key.String(),
			TarballURL:           value.Get("dist.tarball").String(),
			Integrity:            value.Get("dist.integrity").String(),
			Dependencies:         stringMap(value.Get("dependencies")),
			OptionalDependencies: stringMap(value.Get("optionalDependencies")),
			PeerDependencies:     stringMap(value.Get("peerDependencies")),
		}
		return true
	})

	return PackageVersions{Name: name, Versions: versions}, nil
}

func stringMap(v gjson.Result) map[string]string {
	raw := v.Map()
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, val := range raw {
		out[k] = val.String()
	}
	return out
}

func escapePackageName(name string) string {
	if !strings.HasPrefix(name, "@") {
		return name
	}
	scope, rest, found := strings.Cut(name, "/")
	if !found {
		return name
	}
	return scope + "%2F" + rest
}

// PickVersion selects the highest version in versions that satisfies
// rangeSpec, excluding pre-releases unless rangeSpec explicitly names one.
func PickVersion(versions PackageVersions, rangeSpec string) (PackageVersion, error) {
	constraint, err := semver.NewConstraint(rangeSpec)
	if err != nil {
		return PackageVersion{}, &InvalidRangeError{Name: versions.Name, Range: rangeSpec, Cause: err}
	}

	wantsPrerelease := strings.Contains(rangeSpec, "-")

	var best *semver.Version
	var bestKey string
	for key := range versions.Versions {
		v, err := semver.NewVersion(key)
		if err != nil {
			continue
		}
		if v.Prerelease() != "" && !wantsPrerelease {
			continue
		}
		if !constraint.Check(v) {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best = v
			bestKey = key
		}
	}

	if best == nil {
		return PackageVersion{}, &NoMatchingVersionError{Name: versions.Name, Range: rangeSpec}
	}

	return versions.Versions[bestKey], nil
}

// MarshalCacheKey is a small helper for callers that want a stable map
// key combining a package name and range, e.g. for the resolver's
// (name, version-requirement) memo.
func MarshalCacheKey(name, rangeSpec string) string {
	b, _ := json.Marshal([2]string{name, rangeSpec})
	return string(b)
}
