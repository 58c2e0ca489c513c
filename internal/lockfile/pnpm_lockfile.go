// Package lockfile parses a pnpm-compatible pnpm-lock.yaml into an
// in-memory ResolvedGraph. Writing a lockfile back out is out of scope
// (spec §4.5): the resolver produces the same graph shape directly, and
// this package only ever runs in the consuming direction.
package lockfile

import (
	"fmt"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/pacquet/pacquet/internal/turbopath"
)

// ResolvedGraph is the parsed contents of a pnpm-lock.yaml: every
// importer (project root) and every resolved package, keyed the same way
// pnpm keys them on disk.
type ResolvedGraph struct {
	Version   float64                  `yaml:"lockfileVersion"`
	Importers map[string]ImporterEntry `yaml:"importers"`
	// Packages is keyed "/<name>/<version>".
	Packages           map[string]ResolvedPackage `yaml:"packages,omitempty"`
	NeverBuiltDeps     []string                   `yaml:"neverBuiltDependencies,omitempty"`
	OnlyBuiltDeps      []string                   `yaml:"onlyBuiltDependencies,omitempty"`
	Overrides          map[string]string          `yaml:"overrides,omitempty"`
	PackageExtChecksum string                     `yaml:"packageExtensionsChecksum,omitempty"`
}

// ImporterEntry is a single project root's entry under `importers:` — its
// declared dependency ranges (specifiers) alongside the exact versions
// they were resolved to.
type ImporterEntry struct {
	Specifiers           map[string]string `yaml:"specifiers"`
	Dependencies         map[string]string `yaml:"dependencies,omitempty"`
	OptionalDependencies map[string]string `yaml:"optionalDependencies,omitempty"`
	DevDependencies      map[string]string `yaml:"devDependencies,omitempty"`
}

// ResolvedPackage is one entry under `packages:` in the lockfile — an
// exact version of a package along with the integrity it was verified
// against and its own dependency edges.
type ResolvedPackage struct {
	Resolution PackageResolution `yaml:"resolution"`

	PeerDependencies     map[string]string `yaml:"peerDependencies,omitempty"`
	Dependencies         map[string]string `yaml:"dependencies,omitempty"`
	OptionalDependencies map[string]string `yaml:"optionalDependencies,omitempty"`
	TransitivePeerDeps   []string          `yaml:"transitivePeerDependencies,omitempty"`

	Dev      bool `yaml:"dev"`
	Optional bool `yaml:"optional,omitempty"`

	// Name/Version are only populated for packages not resolvable purely
	// from the lockfile key (non-registry resolutions); registry packages
	// recover both from the "/<name>/<version>" key itself.
	Name    string `yaml:"name,omitempty"`
	Version string `yaml:"version,omitempty"`

	Os  []string `yaml:"os,omitempty"`
	CPU []string `yaml:"cpu,omitempty"`
}

// PackageResolution is how a package's exact bytes are located and
// verified. Registry-resolved packages (the only install source pacquet
// supports per spec.md §1 Non-goals) always carry Integrity; Tarball is
// only present when the registry's resolved URL deviates from the
// default `<registry>/<name>/-/<name>-<version>.tgz` shape.
type PackageResolution struct {
	Integrity string `yaml:"integrity,omitempty"`
	Tarball   string `yaml:"tarball,omitempty"`
}

const minLockfileVersion = 5.3

// Decode parses a pnpm-lock.yaml document into a ResolvedGraph.
func Decode(contents []byte) (*ResolvedGraph, error) {
	var graph ResolvedGraph
	if err := yaml.Unmarshal(contents, &graph); err != nil {
		return nil, errors.Wrap(err, "parsing pnpm-lock.yaml")
	}
	if graph.Version < minLockfileVersion {
		return nil, errors.Errorf("unsupported lockfileVersion %v (minimum %v)", graph.Version, minLockfileVersion)
	}
	return &graph, nil
}

// packageKey builds the "/<name>/<version>" key pnpm uses to index
// `packages:`.
func packageKey(name, version string) string {
	return fmt.Sprintf("/%s/%s", name, version)
}

// ResolvePackage looks up the exact ResolvedPackage a (name, range)
// dependency edge resolves to within a single importer, returning the
// lockfile key, the package entry, and whether it was found at all.
func (g *ResolvedGraph) ResolvePackage(workspace turbopath.AnchoredUnixPath, name, rangeSpec string) (string, ResolvedPackage, bool) {
	importer, ok := g.Importers[workspace.ToString()]
	if !ok {
		return "", ResolvedPackage{}, false
	}
	if specifier, ok := importer.Specifiers[name]; !ok || specifier != rangeSpec {
		return "", ResolvedPackage{}, false
	}

	version, ok := resolvedVersionFor(importer, name)
	if !ok {
		return "", ResolvedPackage{}, false
	}

	key := packageKey(name, version)
	pkg, ok := g.Packages[key]
	return key, pkg, ok
}

func resolvedVersionFor(importer ImporterEntry, name string) (string, bool) {
	if v, ok := importer.Dependencies[name]; ok {
		return v, true
	}
	if v, ok := importer.OptionalDependencies[name]; ok {
		return v, true
	}
	if v, ok := importer.DevDependencies[name]; ok {
		return v, true
	}
	return "", false
}

// AllDependencies returns the union of a resolved package's runtime,
// optional, and peer dependency edges, keyed by name.
func (g *ResolvedGraph) AllDependencies(key string) (map[string]string, bool) {
	entry, ok := g.Packages[key]
	if !ok {
		return nil, false
	}

	deps := make(map[string]string, len(entry.Dependencies)+len(entry.OptionalDependencies)+len(entry.PeerDependencies))
	for name, version := range entry.Dependencies {
		deps[name] = version
	}
	for name, version := range entry.OptionalDependencies {
		deps[name] = version
	}
	for name, version := range entry.PeerDependencies {
		deps[name] = version
	}
	return deps, true
}
