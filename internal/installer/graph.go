package installer

import (
	"fmt"
	"sync"
)

// ResolvedPackage is one exact (name, version) node of the resolved
// dependency graph: where its tarball lives, what it must verify
// against, and the exact-version edges to its own dependencies.
type ResolvedPackage struct {
	Name       string
	Version    string
	TarballURL string
	Integrity  string

	// Dependencies maps a dependency name to the exact version it was
	// resolved to — already-picked edges, not ranges, so materialization
	// never has to consult the registry again. Populated by
	// Graph.finalizeEdges once every concurrent resolution goroutine has
	// completed, since a child's exact version is only known once its
	// own goroutine has picked it.
	Dependencies map[string]string

	// declaredRanges is the dependency map as originally declared by the
	// registry manifest (name to range), recorded at resolution time so
	// finalizeEdges can translate it into exact versions afterward.
	declaredRanges map[string]string
}

// Key returns the "name@version" identity used throughout the graph and
// the virtual store layout.
func (p *ResolvedPackage) Key() string {
	return PackageKey(p.Name, p.Version)
}

// PackageKey builds the "name@version" identity pnpm's virtual store
// directories are named after.
func PackageKey(name, version string) string {
	return fmt.Sprintf("%s@%s", name, version)
}

// Graph is the concurrent-safe set of ResolvedPackages discovered during
// resolution, keyed by exact version. Addition is the only mutation, so
// a single mutex guarding a map is sufficient — there is no contention
// pattern that benefits from finer-grained locking here.
type Graph struct {
	mu       sync.Mutex
	packages map[string]*ResolvedPackage
	// direct records the project's own direct dependency names, each
	// mapped to the exact version they resolved to — the set Linking
	// creates project-root symlinks for.
	direct map[string]string
}

func newGraph() *Graph {
	return &Graph{
		packages: make(map[string]*ResolvedPackage),
		direct:   make(map[string]string),
	}
}

// addIfAbsent inserts pkg under its key if no entry exists yet, and
// reports whether the insert happened. A false return means another
// resolution path already materialized (or is materializing) this exact
// version — the (name, exact-version) memo spec.md §4.4 requires, and
// the mechanism that terminates cyclic dependency graphs: a caller that
// gets false must not recurse into pkg's own dependencies again.
func (g *Graph) addIfAbsent(pkg *ResolvedPackage) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.packages[pkg.Key()]; exists {
		return false
	}
	g.packages[pkg.Key()] = pkg
	return true
}

func (g *Graph) markDirect(name, version string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.direct[name] = version
}

// Packages returns a snapshot of every resolved package, safe to range
// over concurrently with further graph mutation (there is none once
// resolution has completed, but Materialize ranges over this while the
// caller holds no lock of its own).
func (g *Graph) Packages() map[string]*ResolvedPackage {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]*ResolvedPackage, len(g.packages))
	for k, v := range g.packages {
		out[k] = v
	}
	return out
}

// Direct returns the project's direct dependencies as resolved exact
// versions, name to version.
func (g *Graph) Direct() map[string]string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]string, len(g.direct))
	for k, v := range g.direct {
		out[k] = v
	}
	return out
}

// Get looks up a resolved package by exact key ("name@version").
func (g *Graph) Get(key string) (*ResolvedPackage, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	pkg, ok := g.packages[key]
	return pkg, ok
}

// finalizeEdges translates every package's declaredRanges into exact
// resolved versions using resolvedVersion, a "name@range" -> version
// lookup populated during resolution. Must run only after every
// resolution goroutine has returned, since a child's version is not
// known until its own goroutine has picked it.
func (g *Graph) finalizeEdges(resolvedVersion *sync.Map) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, pkg := range g.packages {
		for depName, depRange := range pkg.declaredRanges {
			if v, ok := resolvedVersion.Load(depName + "@" + depRange); ok {
				pkg.Dependencies[depName] = v.(string)
			}
		}
	}
}
