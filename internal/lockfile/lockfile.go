package lockfile

import (
	"fmt"

	mapset "github.com/deckarep/golang-set"
	"golang.org/x/sync/errgroup"

	"github.com/pacquet/pacquet/internal/turbopath"
)

// StaleError is returned when a frozen-lockfile install finds the
// lockfile doesn't fully describe the manifest's declared dependencies —
// a missing importer entry, or a direct dependency whose range no longer
// matches the lockfile's specifier (spec §4.4 "frozen-lockfile-stale").
type StaleError struct {
	Workspace  string
	Mismatches []StaleMismatch
}

// StaleMismatch describes a single dependency disagreement between the
// manifest and a frozen lockfile.
type StaleMismatch struct {
	Name             string
	ManifestRange    string
	LockfileRange    string
	MissingFromGraph bool
}

func (e *StaleError) Error() string {
	return fmt.Sprintf("frozen-lockfile stale: %d mismatched dependency(s) in %s", len(e.Mismatches), e.Workspace)
}

// ValidateAgainstManifest checks that every direct dependency the
// manifest declares is present in the lockfile's importer entry with an
// identical range, failing the install before any network call per
// spec.md scenario 5. It reports every mismatch, not just the first, so
// the user sees the full diff in one pass.
func (g *ResolvedGraph) ValidateAgainstManifest(workspace turbopath.AnchoredUnixPath, declared map[string]string) error {
	importer, ok := g.Importers[workspace.ToString()]
	if !ok {
		return &StaleError{
			Workspace: workspace.ToString(),
			Mismatches: []StaleMismatch{{Name: "*", MissingFromGraph: true}},
		}
	}

	var mismatches []StaleMismatch
	for name, manifestRange := range declared {
		lockfileRange, ok := importer.Specifiers[name]
		if !ok {
			mismatches = append(mismatches, StaleMismatch{Name: name, ManifestRange: manifestRange, MissingFromGraph: true})
			continue
		}
		if lockfileRange != manifestRange {
			mismatches = append(mismatches, StaleMismatch{
				Name:          name,
				ManifestRange: manifestRange,
				LockfileRange: lockfileRange,
			})
		}
	}

	if len(mismatches) > 0 {
		return &StaleError{Workspace: workspace.ToString(), Mismatches: mismatches}
	}
	return nil
}

// TransitiveClosure walks the resolved graph starting from a workspace's
// unresolved direct dependencies and returns the set of every
// ResolvedPackage key reachable from them. Resolution edges form a graph,
// not a tree — a package may depend (transitively) back on an ancestor —
// so the visited set doubles as cycle protection: a key already in
// resolved is never re-expanded.
func TransitiveClosure(
	workspace turbopath.AnchoredUnixPath,
	unresolvedDeps map[string]string,
	graph *ResolvedGraph,
) (mapset.Set, error) {
	if graph == nil {
		return nil, fmt.Errorf("no lockfile graph available to resolve against")
	}

	resolved := mapset.NewSet()
	eg := &errgroup.Group{}
	for name, rangeSpec := range unresolvedDeps {
		name, rangeSpec := name, rangeSpec
		eg.Go(func() error {
			key, _, found := graph.ResolvePackage(workspace, name, rangeSpec)
			if !found {
				return fmt.Errorf("no lockfile entry resolves %s@%s", name, rangeSpec)
			}
			return expandTransitiveDeps(eg, graph, key, resolved)
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return resolved, nil
}

// expandTransitiveDeps adds key to resolved and fans out over its own
// dependency edges. Those edges are already exact (name, version) pairs
// from a packages: entry, not importer specifiers, so each is looked up
// directly by packageKey rather than through ResolvePackage — which only
// matches a workspace importer's own direct dependency range.
func expandTransitiveDeps(eg *errgroup.Group, graph *ResolvedGraph, key string, resolved mapset.Set) error {
	if !resolved.Add(key) {
		// already visited — either a diamond dependency or a cycle.
		return nil
	}

	allDeps, ok := graph.AllDependencies(key)
	if !ok {
		return fmt.Errorf("lockfile entry %s has no dependency record", key)
	}
	for name, version := range allDeps {
		name, version := name, version
		eg.Go(func() error {
			return expandTransitiveDeps(eg, graph, packageKey(name, version), resolved)
		})
	}
	return nil
}
