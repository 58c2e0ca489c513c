package installer

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pacquet/pacquet/internal/registry"
)

// DependencySet selects which non-production dependency groups a
// resolution pass includes, mirroring install's {dev, optional} options
// (§4.4).
type DependencySet struct {
	Dev      bool
	Optional bool
}

// Resolver runs the non-frozen resolution algorithm: a concurrent
// worklist seeded with a project's direct dependencies, expanding each
// popped PackageSpec against the registry until the worklist drains.
type Resolver struct {
	registry         *registry.Client
	autoInstallPeers bool
	dependencySets   DependencySet

	// networkConcurrency bounds how many registry fetches run at once
	// (config's NetworkConcurrency, or the --concurrency flag). Zero
	// means unbounded.
	networkConcurrency int

	// rangeMemo dedupes concurrent resolution of the same (name,
	// version-requirement) pair — spec.md §4.4's first memo.
	rangeMemo sync.Map

	// resolvedVersion records, for every (name, range) pair this resolver
	// has picked a version for, the exact version chosen — the lookup
	// Graph.finalizeEdges uses to turn declared ranges into exact edges
	// once resolution has fully drained.
	resolvedVersion sync.Map
}

// NewResolver builds a Resolver against client, following each resolved
// package's optionalDependencies when sets.Optional is set, and treating
// missing peer dependencies as regular dependencies when autoInstallPeers
// is set. sets.Dev is not read here: the project's own devDependencies
// arrive already merged into Resolve's direct argument.
// networkConcurrency bounds simultaneous registry fetches; zero leaves
// the worklist unbounded.
func NewResolver(client *registry.Client, autoInstallPeers bool, sets DependencySet, networkConcurrency int) *Resolver {
	return &Resolver{
		registry:           client,
		autoInstallPeers:   autoInstallPeers,
		dependencySets:     sets,
		networkConcurrency: networkConcurrency,
	}
}

// Resolve runs the worklist to completion against direct, the project's
// own declared dependency ranges (already merged across
// dependencies/devDependencies/optionalDependencies by the caller
// according to DependencySet), and returns the full resolved graph.
func (r *Resolver) Resolve(ctx context.Context, direct map[string]string) (*Graph, error) {
	graph := newGraph()
	eg, ctx := errgroup.WithContext(ctx)
	if r.networkConcurrency > 0 {
		eg.SetLimit(r.networkConcurrency)
	}

	r.enqueue(ctx, eg, direct, graph)

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	graph.finalizeEdges(&r.resolvedVersion)

	// direct is read only after every resolution goroutine has returned,
	// so every (name, rangeSpec) pair here has a resolvedVersion entry
	// regardless of whether the same pair was also reached transitively
	// through some other package first (the rangeMemo dedup is keyed on
	// (name, range), not on direct-vs-transitive, so either caller
	// resolves it exactly once and both observe the same outcome).
	for name, rangeSpec := range direct {
		if v, ok := r.resolvedVersion.Load(name + "@" + rangeSpec); ok {
			graph.markDirect(name, v.(string))
		}
	}

	return graph, nil
}

// enqueue schedules resolution of every (name, rangeSpec) pair in deps
// that hasn't already been claimed by another in-flight resolution of
// the same pair.
func (r *Resolver) enqueue(ctx context.Context, eg *errgroup.Group, deps map[string]string, graph *Graph) {
	for name, rangeSpec := range deps {
		name, rangeSpec := name, rangeSpec
		memoKey := name + "@" + rangeSpec
		if _, already := r.rangeMemo.LoadOrStore(memoKey, struct{}{}); already {
			continue
		}

		eg.Go(func() error {
			versions, err := r.registry.FetchPackage(ctx, name)
			if err != nil {
				return err
			}
			picked, err := registry.PickVersion(versions, rangeSpec)
			if err != nil {
				return err
			}
			r.resolvedVersion.Store(memoKey, picked.Version)

			childDeps := r.childDependencies(picked)
			pkg := &ResolvedPackage{
				Name:           picked.Name,
				Version:        picked.Version,
				TarballURL:     picked.TarballURL,
				Integrity:      picked.Integrity,
				Dependencies:   make(map[string]string, len(childDeps)),
				declaredRanges: childDeps,
			}

			isNew := graph.addIfAbsent(pkg)
			if !isNew {
				// Another path already resolved (or is resolving) this
				// exact version; per §4.4 the (name, exact-version) memo
				// stops recursion here. This is also what terminates
				// cyclic dependency graphs (§9).
				return nil
			}

			r.enqueue(ctx, eg, childDeps, graph)
			return nil
		})
	}
}

// childDependencies selects which of a resolved version's declared
// dependency maps to recurse into, per the resolver's DependencySet and
// auto-install-peers setting.
func (r *Resolver) childDependencies(picked registry.PackageVersion) map[string]string {
	out := make(map[string]string, len(picked.Dependencies))
	for name, rangeSpec := range picked.Dependencies {
		out[name] = rangeSpec
	}
	if r.dependencySets.Optional {
		for name, rangeSpec := range picked.OptionalDependencies {
			out[name] = rangeSpec
		}
	}
	if r.autoInstallPeers {
		for name, rangeSpec := range picked.PeerDependencies {
			if _, declared := out[name]; !declared {
				out[name] = rangeSpec
			}
		}
	}
	return out
}
