package installer

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/pacquet/pacquet/internal/linkstrategy"
	"github.com/pacquet/pacquet/internal/store"
	"github.com/pacquet/pacquet/internal/tarball"
	"github.com/pacquet/pacquet/internal/turbopath"
)

// Materializer turns a resolved Graph into an on-disk virtual store:
// one .pnpm/<name>@<version>/node_modules/<name> tree per package,
// cross-linked per its own dependency edges.
type Materializer struct {
	store    *store.Store
	tarball  *tarball.Pipeline
	strategy linkstrategy.Chain

	// virtualStoreDir is "<project>/node_modules/.pnpm".
	virtualStoreDir turbopath.AbsoluteSystemPath

	// OnPackageMaterialized, when set, is called once per package after
	// its file tree is confirmed present (freshly cloned or already
	// cached from a prior install), before any dependency symlinks are
	// created. May be called from many goroutines at once.
	OnPackageMaterialized func(pkg *ResolvedPackage, cached bool)

	// concurrency bounds how many packages are cloned/linked at once
	// (config's ChildConcurrency, or the --concurrency flag). Zero means
	// unbounded.
	concurrency int
}

// NewMaterializer builds a Materializer that clones files via strategy
// and writes every package's private tree under virtualStoreDir.
// concurrency bounds simultaneous package clones/links; zero leaves each
// phase's fan-out unbounded.
func NewMaterializer(s *store.Store, pipeline *tarball.Pipeline, strategy linkstrategy.Chain, virtualStoreDir turbopath.AbsoluteSystemPath, concurrency int) *Materializer {
	return &Materializer{store: s, tarball: pipeline, strategy: strategy, virtualStoreDir: virtualStoreDir, concurrency: concurrency}
}

// privateModulesDir is "<virtualStoreDir>/<name>@<version>/node_modules".
func (m *Materializer) privateModulesDir(pkg *ResolvedPackage) turbopath.AbsoluteSystemPath {
	return m.virtualStoreDir.UntypedJoin(pkg.Key(), "node_modules")
}

// packageDir is "<virtualStoreDir>/<name>@<version>/node_modules/<name>",
// the root of the package's own extracted tree.
func (m *Materializer) packageDir(pkg *ResolvedPackage) turbopath.AbsoluteSystemPath {
	return m.privateModulesDir(pkg).UntypedJoin(pkg.Name)
}

// MaterializeAll runs §4.4's materialization procedure for every package
// in graph. It runs in two barriered phases, not one: every package's
// file tree (step 1-2) must be complete before any package's dependency
// symlinks (step 3) are created, per §5's ordering guarantee ("a symlink
// from package A's private node_modules to package B is not created
// until B's virtual-store directory exists with its own contents") — a
// single parallel pass cannot promise that, since a goroutine that
// finishes its own files early would otherwise race ahead and link
// against a dependency whose files are still being cloned. It does not
// touch the project's node_modules direct-dependency symlinks — that is
// Installer.linkProjectRoot's job, run only after both phases below complete.
func (m *Materializer) MaterializeAll(ctx context.Context, graph *Graph) error {
	packages := graph.Packages()

	eg, ctx := errgroup.WithContext(ctx)
	if m.concurrency > 0 {
		eg.SetLimit(m.concurrency)
	}
	for _, pkg := range packages {
		pkg := pkg
		eg.Go(func() error {
			return m.explodeAndCloneIfMissing(ctx, pkg)
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	linkEg, _ := errgroup.WithContext(ctx)
	if m.concurrency > 0 {
		linkEg.SetLimit(m.concurrency)
	}
	for _, pkg := range packages {
		pkg := pkg
		linkEg.Go(func() error {
			return m.linkDependencies(pkg, graph)
		})
	}
	return linkEg.Wait()
}

func (m *Materializer) explodeAndCloneIfMissing(ctx context.Context, pkg *ResolvedPackage) error {
	pkgDir := m.packageDir(pkg)

	// Idempotence (P4): if the package's tree already exists, trust it —
	// no network call, no file write, matching the CAS's own
	// trust-the-store discipline. pkgDir only ever comes into existence
	// via explodeAndClone's final rename, once every entry has cloned, so
	// its presence is a true completion sentinel rather than a side
	// effect of a partial clone.
	if pkgDir.DirExists() {
		if m.OnPackageMaterialized != nil {
			m.OnPackageMaterialized(pkg, true)
		}
		return nil
	}
	if err := m.explodeAndClone(ctx, pkg, pkgDir); err != nil {
		return err
	}
	if m.OnPackageMaterialized != nil {
		m.OnPackageMaterialized(pkg, false)
	}
	return nil
}

// explodeAndClone clones every tarball entry into a staging directory
// beside pkgDir and only renames it into place once all of them have
// succeeded, the same write-to-temp-then-rename discipline store.Insert
// uses for a single file. Without it, a failure partway through (network
// blip, process kill) would leave pkgDir existing but incomplete, and a
// retry would mistake that partial tree for a cached install.
func (m *Materializer) explodeAndClone(ctx context.Context, pkg *ResolvedPackage, pkgDir turbopath.AbsoluteSystemPath) error {
	entries, err := m.tarball.DownloadAndExplode(ctx, pkg.TarballURL, pkg.Integrity)
	if err != nil {
		return errors.Wrapf(err, "materializing %s", pkg.Key())
	}

	stagingDir := pkgDir.Dir().UntypedJoin(fmt.Sprintf(".%s.tmp", uuid.NewString()))
	if err := stagingDir.MkdirAll(); err != nil {
		return errors.Wrapf(err, "materializing %s", pkg.Key())
	}
	defer stagingDir.RemoveAll()

	for relPath, entry := range entries {
		dest := stagingDir.UntypedJoin(relPath)
		if err := dest.EnsureDir(); err != nil {
			return errors.Wrapf(err, "materializing %s", pkg.Key())
		}

		src, err := m.store.FilePath(entry.Hash)
		if err != nil {
			return err
		}

		// No chmod here: the CAS already wrote entry.Hash with the right
		// executable bit (store.Insert), reflink/copy both create dest
		// with src's mode, and a hardlink to src shares its inode's mode
		// outright — chmod-ing dest afterward would mutate that shared
		// CAS file for every other package linked to the same content.
		if _, err := m.strategy.Clone(src.ToString(), dest.ToString()); err != nil {
			return errors.Wrapf(err, "materializing %s", pkg.Key())
		}
	}

	if err := pkgDir.Dir().MkdirAll(); err != nil {
		return errors.Wrapf(err, "materializing %s", pkg.Key())
	}
	if err := stagingDir.Rename(pkgDir); err != nil {
		if pkgDir.DirExists() {
			// Another goroutine materialized the same package first;
			// trust it, matching the CAS's own race-loser discipline.
			return nil
		}
		return errors.Wrapf(err, "materializing %s", pkg.Key())
	}
	return nil
}

// linkDependencies performs §4.4 step 3: for each of pkg's resolved
// dependency edges, symlink the dependency into pkg's private
// node_modules. Called only from MaterializeAll's second phase, after
// every package's file tree has already been cloned.
func (m *Materializer) linkDependencies(pkg *ResolvedPackage, graph *Graph) error {
	privateDir := m.privateModulesDir(pkg)
	if err := privateDir.MkdirAll(); err != nil {
		return err
	}

	for depName, depVersion := range pkg.Dependencies {
		dep, ok := graph.Get(PackageKey(depName, depVersion))
		if !ok {
			continue
		}
		linkPath := privateDir.UntypedJoin(depName)
		target := m.packageDir(dep).ToString()
		if err := createOrReplaceSymlink(linkPath, target, true); err != nil {
			return errors.Wrapf(err, "linking %s -> %s", linkPath, target)
		}
	}
	return nil
}
