// Package installer implements the Package Manager orchestrator named
// in spec.md §4.4: add, install, and run entry points driving a
// concurrent resolution worklist, parallel materialization into a
// content-addressed store, and virtual-store symlink projection.
package installer

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/pacquet/pacquet/internal/config"
	"github.com/pacquet/pacquet/internal/lockfile"
	"github.com/pacquet/pacquet/internal/manifest"
	"github.com/pacquet/pacquet/internal/registry"
	"github.com/pacquet/pacquet/internal/store"
	"github.com/pacquet/pacquet/internal/tarball"
	"github.com/pacquet/pacquet/internal/turbopath"

	"github.com/pacquet/pacquet/internal/linkstrategy"
)

// State is a step of the install state machine named in §4.5: "Loaded
// -> Resolving -> Materializing -> Linking -> Done".
type State string

const (
	StateLoaded        State = "loaded"
	StateResolving     State = "resolving"
	StateMaterializing State = "materializing"
	StateLinking       State = "linking"
	StateDone          State = "done"
)

const rootWorkspace = turbopath.AnchoredUnixPath(".")

// Installer is the Package Manager orchestrator, bound to one project.
type Installer struct {
	ProjectDir turbopath.AbsoluteSystemPath
	Config     *config.Config
	Registry   *registry.Client
	Store      *store.Store
	Tarball    *tarball.Pipeline
	Strategy   linkstrategy.Chain
	Logger     hclog.Logger

	// State is the current step of the install state machine; read by
	// callers (e.g. `pacquet install` to report progress) after each
	// phase transition.
	State State

	// OnPackageMaterialized, when set, is forwarded to every Materializer
	// Install builds, letting a caller report per-package progress
	// without reaching into Install's internals.
	OnPackageMaterialized func(pkg *ResolvedPackage, cached bool)
}

// New builds an Installer from already-constructed dependencies. cfg
// supplies the store/virtual-store layout and link strategy defaults;
// projectDir is the resolved (symlink-free) project root.
func New(projectDir turbopath.AbsoluteSystemPath, cfg *config.Config, registryClient *registry.Client, casStore *store.Store, pipeline *tarball.Pipeline, logger hclog.Logger) *Installer {
	strategy := linkstrategy.Default
	if cfg.PackageImportMethod == config.ImportHardlink {
		strategy = linkstrategy.Chain{linkstrategy.Hardlink, linkstrategy.Copy}
	} else if cfg.PackageImportMethod == config.ImportCopy {
		strategy = linkstrategy.Chain{linkstrategy.Copy}
	}

	return &Installer{
		ProjectDir: projectDir,
		Config:     cfg,
		Registry:   registryClient,
		Store:      casStore,
		Tarball:    pipeline,
		Strategy:   strategy,
		Logger:     logger.Named("installer"),
		State:      StateLoaded,
	}
}

func (inst *Installer) modulesDir() turbopath.AbsoluteSystemPath {
	return inst.ProjectDir.UntypedJoin(inst.Config.ModulesDir)
}

func (inst *Installer) virtualStoreDir() turbopath.AbsoluteSystemPath {
	return inst.ProjectDir.UntypedJoin(inst.Config.VirtualStoreDir)
}

// Options configures Install per §4.4: which optional dependency groups
// to include, and whether to take the frozen-lockfile path.
type Options struct {
	Dev            bool
	Optional       bool
	FrozenLockfile bool
}

// Install resolves (or, in frozen mode, consumes) every dependency the
// manifest declares, materializes it into the content-addressed store,
// and projects the virtual store's symlinks. It drives the state
// machine Loaded -> Resolving -> Materializing -> Linking -> Done.
func (inst *Installer) Install(ctx context.Context, opts Options) error {
	inst.State = StateLoaded

	manifestPath := inst.ProjectDir.UntypedJoin("package.json")
	m, err := manifest.Read(manifestPath)
	if err != nil {
		return err
	}

	direct := declaredDependencies(m, opts)

	var graph *Graph
	if opts.FrozenLockfile {
		graph, err = inst.resolveFrozen(ctx, direct, opts)
	} else {
		graph, err = inst.resolveFresh(ctx, direct, opts)
	}
	if err != nil {
		return err
	}

	inst.State = StateMaterializing
	materializer := NewMaterializer(inst.Store, inst.Tarball, inst.Strategy, inst.virtualStoreDir(), inst.Config.ChildConcurrency)
	materializer.OnPackageMaterialized = inst.OnPackageMaterialized
	if err := materializer.MaterializeAll(ctx, graph); err != nil {
		return err
	}

	inst.State = StateLinking
	if err := inst.linkProjectRoot(materializer, graph); err != nil {
		return err
	}

	inst.State = StateDone
	return nil
}

// resolveFresh runs the concurrent resolution worklist against the
// registry (§4.4 "Resolution algorithm (non-frozen)").
func (inst *Installer) resolveFresh(ctx context.Context, direct map[string]string, opts Options) (*Graph, error) {
	inst.State = StateResolving
	resolver := NewResolver(inst.Registry, inst.Config.AutoInstallPeers, DependencySet{Dev: opts.Dev, Optional: opts.Optional}, inst.Config.NetworkConcurrency)
	return resolver.Resolve(ctx, direct)
}

// resolveFrozen consumes an existing pnpm-lock.yaml directly, never
// touching the registry for metadata (§4.4 "Frozen-lockfile path", P5).
func (inst *Installer) resolveFrozen(ctx context.Context, direct map[string]string, opts Options) (*Graph, error) {
	inst.State = StateResolving

	lockPath := inst.ProjectDir.UntypedJoin("pnpm-lock.yaml")
	raw, err := lockPath.ReadFile()
	if err != nil {
		return nil, &lockfile.StaleError{
			Workspace:  rootWorkspace.ToString(),
			Mismatches: []lockfile.StaleMismatch{{Name: "*", MissingFromGraph: true}},
		}
	}

	lockGraph, err := lockfile.Decode(raw)
	if err != nil {
		return nil, err
	}

	if err := lockGraph.ValidateAgainstManifest(rootWorkspace, direct); err != nil {
		return nil, err
	}

	closure, err := lockfile.TransitiveClosure(rootWorkspace, direct, lockGraph)
	if err != nil {
		return nil, err
	}

	graph := newGraph()
	for _, raw := range closure.ToSlice() {
		lockKey := raw.(string)
		pkg, ok := lockGraph.Packages[lockKey]
		if !ok {
			continue
		}
		name, version := splitPackageKey(lockKey)
		resolved := &ResolvedPackage{
			Name:         name,
			Version:      version,
			TarballURL:   resolveTarballURL(inst.Config.Registry, name, version, pkg.Resolution),
			Integrity:    pkg.Resolution.Integrity,
			Dependencies: make(map[string]string, len(pkg.Dependencies)+len(pkg.OptionalDependencies)),
		}
		for depName, depVersion := range pkg.Dependencies {
			resolved.Dependencies[depName] = depVersion
		}
		if opts.Optional {
			for depName, depVersion := range pkg.OptionalDependencies {
				resolved.Dependencies[depName] = depVersion
			}
		}
		graph.addIfAbsent(resolved)
	}

	for name, rangeSpec := range direct {
		lockKey, _, found := lockGraph.ResolvePackage(rootWorkspace, name, rangeSpec)
		if found {
			_, version := splitPackageKey(lockKey)
			graph.markDirect(name, version)
		}
	}

	return graph, nil
}

// linkProjectRoot performs §4.4 step 4: for every project direct
// dependency, symlink <project>/node_modules/<name> to its virtual-store
// package directory. Written last, after every package's own tree and
// internal symlinks are complete (§5: "partial installs never advertise
// themselves as ready").
func (inst *Installer) linkProjectRoot(materializer *Materializer, graph *Graph) error {
	for name, version := range graph.Direct() {
		dep, ok := graph.Get(PackageKey(name, version))
		if !ok {
			continue
		}
		linkPath := inst.modulesDir().UntypedJoin(name)
		target := materializer.packageDir(dep).ToString()
		if err := createOrReplaceSymlink(linkPath, target, false); err != nil {
			return err
		}
	}
	return nil
}

// declaredDependencies merges a manifest's dependency fields according
// to opts, in the precedence order §4.4 implies (runtime dependencies
// always included; dev/optional only when requested).
func declaredDependencies(m *manifest.Manifest, opts Options) map[string]string {
	out := make(map[string]string, len(m.Dependencies))
	for name, rangeSpec := range m.Dependencies {
		out[name] = rangeSpec
	}
	if opts.Dev {
		for name, rangeSpec := range m.DevDependencies {
			out[name] = rangeSpec
		}
	}
	if opts.Optional {
		for name, rangeSpec := range m.OptionalDependencies {
			out[name] = rangeSpec
		}
	}
	return out
}

func splitPackageKey(lockKey string) (name, version string) {
	trimmed := strings.TrimPrefix(lockKey, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return trimmed, ""
	}
	return trimmed[:idx], trimmed[idx+1:]
}

func resolveTarballURL(registryBase, name, version string, resolution lockfile.PackageResolution) string {
	if resolution.Tarball != "" {
		return resolution.Tarball
	}
	return fmt.Sprintf("%s%s/-/%s-%s.tgz", strings.TrimSuffix(registryBase, "/")+"/", name, baseName(name), version)
}

// baseName strips a scope prefix ("@scope/name" -> "name") for the
// final path segment of npm's default tarball URL shape.
func baseName(name string) string {
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		return name[idx+1:]
	}
	return name
}

// Run looks up scriptName in the manifest's scripts map and executes it
// with node_modules/.bin prepended to PATH (§4.4 "run"). If the script
// is absent and ifPresent is set, Run succeeds silently.
func (inst *Installer) Run(ctx context.Context, scriptName string, ifPresent bool) error {
	manifestPath := inst.ProjectDir.UntypedJoin("package.json")
	m, err := manifest.Read(manifestPath)
	if err != nil {
		return err
	}

	script, ok := m.Scripts[scriptName]
	if !ok {
		if ifPresent {
			return nil
		}
		return &ScriptNotFoundError{Script: scriptName}
	}

	binDir := inst.modulesDir().UntypedJoin(".bin")
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", script)
	cmd.Dir = inst.ProjectDir.ToString()
	cmd.Env = append(os.Environ(), "PATH="+binDir.ToString()+":"+os.Getenv("PATH"))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	if err := cmd.Run(); err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if ok {
			return &ScriptFailureError{Script: scriptName, ExitCode: exitErr.ExitCode(), Cause: err}
		}
		return &ScriptFailureError{Script: scriptName, ExitCode: -1, Cause: err}
	}
	return nil
}
