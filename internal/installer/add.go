package installer

import (
	"context"
	"strings"

	"github.com/pacquet/pacquet/internal/manifest"
	"github.com/pacquet/pacquet/internal/registry"
)

// AddOptions controls how Add resolves and persists a new dependency.
type AddOptions struct {
	// Group selects which manifest field the dependency is written to.
	Group manifest.DependencyField
	// SaveExact writes the exact resolved version instead of a caret range.
	SaveExact bool
}

// Add resolves spec (a bare package name, or "name@range") against the
// registry, installs it and its dependencies, and persists the chosen
// range back into the project's package.json (§4.4 "add").
func (inst *Installer) Add(ctx context.Context, spec string, opts AddOptions) error {
	name, rangeSpec := parsePackageSpec(spec)
	if rangeSpec == "" {
		rangeSpec = "*"
	}

	versions, err := inst.Registry.FetchPackage(ctx, name)
	if err != nil {
		return err
	}
	picked, err := registry.PickVersion(versions, rangeSpec)
	if err != nil {
		return err
	}

	manifestPath := inst.ProjectDir.UntypedJoin("package.json")
	m, err := manifest.Read(manifestPath)
	if err != nil {
		return err
	}

	writtenRange := "^" + picked.Version
	if opts.SaveExact {
		writtenRange = picked.Version
	}

	group := opts.Group
	if group == "" {
		group = manifest.Dependencies
	}
	if err := m.SetDependency(group, name, writtenRange); err != nil {
		return err
	}
	if err := m.Save(); err != nil {
		return err
	}

	return inst.Install(ctx, Options{Dev: true, Optional: true})
}

// parsePackageSpec splits "name@range" into its parts. A scoped package
// ("@scope/name@range") has its leading "@" preserved: the split point
// is the last "@" that isn't the first character.
func parsePackageSpec(spec string) (name, rangeSpec string) {
	if idx := strings.LastIndex(spec, "@"); idx > 0 {
		return spec[:idx], spec[idx+1:]
	}
	return spec, ""
}
