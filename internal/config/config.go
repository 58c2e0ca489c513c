// Package config loads pacquet's install-time settings from the same
// layered sources pnpm/npm read: a user .npmrc, a project .npmrc, and
// npm_config_*-style environment variables, in increasing priority.
package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/adrg/xdg"
	homedir "github.com/mitchellh/go-homedir"
	"gopkg.in/ini.v1"

	"github.com/pacquet/pacquet/internal/turbopath"
)

// PackageImportMethod controls how a package's files are placed into the
// virtual store from the content-addressed store.
type PackageImportMethod string

const (
	ImportAuto     PackageImportMethod = "auto"
	ImportHardlink PackageImportMethod = "hardlink"
	ImportCopy     PackageImportMethod = "copy"
)

// Config is the resolved set of options that govern a single install.
type Config struct {
	// StoreDir is the content-addressed store location, shared across
	// projects. Defaults to <PNPM_HOME>/store/v3 when PNPM_HOME is set,
	// otherwise <XDG data directory>/pacquet/store.
	StoreDir turbopath.AbsoluteSystemPath

	// Registry is the default package registry base URL.
	Registry string

	// ModulesDir is the project-relative path node_modules is rooted at.
	ModulesDir string

	// VirtualStoreDir is the project-relative path the .pnpm virtual
	// store is rooted at.
	VirtualStoreDir string

	// AutoInstallPeers mirrors pnpm's setting of the same name: when
	// true, missing peer dependencies are resolved and installed as if
	// they were regular dependencies.
	AutoInstallPeers bool

	// PackageImportMethod chooses how files move from the store into
	// node_modules.
	PackageImportMethod PackageImportMethod

	// NetworkConcurrency bounds the number of simultaneous registry/tarball
	// requests.
	NetworkConcurrency int

	// ChildConcurrency bounds the number of packages materialized at once.
	ChildConcurrency int
}

const defaultRegistry = "https://registry.npmjs.org/"
const defaultNetworkConcurrency = 16
const defaultChildConcurrency = 5

// Default returns a Config populated with pacquet's built-in defaults,
// before any file or environment overrides are applied.
func Default() *Config {
	return &Config{
		StoreDir:            defaultStoreDir(),
		Registry:            defaultRegistry,
		ModulesDir:          "node_modules",
		VirtualStoreDir:     filepath.Join("node_modules", ".pnpm"),
		AutoInstallPeers:    false,
		PackageImportMethod: ImportAuto,
		NetworkConcurrency:  defaultNetworkConcurrency,
		ChildConcurrency:    defaultChildConcurrency,
	}
}

func defaultStoreDir() turbopath.AbsoluteSystemPath {
	if home := os.Getenv("PNPM_HOME"); home != "" {
		return turbopath.AbsoluteSystemPathFromUpstream(home).UntypedJoin("store", "v3")
	}
	return turbopath.AbsoluteSystemPathFromUpstream(xdg.DataHome).UntypedJoin("pacquet", "store")
}

// knownKeys is every .npmrc/env key applySection understands. Anything
// else present in a loaded section is reported back to the caller as an
// unrecognized-key warning rather than silently ignored.
var knownKeys = map[string]bool{
	"registry":              true,
	"store-dir":             true,
	"modules-dir":           true,
	"virtual-store-dir":     true,
	"auto-install-peers":    true,
	"package-import-method": true,
	"network-concurrency":   true,
	"child-concurrency":     true,
}

// Load resolves the final Config for an install rooted at projectDir,
// merging (lowest to highest priority): built-in defaults, the user
// .npmrc, the project .npmrc, then npm_config_*/pacquet_config_*
// environment variables. The second return value lists keys present in those
// sources that Load did not recognize, for the caller to warn about.
func Load(projectDir string) (*Config, []string, error) {
	cfg := Default()

	projectFile, _ := filepath.Abs(filepath.Join(projectDir, ".npmrc"))

	userFile := ""
	if home, err := homedir.Dir(); err == nil {
		userFile = filepath.Join(home, ".npmrc")
	}

	envSource, err := envNpmrc()
	if err != nil {
		return nil, nil, err
	}

	opts := ini.LoadOptions{
		Loose:              true,
		KeyValueDelimiters: "=",
	}
	merged, err := ini.LoadSources(opts, userFile, projectFile, envSource)
	if err != nil {
		return nil, nil, err
	}

	section := merged.Section("")
	applySection(cfg, section)

	var unknown []string
	for _, key := range section.Keys() {
		if !knownKeys[key.Name()] {
			unknown = append(unknown, key.Name())
		}
	}

	return cfg, unknown, nil
}

func applySection(cfg *Config, section *ini.Section) {
	if section.HasKey("registry") {
		cfg.Registry = section.Key("registry").String()
	}
	if section.HasKey("store-dir") {
		cfg.StoreDir = turbopath.AbsoluteSystemPathFromUpstream(os.ExpandEnv(section.Key("store-dir").String()))
	}
	if section.HasKey("modules-dir") {
		cfg.ModulesDir = section.Key("modules-dir").String()
	}
	if section.HasKey("virtual-store-dir") {
		cfg.VirtualStoreDir = section.Key("virtual-store-dir").String()
	}
	if section.HasKey("auto-install-peers") {
		if v, err := strconv.ParseBool(section.Key("auto-install-peers").String()); err == nil {
			cfg.AutoInstallPeers = v
		}
	}
	if section.HasKey("package-import-method") {
		switch PackageImportMethod(section.Key("package-import-method").String()) {
		case ImportHardlink:
			cfg.PackageImportMethod = ImportHardlink
		case ImportCopy:
			cfg.PackageImportMethod = ImportCopy
		default:
			cfg.PackageImportMethod = ImportAuto
		}
	}
	if section.HasKey("network-concurrency") {
		if v, err := section.Key("network-concurrency").Int(); err == nil && v > 0 {
			cfg.NetworkConcurrency = v
		}
	}
	if section.HasKey("child-concurrency") {
		if v, err := section.Key("child-concurrency").Int(); err == nil && v > 0 {
			cfg.ChildConcurrency = v
		}
	}
}

// envNpmrc collects npm_config_*/pacquet_config_* environment variables
// into an ini.Load()-able byte slice, the same trick npm itself uses to
// fold env vars into its config precedence chain.
func envNpmrc() ([]byte, error) {
	iniFile := ini.Empty()
	section := iniFile.Section("")

	for _, prefix := range []string{"npm_config_", "pacquet_config_"} {
		for _, env := range os.Environ() {
			k, v, ok := strings.Cut(env, "=")
			if !ok {
				continue
			}
			k = strings.ToLower(k)
			if key, ok := strings.CutPrefix(k, prefix); ok {
				if _, err := section.NewKey(key, v); err != nil {
					return nil, err
				}
			}
		}
	}

	var buf bytes.Buffer
	if _, err := iniFile.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
