// Package cmdutil holds functionality to run pacquet via cobra. That includes flag parsing and configuration
// of components common to all subcommands
package cmdutil

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/hashicorp/go-hclog"
	"github.com/mattn/go-isatty"
	"github.com/mitchellh/cli"
	"github.com/spf13/pflag"

	"github.com/pacquet/pacquet/internal/config"
	"github.com/pacquet/pacquet/internal/fs"
	"github.com/pacquet/pacquet/internal/installer"
	"github.com/pacquet/pacquet/internal/registry"
	"github.com/pacquet/pacquet/internal/store"
	"github.com/pacquet/pacquet/internal/tarball"
	"github.com/pacquet/pacquet/internal/turbopath"
	"github.com/pacquet/pacquet/internal/ui"
)

const (
	// _envLogLevel is the environment variable that sets the log level
	// when no -v flag is given.
	_envLogLevel = "PACQUET_LOG_LEVEL"
)

// Helper is a struct used to hold configuration values passed via flag, env vars,
// config files, etc. It is not intended for direct use by pacquet commands, it drives
// the creation of CmdBase, which is then used by the commands themselves.
type Helper struct {
	// PacquetVersion is the version of pacquet that is currently executing
	PacquetVersion string

	// for UI
	forceColor bool
	noColor    bool
	// for logging
	verbosity int

	rawProjectDir string

	cleanupsMu sync.Mutex
	cleanups   []io.Closer
}

// RegisterCleanup saves a function to be run after pacquet execution,
// even if the command that runs returns an error
func (h *Helper) RegisterCleanup(cleanup io.Closer) {
	h.cleanupsMu.Lock()
	defer h.cleanupsMu.Unlock()
	h.cleanups = append(h.cleanups, cleanup)
}

// Cleanup runs the registered cleanup handlers. It requires the flags
// to the root command so that it can construct a UI if necessary
func (h *Helper) Cleanup(flags *pflag.FlagSet) {
	h.cleanupsMu.Lock()
	defer h.cleanupsMu.Unlock()
	var u cli.Ui
	for _, cleanup := range h.cleanups {
		if err := cleanup.Close(); err != nil {
			if u == nil {
				u = h.getUI(flags)
			}
			u.Warn(fmt.Sprintf("failed cleanup: %v", err))
		}
	}
}

func (h *Helper) getUI(flags *pflag.FlagSet) cli.Ui {
	colorMode := ui.GetColorModeFromEnv()
	if flags.Changed("no-color") && h.noColor {
		colorMode = ui.ColorModeSuppressed
	}
	if flags.Changed("color") && h.forceColor {
		colorMode = ui.ColorModeForced
	}
	return ui.BuildColoredUi(colorMode)
}

func (h *Helper) getLogger() (hclog.Logger, error) {
	var level hclog.Level
	switch h.verbosity {
	case 0:
		if v := os.Getenv(_envLogLevel); v != "" {
			level = hclog.LevelFromString(v)
			if level == hclog.NoLevel {
				return nil, fmt.Errorf("%s value %q is not a valid log level", _envLogLevel, v)
			}
		} else {
			level = hclog.NoLevel
		}
	case 1:
		level = hclog.Info
	case 2:
		level = hclog.Debug
	case 3:
		level = hclog.Trace
	default:
		level = hclog.Trace
	}
	// Default output is nowhere unless we enable logging.
	output := ioutil.Discard
	logColor := hclog.ColorOff
	if level != hclog.NoLevel {
		output = os.Stderr
		logColor = hclog.AutoColor
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:   "pacquet",
		Level:  level,
		Color:  logColor,
		Output: output,
	}), nil
}

// AddFlags adds common flags for all pacquet commands to the given flagset and binds
// them to this instance of Helper
func (h *Helper) AddFlags(flags *pflag.FlagSet) {
	flags.BoolVar(&h.forceColor, "color", false, "Force color usage in the terminal")
	flags.BoolVar(&h.noColor, "no-color", false, "Suppress color usage in the terminal")
	flags.CountVarP(&h.verbosity, "verbosity", "v", "verbosity")
	flags.StringVar(&h.rawProjectDir, "dir", "", "The project directory to operate in")
}

// NewHelper returns a new helper instance to hold configuration values for the root
// pacquet command.
func NewHelper(pacquetVersion string) *Helper {
	return &Helper{
		PacquetVersion: pacquetVersion,
	}
}

// GetCmdBase returns a CmdBase instance configured with values from this helper.
func (h *Helper) GetCmdBase(flags *pflag.FlagSet) (*CmdBase, error) {
	// terminal is for color/no-color output
	terminal := h.getUI(flags)

	// logger is configured with verbosity level using --verbosity flag from end users
	logger, err := h.getLogger()
	if err != nil {
		return nil, err
	}

	cwd, err := fs.GetCwd()
	if err != nil {
		return nil, err
	}
	projectDir := cwd
	if h.rawProjectDir != "" {
		projectDir = turbopath.AbsoluteSystemPathFromUpstream(h.rawProjectDir)
	}
	projectDir, err = projectDir.EvalSymlinks()
	if err != nil {
		return nil, err
	}

	cfg, unknownKeys, err := config.Load(projectDir.ToString())
	if err != nil {
		return nil, err
	}
	for _, key := range unknownKeys {
		logger.Warn("unrecognized .npmrc key", "key", key)
		terminal.Warn(fmt.Sprintf("%sunrecognized .npmrc key %q", ui.WARNING_PREFIX, key))
	}

	registryClient := registry.New(registry.Opts{BaseURL: cfg.Registry}, logger)

	casStore, err := store.New(cfg.StoreDir)
	if err != nil {
		return nil, err
	}
	pipeline := tarball.New(casStore, logger)
	if isatty.IsTerminal(os.Stderr.Fd()) {
		pipeline.ProgressOutput = os.Stderr
	}

	return &CmdBase{
		UI:             terminal,
		Logger:         logger,
		ProjectDir:     projectDir,
		Config:         cfg,
		Registry:       registryClient,
		Store:          casStore,
		Tarball:        pipeline,
		PacquetVersion: h.PacquetVersion,
	}, nil
}

// CmdBase encompasses configured components common to all pacquet commands.
type CmdBase struct {
	UI             cli.Ui
	Logger         hclog.Logger
	ProjectDir     turbopath.AbsoluteSystemPath
	Config         *config.Config
	Registry       *registry.Client
	Store          *store.Store
	Tarball        *tarball.Pipeline
	PacquetVersion string
}

// Installer builds the install-engine orchestrator bound to this
// command's project directory and already-configured components.
func (b *CmdBase) Installer() *installer.Installer {
	return installer.New(b.ProjectDir, b.Config, b.Registry, b.Store, b.Tarball, b.Logger)
}

// LogError prints an error to the UI
func (b *CmdBase) LogError(format string, args ...interface{}) {
	err := fmt.Errorf(format, args...)
	b.Logger.Error("error", err)
	b.UI.Error(fmt.Sprintf("%s%s", ui.ERROR_PREFIX, color.RedString(" %v", err)))
}

// LogWarning logs an error and outputs it to the UI.
func (b *CmdBase) LogWarning(prefix string, err error) {
	b.Logger.Warn(prefix, "warning", err)

	if prefix != "" {
		prefix = " " + prefix + ": "
	}

	b.UI.Warn(fmt.Sprintf("%s%s%s", ui.WARNING_PREFIX, prefix, color.YellowString(" %v", err)))
}

// LogInfo logs a message and outputs it to the UI.
func (b *CmdBase) LogInfo(msg string) {
	b.Logger.Info(msg)
	b.UI.Info(fmt.Sprintf("%s%s", ui.InfoPrefix, color.WhiteString(" %v", msg)))
}
