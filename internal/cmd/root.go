// Package cmd holds the root cobra command for pacquet.
package cmd

import (
	"errors"
	"os"
	"runtime/pprof"
	"runtime/trace"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/pacquet/pacquet/internal/cmd/add"
	"github.com/pacquet/pacquet/internal/cmd/install"
	"github.com/pacquet/pacquet/internal/cmd/run"
	"github.com/pacquet/pacquet/internal/cmd/store"
	"github.com/pacquet/pacquet/internal/cmdutil"
	"github.com/pacquet/pacquet/internal/signals"
)

type execOpts struct {
	heapFile       string
	cpuProfileFile string
	traceFile      string
}

func (eo *execOpts) addFlags(flags *pflag.FlagSet) {
	flags.StringVar(&eo.heapFile, "heap", "", "Specify a file to save a pprof heap profile")
	flags.StringVar(&eo.cpuProfileFile, "cpuprofile", "", "Specify a file to save a cpu profile")
	flags.StringVar(&eo.traceFile, "trace", "", "Specify a file to save a pprof trace")
}

// RunWithArgs runs pacquet with the specified arguments. The arguments
// should not include the binary being invoked (e.g. "pacquet").
func RunWithArgs(args []string, pacquetVersion string) int {
	signalWatcher := signals.NewWatcher()
	helper := cmdutil.NewHelper(pacquetVersion)
	root := getCmd(helper)
	defer helper.Cleanup(root.PersistentFlags())
	root.SetArgs(args)

	doneCh := make(chan struct{})
	var execErr error
	go func() {
		execErr = root.Execute()
		close(doneCh)
	}()

	select {
	case <-doneCh:
		signalWatcher.Close()
		var cmdErr *cmdutil.Error
		if errors.As(execErr, &cmdErr) {
			return cmdErr.ExitCode
		} else if execErr != nil {
			return 1
		}
		return 0
	case <-signalWatcher.Done():
		return 1
	}
}

// getCmd returns the root cobra command.
func getCmd(helper *cmdutil.Helper) *cobra.Command {
	execOpts := &execOpts{}

	cmd := &cobra.Command{
		Use:              "pacquet",
		Short:            "An experimental, pnpm-API-compatible package manager",
		TraverseChildren: true,
		Version:          helper.PacquetVersion,
		SilenceUsage:     true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if execOpts.traceFile != "" {
				cleanup, err := createTraceFile(execOpts.traceFile)
				if err != nil {
					return err
				}
				helper.RegisterCleanup(cleanup)
			}
			if execOpts.heapFile != "" {
				cleanup, err := createHeapFile(execOpts.heapFile)
				if err != nil {
					return err
				}
				helper.RegisterCleanup(cleanup)
			}
			if execOpts.cpuProfileFile != "" {
				cleanup, err := createCPUProfileFile(execOpts.cpuProfileFile)
				if err != nil {
					return err
				}
				helper.RegisterCleanup(cleanup)
			}
			return nil
		},
	}
	cmd.SetVersionTemplate("{{.Version}}\n")
	flags := cmd.PersistentFlags()
	helper.AddFlags(flags)
	execOpts.addFlags(flags)

	cmd.AddCommand(add.GetCmd(helper))
	cmd.AddCommand(install.GetCmd(helper))
	cmd.AddCommand(run.GetCmd(helper))
	cmd.AddCommand(store.GetCmd(helper))
	return cmd
}

type profileCleanup func() error

// Close implements io.Closer for profileCleanup.
func (pc profileCleanup) Close() error {
	return pc()
}

func createTraceFile(traceFile string) (profileCleanup, error) {
	f, err := os.Create(traceFile)
	if err != nil {
		return nil, err
	}
	if err := trace.Start(f); err != nil {
		return nil, err
	}
	return func() error {
		trace.Stop()
		return f.Close()
	}, nil
}

func createHeapFile(heapFile string) (profileCleanup, error) {
	f, err := os.Create(heapFile)
	if err != nil {
		return nil, err
	}
	return func() error {
		if err := pprof.WriteHeapProfile(f); err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	}, nil
}

func createCPUProfileFile(cpuProfileFile string) (profileCleanup, error) {
	f, err := os.Create(cpuProfileFile)
	if err != nil {
		return nil, err
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		return nil, err
	}
	return func() error {
		pprof.StopCPUProfile()
		return f.Close()
	}, nil
}
