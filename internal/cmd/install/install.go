// Package install wires the install-engine orchestrator to the
// `pacquet install` command.
package install

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pacquet/pacquet/internal/cmdutil"
	"github.com/pacquet/pacquet/internal/installer"
	"github.com/pacquet/pacquet/internal/logger"
	"github.com/pacquet/pacquet/internal/ui"
	"github.com/pacquet/pacquet/internal/util"
)

// GetCmd returns the install cobra command.
func GetCmd(helper *cmdutil.Helper) *cobra.Command {
	var opts struct {
		dev            bool
		skipOptional   bool
		frozenLockfile bool
		concurrency    int
	}
	concurrencyFlag := &util.ConcurrencyValue{Value: &opts.concurrency}

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install dependencies from package.json",
		Long:  "Resolves every dependency declared in package.json (or, with --frozen-lockfile, consumes pnpm-lock.yaml verbatim) and projects the result into node_modules.",
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := helper.GetCmdBase(cmd.Flags())
			if err != nil {
				return err
			}
			inst := base.Installer()
			if cmd.Flags().Changed("concurrency") {
				inst.Config.NetworkConcurrency = opts.concurrency
				inst.Config.ChildConcurrency = opts.concurrency
			}

			spin := ui.NewSpinner(cmd.OutOrStdout())
			spin.Start("resolving dependencies")
			defer func() {
				spin.Stop(fmt.Sprintf("done (%s)", inst.State))
			}()

			// Materialization runs many packages concurrently; route each
			// package's completion line through a ConcurrentLogger so
			// goroutines never interleave mid-line, with a per-package
			// PrefixedLogger formatting its own "cached"/"installed" status.
			progress := logger.NewConcurrent(logger.New())
			inst.OnPackageMaterialized = func(pkg *installer.ResolvedPackage, cached bool) {
				status := "installed"
				if cached {
					status = "cached"
				}
				line := logger.NewPrefixed("", pkg.Key()+" ", "", "").Sucessf("%s", status)
				progress.Printf("%s", line)
			}

			runErr := inst.Install(cmd.Context(), installer.Options{
				Dev:            opts.dev,
				Optional:       !opts.skipOptional,
				FrozenLockfile: opts.frozenLockfile,
			})
			if runErr != nil {
				base.LogError("install failed: %w", runErr)
				return &cmdutil.Error{ExitCode: 1, Err: runErr}
			}
			base.LogInfo("install complete")
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.dev, "dev", true, "include devDependencies")
	cmd.Flags().BoolVar(&opts.skipOptional, "no-optional", false, "skip optionalDependencies")
	cmd.Flags().BoolVar(&opts.frozenLockfile, "frozen-lockfile", false, "install strictly from pnpm-lock.yaml, failing if it is missing or out of date")
	cmd.Flags().VarP(concurrencyFlag, "concurrency", "c", "limit the number of concurrent registry fetches and package materializations (a number, or a percentage of CPU cores such as 50%); defaults to the configured network-concurrency/child-concurrency")

	return cmd
}
