// Package run wires the installer's script runner to `pacquet run`.
package run

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/pacquet/pacquet/internal/cmdutil"
	"github.com/pacquet/pacquet/internal/installer"
)

// GetCmd returns the run cobra command.
func GetCmd(helper *cmdutil.Helper) *cobra.Command {
	var ifPresent bool

	cmd := &cobra.Command{
		Use:   "run <script>",
		Short: "Run a script defined in package.json",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := helper.GetCmdBase(cmd.Flags())
			if err != nil {
				return err
			}
			if err := base.Installer().Run(cmd.Context(), args[0], ifPresent); err != nil {
				base.LogError("run failed: %w", err)
				exitCode := 1
				var failure *installer.ScriptFailureError
				if errors.As(err, &failure) && failure.ExitCode > 0 {
					exitCode = failure.ExitCode
				}
				return &cmdutil.Error{ExitCode: exitCode, Err: err}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&ifPresent, "if-present", false, "exit successfully if the script is not defined")

	return cmd
}
