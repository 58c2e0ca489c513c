// Package add wires the installer's Add operation to `pacquet add`.
package add

import (
	"github.com/spf13/cobra"

	"github.com/pacquet/pacquet/internal/cmdutil"
	"github.com/pacquet/pacquet/internal/installer"
	"github.com/pacquet/pacquet/internal/manifest"
)

// GetCmd returns the add cobra command.
func GetCmd(helper *cmdutil.Helper) *cobra.Command {
	var opts struct {
		saveDev      bool
		saveOptional bool
		savePeer     bool
		saveExact    bool
	}

	cmd := &cobra.Command{
		Use:   "add <package>[@<range>]",
		Short: "Add a dependency to package.json and install it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := helper.GetCmdBase(cmd.Flags())
			if err != nil {
				return err
			}

			group := manifest.Dependencies
			switch {
			case opts.saveDev:
				group = manifest.DevDependencies
			case opts.saveOptional:
				group = manifest.OptionalDependencies
			case opts.savePeer:
				group = manifest.PeerDependencies
			}

			if err := base.Installer().Add(cmd.Context(), args[0], installer.AddOptions{
				Group:     group,
				SaveExact: opts.saveExact,
			}); err != nil {
				base.LogError("add failed: %w", err)
				return &cmdutil.Error{ExitCode: 1, Err: err}
			}
			base.LogInfo("added " + args[0])
			return nil
		},
	}

	cmd.Flags().BoolVarP(&opts.saveDev, "save-dev", "D", false, "save to devDependencies")
	cmd.Flags().BoolVar(&opts.saveOptional, "save-optional", false, "save to optionalDependencies")
	cmd.Flags().BoolVar(&opts.savePeer, "save-peer", false, "save to peerDependencies")
	cmd.Flags().BoolVarP(&opts.saveExact, "save-exact", "E", false, "save the exact resolved version instead of a caret range")

	return cmd
}
