// Package store wires the content-addressed store's maintenance
// operations to `pacquet store`.
package store

import (
	"github.com/spf13/cobra"

	"github.com/pacquet/pacquet/internal/cmdutil"
)

// GetCmd returns the store cobra command and its prune subcommand.
func GetCmd(helper *cmdutil.Helper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Manage the content-addressed store",
	}
	cmd.AddCommand(pruneCmd(helper))
	return cmd
}

func pruneCmd(helper *cmdutil.Helper) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Remove every package from the content-addressed store",
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := helper.GetCmdBase(cmd.Flags())
			if err != nil {
				return err
			}
			if err := base.Store.Prune(); err != nil {
				base.LogError("store prune failed: %w", err)
				return &cmdutil.Error{ExitCode: 1, Err: err}
			}
			base.LogInfo("store pruned")
			return nil
		},
	}
}
