// Package ownercmder provides the owner command, which manages the default
// owner id saved in the .mnemo profile.
package ownercmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/mnemo/cmd/mnemo/cmdutil"
	"github.com/papercomputeco/mnemo/pkg/cliui"
	"github.com/papercomputeco/mnemo/pkg/dotdir"
)

const ownerLongDesc string = `Show or change the default owner.

Every memory belongs to one owner and recall only ever sees that owner's
memories. Commands use --owner when given, then $MNEMO_OWNER, then the owner
saved here.

Examples:
  mnemo owner
  mnemo owner set alice
  mnemo owner clear`

const ownerShortDesc string = "Show or change the default owner"

func NewOwnerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "owner",
		Short: ownerShortDesc,
		Long:  ownerLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			owner, err := cmdutil.ResolveOwner(cmd, "")
			if err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", cliui.DimStyle.Render("No owner set."))
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  %s %s\n", cliui.KeyStyle.Render("Owner:"), cliui.ValueStyle.Render(owner))
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <id>",
		Short: "Save the default owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := dotdir.NewManager().SaveProfile(&dotdir.Profile{OwnerID: args[0]}, cmdutil.ConfigDir(cmd))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  %s Owner set to %s\n", cliui.SuccessMark, cliui.ValueStyle.Render(args[0]))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove the saved owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := dotdir.NewManager().ClearProfile(cmdutil.ConfigDir(cmd)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  %s Owner cleared\n", cliui.SuccessMark)
			return nil
		},
	})

	return cmd
}
