// Package forgetcmder provides the forget command, which deletes a memory.
package forgetcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/mnemo/cmd/mnemo/cmdutil"
	"github.com/papercomputeco/mnemo/pkg/cliui"
	"github.com/papercomputeco/mnemo/pkg/config"
)

const forgetLongDesc string = `Delete a memory.

Removes the memory from the vector store, and its node and mention edges
from the entity graph. Entities and the co-occurrence edges between them
stay, and fade through edge decay.

Examples:
  mnemo forget 3f2a9c1e-7d1b-4c55-9a9e-2b8f0c6d4e11
  mnemo forget <id> --remote`

const forgetShortDesc string = "Delete a memory"

func NewForgetCmd() *cobra.Command {
	var (
		owner  string
		remote bool
	)

	cmd := &cobra.Command{
		Use:   "forget <id>",
		Short: forgetShortDesc,
		Long:  forgetLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runForget(cmd, args[0], owner, remote)
		},
	}

	cmdutil.AddOwnerFlag(cmd, &owner)
	cmdutil.AddRemoteFlags(cmd, &remote)
	cmdutil.AddStoreFlags(cmd)

	return cmd
}

func runForget(cmd *cobra.Command, id, ownerFlag string, remote bool) error {
	owner, err := cmdutil.ResolveOwner(cmd, ownerFlag)
	if err != nil {
		return err
	}

	cfg, err := cmdutil.LoadConfig(cmd, config.StoreFlags, config.ClientFlags)
	if err != nil {
		return err
	}

	if remote {
		cl, err := cmdutil.Remote(cfg)
		if err != nil {
			return err
		}
		if err := cl.Delete(cmd.Context(), owner, id); err != nil {
			return err
		}
	} else {
		s, err := cmdutil.OpenStack(cmd.Context(), cmd, cfg, cmdutil.Logger(cmd, true))
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.Ingest.Delete(cmd.Context(), owner, id); err != nil {
			return err
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "  %s Forgot %s\n", cliui.SuccessMark, cliui.ValueStyle.Render(id))
	return nil
}
