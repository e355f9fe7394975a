// Package recentcmder provides the recent command.
package recentcmder

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/mnemo/cmd/mnemo/cmdutil"
	"github.com/papercomputeco/mnemo/pkg/cliui"
	"github.com/papercomputeco/mnemo/pkg/config"
	"github.com/papercomputeco/mnemo/pkg/memory"
)

const recentLongDesc string = `List an owner's memories from the current session.

Memories from the last two days are shown newest first, the same context a
conversation would be primed with.

Examples:
  mnemo recent
  mnemo recent --limit 20 --json`

const recentShortDesc string = "List session memories"

func NewRecentCmd() *cobra.Command {
	var (
		owner   string
		limit   int
		remote  bool
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "recent",
		Short: recentShortDesc,
		Long:  recentLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRecent(cmd, owner, limit, remote, jsonOut)
		},
	}

	cmdutil.AddOwnerFlag(cmd, &owner)
	cmdutil.AddRemoteFlags(cmd, &remote)
	cmdutil.AddStoreFlags(cmd)
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum memories to list")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the raw result as JSON")

	return cmd
}

func runRecent(cmd *cobra.Command, ownerFlag string, limit int, remote, jsonOut bool) error {
	owner, err := cmdutil.ResolveOwner(cmd, ownerFlag)
	if err != nil {
		return err
	}

	cfg, err := cmdutil.LoadConfig(cmd, config.StoreFlags, config.ClientFlags)
	if err != nil {
		return err
	}

	var mems []*memory.Memory
	if remote {
		cl, err := cmdutil.Remote(cfg)
		if err != nil {
			return err
		}
		if mems, err = cl.Recent(cmd.Context(), owner, limit); err != nil {
			return err
		}
	} else {
		s, err := cmdutil.OpenStack(cmd.Context(), cmd, cfg, cmdutil.Logger(cmd, true))
		if err != nil {
			return err
		}
		defer s.Close()

		if mems, err = s.Retrieval.Recent(cmd.Context(), owner, limit); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if jsonOut {
		if mems == nil {
			mems = []*memory.Memory{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(mems)
	}
	printRecent(out, mems)
	return nil
}

func printRecent(w io.Writer, mems []*memory.Memory) {
	if len(mems) == 0 {
		fmt.Fprintln(w, "No memories this session.")
		return
	}
	fmt.Fprintln(w)
	for _, m := range mems {
		fmt.Fprintf(w, "  %s  %s\n", cliui.DimStyle.Render(m.CreatedAt.Local().Format("01-02 15:04")), m.Content)
		fmt.Fprintf(w, "  %s\n", cliui.DimStyle.Render(m.ID))
	}
	fmt.Fprintln(w)
}
