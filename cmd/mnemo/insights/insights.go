// Package insightscmder provides the insights command.
package insightscmder

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/mnemo/cmd/mnemo/cmdutil"
	"github.com/papercomputeco/mnemo/pkg/cliui"
	"github.com/papercomputeco/mnemo/pkg/config"
	"github.com/papercomputeco/mnemo/pkg/retrieval"
)

const insightsLongDesc string = `Summarize an owner's recent memories.

Shows the entities mentioned most over the last week, and the mix of content
types and sentiment.

Examples:
  mnemo insights
  mnemo insights --owner alice --json`

const insightsShortDesc string = "Summarize recent memories"

func NewInsightsCmd() *cobra.Command {
	var (
		owner   string
		remote  bool
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "insights",
		Short: insightsShortDesc,
		Long:  insightsLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInsights(cmd, owner, remote, jsonOut)
		},
	}

	cmdutil.AddOwnerFlag(cmd, &owner)
	cmdutil.AddRemoteFlags(cmd, &remote)
	cmdutil.AddStoreFlags(cmd)
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the raw result as JSON")

	return cmd
}

func runInsights(cmd *cobra.Command, ownerFlag string, remote, jsonOut bool) error {
	owner, err := cmdutil.ResolveOwner(cmd, ownerFlag)
	if err != nil {
		return err
	}

	cfg, err := cmdutil.LoadConfig(cmd, config.StoreFlags, config.ClientFlags)
	if err != nil {
		return err
	}

	var ins *retrieval.Insights
	if remote {
		cl, err := cmdutil.Remote(cfg)
		if err != nil {
			return err
		}
		if ins, err = cl.Insights(cmd.Context(), owner); err != nil {
			return err
		}
	} else {
		s, err := cmdutil.OpenStack(cmd.Context(), cmd, cfg, cmdutil.Logger(cmd, true))
		if err != nil {
			return err
		}
		defer s.Close()

		if ins, err = s.Retrieval.Insights(cmd.Context(), owner); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(ins)
	}
	printInsights(out, owner, ins)
	return nil
}

func printInsights(w io.Writer, owner string, ins *retrieval.Insights) {
	fmt.Fprintf(w, "\n  %s %s\n", cliui.KeyStyle.Render("Owner:"), cliui.ValueStyle.Render(owner))
	fmt.Fprintf(w, "  %s %d since %s\n\n", cliui.KeyStyle.Render("Memories:"), ins.Total, ins.Since.Local().Format("2006-01-02"))

	if ins.Total == 0 {
		fmt.Fprintln(w, "  No recent memories.")
		return
	}

	fmt.Fprintf(w, "  %s\n", cliui.KeyStyle.Render("Trending"))
	for _, ec := range ins.TopEntities {
		fmt.Fprintf(w, "    %-24s %s %s\n", ec.Entity.Name,
			cliui.ValueStyle.Render(fmt.Sprintf("%d", ec.Mentions)),
			cliui.DimStyle.Render(string(ec.Entity.Type)))
	}

	fmt.Fprintf(w, "\n  %s\n", cliui.KeyStyle.Render("Content"))
	for _, ct := range slices.Sorted(maps.Keys(ins.ContentTypes)) {
		fmt.Fprintf(w, "    %-24s %d\n", ct, ins.ContentTypes[ct])
	}

	fmt.Fprintf(w, "\n  %s\n", cliui.KeyStyle.Render("Sentiment"))
	for _, s := range slices.Sorted(maps.Keys(ins.Sentiments)) {
		fmt.Fprintf(w, "    %-24s %d\n", s, ins.Sentiments[s])
	}
	fmt.Fprintln(w)
}
