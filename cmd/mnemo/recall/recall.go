// Package recallcmder provides the recall command for hybrid retrieval.
package recallcmder

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"charm.land/lipgloss/v2"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/mnemo/api"
	"github.com/papercomputeco/mnemo/cmd/mnemo/cmdutil"
	"github.com/papercomputeco/mnemo/pkg/cliui"
	"github.com/papercomputeco/mnemo/pkg/config"
	"github.com/papercomputeco/mnemo/pkg/retrieval"
	"github.com/papercomputeco/mnemo/pkg/utils"
)

var (
	rankStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	scoreStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	idStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	previewStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Bold(true)
)

const (
	previewWidth = 96
	barWidth     = 12
)

type recallCommander struct {
	owner    string
	budget   int
	topK     int
	depth    int
	graphOff bool
	jsonOut  bool
	remote   bool
}

const recallLongDesc string = `Recall memories relevant to a question.

Runs a vector similarity search and an entity graph traversal, fuses the two
with a recency decay, and prints the best memories that fit in the token
budget. If the graph store is unavailable the results come from the vector
search alone and are marked as degraded.

Examples:
  mnemo recall "what did Sarah say about the Q3 budget?"
  mnemo recall "lisbon trip" --budget 500 --json
  mnemo recall "mortgage" --remote --api-target http://localhost:8081`

const recallShortDesc string = "Recall memories for a question"

func NewRecallCmd() *cobra.Command {
	cmder := &recallCommander{}

	cmd := &cobra.Command{
		Use:   "recall <question>",
		Short: recallShortDesc,
		Long:  recallLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, strings.Join(args, " "))
		},
	}

	cmdutil.AddOwnerFlag(cmd, &cmder.owner)
	cmdutil.AddRemoteFlags(cmd, &cmder.remote)
	cmdutil.AddStoreFlags(cmd)
	cmd.Flags().IntVarP(&cmder.budget, "budget", "b", 2000, "Token budget for the returned memories")
	cmd.Flags().IntVarP(&cmder.topK, "top", "k", 0, "Vector candidates to consider (default: retrieval.vector_top_k)")
	cmd.Flags().IntVar(&cmder.depth, "depth", 0, "Graph traversal depth (default: retrieval.graph_depth)")
	cmd.Flags().BoolVar(&cmder.graphOff, "no-graph", false, "Skip the graph stage")
	cmd.Flags().BoolVar(&cmder.jsonOut, "json", false, "Print the raw result as JSON")

	return cmd
}

func (c *recallCommander) run(cmd *cobra.Command, question string) error {
	owner, err := cmdutil.ResolveOwner(cmd, c.owner)
	if err != nil {
		return err
	}

	cfg, err := cmdutil.LoadConfig(cmd, config.StoreFlags, config.ClientFlags)
	if err != nil {
		return err
	}

	var rc *retrieval.Context
	if c.remote {
		cl, err := cmdutil.Remote(cfg)
		if err != nil {
			return err
		}
		rc, err = cl.Retrieve(cmd.Context(), api.RetrieveRequest{
			Query:         question,
			OwnerID:       owner,
			BudgetTokens:  c.budget,
			TopK:          c.topK,
			Depth:         c.depth,
			GraphDisabled: c.graphOff,
		})
		if err != nil {
			return err
		}
	} else {
		s, err := cmdutil.OpenStack(cmd.Context(), cmd, cfg, cmdutil.Logger(cmd, true))
		if err != nil {
			return err
		}
		defer s.Close()

		rc, err = s.Retrieval.Retrieve(cmd.Context(), retrieval.Query{
			Text:         question,
			OwnerID:      owner,
			BudgetTokens: c.budget,
		}, retrieval.Options{
			GraphDisabled: c.graphOff,
			TopK:          c.topK,
			Depth:         c.depth,
		})
		if err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if c.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rc)
	}
	printContext(out, question, rc)
	return nil
}

func printContext(w io.Writer, question string, rc *retrieval.Context) {
	fmt.Fprintf(w, "\n%s %s\n", headerStyle.Render("Recall for:"), idStyle.Render(fmt.Sprintf("%q", question)))
	fmt.Fprintf(w, "%s\n\n", cliui.DimStyle.Render(fmt.Sprintf("%d memories, %d/%d tokens", len(rc.Items), rc.TokenCount, rc.Budget)))

	for _, d := range rc.Degradations {
		fmt.Fprintf(w, "  %s %s\n", cliui.WarnStyle.Render("!"), cliui.WarnStyle.Render(describe(d)))
	}
	if len(rc.Degradations) > 0 {
		fmt.Fprintln(w)
	}

	if len(rc.Items) == 0 {
		fmt.Fprintln(w, "No memories found.")
		return
	}

	for i, it := range rc.Items {
		fmt.Fprintf(w, "  %s  %s %s  %s  %s\n",
			rankStyle.Render(fmt.Sprintf("#%d", i+1)),
			cliui.ScoreBar(it.Score, barWidth),
			scoreStyle.Render(fmt.Sprintf("%.3f", it.Score)),
			idStyle.Render(it.Memory.ID),
			cliui.DimStyle.Render(it.Memory.CreatedAt.Local().Format("2006-01-02 15:04")),
		)
		fmt.Fprintf(w, "      %s\n", previewStyle.Render(utils.OneLine(it.Memory.Content, previewWidth)))
		fmt.Fprintf(w, "      %s\n\n", cliui.DimStyle.Render(fmt.Sprintf("vector %.2f  graph %.2f  recency %.2f",
			it.Breakdown.Vector, it.Breakdown.Graph, it.Breakdown.Temporal)))
	}
}

func describe(d retrieval.Degradation) string {
	switch d {
	case retrieval.DegradedEmbedding:
		return "query embedding unavailable, graph results only"
	case retrieval.DegradedExtraction:
		return "entity extraction fell back to heuristics"
	case retrieval.DegradedGraph:
		return "graph store unavailable, vector results only"
	case retrieval.DegradedGraphTime:
		return "graph traversal timed out, results are partial"
	case retrieval.DegradedHydration:
		return "some graph matches could not be loaded"
	default:
		return string(d)
	}
}
