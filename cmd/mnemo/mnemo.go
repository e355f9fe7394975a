// Package mnemocmder is the mnemo root command.
package mnemocmder

import (
	"github.com/spf13/cobra"

	capturecmder "github.com/papercomputeco/mnemo/cmd/mnemo/capture"
	configcmder "github.com/papercomputeco/mnemo/cmd/mnemo/config"
	forgetcmder "github.com/papercomputeco/mnemo/cmd/mnemo/forget"
	initcmder "github.com/papercomputeco/mnemo/cmd/mnemo/init"
	insightscmder "github.com/papercomputeco/mnemo/cmd/mnemo/insights"
	ownercmder "github.com/papercomputeco/mnemo/cmd/mnemo/owner"
	recallcmder "github.com/papercomputeco/mnemo/cmd/mnemo/recall"
	recentcmder "github.com/papercomputeco/mnemo/cmd/mnemo/recent"
	servecmder "github.com/papercomputeco/mnemo/cmd/mnemo/serve"
	versioncmder "github.com/papercomputeco/mnemo/cmd/version"
)

const mnemoLongDesc string = `mnemo is a hybrid memory engine: it stores memories as vectors and as an
entity graph, and recalls them by blending semantic similarity, graph
proximity and recency under a token budget.

Run the server or work with memories directly:
  mnemo serve                   Run the API server (with MCP tools)
  mnemo capture "text"          Store a memory
  mnemo recall "question"       Recall memories for a question
  mnemo forget <id>             Delete a memory
  mnemo recent                  List this session's memories
  mnemo insights                Summarize recent memories`

const mnemoShortDesc string = "mnemo - hybrid vector and graph memory"

func NewMnemoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "mnemo",
		Short:        mnemoShortDesc,
		Long:         mnemoLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .mnemo directory")

	// Add subcommands
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(capturecmder.NewCaptureCmd())
	cmd.AddCommand(recallcmder.NewRecallCmd())
	cmd.AddCommand(forgetcmder.NewForgetCmd())
	cmd.AddCommand(recentcmder.NewRecentCmd())
	cmd.AddCommand(insightscmder.NewInsightsCmd())
	cmd.AddCommand(ownercmder.NewOwnerCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
