// Package versioncmder prints build information for the mnemo binary.
package versioncmder

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/mnemo/pkg/cliui"
	"github.com/papercomputeco/mnemo/pkg/utils"
)

// Info is the build stamp injected through -ldflags.
type Info struct {
	Version   string `json:"version"`
	Sha       string `json:"sha"`
	Buildtime string `json:"built_at"`
	Go        string `json:"go"`
	Platform  string `json:"platform"`
}

type versionCommander struct {
	jsonOut bool
}

func NewVersionCmd() *cobra.Command {
	cmder := &versionCommander{}

	cmd := &cobra.Command{
		Use:   "version",
		Short: "displays version",
		Long:  "displays the version, commit and build time of this CLI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&cmder.jsonOut, "json", false, "Print build info as JSON")

	return cmd
}

// Current returns the running binary's build info.
func Current() Info {
	return Info{
		Version:   utils.Version,
		Sha:       utils.Sha,
		Buildtime: utils.Buildtime,
		Go:        runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func (c *versionCommander) run(w io.Writer) error {
	info := Current()
	if c.jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	rows := [][2]string{
		{"Version:", info.Version},
		{"Sha:", info.Sha},
		{"Built at:", info.Buildtime},
		{"Go:", info.Go},
		{"Platform:", info.Platform},
	}
	for _, r := range rows {
		fmt.Fprintf(w, "%-10s %s\n", cliui.KeyStyle.Render(r[0]), cliui.ValueStyle.Render(r[1]))
	}
	return nil
}
