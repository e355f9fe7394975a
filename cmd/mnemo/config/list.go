package configcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/mnemo/pkg/config"
)

const listLongDesc string = `List all configuration values.

Displays all configuration keys and their values from the config.toml file
stored in the .mnemo/ directory. With --effective, MNEMO_* environment
variables are applied on top, showing what commands will actually use.

Examples:
  mnemo config list
  MNEMO_VECTOR_STORE_PROVIDER=qdrant mnemo config list --effective`

const listShortDesc string = "List all configuration values"

func newListCmd() *cobra.Command {
	var effective bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: listShortDesc,
		Long:  listLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd, effective)
		},
	}

	cmd.Flags().BoolVar(&effective, "effective", false, "Apply environment overrides")

	return cmd
}

func runList(cmd *cobra.Command, effective bool) error {
	cfger, err := config.NewConfiger(configDir(cmd))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	out := cmd.OutOrStdout()
	if target := cfger.GetTarget(); target != "" {
		fmt.Fprintf(out, "Using config file: %s\n\n", target)
	} else {
		fmt.Fprint(out, "No config file found. Using default config.\n\n")
	}

	var cfg *config.Config
	if effective {
		v, err := config.InitViper(configDir(cmd))
		if err != nil {
			return err
		}
		if cfg, err = config.FromViper(v); err != nil {
			return err
		}
	} else if cfg, err = cfger.LoadConfig(); err != nil {
		return err
	}

	keys := config.ValidConfigKeys()

	// Find the longest key name for alignment.
	maxLen := 0
	for _, k := range keys {
		maxLen = max(maxLen, len(k))
	}

	for _, key := range keys {
		value, err := config.ValueOf(cfg, key)
		if err != nil {
			return err
		}

		if value == "" {
			fmt.Fprintf(out, "%-*s = <not set>\n", maxLen, key)
		} else {
			fmt.Fprintf(out, "%-*s = %q\n", maxLen, key, value)
		}
	}

	return nil
}
