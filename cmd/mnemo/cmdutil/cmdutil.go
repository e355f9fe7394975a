// Package cmdutil holds the plumbing shared by mnemo subcommands: config
// resolution, logger setup, owner lookup and stack or client construction.
package cmdutil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/mnemo/api/client"
	"github.com/papercomputeco/mnemo/pkg/config"
	"github.com/papercomputeco/mnemo/pkg/dotdir"
	"github.com/papercomputeco/mnemo/pkg/logger"
	"github.com/papercomputeco/mnemo/pkg/stack"
)

// ownerEnv names the environment variable consulted when --owner is unset.
const ownerEnv = "MNEMO_OWNER"

// ErrNoOwner is returned when no owner can be resolved.
var ErrNoOwner = errors.New("no owner: pass --owner, set " + ownerEnv + " or run \"mnemo owner set <id>\"")

// ConfigDir returns the --config-dir override, or "".
func ConfigDir(cmd *cobra.Command) string {
	dir, _ := cmd.Flags().GetString("config-dir")
	return dir
}

// Logger builds the CLI logger on stderr. Quiet commands stay silent unless
// --debug is set, so their output is only what they print.
func Logger(cmd *cobra.Command, quiet bool) *slog.Logger {
	debug, _ := cmd.Flags().GetBool("debug")
	if quiet && !debug {
		return logger.Nop()
	}
	return logger.New(
		logger.WithDebug(debug),
		logger.WithPretty(true),
		logger.WithWriter(cmd.ErrOrStderr()),
	)
}

// LoadConfig resolves the effective config: flags from the given sets, then
// MNEMO_* environment, then config.toml, then defaults.
func LoadConfig(cmd *cobra.Command, sets ...config.FlagSet) (*config.Config, error) {
	v, err := config.InitViper(ConfigDir(cmd))
	if err != nil {
		return nil, err
	}
	for _, fs := range sets {
		config.BindRegisteredFlags(v, cmd, fs, slices.Sorted(maps.Keys(fs)))
	}
	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

type storeFlagValues struct {
	vectorProvider, vectorTarget       string
	graphProvider, graphTarget         string
	embeddingProvider, embeddingTarget string
	embeddingModel                     string
	embeddingDims                      uint
}

// AddStoreFlags registers the store and model flags. Their values are read
// back through viper by LoadConfig.
func AddStoreFlags(cmd *cobra.Command) {
	v := &storeFlagValues{}
	config.AddStringFlag(cmd, config.StoreFlags, config.FlagVectorStoreProv, &v.vectorProvider)
	config.AddStringFlag(cmd, config.StoreFlags, config.FlagVectorStoreTgt, &v.vectorTarget)
	config.AddStringFlag(cmd, config.StoreFlags, config.FlagGraphStoreProv, &v.graphProvider)
	config.AddStringFlag(cmd, config.StoreFlags, config.FlagGraphStoreTgt, &v.graphTarget)
	config.AddStringFlag(cmd, config.StoreFlags, config.FlagEmbeddingProv, &v.embeddingProvider)
	config.AddStringFlag(cmd, config.StoreFlags, config.FlagEmbeddingTgt, &v.embeddingTarget)
	config.AddStringFlag(cmd, config.StoreFlags, config.FlagEmbeddingModel, &v.embeddingModel)
	config.AddUintFlag(cmd, config.StoreFlags, config.FlagEmbeddingDims, &v.embeddingDims)
}

// AddRemoteFlags registers --remote and --api-target.
func AddRemoteFlags(cmd *cobra.Command, remote *bool) {
	var target string
	cmd.Flags().BoolVar(remote, "remote", false, "Talk to a running mnemo server instead of opening the stores")
	config.AddStringFlag(cmd, config.ClientFlags, config.FlagAPITarget, &target)
}

// AddOwnerFlag registers --owner/-o.
func AddOwnerFlag(cmd *cobra.Command, owner *string) {
	cmd.Flags().StringVarP(owner, "owner", "o", "", "Owner id (default: $"+ownerEnv+" or the saved profile)")
}

// ResolveOwner picks the owner from the flag, the environment or the saved
// profile, in that order.
func ResolveOwner(cmd *cobra.Command, flagValue string) (string, error) {
	if owner := strings.TrimSpace(flagValue); owner != "" {
		return owner, nil
	}
	if owner := strings.TrimSpace(os.Getenv(ownerEnv)); owner != "" {
		return owner, nil
	}

	p, err := dotdir.NewManager().LoadProfile(ConfigDir(cmd))
	if err != nil {
		return "", err
	}
	if p != nil && p.OwnerID != "" {
		return p.OwnerID, nil
	}
	return "", ErrNoOwner
}

// OpenStack builds the local stack for cfg.
func OpenStack(ctx context.Context, cmd *cobra.Command, cfg *config.Config, log *slog.Logger) (*stack.Stack, error) {
	return stack.Open(ctx, cfg, stack.Options{ConfigDir: ConfigDir(cmd), Logger: log})
}

// Remote returns an API client for cfg.Client.APITarget.
func Remote(cfg *config.Config) (*client.Client, error) {
	return client.New(cfg.Client.APITarget, nil)
}
