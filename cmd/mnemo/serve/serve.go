// Package servecmder provides the serve command, which runs the mnemo API
// server and its MCP tools over the configured stores.
package servecmder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/mnemo/api"
	"github.com/papercomputeco/mnemo/cmd/mnemo/cmdutil"
	"github.com/papercomputeco/mnemo/pkg/cliui"
	"github.com/papercomputeco/mnemo/pkg/config"
	"github.com/papercomputeco/mnemo/pkg/dotdir"
	"github.com/papercomputeco/mnemo/pkg/logger"
	"github.com/papercomputeco/mnemo/pkg/stack"
)

type serveCommander struct {
	listen         string
	eventsProvider string
	eventsTopic    string
	mcp            bool
	logFile        string
}

const serveLongDesc string = `Run the mnemo API server.

Opens the configured vector store, graph store and model client, then serves
the HTTP API under /v1 and, unless --mcp=false, the MCP tools under /mcp.
Failed graph writes are retried in the background and reconciled by the
periodic sweep while the server runs.

Examples:
  mnemo serve
  mnemo serve --listen :9000 --vector-store-provider qdrant --vector-store-target localhost:6334
  mnemo serve --events-provider kafka
  mnemo serve --log-file serve.log`

const serveShortDesc string = "Run the mnemo API server"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := cmdutil.LoadConfig(cmd, config.StoreFlags, config.ServeFlags)
			if err != nil {
				return err
			}
			return cmder.run(cmd, cfg)
		},
	}

	config.AddStringFlag(cmd, config.ServeFlags, config.FlagAPIListen, &cmder.listen)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagEventsProvider, &cmder.eventsProvider)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagEventsTopic, &cmder.eventsTopic)
	cmdutil.AddStoreFlags(cmd)
	cmd.Flags().BoolVar(&cmder.mcp, "mcp", true, "Serve MCP tools at /mcp")
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also write JSON logs to this file (relative paths land in the .mnemo dir)")

	return cmd
}

func (c *serveCommander) run(cmd *cobra.Command, cfg *config.Config) error {
	log, closeLog, err := c.logger(cmd)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var s *stack.Stack
	err = cliui.Step(cmd.ErrOrStderr(), "Opening stores", func() error {
		var err error
		s, err = cmdutil.OpenStack(ctx, cmd, cfg, log)
		return err
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			log.Error("closing stores", "error", err)
		}
	}()

	server, err := api.NewServer(api.Config{
		ListenAddr: cfg.API.Listen,
		MCP:        c.mcp,
	}, s.Ingest, s.Retrieval, log)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		log.Info("received signal, shutting down")
	}

	if err := server.Shutdown(); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}

	// Pending flags live in the cache only; sweep once more before exit.
	stats, err := s.Ingest.Sweep(context.WithoutCancel(ctx))
	if err != nil {
		log.Warn("final sweep failed", "error", err)
	} else if stats.Failed > 0 {
		log.Warn("memories left without graph data", "count", stats.Failed)
	}
	return nil
}

// logger returns the terminal logger, fanned out to a JSON file logger when
// --log-file is set.
func (c *serveCommander) logger(cmd *cobra.Command) (*slog.Logger, func(), error) {
	term := cmdutil.Logger(cmd, false)
	if c.logFile == "" {
		return term, func() {}, nil
	}

	path := c.logFile
	if !filepath.IsAbs(path) {
		dir, err := dotdir.NewManager().Ensure(cmdutil.ConfigDir(cmd))
		if err != nil {
			return nil, nil, err
		}
		path = filepath.Join(dir, path)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	debug, _ := cmd.Flags().GetBool("debug")
	file := logger.New(
		logger.WithJSON(true),
		logger.WithDebug(debug),
		logger.WithSource(debug),
		logger.WithWriter(f),
	)
	return logger.Multi(term, file), func() { _ = f.Close() }, nil
}
