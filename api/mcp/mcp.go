// Package mcp exposes memory capture and recall as MCP (Model Context
// Protocol) tools.
package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/mnemo/pkg/ingest"
	"github.com/papercomputeco/mnemo/pkg/logger"
	"github.com/papercomputeco/mnemo/pkg/retrieval"
	"github.com/papercomputeco/mnemo/pkg/utils"
)

const defaultBudget = 2000

type Config struct {
	// Ingest backs the memory_capture tool.
	Ingest *ingest.Coordinator

	// Retrieval backs the recall, connections and insights tools.
	Retrieval *retrieval.Engine

	// DefaultBudget is the token budget when a recall leaves it unset.
	DefaultBudget int

	// Noop for empty MCP server
	Noop bool

	Logger *slog.Logger
}

type Server struct {
	config    Config
	logger    *slog.Logger
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the memory tools.
func NewServer(c Config) (*Server, error) {
	if c.DefaultBudget <= 0 {
		c.DefaultBudget = defaultBudget
	}
	s := &Server{
		config: c,
		logger: logger.OrNop(c.Logger),
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "mnemo",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)
	s.mcpServer = mcpServer

	if !c.Noop {
		if c.Ingest == nil {
			return nil, errors.New("ingest coordinator is required")
		}
		if c.Retrieval == nil {
			return nil, errors.New("retrieval engine is required")
		}

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        recallToolName,
			Description: recallDescription,
		}, s.handleRecall)
		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        captureToolName,
			Description: captureDescription,
		}, s.handleCapture)
		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        connectionsToolName,
			Description: connectionsDescription,
		}, s.handleConnections)
		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        recentToolName,
			Description: recentDescription,
		}, s.handleRecent)
		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        insightsToolName,
			Description: insightsDescription,
		}, s.handleInsights)
	}

	// Create a streamable HTTP net/http handler for stateless operations
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func errorResult(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf(format, args...)},
		},
	}
}

// jsonResult mirrors the structured output as text for clients that only
// read content blocks.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(b)},
		},
	}, nil
}
