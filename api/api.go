package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/mnemo/api/mcp"
	"github.com/papercomputeco/mnemo/pkg/ingest"
	"github.com/papercomputeco/mnemo/pkg/logger"
	"github.com/papercomputeco/mnemo/pkg/retrieval"
)

const defaultBudget = 2000

// Server is the API server in front of the ingestion coordinator and the
// retrieval engine.
type Server struct {
	config    Config
	ingest    *ingest.Coordinator
	retrieval *retrieval.Engine
	logger    *slog.Logger
	app       *fiber.App
}

// NewServer creates a new API server. The coordinator and engine are
// injected so the serve command can share them with background work.
func NewServer(config Config, coord *ingest.Coordinator, engine *retrieval.Engine, log *slog.Logger) (*Server, error) {
	if coord == nil {
		return nil, errors.New("ingest coordinator is required")
	}
	if engine == nil {
		return nil, errors.New("retrieval engine is required")
	}
	if config.DefaultBudget <= 0 {
		config.DefaultBudget = defaultBudget
	}

	s := &Server{
		config:    config,
		ingest:    coord,
		retrieval: engine,
		logger:    logger.OrNop(log),
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		Immutable:             true,
		ErrorHandler:          s.handleError,
	})
	s.app = app

	app.Get("/ping", s.handlePing)

	v1 := app.Group("/v1")
	v1.Post("/memories", s.handleIngest)
	v1.Get("/memories", s.handleRecent)
	v1.Post("/capture", s.handleCapture)
	v1.Delete("/memories/:id", s.handleDelete)
	v1.Get("/memories/:id/connections", s.handleConnections)
	v1.Post("/retrieve", s.handleRetrieve)
	v1.Post("/proactive", s.handleProactive)
	v1.Get("/insights", s.handleInsights)
	v1.Get("/pending", s.handlePending)
	v1.Post("/sweep", s.handleSweep)

	if config.MCP {
		mcpServer, err := mcp.NewServer(mcp.Config{
			Ingest:        coord,
			Retrieval:     engine,
			DefaultBudget: config.DefaultBudget,
			Logger:        s.logger,
		})
		if err != nil {
			return nil, err
		}
		app.All("/mcp", adaptor.HTTPHandler(mcpServer.Handler()))
	}

	return s, nil
}

// Handler exposes the routes as a net/http handler.
func (s *Server) Handler() http.Handler {
	return adaptor.FiberApp(s.app)
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server", "listen", s.config.ListenAddr, "mcp", s.config.MCP)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
