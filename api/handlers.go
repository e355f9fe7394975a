package api

import (
	"context"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/mnemo/pkg/cache"
	"github.com/papercomputeco/mnemo/pkg/embeddings"
	"github.com/papercomputeco/mnemo/pkg/memory"
	"github.com/papercomputeco/mnemo/pkg/retrieval"
)

const (
	defaultConnectionLimit = 10
	defaultRecentLimit     = 10
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// IDResponse is returned by the ingest and capture endpoints.
type IDResponse struct {
	ID string `json:"id"`

	// GraphIncomplete is set when the memory is stored but its graph write
	// has not landed, whether a retry is queued or the sweep owns it.
	GraphIncomplete bool `json:"graph_incomplete"`
}

// RetrieveRequest is the body of POST /v1/retrieve.
type RetrieveRequest struct {
	Query         string    `json:"query"`
	Embedding     []float32 `json:"embedding,omitempty"`
	OwnerID       string    `json:"owner_id"`
	BudgetTokens  int       `json:"budget_tokens,omitempty"`
	TopK          int       `json:"top_k,omitempty"`
	Depth         int       `json:"depth,omitempty"`
	GraphDisabled bool      `json:"graph_disabled,omitempty"`
	NoCache       bool      `json:"no_cache,omitempty"`
}

// ProactiveRequest is the body of POST /v1/proactive.
type ProactiveRequest struct {
	OwnerID      string `json:"owner_id"`
	Input        string `json:"input"`
	BudgetTokens int    `json:"budget_tokens,omitempty"`
}

// PendingResponse lists memories whose graph write has not landed yet.
type PendingResponse struct {
	MemoryIDs []string `json:"memory_ids"`

	// Entries carry the owner and state of each pending memory, in the
	// same order as MemoryIDs.
	Entries []cache.Pending `json:"entries"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleIngest stores a memory that already carries its embedding and
// entities.
func (s *Server) handleIngest(c *fiber.Ctx) error {
	var m memory.Memory
	if err := c.BodyParser(&m); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid memory body: "+err.Error())
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	id, err := s.ingest.Ingest(ctx, m)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(IDResponse{ID: id, GraphIncomplete: s.ingest.GraphIncomplete(id)})
}

// handleCapture runs raw content through the model client and stores the
// result.
func (s *Server) handleCapture(c *fiber.Ctx) error {
	var in embeddings.Input
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid capture body: "+err.Error())
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	id, err := s.ingest.Capture(ctx, in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(IDResponse{ID: id, GraphIncomplete: s.ingest.GraphIncomplete(id)})
}

func (s *Server) handleDelete(c *fiber.Ctx) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	if err := s.ingest.Delete(ctx, c.Query("owner_id"), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// handleRetrieve answers a hybrid retrieval query.
func (s *Server) handleRetrieve(c *fiber.Ctx) error {
	var req RetrieveRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid retrieve body: "+err.Error())
	}
	if req.BudgetTokens == 0 {
		req.BudgetTokens = s.config.DefaultBudget
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	rc, err := s.retrieval.Retrieve(ctx, retrieval.Query{
		Text:         req.Query,
		Embedding:    req.Embedding,
		OwnerID:      req.OwnerID,
		BudgetTokens: req.BudgetTokens,
	}, retrieval.Options{
		GraphDisabled: req.GraphDisabled,
		TopK:          req.TopK,
		Depth:         req.Depth,
		NoCache:       req.NoCache,
	})
	if err != nil {
		return err
	}
	return c.JSON(rc)
}

func (s *Server) handleProactive(c *fiber.Ctx) error {
	var req ProactiveRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid proactive body: "+err.Error())
	}
	if req.BudgetTokens == 0 {
		req.BudgetTokens = s.config.DefaultBudget
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	rc, err := s.retrieval.Proactive(ctx, req.OwnerID, req.Input, req.BudgetTokens)
	if err != nil {
		return err
	}
	return c.JSON(rc)
}

func (s *Server) handleConnections(c *fiber.Ctx) error {
	limit, err := queryLimit(c, defaultConnectionLimit)
	if err != nil {
		return err
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	conns, err := s.retrieval.Connections(ctx, c.Query("owner_id"), c.Params("id"), limit)
	if err != nil {
		return err
	}
	if conns == nil {
		conns = []retrieval.Connection{}
	}
	return c.JSON(conns)
}

// handleRecent lists the owner's memories from the current session, newest
// first.
func (s *Server) handleRecent(c *fiber.Ctx) error {
	limit, err := queryLimit(c, defaultRecentLimit)
	if err != nil {
		return err
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	mems, err := s.retrieval.Recent(ctx, c.Query("owner_id"), limit)
	if err != nil {
		return err
	}
	if mems == nil {
		mems = []*memory.Memory{}
	}
	return c.JSON(mems)
}

func (s *Server) handleInsights(c *fiber.Ctx) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	ins, err := s.retrieval.Insights(ctx, c.Query("owner_id"))
	if err != nil {
		return err
	}
	return c.JSON(ins)
}

func (s *Server) handlePending(c *fiber.Ctx) error {
	entries := s.ingest.PendingEntries()
	res := PendingResponse{
		MemoryIDs: make([]string, len(entries)),
		Entries:   entries,
	}
	for i, p := range entries {
		res.MemoryIDs[i] = p.MemoryID
	}
	return c.JSON(res)
}

// handleSweep runs one reconciliation pass immediately.
func (s *Server) handleSweep(c *fiber.Ctx) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	stats, err := s.ingest.Sweep(ctx)
	if err != nil {
		return err
	}
	return c.JSON(stats)
}

func queryLimit(c *fiber.Ctx, def int) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "limit must be a positive integer")
	}
	return limit, nil
}

func (s *Server) requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	if s.config.RequestTimeout > 0 {
		return context.WithTimeout(c.UserContext(), s.config.RequestTimeout)
	}
	return context.WithCancel(c.UserContext())
}

// handleError renders every handler error as an ErrorResponse.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	status := StatusFor(err)
	if status >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "method", c.Method(), "path", c.Path(), "status", status, "error", err)
	} else {
		s.logger.Debug("request rejected", "method", c.Method(), "path", c.Path(), "status", status, "error", err)
	}
	return c.Status(status).JSON(ErrorResponse{Error: err.Error()})
}

// StatusFor maps an engine error onto an HTTP status code.
func StatusFor(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, memory.ErrInvalidInput):
		return fiber.StatusBadRequest
	case errors.Is(err, memory.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, memory.ErrAdapterTimeout), errors.Is(err, memory.ErrModelTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	case errors.Is(err, memory.ErrRetrievalUnavailable), errors.Is(err, memory.ErrAdapterUnavailable),
		errors.Is(err, memory.ErrModelUnavailable):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}
