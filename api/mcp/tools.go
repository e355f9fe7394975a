package mcp

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/mnemo/pkg/embeddings"
	"github.com/papercomputeco/mnemo/pkg/memory"
	"github.com/papercomputeco/mnemo/pkg/retrieval"
)

var (
	recallToolName    = "memory_recall"
	recallDescription = "Recall memories relevant to a question. Combines semantic similarity, entity graph proximity and recency, and returns the best memories that fit in the token budget."

	captureToolName    = "memory_capture"
	captureDescription = "Store a new memory for an owner. Entities, sentiment and the embedding are derived from the content."

	connectionsToolName    = "memory_connections"
	connectionsDescription = "List memories that share entities with a given memory, most shared first."

	recentToolName    = "memory_recent"
	recentDescription = "List an owner's memories from the current session, newest first. Useful to prime a conversation with what just happened."

	insightsToolName    = "memory_insights"
	insightsDescription = "Summarize an owner's recent memories: trending entities, content types and sentiment."
)

const (
	defaultConnectionLimit = 10
	defaultRecentLimit     = 10
)

// RecallInput represents the input arguments for the memory_recall tool.
type RecallInput struct {
	Query        string `json:"query" jsonschema:"the natural-language question to recall memories for"`
	OwnerID      string `json:"owner_id" jsonschema:"the owner whose memories are searched"`
	BudgetTokens int    `json:"budget_tokens,omitempty" jsonschema:"maximum tokens of memory content to return (default: 2000)"`
}

// RecallOutput is the structured output of memory_recall.
type RecallOutput struct {
	Query   string         `json:"query"`
	Results []RecallResult `json:"results"`
	Count   int            `json:"count"`
	Tokens  int            `json:"token_count"`

	// Degraded lists the stages that were skipped or cut short.
	Degraded []retrieval.Degradation `json:"degraded,omitempty"`
}

// RecallResult is a single recalled memory.
type RecallResult struct {
	ID        string             `json:"id"`
	Content   string             `json:"content"`
	CreatedAt string             `json:"created_at"`
	Score     float64            `json:"score"`
	Breakdown retrieval.Breakdown `json:"breakdown"`
}

func (s *Server) handleRecall(ctx context.Context, _ *mcp.CallToolRequest, input RecallInput) (*mcp.CallToolResult, RecallOutput, error) {
	budget := input.BudgetTokens
	if budget <= 0 {
		budget = s.config.DefaultBudget
	}

	s.logger.Debug("MCP recall request", "owner_id", input.OwnerID, "budget", budget)

	rc, err := s.config.Retrieval.Retrieve(ctx, retrieval.Query{
		Text:         input.Query,
		OwnerID:      input.OwnerID,
		BudgetTokens: budget,
	}, retrieval.Options{})
	if err != nil {
		s.logger.Error("MCP recall failed", "owner_id", input.OwnerID, "error", err)
		return errorResult("Recall failed: %v", err), RecallOutput{}, nil
	}

	out := RecallOutput{
		Query:    input.Query,
		Results:  make([]RecallResult, 0, len(rc.Items)),
		Tokens:   rc.TokenCount,
		Degraded: rc.Degradations,
	}
	for _, it := range rc.Items {
		out.Results = append(out.Results, RecallResult{
			ID:        it.Memory.ID,
			Content:   it.Memory.Content,
			CreatedAt: it.Memory.CreatedAt.Format(time.RFC3339),
			Score:     it.Score,
			Breakdown: it.Breakdown,
		})
	}
	out.Count = len(out.Results)

	res, err := jsonResult(out)
	if err != nil {
		return errorResult("Failed to serialize results: %v", err), RecallOutput{}, nil
	}
	return res, out, nil
}

// CaptureInput represents the input arguments for the memory_capture tool.
type CaptureInput struct {
	OwnerID     string   `json:"owner_id" jsonschema:"the owner the memory belongs to"`
	Content     string   `json:"content" jsonschema:"the text to remember"`
	ContentType string   `json:"content_type,omitempty" jsonschema:"text, image, audio or mixed (default: text)"`
	MediaRef    string   `json:"media_ref,omitempty" jsonschema:"reference to an attached media file"`
	Tags        []string `json:"tags,omitempty" jsonschema:"free-form labels"`
}

// CaptureOutput is the structured output of memory_capture.
type CaptureOutput struct {
	ID              string `json:"id"`
	GraphIncomplete bool   `json:"graph_incomplete"`
}

func (s *Server) handleCapture(ctx context.Context, _ *mcp.CallToolRequest, input CaptureInput) (*mcp.CallToolResult, CaptureOutput, error) {
	id, err := s.config.Ingest.Capture(ctx, embeddings.Input{
		OwnerID:     input.OwnerID,
		Content:     input.Content,
		ContentType: memory.ContentType(input.ContentType),
		MediaRef:    input.MediaRef,
		Tags:        input.Tags,
	})
	if err != nil {
		s.logger.Error("MCP capture failed", "owner_id", input.OwnerID, "error", err)
		return errorResult("Capture failed: %v", err), CaptureOutput{}, nil
	}

	out := CaptureOutput{ID: id, GraphIncomplete: s.config.Ingest.GraphIncomplete(id)}
	res, err := jsonResult(out)
	if err != nil {
		return errorResult("Failed to serialize results: %v", err), CaptureOutput{}, nil
	}
	return res, out, nil
}

// ConnectionsInput represents the input arguments for memory_connections.
type ConnectionsInput struct {
	OwnerID  string `json:"owner_id" jsonschema:"the owner of the memory"`
	MemoryID string `json:"memory_id" jsonschema:"the memory to find connections for"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum connections to return (default: 10)"`
}

// ConnectionsOutput is the JSON text returned by memory_connections.
type ConnectionsOutput struct {
	Connections []retrieval.Connection `json:"connections"`
}

// Connections and insights carry timestamps, so they are returned as JSON
// text without an output schema.
func (s *Server) handleConnections(ctx context.Context, _ *mcp.CallToolRequest, input ConnectionsInput) (*mcp.CallToolResult, any, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultConnectionLimit
	}

	conns, err := s.config.Retrieval.Connections(ctx, input.OwnerID, input.MemoryID, limit)
	if err != nil {
		return errorResult("Connections failed: %v", err), nil, nil
	}
	if conns == nil {
		conns = []retrieval.Connection{}
	}

	res, err := jsonResult(ConnectionsOutput{Connections: conns})
	if err != nil {
		return errorResult("Failed to serialize results: %v", err), nil, nil
	}
	return res, nil, nil
}

// RecentInput represents the input arguments for memory_recent.
type RecentInput struct {
	OwnerID string `json:"owner_id" jsonschema:"the owner whose session memories are listed"`
	Limit   int    `json:"limit,omitempty" jsonschema:"maximum memories to return (default: 10)"`
}

// RecentOutput is the JSON text returned by memory_recent.
type RecentOutput struct {
	Memories []*memory.Memory `json:"memories"`
}

func (s *Server) handleRecent(ctx context.Context, _ *mcp.CallToolRequest, input RecentInput) (*mcp.CallToolResult, any, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	mems, err := s.config.Retrieval.Recent(ctx, input.OwnerID, limit)
	if err != nil {
		return errorResult("Recent failed: %v", err), nil, nil
	}
	if mems == nil {
		mems = []*memory.Memory{}
	}

	res, err := jsonResult(RecentOutput{Memories: mems})
	if err != nil {
		return errorResult("Failed to serialize results: %v", err), nil, nil
	}
	return res, nil, nil
}

// InsightsInput represents the input arguments for memory_insights.
type InsightsInput struct {
	OwnerID string `json:"owner_id" jsonschema:"the owner to summarize"`
}

func (s *Server) handleInsights(ctx context.Context, _ *mcp.CallToolRequest, input InsightsInput) (*mcp.CallToolResult, any, error) {
	ins, err := s.config.Retrieval.Insights(ctx, input.OwnerID)
	if err != nil {
		return errorResult("Insights failed: %v", err), nil, nil
	}

	res, err := jsonResult(ins)
	if err != nil {
		return errorResult("Failed to serialize results: %v", err), nil, nil
	}
	return res, nil, nil
}
