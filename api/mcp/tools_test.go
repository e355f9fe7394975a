package mcp

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/embeddings/heuristic"
	graphinmemory "github.com/papercomputeco/mnemo/pkg/graph/inmemory"
	"github.com/papercomputeco/mnemo/pkg/ingest"
	"github.com/papercomputeco/mnemo/pkg/retrieval"
	vectorinmemory "github.com/papercomputeco/mnemo/pkg/vector/inmemory"
)

var _ = Describe("MCP tools", func() {
	var (
		ctx     context.Context
		session *mcp.ClientSession
	)

	BeforeEach(func() {
		ctx = context.Background()

		vectors := vectorinmemory.NewDriver(vectorinmemory.Config{}, nil)
		g := graphinmemory.NewDriver()
		client := heuristic.NewClient(nil)

		coord, err := ingest.NewCoordinator(ingest.Config{SweepInterval: -1}, vectors, g, client, nil, nil)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(coord.Close)

		s, err := NewServer(Config{
			Ingest:    coord,
			Retrieval: retrieval.NewEngine(retrieval.Config{}, vectors, g, client, nil),
		})
		Expect(err).NotTo(HaveOccurred())

		serverTransport, clientTransport := mcp.NewInMemoryTransports()
		ss, err := s.mcpServer.Connect(ctx, serverTransport, nil)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { _ = ss.Close() })

		c := mcp.NewClient(&mcp.Implementation{Name: "test", Version: "v0.0.0"}, nil)
		session, err = c.Connect(ctx, clientTransport, nil)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { _ = session.Close() })
	})

	call := func(name string, args map[string]any) *mcp.CallToolResult {
		res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
		Expect(err).NotTo(HaveOccurred())
		return res
	}

	text := func(res *mcp.CallToolResult) string {
		Expect(res.Content).NotTo(BeEmpty())
		tc, ok := res.Content[0].(*mcp.TextContent)
		Expect(ok).To(BeTrue())
		return tc.Text
	}

	It("lists every memory tool", func() {
		res, err := session.ListTools(ctx, &mcp.ListToolsParams{})
		Expect(err).NotTo(HaveOccurred())

		names := make([]string, 0, len(res.Tools))
		for _, t := range res.Tools {
			names = append(names, t.Name)
		}
		Expect(names).To(ConsistOf(recallToolName, captureToolName, connectionsToolName, recentToolName, insightsToolName))
	})

	It("captures and recalls a memory", func() {
		res := call(captureToolName, map[string]any{
			"owner_id": "owner-1",
			"content":  "Sarah Connor moved the Q3 budget review to Friday",
		})
		Expect(res.IsError).To(BeFalse())

		var captured CaptureOutput
		Expect(json.Unmarshal([]byte(text(res)), &captured)).To(Succeed())
		Expect(captured.ID).NotTo(BeEmpty())

		res = call(recallToolName, map[string]any{
			"owner_id": "owner-1",
			"query":    "What did Sarah Connor do?",
		})
		Expect(res.IsError).To(BeFalse())

		var recalled RecallOutput
		Expect(json.Unmarshal([]byte(text(res)), &recalled)).To(Succeed())
		Expect(recalled.Count).To(Equal(1))
		Expect(recalled.Results[0].ID).To(Equal(captured.ID))
		Expect(recalled.Degraded).To(ContainElement(retrieval.DegradedEmbedding))

		res = call(connectionsToolName, map[string]any{
			"owner_id":  "owner-1",
			"memory_id": captured.ID,
		})
		Expect(res.IsError).To(BeFalse())
		Expect(text(res)).To(ContainSubstring(`"connections":[]`))

		res = call(insightsToolName, map[string]any{"owner_id": "owner-1"})
		Expect(res.IsError).To(BeFalse())
		Expect(text(res)).To(ContainSubstring(`"total":1`))

		res = call(recentToolName, map[string]any{"owner_id": "owner-1", "limit": 5})
		Expect(res.IsError).To(BeFalse())
		var recent RecentOutput
		Expect(json.Unmarshal([]byte(text(res)), &recent)).To(Succeed())
		Expect(recent.Memories).To(HaveLen(1))
		Expect(recent.Memories[0].ID).To(Equal(captured.ID))
	})

	It("reports invalid input as a tool error", func() {
		res := call(captureToolName, map[string]any{"owner_id": "owner-1", "content": ""})
		Expect(res.IsError).To(BeTrue())
		Expect(text(res)).To(ContainSubstring("Capture failed"))

		res = call(recallToolName, map[string]any{"owner_id": "", "query": "anything"})
		Expect(res.IsError).To(BeTrue())

		res = call(recentToolName, map[string]any{"owner_id": ""})
		Expect(res.IsError).To(BeTrue())
		Expect(text(res)).To(ContainSubstring("Recent failed"))
	})
})
