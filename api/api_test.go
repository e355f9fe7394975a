package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/cache"
	graphinmemory "github.com/papercomputeco/mnemo/pkg/graph/inmemory"
	"github.com/papercomputeco/mnemo/pkg/ingest"
	"github.com/papercomputeco/mnemo/pkg/logger"
	"github.com/papercomputeco/mnemo/pkg/memory"
	"github.com/papercomputeco/mnemo/pkg/retrieval"
	testutils "github.com/papercomputeco/mnemo/pkg/utils/test"
	vectorinmemory "github.com/papercomputeco/mnemo/pkg/vector/inmemory"
)

var _ = Describe("Server", func() {
	var (
		server  *Server
		coord   *ingest.Coordinator
		vectors *testutils.FailingVectorDriver
		g       *testutils.FailingGraphDriver
	)

	newServer := func(cfg Config) *Server {
		s, err := NewServer(cfg, coord, retrieval.NewEngine(retrieval.Config{}, vectors, g, testutils.NewMockClient(), nil), logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		return s
	}

	do := func(method, path string, body any) (int, []byte) {
		var r io.Reader
		if body != nil {
			b, err := json.Marshal(body)
			Expect(err).NotTo(HaveOccurred())
			r = bytes.NewReader(b)
		}
		req := httptest.NewRequest(method, path, r)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := server.app.Test(req, -1)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		out, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return resp.StatusCode, out
	}

	ingestMemory := func(content string, entities ...memory.EntityRef) string {
		status, body := do(http.MethodPost, "/v1/memories", memory.Memory{
			OwnerID:   "owner-1",
			Content:   content,
			Embedding: []float32{0.1, 0.2, 0.3},
			Entities:  entities,
		})
		Expect(status).To(Equal(fiber.StatusCreated), string(body))
		var res IDResponse
		Expect(json.Unmarshal(body, &res)).To(Succeed())
		return res.ID
	}

	BeforeEach(func() {
		vectors = testutils.NewFailingVectorDriver(vectorinmemory.NewDriver(vectorinmemory.Config{Dimensions: 3}, nil))
		g = testutils.NewFailingGraphDriver(graphinmemory.NewDriver())

		var err error
		coord, err = ingest.NewCoordinator(ingest.Config{
			Dimensions:         3,
			SweepInterval:      -1,
			GraphRetryAttempts: 1,
			RetryInitial:       time.Millisecond,
		}, vectors, g, testutils.NewMockClient(), nil, nil)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(coord.Close)

		server = newServer(Config{})
	})

	It("requires the coordinator and the engine", func() {
		_, err := NewServer(Config{}, nil, nil, nil)
		Expect(err).To(MatchError(ContainSubstring("ingest coordinator is required")))
		_, err = NewServer(Config{}, coord, nil, nil)
		Expect(err).To(MatchError(ContainSubstring("retrieval engine is required")))
	})

	It("answers ping", func() {
		status, body := do(http.MethodGet, "/ping", nil)
		Expect(status).To(Equal(fiber.StatusOK))
		Expect(string(body)).To(Equal(`"pong"`))
	})

	Describe("POST /v1/memories", func() {
		It("stores a memory and returns its id", func() {
			id := ingestMemory("Sarah approved the Q3 budget", memory.EntityRef{Name: "Sarah", Type: memory.EntityPerson})
			Expect(id).NotTo(BeEmpty())
			Expect(vectors.Upserts()).To(Equal(1))
		})

		It("rejects an invalid memory with 400", func() {
			status, body := do(http.MethodPost, "/v1/memories", memory.Memory{Content: "no owner"})
			Expect(status).To(Equal(fiber.StatusBadRequest))
			Expect(string(body)).To(ContainSubstring("invalid input"))
		})

		It("rejects a malformed body with 400", func() {
			req := httptest.NewRequest(http.MethodPost, "/v1/memories", bytes.NewBufferString("{"))
			req.Header.Set("Content-Type", "application/json")
			resp, err := server.app.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})

		It("maps a vector store failure to 503", func() {
			vectors.FailUpserts(1, errors.New("connection refused"))
			status, _ := do(http.MethodPost, "/v1/memories", memory.Memory{
				OwnerID:   "owner-1",
				Content:   "lost",
				Embedding: []float32{0.1, 0.2, 0.3},
			})
			Expect(status).To(Equal(fiber.StatusServiceUnavailable))
		})
	})

	Describe("POST /v1/capture", func() {
		It("processes and stores raw content", func() {
			status, body := do(http.MethodPost, "/v1/capture", map[string]any{
				"owner_id": "owner-1",
				"content":  "Lunch with Sarah on Friday",
			})
			Expect(status).To(Equal(fiber.StatusCreated), string(body))

			var res IDResponse
			Expect(json.Unmarshal(body, &res)).To(Succeed())
			Expect(res.ID).NotTo(BeEmpty())
			Expect(res.GraphIncomplete).To(BeFalse())
		})
	})

	Describe("POST /v1/retrieve", func() {
		It("returns the assembled context", func() {
			id := ingestMemory("Sarah approved the Q3 budget", memory.EntityRef{Name: "Sarah", Type: memory.EntityPerson})

			status, body := do(http.MethodPost, "/v1/retrieve", RetrieveRequest{
				Query:   "What did Sarah say?",
				OwnerID: "owner-1",
			})
			Expect(status).To(Equal(fiber.StatusOK), string(body))

			var rc retrieval.Context
			Expect(json.Unmarshal(body, &rc)).To(Succeed())
			Expect(rc.Items).To(HaveLen(1))
			Expect(rc.Items[0].Memory.ID).To(Equal(id))
			Expect(rc.Budget).To(Equal(defaultBudget))
		})

		It("rejects a query without an owner", func() {
			status, _ := do(http.MethodPost, "/v1/retrieve", RetrieveRequest{Query: "anything"})
			Expect(status).To(Equal(fiber.StatusBadRequest))
		})

		It("maps an unreachable vector store to 503", func() {
			vectors.FailQueries(errors.New("connection refused"))
			status, body := do(http.MethodPost, "/v1/retrieve", RetrieveRequest{Query: "anything", OwnerID: "owner-1"})
			Expect(status).To(Equal(fiber.StatusServiceUnavailable))
			Expect(string(body)).To(ContainSubstring("retrieval unavailable"))
		})

		It("maps a vector store timeout to 504", func() {
			vectors.FailQueries(context.DeadlineExceeded)
			status, _ := do(http.MethodPost, "/v1/retrieve", RetrieveRequest{Query: "anything", OwnerID: "owner-1"})
			Expect(status).To(Equal(fiber.StatusGatewayTimeout))
		})
	})

	Describe("POST /v1/proactive", func() {
		It("returns memories about trending entities", func() {
			ingestMemory("Sarah approved the Q3 budget", memory.EntityRef{Name: "Sarah", Type: memory.EntityPerson})

			status, body := do(http.MethodPost, "/v1/proactive", ProactiveRequest{OwnerID: "owner-1", BudgetTokens: 100})
			Expect(status).To(Equal(fiber.StatusOK), string(body))

			var rc retrieval.Context
			Expect(json.Unmarshal(body, &rc)).To(Succeed())
			Expect(rc.Budget).To(Equal(100))
		})
	})

	Describe("DELETE /v1/memories/:id", func() {
		It("removes the memory and then reports 404", func() {
			id := ingestMemory("short lived")

			status, _ := do(http.MethodDelete, "/v1/memories/"+id+"?owner_id=owner-1", nil)
			Expect(status).To(Equal(fiber.StatusNoContent))

			status, _ = do(http.MethodDelete, "/v1/memories/"+id+"?owner_id=owner-1", nil)
			Expect(status).To(Equal(fiber.StatusNotFound))
		})

		It("requires an owner", func() {
			status, _ := do(http.MethodDelete, "/v1/memories/some-id", nil)
			Expect(status).To(Equal(fiber.StatusBadRequest))
		})
	})

	Describe("GET /v1/memories/:id/connections", func() {
		It("lists memories sharing entities", func() {
			sarah := memory.EntityRef{Name: "Sarah", Type: memory.EntityPerson}
			a := ingestMemory("Sarah likes tea", sarah)
			b := ingestMemory("Sarah moved to Berlin", sarah)

			status, body := do(http.MethodGet, "/v1/memories/"+a+"/connections?owner_id=owner-1", nil)
			Expect(status).To(Equal(fiber.StatusOK), string(body))

			var conns []retrieval.Connection
			Expect(json.Unmarshal(body, &conns)).To(Succeed())
			Expect(conns).To(HaveLen(1))
			Expect(conns[0].Memory.ID).To(Equal(b))
		})

		It("rejects a bad limit", func() {
			status, _ := do(http.MethodGet, "/v1/memories/x/connections?owner_id=owner-1&limit=zero", nil)
			Expect(status).To(Equal(fiber.StatusBadRequest))
		})
	})

	Describe("GET /v1/memories", func() {
		recent := func(query string) (int, []*memory.Memory) {
			status, body := do(http.MethodGet, "/v1/memories?"+query, nil)
			var mems []*memory.Memory
			if status == fiber.StatusOK {
				Expect(json.Unmarshal(body, &mems)).To(Succeed())
			}
			return status, mems
		}

		It("lists the owner's session memories", func() {
			a := ingestMemory("Sarah likes tea")
			b := ingestMemory("Bob likes coffee")

			status, mems := recent("owner_id=owner-1")
			Expect(status).To(Equal(fiber.StatusOK))
			ids := []string{}
			for _, m := range mems {
				ids = append(ids, m.ID)
			}
			Expect(ids).To(ConsistOf(a, b))

			status, mems = recent("owner_id=owner-1&limit=1")
			Expect(status).To(Equal(fiber.StatusOK))
			Expect(mems).To(HaveLen(1))

			status, mems = recent("owner_id=owner-2")
			Expect(status).To(Equal(fiber.StatusOK))
			Expect(mems).To(BeEmpty())
		})

		It("rejects a missing owner or a bad limit", func() {
			status, _ := recent("")
			Expect(status).To(Equal(fiber.StatusBadRequest))
			status, _ = recent("owner_id=owner-1&limit=-2")
			Expect(status).To(Equal(fiber.StatusBadRequest))
		})
	})

	Describe("GET /v1/insights", func() {
		It("summarizes recent memories", func() {
			ingestMemory("Sarah likes tea", memory.EntityRef{Name: "Sarah", Type: memory.EntityPerson})

			status, body := do(http.MethodGet, "/v1/insights?owner_id=owner-1", nil)
			Expect(status).To(Equal(fiber.StatusOK), string(body))

			var ins retrieval.Insights
			Expect(json.Unmarshal(body, &ins)).To(Succeed())
			Expect(ins.Total).To(Equal(1))
		})

		It("requires an owner", func() {
			status, _ := do(http.MethodGet, "/v1/insights", nil)
			Expect(status).To(Equal(fiber.StatusBadRequest))
		})
	})

	Describe("pending graph writes", func() {
		pending := func() PendingResponse {
			_, body := do(http.MethodGet, "/v1/pending", nil)
			var res PendingResponse
			Expect(json.Unmarshal(body, &res)).To(Succeed())
			return res
		}

		It("reports a failed graph write on the ingest response", func() {
			g.FailWrites(-1, errors.New("graph down"))
			status, body := do(http.MethodPost, "/v1/memories", memory.Memory{
				OwnerID:   "owner-1",
				Content:   "Sarah likes tea",
				Embedding: []float32{0.1, 0.2, 0.3},
			})
			Expect(status).To(Equal(fiber.StatusCreated), string(body))

			var res IDResponse
			Expect(json.Unmarshal(body, &res)).To(Succeed())
			Expect(res.GraphIncomplete).To(BeTrue())

			p := pending()
			Expect(p.MemoryIDs).To(ConsistOf(res.ID))
			Expect(p.Entries).To(HaveLen(1))
			Expect(p.Entries[0].OwnerID).To(Equal("owner-1"))
			Expect(p.Entries[0].State).To(BeElementOf(cache.PendingRetrying, cache.PendingFlagged))
		})

		It("lists flagged memories until a sweep reconciles them", func() {
			g.FailWrites(-1, errors.New("graph down"))
			id := ingestMemory("Sarah likes tea", memory.EntityRef{Name: "Sarah", Type: memory.EntityPerson})

			Eventually(func() []cache.Pending { return pending().Entries }).Should(ConsistOf(
				And(HaveField("MemoryID", id), HaveField("State", cache.PendingFlagged)),
			))

			g.FailWrites(0, nil)
			status, body := do(http.MethodPost, "/v1/sweep", nil)
			Expect(status).To(Equal(fiber.StatusOK), string(body))

			var stats ingest.SweepStats
			Expect(json.Unmarshal(body, &stats)).To(Succeed())
			Expect(stats.Reconciled).To(Equal(1))

			_, body = do(http.MethodGet, "/v1/pending", nil)
			Expect(string(body)).To(MatchJSON(`{"memory_ids":[],"entries":[]}`))
		})
	})

	Describe("MCP mount", func() {
		It("serves /mcp only when enabled", func() {
			status, _ := do(http.MethodPost, "/mcp", map[string]any{})
			Expect(status).To(Equal(fiber.StatusNotFound))

			server = newServer(Config{MCP: true})
			status, _ = do(http.MethodPost, "/mcp", map[string]any{})
			Expect(status).NotTo(Equal(fiber.StatusNotFound))
		})
	})
})

var _ = DescribeTable("StatusFor",
	func(err error, want int) {
		Expect(StatusFor(err)).To(Equal(want))
	},
	Entry("invalid input", fmt.Errorf("x: %w", memory.ErrInvalidInput), fiber.StatusBadRequest),
	Entry("not found", memory.ErrNotFound, fiber.StatusNotFound),
	Entry("store timeout", memory.AdapterError("q", context.DeadlineExceeded), fiber.StatusGatewayTimeout),
	Entry("model timeout", memory.ErrModelTimeout, fiber.StatusGatewayTimeout),
	Entry("retrieval unavailable", memory.ErrRetrievalUnavailable, fiber.StatusServiceUnavailable),
	Entry("model unavailable", memory.ErrModelUnavailable, fiber.StatusServiceUnavailable),
	Entry("fiber error", fiber.NewError(fiber.StatusTeapot, "tea"), fiber.StatusTeapot),
	Entry("anything else", errors.New("boom"), fiber.StatusInternalServerError),
)
