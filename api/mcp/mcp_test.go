package mcp_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/api/mcp"
	"github.com/papercomputeco/mnemo/pkg/embeddings/heuristic"
	graphinmemory "github.com/papercomputeco/mnemo/pkg/graph/inmemory"
	"github.com/papercomputeco/mnemo/pkg/ingest"
	mnemologger "github.com/papercomputeco/mnemo/pkg/logger"
	"github.com/papercomputeco/mnemo/pkg/retrieval"
	vectorinmemory "github.com/papercomputeco/mnemo/pkg/vector/inmemory"
)

var _ = Describe("MCP Server", func() {
	var (
		coord  *ingest.Coordinator
		engine *retrieval.Engine
	)

	BeforeEach(func() {
		vectors := vectorinmemory.NewDriver(vectorinmemory.Config{}, nil)
		g := graphinmemory.NewDriver()
		client := heuristic.NewClient(nil)

		var err error
		coord, err = ingest.NewCoordinator(ingest.Config{SweepInterval: -1}, vectors, g, client, nil, nil)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(coord.Close)
		engine = retrieval.NewEngine(retrieval.Config{}, vectors, g, client, nil)
	})

	Describe("NewServer", func() {
		It("returns an error when the coordinator is nil", func() {
			_, err := mcp.NewServer(mcp.Config{
				Retrieval: engine,
				Logger:    mnemologger.Nop(),
			})
			Expect(err).To(MatchError(ContainSubstring("ingest coordinator is required")))
		})

		It("returns an error when the engine is nil", func() {
			_, err := mcp.NewServer(mcp.Config{
				Ingest: coord,
				Logger: mnemologger.Nop(),
			})
			Expect(err).To(MatchError(ContainSubstring("retrieval engine is required")))
		})

		It("creates an empty server when noop", func() {
			server, err := mcp.NewServer(mcp.Config{Noop: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(server.Handler()).NotTo(BeNil())
		})

		It("returns an HTTP handler", func() {
			server, err := mcp.NewServer(mcp.Config{Ingest: coord, Retrieval: engine})
			Expect(err).NotTo(HaveOccurred())
			Expect(server.Handler()).NotTo(BeNil())
		})
	})
})
