package client_test

import (
	"context"
	"errors"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/api"
	"github.com/papercomputeco/mnemo/api/client"
	"github.com/papercomputeco/mnemo/pkg/embeddings"
	graphinmemory "github.com/papercomputeco/mnemo/pkg/graph/inmemory"
	"github.com/papercomputeco/mnemo/pkg/ingest"
	"github.com/papercomputeco/mnemo/pkg/memory"
	"github.com/papercomputeco/mnemo/pkg/retrieval"
	testutils "github.com/papercomputeco/mnemo/pkg/utils/test"
	vectorinmemory "github.com/papercomputeco/mnemo/pkg/vector/inmemory"
)

var _ = Describe("Client", func() {
	var (
		ctx     context.Context
		c       *client.Client
		vectors *testutils.FailingVectorDriver
	)

	BeforeEach(func() {
		ctx = context.Background()
		vectors = testutils.NewFailingVectorDriver(vectorinmemory.NewDriver(vectorinmemory.Config{Dimensions: 3}, nil))
		g := graphinmemory.NewDriver()
		mc := testutils.NewMockClient()

		coord, err := ingest.NewCoordinator(ingest.Config{Dimensions: 3, SweepInterval: -1}, vectors, g, mc, nil, nil)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(coord.Close)

		server, err := api.NewServer(api.Config{}, coord, retrieval.NewEngine(retrieval.Config{}, vectors, g, mc, nil), nil)
		Expect(err).NotTo(HaveOccurred())

		ts := httptest.NewServer(server.Handler())
		DeferCleanup(ts.Close)

		c, err = client.New(ts.URL, nil)
		Expect(err).NotTo(HaveOccurred())
	})

	It("rejects a target without a scheme", func() {
		_, err := client.New("localhost:8081", nil)
		Expect(err).To(HaveOccurred())
	})

	It("captures, recalls and deletes", func() {
		res, err := c.Capture(ctx, embeddings.Input{OwnerID: "owner-1", Content: "Sarah approved the Q3 budget"})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.ID).NotTo(BeEmpty())

		rc, err := c.Retrieve(ctx, api.RetrieveRequest{Query: "What did Sarah approve?", OwnerID: "owner-1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(rc.Items).To(HaveLen(1))
		Expect(rc.Items[0].Memory.ID).To(Equal(res.ID))

		ins, err := c.Insights(ctx, "owner-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(ins.Total).To(Equal(1))

		recent, err := c.Recent(ctx, "owner-1", 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(recent).To(HaveLen(1))
		Expect(recent[0].ID).To(Equal(res.ID))

		_, err = c.Recent(ctx, "", 0)
		Expect(err).To(MatchError(memory.ErrInvalidInput))

		Expect(c.Delete(ctx, "owner-1", res.ID)).To(Succeed())
		Expect(c.Delete(ctx, "owner-1", res.ID)).To(MatchError(memory.ErrNotFound))
	})

	It("maps error statuses onto the taxonomy", func() {
		_, err := c.Ingest(ctx, memory.Memory{Content: "no owner"})
		Expect(err).To(MatchError(memory.ErrInvalidInput))

		vectors.FailQueries(errors.New("connection refused"))
		_, err = c.Retrieve(ctx, api.RetrieveRequest{Query: "anything", OwnerID: "owner-1"})
		Expect(err).To(MatchError(memory.ErrRetrievalUnavailable))
	})

	It("reports pending graph writes and sweeps", func() {
		pending, err := c.Pending(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(pending.MemoryIDs).To(BeEmpty())
		Expect(pending.Entries).To(BeEmpty())

		stats, err := c.Sweep(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(stats.Reconciled).To(BeZero())
	})
})
