package retrieval_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/cache"
	"github.com/papercomputeco/mnemo/pkg/graph"
	graphinmemory "github.com/papercomputeco/mnemo/pkg/graph/inmemory"
	mnemologger "github.com/papercomputeco/mnemo/pkg/logger"
	"github.com/papercomputeco/mnemo/pkg/memory"
	"github.com/papercomputeco/mnemo/pkg/retrieval"
	testutils "github.com/papercomputeco/mnemo/pkg/utils/test"
	"github.com/papercomputeco/mnemo/pkg/vector"
	vectorinmemory "github.com/papercomputeco/mnemo/pkg/vector/inmemory"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func ids(rc *retrieval.Context) []string {
	out := make([]string, 0, len(rc.Items))
	for _, it := range rc.Items {
		out = append(out, it.Memory.ID)
	}
	return out
}

var _ = Describe("Engine", func() {
	var (
		ctx     context.Context
		vectors *testutils.FailingVectorDriver
		graphs  *testutils.FailingGraphDriver
		client  *testutils.MockClient
		c       *cache.Cache
		engine  *retrieval.Engine
		cfg     retrieval.Config
	)

	store := func(m *memory.Memory) {
		if m.Embedding != nil {
			Expect(vectors.Upsert(ctx, []vector.Document{{
				ID: m.ID, OwnerID: m.OwnerID, Embedding: m.Embedding, Memory: m,
			}})).To(Succeed())
		}
		Expect(graphs.Write(ctx, graph.BuildBatch(m))).To(Succeed())
	}

	mem := func(id, content string, age time.Duration, refs ...memory.EntityRef) *memory.Memory {
		return &memory.Memory{
			ID: id, OwnerID: "u1", Content: content, ContentType: memory.ContentText,
			CreatedAt: now.Add(-age), Embedding: []float32{0.1, 0.2, 0.3}, Entities: refs,
		}
	}

	person := func(name string) memory.EntityRef { return memory.EntityRef{Name: name, Type: memory.EntityPerson} }
	other := func(name string) memory.EntityRef { return memory.EntityRef{Name: name, Type: memory.EntityOther} }

	rebuild := func() {
		engine = retrieval.NewEngine(cfg, vectors, graphs, client, c)
	}

	BeforeEach(func() {
		ctx = context.Background()
		vectors = testutils.NewFailingVectorDriver(vectorinmemory.NewDriver(vectorinmemory.Config{Dimensions: 3}, mnemologger.Nop()))
		graphs = testutils.NewFailingGraphDriver(graphinmemory.NewDriver())
		client = testutils.NewMockClient()
		c = cache.New(cache.Config{CleanupInterval: -1, Clock: func() time.Time { return now }}, mnemologger.Nop())
		cfg = retrieval.Config{Clock: func() time.Time { return now }, Logger: mnemologger.Nop()}
		rebuild()
	})

	AfterEach(func() {
		c.Close()
	})

	Describe("validation", func() {
		It("rejects queries without an owner, text or budget", func() {
			_, err := engine.Retrieve(ctx, retrieval.Query{Text: "x", BudgetTokens: 10}, retrieval.Options{})
			Expect(err).To(MatchError(memory.ErrInvalidInput))

			_, err = engine.Retrieve(ctx, retrieval.Query{OwnerID: "u1", BudgetTokens: 10}, retrieval.Options{})
			Expect(err).To(MatchError(memory.ErrInvalidInput))

			_, err = engine.Retrieve(ctx, retrieval.Query{OwnerID: "u1", Text: "x"}, retrieval.Options{})
			Expect(err).To(MatchError(memory.ErrInvalidInput))
		})

		It("rejects a precomputed embedding of the wrong length", func() {
			cfg.Dimensions = 3
			rebuild()

			_, err := engine.Retrieve(ctx, retrieval.Query{OwnerID: "u1", Embedding: []float32{1, 0}, BudgetTokens: 10}, retrieval.Options{})
			Expect(err).To(MatchError(memory.ErrInvalidInput))
			Expect(vectors.Queries()).To(BeZero())

			_, err = engine.Retrieve(ctx, retrieval.Query{OwnerID: "u1", Embedding: []float32{1, 0, 0}, BudgetTokens: 10}, retrieval.Options{})
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("the Sarah and Q3 scenario", func() {
		query := retrieval.Query{Text: "What did Sarah say about Q3?", OwnerID: "u1", BudgetTokens: 1000}

		BeforeEach(func() {
			store(mem("A", "Meeting with Sarah about Q3 budget", 3*24*time.Hour, person("Sarah"), other("Q3 budget")))
			store(mem("B", "Sarah confirmed the Q3 numbers", 24*time.Hour, person("Sarah"), other("Q3")))
		})

		It("ranks the newer memory first with both present", func() {
			rc, err := engine.Retrieve(ctx, query, retrieval.Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(rc)).To(Equal([]string{"B", "A"}))
			Expect(rc.Items[0].Breakdown.FromVector).To(BeTrue())
			Expect(rc.Items[0].Breakdown.FromGraph).To(BeTrue())
			Expect(rc.Items[0].Breakdown.Hops).To(Equal(1))
			Expect(rc.Degradations).To(BeEmpty())
		})

		It("still surfaces both through the entity path when the model is down", func() {
			client.FailTimes(100, fmt.Errorf("%w: connection refused", memory.ErrModelUnavailable))

			rc, err := engine.Retrieve(ctx, query, retrieval.Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(rc)).To(Equal([]string{"B", "A"}))
			Expect(rc.Items[0].Breakdown.FromVector).To(BeFalse())
			Expect(rc.Degradations).To(ContainElements(retrieval.DegradedEmbedding, retrieval.DegradedExtraction))
			Expect(vectors.Queries()).To(BeZero())
		})

		It("works without any model client", func() {
			engine = retrieval.NewEngine(cfg, vectors, graphs, nil, c)
			rc, err := engine.Retrieve(ctx, query, retrieval.Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(rc)).To(Equal([]string{"B", "A"}))
		})
	})

	Describe("failure policy", func() {
		BeforeEach(func() {
			store(mem("A", "Lunch with Sarah", time.Hour, person("Sarah")))
			store(mem("B", "Gym session", 2*time.Hour))
		})

		It("falls back to vector-only when the graph store fails", func() {
			graphs.FailReads(fmt.Errorf("%w: connection reset", memory.ErrAdapterUnavailable))

			rc, err := engine.Retrieve(ctx, retrieval.Query{Text: "Sarah", OwnerID: "u1", BudgetTokens: 100}, retrieval.Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(rc.Items).NotTo(BeEmpty())
			Expect(rc.Partial).To(BeFalse())
			Expect(rc.GraphDisabled).To(BeTrue())
			Expect(rc.Degradations).To(ContainElement(retrieval.DegradedGraph))
			for _, it := range rc.Items {
				Expect(it.Breakdown.FromGraph).To(BeFalse())
			}
		})

		It("never touches the graph when the caller disables it", func() {
			rc, err := engine.Retrieve(ctx, retrieval.Query{Text: "Sarah", OwnerID: "u1", BudgetTokens: 100}, retrieval.Options{GraphDisabled: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(rc.GraphDisabled).To(BeTrue())
			Expect(rc.Items).To(HaveLen(2))
			Expect(graphs.Traversals()).To(BeZero())
		})

		It("fails the call when the vector store fails", func() {
			vectors.FailQueries(errors.New("connection refused"))

			_, err := engine.Retrieve(ctx, retrieval.Query{Text: "Sarah", OwnerID: "u1", BudgetTokens: 100}, retrieval.Options{})
			Expect(err).To(MatchError(memory.ErrRetrievalUnavailable))
			Expect(err).To(MatchError(memory.ErrAdapterUnavailable))
		})

		It("fails when neither stage can run", func() {
			client.FailTimes(100, memory.ErrModelTimeout)
			graphs.FailReads(errors.New("down"))

			_, err := engine.Retrieve(ctx, retrieval.Query{Text: "Sarah", OwnerID: "u1", BudgetTokens: 100}, retrieval.Options{})
			Expect(err).To(MatchError(memory.ErrRetrievalUnavailable))
		})

		It("returns partial results when the deadline hits mid-traversal", func() {
			store(mem("C", "Sarah and Bob planned the offsite", 3*time.Hour, person("Sarah"), person("Bob")))
			store(mem("D", "Bob booked the venue", 4*time.Hour, person("Bob")))
			graphs.StallAfterHop(1)

			dctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
			defer cancel()

			rc, err := engine.Retrieve(dctx, retrieval.Query{Text: "Sarah", OwnerID: "u1", BudgetTokens: 1000}, retrieval.Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(rc.Partial).To(BeTrue())
			Expect(rc.GraphDisabled).To(BeFalse())

			byID := map[string]retrieval.Breakdown{}
			for _, it := range rc.Items {
				byID[it.Memory.ID] = it.Breakdown
			}
			Expect(byID).To(HaveKey("D"))
			Expect(byID["D"].FromGraph).To(BeFalse())
			Expect(byID["A"].FromGraph).To(BeTrue())
			Expect(byID["C"].FromGraph).To(BeTrue())

			graphs.StallAfterHop(0)
			rc, err = engine.Retrieve(ctx, retrieval.Query{Text: "Sarah", OwnerID: "u1", BudgetTokens: 1000}, retrieval.Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(rc.Cached).To(BeFalse())
			Expect(rc.Partial).To(BeFalse())
		})
		It("keeps graph-only memories the walk reached before the deadline", func() {
			g := mem("G", "Sarah mentioned the offsite", 3*time.Hour, person("Sarah"))
			g.Embedding = nil
			store(g)
			graphs.StallAfterHop(1)

			dctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
			defer cancel()

			rc, err := engine.Retrieve(dctx, retrieval.Query{Text: "Sarah", OwnerID: "u1", BudgetTokens: 1000}, retrieval.Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(rc.Partial).To(BeTrue())
			Expect(ids(rc)).To(ContainElement("G"))
			Expect(rc.Degradations).NotTo(ContainElement(retrieval.DegradedHydration))
		})

		It("reports graph-only memories it could not load", func() {
			g := mem("G", "Sarah mentioned the offsite", 3*time.Hour, person("Sarah"))
			g.Embedding = nil
			store(g)
			graphs.FailGetMemories(fmt.Errorf("%w: connection reset", memory.ErrAdapterUnavailable))

			rc, err := engine.Retrieve(ctx, retrieval.Query{Text: "Sarah", OwnerID: "u1", BudgetTokens: 1000}, retrieval.Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(rc)).NotTo(ContainElement("G"))
			Expect(rc.Degradations).To(ContainElement(retrieval.DegradedHydration))
		})
	})

	Describe("ranking", func() {
		It("breaks ties by recency, then id, the same way every time", func() {
			store(mem("b", "same words", time.Hour))
			store(mem("a", "same words", time.Hour))
			store(mem("c", "same words", 30*time.Minute))

			for range 5 {
				rc, err := engine.Retrieve(ctx, retrieval.Query{Text: "same words", OwnerID: "u1", BudgetTokens: 100}, retrieval.Options{NoCache: true})
				Expect(err).NotTo(HaveOccurred())
				Expect(ids(rc)).To(Equal([]string{"c", "a", "b"}))
			}
		})

		It("prefers semantic similarity over recency at default weights", func() {
			client.Embeddings["coffee"] = []float32{1, 0, 0}
			near := mem("near", "espresso notes", 10*24*time.Hour)
			near.Embedding = []float32{1, 0, 0}
			far := mem("far", "tax forms", 0)
			far.Embedding = []float32{0, 1, 0}
			store(near)
			store(far)

			rc, err := engine.Retrieve(ctx, retrieval.Query{Text: "coffee", OwnerID: "u1", BudgetTokens: 100}, retrieval.Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(rc)).To(Equal([]string{"near", "far"}))
			Expect(rc.Items[0].Score).To(BeNumerically("~", 0.5+0.2*math.Exp(-0.5), 1e-9))
		})

		It("turns recency decay off with a zero rate", func() {
			lambda := 0.0
			cfg.DecayLambda = &lambda
			rebuild()
			store(mem("old", "same words", 365*24*time.Hour))

			rc, err := engine.Retrieve(ctx, retrieval.Query{Text: "same words", OwnerID: "u1", BudgetTokens: 100}, retrieval.Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(rc.Items).To(HaveLen(1))
			Expect(rc.Items[0].Breakdown.Temporal).To(Equal(1.0))
		})

		It("meets the recall floor for every stored memory", func() {
			for i := range 10 {
				content := fmt.Sprintf("note number %d", i)
				m := mem(fmt.Sprintf("m%d", i), content, time.Duration(i)*time.Hour)
				m.Embedding = []float32{1, float32(i), float32(i * i)}
				client.Embeddings[content] = m.Embedding
				store(m)
			}
			for i := range 10 {
				rc, err := engine.Retrieve(ctx, retrieval.Query{
					Text: fmt.Sprintf("note number %d", i), OwnerID: "u1", BudgetTokens: 10000,
				}, retrieval.Options{})
				Expect(err).NotTo(HaveOccurred())
				Expect(ids(rc)).To(ContainElement(fmt.Sprintf("m%d", i)))
			}
		})
	})

	Describe("context assembly", func() {
		It("never exceeds the budget and skips rather than truncates", func() {
			store(mem("big", strings.Repeat("x", 100), 0))
			store(mem("small", "tiny note", time.Hour))

			rc, err := engine.Retrieve(ctx, retrieval.Query{Text: "x", OwnerID: "u1", BudgetTokens: 10}, retrieval.Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(rc)).To(Equal([]string{"small"}))
			Expect(rc.Items[0].Memory.Content).To(Equal("tiny note"))
			Expect(rc.TokenCount).To(Equal(3))
		})

		It("holds the budget invariant at every budget", func() {
			for i := range 12 {
				store(mem(fmt.Sprintf("m%d", i), strings.Repeat("word ", i+1), time.Duration(i)*time.Minute))
			}
			for budget := 1; budget <= 80; budget += 3 {
				rc, err := engine.Retrieve(ctx, retrieval.Query{Text: "word", OwnerID: "u1", BudgetTokens: budget}, retrieval.Options{})
				Expect(err).NotTo(HaveOccurred())
				sum := 0
				for _, it := range rc.Items {
					sum += it.Tokens
				}
				Expect(sum).To(Equal(rc.TokenCount))
				Expect(rc.TokenCount).To(BeNumerically("<=", budget))
			}
		})
	})

	Describe("caching", func() {
		BeforeEach(func() {
			store(mem("A", "Lunch with Sarah", time.Hour, person("Sarah")))
		})

		It("serves repeats from the cache until the owner is invalidated", func() {
			q := retrieval.Query{Text: "Sarah", OwnerID: "u1", BudgetTokens: 100}

			rc, err := engine.Retrieve(ctx, q, retrieval.Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(rc.Cached).To(BeFalse())

			rc, err = engine.Retrieve(ctx, q, retrieval.Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(rc.Cached).To(BeTrue())
			Expect(vectors.Queries()).To(Equal(1))

			rc.Items[0].Memory.Content = "mutated"
			again, _ := engine.Retrieve(ctx, q, retrieval.Options{})
			Expect(again.Items[0].Memory.Content).To(Equal("Lunch with Sarah"))

			c.InvalidateOwner("u1")
			rc, err = engine.Retrieve(ctx, q, retrieval.Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(rc.Cached).To(BeFalse())
			Expect(vectors.Queries()).To(Equal(2))
		})

		It("does not cache degraded results", func() {
			graphs.FailReads(errors.New("down"))
			q := retrieval.Query{Text: "Sarah", OwnerID: "u1", BudgetTokens: 100}

			_, err := engine.Retrieve(ctx, q, retrieval.Options{})
			Expect(err).NotTo(HaveOccurred())
			rc, err := engine.Retrieve(ctx, q, retrieval.Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(rc.Cached).To(BeFalse())
		})
	})

	Describe("supplementary queries", func() {
		BeforeEach(func() {
			store(mem("A", "Meeting with Sarah about Q3 budget", 3*24*time.Hour, person("Sarah"), other("Q3 budget")))
			store(mem("B", "Sarah confirmed the Q3 numbers", 24*time.Hour, person("Sarah"), other("Q3")))
			m := mem("C", "Dinner with Bob", 2*time.Hour, person("Bob"))
			m.Sentiment = memory.SentimentPositive
			store(m)
		})

		It("lists connections by shared entities", func() {
			conns, err := engine.Connections(ctx, "u1", "A", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(conns).To(HaveLen(1))
			Expect(conns[0].Memory.ID).To(Equal("B"))
			Expect(conns[0].Shared).To(Equal(1))
		})

		It("reports not found for unknown memories", func() {
			_, err := engine.Connections(ctx, "u1", "nope", 10)
			Expect(err).To(MatchError(memory.ErrNotFound))
		})

		It("summarizes recent activity", func() {
			in, err := engine.Insights(ctx, "u1")
			Expect(err).NotTo(HaveOccurred())
			Expect(in.Total).To(Equal(3))
			Expect(in.TopEntities[0].Entity.Name).To(Equal("Sarah"))
			Expect(in.TopEntities[0].Mentions).To(Equal(2))
			Expect(in.ContentTypes[memory.ContentText]).To(Equal(3))
			Expect(in.Sentiments[memory.SentimentPositive]).To(Equal(1))
		})

		It("retrieves proactively from trending entities", func() {
			rc, err := engine.Proactive(ctx, "u1", "", 1000)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(rc)).To(ContainElements("A", "B", "C"))
		})

		It("bounds the trending lookup by the graph timeout", func() {
			cfg.GraphTimeout = 50 * time.Millisecond
			rebuild()
			graphs.StallTopEntities(true)

			done := make(chan *retrieval.Context, 1)
			go func() {
				defer GinkgoRecover()
				rc, err := engine.Proactive(ctx, "u1", "Sarah", 1000)
				Expect(err).NotTo(HaveOccurred())
				done <- rc
			}()

			var rc *retrieval.Context
			Eventually(done, 2*time.Second).Should(Receive(&rc))
			Expect(ids(rc)).To(ContainElements("A", "B"))
		})

		It("lists the session's recent memories newest first", func() {
			store(mem("old", "Last month's retro", 30*24*time.Hour))

			recent, err := engine.Recent(ctx, "u1", 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(recent).To(HaveLen(2))
			Expect(recent[0].ID).To(Equal("C"))
			Expect(recent[1].ID).To(Equal("B"))

			recent, err = engine.Recent(ctx, "u1", 0)
			Expect(err).NotTo(HaveOccurred())
			got := make([]string, 0, len(recent))
			for _, m := range recent {
				got = append(got, m.ID)
			}
			Expect(got).To(Equal([]string{"C", "B"}))
		})

		It("reports recent memories as unavailable when the graph fails", func() {
			graphs.FailReads(errors.New("down"))
			_, err := engine.Recent(ctx, "u1", 5)
			Expect(err).To(MatchError(memory.ErrAdapterUnavailable))

			_, err = engine.Recent(ctx, "", 5)
			Expect(err).To(MatchError(memory.ErrInvalidInput))
		})
	})
})

var _ = Describe("scoring helpers", func() {
	It("decays exponentially with age", func() {
		Expect(retrieval.Temporal(now, now, 0.05)).To(Equal(1.0))
		Expect(retrieval.Temporal(now.Add(-48*time.Hour), now, 0.05)).To(BeNumerically("~", math.Exp(-0.1), 1e-12))
		Expect(retrieval.Temporal(now.Add(time.Hour), now, 0.05)).To(Equal(1.0))
	})

	It("fuses stage scores with the weights", func() {
		b := retrieval.Breakdown{Vector: 0.8, Graph: 0.5, Temporal: 1}
		Expect(retrieval.Fuse(b, retrieval.DefaultWeights())).To(BeNumerically("~", 0.4+0.15+0.2, 1e-12))
	})

	It("estimates tokens by characters", func() {
		Expect(retrieval.CharEstimator{}.Estimate("")).To(Equal(0))
		Expect(retrieval.CharEstimator{}.Estimate("abcde")).To(Equal(2))
		Expect(retrieval.CharEstimator{CharsPerToken: 2}.Estimate("héllo")).To(Equal(3))
	})
})
