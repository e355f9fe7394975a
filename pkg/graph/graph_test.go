package graph_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/graph"
	"github.com/papercomputeco/mnemo/pkg/memory"
)

var _ = Describe("BuildBatch", func() {
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	It("derives entities, mentions and one co-occurs edge per pair", func() {
		b := graph.BuildBatch(&memory.Memory{
			ID: "m1", OwnerID: "u1", Content: "x", CreatedAt: at,
			Embedding: []float32{1, 2},
			Entities: []memory.EntityRef{
				{Name: "Sarah", Type: memory.EntityPerson},
				{Name: "Bob", Type: memory.EntityPerson},
				{Name: "sarah", Type: memory.EntityPerson},
				{Name: "Q3", Type: memory.EntityOther},
			},
		})

		Expect(b.Token).NotTo(BeEmpty())
		Expect(b.Memory.Embedding).To(BeNil())
		Expect(b.Entities).To(HaveLen(3))

		var mentions, cooccurs int
		for _, e := range b.Edges {
			switch e.Type {
			case memory.EdgeMentions:
				mentions++
				Expect(e.From).To(Equal("m1"))
			case memory.EdgeCoOccurs:
				cooccurs++
				Expect(e.From < e.To).To(BeTrue())
			}
		}
		Expect(mentions).To(Equal(3))
		Expect(cooccurs).To(Equal(3))
		Expect(graph.ValidateBatch(b)).To(Succeed())
	})

	It("mints a new token per call", func() {
		m := &memory.Memory{ID: "m1", OwnerID: "u1", Content: "x"}
		Expect(graph.BuildBatch(m).Token).NotTo(Equal(graph.BuildBatch(m).Token))
	})
})

var _ = Describe("ValidateBatch", func() {
	It("rejects mismatched owners", func() {
		b := graph.BuildBatch(&memory.Memory{ID: "m1", OwnerID: "u1", Content: "x"})
		b.OwnerID = "u2"
		Expect(graph.ValidateBatch(b)).To(MatchError(memory.ErrInvalidInput))
	})

	It("rejects unknown edge types", func() {
		b := graph.BuildBatch(&memory.Memory{ID: "m1", OwnerID: "u1", Content: "x"})
		b.Edges = append(b.Edges, memory.Edge{OwnerID: "u1", Type: "likes", From: "a", To: "b"})
		Expect(graph.ValidateBatch(b)).To(MatchError(graph.ErrInvalidBatch))
	})
})

var _ = Describe("Walk", func() {
	// e1 - m1, e1 = e2, e2 - m2
	adj := map[string][]graph.Link{
		"e1": {{From: "e1", To: graph.Node{ID: "m1", Kind: graph.KindMemory}}, {From: "e1", To: graph.Node{ID: "e2"}}},
		"e2": {{From: "e2", To: graph.Node{ID: "m2", Kind: graph.KindMemory}}, {From: "e2", To: graph.Node{ID: "e1"}}},
		"m1": {{From: "m1", To: graph.Node{ID: "e1"}}},
		"m2": {{From: "m2", To: graph.Node{ID: "e2"}}},
	}
	expand := func(_ context.Context, frontier []graph.Node) ([]graph.Link, error) {
		var out []graph.Link
		for _, n := range frontier {
			out = append(out, adj[n.ID]...)
		}
		return out, nil
	}

	It("requires an owner", func() {
		_, err := graph.Walk(context.Background(), graph.TraverseRequest{SeedIDs: []string{"e1"}, MaxDepth: 1}, expand)
		Expect(err).To(MatchError(graph.ErrOwnerRequired))
	})

	It("orders by hops then id", func() {
		reaches, err := graph.Walk(context.Background(), graph.TraverseRequest{
			OwnerID: "u1", SeedIDs: []string{"e1"}, MaxDepth: 3,
		}, expand)
		Expect(err).NotTo(HaveOccurred())
		Expect(reaches).To(Equal([]graph.Reach{
			{MemoryID: "m1", Hops: 1, SeedID: "e1"},
			{MemoryID: "m2", Hops: 2, SeedID: "e1"},
		}))
	})

	It("returns partial results with a timeout when the context ends mid-walk", func() {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		reaches, err := graph.Walk(ctx, graph.TraverseRequest{
			OwnerID: "u1", SeedIDs: []string{"e1"}, MaxDepth: 3,
		}, func(ctx context.Context, frontier []graph.Node) ([]graph.Link, error) {
			calls++
			if calls == 2 {
				cancel()
			}
			return expand(ctx, frontier)
		})
		Expect(err).To(MatchError(memory.ErrAdapterTimeout))
		Expect(reaches).To(Equal([]graph.Reach{{MemoryID: "m1", Hops: 1, SeedID: "e1"}, {MemoryID: "m2", Hops: 2, SeedID: "e1"}}))
	})

	It("classifies expansion failures as unavailable", func() {
		_, err := graph.Walk(context.Background(), graph.TraverseRequest{
			OwnerID: "u1", SeedIDs: []string{"e1"}, MaxDepth: 1,
		}, func(context.Context, []graph.Node) ([]graph.Link, error) {
			return nil, errors.New("boom")
		})
		Expect(err).To(MatchError(memory.ErrAdapterUnavailable))
	})
})

var _ = Describe("MatchesAny", func() {
	It("matches equal and whole-word names", func() {
		Expect(graph.MatchesAny("Q3  Budget", []string{"q3 budget"})).To(BeTrue())
		Expect(graph.MatchesAny("Q3 budget", []string{"Q3"})).To(BeTrue())
		Expect(graph.MatchesAny("Q30", []string{"q3"})).To(BeFalse())
		Expect(graph.MatchesAny("Sarah", []string{"sarah connor"})).To(BeFalse())
	})
})
