// Package graphtest holds behavior specs every graph.Driver must pass.
package graphtest

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/graph"
	"github.com/papercomputeco/mnemo/pkg/memory"
)

// Epoch is the reference time memories in the specs are created around.
var Epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// Mem builds a memory naming the given people.
func Mem(owner, id string, at time.Time, people ...string) *memory.Memory {
	refs := make([]memory.EntityRef, 0, len(people))
	for _, p := range people {
		refs = append(refs, memory.EntityRef{Name: p, Type: memory.EntityPerson})
	}
	return &memory.Memory{
		ID: id, OwnerID: owner, Content: id, ContentType: memory.ContentText,
		CreatedAt: at, Entities: refs,
	}
}

func entityID(owner, name string) string {
	return memory.EntityID(owner, name, memory.EntityPerson)
}

// DriverBehaviors registers the shared driver specs. newDriver is called
// before each spec.
func DriverBehaviors(newDriver func() graph.Driver) {
	var (
		d   graph.Driver
		ctx context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		d = newDriver()
	})

	AfterEach(func() {
		if d != nil {
			d.Close()
		}
	})

	write := func(m *memory.Memory) *graph.Batch {
		b := graph.BuildBatch(m)
		Expect(d.Write(ctx, b)).To(Succeed())
		return b
	}

	Describe("Write", func() {
		It("rejects a batch without an owner", func() {
			b := graph.BuildBatch(Mem("u1", "m1", Epoch, "Sarah"))
			b.OwnerID = ""
			Expect(d.Write(ctx, b)).To(MatchError(memory.ErrInvalidInput))
		})

		It("is a no-op when the same batch is replayed", func() {
			b := write(Mem("u1", "m1", Epoch, "Sarah", "Bob"))
			Expect(d.Write(ctx, b)).To(Succeed())

			ents, err := d.FindEntities(ctx, "u1", []string{"sarah"})
			Expect(err).NotTo(HaveOccurred())
			Expect(ents).To(HaveLen(1))
			Expect(ents[0].MentionCount).To(Equal(int64(1)))
		})

		It("accumulates mentions across distinct ingestions", func() {
			write(Mem("u1", "m1", Epoch, "Sarah"))
			write(Mem("u1", "m2", Epoch.Add(time.Hour), "sarah"))

			ents, err := d.FindEntities(ctx, "u1", []string{"Sarah"})
			Expect(err).NotTo(HaveOccurred())
			Expect(ents).To(HaveLen(1))
			Expect(ents[0].MentionCount).To(Equal(int64(2)))
			Expect(ents[0].FirstSeenAt.Equal(Epoch)).To(BeTrue())
		})

		It("adds co-occurrence weight for each ingestion of a pair", func() {
			write(Mem("u1", "m1", Epoch, "Sarah", "Bob"))
			write(Mem("u1", "m2", Epoch, "Sarah", "Bob"))
			write(Mem("u1", "m3", Epoch, "Bob"))

			req := graph.TraverseRequest{
				OwnerID: "u1", SeedIDs: []string{entityID("u1", "Sarah")}, MaxDepth: 2, MinWeight: 2,
			}
			reaches, err := d.Traverse(ctx, req)
			Expect(err).NotTo(HaveOccurred())
			Expect(reaches).To(HaveLen(3))

			req.MinWeight = 3
			reaches, err = d.Traverse(ctx, req)
			Expect(err).NotTo(HaveOccurred())
			Expect(reaches).To(HaveLen(2))
		})
	})

	Describe("Traverse", func() {
		BeforeEach(func() {
			write(Mem("u1", "m1", Epoch, "Sarah"))
			write(Mem("u1", "m2", Epoch, "Sarah", "Bob"))
			write(Mem("u1", "m3", Epoch, "Bob", "Carol"))
			write(Mem("u1", "m4", Epoch, "Carol", "Dave"))
			write(Mem("u2", "x1", Epoch, "Sarah"))
		})

		It("reports the shortest hop count for every memory in range", func() {
			reaches, err := d.Traverse(ctx, graph.TraverseRequest{
				OwnerID: "u1", SeedIDs: []string{entityID("u1", "Sarah")}, MaxDepth: 3,
			})
			Expect(err).NotTo(HaveOccurred())

			hops := map[string]int{}
			for _, r := range reaches {
				hops[r.MemoryID] = r.Hops
				Expect(r.SeedID).To(Equal(entityID("u1", "Sarah")))
			}
			Expect(hops).To(Equal(map[string]int{"m1": 1, "m2": 1, "m3": 2, "m4": 3}))
		})

		It("respects the depth bound", func() {
			reaches, err := d.Traverse(ctx, graph.TraverseRequest{
				OwnerID: "u1", SeedIDs: []string{entityID("u1", "Sarah")}, MaxDepth: 1,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(reaches).To(HaveLen(2))
		})

		It("never crosses owners", func() {
			reaches, err := d.Traverse(ctx, graph.TraverseRequest{
				OwnerID: "u2", SeedIDs: []string{entityID("u1", "Sarah")}, MaxDepth: 3,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(reaches).To(BeEmpty())
		})

		It("returns a timeout when the context is already done", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := d.Traverse(cctx, graph.TraverseRequest{
				OwnerID: "u1", SeedIDs: []string{entityID("u1", "Sarah")}, MaxDepth: 3,
			})
			Expect(err).To(MatchError(memory.ErrAdapterTimeout))
		})
	})

	Describe("FindEntities", func() {
		It("matches whole words of multi-word names", func() {
			m := Mem("u1", "m1", Epoch)
			m.Entities = []memory.EntityRef{{Name: "Q3 budget", Type: memory.EntityOther}, {Name: "Q30", Type: memory.EntityOther}}
			write(m)

			ents, err := d.FindEntities(ctx, "u1", []string{"q3"})
			Expect(err).NotTo(HaveOccurred())
			Expect(ents).To(HaveLen(1))
			Expect(ents[0].Name).To(Equal("Q3 budget"))
		})
	})

	Describe("queries", func() {
		BeforeEach(func() {
			write(Mem("u1", "m1", Epoch, "Sarah", "Bob"))
			write(Mem("u1", "m2", Epoch.Add(24*time.Hour), "Sarah", "Bob"))
			write(Mem("u1", "m3", Epoch.Add(48*time.Hour), "Sarah"))
		})

		It("returns memories by id without embeddings", func() {
			mems, err := d.GetMemories(ctx, "u1", []string{"m3", "missing", "m1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(mems).To(HaveLen(2))
			Expect(mems[0].ID).To(Equal("m3"))
			Expect(mems[0].Embedding).To(BeNil())
			Expect(mems[0].CreatedAt.Equal(Epoch.Add(48 * time.Hour))).To(BeTrue())
		})

		It("ranks related memories by shared entities", func() {
			rel, err := d.Related(ctx, "u1", "m1", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(rel).To(Equal([]graph.Related{{MemoryID: "m2", Shared: 2}, {MemoryID: "m3", Shared: 1}}))

			_, err = d.Related(ctx, "u1", "nope", 10)
			Expect(err).To(MatchError(memory.ErrNotFound))
		})

		It("counts entity mentions inside a window", func() {
			top, err := d.TopEntities(ctx, "u1", Epoch.Add(time.Hour), 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(top).To(HaveLen(1))
			Expect(top[0].Entity.Name).To(Equal("Sarah"))
			Expect(top[0].Mentions).To(Equal(2))
		})

		It("lists recent memories newest first", func() {
			mems, err := d.RecentMemories(ctx, "u1", Epoch.Add(time.Hour), 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(mems).To(HaveLen(2))
			Expect(mems[0].ID).To(Equal("m3"))
		})

		It("deletes a memory and its mentions", func() {
			Expect(d.DeleteMemory(ctx, "u1", "m1")).To(Succeed())

			mems, err := d.GetMemories(ctx, "u1", []string{"m1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(mems).To(BeEmpty())

			reaches, err := d.Traverse(ctx, graph.TraverseRequest{
				OwnerID: "u1", SeedIDs: []string{entityID("u1", "Bob")}, MaxDepth: 1,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(reaches).To(HaveLen(1))
			Expect(reaches[0].MemoryID).To(Equal("m2"))
		})

		It("decays stale co-occurrence edges", func() {
			write(Mem("u3", "a1", Epoch, "Sarah", "Bob"))
			write(Mem("u3", "a2", Epoch, "Sarah", "Bob"))
			write(Mem("u3", "b1", Epoch, "Bob"))

			req := graph.TraverseRequest{
				OwnerID: "u3", SeedIDs: []string{entityID("u3", "Sarah")}, MaxDepth: 2, MinWeight: 1.5,
			}
			reaches, err := d.Traverse(ctx, req)
			Expect(err).NotTo(HaveOccurred())
			Expect(reaches).To(HaveLen(3))

			n, err := d.Decay(ctx, 0.5, Epoch.Add(time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(int64(1)))

			reaches, err = d.Traverse(ctx, req)
			Expect(err).NotTo(HaveOccurred())
			Expect(reaches).To(HaveLen(2))
		})
	})
}
