package vector_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/memory"
	"github.com/papercomputeco/mnemo/pkg/vector"
)

var _ = Describe("Cosine", func() {
	It("is 1 for parallel vectors", func() {
		Expect(vector.Cosine([]float32{1, 2}, []float32{2, 4})).To(BeNumerically("~", 1, 1e-6))
	})

	It("is 0 for orthogonal vectors", func() {
		Expect(vector.Cosine([]float32{1, 0}, []float32{0, 1})).To(BeNumerically("~", 0, 1e-6))
	})

	It("is 0 for mismatched or zero vectors", func() {
		Expect(vector.Cosine([]float32{1}, []float32{1, 0})).To(BeZero())
		Expect(vector.Cosine([]float32{0, 0}, []float32{1, 0})).To(BeZero())
	})
})

var _ = Describe("Payload", func() {
	It("drops the embedding and keeps the rest", func() {
		m := &memory.Memory{
			ID:        "m1",
			OwnerID:   "u1",
			Content:   "hello",
			CreatedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
			Embedding: []float32{1, 2, 3},
			Entities:  []memory.EntityRef{{Name: "sarah", Type: memory.EntityPerson}},
		}
		s, err := vector.EncodePayload(m)
		Expect(err).NotTo(HaveOccurred())

		back, err := vector.DecodePayload(s)
		Expect(err).NotTo(HaveOccurred())
		Expect(back.Embedding).To(BeNil())
		Expect(back.Content).To(Equal("hello"))
		Expect(back.CreatedAt.Equal(m.CreatedAt)).To(BeTrue())
		Expect(back.Entities).To(Equal(m.Entities))
		Expect(m.Embedding).To(HaveLen(3))
	})

	It("treats an empty payload as absent", func() {
		m, err := vector.DecodePayload("")
		Expect(err).NotTo(HaveOccurred())
		Expect(m).To(BeNil())
	})
})

var _ = Describe("ValidateDocuments", func() {
	It("collects every problem", func() {
		err := vector.ValidateDocuments([]vector.Document{
			{ID: "a", Embedding: []float32{1}},
			{ID: "b", OwnerID: "u1"},
		}, 1)
		Expect(err).To(MatchError(vector.ErrOwnerRequired))
		Expect(err).To(MatchError(vector.ErrDimension))
	})
})
