package embeddings_test

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/embeddings"
	"github.com/papercomputeco/mnemo/pkg/memory"
)

var _ = Describe("Result", func() {
	valid := func() *embeddings.Result {
		return &embeddings.Result{
			Text:      "Meeting with Sarah about Q3",
			Entities:  []memory.EntityRef{{Name: "Sarah", Type: memory.EntityPerson}},
			Sentiment: memory.SentimentNeutral,
			Embedding: []float32{0.1, 0.2, 0.3},
		}
	}

	It("accepts a well-formed result", func() {
		Expect(valid().Validate(3)).To(Succeed())
	})

	It("rejects empty text", func() {
		r := valid()
		r.Text = ""
		Expect(r.Validate(3)).To(MatchError(embeddings.ErrMalformedResponse))
	})

	It("rejects unknown sentiment", func() {
		r := valid()
		r.Sentiment = "elated"
		err := r.Validate(3)
		Expect(err).To(MatchError(embeddings.ErrMalformedResponse))
		Expect(err).To(MatchError(memory.ErrModelUnavailable))
	})

	It("rejects a wrong embedding dimension", func() {
		Expect(valid().Validate(4)).To(MatchError(embeddings.ErrMalformedResponse))
	})

	It("rejects non-finite embeddings", func() {
		r := valid()
		r.Embedding[1] = float32(math.NaN())
		Expect(r.Validate(0)).To(MatchError(embeddings.ErrMalformedResponse))
	})

	It("rejects nameless entities", func() {
		r := valid()
		r.Entities = append(r.Entities, memory.EntityRef{Name: " "})
		Expect(r.Validate(0)).To(MatchError(embeddings.ErrMalformedResponse))
	})

	It("converts into a memory", func() {
		m := valid().Memory(embeddings.Input{OwnerID: "u1", Tags: []string{"Work", "work"}})
		Expect(m.OwnerID).To(Equal("u1"))
		Expect(m.ContentType).To(Equal(memory.ContentText))
		Expect(m.Entities).To(Equal([]memory.EntityRef{{Name: "Sarah", Type: memory.EntityPerson}}))
		Expect(m.Tags).To(Equal([]string{"work"}))
	})
})
