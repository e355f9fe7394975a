package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/embeddings"
	"github.com/papercomputeco/mnemo/pkg/embeddings/ollama"
	"github.com/papercomputeco/mnemo/pkg/memory"
)

var _ = Describe("Client", func() {
	var (
		server    *httptest.Server
		generated string
		status    int
		client    *ollama.Client
		ctx       context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		status = http.StatusOK
		generated = `{"text":"Meeting with Sarah about Q3","entities":[{"name":"Sarah","type":"person"},{"name":"Q3","type":"quarter"}],"sentiment":"Neutral","keywords":["meeting"]}`

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if status != http.StatusOK {
				http.Error(w, "model not loaded", status)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			switch r.URL.Path {
			case "/api/embed":
				json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{{0.1, 0.2, 0.3}}})
			case "/api/generate":
				var req map[string]any
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req["format"] != "json" || req["stream"] != false {
					http.Error(w, "bad request", http.StatusBadRequest)
					return
				}
				json.NewEncoder(w).Encode(map[string]any{"response": generated})
			default:
				http.NotFound(w, r)
			}
		}))

		var err error
		client, err = ollama.NewClient(ollama.Config{BaseURL: server.URL})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	It("embeds text", func() {
		emb, err := client.Embed(ctx, "hello")
		Expect(err).NotTo(HaveOccurred())
		Expect(emb).To(Equal([]float32{0.1, 0.2, 0.3}))
	})

	It("processes a capture into a validated result", func() {
		res, err := client.Process(ctx, embeddings.Input{OwnerID: "u1", Content: "meeting w/ sarah re q3"})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Text).To(Equal("Meeting with Sarah about Q3"))
		Expect(res.Sentiment).To(Equal(memory.SentimentNeutral))
		Expect(res.Entities).To(ConsistOf(
			memory.EntityRef{Name: "Sarah", Type: memory.EntityPerson},
			memory.EntityRef{Name: "Q3", Type: memory.EntityOther},
		))
		Expect(res.Embedding).To(HaveLen(3))
	})

	It("rejects responses missing required fields", func() {
		generated = `{"text":"hello"}`
		_, err := client.Process(ctx, embeddings.Input{OwnerID: "u1", Content: "hello"})
		Expect(err).To(MatchError(embeddings.ErrMalformedResponse))
	})

	It("rejects responses that are not json", func() {
		generated = `Sure! Here are the entities: Sarah`
		_, err := client.Extract(ctx, "hello Sarah")
		Expect(err).To(MatchError(embeddings.ErrMalformedResponse))
	})

	It("extracts entities", func() {
		refs, err := client.Extract(ctx, "what did Sarah say about Q3")
		Expect(err).NotTo(HaveOccurred())
		Expect(refs).To(ConsistOf(
			memory.EntityRef{Name: "Sarah", Type: memory.EntityPerson},
			memory.EntityRef{Name: "Q3", Type: memory.EntityOther},
		))
	})

	It("maps server errors to model unavailable", func() {
		status = http.StatusServiceUnavailable
		_, err := client.Embed(ctx, "hello")
		Expect(err).To(MatchError(memory.ErrModelUnavailable))
	})

	It("rejects empty captures", func() {
		_, err := client.Process(ctx, embeddings.Input{OwnerID: "u1"})
		Expect(err).To(MatchError(memory.ErrInvalidInput))
	})
})
