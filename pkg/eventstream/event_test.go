package eventstream_test

import (
	"encoding/json"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/eventstream"
	"github.com/papercomputeco/mnemo/pkg/memory"
)

var _ = Describe("Event", func() {
	now := time.Unix(1735689600, 0).UTC()
	m := &memory.Memory{
		ID: "m1", OwnerID: "u1", Content: "secret content", ContentType: memory.ContentText,
		CreatedAt: now, Embedding: []float32{1, 2},
		Entities: []memory.EntityRef{{Name: "Sarah", Type: memory.EntityPerson}},
	}

	It("marshals MemoryEvent with expected top-level keys", func() {
		event := eventstream.NewMemoryEvent(eventstream.EventTypeMemoryIngested, m, eventstream.GraphMeta{Complete: true}, now)

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())

		Expect(got).To(HaveKey("schema_version"))
		Expect(got).To(HaveKey("event_type"))
		Expect(got).To(HaveKey("event_id"))
		Expect(got).To(HaveKey("emitted_at"))
		Expect(got).To(HaveKey("memory"))
		Expect(got).To(HaveKey("graph"))
	})

	It("leaves content and embeddings out of the payload", func() {
		event := eventstream.NewMemoryEvent(eventstream.EventTypeMemoryIngested, m, eventstream.GraphMeta{}, now)
		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(payload)).NotTo(ContainSubstring("secret content"))
		Expect(event.Memory.HasVector).To(BeTrue())
		Expect(strings.HasPrefix(event.EventID, "evt_")).To(BeTrue())
	})

	It("defines stable event constants", func() {
		Expect(eventstream.SchemaVersionV1).To(BeNumerically(">", 0))
		Expect(eventstream.EventTypeMemoryIngested).To(Equal("mnemo.memory.ingested"))
	})

	It("provides ErrNilEvent for nil payload validation", func() {
		Expect(eventstream.ErrNilEvent).To(MatchError("nil memory event"))
	})
})
