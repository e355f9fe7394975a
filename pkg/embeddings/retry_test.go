package embeddings_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/embeddings"
	"github.com/papercomputeco/mnemo/pkg/memory"
	testutils "github.com/papercomputeco/mnemo/pkg/utils/test"
)

var _ = Describe("Retrying", func() {
	var (
		mock   *testutils.MockClient
		client *embeddings.Retrying
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		mock = testutils.NewMockClient()
		client = embeddings.WithRetry(mock, embeddings.RetryConfig{
			Attempts:       3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
			CallTimeout:    time.Second,
		})
	})

	It("returns the first successful result", func() {
		res, err := client.Process(ctx, embeddings.Input{OwnerID: "u1", Content: "hello Sarah"})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Text).To(Equal("hello Sarah"))
		Expect(mock.Calls()).To(Equal(1))
	})

	It("retries transient failures until one succeeds", func() {
		mock.FailTimes(2, errors.New("connection refused"))

		res, err := client.Process(ctx, embeddings.Input{OwnerID: "u1", Content: "hello"})
		Expect(err).NotTo(HaveOccurred())
		Expect(res).NotTo(BeNil())
		Expect(mock.Calls()).To(Equal(3))
	})

	It("gives up after the configured attempts", func() {
		mock.FailTimes(10, errors.New("connection refused"))

		_, err := client.Process(ctx, embeddings.Input{OwnerID: "u1", Content: "hello"})
		Expect(err).To(MatchError(memory.ErrModelUnavailable))
		Expect(mock.Calls()).To(Equal(3))
	})

	It("maps per-call deadlines to timeouts", func() {
		mock.FailTimes(10, context.DeadlineExceeded)

		_, err := client.Embed(ctx, "hello")
		Expect(err).To(MatchError(memory.ErrModelTimeout))
		Expect(mock.Calls()).To(Equal(3))
	})

	It("does not retry invalid input", func() {
		mock.FailTimes(10, memory.ErrInvalidInput)

		_, err := client.Extract(ctx, "hello")
		Expect(err).To(MatchError(memory.ErrInvalidInput))
		Expect(mock.Calls()).To(Equal(1))
	})
})
