package qdrant_test

import (
	"context"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	mnemologger "github.com/papercomputeco/mnemo/pkg/logger"
	"github.com/papercomputeco/mnemo/pkg/memory"
	"github.com/papercomputeco/mnemo/pkg/vector"
	"github.com/papercomputeco/mnemo/pkg/vector/qdrant"
)

var _ = Describe("Driver", func() {
	Describe("NewDriver", func() {
		It("should require a host", func() {
			_, err := qdrant.NewDriver(context.Background(), qdrant.Config{Dimensions: 4}, mnemologger.Nop())
			Expect(err).To(MatchError(ContainSubstring("qdrant host is required")))
		})

		It("should require dimensions", func() {
			_, err := qdrant.NewDriver(context.Background(), qdrant.Config{Host: "localhost"}, mnemologger.Nop())
			Expect(err).To(MatchError(ContainSubstring("dimensions cannot be 0")))
		})
	})

	Describe("against a live instance", func() {
		var (
			driver *qdrant.Driver
			ctx    context.Context
		)

		BeforeEach(func() {
			host := os.Getenv("MNEMO_TEST_QDRANT_HOST")
			if host == "" {
				Skip("Requires running Qdrant instance (set MNEMO_TEST_QDRANT_HOST)")
			}
			ctx = context.Background()

			var err error
			driver, err = qdrant.NewDriver(ctx, qdrant.Config{
				Host:           host,
				CollectionName: "mnemo_test",
				Dimensions:     2,
			}, mnemologger.Nop())
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			if driver != nil {
				Expect(driver.Close()).To(Succeed())
			}
		})

		It("round-trips documents scoped by owner", func() {
			docs := []vector.Document{
				{ID: "m1", OwnerID: "qa", Embedding: []float32{1, 0}, Memory: &memory.Memory{ID: "m1", OwnerID: "qa", Content: "one"}},
				{ID: "m1", OwnerID: "qb", Embedding: []float32{1, 0}, Memory: &memory.Memory{ID: "m1", OwnerID: "qb", Content: "other"}},
			}
			Expect(driver.Upsert(ctx, docs)).To(Succeed())
			DeferCleanup(func() {
				driver.Delete(ctx, "qa", []string{"m1"})
				driver.Delete(ctx, "qb", []string{"m1"})
			})

			results, err := driver.Query(ctx, []float32{1, 0}, 5, vector.Filter{OwnerID: "qa"})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].Memory.Content).To(Equal("one"))
			Expect(results[0].Score).To(BeNumerically("~", 1, 0.001))
		})
	})
})
