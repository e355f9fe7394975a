package ingest

import (
	"context"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/graph"
	"github.com/papercomputeco/mnemo/pkg/logger"
	"github.com/papercomputeco/mnemo/pkg/memory"
)

var _ = Describe("pool", func() {
	job := func(id string) retryJob {
		return retryJob{
			batch:  &graph.Batch{OwnerID: "u1", Memory: &memory.Memory{ID: id, OwnerID: "u1"}},
			queued: time.Now(),
		}
	}

	It("runs queued jobs and drains on close", func() {
		var ran atomic.Int32
		p, err := newPool(2, 8, func(context.Context, retryJob) { ran.Add(1) }, logger.Nop())
		Expect(err).NotTo(HaveOccurred())

		for _, id := range []string{"a", "b", "c"} {
			Expect(p.enqueue(job(id))).To(BeTrue())
		}
		p.close()
		Expect(ran.Load()).To(Equal(int32(3)))
	})

	It("drops jobs when the queue is full", func() {
		block := make(chan struct{})
		started := make(chan struct{}, 3)
		p, err := newPool(1, 1, func(context.Context, retryJob) {
			started <- struct{}{}
			<-block
		}, logger.Nop())
		Expect(err).NotTo(HaveOccurred())

		Expect(p.enqueue(job("a"))).To(BeTrue())
		<-started
		Expect(p.enqueue(job("b"))).To(BeTrue())
		Expect(p.enqueue(job("c"))).To(BeFalse())

		close(block)
		p.close()
	})

	It("hands workers a cancelled context on close", func() {
		done := make(chan error, 1)
		started := make(chan struct{})
		p, err := newPool(1, 1, func(ctx context.Context, _ retryJob) {
			close(started)
			<-ctx.Done()
			done <- ctx.Err()
		}, logger.Nop())
		Expect(err).NotTo(HaveOccurred())

		Expect(p.enqueue(job("a"))).To(BeTrue())
		<-started
		p.close()
		Expect(<-done).To(MatchError(context.Canceled))
	})

	It("refuses jobs after close", func() {
		var ran atomic.Int32
		p, err := newPool(1, 4, func(context.Context, retryJob) { ran.Add(1) }, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		p.close()

		Expect(func() { Expect(p.enqueue(job("late"))).To(BeFalse()) }).NotTo(Panic())
		Expect(func() { p.close() }).NotTo(Panic())
		Expect(ran.Load()).To(BeZero())
	})
})
