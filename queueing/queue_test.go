package queueing

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/uavlink/hooking"
	"github.com/sarchlab/uavlink/uavobj"
)

var _ = Describe("Queue", func() {
	var (
		q   Queue
		ctx context.Context
	)

	BeforeEach(func() {
		q = MakeQueueBuilder().WithCapacity(4).Build("Q")
		ctx = context.Background()
	})

	ev := func(obj uavobj.ObjectID) uavobj.Event {
		return uavobj.Event{Obj: obj, Kind: uavobj.EventUpdated}
	}

	It("should pop in FIFO order", func() {
		Expect(q.Offer(ev(1))).To(BeTrue())
		Expect(q.Offer(ev(2))).To(BeTrue())
		Expect(q.Size()).To(Equal(2))

		e, ok := q.TryPop()
		Expect(ok).To(BeTrue())
		Expect(e.Obj).To(Equal(uavobj.ObjectID(1)))

		e, ok = q.TryPop()
		Expect(ok).To(BeTrue())
		Expect(e.Obj).To(Equal(uavobj.ObjectID(2)))

		_, ok = q.TryPop()
		Expect(ok).To(BeFalse())
	})

	It("should drop instead of overwriting when full", func() {
		for i := 1; i <= 4; i++ {
			Expect(q.Offer(ev(uavobj.ObjectID(i)))).To(BeTrue())
		}

		Expect(q.Offer(ev(5))).To(BeFalse())
		Expect(q.Dropped()).To(Equal(uint64(1)))

		e, _ := q.TryPop()
		Expect(e.Obj).To(Equal(uavobj.ObjectID(1)))
	})

	It("should refuse low-priority events once half full", func() {
		Expect(q.Offer(ev(1))).To(BeTrue())
		Expect(q.Offer(ev(2))).To(BeTrue())

		low := ev(3)
		low.LowPriority = true
		Expect(q.Offer(low)).To(BeFalse())
		Expect(q.Offer(ev(4))).To(BeTrue())
	})

	It("should time out when empty", func() {
		start := time.Now()
		_, ok := q.PopWait(ctx, 20*time.Millisecond)

		Expect(ok).To(BeFalse())
		Expect(time.Since(start)).To(BeNumerically(">=", 20*time.Millisecond))
	})

	It("should wake up when an event arrives", func() {
		go func() {
			time.Sleep(5 * time.Millisecond)
			q.Offer(ev(9))
		}()

		e, ok := q.PopWait(ctx, time.Second)

		Expect(ok).To(BeTrue())
		Expect(e.Obj).To(Equal(uavobj.ObjectID(9)))
	})

	It("should stop waiting when the context is cancelled", func() {
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, ok := q.PopWait(cctx, time.Second)

		Expect(ok).To(BeFalse())
	})

	It("should invoke hooks", func() {
		positions := []*hooking.HookPos{}
		q.AcceptHook(hooking.HookFunc(func(c hooking.HookCtx) {
			positions = append(positions, c.Pos)
		}))

		q.Offer(ev(1))
		q.TryPop()

		Expect(positions).To(Equal([]*hooking.HookPos{
			HookPosQueuePush, HookPosQueuePop,
		}))
	})
})

var _ = Describe("Lanes", func() {
	It("should keep two queues when the priority lane is on", func() {
		l := NewLanes("Ch", 4, true)

		Expect(l.Single()).To(BeFalse())
		Expect(l.Route(true)).To(BeIdenticalTo(l.High()))
		Expect(l.Route(false)).To(BeIdenticalTo(l.Low()))
		Expect(l.Queues()).To(HaveLen(2))
	})

	It("should collapse to one queue when the priority lane is off", func() {
		l := NewLanes("Ch", 4, false)

		Expect(l.Single()).To(BeTrue())
		Expect(l.Route(true)).To(BeIdenticalTo(l.Route(false)))
		Expect(l.Queues()).To(HaveLen(1))
	})
})
