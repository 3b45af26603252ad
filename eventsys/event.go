package eventsys

import (
	"time"

	"github.com/sarchlab/uavlink/uavobj"
)

// timerKey identifies a periodic timer. Two arms with the same key refer to
// the same timer.
type timerKey struct {
	obj  uavobj.ObjectID
	inst uavobj.InstanceID
	kind uavobj.EventKind
	sink uavobj.EventSink
}

func keyOf(ev uavobj.Event, sink uavobj.EventSink) timerKey {
	return timerKey{
		obj:  ev.Obj,
		inst: ev.Instance,
		kind: ev.Kind,
		sink: sink,
	}
}

// A timer pushes its event into its sink every period.
type timer struct {
	key    timerKey
	ev     uavobj.Event
	sink   uavobj.EventSink
	period time.Duration
	due    time.Time
	index  int
}

type timerHeap []*timer

func (h timerHeap) Len() int {
	return len(h)
}

func (h timerHeap) Less(i, j int) bool {
	return h[i].due.Before(h[j].due)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x interface{}) {
	t := x.(*timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[0 : n-1]

	return t
}
