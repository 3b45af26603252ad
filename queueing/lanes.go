package queueing

// Lanes routes events to a high (priority) or low (normal) queue. When the
// priority lane is disabled both lanes are the same queue.
type Lanes struct {
	high Queue
	low  Queue
}

// NewLanes builds the queues of one channel.
func NewLanes(name string, capacity int, priorityLane bool) *Lanes {
	b := MakeQueueBuilder().WithCapacity(capacity)

	low := b.Build(name + ".NormalQueue")
	if !priorityLane {
		return &Lanes{high: low, low: low}
	}

	return &Lanes{
		high: b.Build(name + ".PriorityQueue"),
		low:  low,
	}
}

// Route returns the queue events of an object should go to.
func (l *Lanes) Route(priority bool) Queue {
	if priority {
		return l.high
	}

	return l.low
}

// High returns the priority queue.
func (l *Lanes) High() Queue {
	return l.high
}

// Low returns the normal queue.
func (l *Lanes) Low() Queue {
	return l.low
}

// Single tells if the priority lane is collapsed into the normal one.
func (l *Lanes) Single() bool {
	return l.high == l.low
}

// Queues returns the distinct queues.
func (l *Lanes) Queues() []Queue {
	if l.Single() {
		return []Queue{l.low}
	}

	return []Queue{l.high, l.low}
}
