package relay

// binding is the listener-attachment state machine.
type binding int

const (
	unbound            binding = iota // No listener; arrivals are buffered
	bound                             // Listener attached, queue empty; arrivals schedule a drain
	boundPendingReplay                // Listener attached, a drain is pending or running
)

func (b binding) String() string {
	switch b {
	case unbound:
		return "unbound"
	case bound:
		return "bound"
	case boundPendingReplay:
		return "bound-pending-replay"
	default:
		return "unknown"
	}
}

// pendingQueue is a single ordered buffer. While sealed it counts the
// events that were queued when the replay started (pre-attach) apart from
// those that arrived during it. Replay always consumes from the head, so the
// pre-attach part is delivered first.
type pendingQueue struct {
	events []Event
	sealed bool
	pre    int
	during int
}

func (q *pendingQueue) push(e Event) {
	q.events = append(q.events, e)
	if q.sealed {
		q.during++
	}
}

// seal freezes the pre-attach boundary at the current length.
func (q *pendingQueue) seal() {
	q.sealed = true
	q.pre = len(q.events)
	q.during = 0
}

func (q *pendingQueue) unseal() { q.sealed = false }

func (q *pendingQueue) pop() (Event, bool) {
	if len(q.events) == 0 {
		return Event{}, false
	}
	e := q.events[0]
	q.events[0] = Event{}
	q.events = q.events[1:]
	return e, true
}

// reset empties the queue and reports whether a replay was sealed, with its
// pre-attach and during-attach counts.
func (q *pendingQueue) reset() (replayed bool, pre, during int) {
	replayed, pre, during = q.sealed, q.pre, q.during
	q.events = nil
	q.sealed = false
	q.pre, q.during = 0, 0
	return replayed, pre, during
}

func (q *pendingQueue) len() int { return len(q.events) }
