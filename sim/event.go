package sim

type eventState uint8

const (
	eventPending eventState = iota
	eventRunning
	eventFired
	eventCancelled
)

// Event is a state transition bound to a simulated timestamp. Events are
// created by the Simulator's Schedule* methods; the returned handle can be
// passed to Cancel.
type Event struct {
	id       uint64
	at       Time
	priority int
	owner    EntityID
	kind     string
	payload  any
	handler  Handler

	index int // position in the queue, -1 once removed
	state eventState
}

// ID returns the insertion sequence number, unique per Simulator.
func (e *Event) ID() uint64 { return e.id }

// Time returns the timestamp the event fires at.
func (e *Event) Time() Time { return e.at }

// Priority returns the secondary ordering key. Lower runs first.
func (e *Event) Priority() int { return e.priority }

// Owner returns the entity the event is dispatched to.
func (e *Event) Owner() EntityID { return e.owner }

// Kind names what the event means to its owner.
func (e *Event) Kind() string { return e.kind }

// Payload returns the data attached at schedule time.
func (e *Event) Payload() any { return e.payload }

// Pending reports whether the event is still queued.
func (e *Event) Pending() bool { return e.state == eventPending }

// Cancelled reports whether the event was withdrawn before firing.
func (e *Event) Cancelled() bool { return e.state == eventCancelled }

// before orders events by timestamp, then priority, then insertion sequence.
func (e *Event) before(o *Event) bool {
	if e.at != o.at {
		return e.at < o.at
	}
	if e.priority != o.priority {
		return e.priority < o.priority
	}
	return e.id < o.id
}
