package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Config holds the kernel-level settings of a Simulator.
type Config struct {
	// Seed keys every subsystem RNG.
	Seed int64
	// Horizon bounds Run. Zero means unbounded.
	Horizon Time
}

// Decision records an entity asking the driver to pause for an external action.
type Decision struct {
	Reason string
	Entity EntityID
	Time   Time
}

// Simulator holds the clock, the event queue and the registered entities.
// It is single-threaded: exactly one event callback runs at a time.
type Simulator struct {
	clock    Time
	horizon  Time
	queue    *EventQueue
	rng      *PartitionedRNG
	entities map[EntityID]Entity

	nextEventID  uint64
	nextEntityID EntityID
	executed     uint64

	current  *Event
	decision *Decision
	fault    *SimulationError
}

// NewSimulator creates a simulator at tick 0 with an empty queue.
func NewSimulator(cfg Config) *Simulator {
	s := &Simulator{}
	s.init(cfg)
	return s
}

func (s *Simulator) init(cfg Config) {
	s.clock = 0
	s.horizon = cfg.Horizon
	s.queue = NewEventQueue()
	s.rng = NewPartitionedRNG(NewSimulationKey(cfg.Seed))
	s.entities = make(map[EntityID]Entity)
	s.nextEventID = 0
	s.nextEntityID = 0
	s.executed = 0
	s.current = nil
	s.decision = nil
	s.fault = nil
}

// Reset drops every pending event and registered entity and rewinds the clock.
func (s *Simulator) Reset(cfg Config) {
	for ev := s.queue.PopNext(); ev != nil; ev = s.queue.PopNext() {
		ev.state = eventCancelled
	}
	s.init(cfg)
}

// Now returns the current simulated time.
func (s *Simulator) Now() Time { return s.clock }

// RNG returns the partitioned RNG keyed by the configured seed.
func (s *Simulator) RNG() *PartitionedRNG { return s.rng }

// Pending returns the number of queued events.
func (s *Simulator) Pending() int { return s.queue.Len() }

// Peek returns the next event to fire, or nil.
func (s *Simulator) Peek() *Event { return s.queue.Peek() }

// Executed returns how many callbacks have run.
func (s *Simulator) Executed() uint64 { return s.executed }

// Current returns the event whose callback is running, or nil between events.
func (s *Simulator) Current() *Event { return s.current }

// Err returns the fault that aborted the simulator, if any.
func (s *Simulator) Err() error {
	if s.fault == nil {
		return nil
	}
	return s.fault
}

// NextEntityID allocates a fresh entity ID.
func (s *Simulator) NextEntityID() EntityID {
	s.nextEntityID++
	return s.nextEntityID
}

// Register adds e so events can be dispatched to it.
func (s *Simulator) Register(e Entity) error {
	id := e.ID()
	if id == NoEntity {
		return fmt.Errorf("registering %q: entity id 0 is reserved", e.Name())
	}
	if existing, ok := s.entities[id]; ok {
		return fmt.Errorf("registering %q: id %d already taken by %q", e.Name(), id, existing.Name())
	}
	s.entities[id] = e
	return nil
}

// Entity looks up a registered entity.
func (s *Simulator) Entity(id EntityID) (Entity, bool) {
	e, ok := s.entities[id]
	return e, ok
}

// Schedule queues an event of the given kind for owner at now+delay.
func (s *Simulator) Schedule(owner EntityID, delay Time, kind string, payload any) (*Event, error) {
	return s.SchedulePriority(owner, delay, 0, kind, payload)
}

// SchedulePriority is Schedule with an explicit priority. Among events at the
// same timestamp a lower priority runs first; equal priorities run FIFO.
func (s *Simulator) SchedulePriority(owner EntityID, delay Time, priority int, kind string, payload any) (*Event, error) {
	if err := s.checkDelay(owner, delay); err != nil {
		return nil, err
	}
	return s.ScheduleAt(owner, s.clock+delay, priority, kind, payload)
}

// ScheduleAt queues an event at an absolute time, which must not be in the past.
func (s *Simulator) ScheduleAt(owner EntityID, at Time, priority int, kind string, payload any) (*Event, error) {
	e, ok := s.entities[owner]
	if !ok {
		return nil, &InvalidScheduleError{Owner: owner, Now: s.clock, At: at, Reason: "unknown entity"}
	}
	return s.push(owner, at, priority, kind, payload, e)
}

// ScheduleFunc queues a callback at now+delay. owner may be NoEntity; it is
// only used to attribute a failure.
func (s *Simulator) ScheduleFunc(owner EntityID, delay Time, fn HandlerFunc) (*Event, error) {
	if err := s.checkDelay(owner, delay); err != nil {
		return nil, err
	}
	if owner != NoEntity {
		if _, ok := s.entities[owner]; !ok {
			return nil, &InvalidScheduleError{Owner: owner, Now: s.clock, At: s.clock + delay, Reason: "unknown entity"}
		}
	}
	return s.push(owner, s.clock+delay, 0, "func", nil, fn)
}

// checkDelay rejects negative delays and delays that would push the
// timestamp past Forever.
func (s *Simulator) checkDelay(owner EntityID, delay Time) error {
	if delay < 0 {
		return &InvalidScheduleError{Owner: owner, Now: s.clock, At: s.clock + delay, Reason: fmt.Sprintf("negative delay %d", delay)}
	}
	if delay > Forever-s.clock {
		return &InvalidScheduleError{Owner: owner, Now: s.clock, At: Forever, Reason: fmt.Sprintf("delay %d overflows the clock", delay)}
	}
	return nil
}

func (s *Simulator) push(owner EntityID, at Time, priority int, kind string, payload any, h Handler) (*Event, error) {
	if s.fault != nil {
		return nil, &InvalidScheduleError{Owner: owner, Now: s.clock, At: at, Reason: "simulator aborted: " + s.fault.Error()}
	}
	if at < s.clock {
		return nil, &InvalidScheduleError{Owner: owner, Now: s.clock, At: at, Reason: "timestamp is in the past"}
	}
	s.nextEventID++
	ev := &Event{
		id:       s.nextEventID,
		at:       at,
		priority: priority,
		owner:    owner,
		kind:     kind,
		payload:  payload,
		handler:  h,
	}
	s.queue.Schedule(ev)
	return ev, nil
}

// Cancel withdraws a pending event so its callback never runs. It returns
// false when the event already started, already fired, or was cancelled.
func (s *Simulator) Cancel(ev *Event) bool {
	if ev == nil || ev.state != eventPending {
		return false
	}
	if !s.queue.Remove(ev) {
		return false
	}
	ev.state = eventCancelled
	return true
}

// SignalDecision marks the current instant as a decision boundary.
// RunUntilDecision returns after the running callback completes.
func (s *Simulator) SignalDecision(reason string) {
	d := &Decision{Reason: reason, Time: s.clock}
	if s.current != nil {
		d.Entity = s.current.owner
	}
	s.decision = d
}

// StepEvent executes exactly one event. It reports false when the queue is empty.
func (s *Simulator) StepEvent() (bool, error) {
	if s.fault != nil {
		return false, s.fault
	}
	ev := s.queue.PopNext()
	if ev == nil {
		return false, nil
	}
	return true, s.execute(ev)
}

// Run executes events until the queue drains or the horizon is passed.
func (s *Simulator) Run() error {
	limit := Forever
	if s.horizon > 0 {
		limit = s.horizon
	}
	err := s.run(nil, limit)
	logrus.Debugf("[tick %07d] Simulation ended", s.clock)
	return err
}

// RunUntil executes every event with timestamp <= t and then advances the
// clock to t.
func (s *Simulator) RunUntil(t Time) error {
	if t < s.clock {
		return &InvalidScheduleError{Owner: NoEntity, Now: s.clock, At: t, Reason: "run target is in the past"}
	}
	return s.run(nil, t)
}

// RunUntilCondition runs like RunUntil(limit) but also returns right after
// the first event that makes stop true. The clock then stays at that event.
func (s *Simulator) RunUntilCondition(stop func(*Simulator) bool, limit Time) error {
	if limit < s.clock {
		return &InvalidScheduleError{Owner: NoEntity, Now: s.clock, At: limit, Reason: "run limit is in the past"}
	}
	return s.run(stop, limit)
}

// RunUntilDecision runs until an entity calls SignalDecision or limit is
// reached. The returned decision is nil when the limit was reached first.
func (s *Simulator) RunUntilDecision(limit Time) (*Decision, error) {
	s.decision = nil
	err := s.RunUntilCondition(func(s *Simulator) bool { return s.decision != nil }, limit)
	d := s.decision
	s.decision = nil
	return d, err
}

func (s *Simulator) run(stop func(*Simulator) bool, limit Time) error {
	if s.fault != nil {
		return s.fault
	}
	for s.queue.Len() > 0 {
		if s.queue.Peek().at > limit {
			break
		}
		ev := s.queue.PopNext()
		if err := s.execute(ev); err != nil {
			return err
		}
		if stop != nil && stop(s) {
			return nil
		}
	}
	if limit != Forever && limit > s.clock {
		s.clock = limit
	}
	return nil
}

func (s *Simulator) execute(ev *Event) error {
	if ev.at < s.clock {
		panic(fmt.Sprintf("Clock went backwards: %d < %d", ev.at, s.clock))
	}
	s.clock = ev.at
	ev.state = eventRunning
	s.current = ev
	logrus.Debugf("[tick %07d] Executing %s for entity %d", s.clock, ev.kind, ev.owner)

	err := ev.handler.OnEvent(s, ev)

	ev.state = eventFired
	s.current = nil
	s.executed++
	if err != nil {
		s.fault = s.wrapFault(ev, err)
		logrus.Errorf("[tick %07d] %v", s.clock, s.fault)
		return s.fault
	}
	return nil
}

func (s *Simulator) wrapFault(ev *Event, err error) *SimulationError {
	if se, ok := err.(*SimulationError); ok {
		return se
	}
	fault := &SimulationError{EntityID: ev.owner, Time: ev.at, EventKind: ev.kind, Err: err}
	if e, ok := s.entities[ev.owner]; ok {
		fault.Entity = e.Name()
	}
	return fault
}
