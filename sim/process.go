package sim

import "fmt"

// AwaitKind says what a suspended Process is blocked on.
type AwaitKind uint8

const (
	AwaitNothing AwaitKind = iota
	AwaitTimer
	AwaitSignal
	AwaitResource
)

func (k AwaitKind) String() string {
	switch k {
	case AwaitTimer:
		return "timer"
	case AwaitSignal:
		return "signal"
	case AwaitResource:
		return "resource"
	default:
		return "nothing"
	}
}

// Awaiting is the suspension marker of a Process.
type Awaiting struct {
	Kind     AwaitKind
	Signal   *Signal
	Resource *Resource
	// Until is the wake-up time for timers and the timeout for WaitTimeout, -1 otherwise.
	Until Time
}

// Timeout is the value a process resumes with when WaitTimeout expires.
type Timeout struct{}

// ResumeFunc is the continuation of a suspended process. value is what woke
// it: the signal value, the acquired *Resource, Timeout{} or nil after Sleep.
type ResumeFunc func(s *Simulator, p *Process, value any) error

const kindResume = "process.resume"

// Process is a cooperative activity written as an explicit state machine:
// at every suspension point it records what it awaits and the continuation
// to run when that happens. Resumption always goes through the event queue.
type Process struct {
	sim   *Simulator
	owner EntityID
	name  string

	await   Awaiting
	next    ResumeFunc
	pending *Event // scheduled wake-up
	timeout *Event // WaitTimeout deadline
	holding bool   // a resource grant is in flight
	done    bool
}

// Spawn creates a process owned by owner whose first step runs at the current time.
func (s *Simulator) Spawn(owner EntityID, name string, start ResumeFunc) (*Process, error) {
	p := &Process{sim: s, owner: owner, name: name}
	if err := p.Sleep(0, start); err != nil {
		return nil, err
	}
	return p, nil
}

// Name returns the process label.
func (p *Process) Name() string { return p.name }

// Owner returns the entity failures are attributed to.
func (p *Process) Owner() EntityID { return p.owner }

// Awaiting returns the current suspension marker.
func (p *Process) Awaiting() Awaiting { return p.await }

// Suspended reports whether the process waits on something.
func (p *Process) Suspended() bool { return p.await.Kind != AwaitNothing }

// Done reports whether the process exited.
func (p *Process) Done() bool { return p.done }

func (p *Process) suspend(a Awaiting, next ResumeFunc) error {
	if p.done {
		return fmt.Errorf("process %s: already exited", p.name)
	}
	if p.await.Kind != AwaitNothing {
		return fmt.Errorf("process %s: already awaiting %s", p.name, p.await.Kind)
	}
	p.await = a
	p.next = next
	return nil
}

func (p *Process) wakeAfter(delay Time, value any) (*Event, error) {
	if delay < 0 {
		return nil, &InvalidScheduleError{Owner: p.owner, Now: p.sim.clock, At: p.sim.clock + delay, Reason: fmt.Sprintf("negative delay %d", delay)}
	}
	return p.sim.push(p.owner, p.sim.clock+delay, 0, kindResume, value, HandlerFunc(func(s *Simulator, ev *Event) error {
		return p.wake(s, ev.payload)
	}))
}

// Sleep suspends the process for d ticks.
func (p *Process) Sleep(d Time, next ResumeFunc) error {
	if err := p.suspend(Awaiting{Kind: AwaitTimer, Until: p.sim.clock + d}, next); err != nil {
		return err
	}
	ev, err := p.wakeAfter(d, nil)
	if err != nil {
		p.await, p.next = Awaiting{}, nil
		return err
	}
	p.pending = ev
	return nil
}

// Wait suspends the process until sig is triggered.
func (p *Process) Wait(sig *Signal, next ResumeFunc) error {
	if err := p.suspend(Awaiting{Kind: AwaitSignal, Signal: sig, Until: -1}, next); err != nil {
		return err
	}
	sig.waiters = append(sig.waiters, p)
	return nil
}

// WaitTimeout waits for sig for at most d ticks. On expiry the process
// resumes with Timeout{} and is no longer a waiter of sig.
func (p *Process) WaitTimeout(sig *Signal, d Time, next ResumeFunc) error {
	if err := p.suspend(Awaiting{Kind: AwaitSignal, Signal: sig, Until: p.sim.clock + d}, next); err != nil {
		return err
	}
	ev, err := p.wakeAfter(d, Timeout{})
	if err != nil {
		p.await, p.next = Awaiting{}, nil
		return err
	}
	p.timeout = ev
	sig.waiters = append(sig.waiters, p)
	return nil
}

// Acquire suspends the process until it holds one unit of r.
func (p *Process) Acquire(r *Resource, next ResumeFunc) error {
	if err := p.suspend(Awaiting{Kind: AwaitResource, Resource: r, Until: -1}, next); err != nil {
		return err
	}
	if r.inUse < r.capacity {
		r.inUse++
		if err := r.grant(p); err != nil {
			r.inUse--
			p.await, p.next = Awaiting{}, nil
			return err
		}
		return nil
	}
	r.waiters = append(r.waiters, p)
	return nil
}

// Interrupt withdraws whatever the process waits on without resuming it.
// It reports whether the process was suspended.
func (p *Process) Interrupt() bool {
	if p.await.Kind == AwaitNothing {
		return false
	}
	p.sim.Cancel(p.pending)
	p.sim.Cancel(p.timeout)
	switch p.await.Kind {
	case AwaitSignal:
		p.await.Signal.remove(p)
	case AwaitResource:
		r := p.await.Resource
		if p.holding {
			// the unit was already handed over; pass it on
			_ = r.Release(p.sim)
		} else {
			r.remove(p)
		}
	}
	p.clear()
	return true
}

// Exit interrupts the process and marks it finished.
func (p *Process) Exit() {
	p.Interrupt()
	p.done = true
}

func (p *Process) clear() {
	p.await = Awaiting{}
	p.next = nil
	p.pending = nil
	p.timeout = nil
	p.holding = false
}

func (p *Process) wake(s *Simulator, value any) error {
	if p.await.Kind == AwaitSignal {
		p.await.Signal.remove(p)
	}
	// the firing event is running and ignores the cancel
	s.Cancel(p.pending)
	s.Cancel(p.timeout)
	next := p.next
	p.clear()
	if next == nil || p.done {
		return nil
	}
	return next(s, p, value)
}

// Signal wakes every waiting process when triggered. Waiters resume in the
// order they started waiting.
type Signal struct {
	name    string
	waiters []*Process
}

// NewSignal creates a named signal.
func NewSignal(name string) *Signal {
	return &Signal{name: name}
}

// Name returns the signal label.
func (g *Signal) Name() string { return g.name }

// Waiting returns the number of processes waiting that have not yet been triggered.
func (g *Signal) Waiting() int { return len(g.waiters) }

// Trigger schedules the resumption of every current waiter at the current
// time with value. It returns how many processes were woken. On error no
// waiter is woken and all of them keep waiting.
func (g *Signal) Trigger(s *Simulator, value any) (int, error) {
	wakes := make([]*Event, 0, len(g.waiters))
	for _, p := range g.waiters {
		ev, err := p.wakeAfter(0, value)
		if err != nil {
			for _, scheduled := range wakes {
				s.Cancel(scheduled)
			}
			return 0, fmt.Errorf("triggering %s: %w", g.name, err)
		}
		wakes = append(wakes, ev)
	}
	waiters := g.waiters
	g.waiters = nil
	for i, p := range waiters {
		s.Cancel(p.pending)
		p.pending = wakes[i]
	}
	return len(waiters), nil
}

func (g *Signal) remove(p *Process) {
	for i, w := range g.waiters {
		if w == p {
			g.waiters = append(g.waiters[:i], g.waiters[i+1:]...)
			return
		}
	}
}

// Resource is a pool of identical units. Waiters are served FIFO and every
// grant is delivered as an event at the current time.
type Resource struct {
	name     string
	capacity int
	inUse    int
	waiters  []*Process
}

// NewResource creates a resource with the given number of units.
func NewResource(name string, capacity int) *Resource {
	if capacity < 1 {
		capacity = 1
	}
	return &Resource{name: name, capacity: capacity}
}

// Name returns the resource label.
func (r *Resource) Name() string { return r.name }

// Capacity returns the number of units.
func (r *Resource) Capacity() int { return r.capacity }

// InUse returns the number of held or granted units.
func (r *Resource) InUse() int { return r.inUse }

// Waiting returns the number of queued processes.
func (r *Resource) Waiting() int { return len(r.waiters) }

// Release returns one unit. If processes are queued the unit passes to the first.
func (r *Resource) Release(s *Simulator) error {
	if r.inUse == 0 {
		return fmt.Errorf("releasing %s: no unit in use", r.name)
	}
	if len(r.waiters) == 0 {
		r.inUse--
		return nil
	}
	p := r.waiters[0]
	if err := r.grant(p); err != nil {
		return err
	}
	r.waiters = r.waiters[1:]
	return nil
}

func (r *Resource) grant(p *Process) error {
	ev, err := p.wakeAfter(0, r)
	if err != nil {
		return fmt.Errorf("granting %s: %w", r.name, err)
	}
	p.pending = ev
	p.holding = true
	return nil
}

func (r *Resource) remove(p *Process) {
	for i, w := range r.waiters {
		if w == p {
			r.waiters = append(r.waiters[:i], r.waiters[i+1:]...)
			return
		}
	}
}
