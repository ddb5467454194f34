package network

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/wipesim/wipesim/sim"
	"github.com/wipesim/wipesim/sim/channel"
)

// ControllerConfig describes the radio resource manager.
type ControllerConfig struct {
	Name     string
	Position r2.Vec
	// Guard is idle time after each grant before the next decision. The
	// default is one tick.
	Guard sim.Time
	// AnnounceAirtime, when positive, is spent broadcasting the assignment
	// on the medium before the grant starts.
	AnnounceAirtime sim.Time
	Resource        int
}

// GatewayStats counts frames the controller decoded from one origin.
type GatewayStats struct {
	Frames  int
	Bytes   int64
	LastSeq int64
	// Latency is the summed queueing plus airtime of decoded packets.
	Latency sim.Time
}

// Controller grants nodes exclusive channel access on request and signals
// a decision boundary when each grant is over. It is also the gateway
// nodes address their frames to.
type Controller struct {
	sim.BaseEntity

	cfg    ControllerConfig
	medium *channel.Medium
	nodes  map[sim.EntityID]Transmitter

	current  *Assignment
	received map[sim.EntityID]*GatewayStats
	assigned int
}

// NewController registers the controller and attaches it to medium.
func NewController(s *sim.Simulator, medium *channel.Medium, cfg ControllerConfig) (*Controller, error) {
	if cfg.Name == "" {
		cfg.Name = "controller"
	}
	if cfg.Guard <= 0 {
		cfg.Guard = 1
	}
	if cfg.AnnounceAirtime < 0 {
		return nil, sim.ConfigErrorf("announce_airtime", "must be non-negative, got %d", cfg.AnnounceAirtime)
	}
	c := &Controller{
		BaseEntity: sim.NewBaseEntity(s, cfg.Name),
		cfg:        cfg,
		medium:     medium,
		nodes:      make(map[sim.EntityID]Transmitter),
		received:   make(map[sim.EntityID]*GatewayStats),
	}
	if err := s.Register(c); err != nil {
		return nil, err
	}
	medium.Attach(c)
	return c, nil
}

// Manage puts node under this controller.
func (c *Controller) Manage(node Transmitter) { c.nodes[node.ID()] = node }

// Position implements channel.Radio.
func (c *Controller) Position() r2.Vec { return c.cfg.Position }

// Current returns the assignment in progress, or nil.
func (c *Controller) Current() *Assignment { return c.current }

// Assigned returns how many assignments were carried out.
func (c *Controller) Assigned() int { return c.assigned }

// Received returns the gateway counters for origin.
func (c *Controller) Received(origin sim.EntityID) GatewayStats {
	if st, ok := c.received[origin]; ok {
		return *st
	}
	return GatewayStats{}
}

// Cycle returns how long one assignment of duration d keeps the channel,
// announcement and guard included.
func (c *Controller) Cycle(d sim.Time) sim.Time {
	return c.cfg.AnnounceAirtime + d + c.cfg.Guard
}

func (c *Controller) OnEvent(s *sim.Simulator, ev *sim.Event) error {
	switch ev.Kind() {
	case KindAssign:
		a, ok := ev.Payload().(Assignment)
		if !ok {
			return fmt.Errorf("assign payload is %T", ev.Payload())
		}
		return c.assign(s, a)
	case KindAssignmentOver:
		c.current = nil
		s.SignalDecision(DecisionAssignmentOver)
		return nil
	case channel.KindReceive:
		d, ok := ev.Payload().(channel.Delivery)
		if !ok {
			return fmt.Errorf("receive payload is %T", ev.Payload())
		}
		return c.StepReceive(s, d)
	case channel.KindDelivered, channel.KindDeliveryFailed:
		// outcome of our own announcement
		return nil
	default:
		return fmt.Errorf("unexpected event %q", ev.Kind())
	}
}

func (c *Controller) assign(s *sim.Simulator, a Assignment) error {
	if _, ok := c.nodes[a.Node]; !ok {
		return fmt.Errorf("assignment for unmanaged node %d", a.Node)
	}
	if c.current != nil {
		return fmt.Errorf("assignment for node %d while node %d still holds the channel", a.Node, c.current.Node)
	}
	if a.Duration <= 0 {
		return fmt.Errorf("assignment duration must be positive, got %d", a.Duration)
	}
	c.current = &a
	c.assigned++

	lead := c.cfg.AnnounceAirtime
	if lead > 0 {
		if _, err := c.medium.BeginTransmission(c.ID(), channel.TxRequest{
			Resource: c.cfg.Resource,
			Payload:  a,
			Duration: lead,
		}); err != nil {
			return fmt.Errorf("announcing assignment: %w", err)
		}
	}
	grant := Grant{Until: s.Now() + lead + a.Duration, PowerDBm: a.PowerDBm}
	if _, err := s.Schedule(a.Node, lead, KindGrant, grant); err != nil {
		return err
	}
	if _, err := s.Schedule(a.Node, lead+a.Duration, KindRevoke, nil); err != nil {
		return err
	}
	logrus.Debugf("[tick %07d] %s assigns %s until %d", s.Now(), c.Name(), c.nodes[a.Node].Name(), grant.Until)
	_, err := s.Schedule(c.ID(), lead+a.Duration+c.cfg.Guard, KindAssignmentOver, nil)
	return err
}

// StepReceive counts a frame decoded at the gateway.
func (c *Controller) StepReceive(s *sim.Simulator, d channel.Delivery) error {
	p, ok := d.Transmission.Payload.(*Packet)
	if !ok {
		return nil
	}
	st, ok := c.received[p.Origin]
	if !ok {
		st = &GatewayStats{}
		c.received[p.Origin] = st
	}
	st.Frames++
	st.Bytes += int64(p.Bytes)
	st.Latency += s.Now() - p.Created
	if p.Seq > st.LastSeq {
		st.LastSeq = p.Seq
	}
	return nil
}
