package network

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/wipesim/wipesim/sim"
	"github.com/wipesim/wipesim/sim/channel"
	"github.com/wipesim/wipesim/sim/workload"
)

// MACMode selects how a node gains access to the medium.
type MACMode string

const (
	// MACScheduled transmits only inside a controller grant.
	MACScheduled MACMode = "scheduled"
	// MACAloha transmits as soon as a packet is queued.
	MACAloha MACMode = "aloha"
)

// ValidMACModes lists the accepted MAC names.
var ValidMACModes = map[MACMode]bool{MACScheduled: true, MACAloha: true}

// NodeConfig describes one radio node.
type NodeConfig struct {
	Name          string
	Position      r2.Vec
	MAC           MACMode
	QueueCapacity int
	TxPowerDBm    float64
	Resource      int
	// Dest receives every frame; sim.NoEntity broadcasts.
	Dest sim.EntityID
	// HeaderBits are added to every frame on air.
	HeaderBits int
	// Persistence is the aloha transmit probability per attempt; 0 means 1.
	Persistence float64
	// Backoff is the aloha wait after a declined attempt.
	Backoff sim.Time
}

// NodeStats counts what happened at a node.
type NodeStats struct {
	Enqueued       int
	Dropped        int
	Sent           int
	Delivered      int
	Failed         int
	Received       int
	BytesDelivered int64
}

// Node is a radio with a packet queue and a MAC. Its transmit loop is a
// sim.Process cycling idle → ready → transmitting.
type Node struct {
	sim.BaseEntity

	index  int
	cfg    NodeConfig
	medium *channel.Medium
	queue  *PacketQueue
	rng    *rand.Rand
	proc   *sim.Process

	queued  *sim.Signal
	granted *sim.Signal
	txDone  *sim.Signal

	grantUntil sim.Time
	holding    bool
	power      float64
	inFlight   *channel.Transmission
	lastSeq    map[sim.EntityID]int64

	stats    NodeStats
	dropWarn rate.Sometimes
}

// NewNode registers a node with s, attaches it to medium and starts its
// transmit loop. index selects the node's RNG stream.
func NewNode(s *sim.Simulator, medium *channel.Medium, index int, cfg NodeConfig) (*Node, error) {
	if cfg.Name == "" {
		cfg.Name = fmt.Sprintf("node-%d", index)
	}
	if cfg.MAC == "" {
		cfg.MAC = MACScheduled
	}
	if !ValidMACModes[cfg.MAC] {
		return nil, sim.ConfigErrorf("mac", "unknown mode %q; valid: scheduled, aloha", cfg.MAC)
	}
	if cfg.Persistence < 0 || cfg.Persistence > 1 {
		return nil, sim.ConfigErrorf("aloha_persistence", "must be in [0, 1], got %v", cfg.Persistence)
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = sim.Millisecond
	}
	n := &Node{
		BaseEntity: sim.NewBaseEntity(s, cfg.Name),
		index:      index,
		cfg:        cfg,
		medium:     medium,
		queue:      NewPacketQueue(cfg.QueueCapacity),
		rng:        s.RNG().ForSubsystem(sim.SubsystemNode(index)),
		queued:     sim.NewSignal(cfg.Name + ".queued"),
		granted:    sim.NewSignal(cfg.Name + ".granted"),
		txDone:     sim.NewSignal(cfg.Name + ".tx_done"),
		power:      cfg.TxPowerDBm,
		lastSeq:    make(map[sim.EntityID]int64),
		dropWarn:   rate.Sometimes{First: 3, Interval: 10 * time.Second},
	}
	if err := s.Register(n); err != nil {
		return nil, err
	}
	medium.Attach(n)
	proc, err := s.Spawn(n.ID(), cfg.Name+".mac", n.idle)
	if err != nil {
		return nil, fmt.Errorf("starting %s: %w", cfg.Name, err)
	}
	n.proc = proc
	return n, nil
}

// Index returns the node's position in its cell.
func (n *Node) Index() int { return n.index }

// Position implements channel.Radio.
func (n *Node) Position() r2.Vec { return n.cfg.Position }

// Config returns the effective configuration.
func (n *Node) Config() NodeConfig { return n.cfg }

// Queue exposes the packet queue.
func (n *Node) Queue() *PacketQueue { return n.queue }

// Stats returns a copy of the counters.
func (n *Node) Stats() NodeStats {
	st := n.stats
	st.Dropped = n.queue.Dropped()
	return st
}

// MAC returns the transmit loop process.
func (n *Node) MAC() *sim.Process { return n.proc }

// GrantUntil returns the end of the current or last grant.
func (n *Node) GrantUntil() sim.Time { return n.grantUntil }

// HoldsGrant reports whether the node is between a grant and its revoke.
func (n *Node) HoldsGrant() bool { return n.holding }

// LastSeq returns the highest sequence number decoded from origin.
func (n *Node) LastSeq(origin sim.EntityID) int64 { return n.lastSeq[origin] }

// OnEvent dispatches the node's events.
func (n *Node) OnEvent(s *sim.Simulator, ev *sim.Event) error {
	switch ev.Kind() {
	case KindEnqueue:
		return n.enqueue(s, ev.Payload())
	case KindGrant:
		g, ok := ev.Payload().(Grant)
		if !ok {
			return fmt.Errorf("grant payload is %T", ev.Payload())
		}
		n.grantUntil = g.Until
		n.holding = true
		n.power = n.cfg.TxPowerDBm
		if g.PowerDBm != nil {
			n.power = *g.PowerDBm
		}
		logrus.Debugf("[tick %07d] %s granted until %d", s.Now(), n.Name(), g.Until)
		_, err := n.granted.Trigger(s, g)
		return err
	case KindRevoke:
		n.grantUntil = s.Now()
		n.holding = false
		logrus.Debugf("[tick %07d] %s grant revoked", s.Now(), n.Name())
		return nil
	case channel.KindDelivered, channel.KindDeliveryFailed:
		return n.txOutcome(s, ev)
	case channel.KindReceive:
		d, ok := ev.Payload().(channel.Delivery)
		if !ok {
			return fmt.Errorf("receive payload is %T", ev.Payload())
		}
		return n.StepReceive(s, d)
	default:
		return fmt.Errorf("unexpected event %q", ev.Kind())
	}
}

func (n *Node) enqueue(s *sim.Simulator, payload any) error {
	var p *Packet
	switch v := payload.(type) {
	case *Packet:
		p = v
	case workload.Packet:
		p = &Packet{Origin: n.ID(), Seq: v.Seq, Bytes: v.Bytes, Created: s.Now()}
	default:
		return fmt.Errorf("enqueue payload is %T", payload)
	}
	if !n.queue.Enqueue(p) {
		n.dropWarn.Do(func() {
			logrus.Warnf("[tick %07d] %s queue full (%d), dropping packet %d", s.Now(), n.Name(), n.queue.Cap(), p.Seq)
		})
		return nil
	}
	n.stats.Enqueued++
	_, err := n.queued.Trigger(s, nil)
	return err
}

func (n *Node) txOutcome(s *sim.Simulator, ev *sim.Event) error {
	tx, ok := ev.Payload().(*channel.Transmission)
	if !ok {
		return fmt.Errorf("%s payload is %T", ev.Kind(), ev.Payload())
	}
	if tx != n.inFlight {
		// announcements and other frames we did not start
		return nil
	}
	n.inFlight = nil
	if ev.Kind() == channel.KindDelivered {
		n.stats.Delivered++
		if p, ok := tx.Payload.(*Packet); ok {
			n.stats.BytesDelivered += int64(p.Bytes)
		}
	} else {
		n.stats.Failed++
	}
	_, err := n.txDone.Trigger(s, tx)
	return err
}

// idle waits for a packet.
func (n *Node) idle(s *sim.Simulator, p *sim.Process, _ any) error {
	if n.queue.Len() == 0 {
		return p.Wait(n.queued, n.ready)
	}
	return n.ready(s, p, nil)
}

// ready waits for channel access and then transmits the head packet.
func (n *Node) ready(s *sim.Simulator, p *sim.Process, _ any) error {
	if n.queue.Len() == 0 {
		return p.Wait(n.queued, n.ready)
	}
	switch n.cfg.MAC {
	case MACScheduled:
		if !n.fitsGrant(s.Now()) {
			return p.Wait(n.granted, n.ready)
		}
	case MACAloha:
		if n.cfg.Persistence > 0 && n.cfg.Persistence < 1 && n.rng.Float64() >= n.cfg.Persistence {
			return p.Sleep(n.cfg.Backoff, n.ready)
		}
	}
	if err := n.StepTransmit(s); err != nil {
		return err
	}
	return p.Wait(n.txDone, n.idle)
}

// fitsGrant reports whether the head packet can be sent entirely before the
// grant ends.
func (n *Node) fitsGrant(now sim.Time) bool {
	head := n.queue.Peek()
	if head == nil || now >= n.grantUntil {
		return false
	}
	return now+n.medium.Airtime(n.frameBits(head)) <= n.grantUntil
}

func (n *Node) frameBits(p *Packet) int {
	return p.Bytes*8 + n.cfg.HeaderBits
}

// StepTransmit puts the head packet on the medium. The packet leaves the
// queue whatever the outcome.
func (n *Node) StepTransmit(s *sim.Simulator) error {
	head := n.queue.Dequeue()
	if head == nil {
		return fmt.Errorf("%s: transmit with empty queue", n.Name())
	}
	tx, err := n.medium.BeginTransmission(n.ID(), channel.TxRequest{
		Dest:     n.cfg.Dest,
		Resource: n.cfg.Resource,
		Payload:  head,
		Bits:     n.frameBits(head),
		PowerDBm: n.power,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", n.Name(), err)
	}
	n.inFlight = tx
	n.stats.Sent++
	return nil
}

// StepReceive records a decoded frame.
func (n *Node) StepReceive(_ *sim.Simulator, d channel.Delivery) error {
	n.stats.Received++
	if p, ok := d.Transmission.Payload.(*Packet); ok && p.Seq > n.lastSeq[p.Origin] {
		n.lastSeq[p.Origin] = p.Seq
	}
	return nil
}
