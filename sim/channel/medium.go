// Package channel models the shared wireless medium: active transmissions
// per frequency resource, the interference policy that decides which of
// them are corrupted, and the events that report outcomes to senders and
// receivers.
package channel

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/wipesim/wipesim/sim"
)

// Event kinds emitted by the medium.
const (
	KindTxEnd          = "channel.tx_end"
	KindDelivered      = "delivered"
	KindDeliveryFailed = "delivery_failed"
	KindReceive        = "receive"
)

// ErrUnknownResource is returned for a resource index outside the medium.
var ErrUnknownResource = errors.New("unknown frequency resource")

// Radio is anything attached to the medium that can receive.
type Radio interface {
	ID() sim.EntityID
	Position() r2.Vec
}

// Config describes the medium.
type Config struct {
	FrequencyHz       float64
	BandwidthHz       float64
	Resources         int
	BitrateBps        float64
	NoiseTemperatureC float64
	Policy            InterferencePolicy
	Attenuation       AttenuationModel
}

// Defaults follow a 2.4 GHz, 22 MHz channel at room temperature.
const (
	DefaultFrequencyHz       = 2.4e9
	DefaultBandwidthHz       = 22e6
	DefaultBitrateBps        = 1e6
	DefaultNoiseTemperatureC = 20.0
)

func (c *Config) applyDefaults() {
	if c.FrequencyHz == 0 {
		c.FrequencyHz = DefaultFrequencyHz
	}
	if c.BandwidthHz == 0 {
		c.BandwidthHz = DefaultBandwidthHz
	}
	if c.Resources == 0 {
		c.Resources = 1
	}
	if c.BitrateBps == 0 {
		c.BitrateBps = DefaultBitrateBps
	}
	if c.NoiseTemperatureC == 0 {
		c.NoiseTemperatureC = DefaultNoiseTemperatureC
	}
	if c.Policy == nil {
		c.Policy = CollisionPolicy{}
	}
	if c.Attenuation == nil {
		c.Attenuation = FSPL{FrequencyHz: c.FrequencyHz}
	}
}

// Validate checks the numeric fields after defaults are applied.
func (c Config) Validate() error {
	if c.FrequencyHz < 0 || math.IsNaN(c.FrequencyHz) {
		return sim.ConfigErrorf("frequency", "must be positive, got %v", c.FrequencyHz)
	}
	if c.BandwidthHz < 0 || math.IsNaN(c.BandwidthHz) {
		return sim.ConfigErrorf("channel_bandwidth", "must be positive, got %v", c.BandwidthHz)
	}
	if c.Resources < 0 {
		return sim.ConfigErrorf("resources", "must be positive, got %d", c.Resources)
	}
	if c.BitrateBps < 0 || math.IsNaN(c.BitrateBps) {
		return sim.ConfigErrorf("bitrate", "must be positive, got %v", c.BitrateBps)
	}
	return nil
}

// SenderStats counts the outcomes of one sender's transmissions.
type SenderStats struct {
	Transmissions int
	Delivered     int
	Failed        int
	BitsDelivered int64
	Airtime       sim.Time
}

// Medium is the shared channel. It is an entity: transmission ends are
// events it schedules on itself.
type Medium struct {
	sim.BaseEntity

	s   *sim.Simulator
	cfg Config

	active    [][]*Transmission
	busyUntil []sim.Time
	busy      sim.Time

	radios    map[sim.EntityID]Radio
	order     []sim.EntityID
	observers []func(*Transmission)

	stats      map[sim.EntityID]*SenderStats
	nextTxID   uint64
	collisions int
	noiseMW    float64
}

// NewMedium validates cfg, fills defaults and registers the medium with s.
func NewMedium(s *sim.Simulator, cfg Config) (*Medium, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	m := &Medium{
		BaseEntity: sim.NewBaseEntity(s, "medium"),
		s:          s,
		cfg:        cfg,
		active:     make([][]*Transmission, cfg.Resources),
		busyUntil:  make([]sim.Time, cfg.Resources),
		radios:     make(map[sim.EntityID]Radio),
		stats:      make(map[sim.EntityID]*SenderStats),
		noiseMW:    DBmToMilliwatt(ThermalNoiseDBm(cfg.BandwidthHz, cfg.NoiseTemperatureC)),
	}
	if err := s.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Config returns the effective configuration.
func (m *Medium) Config() Config { return m.cfg }

// Attach registers a radio as a potential receiver.
func (m *Medium) Attach(r Radio) {
	if _, ok := m.radios[r.ID()]; ok {
		return
	}
	m.radios[r.ID()] = r
	m.order = append(m.order, r.ID())
	sort.Slice(m.order, func(i, j int) bool { return m.order[i] < m.order[j] })
}

// Observe registers fn to be called at every transmission end, after the
// outcome is known.
func (m *Medium) Observe(fn func(*Transmission)) {
	m.observers = append(m.observers, fn)
}

// Airtime returns the ticks needed to send bits at the medium bitrate,
// rounded up and at least one tick.
func (m *Medium) Airtime(bits int) sim.Time {
	ticks := sim.Time(math.Ceil(float64(bits) / m.cfg.BitrateBps * float64(sim.Second)))
	if ticks < 1 {
		return 1
	}
	return ticks
}

// BeginTransmission starts a transmission now. Every transmission on the
// same resource that has not ended yet overlaps it. The end is scheduled
// on the medium itself.
func (m *Medium) BeginTransmission(sender sim.EntityID, req TxRequest) (*Transmission, error) {
	if req.Resource < 0 || req.Resource >= m.cfg.Resources {
		return nil, fmt.Errorf("resource %d of %d: %w", req.Resource, m.cfg.Resources, ErrUnknownResource)
	}
	duration := req.Duration
	if duration == 0 {
		if req.Bits <= 0 {
			return nil, &sim.InvalidScheduleError{Owner: sender, Now: m.s.Now(), At: m.s.Now(), Reason: "transmission has neither bits nor duration"}
		}
		duration = m.Airtime(req.Bits)
	}
	if duration < 0 {
		return nil, &sim.InvalidScheduleError{Owner: sender, Now: m.s.Now(), At: m.s.Now() + duration, Reason: fmt.Sprintf("negative transmission duration %d", duration)}
	}

	now := m.s.Now()
	m.nextTxID++
	tx := &Transmission{
		ID:       m.nextTxID,
		Sender:   sender,
		Dest:     req.Dest,
		Resource: req.Resource,
		Payload:  req.Payload,
		Bits:     req.Bits,
		PowerDBm: req.PowerDBm,
		Start:    now,
		End:      now + duration,
	}
	if r, ok := m.radios[sender]; ok {
		tx.origin = r.Position()
	}

	live := m.active[req.Resource][:0]
	for _, other := range m.active[req.Resource] {
		if other.End <= now {
			continue
		}
		live = append(live, other)
		other.overlaps = append(other.overlaps, tx)
		tx.overlaps = append(tx.overlaps, other)
	}
	m.active[req.Resource] = append(live, tx)
	m.markBusy(req.Resource, now, tx.End)

	st := m.senderStats(sender)
	st.Transmissions++
	st.Airtime += duration

	if _, err := m.s.Schedule(m.ID(), duration, KindTxEnd, tx); err != nil {
		return nil, fmt.Errorf("scheduling end of transmission %d: %w", tx.ID, err)
	}
	logrus.Debugf("[tick %07d] tx %d from %d on resource %d until %d (%d overlaps)", now, tx.ID, sender, tx.Resource, tx.End, len(tx.overlaps))
	return tx, nil
}

func (m *Medium) markBusy(resource int, start, end sim.Time) {
	until := m.busyUntil[resource]
	switch {
	case start >= until:
		m.busy += end - start
	case end > until:
		m.busy += end - until
	default:
		return
	}
	m.busyUntil[resource] = end
}

// OnEvent handles the medium's own transmission-end events.
func (m *Medium) OnEvent(s *sim.Simulator, ev *sim.Event) error {
	if ev.Kind() != KindTxEnd {
		return fmt.Errorf("medium: unexpected event %q", ev.Kind())
	}
	tx, ok := ev.Payload().(*Transmission)
	if !ok {
		return fmt.Errorf("medium: tx end payload is %T", ev.Payload())
	}
	return m.endTransmission(s, tx)
}

func (m *Medium) endTransmission(s *sim.Simulator, tx *Transmission) error {
	m.removeActive(tx)

	var receivers []Delivery
	destDecoded := false
	destAttached := false
	for _, id := range m.order {
		if id == tx.Sender {
			continue
		}
		if tx.Dest != sim.NoEntity && id != tx.Dest {
			continue
		}
		rx := m.radios[id]
		if id == tx.Dest {
			destAttached = true
		}
		if m.transmittingDuring(id, tx) || m.cfg.Policy.Corrupted(m, tx, rx) {
			continue
		}
		if id == tx.Dest {
			destDecoded = true
		}
		receivers = append(receivers, Delivery{Transmission: tx, Receiver: id, SINRDB: m.deliverySINR(tx, rx)})
	}

	if destAttached {
		tx.Corrupted = !destDecoded
	} else {
		tx.Corrupted = m.cfg.Policy.Corrupted(m, tx, nil)
	}

	st := m.senderStats(tx.Sender)
	kind := KindDelivered
	if tx.Corrupted {
		kind = KindDeliveryFailed
		st.Failed++
		if tx.Collided() {
			m.collisions++
		}
		logrus.Debugf("[tick %07d] tx %d from %d corrupted (%d overlaps)", s.Now(), tx.ID, tx.Sender, len(tx.overlaps))
	} else {
		st.Delivered++
		st.BitsDelivered += int64(tx.Bits)
	}

	for _, fn := range m.observers {
		fn(tx)
	}
	if _, ok := s.Entity(tx.Sender); ok {
		if _, err := s.Schedule(tx.Sender, 0, kind, tx); err != nil {
			return err
		}
	}
	for _, d := range receivers {
		if _, err := s.Schedule(d.Receiver, 0, KindReceive, d); err != nil {
			return err
		}
	}
	return nil
}

func (m *Medium) removeActive(tx *Transmission) {
	list := m.active[tx.Resource]
	for i, t := range list {
		if t == tx {
			m.active[tx.Resource] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// transmittingDuring reports whether radio id sent something that overlapped
// tx. Radios are half-duplex.
func (m *Medium) transmittingDuring(id sim.EntityID, tx *Transmission) bool {
	for _, o := range tx.overlaps {
		if o.Sender == id {
			return true
		}
	}
	return false
}

func (m *Medium) deliverySINR(tx *Transmission, rx Radio) float64 {
	if _, ok := m.cfg.Policy.(SINRPolicy); !ok {
		return math.Inf(1)
	}
	return m.SINR(tx, rx)
}

// ReceivedPowerDBm is the power of tx at rx after attenuation.
func (m *Medium) ReceivedPowerDBm(tx *Transmission, rx Radio) float64 {
	return tx.PowerDBm - m.cfg.Attenuation.Attenuation(tx.origin, rx.Position())
}

// SINR returns the signal to interference plus noise ratio of tx at rx in
// dB. Every overlapping transmission counts as interference for the whole
// frame.
func (m *Medium) SINR(tx *Transmission, rx Radio) float64 {
	interference := m.noiseMW
	for _, o := range tx.overlaps {
		interference += DBmToMilliwatt(m.ReceivedPowerDBm(o, rx))
	}
	return m.ReceivedPowerDBm(tx, rx) - MilliwattToDBm(interference)
}

// Active returns the transmissions currently registered on a resource.
func (m *Medium) Active(resource int) []*Transmission {
	if resource < 0 || resource >= len(m.active) {
		return nil
	}
	out := make([]*Transmission, 0, len(m.active[resource]))
	for _, tx := range m.active[resource] {
		if tx.End > m.s.Now() {
			out = append(out, tx)
		}
	}
	return out
}

// Stats returns a copy of the counters for sender.
func (m *Medium) Stats(sender sim.EntityID) SenderStats {
	if st, ok := m.stats[sender]; ok {
		return *st
	}
	return SenderStats{}
}

// BusyTime returns the ticks during which a resource carries at least one
// transmission, summed over resources. Airtime is booked when a
// transmission starts.
func (m *Medium) BusyTime() sim.Time { return m.busy }

// Collisions returns the number of transmissions corrupted after overlapping.
func (m *Medium) Collisions() int { return m.collisions }

func (m *Medium) senderStats(id sim.EntityID) *SenderStats {
	st, ok := m.stats[id]
	if !ok {
		st = &SenderStats{}
		m.stats[id] = st
	}
	return st
}
