package channel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/wipesim/wipesim/sim"
)

type outcome struct {
	kind string
	at   sim.Time
	tx   *Transmission
}

// station is a radio that records what the medium tells it.
type station struct {
	sim.BaseEntity
	pos      r2.Vec
	outcomes []outcome
	received []Delivery
}

func newStation(t *testing.T, s *sim.Simulator, m *Medium, name string, pos r2.Vec) *station {
	t.Helper()
	st := &station{BaseEntity: sim.NewBaseEntity(s, name), pos: pos}
	require.NoError(t, s.Register(st))
	m.Attach(st)
	return st
}

func (st *station) Position() r2.Vec { return st.pos }

func (st *station) OnEvent(s *sim.Simulator, ev *sim.Event) error {
	switch ev.Kind() {
	case KindReceive:
		st.received = append(st.received, ev.Payload().(Delivery))
	default:
		st.outcomes = append(st.outcomes, outcome{kind: ev.Kind(), at: s.Now(), tx: ev.Payload().(*Transmission)})
	}
	return nil
}

// transmitAt schedules st to start a transmission at the given time.
func transmitAt(t *testing.T, s *sim.Simulator, m *Medium, st *station, at sim.Time, req TxRequest) {
	t.Helper()
	_, err := s.ScheduleFunc(st.ID(), at-s.Now(), func(s *sim.Simulator, _ *sim.Event) error {
		_, err := m.BeginTransmission(st.ID(), req)
		return err
	})
	require.NoError(t, err)
}

func TestMedium_OverlappingTransmissionsBothFail(t *testing.T) {
	// GIVEN node A transmitting [0,5) and node B transmitting [2,5) on resource 0
	s := sim.NewSimulator(sim.Config{Seed: 42})
	m, err := NewMedium(s, Config{})
	require.NoError(t, err)
	a := newStation(t, s, m, "A", r2.Vec{})
	b := newStation(t, s, m, "B", r2.Vec{X: 10})
	transmitAt(t, s, m, a, 0, TxRequest{Duration: 5, Bits: 8})
	transmitAt(t, s, m, b, 2, TxRequest{Duration: 3, Bits: 8})

	// WHEN the simulation runs
	require.NoError(t, s.Run())

	// THEN both are corrupted and each sender gets delivery_failed at t=5
	require.Len(t, a.outcomes, 1)
	require.Len(t, b.outcomes, 1)
	assert.Equal(t, outcome{kind: KindDeliveryFailed, at: 5, tx: a.outcomes[0].tx}, a.outcomes[0])
	assert.Equal(t, outcome{kind: KindDeliveryFailed, at: 5, tx: b.outcomes[0].tx}, b.outcomes[0])
	assert.True(t, a.outcomes[0].tx.Corrupted)
	assert.True(t, b.outcomes[0].tx.Corrupted)
	assert.Empty(t, a.received)
	assert.Empty(t, b.received)
	assert.Equal(t, 2, m.Collisions())
	assert.Equal(t, SenderStats{Transmissions: 1, Failed: 1, Airtime: 5}, m.Stats(a.ID()))
}

func TestMedium_SimultaneousStartsOverlap(t *testing.T) {
	s := sim.NewSimulator(sim.Config{})
	m, err := NewMedium(s, Config{})
	require.NoError(t, err)
	a := newStation(t, s, m, "A", r2.Vec{})
	b := newStation(t, s, m, "B", r2.Vec{X: 1})
	transmitAt(t, s, m, a, 3, TxRequest{Duration: 4, Bits: 8})
	transmitAt(t, s, m, b, 3, TxRequest{Duration: 4, Bits: 8})

	require.NoError(t, s.Run())

	require.Len(t, a.outcomes, 1)
	require.Len(t, b.outcomes, 1)
	assert.Equal(t, KindDeliveryFailed, a.outcomes[0].kind)
	assert.Equal(t, KindDeliveryFailed, b.outcomes[0].kind)
	assert.Same(t, b.outcomes[0].tx, a.outcomes[0].tx.Overlaps()[0])
}

func TestMedium_BackToBackDoesNotOverlap(t *testing.T) {
	// GIVEN B starting exactly when A ends
	s := sim.NewSimulator(sim.Config{})
	m, err := NewMedium(s, Config{})
	require.NoError(t, err)
	a := newStation(t, s, m, "A", r2.Vec{})
	b := newStation(t, s, m, "B", r2.Vec{X: 1})
	c := newStation(t, s, m, "C", r2.Vec{Y: 1})
	transmitAt(t, s, m, a, 0, TxRequest{Duration: 5, Bits: 16})
	transmitAt(t, s, m, b, 5, TxRequest{Duration: 5, Bits: 8})

	// WHEN the simulation runs
	require.NoError(t, s.Run())

	// THEN both are delivered and every other radio receives them
	assert.Equal(t, KindDelivered, a.outcomes[0].kind)
	assert.Equal(t, KindDelivered, b.outcomes[0].kind)
	assert.Len(t, c.received, 2)
	assert.Len(t, a.received, 1)
	assert.True(t, math.IsInf(c.received[0].SINRDB, 1))
	assert.Equal(t, int64(16), m.Stats(a.ID()).BitsDelivered)
	assert.Equal(t, 0, m.Collisions())
	assert.Equal(t, sim.Time(10), m.BusyTime())
}

func TestMedium_SeparateResourcesDoNotInterfere(t *testing.T) {
	s := sim.NewSimulator(sim.Config{})
	m, err := NewMedium(s, Config{Resources: 2})
	require.NoError(t, err)
	a := newStation(t, s, m, "A", r2.Vec{})
	b := newStation(t, s, m, "B", r2.Vec{X: 1})
	transmitAt(t, s, m, a, 0, TxRequest{Resource: 0, Duration: 5, Bits: 8})
	transmitAt(t, s, m, b, 1, TxRequest{Resource: 1, Duration: 5, Bits: 8})

	require.NoError(t, s.Run())

	assert.Equal(t, KindDelivered, a.outcomes[0].kind)
	assert.Equal(t, KindDelivered, b.outcomes[0].kind)
	assert.Equal(t, sim.Time(10), m.BusyTime())
}

func TestMedium_UnicastOnlyReachesDestination(t *testing.T) {
	s := sim.NewSimulator(sim.Config{})
	m, err := NewMedium(s, Config{})
	require.NoError(t, err)
	a := newStation(t, s, m, "A", r2.Vec{})
	b := newStation(t, s, m, "B", r2.Vec{X: 1})
	c := newStation(t, s, m, "C", r2.Vec{X: 2})
	transmitAt(t, s, m, a, 0, TxRequest{Dest: b.ID(), Duration: 3, Bits: 8, Payload: "hello"})

	require.NoError(t, s.Run())

	require.Len(t, b.received, 1)
	assert.Equal(t, "hello", b.received[0].Transmission.Payload)
	assert.Equal(t, b.ID(), b.received[0].Receiver)
	assert.Empty(t, c.received)
	assert.Equal(t, KindDelivered, a.outcomes[0].kind)
}

func TestMedium_SINRCaptureFavoursNearSender(t *testing.T) {
	// GIVEN a receiver 1 m from A and 1 km from B, both transmitting to it at once
	s := sim.NewSimulator(sim.Config{})
	m, err := NewMedium(s, Config{Policy: SINRPolicy{ThresholdDB: 10}})
	require.NoError(t, err)
	rx := newStation(t, s, m, "rx", r2.Vec{})
	a := newStation(t, s, m, "A", r2.Vec{X: 1})
	b := newStation(t, s, m, "B", r2.Vec{X: 1000})
	transmitAt(t, s, m, a, 0, TxRequest{Dest: rx.ID(), Duration: 10, Bits: 8, PowerDBm: 0})
	transmitAt(t, s, m, b, 0, TxRequest{Dest: rx.ID(), Duration: 10, Bits: 8, PowerDBm: 0})

	// WHEN the simulation runs
	require.NoError(t, s.Run())

	// THEN the strong signal survives the collision and the weak one does not
	assert.Equal(t, KindDelivered, a.outcomes[0].kind)
	assert.Equal(t, KindDeliveryFailed, b.outcomes[0].kind)
	require.Len(t, rx.received, 1)
	assert.Equal(t, a.ID(), rx.received[0].Transmission.Sender)
	assert.Greater(t, rx.received[0].SINRDB, 10.0)
}

func TestMedium_HalfDuplexReceiverMissesFrames(t *testing.T) {
	s := sim.NewSimulator(sim.Config{})
	m, err := NewMedium(s, Config{Policy: SINRPolicy{ThresholdDB: -100}, Resources: 1})
	require.NoError(t, err)
	a := newStation(t, s, m, "A", r2.Vec{})
	b := newStation(t, s, m, "B", r2.Vec{X: 1})
	transmitAt(t, s, m, a, 0, TxRequest{Dest: b.ID(), Duration: 10, Bits: 8})
	transmitAt(t, s, m, b, 2, TxRequest{Duration: 2, Bits: 8})

	require.NoError(t, s.Run())

	assert.Empty(t, b.received)
	assert.Equal(t, KindDeliveryFailed, a.outcomes[0].kind)
}

func TestMedium_RejectsBadRequests(t *testing.T) {
	s := sim.NewSimulator(sim.Config{})
	m, err := NewMedium(s, Config{})
	require.NoError(t, err)

	_, err = m.BeginTransmission(sim.NoEntity, TxRequest{Resource: 3, Duration: 1})
	assert.ErrorIs(t, err, ErrUnknownResource)

	_, err = m.BeginTransmission(sim.NoEntity, TxRequest{Duration: -2})
	assert.ErrorIs(t, err, sim.ErrInvalidSchedule)

	_, err = m.BeginTransmission(sim.NoEntity, TxRequest{})
	assert.ErrorIs(t, err, sim.ErrInvalidSchedule)
}

func TestMedium_AirtimeFromBits(t *testing.T) {
	s := sim.NewSimulator(sim.Config{})
	m, err := NewMedium(s, Config{BitrateBps: 1e6})
	require.NoError(t, err)

	assert.Equal(t, sim.Time(1000), m.Airtime(1000))
	assert.Equal(t, sim.Time(1), m.Airtime(0))

	tx, err := m.BeginTransmission(sim.NoEntity, TxRequest{Bits: 250})
	require.NoError(t, err)
	assert.Equal(t, sim.Time(250), tx.Duration())
	assert.Len(t, m.Active(0), 1)
}

func TestMedium_ObserversSeeOutcome(t *testing.T) {
	s := sim.NewSimulator(sim.Config{})
	m, err := NewMedium(s, Config{})
	require.NoError(t, err)
	var seen []bool
	m.Observe(func(tx *Transmission) { seen = append(seen, tx.Corrupted) })
	a := newStation(t, s, m, "A", r2.Vec{})
	transmitAt(t, s, m, a, 0, TxRequest{Duration: 2, Bits: 8})

	require.NoError(t, s.Run())

	assert.Equal(t, []bool{false}, seen)
}

func TestConfig_ValidateRejectsNegatives(t *testing.T) {
	s := sim.NewSimulator(sim.Config{})
	_, err := NewMedium(s, Config{BandwidthHz: -1})
	assert.ErrorIs(t, err, sim.ErrConfiguration)
}

func TestTransmission_OverlapsWith(t *testing.T) {
	a := &Transmission{Start: 0, End: 5}
	tests := []struct {
		name string
		o    *Transmission
		want bool
	}{
		{"inside", &Transmission{Start: 2, End: 3}, true},
		{"same start", &Transmission{Start: 0, End: 1}, true},
		{"touching end", &Transmission{Start: 5, End: 8}, false},
		{"touching start", &Transmission{Start: -3, End: 0}, false},
		{"other resource", &Transmission{Resource: 1, Start: 2, End: 3}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.OverlapsWith(tt.o))
		})
	}
}
