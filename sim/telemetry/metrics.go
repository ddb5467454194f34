// Package telemetry exposes episode metrics to Prometheus and wires
// OpenTelemetry tracing around environment calls.
package telemetry

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Transmission outcome label values.
const (
	OutcomeDelivered = "delivered"
	OutcomeFailed    = "failed"
)

// Collector bundles the Prometheus metrics of a running environment. All
// methods are safe on a nil receiver so callers need no guard.
type Collector struct {
	gatherer prometheus.Gatherer

	Episodes      prometheus.Counter
	Steps         prometheus.Counter
	Rewards       prometheus.Histogram
	StepSimTime   prometheus.Histogram
	Transmissions *prometheus.CounterVec
	QueueDepth    *prometheus.GaugeVec
	Utilization   prometheus.Gauge
	EpisodeReward prometheus.Gauge
}

// NewCollector registers the metrics against reg, defaulting to the global
// Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	episodes, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wipesim_episodes_total",
		Help: "Episodes started by Reset.",
	}), "wipesim_episodes_total")
	if err != nil {
		return nil, err
	}
	steps, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wipesim_steps_total",
		Help: "Agent decisions applied by Step.",
	}), "wipesim_steps_total")
	if err != nil {
		return nil, err
	}
	rewards, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "wipesim_step_reward",
		Help:    "Reward returned per step.",
		Buckets: []float64{-10, -1, -0.5, 0, 0.5, 1, 2, 5, 10, 50},
	}), "wipesim_step_reward")
	if err != nil {
		return nil, err
	}
	simTime, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "wipesim_step_sim_seconds",
		Help:    "Simulated time advanced per step.",
		Buckets: prometheus.ExponentialBuckets(1e-5, 10, 7),
	}), "wipesim_step_sim_seconds")
	if err != nil {
		return nil, err
	}
	txs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wipesim_transmissions_total",
		Help: "Finished transmissions, labeled by outcome.",
	}, []string{"outcome"})
	txs, err = registerCounterVec(reg, txs, "wipesim_transmissions_total")
	if err != nil {
		return nil, err
	}
	depth := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "wipesim_queue_depth",
		Help: "Packets queued at each node after the last step.",
	}, []string{"node"})
	depth, err = registerGaugeVec(reg, depth, "wipesim_queue_depth")
	if err != nil {
		return nil, err
	}
	util, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wipesim_channel_utilization",
		Help: "Fraction of the last step the channel was busy.",
	}), "wipesim_channel_utilization")
	if err != nil {
		return nil, err
	}
	epReward, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wipesim_episode_reward",
		Help: "Cumulative reward of the current episode.",
	}), "wipesim_episode_reward")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:      gatherer,
		Episodes:      episodes,
		Steps:         steps,
		Rewards:       rewards,
		StepSimTime:   simTime,
		Transmissions: txs,
		QueueDepth:    depth,
		Utilization:   util,
		EpisodeReward: epReward,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// EpisodeStarted counts a Reset and clears the episode reward.
func (c *Collector) EpisodeStarted() {
	if c == nil {
		return
	}
	c.Episodes.Inc()
	c.EpisodeReward.Set(0)
}

// ObserveStep records one step's reward and the simulated seconds it covered.
func (c *Collector) ObserveStep(reward, simSeconds float64) {
	if c == nil {
		return
	}
	c.Steps.Inc()
	c.Rewards.Observe(reward)
	c.StepSimTime.Observe(simSeconds)
	c.EpisodeReward.Add(reward)
}

// ObserveTransmission counts one finished transmission.
func (c *Collector) ObserveTransmission(corrupted bool) {
	if c == nil {
		return
	}
	outcome := OutcomeDelivered
	if corrupted {
		outcome = OutcomeFailed
	}
	c.Transmissions.WithLabelValues(outcome).Inc()
}

// SetQueueDepth publishes the backlog of one node.
func (c *Collector) SetQueueDepth(node string, depth int) {
	if c == nil {
		return
	}
	c.QueueDepth.WithLabelValues(node).Set(float64(depth))
}

// SetUtilization publishes the channel busy fraction of the last step.
func (c *Collector) SetUtilization(u float64) {
	if c == nil {
		return
	}
	c.Utilization.Set(u)
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
