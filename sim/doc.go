// Package sim provides the discrete-event simulation kernel for wipesim.
//
// # Reading Guide
//
// Start with these files to understand the kernel:
//   - event.go / event_queue.go: events and their deterministic ordering
//     (timestamp, then priority, then insertion sequence)
//   - simulator.go: the clock, scheduling, cancellation and the run loops
//   - process.go: cooperative processes, signals and resources
//
// # Architecture
//
// The sim package owns time and dispatch; the wireless model lives in
// sub-packages:
//   - sim/channel/: shared medium, interference policies, attenuation, MCS
//   - sim/network/: nodes, traffic sources and the channel-access controller
//   - sim/workload/: packet arrival processes and size distributions
//   - sim/env/: the reinforcement-learning bridge (Reset/Step)
//   - sim/trace/: per-step decision trace recording
//   - sim/telemetry/: Prometheus metrics and OpenTelemetry spans
//
// Entities never call each other. They schedule events on themselves or on
// other entities and share the medium, which is only mutated from event
// callbacks.
//
// # Key Interfaces
//
//   - Handler / Entity: react to events dispatched by the Simulator
//   - ResumeFunc: the continuation a suspended Process runs when woken
//
// Errors returned by callbacks abort the run with a *SimulationError that
// names the entity and the tick.
package sim
