// Package network holds the process entities of a wireless cell: radio
// nodes with a MAC, the traffic sources feeding them and the controller
// that hands out channel access.
package network

import (
	"github.com/wipesim/wipesim/sim"
	"github.com/wipesim/wipesim/sim/channel"
)

// Event kinds exchanged between entities.
const (
	KindEnqueue        = "enqueue"
	KindGrant          = "grant"
	KindRevoke         = "revoke"
	KindAssign         = "assign"
	KindAssignmentOver = "assignment_over"
	KindGenerate       = "generate"
)

// DecisionAssignmentOver is the decision reason the controller signals.
const DecisionAssignmentOver = "assignment_over"

// Transmitter is an entity that can put its next frame on the medium.
type Transmitter interface {
	sim.Entity
	StepTransmit(s *sim.Simulator) error
}

// Receiver is an entity that decodes frames from the medium.
type Receiver interface {
	sim.Entity
	channel.Radio
	StepReceive(s *sim.Simulator, d channel.Delivery) error
}

var (
	_ Transmitter = (*Node)(nil)
	_ Receiver    = (*Node)(nil)
	_ Receiver    = (*Controller)(nil)
)

// Grant gives a node the channel until Until.
type Grant struct {
	Until sim.Time
	// PowerDBm overrides the node's transmit power for this grant.
	PowerDBm *float64
}

// Assignment asks the controller to grant Node the channel for Duration.
type Assignment struct {
	Node     sim.EntityID
	Duration sim.Time
	PowerDBm *float64
}
