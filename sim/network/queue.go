package network

import "github.com/wipesim/wipesim/sim"

// Packet is a unit of data queued at a node.
type Packet struct {
	Origin  sim.EntityID
	Seq     int64
	Bytes   int
	Created sim.Time
}

// PacketQueue is a bounded FIFO of packets. Arrivals beyond capacity are
// dropped and counted.
type PacketQueue struct {
	capacity int
	items    []*Packet
	dropped  int
}

// NewPacketQueue creates a queue holding at most capacity packets.
// capacity <= 0 means unbounded.
func NewPacketQueue(capacity int) *PacketQueue {
	return &PacketQueue{capacity: capacity}
}

// Enqueue appends p and reports false if it was dropped.
func (q *PacketQueue) Enqueue(p *Packet) bool {
	if q.capacity > 0 && len(q.items) >= q.capacity {
		q.dropped++
		return false
	}
	q.items = append(q.items, p)
	return true
}

// Peek returns the head packet, or nil.
func (q *PacketQueue) Peek() *Packet {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

// Dequeue removes and returns the head packet, or nil.
func (q *PacketQueue) Dequeue() *Packet {
	if len(q.items) == 0 {
		return nil
	}
	p := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return p
}

func (q *PacketQueue) Len() int     { return len(q.items) }
func (q *PacketQueue) Cap() int     { return q.capacity }
func (q *PacketQueue) Dropped() int { return q.dropped }
