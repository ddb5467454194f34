package env

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// observationSpace lays out per-node queue fill, delivered and failed
// counts followed by channel utilization. Queue fill is a fraction of the
// capacity, or the raw length for unbounded queues.
func observationSpace(numNodes, queueCapacity int) Box {
	b := NewBox(3*numNodes+1, 0, math.Inf(1))
	if queueCapacity > 0 {
		for i := 0; i < numNodes; i++ {
			b.High[i] = 1
		}
	}
	b.High[3*numNodes] = 1
	return b
}

func observe(st *StepStats) []float64 {
	n := len(st.Backlog)
	obs := make([]float64, 0, 3*n+1)
	fill := make([]float64, n)
	copy(fill, st.Backlog)
	if st.QueueCapacity > 0 {
		floats.Scale(1/float64(st.QueueCapacity), fill)
	}
	obs = append(obs, fill...)
	obs = append(obs, st.Delivered...)
	obs = append(obs, st.Failed...)
	return append(obs, st.Utilization())
}
