package channel

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/combin"
)

// MCS is a modulation and coding scheme.
type MCS interface {
	// BitErrorRate returns the raw bit error rate at the given SINR.
	BitErrorRate(sinrDB, bandwidthHz, bitrateBps float64) float64
	// MaxCorrectableBER is the highest bit error rate the code can repair.
	MaxCorrectableBER() float64
}

// BPSK with an (N, K) block code.
type BPSK struct {
	N, K int

	maxBER float64
}

// NewBPSK builds BPSK with a block code of length n carrying k information
// bits. k == n means uncoded.
func NewBPSK(n, k int) (*BPSK, error) {
	if n <= 0 || k <= 0 || k > n {
		return nil, fmt.Errorf("invalid block code (%d, %d)", n, k)
	}
	return &BPSK{N: n, K: k, maxBER: maxCorrectableBER(n, k)}, nil
}

// CodeRate returns K/N.
func (b *BPSK) CodeRate() float64 { return float64(b.K) / float64(b.N) }

// BitErrorRate is Q(√(2·Eb/N0)) with Eb/N0 = SINR·B/R.
func (b *BPSK) BitErrorRate(sinrDB, bandwidthHz, bitrateBps float64) float64 {
	ebn0 := DBToRatio(sinrDB) * bandwidthHz / bitrateBps
	return q(math.Sqrt(2 * ebn0))
}

func (b *BPSK) MaxCorrectableBER() float64 { return b.maxBER }

// q is the Gaussian tail function.
func q(x float64) float64 {
	return 0.5 * math.Erfc(x/math.Sqrt2)
}

// maxCorrectableBER uses the Varshamov-Gilbert bound: a linear (n, k) code
// with minimum distance d exists if Σ_{i=0}^{d-2} C(n-1, i) < 2^(n-k).
// Such a code corrects ⌊(d-1)/2⌋ errors per block.
func maxCorrectableBER(n, k int) float64 {
	if n == k {
		return 0
	}
	limit := math.Pow(2, float64(n-k))
	d := 1
	sum := 0.0
	for d < n {
		sum += float64(combin.Binomial(n-1, d-1))
		if sum >= limit {
			break
		}
		d++
	}
	t := (d - 1) / 2
	return float64(t) / float64(n)
}
