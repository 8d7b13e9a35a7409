package filter

import (
	"math"

	"github.com/cwbudde/algo-inspiral/dsp/core"
)

// rephase is the number of recurrence steps after which the phasor is
// recomputed from scratch to bound rounding drift.
const rephase = 256

// PrunedSum evaluates sum_{k in [kmin, kmax)} x_k exp(2 pi i k j / n), one
// sample of the unnormalised inverse DFT of x.
func PrunedSum(x []complex128, kmin, kmax, j, n int) complex128 {
	if kmax > len(x) {
		kmax = len(x)
	}
	if kmin < 0 {
		kmin = 0
	}
	if kmin >= kmax {
		return 0
	}

	step := 2 * math.Pi * float64(wrap(j, n)) / float64(n)
	w := core.Phasor(step)
	p := core.Phasor(step * float64(kmin))
	var sum complex128
	for k := kmin; k < kmax; k++ {
		sum += x[k] * p
		if (k-kmin+1)%rephase == 0 {
			p = core.Phasor(step * float64(k+1))
		} else {
			p *= w
		}
	}
	return sum
}

// PrunedDot is PrunedSum of conj(a_k) b_k / psd_k without materialising the
// product. Bins with a non-positive psd are skipped; a nil psd means unit
// weight.
func PrunedDot(a, b []complex128, psd []float64, kmin, kmax, j, n int) complex128 {
	if kmax > len(a) {
		kmax = len(a)
	}
	if kmax > len(b) {
		kmax = len(b)
	}
	if kmin < 0 {
		kmin = 0
	}
	if kmin >= kmax {
		return 0
	}

	step := 2 * math.Pi * float64(wrap(j, n)) / float64(n)
	w := core.Phasor(step)
	p := core.Phasor(step * float64(kmin))
	var sum complex128
	for k := kmin; k < kmax; k++ {
		v := complex(real(a[k]), -imag(a[k])) * b[k]
		if psd != nil {
			if psd[k] > 0 {
				sum += v * p / complex(psd[k], 0)
			}
		} else {
			sum += v * p
		}
		if (k-kmin+1)%rephase == 0 {
			p = core.Phasor(step * float64(k+1))
		} else {
			p *= w
		}
	}
	return sum
}

func wrap(j, n int) int {
	j %= n
	if j < 0 {
		j += n
	}
	return j
}
