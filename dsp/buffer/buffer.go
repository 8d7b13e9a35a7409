package buffer

// Buffer wraps a complex128 slice plus two float64 scratch planes with
// reuse-friendly semantics. Search code accepts raw slices; use Samples() and
// Planes() to bridge.
type Buffer struct {
	samples []complex128
	re, im  []float64
}

// New returns a zero-filled Buffer of the given length.
func New(length int) *Buffer {
	if length < 0 {
		length = 0
	}
	return &Buffer{samples: make([]complex128, length)}
}

// Samples returns the underlying slice.
func (b *Buffer) Samples() []complex128 {
	return b.samples
}

// Len returns the current number of samples.
func (b *Buffer) Len() int {
	return len(b.samples)
}

// Resize sets the length to n, reusing existing capacity when possible.
// New elements beyond the previous length are zeroed.
func (b *Buffer) Resize(n int) {
	if n < 0 {
		n = 0
	}
	oldLen := len(b.samples)
	if n <= cap(b.samples) {
		b.samples = b.samples[:n]
	} else {
		s := make([]complex128, n)
		copy(s, b.samples)
		b.samples = s
	}
	// The backing array may hold data from a previous checkout.
	for i := oldLen; i < n; i++ {
		b.samples[i] = 0
	}
}

// Zero sets all samples to 0.
func (b *Buffer) Zero() {
	for i := range b.samples {
		b.samples[i] = 0
	}
}

// Planes returns float64 scratch slices of length n for split real and
// imaginary parts. Their contents are unspecified.
func (b *Buffer) Planes(n int) (re, im []float64) {
	if cap(b.re) < n {
		b.re = make([]float64, n)
		b.im = make([]float64, n)
	}
	return b.re[:n], b.im[:n]
}
