package signal

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/cwbudde/algo-inspiral/dsp/core"
)

// Generator creates deterministic synthetic strain from a shared geometry.
type Generator struct {
	geom core.Geometry
	seed int64
}

// Option configures a Generator.
type Option func(*Generator)

// WithSeed sets deterministic random seed for noise generation.
func WithSeed(seed int64) Option {
	return func(g *Generator) {
		g.seed = seed
	}
}

// NewGenerator creates a configured signal generator.
func NewGenerator(opts ...core.GeometryOption) *Generator {
	return &Generator{
		geom: core.ApplyGeometryOptions(opts...),
		seed: 1,
	}
}

// NewGeneratorWithOptions creates a configured signal generator with signal-specific options.
func NewGeneratorWithOptions(geomOpts []core.GeometryOption, opts ...Option) *Generator {
	g := NewGenerator(geomOpts...)
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Geometry returns the generator geometry.
func (g *Generator) Geometry() core.Geometry {
	return g.geom
}

// SetSeed replaces the noise seed.
func (g *Generator) SetSeed(seed int64) { g.seed = seed }

// Seed returns the noise seed.
func (g *Generator) Seed() int64 { return g.seed }

// GaussianNoise generates stationary white Gaussian noise whose one-sided
// power spectral density is psdLevel.
func (g *Generator) GaussianNoise(psdLevel float64, samples int) ([]float64, error) {
	if samples <= 0 {
		return nil, fmt.Errorf("noise samples must be > 0: %d", samples)
	}
	if psdLevel < 0 {
		return nil, fmt.Errorf("noise psd level must be >= 0: %f", psdLevel)
	}
	sigma := math.Sqrt(psdLevel * g.geom.SampleRate / 2)
	out := make([]float64, samples)
	rng := rand.New(rand.NewSource(g.seed))
	for i := range out {
		out[i] = rng.NormFloat64() * sigma
	}
	return out, nil
}

// TimeShift writes htilde delayed by dt seconds into dst and returns it.
// A nil dst is allocated. deltaF is the bin spacing of htilde.
func TimeShift(dst, htilde []complex128, dt, deltaF float64) []complex128 {
	dst = core.EnsureComplexLen(dst, len(htilde))
	step := -2 * math.Pi * deltaF * dt
	for k, v := range htilde {
		dst[k] = v * core.Phasor(step*float64(k))
	}
	return dst
}

// Inject adds amplitude * waveform to strain so that the waveform's
// reference time (sample 0 of its inverse transform) lands on sample at.
// htilde is a one-sided frequency series of length N/2+1 for the generator
// geometry; the N-sample window centred on at is clipped to strain.
func (g *Generator) Inject(strain []float64, htilde []complex128, at int64, amplitude float64) error {
	n := g.geom.SegmentLength
	if len(htilde) != g.geom.FreqLen() {
		return fmt.Errorf("%w: waveform has %d bins, want %d", core.ErrDataShape, len(htilde), g.geom.FreqLen())
	}
	start := at - int64(n/2)
	shifted := TimeShift(nil, htilde, float64(at-start)*g.geom.DeltaT(), g.geom.DeltaF())
	fft := fourier.NewFFT(n)
	series := fft.Sequence(nil, shifted)
	scale := amplitude * g.geom.DeltaF()
	for i, v := range series {
		j := start + int64(i)
		if j < 0 || j >= int64(len(strain)) {
			continue
		}
		strain[j] += v * scale
	}
	return nil
}
