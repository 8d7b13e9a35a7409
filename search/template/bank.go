package template

import (
	"errors"
	"fmt"

	"github.com/cwbudde/algo-inspiral/dsp/core"
)

// ErrUnknownApproximant is returned for an approximant with no registered generator.
var ErrUnknownApproximant = errors.New("template: unknown approximant")

// Bank is an ordered template bank. Waveforms are generated lazily, on first
// use, into caller-owned Template buffers.
type Bank struct {
	geom       core.Geometry
	params     []Params
	generators map[string]Generator
}

// BankOption configures a Bank.
type BankOption func(*Bank)

// WithGenerator registers a generator for an approximant name.
func WithGenerator(approximant string, g Generator) BankOption {
	return func(b *Bank) {
		if approximant != "" && g != nil {
			b.generators[approximant] = g
		}
	}
}

// NewBank validates params and returns a bank over them.
func NewBank(geom core.Geometry, params []Params, opts ...BankOption) (*Bank, error) {
	if err := geom.Validate(); err != nil {
		return nil, err
	}
	b := &Bank{
		geom:       geom,
		params:     append([]Params(nil), params...),
		generators: map[string]Generator{TaylorF2: taylorF2{}},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	for i, p := range b.params {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("template %d: %w", i, err)
		}
		if _, ok := b.generators[p.approximant()]; !ok {
			return nil, fmt.Errorf("template %d: %w %q: %w", i, ErrUnknownApproximant, p.approximant(), core.ErrConfiguration)
		}
	}
	return b, nil
}

// Len returns the number of templates.
func (b *Bank) Len() int { return len(b.params) }

// Geometry returns the geometry waveforms are generated for.
func (b *Bank) Geometry() core.Geometry { return b.geom }

// Params returns the parameters of template i.
func (b *Bank) Params(i int) Params { return b.params[i] }

// Generate writes template i into dst, reusing dst's buffer.
func (b *Bank) Generate(i int, dst *Template) error {
	if i < 0 || i >= len(b.params) {
		return fmt.Errorf("template: index %d outside bank of %d", i, len(b.params))
	}
	p := b.params[i]
	dst.Data = core.EnsureComplexLen(dst.Data, b.geom.FreqLen())
	core.ZeroComplex(dst.Data)
	dst.Index = i
	dst.Params = p
	dst.KMax = 0
	dst.resetCache()
	if err := b.generators[p.approximant()].Generate(p, b.geom, dst); err != nil {
		return fmt.Errorf("template %d: %w", i, err)
	}
	return nil
}

// Subset generates n templates spread evenly across the bank, for use as a
// fixed auxiliary bank. n is clamped to the bank size.
func (b *Bank) Subset(n int) ([]*Template, error) {
	if n > len(b.params) {
		n = len(b.params)
	}
	out := make([]*Template, 0, n)
	for j := 0; j < n; j++ {
		i := j * len(b.params) / n
		t := New(b.geom)
		if err := b.Generate(i, t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Iterator walks the bank in order. It is restartable with Reset.
type Iterator struct {
	bank *Bank
	next int
}

// Iterator returns a new iterator positioned at the first template.
func (b *Bank) Iterator() *Iterator {
	return &Iterator{bank: b}
}

// Next returns the next index and its parameters; ok is false at the end.
func (it *Iterator) Next() (index int, p Params, ok bool) {
	if it.next >= len(it.bank.params) {
		return 0, Params{}, false
	}
	index = it.next
	it.next++
	return index, it.bank.params[index], true
}

// Reset rewinds the iterator to the start of the bank.
func (it *Iterator) Reset() { it.next = 0 }
