package window

import (
	"math"
	"testing"
)

func TestGenerateFinite(t *testing.T) {
	for _, typ := range []Type{TypeRectangular, TypeHann, TypeTukey} {
		for _, slope := range []Slope{SlopeSymmetric, SlopeLeft, SlopeRight} {
			w := Generate(typ, 64, WithSlope(slope))
			if len(w) != 64 {
				t.Fatalf("type %d slope %d: len=%d, want 64", typ, slope, len(w))
			}
			for i, v := range w {
				if math.IsNaN(v) || v < 0 || v > 1 {
					t.Fatalf("type %d slope %d: coefficient[%d] = %v", typ, slope, i, v)
				}
			}
		}
	}
}

func TestGenerateEmpty(t *testing.T) {
	if w := Generate(TypeHann, 0); w != nil {
		t.Fatalf("Generate(0) = %v, want nil", w)
	}
}

func TestHalfHannSlopes(t *testing.T) {
	const n = 16
	left := Generate(TypeHann, n, WithSlope(SlopeLeft))
	right := Generate(TypeHann, n, WithSlope(SlopeRight))
	for i := 0; i < n; i++ {
		want := 0.5 * (1 - math.Cos(math.Pi*float64(i)/n))
		if math.Abs(left[i]-want) > 1e-15 {
			t.Errorf("left[%d] = %v, want %v", i, left[i], want)
		}
		if math.Abs(right[n-1-i]-want) > 1e-15 {
			t.Errorf("right[%d] = %v, want %v", n-1-i, right[n-1-i], want)
		}
		if i > 0 && left[i] <= left[i-1] {
			t.Errorf("left slope not rising at %d", i)
		}
	}
	if left[0] != 0 || right[n-1] != 0 {
		t.Fatalf("slopes must touch zero at the outer edge: %v %v", left[0], right[n-1])
	}
}

func TestTukey(t *testing.T) {
	tests := []struct {
		alpha float64
		want  []float64
	}{
		{0, []float64{1, 1, 1, 1, 1}},
		{1, Generate(TypeHann, 5)},
		{0.5, []float64{0, 1, 1, 1, 0}},
	}
	for _, tt := range tests {
		got := Generate(TypeTukey, 5, WithAlpha(tt.alpha))
		for i := range got {
			if math.Abs(got[i]-tt.want[i]) > 1e-12 {
				t.Errorf("alpha %v: w[%d] = %v, want %v", tt.alpha, i, got[i], tt.want[i])
			}
		}
	}
}

func TestApplyComplex(t *testing.T) {
	buf := []complex128{2i, 2i, 2i, 2i}
	ApplyComplex(TypeHann, buf, WithSlope(SlopeLeft))
	w := Generate(TypeHann, 4, WithSlope(SlopeLeft))
	for i := range buf {
		if buf[i] != complex(0, 2*w[i]) {
			t.Errorf("buf[%d] = %v, want %v", i, buf[i], complex(0, 2*w[i]))
		}
	}
}

func TestEdges(t *testing.T) {
	buf := make([]float64, 10)
	for i := range buf {
		buf[i] = 1
	}
	if err := Edges(buf, 3, 2); err != nil {
		t.Fatalf("Edges() error = %v", err)
	}
	if buf[0] != 0 || buf[9] != 0 {
		t.Fatalf("edges not zeroed: %v", buf)
	}
	for i := 3; i < 8; i++ {
		if buf[i] != 1 {
			t.Fatalf("buf[%d] = %v, want untouched 1", i, buf[i])
		}
	}
	if err := Edges(buf, 6, 6); err == nil {
		t.Fatal("overlapping edges should fail")
	}
	if err := Edges(buf, -1, 0); err == nil {
		t.Fatal("negative edge should fail")
	}
}
