package cluster

import (
	"math/rand"
	"reflect"
	"testing"
)

func TestWindow(t *testing.T) {
	tests := []struct {
		name   string
		times  []int64
		mags   []float64
		window int64
		want   []int
	}{
		{name: "disabled", times: []int64{1, 2, 3}, mags: []float64{1, 3, 2}, window: 0, want: []int{0, 1, 2}},
		{name: "single peak", times: []int64{1, 2, 3}, mags: []float64{1, 3, 2}, window: 5, want: []int{1}},
		{name: "two separated", times: []int64{1, 2, 20, 21}, mags: []float64{5, 4, 1, 2}, window: 5, want: []int{0, 3}},
		{name: "tie goes earliest", times: []int64{10, 12}, mags: []float64{7, 7}, window: 4, want: []int{0}},
		{name: "edge exactly window apart", times: []int64{0, 4}, mags: []float64{1, 2}, window: 4, want: []int{0, 1}},
		{name: "empty", times: nil, mags: nil, window: 3, want: []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Window(tt.times, tt.mags, tt.window)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Window() = %v, want %v", got, tt.want)
			}
		})
	}
}

func randomSamples(seed int64, n int) ([]int64, []float64) {
	rng := rand.New(rand.NewSource(seed))
	times := make([]int64, n)
	mags := make([]float64, n)
	var t int64
	for i := range times {
		t += 1 + rng.Int63n(4)
		times[i] = t
		mags[i] = rng.Float64() * 10
	}
	return times, mags
}

func TestWindowMonotone(t *testing.T) {
	times, mags := randomSamples(3, 400)
	prev := len(times) + 1
	for w := int64(0); w <= 64; w++ {
		n := len(Window(times, mags, w))
		if n > prev {
			t.Fatalf("window %d kept %d > %d kept by a narrower window", w, n, prev)
		}
		prev = n
	}
}

func TestWindowIdempotent(t *testing.T) {
	times, mags := randomSamples(11, 300)
	for _, w := range []int64{2, 7, 30} {
		keep := Window(times, mags, w)
		t2 := make([]int64, len(keep))
		m2 := make([]float64, len(keep))
		for i, k := range keep {
			t2[i], m2[i] = times[k], mags[k]
		}
		again := Window(t2, m2, w)
		if len(again) != len(keep) {
			t.Fatalf("window %d: reclustering kept %d of %d", w, len(again), len(keep))
		}
		for i := 1; i < len(t2); i++ {
			if t2[i]-t2[i-1] < w {
				t.Fatalf("window %d: survivors %d and %d closer than window", w, t2[i-1], t2[i])
			}
		}
	}
}
