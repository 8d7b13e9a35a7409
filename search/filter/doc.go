// Package filter implements the matched-filter engine: it correlates an
// overwhitened segment spectrum with a template, inverse transforms the
// product into a normalised complex SNR time series, thresholds it over the
// segment's analysis range and clusters the survivors in time.
//
// Two evaluation strategies are available. The default computes the whole
// series with one inverse FFT of the segment length. WithDownsample switches
// to a coarse/fine search: a short inverse FFT of the folded correlation gives
// the exact SNR at every D-th sample, and only the neighbourhoods of coarse
// samples above a fraction of the threshold are evaluated at full resolution.
package filter
