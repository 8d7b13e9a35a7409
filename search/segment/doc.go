// Package segment holds one detector's strain divided into overlapping
// analysis segments in the frequency domain.
//
// Each Segment carries its one-sided spectrum, the global sample index of its
// first sample and the half-open range of the inverse-transformed series
// that is free of wrap-around corruption. A Spectrum groups the segments of
// one detector together with the detector PSD; Overwhiten divides every
// segment by that PSD exactly once before filtering begins.
package segment
