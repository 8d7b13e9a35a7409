// Package veto computes the signal-consistency statistics attached to each
// candidate: the frequency-binned power chi-squared, the bank chi-squared
// against a fixed set of reference templates, and the autocorrelation
// chi-squared. Every statistic is optional; a disabled one reports Absent for
// each candidate.
package veto
