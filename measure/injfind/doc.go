// Package injfind scores a search against a catalog of simulated signals.
//
// Given the sorted foreground trigger times of one detector pair and the
// injection times, each injection is classified by the number of triggers in
// its window [t-W, t+W):
//
//   - one trigger: found
//   - none: missed
//   - more than one: ambiguous, reported as a warning and counted as missed
//
// The found and missed sets are then narrowed to analysed time and, per
// detector, to time outside vetoed intervals. Every index set refers to the
// original injection order.
//
// # Usage
//
//	rep, err := injfind.Classify(ctx, times, injections, injfind.Options{Window: 0.1})
//	fmt.Println(len(rep.FoundAfterVetoes), len(rep.MissedAfterVetoes))
package injfind
