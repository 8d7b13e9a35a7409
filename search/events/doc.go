// Package events accumulates the clustered candidates of a search into the
// global trigger table.
//
// Each template gets its own Scope. Workers append candidates per detector,
// cluster across segment boundaries and finally hand the scope back to the
// Accumulator, which freezes it and merges it into the table under a mutex.
// A discarded scope commits nothing. Post-processing cuts run on the
// finalised table and only ever remove triggers.
package events
