// Package buffer provides a reusable complex buffer type and pool used as
// the per-template scratch arena of the matched-filter search. A worker
// checks a buffer out for one filtering unit and returns it afterwards, so
// no two templates ever alias the same correlation memory.
package buffer
