package core

import "fmt"

// DetectorID is the small-integer encoding of a detector used in trigger tables.
type DetectorID uint8

// Detector pairs the integer id with a human-readable site label such as "H1".
type Detector struct {
	ID   DetectorID
	Name string
}

// String returns the site label, falling back to the numeric id.
func (d Detector) String() string {
	if d.Name != "" {
		return d.Name
	}
	return fmt.Sprintf("det%d", d.ID)
}
