package core

import "errors"

// Error kinds shared by the search packages. Callers match them with errors.Is.
var (
	// ErrConfiguration reports an inconsistent run geometry: sample rate,
	// segment length or frequency resolution disagree between inputs.
	// It is fatal and is raised before any filtering starts.
	ErrConfiguration = errors.New("configuration error")

	// ErrDataShape reports a template or PSD whose length does not match the
	// run geometry. It aborts the template being processed.
	ErrDataShape = errors.New("data shape error")
)
