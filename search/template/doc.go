// Package template generates and owns frequency-domain waveform templates.
//
// A Template is a single-owner buffer: Bank.Generate writes a waveform into
// a caller-supplied Template, reusing its backing array, so a worker can
// filter template after template without reallocating. Sigma-squared is
// cached per detector on the Template and is cleared on regeneration.
package template
