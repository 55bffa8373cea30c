// Package radhaz holds RADHAZ exposure limit tables and the conversions
// between percentage-of-limit readings and absolute field strengths.
package radhaz

import "errors"

// ErrUnimplemented marks lookups against a standard whose table is not
// populated, and the declared-but-unimplemented reverse conversions.
var ErrUnimplemented = errors.New("not implemented")

// LimitPoint is one table entry: the exposure limits at a single frequency.
type LimitPoint struct {
	FrequencyMhz float64
	EFieldLimit  float64 // V/m
	HFieldLimit  float64 // A/m
}

// Standard is a named RADHAZ exposure standard with a frequency-indexed
// limit table. At most one standard is active per measurement session.
type Standard interface {
	Name() string
	EFieldLimit(frequencyMhz float64) (float64, error)
	HFieldLimit(frequencyMhz float64) (float64, error)
	PercentageToEField(percentage, frequencyMhz float64) (float64, error)
	PercentageToHField(percentage, frequencyMhz float64) (float64, error)
	EFieldToPercentage(field, frequencyMhz float64) (float64, error)
	HFieldToPercentage(field, frequencyMhz float64) (float64, error)
}
