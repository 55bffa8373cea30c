package rfunits

import "math"

// Probe frequency ranges arrive in Hz, the limit tables work in MHz.
func HzToMhz(hz float64) float64 {
	return hz / 1e6
}

func MhzToHz(mhz float64) float64 {
	return mhz * 1e6
}

// Percentage-of-limit expressed in dB relative to the limit.
// A reading of 100% is 0 dB.
func PercentToDb(percent float64) float64 {
	return 10 * math.Log10(percent/100.0)
}

// Field quantities scale with the square root of power, hence /20 not /10.
func DbToFieldRatio(db float64) float64 {
	return math.Pow(10, db/20.0)
}
