package rfunits

import (
	"math"
	"testing"
)

func TestHzMhzRoundTrip(t *testing.T) {
	if got := HzToMhz(27e6); got != 27.0 {
		t.Errorf("Expected 27 MHz, got %f", got)
	}
	if got := MhzToHz(0.003); got != 3000.0 {
		t.Errorf("Expected 3000 Hz, got %f", got)
	}
}

func TestPercentToDb(t *testing.T) {
	if got := PercentToDb(100); got != 0 {
		t.Errorf("Expected 100%% to be 0 dB, got %f", got)
	}
	if got := PercentToDb(10); math.Abs(got+10) > 1e-12 {
		t.Errorf("Expected 10%% to be -10 dB, got %f", got)
	}
}

func TestDbToFieldRatio(t *testing.T) {
	if got := DbToFieldRatio(0); got != 1 {
		t.Errorf("Expected 0 dB ratio 1, got %f", got)
	}
	// -20 dB is a factor of 10 in field strength
	if got := DbToFieldRatio(-20); math.Abs(got-0.1) > 1e-12 {
		t.Errorf("Expected -20 dB ratio 0.1, got %f", got)
	}
}
