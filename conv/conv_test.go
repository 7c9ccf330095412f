package conv

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScaleRoundTrip(t *testing.T) {
	c := 100.0
	f := CtoF(c)
	back := FtoC(f)
	assert.InDelta(t, c, back, 0.1)
}

func TestRtdTemperatureAtNominal(t *testing.T) {
	// resistance == nominal resistance -> 0C
	assert.InDelta(t, 0.0, RtdTemperature(100.0, 100.0), 1e-9)
}

func TestRtdResistanceFullScale(t *testing.T) {
	// full-scale 15-bit code should map to the reference resistor value
	assert.InDelta(t, 430.0, RtdResistance(32768, 430.0), 1e-9)
}

func TestNtcTemperatureAtR0(t *testing.T) {
	// resistance == R0 -> 25C (NtcT0Kelvin - 273.15)
	got := NtcTemperature(10000, 10000, 3950)
	assert.InDelta(t, 25.0, got, 0.01)
}

func TestAdcMillivoltsFullScale(t *testing.T) {
	assert.InDelta(t, 3300.0, AdcMillivolts(4095), 1.0)
}
