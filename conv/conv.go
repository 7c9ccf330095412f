// Package conv holds the small numeric conversions shared by the probe and
// sensor packages: scale conversion, the DS18B20 raw-code conversion, and
// the two resistance-to-temperature formulas used by the SPI RTD and
// analog NTC probe families.
package conv

import "math"

// CtoF converts Celsius to Fahrenheit.
func CtoF(c float64) float64 {
	return c*1.8 + 32
}

// FtoC converts Fahrenheit to Celsius.
func FtoC(f float64) float64 {
	return (f - 32) / 1.8
}

// DsToC converts a DS18B20 raw 1/16-degree code to Celsius.
func DsToC(raw int16) float64 {
	return float64(raw) * 0.0625
}

// RtdAlpha is the standard European curve coefficient for PT100/PT1000
// resistance temperature detectors.
const RtdAlpha = 0.00385

// RtdResistance converts a 15-bit MAX31865 RTD code to ohms.
func RtdResistance(code uint16, rRef float64) float64 {
	return float64(code) * rRef / 32768.0
}

// RtdTemperature applies the linearised Callendar-Van-Dusen approximation
// used by the original firmware: T = (R - Rnom) / (Rnom * alpha).
func RtdTemperature(resistance, rNominal float64) float64 {
	return (resistance - rNominal) / (rNominal * RtdAlpha)
}

// NtcT0Kelvin is 25C expressed in Kelvin, the NTC reference temperature.
const NtcT0Kelvin = 298.15

// NtcResistance derives thermistor resistance from a divider reading.
func NtcResistance(vSupply, vAdc, rDivider float64) float64 {
	if vAdc == 0 {
		return math.Inf(1)
	}
	return (vSupply - vAdc) * rDivider / vAdc
}

// NtcTemperature applies the beta-parameter Steinhart-Hart simplification:
// 1/T = 1/T0 + (1/beta) * ln(R/R0). Returns degrees Celsius.
func NtcTemperature(resistance, r0, beta float64) float64 {
	invT := 1/NtcT0Kelvin + (1/beta)*math.Log(resistance/r0)
	kelvin := 1 / invT
	return kelvin - 273.15
}

// AdcMillivolts converts raw ADC counts to millivolts using the fallback
// linear formula (counts * 3300 / 4095) when no hardware calibration curve
// is available.
func AdcMillivolts(counts int) float64 {
	return float64(counts) * 3300.0 / 4095.0
}
