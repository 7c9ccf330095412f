// Package pidctl implements the clamped discrete PID controller used by the
// control loop (C7), adapted from the teacher's pid.PID (trapezoidal
// integration, tick-based Update) but reshaped to match spec §4.5: two
// selectable parameter profiles (mash/boil), a [0,100] output clamp, and
// anti-windup that stops integrating once the output is saturated and the
// error would push further into saturation.
package pidctl

import (
	"errors"
	"time"
)

// Tunings is one kP/kI/kD parameter set.
type Tunings struct {
	KP, KI, KD float64
}

// Controller is a discrete PID clamped to [Min,Max].
type Controller struct {
	mash Tunings
	boil Tunings
	kP, kI, kD float64

	Min, Max float64

	integrator   float64
	lastError    float64
	lastInput    float64
	lastOutput   float64
	lastTick     time.Time
	initialized  bool
}

// New constructs a controller with independent mash/boil tunings, output
// clamped to [min,max] (spec: [0,100]).
func New(mash, boil Tunings, min, max float64) (*Controller, error) {
	if max <= min {
		return nil, errors.New("pidctl: max limit must be above min limit")
	}
	c := &Controller{mash: mash, boil: boil, Min: min, Max: max}
	c.SelectProfile(false)
	return c, nil
}

// SelectProfile switches the active tunings at the start of a run, per
// spec §4.5 ("selected at the start of the run").
func (c *Controller) SelectProfile(isBoil bool) {
	if isBoil {
		c.kP, c.kI, c.kD = c.boil.KP, c.boil.KI, c.boil.KD
	} else {
		c.kP, c.kI, c.kD = c.mash.KP, c.mash.KI, c.mash.KD
	}
}

// Reset clears integrator/derivative state; the control engine calls it
// when a run starts.
func (c *Controller) Reset() {
	c.integrator = 0
	c.lastError = 0
	c.lastOutput = 0
	c.initialized = false
}

// Update computes a new clamped output given the latest process value and
// setpoint. now is passed in explicitly so tests can control cycle timing.
func (c *Controller) Update(process, setpoint float64, now time.Time) float64 {
	if !c.initialized {
		c.lastTick = now
		c.lastInput = process
		c.lastError = setpoint - process
		c.initialized = true
		// First call skips I and D terms, matching the original firmware's
		// firstRun behaviour.
		c.lastOutput = clamp(c.kP*c.lastError, c.Min, c.Max)
		return c.lastOutput
	}

	dt := now.Sub(c.lastTick).Seconds()
	if dt <= 0 {
		dt = 1
	}

	err := setpoint - process

	p := c.kP * err

	// Anti-windup: only integrate if the previous cycle's clamped output was
	// not saturated, or if it was but the new error would pull us back out
	// of saturation.
	proposedIntegral := c.integrator + err*dt
	saturatedHigh := c.lastOutput >= c.Max
	saturatedLow := c.lastOutput <= c.Min
	if !((saturatedHigh && err > 0) || (saturatedLow && err < 0)) {
		c.integrator = proposedIntegral
	}
	i := c.kI * c.integrator

	// Derivative on error, filtered over one sample (matches original
	// pidController.hpp's `d = kd * (error - previousError)`).
	d := c.kD * (err - c.lastError)

	output := p + i + d
	output = clamp(output, c.Min, c.Max)

	c.lastError = err
	c.lastInput = process
	c.lastTick = now
	c.lastOutput = output

	return output
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// TenthsToFloat converts a fixed-point-tenths value read from the settings
// store into a floating-point tuning coefficient (spec §4.5/§9: PID
// coefficients persist as tenths because the KV store is integer-only).
func TenthsToFloat(tenths int) float64 {
	return float64(tenths) / 10.0
}

// FloatToTenths converts a tuning coefficient back to fixed-point tenths
// for persistence.
func FloatToTenths(v float64) int {
	return int(v*10 + 0.5)
}
