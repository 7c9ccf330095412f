// Package output implements the output loop (C8): a 1 Hz ticker that
// mirrors each heater's burnFlag to its GPIO line, honouring the
// configured polarity, and forces every line low on exit. Adapted from the
// teacher's heatpump.HeatPump loop, which drove PWM channels off hub
// broadcasts on the same one-second cadence; here the loop drives GPIO
// writer callbacks off the heater set directly instead of a bcast group,
// since heater duty is engine-owned scalar state rather than fan-out
// telemetry (spec §5: "no locking; ownership by role is the invariant").
package output

import (
	"log"
	"time"

	"github.com/Poit-alt/esp-brew-engine/heater"
	"github.com/Poit-alt/esp-brew-engine/metrics"
)

// GPIOWriter sets a single output pin high or low. Implementations wrap
// whatever real or simulated GPIO layer the build is compiled with.
type GPIOWriter interface {
	Write(pin int, high bool) error
}

// Loop mirrors heater burn flags to GPIO once per second.
type Loop struct {
	heaters  *heater.Set
	gpio     GPIOWriter
	inverted bool
	quit     chan struct{}
}

// New constructs an output loop. inverted flips the GPIO polarity (active
// low), matching a common relay board wiring.
func New(heaters *heater.Set, gpio GPIOWriter, inverted bool) *Loop {
	return &Loop{heaters: heaters, gpio: gpio, inverted: inverted, quit: make(chan struct{})}
}

// Run blocks, driving GPIO once per second, until Stop is called. On exit
// it forces every heater pin low.
func (l *Loop) Run() {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	defer l.allLow()

	for {
		select {
		case <-t.C:
			l.tick()
		case <-l.quit:
			return
		}
	}
}

// Stop signals Run to exit and force all outputs low.
func (l *Loop) Stop() {
	close(l.quit)
}

func (l *Loop) tick() {
	for _, h := range l.heaters.All() {
		if err := l.gpio.Write(h.OutputPin, l.level(h.BurnFlag)); err != nil {
			log.Printf("output: write pin %d: %v", h.OutputPin, err)
		}
		metrics.SetHeaterBurn(h.Name, h.BurnFlag)
	}
}

func (l *Loop) allLow() {
	for _, h := range l.heaters.All() {
		if err := l.gpio.Write(h.OutputPin, l.level(false)); err != nil {
			log.Printf("output: force pin %d low: %v", h.OutputPin, err)
		}
		metrics.SetHeaterBurn(h.Name, false)
	}
}

// level applies the configured polarity to a logical burn state.
func (l *Loop) level(burn bool) bool {
	if l.inverted {
		return !burn
	}
	return burn
}
