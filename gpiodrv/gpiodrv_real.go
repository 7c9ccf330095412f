//go:build linux && arm

// Package gpiodrv adapts a raw digital output pin to the small
// control.GPIOWriter / output.GPIOWriter contract shared by the buzzer and
// heater output loops. Grounded on the teacher's use of
// github.com/zlowred/embd for every other bus (one-wire, SPI, I2C
// PWM controller); embd exposes the same digital-pin primitive for plain
// GPIO, so the dependency is reused rather than adding a second GPIO
// library.
package gpiodrv

import "github.com/zlowred/embd"

// Bank lazily opens and caches one embd.DigitalPin per pin number.
type Bank struct {
	pins map[int]embd.DigitalPin
}

func NewBank() *Bank {
	return &Bank{pins: make(map[int]embd.DigitalPin)}
}

func (b *Bank) pin(n int) (embd.DigitalPin, error) {
	if p, ok := b.pins[n]; ok {
		return p, nil
	}
	p, err := embd.NewDigitalPin(n)
	if err != nil {
		return nil, err
	}
	if err := p.SetDirection(embd.Out); err != nil {
		return nil, err
	}
	b.pins[n] = p
	return p, nil
}

// Write sets pin high or low, matching control.GPIOWriter.
func (b *Bank) Write(n int, high bool) error {
	p, err := b.pin(n)
	if err != nil {
		return err
	}
	val := 0
	if high {
		val = 1
	}
	return p.Write(val)
}

// Close releases every pin opened so far.
func (b *Bank) Close() {
	for _, p := range b.pins {
		p.Close()
	}
}
