package probe

import (
	"sync"

	"github.com/Poit-alt/esp-brew-engine/conv"
)

// SpiRtdBus is the capability a MAX31865-style RTD-to-digital driver must
// expose over a single shared SPI bus with per-device chip select.
type SpiRtdBus interface {
	// Configure sets up the MAX31865 register for the given chip-select
	// pin: bias on, auto conversion mode, 50Hz notch filter.
	Configure(csPin int) error
	// ReadCode returns the raw 15-bit RTD code and the fault-status byte.
	ReadCode(csPin int) (code uint16, faultStatus byte, err error)
	// ClearFault clears the fault-status latch for the given device.
	ClearFault(csPin int) error
}

// RTD fault-status bit positions, per the MAX31865 datasheet as used by
// max31865_driver.c in the original firmware.
const (
	faultRTDInLow  = 1 << 2 // RTDIN- open (disconnected)
	faultRefInLow  = 1 << 3
	faultRefInHigh = 1 << 4
	faultOverUnder = 1 << 0 | 1 << 1
)

// SpiRtd is a resistance-to-digital probe (PT100/PT1000) sharing a single
// SPI bus with other RTDs via a per-device chip-select pin.
type SpiRtd struct {
	mu          sync.Mutex
	bus         SpiRtdBus
	csPin       int
	rNominal    float64 // 100 or 1000 ohms
	rReference  float64 // 430 or 4300 ohms
	initialized bool
}

// NewSpiRtd constructs a probe for the RTD on csPin. rNominal must be 100
// or 1000; rReference must be 430 or 4300 to match.
func NewSpiRtd(bus SpiRtdBus, csPin int, rNominal, rReference float64) (*SpiRtd, error) {
	p := &SpiRtd{bus: bus, csPin: csPin, rNominal: rNominal, rReference: rReference}
	if err := p.Reinit(); err != nil {
		return nil, err
	}
	return p, nil
}

// RebindPin reconstructs the probe on a new chip-select pin over the same
// shared SPI bus, per spec §4.3's CS-pin rename path.
func (p *SpiRtd) RebindPin(pin int) (Probe, error) {
	p.mu.Lock()
	rNominal, rReference := p.rNominal, p.rReference
	p.mu.Unlock()
	return NewSpiRtd(p.bus, pin, rNominal, rReference)
}

func (p *SpiRtd) Kind() Kind { return KindSpiRtd }

func (p *SpiRtd) Identity() uint64 {
	return spiRtdIdentityBase + uint64(p.csPin)
}

func (p *SpiRtd) Reinit() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.bus.Configure(p.csPin); err != nil {
		p.initialized = false
		return ErrHardwareFault
	}
	p.initialized = true
	return nil
}

func (p *SpiRtd) Measure() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return 0, ErrUninitialized
	}

	code, fault, err := p.bus.ReadCode(p.csPin)
	if err != nil {
		return 0, ErrHardwareFault
	}

	if fault != 0 {
		p.bus.ClearFault(p.csPin)
		if fault&faultRTDInLow != 0 {
			return 0, ErrDisconnected
		}
		return 0, ErrHardwareFault
	}

	resistance := conv.RtdResistance(code, p.rReference)
	if resistance < 0.6*p.rNominal || resistance > 2.0*p.rNominal {
		return 0, ErrOutOfRange
	}

	temp := conv.RtdTemperature(resistance, p.rNominal)
	if temp < -40 || temp > 200 {
		return 0, ErrOutOfRange
	}

	return temp, nil
}
