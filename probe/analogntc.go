package probe

import (
	"sync"

	"github.com/Poit-alt/esp-brew-engine/avg"
	"github.com/Poit-alt/esp-brew-engine/conv"
)

// AnalogAdc is the capability an ADC driver must expose for a single
// one-shot channel read, plus the supply voltage it is referenced to.
type AnalogAdc interface {
	// ReadCounts performs a one-shot conversion on the channel mapped to
	// pin and returns the raw counts (0..4095 for a 12-bit ADC).
	ReadCounts(pin int) (int, error)
	// SupplyMillivolts returns Vsupply in millivolts, used for the
	// open/short-circuit thresholds.
	SupplyMillivolts() float64
}

// AnalogNtc is a thermistor read through a voltage divider on an ADC pin.
type AnalogNtc struct {
	mu         sync.Mutex
	adc        AnalogAdc
	pin        int
	beta       float64 // default 3950K
	r0         float64 // resistance at 25C
	rDivider   float64
	smoothing  *avg.Avg
}

// NewAnalogNtc constructs an NTC probe on the given ADC pin. beta defaults
// to 3950 when 0 is passed.
func NewAnalogNtc(adc AnalogAdc, pin int, beta, r0, rDivider float64) *AnalogNtc {
	if beta == 0 {
		beta = 3950
	}
	return &AnalogNtc{
		adc:       adc,
		pin:       pin,
		beta:      beta,
		r0:        r0,
		rDivider:  rDivider,
		smoothing: avg.NewAvg(8, 4),
	}
}

// RebindPin reconstructs the probe on a new analog pin over the same
// shared ADC, per spec §4.3's analog-pin rename path.
func (p *AnalogNtc) RebindPin(pin int) (Probe, error) {
	p.mu.Lock()
	beta, r0, rDivider := p.beta, p.r0, p.rDivider
	p.mu.Unlock()
	return NewAnalogNtc(p.adc, pin, beta, r0, rDivider), nil
}

func (p *AnalogNtc) Kind() Kind { return KindAnalogNtc }

func (p *AnalogNtc) Identity() uint64 {
	return analogNtcIdentityBase + uint64(p.pin)
}

// Reinit is a no-op for analog probes: there is no per-probe bus device to
// reconstruct, and the shared ADC is not re-initialized.
func (p *AnalogNtc) Reinit() error { return nil }

// SmoothedCounts reports the trimmed-mean raw ADC count once the
// smoothing window has filled, for diagnostics.
func (p *AnalogNtc) SmoothedCounts() (int16, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.smoothedCountsLocked()
}

func (p *AnalogNtc) smoothedCountsLocked() (int16, bool) {
	if !p.smoothing.Ready {
		return 0, false
	}
	return p.smoothing.Average(), true
}

func (p *AnalogNtc) Measure() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	counts, err := p.adc.ReadCounts(p.pin)
	if err != nil {
		return 0, ErrHardwareFault
	}

	vSupply := p.adc.SupplyMillivolts()
	vAdc := conv.AdcMillivolts(counts)

	if vAdc < 10 {
		return 0, ErrDisconnected // short circuit
	}
	if vAdc >= 0.95*vSupply {
		return 0, ErrDisconnected // open circuit
	}

	p.smoothing.Add(int16(counts))

	// Once the window has filled, convert off the trimmed-mean count
	// instead of the raw single-shot reading.
	filteredCounts := counts
	if smoothed, ready := p.smoothedCountsLocked(); ready {
		filteredCounts = int(smoothed)
	}
	filteredVAdc := conv.AdcMillivolts(filteredCounts)

	resistance := conv.NtcResistance(vSupply, filteredVAdc, p.rDivider)
	temp := conv.NtcTemperature(resistance, p.r0, p.beta)

	if temp < -40 || temp > 150 {
		return 0, ErrOutOfRange
	}

	return temp, nil
}
