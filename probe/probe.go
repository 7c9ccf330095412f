// Package probe defines the capability contract shared by every temperature
// probe family (one-wire digital, SPI RTD, analog NTC) and the shared error
// taxonomy used to classify failures. Real hardware bus access goes through
// github.com/zlowred/embd (see bus_real.go), with a simulated counterpart
// for other builds (bus_sim.go), mirroring the teacher's
// hal/hardware_real.go vs hal/hardware_sim.go split.
package probe

import "errors"

// Kind identifies a probe family; it is encoded into the upper bits of a
// probe's Identity so the value is stable across reboots and self-describing
// on the wire.
type Kind uint8

const (
	KindOneWireDigital Kind = iota + 1
	KindSpiRtd
	KindAnalogNtc
)

// Error taxonomy from spec §4.2 / §7. Compare with errors.Is.
var (
	ErrDisconnected  = errors.New("probe: disconnected")
	ErrHardwareFault = errors.New("probe: hardware fault")
	ErrOutOfRange    = errors.New("probe: reading out of range")
	ErrUninitialized = errors.New("probe: uninitialized")
)

// Probe is the capability contract every temperature source implements.
type Probe interface {
	// Measure returns the instantaneous temperature in Celsius, or one of
	// the sentinel errors above.
	Measure() (float64, error)
	// Identity returns a 64-bit value stable across reboots that encodes
	// Kind in its upper bits and the device address/pin in the low bits.
	Identity() uint64
	// Kind reports which probe family this is.
	Kind() Kind
	// Reinit reconstructs the underlying bus device, e.g. after repeated
	// measurement failures.
	Reinit() error
}

// PinRebinder is implemented by the probe families whose identity encodes
// a configurable pin (SpiRtd's chip-select pin, AnalogNtc's analog pin).
// It lets sensor.Registry's mutate operation reassign a sensor to a new
// pin without needing per-kind construction logic of its own: RebindPin
// reconstructs the probe on the new pin, reusing the same shared bus
// handle, and reports the new Identity() the caller must re-key under.
type PinRebinder interface {
	RebindPin(pin int) (Probe, error)
}

// spiRtdIdentityBase and analogNtcIdentityBase match spec §3's identity
// scheme: 0x31865000 + chipSelectPin for RTDs (MAX31865 part number) and
// 0x4E544300 + analogPin for NTCs ("NTC" in ASCII).
const (
	spiRtdIdentityBase   = 0x31865000
	analogNtcIdentityBase = 0x4E544300
)

// IdentityFor computes the identity a pin-addressed probe kind would have
// on pin, without constructing hardware. Callers use it to pre-check for
// pin conflicts before an expensive/side-effecting RebindPin call. The
// second return is false for kinds with no configurable pin (e.g.
// KindOneWireDigital, addressed by a fixed device ROM code instead).
func IdentityFor(k Kind, pin int) (uint64, bool) {
	switch k {
	case KindSpiRtd:
		return spiRtdIdentityBase + uint64(pin), true
	case KindAnalogNtc:
		return analogNtcIdentityBase + uint64(pin), true
	default:
		return 0, false
	}
}
