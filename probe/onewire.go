package probe

import "sync"

// OneWireBus is the capability a one-wire driver must expose. The real
// implementation wraps github.com/zlowred/embd's W1Bus; tests and the
// simulated build use SimOneWireBus.
type OneWireBus interface {
	// ListDevices returns the ROM ids of every DS18B20-family device
	// currently visible on the bus (family code 0x28 prefix).
	ListDevices() ([]string, error)
	// Open binds a device handle for the given ROM id.
	Open(romID string) (OneWireDevice, error)
}

// OneWireDevice is a bound one-wire device handle.
type OneWireDevice interface {
	// Convert triggers a temperature conversion and returns the raw
	// 1/16-degree code, or an error if the conversion failed.
	Convert() (int16, error)
	Close() error
}

// OneWireDigital is a DS18B20-style one-wire digital temperature probe.
// Any driver error closes the device handle and returns ErrDisconnected.
// The probe caches no temperature; the sensor registry's LastTemperature
// keeps the last good reading.
type OneWireDigital struct {
	mu     sync.Mutex
	romID  string
	bus    OneWireBus
	device OneWireDevice
}

// romIDToIdentity packs a 64-bit ROM code (already hex-encoded by the
// driver, e.g. "28-011572120bff") into its numeric identity.
func romIDToIdentity(romID string) uint64 {
	var id uint64
	for i := 0; i < len(romID); i++ {
		c := romID[i]
		var v uint64
		switch {
		case c >= '0' && c <= '9':
			v = uint64(c - '0')
		case c >= 'a' && c <= 'f':
			v = uint64(c-'a') + 10
		case c >= 'A' && c <= 'F':
			v = uint64(c-'A') + 10
		default:
			continue
		}
		id = (id << 4) | v
	}
	return id
}

// NewOneWireDigital binds a probe to an already-known ROM id on bus.
func NewOneWireDigital(bus OneWireBus, romID string) (*OneWireDigital, error) {
	p := &OneWireDigital{bus: bus, romID: romID}
	if err := p.Reinit(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *OneWireDigital) Kind() Kind { return KindOneWireDigital }

func (p *OneWireDigital) Identity() uint64 {
	return romIDToIdentity(p.romID)
}

func (p *OneWireDigital) Measure() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.device == nil {
		return 0, ErrUninitialized
	}

	raw, err := p.device.Convert()
	if err != nil {
		p.device.Close()
		p.device = nil
		return 0, ErrDisconnected
	}

	return dsRawToCelsius(raw), nil
}

func (p *OneWireDigital) Reinit() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.device != nil {
		p.device.Close()
		p.device = nil
	}

	dev, err := p.bus.Open(p.romID)
	if err != nil {
		return ErrDisconnected
	}
	p.device = dev
	return nil
}

func dsRawToCelsius(raw int16) float64 {
	return float64(raw) * 0.0625
}

// DetectOneWire walks the bus and returns the ROM ids of every present
// DS18B20-family device, matching hal.ListW1Devices' bounded-attempt search
// (spec §5: one-wire search bounded to 10 attempts).
func DetectOneWire(bus OneWireBus) ([]string, error) {
	var lastErr error
	for attempt := 0; attempt < 10; attempt++ {
		ids, err := bus.ListDevices()
		if err == nil {
			return ids, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
