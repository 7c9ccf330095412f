//go:build linux && arm

package probe

import (
	"github.com/zlowred/embd"
	_ "github.com/zlowred/embd/host/rpi"
)

// EmbdOneWireBus adapts github.com/zlowred/embd's W1Bus to OneWireBus,
// the same dependency the teacher's hal.Hal uses for its DS18B20 poller.
type EmbdOneWireBus struct {
	bus embd.W1Bus
}

// NewEmbdOneWireBus opens one-wire bus id (host-numbered, usually 0).
func NewEmbdOneWireBus(id int) (*EmbdOneWireBus, error) {
	if err := embd.InitW1(); err != nil {
		return nil, err
	}
	return &EmbdOneWireBus{bus: embd.NewW1Bus(id)}, nil
}

func (b *EmbdOneWireBus) ListDevices() ([]string, error) {
	devs, err := b.bus.ListDevices()
	if err != nil {
		return nil, err
	}
	res := make([]string, 0, len(devs))
	for _, d := range devs {
		if len(d) > 3 && d[:3] == "28-" {
			res = append(res, d)
		}
	}
	return res, nil
}

func (b *EmbdOneWireBus) Open(romID string) (OneWireDevice, error) {
	dev, err := b.bus.Open(romID)
	if err != nil {
		return nil, err
	}
	return &embdOneWireDevice{dev: dev}, nil
}

type embdOneWireDevice struct {
	dev embd.W1Device
}

func (d *embdOneWireDevice) Convert() (int16, error) {
	if err := d.dev.ReadTemperature(); err != nil {
		return 0, err
	}
	return d.dev.Raw, nil
}

func (d *embdOneWireDevice) Close() error {
	return nil
}

// EmbdSpiRtdBus adapts embd's SPI bus to SpiRtdBus for a MAX31865 device
// per chip select. Each chip-select pin gets its own embd.SPIBus instance
// since embd exposes SPI at the bus rather than per-device level.
type EmbdSpiRtdBus struct {
	buses map[int]embd.SPIBus
}

// NewEmbdSpiRtdBus prepares an (initially empty) per-CS bus map. Buses are
// opened lazily in Configure so unused chip-selects never touch hardware.
func NewEmbdSpiRtdBus() *EmbdSpiRtdBus {
	return &EmbdSpiRtdBus{buses: make(map[int]embd.SPIBus)}
}

func (b *EmbdSpiRtdBus) Configure(csPin int) error {
	bus := embd.NewSPIBus(embd.SPIMode1, csPin, 5000000, 8, 0)
	// Config register 0x80: Vbias on, auto conversion mode, 50Hz filter.
	if err := bus.TransferAndReceiveData([]byte{0x80, 0xC2}); err != nil {
		return err
	}
	b.buses[csPin] = bus
	return nil
}

func (b *EmbdSpiRtdBus) ReadCode(csPin int) (uint16, byte, error) {
	bus, ok := b.buses[csPin]
	if !ok {
		return 0, 0, ErrUninitialized
	}
	data, err := bus.ReceiveData(4)
	if err != nil {
		return 0, 0, err
	}
	code := (uint16(data[0])<<8 | uint16(data[1])) >> 1
	fault := data[3]
	return code, fault, nil
}

func (b *EmbdSpiRtdBus) ClearFault(csPin int) error {
	bus, ok := b.buses[csPin]
	if !ok {
		return ErrUninitialized
	}
	return bus.TransferAndReceiveData([]byte{0x80, 0xC2})
}

// EmbdAnalogAdc adapts embd's ADS1115 convertor (already used by the
// teacher for its presence/light sensor) to the AnalogAdc capability.
type EmbdAnalogAdc struct {
	i2c      embd.I2CBus
	addr     byte
	supplyMv float64
}

// NewEmbdAnalogAdc opens the ADS1115 on the given I2C bus and address.
func NewEmbdAnalogAdc(i2c embd.I2CBus, addr byte, supplyMv float64) *EmbdAnalogAdc {
	return &EmbdAnalogAdc{i2c: i2c, addr: addr, supplyMv: supplyMv}
}

func (a *EmbdAnalogAdc) ReadCounts(pin int) (int, error) {
	// The ADS1115 multiplexes four single-ended channels; pin selects one.
	if err := a.i2c.WriteByte(a.addr, byte(0x40|pin<<4)); err != nil {
		return 0, err
	}
	hi, err := a.i2c.ReadByteFromReg(a.addr, 0x00)
	if err != nil {
		return 0, err
	}
	lo, err := a.i2c.ReadByteFromReg(a.addr, 0x01)
	if err != nil {
		return 0, err
	}
	return int(hi)<<8 | int(lo), nil
}

func (a *EmbdAnalogAdc) SupplyMillivolts() float64 {
	return a.supplyMv
}

// NewPlatformBuses opens the real one-wire, SPI-RTD, and analog-ADC buses
// for the host platform, giving main.go a single build-tag-independent
// entry point (see bus_sim.go for the simulated counterpart).
func NewPlatformBuses() (OneWireBus, SpiRtdBus, AnalogAdc, error) {
	if err := embd.InitI2C(); err != nil {
		return nil, nil, nil, err
	}
	oneWire, err := NewEmbdOneWireBus(0)
	if err != nil {
		return nil, nil, nil, err
	}
	i2c := embd.NewI2CBus(1)
	return oneWire, NewEmbdSpiRtdBus(), NewEmbdAnalogAdc(i2c, 0x48, 3300), nil
}
