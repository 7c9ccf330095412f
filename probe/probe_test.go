package probe

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOneWireDigitalMeasure(t *testing.T) {
	bus := NewSimOneWireBus("28-aaaa")
	p, err := NewOneWireDigital(bus, "28-aaaa")
	require.NoError(t, err)

	assert.Equal(t, KindOneWireDigital, p.Kind())
	assert.NotZero(t, p.Identity())

	temp, err := p.Measure()
	require.NoError(t, err)
	assert.InDelta(t, 21.1, temp, 1.0)
}

func TestOneWireDigitalUnknownRomFails(t *testing.T) {
	bus := NewSimOneWireBus("28-aaaa")
	_, err := NewOneWireDigital(bus, "28-ffff")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDisconnected))
}

func TestSpiRtdIdentityEncodesChipSelect(t *testing.T) {
	p, err := NewSpiRtd(NewSimSpiRtdBus(), 5, 100, 430)
	require.NoError(t, err)
	assert.Equal(t, uint64(spiRtdIdentityBase+5), p.Identity())
	assert.Equal(t, KindSpiRtd, p.Kind())

	temp, err := p.Measure()
	require.NoError(t, err)
	assert.InDelta(t, 18.2, temp, 1.0)
}

type fixedCodeBus struct {
	code  uint16
	fault byte
}

func (b *fixedCodeBus) Configure(csPin int) error { return nil }
func (b *fixedCodeBus) ReadCode(csPin int) (uint16, byte, error) {
	return b.code, b.fault, nil
}
func (b *fixedCodeBus) ClearFault(csPin int) error { return nil }

func TestSpiRtdOutOfRangeResistance(t *testing.T) {
	// code chosen so R = code*4300/32768 ~= 100 ohms, far below 0.6*1000
	p, err := NewSpiRtd(&fixedCodeBus{code: 762}, 0, 1000, 4300)
	require.NoError(t, err)
	_, err = p.Measure()
	assert.True(t, errors.Is(err, ErrOutOfRange))
}

func TestSpiRtdFaultMapsToDisconnected(t *testing.T) {
	p, err := NewSpiRtd(&fixedCodeBus{code: 8000, fault: faultRTDInLow}, 0, 100, 430)
	require.NoError(t, err)
	_, err = p.Measure()
	assert.True(t, errors.Is(err, ErrDisconnected))
}

func TestAnalogNtcIdentityEncodesPin(t *testing.T) {
	p := NewAnalogNtc(NewSimAnalogAdc(), 3, 3950, 10000, 10000)
	assert.Equal(t, uint64(analogNtcIdentityBase+3), p.Identity())
	assert.Equal(t, KindAnalogNtc, p.Kind())

	temp, err := p.Measure()
	require.NoError(t, err)
	assert.InDelta(t, 25, temp, 15) // wide tolerance: sim oscillates the divider
}

func TestAnalogNtcDefaultsBeta(t *testing.T) {
	p := NewAnalogNtc(NewSimAnalogAdc(), 0, 0, 10000, 10000)
	assert.Equal(t, 3950.0, p.beta)
}
