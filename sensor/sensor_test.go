package sensor

import (
	"math"
	"testing"

	"github.com/Poit-alt/esp-brew-engine/probe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProbe struct {
	id       uint64
	kind     probe.Kind
	temp     float64
	err      error
	reinits  int
}

func (f *fakeProbe) Measure() (float64, error) { return f.temp, f.err }
func (f *fakeProbe) Identity() uint64          { return f.id }
func (f *fakeProbe) Kind() probe.Kind          { return f.kind }
func (f *fakeProbe) Reinit() error             { f.reinits++; f.err = nil; return nil }

func identity(c float64) float64 { return c }

// fakeRebindableProbe implements probe.PinRebinder so tests can exercise
// the pin-rename path without a real SpiRtd/AnalogNtc.
type fakeRebindableProbe struct {
	fakeProbe
	pin       int
	rebindErr error
}

func (f *fakeRebindableProbe) Identity() uint64 {
	id, _ := probe.IdentityFor(f.kind, f.pin)
	return id
}

func (f *fakeRebindableProbe) RebindPin(pin int) (probe.Probe, error) {
	if f.rebindErr != nil {
		return nil, f.rebindErr
	}
	return &fakeRebindableProbe{fakeProbe: f.fakeProbe, pin: pin}, nil
}

func TestReadAllAveragesControlSensors(t *testing.T) {
	r := New()
	p1 := &fakeProbe{id: 1, kind: probe.KindSpiRtd, temp: 60}
	p2 := &fakeProbe{id: 2, kind: probe.KindSpiRtd, temp: 64}
	r.Detect([]probe.Probe{p1, p2})

	res := r.ReadAll(identity)
	assert.InDelta(t, 62, res.AverageForControl, 1e-9)
	assert.Equal(t, 60.0, res.Temperatures[1])
	assert.Equal(t, 64.0, res.Temperatures[2])
}

func TestReadAllAllDisconnectedYieldsNaN(t *testing.T) {
	r := New()
	p1 := &fakeProbe{id: 1, kind: probe.KindSpiRtd, err: probe.ErrDisconnected}
	r.Detect([]probe.Probe{p1})

	res := r.ReadAll(identity)
	assert.True(t, math.IsNaN(res.AverageForControl))
	assert.Equal(t, DisconnectedSentinel, res.Temperatures[1])
}

func TestDS18B20FailureRemovesPermanently(t *testing.T) {
	r := New()
	p1 := &fakeProbe{id: 1, kind: probe.KindOneWireDigital, err: probe.ErrDisconnected}
	r.Detect([]probe.Probe{p1})

	r.ReadAll(identity)
	res := r.ReadAll(identity)
	// second read should not even attempt the probe again
	_, present := res.Temperatures[1]
	assert.False(t, present)
}

func TestRtdReinitsAfterThreeUninitializedFailures(t *testing.T) {
	r := New()
	p1 := &fakeProbe{id: 1, kind: probe.KindSpiRtd, err: probe.ErrUninitialized}
	r.Detect([]probe.Probe{p1})

	for i := 0; i < 3; i++ {
		r.ReadAll(identity)
	}
	assert.Equal(t, 1, p1.reinits)

	s := r.Get()[0]
	assert.Equal(t, 0, s.ConsecutiveFailures)
}

func TestRtdReinitsAfterFiveOrdinaryFailures(t *testing.T) {
	r := New()
	p1 := &fakeProbe{id: 1, kind: probe.KindSpiRtd, err: probe.ErrHardwareFault}
	r.Detect([]probe.Probe{p1})

	for i := 0; i < 4; i++ {
		r.ReadAll(identity)
	}
	assert.Equal(t, 0, p1.reinits)

	r.ReadAll(identity)
	assert.Equal(t, 1, p1.reinits)
}

func TestOffsetAndMultiplierApply(t *testing.T) {
	r := New()
	p1 := &fakeProbe{id: 1, kind: probe.KindSpiRtd, temp: 100}
	r.Detect([]probe.Probe{p1})

	offset := 1.0
	mult := 0.5
	require.NoError(t, r.Mutate([]Update{{ID: 1, AbsoluteOffset: &offset, RelativeMultiplier: &mult}}))

	res := r.ReadAll(identity)
	assert.InDelta(t, (100+1)*0.5, res.Temperatures[1], 1e-9)
}

func TestMutateRebindsPinAndReassignsIdentity(t *testing.T) {
	r := New()
	p1 := &fakeRebindableProbe{fakeProbe: fakeProbe{kind: probe.KindSpiRtd}, pin: 5}
	oldID := p1.Identity()
	r.Detect([]probe.Probe{p1})

	newPin := 9
	require.NoError(t, r.Mutate([]Update{{ID: oldID, NewPin: &newPin}}))

	newID, _ := probe.IdentityFor(probe.KindSpiRtd, newPin)
	sensors := r.Get()
	require.Len(t, sensors, 1)
	assert.Equal(t, newID, sensors[0].Probe.Identity())
}

func TestMutateRejectsPinAlreadyInUse(t *testing.T) {
	r := New()
	p1 := &fakeRebindableProbe{fakeProbe: fakeProbe{kind: probe.KindSpiRtd}, pin: 5}
	p2 := &fakeRebindableProbe{fakeProbe: fakeProbe{kind: probe.KindSpiRtd}, pin: 9}
	r.Detect([]probe.Probe{p1, p2})

	newPin := 9
	err := r.Mutate([]Update{{ID: p1.Identity(), NewPin: &newPin}})
	assert.ErrorIs(t, err, ErrPinInUse)
}

func TestMutateRejectsPinRenameOnUnrebindableKind(t *testing.T) {
	r := New()
	p1 := &fakeProbe{id: 1, kind: probe.KindOneWireDigital}
	r.Detect([]probe.Probe{p1})

	newPin := 3
	err := r.Mutate([]Update{{ID: 1, NewPin: &newPin}})
	assert.Error(t, err)
}

func TestPauseReadsSkipsPolling(t *testing.T) {
	r := New()
	p1 := &fakeProbe{id: 1, kind: probe.KindSpiRtd, temp: 60}
	r.Detect([]probe.Probe{p1})
	r.PauseReads(true)

	res := r.ReadAll(identity)
	assert.Empty(t, res.Temperatures)
	assert.True(t, math.IsNaN(res.AverageForControl))
}
