package output

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Poit-alt/esp-brew-engine/heater"
)

type fakeGPIO struct {
	mu     sync.Mutex
	levels map[int]bool
}

func newFakeGPIO() *fakeGPIO { return &fakeGPIO{levels: map[int]bool{}} }

func (f *fakeGPIO) Write(pin int, high bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels[pin] = high
	return nil
}

func (f *fakeGPIO) get(pin int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.levels[pin]
}

func TestTickMirrorsBurnFlag(t *testing.T) {
	s := heater.New()
	require.NoError(t, s.Replace([]*heater.Heater{{ID: 1, OutputPin: 5, PreferenceOrdinal: 1, BurnFlag: true}}))
	gpio := newFakeGPIO()
	l := New(s, gpio, false)

	l.tick()
	assert.True(t, gpio.get(5))
}

func TestInvertedPolarity(t *testing.T) {
	s := heater.New()
	require.NoError(t, s.Replace([]*heater.Heater{{ID: 1, OutputPin: 5, PreferenceOrdinal: 1, BurnFlag: true}}))
	gpio := newFakeGPIO()
	l := New(s, gpio, true)

	l.tick()
	assert.False(t, gpio.get(5))
}

func TestStopForcesAllLow(t *testing.T) {
	s := heater.New()
	require.NoError(t, s.Replace([]*heater.Heater{{ID: 1, OutputPin: 5, PreferenceOrdinal: 1, BurnFlag: true}}))
	gpio := newFakeGPIO()
	l := New(s, gpio, false)

	done := make(chan struct{})
	go func() {
		l.Run()
		close(done)
	}()
	l.tick() // ensure at least one live tick set the pin high before stopping
	l.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not exit after Stop")
	}
	assert.False(t, gpio.get(5))
}
