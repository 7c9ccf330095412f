package stir

import (
	"sync"
	"testing"
	"time"
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

func TestUnconfiguredPinIgnoresStartStop(t *testing.T) {
	gpio := newFakeGPIO()
	l := New(gpio, 0)

	l.Start(Config{Max: 5, IntervalStop: 5})
	if l.Status() != "Disabled" {
		t.Fatalf("expected Disabled, got %s", l.Status())
	}
}

func TestAlwaysOnShortcutDrivesPinHigh(t *testing.T) {
	gpio := newFakeGPIO()
	l := New(gpio, 7)

	l.Start(Config{Max: 5, IntervalStart: 0, IntervalStop: 5})
	l.tick()

	if !gpio.get(7) {
		t.Fatal("expected pin high under the always-on interval shortcut")
	}
	if l.Status() != "Running" {
		t.Fatalf("expected Running, got %s", l.Status())
	}
}

func TestIntervalOutsideWindowDrivesPinLow(t *testing.T) {
	gpio := newFakeGPIO()
	l := New(gpio, 7)

	l.Start(Config{Max: 10, IntervalStart: 5, IntervalStop: 8})
	l.tick() // cycle just started, before the interval window opens

	if gpio.get(7) {
		t.Fatal("expected pin low before the interval window opens")
	}
}

func TestStopForcesPinLowAndExitsLoop(t *testing.T) {
	gpio := newFakeGPIO()
	l := New(gpio, 7)
	l.Start(Config{Max: 5, IntervalStop: 5})
	l.tick()

	l.Stop()

	if gpio.get(7) {
		t.Fatal("expected pin low after Stop")
	}
	if l.Status() != "Idle" {
		t.Fatalf("expected Idle, got %s", l.Status())
	}
}

func TestStartTwiceDoesNotSpawnSecondLoop(t *testing.T) {
	gpio := newFakeGPIO()
	l := New(gpio, 7)
	l.Start(Config{Max: 5, IntervalStop: 5})
	first := l.quit

	l.Start(Config{Max: 5, IntervalStop: 5})
	if l.quit != first {
		t.Fatal("Start while already running must not replace the quit channel")
	}

	l.Stop()
	time.Sleep(10 * time.Millisecond)
}
