// Package stir implements the stir task named alongside read/pid/output/
// control in spec §5's cooperating-task list: interval-based GPIO
// actuation of a stir motor within a configurable duty cycle. Grounded on
// the original's BrewEngine::startStir/stopStir/stirLoop
// (brew-engine.cpp:736,769,785) — a dedicated task toggling stir_PIN
// between an interval start/stop offset within a repeating cycle length,
// with an "always on" shortcut when the interval spans the whole cycle.
// Shaped like output.Loop: a one-second ticker driving a GPIOWriter, with
// Stop forcing the pin low.
package stir

import (
	"sync"
	"time"
)

// GPIOWriter sets a single output pin high or low.
type GPIOWriter interface {
	Write(pin int, high bool) error
}

// Config is the interval-cycle shape from spec §4.8's StartStir payload
// (the original's stirConfig "max"/"intervalStart"/"intervalStop"),
// all in minutes.
type Config struct {
	Max           int
	IntervalStart int
	IntervalStop  int
}

// DefaultConfig runs continuously for a 5-minute cycle: intervalStart 0
// through intervalStop == max hits stirLoop's "always on" shortcut.
var DefaultConfig = Config{Max: 5, IntervalStart: 0, IntervalStop: 5}

// Loop drives the stir GPIO pin on the configured interval cycle. A pin
// of 0 means unconfigured, matching the original's "!this->stir_PIN"
// guard that turns Start/Stop into no-ops.
type Loop struct {
	gpio GPIOWriter
	pin  int

	mu         sync.Mutex
	cfg        Config
	running    bool
	cycleStart time.Time
	quit       chan struct{}
}

// New constructs a stir loop bound to pin. pin == 0 disables it.
func New(gpio GPIOWriter, pin int) *Loop {
	return &Loop{gpio: gpio, pin: pin}
}

// Start begins (or reconfigures, if already running) the interval cycle,
// resetting the cycle clock. A cfg whose Max is not positive is replaced
// whole by DefaultConfig; other zero fields are kept as given.
func (l *Loop) Start(cfg Config) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pin == 0 {
		return
	}

	if cfg.Max <= 0 {
		cfg.Max = DefaultConfig.Max
		cfg.IntervalStart = DefaultConfig.IntervalStart
		cfg.IntervalStop = DefaultConfig.IntervalStop
	}
	l.cfg = cfg
	l.cycleStart = time.Now()

	if l.running {
		return
	}
	l.running = true
	l.quit = make(chan struct{})
	go l.run(l.quit)
}

// Stop halts the cycle and forces the pin low immediately, per the
// original's stopStir "stop at once" comment.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	quit := l.quit
	l.mu.Unlock()
	close(quit)

	if l.pin != 0 {
		_ = l.gpio.Write(l.pin, false)
	}
}

// SetPin rebinds the loop to a different GPIO pin, matching the
// original's live stir_PIN update on SaveSystemSettings
// (brew-engine.cpp:138-141). A pin of 0 disables the loop; changing the
// pin while running does not itself stop the cycle, mirroring the
// original leaving stirRun untouched across a pin change.
func (l *Loop) SetPin(pin int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pin = pin
}

// Status reports the text spec §4.8's Data command surfaces as
// stirStatus: "Disabled" when no pin is configured, else "Running" or
// "Idle".
func (l *Loop) Status() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pin == 0 {
		return "Disabled"
	}
	if l.running {
		return "Running"
	}
	return "Idle"
}

func (l *Loop) run(quit chan struct{}) {
	t := time.NewTicker(time.Second)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			l.tick()
		case <-quit:
			return
		}
	}
}

func (l *Loop) tick() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		return
	}

	if l.cfg.IntervalStart == 0 && l.cfg.IntervalStop == l.cfg.Max {
		_ = l.gpio.Write(l.pin, true)
		return
	}

	now := time.Now()
	start := l.cycleStart.Add(time.Duration(l.cfg.IntervalStart) * time.Minute)
	stop := l.cycleStart.Add(time.Duration(l.cfg.IntervalStop) * time.Minute)
	cycleEnd := l.cycleStart.Add(time.Duration(l.cfg.Max) * time.Minute)

	if !now.Before(start) && !now.After(stop) {
		_ = l.gpio.Write(l.pin, true)
	} else {
		_ = l.gpio.Write(l.pin, false)
	}

	if !now.Before(cycleEnd) {
		l.cycleStart = cycleEnd
	}
}
