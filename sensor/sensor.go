// Package sensor implements the registry that owns every configured Sensor
// (metadata layered on top of a probe.Probe), applies calibration and scale
// conversion, tracks connection health, and re-initializes probes after
// repeated failures. It corresponds to C3 in the design.
package sensor

import (
	"errors"
	"math"
	"sync"

	"github.com/Poit-alt/esp-brew-engine/metrics"
	"github.com/Poit-alt/esp-brew-engine/probe"
)

// reinitThreshold returns the consecutive-failure count that triggers a
// Reinit call: 3 for an RTD's uninitialized-handle failures (spec §4.3's
// invalid-handle case), 5 for everything else, including ordinary RTD
// disconnect/hardware-fault errors (S4).
func reinitThreshold(k probe.Kind, err error) int {
	if k == probe.KindSpiRtd && errors.Is(err, probe.ErrUninitialized) {
		return 3
	}
	return 5
}

// DisconnectedSentinel is published to UI-facing views in place of a real
// reading when a sensor is disconnected or faulted.
const DisconnectedSentinel = -999.0

// Colour is a UI hint; the zero value is white.
type Colour string

const White Colour = "white"

// Sensor is the registry's metadata record layered over a probe.
type Sensor struct {
	Probe probe.Probe

	Name              string
	Colour            Colour
	Show              bool
	UseForControl     bool
	AbsoluteOffset    float64
	RelativeMultiplier float64

	LastTemperature    float64
	Connected          bool
	ConsecutiveFailures int

	removedPermanently bool // DS18B20 conversion failures drop out of polling
}

func defaultSensor(p probe.Probe) *Sensor {
	return &Sensor{
		Probe:              p,
		Name:               "",
		Colour:             White,
		Show:               true,
		UseForControl:      true,
		RelativeMultiplier: 1.0,
	}
}

// Registry owns the identity -> Sensor mapping. Mutation is guarded by mu;
// per spec §5 the read loop must be paused (see PauseReads) while a
// mutation that touches bus devices is in progress.
type Registry struct {
	mu      sync.RWMutex
	sensors map[uint64]*Sensor

	pauseReads bool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{sensors: make(map[uint64]*Sensor)}
}

// PauseReads is the "pause-reads latch" from spec §5/§9: set while a
// sensor mutation is rebuilding the bus device map, cleared afterwards.
func (r *Registry) PauseReads(paused bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pauseReads = paused
}

// Detect asks the given probe list for present devices; new identities are
// added with defaults, known identities rebind their probe handle.
func (r *Registry) Detect(probes []probe.Probe) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range probes {
		id := p.Identity()
		if existing, ok := r.sensors[id]; ok {
			existing.Probe = p
			existing.Connected = true
			existing.removedPermanently = false
			continue
		}
		r.sensors[id] = defaultSensor(p)
	}
}

// Add registers a single new sensor explicitly (used by AddRtdSensor /
// AddNtcSensor command handlers). Fails if the identity already exists.
func (r *Registry) Add(p probe.Probe, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sensors[p.Identity()]; ok {
		return errors.New("sensor: identity already registered")
	}
	s := defaultSensor(p)
	s.Name = name
	r.sensors[p.Identity()] = s
	return nil
}

// Remove drops a sensor from the registry. It does not close or release
// the probe's underlying bus device.
func (r *Registry) Remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sensors, id)
}

// Get returns a snapshot copy of the sensor list.
func (r *Registry) Get() []*Sensor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Sensor, 0, len(r.sensors))
	for _, s := range r.sensors {
		out = append(out, s)
	}
	return out
}

// ReadResult is the output of ReadAll: per-sensor temperatures plus the
// average used by the control loop.
type ReadResult struct {
	// Temperatures maps sensor identity to its converted, calibrated
	// temperature. A disconnected/faulted sensor is reported as
	// DisconnectedSentinel here for UI consumption.
	Temperatures map[uint64]float64
	// AverageForControl is the mean of useForControl sensors that read
	// successfully this cycle, or NaN if none did (spec §9 open question
	// (b): the caller must treat NaN as "no update, keep previous target").
	AverageForControl float64
}

// ReadAll polls every registered probe, applies scale conversion and
// calibration, updates health counters, and computes the control average.
// scale converts a Celsius reading into the display unit.
func (r *Registry) ReadAll(scale func(c float64) float64) ReadResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := ReadResult{Temperatures: make(map[uint64]float64, len(r.sensors))}

	if r.pauseReads {
		result.AverageForControl = math.NaN()
		return result
	}

	var sum float64
	var count int

	for id, s := range r.sensors {
		if s.removedPermanently {
			continue
		}

		raw, err := s.Probe.Measure()
		if err != nil {
			r.handleFailure(s, err)
			result.Temperatures[id] = DisconnectedSentinel
			continue
		}

		s.Connected = true
		s.ConsecutiveFailures = 0

		converted := (scale(raw) + s.AbsoluteOffset) * nonZero(s.RelativeMultiplier)
		s.LastTemperature = converted
		metrics.SetSensorTemperature(s.Name, converted)

		if s.Show {
			result.Temperatures[id] = converted
		}

		if s.UseForControl {
			sum += converted
			count++
		}
	}

	if count == 0 {
		result.AverageForControl = math.NaN()
	} else {
		result.AverageForControl = sum / float64(count)
	}

	return result
}

func nonZero(v float64) float64 {
	if v == 0 {
		return 1
	}
	return v
}

// handleFailure applies spec §4.3's fault handling rules. Caller holds r.mu.
func (r *Registry) handleFailure(s *Sensor, err error) {
	s.Connected = false
	s.ConsecutiveFailures++
	metrics.IncSensorFailure(s.Name)

	if errors.Is(err, probe.ErrDisconnected) && s.Probe.Kind() == probe.KindOneWireDigital {
		// A DS18B20 failure permanently removes it from polling until an
		// explicit Detect call.
		s.removedPermanently = true
		return
	}

	if s.ConsecutiveFailures >= reinitThreshold(s.Probe.Kind(), err) {
		// At most one reinit attempt per threshold crossing; the counter
		// resets regardless of Reinit's outcome (spec §9 open question (a)).
		_ = s.Probe.Reinit()
		s.ConsecutiveFailures = 0
	}
}

// Update applies a partial mutation (rename, offset/multiplier change,
// show/useForControl toggle, CS/analog pin rebind) to the sensor
// identified by id.
type Update struct {
	ID                 uint64
	Name               *string
	Colour             *Colour
	Show               *bool
	UseForControl      *bool
	AbsoluteOffset     *float64
	RelativeMultiplier *float64
	// NewPin reassigns the sensor's CS or analog pin (spec §4.3), which
	// reassigns its identity and rebinds the underlying probe. Only valid
	// for SpiRtd/AnalogNtc sensors (anything implementing
	// probe.PinRebinder); disallowed if the target pin is already bound
	// to another sensor of the same probe kind.
	NewPin *int
}

// ErrPinInUse is returned by Mutate when a pin rename targets a pin
// already bound to another sensor.
var ErrPinInUse = errors.New("sensor: pin already in use")

// errNotPinRebindable is returned when NewPin is set on a sensor whose
// probe kind has no configurable pin (e.g. a DS18B20).
var errNotPinRebindable = errors.New("sensor: sensor does not support pin rebinding")

// Mutate applies updates under the pause-reads latch's protection: callers
// are expected to have already called PauseReads(true) and to clear it
// afterwards, matching the two-second-drain protocol in spec §5.
func (r *Registry) Mutate(updates []Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range updates {
		s, ok := r.sensors[u.ID]
		if !ok {
			return errors.New("sensor: unknown identity")
		}

		if u.NewPin != nil {
			newID, rebindable := probe.IdentityFor(s.Probe.Kind(), *u.NewPin)
			if !rebindable {
				return errNotPinRebindable
			}
			if newID != u.ID {
				if _, exists := r.sensors[newID]; exists {
					return ErrPinInUse
				}
			}
			rebinder, ok := s.Probe.(probe.PinRebinder)
			if !ok {
				return errNotPinRebindable
			}
			newProbe, err := rebinder.RebindPin(*u.NewPin)
			if err != nil {
				return err
			}
			if newID != u.ID {
				delete(r.sensors, u.ID)
				r.sensors[newID] = s
			}
			s.Probe = newProbe
		}

		if u.Name != nil {
			s.Name = *u.Name
		}
		if u.Colour != nil {
			s.Colour = *u.Colour
		}
		if u.Show != nil {
			s.Show = *u.Show
		}
		if u.UseForControl != nil {
			s.UseForControl = *u.UseForControl
		}
		if u.AbsoluteOffset != nil {
			s.AbsoluteOffset = *u.AbsoluteOffset
		}
		if u.RelativeMultiplier != nil {
			s.RelativeMultiplier = *u.RelativeMultiplier
		}
	}
	return nil
}
