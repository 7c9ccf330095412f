// Package control implements the coupled trio of loops plus the schedule
// runner state machine (C8): read, PID, output-driving duty distribution,
// and control. Grounded on the teacher's pid.PID and heatpump.HeatPump,
// which each ran a select loop over a time.Ticker and a set of hub
// broadcast channels; here the four activities share an Engine's
// mutex-guarded scalar state directly, per spec §5's "plain-old-data
// scalars, pointer updates atomic" model, with a hub.Hub used only to fan
// samples and log events out to external subscribers (the MQTT publisher)
// rather than for inter-loop coordination. The session recorder and cloud
// sink are called directly from the read loop.
package control

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"github.com/Poit-alt/esp-brew-engine/cloudsink"
	"github.com/Poit-alt/esp-brew-engine/heater"
	"github.com/Poit-alt/esp-brew-engine/hub"
	"github.com/Poit-alt/esp-brew-engine/metrics"
	"github.com/Poit-alt/esp-brew-engine/pidctl"
	"github.com/Poit-alt/esp-brew-engine/schedule"
	"github.com/Poit-alt/esp-brew-engine/sensor"
	"github.com/Poit-alt/esp-brew-engine/session"
)

// Status names the control loop's current state, spec §4.6's state table.
type Status string

const (
	StatusIdle     Status = "Idle"
	StatusNormal   Status = "Normal"
	StatusOvertime Status = "Overtime"
)

var allStatuses = []string{string(StatusIdle), string(StatusNormal), string(StatusOvertime)}

// BoostStatus names the boost sub-state, forced onto the PID output.
type BoostStatus string

const (
	BoostNone  BoostStatus = ""
	BoostBoost BoostStatus = "Boost"
	BoostRest  BoostStatus = "Rest"
)

// Config bundles the tunable cycle parameters, all persisted via settings.
type Config struct {
	ReadPeriod           time.Duration // 500ms production, 1s fallback
	PIDLoopTimeSeconds   int           // typically 60
	StepIntervalSeconds  int           // schedule compiler granularity
	SampleEveryNTicks    int           // read-loop ticks between session samples
	TempMarginCelsius    float64       // overtime entry/exit margin
	BoostBaselinePercent int           // 0 disables boost
	BuzzerSeconds        int
	ScaleFn              func(celsius float64) float64

	// CloudSink, when non-nil, receives one telemetry sample every
	// SampleEveryNTicks read-loop ticks while a run is active (spec §4.6). Client.Send applies
	// its own sendInterval rate limit internally, so a configured client
	// can be handed a tighter tick cadence than its actual send rate.
	CloudSink *cloudsink.Client
	Hostname  string
}

// GPIOWriter drives the buzzer output; kept narrow, matching spec §9's
// "cyclic references" guidance (Engine depends on a callback, never the
// reverse).
type GPIOWriter interface {
	Write(pin int, high bool) error
}

// Engine owns every mutable field the four loops read and write. All
// access goes through mu; the loops are cheap enough (1 Hz or slower)
// that a plain mutex, rather than the teacher's ad-hoc pauseReads/hub
// scheme, is the idiomatic Go choice here.
type Engine struct {
	mu sync.Mutex

	sensors *sensor.Registry
	heaters *heater.Set
	pid     *pidctl.Controller
	hub     *hub.Hub
	rec     *session.Recorder
	cfg     Config

	buzzerPin int
	gpio      GPIOWriter

	run        bool // engine-wide kill switch
	controlRun bool // per-brew tasks gate

	currentTemperature float64
	previousSample      float64
	targetTemperature  float64
	pidOutputDuty      float64
	status             Status
	boostStatus        BoostStatus

	manualOverrideTarget *float64
	manualOverrideDuty   *float64

	schedule      schedule.Schedule
	steps         []schedule.ExecutionStep
	notifications []schedule.Notification
	stepIndex     int
	overtimeStart time.Time

	resetPid chan struct{}
	readTick int
}

// New constructs an idle Engine. gpio may be nil if no buzzer is wired.
func New(sensors *sensor.Registry, heaters *heater.Set, pid *pidctl.Controller, h *hub.Hub, rec *session.Recorder, gpio GPIOWriter, buzzerPin int, cfg Config) *Engine {
	if cfg.ReadPeriod <= 0 {
		cfg.ReadPeriod = 500 * time.Millisecond
	}
	if cfg.PIDLoopTimeSeconds <= 0 {
		cfg.PIDLoopTimeSeconds = 60
	}
	if cfg.StepIntervalSeconds <= 0 {
		cfg.StepIntervalSeconds = 60
	}
	if cfg.SampleEveryNTicks <= 0 {
		cfg.SampleEveryNTicks = 6
	}
	if cfg.ScaleFn == nil {
		cfg.ScaleFn = func(c float64) float64 { return c }
	}
	return &Engine{
		sensors: sensors, heaters: heaters, pid: pid, hub: h, rec: rec, gpio: gpio, buzzerPin: buzzerPin, cfg: cfg,
		run: true, currentTemperature: math.NaN(), previousSample: math.NaN(),
		status: StatusIdle, resetPid: make(chan struct{}, 1),
	}
}

// Shutdown clears the engine-wide kill switch; loop Run methods exit at
// their next sleep boundary.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	e.run = false
	e.mu.Unlock()
}

func (e *Engine) alive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.run
}

// Start begins a brew run against sched, compiling it from the engine's
// current temperature. Idempotent: starting while already running is a
// no-op, per spec §8 testable property 6.
func (e *Engine) Start(sched schedule.Schedule) error {
	e.mu.Lock()
	if e.controlRun {
		e.mu.Unlock()
		return nil
	}

	current := e.currentTemperature
	if math.IsNaN(current) {
		current = 0
	}

	result := schedule.Compile(schedule.CompileInput{
		Schedule:             sched,
		StartTimePoint:       time.Now(),
		CurrentTemperature:   current,
		StepIntervalSeconds:  e.cfg.StepIntervalSeconds,
		BoostBaselinePercent: e.cfg.BoostBaselinePercent,
	})

	e.schedule = sched
	e.steps = result.Steps
	e.notifications = result.Notifications
	e.stepIndex = 0
	e.controlRun = true
	e.status = StatusNormal
	e.boostStatus = BoostNone
	e.manualOverrideTarget = nil
	e.manualOverrideDuty = nil
	if len(e.steps) > 0 {
		e.targetTemperature = e.steps[0].TargetTemperature
	}
	e.pid.SelectProfile(sched.IsBoil)
	e.pid.Reset()
	e.mu.Unlock()

	metrics.SetControlStatus(string(StatusNormal), allStatuses)
	e.hub.PublishLog("info", "Start "+sched.Name)
	_, err := e.rec.Start(sched.Name)
	return err
}

// Stop ends the current brew run. Idempotent: stopping when not running
// is a no-op.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.controlRun {
		e.mu.Unlock()
		return nil
	}
	e.controlRun = false
	e.status = StatusIdle
	e.boostStatus = BoostNone
	e.mu.Unlock()

	metrics.SetControlStatus(string(StatusIdle), allStatuses)
	heater.Distribute(e.heaters.All(), 0)
	e.hub.PublishLog("info", "Stop")
	_, err := e.rec.Stop()
	return err
}

// SetManualTarget overrides the scheduled target; nil clears it.
func (e *Engine) SetManualTarget(v *float64) {
	e.mu.Lock()
	e.manualOverrideTarget = v
	e.mu.Unlock()
}

// SetManualDuty overrides the PID output; nil clears it.
func (e *Engine) SetManualDuty(v *float64) {
	e.mu.Lock()
	e.manualOverrideDuty = v
	e.mu.Unlock()
	e.requestPidReset()
}

func (e *Engine) requestPidReset() {
	select {
	case e.resetPid <- struct{}{}:
	default:
	}
}

// Snapshot is a read-only copy of engine state, for the dispatcher's Data
// command.
type Snapshot struct {
	CurrentTemperature float64
	TargetTemperature  float64
	PIDDuty            float64
	Status             Status
	BoostStatus        BoostStatus
	InOverTime         bool
	Running            bool
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		CurrentTemperature: e.currentTemperature,
		TargetTemperature:  e.targetTemperature,
		PIDDuty:            e.pidOutputDuty,
		Status:             e.status,
		BoostStatus:        e.boostStatus,
		InOverTime:         e.status == StatusOvertime,
		Running:            e.controlRun,
	}
}

// RunningSchedule returns the compiled steps and notifications for the
// current run, so the dispatcher's GetRunningSchedule command can report
// them alongside the running version (spec §4.8).
func (e *Engine) RunningSchedule() ([]schedule.ExecutionStep, []schedule.Notification) {
	e.mu.Lock()
	defer e.mu.Unlock()
	steps := make([]schedule.ExecutionStep, len(e.steps))
	copy(steps, e.steps)
	notifications := make([]schedule.Notification, len(e.notifications))
	copy(notifications, e.notifications)
	return steps, notifications
}

// RunRead is the read loop (spec §4.6): polls sensors every ReadPeriod,
// publishes measurements, and pushes session samples every N ticks.
func (e *Engine) RunRead() {
	t := time.NewTicker(e.cfg.ReadPeriod)
	defer t.Stop()
	for e.alive() {
		<-t.C
		if e.sensors == nil {
			continue
		}
		result := e.sensors.ReadAll(e.cfg.ScaleFn)

		e.mu.Lock()
		if !math.IsNaN(result.AverageForControl) {
			e.previousSample = e.currentTemperature
			e.currentTemperature = result.AverageForControl
		}
		current := e.currentTemperature
		target := e.targetTemperature
		duty := e.pidOutputDuty
		status := e.status
		controlRun := e.controlRun
		e.readTick++
		tick := e.readTick
		e.mu.Unlock()

		e.hub.PublishSample(hub.Sample{Time: time.Now(), Current: current, Target: target, Duty: duty})

		if controlRun && tick%e.cfg.SampleEveryNTicks == 0 {
			if err := e.rec.Push(session.Sample{Timestamp: time.Now(), AvgTemp: current, TargetTemp: target, PIDDuty: duty}); err != nil {
				log.Printf("control: push session sample: %v", err)
			}
			e.publishCloudSample(current, target, duty, status)
		}
	}
}

// publishCloudSample sends one sample to the configured cloud sink,
// non-blocking so a slow or unreachable cloud endpoint never stalls the
// read loop (spec §7: "no blocking of the control loops").
func (e *Engine) publishCloudSample(current, target, duty float64, status Status) {
	if e.cfg.CloudSink == nil {
		return
	}
	sessionID, _ := e.rec.CurrentID()
	sample := cloudsink.Sample{
		Temperature: current, TargetTemperature: target, PIDOutput: duty,
		Status: string(status), Hostname: e.cfg.Hostname, SessionID: sessionID,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.cfg.CloudSink.Send(ctx, sample); err != nil {
			log.Printf("control: cloud sink send: %v", err)
		}
	}()
}

// RunPID is the PID loop (spec §4.6): every PIDLoopTimeSeconds, computes a
// duty percentage, distributes it across heaters, and schedules each
// heater's burnFlag window.
func (e *Engine) RunPID() {
	for e.alive() {
		e.runPidCycle()
	}
}

func (e *Engine) runPidCycle() {
	cycle := time.Duration(e.cfg.PIDLoopTimeSeconds) * time.Second
	timer := time.NewTimer(cycle)
	defer timer.Stop()

	e.mu.Lock()
	controlRun := e.controlRun
	current := e.currentTemperature
	target := e.targetTemperature
	if e.manualOverrideTarget != nil {
		target = *e.manualOverrideTarget
	}
	manualDuty := e.manualOverrideDuty
	boost := e.boostStatus
	e.mu.Unlock()

	var duty float64
	switch {
	case !controlRun:
		duty = 0
	case manualDuty != nil:
		duty = *manualDuty
	case boost == BoostBoost:
		duty = 100
	case boost == BoostRest:
		duty = 0
	case math.IsNaN(current):
		duty = 0
	default:
		duty = e.pid.Update(current, target, time.Now())
	}

	e.mu.Lock()
	e.pidOutputDuty = duty
	isBoil := e.schedule.IsBoil
	e.mu.Unlock()

	metrics.SetDuty(duty)
	metrics.SetTarget(target)

	enabled := e.heaters.Enabled(isBoil)
	heater.Distribute(enabled, int(duty+0.5))

	stopFlags := make([]*time.Timer, 0, len(enabled))
	for _, hh := range enabled {
		burnSeconds := heater.BurnSeconds(hh.DutyPercent, e.cfg.PIDLoopTimeSeconds)
		hh.BurnFlag = burnSeconds > 0
		if burnSeconds > 0 && burnSeconds < e.cfg.PIDLoopTimeSeconds {
			h := hh
			stopFlags = append(stopFlags, time.AfterFunc(time.Duration(burnSeconds)*time.Second, func() { h.BurnFlag = false }))
		}
	}
	defer func() {
		for _, t := range stopFlags {
			t.Stop()
		}
	}()

	select {
	case <-timer.C:
	case <-e.resetPid:
	}
}

// RunControl is the schedule runner (spec §4.6's control loop): advances
// through compiled steps, handles overtime stretching, boost/rest
// transitions, and notification dispatch.
func (e *Engine) RunControl() {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for e.alive() {
		<-t.C
		e.controlTick()
	}
}

func (e *Engine) controlTick() {
	e.mu.Lock()

	if !e.controlRun || e.stepIndex >= len(e.steps) {
		e.mu.Unlock()
		return
	}

	now := time.Now()
	step := e.steps[e.stepIndex]
	current := e.currentTemperature
	margin := e.cfg.TempMarginCelsius

	switch e.status {
	case StatusNormal:
		if now.After(step.AbsoluteTime) || now.Equal(step.AbsoluteTime) {
			if step.ExtendIfUnreached && step.TargetTemperature-current >= margin {
				e.status = StatusOvertime
				e.overtimeStart = now
			} else {
				e.advanceStepLocked()
			}
		}
	case StatusOvertime:
		if step.TargetTemperature-current <= margin {
			excess := now.Sub(step.AbsoluteTime)
			e.shiftRemainingLocked(excess)
			e.status = StatusNormal
			e.advanceStepLocked()
		}
	}

	if step.AllowBoost && e.cfg.BoostBaselinePercent > 0 {
		threshold := step.TargetTemperature * float64(e.cfg.BoostBaselinePercent) / 100
		switch e.boostStatus {
		case BoostNone:
			if current < threshold {
				e.boostStatus = BoostBoost
			}
		case BoostBoost:
			if current >= threshold {
				e.boostStatus = BoostRest
			}
		case BoostRest:
			if current < e.previousSample {
				e.boostStatus = BoostNone
				e.requestPidReset()
			}
		}
	}

	if e.status != StatusOvertime {
		for i := range e.notifications {
			n := &e.notifications[i]
			if n.Done || now.Before(n.AbsoluteTimePoint) {
				continue
			}
			n.Done = true
			e.fireNotificationLocked(*n)
		}
	}

	exhausted := e.stepIndex >= len(e.steps)
	if exhausted {
		e.controlRun = false
		e.status = StatusIdle
		e.boostStatus = BoostNone
	}
	e.mu.Unlock()

	if !exhausted {
		return
	}

	// The compiled list ran out on its own, without an explicit Stop call;
	// finalize the session the same way Stop does (spec §4.6).
	metrics.SetControlStatus(string(StatusIdle), allStatuses)
	heater.Distribute(e.heaters.All(), 0)
	e.hub.PublishLog("info", "Stop")
	if _, err := e.rec.Stop(); err != nil {
		log.Printf("control: finalize session: %v", err)
	}
}

func (e *Engine) advanceStepLocked() {
	e.stepIndex++
	e.manualOverrideTarget = nil
	e.manualOverrideDuty = nil
	e.requestPidReset()
	if e.stepIndex < len(e.steps) {
		e.targetTemperature = e.steps[e.stepIndex].TargetTemperature
	}
}

func (e *Engine) shiftRemainingLocked(excess time.Duration) {
	for i := e.stepIndex; i < len(e.steps); i++ {
		e.steps[i].AbsoluteTime = e.steps[i].AbsoluteTime.Add(excess)
	}
	for i := range e.notifications {
		if !e.notifications[i].Done {
			e.notifications[i].AbsoluteTimePoint = e.notifications[i].AbsoluteTimePoint.Add(excess)
		}
	}
}

func (e *Engine) fireNotificationLocked(n schedule.Notification) {
	if n.Buzzer && e.gpio != nil {
		go e.buzzPulse()
	}
	go e.hub.PublishLog("info", "Notification: "+n.Name)
}

func (e *Engine) buzzPulse() {
	if err := e.gpio.Write(e.buzzerPin, true); err != nil {
		log.Printf("control: buzzer on: %v", err)
		return
	}
	time.Sleep(time.Duration(e.cfg.BuzzerSeconds) * time.Second)
	if err := e.gpio.Write(e.buzzerPin, false); err != nil {
		log.Printf("control: buzzer off: %v", err)
	}
}
