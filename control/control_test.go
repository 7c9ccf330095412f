package control

import (
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Poit-alt/esp-brew-engine/cloudsink"
	"github.com/Poit-alt/esp-brew-engine/heater"
	"github.com/Poit-alt/esp-brew-engine/hub"
	"github.com/Poit-alt/esp-brew-engine/pidctl"
	"github.com/Poit-alt/esp-brew-engine/schedule"
	"github.com/Poit-alt/esp-brew-engine/session"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	pid, err := pidctl.New(pidctl.Tunings{KP: 1}, pidctl.Tunings{KP: 1}, 0, 100)
	require.NoError(t, err)
	rec, err := session.Open(":memory:", 10)
	require.NoError(t, err)
	t.Cleanup(func() { rec.Close() })
	h := hub.New()
	t.Cleanup(h.Close)

	heaters := heater.New()
	require.NoError(t, heaters.Replace([]*heater.Heater{
		{ID: 1, PreferenceOrdinal: 1, WattRating: 2000, Enabled: true, UseForMash: true, UseForBoil: true},
	}))

	e := New(nil, heaters, pid, h, rec, nil, 0, Config{PIDLoopTimeSeconds: 60, StepIntervalSeconds: 60, TempMarginCelsius: 1, BoostBaselinePercent: 90, BuzzerSeconds: 1})
	return e
}

func TestStartIsIdempotentWhileRunning(t *testing.T) {
	e := newTestEngine(t)
	sched := schedule.Schedule{Name: "s1", Steps: []schedule.MashStep{{TargetTemperature: 64, RampMinutes: 10, HoldMinutes: 45}}}
	require.NoError(t, e.Start(sched))
	firstIndex := e.stepIndex

	require.NoError(t, e.Start(schedule.Schedule{Name: "s2"}))
	assert.Equal(t, "s1", e.schedule.Name, "second Start while running must be a no-op")
	assert.Equal(t, firstIndex, e.stepIndex)
}

func TestStopWhenNotRunningIsNoOp(t *testing.T) {
	e := newTestEngine(t)
	assert.NoError(t, e.Stop())
	assert.False(t, e.controlRun)
}

func TestControlTickAdvancesStepWhenDue(t *testing.T) {
	e := newTestEngine(t)
	e.controlRun = true
	e.status = StatusNormal
	e.currentTemperature = 64
	e.steps = []schedule.ExecutionStep{
		{AbsoluteTime: time.Now().Add(-time.Second), TargetTemperature: 64},
		{AbsoluteTime: time.Now().Add(time.Hour), TargetTemperature: 70},
	}
	e.stepIndex = 0

	e.controlTick()

	assert.Equal(t, 1, e.stepIndex)
	assert.Equal(t, 70.0, e.targetTemperature)
}

func TestControlTickFinalizesSessionWhenScheduleExhausted(t *testing.T) {
	e := newTestEngine(t)
	e.controlRun = true
	e.status = StatusNormal
	e.currentTemperature = 64
	e.steps = []schedule.ExecutionStep{
		{AbsoluteTime: time.Now().Add(-time.Second), TargetTemperature: 64},
	}
	e.stepIndex = 0
	_, err := e.rec.Start("s1")
	require.NoError(t, err)

	e.controlTick()

	assert.False(t, e.controlRun)
	assert.Equal(t, StatusIdle, e.status)
	assert.False(t, e.rec.Running(), "the naturally-exhausted schedule must finalize the session")
}

func TestPublishCloudSampleSendsToConfiguredSink(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	claims := jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	e := newTestEngine(t)
	e.cfg.CloudSink = cloudsink.New(server.URL, cloudsink.StaticTokenRefresher{Raw: signed}, 0)
	e.cfg.Hostname = "test-host"

	e.publishCloudSample(64, 66, 42, StatusNormal)

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 10*time.Millisecond)
}

func TestPublishCloudSampleNoopWhenUnconfigured(t *testing.T) {
	e := newTestEngine(t)
	e.publishCloudSample(64, 66, 42, StatusNormal) // must not panic with a nil CloudSink
}

// S2 — Overtime stretch: process behind target at ramp end, then catches up.
func TestOvertimeEntersAndExits(t *testing.T) {
	e := newTestEngine(t)
	e.controlRun = true
	e.status = StatusNormal
	e.currentTemperature = 62
	dueTime := time.Now().Add(-time.Second)
	e.steps = []schedule.ExecutionStep{
		{AbsoluteTime: dueTime, TargetTemperature: 64, ExtendIfUnreached: true},
		{AbsoluteTime: dueTime.Add(45 * time.Minute), TargetTemperature: 64},
	}
	e.stepIndex = 0

	e.controlTick()
	assert.Equal(t, StatusOvertime, e.status)
	assert.Equal(t, 0, e.stepIndex)

	beforeShift := e.steps[1].AbsoluteTime
	e.currentTemperature = 63
	e.controlTick()

	assert.Equal(t, StatusNormal, e.status)
	assert.Equal(t, 1, e.stepIndex)
	assert.True(t, e.steps[1].AbsoluteTime.After(beforeShift), "hold step should shift forward by the overtime excess")
}

func TestOvertimeNotEnteredOnOvershoot(t *testing.T) {
	e := newTestEngine(t)
	e.controlRun = true
	e.status = StatusNormal
	e.currentTemperature = 66 // already past target=64, margin=1
	e.steps = []schedule.ExecutionStep{
		{AbsoluteTime: time.Now().Add(-time.Second), TargetTemperature: 64, ExtendIfUnreached: true},
		{AbsoluteTime: time.Now().Add(time.Hour), TargetTemperature: 70},
	}
	e.stepIndex = 0

	e.controlTick()

	assert.Equal(t, StatusNormal, e.status, "overshoot must advance the step, not enter Overtime")
	assert.Equal(t, 1, e.stepIndex)
}

// S6 — Boost cycle.
func TestS6BoostCycle(t *testing.T) {
	e := newTestEngine(t)
	e.controlRun = true
	e.status = StatusNormal
	e.steps = []schedule.ExecutionStep{{AbsoluteTime: time.Now().Add(time.Hour), TargetTemperature: 64, AllowBoost: true}}
	e.stepIndex = 0
	e.cfg.BoostBaselinePercent = 90

	e.currentTemperature = 50
	e.previousSample = 50
	e.controlTick()
	assert.Equal(t, BoostBoost, e.boostStatus)

	e.currentTemperature = 57.6
	e.controlTick()
	assert.Equal(t, BoostRest, e.boostStatus)

	e.previousSample = 57.6
	e.currentTemperature = 57.0 // declining
	e.controlTick()
	assert.Equal(t, BoostNone, e.boostStatus)
}

func TestManualDutyOverridesPID(t *testing.T) {
	e := newTestEngine(t)
	e.controlRun = true
	e.currentTemperature = 20
	e.targetTemperature = 64
	half := 42.0
	e.SetManualDuty(&half) // also queues a reset-pid request, letting runPidCycle return early
	e.runPidCycle()

	assert.InDelta(t, 42, e.pidOutputDuty, 1e-9)
}

func TestPidOutputZeroWhenNotRunning(t *testing.T) {
	e := newTestEngine(t)
	e.controlRun = false
	e.currentTemperature = 20
	e.targetTemperature = 64

	e.resetPid <- struct{}{}
	e.runPidCycle()

	assert.Equal(t, 0.0, e.pidOutputDuty)
}

func TestPidSkipsWhenTemperatureUnknown(t *testing.T) {
	e := newTestEngine(t)
	e.controlRun = true
	e.currentTemperature = math.NaN()
	e.targetTemperature = 64

	e.resetPid <- struct{}{}
	e.runPidCycle()

	assert.Equal(t, 0.0, e.pidOutputDuty)
}
