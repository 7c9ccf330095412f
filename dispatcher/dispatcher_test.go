package dispatcher

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Poit-alt/esp-brew-engine/control"
	"github.com/Poit-alt/esp-brew-engine/heater"
	"github.com/Poit-alt/esp-brew-engine/hub"
	"github.com/Poit-alt/esp-brew-engine/pidctl"
	"github.com/Poit-alt/esp-brew-engine/schedule"
	"github.com/Poit-alt/esp-brew-engine/sensor"
	"github.com/Poit-alt/esp-brew-engine/session"
	"github.com/Poit-alt/esp-brew-engine/settings"
	"github.com/Poit-alt/esp-brew-engine/stir"
	"github.com/Poit-alt/esp-brew-engine/wifi"
)

type noopGPIO struct{}

func (noopGPIO) Write(int, bool) error { return nil }

func newTestHandler(t *testing.T) *Handler {
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

	engine := control.New(nil, heaters, pid, h, rec, nil, 0, control.Config{
		PIDLoopTimeSeconds: 60, StepIntervalSeconds: 60, TempMarginCelsius: 1, BoostBaselinePercent: 90, BuzzerSeconds: 1,
	})

	store, err := settings.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	sensors := sensor.New()
	schedules := NewScheduleStore(store)
	stirLoop := stir.New(noopGPIO{}, 4)

	return New(engine, sensors, heaters, schedules, rec, store, stirLoop, wifi.Collaborator{}, Hooks{}, "test-version")
}

func postCommand(h *Handler, command string, data interface{}) *httptest.ResponseRecorder {
	body := map[string]interface{}{"command": command}
	if data != nil {
		raw, _ := json.Marshal(data)
		body["data"] = json.RawMessage(raw)
	}
	buf, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/api", bytes.NewReader(buf))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestUnknownCommandFails(t *testing.T) {
	h := newTestHandler(t)
	rr := postCommand(h, "NotACommand", nil)

	var resp Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "Unknown command", resp.Message)
}

func TestOptionsPreflightSetsPermissiveCORS(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodOptions, "/api", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET,POST,PUT,DELETE,PATCH,OPTIONS", rr.Header().Get("Access-Control-Allow-Methods"))
}

func TestDataCommandReportsSnapshot(t *testing.T) {
	h := newTestHandler(t)
	rr := postCommand(h, "Data", nil)

	var resp Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
}

func TestSetMashScheduleThenGetRoundTrips(t *testing.T) {
	h := newTestHandler(t)
	sc := schedule.Schedule{Name: "test-mash", Steps: []schedule.MashStep{{TargetTemperature: 64, HoldMinutes: 30}}}

	rr := postCommand(h, "SetMashSchedule", sc)
	var setResp Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &setResp))
	require.True(t, setResp.Success, setResp.Message)

	rr = postCommand(h, "GetMashSchedules", nil)
	var getResp struct {
		Success bool
		Data    []schedule.Schedule
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &getResp))
	require.Len(t, getResp.Data, 1)
	assert.Equal(t, "test-mash", getResp.Data[0].Name)
}

func TestStartUnknownScheduleFails(t *testing.T) {
	h := newTestHandler(t)
	rr := postCommand(h, "Start", map[string]string{"selectedMashSchedule": "missing"})

	var resp Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
}

func TestGetRunningScheduleReportsCompiledSteps(t *testing.T) {
	h := newTestHandler(t)
	sc := schedule.Schedule{Name: "test-mash", Steps: []schedule.MashStep{{TargetTemperature: 64, HoldMinutes: 30}}}
	postCommand(h, "SetMashSchedule", sc)

	rr := postCommand(h, "Start", map[string]string{"selectedMashSchedule": "test-mash"})
	var startResp Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &startResp))
	require.True(t, startResp.Success, startResp.Message)

	rr = postCommand(h, "GetRunningSchedule", nil)
	var resp struct {
		Success bool
		Data    struct {
			Version string                    `json:"version"`
			Steps   []schedule.ExecutionStep `json:"steps"`
		}
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.Data.Steps)
}

func TestSetStatisticsConfigPersistsCap(t *testing.T) {
	h := newTestHandler(t)
	rr := postCommand(h, "SetStatisticsConfig", map[string]int{"cap": 3})

	var resp Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Success, resp.Message)
}

func TestStartStirThenDataReportsRunning(t *testing.T) {
	h := newTestHandler(t)
	rr := postCommand(h, "StartStir", map[string]int{"max": 5, "intervalStart": 0, "intervalStop": 5})
	var resp Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.True(t, resp.Success, resp.Message)

	rr = postCommand(h, "Data", nil)
	var dataResp struct {
		Success bool
		Data    struct {
			StirStatus string `json:"stirStatus"`
		}
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &dataResp))
	assert.Equal(t, "Running", dataResp.Data.StirStatus)

	rr = postCommand(h, "StopStir", nil)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.True(t, resp.Success, resp.Message)
}

func TestUnconfiguredWifiCommandsFail(t *testing.T) {
	h := newTestHandler(t)
	rr := postCommand(h, "GetWifi", nil)

	var resp Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
}
