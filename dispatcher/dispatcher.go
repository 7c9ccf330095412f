// Package dispatcher implements the command dispatcher (C10): the HTTP
// surface described in spec §6, a single closed command set described in
// spec §4.8, request/response JSON envelopes, and permissive CORS.
// Grounded on the pack's HTTP handler shape (bittertea97-microgrid-cloud's
// internal/commands/interfaces/http.Handler: a struct wrapping the
// services it dispatches to, one exported ServeHTTP switching on method,
// http.Error for the failure paths) adapted from that service's
// resource-oriented REST endpoints to spec §6's single POST /api envelope
// command bus.
package dispatcher

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"runtime"
	"time"

	"github.com/Poit-alt/esp-brew-engine/control"
	"github.com/Poit-alt/esp-brew-engine/heater"
	"github.com/Poit-alt/esp-brew-engine/pidctl"
	"github.com/Poit-alt/esp-brew-engine/probe"
	"github.com/Poit-alt/esp-brew-engine/schedule"
	"github.com/Poit-alt/esp-brew-engine/sensor"
	"github.com/Poit-alt/esp-brew-engine/session"
	"github.com/Poit-alt/esp-brew-engine/settings"
	"github.com/Poit-alt/esp-brew-engine/stir"
	"github.com/Poit-alt/esp-brew-engine/wifi"
)

// Request is spec §4.8's command envelope.
type Request struct {
	Command string          `json:"command"`
	Data    json.RawMessage `json:"data"`
}

// Response is spec §4.8's response envelope.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// SystemInfo supplements the Data command with runtime stats, matching
// the original engine's free-heap/uptime fields (SPEC_FULL §4).
type SystemInfo struct {
	Uptime     string `json:"uptime"`
	Goroutines int    `json:"goroutines"`
	AllocBytes uint64 `json:"allocBytes"`
}

// ScheduleStore owns the persisted named mash/boil schedules.
type ScheduleStore struct {
	store *settings.Store
}

const schedulesKey = "mashschedules"

// NewScheduleStore wraps a settings.Store for schedule CRUD.
func NewScheduleStore(store *settings.Store) *ScheduleStore {
	return &ScheduleStore{store: store}
}

func (s *ScheduleStore) All() []schedule.Schedule {
	var out []schedule.Schedule
	if err := s.store.GetRecord(schedulesKey, &out); err != nil {
		return nil
	}
	return out
}

func (s *ScheduleStore) saveAll(all []schedule.Schedule) error {
	persisted := make([]schedule.Schedule, 0, len(all))
	for _, sc := range all {
		if !sc.Ephemeral {
			persisted = append(persisted, sc)
		}
	}
	return s.store.SetRecord(schedulesKey, persisted)
}

func (s *ScheduleStore) Set(sc schedule.Schedule) error {
	sc.Sort()
	all := s.All()
	for i, existing := range all {
		if existing.Name == sc.Name {
			all[i] = sc
			return s.saveAll(all)
		}
	}
	return s.saveAll(append(all, sc))
}

func (s *ScheduleStore) Delete(name string) error {
	all := s.All()
	out := all[:0]
	for _, sc := range all {
		if sc.Name != name {
			out = append(out, sc)
		}
	}
	return s.saveAll(out)
}

// Hooks bundles the deferred lifecycle actions the dispatcher schedules
// rather than executes inline (spec §4.8: "long-running effects schedule
// deferred tasks").
type Hooks struct {
	Reboot           func()
	FactoryReset     func() error
	BootIntoRecovery func()
	// DetectOneWire scans the one-wire bus for present devices; nil on
	// platforms/tests with no bus to scan.
	DetectOneWire func() []probe.Probe
	AddRtdSensor  func(csPin int, name string) (probe.Probe, error)
	AddNtcSensor  func(pin int, name string) (probe.Probe, error)
}

// Handler wires every collaborator the closed command set in spec §4.8
// touches.
type Handler struct {
	engine        *control.Engine
	sensors       *sensor.Registry
	heaters       *heater.Set
	schedules     *ScheduleStore
	sessions      *session.Recorder
	settingsStore *settings.Store
	stir          *stir.Loop
	wifi          wifi.Collaborator
	hooks         Hooks

	runningVersion string
	startedAt      time.Time
	handlers       map[string]func(json.RawMessage) (interface{}, error)
}

// New constructs a dispatcher over the engine's collaborators.
func New(engine *control.Engine, sensors *sensor.Registry, heaters *heater.Set, schedules *ScheduleStore,
	sessions *session.Recorder, settingsStore *settings.Store, stirLoop *stir.Loop, wc wifi.Collaborator, hooks Hooks, runningVersion string) *Handler {
	h := &Handler{
		engine: engine, sensors: sensors, heaters: heaters, schedules: schedules, sessions: sessions,
		settingsStore: settingsStore, stir: stirLoop, wifi: wc, hooks: hooks, runningVersion: runningVersion, startedAt: time.Now(),
	}
	h.handlers = h.commandTable()
	return h
}

// ServeHTTP implements the small static/API surface of spec §6.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.setCORS(w)

	switch {
	case r.URL.Path == "/api" && r.Method == http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
	case r.URL.Path == "/api" && r.Method == http.MethodPost:
		h.handleAPI(w, r)
	case r.URL.Path == "/":
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<!doctype html><title>esp-brew-engine</title>"))
	case r.URL.Path == "/logo.svg":
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Write([]byte(`<svg xmlns="http://www.w3.org/2000/svg"/>`))
	case r.URL.Path == "/manifest.json":
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name":"esp-brew-engine"}`))
	default:
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
	}
}

func (h *Handler) setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,PATCH,OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "*")
}

func (h *Handler) handleAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.write(w, Response{Success: false, Message: "could not read request"})
		return
	}
	defer r.Body.Close()

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		h.write(w, Response{Success: false, Message: "invalid json"})
		return
	}

	fn, ok := h.handlers[req.Command]
	if !ok {
		h.write(w, Response{Success: false, Message: "Unknown command"})
		return
	}

	data, err := fn(req.Data)
	if err != nil {
		h.write(w, Response{Success: false, Message: err.Error()})
		return
	}
	h.write(w, Response{Success: true, Data: data})
}

func (h *Handler) write(w http.ResponseWriter, resp Response) {
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		// Only reachable on catastrophic serialization failure, spec §7's
		// one fatal-error path; degrade to a minimal envelope.
		fmt.Fprintf(w, `{"success":false,"message":%q}`, "internal error")
	}
}

func (h *Handler) commandTable() map[string]func(json.RawMessage) (interface{}, error) {
	return map[string]func(json.RawMessage) (interface{}, error){
		"Data":                  h.cmdData,
		"GetRunningSchedule":    h.cmdGetRunningSchedule,
		"SetTemp":               h.cmdSetTemp,
		"SetOverrideOutput":     h.cmdSetOverrideOutput,
		"Start":                 h.cmdStart,
		"Stop":                  h.cmdStop,
		"StartStir":             h.cmdStartStir,
		"StopStir":              h.cmdStopStir,
		"GetMashSchedules":      h.cmdGetMashSchedules,
		"SaveMashSchedules":     h.cmdSaveMashSchedules,
		"SetMashSchedule":       h.cmdSetMashSchedule,
		"DeleteMashSchedule":    h.cmdDeleteMashSchedule,
		"GetPIDSettings":        h.cmdGetPIDSettings,
		"SavePIDSettings":       h.cmdSavePIDSettings,
		"GetTempSettings":       h.cmdGetTempSettings,
		"SaveTempSettings":      h.cmdSaveTempSettings,
		"DetectTempSensors":     h.cmdDetectTempSensors,
		"AddRtdSensor":          h.cmdAddRtdSensor,
		"AddNtcSensor":          h.cmdAddNtcSensor,
		"GetHeaterSettings":     h.cmdGetHeaterSettings,
		"SaveHeaterSettings":    h.cmdSaveHeaterSettings,
		"GetSystemSettings":     h.cmdGetSystemSettings,
		"SaveSystemSettings":    h.cmdSaveSystemSettings,
		"GetStatistics":         h.cmdGetStatistics,
		"GetSessionData":        h.cmdGetSessionData,
		"ExportSession":         h.cmdExportSession,
		"SetStatisticsConfig":   h.cmdSetStatisticsConfig,
		"GetWifi":               h.cmdGetWifi,
		"SaveWifi":              h.cmdSaveWifi,
		"ScanWifi":              h.cmdScanWifi,
		"Reboot":                h.cmdReboot,
		"FactoryReset":          h.cmdFactoryReset,
		"BootIntoRecovery":      h.cmdBootIntoRecovery,
	}
}

func (h *Handler) cmdNotImplemented(json.RawMessage) (interface{}, error) {
	return nil, errors.New("not implemented")
}

func (h *Handler) cmdData(raw json.RawMessage) (interface{}, error) {
	snap := h.engine.Snapshot()
	temps := map[string]float64{}
	for _, s := range h.sensors.Get() {
		if s.Show {
			temps[s.Name] = s.LastTemperature
		}
	}
	// No reading yet leaves the temperature NaN, which JSON cannot encode.
	var temp interface{} = snap.CurrentTemperature
	if math.IsNaN(snap.CurrentTemperature) {
		temp = nil
	}
	return map[string]interface{}{
		"temp":           temp,
		"temps":          temps,
		"targetTemp":     snap.TargetTemperature,
		"output":         snap.PIDDuty,
		"status":         snap.Status,
		"stirStatus":     h.stir.Status(),
		"runningVersion": h.runningVersion,
		"inOverTime":     snap.InOverTime,
		"boostStatus":    snap.BoostStatus,
		"systemInfo":     h.systemInfo(),
	}, nil
}

func (h *Handler) systemInfo() SystemInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return SystemInfo{
		Uptime:     time.Since(h.startedAt).String(),
		Goroutines: runtime.NumGoroutine(),
		AllocBytes: m.Alloc,
	}
}

func (h *Handler) cmdGetRunningSchedule(json.RawMessage) (interface{}, error) {
	steps, notifications := h.engine.RunningSchedule()
	return map[string]interface{}{
		"version":       h.runningVersion,
		"steps":         steps,
		"notifications": notifications,
	}, nil
}

type setTempRequest struct {
	TargetTemp *float64 `json:"targetTemp"`
}

func (h *Handler) cmdSetTemp(raw json.RawMessage) (interface{}, error) {
	var req setTempRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, errors.New("invalid data")
	}
	h.engine.SetManualTarget(req.TargetTemp)
	return nil, nil
}

type setOverrideOutputRequest struct {
	Output *float64 `json:"output"`
}

func (h *Handler) cmdSetOverrideOutput(raw json.RawMessage) (interface{}, error) {
	var req setOverrideOutputRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, errors.New("invalid data")
	}
	h.engine.SetManualDuty(req.Output)
	return nil, nil
}

type startRequest struct {
	SelectedMashSchedule string `json:"selectedMashSchedule"`
}

func (h *Handler) cmdStart(raw json.RawMessage) (interface{}, error) {
	var req startRequest
	_ = json.Unmarshal(raw, &req)

	var sched schedule.Schedule
	found := false
	for _, sc := range h.schedules.All() {
		if sc.Name == req.SelectedMashSchedule {
			sched = sc
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("schedule %q not found", req.SelectedMashSchedule)
	}
	if err := h.engine.Start(sched); err != nil {
		return nil, err
	}
	return nil, nil
}

func (h *Handler) cmdStop(json.RawMessage) (interface{}, error) {
	return nil, h.engine.Stop()
}

// startStirRequest mirrors the original's stirConfig payload
// (brew-engine.cpp:736): max/intervalStart/intervalStop in minutes.
type startStirRequest struct {
	Max           int `json:"max"`
	IntervalStart int `json:"intervalStart"`
	IntervalStop  int `json:"intervalStop"`
}

func (h *Handler) cmdStartStir(raw json.RawMessage) (interface{}, error) {
	var req startStirRequest
	_ = json.Unmarshal(raw, &req)
	h.stir.Start(stir.Config{Max: req.Max, IntervalStart: req.IntervalStart, IntervalStop: req.IntervalStop})
	return nil, nil
}

func (h *Handler) cmdStopStir(json.RawMessage) (interface{}, error) {
	h.stir.Stop()
	return nil, nil
}

func (h *Handler) cmdGetMashSchedules(json.RawMessage) (interface{}, error) {
	return h.schedules.All(), nil
}

func (h *Handler) cmdSaveMashSchedules(raw json.RawMessage) (interface{}, error) {
	var all []schedule.Schedule
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, errors.New("invalid data")
	}
	for i := range all {
		all[i].Sort()
	}
	return nil, h.schedules.saveAll(all)
}

func (h *Handler) cmdSetMashSchedule(raw json.RawMessage) (interface{}, error) {
	var sc schedule.Schedule
	if err := json.Unmarshal(raw, &sc); err != nil {
		return nil, errors.New("invalid data")
	}
	return nil, h.schedules.Set(sc)
}

type deleteScheduleRequest struct {
	Name string `json:"name"`
}

func (h *Handler) cmdDeleteMashSchedule(raw json.RawMessage) (interface{}, error) {
	var req deleteScheduleRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, errors.New("invalid data")
	}
	return nil, h.schedules.Delete(req.Name)
}

func (h *Handler) cmdGetPIDSettings(json.RawMessage) (interface{}, error) {
	return map[string]interface{}{
		"kP": pidctl.TenthsToFloat(h.settingsStore.GetInt("kP", 1000)), "kI": pidctl.TenthsToFloat(h.settingsStore.GetInt("kI", 0)), "kD": pidctl.TenthsToFloat(h.settingsStore.GetInt("kD", 0)),
		"boilkP": pidctl.TenthsToFloat(h.settingsStore.GetInt("boilkP", 1000)), "boilkI": pidctl.TenthsToFloat(h.settingsStore.GetInt("boilkI", 0)), "boilkD": pidctl.TenthsToFloat(h.settingsStore.GetInt("boilkD", 0)),
		"pidLoopTime": h.settingsStore.GetInt("pidLoopTime", 60),
	}, nil
}

type pidSettingsRequest struct {
	KP, KI, KD             float64
	BoilKP, BoilKI, BoilKD float64
	PidLoopTime            int
}

func (h *Handler) cmdSavePIDSettings(raw json.RawMessage) (interface{}, error) {
	var req pidSettingsRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, errors.New("invalid data")
	}
	_ = h.settingsStore.SetInt("kP", pidctl.FloatToTenths(req.KP))
	_ = h.settingsStore.SetInt("kI", pidctl.FloatToTenths(req.KI))
	_ = h.settingsStore.SetInt("kD", pidctl.FloatToTenths(req.KD))
	_ = h.settingsStore.SetInt("boilkP", pidctl.FloatToTenths(req.BoilKP))
	_ = h.settingsStore.SetInt("boilkI", pidctl.FloatToTenths(req.BoilKI))
	_ = h.settingsStore.SetInt("boilkD", pidctl.FloatToTenths(req.BoilKD))
	return nil, h.settingsStore.SetInt("pidLoopTime", req.PidLoopTime)
}

func (h *Handler) cmdGetTempSettings(json.RawMessage) (interface{}, error) {
	return h.sensors.Get(), nil
}

func (h *Handler) cmdSaveTempSettings(raw json.RawMessage) (interface{}, error) {
	var updates []sensor.Update
	if err := json.Unmarshal(raw, &updates); err != nil {
		return nil, errors.New("invalid data")
	}
	return nil, h.sensors.Mutate(updates)
}

func (h *Handler) cmdDetectTempSensors(json.RawMessage) (interface{}, error) {
	var found []probe.Probe
	if h.hooks.DetectOneWire != nil {
		found = h.hooks.DetectOneWire()
	}
	h.sensors.Detect(found)
	return h.sensors.Get(), nil
}

type addSensorRequest struct {
	Pin  int    `json:"pin"`
	Name string `json:"name"`
}

func (h *Handler) cmdAddRtdSensor(raw json.RawMessage) (interface{}, error) {
	if h.hooks.AddRtdSensor == nil {
		return nil, errors.New("rtd sensors not supported on this build")
	}
	var req addSensorRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, errors.New("invalid data")
	}
	p, err := h.hooks.AddRtdSensor(req.Pin, req.Name)
	if err != nil {
		return nil, err
	}
	return nil, h.sensors.Add(p, req.Name)
}

func (h *Handler) cmdAddNtcSensor(raw json.RawMessage) (interface{}, error) {
	if h.hooks.AddNtcSensor == nil {
		return nil, errors.New("ntc sensors not supported on this build")
	}
	var req addSensorRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, errors.New("invalid data")
	}
	p, err := h.hooks.AddNtcSensor(req.Pin, req.Name)
	if err != nil {
		return nil, err
	}
	return nil, h.sensors.Add(p, req.Name)
}

func (h *Handler) cmdGetHeaterSettings(json.RawMessage) (interface{}, error) {
	return h.heaters.All(), nil
}

func (h *Handler) cmdSaveHeaterSettings(raw json.RawMessage) (interface{}, error) {
	if h.engine.Snapshot().Running {
		return nil, errors.New("cannot change heater settings while running")
	}
	var list []*heater.Heater
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, errors.New("invalid data")
	}
	if err := h.heaters.Replace(list); err != nil {
		return nil, err
	}
	return nil, h.settingsStore.SetRecord(heatersKey, list)
}

const heatersKey = "heaters"

func (h *Handler) cmdGetSystemSettings(json.RawMessage) (interface{}, error) {
	return map[string]interface{}{
		"onewirePin":    h.settingsStore.GetInt("onewirePin", 0),
		"stirPin":       h.settingsStore.GetInt("stirPin", 0),
		"buzzerPin":     h.settingsStore.GetInt("buzzerPin", 0),
		"buzzerTime":    h.settingsStore.GetInt("buzzerTime", 2),
		"invertOutputs": h.settingsStore.GetBool("invertOutputs", false),
		"mqttUri":       mustGetString(h.settingsStore, "mqttUri"),
		"tempScale":     mustGetString(h.settingsStore, "tempScale"),
		"cloudEndpoint": mustGetString(h.settingsStore, "cloudEndpoint"),
	}, nil
}

func mustGetString(store *settings.Store, key string) string {
	v, err := store.GetString(key)
	if err != nil {
		return ""
	}
	return v
}

type systemSettingsRequest struct {
	OnewirePin    int
	StirPin       int
	BuzzerPin     int
	BuzzerTime    int
	InvertOutputs bool
	MqttUri       string
	TempScale     string
	CloudEndpoint string
	CloudToken    string
}

func (h *Handler) cmdSaveSystemSettings(raw json.RawMessage) (interface{}, error) {
	var req systemSettingsRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, errors.New("invalid data")
	}
	_ = h.settingsStore.SetInt("onewirePin", req.OnewirePin)
	_ = h.settingsStore.SetInt("stirPin", req.StirPin)
	h.stir.SetPin(req.StirPin)
	_ = h.settingsStore.SetInt("buzzerPin", req.BuzzerPin)
	_ = h.settingsStore.SetInt("buzzerTime", req.BuzzerTime)
	_ = h.settingsStore.SetBool("invertOutputs", req.InvertOutputs)
	_ = h.settingsStore.SetString("mqttUri", req.MqttUri)
	_ = h.settingsStore.SetString("cloudEndpoint", req.CloudEndpoint)
	if req.CloudToken != "" {
		_ = h.settingsStore.SetString("cloudToken", req.CloudToken)
	}
	return nil, h.settingsStore.SetString("tempScale", req.TempScale)
}

func (h *Handler) cmdGetStatistics(json.RawMessage) (interface{}, error) {
	return map[string]interface{}{"running": h.sessions.Running()}, nil
}

// StatisticsCapKey is the settings key SetStatisticsConfig persists under,
// exported so main.go can reload the cap at startup.
const StatisticsCapKey = "statisticsCap"

type statisticsConfigRequest struct {
	Cap int `json:"cap"`
}

func (h *Handler) cmdSetStatisticsConfig(raw json.RawMessage) (interface{}, error) {
	var req statisticsConfigRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, errors.New("invalid data")
	}
	if err := h.sessions.SetCap(req.Cap); err != nil {
		return nil, err
	}
	return nil, h.settingsStore.SetInt(StatisticsCapKey, req.Cap)
}

type sessionIDRequest struct {
	SessionID int64 `json:"sessionId"`
}

func (h *Handler) cmdGetSessionData(raw json.RawMessage) (interface{}, error) {
	var req sessionIDRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, errors.New("invalid data")
	}
	env, samples, err := h.sessions.Load(req.SessionID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"envelope": env, "samples": samples}, nil
}

type exportSessionRequest struct {
	SessionID int64  `json:"sessionId"`
	Format    string `json:"format"`
}

func (h *Handler) cmdExportSession(raw json.RawMessage) (interface{}, error) {
	var req exportSessionRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, errors.New("invalid data")
	}
	env, samples, err := h.sessions.Load(req.SessionID)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if req.Format == "csv" {
		if err := session.ExportCSV(&buf, env, samples); err != nil {
			return nil, err
		}
		return buf.String(), nil
	}
	if err := session.ExportJSON(&buf, env, samples); err != nil {
		return nil, err
	}
	return buf.String(), nil
}

func (h *Handler) cmdGetWifi(json.RawMessage) (interface{}, error) {
	if h.wifi.Get == nil {
		return nil, errors.New("wifi collaborator not configured")
	}
	return h.wifi.Get()
}

func (h *Handler) cmdSaveWifi(raw json.RawMessage) (interface{}, error) {
	if h.wifi.Save == nil {
		return nil, errors.New("wifi collaborator not configured")
	}
	var creds wifi.Credentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return nil, errors.New("invalid data")
	}
	return nil, h.wifi.Save(creds)
}

func (h *Handler) cmdScanWifi(json.RawMessage) (interface{}, error) {
	if h.wifi.Scan == nil {
		return nil, errors.New("wifi collaborator not configured")
	}
	return h.wifi.Scan()
}

func (h *Handler) cmdReboot(json.RawMessage) (interface{}, error) {
	if h.hooks.Reboot != nil {
		go h.hooks.Reboot()
	}
	return nil, nil
}

func (h *Handler) cmdFactoryReset(json.RawMessage) (interface{}, error) {
	if h.hooks.FactoryReset != nil {
		return nil, h.hooks.FactoryReset()
	}
	return nil, h.settingsStore.FactoryReset()
}

func (h *Handler) cmdBootIntoRecovery(json.RawMessage) (interface{}, error) {
	if h.hooks.BootIntoRecovery != nil {
		go h.hooks.BootIntoRecovery()
	}
	return nil, nil
}
