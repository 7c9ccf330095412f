// Command esp-brew-engine boots the brewing controller firmware core: it
// wires the settings store, sensor registry, heater set, PID controller,
// and the four engine loops (read/PID/output/control) to the HTTP command
// dispatcher and the optional MQTT telemetry sink. Grounded on the
// teacher's main.go signal-handling shutdown shape, replacing its Qt
// event loop with an http.Server.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Poit-alt/esp-brew-engine/cloudsink"
	"github.com/Poit-alt/esp-brew-engine/config"
	"github.com/Poit-alt/esp-brew-engine/control"
	"github.com/Poit-alt/esp-brew-engine/dispatcher"
	"github.com/Poit-alt/esp-brew-engine/gpiodrv"
	"github.com/Poit-alt/esp-brew-engine/heater"
	"github.com/Poit-alt/esp-brew-engine/hub"
	"github.com/Poit-alt/esp-brew-engine/metrics"
	"github.com/Poit-alt/esp-brew-engine/mqttpub"
	"github.com/Poit-alt/esp-brew-engine/output"
	"github.com/Poit-alt/esp-brew-engine/pidctl"
	"github.com/Poit-alt/esp-brew-engine/probe"
	"github.com/Poit-alt/esp-brew-engine/sensor"
	"github.com/Poit-alt/esp-brew-engine/session"
	"github.com/Poit-alt/esp-brew-engine/settings"
	"github.com/Poit-alt/esp-brew-engine/stir"
	"github.com/Poit-alt/esp-brew-engine/wifi"
)

const heatersKey = "heaters"

var errUnsupportedBus = errors.New("main: bus not available on this build")

func main() {
	cfg, err := config.Load("./config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	store, err := settings.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("open settings store: %v", err)
	}
	defer store.Close()

	rec, err := session.Open(cfg.DatabasePath, store.GetInt(dispatcher.StatisticsCapKey, session.DefaultCap))
	if err != nil {
		log.Fatalf("open session recorder: %v", err)
	}
	defer rec.Close()

	sensors := sensor.New()
	heaters := heater.New()
	loadHeaters(store, heaters)

	oneWireBus, spiRtdBus, analogAdc, err := probe.NewPlatformBuses()
	if err != nil {
		log.Printf("platform buses unavailable, sensors will read as disconnected: %v", err)
		oneWireBus, spiRtdBus, analogAdc = nil, nil, nil
	} else {
		sensors.Detect(detectOneWire(oneWireBus))
	}

	pid, err := loadPID(store)
	if err != nil {
		log.Fatalf("load pid settings: %v", err)
	}

	h := hub.New()
	defer h.Close()

	gpio := gpiodrv.NewBank()
	defer gpio.Close()

	buzzerPin := store.GetInt("buzzerPin", 0)
	outputLoop := output.New(heaters, gpio, store.GetBool("invertOutputs", false))
	stirLoop := stir.New(gpio, store.GetInt("stirPin", 0))

	engine := control.New(sensors, heaters, pid, h, rec, gpio, buzzerPin, control.Config{
		ReadPeriod:           500 * time.Millisecond,
		PIDLoopTimeSeconds:   store.GetInt("pidLoopTime", 60),
		StepIntervalSeconds:  60,
		SampleEveryNTicks:    6,
		TempMarginCelsius:    1,
		BoostBaselinePercent: 90,
		BuzzerSeconds:        store.GetInt("buzzerTime", 2),
		ScaleFn:              scaleFn(cfg),
		CloudSink:            cloudSinkFromSettings(store),
		Hostname:             hostnameOrDefault(),
	})

	metrics.Init()

	go engine.RunRead()
	go engine.RunPID()
	go engine.RunControl()
	go outputLoop.Run()

	if uri, err := store.GetString("mqttUri"); err == nil && mqttpub.Enabled(uri) {
		pub, err := mqttpub.New(uri, hostnameOrDefault(), h)
		if err != nil {
			log.Printf("mqtt publisher disabled: %v", err)
		} else {
			go pub.Run()
		}
	}

	schedules := dispatcher.NewScheduleStore(store)
	handler := dispatcher.New(engine, sensors, heaters, schedules, rec, store, stirLoop, wifiCollaborator(), dispatcher.Hooks{
		Reboot:           func() { log.Println("reboot requested") },
		FactoryReset:     store.FactoryReset,
		BootIntoRecovery: func() { log.Println("recovery boot requested") },
		DetectOneWire: func() []probe.Probe {
			if oneWireBus == nil {
				return nil
			}
			return detectOneWire(oneWireBus)
		},
		AddRtdSensor: func(csPin int, name string) (probe.Probe, error) {
			if spiRtdBus == nil {
				return nil, errUnsupportedBus
			}
			return probe.NewSpiRtd(spiRtdBus, csPin, 100, 430)
		},
		AddNtcSensor: func(pin int, name string) (probe.Probe, error) {
			if analogAdc == nil {
				return nil, errUnsupportedBus
			}
			return probe.NewAnalogNtc(analogAdc, pin, 3950, 10000, 10000), nil
		},
	}, "1.0.0")

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", handler)

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, os.Interrupt, syscall.SIGTERM)
	<-sigchan

	log.Println("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Shutdown(ctx)

	outputLoop.Stop()
	stirLoop.Stop()
	engine.Shutdown()
}

// cloudSinkFromSettings builds a cloudsink.Client when the operator has
// configured both a cloud endpoint and a bearer token, matching mqttpub's
// "active only when configured" wiring. Returns nil otherwise, which
// control.Engine treats as "no cloud sink" (spec §4.6's "if enabled").
func cloudSinkFromSettings(store *settings.Store) *cloudsink.Client {
	endpoint, err := store.GetString("cloudEndpoint")
	if err != nil || endpoint == "" {
		return nil
	}
	token, err := store.GetString("cloudToken")
	if err != nil || token == "" {
		log.Printf("cloud sink disabled: cloudEndpoint set without cloudToken")
		return nil
	}
	sendInterval := time.Duration(store.GetInt("cloudSendIntervalSeconds", 30)) * time.Second
	return cloudsink.New(endpoint, cloudsink.StaticTokenRefresher{Raw: token}, sendInterval)
}

func loadHeaters(store *settings.Store, heaters *heater.Set) {
	var list []*heater.Heater
	if err := store.GetRecord(heatersKey, &list); err != nil {
		return
	}
	if err := heaters.Replace(list); err != nil {
		log.Printf("discarding persisted heater settings: %v", err)
	}
}

func loadPID(store *settings.Store) (*pidctl.Controller, error) {
	mash := pidctl.Tunings{
		KP: pidctl.TenthsToFloat(store.GetInt("kP", 1000)),
		KI: pidctl.TenthsToFloat(store.GetInt("kI", 0)),
		KD: pidctl.TenthsToFloat(store.GetInt("kD", 0)),
	}
	boil := pidctl.Tunings{
		KP: pidctl.TenthsToFloat(store.GetInt("boilkP", 1000)),
		KI: pidctl.TenthsToFloat(store.GetInt("boilkI", 0)),
		KD: pidctl.TenthsToFloat(store.GetInt("boilkD", 0)),
	}
	return pidctl.New(mash, boil, 0, 100)
}

func detectOneWire(bus probe.OneWireBus) []probe.Probe {
	ids, err := probe.DetectOneWire(bus)
	if err != nil {
		log.Printf("one-wire detect failed: %v", err)
		return nil
	}
	probes := make([]probe.Probe, 0, len(ids))
	for _, id := range ids {
		p, err := probe.NewOneWireDigital(bus, id)
		if err != nil {
			log.Printf("one-wire open %s failed: %v", id, err)
			continue
		}
		probes = append(probes, p)
	}
	return probes
}

func scaleFn(cfg *config.Bootstrap) func(float64) float64 {
	if cfg.DefaultScale == config.Fahrenheit {
		return func(c float64) float64 { return c*9/5 + 32 }
	}
	return func(c float64) float64 { return c }
}

func hostnameOrDefault() string {
	name, err := os.Hostname()
	if err != nil {
		return "esp-brew-engine"
	}
	return name
}

// wifiCollaborator is left unwired: this platform has no captive Wi-Fi
// provisioning stack in the pack to ground it on, so Get/Save/ScanWifi
// report "not configured" until a concrete collaborator is supplied.
func wifiCollaborator() wifi.Collaborator {
	return wifi.Collaborator{}
}
