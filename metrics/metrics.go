// Package metrics registers the Prometheus gauges the engine exposes at
// /metrics, grounded on the pack's internal/observability/metrics package
// (same registerOnce-guarded package-level vars, same nil-checked setter
// functions so callers never need to check whether Init ran).
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "brewengine_"

var (
	registerOnce sync.Once

	currentTemperature *prometheus.GaugeVec
	targetTemperature  prometheus.Gauge
	pidDuty            prometheus.Gauge
	heaterBurn         *prometheus.GaugeVec
	sensorFailures     *prometheus.CounterVec
	controlStatus      *prometheus.GaugeVec
)

// Init registers every gauge/counter exactly once, matching the pack's
// registerOnce.Do guard.
func Init() {
	registerOnce.Do(func() {
		currentTemperature = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "sensor_temperature_celsius",
				Help: "Last measured temperature per sensor",
			},
			[]string{"sensor"},
		)
		targetTemperature = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "target_temperature_celsius",
				Help: "Current schedule/manual-override target temperature",
			},
		)
		pidDuty = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "pid_duty_percent",
				Help: "Current PID output duty percentage",
			},
		)
		heaterBurn = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "heater_burn_flag",
				Help: "1 if the heater is currently in its active burn window",
			},
			[]string{"heater"},
		)
		sensorFailures = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "sensor_failures_total",
				Help: "Total consecutive-failure events per sensor",
			},
			[]string{"sensor"},
		)
		controlStatus = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "control_status",
				Help: "1 for the currently active control status",
			},
			[]string{"status"},
		)

		prometheus.MustRegister(currentTemperature, targetTemperature, pidDuty, heaterBurn, sensorFailures, controlStatus)
	})
}

// SetSensorTemperature records the last measurement for a named sensor.
func SetSensorTemperature(sensor string, celsius float64) {
	if currentTemperature != nil {
		currentTemperature.WithLabelValues(sensor).Set(celsius)
	}
}

// SetTarget records the active target temperature.
func SetTarget(celsius float64) {
	if targetTemperature != nil {
		targetTemperature.Set(celsius)
	}
}

// SetDuty records the current PID output duty percentage.
func SetDuty(percent float64) {
	if pidDuty != nil {
		pidDuty.Set(percent)
	}
}

// SetHeaterBurn records a heater's current burn-window state.
func SetHeaterBurn(heater string, burning bool) {
	if heaterBurn == nil {
		return
	}
	v := 0.0
	if burning {
		v = 1
	}
	heaterBurn.WithLabelValues(heater).Set(v)
}

// IncSensorFailure increments the failure counter for a named sensor.
func IncSensorFailure(sensor string) {
	if sensorFailures != nil {
		sensorFailures.WithLabelValues(sensor).Inc()
	}
}

// SetControlStatus marks status as the sole active gauge value of 1,
// zeroing every other known status.
func SetControlStatus(status string, allStatuses []string) {
	if controlStatus == nil {
		return
	}
	for _, s := range allStatuses {
		v := 0.0
		if s == status {
			v = 1
		}
		controlStatus.WithLabelValues(s).Set(v)
	}
}
