// Package mqttpub publishes engine telemetry over MQTT v5 (spec §6),
// active only when configured with an "mqtt://" URI. Grounded on the
// teacher's hub-subscriber loop shape (heatpump.HeatPump / flightrecorder
// each ran a select over hub.Join*Group channels); here the loop
// subscribes to hub.Hub's Measurement and LogEvents groups instead of
// alcobot's PID/config groups, and publishes JSON payloads instead of
// driving PWM.
package mqttpub

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Poit-alt/esp-brew-engine/hub"
)

type historyMessage struct {
	Time   int64   `json:"time"`
	Temp   float64 `json:"temp"`
	Target float64 `json:"target"`
	Output float64 `json:"output"`
}

type logMessage struct {
	Time    int64  `json:"time"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Publisher owns the MQTT client and the topics derived from hostname.
type Publisher struct {
	client       mqtt.Client
	historyTopic string
	logTopic     string
	hub          *hub.Hub
}

// Enabled reports whether uri names an MQTT broker per spec §6 ("Only if
// URI begins with mqtt://").
func Enabled(uri string) bool {
	return strings.HasPrefix(uri, "mqtt://")
}

// New connects to uri (protocol version 5, auto-reconnect) and derives
// the history/log topics from hostname.
func New(uri, hostname string, h *hub.Hub) (*Publisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(uri).
		SetClientID("esp-brew-engine-" + hostname).
		SetAutoReconnect(true).
		SetProtocolVersion(5).
		SetConnectRetry(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqttpub: connect: %w", err)
	}

	p := &Publisher{
		client:       client,
		historyTopic: fmt.Sprintf("esp-brew-engine/%s/history", hostname),
		logTopic:     fmt.Sprintf("esp-brew-engine/%s/log", hostname),
		hub:          h,
	}
	return p, nil
}

// Run subscribes to hub broadcasts and publishes them until quit fires.
func (p *Publisher) Run() {
	sampleCh := hub.JoinSampleGroup(p.hub.Measurement)
	logCh := hub.JoinLogGroup(p.hub.LogEvents)

	for {
		select {
		case s := <-sampleCh:
			p.publishHistory(s)
		case l := <-logCh:
			p.publishLog(l)
		case <-p.hub.Quit:
			p.client.Disconnect(250)
			return
		}
	}
}

func (p *Publisher) publishHistory(s hub.Sample) {
	payload, err := json.Marshal(historyMessage{Time: s.Time.Unix(), Temp: s.Current, Target: s.Target, Output: s.Duty})
	if err != nil {
		log.Printf("mqttpub: marshal history: %v", err)
		return
	}
	p.client.Publish(p.historyTopic, 0, false, payload)
}

func (p *Publisher) publishLog(l hub.LogLine) {
	payload, err := json.Marshal(logMessage{Time: l.Time.Unix(), Level: l.Level, Message: l.Message})
	if err != nil {
		log.Printf("mqttpub: marshal log: %v", err)
		return
	}
	p.client.Publish(p.logTopic, 0, false, payload)
}
