// Package hub is the engine-wide broadcast bus: a set of fan-out groups
// that let the control engine publish measurement samples (current,
// target, duty) and log events to any number of subscribers (in this
// engine, the MQTT publisher) without those consumers being wired into the
// loops directly. Adapted from the teacher's
// hub.Hub, which used the same bcast.Group + eapache/channels pattern to
// fan sensor/PID/config events out to the GUI.
package hub

import (
	"time"

	"github.com/IvanMalison/bcast"
	"github.com/eapache/channels"
)

// Sample is one read-loop measurement, broadcast on every tick.
type Sample struct {
	Time    time.Time
	Current float64
	Target  float64
	Duty    float64
}

// LogLine is a state-machine transition or notable event, broadcast so
// mqttpub can mirror it to the .../log topic (spec §6) alongside the local
// logger.
type LogLine struct {
	Time    time.Time
	Level   string
	Message string
}

// Hub owns every broadcast group the engine publishes on. Groups are
// unbuffered fan-out: each Join() gets its own read channel fed from the
// same Send call.
type Hub struct {
	Quit chan bool

	Measurement *bcast.Group // Sample
	LogEvents   *bcast.Group // LogLine
	StatusEvent *bcast.Group // string
}

// New creates a Hub and starts every group's broadcast loop, exactly as
// the teacher's hub.New does for its own groups.
func New() *Hub {
	h := &Hub{
		Quit:        make(chan bool),
		Measurement: bcast.NewGroup(),
		LogEvents:   bcast.NewGroup(),
		StatusEvent: bcast.NewGroup(),
	}

	go h.Measurement.Broadcast(0)
	go h.LogEvents.Broadcast(0)
	go h.StatusEvent.Broadcast(0)

	return h
}

// Close signals every loop selecting on Quit to exit.
func (h *Hub) Close() {
	close(h.Quit)
}

// PublishSample fans a read-loop measurement out to every subscriber.
func (h *Hub) PublishSample(s Sample) {
	h.Measurement.Send(s)
}

// PublishLog fans a state-machine event out to every subscriber (local
// logger plus, when configured, the MQTT log topic).
func (h *Hub) PublishLog(level, message string) {
	h.LogEvents.Send(LogLine{Time: time.Now(), Level: level, Message: message})
}

// PublishStatus fans a control-loop status name out (e.g. "Normal",
// "Overtime", "Boost").
func (h *Hub) PublishStatus(status string) {
	h.StatusEvent.Send(status)
}

// JoinSampleGroup subscribes to broadcast Samples, matching the teacher's
// JoinFloat64Group/JoinConfigGroup helper shape.
func JoinSampleGroup(group *bcast.Group) <-chan Sample {
	ch := make(chan Sample)
	channels.Unwrap(channels.Wrap(group.Join().Read), ch)
	return (<-chan Sample)(ch)
}

// JoinLogGroup subscribes to broadcast LogLines.
func JoinLogGroup(group *bcast.Group) <-chan LogLine {
	ch := make(chan LogLine)
	channels.Unwrap(channels.Wrap(group.Join().Read), ch)
	return (<-chan LogLine)(ch)
}

// JoinStringGroup subscribes to broadcast strings (status changes).
func JoinStringGroup(group *bcast.Group) <-chan string {
	ch := make(chan string)
	channels.Unwrap(channels.Wrap(group.Join().Read), ch)
	return (<-chan string)(ch)
}
