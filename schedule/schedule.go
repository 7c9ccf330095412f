// Package schedule holds the mash/boil schedule data model (C5) and the
// compiler that expands it into a dense, timestamped sequence of execution
// points and notifications (C6).
package schedule

import (
	"sort"
	"time"
)

// MashStep is one row of a mash or boil program.
type MashStep struct {
	Index             int
	Name              string
	TargetTemperature float64
	RampMinutes       int // stepTime in the original firmware
	HoldMinutes       int // time in the original firmware
	ExtendIfUnreached bool
	AllowBoost        bool
}

// Notification fires a UI/buzzer alert at a fixed offset from the run start.
type Notification struct {
	Name              string
	Message           string
	MinutesFromStart  float64
	Buzzer            bool
	Done              bool
	AbsoluteTimePoint time.Time
}

// Schedule is a named, orderable mash or boil program.
type Schedule struct {
	Name          string
	IsBoil        bool
	Steps         []MashStep
	Notifications []Notification
	// Ephemeral schedules (e.g. ad-hoc single-step runs) are never
	// persisted.
	Ephemeral bool
}

// Sort orders Steps by Index and Notifications by MinutesFromStart, the
// invariant spec §3 requires after any mutation.
func (s *Schedule) Sort() {
	sort.SliceStable(s.Steps, func(i, j int) bool { return s.Steps[i].Index < s.Steps[j].Index })
	sort.SliceStable(s.Notifications, func(i, j int) bool {
		return s.Notifications[i].MinutesFromStart < s.Notifications[j].MinutesFromStart
	})
}

// ExecutionStep is a compiled (time, target) point consumed by the runner.
type ExecutionStep struct {
	AbsoluteTime      time.Time
	TargetTemperature float64
	ExtendIfUnreached bool
	AllowBoost        bool
}

// CompileInput bundles everything the compiler needs, per spec §4.4.
type CompileInput struct {
	Schedule             Schedule
	StartTimePoint       time.Time
	CurrentTemperature   float64
	StepIntervalSeconds  int
	BoostBaselinePercent int
}

// CompileResult is the compiler's output: a strictly time-increasing list of
// execution steps plus absolute-timed notifications.
type CompileResult struct {
	Steps         []ExecutionStep
	Notifications []Notification
}

// Compile expands a schedule into execution steps following spec §4.4.
func Compile(in CompileInput) CompileResult {
	interval := in.StepIntervalSeconds
	if interval <= 0 {
		interval = 60
	}

	steps := make([]ExecutionStep, 0, len(in.Schedule.Steps)*2+1)
	// 1. anchor step
	steps = append(steps, ExecutionStep{
		AbsoluteTime:      in.StartTimePoint,
		TargetTemperature: in.CurrentTemperature,
		ExtendIfUnreached: false,
	})

	prevTime := in.StartTimePoint
	prevTarget := in.CurrentTemperature
	var notificationShift time.Duration

	sortedSteps := append([]MashStep(nil), in.Schedule.Steps...)
	sort.SliceStable(sortedSteps, func(i, j int) bool { return sortedSteps[i].Index < sortedSteps[j].Index })

	for _, step := range sortedSteps {
		rampSeconds := step.RampMinutes * 60

		if step.RampMinutes == 0 && step.ExtendIfUnreached {
			rampSeconds = 60
			notificationShift += 60 * time.Second
		}

		if rampSeconds > 0 {
			k := rampSeconds/interval - 1
			if k < 1 {
				k = 1
			}
			if step.AllowBoost && in.BoostBaselinePercent > 0 {
				k = 1
			}

			deltaPerSub := (step.TargetTemperature - prevTarget) / float64(k)
			lastEmittedTemp := prevTarget

			for j := 1; j <= k; j++ {
				t := prevTime.Add(time.Duration(j*interval) * time.Second)
				target := prevTarget + float64(j)*deltaPerSub
				isLast := j == k

				if !isLast && absDiff(target, lastEmittedTemp) <= 1.0 {
					continue
				}

				steps = append(steps, ExecutionStep{
					AbsoluteTime:      t,
					TargetTemperature: target,
					ExtendIfUnreached: isLast && step.ExtendIfUnreached,
					AllowBoost:        step.AllowBoost,
				})
				lastEmittedTemp = target

				if isLast {
					prevTime = t
					prevTarget = target
				}
			}
		} else {
			// 3. zero ramp, no extend: single point 10s ahead
			t := prevTime.Add(10 * time.Second)
			steps = append(steps, ExecutionStep{
				AbsoluteTime:      t,
				TargetTemperature: step.TargetTemperature,
				AllowBoost:        step.AllowBoost,
			})
			prevTime = t
			prevTarget = step.TargetTemperature
		}

		// 4. hold point. Skipped when it would coincide with the point
		// just emitted, to preserve the strictly-increasing time invariant.
		if step.HoldMinutes > 0 {
			holdTime := prevTime.Add(time.Duration(step.HoldMinutes) * time.Minute)
			steps = append(steps, ExecutionStep{
				AbsoluteTime:      holdTime,
				TargetTemperature: prevTarget,
				AllowBoost:        step.AllowBoost,
			})
			prevTime = holdTime
		}
	}

	notifications := make([]Notification, len(in.Schedule.Notifications))
	copy(notifications, in.Schedule.Notifications)
	for i := range notifications {
		notifications[i].AbsoluteTimePoint = in.StartTimePoint.
			Add(time.Duration(notifications[i].MinutesFromStart*60) * time.Second).
			Add(notificationShift)
		notifications[i].MinutesFromStart += notificationShift.Seconds() / 60
	}
	sort.SliceStable(notifications, func(i, j int) bool {
		return notifications[i].AbsoluteTimePoint.Before(notifications[j].AbsoluteTimePoint)
	})

	return CompileResult{Steps: steps, Notifications: notifications}
}

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}
