package nodes

import (
	"log/slog"
	"math"

	"github.com/roach88/x3drouter/internal/clock"
	"github.com/roach88/x3drouter/internal/field"
	"github.com/roach88/x3drouter/internal/ir"
	"github.com/roach88/x3drouter/internal/node"
)

// TimeSensor field indices.
const (
	TSCycleInterval = iota
	TSEnabled
	TSLoop
	TSStartTime
	TSStopTime
	TSPauseTime
	TSResumeTime
	TSCycleTime
	TSElapsedTime
	TSFraction
	TSIsActive
	TSIsPaused
	TSTime
)

var timeSensorSchema = field.NewBuilder("TimeSensor").
	Field(ir.AccessExposedField, ir.SFTimeType, "cycleInterval", ir.SFTime(1), field.Positive()).
	Field(ir.AccessExposedField, ir.SFBoolType, "enabled", ir.SFBool(true)).
	Field(ir.AccessExposedField, ir.SFBoolType, "loop", ir.SFBool(false)).
	Field(ir.AccessExposedField, ir.SFTimeType, "startTime", nil).
	Field(ir.AccessExposedField, ir.SFTimeType, "stopTime", nil).
	Field(ir.AccessExposedField, ir.SFTimeType, "pauseTime", nil).
	Field(ir.AccessExposedField, ir.SFTimeType, "resumeTime", nil).
	Field(ir.AccessEventOut, ir.SFTimeType, "cycleTime", nil).
	Field(ir.AccessEventOut, ir.SFTimeType, "elapsedTime", nil).
	Field(ir.AccessEventOut, ir.SFFloatType, "fraction_changed", nil).
	Field(ir.AccessEventOut, ir.SFBoolType, "isActive", nil).
	Field(ir.AccessEventOut, ir.SFBoolType, "isPaused", nil).
	Field(ir.AccessEventOut, ir.SFTimeType, "time", nil).
	MustBuild()

// timeSensor generates time events from clock ticks.
//
// While active the sensor works from the startTime and cycleInterval it
// captured on activation; changes to those fields take effect on the next
// activation. stopTime is honored live when it is greater than startTime.
// A looping sensor with stopTime <= startTime runs forever.
type timeSensor struct {
	node  *node.Node
	clock *clock.Clock

	active   bool
	paused   bool
	start    float64
	interval float64
	cycle    int64

	pausedAt    float64
	pausedTotal float64
}

func newTimeSensor() node.Behavior { return &timeSensor{} }

func (s *timeSensor) Setup(*node.Node) {}

func (s *timeSensor) SetVRMLClock(n *node.Node, c *clock.Clock) {
	if s.clock != nil {
		s.clock.RemoveTimeListener(s)
	}
	s.node = n
	s.clock = c
	if c != nil {
		c.AddTimeListener(s)
	}
}

func (s *timeSensor) Shutdown(*node.Node) {
	if s.clock != nil {
		s.clock.RemoveTimeListener(s)
		s.clock = nil
	}
}

func (s *timeSensor) HandleEvent(n *node.Node, index int, _ float64) {
	if index == TSEnabled && !getBool(n, TSEnabled) && s.active {
		s.active = false
		s.paused = false
		emit(n, TSIsActive, ir.SFBool(false))
	}
}

// TimeChanged implements clock.TimeListener.
func (s *timeSensor) TimeChanged(now float64) {
	if s.node == nil || s.node.State() != node.Live {
		return
	}
	s.tick(s.node, now)
}

func (s *timeSensor) tick(n *node.Node, now float64) {
	if !getBool(n, TSEnabled) {
		return
	}
	loop := getBool(n, TSLoop)
	startTime := getTime(n, TSStartTime)
	stopTime := getTime(n, TSStopTime)

	if !s.active {
		if now < startTime {
			return
		}
		if stopTime > startTime && now >= stopTime {
			return
		}
		interval := getTime(n, TSCycleInterval)
		if !loop && now >= startTime+interval {
			return
		}
		s.active = true
		s.paused = false
		s.start = startTime
		s.interval = interval
		s.pausedTotal = 0
		s.cycle = int64(math.Floor((now - s.start) / s.interval))
		emit(n, TSIsActive, ir.SFBool(true))
		emit(n, TSCycleTime, ir.SFTime(now))
	} else if s.updatePause(n, now) {
		return
	}

	elapsed := now - s.start - s.pausedTotal
	cycles := elapsed / s.interval

	end := math.Inf(1)
	if !loop {
		end = s.start + s.pausedTotal + s.interval
	}
	if stopTime > s.start && stopTime < end {
		end = stopTime
	}
	if now >= end {
		finalCycles := (end - s.start - s.pausedTotal) / s.interval
		if !loop && end != stopTime {
			emit(n, TSCycleTime, ir.SFTime(now))
		}
		emit(n, TSFraction, ir.SFFloat(cycleFraction(finalCycles)))
		emit(n, TSTime, ir.SFTime(now))
		emit(n, TSElapsedTime, ir.SFTime(elapsed))
		emit(n, TSIsActive, ir.SFBool(false))
		s.active = false
		return
	}

	if c := int64(math.Floor(cycles)); c != s.cycle {
		s.cycle = c
		emit(n, TSCycleTime, ir.SFTime(now))
	}
	emit(n, TSFraction, ir.SFFloat(cycleFraction(cycles)))
	emit(n, TSTime, ir.SFTime(now))
	emit(n, TSElapsedTime, ir.SFTime(elapsed))
}

// updatePause applies pauseTime/resumeTime and reports whether the sensor
// is paused after this tick.
func (s *timeSensor) updatePause(n *node.Node, now float64) bool {
	pauseTime := getTime(n, TSPauseTime)
	resumeTime := getTime(n, TSResumeTime)

	if !s.paused && pauseTime > resumeTime && now >= pauseTime {
		s.paused = true
		s.pausedAt = now
		emit(n, TSIsPaused, ir.SFBool(true))
	}
	if s.paused && resumeTime > pauseTime && now >= resumeTime {
		s.pausedTotal += now - s.pausedAt
		s.paused = false
		emit(n, TSIsPaused, ir.SFBool(false))
	}
	return s.paused
}

// cycleFraction maps a cycle count to fraction_changed: the fractional
// part, except that the end of a completed cycle reports 1 rather than 0.
func cycleFraction(cycles float64) float64 {
	f := cycles - math.Floor(cycles)
	if f == 0 && cycles > 0 {
		return 1
	}
	return f
}

func getBool(n *node.Node, index int) bool {
	v, _ := n.FieldValue(index)
	b, _ := v.(ir.SFBool)
	return bool(b)
}

func getTime(n *node.Node, index int) float64 {
	v, _ := n.FieldValue(index)
	t, _ := v.(ir.SFTime)
	return float64(t)
}

func getFloat(n *node.Node, index int) float32 {
	v, _ := n.FieldValue(index)
	f, _ := v.(ir.SFFloat)
	return float32(f)
}

func emit(n *node.Node, index int, v ir.Value) {
	if err := n.Emit(index, v); err != nil {
		slog.Warn("emit failed",
			"node", n.Label(),
			"field", n.FieldName(index),
			"error", err)
	}
}
