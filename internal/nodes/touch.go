package nodes

import (
	"github.com/roach88/x3drouter/internal/field"
	"github.com/roach88/x3drouter/internal/ir"
	"github.com/roach88/x3drouter/internal/node"
	"github.com/roach88/x3drouter/internal/sensor"
)

// TouchSensor field indices.
const (
	TouchEnabled = iota
	TouchHitPoint
	TouchIsActive
	TouchIsOver
	TouchTouchTime
)

var touchSensorSchema = field.NewBuilder("TouchSensor").
	Field(ir.AccessExposedField, ir.SFBoolType, "enabled", ir.SFBool(true)).
	Field(ir.AccessEventOut, ir.SFVec3fType, "hitPoint_changed", nil).
	Field(ir.AccessEventOut, ir.SFBoolType, "isActive", nil).
	Field(ir.AccessEventOut, ir.SFBoolType, "isOver", nil).
	Field(ir.AccessEventOut, ir.SFTimeType, "touchTime", nil).
	MustBuild()

// touchSensor turns pointer samples into isOver/isActive/touchTime.
// touchTime fires when the button is released while still over the
// geometry after a press that started over it.
type touchSensor struct {
	over   bool
	active bool
}

func newTouchSensor() node.Behavior { return &touchSensor{} }

func (t *touchSensor) Setup(*node.Node) {}

func (t *touchSensor) HandleEvent(n *node.Node, index int, _ float64) {
	if index != TouchEnabled || getBool(n, TouchEnabled) {
		return
	}
	if t.active {
		t.active = false
		emit(n, TouchIsActive, ir.SFBool(false))
	}
	if t.over {
		t.over = false
		emit(n, TouchIsOver, ir.SFBool(false))
	}
}

func (t *touchSensor) ProcessUserInput(n *node.Node, f *sensor.Frame) {
	if !getBool(n, TouchEnabled) {
		return
	}
	for _, ev := range f.PointerFor(n.ID()) {
		if ev.Over != t.over {
			t.over = ev.Over
			emit(n, TouchIsOver, ir.SFBool(t.over))
		}
		if ev.Over {
			emit(n, TouchHitPoint, ev.Point)
		}
		switch {
		case ev.Down && !t.active && ev.Over:
			t.active = true
			emit(n, TouchIsActive, ir.SFBool(true))
		case !ev.Down && t.active:
			t.active = false
			emit(n, TouchIsActive, ir.SFBool(false))
			if ev.Over {
				emit(n, TouchTouchTime, ir.SFTime(f.Time))
			}
		}
	}
}
