package nodes

import (
	"github.com/chewxy/math32"

	"github.com/roach88/x3drouter/internal/field"
	"github.com/roach88/x3drouter/internal/ir"
	"github.com/roach88/x3drouter/internal/node"
	"github.com/roach88/x3drouter/internal/sensor"
)

// ProximitySensor field indices.
const (
	ProxCenter = iota
	ProxEnabled
	ProxSize
	ProxEnterTime
	ProxExitTime
	ProxIsActive
	ProxPosition
)

var proximitySensorSchema = field.NewBuilder("ProximitySensor").
	Field(ir.AccessExposedField, ir.SFVec3fType, "center", nil).
	Field(ir.AccessExposedField, ir.SFBoolType, "enabled", ir.SFBool(true)).
	Field(ir.AccessExposedField, ir.SFVec3fType, "size", nil, field.NonNegative()).
	Field(ir.AccessEventOut, ir.SFTimeType, "enterTime", nil).
	Field(ir.AccessEventOut, ir.SFTimeType, "exitTime", nil).
	Field(ir.AccessEventOut, ir.SFBoolType, "isActive", nil).
	Field(ir.AccessEventOut, ir.SFVec3fType, "position_changed", nil).
	MustBuild()

// proximitySensor tracks the viewer against an axis-aligned box in scene
// coordinates. It runs after routes settle so a center or size routed in
// this frame is already applied.
type proximitySensor struct {
	inside bool
	last   ir.SFVec3f
}

func newProximitySensor() node.Behavior { return &proximitySensor{} }

func (p *proximitySensor) Setup(*node.Node) {}

func (p *proximitySensor) HandleEvent(n *node.Node, index int, time float64) {
	if index == ProxEnabled && !getBool(n, ProxEnabled) && p.inside {
		p.exit(n, time)
	}
}

func (p *proximitySensor) AllEventsComplete(n *node.Node, f *sensor.Frame) {
	if !getBool(n, ProxEnabled) || !f.HasViewer {
		return
	}
	in := contains(getVec3(n, ProxCenter), getVec3(n, ProxSize), f.Viewer)
	switch {
	case in && !p.inside:
		p.inside = true
		emit(n, ProxIsActive, ir.SFBool(true))
		emit(n, ProxEnterTime, ir.SFTime(f.Time))
		p.last = f.Viewer
		emit(n, ProxPosition, f.Viewer)
	case in:
		if f.Viewer != p.last {
			p.last = f.Viewer
			emit(n, ProxPosition, f.Viewer)
		}
	case p.inside:
		p.exit(n, f.Time)
	}
}

func (p *proximitySensor) exit(n *node.Node, time float64) {
	p.inside = false
	emit(n, ProxIsActive, ir.SFBool(false))
	emit(n, ProxExitTime, ir.SFTime(time))
}

// contains reports whether pos lies in the box, boundary included. A zero
// size box contains nothing.
func contains(center, size, pos ir.SFVec3f) bool {
	for i := range 3 {
		if size[i] <= 0 || math32.Abs(pos[i]-center[i]) > size[i]/2 {
			return false
		}
	}
	return true
}

func getVec3(n *node.Node, index int) ir.SFVec3f {
	v, _ := n.FieldValue(index)
	p, _ := v.(ir.SFVec3f)
	return p
}
