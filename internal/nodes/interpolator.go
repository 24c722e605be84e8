package nodes

import (
	"sort"

	"github.com/chewxy/math32"

	"github.com/roach88/x3drouter/internal/field"
	"github.com/roach88/x3drouter/internal/ir"
	"github.com/roach88/x3drouter/internal/node"
)

// Field indices shared by every interpolator.
const (
	InterpSetFraction = iota
	InterpKey
	InterpKeyValue
	InterpValueChanged
)

func interpolatorSchema(typeName string, keyValue, value ir.DataType) *field.Schema {
	return field.NewBuilder(typeName).
		Field(ir.AccessEventIn, ir.SFFloatType, "set_fraction", nil).
		Field(ir.AccessExposedField, ir.MFFloatType, "key", nil).
		Field(ir.AccessExposedField, keyValue, "keyValue", nil).
		Field(ir.AccessEventOut, value, "value_changed", nil).
		MustBuild()
}

var (
	positionInterpolatorSchema    = interpolatorSchema("PositionInterpolator", ir.MFVec3fType, ir.SFVec3fType)
	scalarInterpolatorSchema      = interpolatorSchema("ScalarInterpolator", ir.MFFloatType, ir.SFFloatType)
	colorInterpolatorSchema       = interpolatorSchema("ColorInterpolator", ir.MFColorType, ir.SFColorType)
	orientationInterpolatorSchema = interpolatorSchema("OrientationInterpolator", ir.MFRotationType, ir.SFRotationType)
	coordinateInterpolatorSchema  = interpolatorSchema("CoordinateInterpolator", ir.MFVec3fType, ir.MFVec3fType)
)

// keyframes evaluates a piecewise function over key[]. Implementations
// supply the number of keyValues per key and how to blend two keyframes.
type keyframes interface {
	// width is the number of keyValue entries per key.
	width(keyValues ir.Value, keys int) int
	// at returns keyframe i.
	at(keyValues ir.Value, i, width int) ir.Value
	// blend interpolates between keyframes a and b at t in [0,1].
	blend(a, b ir.Value, t float32) ir.Value
}

// interpolator is the shared behavior of the linear interpolator family.
// Fractions outside the key range clamp to the first or last keyframe.
type interpolator struct {
	kf   keyframes
	keys []float32
	kv   ir.Value
	w    int
}

func (ip *interpolator) Setup(n *node.Node) {
	ip.rebuild(n)
	if v := ip.eval(getFloat(n, InterpSetFraction)); v != nil {
		emit(n, InterpValueChanged, v)
	}
}

func (ip *interpolator) HandleEvent(n *node.Node, index int, _ float64) {
	switch index {
	case InterpKey, InterpKeyValue:
		ip.rebuild(n)
	case InterpSetFraction:
	default:
		return
	}
	if v := ip.eval(getFloat(n, InterpSetFraction)); v != nil {
		emit(n, InterpValueChanged, v)
	}
}

func (ip *interpolator) rebuild(n *node.Node) {
	kv, _ := n.FieldValue(InterpKey)
	ip.keys = kv.(ir.MFFloat)
	ip.kv, _ = n.FieldValue(InterpKeyValue)
	ip.w = ip.kf.width(ip.kv, len(ip.keys))
}

// eval returns nil when the tables are empty or inconsistent, or when
// fraction is NaN or infinite.
func (ip *interpolator) eval(fraction float32) ir.Value {
	nk := len(ip.keys)
	if nk == 0 || ip.w == 0 || math32.IsNaN(fraction) || math32.IsInf(fraction, 0) {
		return nil
	}
	last := nk - 1
	switch {
	case fraction <= ip.keys[0]:
		return ip.kf.at(ip.kv, 0, ip.w)
	case fraction >= ip.keys[last]:
		return ip.kf.at(ip.kv, last, ip.w)
	}
	// First key strictly greater than fraction; keys[0] < fraction < keys[last].
	i := sort.Search(nk, func(i int) bool { return ip.keys[i] > fraction })
	k0, k1 := ip.keys[i-1], ip.keys[i]
	if k1 == k0 {
		return ip.kf.at(ip.kv, i, ip.w)
	}
	t := (fraction - k0) / (k1 - k0)
	return ip.kf.blend(ip.kf.at(ip.kv, i-1, ip.w), ip.kf.at(ip.kv, i, ip.w), t)
}

// singleKeyframes holds one keyValue per key.
type singleKeyframes[E any, S ~[]E] struct {
	wrap  func(E) ir.Value
	from  func(ir.Value) E
	mix   func(a, b E, t float32) E
	slice func(ir.Value) S
}

func (k singleKeyframes[E, S]) width(v ir.Value, keys int) int {
	if len(k.slice(v)) < keys {
		return 0
	}
	return 1
}

func (k singleKeyframes[E, S]) at(v ir.Value, i, _ int) ir.Value {
	return k.wrap(k.slice(v)[i])
}

func (k singleKeyframes[E, S]) blend(a, b ir.Value, t float32) ir.Value {
	return k.wrap(k.mix(k.from(a), k.from(b), t))
}

func newPositionInterpolator() node.Behavior {
	return &interpolator{kf: singleKeyframes[ir.SFVec3f, ir.MFVec3f]{
		wrap:  func(e ir.SFVec3f) ir.Value { return e },
		from:  func(v ir.Value) ir.SFVec3f { return v.(ir.SFVec3f) },
		mix:   lerpVec3,
		slice: func(v ir.Value) ir.MFVec3f { return v.(ir.MFVec3f) },
	}}
}

func newScalarInterpolator() node.Behavior {
	return &interpolator{kf: singleKeyframes[float32, ir.MFFloat]{
		wrap:  func(e float32) ir.Value { return ir.SFFloat(e) },
		from:  func(v ir.Value) float32 { return float32(v.(ir.SFFloat)) },
		mix:   lerp,
		slice: func(v ir.Value) ir.MFFloat { return v.(ir.MFFloat) },
	}}
}

func newColorInterpolator() node.Behavior {
	return &interpolator{kf: singleKeyframes[ir.SFColor, ir.MFColor]{
		wrap:  func(e ir.SFColor) ir.Value { return e },
		from:  func(v ir.Value) ir.SFColor { return v.(ir.SFColor) },
		mix:   lerpHSV,
		slice: func(v ir.Value) ir.MFColor { return v.(ir.MFColor) },
	}}
}

func newOrientationInterpolator() node.Behavior {
	return &interpolator{kf: singleKeyframes[ir.SFRotation, ir.MFRotation]{
		wrap:  func(e ir.SFRotation) ir.Value { return e },
		from:  func(v ir.Value) ir.SFRotation { return v.(ir.SFRotation) },
		mix:   slerp,
		slice: func(v ir.Value) ir.MFRotation { return v.(ir.MFRotation) },
	}}
}

// coordKeyframes holds len(keyValue)/len(key) points per key.
type coordKeyframes struct{}

func (coordKeyframes) width(v ir.Value, keys int) int {
	if keys == 0 {
		return 0
	}
	return len(v.(ir.MFVec3f)) / keys
}

func (coordKeyframes) at(v ir.Value, i, w int) ir.Value {
	pts := v.(ir.MFVec3f)
	out := make(ir.MFVec3f, w)
	copy(out, pts[i*w:(i+1)*w])
	return out
}

func (coordKeyframes) blend(a, b ir.Value, t float32) ir.Value {
	pa, pb := a.(ir.MFVec3f), b.(ir.MFVec3f)
	out := make(ir.MFVec3f, len(pa))
	for i := range pa {
		out[i] = lerpVec3(pa[i], pb[i], t)
	}
	return out
}

func newCoordinateInterpolator() node.Behavior {
	return &interpolator{kf: coordKeyframes{}}
}
