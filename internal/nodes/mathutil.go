package nodes

import (
	"github.com/chewxy/math32"

	"github.com/roach88/x3drouter/internal/ir"
)

func lerp(a, b, t float32) float32 {
	return a + (b-a)*t
}

func lerpVec3(a, b ir.SFVec3f, t float32) ir.SFVec3f {
	return ir.SFVec3f{lerp(a[0], b[0], t), lerp(a[1], b[1], t), lerp(a[2], b[2], t)}
}

func clamp(v, lo, hi float32) float32 {
	return math32.Max(lo, math32.Min(hi, v))
}

// quat is (x, y, z, w).
type quat [4]float32

func quatFromRotation(r ir.SFRotation) quat {
	x, y, z := r[0], r[1], r[2]
	l := math32.Sqrt(x*x + y*y + z*z)
	if l == 0 {
		return quat{0, 0, 0, 1}
	}
	s := math32.Sin(r[3]/2) / l
	return quat{x * s, y * s, z * s, math32.Cos(r[3] / 2)}
}

// rotation converts back to axis-angle. A zero-angle rotation keeps the
// fallback axis so interpolating about a fixed axis stays on that axis.
func (q quat) rotation(fallback ir.SFRotation) ir.SFRotation {
	w := clamp(q[3], -1, 1)
	angle := 2 * math32.Acos(w)
	s := math32.Sqrt(1 - w*w)
	if s < 1e-6 {
		return ir.SFRotation{fallback[0], fallback[1], fallback[2], 0}
	}
	return ir.SFRotation{q[0] / s, q[1] / s, q[2] / s, angle}
}

// slerp interpolates along the shortest arc between two rotations.
func slerp(a, b ir.SFRotation, t float32) ir.SFRotation {
	qa, qb := quatFromRotation(a), quatFromRotation(b)
	dot := qa[0]*qb[0] + qa[1]*qb[1] + qa[2]*qb[2] + qa[3]*qb[3]
	if dot < 0 {
		qb = quat{-qb[0], -qb[1], -qb[2], -qb[3]}
		dot = -dot
	}

	var wa, wb float32
	if dot > 0.9995 {
		wa, wb = 1-t, t
	} else {
		theta := math32.Acos(dot)
		sinTheta := math32.Sin(theta)
		wa = math32.Sin((1-t)*theta) / sinTheta
		wb = math32.Sin(t*theta) / sinTheta
	}

	var q quat
	var norm float32
	for i := range q {
		q[i] = wa*qa[i] + wb*qb[i]
		norm += q[i] * q[i]
	}
	norm = math32.Sqrt(norm)
	for i := range q {
		q[i] /= norm
	}
	return q.rotation(a)
}

// rgbToHSV returns hue in [0,6), saturation and value in [0,1].
func rgbToHSV(c ir.SFColor) (h, s, v float32) {
	r, g, b := c[0], c[1], c[2]
	maxc := math32.Max(r, math32.Max(g, b))
	minc := math32.Min(r, math32.Min(g, b))
	v = maxc
	d := maxc - minc
	if maxc == 0 || d == 0 {
		return 0, 0, v
	}
	s = d / maxc
	switch maxc {
	case r:
		h = (g - b) / d
	case g:
		h = 2 + (b-r)/d
	default:
		h = 4 + (r-g)/d
	}
	if h < 0 {
		h += 6
	}
	return h, s, v
}

func hsvToRGB(h, s, v float32) ir.SFColor {
	if s == 0 {
		return ir.SFColor{v, v, v}
	}
	h = math32.Mod(h, 6)
	if h < 0 {
		h += 6
	}
	i := math32.Floor(h)
	f := h - i
	p := v * (1 - s)
	q := v * (1 - s*f)
	t := v * (1 - s*(1-f))
	switch int(i) {
	case 0:
		return ir.SFColor{v, t, p}
	case 1:
		return ir.SFColor{q, v, p}
	case 2:
		return ir.SFColor{p, v, t}
	case 3:
		return ir.SFColor{p, q, v}
	case 4:
		return ir.SFColor{t, p, v}
	default:
		return ir.SFColor{v, p, q}
	}
}

// lerpHSV interpolates two colors in HSV space, taking the short way
// around the hue circle. A grey endpoint adopts the other endpoint's hue.
func lerpHSV(a, b ir.SFColor, t float32) ir.SFColor {
	ha, sa, va := rgbToHSV(a)
	hb, sb, vb := rgbToHSV(b)
	if sa == 0 {
		ha = hb
	}
	if sb == 0 {
		hb = ha
	}
	dh := hb - ha
	if dh > 3 {
		dh -= 6
	} else if dh < -3 {
		dh += 6
	}
	c := hsvToRGB(ha+dh*t, lerp(sa, sb, t), lerp(va, vb, t))
	return ir.SFColor{clamp(c[0], 0, 1), clamp(c[1], 0, 1), clamp(c[2], 0, 1)}
}
