package field

import (
	"fmt"
	"slices"

	"github.com/roach88/x3drouter/internal/ir"
)

// Constraint validates a value beyond its data type. A non-nil error is
// reported to callers wrapped in an *InvalidFieldValueError.
type Constraint func(v ir.Value) error

// OneOf restricts an SFString field to an enumerated set.
func OneOf(allowed ...string) Constraint {
	return func(v ir.Value) error {
		s, ok := v.(ir.SFString)
		if !ok {
			return nil
		}
		if !slices.Contains(allowed, string(s)) {
			return fmt.Errorf("%q is not one of %v", string(s), allowed)
		}
		return nil
	}
}

// Positive requires a scalar numeric value strictly greater than zero.
func Positive() Constraint {
	return func(v ir.Value) error {
		f, ok := scalar(v)
		if ok && f <= 0 {
			return fmt.Errorf("%v must be > 0", f)
		}
		return nil
	}
}

// NonNegative requires every numeric component to be >= 0.
// It applies to scalars and to SFVec3f/MFFloat style values.
func NonNegative() Constraint {
	return func(v ir.Value) error {
		for _, f := range components(v) {
			if f < 0 {
				return fmt.Errorf("%v must be >= 0", f)
			}
		}
		return nil
	}
}

// Range requires every numeric component to lie in [lo, hi].
// Used for SFColor and for normalized scalar fields.
func Range(lo, hi float64) Constraint {
	return func(v ir.Value) error {
		for _, f := range components(v) {
			if f < lo || f > hi {
				return fmt.Errorf("%v outside [%v, %v]", f, lo, hi)
			}
		}
		return nil
	}
}

func scalar(v ir.Value) (float64, bool) {
	switch n := v.(type) {
	case ir.SFInt32:
		return float64(n), true
	case ir.SFFloat:
		return float64(n), true
	case ir.SFDouble:
		return float64(n), true
	case ir.SFTime:
		return float64(n), true
	}
	return 0, false
}

func components(v ir.Value) []float64 {
	if f, ok := scalar(v); ok {
		return []float64{f}
	}
	var out []float64
	add := func(fs ...float32) {
		for _, f := range fs {
			out = append(out, float64(f))
		}
	}
	switch val := v.(type) {
	case ir.SFVec2f:
		add(val[:]...)
	case ir.SFVec3f:
		add(val[:]...)
	case ir.SFColor:
		add(val[:]...)
	case ir.MFFloat:
		add(val...)
	case ir.MFColor:
		for _, c := range val {
			add(c[:]...)
		}
	case ir.MFInt32:
		for _, n := range val {
			out = append(out, float64(n))
		}
	}
	return out
}
