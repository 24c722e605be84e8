package ir

import (
	"fmt"
	"math"
	"strconv"
)

// NodeResolver maps a DEF name to a node handle. Used when converting
// SFNode/MFNode values out of scene files.
type NodeResolver func(name string) (NodeID, bool)

// ValueFrom converts a plain decoded value (from CUE, YAML, JSON or Lua)
// into a typed Value of the given data type.
//
// Accepted shapes:
//   - numbers may be any Go integer or float kind
//   - vectors are lists of 2, 3 or 4 numbers
//   - MF vector types accept nested lists or a flat list of numbers
//   - a non-list for an MF type is treated as a one-element list
//   - SFNode accepts nil (NULL), an integer handle, or a DEF name when
//     resolve is non-nil
func ValueFrom(t DataType, raw any, resolve NodeResolver) (Value, error) {
	switch t {
	case SFBoolType:
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("%s: expected bool, got %T", t, raw)
		}
		return SFBool(b), nil
	case SFInt32Type:
		n, err := toInt32(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t, err)
		}
		return SFInt32(n), nil
	case SFFloatType:
		f, err := toFloat(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t, err)
		}
		return SFFloat(f), nil
	case SFDoubleType:
		f, err := toFloat(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t, err)
		}
		return SFDouble(f), nil
	case SFTimeType:
		f, err := toFloat(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t, err)
		}
		return SFTime(f), nil
	case SFStringType:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("%s: expected string, got %T", t, raw)
		}
		return SFString(s), nil
	case SFVec2fType:
		v, err := toVec(raw, 2)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t, err)
		}
		return SFVec2f{v[0], v[1]}, nil
	case SFVec3fType:
		v, err := toVec(raw, 3)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t, err)
		}
		return SFVec3f{v[0], v[1], v[2]}, nil
	case SFColorType:
		v, err := toVec(raw, 3)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t, err)
		}
		return SFColor{v[0], v[1], v[2]}, nil
	case SFRotationType:
		v, err := toVec(raw, 4)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t, err)
		}
		return SFRotation{v[0], v[1], v[2], v[3]}, nil
	case SFNodeType:
		id, err := toNodeID(raw, resolve)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t, err)
		}
		return SFNode(id), nil
	}

	if !t.IsMulti() {
		return nil, fmt.Errorf("unknown data type %s", t)
	}
	return mfFrom(t, raw, resolve)
}

func mfFrom(t DataType, raw any, resolve NodeResolver) (Value, error) {
	items, ok := raw.([]any)
	if !ok {
		if raw == nil {
			items = nil
		} else {
			items = []any{raw}
		}
	}

	switch t {
	case MFBoolType:
		out := make(MFBool, len(items))
		for i, it := range items {
			b, ok := it.(bool)
			if !ok {
				return nil, fmt.Errorf("%s[%d]: expected bool, got %T", t, i, it)
			}
			out[i] = b
		}
		return out, nil
	case MFInt32Type:
		out := make(MFInt32, len(items))
		for i, it := range items {
			n, err := toInt32(it)
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", t, i, err)
			}
			out[i] = n
		}
		return out, nil
	case MFFloatType:
		out := make(MFFloat, len(items))
		for i, it := range items {
			f, err := toFloat(it)
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", t, i, err)
			}
			out[i] = float32(f)
		}
		return out, nil
	case MFTimeType:
		out := make(MFTime, len(items))
		for i, it := range items {
			f, err := toFloat(it)
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", t, i, err)
			}
			out[i] = f
		}
		return out, nil
	case MFStringType:
		out := make(MFString, len(items))
		for i, it := range items {
			s, ok := it.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d]: expected string, got %T", t, i, it)
			}
			out[i] = s
		}
		return out, nil
	case MFVec2fType:
		vecs, err := toVecList(items, 2)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t, err)
		}
		out := make(MFVec2f, len(vecs))
		for i, v := range vecs {
			out[i] = SFVec2f{v[0], v[1]}
		}
		return out, nil
	case MFVec3fType:
		vecs, err := toVecList(items, 3)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t, err)
		}
		out := make(MFVec3f, len(vecs))
		for i, v := range vecs {
			out[i] = SFVec3f{v[0], v[1], v[2]}
		}
		return out, nil
	case MFColorType:
		vecs, err := toVecList(items, 3)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t, err)
		}
		out := make(MFColor, len(vecs))
		for i, v := range vecs {
			out[i] = SFColor{v[0], v[1], v[2]}
		}
		return out, nil
	case MFRotationType:
		vecs, err := toVecList(items, 4)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t, err)
		}
		out := make(MFRotation, len(vecs))
		for i, v := range vecs {
			out[i] = SFRotation{v[0], v[1], v[2], v[3]}
		}
		return out, nil
	case MFNodeType:
		out := make(MFNode, 0, len(items))
		for i, it := range items {
			id, err := toNodeID(it, resolve)
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", t, i, err)
			}
			out = append(out, id)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown data type %s", t)
}

// ToPlain converts a Value into plain Go data suitable for JSON, YAML or Lua:
// bool, int64, float64, string, []any, or nil for a NULL node.
// Single-precision components are widened through their shortest decimal
// form, so SFFloat(0.1) becomes 0.1 rather than 0.10000000149011612.
func ToPlain(v Value) any {
	switch val := v.(type) {
	case SFBool:
		return bool(val)
	case SFInt32:
		return int64(val)
	case SFFloat:
		return widen(float32(val))
	case SFDouble:
		return float64(val)
	case SFTime:
		return float64(val)
	case SFString:
		return string(val)
	case SFVec2f:
		return widenAll(val[:])
	case SFVec3f:
		return widenAll(val[:])
	case SFColor:
		return widenAll(val[:])
	case SFRotation:
		return widenAll(val[:])
	case SFNode:
		return plainNode(NodeID(val))
	case MFBool:
		out := make([]any, len(val))
		for i, b := range val {
			out[i] = b
		}
		return out
	case MFInt32:
		out := make([]any, len(val))
		for i, n := range val {
			out[i] = int64(n)
		}
		return out
	case MFFloat:
		return widenAll(val)
	case MFTime:
		out := make([]any, len(val))
		for i, f := range val {
			out[i] = f
		}
		return out
	case MFString:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	case MFVec2f:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = widenAll(e[:])
		}
		return out
	case MFVec3f:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = widenAll(e[:])
		}
		return out
	case MFColor:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = widenAll(e[:])
		}
		return out
	case MFRotation:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = widenAll(e[:])
		}
		return out
	case MFNode:
		out := make([]any, len(val))
		for i, id := range val {
			out[i] = plainNode(id)
		}
		return out
	default:
		return nil
	}
}

func plainNode(id NodeID) any {
	if id.IsNull() {
		return nil
	}
	return int64(id)
}

func widen(f float32) float64 {
	if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
		return float64(f)
	}
	s := strconv.FormatFloat(float64(f), 'g', -1, 32)
	w, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return float64(f)
	}
	return w
}

func widenAll(fs []float32) []any {
	out := make([]any, len(fs))
	for i, f := range fs {
		out[i] = widen(f)
	}
	return out
}

func toFloat(raw any) (float64, error) {
	switch n := raw.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("expected number, got %T", raw)
	}
}

func toInt32(raw any) (int32, error) {
	var n int64
	switch v := raw.(type) {
	case int:
		n = int64(v)
	case int32:
		n = int64(v)
	case int64:
		n = v
	case uint32:
		n = int64(v)
	case uint64:
		if v > math.MaxInt32 {
			return 0, fmt.Errorf("%d overflows int32", v)
		}
		n = int64(v)
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("expected integer, got %v", v)
		}
		n = int64(v)
	default:
		return 0, fmt.Errorf("expected integer, got %T", raw)
	}
	if n < math.MinInt32 || n > math.MaxInt32 {
		return 0, fmt.Errorf("%d overflows int32", n)
	}
	return int32(n), nil
}

func toVec(raw any, n int) ([]float32, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("expected list of %d numbers, got %T", n, raw)
	}
	if len(items) != n {
		return nil, fmt.Errorf("expected %d components, got %d", n, len(items))
	}
	out := make([]float32, n)
	for i, it := range items {
		f, err := toFloat(it)
		if err != nil {
			return nil, fmt.Errorf("component %d: %w", i, err)
		}
		out[i] = float32(f)
	}
	return out, nil
}

func toVecList(items []any, n int) ([][]float32, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if _, nested := items[0].([]any); nested {
		out := make([][]float32, len(items))
		for i, it := range items {
			v, err := toVec(it, n)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = v
		}
		return out, nil
	}
	if len(items)%n != 0 {
		return nil, fmt.Errorf("flat list length %d is not a multiple of %d", len(items), n)
	}
	out := make([][]float32, 0, len(items)/n)
	for i := 0; i < len(items); i += n {
		v, err := toVec(items[i:i+n], n)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i/n, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func toNodeID(raw any, resolve NodeResolver) (NodeID, error) {
	switch v := raw.(type) {
	case nil:
		return NullNode, nil
	case string:
		if v == "" || v == "NULL" {
			return NullNode, nil
		}
		if resolve == nil {
			return NullNode, fmt.Errorf("node reference %q cannot be resolved here", v)
		}
		id, ok := resolve(v)
		if !ok {
			return NullNode, fmt.Errorf("unknown DEF name %q", v)
		}
		return id, nil
	default:
		n, err := toFloat(raw)
		if err != nil || n < 0 || n > math.MaxUint32 || n != math.Trunc(n) {
			return NullNode, fmt.Errorf("expected node handle or DEF name, got %v", raw)
		}
		return NodeID(n), nil
	}
}
