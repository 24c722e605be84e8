package nodes

import (
	"sort"

	"github.com/roach88/x3drouter/internal/field"
	"github.com/roach88/x3drouter/internal/ir"
	"github.com/roach88/x3drouter/internal/node"
)

// Sequencers share the interpolator indices and add next/previous.
const (
	SeqNext = InterpValueChanged + 1 + iota
	SeqPrevious
)

func sequencerSchema(typeName string, keyValue, value ir.DataType) *field.Schema {
	return field.NewBuilder(typeName).
		Field(ir.AccessEventIn, ir.SFFloatType, "set_fraction", nil).
		Field(ir.AccessExposedField, ir.MFFloatType, "key", nil).
		Field(ir.AccessExposedField, keyValue, "keyValue", nil).
		Field(ir.AccessEventOut, value, "value_changed", nil).
		Field(ir.AccessEventIn, ir.SFBoolType, "next", nil).
		Field(ir.AccessEventIn, ir.SFBoolType, "previous", nil).
		MustBuild()
}

var (
	integerSequencerSchema = sequencerSchema("IntegerSequencer", ir.MFInt32Type, ir.SFInt32Type)
	booleanSequencerSchema = sequencerSchema("BooleanSequencer", ir.MFBoolType, ir.SFBoolType)
)

// sequencer is a step function over key[]: the output is the keyValue of
// the last key not greater than the fraction. next and previous step
// through the keys, wrapping at either end.
type sequencer struct {
	at  func(keyValues ir.Value, i int) ir.Value
	len func(keyValues ir.Value) int

	current int
}

func (s *sequencer) Setup(n *node.Node) {
	if i, ok := s.index(n, getFloat(n, InterpSetFraction)); ok {
		s.current = i
		s.output(n)
	}
}

func (s *sequencer) HandleEvent(n *node.Node, index int, _ float64) {
	count := s.count(n)
	if count == 0 {
		return
	}
	switch index {
	case InterpSetFraction, InterpKey, InterpKeyValue:
		i, ok := s.index(n, getFloat(n, InterpSetFraction))
		if !ok {
			return
		}
		s.current = i
	case SeqNext:
		if !getBool(n, SeqNext) {
			return
		}
		s.current = (s.current + 1) % count
	case SeqPrevious:
		if !getBool(n, SeqPrevious) {
			return
		}
		s.current = (s.current - 1 + count) % count
	default:
		return
	}
	s.output(n)
}

func (s *sequencer) count(n *node.Node) int {
	kv, _ := n.FieldValue(InterpKey)
	values, _ := n.FieldValue(InterpKeyValue)
	return min(len(kv.(ir.MFFloat)), s.len(values))
}

func (s *sequencer) index(n *node.Node, fraction float32) (int, bool) {
	count := s.count(n)
	if count == 0 {
		return 0, false
	}
	kv, _ := n.FieldValue(InterpKey)
	keys := kv.(ir.MFFloat)[:count]
	i := sort.Search(count, func(i int) bool { return keys[i] > fraction })
	return max(i-1, 0), true
}

func (s *sequencer) output(n *node.Node) {
	values, _ := n.FieldValue(InterpKeyValue)
	if s.current >= s.len(values) {
		return
	}
	emit(n, InterpValueChanged, s.at(values, s.current))
}

func newIntegerSequencer() node.Behavior {
	return &sequencer{
		at:  func(v ir.Value, i int) ir.Value { return ir.SFInt32(v.(ir.MFInt32)[i]) },
		len: func(v ir.Value) int { return len(v.(ir.MFInt32)) },
	}
}

func newBooleanSequencer() node.Behavior {
	return &sequencer{
		at:  func(v ir.Value, i int) ir.Value { return ir.SFBool(v.(ir.MFBool)[i]) },
		len: func(v ir.Value) int { return len(v.(ir.MFBool)) },
	}
}
