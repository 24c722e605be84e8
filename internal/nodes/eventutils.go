package nodes

import (
	"github.com/roach88/x3drouter/internal/field"
	"github.com/roach88/x3drouter/internal/ir"
	"github.com/roach88/x3drouter/internal/node"
)

// BooleanFilter field indices.
const (
	BFSetBoolean = iota
	BFInputFalse
	BFInputNegate
	BFInputTrue
)

var booleanFilterSchema = field.NewBuilder("BooleanFilter").
	Field(ir.AccessEventIn, ir.SFBoolType, "set_boolean", nil).
	Field(ir.AccessEventOut, ir.SFBoolType, "inputFalse", nil).
	Field(ir.AccessEventOut, ir.SFBoolType, "inputNegate", nil).
	Field(ir.AccessEventOut, ir.SFBoolType, "inputTrue", nil).
	MustBuild()

type booleanFilter struct{}

func newBooleanFilter() node.Behavior { return booleanFilter{} }

func (booleanFilter) Setup(*node.Node) {}

func (booleanFilter) HandleEvent(n *node.Node, index int, _ float64) {
	if index != BFSetBoolean {
		return
	}
	b := getBool(n, BFSetBoolean)
	if b {
		emit(n, BFInputTrue, ir.SFBool(true))
	} else {
		emit(n, BFInputFalse, ir.SFBool(false))
	}
	emit(n, BFInputNegate, ir.SFBool(!b))
}

// BooleanToggle field indices.
const (
	BTogSetBoolean = iota
	BTogToggle
)

var booleanToggleSchema = field.NewBuilder("BooleanToggle").
	Field(ir.AccessEventIn, ir.SFBoolType, "set_boolean", nil).
	Field(ir.AccessExposedField, ir.SFBoolType, "toggle", nil).
	MustBuild()

type booleanToggle struct{}

func newBooleanToggle() node.Behavior { return booleanToggle{} }

func (booleanToggle) Setup(*node.Node) {}

// HandleEvent flips toggle on every TRUE; FALSE is ignored.
func (booleanToggle) HandleEvent(n *node.Node, index int, _ float64) {
	if index != BTogSetBoolean || !getBool(n, BTogSetBoolean) {
		return
	}
	emit(n, BTogToggle, ir.SFBool(!getBool(n, BTogToggle)))
}

// BooleanTrigger field indices.
const (
	BTrigSetTriggerTime = iota
	BTrigTriggerTrue
)

var booleanTriggerSchema = field.NewBuilder("BooleanTrigger").
	Field(ir.AccessEventIn, ir.SFTimeType, "set_triggerTime", nil).
	Field(ir.AccessEventOut, ir.SFBoolType, "triggerTrue", nil).
	MustBuild()

type booleanTrigger struct{}

func newBooleanTrigger() node.Behavior { return booleanTrigger{} }

func (booleanTrigger) Setup(*node.Node) {}

func (booleanTrigger) HandleEvent(n *node.Node, index int, _ float64) {
	if index == BTrigSetTriggerTime {
		emit(n, BTrigTriggerTrue, ir.SFBool(true))
	}
}

// IntegerTrigger field indices.
const (
	ITrigSetBoolean = iota
	ITrigIntegerKey
	ITrigTriggerValue
)

var integerTriggerSchema = field.NewBuilder("IntegerTrigger").
	Field(ir.AccessEventIn, ir.SFBoolType, "set_boolean", nil).
	Field(ir.AccessExposedField, ir.SFInt32Type, "integerKey", ir.SFInt32(-1)).
	Field(ir.AccessEventOut, ir.SFInt32Type, "triggerValue", nil).
	MustBuild()

type integerTrigger struct{}

func newIntegerTrigger() node.Behavior { return integerTrigger{} }

func (integerTrigger) Setup(*node.Node) {}

func (integerTrigger) HandleEvent(n *node.Node, index int, _ float64) {
	if index != ITrigSetBoolean || !getBool(n, ITrigSetBoolean) {
		return
	}
	v, _ := n.FieldValue(ITrigIntegerKey)
	emit(n, ITrigTriggerValue, v)
}

// TimeTrigger field indices.
const (
	TTrigSetBoolean = iota
	TTrigTriggerTime
)

var timeTriggerSchema = field.NewBuilder("TimeTrigger").
	Field(ir.AccessEventIn, ir.SFBoolType, "set_boolean", nil).
	Field(ir.AccessEventOut, ir.SFTimeType, "triggerTime", nil).
	MustBuild()

type timeTrigger struct{}

func newTimeTrigger() node.Behavior { return timeTrigger{} }

func (timeTrigger) Setup(*node.Node) {}

// HandleEvent fires on any set_boolean, TRUE or FALSE.
func (timeTrigger) HandleEvent(n *node.Node, index int, time float64) {
	if index == TTrigSetBoolean {
		emit(n, TTrigTriggerTime, ir.SFTime(time))
	}
}
