package sensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/x3drouter/internal/clock"
	"github.com/roach88/x3drouter/internal/field"
	"github.com/roach88/x3drouter/internal/ir"
	"github.com/roach88/x3drouter/internal/node"
)

var probeSchema = field.NewBuilder("Probe").
	Field(ir.AccessEventOut, ir.SFBoolType, "isActive", nil).
	MustBuild()

type nopSink struct{}

func (nopSink) FieldChanged(*node.Node, int) {}
func (nopSink) Now() float64                 { return 0 }

// fullSensor implements every capability and records calls.
type fullSensor struct {
	log      *[]string
	name     string
	clock    *clock.Clock
	frames   []Frame
	shutdown int
}

func (s *fullSensor) Setup(*node.Node)                     {}
func (s *fullSensor) HandleEvent(*node.Node, int, float64) {}
func (s *fullSensor) Shutdown(*node.Node)                  { s.shutdown++ }

func (s *fullSensor) SetVRMLClock(_ *node.Node, c *clock.Clock) {
	s.clock = c
}

func (s *fullSensor) ProcessUserInput(_ *node.Node, f *Frame) {
	s.frames = append(s.frames, *f)
	*s.log = append(*s.log, "input:"+s.name)
}

func (s *fullSensor) AllEventsComplete(_ *node.Node, f *Frame) {
	*s.log = append(*s.log, "settle:"+s.name)
}

type plainBehavior struct{}

func (plainBehavior) Setup(*node.Node)                     {}
func (plainBehavior) HandleEvent(*node.Node, int, float64) {}

func liveNode(t *testing.T, id ir.NodeID, b node.Behavior) *node.Node {
	t.Helper()
	n := node.New(id, "", probeSchema, b)
	require.NoError(t, n.BeginSetup(nopSink{}))
	require.NoError(t, n.SetupFinished())
	return n
}

func TestAddSensorGivesClock(t *testing.T) {
	c := clock.New()
	m := NewManager(c)
	var log []string
	s := &fullSensor{log: &log, name: "a"}
	n := liveNode(t, 1, s)

	assert.True(t, m.AddSensor(n))
	assert.False(t, m.AddSensor(n), "already registered")
	assert.Same(t, c, s.clock)
	assert.Equal(t, 1, m.Len())
}

func TestAddSensorIgnoresPlainNodes(t *testing.T) {
	m := NewManager(clock.New())

	assert.False(t, m.AddSensor(liveNode(t, 1, nil)))
	assert.False(t, m.AddSensor(liveNode(t, 2, plainBehavior{})))
	assert.Equal(t, 0, m.Len())
}

func TestCallbacksInRegistrationOrder(t *testing.T) {
	m := NewManager(clock.New())
	var log []string
	m.AddSensor(liveNode(t, 1, &fullSensor{log: &log, name: "a"}))
	m.AddSensor(liveNode(t, 2, &fullSensor{log: &log, name: "b"}))

	m.ProcessUserInput(1)
	m.AllEventsComplete(1)

	assert.Equal(t, []string{"input:a", "input:b", "settle:a", "settle:b"}, log)
}

func TestRemoveSensorDetaches(t *testing.T) {
	m := NewManager(clock.New())
	var log []string
	s := &fullSensor{log: &log, name: "a"}
	n := liveNode(t, 1, s)
	m.AddSensor(n)

	m.RemoveSensor(n)
	m.RemoveSensor(n) // absent

	assert.Nil(t, s.clock)
	assert.Equal(t, 1, s.shutdown)
	m.ProcessUserInput(1)
	assert.Empty(t, log)
}

func TestInputSnapshot(t *testing.T) {
	m := NewManager(clock.New())
	var log []string
	s := &fullSensor{log: &log, name: "a"}
	m.AddSensor(liveNode(t, 1, s))

	m.SetViewer(ir.SFVec3f{0, 1.6, 10})
	m.InjectPointer(PointerEvent{Target: 1, Over: true, Down: true})
	m.InjectPointer(PointerEvent{Target: 7, Over: true})
	m.ProcessUserInput(0.5)
	m.ProcessUserInput(0.6)

	require.Len(t, s.frames, 2)
	first := s.frames[0]
	assert.Equal(t, 0.5, first.Time)
	assert.True(t, first.HasViewer)
	assert.Equal(t, ir.SFVec3f{0, 1.6, 10}, first.Viewer)
	assert.Equal(t, []PointerEvent{{Target: 1, Over: true, Down: true}}, first.PointerFor(1))

	second := s.frames[1]
	assert.Empty(t, second.Pointer, "pointer events are consumed once")
	assert.True(t, second.HasViewer, "viewer position persists")
}

func TestSkipsNonLiveNodes(t *testing.T) {
	m := NewManager(clock.New())
	var log []string
	n := liveNode(t, 1, &fullSensor{log: &log, name: "a"})
	m.AddSensor(n)
	n.MarkRemoved()

	m.ProcessUserInput(1)
	m.AllEventsComplete(1)
	assert.Empty(t, log)
}

func TestClear(t *testing.T) {
	m := NewManager(clock.New())
	var log []string
	a := &fullSensor{log: &log, name: "a"}
	b := &fullSensor{log: &log, name: "b"}
	m.AddSensor(liveNode(t, 1, a))
	m.AddSensor(liveNode(t, 2, b))
	m.InjectPointer(PointerEvent{Target: 1})

	m.Clear()
	assert.Equal(t, 0, m.Len())
	assert.Equal(t, 1, a.shutdown)
	assert.Equal(t, 1, b.shutdown)
	assert.Nil(t, a.clock)
	assert.Empty(t, m.Sensors())
}
