package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/x3drouter/internal/ir"
	"github.com/roach88/x3drouter/internal/node"
	"github.com/roach88/x3drouter/internal/scene"
)

func routes(lines ...string) []ir.RouteDecl {
	out := make([]ir.RouteDecl, len(lines))
	for i, l := range lines {
		r, err := ir.ParseRoute(l)
		if err != nil {
			panic(err)
		}
		out[i] = r
	}
	return out
}

func loaded(t *testing.T, spec *ir.SceneSpec, opts ...EngineOption) *Engine {
	t.Helper()
	e := New(opts...)
	require.NoError(t, e.Load(spec))
	t.Cleanup(e.Unload)
	return e
}

func valueOf(t *testing.T, e *Engine, def, fieldName string) ir.Value {
	t.Helper()
	ns, ok := e.Snapshot().Lookup(def)
	require.True(t, ok, "no node %s in snapshot", def)
	v, ok := ns.Value(fieldName)
	require.True(t, ok, "no field %s.%s", def, fieldName)
	return v
}

var bounceScene = &ir.SceneSpec{
	Name: "bounce",
	Nodes: []ir.NodeDecl{
		{DEF: "TS", Type: "TimeSensor", Fields: map[string]any{"cycleInterval": 4}},
		{DEF: "PI", Type: "PositionInterpolator", Fields: map[string]any{
			"key":      []any{0, 1},
			"keyValue": []any{0, 0, 0, 0, 10, 0},
		}},
		{DEF: "TG", Type: "Transform"},
	},
	Routes: routes(
		"ROUTE TS.fraction_changed TO PI.set_fraction",
		"ROUTE PI.value_changed TO TG.translation",
	),
}

func TestEngine_InterpolatorChain(t *testing.T) {
	e := loaded(t, bounceScene)

	require.True(t, e.Evaluate(0))
	assert.Equal(t, ir.SFVec3f{0, 0, 0}, valueOf(t, e, "TG", "translation"))
	assert.Equal(t, ir.SFBool(true), valueOf(t, e, "TS", "isActive"))

	require.True(t, e.Evaluate(1000))
	assert.Equal(t, ir.SFVec3f{0, 2.5, 0}, valueOf(t, e, "TG", "translation"))

	fs := e.Snapshot()
	assert.Equal(t, uint64(2), fs.Frame)
	assert.Equal(t, 1.0, fs.Time)
	assert.Equal(t, 2, fs.Stats.Deliveries)
	assert.Equal(t, 2, fs.Stats.Accepted)

	tg, _ := fs.Lookup("TG")
	assert.True(t, tg.HasChanged("translation"))
	assert.False(t, tg.HasChanged("scale"))

	require.True(t, e.Evaluate(4000))
	assert.Equal(t, ir.SFVec3f{0, 10, 0}, valueOf(t, e, "TG", "translation"))
	assert.Equal(t, ir.SFFloat(1), valueOf(t, e, "TS", "fraction_changed"))
	assert.Equal(t, ir.SFBool(false), valueOf(t, e, "TS", "isActive"))

	require.True(t, e.Evaluate(5000))
	fs = e.Snapshot()
	assert.Zero(t, fs.Stats.Deliveries, "inactive sensor emits nothing")
	tg, _ = fs.Lookup("TG")
	assert.Empty(t, tg.Changed)
}

func TestEngine_NonIncreasingTimeSkipsFrame(t *testing.T) {
	e := loaded(t, bounceScene)

	require.True(t, e.Evaluate(1000))
	e.Apply(ExternalInput{Kind: InputSetField, Node: "TG", Field: "scale", Value: []any{2, 2, 2}})

	assert.False(t, e.Evaluate(1000))
	assert.False(t, e.Evaluate(500))
	assert.Equal(t, uint64(1), e.Snapshot().Frame)
	assert.Equal(t, 1, e.PendingInputs(), "inputs wait for the next frame")

	require.True(t, e.Evaluate(1001))
	assert.Equal(t, ir.SFVec3f{2, 2, 2}, valueOf(t, e, "TG", "scale"))
}

func TestEngine_SetFieldPropagatesInSameFrame(t *testing.T) {
	e := loaded(t, &ir.SceneSpec{
		Nodes: []ir.NodeDecl{
			{DEF: "A", Type: "Transform"},
			{DEF: "B", Type: "Transform"},
			{DEF: "C", Type: "Transform"},
		},
		Routes: routes(
			"ROUTE A.translation TO B.set_translation",
			"ROUTE B.translation_changed TO C.translation",
		),
	})

	e.Apply(ExternalInput{Kind: InputSetField, Node: "A", Field: "translation", Value: []any{1, 2, 3}})
	require.True(t, e.Evaluate(0))

	assert.Equal(t, ir.SFVec3f{1, 2, 3}, valueOf(t, e, "C", "translation"))
	fs := e.Snapshot()
	assert.Equal(t, 1, fs.Stats.Inputs)
	assert.Equal(t, 2, fs.Stats.Deliveries)
	assert.Equal(t, 1, fs.Stats.Passes)
}

func TestEngine_ConvergingCycle(t *testing.T) {
	e := loaded(t, &ir.SceneSpec{
		Nodes: []ir.NodeDecl{
			{DEF: "A", Type: "Transform"},
			{DEF: "B", Type: "Transform"},
		},
		Routes: routes(
			"ROUTE A.translation TO B.translation",
			"ROUTE B.translation TO A.translation",
		),
	})

	e.Apply(ExternalInput{Kind: InputSetField, Node: "A", Field: "translation", Value: []any{1, 1, 1}})
	require.True(t, e.Evaluate(0))

	fs := e.Snapshot()
	assert.False(t, fs.Stats.Overflow)
	assert.Equal(t, 2, fs.Stats.Deliveries)
	assert.Equal(t, 1, fs.Stats.Accepted, "echo back to A is suppressed")
	assert.Equal(t, ir.SFVec3f{1, 1, 1}, valueOf(t, e, "B", "translation"))
}

// Two counters that increment each other never stabilize.
var oscillator = &ir.SceneSpec{
	Nodes: []ir.NodeDecl{
		counterScript("S1"),
		counterScript("S2"),
	},
	Routes: routes(
		"ROUTE S1.v_changed TO S2.set_v",
		"ROUTE S2.v_changed TO S1.set_v",
	),
}

func counterScript(def string) ir.NodeDecl {
	return ir.NodeDecl{
		DEF:  def,
		Type: "Script",
		Interface: []ir.InterfaceDecl{
			{Access: ir.AccessEventIn, Type: ir.SFInt32Type, Name: "set_v"},
			{Access: ir.AccessEventOut, Type: ir.SFInt32Type, Name: "v_changed"},
		},
		Source: `function set_v(v) emit("v_changed", v + 1) end`,
	}
}

func TestEngine_OscillationTripsBreaker(t *testing.T) {
	var reported []error
	e := loaded(t, oscillator,
		WithMaxDeliveries(50),
		WithErrorHandler(func(err error) { reported = append(reported, err) }))

	e.Apply(ExternalInput{Kind: InputSetField, Node: "S1", Field: "set_v", Value: 0})
	require.True(t, e.Evaluate(0), "frame completes despite the cycle")

	fs := e.Snapshot()
	assert.True(t, fs.Stats.Overflow)
	assert.Equal(t, 50, fs.Stats.Deliveries)
	assert.Equal(t, 1, fs.Stats.Dropped)

	require.Len(t, reported, 1)
	assert.True(t, IsOverflowError(reported[0]))
	var oe *RouteCycleOverflowError
	require.ErrorAs(t, reported[0], &oe)
	assert.Equal(t, uint64(1), oe.Frame)
	assert.Equal(t, 50, oe.Limit)

	// S1 was set to 0 and then received 2, 4, ...; each side has seen 25
	// deliveries.
	assert.Equal(t, ir.SFInt32(50), valueOf(t, e, "S2", "v_changed"))
	assert.Equal(t, ir.SFInt32(51), valueOf(t, e, "S1", "v_changed"))

	require.True(t, e.Evaluate(16))
	assert.False(t, e.Snapshot().Stats.Overflow, "flushed queue does not carry over")
	assert.Zero(t, e.Snapshot().Stats.Deliveries)
}

func TestEngine_OncePerFramePolicy(t *testing.T) {
	e := loaded(t, oscillator, WithLoopPolicy(LoopPolicyOncePerFrame))

	e.Apply(ExternalInput{Kind: InputSetField, Node: "S1", Field: "set_v", Value: 0})
	require.True(t, e.Evaluate(0))

	fs := e.Snapshot()
	assert.False(t, fs.Stats.Overflow)
	assert.Equal(t, 2, fs.Stats.Deliveries)
	assert.Equal(t, 1, fs.Stats.Suppressed)
	assert.Equal(t, ir.SFInt32(2), valueOf(t, e, "S2", "v_changed"))
	assert.Equal(t, ir.SFInt32(3), valueOf(t, e, "S1", "v_changed"))
}

func TestEngine_BadDeliveryIsIsolated(t *testing.T) {
	var errs []error
	e := loaded(t, &ir.SceneSpec{
		Nodes: []ir.NodeDecl{
			{DEF: "SI", Type: "ScalarInterpolator", Fields: map[string]any{
				"key":      []any{0, 1},
				"keyValue": []any{0, 5},
			}},
			{DEF: "M", Type: "Material"},
			{DEF: "S", Type: "Script",
				Interface: []ir.InterfaceDecl{
					{Access: ir.AccessEventIn, Type: ir.SFFloatType, Name: "set_f"},
					{Access: ir.AccessEventOut, Type: ir.SFFloatType, Name: "f_changed"},
				},
				Source: `function set_f(v) emit("f_changed", v) end`,
			},
		},
		Routes: routes(
			"ROUTE SI.value_changed TO M.transparency",
			"ROUTE SI.value_changed TO S.set_f",
		),
	}, WithErrorHandler(func(err error) { errs = append(errs, err) }))

	e.Apply(ExternalInput{Kind: InputSetField, Node: "SI", Field: "set_fraction", Value: 1})
	require.True(t, e.Evaluate(0))

	assert.Equal(t, ir.SFFloat(0), valueOf(t, e, "M", "transparency"), "out of range value dropped")
	assert.Equal(t, ir.SFFloat(5), valueOf(t, e, "S", "f_changed"), "next route still delivered")
	fs := e.Snapshot()
	assert.Equal(t, 2, fs.Stats.Deliveries)
	assert.Equal(t, 1, fs.Stats.Accepted)

	require.Len(t, errs, 1)
	var re *RuntimeError
	require.ErrorAs(t, errs[0], &re)
	assert.Equal(t, ErrCodeInvalidFieldValue, re.Code)
	assert.Equal(t, "M", re.Node)
	assert.Equal(t, uint64(1), re.Frame)
}

func TestEngine_NonFiniteScriptOutputDropped(t *testing.T) {
	var errs []error
	e := loaded(t, &ir.SceneSpec{
		Nodes: []ir.NodeDecl{
			{DEF: "S", Type: "Script",
				Interface: []ir.InterfaceDecl{
					{Access: ir.AccessEventIn, Type: ir.SFBoolType, Name: "go"},
					{Access: ir.AccessEventOut, Type: ir.SFFloatType, Name: "f_changed"},
				},
				Source: `function go(v) emit("f_changed", 0/0) end`,
			},
			{DEF: "SI", Type: "ScalarInterpolator", Fields: map[string]any{
				"key":      []any{0, 1},
				"keyValue": []any{2, 4},
			}},
		},
		Routes: routes("ROUTE S.f_changed TO SI.set_fraction"),
	}, WithErrorHandler(func(err error) { errs = append(errs, err) }))

	e.Apply(ExternalInput{Kind: InputSetField, Node: "S", Field: "go", Value: true})
	require.NotPanics(t, func() { require.True(t, e.Evaluate(0)) })

	assert.Equal(t, ir.SFFloat(2), valueOf(t, e, "SI", "value_changed"), "interpolator untouched")
	assert.Equal(t, ir.SFFloat(0), valueOf(t, e, "S", "f_changed"))
	require.Len(t, errs, 1)
	assert.True(t, IsScriptError(errs[0]))
	assert.Contains(t, errs[0].Error(), "non-finite value")

	e.Apply(ExternalInput{Kind: InputSetField, Node: "SI", Field: "set_fraction", Value: 0.5})
	require.True(t, e.Evaluate(10))
	assert.Equal(t, ir.SFFloat(3), valueOf(t, e, "SI", "value_changed"), "later frames still propagate")
}

func TestEngine_ScriptEmitsNodeByDEF(t *testing.T) {
	var errs []error
	e := loaded(t, &ir.SceneSpec{
		Nodes: []ir.NodeDecl{
			{DEF: "TG", Type: "Transform"},
			{DEF: "S", Type: "Script",
				Interface: []ir.InterfaceDecl{
					{Access: ir.AccessEventIn, Type: ir.SFBoolType, Name: "go"},
					{Access: ir.AccessEventOut, Type: ir.SFNodeType, Name: "target"},
				},
				Source: `function go(v) emit("target", "TG") end`,
			},
		},
	}, WithErrorHandler(func(err error) { errs = append(errs, err) }))

	e.Apply(ExternalInput{Kind: InputSetField, Node: "S", Field: "go", Value: true})
	require.True(t, e.Evaluate(0))

	require.Empty(t, errs)
	tg, ok := e.Snapshot().Lookup("TG")
	require.True(t, ok)
	assert.Equal(t, ir.SFNode(tg.ID), valueOf(t, e, "S", "target"))
}

func TestEngine_InputErrorsReported(t *testing.T) {
	var errs []error
	e := loaded(t, bounceScene, WithErrorHandler(func(err error) { errs = append(errs, err) }))

	e.Apply(ExternalInput{Kind: InputSetField, Node: "TG", Field: "nope", Value: 1})
	e.Apply(ExternalInput{Kind: InputSetField, Node: "TG", Field: "translation", Value: "up"})
	e.Apply(ExternalInput{Kind: InputSetField, Node: "TS", Field: "isActive", Value: true})
	e.Apply(ExternalInput{Kind: InputSetField, Node: "Ghost", Field: "x", Value: 1})
	require.True(t, e.Evaluate(0))

	require.Len(t, errs, 4)
	var re *RuntimeError
	require.ErrorAs(t, errs[0], &re)
	assert.Equal(t, ErrCodeInvalidField, re.Code)
	assert.Equal(t, "TG", re.Node)
	assert.Error(t, errs[1])
	require.ErrorAs(t, errs[2], &re)
	assert.Equal(t, ErrCodeInvalidField, re.Code, "eventOut cannot be set from outside")
	assert.Contains(t, errs[3].Error(), "Ghost")
}

func TestEngine_ScriptFailureReported(t *testing.T) {
	var errs []error
	e := loaded(t, &ir.SceneSpec{
		Nodes: []ir.NodeDecl{{
			DEF:  "S",
			Type: "Script",
			Interface: []ir.InterfaceDecl{
				{Access: ir.AccessEventIn, Type: ir.SFBoolType, Name: "go"},
			},
			Source: `function go(v) error("boom") end`,
		}},
	}, WithErrorHandler(func(err error) { errs = append(errs, err) }))

	e.Apply(ExternalInput{Kind: InputSetField, Node: "S", Field: "go", Value: true})
	require.True(t, e.Evaluate(0))

	require.Len(t, errs, 1)
	assert.True(t, IsScriptError(errs[0]))
	var re *RuntimeError
	require.ErrorAs(t, errs[0], &re)
	assert.Equal(t, "go", re.Details["func"])
	assert.Equal(t, uint64(1), re.Frame)
}

func TestEngine_ProximitySettlesAfterDrain(t *testing.T) {
	e := loaded(t, &ir.SceneSpec{
		Nodes: []ir.NodeDecl{
			{DEF: "PS", Type: "ProximitySensor", Fields: map[string]any{"size": []any{10, 10, 10}}},
			{DEF: "Follow", Type: "Transform"},
		},
		Routes: routes("ROUTE PS.position_changed TO Follow.translation"),
	})

	e.Apply(ExternalInput{Kind: InputViewer, Value: []any{1, 2, 3}})
	require.True(t, e.Evaluate(0))

	assert.Equal(t, ir.SFBool(true), valueOf(t, e, "PS", "isActive"))
	assert.Equal(t, ir.SFVec3f{1, 2, 3}, valueOf(t, e, "Follow", "translation"))
	assert.Equal(t, 2, e.Snapshot().Stats.Passes)

	require.True(t, e.Evaluate(16))
	assert.Zero(t, e.Snapshot().Stats.Deliveries, "position unchanged")
	assert.Equal(t, 1, e.Snapshot().Stats.Passes)
}

func TestEngine_TouchSensorDrivesToggle(t *testing.T) {
	e := loaded(t, &ir.SceneSpec{
		Nodes: []ir.NodeDecl{
			{DEF: "Touch", Type: "TouchSensor"},
			{DEF: "Toggle", Type: "BooleanToggle"},
		},
		Routes: routes("ROUTE Touch.isActive TO Toggle.set_boolean"),
	})

	e.Apply(ExternalInput{Kind: InputPointer, Node: "Touch", Over: true, Down: true})
	require.True(t, e.Evaluate(0))
	assert.Equal(t, ir.SFBool(true), valueOf(t, e, "Toggle", "toggle"))

	e.Apply(ExternalInput{Kind: InputPointer, Node: "Touch", Over: true})
	require.True(t, e.Evaluate(100))
	assert.Equal(t, ir.SFBool(true), valueOf(t, e, "Toggle", "toggle"), "release does not toggle")
	assert.Equal(t, ir.SFTime(0.1), valueOf(t, e, "Touch", "touchTime"))
}

func TestEngine_PostRunsOnEngineGoroutine(t *testing.T) {
	e := loaded(t, bounceScene)

	var got *scene.Scene
	require.True(t, e.Post(func(s *scene.Scene) error {
		got = s
		tg, _ := s.Lookup("TG")
		return tg.SetValueByName("scale", ir.SFVec3f{3, 3, 3})
	}))
	assert.Nil(t, got, "not run before the frame")

	require.True(t, e.Evaluate(0))
	assert.Same(t, e.Scene(), got)
	assert.Equal(t, ir.SFVec3f{3, 3, 3}, valueOf(t, e, "TG", "scale"))
}

type recordingProjection struct {
	setups  int
	changed [][]int
}

func (p *recordingProjection) SetupFinished(*node.Node) { p.setups++ }
func (p *recordingProjection) FieldsChanged(_ *node.Node, indices []int) {
	p.changed = append(p.changed, indices)
}

func TestEngine_ProjectionsAndObservers(t *testing.T) {
	e := loaded(t, bounceScene)
	tg, _ := e.Scene().Lookup("TG")
	p := &recordingProjection{}
	tg.AddProjection(p)

	var observed []string
	e.AddNodeObserver("Transform", func(n *node.Node, changed []int) {
		for _, idx := range changed {
			observed = append(observed, n.DEF()+"."+n.FieldName(idx))
		}
	})

	require.True(t, e.Evaluate(0))
	assert.Empty(t, p.changed, "translation stayed at its default")

	require.True(t, e.Evaluate(2000))
	require.Len(t, p.changed, 1)
	tIdx, _ := tg.Schema().FieldIndex("translation")
	assert.Equal(t, []int{tIdx}, p.changed[0])
	assert.Equal(t, []string{"TG.translation"}, observed)
	assert.False(t, tg.HasChanged(tIdx), "flags cleared after publish")
}

func TestEngine_SnapshotSharesUnchangedNodes(t *testing.T) {
	e := loaded(t, bounceScene)
	require.True(t, e.Evaluate(0))
	first := e.Snapshot()
	require.True(t, e.Evaluate(1000))
	second := e.Snapshot()

	pi, _ := e.Scene().Lookup("PI")
	tg, _ := e.Scene().Lookup("TG")
	assert.NotSame(t, first.Nodes[tg.ID()], second.Nodes[tg.ID()])

	require.True(t, e.Evaluate(6000))
	require.True(t, e.Evaluate(7000))
	third := e.Snapshot()
	require.True(t, e.Evaluate(8000))
	assert.Same(t, third.Nodes[pi.ID()], e.Snapshot().Nodes[pi.ID()])
	assert.Equal(t, []ir.NodeID{1, 2, 3}, e.Snapshot().Order)
}

func TestEngine_FrameDone(t *testing.T) {
	e := loaded(t, bounceScene)
	done := e.FrameDone()

	select {
	case <-done:
		t.Fatal("signalled before any frame")
	default:
	}

	require.True(t, e.Evaluate(0))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("FrameDone not signalled")
	}
	assert.NotEqual(t, done, e.FrameDone(), "a fresh channel per frame")
}

func TestEngine_Run(t *testing.T) {
	e := loaded(t, bounceScene)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(ctx, 5*time.Millisecond) }()

	for i := 0; i < 3; i++ {
		select {
		case <-e.FrameDone():
		case <-time.After(2 * time.Second):
			t.Fatal("no frame published")
		}
	}
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.GreaterOrEqual(t, e.Snapshot().Frame, uint64(2))
	assert.False(t, e.Apply(ExternalInput{Kind: InputViewer}), "inputs rejected after stop")
}

func TestEngine_Stop(t *testing.T) {
	e := New()
	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(context.Background(), time.Hour) }()

	e.Stop()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestEngine_Unload(t *testing.T) {
	e := New()
	require.NoError(t, e.Load(bounceScene))
	require.True(t, e.Evaluate(0))
	e.Apply(ExternalInput{Kind: InputViewer, Value: []any{0, 0, 0}})

	e.Unload()

	assert.Zero(t, e.PendingInputs())
	assert.Zero(t, e.Scene().Len())
	assert.Zero(t, e.Scene().Routes().Len())
	assert.Zero(t, e.Scene().Sensors().Len())
	assert.Zero(t, e.Clock().NumListeners())
	assert.Empty(t, e.Snapshot().Nodes)

	require.NoError(t, e.Load(bounceScene), "reload after unload")
	require.True(t, e.Evaluate(1000))
	assert.Equal(t, ir.SFVec3f{0, 2.5, 0}, valueOf(t, e, "TG", "translation"))
}

func TestEngine_LoadReportsErrors(t *testing.T) {
	e := New()
	err := e.Load(&ir.SceneSpec{
		Nodes:  []ir.NodeDecl{{DEF: "A", Type: "Transform"}},
		Routes: routes("ROUTE A.translation TO A.rotation"),
	})
	require.Error(t, err)
	_, ok := e.Snapshot().Lookup("A")
	assert.True(t, ok, "rest of the scene is published")
}
