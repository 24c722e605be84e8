package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/roach88/x3drouter/internal/compiler"
	"github.com/roach88/x3drouter/internal/engine"
	"github.com/roach88/x3drouter/internal/ir"
	"github.com/roach88/x3drouter/internal/nodes"
	"github.com/roach88/x3drouter/internal/store"
	"github.com/roach88/x3drouter/internal/testutil"
)

// Harness is the test execution engine.
// It runs one scenario against a real engine with a fixed run ID and
// scripted frame times, recording every frame to an in-memory store.
type Harness struct {
	scenario *Scenario
	store    *store.Store
	engine   *engine.Engine
	recorder *store.Recorder
	logger   *slog.Logger
	errs     []error
}

// Run executes a test scenario and returns the result.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// The trace is read back from the database, so it reflects exactly what a
// recorded run persists.
//
// Execution flow:
// 1. Compile and validate the scene
// 2. Create fresh in-memory database and start a run
// 3. Evaluate each frame step, checking its expectations
// 4. Read the trace back from the store
// 5. Evaluate assertions and return the result
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	src, err := os.ReadFile(scenario.Scene)
	if err != nil {
		return nil, fmt.Errorf("failed to read scene: %w", err)
	}
	spec, err := compiler.LoadSource(scenario.Scene, src)
	if err != nil {
		return nil, fmt.Errorf("failed to compile scene: %w", err)
	}
	if spec.Name == "" {
		spec.Name = scenario.Name
	}
	if verrs := compiler.Validate(spec, nodes.Default()); len(verrs) > 0 {
		return nil, fmt.Errorf("invalid scene: %w", verrs[0])
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	policy, _ := engine.ParseLoopPolicy(scenario.LoopPolicy)
	runID := testutil.NewFixedRunIDGenerator(scenario.RunID).Generate()

	h := &Harness{
		scenario: scenario,
		store:    st,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	h.recorder, err = st.StartRun(ctx, store.Run{
		ID:            runID,
		SceneName:     spec.Name,
		SceneHash:     ir.SceneHash(src),
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
		LoopPolicy:    policy.String(),
		MaxDeliveries: scenario.MaxDeliveries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start run: %w", err)
	}

	h.engine = engine.New(
		engine.WithTracer(h.recorder),
		engine.WithMaxDeliveries(scenario.MaxDeliveries),
		engine.WithLoopPolicy(policy),
		engine.WithErrorHandler(func(err error) { h.errs = append(h.errs, err) }),
	)
	if err := h.engine.Load(spec); err != nil {
		return nil, fmt.Errorf("failed to load scene: %w", err)
	}
	defer h.engine.Unload()

	result := NewResult()
	result.RunID = runID

	if err := h.executeFrames(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to execute frames: %w", err)
	}
	if err := h.recorder.Err(); err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}

	result.RuntimeErrors = h.errs
	if result.Trace, err = h.readTrace(ctx, runID); err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}
	result.State = finalState(h.engine.Snapshot())

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}

	return result, nil
}

// executeFrames evaluates every frame step and checks step expectations
// against the published snapshot.
func (h *Harness) executeFrames(ctx context.Context, result *Result) error {
	interval := h.scenario.interval()

	for i, step := range h.scenario.Frames {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, in := range step.Inputs {
			h.engine.Apply(in)
		}

		clock := testutil.NewFrameClock(step.At, interval)
		if ran := testutil.Drive(h.engine, clock, step.frames()); ran != step.frames() {
			return fmt.Errorf("frames[%d]: %d of %d frames skipped", i, step.frames()-ran, step.frames())
		}

		fs := h.engine.Snapshot()
		for _, key := range ir.SortedKeys(step.Expect) {
			if err := assertFieldValue(fs, key, step.Expect[key], "frame_expect"); err != nil {
				result.AddError(fmt.Sprintf("frames[%d] (frame %d): %v", i, fs.Frame, err))
			}
		}

		h.logger.Info("frame step completed",
			"step", i,
			"frame", fs.Frame,
			"ms", fs.Millis,
			"deliveries", fs.Stats.Deliveries,
			"overflow", fs.Stats.Overflow,
		)
	}
	return nil
}

// readTrace rebuilds the trace from the recorded run.
func (h *Harness) readTrace(ctx context.Context, runID string) ([]TraceEvent, error) {
	frames, err := h.store.ReadFrames(ctx, runID)
	if err != nil {
		return nil, err
	}
	deliveries, err := h.store.ReadDeliveries(ctx, runID, 0)
	if err != nil {
		return nil, err
	}

	trace := []TraceEvent{}
	next := 0
	for _, f := range frames {
		trace = append(trace, TraceEvent{
			Type:       EventFrame,
			Frame:      f.Frame,
			Millis:     f.Millis,
			Deliveries: f.Deliveries,
			Overflow:   f.Overflow,
		})

		inputs, err := h.store.ReadInputs(ctx, runID, f.Frame)
		if err != nil {
			return nil, err
		}
		for _, in := range inputs {
			trace = append(trace, TraceEvent{
				Type:  EventInput,
				Frame: f.Frame,
				Input: in.Input.String(),
				Error: in.Error,
			})
		}

		for ; next < len(deliveries) && deliveries[next].Frame == f.Frame; next++ {
			d := deliveries[next]
			var value any
			if err := json.Unmarshal([]byte(d.Value), &value); err != nil {
				return nil, fmt.Errorf("frame %d delivery %d: decode value: %w", d.Frame, d.Seq, err)
			}
			trace = append(trace, TraceEvent{
				Type:     EventDelivery,
				Frame:    d.Frame,
				Seq:      d.Seq,
				Route:    fmt.Sprintf("%s.%s TO %s.%s", d.Src, d.SrcField, d.Dest, d.DestField),
				Value:    value,
				Accepted: d.Accepted,
			})
		}
	}
	return trace, nil
}

// finalState converts a snapshot into plain values keyed by DEF name.
func finalState(fs *engine.FrameState) map[string]map[string]any {
	state := make(map[string]map[string]any)
	if fs == nil {
		return state
	}
	for _, id := range fs.Order {
		ns := fs.Nodes[id]
		if ns.DEF == "" {
			continue
		}
		fields := make(map[string]any, len(ns.Names))
		for i, name := range ns.Names {
			fields[name] = ir.ToPlain(ns.Values[i])
		}
		state[ns.DEF] = fields
	}
	return state
}
