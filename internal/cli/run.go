package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/x3drouter/internal/compiler"
	"github.com/roach88/x3drouter/internal/config"
	"github.com/roach88/x3drouter/internal/engine"
	"github.com/roach88/x3drouter/internal/ir"
	"github.com/roach88/x3drouter/internal/nodes"
	"github.com/roach88/x3drouter/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database      string
	Trace         bool
	Frames        int
	Interval      time.Duration
	Duration      time.Duration
	MaxDeliveries int
	LoopPolicy    string
	Set           []string

	// RunIDGenerator allows overriding the run ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDGenerator engine.RunIDGenerator
}

// RunSummary is the JSON payload printed when a run ends.
type RunSummary struct {
	RunID         string `json:"run_id,omitempty"`
	Scene         string `json:"scene"`
	Frames        int    `json:"frames"`
	Deliveries    int    `json:"deliveries"`
	Accepted      int    `json:"accepted"`
	OverflowCount int    `json:"overflow_frames"`
	Errors        int    `json:"errors"`
	LastFrame     uint64 `json:"last_frame"`
	LastMillis    int64  `json:"last_ms"`
	Digest        string `json:"digest,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scene>",
		Short: "Run a scene",
		Long: `Load a scene and evaluate frames, optionally recording every frame's
inputs and route deliveries to a SQLite trace database.

With --frames the scene is evaluated for exactly N frames spaced
--interval apart in scene time, without waiting on the wall clock.
Otherwise the engine ticks in real time until interrupted or until
--duration elapses.

Example:
  x3drouter run ./scenes/bounce.cue --frames 120 --trace
  x3drouter run ./scenes/bounce.cue --set Clock.loop=false --db ./trace.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite trace database (enables tracing)")
	cmd.Flags().BoolVar(&opts.Trace, "trace", false, "record the run to the configured trace database")
	cmd.Flags().IntVar(&opts.Frames, "frames", 0, "evaluate exactly N frames in scene time")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "frame interval (overrides config)")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "stop a real-time run after this long")
	cmd.Flags().IntVar(&opts.MaxDeliveries, "max-deliveries", 0, "route deliveries allowed per frame (overrides config)")
	cmd.Flags().StringVar(&opts.LoopPolicy, "loop-policy", "", "equality | once_per_frame (overrides config)")
	cmd.Flags().StringArrayVar(&opts.Set, "set", nil, "DEF.field=value input applied before the first frame (repeatable)")

	return cmd
}

// applyOverrides layers command-line flags over the loaded config.
func (opts *RunOptions) applyOverrides(cfg *config.Config) error {
	if opts.Interval != 0 {
		cfg.FrameInterval = opts.Interval
	}
	if opts.MaxDeliveries != 0 {
		cfg.MaxDeliveriesPerFrame = opts.MaxDeliveries
	}
	if opts.LoopPolicy != "" {
		cfg.LoopPolicy = opts.LoopPolicy
	}
	if opts.Database != "" {
		cfg.Trace.Enabled = true
		cfg.Trace.DB = opts.Database
	}
	if opts.Trace {
		cfg.Trace.Enabled = true
	}
	if opts.Frames < 0 {
		return errors.New("--frames must be non-negative")
	}
	return cfg.Validate()
}

func runEngine(opts *RunOptions, scenePath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if err := opts.applyOverrides(cfg); err != nil {
		return WrapExitError(ExitCommandError, "invalid settings", err)
	}
	inputs, err := parseSetInputs(opts.Set)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --set", err)
	}

	loaded, err := LoadScene(scenePath)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	if verrs := compiler.Validate(loaded.Spec, nodes.Default()); len(verrs) > 0 {
		return outputValidationErrors(formatter, verrs, nil)
	}
	slog.Info("scene compiled", "scene", loaded.Spec.Name, "nodes", len(loaded.Spec.Nodes), "routes", len(loaded.Spec.Routes))

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	summary := &runSummary{RunSummary: RunSummary{Scene: loaded.Spec.Name}}
	engineOpts := cfg.EngineOptions()

	var recorder *store.Recorder
	if cfg.Trace.Enabled {
		slog.Info("opening trace database", "path", cfg.Trace.DB)
		st, err := store.Open(cfg.Trace.DB)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing database", "error", closeErr)
			}
		}()

		gen := opts.RunIDGenerator
		if gen == nil {
			gen = engine.UUIDv7Generator{}
		}
		recorder, err = st.StartRun(parentCtx, store.Run{
			ID:            gen.Generate(),
			SceneName:     loaded.Spec.Name,
			SceneHash:     loaded.Hash,
			EngineVersion: ir.EngineVersion,
			IRVersion:     ir.IRVersion,
			LoopPolicy:    cfg.LoopPolicy,
			MaxDeliveries: cfg.MaxDeliveriesPerFrame,
		})
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to start run", err)
		}
		summary.RunID = recorder.RunID()
		summary.next = recorder
	}

	engineOpts = append(engineOpts,
		engine.WithTracer(summary),
		engine.WithErrorHandler(func(err error) {
			summary.Errors++
			slog.Warn("runtime error", "error", err)
		}),
	)
	eng := engine.New(engineOpts...)
	if err := eng.Load(loaded.Spec); err != nil {
		return WrapExitError(ExitCommandError, "failed to load scene", err)
	}
	defer eng.Unload()

	for _, in := range inputs {
		eng.Apply(in)
	}

	if opts.Frames > 0 {
		step := cfg.FrameInterval.Milliseconds()
		for i := 0; i < opts.Frames; i++ {
			if err := parentCtx.Err(); err != nil {
				break
			}
			eng.Evaluate(int64(i) * step)
		}
	} else if err := runRealTime(parentCtx, eng, cfg.FrameInterval, opts.Duration, cmd); err != nil {
		return WrapExitError(ExitFailure, "engine error", err)
	}

	if recorder != nil {
		if err := recorder.Err(); err != nil {
			return WrapExitError(ExitCommandError, "failed to record run", err)
		}
	}
	return outputRunSummary(formatter, &summary.RunSummary)
}

// runRealTime ticks the engine on the wall clock until a signal arrives,
// the parent context ends, or the duration elapses.
func runRealTime(parent context.Context, eng *engine.Engine, interval, duration time.Duration, cmd *cobra.Command) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	if duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	fmt.Fprintln(cmd.ErrOrStderr(), "Engine running. Press Ctrl-C to stop.")

	err := eng.Run(ctx, interval)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	slog.Info("engine stopped gracefully")
	return nil
}

// parseSetInputs parses DEF.field=value flags. Values are YAML, so
// lists, numbers, booleans and strings all read naturally.
func parseSetInputs(sets []string) ([]engine.ExternalInput, error) {
	inputs := make([]engine.ExternalInput, 0, len(sets))
	for _, s := range sets {
		ref, raw, ok := strings.Cut(s, "=")
		if !ok {
			return nil, fmt.Errorf("%q: expected DEF.field=value", s)
		}
		def, name, ok := strings.Cut(strings.TrimSpace(ref), ".")
		if !ok || def == "" || name == "" {
			return nil, fmt.Errorf("%q: expected DEF.field=value", s)
		}
		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
			return nil, fmt.Errorf("%q: %w", s, err)
		}
		inputs = append(inputs, engine.ExternalInput{
			Kind:  engine.InputSetField,
			Node:  def,
			Field: name,
			Value: value,
		})
	}
	return inputs, nil
}

// runSummary accumulates frame statistics and forwards every callback to
// the recorder when tracing.
type runSummary struct {
	RunSummary
	next engine.Tracer
}

func (s *runSummary) FrameStarted(frame uint64, millis int64) {
	if s.next != nil {
		s.next.FrameStarted(frame, millis)
	}
}

func (s *runSummary) InputApplied(frame uint64, in engine.ExternalInput, err error) {
	if s.next != nil {
		s.next.InputApplied(frame, in, err)
	}
}

func (s *runSummary) Delivered(frame uint64, d engine.Delivery) {
	if s.next != nil {
		s.next.Delivered(frame, d)
	}
}

func (s *runSummary) FrameFinished(fs *engine.FrameState) {
	s.Frames++
	s.Deliveries += fs.Stats.Deliveries
	s.Accepted += fs.Stats.Accepted
	if fs.Stats.Overflow {
		s.OverflowCount++
	}
	s.LastFrame = fs.Frame
	s.LastMillis = fs.Millis
	s.Digest = fs.Digest
	if s.next != nil {
		s.next.FrameFinished(fs)
	}
}

// outputRunSummary prints the end-of-run summary.
func outputRunSummary(formatter *OutputFormatter, summary *RunSummary) error {
	if formatter.Format == "json" {
		return formatter.SuccessForRun(summary, summary.RunID)
	}

	fmt.Fprintf(formatter.Writer, "✓ Ran scene %q\n\n", summary.Scene)
	fmt.Fprintf(formatter.Writer, "Frames:     %d (last frame %d @ %dms)\n", summary.Frames, summary.LastFrame, summary.LastMillis)
	fmt.Fprintf(formatter.Writer, "Deliveries: %d (%d accepted)\n", summary.Deliveries, summary.Accepted)
	if summary.OverflowCount > 0 {
		fmt.Fprintf(formatter.Writer, "Overflow:   %d frame(s)\n", summary.OverflowCount)
	}
	if summary.Errors > 0 {
		fmt.Fprintf(formatter.Writer, "Errors:     %d\n", summary.Errors)
	}
	if summary.RunID != "" {
		fmt.Fprintf(formatter.Writer, "Run ID:     %s\n", summary.RunID)
	}
	return nil
}
