package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/x3drouter/internal/engine"
	"github.com/roach88/x3drouter/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	RunID    string // optional - defaults to the latest run
	Force    bool   // replay even if the scene hash differs
}

// ReplayReport holds the replay result.
type ReplayReport struct {
	RunID         string   `json:"run_id"`
	Scene         string   `json:"scene"`
	Frames        int      `json:"frames"`
	Deterministic bool     `json:"deterministic"`
	Mismatches    []string `json:"mismatches,omitempty"`
	HashMatches   bool     `json:"hash_matches"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <scene>",
		Short: "Replay a recorded run and verify determinism",
		Long: `Replay a recorded run against a freshly loaded scene and compare each
frame's delivery digest with the recording.

The scene must be the one the run was recorded from; its hash is checked
first. The run's loop policy and delivery limit are reused.

Exit codes:
  0 - Every frame reproduced its recorded deliveries
  1 - Determinism verification failed (differences detected)
  2 - Command error (database not found, scene mismatch, etc.)

Examples:
  x3drouter replay --db ./trace.db ./scenes/bounce.cue
  x3drouter replay --db ./trace.db --run 0190... ./scenes/bounce.cue --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite trace database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run ID to replay (default: latest run)")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "replay even if the scene hash differs from the recording")

	return cmd
}

func runReplay(opts *ReplayOptions, scenePath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}

	st, err := openExistingStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	run, err := selectRun(ctx, st, opts.RunID)
	if err != nil {
		return err
	}

	loaded, err := LoadScene(scenePath)
	if err != nil {
		return outputLoadError(formatter, err)
	}

	report := ReplayReport{
		RunID:       run.ID,
		Scene:       run.SceneName,
		HashMatches: loaded.Hash == run.SceneHash,
	}
	if !report.HashMatches {
		if !opts.Force {
			return WrapExitError(ExitCommandError,
				fmt.Sprintf("scene hash %s does not match run %s (recorded %s); use --force to replay anyway",
					short(loaded.Hash), run.ID, short(run.SceneHash)), nil)
		}
		formatter.VerboseLog("scene hash differs from recording, replaying anyway")
	}

	frames, err := st.ReplayFrames(ctx, run.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}
	formatter.VerboseLog("Replaying %d frame(s) of run %s", len(frames), run.ID)

	policy, ok := engine.ParseLoopPolicy(run.LoopPolicy)
	if !ok {
		return WrapExitError(ExitCommandError, fmt.Sprintf("run %s has unknown loop policy %q", run.ID, run.LoopPolicy), nil)
	}
	eng := engine.New(
		engine.WithDigests(),
		engine.WithMaxDeliveries(run.MaxDeliveries),
		engine.WithLoopPolicy(policy),
		engine.WithScriptTimeout(cfg.Script.Timeout),
	)
	if err := eng.Load(loaded.Spec); err != nil {
		return WrapExitError(ExitCommandError, "failed to load scene", err)
	}
	defer eng.Unload()

	res, err := eng.Replay(ctx, frames)
	if err != nil {
		return WrapExitError(ExitCommandError, "replay failed", err)
	}

	report.Frames = res.Frames
	report.Deterministic = res.OK()
	for _, m := range res.Mismatches {
		report.Mismatches = append(report.Mismatches, m.String())
	}

	if err := outputReplayReport(formatter, report); err != nil {
		return err
	}
	if !report.Deterministic {
		return NewExitError(ExitFailure, fmt.Sprintf("replay diverged in %d frame(s)", len(report.Mismatches)))
	}
	return nil
}

// openExistingStore opens a trace database that must already exist.
// store.Open would silently create an empty one.
func openExistingStore(path string) (*store.Store, error) {
	if err := requireFile(path); err != nil {
		return nil, WrapExitError(ExitCommandError, "database not found", err)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// selectRun returns the named run, or the latest one.
func selectRun(ctx context.Context, st *store.Store, id string) (store.Run, error) {
	var (
		run store.Run
		err error
	)
	if id != "" {
		run, err = st.ReadRun(ctx, id)
	} else {
		run, err = st.LatestRun(ctx)
	}
	if errors.Is(err, store.ErrRunNotFound) {
		if id == "" {
			return run, NewExitError(ExitCommandError, "no runs recorded in database")
		}
		return run, WrapExitError(ExitCommandError, "run not found", err)
	}
	if err != nil {
		return run, WrapExitError(ExitCommandError, "failed to read run", err)
	}
	return run, nil
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

func outputReplayReport(formatter *OutputFormatter, report ReplayReport) error {
	if formatter.Format == "json" {
		return formatter.SuccessForRun(report, report.RunID)
	}

	if report.Deterministic {
		fmt.Fprintf(formatter.Writer, "✓ Run %s replayed deterministically (%d frame(s))\n", report.RunID, report.Frames)
		return nil
	}

	fmt.Fprintf(formatter.Writer, "✗ Run %s diverged in %d of %d frame(s)\n\n", report.RunID, len(report.Mismatches), report.Frames)
	for _, m := range report.Mismatches {
		fmt.Fprintf(formatter.Writer, "  %s\n", m)
	}
	return nil
}
