package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/x3drouter/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string // "latest" selects the most recent run
	Frame    uint64 // 0 - frame summaries only
	Where    string // optional - delivery filter, e.g. "dest = Ball AND accepted = true"
}

// TraceInput is one recorded external input.
type TraceInput struct {
	Seq   int    `json:"seq"`
	Input string `json:"input"`
	Error string `json:"error,omitempty"`
}

// TraceDelivery is one recorded route delivery.
type TraceDelivery struct {
	Frame    uint64          `json:"frame"`
	Seq      int             `json:"seq"`
	Route    string          `json:"route"`
	Type     string          `json:"type"`
	Value    json.RawMessage `json:"value"`
	Accepted bool            `json:"accepted"`
}

// TraceFrame holds one frame's detail.
type TraceFrame struct {
	store.FrameRecord
	InputList    []TraceInput    `json:"input_list"`
	DeliveryList []TraceDelivery `json:"delivery_list"`
}

// TraceResult holds the trace of one run.
type TraceResult struct {
	Run    store.Run           `json:"run"`
	Frames []store.FrameRecord `json:"frames,omitempty"`
	Detail *TraceFrame         `json:"detail,omitempty"`
	Where  string              `json:"where,omitempty"`
	// Matches holds the deliveries matching --where across the run.
	Matches []TraceDelivery `json:"matches,omitempty"`
	Stats  TraceStats          `json:"stats"`
}

// TraceStats holds summary statistics for a run.
type TraceStats struct {
	Frames         int `json:"frames"`
	Inputs         int `json:"inputs"`
	Deliveries     int `json:"deliveries"`
	Accepted       int `json:"accepted"`
	OverflowFrames int `json:"overflow_frames"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect recorded runs",
		Long: `Inspect the runs recorded in a trace database.

Without --run, lists the recorded runs. With --run, shows the run's
per-frame statistics; adding --frame shows that frame's external inputs
and its route deliveries in delivery order.

--where filters deliveries with conditions joined by AND. Fields are
frame, seq, src, src_field, dest, dest_field, value_type, value and
accepted; operators are =, !=, <, <=, >, >=. Without --frame it lists
the matching deliveries of the whole run.

Examples:
  x3drouter trace --db ./trace.db
  x3drouter trace --db ./trace.db --run latest
  x3drouter trace --db ./trace.db --run latest --frame 12 --where "src = Clock"
  x3drouter trace --db ./trace.db --run latest --where "dest = Ball AND accepted = false"
  x3drouter trace --db ./trace.db --run latest --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite trace database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run ID to show, or \"latest\"")
	cmd.Flags().Uint64Var(&opts.Frame, "frame", 0, "show inputs and deliveries of one frame")
	cmd.Flags().StringVar(&opts.Where, "where", "", "filter deliveries (field op value [AND ...])")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := openExistingStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	if opts.RunID == "" {
		if opts.Frame != 0 {
			return NewExitError(ExitCommandError, "--frame requires --run")
		}
		runs, err := st.ListRuns(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
		return outputRunList(formatter, runs)
	}

	id := opts.RunID
	if id == "latest" {
		id = ""
	}
	run, err := selectRun(ctx, st, id)
	if err != nil {
		return err
	}

	frames, err := st.ReadFrames(ctx, run.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read frames", err)
	}
	result := TraceResult{Run: run, Stats: summarizeFrames(frames)}

	if opts.Frame == 0 {
		if opts.Where == "" {
			result.Frames = frames
			return outputTrace(formatter, result)
		}
		records, err := st.QueryDeliveries(ctx, run.ID, opts.Where)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to query deliveries", err)
		}
		result.Where = opts.Where
		result.Matches = traceDeliveries(records)
		return outputTrace(formatter, result)
	}

	detail, err := buildFrameDetail(ctx, st, run.ID, frames, opts.Frame, opts.Where)
	if err != nil {
		return err
	}
	result.Detail = detail
	return outputTrace(formatter, result)
}

// summarizeFrames totals the per-frame statistics of a run.
func summarizeFrames(frames []store.FrameRecord) TraceStats {
	stats := TraceStats{Frames: len(frames)}
	for _, f := range frames {
		stats.Inputs += f.Inputs
		stats.Deliveries += f.Deliveries
		stats.Accepted += f.Accepted
		if f.Overflow {
			stats.OverflowFrames++
		}
	}
	return stats
}

// buildFrameDetail reads one frame's inputs and the deliveries matching
// where.
func buildFrameDetail(ctx context.Context, st *store.Store, runID string, frames []store.FrameRecord, frame uint64, where string) (*TraceFrame, error) {
	var detail *TraceFrame
	for _, f := range frames {
		if f.Frame == frame {
			detail = &TraceFrame{FrameRecord: f}
			break
		}
	}
	if detail == nil {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("frame %d not recorded in run %s", frame, runID))
	}

	inputs, err := st.ReadInputs(ctx, runID, frame)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read inputs", err)
	}
	detail.InputList = make([]TraceInput, 0, len(inputs))
	for _, in := range inputs {
		detail.InputList = append(detail.InputList, TraceInput{Seq: in.Seq, Input: in.Input.String(), Error: in.Error})
	}

	filter := fmt.Sprintf("frame = %d", frame)
	if where != "" {
		filter = where + " AND " + filter
	}
	deliveries, err := st.QueryDeliveries(ctx, runID, filter)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to query deliveries", err)
	}
	detail.DeliveryList = traceDeliveries(deliveries)
	return detail, nil
}

// traceDeliveries converts stored deliveries for display.
func traceDeliveries(records []store.DeliveryRecord) []TraceDelivery {
	out := make([]TraceDelivery, 0, len(records))
	for _, d := range records {
		out = append(out, TraceDelivery{
			Frame:    d.Frame,
			Seq:      d.Seq,
			Route:    fmt.Sprintf("%s.%s TO %s.%s", d.Src, d.SrcField, d.Dest, d.DestField),
			Type:     d.ValueType,
			Value:    json.RawMessage(d.Value),
			Accepted: d.Accepted,
		})
	}
	return out
}

// requireFile reports an error unless path names an existing file.
func requireFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return nil
}

// outputRunList prints the recorded runs.
func outputRunList(formatter *OutputFormatter, runs []store.Run) error {
	if formatter.Format == "json" {
		return formatter.Success(map[string]any{"runs": runs})
	}

	if len(runs) == 0 {
		fmt.Fprintln(formatter.Writer, "No runs recorded.")
		return nil
	}

	fmt.Fprintf(formatter.Writer, "%d run(s):\n\n", len(runs))
	for _, r := range runs {
		fmt.Fprintf(formatter.Writer, "  %s  %-20s %6d frame(s)  %s  max=%d  scene=%s\n",
			r.ID, r.SceneName, r.Frames, r.LoopPolicy, r.MaxDeliveries, short(r.SceneHash))
	}
	return nil
}

// outputTrace prints a run's frames or one frame's detail.
func outputTrace(formatter *OutputFormatter, result TraceResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	run := result.Run
	fmt.Fprintf(w, "Run %s  scene=%s  policy=%s  max=%d\n", run.ID, run.SceneName, run.LoopPolicy, run.MaxDeliveries)
	stats := result.Stats
	fmt.Fprintf(w, "%d frame(s), %d input(s), %d deliveries (%d accepted), %d overflow frame(s)\n\n",
		stats.Frames, stats.Inputs, stats.Deliveries, stats.Accepted, stats.OverflowFrames)

	if d := result.Detail; d != nil {
		fmt.Fprintf(w, "Frame %d @ %dms  passes=%d suppressed=%d", d.Frame, d.Millis, d.Passes, d.Suppressed)
		if d.Overflow {
			fmt.Fprintf(w, "  OVERFLOW (dropped %d)", d.Dropped)
		}
		fmt.Fprintln(w)

		for _, in := range d.InputList {
			if in.Error != "" {
				fmt.Fprintf(w, "  input %d: %s  ✗ %s\n", in.Seq, in.Input, in.Error)
			} else {
				fmt.Fprintf(w, "  input %d: %s\n", in.Seq, in.Input)
			}
		}
		for _, dl := range d.DeliveryList {
			fmt.Fprintf(w, "  [%d] %s %s = %s (%s)\n", dl.Seq, acceptMark(dl.Accepted), dl.Route, dl.Value, dl.Type)
		}
		return nil
	}

	if result.Where != "" {
		fmt.Fprintf(w, "%d deliveries where %s:\n", len(result.Matches), result.Where)
		for _, dl := range result.Matches {
			fmt.Fprintf(w, "  frame %d [%d] %s %s = %s (%s)\n", dl.Frame, dl.Seq, acceptMark(dl.Accepted), dl.Route, dl.Value, dl.Type)
		}
		return nil
	}

	for _, f := range result.Frames {
		line := fmt.Sprintf("  %6d @ %8dms  inputs=%d deliveries=%d accepted=%d", f.Frame, f.Millis, f.Inputs, f.Deliveries, f.Accepted)
		if f.Overflow {
			line += "  OVERFLOW"
		}
		if f.Digest != "" {
			line += "  " + short(f.Digest)
		}
		fmt.Fprintln(w, line)
	}
	return nil
}

func acceptMark(accepted bool) string {
	if accepted {
		return "✓"
	}
	return "·"
}
