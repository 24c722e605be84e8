package harness

// Trace event types.
const (
	EventFrame    = "frame"
	EventInput    = "input"
	EventDelivery = "delivery"
)

// TraceEvent is one entry of a recorded run: a frame, an applied external
// input, or a route delivery. Events are ordered by frame; within a frame
// the frame event comes first, then inputs, then deliveries in delivery
// order.
type TraceEvent struct {
	Type  string `json:"type"` // "frame", "input" or "delivery"
	Frame uint64 `json:"frame"`

	// Frame events.
	Millis     int64 `json:"ms,omitempty"`
	Deliveries int   `json:"deliveries,omitempty"`
	Overflow   bool  `json:"overflow,omitempty"`

	// Input events.
	Input string `json:"input,omitempty"`
	Error string `json:"error,omitempty"`

	// Delivery events.
	Seq      int    `json:"seq,omitempty"`
	Route    string `json:"route,omitempty"` // "Src.field TO Dest.field"
	Value    any    `json:"value,omitempty"` // plain value
	Accepted bool   `json:"accepted,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every frame expectation and assertion holds.
	Pass bool `json:"pass"`

	// RunID is the run the trace was recorded under.
	RunID string `json:"run_id"`

	// Trace contains frames, inputs and deliveries in order.
	// Used for trace assertions and golden comparison.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State contains the final plain field values, keyed by DEF name and
	// field name. Nodes without a DEF name are omitted.
	State map[string]map[string]any `json:"state,omitempty"`

	// RuntimeErrors holds every error the engine reported, in order.
	// Classified errors are *engine.RuntimeError.
	RuntimeErrors []error `json:"-"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string]map[string]any),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// frameEvent returns the frame event for frame, if present.
func (r *Result) frameEvent(frame uint64) (TraceEvent, bool) {
	for _, ev := range r.Trace {
		if ev.Type == EventFrame && ev.Frame == frame {
			return ev, true
		}
	}
	return TraceEvent{}, false
}
