package harness

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/roach88/x3drouter/internal/engine"
	"github.com/roach88/x3drouter/internal/ir"
)

// floatTolerance absorbs single-precision rounding in expected values.
const floatTolerance = 1e-5

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			switch event.Type {
			case EventFrame:
				fmt.Fprintf(&buf, "  frame %d @ %dms\n", event.Frame, event.Millis)
			case EventInput:
				fmt.Fprintf(&buf, "    input %s\n", event.Input)
			case EventDelivery:
				fmt.Fprintf(&buf, "    [%d] %s = %v accepted=%t\n", event.Seq, event.Route, event.Value, event.Accepted)
			}
		}
	}

	return buf.String()
}

// deliveries returns the trace's deliveries along route, optionally
// restricted to one frame.
func deliveries(trace []TraceEvent, route string, frame uint64) []TraceEvent {
	route = normalizeRoute(route)
	var out []TraceEvent
	for _, event := range trace {
		if event.Type != EventDelivery || event.Route != route {
			continue
		}
		if frame != 0 && event.Frame != frame {
			continue
		}
		out = append(out, event)
	}
	return out
}

// normalizeRoute accepts routes with or without the ROUTE keyword.
func normalizeRoute(route string) string {
	return strings.Join(strings.Fields(strings.TrimPrefix(strings.TrimSpace(route), "ROUTE ")), " ")
}

// assertDelivered checks that the trace contains a delivery along the
// route matching the optional frame, value and acceptance.
func assertDelivered(trace []TraceEvent, assertion Assertion) error {
	for _, event := range deliveries(trace, assertion.Route, assertion.Frame) {
		if assertion.Value != nil && !valuesMatch(assertion.Value, event.Value) {
			continue
		}
		if assertion.Accepted != nil && *assertion.Accepted != event.Accepted {
			continue
		}
		return nil
	}

	want := normalizeRoute(assertion.Route)
	if assertion.Frame != 0 {
		want += fmt.Sprintf(" in frame %d", assertion.Frame)
	}
	if assertion.Value != nil {
		want += fmt.Sprintf(" with value %v", assertion.Value)
	}
	if assertion.Accepted != nil {
		want += fmt.Sprintf(" accepted=%t", *assertion.Accepted)
	}
	return &AssertionError{
		Type:     AssertDelivered,
		Expected: "delivery " + want,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertDeliveryOrder checks that the routes first carry a delivery in
// the specified order. Deliveries need not be consecutive.
func assertDeliveryOrder(trace []TraceEvent, assertion Assertion) error {
	// Position of each route's first delivery, 1-indexed for readability
	positions := make(map[string]int)
	for i, event := range trace {
		if event.Type != EventDelivery {
			continue
		}
		if _, seen := positions[event.Route]; !seen {
			positions[event.Route] = i + 1
		}
	}

	routes := make([]string, len(assertion.Routes))
	for i, r := range assertion.Routes {
		routes[i] = normalizeRoute(r)
		if positions[routes[i]] == 0 {
			return &AssertionError{
				Type:     AssertDeliveryOrder,
				Expected: fmt.Sprintf("deliveries along all routes: %v", routes),
				Actual:   fmt.Sprintf("no delivery along %s", routes[i]),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(routes); i++ {
		prev, curr := routes[i-1], routes[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertDeliveryOrder,
				Expected: fmt.Sprintf("routes in order: %v", routes),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertDeliveryCount checks that the route carries exactly Count
// deliveries.
func assertDeliveryCount(trace []TraceEvent, assertion Assertion) error {
	count := len(deliveries(trace, assertion.Route, assertion.Frame))
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertDeliveryCount,
			Expected: fmt.Sprintf("%d deliveries along %s", assertion.Count, normalizeRoute(assertion.Route)),
			Actual:   fmt.Sprintf("%d deliveries", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState checks the node's final field values (subset match).
func assertFinalState(state map[string]map[string]any, assertion Assertion) error {
	fields, ok := state[assertion.Node]
	if !ok {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("node %s in final state", assertion.Node),
			Actual:   "node not found",
		}
	}

	for _, name := range ir.SortedKeys(assertion.Expect) {
		expected := assertion.Expect[name]
		actual, exists := fields[name]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %s.%s to exist", assertion.Node, name),
				Actual:   "no such field",
			}
		}
		if !valuesMatch(expected, actual) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s.%s = %v", assertion.Node, name, expected),
				Actual:   fmt.Sprintf("%s.%s = %v", assertion.Node, name, actual),
			}
		}
	}
	return nil
}

// assertOverflow checks that the delivery breaker tripped in the frame.
func assertOverflow(result *Result, assertion Assertion) error {
	ev, ok := result.frameEvent(assertion.Frame)
	if !ok {
		return &AssertionError{
			Type:     AssertOverflow,
			Expected: fmt.Sprintf("overflow in frame %d", assertion.Frame),
			Actual:   "frame not recorded",
		}
	}
	if !ev.Overflow {
		return &AssertionError{
			Type:     AssertOverflow,
			Expected: fmt.Sprintf("overflow in frame %d", assertion.Frame),
			Actual:   fmt.Sprintf("frame completed with %d deliveries", ev.Deliveries),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertErrorCount checks the number of runtime errors, optionally of one
// code and frame.
func assertErrorCount(errs []error, assertion Assertion) error {
	count := 0
	var seen []string
	for _, err := range errs {
		var re *engine.RuntimeError
		isRuntime := errors.As(err, &re)
		if assertion.Code != "" && (!isRuntime || string(re.Code) != assertion.Code) {
			continue
		}
		if assertion.Frame != 0 && (!isRuntime || re.Frame != assertion.Frame) {
			continue
		}
		count++
		seen = append(seen, err.Error())
	}

	if count != assertion.Count {
		what := "runtime errors"
		if assertion.Code != "" {
			what = assertion.Code + " errors"
		}
		return &AssertionError{
			Type:     AssertErrorCount,
			Expected: fmt.Sprintf("%d %s", assertion.Count, what),
			Actual:   fmt.Sprintf("%d: %v", count, seen),
		}
	}
	return nil
}

// assertFieldValue checks one "DEF.field" value in a published snapshot.
func assertFieldValue(fs *engine.FrameState, key string, expected any, kind string) error {
	def, name, _ := splitFieldRef(key)
	if fs == nil {
		return &AssertionError{Type: kind, Expected: key, Actual: "no frame published"}
	}
	ns, ok := fs.Lookup(def)
	if !ok {
		return &AssertionError{Type: kind, Expected: fmt.Sprintf("node %s", def), Actual: "node not found"}
	}
	v, ok := ns.Value(name)
	if !ok {
		return &AssertionError{Type: kind, Expected: fmt.Sprintf("field %s", key), Actual: "no such field"}
	}
	if actual := ir.ToPlain(v); !valuesMatch(expected, actual) {
		return &AssertionError{
			Type:     kind,
			Expected: fmt.Sprintf("%s = %v", key, expected),
			Actual:   fmt.Sprintf("%s = %v", key, actual),
		}
	}
	return nil
}

// splitFieldRef splits "DEF.field".
func splitFieldRef(ref string) (def, field string, ok bool) {
	def, field, ok = strings.Cut(ref, ".")
	return def, field, ok && def != "" && field != ""
}

// valuesMatch compares an expected YAML value with an actual plain value.
// Numbers compare within floatTolerance regardless of their Go type;
// lists compare element-wise.
func valuesMatch(expected, actual any) bool {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}

	if e, ok := number(expected); ok {
		a, ok := number(actual)
		return ok && math.Abs(e-a) <= floatTolerance*math.Max(1, math.Abs(e))
	}

	switch exp := expected.(type) {
	case []any:
		act, ok := actual.([]any)
		if !ok || len(act) != len(exp) {
			return false
		}
		for i := range exp {
			if !valuesMatch(exp[i], act[i]) {
				return false
			}
		}
		return true
	case string:
		act, ok := actual.(string)
		return ok && act == exp
	case bool:
		act, ok := actual.(bool)
		return ok && act == exp
	}
	return false
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertDelivered:
			err = assertDelivered(result.Trace, assertion)
		case AssertDeliveryOrder:
			err = assertDeliveryOrder(result.Trace, assertion)
		case AssertDeliveryCount:
			err = assertDeliveryCount(result.Trace, assertion)
		case AssertFinalState:
			err = assertFinalState(result.State, assertion)
		case AssertOverflow:
			err = assertOverflow(result, assertion)
		case AssertErrorCount:
			err = assertErrorCount(result.RuntimeErrors, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			failures = append(failures, err.Error())
		}
	}

	return failures
}
