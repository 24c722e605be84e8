// Package harness provides conformance testing for x3drouter scenes.
//
// The harness loads a scene, evaluates frames against a real engine with
// scripted external inputs, records the run to an in-memory store, and
// validates the recorded deliveries and final node state.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	scene: ../scenes/bounce.cue
//	run_id: test-run-bounce
//	max_deliveries: 50
//	loop_policy: once_per_frame
//	interval_ms: 1000
//	frames:
//	  - at: 0
//	    inputs:
//	      - {kind: set_field, node: Path, field: set_fraction, value: 0.25}
//	    expect:
//	      Ball.translation: [0, 2.5, 0]
//	  - at: 1000
//	    count: 3
//	assertions:
//	  - type: delivered
//	    route: Path.value_changed TO Ball.translation
//	    frame: 1
//	    value: [0, 2.5, 0]
//	  - type: final_state
//	    node: Ball
//	    expect: {translation: [0, 2.5, 0]}
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - delivered: a delivery along a route appears, optionally in a frame,
//     with a value, or with a given acceptance
//   - delivery_order: routes first carry a delivery in the listed order
//   - delivery_count: a route carries exactly N deliveries
//   - final_state: a node's fields hold the expected values at the end
//   - overflow: the delivery breaker tripped in a frame
//   - error_count: exactly N runtime errors, optionally of one code
//
// Routes in assertions use the canonical field names the trace records,
// so "Ball.set_translation" is written "Ball.translation". Numbers compare
// with a small tolerance.
//
// # Deterministic Testing
//
// All scenarios execute with scripted frame times and a fixed run ID to
// ensure reproducible traces and golden snapshot comparison.
//
// The harness uses:
//   - Fixed run IDs (from scenario.run_id, or "test-run-default")
//   - Scripted frame times (testutil.FrameClock)
//   - In-memory SQLite database (isolated per test)
package harness
