// Package script implements the Script node: per-instance field interfaces
// whose event handlers are Lua functions.
//
// A handler is a global function named after the eventIn (or exposedField)
// it handles and is called as fn(value, time). Scripts write outputs with
// emit(name, value) and read any field with get(name). The optional hooks
// initialize(), eventsProcessed() and shutdown() run at the start of the
// first frame, after each frame pass that delivered events, and on removal.
//
// Every call into Lua runs under a context deadline. A script that errors
// or times out is reported and the frame continues.
package script

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/roach88/x3drouter/internal/ir"
	"github.com/roach88/x3drouter/internal/node"
	"github.com/roach88/x3drouter/internal/sensor"
)

// DefaultTimeout bounds a single handler or hook call.
const DefaultTimeout = 50 * time.Millisecond

// Error reports a failed load, handler or hook call.
type Error struct {
	Node string
	Func string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("script %s: %s: %v", e.Node, e.Func, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorHandler receives script failures. The engine installs one that
// records them as runtime errors.
type ErrorHandler func(err *Error)

// Option configures a Script.
type Option func(*Script)

// WithTimeout sets the per-call deadline. Non-positive values keep the
// default.
func WithTimeout(d time.Duration) Option {
	return func(s *Script) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithErrorHandler sets the failure callback.
func WithErrorHandler(h ErrorHandler) Option {
	return func(s *Script) {
		if h != nil {
			s.onError = h
		}
	}
}

// WithResolver sets how emit converts DEF names in SFNode and MFNode
// values to node handles. Without one only handles and NULL are accepted.
func WithResolver(resolve ir.NodeResolver) Option {
	return func(s *Script) {
		s.resolve = resolve
	}
}

// Script is the behavior of one Script node instance.
type Script struct {
	source  string
	timeout time.Duration
	onError ErrorHandler
	resolve ir.NodeResolver

	L    *lua.LState
	node *node.Node
	now  float64

	initialized bool
	pending     bool
	broken      bool
}

// New creates a Script behavior running source.
func New(source string, opts ...Option) *Script {
	s := &Script{
		source:  source,
		timeout: DefaultTimeout,
		onError: logError,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func logError(err *Error) {
	slog.Warn("script failed", "node", err.Node, "func", err.Func, "error", err.Err)
}

var (
	_ node.Behavior       = (*Script)(nil)
	_ sensor.InputSensor  = (*Script)(nil)
	_ sensor.SettleSensor = (*Script)(nil)
	_ sensor.Shutdowner   = (*Script)(nil)
)

// Broken reports whether the script failed to load and is disabled.
func (s *Script) Broken() bool {
	return s.broken
}

// Setup loads the source. Top-level emit calls store initial output values
// without notifying.
func (s *Script) Setup(n *node.Node) {
	s.node = n
	s.L = newState(n.Label())
	s.L.SetGlobal("emit", s.L.NewFunction(s.luaEmit))
	s.L.SetGlobal("get", s.L.NewFunction(s.luaGet))
	s.L.SetGlobal("now", s.L.NewFunction(s.luaNow))

	if err := s.run(func() error { return s.L.DoString(s.source) }); err != nil {
		s.broken = true
		s.onError(&Error{Node: n.Label(), Func: "<load>", Err: err})
	}
}

// HandleEvent calls the handler named after the field, if one is defined.
func (s *Script) HandleEvent(n *node.Node, index int, time float64) {
	if !s.usable() {
		return
	}
	s.now = time
	s.ensureInitialized()

	v, err := n.FieldValue(index)
	if err != nil {
		return
	}
	s.pending = true
	s.call(n.FieldName(index), toLua(s.L, v), lua.LNumber(time))
}

// ProcessUserInput runs initialize() on the first frame.
func (s *Script) ProcessUserInput(_ *node.Node, f *sensor.Frame) {
	if !s.usable() {
		return
	}
	s.now = f.Time
	s.ensureInitialized()
}

// AllEventsComplete runs eventsProcessed() when handlers ran since the
// last call.
func (s *Script) AllEventsComplete(_ *node.Node, f *sensor.Frame) {
	if !s.usable() || !s.pending {
		return
	}
	s.pending = false
	s.now = f.Time
	s.call("eventsProcessed")
}

// Shutdown runs shutdown() and releases the Lua state.
func (s *Script) Shutdown(*node.Node) {
	if s.L == nil {
		return
	}
	if !s.broken && s.initialized {
		s.call("shutdown")
	}
	s.L.Close()
	s.L = nil
}

func (s *Script) usable() bool {
	return s.L != nil && !s.broken
}

func (s *Script) ensureInitialized() {
	if s.initialized {
		return
	}
	s.initialized = true
	s.call("initialize")
}

// call invokes a global function if it exists.
func (s *Script) call(name string, args ...lua.LValue) {
	fn := s.L.GetGlobal(name)
	if fn.Type() != lua.LTFunction {
		return
	}
	err := s.run(func() error {
		return s.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, args...)
	})
	if err != nil {
		s.onError(&Error{Node: s.node.Label(), Func: name, Err: err})
	}
}

// run executes fn under the per-call deadline, recovering Go panics raised
// from inside the VM.
func (s *Script) run(fn func() error) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	s.L.SetContext(ctx)
	defer s.L.RemoveContext()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}

func (s *Script) luaEmit(L *lua.LState) int {
	name := L.CheckString(1)
	schema := s.node.Schema()
	idx, err := schema.FieldIndex(name)
	if err != nil {
		L.RaiseError("emit: %v", err)
		return 0
	}
	decl, _ := schema.Declaration(idx)
	v, err := ir.ValueFrom(decl.Type, fromLua(L.Get(2)), s.resolve)
	if err != nil {
		L.RaiseError("emit %s: %v", name, err)
		return 0
	}
	if err := s.node.Emit(idx, v); err != nil {
		L.RaiseError("emit: %v", err)
	}
	return 0
}

func (s *Script) luaGet(L *lua.LState) int {
	v, err := s.node.FieldValueByName(L.CheckString(1))
	if err != nil {
		L.RaiseError("get: %v", err)
		return 0
	}
	L.Push(toLua(L, v))
	return 1
}

func (s *Script) luaNow(L *lua.LState) int {
	L.Push(lua.LNumber(s.now))
	return 1
}
