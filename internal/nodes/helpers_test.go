package nodes

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/x3drouter/internal/ir"
	"github.com/roach88/x3drouter/internal/node"
)

// frameSink records the names of fields that changed.
type frameSink struct {
	now     float64
	changes []string
}

func (s *frameSink) FieldChanged(n *node.Node, index int) {
	s.changes = append(s.changes, n.FieldName(index))
}

func (s *frameSink) Now() float64 { return s.now }

// nextFrame clears changed flags and the change log, as the engine does at
// frame start.
func (s *frameSink) nextFrame(now float64, nodes ...*node.Node) {
	s.now = now
	s.changes = nil
	for _, n := range nodes {
		n.ClearChanged()
	}
}

func liveNode(t *testing.T, typeName string, init map[string]ir.Value) (*node.Node, *frameSink) {
	t.Helper()
	s, f, ok := Default().Lookup(typeName)
	require.True(t, ok, "type %s", typeName)
	var b node.Behavior
	if f != nil {
		b = f()
	}
	n := node.New(1, typeName, s, b)
	sink := &frameSink{}
	require.NoError(t, n.BeginSetup(sink))
	for name, v := range init {
		require.NoError(t, n.SetValueByName(name, v), name)
	}
	require.NoError(t, n.SetupFinished())
	return n, sink
}

func valueOf(t *testing.T, n *node.Node, name string) ir.Value {
	t.Helper()
	v, err := n.FieldValueByName(name)
	require.NoError(t, err)
	return v
}
