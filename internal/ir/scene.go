package ir

import (
	"fmt"
	"strings"
)

// SceneSpec is the compiled, format-independent description of a scene:
// its nodes in declaration order and its routes.
type SceneSpec struct {
	Name   string      `json:"name"`
	Nodes  []NodeDecl  `json:"nodes"`
	Routes []RouteDecl `json:"routes"`
}

// NodeDecl declares one node instance.
type NodeDecl struct {
	DEF  string `json:"def"`
	Type string `json:"type"`

	// Fields holds initial values as plain decoded data; they are converted
	// with ValueFrom once the node's schema is known.
	Fields map[string]any `json:"fields,omitempty"`

	// Interface and Source are only used by Script nodes.
	Interface []InterfaceDecl `json:"interface,omitempty"`
	Source    string          `json:"source,omitempty"`
}

// InterfaceDecl declares one field of a Script node's per-instance interface.
type InterfaceDecl struct {
	Access  AccessType `json:"access"`
	Type    DataType   `json:"type"`
	Name    string     `json:"name"`
	Default any        `json:"default,omitempty"`
}

// RouteDecl names a route endpoint pair by DEF and field name.
type RouteDecl struct {
	FromNode  string `json:"from_node"`
	FromField string `json:"from_field"`
	ToNode    string `json:"to_node"`
	ToField   string `json:"to_field"`
}

// String renders the route in VRML syntax.
func (r RouteDecl) String() string {
	return fmt.Sprintf("ROUTE %s.%s TO %s.%s", r.FromNode, r.FromField, r.ToNode, r.ToField)
}

// ParseRoute parses "ROUTE A.field TO B.field". The leading ROUTE keyword
// is optional.
func ParseRoute(s string) (RouteDecl, error) {
	parts := strings.Fields(s)
	if len(parts) > 0 && parts[0] == "ROUTE" {
		parts = parts[1:]
	}
	if len(parts) != 3 || parts[1] != "TO" {
		return RouteDecl{}, fmt.Errorf("malformed route %q: want \"ROUTE A.f TO B.g\"", s)
	}
	fromNode, fromField, err := splitEndpoint(parts[0])
	if err != nil {
		return RouteDecl{}, fmt.Errorf("malformed route %q: %w", s, err)
	}
	toNode, toField, err := splitEndpoint(parts[2])
	if err != nil {
		return RouteDecl{}, fmt.Errorf("malformed route %q: %w", s, err)
	}
	return RouteDecl{FromNode: fromNode, FromField: fromField, ToNode: toNode, ToField: toField}, nil
}

func splitEndpoint(s string) (string, string, error) {
	i := strings.LastIndexByte(s, '.')
	if i <= 0 || i == len(s)-1 {
		return "", "", fmt.Errorf("endpoint %q is not NODE.field", s)
	}
	return s[:i], s[i+1:], nil
}

// NodeByDEF returns the declaration with the given DEF name.
func (s *SceneSpec) NodeByDEF(def string) (NodeDecl, bool) {
	for _, n := range s.Nodes {
		if n.DEF == def {
			return n, true
		}
	}
	return NodeDecl{}, false
}
