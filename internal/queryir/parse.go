package queryir

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseFilter parses a conjunction of comparisons:
//
//	field = value AND field != value AND field >= 10
//
// "==" is accepted for "=". AND is case insensitive. Values are integers,
// true/false, quoted strings or bare words. An empty filter returns nil.
func ParseFilter(filter string) (Predicate, error) {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return nil, nil
	}

	parts := splitByAnd(filter)
	if len(parts) == 1 {
		return parseComparison(parts[0])
	}

	predicates := make([]Predicate, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			return nil, fmt.Errorf("empty condition in %q", filter)
		}
		pred, err := parseComparison(part)
		if err != nil {
			return nil, err
		}
		predicates = append(predicates, pred)
	}
	return And{Predicates: predicates}, nil
}

// splitByAnd splits a filter on the AND keyword, outside quotes.
func splitByAnd(filter string) []string {
	var parts []string
	var quote byte
	start := 0
	for i := 0; i < len(filter); i++ {
		c := filter[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		if c == '\'' || c == '"' {
			quote = c
			continue
		}
		if isAndAt(filter, i) {
			parts = append(parts, strings.TrimSpace(filter[start:i]))
			start = i + 3
			i += 2
		}
	}
	return append(parts, strings.TrimSpace(filter[start:]))
}

// isAndAt reports whether a whitespace-delimited AND keyword starts at i.
func isAndAt(s string, i int) bool {
	if i+3 > len(s) || !strings.EqualFold(s[i:i+3], "and") {
		return false
	}
	before := i == 0 || isSpace(s[i-1])
	after := i+3 == len(s) || isSpace(s[i+3])
	return before && after
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' }

// operators in match order: two-character operators first.
var operators = []string{"==", "!=", ">=", "<=", "=", ">", "<"}

// parseComparison parses one "field op value" condition.
func parseComparison(expr string) (Predicate, error) {
	expr = strings.TrimSpace(expr)

	idx, op := -1, ""
	for i := 0; i < len(expr) && idx < 0; i++ {
		for _, candidate := range operators {
			if strings.HasPrefix(expr[i:], candidate) {
				idx, op = i, candidate
				break
			}
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("unsupported condition (no operator found): %s", expr)
	}

	field := strings.TrimSpace(expr[:idx])
	raw := strings.TrimSpace(expr[idx+len(op):])
	if field == "" {
		return nil, fmt.Errorf("missing field in condition: %s", expr)
	}
	if raw == "" {
		return nil, fmt.Errorf("missing value in condition: %s", expr)
	}
	value := parseLiteral(raw)

	switch op {
	case "=", "==":
		return Equals{Field: field, Value: value}, nil
	case "!=":
		return NotEquals{Field: field, Value: value}, nil
	default:
		n, ok := value.(int64)
		if !ok {
			return nil, fmt.Errorf("operator %s needs an integer, got %q", op, raw)
		}
		return Compare{Field: field, Op: Op(op), Value: n}, nil
	}
}

// parseLiteral converts a literal to string, int64 or bool. Quoted
// literals are always strings.
func parseLiteral(raw string) any {
	if len(raw) >= 2 && (raw[0] == '\'' || raw[0] == '"') && raw[len(raw)-1] == raw[0] {
		return raw[1 : len(raw)-1]
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	switch raw {
	case "true":
		return true
	case "false":
		return false
	}
	return raw
}
