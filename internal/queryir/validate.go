package queryir

import (
	"errors"
	"fmt"
)

// Validate checks a Select against its table: every field must be a
// column and every literal must fit the column's kind. All problems are
// reported together.
func Validate(q Query) error {
	sel, ok := q.(Select)
	if !ok {
		return fmt.Errorf("unsupported query type %T", q)
	}
	if sel.From == nil {
		return errors.New("select has no table")
	}
	if sel.Run == "" {
		return errors.New("select has no run")
	}
	if sel.Filter == nil {
		return nil
	}
	return errors.Join(validatePredicate(sel.From, sel.Filter)...)
}

func validatePredicate(t *Table, p Predicate) []error {
	switch pred := p.(type) {
	case Equals:
		return validateLiteral(t, pred.Field, pred.Value)
	case NotEquals:
		return validateLiteral(t, pred.Field, pred.Value)
	case Compare:
		col, ok := t.Column(pred.Field)
		if !ok {
			return []error{unknownField(t, pred.Field)}
		}
		if col.Kind != KindInt {
			return []error{fmt.Errorf("field %q is %s; %s needs an integer field", pred.Field, col.Kind, pred.Op)}
		}
		switch pred.Op {
		case OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
			return nil
		}
		return []error{fmt.Errorf("unknown operator %q", pred.Op)}
	case And:
		var errs []error
		for _, sub := range pred.Predicates {
			errs = append(errs, validatePredicate(t, sub)...)
		}
		return errs
	default:
		return []error{fmt.Errorf("unsupported predicate type %T", p)}
	}
}

func validateLiteral(t *Table, field string, value any) []error {
	col, ok := t.Column(field)
	if !ok {
		return []error{unknownField(t, field)}
	}
	var fits bool
	switch value.(type) {
	case string:
		fits = col.Kind == KindText
	case int64:
		// digests and values may look numeric
		fits = col.Kind == KindInt || col.Kind == KindText
	case bool:
		fits = col.Kind == KindBool
	}
	if !fits {
		return []error{fmt.Errorf("field %q is %s, got %v", field, col.Kind, value)}
	}
	return nil
}

func unknownField(t *Table, field string) error {
	return fmt.Errorf("unknown field %q for %s (valid: %v)", field, t.Name, t.ColumnNames())
}
