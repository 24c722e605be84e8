package querysql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/x3drouter/internal/queryir"
)

// Compile translates a query into SQL and its arguments. The query is
// validated first.
func Compile(q queryir.Query) (string, []any, error) {
	if err := queryir.Validate(q); err != nil {
		return "", nil, fmt.Errorf("invalid query: %w", err)
	}
	sel := q.(queryir.Select)

	args := []any{sel.Run}
	where := "run_id = ?"
	if sel.Filter != nil {
		cond, condArgs, err := compilePredicate(sel.From, sel.Filter)
		if err != nil {
			return "", nil, err
		}
		if cond != "" {
			where += " AND " + cond
			args = append(args, condArgs...)
		}
	}

	order := make([]string, len(sel.From.OrderBy))
	for i, col := range sel.From.OrderBy {
		order[i] = col + " ASC"
	}

	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s",
		strings.Join(sel.From.ColumnNames(), ", "),
		sel.From.Name,
		where,
		strings.Join(order, ", "),
	)
	return sql, args, nil
}

func compilePredicate(t *queryir.Table, p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case queryir.Equals:
		return pred.Field + " = ?", []any{bindValue(t, pred.Field, pred.Value)}, nil
	case queryir.NotEquals:
		return pred.Field + " != ?", []any{bindValue(t, pred.Field, pred.Value)}, nil
	case queryir.Compare:
		return fmt.Sprintf("%s %s ?", pred.Field, pred.Op), []any{pred.Value}, nil
	case queryir.And:
		var conds []string
		var args []any
		for _, sub := range pred.Predicates {
			cond, subArgs, err := compilePredicate(t, sub)
			if err != nil {
				return "", nil, err
			}
			if cond == "" {
				continue
			}
			conds = append(conds, cond)
			args = append(args, subArgs...)
		}
		switch len(conds) {
		case 0:
			return "", nil, nil
		case 1:
			return conds[0], args, nil
		}
		return "(" + strings.Join(conds, " AND ") + ")", args, nil
	default:
		return "", nil, fmt.Errorf("unsupported predicate type %T", p)
	}
}

// bindValue converts a literal to the column's storage type.
func bindValue(t *queryir.Table, field string, value any) any {
	col, _ := t.Column(field)
	switch v := value.(type) {
	case int64:
		if col.Kind == queryir.KindText {
			return strconv.FormatInt(v, 10)
		}
	case bool:
		if v {
			return int64(1)
		}
		return int64(0)
	}
	return value
}
