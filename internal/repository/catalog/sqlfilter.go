package catalog

import (
	"fmt"
	"strings"

	"github.com/stellarlab/lcsearch/internal/domain/query/filter"
)

// whereClause translates a parsed filter tree into a parameterized SQL
// condition. Only the typed tree ever reaches this point; literal values
// always travel as bind parameters.
func whereClause(n filter.Node) (string, []any, error) {
	switch node := n.(type) {
	case *filter.Comparison:
		return comparisonSQL(node)
	case *filter.Group:
		parts := make([]string, 0, len(node.Children()))
		var args []any
		for _, ch := range node.Children() {
			sql, a, err := whereClause(ch)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, sql)
			args = append(args, a...)
		}
		joiner := " AND "
		if node.BoolOperator() == filter.BoolOr {
			joiner = " OR "
		}
		return "(" + strings.Join(parts, joiner) + ")", args, nil
	default:
		return "", nil, fmt.Errorf("unknown filter node %T", n)
	}
}

func comparisonSQL(c *filter.Comparison) (string, []any, error) {
	col := quoteIdent(c.Col())

	var val any
	if c.IsNumeric() {
		val = c.NumericValue()
	} else {
		val = c.StringValue()
	}

	switch c.Operator() {
	case filter.OpLT:
		return col + " < ?", []any{val}, nil
	case filter.OpGT:
		return col + " > ?", []any{val}, nil
	case filter.OpLE:
		return col + " <= ?", []any{val}, nil
	case filter.OpGE:
		return col + " >= ?", []any{val}, nil
	case filter.OpEQ:
		return col + " = ?", []any{val}, nil
	case filter.OpNE:
		return col + " != ?", []any{val}, nil
	case filter.OpCT:
		return "instr(" + col + ", ?) > 0", []any{val}, nil
	default:
		return "", nil, fmt.Errorf("unknown comparison operator %q", c.Operator())
	}
}
