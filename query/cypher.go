package query

import (
	"fmt"
	"strconv"
	"strings"
)

// Cypher implements Template.
func (q *Query) Cypher() string {
	var b strings.Builder

	b.WriteString("MATCH ")
	for i, path := range q.Paths {
		if i > 0 {
			b.WriteString(", ")
		}
		writeNode(&b, path.Start)
		for _, st := range path.Steps {
			writeRel(&b, st.Rel)
			writeNode(&b, st.Node)
		}
	}

	if len(q.Predicates) > 0 {
		b.WriteString("\nWHERE ")
		for i, p := range q.Predicates {
			if i > 0 {
				b.WriteString(" AND ")
			}
			b.WriteString(cypherPredicate(p))
		}
	}

	b.WriteString("\nRETURN ")
	if q.Distinct {
		b.WriteString("DISTINCT ")
	}
	for i, p := range q.Projections {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s AS %s", cypherExpr(p.Expr), p.Alias)
	}

	if len(q.Ordering) > 0 {
		b.WriteString("\nORDER BY ")
		for i, o := range q.Ordering {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(o.Alias)
			if o.Desc {
				b.WriteString(" DESC")
			}
		}
	}

	switch {
	case q.Limit.Param != "":
		b.WriteString("\nLIMIT $" + q.Limit.Param)
	case q.Limit.N > 0:
		b.WriteString("\nLIMIT " + strconv.Itoa(q.Limit.N))
	}
	return b.String()
}

func writeNode(b *strings.Builder, n NodePattern) {
	b.WriteByte('(')
	b.WriteString(n.Var)
	if n.Label != "" {
		b.WriteString(":" + n.Label)
	}
	if len(n.Props) > 0 {
		b.WriteString(" {")
		for i, pm := range n.Props {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(b, "%s: $%s", pm.Key, pm.Param)
		}
		b.WriteByte('}')
	}
	b.WriteByte(')')
}

func writeRel(b *strings.Builder, r RelPattern) {
	inner := "[" + r.Var
	if len(r.Types) > 0 {
		inner += ":" + strings.Join(r.Types, "|")
	}
	inner += "]"
	switch r.Dir {
	case Outgoing:
		b.WriteString("-" + inner + "->")
	case Incoming:
		b.WriteString("<-" + inner + "-")
	default:
		b.WriteString("-" + inner + "-")
	}
}

func cypherExpr(e Expr) string {
	switch e.Kind {
	case ExprProp:
		return e.Var + "." + e.Key
	case ExprDynProp:
		return e.Var + "[$" + e.Param + "]"
	case ExprRelType:
		return "type(" + e.Var + ")"
	default:
		return e.Var
	}
}

func cypherPredicate(p Predicate) string {
	left := cypherExpr(p.Left)
	switch p.Op {
	case OpContainsFold:
		return fmt.Sprintf("toLower(%s) CONTAINS toLower($%s)", left, p.Param)
	case OpIn:
		return fmt.Sprintf("%s IN $%s", left, p.Param)
	case OpNotNull:
		return left + " IS NOT NULL"
	default:
		return fmt.Sprintf("%s = $%s", left, p.Param)
	}
}
