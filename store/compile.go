package store

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/joesaby/gardenqa/graph"
	"github.com/joesaby/gardenqa/query"
)

type columnKind int

const (
	colScalar columnKind = iota
	colNode
	colRel
)

type column struct {
	alias string
	kind  columnKind
}

// compiledQuery is a query AST lowered to SQL over the nodes and edges
// tables. Values are never inlined: user parameters bind by name and the
// compiler's own constants bind as litN.
type compiledQuery struct {
	sql        string
	params     []string
	listParams map[string]bool
	literals   []any
	columns    []column
}

type compiler struct {
	nodeAlias  map[string]string
	relAlias   map[string]string
	from       []string
	conds      []string
	literals   []any
	listParams map[string]bool
	nodes      int
	rels       int
}

// compile lowers q to SQL. Errors wrap ErrSyntax.
func compile(q *query.Query) (*compiledQuery, error) {
	if err := q.Validate(); err != nil {
		return nil, &Error{Op: "compile", Class: ErrSyntax, Cause: err}
	}
	for _, name := range q.Params() {
		if !literalName.MatchString(name) && startsWithLetter(name) {
			continue
		}
		return nil, &Error{Op: "compile", Class: ErrSyntax, Message: fmt.Sprintf("unusable parameter name %q", name)}
	}

	c := &compiler{
		nodeAlias:  make(map[string]string),
		relAlias:   make(map[string]string),
		listParams: make(map[string]bool),
	}

	for _, path := range q.Paths {
		prev := c.node(path.Start)
		for _, st := range path.Steps {
			next := c.node(st.Node)
			c.rel(st.Rel, prev, next)
			prev = next
		}
	}

	for _, p := range q.Predicates {
		c.conds = append(c.conds, c.predicate(p))
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	if q.Distinct {
		b.WriteString("DISTINCT ")
	}
	cols := make([]column, 0, len(q.Projections))
	for i, p := range q.Projections {
		if i > 0 {
			b.WriteString(", ")
		}
		expr, kind := c.projection(p.Expr)
		fmt.Fprintf(&b, "%s AS %q", expr, p.Alias)
		cols = append(cols, column{alias: p.Alias, kind: kind})
	}
	b.WriteString("\nFROM " + strings.Join(c.from, ", "))
	if len(c.conds) > 0 {
		b.WriteString("\nWHERE " + strings.Join(c.conds, "\n  AND "))
	}
	if len(q.Ordering) > 0 {
		keys := make([]string, len(q.Ordering))
		for i, o := range q.Ordering {
			keys[i] = strconv.Quote(o.Alias)
			if o.Desc {
				keys[i] += " DESC"
			}
		}
		b.WriteString("\nORDER BY " + strings.Join(keys, ", "))
	}
	switch {
	case q.Limit.Param != "":
		b.WriteString("\nLIMIT :" + q.Limit.Param)
	case q.Limit.N > 0:
		b.WriteString("\nLIMIT " + strconv.Itoa(q.Limit.N))
	}

	return &compiledQuery{
		sql:        b.String(),
		params:     q.Params(),
		listParams: c.listParams,
		literals:   c.literals,
		columns:    cols,
	}, nil
}

var literalName = regexp.MustCompile(`^lit[0-9]+$`)

func startsWithLetter(s string) bool {
	if s == "" {
		return false
	}
	ch := s[0]
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func (c *compiler) lit(v any) string {
	name := "lit" + strconv.Itoa(len(c.literals))
	c.literals = append(c.literals, v)
	return ":" + name
}

func (c *compiler) node(n query.NodePattern) string {
	alias, seen := c.nodeAlias[n.Var]
	if n.Var == "" || !seen {
		alias = "n" + strconv.Itoa(c.nodes)
		c.nodes++
		c.from = append(c.from, "nodes "+alias)
		if n.Var != "" {
			c.nodeAlias[n.Var] = alias
		}
	}
	if n.Label != "" {
		c.conds = append(c.conds, fmt.Sprintf("%s.label = %s", alias, c.lit(n.Label)))
	}
	for _, pm := range n.Props {
		c.conds = append(c.conds, fmt.Sprintf("%s = :%s", nodeProp(alias, pm.Key), pm.Param))
	}
	return alias
}

func (c *compiler) rel(r query.RelPattern, from, to string) {
	alias := "e" + strconv.Itoa(c.rels)
	c.rels++
	c.from = append(c.from, "edges "+alias)
	if r.Var != "" {
		c.relAlias[r.Var] = alias
	}

	types := make([]string, len(r.Types))
	for i, t := range r.Types {
		types[i] = c.lit(t)
	}
	c.conds = append(c.conds, fmt.Sprintf("%s.type IN (%s)", alias, strings.Join(types, ", ")))

	out := fmt.Sprintf("(%s.source_id = %s.id AND %s.target_id = %s.id)", alias, from, alias, to)
	in := fmt.Sprintf("(%s.source_id = %s.id AND %s.target_id = %s.id)", alias, to, alias, from)
	switch r.Dir {
	case query.Outgoing:
		c.conds = append(c.conds, out)
	case query.Incoming:
		c.conds = append(c.conds, in)
	default:
		c.conds = append(c.conds, "("+out+" OR "+in+")")
	}
}

func nodeProp(alias, key string) string {
	if key == graph.PropName {
		return alias + ".name"
	}
	return fmt.Sprintf("json_extract(%s.properties, '$.%s')", alias, key)
}

// expr renders a scalar expression.
func (c *compiler) expr(e query.Expr) string {
	if a, ok := c.relAlias[e.Var]; ok {
		switch e.Kind {
		case query.ExprRelType:
			return a + ".type"
		case query.ExprDynProp:
			return fmt.Sprintf(`json_extract(%s.properties, '$."' || replace(:%s, '"', '') || '"')`, a, e.Param)
		default:
			return fmt.Sprintf("json_extract(%s.properties, '$.%s')", a, e.Key)
		}
	}
	a := c.nodeAlias[e.Var]
	switch e.Kind {
	case query.ExprDynProp:
		return fmt.Sprintf(`CASE WHEN :%s = 'name' THEN %s.name ELSE json_extract(%s.properties, '$."' || replace(:%s, '"', '') || '"') END`,
			e.Param, a, a, e.Param)
	case query.ExprVar:
		return a + ".name"
	default:
		return nodeProp(a, e.Key)
	}
}

func (c *compiler) projection(e query.Expr) (string, columnKind) {
	if e.Kind != query.ExprVar {
		return c.expr(e), colScalar
	}
	if a, ok := c.relAlias[e.Var]; ok {
		return fmt.Sprintf("json_object('type', %s.type, "+
			"'source', (SELECT name FROM nodes WHERE id = %s.source_id), "+
			"'target', (SELECT name FROM nodes WHERE id = %s.target_id), "+
			"'properties', json(%s.properties))", a, a, a, a), colRel
	}
	a := c.nodeAlias[e.Var]
	return fmt.Sprintf("json_object('label', %s.label, 'name', %s.name, 'properties', json(%s.properties))", a, a, a), colNode
}

func (c *compiler) predicate(p query.Predicate) string {
	left := c.expr(p.Left)
	switch p.Op {
	case query.OpContainsFold:
		return fmt.Sprintf("instr(lower(%s), lower(:%s)) > 0", left, p.Param)
	case query.OpIn:
		c.listParams[p.Param] = true
		return fmt.Sprintf("%s IN (SELECT value FROM json_each(:%s))", left, p.Param)
	case query.OpNotNull:
		return left + " IS NOT NULL"
	default:
		return fmt.Sprintf("%s = :%s", left, p.Param)
	}
}

// bindValue converts a parameter value to something the sqlite driver
// accepts. Lists and maps travel as JSON text.
func bindValue(v any, asList bool) (any, error) {
	if asList {
		if v == nil {
			return "[]", nil
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
	switch t := v.(type) {
	case nil, string, bool, int, int8, int16, int32, int64, uint8, uint16, uint32, float32, float64, []byte:
		return t, nil
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Struct:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
	return fmt.Sprint(v), nil
}
