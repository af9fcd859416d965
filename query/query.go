// Package query is a small builder for read-only graph queries. A Query is
// an AST of match paths, predicates and projections. Values never appear in
// the AST; they are referenced by parameter name and bound at execution.
package query

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
)

// ErrInvalid is returned when a query references an undeclared variable or
// uses an identifier that cannot be rendered safely.
var ErrInvalid = errors.New("query: invalid query")

// Direction of a relationship step relative to the preceding node.
type Direction int

const (
	Outgoing Direction = iota
	Incoming
	Either
)

// PropMatch constrains a node property to equal a parameter.
type PropMatch struct {
	Key   string
	Param string
}

// NodePattern matches nodes by variable, label and property constraints.
type NodePattern struct {
	Var   string
	Label string
	Props []PropMatch
}

// Node starts a node pattern. An empty variable makes the node anonymous.
func Node(v, label string) NodePattern {
	return NodePattern{Var: v, Label: label}
}

// With adds a property constraint bound to param.
func (n NodePattern) With(key, param string) NodePattern {
	n.Props = append(slices.Clone(n.Props), PropMatch{Key: key, Param: param})
	return n
}

// RelPattern matches relationships of any of Types in direction Dir.
type RelPattern struct {
	Var   string
	Types []string
	Dir   Direction
}

// Rel builds a relationship pattern.
func Rel(dir Direction, types ...string) RelPattern {
	return RelPattern{Dir: dir, Types: types}
}

// As names the relationship so it can be projected.
func (r RelPattern) As(v string) RelPattern {
	r.Var = v
	return r
}

// Step is one hop of a path.
type Step struct {
	Rel  RelPattern
	Node NodePattern
}

// Path is a start node followed by zero or more hops.
type Path struct {
	Start NodePattern
	Steps []Step
}

// From starts a path.
func From(n NodePattern) Path {
	return Path{Start: n}
}

// Out appends an outgoing hop.
func (p Path) Out(relType string, n NodePattern) Path {
	return p.Via(Rel(Outgoing, relType), n)
}

// In appends an incoming hop.
func (p Path) In(relType string, n NodePattern) Path {
	return p.Via(Rel(Incoming, relType), n)
}

// Via appends a hop with an explicit relationship pattern.
func (p Path) Via(r RelPattern, n NodePattern) Path {
	p.Steps = append(slices.Clone(p.Steps), Step{Rel: r, Node: n})
	return p
}

// ExprKind discriminates Expr.
type ExprKind int

const (
	ExprVar     ExprKind = iota // whole node or relationship
	ExprProp                    // v.key
	ExprDynProp                 // v[$param]
	ExprRelType                 // type(v)
)

// Expr is a projectable or comparable expression.
type Expr struct {
	Kind  ExprKind
	Var   string
	Key   string
	Param string
}

// V references a bound variable.
func V(v string) Expr { return Expr{Kind: ExprVar, Var: v} }

// Prop references a fixed property of a variable.
func Prop(v, key string) Expr { return Expr{Kind: ExprProp, Var: v, Key: key} }

// DynProp references the property named by a parameter.
func DynProp(v, param string) Expr { return Expr{Kind: ExprDynProp, Var: v, Param: param} }

// TypeOf references the type of a relationship variable.
func TypeOf(v string) Expr { return Expr{Kind: ExprRelType, Var: v} }

// Op is a predicate operator.
type Op int

const (
	OpEq           Op = iota // expr = $param
	OpContainsFold           // case-insensitive substring
	OpIn                     // expr IN $param (list)
	OpNotNull                // expr IS NOT NULL
)

// Predicate is a single WHERE clause term. Terms are conjoined.
type Predicate struct {
	Op    Op
	Left  Expr
	Param string
}

// Eq compares an expression with a parameter.
func Eq(e Expr, param string) Predicate { return Predicate{Op: OpEq, Left: e, Param: param} }

// ContainsFold tests case-insensitive substring containment.
func ContainsFold(e Expr, param string) Predicate {
	return Predicate{Op: OpContainsFold, Left: e, Param: param}
}

// In tests membership in a list parameter.
func In(e Expr, param string) Predicate { return Predicate{Op: OpIn, Left: e, Param: param} }

// NotNull tests that an expression has a value.
func NotNull(e Expr) Predicate { return Predicate{Op: OpNotNull, Left: e} }

// Projection is a returned expression and its alias.
type Projection struct {
	Expr  Expr
	Alias string
}

// As builds a projection.
func As(e Expr, alias string) Projection { return Projection{Expr: e, Alias: alias} }

// Order sorts results by a projection alias.
type Order struct {
	Alias string
	Desc  bool
}

// Limit caps the row count with a constant or a parameter. Zero values mean
// no limit.
type Limit struct {
	N     int
	Param string
}

// Query is a read-only MATCH ... WHERE ... RETURN query.
type Query struct {
	Paths       []Path
	Predicates  []Predicate
	Projections []Projection
	Distinct    bool
	Ordering    []Order
	Limit       Limit
}

// Match starts a query over the given paths.
func Match(paths ...Path) *Query {
	return &Query{Paths: paths}
}

// Where adds conjoined predicates.
func (q *Query) Where(preds ...Predicate) *Query {
	q.Predicates = append(q.Predicates, preds...)
	return q
}

// Return sets the projections.
func (q *Query) Return(projs ...Projection) *Query {
	q.Projections = append(q.Projections, projs...)
	return q
}

// ReturnDistinct sets the projections and deduplicates rows.
func (q *Query) ReturnDistinct(projs ...Projection) *Query {
	q.Distinct = true
	return q.Return(projs...)
}

// OrderBy appends a sort key.
func (q *Query) OrderBy(alias string, desc bool) *Query {
	q.Ordering = append(q.Ordering, Order{Alias: alias, Desc: desc})
	return q
}

// Take caps the result at n rows.
func (q *Query) Take(n int) *Query {
	q.Limit = Limit{N: n}
	return q
}

// TakeParam caps the result at the row count bound to param.
func (q *Query) TakeParam(param string) *Query {
	q.Limit = Limit{Param: param}
	return q
}

// Params implements Template. Names are listed in order of first use.
func (q *Query) Params() []string {
	var out []string
	add := func(name string) {
		if name != "" && !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	eachNode(q, func(n NodePattern) {
		for _, pm := range n.Props {
			add(pm.Param)
		}
	})
	for _, p := range q.Predicates {
		if p.Left.Kind == ExprDynProp {
			add(p.Left.Param)
		}
		add(p.Param)
	}
	for _, p := range q.Projections {
		if p.Expr.Kind == ExprDynProp {
			add(p.Expr.Param)
		}
	}
	add(q.Limit.Param)
	return out
}

// VarKind is the kind of entity a variable binds.
type VarKind int

const (
	VarNode VarKind = iota
	VarRel
)

// Vars returns every named variable and whether it binds a node or a
// relationship.
func (q *Query) Vars() map[string]VarKind {
	vars := make(map[string]VarKind)
	for _, path := range q.Paths {
		if path.Start.Var != "" {
			vars[path.Start.Var] = VarNode
		}
		for _, st := range path.Steps {
			if st.Rel.Var != "" {
				vars[st.Rel.Var] = VarRel
			}
			if st.Node.Var != "" {
				vars[st.Node.Var] = VarNode
			}
		}
	}
	return vars
}

var ident = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks that every identifier is renderable and every referenced
// variable is bound by a path.
func (q *Query) Validate() error {
	if len(q.Paths) == 0 {
		return fmt.Errorf("%w: no match paths", ErrInvalid)
	}
	if len(q.Projections) == 0 {
		return fmt.Errorf("%w: no projections", ErrInvalid)
	}
	var bad error
	check := func(what, s string) {
		if bad == nil && s != "" && !ident.MatchString(s) {
			bad = fmt.Errorf("%w: bad %s %q", ErrInvalid, what, s)
		}
	}
	eachNode(q, func(n NodePattern) {
		check("variable", n.Var)
		check("label", n.Label)
		for _, pm := range n.Props {
			check("property", pm.Key)
			check("parameter", pm.Param)
		}
	})
	for _, path := range q.Paths {
		for _, st := range path.Steps {
			check("variable", st.Rel.Var)
			if len(st.Rel.Types) == 0 && bad == nil {
				bad = fmt.Errorf("%w: relationship without type", ErrInvalid)
			}
			for _, t := range st.Rel.Types {
				check("relationship type", t)
			}
		}
	}
	if bad != nil {
		return bad
	}

	vars := q.Vars()
	checkExpr := func(e Expr) error {
		kind, ok := vars[e.Var]
		if !ok {
			return fmt.Errorf("%w: unbound variable %q", ErrInvalid, e.Var)
		}
		if e.Kind == ExprRelType && kind != VarRel {
			return fmt.Errorf("%w: type() of non-relationship %q", ErrInvalid, e.Var)
		}
		check("property", e.Key)
		check("parameter", e.Param)
		return bad
	}
	for _, p := range q.Predicates {
		if err := checkExpr(p.Left); err != nil {
			return err
		}
		if p.Op != OpNotNull {
			check("parameter", p.Param)
			if p.Param == "" && bad == nil {
				bad = fmt.Errorf("%w: predicate without parameter", ErrInvalid)
			}
		}
	}
	aliases := make(map[string]bool)
	for _, p := range q.Projections {
		if err := checkExpr(p.Expr); err != nil {
			return err
		}
		check("alias", p.Alias)
		if aliases[p.Alias] && bad == nil {
			bad = fmt.Errorf("%w: duplicate alias %q", ErrInvalid, p.Alias)
		}
		aliases[p.Alias] = true
	}
	for _, o := range q.Ordering {
		if !aliases[o.Alias] && bad == nil {
			bad = fmt.Errorf("%w: order by unknown alias %q", ErrInvalid, o.Alias)
		}
	}
	check("parameter", q.Limit.Param)
	return bad
}

func eachNode(q *Query, fn func(NodePattern)) {
	for _, path := range q.Paths {
		fn(path.Start)
		for _, st := range path.Steps {
			fn(st.Node)
		}
	}
}
