// Package ast holds the parser-supplied, core-read-only data model: StatementTree
// and the more specific shapes the planner
// and from-set resolver need a typed view of — TableSelectExpression, SelectColumn,
// the FROM clause, and ORDER BY. The SQL grammar/lexer itself is out of scope
//; these types are what that external collaborator is assumed to
// produce.
package ast

import (
	"context"
	"fmt"

	"github.com/relcore/relcore/catalog"
	"github.com/relcore/relcore/expr"
)

// StatementTree is a keyed property bag of parser output: scalars, lists, and
// nested StatementTrees for sub-selects. The core reads but never
// mutates parser-supplied fields — every accessor here returns, never sets.
type StatementTree struct {
	Kind    string
	scalars map[string]interface{}
	lists   map[string][]interface{}
	subs    map[string]*StatementTree
}

func NewStatementTree(kind string) *StatementTree {
	return &StatementTree{
		Kind:    kind,
		scalars: map[string]interface{}{},
		lists:   map[string][]interface{}{},
		subs:    map[string]*StatementTree{},
	}
}

func (s *StatementTree) SetScalar(key string, v interface{}) { s.scalars[key] = v }
func (s *StatementTree) SetList(key string, v []interface{}) { s.lists[key] = v }
func (s *StatementTree) SetSub(key string, v *StatementTree)  { s.subs[key] = v }

func (s *StatementTree) Get(key string) (interface{}, bool) {
	v, ok := s.scalars[key]
	return v, ok
}
func (s *StatementTree) GetString(key string) string {
	if v, ok := s.scalars[key]; ok {
		if str, ok := v.(string); ok {
			return str
		}
	}
	return ""
}
func (s *StatementTree) GetBool(key string) bool {
	if v, ok := s.scalars[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}
func (s *StatementTree) GetList(key string) []interface{} { return s.lists[key] }
func (s *StatementTree) GetSub(key string) (*StatementTree, bool) {
	v, ok := s.subs[key]
	return v, ok
}

// JoinType tags how a FromItem combines with the from-clause sources before it.
type JoinType int

const (
	JoinNone JoinType = iota // the first FROM entry, no join operator precedes it
	JoinInner
	JoinLeftOuter
	JoinRightOuter
	JoinCross
)

// TableRef is a direct (non-sub-query) FROM entry: an optional schema, a table
// name, and an optional alias.
type TableRef struct {
	Schema string
	Table  string
	Alias  string
}

// FromItem is one entry of a FROM clause: either a direct TableRef or a
// sub-query wrapping a nested TableSelectExpression, plus the join linking it to
// the accumulated sources before it.
type FromItem struct {
	Direct   *TableRef
	Subquery *TableSelectExpression
	Alias    string

	Join JoinType
	On   *expr.Expression // parser-supplied, unqualified; nil for JoinNone/JoinCross
}

// SelectColumn is either a glob (`*` or `table.*`) or an expression with an
// optional alias. ResolvedName/InternalName are filled in by the
// planner during preparation, not by the parser.
type SelectColumn struct {
	Glob      bool
	GlobTable string // "" for a bare `*`, else the qualifying table name for `T.*`

	Expr  *expr.Expression
	Alias string

	ResolvedName string
	InternalName string
}

// OrderByItem is one ORDER BY entry. Expr may, before planning, be a bare
// integer-literal Expression naming a 1-based SELECT-list position.
type OrderByItem struct {
	Expr *expr.Expression
	Desc bool
}

// CompositeLink chains a TableSelectExpression to the next one via
// UNION/INTERSECT/EXCEPT.
type CompositeLink struct {
	Op   string // "UNION" | "INTERSECT" | "EXCEPT"
	All  bool
	Next *TableSelectExpression
}

// PendingSubquery is the parser-supplied placeholder for an embedded SELECT:
// a raw, unplanned TableSelectExpression carried inside an expr.Element (as an
// expr.SubqueryPlan, so expr need not import ast) until the query planner
// replaces it with a compiled plan. Its SubqueryPlan methods only exist to satisfy that interface
// before planning runs; they are never actually invoked.
type PendingSubquery struct {
	Select *TableSelectExpression
}

func (p *PendingSubquery) Evaluate(ctx context.Context) (catalog.RowIter, error) {
	return nil, fmt.Errorf("ast: PendingSubquery.Evaluate called on an unplanned sub-query")
}
func (p *PendingSubquery) PlanSchema() catalog.Schema { return nil }
func (p *PendingSubquery) Correlated() bool           { return true }

// TableSelectExpression is a SELECT expression container.
type TableSelectExpression struct {
	Distinct bool
	Columns  []*SelectColumn
	From     []*FromItem
	Where    *expr.Expression
	Having   *expr.Expression
	GroupBy  []*expr.Expression
	GroupMax *expr.Variable
	OrderBy  []*OrderByItem

	Composite *CompositeLink
}
