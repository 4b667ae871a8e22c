// Package plan's builder (component D) turns a prepared TableSelectExpression plus its
// already-built from-set into a QueryPlanNode tree.
//
// Grounded on go-mysql-server's split between planbuilder (this file) and rowexec
// (node.go/scan.go/select.go/join.go/group.go/misc.go, component E) — the only
// surviving grounding for go-mysql-server's own planner is sql/parse/parse_test.go's
// plan.New* constructor calls, which fixed this package's node-constructor
// vocabulary (NewJoin, NewSort, NewSubset, ...) before this file existed.
//
// Scope note: clash-aware multi-way join reordering (merging two
// PlanTableSources out of FROM order when a
// multi-variable predicate demands it). This implementation merges sources in
// declared FROM/JOIN order instead of reordering around predicate shape; WHERE
// predicates that span sources still attach at the first point all their
// variables are in scope. This is a deliberate scope reduction from the full
// reordering algorithm, not a semantic gap: every predicate is still applied,
// just not always at the minimal-row position a reordering planner would pick.
package plan

import (
	"context"
	"fmt"
	"sort"

	"github.com/relcore/relcore/ast"
	"github.com/relcore/relcore/catalog"
	"github.com/relcore/relcore/errs"
	"github.com/relcore/relcore/expr"
	"github.com/relcore/relcore/fromset"
	"github.com/relcore/relcore/types"
)

// Build is the component-D entry point: tse has already been parsed and fs
// already built over it (fromset.Build). Build returns the physical plan plus
// the caller-visible column names in SELECT-list order.
func Build(ctx context.Context, tse *ast.TableSelectExpression, fs *fromset.FromSet, db fromset.Database, funcs expr.FunctionRegistry, caseSensitive bool) (Node, []string, error) {
	b := &builder{fs: fs, db: db, funcs: funcs, caseSensitive: caseSensitive}
	return b.build(ctx, tse)
}

type builder struct {
	fs            *fromset.FromSet
	db            fromset.Database
	funcs         expr.FunctionRegistry
	caseSensitive bool
}

// resolvedColumn is one SELECT-list entry after step 1: its qualified
// expression plus the internal (pre-subset) and resolved (caller-visible)
// names it will carry through the rest of the plan.
type resolvedColumn struct {
	Expr         *expr.Expression
	Alias        string
	ResolvedName string
	InternalName string
	IsSimple     bool
	IsAggregate  bool
	// Type is left zero-valued: this planner does no static type inference
	// over arbitrary expressions, only over literals (expr.Literal already
	// carries its type). Schema Column.Type for synthetic columns is
	// informational only; evaluation never consults it.
	Type types.Type
}

// planSource is one PlanTableSource: a physical node
// plus the join linking it to the sources before it.
type planSource struct {
	Node       Node
	TableNames []string
	Def        catalog.DataTableDef // nil for a sub-query source
	JoinType   ast.JoinType
	On         *expr.Expression // qualified; nil unless this source links via a non-inner-folded join
}

func (b *builder) build(ctx context.Context, tse *ast.TableSelectExpression) (Node, []string, error) {
	cols, err := b.buildColumns(ctx, tse)
	if err != nil {
		return nil, nil, err
	}

	if len(tse.From) == 0 {
		for _, c := range cols {
			if c.Expr.HasAggregate() {
				return nil, nil, errs.ErrAggregateNoFrom.New()
			}
		}
		return b.finishProjection(ctx, tse, b.buildSingleRow(cols), cols)
	}

	if err := rewriteOrderByPositions(tse, cols); err != nil {
		return nil, nil, err
	}

	sources, err := b.planSources(ctx, tse)
	if err != nil {
		return nil, nil, err
	}

	allInner := true
	for _, item := range tse.From {
		if item.Join != ast.JoinNone && item.Join != ast.JoinInner && item.Join != ast.JoinCross {
			allInner = false
			break
		}
	}

	var whereExtra []*expr.Expression
	for i, item := range tse.From {
		if item.On == nil {
			continue
		}
		qualified, err := b.prepare(ctx, item.On)
		if err != nil {
			return nil, nil, err
		}
		if allInner {
			whereExtra = append(whereExtra, qualified)
		} else {
			sources[i].On = qualified
			sources[i].JoinType = item.Join
		}
	}

	var where *expr.Expression
	if tse.Where != nil {
		where, err = b.prepare(ctx, tse.Where)
		if err != nil {
			return nil, nil, err
		}
	}
	for _, e := range whereExtra {
		where = andTogether(where, e)
	}

	node, err := b.planWhere(sources, where, allInner)
	if err != nil {
		return nil, nil, err
	}

	groupKeys, groupMaxCol, err := b.buildGroupBy(ctx, tse)
	if err != nil {
		return nil, nil, err
	}

	var having *expr.Expression
	var extraAggs []AggSpec
	if tse.Having != nil {
		qualifiedHaving, err := b.prepare(ctx, tse.Having)
		if err != nil {
			return nil, nil, err
		}
		having, extraAggs, err = extractHavingAggregates(qualifiedHaving)
		if err != nil {
			return nil, nil, err
		}
	}

	aggregates := collectAggregates(cols)
	needsGrouping := len(aggregates) > 0 || len(extraAggs) > 0 || len(groupKeys) > 0

	if needsGrouping {
		node = &GroupNode{
			Child:      node,
			GroupKeys:  groupKeys,
			GroupMax:   groupMaxCol,
			Aggregates: aggregates,
			ExtraAggs:  extraAggs,
		}
	} else {
		var simpleFuncs []FuncSpec
		for _, c := range cols {
			if !c.IsSimple {
				simpleFuncs = append(simpleFuncs, FuncSpec{Name: c.InternalName, Expr: c.Expr, Type: c.Type})
			}
		}
		if len(simpleFuncs) > 0 {
			node = NewCreateFunctions(node, simpleFuncs)
		}
	}

	if having != nil {
		node = NewExhaustiveSelect(node, having)
	}

	if tse.Composite != nil {
		rightFS, err := fromset.Build(ctx, tse.Composite.Next, b.db, b.fs.Parent, b.caseSensitive)
		if err != nil {
			return nil, nil, err
		}
		rightBuilder := &builder{fs: rightFS, db: b.db, funcs: b.funcs, caseSensitive: b.caseSensitive}
		rightNode, _, err := rightBuilder.build(ctx, tse.Composite.Next)
		if err != nil {
			return nil, nil, err
		}
		node = NewComposite(node, rightNode, tse.Composite.Op, tse.Composite.All)
	}

	return b.finishProjection(ctx, tse, node, cols)
}

// prepare implements step 5 for any expression reachable from the SELECT list,
// WHERE, HAVING, GROUP BY, ORDER BY or a join's ON clause: qualify every bare
// Variable against the from-set, then replace every embedded, still-unplanned
// PendingSubquery with a compiled plan.
func (b *builder) prepare(ctx context.Context, e *expr.Expression) (*expr.Expression, error) {
	if e == nil {
		return nil, nil
	}
	qualified, err := b.fs.Qualify(e)
	if err != nil {
		return nil, err
	}
	return b.embedSubqueries(ctx, qualified)
}

// embedSubqueries implements step 5's "replace every embedded
// parser-statement-tree with a CachePointNode wrapping its planned SELECT":
// each PendingSubquery gets its own FromSet (parented on the enclosing
// query's, so a correlated reference climbs out correctly) and its own
// recursive Build, then is wrapped in a CachePointNode and bridged through a
// SubqueryAdapter so it satisfies expr.SubqueryPlan.
func (b *builder) embedSubqueries(ctx context.Context, e *expr.Expression) (*expr.Expression, error) {
	for i, el := range e.Elements {
		if el.Kind != expr.ElemSubquery {
			continue
		}
		pending, ok := el.Subquery.(*ast.PendingSubquery)
		if !ok {
			continue
		}
		innerFS, err := fromset.Build(ctx, pending.Select, b.db, b.fs, b.caseSensitive)
		if err != nil {
			return nil, err
		}
		inner := &builder{fs: innerFS, db: b.db, funcs: b.funcs, caseSensitive: b.caseSensitive}
		innerNode, _, err := inner.build(ctx, pending.Select)
		if err != nil {
			return nil, err
		}
		adapter := NewSubqueryAdapter(NewCachePoint(innerNode), b.funcs)
		e.Elements[i] = expr.SubqueryElement(adapter)
	}
	return e, nil
}

// buildColumns implements step 1: expand globs, qualify every other column
// expression, and classify each as simple (a bare Variable, keeps its own
// name) or complex (gets a synthetic FUNCTIONTABLE.n internal name, with an
// "_A" suffix if it is an aggregate).
func (b *builder) buildColumns(ctx context.Context, tse *ast.TableSelectExpression) ([]*resolvedColumn, error) {
	var out []*resolvedColumn
	funcCounter := 0
	for _, col := range tse.Columns {
		if col.Glob {
			expanded, err := b.expandGlob(col)
			if err != nil {
				return nil, err
			}
			out = append(out, expanded...)
			continue
		}

		qualified, err := b.prepare(ctx, col.Expr)
		if err != nil {
			return nil, err
		}

		rc := &resolvedColumn{Expr: qualified, Alias: col.Alias}
		if v, ok := qualified.IsSingleVariable(); ok {
			rc.IsSimple = true
			name := col.Alias
			if name == "" {
				name = v.Column
			}
			rc.ResolvedName = name
			rc.InternalName = v.Column
		} else {
			funcCounter++
			suffix := ""
			if qualified.HasAggregate() {
				suffix = "_A"
				rc.IsAggregate = true
			}
			rc.InternalName = fmt.Sprintf("FUNCTIONTABLE.%d%s", funcCounter, suffix)
			name := col.Alias
			if name == "" {
				name = rc.InternalName
			}
			rc.ResolvedName = name
		}
		col.ResolvedName = rc.ResolvedName
		col.InternalName = rc.InternalName
		out = append(out, rc)
	}
	return out, nil
}

func (b *builder) expandGlob(col *ast.SelectColumn) ([]*resolvedColumn, error) {
	var out []*resolvedColumn
	add := func(v *expr.Variable) {
		out = append(out, &resolvedColumn{
			Expr:         expr.VarExpr(v),
			ResolvedName: v.Column,
			InternalName: v.Column,
			IsSimple:     true,
		})
	}
	if col.GlobTable == "" {
		for _, src := range b.fs.Sources {
			for _, v := range src.AllColumns() {
				add(v)
			}
		}
		return out, nil
	}
	for _, src := range b.fs.Sources {
		if src.Matches("", col.GlobTable) {
			for _, v := range src.AllColumns() {
				add(v)
			}
			return out, nil
		}
	}
	return nil, errs.ErrTableNotFound.New(col.GlobTable)
}

// rewriteOrderByPositions implements step 2: an ORDER BY item that is a bare
// integer literal k in [1, len(cols)] is rewritten to reference the k-th
// SELECT expression's internal name. A literal outside that range is left
// untouched: it is ordered by as a constant expression, not a column
// reference, so it is a no-op rather than an error.
func rewriteOrderByPositions(tse *ast.TableSelectExpression, cols []*resolvedColumn) error {
	for _, item := range tse.OrderBy {
		if item.Expr == nil || len(item.Expr.Elements) != 1 {
			continue
		}
		el := item.Expr.Elements[0]
		if el.Kind != expr.ElemValue {
			continue
		}
		n, ok := el.Value.(int64)
		if !ok {
			continue
		}
		if n < 1 || int(n) > len(cols) {
			continue
		}
		item.Expr = expr.VarExpr(&expr.Variable{Column: cols[n-1].InternalName, Resolved: true})
	}
	return nil
}

// planSources implements step 3: one PlanTableSource per FROM entry. A direct
// source starts at a fetch node; a sub-query source is built (its FromSet was
// already constructed by fromset.Build's own FROM-clause recursion) and
// wrapped in an AliasNode carrying the FROM alias.
func (b *builder) planSources(ctx context.Context, tse *ast.TableSelectExpression) ([]*planSource, error) {
	out := make([]*planSource, len(tse.From))
	for i, item := range tse.From {
		src := b.fs.Sources[i]
		switch t := src.(type) {
		case *fromset.DirectTable:
			node := Node(NewTableFetch(t.Def, t.Alias))
			out[i] = &planSource{Node: node, TableNames: node.TableNames(), Def: t.Def}
		case *fromset.SubqueryTable:
			inner := &builder{fs: t.Inner, db: b.db, funcs: b.funcs, caseSensitive: b.caseSensitive}
			innerNode, _, err := inner.build(ctx, item.Subquery)
			if err != nil {
				return nil, err
			}
			node := Node(NewAlias(innerNode, t.Alias))
			out[i] = &planSource{Node: node, TableNames: node.TableNames()}
		default:
			return nil, fmt.Errorf("plan: unsupported from-set source type %T", src)
		}
	}
	return out, nil
}

// mergeSources implements the join half of the in-FROM-order merge strategy
// this package uses: sequential left-to-right merge honoring each source's
// declared join type. RIGHT OUTER JOIN is rewritten to LEFT OUTER by swapping
// operands.
func mergeSources(sources []*planSource, allInner bool) (Node, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("plan: no FROM sources to merge")
	}
	node := sources[0].Node
	for i := 1; i < len(sources); i++ {
		s := sources[i]
		switch {
		case allInner || s.On == nil:
			node = NewNaturalJoin(node, s.Node)
		case s.JoinType == ast.JoinLeftOuter:
			node = NewLeftOuterJoin(node, s.Node, s.On)
		case s.JoinType == ast.JoinRightOuter:
			node = NewLeftOuterJoin(s.Node, node, s.On)
		default:
			node = NewJoin(node, s.Node, s.On)
		}
	}
	return node, nil
}

// planWhere implements step 7 (decomposition, classification, ordering) and
// the sequential-merge half of step 8.
func (b *builder) planWhere(sources []*planSource, where *expr.Expression, allInner bool) (Node, error) {
	if where == nil {
		return mergeSources(sources, allInner)
	}

	norm := where.Normalize()
	if op, ok := norm.LastOperator(); ok && op == expr.OpOr {
		if left, right, _, err := norm.Split(); err == nil {
			merged, err := mergeSources(sources, allInner)
			if err != nil {
				return nil, err
			}
			cache := NewCachePoint(merged)
			return NewLogicalUnion(NewExhaustiveSelect(cache, left), NewExhaustiveSelect(cache, right)), nil
		}
	}

	conjuncts := flattenAnd(norm)

	nameIndex := map[string]int{}
	for i, s := range sources {
		for _, t := range s.TableNames {
			nameIndex[t] = i
		}
	}

	bySource := make([][]exprPlan, len(sources))
	var multi []exprPlan
	var constant *expr.Expression

	for _, c := range conjuncts {
		p := classifyConjunct(c)
		switch {
		case len(p.Tables) == 0:
			constant = andTogether(constant, p.Predicate)
		case len(p.Tables) == 1:
			var only string
			for t := range p.Tables {
				only = t
			}
			if idx, ok := nameIndex[only]; ok {
				bySource[idx] = append(bySource[idx], p)
			} else {
				multi = append(multi, p)
			}
		default:
			multi = append(multi, p)
		}
	}

	built := make([]*planSource, len(sources))
	for i, s := range sources {
		cp := *s
		cp.Node = b.applySourcePredicates(s, bySource[i])
		built[i] = &cp
	}

	node, err := mergeSources(built, allInner)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(multi, func(i, j int) bool { return multi[i].Score < multi[j].Score })
	for _, p := range multi {
		node = NewExhaustiveSelect(node, p.Predicate)
	}

	if constant != nil {
		node = NewConstantSelect(node, constant)
	}

	return node, nil
}

// exprPlan is one classified WHERE conjunct: a predicate, the optimizability score fixing its place in
// the ascending injection order, the set of table names it touches, and a
// diagnostic classification used to pick a node type and, where a
// SelectableScheme is available, an index path.
type exprPlan struct {
	Predicate *expr.Expression
	Score     float64
	Tables    map[string]bool
	Kind      string
}

func classifyConjunct(e *expr.Expression) exprPlan {
	tables := tablesOf(e)

	if len(e.CorrelatedVariables()) > 0 || hasCorrelatedSubquery(e) {
		return exprPlan{Predicate: e, Score: 0.85, Tables: tables, Kind: "correlated"}
	}
	if e.IsConstant() {
		return exprPlan{Predicate: e, Score: 0.00, Tables: tables, Kind: "constant"}
	}

	if op, ok := e.LastOperator(); ok && op.Arity == 2 {
		if left, right, _, err := e.Split(); err == nil {
			leftSimple := isSimpleSide(left)
			rightSimple := isSimpleSide(right)

			switch {
			case op == expr.OpIn:
				if len(tables) <= 1 {
					return exprPlan{Predicate: e, Score: 0.20, Tables: tables, Kind: "single-var subquery"}
				}
				return exprPlan{Predicate: e, Score: 0.85, Tables: tables, Kind: "exhaustive subquery"}
			case op == expr.OpLike && len(tables) <= 1:
				if leftSimple && right.IsConstant() {
					return exprPlan{Predicate: e, Score: 0.25, Tables: tables, Kind: "simple pattern"}
				}
				return exprPlan{Predicate: e, Score: 0.82, Tables: tables, Kind: "pattern complex"}
			case isComparisonOp(op) && len(tables) <= 1:
				if (leftSimple && right.IsConstant()) || (rightSimple && left.IsConstant()) {
					return exprPlan{Predicate: e, Score: 0.20, Tables: tables, Kind: "single-var simple"}
				}
				return exprPlan{Predicate: e, Score: 0.80, Tables: tables, Kind: "single-var complex"}
			case isComparisonOp(op) && len(tables) > 1:
				if leftSimple && rightSimple {
					return exprPlan{Predicate: e, Score: 0.60, Tables: tables, Kind: "join both simple"}
				}
				if leftSimple || rightSimple {
					return exprPlan{Predicate: e, Score: 0.64, Tables: tables, Kind: "join one simple"}
				}
				return exprPlan{Predicate: e, Score: 0.68, Tables: tables, Kind: "join no simple"}
			}
		}
	}

	if e.HasSubquery() {
		if len(tables) <= 1 {
			return exprPlan{Predicate: e, Score: 0.30, Tables: tables, Kind: "simple subquery"}
		}
		return exprPlan{Predicate: e, Score: 0.85, Tables: tables, Kind: "exhaustive subquery"}
	}

	return exprPlan{Predicate: e, Score: 0.85, Tables: tables, Kind: "exhaustive"}
}

func hasCorrelatedSubquery(e *expr.Expression) bool {
	for _, el := range e.Elements {
		if el.Kind != expr.ElemSubquery {
			continue
		}
		if a, ok := el.Subquery.(*SubqueryAdapter); ok && a.Correlated() {
			return true
		}
	}
	return false
}

func isSimpleSide(e *expr.Expression) bool {
	_, ok := e.IsSingleVariable()
	return ok
}

func isComparisonOp(op expr.Operator) bool {
	switch op {
	case expr.OpEq, expr.OpNe, expr.OpLt, expr.OpLe, expr.OpGt, expr.OpGe:
		return true
	}
	return false
}

func tablesOf(e *expr.Expression) map[string]bool {
	out := map[string]bool{}
	for _, v := range e.Variables() {
		out[v.Table] = true
	}
	return out
}

func flattenAnd(e *expr.Expression) []*expr.Expression {
	if op, ok := e.LastOperator(); !ok || op != expr.OpAnd {
		return []*expr.Expression{e}
	}
	left, right, _, err := e.Split()
	if err != nil {
		return []*expr.Expression{e}
	}
	return append(flattenAnd(left), right)
}

func andTogether(a, b *expr.Expression) *expr.Expression {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	elements := append(append([]expr.Element{}, a.Elements...), b.Elements...)
	elements = append(elements, expr.Element{Kind: expr.ElemOperator, Op: expr.OpAnd})
	return &expr.Expression{Elements: elements}
}

// applySourcePredicates wraps one source's base node in the single-table
// conjuncts that touch only it, sorted ascending by score (cheapest first,
// closest to the leaf). A class with a matching SelectableScheme on the
// source's table routes through SimpleSelectNode/RangeSelectNode instead of
// an exhaustive scan; everything else falls back to ExhaustiveSelectNode.
func (b *builder) applySourcePredicates(src *planSource, plans []exprPlan) Node {
	sort.SliceStable(plans, func(i, j int) bool { return plans[i].Score < plans[j].Score })
	node := src.Node
	for _, p := range plans {
		switch p.Kind {
		case "single-var subquery":
			if left, right, op, err := p.Predicate.Split(); err == nil && op == expr.OpIn {
				if v, ok := left.IsSingleVariable(); ok && len(right.Elements) == 1 && right.Elements[0].Kind == expr.ElemSubquery {
					if adapter, ok := right.Elements[0].Subquery.(*SubqueryAdapter); ok && !adapter.Correlated() {
						node = NewNonCorrelatedAnyAll(node, v, adapter.Cache, false)
						continue
					}
				}
			}
			node = NewExhaustiveSelect(node, p.Predicate)
		case "single-var simple":
			if v, ok := singleVarOperand(p.Predicate); ok {
				if scheme := findScheme(src, v.Column); scheme != nil && node == src.Node {
					if wrapped, ok := selectViaScheme(node, scheme, v.Column, p.Predicate); ok {
						node = wrapped
						continue
					}
				}
			}
			node = NewExhaustiveSelect(node, p.Predicate)
		case "simple pattern":
			if v, ok := patternVar(p.Predicate); ok {
				if _, pat, _, err := p.Predicate.Split(); err == nil {
					node = &SimplePatternSelectNode{Child: node, Column: v.Column, Pattern: pat}
					continue
				}
			}
			node = NewExhaustiveSelect(node, p.Predicate)
		case "constant":
			node = NewConstantSelect(node, p.Predicate)
		default:
			node = NewExhaustiveSelect(node, p.Predicate)
		}
	}
	return node
}

func singleVarOperand(e *expr.Expression) (*expr.Variable, bool) {
	left, right, _, err := e.Split()
	if err != nil {
		return nil, false
	}
	if v, ok := left.IsSingleVariable(); ok {
		return v, true
	}
	if v, ok := right.IsSingleVariable(); ok {
		return v, true
	}
	return nil, false
}

func patternVar(e *expr.Expression) (*expr.Variable, bool) {
	left, _, op, err := e.Split()
	if err != nil || op != expr.OpLike {
		return nil, false
	}
	return left.IsSingleVariable()
}

func findScheme(src *planSource, column string) catalog.SelectableScheme {
	if src.Def == nil {
		return nil
	}
	for _, sch := range src.Def.SelectableSchemes() {
		cols := sch.Columns()
		if len(cols) == 1 && cols[0] == column {
			return sch
		}
	}
	return nil
}

func selectViaScheme(node Node, scheme catalog.SelectableScheme, column string, predicate *expr.Expression) (Node, bool) {
	left, right, op, err := predicate.Split()
	if err != nil {
		return nil, false
	}
	valExpr := right
	varOnLeft := true
	if _, ok := left.IsSingleVariable(); !ok {
		valExpr = left
		varOnLeft = false
	}
	switch op {
	case expr.OpEq:
		return &SimpleSelectNode{Child: node, Scheme: scheme, Column: column, Value: valExpr}, true
	case expr.OpLt, expr.OpLe, expr.OpGt, expr.OpGe:
		lo, hi, loIncl, hiIncl := rangeBounds(op, valExpr, varOnLeft)
		return &RangeSelectNode{Child: node, Scheme: scheme, Column: column, Lo: lo, Hi: hi, LoIncl: loIncl, HiIncl: hiIncl}, true
	}
	return nil, false
}

// rangeBounds translates a comparison op plus the constant side of a simple
// predicate into a Range lookup's [lo, hi] bound, flipping sense when the
// variable is the right-hand operand (`const op v` rather than `v op const`).
func rangeBounds(op expr.Operator, val *expr.Expression, varOnLeft bool) (lo, hi *expr.Expression, loIncl, hiIncl bool) {
	eff := op
	if !varOnLeft {
		switch op {
		case expr.OpLt:
			eff = expr.OpGt
		case expr.OpLe:
			eff = expr.OpGe
		case expr.OpGt:
			eff = expr.OpLt
		case expr.OpGe:
			eff = expr.OpLe
		}
	}
	switch eff {
	case expr.OpLt:
		return nil, val, false, false
	case expr.OpLe:
		return nil, val, false, true
	case expr.OpGt:
		return val, nil, false, false
	case expr.OpGe:
		return val, nil, true, false
	}
	return nil, nil, false, false
}

// buildGroupBy implements step 6.
func (b *builder) buildGroupBy(ctx context.Context, tse *ast.TableSelectExpression) ([]FuncSpec, string, error) {
	var groupKeys []FuncSpec
	gcounter := 0
	for _, ge := range tse.GroupBy {
		qualified, err := b.prepare(ctx, ge)
		if err != nil {
			return nil, "", err
		}
		if qualified.HasAggregate() {
			return nil, "", errs.ErrAggregateInGroupBy.New()
		}
		if v, ok := qualified.IsSingleVariable(); ok {
			groupKeys = append(groupKeys, FuncSpec{Name: v.Column, Expr: qualified})
		} else {
			gcounter++
			name := fmt.Sprintf("FUNCTIONTABLE.#GROUPBY-%d", gcounter)
			groupKeys = append(groupKeys, FuncSpec{Name: name, Expr: qualified})
		}
	}
	groupMaxCol := ""
	if tse.GroupMax != nil {
		v, _, err := b.fs.Resolve(tse.GroupMax.Table, tse.GroupMax.Column)
		if err != nil {
			return nil, "", err
		}
		groupMaxCol = v.Column
	}
	return groupKeys, groupMaxCol, nil
}

// collectAggregates pulls the SELECT-list aggregate columns into AggSpecs for
// GroupNode (step 9).
func collectAggregates(cols []*resolvedColumn) []AggSpec {
	var out []AggSpec
	for _, c := range cols {
		if !c.IsAggregate {
			continue
		}
		name, arg, ok := splitAggregateCall(c.Expr)
		if !ok {
			continue
		}
		out = append(out, AggSpec{OutputName: c.InternalName, Func: name, Arg: arg, Type: c.Type})
	}
	return out
}

// splitAggregateCall recognizes `FUNC(arg)` (or the zero-arity `COUNT(*)`) as
// the trailing element of e.
func splitAggregateCall(e *expr.Expression) (string, *expr.Expression, bool) {
	if len(e.Elements) == 0 {
		return "", nil, false
	}
	last := e.Elements[len(e.Elements)-1]
	if last.Kind != expr.ElemFunctionRef || !last.Func.IsAggregate {
		return "", nil, false
	}
	if last.Func.Arity == 0 {
		return last.Func.Name, nil, true
	}
	return last.Func.Name, &expr.Expression{Elements: append([]expr.Element{}, e.Elements[:len(e.Elements)-1]...)}, true
}

// extractHavingAggregates implements the HAVING half of step 5: every
// AND-conjunct containing an aggregate call has that call extracted into an
// extra-aggregate list and replaced by a reference to its synthetic
// FUNCTIONTABLE.HAVINGAG_n output column.
func extractHavingAggregates(having *expr.Expression) (*expr.Expression, []AggSpec, error) {
	conjuncts := flattenAnd(having)
	var extra []AggSpec
	n := 0
	extract := func(side *expr.Expression) *expr.Expression {
		if !side.HasAggregate() {
			return side
		}
		name, arg, ok := splitAggregateCall(side)
		if !ok {
			return side
		}
		n++
		synth := fmt.Sprintf("FUNCTIONTABLE.HAVINGAG_%d", n)
		extra = append(extra, AggSpec{OutputName: synth, Func: name, Arg: arg})
		return expr.VarExpr(&expr.Variable{Column: synth, Resolved: true})
	}

	var rewritten []*expr.Expression
	for _, c := range conjuncts {
		if !c.HasAggregate() {
			rewritten = append(rewritten, c)
			continue
		}
		op, ok := c.LastOperator()
		if !ok || op.Arity != 2 {
			rewritten = append(rewritten, extract(c))
			continue
		}
		left, right, op, err := c.Split()
		if err != nil {
			return nil, nil, err
		}
		newLeft := extract(left)
		newRight := extract(right)
		combined := append(append([]expr.Element{}, newLeft.Elements...), newRight.Elements...)
		combined = append(combined, expr.Element{Kind: expr.ElemOperator, Op: op})
		rewritten = append(rewritten, &expr.Expression{Elements: combined})
	}

	var out *expr.Expression
	for _, c := range rewritten {
		out = andTogether(out, c)
	}
	return out, extra, nil
}

func (b *builder) buildSingleRow(cols []*resolvedColumn) Node {
	names := make([]string, len(cols))
	vals := make([]*expr.Expression, len(cols))
	for i, c := range cols {
		names[i] = c.InternalName
		vals[i] = c.Expr
	}
	return NewSingleRow(vals, names)
}

// finishProjection implements step 12: DISTINCT, ORDER BY, then the final
// SubsetNode exposing the caller's requested names.
func (b *builder) finishProjection(ctx context.Context, tse *ast.TableSelectExpression, node Node, cols []*resolvedColumn) (Node, []string, error) {
	if tse.Distinct {
		node = NewDistinct(node)
	}

	if len(tse.OrderBy) > 0 {
		schema := node.Schema()
		preSortWidth := len(schema)

		type pending struct {
			desc     bool
			idx      int
			synthPos int
		}
		var pendings []pending
		var funcSpecs []FuncSpec
		ocounter := 0

		for _, item := range tse.OrderBy {
			qualified, err := b.prepare(ctx, item.Expr)
			if err != nil {
				return nil, nil, err
			}
			if v, ok := qualified.IsSingleVariable(); ok {
				idx := schema.IndexOf(v.Column)
				if idx < 0 {
					return nil, nil, errs.ErrColumnNotFound.New(v.Column)
				}
				pendings = append(pendings, pending{desc: item.Desc, idx: idx})
			} else {
				ocounter++
				name := fmt.Sprintf("FUNCTIONTABLE.#ORDER-%d", ocounter)
				funcSpecs = append(funcSpecs, FuncSpec{Name: name, Expr: qualified})
				pendings = append(pendings, pending{desc: item.Desc, idx: -1, synthPos: len(funcSpecs) - 1})
			}
		}

		if len(funcSpecs) > 0 {
			node = NewCreateFunctions(node, funcSpecs)
		}

		keys := make([]SortKey, len(pendings))
		for i, p := range pendings {
			if p.idx >= 0 {
				keys[i] = SortKey{Index: p.idx, Desc: p.desc}
			} else {
				keys[i] = SortKey{Index: preSortWidth + p.synthPos, Desc: p.desc}
			}
		}
		node = NewSort(node, keys)

		if len(funcSpecs) > 0 {
			indices := make([]int, preSortWidth)
			names := make([]string, preSortWidth)
			post := node.Schema()
			for i := 0; i < preSortWidth; i++ {
				indices[i] = i
				names[i] = post[i].Name
			}
			node = NewSubset(node, indices, names)
		}
	}

	schema := node.Schema()
	indices := make([]int, len(cols))
	names := make([]string, len(cols))
	resolvedNames := make([]string, len(cols))
	for i, c := range cols {
		idx := schema.IndexOf(c.InternalName)
		if idx < 0 {
			return nil, nil, fmt.Errorf("plan: internal column %q not found in pre-projection schema", c.InternalName)
		}
		indices[i] = idx
		names[i] = c.ResolvedName
		resolvedNames[i] = c.ResolvedName
	}
	node = NewSubset(node, indices, names)

	return node, resolvedNames, nil
}
