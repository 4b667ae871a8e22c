package plan

import (
	"fmt"

	"github.com/relcore/relcore/expr"
	"gopkg.in/yaml.v2"
)

// explainNode is the YAML-serializable shape one QueryPlanNode dumps itself
// into: its own kind plus whatever its children/details are. Grounded on the
// go-mysql-server's go.mod carrying gopkg.in/yaml.v2 as a dependency with no
// surviving source to show its call site — this package is the first concrete
// home for it, used the way a diagnostic EXPLAIN dump is ordinarily rendered:
// one indented tree, not a flat instruction list.
type explainNode struct {
	Kind     string                 `yaml:"kind"`
	Detail   map[string]interface{} `yaml:"detail,omitempty"`
	Children []*explainNode         `yaml:"children,omitempty"`
}

// Explain renders n's plan tree as YAML, the session-facing diagnostic dump
// "explain" surface needs for debugging a compiled query plan.
func Explain(n Node) (string, error) {
	tree := explainTree(n)
	out, err := yaml.Marshal(tree)
	if err != nil {
		return "", fmt.Errorf("plan: marshaling explain tree: %w", err)
	}
	return string(out), nil
}

func explainTree(n Node) *explainNode {
	if n == nil {
		return &explainNode{Kind: "<nil>"}
	}
	switch t := n.(type) {
	case *TableFetchNode:
		return &explainNode{Kind: "TableFetch", Detail: map[string]interface{}{"table": t.Def.Name(), "alias": t.Alias}}
	case *CachePointNode:
		return &explainNode{Kind: "CachePoint", Children: []*explainNode{explainTree(t.Child)}}
	case *ConstantSelectNode:
		return &explainNode{Kind: "ConstantSelect", Detail: exprDetail(t.Predicate), Children: []*explainNode{explainTree(t.Child)}}
	case *RangeSelectNode:
		return &explainNode{Kind: "RangeSelect", Detail: map[string]interface{}{"column": t.Column, "indexed": t.Scheme != nil}, Children: []*explainNode{explainTree(t.Child)}}
	case *SimpleSelectNode:
		return &explainNode{Kind: "SimpleSelect", Detail: map[string]interface{}{"column": t.Column, "indexed": t.Scheme != nil}, Children: []*explainNode{explainTree(t.Child)}}
	case *SimplePatternSelectNode:
		return &explainNode{Kind: "SimplePatternSelect", Detail: map[string]interface{}{"column": t.Column}, Children: []*explainNode{explainTree(t.Child)}}
	case *ExhaustiveSelectNode:
		return &explainNode{Kind: "ExhaustiveSelect", Detail: exprDetail(t.Predicate), Children: []*explainNode{explainTree(t.Child)}}
	case *NonCorrelatedAnyAllNode:
		return &explainNode{Kind: "NonCorrelatedAnyAll", Detail: map[string]interface{}{"variable": t.Variable.String(), "negate": t.Negate}, Children: []*explainNode{explainTree(t.Child), explainTree(t.Sub)}}
	case *NaturalJoinNode:
		return &explainNode{Kind: "NaturalJoin", Children: []*explainNode{explainTree(t.Left), explainTree(t.Right)}}
	case *JoinNode:
		return &explainNode{Kind: "Join", Detail: exprDetail(t.On), Children: []*explainNode{explainTree(t.Left), explainTree(t.Right)}}
	case *LeftOuterJoinNode:
		return &explainNode{Kind: "LeftOuterJoin", Detail: exprDetail(t.On), Children: []*explainNode{explainTree(t.Left), explainTree(t.Right)}}
	case *MarkerNode:
		return &explainNode{Kind: "Marker", Detail: map[string]interface{}{"mark": t.Mark}, Children: []*explainNode{explainTree(t.Child)}}
	case *CreateFunctionsNode:
		names := make([]string, len(t.Funcs))
		for i, f := range t.Funcs {
			names[i] = f.Name
		}
		return &explainNode{Kind: "CreateFunctions", Detail: map[string]interface{}{"columns": names}, Children: []*explainNode{explainTree(t.Child)}}
	case *GroupNode:
		keys := make([]string, len(t.GroupKeys))
		for i, k := range t.GroupKeys {
			keys[i] = k.Name
		}
		aggs := make([]string, len(t.Aggregates)+len(t.ExtraAggs))
		for i, a := range t.Aggregates {
			aggs[i] = a.Func + "->" + a.OutputName
		}
		for i, a := range t.ExtraAggs {
			aggs[len(t.Aggregates)+i] = a.Func + "->" + a.OutputName
		}
		return &explainNode{Kind: "Group", Detail: map[string]interface{}{"keys": keys, "aggregates": aggs}, Children: []*explainNode{explainTree(t.Child)}}
	case *SortNode:
		return &explainNode{Kind: "Sort", Detail: map[string]interface{}{"keys": t.Keys}, Children: []*explainNode{explainTree(t.Child)}}
	case *DistinctNode:
		return &explainNode{Kind: "Distinct", Children: []*explainNode{explainTree(t.Child)}}
	case *SubsetNode:
		return &explainNode{Kind: "Subset", Detail: map[string]interface{}{"columns": t.Names}, Children: []*explainNode{explainTree(t.Child)}}
	case *AliasNode:
		return &explainNode{Kind: "Alias", Detail: map[string]interface{}{"alias": t.Alias}, Children: []*explainNode{explainTree(t.Child)}}
	case *LogicalUnionNode:
		return &explainNode{Kind: "LogicalUnion", Children: []*explainNode{explainTree(t.Left), explainTree(t.Right)}}
	case *CompositeNode:
		return &explainNode{Kind: "Composite(" + t.Op + ")", Detail: map[string]interface{}{"all": t.All}, Children: []*explainNode{explainTree(t.Left), explainTree(t.Right)}}
	case *SingleRowNode:
		return &explainNode{Kind: "SingleRow", Detail: map[string]interface{}{"columns": t.Names}}
	default:
		return &explainNode{Kind: fmt.Sprintf("%T", n)}
	}
}

func exprDetail(e *expr.Expression) map[string]interface{} {
	if e == nil {
		return nil
	}
	return map[string]interface{}{"predicate": e.String()}
}
