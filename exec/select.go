package exec

import (
	"context"

	"github.com/relcore/relcore/ast"
	"github.com/relcore/relcore/catalog"
	"github.com/relcore/relcore/fromset"
	"github.com/relcore/relcore/plan"
)

// SelectExecutor implements Select executor kind: prepare
// generates the from-set and forms a plan via component D (consuming the
// optional ORDER BY list); evaluate checks select permission on every table
// the plan touches, then invokes the plan.
type SelectExecutor struct {
	TSE *ast.TableSelectExpression

	fs   *fromset.FromSet
	node plan.Node
}

func NewSelect(tse *ast.TableSelectExpression) *SelectExecutor {
	return &SelectExecutor{TSE: tse}
}

func (s *SelectExecutor) Prepare(ctx context.Context, ec *ExecContext) error {
	fs, err := fromset.Build(ctx, s.TSE, ec.DB, nil, ec.CaseSensitive)
	if err != nil {
		return wrap(err, "select: building from-set")
	}
	node, _, err := plan.Build(ctx, s.TSE, fs, ec.DB, ec.Funcs, ec.CaseSensitive)
	if err != nil {
		return wrap(err, "select: building plan")
	}
	s.fs = fs
	s.node = node
	return nil
}

func (s *SelectExecutor) Evaluate(ctx context.Context, ec *ExecContext) (catalog.Schema, catalog.RowIter, error) {
	for _, table := range s.node.TableNames() {
		if err := ec.checkPrivilege(ctx, ec.DB.Name(), table, "", ast.PrivSelect); err != nil {
			return nil, nil, err
		}
	}
	it, err := s.node.Evaluate(ctx, &plan.QueryContext{Funcs: ec.Funcs})
	if err != nil {
		return nil, nil, wrap(err, "select: evaluating plan")
	}
	return s.node.Schema(), it, nil
}
