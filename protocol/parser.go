package protocol

import "context"

// Parser is the named external collaborator carved out of scope: the SQL
// grammar/lexer producing the statement tree. Component G never looks
// inside query text itself — it decodes the wire SQLQuery (text plus
// already-resolved parameter values) and hands both to Parser,
// which returns whatever statement value session.Context.Execute accepts
// (one of the ast.*Statement / *ast.TableSelectExpression shapes component C
// switches on).
type Parser interface {
	Parse(ctx context.Context, query string, params []interface{}) (interface{}, error)
}
