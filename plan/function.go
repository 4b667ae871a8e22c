package plan

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// builtinFunc is one registered scalar function: a name and the callable that
// implements it.
type builtinFunc struct {
	name string
	call func(args []interface{}) (interface{}, error)
}

// DefaultFunctionRegistry is the built-in scalar/aggregate function registry:
// Register by name, Call by name, holding plain Go callables rather than
// expression-tree constructors, since this engine's function elements already
// carry their evaluated argument values by the time Call runs.
type DefaultFunctionRegistry struct {
	funcs      map[string]builtinFunc
	aggregates map[string]bool
}

// NewDefaultFunctionRegistry returns a registry pre-populated with this
// engine's built-in scalar functions (string, numeric, null-handling) and the
// aggregate names plan/build.go and plan/group.go's aggregate() recognize by
// name (COUNT, SUM, AVG, MIN, MAX — evaluated over a row group, never through
// Call).
func NewDefaultFunctionRegistry() *DefaultFunctionRegistry {
	r := &DefaultFunctionRegistry{
		funcs:      map[string]builtinFunc{},
		aggregates: map[string]bool{"COUNT": true, "SUM": true, "AVG": true, "MIN": true, "MAX": true},
	}
	r.registerBuiltins()
	return r
}

func (r *DefaultFunctionRegistry) Register(name string, call func(args []interface{}) (interface{}, error)) {
	r.funcs[strings.ToUpper(name)] = builtinFunc{name: name, call: call}
}

func (r *DefaultFunctionRegistry) IsAggregate(name string) bool {
	return r.aggregates[strings.ToUpper(name)]
}

func (r *DefaultFunctionRegistry) Call(ctx context.Context, name string, args []interface{}) (interface{}, error) {
	f, ok := r.funcs[strings.ToUpper(name)]
	if !ok {
		return nil, fmt.Errorf("plan: unknown function %q", name)
	}
	return f.call(args)
}

func (r *DefaultFunctionRegistry) registerBuiltins() {
	r.Register("UPPER", func(args []interface{}) (interface{}, error) {
		s, ok := asString(args[0])
		if !ok {
			return nil, nil
		}
		return strings.ToUpper(s), nil
	})
	r.Register("LOWER", func(args []interface{}) (interface{}, error) {
		s, ok := asString(args[0])
		if !ok {
			return nil, nil
		}
		return strings.ToLower(s), nil
	})
	r.Register("LENGTH", func(args []interface{}) (interface{}, error) {
		s, ok := asString(args[0])
		if !ok {
			return nil, nil
		}
		return int64(len(s)), nil
	})
	r.Register("CONCAT", func(args []interface{}) (interface{}, error) {
		var sb strings.Builder
		for _, a := range args {
			if a == nil {
				return nil, nil
			}
			s, ok := asString(a)
			if !ok {
				return nil, fmt.Errorf("plan: CONCAT requires string-coercible arguments, got %T", a)
			}
			sb.WriteString(s)
		}
		return sb.String(), nil
	})
	r.Register("COALESCE", func(args []interface{}) (interface{}, error) {
		for _, a := range args {
			if a != nil {
				return a, nil
			}
		}
		return nil, nil
	})
	r.Register("ABS", func(args []interface{}) (interface{}, error) {
		switch n := args[0].(type) {
		case int64:
			if n < 0 {
				return -n, nil
			}
			return n, nil
		case float64:
			return math.Abs(n), nil
		case nil:
			return nil, nil
		}
		return nil, fmt.Errorf("plan: ABS requires a numeric argument, got %T", args[0])
	})
	r.Register("ROUND", func(args []interface{}) (interface{}, error) {
		f, ok := asFloat(args[0])
		if !ok {
			return nil, nil
		}
		return math.Round(f), nil
	})
	r.Register("IFNULL", func(args []interface{}) (interface{}, error) {
		if args[0] != nil {
			return args[0], nil
		}
		return args[1], nil
	})
}

func asString(v interface{}) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case nil:
		return "", false
	default:
		return fmt.Sprint(s), true
	}
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
