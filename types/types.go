// Package types is the engine's minimal SQL type system: enough to compare,
// convert and default values without pulling in a parser-level type grammar.
package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind tags a Type's underlying representation.
type Kind int

const (
	KindNull Kind = iota
	KindBoolean
	KindInteger
	KindDouble
	KindVarchar
	KindBlob
)

// Type describes one SQL column or literal type.
type Type struct {
	Kind   Kind
	Name   string
	Length int64 // meaningful for Varchar/Blob
}

var (
	Null    = Type{Kind: KindNull, Name: "NULL"}
	Boolean = Type{Kind: KindBoolean, Name: "BOOLEAN"}
	Integer = Type{Kind: KindInteger, Name: "INTEGER"}
	Double  = Type{Kind: KindDouble, Name: "DOUBLE"}
)

// Varchar returns a bounded character type, mirroring VARCHAR(n).
func Varchar(n int64) Type { return Type{Kind: KindVarchar, Name: "VARCHAR", Length: n} }

// Blob returns a large-object-backed binary type.
func Blob() Type { return Type{Kind: KindBlob, Name: "BLOB"} }

func (t Type) String() string {
	if t.Length > 0 && (t.Kind == KindVarchar || t.Kind == KindBlob) {
		return fmt.Sprintf("%s(%d)", t.Name, t.Length)
	}
	return t.Name
}

// Comparable reports whether two types may appear on either side of a comparison
// operator without an explicit CAST. The engine is permissive about numeric
// widening, matching the original's implicit-promotion behavior.
func (t Type) Comparable(other Type) bool {
	if t.Kind == KindNull || other.Kind == KindNull {
		return true
	}
	numeric := func(k Kind) bool { return k == KindInteger || k == KindDouble }
	if numeric(t.Kind) && numeric(other.Kind) {
		return true
	}
	return t.Kind == other.Kind
}

// Convert coerces v (already a Go native value produced by the parser or by a
// previous expression evaluation) to t's representation. It never invents
// precision beyond what the source value carries.
func Convert(t Type, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	switch t.Kind {
	case KindBoolean:
		switch x := v.(type) {
		case bool:
			return x, nil
		case int64:
			return x != 0, nil
		}
	case KindInteger:
		switch x := v.(type) {
		case int64:
			return x, nil
		case float64:
			return int64(x), nil
		case string:
			i, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("cannot convert %q to INTEGER: %w", x, err)
			}
			return i, nil
		case bool:
			if x {
				return int64(1), nil
			}
			return int64(0), nil
		}
	case KindDouble:
		switch x := v.(type) {
		case float64:
			return x, nil
		case int64:
			return float64(x), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
			if err != nil {
				return nil, fmt.Errorf("cannot convert %q to DOUBLE: %w", x, err)
			}
			return f, nil
		}
	case KindVarchar:
		return fmt.Sprintf("%v", v), nil
	case KindBlob:
		switch x := v.(type) {
		case []byte:
			return x, nil
		case string:
			return []byte(x), nil
		}
	}
	return nil, fmt.Errorf("cannot convert %T to %s", v, t)
}

// Zero returns the type's default zero value, used when a column has no DEFAULT
// clause and no explicit value is supplied.
func Zero(t Type) interface{} {
	switch t.Kind {
	case KindBoolean:
		return false
	case KindInteger:
		return int64(0)
	case KindDouble:
		return float64(0)
	case KindVarchar:
		return ""
	case KindBlob:
		return []byte{}
	default:
		return nil
	}
}
