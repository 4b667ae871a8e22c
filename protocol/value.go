package protocol

import (
	"github.com/relcore/relcore/catalog"
	"github.com/relcore/relcore/session"
	"github.com/relcore/relcore/types"
)

// valueTag tags one wire-encoded parameter or result cell (
// SQLQuery serialization: "each value is either a typed scalar or a
// StreamableObject(type, length, id) marker").
type valueTag byte

const (
	tagNull valueTag = iota
	tagBoolean
	tagInteger
	tagDouble
	tagVarchar
	tagBlob
	tagStreamable
)

// decodeValue reads one SQLQuery parameter value. A StreamableObject marker
// decodes to a session.StreamableParam, left for session.Context.
// ResolveParams to resolve against the connection's upload map.
func decodeValue(d *decoder) (interface{}, error) {
	tag, err := d.byteVal()
	if err != nil {
		return nil, err
	}
	switch valueTag(tag) {
	case tagNull:
		return nil, nil
	case tagBoolean:
		b, err := d.byteVal()
		if err != nil {
			return nil, err
		}
		return b != 0, nil
	case tagInteger:
		return d.int64()
	case tagDouble:
		raw, err := d.int64()
		if err != nil {
			return nil, err
		}
		return bitsToFloat(raw), nil
	case tagVarchar:
		return d.str()
	case tagBlob:
		return d.bytes()
	case tagStreamable:
		typTag, err := d.byteVal()
		if err != nil {
			return nil, err
		}
		totalLength, err := d.int64()
		if err != nil {
			return nil, err
		}
		id, err := d.int64()
		if err != nil {
			return nil, err
		}
		return session.StreamableParam{
			Type:         decodeType(typTag),
			TotalLength:  totalLength,
			StreamableID: id,
		}, nil
	default:
		return nil, errUnknownValueTag(tag)
	}
}

// encodeValue writes one result cell value. A catalog.Ref cell (a live
// large-object handle pinned by session.Context.ResultPage) encodes as a
// StreamableObject marker so the client downloads it via
// STREAMABLE_OBJECT_SECTION instead of receiving its bytes inline.
func encodeValue(e *encoder, v interface{}) {
	switch x := v.(type) {
	case nil:
		e.byte(byte(tagNull))
	case bool:
		e.byte(byte(tagBoolean))
		if x {
			e.byte(1)
		} else {
			e.byte(0)
		}
	case int64:
		e.byte(byte(tagInteger))
		e.int64(x)
	case int:
		e.byte(byte(tagInteger))
		e.int64(int64(x))
	case float64:
		e.byte(byte(tagDouble))
		e.int64(floatToBits(x))
	case string:
		e.byte(byte(tagVarchar))
		e.str(x)
	case []byte:
		e.byte(byte(tagBlob))
		e.bytes(x)
	case catalog.Ref:
		e.byte(byte(tagStreamable))
		e.byte(encodeType(x.Type()))
		e.int64(x.TotalLength())
		e.int64(x.ID())
	default:
		// Defensive fallback for a type this wire format doesn't special-case:
		// render it as its string form rather than dropping the cell.
		e.byte(byte(tagVarchar))
		e.str(stringify(x))
	}
}

func encodeType(t types.Type) byte {
	switch t.Kind {
	case types.KindBoolean:
		return byte(tagBoolean)
	case types.KindInteger:
		return byte(tagInteger)
	case types.KindDouble:
		return byte(tagDouble)
	case types.KindVarchar:
		return byte(tagVarchar)
	case types.KindBlob:
		return byte(tagBlob)
	default:
		return byte(tagNull)
	}
}

func decodeType(tag byte) types.Type {
	switch valueTag(tag) {
	case tagBoolean:
		return types.Boolean
	case tagInteger:
		return types.Integer
	case tagDouble:
		return types.Double
	case tagVarchar:
		return types.Varchar(0)
	case tagBlob:
		return types.Blob()
	default:
		return types.Null
	}
}
