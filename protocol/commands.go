package protocol

import (
	"context"

	"github.com/relcore/relcore/errs"
)

// execCommand dispatches one state=100 opcode against
// this connection's session.Context and returns the SUCCESS reply's
// payload bytes, or an error to report as EXCEPTION.
func (c *Connection) execCommand(ctx context.Context, op Opcode, d *decoder) ([]byte, error) {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess == nil {
		return nil, errs.ErrIO.New("command received before LOGIN completed")
	}

	switch op {
	case OpQuery:
		return c.execQuery(ctx, d)
	case OpResultSection:
		return c.execResultSection(d)
	case OpPushStreamableObjectPart:
		return c.execPushStreamablePart(ctx, d)
	case OpStreamableObjectSection:
		return c.execStreamableSection(ctx, d)
	case OpDisposeResult:
		return c.execDisposeResult(d)
	case OpDisposeStreamableObject:
		return c.execDisposeStreamable(d)
	default:
		return nil, errs.ErrIO.New("unexpected opcode in command state")
	}
}

// execQuery implements the QUERY command: decode the serialized SQLQuery
// (text plus a parameter array that may contain StreamableObject markers),
// resolve any such markers against the connection's uploads,
// hand the query off to the out-of-scope Parser, and execute it. The reply
// carries the freshly registered result id and its column descriptions
//; row data is fetched separately via
// RESULT_SECTION, matching "Result paging is explicitly polled, not
// streaming".
func (c *Connection) execQuery(ctx context.Context, d *decoder) ([]byte, error) {
	text, err := d.str()
	if err != nil {
		return nil, err
	}
	paramCount, err := d.int32()
	if err != nil {
		return nil, err
	}
	rawParams := make([]interface{}, paramCount)
	for i := range rawParams {
		v, err := decodeValue(d)
		if err != nil {
			return nil, err
		}
		rawParams[i] = v
	}

	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()

	resolved, err := sess.ResolveParams(ctx, rawParams)
	if err != nil {
		return nil, err
	}
	stmt, err := c.handler.Parser.Parse(ctx, text, resolved)
	if err != nil {
		return nil, errs.ErrParse.New(err.Error())
	}
	rs, err := sess.Execute(ctx, stmt, text)
	if err != nil {
		return nil, err
	}

	e := &encoder{}
	e.int64(rs.ID)
	e.int32(int32(len(rs.Schema)))
	for _, col := range rs.Schema {
		e.str(col.Name)
		e.str(col.Source)
		e.byte(encodeType(col.Type))
		if col.Nullable {
			e.byte(1)
		} else {
			e.byte(0)
		}
	}
	return e.buf, nil
}

// execResultSection implements RESULT_SECTION: dispatch_id(4) was already
// consumed by dispatch; payload is result_id(4), row_number(4), row_count(4).
func (c *Connection) execResultSection(d *decoder) ([]byte, error) {
	resultID, err := d.int32()
	if err != nil {
		return nil, err
	}
	rowNumber, err := d.int32()
	if err != nil {
		return nil, err
	}
	rowCount, err := d.int32()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()

	schema, rows, err := sess.ResultPage(int64(resultID), rowNumber, rowCount)
	if err != nil {
		return nil, err
	}

	e := &encoder{}
	e.int32(int32(len(rows)))
	for _, row := range rows {
		for i := range schema {
			encodeValue(e, row[i])
		}
	}
	return e.buf, nil
}

// execPushStreamablePart implements PUSH_STREAMABLE_OBJECT_PART: type(1),
// object_id(8), total_length(8), length(4), bytes, offset(8).
// The first chunk for a given object_id allocates the upload; every
// subsequent chunk for the same id writes into the already-allocated Ref.
func (c *Connection) execPushStreamablePart(ctx context.Context, d *decoder) ([]byte, error) {
	typTag, err := d.byteVal()
	if err != nil {
		return nil, err
	}
	objectID, err := d.int64()
	if err != nil {
		return nil, err
	}
	totalLength, err := d.int64()
	if err != nil {
		return nil, err
	}
	chunk, err := d.bytes()
	if err != nil {
		return nil, err
	}
	offset, err := d.int64()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	sess := c.sess
	if c.activeUploads == nil {
		c.activeUploads = map[int64]bool{}
	}
	first := !c.activeUploads[objectID]
	c.activeUploads[objectID] = true
	c.mu.Unlock()

	if first {
		if err := sess.BeginUpload(ctx, objectID, decodeType(typTag), totalLength); err != nil {
			return nil, err
		}
	}
	if _, err := sess.WriteUpload(ctx, objectID, offset, chunk); err != nil {
		return nil, err
	}
	return nil, nil
}

// execStreamableSection implements STREAMABLE_OBJECT_SECTION: result_id(4),
// streamable_id(8), offset(8), len(4); the reply is capped at
// MaxStreamablePartBytes.
func (c *Connection) execStreamableSection(ctx context.Context, d *decoder) ([]byte, error) {
	resultID, err := d.int32()
	if err != nil {
		return nil, err
	}
	streamableID, err := d.int64()
	if err != nil {
		return nil, err
	}
	offset, err := d.int64()
	if err != nil {
		return nil, err
	}
	length, err := d.int32()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()

	data, err := sess.DownloadPart(ctx, int64(resultID), streamableID, offset, int(length))
	if err != nil {
		return nil, err
	}
	e := &encoder{}
	e.bytes(data)
	return e.buf, nil
}

// execDisposeResult implements DISPOSE_RESULT: result_id(4).
func (c *Connection) execDisposeResult(d *decoder) ([]byte, error) {
	resultID, err := d.int32()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if err := sess.DisposeResult(int64(resultID)); err != nil {
		return nil, err
	}
	return nil, nil
}

// execDisposeStreamable implements DISPOSE_STREAMABLE_OBJECT: result_id(4),
// streamable_id(8). A result_id of -1 disposes an in-flight upload never
// resolved into a query.
func (c *Connection) execDisposeStreamable(d *decoder) ([]byte, error) {
	resultID, err := d.int32()
	if err != nil {
		return nil, err
	}
	streamableID, err := d.int64()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if resultID < 0 {
		if err := sess.DisposeUpload(streamableID); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if err := sess.DisposeResultStreamable(int64(resultID), streamableID); err != nil {
		return nil, err
	}
	return nil, nil
}
