package session

import (
	"context"

	"github.com/relcore/relcore/catalog"
	"github.com/relcore/relcore/errs"
	"github.com/relcore/relcore/types"
)

// StreamableParam marks one position of a QUERY command's parameter array as
// referring to an in-flight upload rather than carrying its value inline
// ( SQLQuery serialization: "a StreamableObject(type, length, id)
// marker"). Component G substitutes one of these into the parameter slice it
// hands to ResolveParams instead of decoding the upload itself.
type StreamableParam struct {
	Type        types.Type
	TotalLength int64
	StreamableID int64
}

// ResolveParams implements "Large objects" resolution step: any
// StreamableParam in params is resolved via the upload map (completed and
// removed), replaced by the finished catalog.Ref; once at least one was
// resolved, the conglomerate is flushed-and-synced before the caller may
// evaluate the query the params belong to ("the conglomerate is asked to
// flush-and-sync its blob store before the query evaluates").
func (c *Context) ResolveParams(ctx context.Context, params []interface{}) ([]interface{}, error) {
	out := make([]interface{}, len(params))
	copy(out, params)
	resolvedAny := false
	for i, p := range out {
		sp, ok := p.(StreamableParam)
		if !ok {
			continue
		}
		ref, err := c.uploads.resolve(ctx, sp.StreamableID)
		if err != nil {
			return nil, err
		}
		out[i] = ref
		resolvedAny = true
	}
	if resolvedAny {
		if err := c.shared.Conglomerate.Sync(ctx); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// BeginUpload implements the first-chunk half of PUSH_STREAMABLE_OBJECT_PART
//: allocates a fresh, incomplete LargeObjectRef for
// streamableID keyed by the client's choice of id.
func (c *Context) BeginUpload(ctx context.Context, streamableID int64, typ types.Type, totalLength int64) error {
	return c.uploads.begin(ctx, c.shared.Conglomerate, streamableID, typ, totalLength)
}

// WriteUpload implements the data half of PUSH_STREAMABLE_OBJECT_PART for
// every chunk, the first one included (after BeginUpload): the chunk lands at
// its declared offset.
func (c *Context) WriteUpload(ctx context.Context, streamableID int64, offset int64, buf []byte) (int, error) {
	return c.uploads.write(ctx, streamableID, offset, buf)
}

// DisposeUpload drops an incomplete upload without resolving it, implementing
// DISPOSE_STREAMABLE_OBJECT when sent against an in-flight upload rather than
// a result-bound large object.
func (c *Context) DisposeUpload(streamableID int64) error {
	c.uploads.mu.Lock()
	defer c.uploads.mu.Unlock()
	if _, ok := c.uploads.uploads[streamableID]; !ok {
		return errs.ErrUnknownUpload.New(streamableID)
	}
	delete(c.uploads.uploads, streamableID)
	return nil
}

// ResultPage implements RESULT_SECTION: returns rs's schema plus up to
// rowCount rows starting at rowNumber, pinning any large-object
// cell in the returned rows against rs so a later STREAMABLE_OBJECT_SECTION
// can authenticate against it.
func (c *Context) ResultPage(resultID int64, rowNumber, rowCount int32) (catalog.Schema, []catalog.Row, error) {
	rs, err := c.results.lookup(resultID)
	if err != nil {
		return nil, nil, err
	}
	if rowNumber < 0 {
		rowNumber = 0
	}
	start := int(rowNumber)
	if start > len(rs.Rows) {
		start = len(rs.Rows)
	}
	end := start + int(rowCount)
	if rowCount <= 0 || end > len(rs.Rows) {
		end = len(rs.Rows)
	}
	page := rs.Rows[start:end]
	rs.pinRefs(page)
	return rs.Schema, page, nil
}

// DisposeResult implements DISPOSE_RESULT.
func (c *Context) DisposeResult(resultID int64) error {
	return c.results.dispose(resultID)
}

// DownloadPart implements STREAMABLE_OBJECT_SECTION: authenticates
// streamableID against resultID's pinned cells and returns at most
// maxStreamablePart bytes starting at offset.
func (c *Context) DownloadPart(ctx context.Context, resultID, streamableID, offset int64, length int) ([]byte, error) {
	rs, err := c.results.lookup(resultID)
	if err != nil {
		return nil, err
	}
	return getStreamableObjectPart(ctx, rs, streamableID, offset, length)
}

// DisposeResultStreamable implements DISPOSE_STREAMABLE_OBJECT when sent
// against a result-bound large object rather than an in-flight upload: it
// only forgets the pin, since the underlying Ref's lifetime belongs to the
// out-of-scope blob store.
func (c *Context) DisposeResultStreamable(resultID, streamableID int64) error {
	rs, err := c.results.lookup(resultID)
	if err != nil {
		return err
	}
	if _, ok := rs.streamableIDs[streamableID]; !ok {
		return errs.ErrUnknownUpload.New(streamableID)
	}
	delete(rs.streamableIDs, streamableID)
	return nil
}

// pinRefs registers every catalog.Ref cell of rows against rs so a later
// download can authenticate its streamable id.
func (rs *ResultSet) pinRefs(rows []catalog.Row) {
	for _, row := range rows {
		for _, cell := range row {
			if ref, ok := cell.(catalog.Ref); ok {
				rs.streamableIDs[ref.ID()] = ref
			}
		}
	}
}
