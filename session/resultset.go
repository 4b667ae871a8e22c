package session

import (
	"context"
	"sync"

	uuid "github.com/satori/go.uuid"

	"github.com/relcore/relcore/catalog"
	"github.com/relcore/relcore/errs"
	"github.com/relcore/relcore/types"
)

// maxStreamablePart is the per-call cap on getStreamableObjectPart.
const maxStreamablePart = 524288

// ResultSet is the handle registered with a fresh id on a successful query.
// Its rows are materialized once up front — table roots are locked (pinned,
// read-consistent) at registration time, which this reference implementation
// models by draining the RowIter into a fixed snapshot rather than re-reading
// the storage layer on every fetch.
type ResultSet struct {
	ID     int64
	Schema catalog.Schema
	Rows   []catalog.Row
	Query  string

	// streamableIDs authenticates a getStreamableObjectPart call's
	// streamable_id against this result handle.
	streamableIDs map[int64]catalog.Ref
}

// newResultSet builds a materialized ResultSet with an empty streamable-id
// table; getStreamableObjectPart authenticates downloads against that table.
func newResultSet(id int64, schema catalog.Schema, rows []catalog.Row, query string) *ResultSet {
	return &ResultSet{ID: id, Schema: schema, Rows: rows, Query: query, streamableIDs: map[int64]catalog.Ref{}}
}

// resultRegistry holds a connection's open result handles by id. Its dispose
// releases a handle; a subsequent lookup raises ErrUnknownResultSet.
type resultRegistry struct {
	mu      sync.Mutex
	nextID  int64
	results map[int64]*ResultSet
}

func newResultRegistry() *resultRegistry {
	return &resultRegistry{results: map[int64]*ResultSet{}}
}

// register assigns a fresh monotonic id, fenced by the registry's own mutex.
func (r *resultRegistry) register(schema catalog.Schema, rows []catalog.Row, query string) *ResultSet {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	rs := newResultSet(r.nextID, schema, rows, query)
	r.results[rs.ID] = rs
	return rs
}

func (r *resultRegistry) lookup(id int64) (*ResultSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rs, ok := r.results[id]
	if !ok {
		return nil, errs.ErrUnknownResultSet.New(id)
	}
	return rs, nil
}

func (r *resultRegistry) dispose(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.results[id]; !ok {
		return errs.ErrUnknownResultSet.New(id)
	}
	delete(r.results, id)
	return nil
}

func (r *resultRegistry) disposeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = map[int64]*ResultSet{}
}

// upload is one in-flight large-object upload, keyed by a streamable-object-id
// chosen by the client.
type upload struct {
	id  int64
	ref catalog.Ref
}

type uploadRegistry struct {
	mu      sync.Mutex
	uploads map[int64]*upload
}

func newUploadRegistry() *uploadRegistry {
	return &uploadRegistry{uploads: map[int64]*upload{}}
}

// begin allocates a fresh, incomplete LargeObjectRef for streamableID's first
// chunk.
func (u *uploadRegistry) begin(ctx context.Context, cong catalog.Conglomerate, streamableID int64, typ types.Type, totalLength int64) error {
	ref, err := cong.NewRef(ctx, typ, totalLength)
	if err != nil {
		return err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.uploads[streamableID] = &upload{id: streamableID, ref: ref}
	return nil
}

// write stores one chunk at its declared offset in the upload's Ref; every
// chunk, first or later, goes through here.
func (u *uploadRegistry) write(ctx context.Context, streamableID int64, offset int64, buf []byte) (int, error) {
	u.mu.Lock()
	up, ok := u.uploads[streamableID]
	u.mu.Unlock()
	if !ok {
		return 0, errs.ErrUnknownUpload.New(streamableID)
	}
	return up.ref.Write(ctx, offset, buf)
}

// resolve completes and removes an upload, handing back its finished Ref:
// each is resolved via the upload map (completed and removed).
func (u *uploadRegistry) resolve(ctx context.Context, streamableID int64) (catalog.Ref, error) {
	u.mu.Lock()
	up, ok := u.uploads[streamableID]
	if ok {
		delete(u.uploads, streamableID)
	}
	u.mu.Unlock()
	if !ok {
		return nil, errs.ErrUnknownUpload.New(streamableID)
	}
	if err := up.ref.Complete(ctx); err != nil {
		return nil, err
	}
	return up.ref, nil
}

// newDisposalToken mints an opaque satori/go.uuid id. Nothing in the module
// calls it: result-set ids come from resultRegistry's monotonic counter and
// upload ids are chosen by the client.
func newDisposalToken() string {
	return uuid.NewV4().String()
}

// getStreamableObjectPart implements the download half of // "Large objects": it authenticates streamableID against rs and returns at
// most maxStreamablePart bytes starting at offset.
func getStreamableObjectPart(ctx context.Context, rs *ResultSet, streamableID, offset int64, length int) ([]byte, error) {
	ref, ok := rs.streamableIDs[streamableID]
	if !ok {
		return nil, errs.ErrUnknownUpload.New(streamableID)
	}
	if length > maxStreamablePart {
		length = maxStreamablePart
	}
	return ref.Read(ctx, offset, length)
}
