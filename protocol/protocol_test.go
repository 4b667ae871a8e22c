package protocol_test

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/relcore/relcore/ast"
	"github.com/relcore/relcore/auth"
	"github.com/relcore/relcore/catalog"
	"github.com/relcore/relcore/protocol"
	"github.com/relcore/relcore/session"
	"github.com/relcore/relcore/types"
)

// --- fake catalog, grounded on session's own test fakes (session_test.go) ---

type fakeTable struct {
	name   string
	schema catalog.Schema
	rows   []catalog.Row
}

func (f *fakeTable) Name() string           { return f.name }
func (f *fakeTable) Schema() catalog.Schema  { return f.schema }
func (f *fakeTable) Partitions(ctx context.Context) (catalog.PartitionIter, error) {
	return &singlePartitionIter{}, nil
}
func (f *fakeTable) PartitionRows(ctx context.Context, p catalog.Partition) (catalog.RowIter, error) {
	return &fakeRowIter{rows: f.rows}, nil
}
func (f *fakeTable) PrimaryKey() []string                                   { return nil }
func (f *fakeTable) UniqueGroups() [][]string                               { return nil }
func (f *fakeTable) ForeignKeys() []catalog.ForeignKey                      { return nil }
func (f *fakeTable) Checks() []catalog.CheckConstraint                      { return nil }
func (f *fakeTable) Insert(ctx context.Context, row catalog.Row) error      { f.rows = append(f.rows, row); return nil }
func (f *fakeTable) Update(ctx context.Context, old, new catalog.Row) error { return nil }
func (f *fakeTable) Delete(ctx context.Context, row catalog.Row) error      { return nil }
func (f *fakeTable) SelectableSchemes() []catalog.SelectableScheme          { return nil }

type singlePartitionIter struct{ done bool }

func (s *singlePartitionIter) Next(ctx context.Context) (catalog.Partition, error) {
	if s.done {
		return nil, catalog.ErrIterDone
	}
	s.done = true
	return fakePartition{}, nil
}
func (s *singlePartitionIter) Close(ctx context.Context) error { return nil }

type fakePartition struct{}

func (fakePartition) Key() []byte { return nil }

type fakeRowIter struct {
	rows []catalog.Row
	pos  int
}

func (f *fakeRowIter) Next(ctx context.Context) (catalog.Row, error) {
	if f.pos >= len(f.rows) {
		return nil, catalog.ErrIterDone
	}
	r := f.rows[f.pos]
	f.pos++
	return r, nil
}
func (f *fakeRowIter) Close(ctx context.Context) error { return nil }

type fakeDatabase struct {
	name   string
	tables map[string]*fakeTable
}

func (d *fakeDatabase) Name() string { return d.name }
func (d *fakeDatabase) Table(ctx context.Context, name string) (catalog.DataTableDef, bool, error) {
	t, ok := d.tables[name]
	if !ok {
		return nil, false, nil
	}
	return t, true, nil
}
func (d *fakeDatabase) TableNames(ctx context.Context) ([]string, error) {
	var names []string
	for n := range d.tables {
		names = append(names, n)
	}
	return names, nil
}
func (d *fakeDatabase) CreateTable(ctx context.Context, name string, schema catalog.Schema) error {
	d.tables[name] = &fakeTable{name: name, schema: schema}
	return nil
}
func (d *fakeDatabase) DropTable(ctx context.Context, name string) error {
	delete(d.tables, name)
	return nil
}

type fakeTransaction struct{}

func (t *fakeTransaction) Commit(ctx context.Context) error   { return nil }
func (t *fakeTransaction) Rollback(ctx context.Context) error { return nil }
func (t *fakeTransaction) Defer(c catalog.DeferredConstraint) {}

type fakeConglomerate struct {
	dbs map[string]*fakeDatabase
}

func newFakeConglomerate() *fakeConglomerate {
	return &fakeConglomerate{dbs: map[string]*fakeDatabase{
		"main": {name: "main", tables: map[string]*fakeTable{
			"widgets": {name: "widgets", schema: catalog.Schema{{Name: "id", Type: types.Integer}}, rows: []catalog.Row{
				{int64(1)}, {int64(2)},
			}},
		}},
	}}
}

func (c *fakeConglomerate) Database(ctx context.Context, name string) (catalog.Database, bool, error) {
	db, ok := c.dbs[name]
	if !ok {
		return nil, false, nil
	}
	return db, true, nil
}
func (c *fakeConglomerate) AllDatabases(ctx context.Context) []catalog.Database {
	var dbs []catalog.Database
	for _, d := range c.dbs {
		dbs = append(dbs, d)
	}
	return dbs
}
func (c *fakeConglomerate) CreateDatabase(ctx context.Context, name string) error { return nil }
func (c *fakeConglomerate) DropDatabase(ctx context.Context, name string) error   { return nil }
func (c *fakeConglomerate) Begin(ctx context.Context) (catalog.Transaction, error) {
	return &fakeTransaction{}, nil
}
func (c *fakeConglomerate) NewRef(ctx context.Context, typ types.Type, totalLength int64) (catalog.Ref, error) {
	return nil, nil
}
func (c *fakeConglomerate) Sync(ctx context.Context) error             { return nil }
func (c *fakeConglomerate) AddCommitListener(l catalog.CommitListener) {}

// fakeParser stands in for the out-of-scope SQL grammar/lexer. Any query
// text parses to a BEGIN statement, which session.Context.Execute turns into
// a real (if columnless) ResultSet — enough to exercise the wire protocol's
// QUERY/RESULT_SECTION framing without needing a full planner fixture.
type fakeParser struct{}

func (fakeParser) Parse(ctx context.Context, query string, params []interface{}) (interface{}, error) {
	return &ast.CompleteTransactionStatement{Kind: ast.TxnBegin}, nil
}

type failingAuth struct{}

func (failingAuth) Authenticate(user, password string) error {
	return auth.ErrAuthenticationFailed.New(user)
}
func (failingAuth) Allowed(user string, permission auth.Permission) error { return nil }

func newTestHandler() *protocol.Handler {
	shared := session.NewShared(newFakeConglomerate(), &auth.None{}, auth.NewNativeSingle("tester", "", auth.AllPermissions), nil)
	return protocol.NewHandler(shared, fakeParser{})
}

// wireClient drives the raw frame protocol over one end of a net.Pipe,
// standing in for a real driver so the tests exercise Connection exactly as
// a client on the wire would.
type wireClient struct {
	t    *testing.T
	conn net.Conn
}

func (w *wireClient) writeFrame(payload []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	_, err := w.conn.Write(lenBuf[:])
	require.NoError(w.t, err)
	_, err = w.conn.Write(payload)
	require.NoError(w.t, err)
}

func (w *wireClient) readFrame() []byte {
	var lenBuf [4]byte
	_, err := readFull(w.conn, lenBuf[:])
	require.NoError(w.t, err)
	n := binary.BigEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if n > 0 {
		_, err = readFull(w.conn, buf)
		require.NoError(w.t, err)
	}
	return buf
}

func readFull(r net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func appendInt32(buf []byte, v int32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	return append(buf, b[:]...)
}

func appendStr(buf []byte, s string) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(len(s)))
	buf = append(buf, b[:]...)
	return append(buf, s...)
}

func (w *wireClient) handshake() {
	var frame []byte
	frame = appendInt32(frame, 0x52454c43)
	frame = appendInt32(frame, 1)
	frame = appendInt32(frame, 0)
	w.writeFrame(frame)
	ack := w.readFrame() // magic(4) + has_version(1) + server_version(4) + end(1)
	require.Len(w.t, ack, 10)
}

func (w *wireClient) login(schema, user, password string) []byte {
	var frame []byte
	frame = appendStr(frame, schema)
	frame = appendStr(frame, user)
	frame = appendStr(frame, password)
	w.writeFrame(frame)
	return w.readFrame()
}

// dialHandler drives the accepted connection with the real
// ThreadPerConnection model (pool.go), exercising handshake, login, the
// command loop and teardown exactly as production code would.
func dialHandler(t *testing.T, h *protocol.Handler) (*wireClient, *protocol.Connection) {
	clientSide, serverSide := net.Pipe()
	c := h.Accept(serverSide)
	pool := protocol.NewWorkerPool(2)
	tpc := protocol.NewThreadPerConnection(pool)
	go tpc.Serve(context.Background(), c)
	t.Cleanup(pool.Stop)
	return &wireClient{t: t, conn: clientSide}, c
}

func TestHandshakeAndLoginSucceed(t *testing.T) {
	h := newTestHandler()
	w, _ := dialHandler(t, h)
	w.handshake()
	status := w.login("main", "tester", "")
	require.Equal(t, int32(protocol.StatusSuccess), int32(binary.BigEndian.Uint32(status[0:4])))
}

func TestLoginFailureClosesAfterTooManyAttempts(t *testing.T) {
	shared := session.NewShared(newFakeConglomerate(), failingAuth{}, auth.NewNativeSingle("tester", "", auth.AllPermissions), nil)
	h := protocol.NewHandler(shared, fakeParser{})
	w, _ := dialHandler(t, h)
	w.handshake()

	// Every failed attempt, including the 13th, still gets an
	// USER_AUTHENTICATION_FAILED-equivalent exception reply — the 13th just
	// also tears the connection down right after.
	for i := 0; i < 13; i++ {
		status := w.login("main", "tester", "bad")
		require.Equal(t, int32(protocol.StatusException), int32(binary.BigEndian.Uint32(status[0:4])))
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		var frame []byte
		frame = appendStr(frame, "main")
		frame = appendStr(frame, "tester")
		frame = appendStr(frame, "bad")
		// The server may already have closed its end, so the write's error is
		// ignored; the read returning before the timeout proves the close.
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(frame)))
		_, _ = w.conn.Write(append(lenBuf[:], frame...))
		buf := make([]byte, 1)
		_, _ = w.conn.Read(buf)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected the connection to close after the 13th failed login")
	}
}

func TestQueryAndResultSectionRoundTrip(t *testing.T) {
	h := newTestHandler()
	w, _ := dialHandler(t, h)
	w.handshake()
	w.login("main", "tester", "")

	var frame []byte
	frame = appendInt32(frame, 1) // dispatch_id
	frame = appendInt32(frame, int32(protocol.OpQuery))
	frame = appendStr(frame, "select * from widgets")
	frame = appendInt32(frame, 0) // param_count
	w.writeFrame(frame)

	reply := w.readFrame()
	require.Equal(t, int32(1), int32(binary.BigEndian.Uint32(reply[0:4])))      // dispatch_id
	require.Equal(t, int32(protocol.StatusSuccess), int32(binary.BigEndian.Uint32(reply[4:8])))
	resultID := int64(binary.BigEndian.Uint64(reply[8:16]))
	colCount := int32(binary.BigEndian.Uint32(reply[16:20]))
	require.Equal(t, int32(0), colCount)

	var sec []byte
	sec = appendInt32(sec, 2) // dispatch_id
	sec = appendInt32(sec, int32(protocol.OpResultSection))
	sec = appendInt32(sec, int32(resultID))
	sec = appendInt32(sec, 0)
	sec = appendInt32(sec, 10)
	w.writeFrame(sec)

	secReply := w.readFrame()
	require.Equal(t, int32(protocol.StatusSuccess), int32(binary.BigEndian.Uint32(secReply[4:8])))
	rowCount := int32(binary.BigEndian.Uint32(secReply[8:12]))
	require.Equal(t, int32(0), rowCount)
}

func TestCloseCommandEndsConnection(t *testing.T) {
	h := newTestHandler()
	w, _ := dialHandler(t, h)
	w.handshake()
	w.login("main", "tester", "")

	var frame []byte
	frame = appendInt32(frame, 1) // dispatch_id
	frame = appendInt32(frame, int32(protocol.OpClose))
	w.writeFrame(frame)

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 1)
		_, _ = w.conn.Read(buf) // EOF once the server side closes
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected the connection to close after CLOSE")
	}
}
