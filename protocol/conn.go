package protocol

import (
	"bufio"
	"context"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/relcore/relcore/errs"
	"github.com/relcore/relcore/session"
)

// Conn is the transport a Connection drives: a net.Conn satisfies it
// directly. SetReadDeadline backs the farmer model's non-blocking poll
// (pool.go); the thread-per-connection model never calls it.
type Conn interface {
	io.Reader
	io.Writer
	io.Closer
	SetReadDeadline(t time.Time) error
}

// Connection is one client's protocol state machine: HANDSHAKE (state 0)
// -> LOGIN (state 4) -> command loop (state 100). "processing" is the
// farmer model's `processing_command` flag: at most one worker
// may be executing on behalf of this connection at a time.
type Connection struct {
	id      uint32
	handler *Handler
	conn    Conn
	r       *bufio.Reader
	w       *bufio.Writer

	mu            sync.Mutex
	state         State
	authTries     int
	sess          *session.Context
	processing    bool
	closed        bool
	activeUploads map[int64]bool
}

func newConnection(h *Handler, conn Conn, id uint32) *Connection {
	return &Connection{
		id:      id,
		handler: h,
		conn:    conn,
		r:       bufio.NewReader(conn),
		w:       bufio.NewWriter(conn),
		state:   StateHandshake,
	}
}

// ID is the connection identifier assigned at Accept.
func (c *Connection) ID() uint32 { return c.id }

// tryAcquire implements the processing_command guard: only one goroutine may
// drive this connection's state machine at a time.
func (c *Connection) tryAcquire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.processing || c.closed {
		return false
	}
	c.processing = true
	return true
}

func (c *Connection) release() {
	c.mu.Lock()
	c.processing = false
	c.mu.Unlock()
}

func (c *Connection) closeSession(ctx context.Context) {
	c.mu.Lock()
	sess := c.sess
	c.closed = true
	c.mu.Unlock()
	if sess != nil {
		_ = sess.Close(ctx)
	}
	_ = c.conn.Close()
	c.handler.remove(c.id)
}

// RunHandshakeAndLogin drives state 0 and state 4 to completion, leaving the
// connection at state=100 on success. The caller (a thread-per-connection
// reader goroutine, or a test harness) owns the blocking read loop up to
// here; afterward ProcessRequests takes over each command turn.
func (c *Connection) RunHandshakeAndLogin(ctx context.Context) error {
	if err := c.handleHandshake(ctx); err != nil {
		return err
	}
	for {
		done, err := c.handleLogin(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// handleHandshake implements state=0: receive (magic,
// driver_major, driver_minor); reply (ACKNOWLEDGEMENT, server_version=1).
func (c *Connection) handleHandshake(ctx context.Context) error {
	frame, err := readFrame(c.r)
	if err != nil {
		return err
	}
	d := newDecoder(frame)
	if _, err := d.int32(); err != nil { // magic
		return err
	}
	if _, err := d.int32(); err != nil { // driver_major
		return err
	}
	if _, err := d.int32(); err != nil { // driver_minor
		return err
	}

	e := &encoder{}
	e.int32(protocolMagic)
	e.byte(1) // has_version
	e.int32(serverVersion)
	e.byte(1) // end
	if err := writeFrame(c.w, e.buf); err != nil {
		return err
	}
	c.mu.Lock()
	c.state = StateLogin
	c.mu.Unlock()
	return nil
}

// protocolMagic is echoed back in ACKNOWLEDGEMENT's leading constant field;
// the wire format names the field but not its required value, so this core defines its
// own and a client validates it against whatever it sent in HANDSHAKE.
const protocolMagic int32 = 0x52454c43 // "RELC"

// handleLogin implements state=4: receive (default_schema,
// username, password); attempt authentication; on failure up to
// maxAuthAttempts times reply USER_AUTHENTICATION_FAILED and stay in state
// 4; the next failure beyond that closes the connection. Returns
// done=true once LOGIN has succeeded and the connection moved to state=100.
func (c *Connection) handleLogin(ctx context.Context) (bool, error) {
	frame, err := readFrame(c.r)
	if err != nil {
		return false, err
	}
	d := newDecoder(frame)
	defaultSchema, err := d.str()
	if err != nil {
		return false, err
	}
	username, err := d.str()
	if err != nil {
		return false, err
	}
	password, err := d.str()
	if err != nil {
		return false, err
	}

	if err := c.handler.Shared.Auth.Authenticate(username, password); err != nil {
		c.mu.Lock()
		c.authTries++
		tries := c.authTries
		c.mu.Unlock()

		e := &encoder{}
		e.int32(int32(StatusException))
		if werr := writeFrame(c.w, e.buf); werr != nil {
			return false, werr
		}
		if tries > maxAuthAttempts {
			return false, errors.Wrap(err, "too many failed login attempts, closing connection")
		}
		return false, nil
	}

	sess := session.NewContext(c.handler.Shared, c.id, username, defaultSchema)
	c.mu.Lock()
	c.sess = sess
	c.state = StateCommand
	c.authTries = 0
	c.mu.Unlock()

	e := &encoder{}
	e.int32(int32(StatusSuccess))
	if err := writeFrame(c.w, e.buf); err != nil {
		return false, err
	}
	return true, nil
}

// ProcessRequests implements the limit: "A single worker may process
// up to 8 consecutive requests before returning to the worker pool." It
// reads and dispatches frames until either maxCommandsPerTurn is reached, a
// CLOSE command is seen, or an I/O error occurs; the caller (pool.go) is
// responsible for resubmitting the connection for its next turn.
func (c *Connection) ProcessRequests(ctx context.Context) (closeConn bool) {
	for i := 0; i < maxCommandsPerTurn; i++ {
		frame, err := readFrame(c.r)
		if err != nil {
			return true
		}
		if stop := c.dispatch(ctx, frame); stop {
			return true
		}
	}
	return false
}

// dispatch decodes one command frame's leading dispatch_id (:
// every listed C→S command row starts "dispatch_id(4), ..."), then the
// opcode tag this core adds right after it to tell same-state commands
// apart — the table never lists a separate opcode field for state=100
// commands the way it calls HANDSHAKE "frame 0" (implicit by position); with
// six different command shapes sharing one state, something has to name
// which one a frame is, so this core makes that tag explicit, stapled onto
// the field order the table does give. It runs the command and writes its
// reply, returning true when the connection should be torn down (a CLOSE
// command, or an unrecoverable decode error).
func (c *Connection) dispatch(ctx context.Context, frame []byte) (closeConn bool) {
	d := newDecoder(frame)
	dispatchID, err := d.int32()
	if err != nil {
		return true
	}
	opRaw, err := d.int32()
	if err != nil {
		return true
	}
	op := Opcode(opRaw)

	if op == OpClose {
		return true
	}

	payload, execErr := c.execCommand(ctx, op, d)
	if execErr != nil {
		c.writeException(dispatchID, execErr)
		return false
	}
	c.writeSuccess(dispatchID, payload)
	return false
}

func (c *Connection) writeSuccess(dispatchID int32, payload []byte) {
	e := &encoder{}
	e.int32(dispatchID)
	e.int32(int32(StatusSuccess))
	e.bytesRaw(payload)
	_ = writeFrame(c.w, e.buf)
}

func (c *Connection) writeException(dispatchID int32, err error) {
	e := &encoder{}
	e.int32(dispatchID)
	e.int32(int32(StatusException))
	e.int32(int32(errs.CodeOf(err)))
	e.str(err.Error())
	e.str("") // stack_trace: this core doesn't capture one
	_ = writeFrame(c.w, e.buf)
}

// Ping pushes a server-initiated PING: dispatch_id=-1(4), opcode(4). A write
// failure is interpreted as connection death, signaled to the caller so the
// farmer can drop the connection.
func (c *Connection) Ping() error {
	e := &encoder{}
	e.int32(-1)
	e.int32(int32(OpPing))
	return writeFrame(c.w, e.buf)
}

// DatabaseEvent pushes a server-initiated trigger-fire callback: a database
// callback (trigger fire) is pushed to the client with dispatch_id = -1 and
// opcode DATABASE_EVENT.
func (c *Connection) DatabaseEvent(payload string) error {
	e := &encoder{}
	e.int32(-1)
	e.int32(int32(OpDatabaseEvent))
	e.str(payload)
	return writeFrame(c.w, e.buf)
}
