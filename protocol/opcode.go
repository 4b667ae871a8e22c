// Package protocol is component G: the stateful,
// byte-framed command dispatcher that sits in front of component F (session).
// It never inspects a statement tree itself — it deserializes a command,
// decodes its SQLQuery/parameter payload, and hands the rest to a
// session.Context, mirroring go-mysql-server's server.Handler/SessionManager
// split (server/handler_test.go is the only surviving grounding for that
// shape; the concrete opcode set here is its own, not the MySQL
// wire protocol dolthub/vitess implements — see DESIGN.md for why vitess was
// dropped).
package protocol

import "time"

// Opcode is one wire command or reply tag.
type Opcode int32

const (
	// OpHandshake is frame 0 on a fresh connection: no opcode byte precedes
	// it, it is simply the first frame read in state 0.
	OpHandshake Opcode = iota
	OpAcknowledgement
	OpLogin
	OpQuery
	OpResultSection
	OpPushStreamableObjectPart
	OpStreamableObjectSection
	OpDisposeResult
	OpDisposeStreamableObject
	OpClose
	OpPing
	OpDatabaseEvent
	OpSuccess
	OpException
)

// Status tags a reply's outcome: SUCCESS or EXCEPTION. LOGIN's reply reuses
// it in place of a separate USER_AUTHENTICATION_FAILED/_PASSED opcode.
type Status int32

const (
	StatusSuccess Status = iota
	StatusException
)

// State is the per-connection state machine position.
type State int

const (
	// StateHandshake expects the HANDSHAKE frame.
	StateHandshake State = 0
	// StateLogin expects the LOGIN frame.
	StateLogin State = 4
	// StateCommand expects any post-handshake command opcode.
	StateCommand State = 100
)

// serverVersion is the core's own protocol version, echoed in the
// ACKNOWLEDGEMENT reply.
const serverVersion = 1

// maxAuthAttempts bounds LOGIN retries before the connection is closed.
const maxAuthAttempts = 12

// maxCommandsPerTurn bounds how many consecutive requests one worker may
// process before yielding back to its pool.
const maxCommandsPerTurn = 8

// MaxStreamablePartBytes is the hard cap on one STREAMABLE_OBJECT_SECTION
// reply.
const MaxStreamablePartBytes = 524288

// PollInterval is the single-threaded farmer's connection-scan period.
const PollInterval = 3 * time.Millisecond

// PingInterval is the farmer's per-connection ping period.
const PingInterval = 45 * time.Second
