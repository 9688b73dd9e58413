package bolt

import (
	"bytes"
	"context"
	"crypto/tls"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	boltErr "github.com/orneryd/nornic-bolt-driver/pkg/errors"
)

// State is one of the Connection lifecycle states from spec.md §3.
type State int

const (
	StateClosed State = iota
	StateConnectedUnauth
	StateReady
	StateStreaming
	StateTxOpen
	StateFailed
	StateDefunct
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateConnectedUnauth:
		return "CONNECTED_UNAUTH"
	case StateReady:
		return "READY"
	case StateStreaming:
		return "STREAMING"
	case StateTxOpen:
		return "TX_OPEN"
	case StateFailed:
		return "FAILED"
	case StateDefunct:
		return "DEFUNCT"
	default:
		return "UNKNOWN"
	}
}

// AccessMode selects which side of a routing table a request targets.
type AccessMode string

const (
	AccessModeRead  AccessMode = "r"
	AccessModeWrite AccessMode = "w"
)

// ResponseHandle is the pending-request record described in spec.md §3.
// Exactly one terminal callback (OnSuccess, OnFailure, OnIgnored, or
// OnError) fires per handle, always after any OnRecords calls for a
// streaming request.
type ResponseHandle struct {
	OnSuccess func(metadata map[string]any)
	OnRecords func(values []any)
	OnFailure func(metadata map[string]any)
	OnIgnored func()
	// OnError fires for connection-level failures (socket errors, decode
	// errors) that abort this request without a server response. It is the
	// one addition spec.md's Response handle definition doesn't name
	// explicitly, needed because "on_failure(metadata)" has nowhere to
	// carry a transport error.
	OnError func(err error)

	kind     requestKind
	isCommit bool
	done     bool
}

// requestKind lets the state machine know which transition a SUCCESS
// implies, since the wire alone doesn't say "this SUCCESS was for a RUN".
type requestKind int

const (
	kindOther requestKind = iota
	kindHello
	kindRun
	kindStreamTerminal // PULL_ALL / DISCARD_ALL
	kindBegin
	kindCommit
	kindRollback
	kindReset
)

func (h *ResponseHandle) complete() { h.done = true }

// Done reports whether a terminal callback has already fired.
func (h *ResponseHandle) Done() bool { return h.done }

// Connection is a per-socket request/response state machine implementing
// spec.md §4.4: public operations enqueue a request message plus a
// ResponseHandle in the same order; SendAll flushes the queue to the
// socket; FetchAll reads responses until every queued handle is done.
type Connection struct {
	id   string
	conn net.Conn

	mu    sync.Mutex
	state State

	protocolVersion uint32
	serverInfo      *ServerInfo

	outbox  []*Structure
	pending []*ResponseHandle

	createdAt  time.Time
	lastUsedAt time.Time
	inUse      bool

	readTimeout time.Duration
}

// DialOptions configures Dial.
type DialOptions struct {
	TLSConfig      *tls.Config
	ConnectTimeout time.Duration
	KeepAlive      bool
	ReadTimeout    time.Duration
}

// Dial opens a TCP (optionally TLS) connection to address, performs the
// Bolt handshake, and returns a Connection in CONNECTED_UNAUTH state. It
// does not send HELLO/INIT — callers must call Hello next (it sends INIT
// below protocol 3).
func Dial(ctx context.Context, address string, opts DialOptions) (*Connection, error) {
	dialer := &net.Dialer{Timeout: opts.ConnectTimeout, KeepAlive: -1}
	if opts.KeepAlive {
		dialer.KeepAlive = 30 * time.Second
	}

	rawConn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, boltErr.Wrap(boltErr.ServiceUnavailable, "dial %s: %v", address, err)
	}

	var conn net.Conn = rawConn
	if opts.TLSConfig != nil {
		tlsConn := tls.Client(rawConn, opts.TLSConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			rawConn.Close()
			return nil, boltErr.Wrap(boltErr.ServiceUnavailable, "tls handshake with %s: %v", address, err)
		}
		conn = tlsConn
	}

	version, err := Handshake(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}

	c := NewConnection(conn, address, version)
	c.readTimeout = opts.ReadTimeout
	return c, nil
}

// NewConnection wraps an already-handshaken net.Conn as a Connection in
// CONNECTED_UNAUTH state. Dial uses this after the handshake completes;
// callers supplying their own transport (e.g. a pool's liveness-probe
// connection, or a test double) can use it directly.
func NewConnection(conn net.Conn, address string, version uint32) *Connection {
	now := time.Now()
	return &Connection{
		id:              uuid.NewString(),
		conn:            conn,
		state:           StateConnectedUnauth,
		protocolVersion: version,
		serverInfo:      NewServerInfo(address, version, ""),
		createdAt:       now,
		lastUsedAt:      now,
	}
}

// ID returns a unique identifier for this connection (for logging/tracing).
func (c *Connection) ID() string { return c.id }

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ServerInfo returns the connection's peer metadata.
func (c *Connection) ServerInfo() *ServerInfo { return c.serverInfo }

// ProtocolVersion returns the negotiated Bolt version.
func (c *Connection) ProtocolVersion() uint32 { return c.protocolVersion }

// CreatedAt returns the connection's creation time.
func (c *Connection) CreatedAt() time.Time { return c.createdAt }

// LastUsedAt returns the last acquisition timestamp.
func (c *Connection) LastUsedAt() time.Time { return c.lastUsedAt }

// MarkUsed records an acquisition timestamp and the in-use flag; called by
// the pool on acquire/release.
func (c *Connection) MarkUsed(inUse bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inUse = inUse
	if inUse {
		c.lastUsedAt = time.Now()
	}
}

// InUse reports whether the pool currently has this connection checked out.
func (c *Connection) InUse() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inUse
}

// enqueue appends a request message and its handle in lockstep, preserving
// the FIFO ordering the pipelining contract requires.
func (c *Connection) enqueue(msg *Structure, handle *ResponseHandle) {
	c.outbox = append(c.outbox, msg)
	c.pending = append(c.pending, handle)
}

// Hello performs the auth handshake (HELLO on protocol >= 3, INIT
// otherwise). AuthFields carries the scheme/principal/credentials/realm/
// extra parameters already assembled by pkg/auth — the codec and
// connection never interpret their meaning beyond serializing them.
func (c *Connection) Hello(userAgent string, authFields map[string]any, handle *ResponseHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.protocolVersion >= Version3 {
		extra := map[string]any{"user_agent": userAgent}
		for k, v := range authFields {
			extra[k] = v
		}
		handle.kind = kindHello
		c.enqueue(&Structure{Tag: MsgHello, Fields: []any{extra}}, handle)
		return
	}
	handle.kind = kindHello
	c.enqueue(&Structure{Tag: MsgInit, Fields: []any{userAgent, authFields}}, handle)
}

// RunOptions carries the optional RUN/BEGIN extras that only protocol >= 3
// servers accept; on older protocols they are dropped client-side rather
// than rejected (spec.md SPEC_FULL.md §4.4 clarification).
type RunOptions struct {
	Metadata  map[string]any
	Timeout   time.Duration
	Bookmarks []string
	Mode      AccessMode
}

func (c *Connection) extraFromOptions(opts RunOptions) map[string]any {
	if c.protocolVersion < Version3 {
		return nil
	}
	extra := map[string]any{}
	if opts.Mode == AccessModeRead {
		extra["mode"] = "r"
	}
	if len(opts.Bookmarks) > 0 {
		bms := make([]any, len(opts.Bookmarks))
		for i, b := range opts.Bookmarks {
			bms[i] = b
		}
		extra["bookmarks"] = bms
	}
	if opts.Timeout > 0 {
		extra["tx_timeout"] = opts.Timeout.Milliseconds()
	}
	if len(opts.Metadata) > 0 {
		extra["tx_metadata"] = opts.Metadata
	}
	return extra
}

// Run enqueues a RUN request. State transitions READY -> STREAMING happen
// once the SUCCESS/FAILURE for this request is processed (see dispatch).
func (c *Connection) Run(cypher string, parameters map[string]any, opts RunOptions, handle *ResponseHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if parameters == nil {
		parameters = map[string]any{}
	}
	fields := []any{cypher, parameters}
	if extra := c.extraFromOptions(opts); extra != nil {
		fields = append(fields, extra)
	}
	handle.kind = kindRun
	c.enqueue(&Structure{Tag: MsgRun, Fields: fields}, handle)
}

// PullAll enqueues a PULL_ALL request.
func (c *Connection) PullAll(handle *ResponseHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	handle.kind = kindStreamTerminal
	c.enqueue(&Structure{Tag: MsgPull}, handle)
}

// DiscardAll enqueues a DISCARD_ALL request.
func (c *Connection) DiscardAll(handle *ResponseHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	handle.kind = kindStreamTerminal
	c.enqueue(&Structure{Tag: MsgDiscard}, handle)
}

// Begin enqueues a BEGIN request (protocol >= 3 only; on older protocols
// this is a caller error since there is no equivalent message).
func (c *Connection) Begin(opts RunOptions, handle *ResponseHandle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.protocolVersion < Version3 {
		return boltErr.Wrap(boltErr.ClientError, "explicit transactions require protocol >= 3, connected at %d", c.protocolVersion)
	}
	extra := c.extraFromOptions(opts)
	if extra == nil {
		extra = map[string]any{}
	}
	handle.kind = kindBegin
	c.enqueue(&Structure{Tag: MsgBegin, Fields: []any{extra}}, handle)
	return nil
}

// Commit enqueues a COMMIT request and remembers that it is the commit
// handle so a mid-flight failure surfaces as IncompleteCommitError.
func (c *Connection) Commit(handle *ResponseHandle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.protocolVersion < Version3 {
		return boltErr.Wrap(boltErr.ClientError, "explicit transactions require protocol >= 3")
	}
	handle.isCommit = true
	handle.kind = kindCommit
	c.enqueue(&Structure{Tag: MsgCommit}, handle)
	return nil
}

// Rollback enqueues a ROLLBACK request.
func (c *Connection) Rollback(handle *ResponseHandle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.protocolVersion < Version3 {
		return boltErr.Wrap(boltErr.ClientError, "explicit transactions require protocol >= 3")
	}
	handle.kind = kindRollback
	c.enqueue(&Structure{Tag: MsgRollback}, handle)
	return nil
}

// Reset enqueues a RESET request. Any requests still pending when RESET is
// processed will have already received IGNORED from the server; RESET's own
// SUCCESS returns the connection to READY.
func (c *Connection) Reset(handle *ResponseHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	handle.kind = kindReset
	c.enqueue(&Structure{Tag: MsgReset}, handle)
}

// Route enqueues a ROUTE request, the dedicated routing message that
// pkg/routing sends on protocol >= 3 connections. routingContext carries the routing table procedure's context
// map; bookmarks and database select the routing scope. The routing table
// itself arrives in the SUCCESS metadata under the "rt" key.
func (c *Connection) Route(routingContext map[string]any, bookmarks []string, database string, handle *ResponseHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if routingContext == nil {
		routingContext = map[string]any{}
	}
	bms := make([]any, len(bookmarks))
	for i, b := range bookmarks {
		bms[i] = b
	}
	var dbExtra any
	if database != "" {
		dbExtra = map[string]any{"db": database}
	} else {
		dbExtra = map[string]any{}
	}
	handle.kind = kindOther
	c.enqueue(&Structure{Tag: MsgRoute, Fields: []any{routingContext, bms, dbExtra}}, handle)
}

// SendAll flushes every enqueued message to the socket in one pipelined
// write. It does not wait for responses — call FetchAll or Sync for that.
func (c *Connection) SendAll() error {
	c.mu.Lock()
	outbox := c.outbox
	c.outbox = nil
	bytesSupported := c.serverInfo.SupportsBytes()
	conn := c.conn
	c.mu.Unlock()

	var buf bytes.Buffer
	for _, msg := range outbox {
		if err := WriteMessage(&buf, msg, bytesSupported); err != nil {
			c.markDefunct(err)
			return err
		}
	}
	if buf.Len() == 0 {
		return nil
	}
	if _, err := conn.Write(buf.Bytes()); err != nil {
		c.markDefunct(err)
		return err
	}
	return nil
}

// FetchAll reads responses until every queued ResponseHandle has
// completed, dispatching each message to the FIFO head of the pending
// queue per the pipelining contract.
func (c *Connection) FetchAll() error {
	for {
		c.mu.Lock()
		if len(c.pending) == 0 {
			c.mu.Unlock()
			return nil
		}
		conn := c.conn
		readTimeout := c.readTimeout
		c.mu.Unlock()

		if readTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(readTimeout))
		}

		msg, err := ReadMessage(conn)
		if err != nil {
			c.markDefunct(err)
			return err
		}
		c.dispatch(msg)
	}
}

// Sync is SendAll followed by FetchAll.
func (c *Connection) Sync() error {
	if err := c.SendAll(); err != nil {
		return err
	}
	return c.FetchAll()
}

func (c *Connection) dispatch(msg *Structure) {
	c.mu.Lock()
	if len(c.pending) == 0 {
		c.mu.Unlock()
		return
	}
	handle := c.pending[0]
	c.mu.Unlock()

	switch msg.Tag {
	case MsgRecord:
		if len(msg.Fields) > 0 {
			if values, ok := msg.Fields[0].([]any); ok && handle.OnRecords != nil {
				handle.OnRecords(values)
			}
		}
		return // RECORD never terminates the handle
	case MsgSuccess:
		meta := firstMeta(msg.Fields)
		c.popPending()
		c.onRequestSucceeded(handle, meta)
		if handle.OnSuccess != nil {
			handle.OnSuccess(meta)
		}
		handle.complete()
	case MsgFailure:
		meta := firstMeta(msg.Fields)
		c.popPending()
		if handle.isCommit {
			if handle.OnError != nil {
				handle.OnError(boltErr.Wrap(boltErr.IncompleteCommitError, "server FAILURE after COMMIT sent: %v", meta))
			}
		} else if handle.OnFailure != nil {
			handle.OnFailure(meta)
		}
		handle.complete()
		c.setState(StateFailed)
	case MsgIgnored:
		c.popPending()
		if handle.OnIgnored != nil {
			handle.OnIgnored()
		}
		handle.complete()
	default:
		c.popPending()
		if handle.OnError != nil {
			handle.OnError(boltErr.Wrap(boltErr.DecodingError, "unexpected response tag 0x%02X", msg.Tag))
		}
		handle.complete()
	}
}

func firstMeta(fields []any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	if m, ok := fields[0].(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func (c *Connection) popPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) > 0 {
		c.pending = c.pending[1:]
	}
}

func (c *Connection) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// onRequestSucceeded advances the state machine on a successful terminal
// response, using the handle's requestKind to pick the transition — the
// wire alone doesn't say which request a SUCCESS answers, but the queue
// that produced the handle does.
func (c *Connection) onRequestSucceeded(handle *ResponseHandle, meta map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch handle.kind {
	case kindHello:
		c.state = StateReady
		if agent, ok := meta["server"].(string); ok {
			c.serverInfo = NewServerInfo(c.serverInfo.Address, c.protocolVersion, agent)
		}
	case kindRun:
		c.state = StateStreaming
	case kindStreamTerminal:
		c.state = StateReady
	case kindBegin:
		c.state = StateTxOpen
	case kindCommit, kindRollback:
		c.state = StateReady
	case kindReset:
		c.state = StateReady
	}
}

// MarkDefunct marks the connection unusable and fails any still-pending
// handles, without requiring a failed read/write to trigger it. Exposed for
// callers (e.g. a pool's out-of-band liveness probe) that detect a dead
// peer some other way.
func (c *Connection) MarkDefunct(err error) {
	c.markDefunct(err)
}

func (c *Connection) markDefunct(err error) {
	c.mu.Lock()
	c.state = StateDefunct
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	wrapped := boltErr.Wrap(boltErr.ServiceUnavailable, "connection defunct: %v", err)
	for _, h := range pending {
		if h.done {
			continue
		}
		if h.isCommit {
			wrapped = boltErr.Wrap(boltErr.IncompleteCommitError, "connection died after COMMIT sent: %v", err)
		}
		if h.OnError != nil {
			h.OnError(wrapped)
		}
		h.complete()
	}
}

// Close optionally sends GOODBYE (protocol >= 3) and closes the socket.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.state == StateClosed || c.state == StateDefunct {
		conn := c.conn
		c.state = StateClosed
		c.mu.Unlock()
		if conn != nil {
			return conn.Close()
		}
		return nil
	}
	version := c.protocolVersion
	conn := c.conn
	bytesSupported := c.serverInfo.SupportsBytes()
	c.state = StateClosed
	c.mu.Unlock()

	if version >= Version3 && conn != nil {
		_ = WriteMessage(conn, &Structure{Tag: MsgGoodbye}, bytesSupported)
	}
	if conn == nil {
		return nil
	}
	return conn.Close()
}
