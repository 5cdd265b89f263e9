package stack

import (
	"bytes"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"slices"
	"strconv"
	"sync"
	"time"
)

// HandshakeStatus tells the caller what an Engine needs next.
type HandshakeStatus int

// Handshake status constants.
const (
	// NotHandshaking means no handshake is pending.
	NotHandshaking HandshakeStatus = iota

	// NeedTask means DelegatedTask must be run.
	NeedTask

	// NeedWrap means the engine has network bytes to send.
	NeedWrap

	// NeedUnwrap means the engine waits for network bytes from the peer.
	NeedUnwrap
)

// String returns the string representation of the handshake status.
func (s HandshakeStatus) String() string {
	switch s {
	case NotHandshaking:
		return "NOT_HANDSHAKING"
	case NeedTask:
		return "NEED_TASK"
	case NeedWrap:
		return "NEED_WRAP"
	case NeedUnwrap:
		return "NEED_UNWRAP"
	default:
		return "UNKNOWN"
	}
}

// Status is the outcome of a single Wrap or Unwrap call.
type Status int

// Operation status constants.
const (
	StatusOK Status = iota
	StatusClosed
)

// Result describes a Wrap or Unwrap call.
type Result struct {
	Status          Status
	HandshakeStatus HandshakeStatus
	BytesConsumed   int
	BytesProduced   int
}

// ErrEngineClosed is returned when an operation needs a closed direction.
var ErrEngineClosed = errors.New("engine closed")

// Engine is a non-blocking TLS engine. It never touches the network: Wrap
// turns application bytes into records and Unwrap turns peer records into
// application bytes.
type Engine interface {
	Configurable

	SetUseClientMode(client bool)
	UseClientMode() bool
	SetNeedClientAuth(need bool)
	NeedClientAuth() bool
	SetWantClientAuth(want bool)
	WantClientAuth() bool
	PeerHost() string
	PeerPort() int

	BeginHandshake() error
	HandshakeStatus() HandshakeStatus
	DelegatedTask() func()

	Wrap(src []byte, dst *bytes.Buffer) (Result, error)
	Unwrap(src []byte, dst *bytes.Buffer) (Result, error)

	Session() (tls.ConnectionState, bool)
	CloseOutbound() error
	CloseInbound()
	IsOutboundDone() bool
	IsInboundDone() bool
}

type engineState int

const (
	engineIdle engineState = iota
	enginePendingTask
	engineRunning
	engineFailed
)

// memEngine drives a tls.Conn over in-memory buffers. A worker goroutine
// runs the handshake and then the read loop; every public call returns
// only once the worker has either finished or is blocked waiting for more
// peer bytes, so results are deterministic.
type memEngine struct {
	base      *tls.Config
	host      string
	port      int
	supported []string

	mu     sync.Mutex
	cond   *sync.Cond
	params Parameters
	client bool
	state  engineState

	tc          *tls.Conn
	in          bytes.Buffer
	out         bytes.Buffer
	app         bytes.Buffer
	reading     bool
	inClosed    bool
	workerDone  bool
	established bool
	outClosed   bool
	inboundDone bool
	session     tls.ConnectionState
	err         error
}

func newEngine(base *tls.Config, host string, port int, params Parameters, supported []string) *memEngine {
	e := &memEngine{
		base:      base,
		host:      host,
		port:      port,
		supported: supported,
		params:    params,
		client:    true,
	}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// Parameters returns a copy of the current parameters.
func (e *memEngine) Parameters() Parameters {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params.Clone()
}

// SetParameters replaces the parameters for the next handshake.
func (e *memEngine) SetParameters(p Parameters) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.params = p.Clone()
}

// SupportedCipherSuites lists every suite the engine could enable.
func (e *memEngine) SupportedCipherSuites() []string {
	return slices.Clone(e.supported)
}

func (e *memEngine) SetUseClientMode(client bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.client = client
}

func (e *memEngine) UseClientMode() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.client
}

func (e *memEngine) SetNeedClientAuth(need bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case need:
		e.params.ClientAuth = ClientAuthNeed
	case e.params.ClientAuth == ClientAuthNeed:
		e.params.ClientAuth = ClientAuthNone
	}
}

func (e *memEngine) NeedClientAuth() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params.ClientAuth == ClientAuthNeed
}

func (e *memEngine) SetWantClientAuth(want bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case want:
		e.params.ClientAuth = ClientAuthWant
	case e.params.ClientAuth == ClientAuthWant:
		e.params.ClientAuth = ClientAuthNone
	}
}

func (e *memEngine) WantClientAuth() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params.ClientAuth == ClientAuthWant
}

func (e *memEngine) PeerHost() string { return e.host }

func (e *memEngine) PeerPort() int { return e.port }

// BeginHandshake prepares the session; the work itself is a delegated task.
func (e *memEngine) BeginHandshake() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case engineIdle:
		cfg := buildConfig(e.base, e.params, e.client, e.host)
		conn := &engineConn{e: e}
		if e.client {
			e.tc = tls.Client(conn, cfg)
		} else {
			e.tc = tls.Server(conn, cfg)
		}
		e.state = enginePendingTask
		return nil
	case engineFailed:
		return e.err
	default:
		return nil
	}
}

// HandshakeStatus reports what the engine needs next.
func (e *memEngine) HandshakeStatus() HandshakeStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handshakeStatusLocked()
}

func (e *memEngine) handshakeStatusLocked() HandshakeStatus {
	switch {
	case e.state == enginePendingTask:
		return NeedTask
	case e.out.Len() > 0:
		return NeedWrap
	case e.state == engineRunning && !e.established && !e.workerDone:
		return NeedUnwrap
	default:
		return NotHandshaking
	}
}

// DelegatedTask returns the pending handshake work, or nil.
func (e *memEngine) DelegatedTask() func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != enginePendingTask {
		return nil
	}
	e.state = engineRunning
	return func() {
		go e.run()
		e.waitQuiescent()
	}
}

func (e *memEngine) run() {
	err := e.tc.Handshake()

	e.mu.Lock()
	if err != nil {
		e.err = err
		e.state = engineFailed
		e.workerDone = true
		e.cond.Broadcast()
		e.mu.Unlock()
		return
	}
	e.established = true
	e.session = e.tc.ConnectionState()
	e.cond.Broadcast()
	e.mu.Unlock()

	buf := make([]byte, 16<<10)
	for {
		n, err := e.tc.Read(buf)

		e.mu.Lock()
		if n > 0 {
			e.app.Write(buf[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				e.err = err
			}
			e.inboundDone = true
			e.workerDone = true
			e.cond.Broadcast()
			e.mu.Unlock()
			return
		}
		e.cond.Broadcast()
		e.mu.Unlock()
	}
}

// waitQuiescent blocks until the worker has exited or waits for input.
func (e *memEngine) waitQuiescent() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for !e.workerDone && !(e.reading && e.in.Len() == 0) {
		e.cond.Wait()
	}
}

// ensureStarted runs an implicit handshake start for Wrap and Unwrap.
func (e *memEngine) ensureStarted() error {
	if err := e.BeginHandshake(); err != nil {
		return err
	}
	if task := e.DelegatedTask(); task != nil {
		task()
	}
	return nil
}

// Wrap encrypts src once the session is up and moves pending network bytes to dst.
func (e *memEngine) Wrap(src []byte, dst *bytes.Buffer) (Result, error) {
	if err := e.ensureStarted(); err != nil {
		return Result{Status: StatusClosed}, err
	}

	e.mu.Lock()
	if e.outClosed && e.out.Len() == 0 {
		e.mu.Unlock()
		return Result{Status: StatusClosed, HandshakeStatus: NotHandshaking}, nil
	}
	established, outClosed := e.established, e.outClosed
	e.mu.Unlock()

	consumed := 0
	if established && !outClosed && len(src) > 0 {
		n, err := e.tc.Write(src)
		if err != nil {
			return Result{Status: StatusClosed, BytesConsumed: n}, err
		}
		consumed = n
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	produced, _ := dst.ReadFrom(&e.out)
	return Result{
		Status:          StatusOK,
		HandshakeStatus: e.handshakeStatusLocked(),
		BytesConsumed:   consumed,
		BytesProduced:   int(produced),
	}, nil
}

// Unwrap feeds peer bytes to the session and moves decrypted bytes to dst.
func (e *memEngine) Unwrap(src []byte, dst *bytes.Buffer) (Result, error) {
	if err := e.ensureStarted(); err != nil {
		return Result{Status: StatusClosed}, err
	}

	e.mu.Lock()
	if e.inClosed {
		e.mu.Unlock()
		return Result{Status: StatusClosed}, nil
	}
	if e.workerDone {
		// Nothing reads input any more; leave src with the caller.
		defer e.mu.Unlock()
		produced, _ := dst.ReadFrom(&e.app)
		return Result{
			Status:          StatusClosed,
			HandshakeStatus: e.handshakeStatusLocked(),
			BytesProduced:   int(produced),
		}, e.err
	}
	e.in.Write(src)
	e.cond.Broadcast()
	e.mu.Unlock()

	e.waitQuiescent()

	e.mu.Lock()
	defer e.mu.Unlock()

	produced, _ := dst.ReadFrom(&e.app)
	res := Result{
		Status:          StatusOK,
		HandshakeStatus: e.handshakeStatusLocked(),
		BytesConsumed:   len(src),
		BytesProduced:   int(produced),
	}
	if e.err != nil {
		res.Status = StatusClosed
		return res, e.err
	}
	if e.inboundDone {
		res.Status = StatusClosed
	}
	return res, nil
}

// Session returns the negotiated state once the handshake has completed.
func (e *memEngine) Session() (tls.ConnectionState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session, e.established
}

// CloseOutbound queues close_notify; Wrap delivers it.
func (e *memEngine) CloseOutbound() error {
	e.mu.Lock()
	if e.outClosed {
		e.mu.Unlock()
		return nil
	}
	e.outClosed = true
	established := e.established
	e.mu.Unlock()

	if !established {
		return nil
	}
	return e.tc.CloseWrite()
}

// CloseInbound stops the read side and releases the worker.
func (e *memEngine) CloseInbound() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inClosed = true
	e.cond.Broadcast()
}

func (e *memEngine) IsOutboundDone() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.outClosed && e.out.Len() == 0
}

func (e *memEngine) IsInboundDone() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inboundDone || e.inClosed
}

// engineConn is the net.Conn the tls.Conn inside a memEngine talks to.
type engineConn struct {
	e *memEngine
}

func (c *engineConn) Read(p []byte) (int, error) {
	e := c.e
	e.mu.Lock()
	defer e.mu.Unlock()

	for e.in.Len() == 0 && !e.inClosed {
		e.reading = true
		e.cond.Broadcast()
		e.cond.Wait()
	}
	e.reading = false

	if e.in.Len() == 0 {
		return 0, io.EOF
	}
	return e.in.Read(p)
}

func (c *engineConn) Write(p []byte) (int, error) {
	e := c.e
	e.mu.Lock()
	defer e.mu.Unlock()
	e.out.Write(p)
	e.cond.Broadcast()
	return len(p), nil
}

func (c *engineConn) Close() error {
	c.e.CloseInbound()
	return nil
}

func (c *engineConn) LocalAddr() net.Addr { return engineAddr("local") }

func (c *engineConn) RemoteAddr() net.Addr {
	return engineAddr(net.JoinHostPort(c.e.host, strconv.Itoa(c.e.port)))
}

func (c *engineConn) SetDeadline(time.Time) error      { return nil }
func (c *engineConn) SetReadDeadline(time.Time) error  { return nil }
func (c *engineConn) SetWriteDeadline(time.Time) error { return nil }

type engineAddr string

func (a engineAddr) Network() string { return "memory" }
func (a engineAddr) String() string  { return string(a) }

var _ Engine = (*memEngine)(nil)
