// Package realtime implements the client side of the Socket.IO v5 protocol
// (Engine.IO v4, websocket transport only). A Conn carries named events with
// acknowledgement callbacks and delivers server-pushed events to a handler.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	xerrors "UnifiedMCP-Client/internal/errors"
	"UnifiedMCP-Client/pkg/logger"
)

// DefaultHandshakeTimeout bounds the websocket dial plus the Socket.IO
// CONNECT exchange when the caller's context carries no deadline.
const DefaultHandshakeTimeout = 10 * time.Second

var (
	// ErrClosed is returned by emissions on a connection that has been closed
	// locally or dropped by the server.
	ErrClosed = xerrors.New(xerrors.CodeNotConnected, "realtime connection closed")
)

// EventHandler receives server-pushed events. data is the first event
// argument, or nil when the event carried none.
type EventHandler func(event string, data json.RawMessage)

// AckFunc is invoked once with the arguments of the acknowledgement that
// answers a single emission.
type AckFunc func(args []json.RawMessage)

// Options configures Dial.
type Options struct {
	// URL is the server base URL; http and https are mapped to ws and wss.
	URL string
	// Path defaults to "/socket.io/".
	Path string
	// Namespace defaults to "/".
	Namespace string
	// Auth is sent as the CONNECT payload, e.g. {"token": "..."}.
	Auth             any
	Header           http.Header
	HandshakeTimeout time.Duration
	Dialer           *websocket.Dialer
	Logger           *slog.Logger

	// OnEvent runs on a single goroutine separate from the read loop, so it
	// may issue requests on the same Conn.
	OnEvent      EventHandler
	OnConnect    func(sid string)
	OnDisconnect func(reason error)
}

// Conn is a single Socket.IO connection.
type Conn struct {
	ws        *websocket.Conn
	namespace string
	sid       string
	log       *slog.Logger

	onEvent      EventHandler
	onDisconnect func(reason error)

	readTimeout time.Duration

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[uint64]AckFunc
	nextID    atomic.Uint64

	// pushed events awaiting dispatchLoop.
	queueMu sync.Mutex
	queue   []pushedEvent
	wake    chan struct{}

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Dial opens the websocket, completes the Engine.IO handshake and connects to
// the configured namespace. The read loop is running when Dial returns.
func Dial(ctx context.Context, opts Options) (*Conn, error) {
	endpoint, err := websocketURL(opts.URL, opts.Path)
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = logger.Named("realtime")
	}
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "/"
	}

	if _, ok := ctx.Deadline(); !ok {
		timeout := opts.HandshakeTimeout
		if timeout <= 0 {
			timeout = DefaultHandshakeTimeout
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, resp, err := dialer.DialContext(ctx, endpoint, opts.Header)
	if err != nil {
		if resp != nil {
			return nil, xerrors.Wrap(xerrors.CodeTransportFailure, err, fmt.Sprintf("dial %s (status %d)", endpoint, resp.StatusCode))
		}
		return nil, xerrors.Wrap(xerrors.CodeTransportFailure, err, "dial "+endpoint)
	}

	c := &Conn{
		ws:           ws,
		namespace:    namespace,
		log:          log,
		onEvent:      opts.OnEvent,
		onDisconnect: opts.OnDisconnect,
		pending:      make(map[uint64]AckFunc),
		wake:         make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
	if err := c.handshake(ctx, opts.Auth); err != nil {
		_ = ws.Close()
		return nil, err
	}

	go c.readLoop()
	go c.dispatchLoop()

	c.log.Info("realtime connected", slog.String("url", endpoint), slog.String("sid", c.sid))
	if opts.OnConnect != nil {
		opts.OnConnect(c.sid)
	}
	return c, nil
}

func websocketURL(raw, path string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeInvalidArgument, err, "parse realtime url")
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("unsupported realtime url scheme %q", u.Scheme))
	}
	if path == "" {
		path = "/socket.io/"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Conn) handshake(ctx context.Context, auth any) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.ws.SetReadDeadline(deadline)
		defer c.ws.SetReadDeadline(time.Time{})
	}

	frame, err := c.readFrame()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeTransportFailure, err, "read engine.io open packet")
	}
	if frame == "" || frame[0] != engineOpen {
		return xerrors.New(xerrors.CodeMalformedReply, fmt.Sprintf("expected engine.io open packet, got %q", frame))
	}
	var open openPayload
	if err := json.Unmarshal([]byte(frame[1:]), &open); err != nil {
		return xerrors.Wrap(xerrors.CodeMalformedReply, err, "decode engine.io open packet")
	}
	if open.PingInterval > 0 {
		c.readTimeout = time.Duration(open.PingInterval+open.PingTimeout) * time.Millisecond
	}

	connect := Packet{Type: PacketConnect, Namespace: c.namespace}
	if auth != nil {
		data, err := json.Marshal(auth)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeEncodeFailure, err, "encode connect auth")
		}
		connect.Data = data
	}
	if err := c.writePacket(connect); err != nil {
		return err
	}

	for {
		frame, err := c.readFrame()
		if err != nil {
			return xerrors.Wrap(xerrors.CodeTransportFailure, err, "await socket.io connect")
		}
		if frame == "" {
			continue
		}
		switch frame[0] {
		case enginePing:
			if err := c.writeFrame(string(enginePong)); err != nil {
				return err
			}
			continue
		case engineClose:
			return xerrors.New(xerrors.CodeNotConnected, "server closed the connection during handshake")
		case engineMessage:
		default:
			continue
		}
		p, err := DecodePacket(frame[1:])
		if err != nil {
			return xerrors.Wrap(xerrors.CodeMalformedReply, err, "decode connect reply")
		}
		if p.Namespace != c.namespace {
			continue
		}
		switch p.Type {
		case PacketConnect:
			var body struct {
				SID string `json:"sid"`
			}
			if len(p.Data) > 0 {
				_ = json.Unmarshal(p.Data, &body)
			}
			c.sid = body.SID
			return nil
		case PacketConnectError:
			var body struct {
				Message string `json:"message"`
			}
			msg := string(p.Data)
			if err := json.Unmarshal(p.Data, &body); err == nil && body.Message != "" {
				msg = body.Message
			}
			return xerrors.New(xerrors.CodeRemoteFailure, "connect rejected: "+msg)
		}
	}
}

// SID returns the Socket.IO session id assigned by the server.
func (c *Conn) SID() string { return c.sid }

// Connected reports whether the connection is still usable.
func (c *Conn) Connected() bool {
	if c == nil {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// Done is closed when the connection terminates.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Emit sends event with payload. When ack is non-nil the server's
// acknowledgement is delivered to it exactly once; if the connection drops
// first it is never invoked.
func (c *Conn) Emit(event string, payload any, ack AckFunc) error {
	_, err := c.emit(event, payload, ack)
	return err
}

func (c *Conn) emit(event string, payload any, ack AckFunc) (uint64, error) {
	if !c.Connected() {
		return 0, ErrClosed
	}
	data, err := json.Marshal([]any{event, payload})
	if err != nil {
		return 0, xerrors.Wrap(xerrors.CodeEncodeFailure, err, "encode event "+event)
	}
	p := Packet{Type: PacketEvent, Namespace: c.namespace, Data: data}

	var id uint64
	if ack != nil {
		id = c.nextID.Add(1)
		p.ID = &id
		c.pendingMu.Lock()
		c.pending[id] = ack
		c.pendingMu.Unlock()
	}
	if err := c.writePacket(p); err != nil {
		if ack != nil {
			c.dropPending(id)
		}
		return 0, err
	}
	return id, nil
}

// Request emits event and blocks until its acknowledgement arrives, timeout
// elapses or ctx is done. The first acknowledgement argument is returned.
func (c *Conn) Request(ctx context.Context, event string, payload any, timeout time.Duration) (json.RawMessage, error) {
	if !c.Connected() {
		return nil, ErrClosed
	}
	replies := make(chan json.RawMessage, 1)
	ack := func(args []json.RawMessage) {
		var first json.RawMessage
		if len(args) > 0 {
			first = args[0]
		}
		replies <- first
	}

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	id, err := c.emit(event, payload, ack)
	if err != nil {
		return nil, err
	}

	select {
	case reply := <-replies:
		return reply, nil
	case <-c.done:
		select {
		case reply := <-replies:
			return reply, nil
		default:
		}
		return nil, xerrors.Wrap(xerrors.CodeNotConnected, c.closeErr, "realtime connection lost while waiting for "+event)
	case <-waitCtx.Done():
		c.dropPending(id)
		select {
		case reply := <-replies:
			// the reply raced the deadline and was recorded first.
			return reply, nil
		default:
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, xerrors.New(xerrors.CodeTimeout, "realtime request timeout for event: "+event,
			xerrors.WithMetadata("event", event),
			xerrors.WithMetadata("ack_id", strconv.FormatUint(id, 10)))
	}
}

func (c *Conn) dropPending(id uint64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

// Close disconnects from the namespace and closes the websocket.
func (c *Conn) Close() error {
	if c == nil {
		return nil
	}
	if c.Connected() {
		_ = c.writePacket(Packet{Type: PacketDisconnect, Namespace: c.namespace})
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
	}
	c.shutdown(ErrClosed)
	return nil
}

func (c *Conn) shutdown(reason error) {
	c.closeOnce.Do(func() {
		c.closeErr = reason
		close(c.done)
		_ = c.ws.Close()

		c.pendingMu.Lock()
		dropped := len(c.pending)
		c.pending = make(map[uint64]AckFunc)
		c.pendingMu.Unlock()

		c.log.Info("realtime disconnected", slog.Any("reason", reason), slog.Int("pending", dropped))
		if c.onDisconnect != nil {
			c.onDisconnect(reason)
		}
	})
}

func (c *Conn) readLoop() {
	for {
		if c.readTimeout > 0 {
			_ = c.ws.SetReadDeadline(time.Now().Add(c.readTimeout))
		}
		frame, err := c.readFrame()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.shutdown(xerrors.Wrap(xerrors.CodeNotConnected, err, "realtime read failed"))
			}
			return
		}
		if frame == "" {
			continue
		}
		switch frame[0] {
		case enginePing:
			if err := c.writeFrame(string(enginePong)); err != nil {
				c.shutdown(err)
				return
			}
		case engineClose:
			c.shutdown(xerrors.New(xerrors.CodeNotConnected, "server closed the connection"))
			return
		case engineMessage:
			if disconnect := c.handlePacket(frame[1:]); disconnect {
				c.shutdown(xerrors.New(xerrors.CodeNotConnected, "server disconnected the namespace"))
				return
			}
		}
	}
}

func (c *Conn) handlePacket(raw string) bool {
	p, err := DecodePacket(raw)
	if err != nil {
		c.log.Warn("skipping malformed packet", slog.Any("error", err))
		return false
	}
	if p.Namespace != c.namespace {
		return false
	}
	switch p.Type {
	case PacketDisconnect:
		return true
	case PacketEvent:
		name, args, err := eventArgs(p.Data)
		if err != nil {
			c.log.Warn("skipping malformed event", slog.Any("error", err))
			return false
		}
		if c.onEvent != nil {
			var data json.RawMessage
			if len(args) > 0 {
				data = args[0]
			}
			c.enqueue(pushedEvent{name: name, data: data})
		}
		if p.ID != nil {
			// server-initiated events asking for an ack get an empty one.
			_ = c.writePacket(Packet{Type: PacketAck, Namespace: c.namespace, ID: p.ID, Data: json.RawMessage("[]")})
		}
	case PacketAck:
		if p.ID == nil {
			return false
		}
		args, err := ackArgs(p.Data)
		if err != nil {
			c.log.Warn("skipping malformed ack", slog.Any("error", err))
			return false
		}
		c.pendingMu.Lock()
		ack := c.pending[*p.ID]
		delete(c.pending, *p.ID)
		c.pendingMu.Unlock()
		if ack != nil {
			ack(args)
		}
	}
	return false
}

type pushedEvent struct {
	name string
	data json.RawMessage
}

func (c *Conn) enqueue(ev pushedEvent) {
	c.queueMu.Lock()
	c.queue = append(c.queue, ev)
	c.queueMu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Conn) takeQueued() []pushedEvent {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	batch := c.queue
	c.queue = nil
	return batch
}

// dispatchLoop hands pushed events to OnEvent one at a time, in arrival
// order. Events read before the connection ended are still delivered.
func (c *Conn) dispatchLoop() {
	for {
		for _, ev := range c.takeQueued() {
			c.onEvent(ev.name, ev.data)
		}
		select {
		case <-c.wake:
		case <-c.done:
			for _, ev := range c.takeQueued() {
				c.onEvent(ev.name, ev.data)
			}
			return
		}
	}
}

func (c *Conn) readFrame() (string, error) {
	for {
		typ, data, err := c.ws.ReadMessage()
		if err != nil {
			return "", err
		}
		if typ != websocket.TextMessage {
			if typ == websocket.BinaryMessage {
				return "", errBinaryUnsupported
			}
			continue
		}
		return string(data), nil
	}
}

func (c *Conn) writePacket(p Packet) error {
	return c.writeFrame(string(engineMessage) + EncodePacket(p))
}

func (c *Conn) writeFrame(frame string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return ErrClosed
		}
		return xerrors.Wrap(xerrors.CodeTransportFailure, err, "write realtime frame")
	}
	return nil
}
