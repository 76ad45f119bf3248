package subscription

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/rickgao/hudlink/internal/protocol"
	"github.com/rickgao/hudlink/internal/socket"
)

// State is the protocol state of a Transport.
type State int

const (
	StateDisconnected State = iota
	StateInitializing
	StateReady
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Stats provides transport counters.
type Stats struct {
	State             State
	Subscriptions     int
	FramesReceived    int64
	DataFrames        int64
	MalformedFrames   int64
	Acks              int64
	KeepAliveTimeouts int64
	ConnectionErrors  int64
}

// handle is one live subscription.
type handle struct {
	id      string
	start   []byte // exact start frame, resent verbatim on every ack
	onData  DataHandler
	onError ErrorHandler
}

// Transport multiplexes GraphQL subscriptions over one socket.Conn.
type Transport struct {
	conn   socket.Conn
	opts   options
	logger *slog.Logger

	// All state below is guarded by mu. Frames are written while holding mu
	// so subscribe order and ack replay order cannot interleave. Callbacks
	// run without mu held.
	mu      sync.Mutex
	nextID  uint64
	handles map[string]*handle
	order   []string // live ids in subscribe order
	state   State
	closed  bool

	// Keep-alive watchdog; watchGen invalidates timers that fire late
	watchdog *time.Timer
	watchGen uint64

	stats Stats
}

// New creates a Transport on conn and installs its handlers. The caller owns
// conn and starts it.
func New(conn socket.Conn, opts ...Option) *Transport {
	o := buildOptions(opts)

	t := &Transport{
		conn:    conn,
		opts:    o,
		logger:  o.logger,
		handles: make(map[string]*handle),
	}
	if t.opts.onError == nil {
		t.opts.onError = func(err error) {
			t.logger.Error("subscription transport error", "error", err)
		}
	}

	conn.SetHandlers(socket.Handlers{
		OnOpen:    t.handleOpen,
		OnMessage: t.handleMessage,
		OnError:   t.handleSocketError,
		OnClose:   t.handleClose,
	})

	return t
}

// Subscribe registers a subscription and returns its id. The start frame is
// sent right away only when the socket is open and connection_ack has been
// received. Between open and ack it is held back, since the ack replays every
// registered start frame and sending it earlier would start it twice. While
// disconnected the next connection_ack sends it. onError may be nil.
func (t *Transport) Subscribe(req protocol.Request, onData DataHandler, onError ErrorHandler) (string, error) {
	return t.subscribe(req, onData, onError, nil)
}

// subscribe registers a handle. bind, if set, observes the id before any
// frame can be sent for it.
func (t *Transport) subscribe(req protocol.Request, onData DataHandler, onError ErrorHandler, bind func(id string)) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return "", ErrClosed
	}

	id := strconv.FormatUint(t.nextID, 10)
	start, err := protocol.StartFrame(id, req)
	if err != nil {
		return "", fmt.Errorf("build start frame: %w", err)
	}
	t.nextID++

	if bind != nil {
		bind(id)
	}

	t.handles[id] = &handle{
		id:      id,
		start:   start,
		onData:  onData,
		onError: onError,
	}
	t.order = append(t.order, id)

	if t.state == StateReady && t.conn.IsOpen() {
		if err := t.conn.Send(start); err != nil {
			t.logger.Debug("start frame not sent, will replay on ack", "id", id, "error", err)
		}
	}

	t.logger.Debug("subscribed", "id", id, "operation", req.OperationName)
	return id, nil
}

// Stop unregisters a subscription and tells the server. Unknown ids are not
// an error; the stop frame is still sent. When the connection is closed the
// stop frame is dropped.
func (t *Transport) Stop(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.handles[id]; ok {
		t.removeLocked(id)
	}

	if t.conn.IsOpen() {
		if err := t.conn.Send(protocol.StopFrame(id)); err != nil {
			t.logger.Debug("stop frame not sent", "id", id, "error", err)
		}
	}

	t.logger.Debug("stopped", "id", id)
}

// Close stops the watchdog and sends connection_terminate if connected.
// Subscribe fails with ErrClosed afterwards. The socket itself is left to
// its owner.
func (t *Transport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.closed = true
	t.disarmLocked()

	if t.conn.IsOpen() {
		if err := t.conn.Send(protocol.TerminateFrame()); err != nil {
			t.logger.Debug("terminate frame not sent", "error", err)
		}
	}
}

// State returns the current protocol state.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Subscriptions returns the live subscription ids in subscribe order.
func (t *Transport) Subscriptions() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.order...)
}

// Stats returns current statistics.
func (t *Transport) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.stats
	s.State = t.state
	s.Subscriptions = len(t.order)
	return s
}

// handleOpen starts the connection handshake.
func (t *Transport) handleOpen() {
	frame, err := protocol.InitFrame(t.opts.initPayload)
	if err != nil {
		t.reportError(fmt.Errorf("build init frame: %w", err))
		return
	}

	t.mu.Lock()
	t.state = StateInitializing
	t.disarmLocked()
	err = t.conn.Send(frame)
	t.mu.Unlock()

	if err != nil {
		t.reportError(fmt.Errorf("send connection_init: %w", err))
		return
	}
	t.logger.Debug("connection_init sent")
}

// handleMessage dispatches one inbound frame.
func (t *Transport) handleMessage(data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		t.mu.Lock()
		t.stats.MalformedFrames++
		t.mu.Unlock()

		t.logger.Warn("dropping malformed frame", "error", err, "size", len(data))
		t.reportError(err)
		return
	}

	t.mu.Lock()
	t.stats.FramesReceived++
	t.mu.Unlock()

	switch msg.Type {
	case protocol.TypeConnectionAck:
		t.handleAck()

	case protocol.TypeData:
		t.handleData(msg)

	case protocol.TypeKeepAlive:
		t.mu.Lock()
		t.armLocked()
		t.mu.Unlock()

	case protocol.TypeConnectionError:
		t.handleConnectionError(msg)

	case protocol.TypeComplete:
		t.handleComplete(msg)

	case protocol.TypeError:
		t.handleSubscriptionError(msg)

	default:
		t.logger.Debug("ignoring frame", "type", msg.Type, "id", msg.ID)
	}
}

// handleAck replays every live start frame in subscribe order.
func (t *Transport) handleAck() {
	t.mu.Lock()
	t.state = StateReady
	t.stats.Acks++

	var sendErr error
	for _, id := range t.order {
		if err := t.conn.Send(t.handles[id].start); err != nil {
			sendErr = fmt.Errorf("resubscribe %s: %w", id, err)
			break
		}
	}
	replayed := len(t.order)
	t.armLocked()
	t.mu.Unlock()

	t.logger.Info("connection acknowledged", "subscriptions", replayed)
	if sendErr != nil {
		t.reportError(sendErr)
	}
}

// handleData routes a payload to its subscription.
func (t *Transport) handleData(msg protocol.Message) {
	t.mu.Lock()
	h, ok := t.handles[msg.ID]
	t.stats.DataFrames++
	// Data frames count as liveness too
	t.armLocked()
	t.mu.Unlock()

	if !ok {
		t.logger.Debug("data for unknown subscription", "id", msg.ID)
		return
	}

	switch {
	case h.onData != nil:
		h.onData(msg.Payload)
	case t.opts.onData != nil:
		t.opts.onData(msg.ID, msg.Payload)
	}
}

// handleConnectionError reports the error, then applies the policy.
func (t *Transport) handleConnectionError(msg protocol.Message) {
	t.mu.Lock()
	t.stats.ConnectionErrors++
	t.mu.Unlock()

	t.reportError(&ProtocolError{Kind: ErrConnection, Payload: msg.Payload})

	switch t.opts.connErrPolicy {
	case PolicyRefresh:
		t.mu.Lock()
		t.state = StateDisconnected
		t.disarmLocked()
		t.mu.Unlock()

		t.logger.Warn("connection error, refreshing connection")
		t.conn.Refresh()

	case PolicyDrop:
		t.mu.Lock()
		dropped := make([]*handle, 0, len(t.order))
		for _, id := range t.order {
			dropped = append(dropped, t.handles[id])
			if t.conn.IsOpen() {
				if err := t.conn.Send(protocol.StopFrame(id)); err != nil {
					t.logger.Debug("stop frame not sent", "id", id, "error", err)
				}
			}
		}
		t.handles = make(map[string]*handle)
		t.order = nil
		t.mu.Unlock()

		t.logger.Warn("connection error, dropped subscriptions", "count", len(dropped))
		for _, h := range dropped {
			if h.onError != nil {
				h.onError(&ProtocolError{Kind: ErrConnection, ID: h.id, Payload: msg.Payload})
			}
		}
	}
}

// handleComplete removes a subscription the server ended on its own.
func (t *Transport) handleComplete(msg protocol.Message) {
	t.mu.Lock()
	h, ok := t.handles[msg.ID]
	if ok {
		t.removeLocked(msg.ID)
	}
	t.mu.Unlock()

	if !ok {
		return
	}

	t.logger.Warn("server completed subscription without stop request", "id", msg.ID)
	if h.onError != nil {
		h.onError(&ProtocolError{Kind: ErrUnexpectedComplete, ID: msg.ID})
	}
}

// handleSubscriptionError forwards a per-subscription error. The subscription
// stays registered.
func (t *Transport) handleSubscriptionError(msg protocol.Message) {
	t.mu.Lock()
	h, ok := t.handles[msg.ID]
	t.mu.Unlock()

	if !ok {
		return
	}

	err := &ProtocolError{Kind: ErrSubscription, ID: msg.ID, Payload: msg.Payload}
	if h.onError == nil {
		t.logger.Warn("subscription error without handler", "id", msg.ID, "error", err)
		return
	}
	h.onError(err)
}

func (t *Transport) handleSocketError(err error) {
	t.reportError(err)
}

func (t *Transport) handleClose() {
	t.mu.Lock()
	t.state = StateDisconnected
	t.disarmLocked()
	t.mu.Unlock()

	t.logger.Debug("connection closed")
	if t.opts.onClosed != nil {
		t.opts.onClosed()
	}
}

// keepAliveExpired refreshes the connection unless the timer was superseded.
func (t *Transport) keepAliveExpired(gen uint64) {
	t.mu.Lock()
	if gen != t.watchGen || t.closed {
		t.mu.Unlock()
		return
	}
	t.watchdog = nil
	t.watchGen++
	t.state = StateDisconnected
	t.stats.KeepAliveTimeouts++
	t.mu.Unlock()

	t.logger.Warn("keep-alive timeout, refreshing connection", "timeout", t.opts.keepAliveTimeout)
	t.conn.Refresh()
}

// armLocked (re)starts the keep-alive watchdog. Must be called with mu held.
func (t *Transport) armLocked() {
	if t.closed {
		return
	}
	t.disarmLocked()

	gen := t.watchGen
	t.watchdog = time.AfterFunc(t.opts.keepAliveTimeout, func() {
		t.keepAliveExpired(gen)
	})
}

// disarmLocked stops the watchdog. Must be called with mu held.
func (t *Transport) disarmLocked() {
	t.watchGen++
	if t.watchdog != nil {
		t.watchdog.Stop()
		t.watchdog = nil
	}
}

// removeLocked deletes a handle. Must be called with mu held.
func (t *Transport) removeLocked(id string) {
	delete(t.handles, id)
	for i, v := range t.order {
		if v == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

func (t *Transport) reportError(err error) {
	t.opts.onError(err)
}
