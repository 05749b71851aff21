package hub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gatelink-dev/gatelink/pkg/protocol"
)

// State identifies where a session is in its connection lifecycle.
type State int32

const (
	// StateDisconnected is the initial and terminal state.
	StateDisconnected State = iota

	// StateConnecting means the TCP dial is in flight.
	StateConnecting

	// StateAwaitingLoginAck means the login packet is sent and the session
	// is waiting for the hub's response.
	StateAwaitingLoginAck

	// StateLoadingConfig means login succeeded and the full device tree
	// request is in flight.
	StateLoadingConfig

	// StateStreaming means the device tree is installed and the session is
	// consuming push notifications.
	StateStreaming
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingLoginAck:
		return "awaiting-login-ack"
	case StateLoadingConfig:
		return "loading-config"
	case StateStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// Session is one connection to one hub. Run drives the lifecycle
// Disconnected, Connecting, AwaitingLoginAck, LoadingConfig, Streaming,
// reconnecting on the configured backoff schedule after every failure
// until Stop is called or the context is canceled.
//
// The Run goroutine owns the socket and is the only writer to the device
// tree; everything handed out crosses through deep copies or the delta
// handler. Command methods are safe to call from other goroutines and
// share the socket through a write lock.
type Session struct {
	// Configuration
	cfg     *SessionConfig
	handler DeltaHandler

	// Connection, swapped by the run loop and closed by Stop
	connMu sync.Mutex
	conn   net.Conn

	// Identity and device tree, written during the load phase
	mu     sync.RWMutex
	nodeID string
	hubID  string
	tree   DeviceTree

	state atomic.Int32

	// Stream reassembly, run loop only
	rbuf  []byte
	chunk []byte

	// Outbound packets
	factory *protocol.PacketFactory
	writeMu sync.Mutex // Serializes frame writes

	// Lifecycle
	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	stopOnce  sync.Once
	running   atomic.Bool

	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *MetricsCollector
}

// NewSession creates a session for the hub named by cfg. The handler
// receives every delta the stream produces; nil is allowed when only the
// tree snapshots are of interest. The config is cloned, so later edits to
// it do not affect the session.
func NewSession(cfg *SessionConfig, handler DeltaHandler) (*Session, error) {
	cfg = cfg.Clone()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if handler == nil {
		handler = func(Delta) {}
	}
	return &Session{
		cfg:     cfg,
		handler: handler,
		tree:    make(DeviceTree),
		factory: protocol.NewPacketFactory(),
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
		logger:  cfg.Logger.With("hub_addr", cfg.Address),
		tracer:  otel.Tracer("github.com/gatelink-dev/gatelink/pkg/hub"),
		metrics: NewMetricsCollector(),
	}, nil
}

// Run connects to the hub and processes its stream until Stop is called
// or ctx is canceled, whichever comes first. Every attempt that fails is
// retried after the backoff delay; the device tree from a previous
// attempt stays readable until a new load phase replaces it. Run returns
// nil on Stop and ctx.Err() on cancellation.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)
	defer s.setState(StateDisconnected)

	// Make cancellation observable at every blocking read and write by
	// tearing the socket down when the context ends.
	cancelWatch := context.AfterFunc(ctx, s.closeConn)
	defer cancelWatch()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.ReconnectDelay
	bo.Multiplier = s.cfg.ReconnectMultiplier
	bo.MaxInterval = s.cfg.ReconnectMaxDelay
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0

	for {
		err := s.attempt(ctx)
		streamed := s.State() == StateStreaming
		s.closeConn()
		s.setState(StateDisconnected)

		if s.stopped() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if streamed {
			// The attempt made it to streaming, so the hub is reachable;
			// start the retry schedule over.
			bo.Reset()
		}
		delay := bo.NextBackOff()

		he := classifyError(s.HubID(), "session attempt", err)
		if !he.Retryable() {
			return he
		}
		if IsAuthError(he) {
			s.logger.Error("hub rejected login, retrying anyway",
				"error", he.Err,
				"retry_in", delay)
		} else {
			s.logger.Error("hub session attempt failed",
				"error", he.Err,
				"type", he.Type.String(),
				"retry_in", delay)
		}
		s.metrics.RecordReconnect()

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		}
	}
}

// attempt runs one full connection lifecycle: dial, login, load, stream.
// It returns when the connection fails, never nil.
func (s *Session) attempt(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "hub.session.attempt",
		trace.WithAttributes(attribute.String("hub.addr", s.cfg.Address)))
	defer span.End()

	fail := func(err error) error {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	start := time.Now()
	s.metrics.RecordConnectAttempt()

	s.setState(StateConnecting)
	if err := s.dial(ctx); err != nil {
		return fail(fmt.Errorf("dial %s: %w", s.cfg.Address, err))
	}

	nodeID, hubID, err := s.login()
	if err != nil {
		return fail(err)
	}
	span.SetAttributes(
		attribute.String("hub.id", hubID),
		attribute.String("hub.node", nodeID))

	if err := s.loadConfig(nodeID, hubID); err != nil {
		return fail(err)
	}

	s.metrics.RecordConnect()
	s.metrics.RecordConnectLatency(time.Since(start).Microseconds())
	s.setState(StateStreaming)
	s.signalReady()

	return fail(s.stream(ctx))
}

// dial opens the TCP connection.
func (s *Session) dial(ctx context.Context) error {
	d := net.Dialer{Timeout: s.cfg.ConnectTimeout}
	conn, err := d.DialContext(ctx, "tcp", s.cfg.Address)
	if err != nil {
		return err
	}

	s.connMu.Lock()
	if s.stopped() {
		s.connMu.Unlock()
		conn.Close()
		return ErrSessionStopped
	}
	s.conn = conn
	s.connMu.Unlock()

	s.rbuf = s.rbuf[:0]
	s.logger.Debug("connected to hub")
	return nil
}

// login sends the credentials and waits for the ack. A response without a
// ret object is a rejection; one without a node identifier is a hub bug.
func (s *Session) login() (nodeID, hubID string, err error) {
	s.setState(StateAwaitingLoginAck)

	pkt, err := s.factory.Login(s.cfg.UserID, s.cfg.Password)
	if err != nil {
		return "", "", fmt.Errorf("build login: %w", err)
	}
	if err := s.send(pkt); err != nil {
		return "", "", fmt.Errorf("send login: %w", err)
	}

	values, err := s.readFrame(s.cfg.ReadTimeout)
	if err != nil {
		return "", "", fmt.Errorf("read login ack: %w", err)
	}

	ret, ok := findField(values, "ret")
	if !ok || ret.Kind == protocol.KindNull {
		s.metrics.RecordLoginFailure()
		return "", "", ErrAuthRejected
	}
	nodeID = fieldText(ret, "node")
	if nodeID == "" {
		return "", "", NewProtocolShapeError("login", "ack missing node identifier")
	}
	hubID = fieldText(ret, "agt")
	if hubID == "" {
		hubID = nodeID
	}

	s.logger.Info("logged in", "node", nodeID, "hub", hubID)
	return nodeID, hubID, nil
}

// loadConfig requests the full device tree and installs it, replacing
// whatever tree an earlier connection left behind.
func (s *Session) loadConfig(nodeID, hubID string) error {
	s.setState(StateLoadingConfig)

	pkt, err := s.factory.GetConfig(nodeID)
	if err != nil {
		return fmt.Errorf("build get-config: %w", err)
	}
	if err := s.send(pkt); err != nil {
		return fmt.Errorf("send get-config: %w", err)
	}

	values, err := s.readFrame(s.cfg.ReadTimeout)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	ret, ok := findField(values, "ret")
	if !ok {
		return NewProtocolShapeError("load config", "response missing ret object")
	}
	tree := treeFromConfig(hubID, ret)

	s.mu.Lock()
	s.nodeID = nodeID
	s.hubID = hubID
	s.tree = tree
	s.mu.Unlock()

	s.logger.Info("device tree loaded",
		"devices", len(tree),
		"channels", tree.ChannelCount())
	return nil
}

// stream consumes push notifications until the connection fails. An idle
// read sends one get-config probe; a second consecutive idle period, or a
// probe that cannot be sent, gives up on the socket.
func (s *Session) stream(ctx context.Context) error {
	idleStrikes := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return ErrSessionStopped
		default:
		}

		values, err := s.readFrame(s.cfg.IdleTimeout)
		switch {
		case err == nil:
			idleStrikes = 0
			s.dispatch(values)
		case isTimeout(err):
			idleStrikes++
			if idleStrikes > 1 {
				return ErrIdleExpired
			}
			if err := s.heartbeat(); err != nil {
				return fmt.Errorf("heartbeat: %w", err)
			}
		default:
			return err
		}
	}
}

// dispatch routes one decoded frame's values: delta notifications mutate
// the tree and reach the handler, everything else is packet metadata or a
// command ack and only shows up in debug logs.
func (s *Session) dispatch(values []protocol.Value) {
	for _, v := range values {
		if deltas := parseDeltas(v); len(deltas) > 0 {
			s.applyDeltas(deltas)
			continue
		}
		if v.Kind != protocol.KindMap {
			continue
		}
		if _, ok := v.Lookup("sn"); ok {
			continue
		}
		if ret, ok := v.Lookup("ret"); ok {
			if ret.Kind == protocol.KindMap {
				// A config response mid-stream is the answer to a
				// heartbeat probe; it carries the full tree, so take the
				// chance to refresh hub-side edits we never saw deltas
				// for.
				s.refreshTree(ret)
			} else {
				s.logger.Debug("command ack", "ret", ret.String())
			}
			continue
		}
		s.logger.Debug("ignoring stream value", "value", v.String())
	}
}

// applyDeltas merges updates into the tree and forwards them. The handler
// runs on the stream goroutine, between reads.
func (s *Session) applyDeltas(deltas []Delta) {
	for _, d := range deltas {
		switch d := d.(type) {
		case ChannelUpdate:
			s.mu.Lock()
			merged := s.tree.ApplyUpdate(d)
			s.mu.Unlock()
			s.metrics.RecordDeltaApplied()
			s.logger.Debug("channel update",
				"device", merged.DeviceID,
				"channel", merged.Channel)
			s.handler(merged)
		case DeviceDeleted:
			s.mu.Lock()
			existed := s.tree.Delete(d.DeviceID)
			s.mu.Unlock()
			s.metrics.RecordReload()
			s.logger.Info("device removed, reload required",
				"device", d.DeviceID,
				"known", existed)
			s.handler(d)
		}
	}
}

// refreshTree replaces the device tree from a config response that
// arrived during streaming.
func (s *Session) refreshTree(ret protocol.Value) {
	tree := treeFromConfig(s.HubID(), ret)
	s.mu.Lock()
	s.tree = tree
	s.mu.Unlock()
	s.logger.Debug("device tree refreshed",
		"devices", len(tree),
		"channels", tree.ChannelCount())
}

// heartbeat sends a get-config probe during an idle period. The response
// arrives in-stream and resets the idle counter like any other traffic.
func (s *Session) heartbeat() error {
	s.metrics.RecordHeartbeat()
	s.logger.Debug("idle timeout, sending heartbeat probe")

	pkt, err := s.factory.GetConfig(s.NodeID())
	if err != nil {
		return err
	}
	return s.send(pkt)
}

// readFrame reads from the socket until a frame decodes or the deadline
// passes. Each socket read appends to the reassembly buffer; a decoded
// frame consumes its prefix and leaves any following bytes for the next
// call.
func (s *Session) readFrame(timeout time.Duration) ([]protocol.Value, error) {
	conn := s.currentConn()
	if conn == nil {
		return nil, ErrNotConnected
	}
	if s.chunk == nil {
		s.chunk = make([]byte, s.cfg.ReadBufferSize)
	}

	for {
		values, err := s.decodeBuffered()
		if err != nil {
			return nil, err
		}
		if values != nil {
			return values, nil
		}

		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, err
		}
		n, err := conn.Read(s.chunk)
		if n > 0 {
			s.rbuf = append(s.rbuf, s.chunk[:n]...)
			continue
		}
		switch {
		case err == nil:
			continue
		case errors.Is(err, io.EOF):
			return nil, ErrPeerClosed
		case s.stopped():
			return nil, ErrSessionStopped
		default:
			return nil, err
		}
	}
}

// decodeBuffered decodes the next frame already sitting in the reassembly
// buffer. It returns (nil, nil) when the buffer holds no complete frame
// yet. Corrupt payloads clear the buffer so the stream can resynchronize
// on the next frame header; a failed decompression additionally fails the
// connection, since the stream position can no longer be trusted.
func (s *Session) decodeBuffered() ([]protocol.Value, error) {
	for len(s.rbuf) > 0 {
		consumed, values, err := protocol.DecodeFrame(s.rbuf)
		switch {
		case err == nil:
			s.metrics.RecordFrameReceived(consumed)
			s.tapFrame(false, s.rbuf[:consumed])
			s.rbuf = append(s.rbuf[:0], s.rbuf[consumed:]...)
			if len(values) == 0 {
				continue
			}
			for i := range values {
				values[i] = protocol.Normalize(values[i])
			}
			return values, nil
		case errors.Is(err, protocol.ErrBufferTooShort):
			return nil, nil
		case errors.Is(err, protocol.ErrDecompression):
			s.metrics.RecordDecodeError()
			s.rbuf = s.rbuf[:0]
			return nil, err
		default:
			s.metrics.RecordDecodeError()
			s.logger.Warn("dropping undecodable stream data",
				"error", err,
				"buffered", len(s.rbuf))
			s.rbuf = s.rbuf[:0]
			return nil, nil
		}
	}
	return nil, nil
}

// send writes one encoded frame, serialized against concurrent command
// writers and the heartbeat.
func (s *Session) send(frame []byte) error {
	conn := s.currentConn()
	if conn == nil {
		return ErrNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if _, err := conn.Write(frame); err != nil {
		return err
	}
	s.metrics.RecordFrameSent(len(frame))
	s.tapFrame(true, frame)
	return nil
}

// tapFrame hands a raw frame to every configured tap.
func (s *Session) tapFrame(outbound bool, frame []byte) {
	for _, tap := range s.cfg.Taps {
		tap.Frame(outbound, frame)
	}
}

// currentConn returns the live connection, nil between attempts.
func (s *Session) currentConn() net.Conn {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn
}

// closeConn closes the socket exactly once per connection, tolerating the
// peer having reset it already.
func (s *Session) closeConn() {
	s.connMu.Lock()
	conn := s.conn
	s.conn = nil
	s.connMu.Unlock()

	if conn == nil {
		return
	}
	if err := conn.Close(); err != nil && !isConnReset(err) {
		s.logger.Debug("error closing hub socket", "error", err)
	}
}

// Stop ends the session. It is safe to call from any goroutine and more
// than once. Run observes the closed socket at its current blocking point
// and returns nil.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.closeConn()
		s.logger.Info("session stop requested")
	})
}

// stopped reports whether Stop has been called.
func (s *Session) stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Ready returns a channel that is closed once the device tree has loaded
// for the first time.
func (s *Session) Ready() <-chan struct{} {
	return s.ready
}

func (s *Session) signalReady() {
	s.readyOnce.Do(func() {
		close(s.ready)
	})
}

// Devices returns a deep copy of the current device tree. Before the
// first load the tree is empty; after a disconnect it keeps the
// last-known state until a reconnect replaces it.
func (s *Session) Devices() DeviceTree {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Clone()
}

// HubID returns the hub identifier learned at login, empty before then.
func (s *Session) HubID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hubID
}

// NodeID returns the node identifier learned at login, empty before then.
func (s *Session) NodeID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodeID
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(next State) {
	prev := State(s.state.Swap(int32(next)))
	if prev != next {
		s.logger.Debug("session state",
			"from", prev.String(),
			"to", next.String())
	}
}

// Metrics returns a snapshot of the session's counters.
func (s *Session) Metrics() SessionMetrics {
	return s.metrics.Snapshot()
}

// SetSingleIO writes one value to one channel of one device.
func (s *Session) SetSingleIO(devID, key string, cmdType int64, val any) error {
	return s.command("set io", func(node string) ([]byte, error) {
		return s.factory.SetSingleIO(node, devID, key, cmdType, val)
	})
}

// SetMultiIO writes several channels of one device in a single packet.
func (s *Session) SetMultiIO(devID string, ios []protocol.IOValue) error {
	return s.command("set multi io", func(node string) ([]byte, error) {
		return s.factory.SetMultiIO(node, devID, ios)
	})
}

// RunScene triggers a scene by its identifier.
func (s *Session) RunScene(sceneID string) error {
	return s.command("run scene", func(node string) ([]byte, error) {
		return s.factory.RunScene(node, sceneID)
	})
}

// SendIRKeys sends an infrared remote command.
func (s *Session) SendIRKeys(cmd protocol.IRCommand) error {
	return s.command("send ir keys", func(node string) ([]byte, error) {
		return s.factory.SendIRKeys(node, cmd)
	})
}

// SetEEPROM writes a persistent device register.
func (s *Session) SetEEPROM(devID, key string, val any) error {
	return s.command("set eeprom", func(node string) ([]byte, error) {
		return s.factory.SetEEPROM(node, devID, key, val)
	})
}

// SetTimer schedules a channel write at the given unix time.
func (s *Session) SetTimer(devID, key string, at int64, val any) error {
	return s.command("set timer", func(node string) ([]byte, error) {
		return s.factory.SetTimer(node, devID, key, at, val)
	})
}

// command builds a packet against the logged-in node and sends it.
// Commands are rejected until the first login has established the node
// identifier.
func (s *Session) command(op string, build func(node string) ([]byte, error)) error {
	node := s.NodeID()
	if node == "" {
		return ErrNotReady
	}
	pkt, err := build(node)
	if err != nil {
		return classifyError(s.HubID(), op, err)
	}
	if err := s.send(pkt); err != nil {
		return classifyError(s.HubID(), op, err)
	}
	return nil
}

// findField scans a frame's values for the first map carrying the named
// field. Packets are [metadata, body] pairs, so acks normally match on
// the second value.
func findField(values []protocol.Value, name string) (protocol.Value, bool) {
	for _, v := range values {
		if v.Kind != protocol.KindMap {
			continue
		}
		if f, ok := v.Lookup(name); ok {
			return f, true
		}
	}
	return protocol.Value{}, false
}

// fieldText returns the named text field of a map value, or "".
func fieldText(v protocol.Value, name string) string {
	f, ok := v.Lookup(name)
	if !ok {
		return ""
	}
	return f.TextOr("")
}
