// Package hubsim is an in-process scripted hub used by the end-to-end
// session tests and the simulate command. It speaks just enough of the
// wire protocol to exercise a real client: it validates logins, serves a
// configurable device tree, answers get-config probes, acks commands, and
// pushes scripted state changes.
package hubsim

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gatelink-dev/gatelink/pkg/protocol"
)

// readTimeout bounds a single simulator-side read. Connections are torn
// down by Close, so it only needs to be longer than any test scenario.
const readTimeout = 5 * time.Minute

// Config describes one scripted hub. The zero value accepts every login
// and serves an empty device tree.
type Config struct {
	// NodeID and HubID are returned in every login ack.
	// Both default to the values a factory-fresh hub reports.
	NodeID string
	HubID  string

	// UserID and Password, when non-empty, are checked against login
	// packets; mismatches are rejected.
	UserID   string
	Password string

	// RejectLogin rejects every login regardless of credentials.
	RejectLogin bool

	// CloseOnConnect accepts and immediately closes each connection, so
	// the client's first read sees the peer hang up.
	CloseOnConnect bool

	// IgnoreProbes answers only the first get-config request on each
	// connection. Later ones, the client's heartbeat probes, are
	// dropped, so the connection looks dead to an idle client.
	IgnoreProbes bool

	// Tree is the ret object served to get-config requests. Build it
	// with TreeOf; SetTree replaces it at runtime.
	Tree protocol.Value

	// Logger receives simulator diagnostics. Default: slog.Default()
	Logger *slog.Logger
}

// Simulator is one scripted hub listening on a TCP port.
type Simulator struct {
	cfg    Config
	ln     net.Listener
	logger *slog.Logger
	seq    atomic.Int64

	mu      sync.Mutex
	tree    protocol.Value
	conns   map[*simConn]struct{}
	closed  bool
	serveWG sync.WaitGroup

	logins  atomic.Int64
	configs atomic.Int64
	cmds    atomic.Int64
}

// simConn serializes writes to one accepted connection.
type simConn struct {
	c  net.Conn
	mu sync.Mutex

	// configServed flips after the first get-config reply. Only touched
	// from the connection's serve goroutine.
	configServed bool
}

func (sc *simConn) send(frame []byte) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.c.SetWriteDeadline(time.Now().Add(10 * time.Second))
	_, err := sc.c.Write(frame)
	return err
}

// Start listens on addr and begins accepting connections. Tests pass
// "127.0.0.1:0" and read the bound address back with Addr.
func Start(addr string, cfg Config) (*Simulator, error) {
	if cfg.NodeID == "" {
		cfg.NodeID = "N1"
	}
	if cfg.HubID == "" {
		cfg.HubID = "H1"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Tree.Kind != protocol.KindMap {
		cfg.Tree = protocol.MapOf()
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("hubsim: listen %s: %w", addr, err)
	}
	s := &Simulator{
		cfg:    cfg,
		ln:     ln,
		logger: cfg.Logger.With("hubsim", ln.Addr().String()),
		tree:   cfg.Tree,
		conns:  make(map[*simConn]struct{}),
	}
	s.serveWG.Add(1)
	go s.acceptLoop()
	return s, nil
}

// Addr returns the listener's address as host:port.
func (s *Simulator) Addr() string {
	return s.ln.Addr().String()
}

// HubID returns the hub identifier stamped into login acks.
func (s *Simulator) HubID() string { return s.cfg.HubID }

// Logins returns the number of login packets seen.
func (s *Simulator) Logins() int64 { return s.logins.Load() }

// ConfigRequests returns the number of get-config packets seen, probes
// included.
func (s *Simulator) ConfigRequests() int64 { return s.configs.Load() }

// Commands returns the number of command packets seen.
func (s *Simulator) Commands() int64 { return s.cmds.Load() }

// SetTree replaces the device tree served to get-config requests.
func (s *Simulator) SetTree(tree protocol.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree = tree
}

// Device describes one simulated device for TreeOf.
type Device struct {
	ID       string
	Name     string
	Type     int64
	Channels map[string]map[string]any
}

// TreeOf builds a get-config ret object from device descriptions.
func TreeOf(devices ...Device) protocol.Value {
	entries := make([]protocol.Entry, 0, len(devices))
	for _, d := range devices {
		chd := make([]protocol.Entry, 0, len(d.Channels))
		for key, fields := range d.Channels {
			chd = append(chd, protocol.Field(key, protocol.FromNative(fields)))
		}
		entries = append(entries, protocol.Field(d.ID, protocol.MapOf(
			protocol.Field("devid", protocol.Text(d.ID)),
			protocol.Field("name", protocol.Text(d.Name)),
			protocol.Field("type", protocol.Int(d.Type)),
			protocol.Field("_chd", protocol.MapOf(chd...)),
		)))
	}
	return protocol.MapOf(entries...)
}

// PushUpdate broadcasts a state-change delta for one device channel to
// every live connection.
func (s *Simulator) PushUpdate(devID, channel string, fields map[string]any) error {
	path := fmt.Sprintf("%s/%s/%s", s.cfg.HubID, devID, channel)
	body := protocol.MapOf(
		protocol.Field("_schg", protocol.MapOf(
			protocol.Field(path, protocol.FromNative(fields)),
		)),
	)
	return s.broadcast(body)
}

// PushDelete broadcasts a device-deletion notification.
func (s *Simulator) PushDelete(devID string) error {
	path := fmt.Sprintf("%s/%s", s.cfg.HubID, devID)
	body := protocol.MapOf(
		protocol.Field("_sdel", protocol.ListOf(protocol.Text(path))),
	)
	return s.broadcast(body)
}

// DropConnections closes every live connection while keeping the
// listener up, so clients see a mid-stream disconnect and can come back.
func (s *Simulator) DropConnections() {
	s.mu.Lock()
	conns := make([]*simConn, 0, len(s.conns))
	for sc := range s.conns {
		conns = append(conns, sc)
	}
	s.mu.Unlock()

	for _, sc := range conns {
		sc.c.Close()
	}
}

// broadcast frames a body and writes it to every connection.
func (s *Simulator) broadcast(body protocol.Value) error {
	frame, err := s.frame(body)
	if err != nil {
		return err
	}
	s.mu.Lock()
	conns := make([]*simConn, 0, len(s.conns))
	for sc := range s.conns {
		conns = append(conns, sc)
	}
	s.mu.Unlock()

	var firstErr error
	for _, sc := range conns {
		if err := sc.send(frame); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// frame wraps a body in the [metadata, body] packet shape.
func (s *Simulator) frame(body protocol.Value) ([]byte, error) {
	meta := protocol.MapOf(protocol.Field("sn", protocol.Int(s.seq.Add(1))))
	return protocol.EncodeFrame([]protocol.Value{meta, body})
}

// Close stops the listener and tears down every connection, then waits
// for the serving goroutines to exit.
func (s *Simulator) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conns := make([]*simConn, 0, len(s.conns))
	for sc := range s.conns {
		conns = append(conns, sc)
	}
	s.mu.Unlock()

	err := s.ln.Close()
	for _, sc := range conns {
		sc.c.Close()
	}
	s.serveWG.Wait()
	return err
}

func (s *Simulator) acceptLoop() {
	defer s.serveWG.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		if s.cfg.CloseOnConnect {
			conn.Close()
			continue
		}

		sc := &simConn{c: conn}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[sc] = struct{}{}
		s.serveWG.Add(1)
		s.mu.Unlock()

		go s.serve(sc)
	}
}

// serve runs one connection's read loop until the peer or Close ends it.
func (s *Simulator) serve(sc *simConn) {
	defer s.serveWG.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, sc)
		s.mu.Unlock()
		sc.c.Close()
	}()

	var rbuf []byte
	chunk := make([]byte, 4096)
	for {
		sc.c.SetReadDeadline(time.Now().Add(readTimeout))
		n, err := sc.c.Read(chunk)
		if n > 0 {
			rbuf = append(rbuf, chunk[:n]...)
			rbuf = s.drain(sc, rbuf)
		}
		if err != nil {
			return
		}
	}
}

// drain handles every complete frame in buf and returns the remainder.
func (s *Simulator) drain(sc *simConn, buf []byte) []byte {
	for len(buf) > 0 {
		consumed, values, err := protocol.DecodeFrame(buf)
		if errors.Is(err, protocol.ErrBufferTooShort) {
			return buf
		}
		if err != nil {
			s.logger.Warn("undecodable client frame", "error", err)
			return buf[:0]
		}
		buf = buf[consumed:]
		s.handle(sc, values)
	}
	return buf
}

// handle answers one decoded client packet.
func (s *Simulator) handle(sc *simConn, values []protocol.Value) {
	var act string
	var args protocol.Value
	for i := range values {
		v := protocol.Normalize(values[i])
		if a, ok := v.Lookup("act"); ok {
			act = a.TextOr("")
			args, _ = v.Lookup("args")
		}
	}

	switch act {
	case "Login":
		s.logins.Add(1)
		s.reply(sc, s.loginAck(args))
	case "enum:91": // get-config arrives as the interned key
		s.configs.Add(1)
		if s.cfg.IgnoreProbes && sc.configServed {
			s.logger.Debug("dropping get-config probe")
			return
		}
		sc.configServed = true
		s.mu.Lock()
		tree := s.tree
		s.mu.Unlock()
		s.reply(sc, protocol.MapOf(protocol.Field("ret", tree)))
	case "":
		s.logger.Debug("packet without act field")
	default:
		s.cmds.Add(1)
		s.reply(sc, protocol.MapOf(
			protocol.Field("act", protocol.Text(act)),
			protocol.Field("ret", protocol.Int(0)),
		))
	}
}

// loginAck builds the login response, rejecting bad credentials with a
// null ret.
func (s *Simulator) loginAck(args protocol.Value) protocol.Value {
	ok := !s.cfg.RejectLogin
	if ok && s.cfg.UserID != "" {
		uid, _ := args.Lookup("uid")
		pwd, _ := args.Lookup("pwd")
		ok = uid.TextOr("") == s.cfg.UserID && pwd.TextOr("") == s.cfg.Password
	}
	if !ok {
		return protocol.MapOf(protocol.Field("ret", protocol.Null()))
	}
	return protocol.MapOf(
		protocol.Field("ret", protocol.MapOf(
			protocol.Field("node", protocol.Text(s.cfg.NodeID)),
			protocol.Field("agt", protocol.Text(s.cfg.HubID)),
		)),
	)
}

func (s *Simulator) reply(sc *simConn, body protocol.Value) {
	frame, err := s.frame(body)
	if err != nil {
		s.logger.Error("encode reply", "error", err)
		return
	}
	if err := sc.send(frame); err != nil {
		s.logger.Debug("reply write failed", "error", err)
	}
}
