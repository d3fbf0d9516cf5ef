package tunnel

import (
	"errors"
	"fmt"
	"log"
	"net"
	"sort"
	"sync"

	"github.com/Comet-Robotics/chessbots-server-sub000/config"
	"github.com/Comet-Robotics/chessbots-server-sub000/fleet"
	"github.com/Comet-Robotics/chessbots-server-sub000/protocol"
)

// Emitter receives connection lifecycle events.
type Emitter interface {
	EmitRobotConnected(robotID, mac string)
	EmitRobotDisconnected(robotID, reason string)
	EmitRobotReconnected(robotID string, remaining int)
}

// ErrUnknownMAC rejects a handshake from a robot missing in the robot table.
var ErrUnknownMAC = errors.New("unknown mac address")

// Server accepts robot connections and binds each to its registry entry.
type Server struct {
	cfg     *config.Config
	reg     *fleet.Registry
	emitter Emitter
	opts    Options

	mu           sync.Mutex
	ln           net.Listener
	conns        map[*BotTunnel]struct{}
	tunnels      map[string]*BotTunnel
	disconnected map[string]bool

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}

	LogFunc func(format string, args ...any)
}

// NewServer builds a socket manager. opts supplies heartbeat and framing
// settings; its callbacks are replaced by the server's own.
func NewServer(cfg *config.Config, reg *fleet.Registry, emitter Emitter, opts Options) *Server {
	return &Server{
		cfg:          cfg,
		reg:          reg,
		emitter:      emitter,
		opts:         opts,
		conns:        make(map[*BotTunnel]struct{}),
		tunnels:      make(map[string]*BotTunnel),
		disconnected: make(map[string]bool),
		stopCh:       make(chan struct{}),
		LogFunc:      log.Printf,
	}
}

// OptionsFromConfig maps the server config section onto tunnel options.
func OptionsFromConfig(c config.ServerConfig) Options {
	return Options{
		Heartbeat: HeartbeatConfig{
			Interval:    c.HeartbeatInterval,
			Timeout:     c.HeartbeatTimeout,
			MaxFailures: c.HeartbeatMaxFailures,
		},
		AckTimeout:    c.AckTimeout,
		MaxFrameBytes: c.MaxFrameBytes,
	}
}

// Listen opens addr and serves in the background.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.logf("tunnel: listening on %s", ln.Addr())
	s.wg.Add(1)
	go s.acceptLoop(ln)
	return nil
}

// Addr returns the listen address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logf("tunnel: accept: %v", err)
			continue
		}
		s.HandleConn(conn)
	}
}

// HandleConn runs a tunnel over conn in the background.
func (s *Server) HandleConn(conn net.Conn) *BotTunnel {
	opts := s.opts
	opts.LogFunc = s.LogFunc
	opts.OnHello = s.handleHello
	opts.OnDisconnect = s.handleDisconnect
	t := New(conn, opts)
	s.mu.Lock()
	s.conns[t] = struct{}{}
	s.mu.Unlock()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t.Run()
		s.mu.Lock()
		delete(s.conns, t)
		s.mu.Unlock()
	}()
	return t
}

// handleHello binds and attaches the robot before SERVER_HELLO goes out.
func (s *Server) handleHello(t *BotTunnel, hello *protocol.ClientHello) error {
	rc, ok := s.cfg.RobotByMAC(hello.MACAddress)
	if !ok {
		return fmt.Errorf("%s: %w", hello.MACAddress, ErrUnknownMAC)
	}
	if err := t.Bind(rc.ID); err != nil {
		return err
	}
	if err := s.reg.Attach(rc.ID, t); err != nil {
		return err
	}

	s.mu.Lock()
	old := s.tunnels[rc.ID]
	s.tunnels[rc.ID] = t
	wasDisconnected := s.disconnected[rc.ID]
	delete(s.disconnected, rc.ID)
	remaining := len(s.disconnected)
	s.mu.Unlock()

	// A robot that rebooted before its old link timed out.
	if old != nil && old != t {
		go old.Close()
	}

	s.logf("tunnel: %s bound to %s (%s)", hello.MACAddress, rc.ID, t.conn.RemoteAddr())
	if s.emitter != nil {
		if wasDisconnected {
			s.emitter.EmitRobotReconnected(rc.ID, remaining)
		} else {
			s.emitter.EmitRobotConnected(rc.ID, hello.MACAddress)
		}
	}
	// A failed write takes the tunnel down through handleDisconnect.
	return t.Greet(s.cfg.HelloConfig(hello.MACAddress))
}

func (s *Server) handleDisconnect(t *BotTunnel, reason string) {
	id := t.RobotID()
	select {
	case <-s.stopCh:
		return
	default:
	}

	s.mu.Lock()
	if s.tunnels[id] != t {
		// Superseded by a newer connection.
		s.mu.Unlock()
		return
	}
	delete(s.tunnels, id)
	s.disconnected[id] = true
	s.mu.Unlock()

	if err := s.reg.Detach(id); err != nil {
		s.logf("tunnel: detach %s: %v", id, err)
	}
	if s.emitter != nil {
		s.emitter.EmitRobotDisconnected(id, reason)
	}
}

// Disconnected lists robots whose link failed and have not reconnected.
func (s *Server) Disconnected() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.disconnected))
	for id := range s.disconnected {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// States reports the tunnel state of every bound robot.
func (s *Server) States() map[string]State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]State, len(s.tunnels))
	for id, t := range s.tunnels {
		out[id] = t.State()
	}
	return out
}

// Stop closes the listener and every open connection.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.mu.Lock()
		if s.ln != nil {
			s.ln.Close()
		}
		tunnels := make([]*BotTunnel, 0, len(s.conns))
		for t := range s.conns {
			tunnels = append(tunnels, t)
		}
		s.mu.Unlock()
		for _, t := range tunnels {
			t.Close()
		}
	})
	s.wg.Wait()
}

func (s *Server) logf(format string, args ...any) {
	if s.LogFunc != nil {
		s.LogFunc(format, args...)
	}
}
