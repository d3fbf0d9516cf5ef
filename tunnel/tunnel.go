// Package tunnel implements the per-robot TCP link: handshake, frame
// extraction, request/ack correlation and heartbeat.
package tunnel

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Comet-Robotics/chessbots-server-sub000/fleet"
	"github.com/Comet-Robotics/chessbots-server-sub000/protocol"
)

type State int32

const (
	Unregistered State = iota
	Handshaking
	Connected
	Disconnected
)

func (s State) String() string {
	switch s {
	case Unregistered:
		return "unregistered"
	case Handshaking:
		return "handshaking"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

var (
	ErrTunnelClosed = errors.New("tunnel closed")
	ErrNotConnected = errors.New("tunnel not connected")
	ErrAckTimeout   = errors.New("ack timeout")
)

// ActionError is a robot-reported ACTION_FAIL.
type ActionError struct {
	Type   protocol.PacketType
	Reason string
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Type, e.Reason)
}

// HeartbeatConfig controls liveness probing.
type HeartbeatConfig struct {
	Interval    time.Duration
	Timeout     time.Duration
	MaxFailures int
}

// Options configures a BotTunnel.
type Options struct {
	Heartbeat     HeartbeatConfig
	AckTimeout    time.Duration // 0 = protocol.AckTimeoutFor per packet type
	WriteTimeout  time.Duration
	MaxFrameBytes int

	// OnHello binds the tunnel after CLIENT_HELLO. Returning an error closes it.
	OnHello func(t *BotTunnel, hello *protocol.ClientHello) error
	// OnDisconnect fires once when the link fails.
	OnDisconnect func(t *BotTunnel, reason string)
	LogFunc      func(format string, args ...any)
}

type result struct {
	reply protocol.Packet
	err   error
}

type pendingReq struct {
	typ protocol.PacketType
	ch  chan result
}

// BotTunnel is one robot connection.
type BotTunnel struct {
	conn   net.Conn
	opts   Options
	frames *protocol.FrameBuffer
	ingest *protocol.Ingestor
	state  atomic.Int32

	mu      sync.Mutex
	robotID string
	mac     string
	pending map[string]pendingReq

	writeMu  sync.Mutex
	pong     chan struct{}
	done     chan struct{}
	downOnce sync.Once
	wg       sync.WaitGroup
}

// New wraps conn. Call Run to start reading.
func New(conn net.Conn, opts Options) *BotTunnel {
	if opts.LogFunc == nil {
		opts.LogFunc = log.Printf
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	t := &BotTunnel{
		conn:    conn,
		opts:    opts,
		frames:  protocol.NewFrameBuffer(opts.MaxFrameBytes),
		pending: make(map[string]pendingReq),
		pong:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	t.ingest = protocol.NewIngestor(inbound{t}, conn.RemoteAddr().String())
	t.ingest.LogFunc = opts.LogFunc
	return t
}

func (t *BotTunnel) State() State { return State(t.state.Load()) }

// Connected reports whether the handshake completed and the link is up.
func (t *BotTunnel) Connected() bool { return t.State() == Connected }

func (t *BotTunnel) RobotID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.robotID
}

func (t *BotTunnel) MAC() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mac
}

// Done is closed once the tunnel is down.
func (t *BotTunnel) Done() <-chan struct{} { return t.done }

// Run reads from the socket until it closes. It blocks.
func (t *BotTunnel) Run() {
	buf := make([]byte, 1024)
	for {
		n, err := t.conn.Read(buf)
		if n > 0 {
			frames, dropped := t.frames.Feed(buf[:n])
			if dropped > 0 {
				t.logf("tunnel: %s: discarded %d bytes without delimiter", t.label(), dropped)
			}
			for _, f := range frames {
				t.ingest.HandleFrame(f)
			}
		}
		if err != nil {
			t.down("read: "+err.Error(), true)
			return
		}
	}
}

// Bind claims the tunnel for robotID and marks it Connected, so requests
// can be sent as soon as the robot sees SERVER_HELLO.
func (t *BotTunnel) Bind(robotID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.state.CompareAndSwap(int32(Handshaking), int32(Connected)) {
		return fmt.Errorf("bind %s in state %s", robotID, t.State())
	}
	t.robotID = robotID
	return nil
}

// Greet writes SERVER_HELLO to a bound tunnel and starts the heartbeat.
func (t *BotTunnel) Greet(config map[string]float64) error {
	if st := t.State(); st != Connected {
		return fmt.Errorf("greet in state %s: %w", st, ErrNotConnected)
	}
	if config == nil {
		config = map[string]float64{}
	}
	if err := t.write(&protocol.ServerHello{Protocol: protocol.Version, Config: config}, protocol.NewPacketID()); err != nil {
		return err
	}
	if t.opts.Heartbeat.Interval > 0 {
		t.wg.Add(1)
		go t.heartbeat()
	}
	return nil
}

// Send writes p with a fresh packetId. Requests that expect a reply block
// until the robot answers, ctx ends, the ack deadline passes or the tunnel
// goes down.
func (t *BotTunnel) Send(ctx context.Context, p protocol.Packet) (protocol.Packet, error) {
	if !t.Connected() {
		return nil, ErrNotConnected
	}
	id := protocol.NewPacketID()
	if !protocol.ExpectsReply(p.PacketType()) {
		return nil, t.write(p, id)
	}

	ch := make(chan result, 1)
	t.mu.Lock()
	t.pending[id] = pendingReq{typ: p.PacketType(), ch: ch}
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
	}()

	if err := t.write(p, id); err != nil {
		return nil, err
	}

	timeout := t.opts.AckTimeout
	if timeout <= 0 {
		timeout = protocol.AckTimeoutFor(p.PacketType())
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		return r.reply, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("%s after %v: %w", p.PacketType(), timeout, ErrAckTimeout)
	case <-t.done:
		return nil, ErrTunnelClosed
	}
}

// Close shuts the tunnel down without reporting a link failure.
func (t *BotTunnel) Close() error {
	t.down("closed", false)
	t.wg.Wait()
	return nil
}

func (t *BotTunnel) write(p protocol.Packet, id string) error {
	data, err := protocol.Encode(p, id)
	if err != nil {
		return err
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	select {
	case <-t.done:
		return ErrTunnelClosed
	default:
	}
	t.conn.SetWriteDeadline(time.Now().Add(t.opts.WriteTimeout))
	if _, err := t.conn.Write(data); err != nil {
		go t.down("write: "+err.Error(), true)
		return fmt.Errorf("%w: %v", ErrTunnelClosed, err)
	}
	return nil
}

// down moves to Disconnected exactly once.
func (t *BotTunnel) down(reason string, notify bool) {
	t.downOnce.Do(func() {
		prev := State(t.state.Swap(int32(Disconnected)))
		close(t.done)
		t.conn.Close()
		t.logf("tunnel: %s: disconnected (%s)", t.label(), reason)
		if notify && prev == Connected && t.opts.OnDisconnect != nil {
			t.opts.OnDisconnect(t, reason)
		}
	})
}

func (t *BotTunnel) resolve(id string, want protocol.PacketType, r result) {
	t.mu.Lock()
	req, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	t.mu.Unlock()
	if !ok {
		t.logf("tunnel: %s: %s for unknown packet %s", t.label(), want, id)
		return
	}
	if ae, isFail := r.err.(*ActionError); isFail {
		ae.Type = req.typ
	}
	req.ch <- r
}

func (t *BotTunnel) label() string {
	if id := t.RobotID(); id != "" {
		return id
	}
	return t.conn.RemoteAddr().String()
}

func (t *BotTunnel) logf(format string, args ...any) {
	if t.opts.LogFunc != nil {
		t.opts.LogFunc(format, args...)
	}
}

// inbound adapts the tunnel to protocol.Handler without exporting the callbacks.
type inbound struct{ t *BotTunnel }

func (in inbound) HandleClientHello(_ string, p *protocol.ClientHello) {
	t := in.t
	if !t.state.CompareAndSwap(int32(Unregistered), int32(Handshaking)) {
		t.logf("tunnel: %s: ignoring CLIENT_HELLO in state %s", t.label(), t.State())
		return
	}
	t.mu.Lock()
	t.mac = p.MACAddress
	t.mu.Unlock()
	if t.opts.OnHello == nil {
		return
	}
	if err := t.opts.OnHello(t, p); err != nil {
		t.logf("tunnel: %s: handshake rejected: %v", t.label(), err)
		t.down("handshake rejected", true)
	}
}

func (in inbound) HandlePingResponse(string, *protocol.PingResponse) {
	select {
	case in.t.pong <- struct{}{}:
	default:
	}
}

func (in inbound) HandleQueryResponse(id string, p *protocol.QueryResponse) {
	in.t.resolve(id, protocol.TypeQueryResponse, result{reply: p})
}

func (in inbound) HandleActionSuccess(id string, p *protocol.ActionSuccess) {
	in.t.resolve(id, protocol.TypeActionSuccess, result{reply: p})
}

func (in inbound) HandleActionFail(id string, p *protocol.ActionFail) {
	in.t.resolve(id, protocol.TypeActionFail, result{err: &ActionError{Reason: p.Reason}})
}

var (
	_ protocol.Handler = inbound{}
	_ fleet.Tunnel     = (*BotTunnel)(nil)
)
