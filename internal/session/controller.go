package session

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cwsl/ubersdr-ingest/internal/wsframe"
)

// FrameHandler is invoked for each decoded control message and binary
// payload the socket receives. It is only called for frames of the live
// generation; the Controller has already discarded frames from stale
// generations before calling it.
type FrameHandler interface {
	OnBinaryFrame(payload []byte)
	OnControlMessage(msg wsframe.InboundMessage)
	// OnDisconnect is called when the live generation's read loop exits,
	// before the controller moves to Reconnecting. It is not called for a
	// read loop ended by Stop, which retires the generation first.
	OnDisconnect(err error)
}

// Controller drives one receiver's admission → connect → keepalive →
// reconnect lifecycle. It owns exactly one net.Conn / codec pair at a time.
type Controller struct {
	cfg    Config
	logger *log.Logger

	mu         sync.Mutex
	state      State
	generation uint32
	sessionID  string
	conn       net.Conn
	active     bool
	cancelRead context.CancelFunc
	readDone   chan struct{}

	// writeMu serializes frame writes on conn: the keepalive loop and
	// SetFrequency both write from their own goroutines, and WriteFrame
	// issues a header write followed by a payload write that must not
	// interleave with another goroutine's.
	writeMu sync.Mutex

	handler FrameHandler

	backoff         time.Duration
	reconnectSignal chan struct{}
}

// New builds a Controller in the Disconnected state.
func New(cfg Config, handler FrameHandler, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.AdmitTimeout == 0 {
		def := DefaultConfig()
		cfg.AdmitTimeout = def.AdmitTimeout
		cfg.HandshakeTimeout = def.HandshakeTimeout
		cfg.KeepaliveEvery = def.KeepaliveEvery
		cfg.InitialBackoff = def.InitialBackoff
		cfg.MaxBackoff = def.MaxBackoff
	}
	return &Controller{
		cfg:             cfg,
		logger:          logger,
		state:           Disconnected,
		handler:         handler,
		backoff:         cfg.InitialBackoff,
		reconnectSignal: make(chan struct{}, 1),
	}
}

// notifyReconnect wakes Run without blocking if a signal is already pending.
func (c *Controller) notifyReconnect() {
	select {
	case c.reconnectSignal <- struct{}{}:
	default:
	}
}

// State returns the current state under lock.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Generation returns the current generation counter under lock.
func (c *Controller) Generation() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// SessionID returns the admission session ID of the current (or most
// recent) connection.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Start admits and connects once, then returns. It does not launch the
// background reconnection task; call Run for the full auto-reconnect
// lifecycle, or call Start directly for a synchronous first attempt (as
// start_receiver does, spec §5: "returns when it reaches Connected or
// times out").
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	c.active = true
	c.mu.Unlock()
	return c.connectOnce(ctx)
}

// connectOnce performs one full admission+connect cycle and, on success,
// launches the read loop and keepalive goroutines for the new generation.
func (c *Controller) connectOnce(ctx context.Context) error {
	c.setState(Admitting)

	sessionID := uuid.NewString()
	resp, err := admit(ctx, admissionURL(c.cfg), sessionID, c.cfg)
	if err != nil {
		c.setState(Error)
		return err
	}
	if err := checkModeAllowed(resp, c.cfg.Mode); err != nil {
		c.setState(Error)
		return err
	}

	c.setState(Connecting)

	wsURL, err := buildWebSocketURL(c.cfg, sessionID)
	if err != nil {
		c.setState(Error)
		return err
	}

	dr, err := dialWebSocket(wsURL, c.cfg.HandshakeTimeout)
	if err != nil {
		c.setState(Reconnecting)
		return err
	}

	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.sessionID = sessionID
	c.conn = dr.conn
	readCtx, cancel := context.WithCancel(context.Background())
	c.cancelRead = cancel
	c.readDone = make(chan struct{})
	c.mu.Unlock()

	c.setState(Connected)
	c.backoff = c.cfg.InitialBackoff

	go c.keepaliveLoop(readCtx, gen)
	go c.readLoop(readCtx, gen)

	return nil
}

// readLoop parses frames off the socket until it errors or is cancelled,
// dispatching only frames whose generation is still current.
func (c *Controller) readLoop(ctx context.Context, gen uint32) {
	defer close(c.readDone)

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	var readErr error
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		frame, err := wsframe.ReadFrame(conn)
		if err != nil {
			readErr = err
			break
		}

		if !c.isCurrentGeneration(gen) {
			continue // stale generation: silently drop
		}

		switch frame.Opcode {
		case wsframe.OpBinary:
			c.handler.OnBinaryFrame(frame.Payload)
		case wsframe.OpText:
			msg, err := wsframe.ParseInboundMessage(frame.Payload)
			if err != nil {
				c.logger.Printf("session: malformed control message: %v", err)
				continue
			}
			c.handler.OnControlMessage(msg)
		case wsframe.OpClose:
			readErr = fmt.Errorf("session: server sent close frame")
		case wsframe.OpPing, wsframe.OpPong:
			// no response required for a client-role connection
		}
		if readErr != nil {
			break
		}
	}

	if c.isCurrentGeneration(gen) {
		c.handler.OnDisconnect(readErr)
		c.setState(Reconnecting)
		c.notifyReconnect()
	}
}

func (c *Controller) keepaliveLoop(ctx context.Context, gen uint32) {
	ticker := time.NewTicker(c.cfg.KeepaliveEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.isCurrentGeneration(gen) {
				return
			}
			payload, err := wsframe.EncodePing()
			if err != nil {
				continue
			}
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()
			if conn == nil {
				continue
			}
			if err := c.writeFrame(conn, wsframe.OpText, payload); err != nil {
				c.logger.Printf("session: keepalive write failed: %v", err)
			}
		}
	}
}

// writeFrame serializes one frame write against every other writer of conn.
func (c *Controller) writeFrame(conn net.Conn, opcode wsframe.Opcode, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsframe.WriteFrame(conn, opcode, payload)
}

func (c *Controller) isCurrentGeneration(gen uint32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation == gen
}

// SetFrequency retunes without reconnecting, per spec §4.3. On send failure
// it tears down and lets Run's reconnect task pick up the new frequency.
func (c *Controller) SetFrequency(freq uint64) error {
	c.mu.Lock()
	conn := c.conn
	state := c.state
	c.mu.Unlock()

	if state != Connected || conn == nil {
		return fmt.Errorf("session: cannot retune while %s", state)
	}

	payload, err := wsframe.EncodeTune(freq, c.cfg.Mode, c.cfg.BandwidthLow, c.cfg.BandwidthHigh)
	if err != nil {
		return fmt.Errorf("session: encode tune message: %w", err)
	}

	if err := c.writeFrame(conn, wsframe.OpText, payload); err != nil {
		c.cfg.Frequency = freq
		c.teardownLocked()
		c.setState(Reconnecting)
		c.notifyReconnect()
		return fmt.Errorf("session: tune send failed, reconnecting: %w", err)
	}

	c.cfg.Frequency = freq
	return nil
}

// teardownLocked stops the read/keepalive goroutines and drops the socket.
// It does not touch generation; callers that want a fresh generation must
// bump it separately (connectOnce does this on the next successful dial).
func (c *Controller) teardownLocked() {
	c.mu.Lock()
	cancel := c.cancelRead
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
}

// Stop marks the controller inactive, tears down the live socket, and waits
// for the read loop to exit. Per spec §5, this must complete within 5s and
// leave no reconnect task running.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	c.active = false
	c.generation++ // invalidate any in-flight callbacks immediately
	done := c.readDone
	c.mu.Unlock()

	c.teardownLocked()
	c.setState(Disconnected)
	c.notifyReconnect() // wake Run so it observes inactivity and exits

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Active reports whether the controller has not been Stopped.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Run drives the auto-reconnect loop until Stop is called. It must be
// launched in its own goroutine by the caller and blocks waiting on
// reconnectSignal rather than polling state (spec §9: sleeps-as-barriers
// are a bug; here the only sleep is the backoff delay itself).
func (c *Controller) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.reconnectSignal:
		}

		if !c.Active() {
			return
		}
		if c.State() != Reconnecting {
			continue
		}

		select {
		case <-time.After(c.backoff):
		case <-ctx.Done():
			return
		}
		if !c.Active() {
			return
		}

		c.setState(Admitting)
		if err := c.connectOnce(ctx); err != nil {
			c.logger.Printf("session: reconnect attempt failed: %v", err)
			c.backoff *= 2
			if c.backoff > c.cfg.MaxBackoff {
				c.backoff = c.cfg.MaxBackoff
			}
			c.setState(Reconnecting)
			c.notifyReconnect()
		}
	}
}
