// Package voice runs one real-time voice conversation with a hosted agent.
//
// Vendor events are normalized into Event values and folded by Reduce into
// a State plus a list of Effects. The Controller owns the vendor connection
// and the microphone and carries those effects out.
package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/regbuddy/internal/domain"
)

// DefaultOpeningDelay separates session configuration from the scripted
// opening utterance.
const DefaultOpeningDelay = 500 * time.Millisecond

var (
	// ErrAlreadyInitialized is returned by a second Initialize call.
	ErrAlreadyInitialized = errors.New("voice session already initialized")
	// ErrSessionEnded is returned when EndSession wins against Initialize.
	ErrSessionEnded = errors.New("voice session ended")
)

// InitializationError reports why a session could not be started.
type InitializationError struct {
	Err error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("voice initialization failed: %v", e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }

// Config describes one session and how its state is observed. Callbacks run
// synchronously and in order on the goroutine that produced the change; they
// must not call back into the Controller.
type Config struct {
	SystemPrompt string
	FirstMessage string
	Voice        string

	OnStatusChange     func(Status, error)
	OnMessage          func(TranscriptLine)
	OnAgentSpeaking    func(bool)
	OnMicrophoneActive func(bool)
	// OnAudio receives agent audio. Optional.
	OnAudio func([]byte)
}

func (c Config) session() SessionConfig {
	return SessionConfig{Instructions: c.SystemPrompt, FirstMessage: c.FirstMessage, Voice: c.Voice}
}

// Controller owns exactly one voice session, from Initialize to EndSession.
// A Controller is single use.
type Controller struct {
	transport    Transport
	mic          Microphone
	logger       *slog.Logger
	openingDelay time.Duration

	// emitMu serializes reduction and callbacks so observers see effects in
	// event order.
	emitMu sync.Mutex

	mu          sync.Mutex
	cfg         Config
	state       State
	initialized bool
	ended       bool
	ctx         context.Context
	cancel      context.CancelFunc
	conn        Conn
	micHeld     bool
	opening     *time.Timer
}

// Option configures a Controller.
type Option func(*Controller)

// WithOpeningDelay overrides DefaultOpeningDelay.
func WithOpeningDelay(d time.Duration) Option {
	return func(c *Controller) { c.openingDelay = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// NewController creates a controller that will talk to transport and take
// audio from mic.
func NewController(transport Transport, mic Microphone, opts ...Option) *Controller {
	c := &Controller{
		transport:    transport,
		mic:          mic,
		logger:       slog.Default(),
		openingDelay: DefaultOpeningDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initialize starts the session. It reports connecting, obtains credentials,
// acquires the microphone and opens the vendor channel. On failure it
// reports error, releases whatever it acquired and returns an
// *InitializationError. ctx bounds the session lifetime as well.
func (c *Controller) Initialize(ctx context.Context, cfg Config) error {
	c.mu.Lock()
	if c.initialized {
		c.mu.Unlock()
		return &InitializationError{Err: ErrAlreadyInitialized}
	}
	if c.ended {
		c.mu.Unlock()
		return &InitializationError{Err: ErrSessionEnded}
	}
	c.initialized = true
	c.cfg = cfg
	ctx, cancel := context.WithCancel(ctx)
	c.ctx, c.cancel = ctx, cancel
	c.state = State{Status: StatusConnecting}
	c.mu.Unlock()

	c.emitMu.Lock()
	c.emitStatus(StatusConnecting, nil)
	c.emitMu.Unlock()

	session := cfg.session()

	creds, err := c.transport.Credentials(ctx, session)
	if err != nil {
		return c.failInit(fmt.Errorf("obtain %s credentials: %w", c.transport.Name(), err))
	}

	frames, err := c.mic.Acquire(ctx)
	if err != nil {
		return c.failInit(err)
	}
	c.mu.Lock()
	c.micHeld = true
	c.mu.Unlock()

	conn, err := c.transport.Dial(ctx, creds, session)
	if err != nil {
		return c.failInit(fmt.Errorf("connect to %s: %w", c.transport.Name(), err))
	}

	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		c.closeConn(conn)
		c.releaseMic()
		return &InitializationError{Err: ErrSessionEnded}
	}
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn)
	go c.audioPump(ctx, conn, frames)

	c.logger.Info("voice session started", "vendor", c.transport.Name())
	return nil
}

func (c *Controller) failInit(err error) error {
	c.mu.Lock()
	ended := c.ended
	if !ended {
		c.state.Status = StatusError
		c.state.Activity = ActivityIdle
	}
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.releaseMic()

	if ended {
		return &InitializationError{Err: ErrSessionEnded}
	}

	c.logger.Warn("voice initialization failed", "vendor", c.transport.Name(), "error", err)
	c.emitMu.Lock()
	c.emitStatus(StatusError, err)
	c.emitMu.Unlock()
	return &InitializationError{Err: err}
}

// EndSession tears the session down and reports disconnected. It is safe to
// call more than once, before Initialize, and while Initialize is running.
func (c *Controller) EndSession() {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	c.teardown()
}

// Dispatch feeds an event that did not come from the vendor, such as the
// client reporting that agent playback drained.
func (c *Controller) Dispatch(ev Event) {
	c.dispatch(ev)
}

// Status returns the current connection status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Status
}

func (c *Controller) readLoop(conn Conn) {
	for ev := range conn.Events() {
		c.dispatch(ev)
	}
}

func (c *Controller) audioPump(ctx context.Context, conn Conn, frames <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case pcm, ok := <-frames:
			if !ok {
				return
			}
			if err := conn.SendAudio(ctx, pcm); err != nil {
				if ctx.Err() == nil {
					c.logger.Debug("send audio failed", "error", err)
				}
				return
			}
		}
	}
}

func (c *Controller) dispatch(ev Event) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	next, effects := Reduce(c.state, ev)
	c.state = next
	c.mu.Unlock()

	for _, eff := range effects {
		c.apply(eff)
	}
}

// apply runs one effect. Called with emitMu held.
func (c *Controller) apply(eff Effect) {
	c.mu.Lock()
	cfg := c.cfg
	conn := c.conn
	c.mu.Unlock()

	switch e := eff.(type) {
	case StatusChanged:
		c.emitStatus(e.Status, e.Err)
	case ActivityChanged:
		c.emitActivity(e.From, e.To)
	case LineAppended:
		if cfg.OnMessage != nil {
			cfg.OnMessage(e.Line)
		}
	case PlayAudio:
		if cfg.OnAudio != nil {
			cfg.OnAudio(e.Audio)
		}
	case ConfigureSession:
		c.configure(conn, cfg)
	case LogUnknown:
		c.logger.Debug("ignoring voice event", "type", e.Type, "vendor", c.transport.Name())
	case Teardown:
		c.teardown()
	}
}

func (c *Controller) configure(conn Conn, cfg Config) {
	if conn == nil {
		return
	}
	ctx := c.sessionContext()
	if err := conn.Configure(ctx, cfg.session()); err != nil {
		c.logger.Error("configure voice session failed", "vendor", c.transport.Name(), "error", err)
		return
	}
	if cfg.FirstMessage == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended || c.opening != nil {
		return
	}
	c.opening = time.AfterFunc(c.openingDelay, func() {
		c.mu.Lock()
		ended := c.ended
		c.mu.Unlock()
		if ended {
			return
		}
		if err := conn.Greet(ctx, cfg.FirstMessage); err != nil && ctx.Err() == nil {
			c.logger.Warn("opening utterance failed", "vendor", c.transport.Name(), "error", err)
		}
	})
}

func (c *Controller) sessionContext() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// teardown releases everything and reports disconnected. Called with
// emitMu held.
func (c *Controller) teardown() {
	c.mu.Lock()
	c.ended = true
	prev := c.state.Activity
	c.state = State{Status: StatusDisconnected}
	cancel, conn, opening := c.cancel, c.conn, c.opening
	c.conn, c.opening = nil, nil
	c.mu.Unlock()

	if opening != nil {
		opening.Stop()
	}
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		c.closeConn(conn)
	}
	c.releaseMic()

	c.emitActivity(prev, ActivityIdle)
	c.emitStatus(StatusDisconnected, nil)
}

func (c *Controller) closeConn(conn Conn) {
	if err := conn.Close(); err != nil {
		c.logger.Warn("close voice connection", "error", fmt.Errorf("%w: %w", domain.ErrSessionTeardown, err))
	}
}

func (c *Controller) releaseMic() {
	c.mu.Lock()
	held := c.micHeld
	c.micHeld = false
	c.mu.Unlock()
	if !held {
		return
	}
	if err := c.mic.Release(); err != nil {
		c.logger.Warn("release microphone", "error", fmt.Errorf("%w: %w", domain.ErrSessionTeardown, err))
	}
}

func (c *Controller) emitStatus(s Status, err error) {
	c.mu.Lock()
	fn := c.cfg.OnStatusChange
	c.mu.Unlock()
	if fn != nil {
		fn(s, err)
	}
}

// emitActivity reports flag changes, clearing before setting so that both
// flags are never observed true together.
func (c *Controller) emitActivity(from, to Activity) {
	if from == to {
		return
	}
	c.mu.Lock()
	cfg := c.cfg
	c.mu.Unlock()

	if from.AgentSpeaking() && cfg.OnAgentSpeaking != nil {
		cfg.OnAgentSpeaking(false)
	}
	if from.MicrophoneActive() && cfg.OnMicrophoneActive != nil {
		cfg.OnMicrophoneActive(false)
	}
	if to.AgentSpeaking() && cfg.OnAgentSpeaking != nil {
		cfg.OnAgentSpeaking(true)
	}
	if to.MicrophoneActive() && cfg.OnMicrophoneActive != nil {
		cfg.OnMicrophoneActive(true)
	}
}
