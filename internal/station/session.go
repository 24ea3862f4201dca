package station

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Session errors.
var (
	ErrNotOpen      = errors.New("session is not open")
	ErrBackpressure = errors.New("outbound buffer is full")
	ErrDisconnected = errors.New("session disconnected")
)

// ConnectErrorKind classifies transport-level connect failures.
type ConnectErrorKind string

const (
	ConnectRefused ConnectErrorKind = "ConnectRefused"
	ConnectDNS     ConnectErrorKind = "DNSError"
	ConnectTLS     ConnectErrorKind = "TLSError"
	ConnectOther   ConnectErrorKind = "ConnectError"
)

// ConnectError wraps a dial failure with its classification.
type ConnectError struct {
	Kind ConnectErrorKind
	Err  error
}

func (e *ConnectError) Error() string { return fmt.Sprintf("%s: %v", e.Kind, e.Err) }
func (e *ConnectError) Unwrap() error { return e.Err }

func classifyDialError(err error) *ConnectError {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &ConnectError{Kind: ConnectDNS, Err: err}
	}
	var tlsErr *tls.CertificateVerificationError
	if errors.As(err, &tlsErr) {
		return &ConnectError{Kind: ConnectTLS, Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &ConnectError{Kind: ConnectRefused, Err: err}
	}
	return &ConnectError{Kind: ConnectOther, Err: err}
}

// SessionConfig tunes one CSMS session.
type SessionConfig struct {
	URL              string
	Subprotocol      string
	PingInterval     time.Duration
	HandshakeTimeout time.Duration
	MaxBackoff       time.Duration
	OutboundBuffer   int
	TLSConfig        *tls.Config
}

func (c *SessionConfig) applyDefaults() {
	if c.PingInterval <= 0 {
		c.PingInterval = 60 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 15 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 60 * time.Second
	}
	if c.OutboundBuffer <= 0 {
		c.OutboundBuffer = 64
	}
}

// Session owns one duplex websocket transport to a CSMS. It reconnects on
// abnormal close with capped exponential backoff; the session id rotates on
// every successful connect.
type Session struct {
	cfg SessionConfig
	log *zap.Logger

	// OnFrame receives every inbound frame, in receipt order.
	OnFrame func(data []byte)
	// OnUp fires after each successful handshake with the new session id.
	OnUp func(sessionID string)
	// OnDown fires once per connection loss.
	OnDown func(err error)

	mu        sync.Mutex
	conn      *websocket.Conn
	sessionID string
	out       chan []byte
	open      bool

	wg sync.WaitGroup
}

// NewSession builds a session. Run must be called to connect.
func NewSession(cfg SessionConfig, log *zap.Logger) *Session {
	cfg.applyDefaults()
	return &Session{cfg: cfg, log: log}
}

// SetURL changes the supervision endpoint. It takes effect on the next dial;
// combine with Kick to move a live session.
func (s *Session) SetURL(url string) {
	s.mu.Lock()
	s.cfg.URL = url
	s.mu.Unlock()
}

func (s *Session) url() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.URL
}

// SessionID returns the id of the current connection, or "" when down.
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// IsOpen reports whether the transport is currently connected.
func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Send queues one outbound frame. Order of successful Sends is preserved.
func (s *Session) Send(data []byte) error {
	s.mu.Lock()
	open, out := s.open, s.out
	s.mu.Unlock()

	if !open {
		return ErrNotOpen
	}
	select {
	case out <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

// Run connects and keeps the session alive until ctx is cancelled. Each
// connection loss triggers OnDown, then a jittered backoff, then a redial.
func (s *Session) Run(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		err := s.connectOnce(ctx)
		if err == nil {
			attempt = 0
			err = s.serve(ctx)
		}

		s.teardown()
		if s.OnDown != nil {
			s.OnDown(err)
		}
		if ctx.Err() != nil {
			return
		}

		attempt++
		delay := s.backoff(attempt)
		s.log.Warn("Session down, reconnecting",
			zap.String("url", s.url()),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (s *Session) backoff(attempt int) time.Duration {
	base := time.Second
	d := base << uint(attempt-1)
	if d > s.cfg.MaxBackoff || d <= 0 {
		d = s.cfg.MaxBackoff
	}
	// Full jitter keeps a fleet from reconnecting in lockstep.
	return time.Duration(rand.Int63n(int64(d)) + int64(base)/2)
}

func (s *Session) connectOnce(ctx context.Context) error {
	dialer := websocket.Dialer{
		Subprotocols:     []string{s.cfg.Subprotocol},
		HandshakeTimeout: s.cfg.HandshakeTimeout,
		TLSClientConfig:  s.cfg.TLSConfig,
	}

	conn, _, err := dialer.DialContext(ctx, s.url(), nil)
	if err != nil {
		return classifyDialError(err)
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.conn = conn
	s.sessionID = id
	s.out = make(chan []byte, s.cfg.OutboundBuffer)
	s.open = true
	s.mu.Unlock()

	s.log.Info("Connected to CSMS",
		zap.String("url", s.url()),
		zap.String("subprotocol", s.cfg.Subprotocol),
		zap.String("sessionId", id),
	)

	if s.OnUp != nil {
		s.OnUp(id)
	}
	return nil
}

// serve pumps frames both directions until the connection drops.
func (s *Session) serve(ctx context.Context) error {
	s.mu.Lock()
	conn, out := s.conn, s.out
	s.mu.Unlock()

	errCh := make(chan error, 3)
	done := make(chan struct{})
	defer close(done)

	var lastPong sync.Map
	lastPong.Store("t", time.Now())
	conn.SetPongHandler(func(string) error {
		lastPong.Store("t", time.Now())
		return nil
	})

	// Writer: preserves Send order.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-done:
				return
			case data, ok := <-out:
				if !ok {
					return
				}
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					errCh <- fmt.Errorf("write: %w", err)
					return
				}
			}
		}
	}()

	// Pinger: a pong missed for two intervals force-closes the transport.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				v, _ := lastPong.Load("t")
				if time.Since(v.(time.Time)) > 2*s.cfg.PingInterval {
					errCh <- fmt.Errorf("pong missed for two intervals")
					conn.Close()
					return
				}
				deadline := time.Now().Add(10 * time.Second)
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					errCh <- fmt.Errorf("ping: %w", err)
					return
				}
			}
		}
	}()

	// Reader: dispatches inbound frames in receipt order.
	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- fmt.Errorf("read: %w", err)
				return
			}
			if s.OnFrame != nil {
				s.OnFrame(data)
			}
		}
	}()

	select {
	case <-ctx.Done():
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
		<-readErr
		return ctx.Err()
	case err := <-errCh:
		conn.Close()
		<-readErr
		return err
	case err := <-readErr:
		conn.Close()
		return err
	}
}

// Kick force-closes the current connection. Run observes the loss and
// redials with backoff.
func (s *Session) Kick() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (s *Session) teardown() {
	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.open = false
	s.sessionID = ""
	s.mu.Unlock()
	s.wg.Wait()
}
