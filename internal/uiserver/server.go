// Package uiserver is the control-plane surface of the simulator: a fiber
// HTTP endpoint and a persistent WebSocket sharing one procedure set, both
// speaking the `[uuid, procedure, payload]` envelope.
package uiserver

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seu-repo/sigec-fleetsim/internal/fleet"
	"github.com/seu-repo/sigec-fleetsim/internal/ports"
)

// Protocol is the WebSocket subprotocol spoken by UI clients.
const Protocol = "ui0.0.1"

// Simulator is the supervisor surface the UI server drives.
type Simulator interface {
	Registry() *fleet.Registry
	AddStations(ctx context.Context, template string, count int) ([]string, error)
	Templates() []string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Options tunes the UI server.
type Options struct {
	Addr          string
	AuthEnabled   bool
	Users         map[string]string // username -> bcrypt hash
	RatePerSecond float64
	Burst         int
	MaxIPs        int
	BodyLimit     int
	GzipThreshold int
	// MaxAddStations caps one AddChargingStations call.
	MaxAddStations   int
	BroadcastTimeout time.Duration
}

// DefaultOptions listens on :8080 without authentication.
func DefaultOptions() Options {
	return Options{
		Addr:             ":8080",
		RatePerSecond:    20,
		Burst:            40,
		MaxIPs:           1024,
		BodyLimit:        1 << 20,
		GzipThreshold:    1024,
		MaxAddStations:   100,
		BroadcastTimeout: 60 * time.Second,
	}
}

// Server hosts the UI control-plane.
type Server struct {
	app  *fiber.App
	sim  Simulator
	agg  *aggregator
	opts Options
	log  *zap.Logger
}

func NewServer(opts Options, sim Simulator, bus ports.Broadcaster, log *zap.Logger) *Server {
	s := &Server{
		sim:  sim,
		agg:  newAggregator(bus, opts.BroadcastTimeout, log),
		opts: opts,
		log:  log,
	}

	app := fiber.New(fiber.Config{
		BodyLimit:             opts.BodyLimit,
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			if code == fiber.StatusInternalServerError {
				log.Error("Internal Server Error", zap.Error(err), zap.String("path", c.Path()))
			}
			return c.Status(code).JSON(fiber.Map{"status": fleet.StatusFailure, "error": err.Error()})
		},
	})

	app.Use(RateLimit(NewRateLimiter(opts.RatePerSecond, opts.Burst, opts.MaxIPs)))
	if opts.AuthEnabled {
		app.Use(BasicAuth(opts.Users))
	}
	app.Use(Compress(opts.GzipThreshold))

	app.Post("/ui/:procedure", s.handleHTTP)
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(s.handleWS, websocket.Config{
		Subprotocols: []string{Protocol},
	}))

	s.app = app
	return s
}

// App exposes the fiber app for in-process testing.
func (s *Server) App() *fiber.App { return s.app }

// Listen starts subscribing to broadcast responses and serves until Shutdown.
func (s *Server) Listen() error {
	if err := s.agg.start(); err != nil {
		return err
	}
	s.log.Info("UI server listening", zap.String("addr", s.opts.Addr))
	return s.app.Listen(s.opts.Addr)
}

func (s *Server) Shutdown() error {
	s.agg.stop()
	return s.app.Shutdown()
}

func (s *Server) handleHTTP(c *fiber.Ctx) error {
	procedure := c.Params("procedure")
	payload := json.RawMessage(c.Body())

	result, err := s.dispatch(c.Context(), uuid.NewString(), procedure, payload)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status": fleet.StatusFailure,
			"error":  err.Error(),
		})
	}
	return c.JSON(result)
}

// handleWS serves one UI client: a stream of `[uuid, procedure, payload]`
// requests answered by `[uuid, result]`, possibly out of order.
func (s *Server) handleWS(conn *websocket.Conn) {
	var writeMu sync.Mutex
	write := func(id string, result interface{}) {
		frame, err := json.Marshal([]interface{}{id, result})
		if err != nil {
			s.log.Error("UI response encode failed", zap.Error(err))
			return
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			s.log.Warn("UI response write failed", zap.Error(err))
		}
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		id, procedure, payload, err := decodeEnvelope(msg)
		if err != nil {
			s.log.Warn("malformed UI request dropped", zap.Error(err))
			continue
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.opts.BroadcastTimeout+5*time.Second)
			defer cancel()
			result, err := s.dispatch(ctx, id, procedure, payload)
			if err != nil {
				write(id, fiber.Map{"status": fleet.StatusFailure, "error": err.Error()})
				return
			}
			write(id, result)
		}()
	}
}

func decodeEnvelope(msg []byte) (id, procedure string, payload json.RawMessage, err error) {
	var env []json.RawMessage
	if err = json.Unmarshal(msg, &env); err != nil {
		return "", "", nil, err
	}
	if len(env) < 2 {
		return "", "", nil, fiber.NewError(fiber.StatusBadRequest, "envelope must be [uuid, procedure, payload]")
	}
	if err = json.Unmarshal(env[0], &id); err != nil {
		return "", "", nil, err
	}
	if err = json.Unmarshal(env[1], &procedure); err != nil {
		return "", "", nil, err
	}
	if len(env) > 2 {
		payload = env[2]
	}
	return id, procedure, payload, nil
}
