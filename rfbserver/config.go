// Package rfbserver implements ServerCore, the single-threaded session
// multiplexer: it owns the shared framebuffer, screen layout, cursor,
// clipboard and pointer arbitration, and the frame clock, and dispatches
// socket and timer events to per-client session.ClientSession handles.
package rfbserver

import (
	"errors"
	"io"
	"net"
	"os"
	"time"

	"github.com/cyberinferno/vncmux/logger"
	"github.com/cyberinferno/vncmux/session"
	"github.com/rs/zerolog"
)

// Sentinel errors returned to callers for the three non-fatal error kinds
// operations can fail with; compare with errors.Is.
var (
	ErrNotFound   = errors.New("rfbserver: socket not found")
	ErrProhibited = errors.New("rfbserver: operation prohibited by configuration")
	ErrInvalid    = errors.New("rfbserver: invalid argument")
)

// SessionFactory builds a new ClientSession for an accepted socket. It
// returns an error instead of panicking on construction failure: a session
// constructor failing is treated as transient (log + close), not a fatal
// invariant violation of the core itself.
type SessionFactory func(callbacks session.CoreCallbacks, sock net.Conn, outgoing bool, accessRights session.AccessRight) (session.ClientSession, error)

// Config is ServerCore's single injected configuration record — every knob
// the core needs is passed in here rather than read from ambient state.
type Config struct {
	NewSession SessionFactory

	FrameRate int // Hz
	CompareFB int // 0 = off, 1 = on, 2 = on iff any client opts in

	MaxIdleTime          time.Duration
	MaxDisconnectionTime time.Duration
	MaxConnectionTime    time.Duration

	AcceptKeyEvents      bool
	AcceptPointerEvents  bool
	AcceptCutText        bool
	SendCutText          bool
	AcceptSetDesktopSize bool
	QueryConnect         bool
	NeverShared          bool
	DisconnectClients    bool

	KeyRemapper func(keysym uint32) uint32

	BlacklistThreshold   int
	BlacklistBaseBackoff time.Duration
	BlacklistMaxBackoff  time.Duration

	SlowFrameThreshold time.Duration

	RedisAddr   string
	ServiceName string

	Logger logger.Logger
	Fatal  func(msg string, fields ...logger.Field)

	// Now returns the current time; overridable so tests can control the
	// pointer-owner grace window and timer deadlines deterministically.
	Now func() time.Time
}

func (c *Config) withDefaults() Config {
	cfg := *c
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewZerologLogger(zerolog.New(io.Discard), cfg.ServiceName, zerolog.Disabled)
	}
	if cfg.Fatal == nil {
		cfg.Fatal = defaultFatal(cfg.Logger)
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 60
	}
	return cfg
}

// defaultFatal logs at error level and terminates the process: a logic
// invariant violation aborts after logging rather than continuing in an
// inconsistent state. Tests inject their own Fatal that records the call
// and panics instead of exiting, so a fatal path can be asserted on without
// killing the test binary.
func defaultFatal(l logger.Logger) func(string, ...logger.Field) {
	return func(msg string, fields ...logger.Field) {
		l.Error(msg, fields...)
		os.Exit(1)
	}
}
