package rfbserver

import (
	"net"
	"time"

	"github.com/cyberinferno/vncmux/blacklist"
	"github.com/cyberinferno/vncmux/cursor"
	"github.com/cyberinferno/vncmux/desktop"
	"github.com/cyberinferno/vncmux/framebuffer"
	"github.com/cyberinferno/vncmux/logger"
	"github.com/cyberinferno/vncmux/region"
	"github.com/cyberinferno/vncmux/safemap"
	"github.com/cyberinferno/vncmux/session"
	"github.com/cyberinferno/vncmux/timer"
	"github.com/cyberinferno/vncmux/updatetracker"
)

// ServerCore is the session multiplexer. It is not safe for concurrent
// entry: every exported method must be called from the single dispatch
// goroutine driving the event loop.
type ServerCore struct {
	cfg     Config
	desktop desktop.SystemDesktop
	log     logger.Logger

	blacklist *blacklist.Blacklist

	// clients is kept in the order new sessions are prepended; fan-out
	// iterates this slice directly.
	clients      []session.ClientSession
	byConn       *safemap.SafeMap[net.Conn, session.ClientSession]
	closingSocks []net.Conn

	pixelBuffer  framebuffer.PixelBuffer
	screenLayout region.ScreenSet
	comparer     *updatetracker.ComparingUpdateTracker

	cursor                cursor.Cursor
	cursorPos             region.Point
	renderedCursor        cursor.RenderedCursor
	renderedCursorInvalid bool

	pointerOwner      session.ClientSession
	pointerOwnerSince time.Time

	clipboardOwner      session.ClientSession
	clipboardRequestors []session.ClientSession

	ledState       uint32
	desktopName    string
	blockCounter   int
	desktopStarted bool

	msc       uint64
	queuedMsc uint64

	idleTimer       timer.Timer
	disconnectTimer timer.Timer
	connectTimer    timer.Timer
	frameTimer      timer.Timer

	perf *framePerf
}

// New builds a ServerCore driving the given desktop collaborator. The
// desktop is initialised with a ServerHandle back-pointer to this core
// before New returns.
func New(cfg Config, d desktop.SystemDesktop) *ServerCore {
	full := cfg.withDefaults()

	s := &ServerCore{
		cfg:     full,
		desktop: d,
		log:     full.Logger,
		byConn:  safemap.NewSafeMap[net.Conn, session.ClientSession](),
		blacklist: blacklist.New(blacklist.Config{
			Threshold:   full.BlacklistThreshold,
			BaseBackoff: full.BlacklistBaseBackoff,
			MaxBackoff:  full.BlacklistMaxBackoff,
		}),
		perf: newFramePerf(full.SlowFrameThreshold, full.Logger),
	}

	d.Init(s)
	return s
}

func (s *ServerCore) now() time.Time {
	return s.cfg.Now()
}

func (s *ServerCore) authClientCount() int {
	count := 0
	for _, c := range s.clients {
		if c.Authenticated() {
			count++
		}
	}
	return count
}

func (s *ServerCore) removeClipboardRequestor(sess session.ClientSession) {
	out := s.clipboardRequestors[:0]
	for _, r := range s.clipboardRequestors {
		if r != sess {
			out = append(out, r)
		}
	}
	s.clipboardRequestors = out
}

func (s *ServerCore) removeClientFromSlice(sess session.ClientSession) {
	out := s.clients[:0]
	for _, c := range s.clients {
		if c != sess {
			out = append(out, c)
		}
	}
	s.clients = out
}
