package rfbserver

import (
	"net"
	"time"

	"github.com/cyberinferno/vncmux/logger"
	"github.com/cyberinferno/vncmux/session"
)

// testClock lets tests advance time deterministically instead of racing the
// wall clock, matching Config.Now's whole purpose.
type testClock struct {
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// sessionRegistry lets a test's NewSession factory hand back a specific
// *fakeSession per socket, and lets the test retrieve it afterward.
type sessionRegistry struct {
	bySock map[net.Conn]*fakeSession
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{bySock: make(map[net.Conn]*fakeSession)}
}

func (r *sessionRegistry) factory() SessionFactory {
	return func(callbacks session.CoreCallbacks, sock net.Conn, outgoing bool, accessRights session.AccessRight) (session.ClientSession, error) {
		fs := newFakeSession(sock)
		fs.access = accessRights
		r.bySock[sock] = fs
		return fs, nil
	}
}

func (r *sessionRegistry) get(sock net.Conn) *fakeSession { return r.bySock[sock] }

// newTestServer builds a ServerCore wired to a fakeDesktop and a
// sessionRegistry, with fatal calls turned into panics so a test asserting
// on a fatal path doesn't kill the whole test binary.
func newTestServer(configure func(*Config)) (*ServerCore, *fakeDesktop, *sessionRegistry, *testClock) {
	clock := newTestClock()
	reg := newSessionRegistry()
	fd := &fakeDesktop{}

	cfg := Config{
		NewSession:           reg.factory(),
		FrameRate:            50,
		AcceptKeyEvents:      true,
		AcceptPointerEvents:  true,
		AcceptCutText:        true,
		SendCutText:          true,
		AcceptSetDesktopSize: true,
		BlacklistThreshold:   3,
		BlacklistBaseBackoff: time.Second,
		BlacklistMaxBackoff:  time.Minute,
		Now:                  clock.Now,
		Fatal: func(msg string, fields ...logger.Field) {
			panic(msg)
		},
	}
	if configure != nil {
		configure(&cfg)
	}

	core := New(cfg, fd)
	return core, fd, reg, clock
}
