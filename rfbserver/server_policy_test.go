package rfbserver

import (
	"testing"
	"time"

	"github.com/cyberinferno/vncmux/desktop"
	"github.com/cyberinferno/vncmux/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withDesktopStart configures a fakeDesktop whose Start installs a pixel
// buffer, satisfying startDesktop's postcondition.
func withDesktopStart(fd *fakeDesktop) {
	fd.startFunc = func(server desktop.ServerHandle) error {
		server.SetPixelBuffer(newTestBuffer(640, 480), layout(640, 480))
		return nil
	}
}

func TestQueryConnection_StartsDesktopOnFirstAttempt(t *testing.T) {
	core, fd, reg, _ := newTestServer(nil)
	withDesktopStart(fd)
	sock := newFakeConn("10.0.0.1")
	core.AddSocket(sock, false, 0)

	accept, _ := core.QueryConnection(reg.get(sock), "alice")

	assert.True(t, accept)
	assert.True(t, core.desktopStarted)
	assert.NotNil(t, core.pixelBuffer)
}

func TestQueryConnection_StartDesktopFlushesAndSpeedsUpFrameClock(t *testing.T) {
	core, fd, reg, clock := newTestServer(func(c *Config) { c.FrameRate = 50 })
	withDesktopStart(fd)
	sock := newFakeConn("10.0.0.1")
	core.AddSocket(sock, false, 0)
	sess := reg.get(sock)

	core.QueryConnection(reg.get(sock), "alice")

	assert.Equal(t, 1, sess.updatesWritten, "the whole-framebuffer change SetPixelBuffer queued is flushed as soon as the desktop starts, not left for the slow tick")
	assert.True(t, core.comparer.IsEmpty())
	require.True(t, core.frameTimer.IsStarted())
	assert.LessOrEqual(t, core.frameTimer.Remaining(clock.Now()), 20*time.Millisecond,
		"the clock is re-armed at the full frame rate rather than left on the pre-start slow tick")
}

func TestQueryConnection_DesktopStartFailureClosesEveryClient(t *testing.T) {
	core, fd, reg, _ := newTestServer(nil)
	fd.startErr = assert.AnError
	sock := newFakeConn("10.0.0.1")
	core.AddSocket(sock, false, 0)
	sess := reg.get(sock)

	accept, reason := core.QueryConnection(sess, "alice")

	assert.False(t, accept)
	assert.Equal(t, assert.AnError.Error(), reason)
	require.Len(t, sess.closedWith, 1)
}

func TestQueryConnection_NeverSharedRejectsWhenAlreadyOccupied(t *testing.T) {
	core, fd, reg, _ := newTestServer(func(c *Config) {
		c.NeverShared = true
		c.DisconnectClients = false
	})
	withDesktopStart(fd)
	sockA := newFakeConn("10.0.0.1")
	sockB := newFakeConn("10.0.0.2")
	core.AddSocket(sockA, false, 0)
	core.AddSocket(sockB, false, 0)
	a, b := reg.get(sockA), reg.get(sockB)
	// Neither client has finished its handshake when it is queried; A
	// completes its own once accepted, before B is queried.
	a.authenticated, b.authenticated = false, false

	accept, _ := core.QueryConnection(a, "alice")
	require.True(t, accept)
	a.authenticated = true

	accept, reason := core.QueryConnection(b, "bob")
	assert.False(t, accept)
	assert.Equal(t, reasonServerInUse, reason)
}

func TestQueryConnection_NoQueryAccessBypassesDesktopQuery(t *testing.T) {
	core, fd, reg, _ := newTestServer(func(c *Config) { c.QueryConnect = true })
	withDesktopStart(fd)
	sock := newFakeConn("10.0.0.1")
	core.AddSocket(sock, false, session.AccessNoQuery)
	fd.queryConnectionFunc = func(peer, user string) (bool, string) {
		t.Fatal("desktop should not be consulted when AccessNoQuery is set")
		return false, ""
	}

	accept, _ := core.QueryConnection(reg.get(sock), "alice")
	assert.True(t, accept)
}

func TestQueryConnection_DefersToDesktopWhenQueryEnabled(t *testing.T) {
	core, fd, reg, _ := newTestServer(func(c *Config) { c.QueryConnect = true })
	withDesktopStart(fd)
	sock := newFakeConn("10.0.0.1")
	core.AddSocket(sock, false, 0)
	fd.queryConnectionFunc = func(peer, user string) (bool, string) { return false, "denied by desktop" }

	accept, reason := core.QueryConnection(reg.get(sock), "alice")
	assert.False(t, accept)
	assert.Equal(t, "denied by desktop", reason)
}

// TestClientReady_NonSharedTakeoverScenario mirrors the concrete non-shared
// takeover scenario: an exclusive client with the right to disconnect others
// evicts every other client; without DisconnectClients or the right, it is
// itself turned away when someone else already holds the desktop.
func TestClientReady_NonSharedTakeoverScenario(t *testing.T) {
	core, fd, reg, _ := newTestServer(func(c *Config) { c.DisconnectClients = true })
	withDesktopStart(fd)
	sockA := newFakeConn("10.0.0.1")
	sockB := newFakeConn("10.0.0.2")
	core.AddSocket(sockA, false, 0)
	core.AddSocket(sockB, false, session.AccessNonShared)
	a, b := reg.get(sockA), reg.get(sockB)

	core.ClientReady(a, true)
	assert.Empty(t, a.closedWith)

	core.ClientReady(b, false)

	require.Len(t, a.closedWith, 1)
	assert.Equal(t, session.CloseReason(reasonNonSharedRequested), a.closedWith[0])
	assert.Empty(t, b.closedWith, "the requester itself is excepted")
}

func TestClientReady_ExclusiveRequestRejectedWhenAlreadyOccupied(t *testing.T) {
	core, fd, reg, _ := newTestServer(func(c *Config) { c.DisconnectClients = false })
	withDesktopStart(fd)
	sockA := newFakeConn("10.0.0.1")
	sockB := newFakeConn("10.0.0.2")
	core.AddSocket(sockA, false, 0)
	core.AddSocket(sockB, false, 0)
	b := reg.get(sockB)

	core.ClientReady(b, false)

	require.Len(t, b.closedWith, 1)
	assert.Equal(t, session.CloseReason(reasonServerInUse), b.closedWith[0])
}

func TestApproveConnection_UnknownSocketIsIgnored(t *testing.T) {
	core, _, _, _ := newTestServer(nil)
	assert.NotPanics(t, func() {
		core.ApproveConnection(newFakeConn("10.0.0.9"), true, "")
	})
}

func TestApproveConnection_ForwardsToSession(t *testing.T) {
	core, _, reg, _ := newTestServer(nil)
	sock := newFakeConn("10.0.0.1")
	core.AddSocket(sock, false, 0)

	core.ApproveConnection(sock, true, "welcome")

	sess := reg.get(sock)
	require.Len(t, sess.approvals, 1)
	assert.True(t, sess.approvals[0].accept)
	assert.Equal(t, "welcome", sess.approvals[0].reason)
}
