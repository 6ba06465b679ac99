package rfbserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleClipboardAnnounce_TracksOwnershipAndForwards(t *testing.T) {
	core, fd, reg, _ := newTestServer(nil)
	sock := newFakeConn("10.0.0.1")
	core.AddSocket(sock, false, 0)
	sess := reg.get(sock)

	core.HandleClipboardAnnounce(sess, true)

	assert.Equal(t, sess, core.clipboardOwner)
	assert.Equal(t, []bool{true}, fd.clipboardAnnounces)

	core.HandleClipboardAnnounce(sess, false)
	assert.Nil(t, core.clipboardOwner)
}

func TestHandleClipboardAnnounce_DisabledIsIgnored(t *testing.T) {
	core, fd, reg, _ := newTestServer(func(c *Config) { c.AcceptCutText = false })
	sock := newFakeConn("10.0.0.1")
	core.AddSocket(sock, false, 0)

	core.HandleClipboardAnnounce(reg.get(sock), true)

	assert.Nil(t, core.clipboardOwner)
	assert.Empty(t, fd.clipboardAnnounces)
}

func TestHandleClipboardData_OnlyFromCurrentOwner(t *testing.T) {
	core, fd, reg, _ := newTestServer(nil)
	sockA := newFakeConn("10.0.0.1")
	sockB := newFakeConn("10.0.0.2")
	core.AddSocket(sockA, false, 0)
	core.AddSocket(sockB, false, 0)
	a, b := reg.get(sockA), reg.get(sockB)

	core.HandleClipboardAnnounce(a, true)
	core.HandleClipboardData(b, "not the owner")
	assert.Empty(t, fd.clipboardData)

	core.HandleClipboardData(a, "hello")
	assert.Equal(t, []string{"hello"}, fd.clipboardData)
}

func TestHandleClipboardRequest_OnlyCallsDesktopForFirstRequestor(t *testing.T) {
	core, fd, reg, _ := newTestServer(nil)
	sockA := newFakeConn("10.0.0.1")
	sockB := newFakeConn("10.0.0.2")
	core.AddSocket(sockA, false, 0)
	core.AddSocket(sockB, false, 0)
	a, b := reg.get(sockA), reg.get(sockB)

	core.HandleClipboardRequest(a)
	core.HandleClipboardRequest(b)

	assert.Equal(t, 1, fd.clipboardRequests)
	require.Len(t, core.clipboardRequestors, 2)
}

func TestSendClipboardData_RejectsCarriageReturn(t *testing.T) {
	core, _, reg, _ := newTestServer(nil)
	sock := newFakeConn("10.0.0.1")
	core.AddSocket(sock, false, 0)
	sess := reg.get(sock)
	core.HandleClipboardRequest(sess)

	err := core.SendClipboardData(sess, "line1\rline2")
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Empty(t, sess.sentClipboardData)
}

func TestSendClipboardData_DeliversToAllRequestorsThenClearsQueue(t *testing.T) {
	core, _, reg, _ := newTestServer(nil)
	sockA := newFakeConn("10.0.0.1")
	sockB := newFakeConn("10.0.0.2")
	core.AddSocket(sockA, false, 0)
	core.AddSocket(sockB, false, 0)
	a, b := reg.get(sockA), reg.get(sockB)

	core.HandleClipboardRequest(a)
	core.HandleClipboardRequest(b)

	err := core.SendClipboardData(a, "payload")
	require.NoError(t, err)
	assert.Equal(t, []string{"payload"}, a.sentClipboardData)
	assert.Equal(t, []string{"payload"}, b.sentClipboardData)
	assert.Empty(t, core.clipboardRequestors)
}

func TestAnnounceClipboard_GatedBySendCutText(t *testing.T) {
	core, _, reg, _ := newTestServer(func(c *Config) { c.SendCutText = false })
	sockA := newFakeConn("10.0.0.1")
	sockB := newFakeConn("10.0.0.2")
	core.AddSocket(sockA, false, 0)
	core.AddSocket(sockB, false, 0)
	a, b := reg.get(sockA), reg.get(sockB)

	core.AnnounceClipboard(a, true)

	assert.Empty(t, b.announcedClipboard, "sending is disabled, so nothing is fanned out")
}

func TestAnnounceClipboard_ClearsRequestorQueue(t *testing.T) {
	core, _, reg, _ := newTestServer(nil)
	sockA := newFakeConn("10.0.0.1")
	sockB := newFakeConn("10.0.0.2")
	core.AddSocket(sockA, false, 0)
	core.AddSocket(sockB, false, 0)
	a, b := reg.get(sockA), reg.get(sockB)

	core.HandleClipboardRequest(a)
	require.NotEmpty(t, core.clipboardRequestors)

	core.AnnounceClipboard(b, true)

	assert.Empty(t, core.clipboardRequestors)
	assert.Equal(t, []bool{true}, a.announcedClipboard)
}

func TestRequestClipboard_GatedBySendCutTextAndOwner(t *testing.T) {
	core, _, reg, _ := newTestServer(nil)
	sockA := newFakeConn("10.0.0.1")
	sockB := newFakeConn("10.0.0.2")
	core.AddSocket(sockA, false, 0)
	core.AddSocket(sockB, false, 0)
	a, b := reg.get(sockA), reg.get(sockB)

	core.RequestClipboard(b)
	assert.Zero(t, a.requestedClipboard, "no owner yet, nothing to request")

	core.HandleClipboardAnnounce(a, true)
	core.RequestClipboard(b)
	assert.Equal(t, 1, a.requestedClipboard)
}

func TestReleaseOwnership_ClearsClipboardOwnerOnDisconnect(t *testing.T) {
	core, _, reg, _ := newTestServer(nil)
	sock := newFakeConn("10.0.0.1")
	core.AddSocket(sock, false, 0)
	sess := reg.get(sock)

	core.HandleClipboardAnnounce(sess, true)
	require.Equal(t, sess, core.clipboardOwner)

	core.RemoveSocket(sock)
	assert.Nil(t, core.clipboardOwner)
}
