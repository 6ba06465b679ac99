package rfbserver

import (
	"errors"
	"net"
	"time"

	"github.com/cyberinferno/vncmux/desktop"
	"github.com/cyberinferno/vncmux/framebuffer"
	"github.com/cyberinferno/vncmux/region"
	"github.com/cyberinferno/vncmux/session"
)

// fakeConn is a minimal net.Conn good enough to be a map key and to record
// what was written to it, without opening a real socket.
type fakeConn struct {
	id     string
	remote string
	writes [][]byte
	closed bool
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id, remote: id + ":12345"} }

func (c *fakeConn) Read(b []byte) (int, error)  { return 0, errors.New("fakeConn: not readable") }
func (c *fakeConn) Write(b []byte) (int, error) { c.writes = append(c.writes, append([]byte(nil), b...)); return len(b), nil }
func (c *fakeConn) Close() error                { c.closed = true; return nil }
func (c *fakeConn) LocalAddr() net.Addr         { return fakeAddr("server:5900") }
func (c *fakeConn) RemoteAddr() net.Addr        { return fakeAddr(c.remote) }
func (c *fakeConn) SetDeadline(time.Time) error      { return nil }
func (c *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

type fakeAddr string

func (a fakeAddr) Network() string { return "tcp" }
func (a fakeAddr) String() string  { return string(a) }

// fakeSession is a hand-rolled session.ClientSession used to observe what
// ServerCore does to it, without a real RFB codec.
type fakeSession struct {
	sock              net.Conn
	authenticated     bool
	access            session.AccessRight
	needCursor        bool
	comparerState     bool
	closedWith        []session.CloseReason
	initCalled        bool
	pixelBufferChanges int
	layoutChanges     []session.ScreenLayoutChangeReason
	renderedCursorChanges int
	cursorPositionChanges int
	cursorSets        int
	ledStates         []uint32
	names             []string
	bells             int
	announcedClipboard []bool
	requestedClipboard int
	sentClipboardData []string
	approvals         []struct {
		accept bool
		reason string
	}
	addedCopied []region.Region
	addedChanged []region.Region
	updatesWritten int
}

func newFakeSession(sock net.Conn) *fakeSession {
	return &fakeSession{sock: sock, authenticated: true}
}

func (f *fakeSession) Init() { f.initCalled = true }
func (f *fakeSession) Close(reason session.CloseReason) {
	f.closedWith = append(f.closedWith, reason)
}
func (f *fakeSession) ProcessMessages() error { return nil }
func (f *fakeSession) FlushSocket() error     { return nil }

func (f *fakeSession) PixelBufferChange() { f.pixelBufferChanges++ }
func (f *fakeSession) ScreenLayoutChangeOrClose(reason session.ScreenLayoutChangeReason) {
	f.layoutChanges = append(f.layoutChanges, reason)
}
func (f *fakeSession) RenderedCursorChange() { f.renderedCursorChanges++ }
func (f *fakeSession) CursorPositionChange() { f.cursorPositionChanges++ }
func (f *fakeSession) SetCursorOrClose()     { f.cursorSets++ }
func (f *fakeSession) SetLEDStateOrClose(state uint32) {
	f.ledStates = append(f.ledStates, state)
}
func (f *fakeSession) SetDesktopNameOrClose(name string) {
	f.names = append(f.names, name)
}
func (f *fakeSession) BellOrClose() { f.bells++ }
func (f *fakeSession) AnnounceClipboardOrClose(available bool) {
	f.announcedClipboard = append(f.announcedClipboard, available)
}
func (f *fakeSession) RequestClipboardOrClose() { f.requestedClipboard++ }
func (f *fakeSession) SendClipboardDataOrClose(data string) {
	f.sentClipboardData = append(f.sentClipboardData, data)
}
func (f *fakeSession) ApproveConnectionOrClose(accept bool, reason string) {
	f.approvals = append(f.approvals, struct {
		accept bool
		reason string
	}{accept, reason})
}

func (f *fakeSession) AddCopied(dst region.Region, dx, dy int) {
	f.addedCopied = append(f.addedCopied, dst)
}
func (f *fakeSession) AddChanged(r region.Region) {
	f.addedChanged = append(f.addedChanged, r)
}
func (f *fakeSession) WriteFramebufferUpdateOrClose() { f.updatesWritten++ }

func (f *fakeSession) Authenticated() bool { return f.authenticated }
func (f *fakeSession) AccessCheck(right session.AccessRight) bool {
	return f.access.Has(right)
}
func (f *fakeSession) GetSock() net.Conn        { return f.sock }
func (f *fakeSession) GetPeerEndpoint() string  { return peerAddr(f.sock) }
func (f *fakeSession) NeedRenderedCursor() bool { return f.needCursor }
func (f *fakeSession) GetComparerState() bool   { return f.comparerState }

// fakeDesktop is a scriptable desktop.SystemDesktop.
type fakeDesktop struct {
	server desktop.ServerHandle

	startErr    error
	startFunc   func(server desktop.ServerHandle) error
	terminated  bool
	stopped     int
	pointerEvents []struct {
		pos  region.Point
		mask uint8
	}
	keyEvents []struct {
		keysym, keycode uint32
		down            bool
	}
	setScreenLayoutResult desktop.SetScreenLayoutResult
	setScreenLayoutErr    error
	setScreenLayoutCalls  int

	clipboardRequests   int
	clipboardAnnounces  []bool
	clipboardData       []string
	queryConnectionFunc func(peer, user string) (bool, string)

	frameTicks []uint64
}

func (d *fakeDesktop) Init(server desktop.ServerHandle) { d.server = server }
func (d *fakeDesktop) Start() error {
	if d.startFunc != nil {
		return d.startFunc(d.server)
	}
	return d.startErr
}
func (d *fakeDesktop) Stop()      { d.stopped++ }
func (d *fakeDesktop) Terminate() { d.terminated = true }

func (d *fakeDesktop) PointerEvent(pos region.Point, buttonMask uint8) {
	d.pointerEvents = append(d.pointerEvents, struct {
		pos  region.Point
		mask uint8
	}{pos, buttonMask})
}
func (d *fakeDesktop) KeyEvent(keysym, keycode uint32, down bool) {
	d.keyEvents = append(d.keyEvents, struct {
		keysym, keycode uint32
		down            bool
	}{keysym, keycode, down})
}
func (d *fakeDesktop) SetScreenLayout(w, h int, layout region.ScreenSet) (desktop.SetScreenLayoutResult, error) {
	d.setScreenLayoutCalls++
	if d.setScreenLayoutResult == desktop.SetScreenLayoutSuccess && d.setScreenLayoutErr == nil {
		d.server.SetPixelBuffer(newTestBuffer(w, h), layout)
	}
	return d.setScreenLayoutResult, d.setScreenLayoutErr
}

func (d *fakeDesktop) HandleClipboardRequest()          { d.clipboardRequests++ }
func (d *fakeDesktop) HandleClipboardAnnounce(avail bool) {
	d.clipboardAnnounces = append(d.clipboardAnnounces, avail)
}
func (d *fakeDesktop) HandleClipboardData(data string) {
	d.clipboardData = append(d.clipboardData, data)
}
func (d *fakeDesktop) QueryConnection(peer, user string) (bool, string) {
	if d.queryConnectionFunc != nil {
		return d.queryConnectionFunc(peer, user)
	}
	return true, ""
}

func (d *fakeDesktop) FrameTick(msc uint64) { d.frameTicks = append(d.frameTicks, msc) }

func newTestBuffer(w, h int) *framebuffer.MemPixelBuffer {
	return framebuffer.NewMemPixelBuffer(w, h, framebuffer.DefaultPixelFormat())
}
