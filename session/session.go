// Package session defines the contract between the multiplexer core and a
// per-client protocol implementation: what the core expects to be able to
// call on a session (ClientSession), and what a session is allowed to call
// back into the core for (CoreCallbacks). Splitting the contract into two
// narrow interfaces — rather than session importing rfbserver directly —
// breaks the server↔session↔desktop reference cycle: the core implements
// CoreCallbacks and hands itself to sessions as that interface, never the
// other way around.
package session

import (
	"net"
	"time"

	"github.com/cyberinferno/vncmux/framebuffer"
	"github.com/cyberinferno/vncmux/region"
)

// AccessRight is a single bit in a session's access rights bitset.
type AccessRight uint32

const (
	AccessView AccessRight = 1 << iota
	AccessKeyEvents
	AccessPointerEvents
	AccessCutText
	AccessSetDesktopSize
	AccessNonShared
	AccessNoQuery
)

// Has reports whether all bits in want are set in r.
func (r AccessRight) Has(want AccessRight) bool {
	return r&want == want
}

// CloseReason explains why the core is tearing down a session, for logging
// and for the wire-level disconnect message where the protocol has one.
type CloseReason string

// ScreenLayoutChangeReason distinguishes a resize the receiving client
// itself requested from one driven by someone else or the server.
type ScreenLayoutChangeReason int

const (
	ScreenLayoutChangeServer ScreenLayoutChangeReason = iota
	ScreenLayoutChangeOtherClient
)

// ClientSession is the per-client protocol handle the core drives. The core
// never inspects a session's internals; every interaction goes through this
// interface. All "OrClose" methods must absorb their own I/O failures by
// calling Close themselves rather than propagating an error the core would
// have to handle per call site.
type ClientSession interface {
	Init()
	Close(reason CloseReason)
	ProcessMessages() error
	FlushSocket() error

	PixelBufferChange()
	ScreenLayoutChangeOrClose(reason ScreenLayoutChangeReason)
	RenderedCursorChange()
	CursorPositionChange()
	SetCursorOrClose()
	SetLEDStateOrClose(state uint32)
	SetDesktopNameOrClose(name string)
	BellOrClose()
	AnnounceClipboardOrClose(available bool)
	RequestClipboardOrClose()
	SendClipboardDataOrClose(data string)
	ApproveConnectionOrClose(accept bool, reason string)

	AddCopied(dst region.Region, dx, dy int)
	AddChanged(r region.Region)
	WriteFramebufferUpdateOrClose()

	Authenticated() bool
	AccessCheck(right AccessRight) bool
	GetSock() net.Conn
	GetPeerEndpoint() string
	NeedRenderedCursor() bool
	GetComparerState() bool
}

// SetDesktopSizeResult mirrors desktop.SetScreenLayoutResult without this
// package importing desktop, so ClientSession implementations can report it
// back through CoreCallbacks without a dependency cycle.
type SetDesktopSizeResult int

const (
	SetDesktopSizeSuccess SetDesktopSizeResult = iota
	SetDesktopSizeInvalid
	SetDesktopSizeProhibited
)

// DesktopSnapshot is the read-only view of the shared framebuffer a session
// needs to build its own wire-format ServerInit and FramebufferUpdate
// messages. It is a value type so a session can cache it across calls
// without holding a reference into the core's internals.
type DesktopSnapshot struct {
	Width, Height int
	PixelFormat   framebuffer.PixelFormat
	Name          string
	Screens       region.ScreenSet
}

// CoreCallbacks is what a ClientSession implementation calls back into the
// core for: session-policy decisions and shared effects that must be
// arbitrated across every connected client, not just the caller.
type CoreCallbacks interface {
	QueryConnection(session ClientSession, userName string) (accept bool, reason string)
	ClientReady(session ClientSession, shared bool)

	KeyEvent(keysym uint32, keycode uint32, down bool)
	PointerEvent(session ClientSession, pos region.Point, buttonMask uint8)
	SetDesktopSize(requester ClientSession, w, h int, layout region.ScreenSet) (SetDesktopSizeResult, error)

	RequestClipboard(session ClientSession)
	AnnounceClipboard(session ClientSession, available bool)
	SendClipboardData(session ClientSession, data string) error
	HandleClipboardRequest(session ClientSession)
	HandleClipboardAnnounce(session ClientSession, available bool)
	HandleClipboardData(session ClientSession, data string)

	// DesktopSnapshot describes the framebuffer as it stands right now, for
	// a session building ServerInit or converting a pending update into its
	// own negotiated pixel format.
	DesktopSnapshot() DesktopSnapshot
	// GrabPixels returns raw pixel data covering r in the framebuffer's
	// native PixelFormat (see DesktopSnapshot), or nil if no framebuffer is
	// installed yet.
	GrabPixels(r region.Rect) []byte
}

// PointerOwnerGraceTime is the window after a pointer owner's last
// button-down during which other sessions' pointer events are dropped.
const PointerOwnerGraceTime = 10 * time.Second
