// Package desktop defines the contract between the multiplexer core and the
// system desktop collaborator: the thing that actually injects input, owns
// the pixel buffer, renders the cursor, and can resize the screen.
package desktop

import (
	"github.com/cyberinferno/vncmux/framebuffer"
	"github.com/cyberinferno/vncmux/region"
)

// SetScreenLayoutResult is what SystemDesktop.SetScreenLayout reports back.
type SetScreenLayoutResult int

const (
	SetScreenLayoutSuccess SetScreenLayoutResult = iota
	SetScreenLayoutInvalid
	SetScreenLayoutProhibited
)

// ServerHandle is the narrow slice of ServerCore a SystemDesktop is allowed
// to call back into, so this package doesn't import rfbserver directly.
type ServerHandle interface {
	SetPixelBuffer(pb framebuffer.PixelBuffer, layout region.ScreenSet)
	SetPixelBufferAuto(pb framebuffer.PixelBuffer)
	SetScreenLayout(layout region.ScreenSet) error
	SetCursor(w, h int, hotspot region.Point, pixels, mask []byte)
	SetCursorPos(pos region.Point, warped bool)
	SetLEDState(state uint32)
	AddChanged(r region.Region)
	AddCopied(dst region.Region, dx, dy int)
	Bell()
	SetName(name string)
	QueueMsc(target uint64)
}

// SystemDesktop is the collaborator the core drives to inject input, obtain
// a framebuffer, and manage the screen. init(server) hands the desktop a
// ServerHandle back-pointer without creating an import cycle: desktop never
// imports rfbserver, and rfbserver.ServerCore satisfies ServerHandle.
type SystemDesktop interface {
	Init(server ServerHandle)
	Start() error
	Stop()
	Terminate()

	PointerEvent(pos region.Point, buttonMask uint8)
	KeyEvent(keysym uint32, keycode uint32, down bool)
	SetScreenLayout(w, h int, layout region.ScreenSet) (SetScreenLayoutResult, error)

	HandleClipboardRequest()
	HandleClipboardAnnounce(available bool)
	HandleClipboardData(data string)
	QueryConnection(peerAddress string, userName string) (accept bool, reason string)

	FrameTick(msc uint64)
}
