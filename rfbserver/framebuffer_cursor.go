package rfbserver

import (
	"github.com/cyberinferno/vncmux/cursor"
	"github.com/cyberinferno/vncmux/framebuffer"
	"github.com/cyberinferno/vncmux/logger"
	"github.com/cyberinferno/vncmux/region"
	"github.com/cyberinferno/vncmux/session"
	"github.com/cyberinferno/vncmux/updatetracker"
)

// SetPixelBuffer installs a new framebuffer and its screen layout, or tears
// the current one down entirely when pb is nil. Installing a buffer replaces
// the update tracker wholesale (any pending diff state referred to the old
// buffer's dimensions and is meaningless against the new one), marks the
// whole framebuffer changed, and invalidates the rendered cursor composite.
func (s *ServerCore) SetPixelBuffer(pb framebuffer.PixelBuffer, layout region.ScreenSet) {
	if pb == nil {
		if s.desktopStarted {
			s.cfg.Fatal("setPixelBuffer(nil) called while desktop is started")
		}
		s.pixelBuffer = nil
		s.comparer = nil
		s.screenLayout = region.ScreenSet{}
		return
	}

	if err := layout.Validate(pb.Width(), pb.Height()); err != nil {
		s.cfg.Fatal("setPixelBuffer given a layout that does not fit the framebuffer",
			logger.Field{Key: "error", Value: err.Error()})
		return
	}

	s.pixelBuffer = pb
	s.screenLayout = layout
	s.comparer = updatetracker.New(pb.Stride(), pb.Height(), pb.PixelFormat().BytesPerPixel())
	s.renderedCursorInvalid = true

	full := region.New(region.NewRect(0, 0, pb.Width(), pb.Height()))
	s.comparer.AddChanged(full)
	s.startFrameClock()

	for _, c := range s.clients {
		c.PixelBufferChange()
	}
}

// SetPixelBufferAuto installs pb using the current screen layout, clipped to
// the new dimensions. Screens that clip down to nothing are dropped and
// logged; if none survive, a single synthetic screen covering the whole new
// framebuffer is synthesized so the invariant "at least one screen" holds.
func (s *ServerCore) SetPixelBufferAuto(pb framebuffer.PixelBuffer) {
	kept, dropped := s.screenLayout.IntersectFramebuffer(pb.Width(), pb.Height())
	for _, id := range dropped {
		s.log.Info("screen dropped by framebuffer resize", logger.Field{Key: "screenId", Value: id})
	}
	if kept.Len() == 0 {
		kept = region.NewScreenSet(region.Screen{ID: 0, X: 0, Y: 0, W: pb.Width(), H: pb.Height()})
	}
	s.SetPixelBuffer(pb, kept)
}

// SetScreenLayout replaces the screen layout on an already-installed
// framebuffer and tells every client the change came from the server.
func (s *ServerCore) SetScreenLayout(layout region.ScreenSet) error {
	if s.pixelBuffer == nil {
		return ErrInvalid
	}
	if err := layout.Validate(s.pixelBuffer.Width(), s.pixelBuffer.Height()); err != nil {
		return ErrInvalid
	}
	s.screenLayout = layout
	for _, c := range s.clients {
		c.ScreenLayoutChangeOrClose(session.ScreenLayoutChangeServer)
	}
	return nil
}

// DesktopSnapshot describes the framebuffer as it stands right now. Sessions
// call this once they're accepted, to build ServerInit, and again whenever
// PixelBufferChange or ScreenLayoutChangeOrClose tells them to re-read it.
func (s *ServerCore) DesktopSnapshot() session.DesktopSnapshot {
	if s.pixelBuffer == nil {
		return session.DesktopSnapshot{}
	}
	return session.DesktopSnapshot{
		Width:       s.pixelBuffer.Width(),
		Height:      s.pixelBuffer.Height(),
		PixelFormat: s.pixelBuffer.PixelFormat(),
		Name:        s.desktopName,
		Screens:     s.screenLayout,
	}
}

// GrabPixels returns raw native-format pixel data for r, or nil if no
// framebuffer is installed.
func (s *ServerCore) GrabPixels(r region.Rect) []byte {
	if s.pixelBuffer == nil {
		return nil
	}
	return s.pixelBuffer.Grab(r)
}

// SetCursor replaces the cursor shape and fans out both a fresh cursor image
// and a rendered-cursor invalidation, since the composite depends on shape.
func (s *ServerCore) SetCursor(w, h int, hotspot region.Point, pixels, mask []byte) {
	s.cursor = cursor.NewCursor(w, h, hotspot.X, hotspot.Y, pixels, mask)
	s.renderedCursorInvalid = true
	for _, c := range s.clients {
		c.SetCursorOrClose()
		c.RenderedCursorChange()
	}
}

// SetCursorPos records a new cursor position. Every client's rendered
// cursor composite depends on the position, so RenderedCursorChange is
// fanned out unconditionally; CursorPositionChange (the pointer-position
// pseudo-encoding update) is only fanned out additionally when the desktop
// warped the pointer on its own, not when the move just echoes a client's
// own PointerEvent.
func (s *ServerCore) SetCursorPos(pos region.Point, warped bool) {
	if pos == s.cursorPos {
		return
	}
	s.cursorPos = pos
	s.renderedCursorInvalid = true
	for _, c := range s.clients {
		c.RenderedCursorChange()
		if warped {
			c.CursorPositionChange()
		}
	}
}

// SetLEDState updates keyboard LED state and fans it out, unless the state
// hasn't actually changed.
func (s *ServerCore) SetLEDState(state uint32) {
	if state == s.ledState {
		return
	}
	s.ledState = state
	for _, c := range s.clients {
		c.SetLEDStateOrClose(state)
	}
}

// AddChanged hints that r's pixels may have changed and ensures the frame
// clock is running to eventually pick the hint up.
func (s *ServerCore) AddChanged(r region.Region) {
	if s.comparer == nil {
		return
	}
	s.comparer.AddChanged(r)
	s.startFrameClock()
}

// AddCopied hints that dst's content is a shifted copy of itself, and
// ensures the frame clock is running.
func (s *ServerCore) AddCopied(dst region.Region, dx, dy int) {
	if s.comparer == nil {
		return
	}
	s.comparer.AddCopied(dst, dx, dy)
	s.startFrameClock()
}

// Bell fans a bell notification out to every client.
func (s *ServerCore) Bell() {
	for _, c := range s.clients {
		c.BellOrClose()
	}
}

// SetName updates the desktop name and fans it out.
func (s *ServerCore) SetName(name string) {
	s.desktopName = name
	for _, c := range s.clients {
		c.SetDesktopNameOrClose(name)
	}
}
