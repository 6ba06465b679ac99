package rfbserver

import (
	"time"

	"github.com/cyberinferno/vncmux/cursor"
	"github.com/cyberinferno/vncmux/framebuffer"
	"github.com/cyberinferno/vncmux/region"
)

// ProcessTimers polls all four timers against now and fires whichever have
// expired. It is the one entry point the carrier's event loop needs beyond
// the socket-event dispatchers, matching the "single handler dispatched by
// identity" timer abstraction: the carrier doesn't need to know which timer
// fired, only that time has passed.
func (s *ServerCore) ProcessTimers(now time.Time) {
	if s.idleTimer.Expired(now) {
		s.idleTimer.Stop()
		s.log.Warn("idle timeout reached, terminating")
		s.desktop.Terminate()
	}
	if s.disconnectTimer.Expired(now) {
		s.disconnectTimer.Stop()
		s.log.Warn("disconnection timeout reached, terminating")
		s.desktop.Terminate()
	}
	if s.connectTimer.Expired(now) {
		s.connectTimer.Stop()
		s.log.Warn("connection timeout reached, terminating")
		s.desktop.Terminate()
	}
	if s.frameTimer.Expired(now) {
		s.handleFrameTimeout(now)
	}
}

// QueueMsc records that some caller wants to be woken once msc reaches
// target, and starts the frame clock if it isn't already running so that
// wake-up eventually happens. A target at or below the current msc is a
// no-op, matching the original's queueMsc guard against going backwards.
func (s *ServerCore) QueueMsc(target uint64) {
	if target <= s.msc {
		return
	}
	s.queuedMsc = target
	s.startFrameClock()
}

func (s *ServerCore) frameRateMillis() time.Duration {
	return time.Second / time.Duration(s.cfg.FrameRate)
}

const slowFrameTick = time.Second

// hasFrameWork reports whether there is anything for the frame clock to do:
// pending comparer state, or a caller waiting for msc to catch up to a
// previously queued value.
func (s *ServerCore) hasFrameWork() bool {
	return s.comparerHasWork() || s.queuedMsc >= s.msc
}

func (s *ServerCore) comparerHasWork() bool {
	return s.comparer != nil && !s.comparer.IsEmpty()
}

// handleFrameTimeout implements the frame-clock algorithm: decide whether
// there's anything to do, reschedule at the frame period (or the slow idle
// tick if the desktop hasn't started), write an update if warranted, then
// advance msc and tick the desktop.
func (s *ServerCore) handleFrameTimeout(now time.Time) {
	if !s.hasFrameWork() {
		s.frameTimer.Stop()
		return
	}

	period := s.frameRateMillis()
	if !s.desktopStarted {
		period = slowFrameTick
	}
	s.frameTimer.Start(now, period)

	if s.desktopStarted && s.comparer != nil && !s.comparer.IsEmpty() {
		s.writeUpdate()
	}

	s.msc++
	s.desktop.FrameTick(s.msc)
}

// writeUpdate diffs the framebuffer against the comparer's pending hints and
// fans the surviving regions out to every client as a paired
// add_copied/add_changed/writeFramebufferUpdateOrClose sequence.
//
// Precondition: blockCounter == 0 && desktopStarted && comparer != nil.
func (s *ServerCore) writeUpdate() {
	if s.blockCounter != 0 || !s.desktopStarted || s.comparer == nil {
		s.cfg.Fatal("writeUpdate called outside its precondition")
		return
	}

	s.perf.start()
	defer s.perf.stop()

	fbRect := boundsOf(s.pixelBuffer)
	ui := s.comparer.GetUpdateInfo(fbRect)
	toCheck := ui.Changed.Union(ui.Copied)

	cursorRect := clippedCursorRect(s.cursorPos, s.cursor, fbRect)
	if s.anyClientNeedsRenderedCursor() && !toCheck.Intersect(cursorRect).IsEmpty() {
		s.renderedCursorInvalid = true
	}

	for _, rect := range toCheck.Rects() {
		s.pixelBuffer.Grab(rect)
	}

	s.applyCompareFBSetting()

	if s.comparer.Compare(s.pixelBuffer) {
		ui = s.comparer.GetUpdateInfo(fbRect)
	}
	s.comparer.Clear()

	for _, c := range s.clients {
		c.AddCopied(ui.Copied, ui.CopyDeltaX, ui.CopyDeltaY)
		c.AddChanged(ui.Changed)
		c.WriteFramebufferUpdateOrClose()
	}
}

func (s *ServerCore) applyCompareFBSetting() {
	switch s.cfg.CompareFB {
	case 0:
		s.comparer.Disable()
	case 1:
		s.comparer.Enable()
	case 2:
		if s.anyClientWantsCompare() {
			s.comparer.Enable()
		} else {
			s.comparer.Disable()
		}
	}
}

func (s *ServerCore) anyClientWantsCompare() bool {
	for _, c := range s.clients {
		if c.GetComparerState() {
			return true
		}
	}
	return false
}

func (s *ServerCore) anyClientNeedsRenderedCursor() bool {
	for _, c := range s.clients {
		if c.NeedRenderedCursor() {
			return true
		}
	}
	return false
}

// startFrameClock arms the frame timer if it isn't already running, updates
// aren't blocked, and there's something to wait for: pending comparer state,
// a queued msc the desktop wants to catch up to, or no desktop yet (so the
// slow idle tick can keep polling for one to appear). The very first start
// uses half the frame period so this clock desynchronises from whatever
// produced the pixel data in the first place.
func (s *ServerCore) startFrameClock() {
	if s.frameTimer.IsStarted() || s.blockCounter != 0 {
		return
	}
	if !s.hasFrameWork() && s.desktopStarted {
		return
	}

	period := s.frameRateMillis()
	if !s.desktopStarted {
		period = slowFrameTick
	}
	s.frameTimer.Start(s.now(), period/2)
}

func (s *ServerCore) stopFrameClock() {
	s.frameTimer.Stop()
}

func boundsOf(pb framebuffer.PixelBuffer) region.Rect {
	return region.NewRect(0, 0, pb.Width(), pb.Height())
}

// clippedCursorRect returns the cursor's on-screen footprint at pos,
// clipped to fbRect, as a Region so it can be intersected with the pending
// update. An empty cursor has no footprint at all.
func clippedCursorRect(pos region.Point, c cursor.Cursor, fbRect region.Rect) region.Region {
	if c.IsEmpty() {
		return region.Region{}
	}
	r := region.NewRect(pos.X-c.HotspotX, pos.Y-c.HotspotY, c.W, c.H).Intersect(fbRect)
	if r.Empty() {
		return region.Region{}
	}
	return region.New(r)
}
