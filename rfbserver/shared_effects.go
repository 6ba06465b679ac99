package rfbserver

import (
	"strings"

	"github.com/cyberinferno/vncmux/desktop"
	"github.com/cyberinferno/vncmux/region"
	"github.com/cyberinferno/vncmux/session"
)

// mapScreenLayoutResult translates the desktop's result enum into the
// session-facing one; the two exist separately so neither session nor
// desktop needs to import the other's package.
func mapScreenLayoutResult(r desktop.SetScreenLayoutResult) session.SetDesktopSizeResult {
	switch r {
	case desktop.SetScreenLayoutInvalid:
		return session.SetDesktopSizeInvalid
	case desktop.SetScreenLayoutProhibited:
		return session.SetDesktopSizeProhibited
	default:
		return session.SetDesktopSizeSuccess
	}
}

// KeyEvent forwards a keyboard event to the desktop after restarting the
// idle timer and remapping the keysym, unless key events are disabled.
func (s *ServerCore) KeyEvent(keysym, keycode uint32, down bool) {
	if !s.cfg.AcceptKeyEvents {
		return
	}
	s.restartIdleTimer()
	if s.cfg.KeyRemapper != nil {
		keysym = s.cfg.KeyRemapper(keysym)
	}
	s.desktop.KeyEvent(keysym, keycode, down)
}

// PointerEvent forwards a pointer event after pointer-owner arbitration: a
// session other than the current owner is dropped for PointerOwnerGraceTime
// after the owner's last button-down. Ownership is granted on any
// button-down and released the instant a session's own button-up arrives,
// regardless of the grace window.
func (s *ServerCore) PointerEvent(sess session.ClientSession, pos region.Point, buttonMask uint8) {
	if !s.cfg.AcceptPointerEvents {
		return
	}
	s.restartIdleTimer()

	now := s.now()
	if s.pointerOwner != nil && s.pointerOwner != sess && now.Sub(s.pointerOwnerSince) < session.PointerOwnerGraceTime {
		return
	}

	if buttonMask != 0 {
		s.pointerOwner = sess
		s.pointerOwnerSince = now
	} else if s.pointerOwner == sess {
		s.pointerOwner = nil
	}

	s.desktop.PointerEvent(pos, buttonMask)
}

func (s *ServerCore) restartIdleTimer() {
	if s.cfg.MaxIdleTime > 0 {
		s.idleTimer.Start(s.now(), s.cfg.MaxIdleTime)
	}
}

// SetDesktopSize validates and forwards a client-requested resize, then fans
// the accepted layout out to every other client.
func (s *ServerCore) SetDesktopSize(requester session.ClientSession, w, h int, layout region.ScreenSet) (session.SetDesktopSizeResult, error) {
	if !s.cfg.AcceptSetDesktopSize {
		return session.SetDesktopSizeProhibited, ErrProhibited
	}
	if w > 16384 || h > 16384 {
		return session.SetDesktopSizeProhibited, ErrProhibited
	}
	if err := layout.Validate(w, h); err != nil {
		return session.SetDesktopSizeInvalid, ErrInvalid
	}

	result, err := s.desktop.SetScreenLayout(w, h, layout)
	if result != desktop.SetScreenLayoutSuccess {
		return mapScreenLayoutResult(result), err
	}

	if !s.screenLayout.Equal(layout) {
		s.cfg.Fatal("desktop reported a screen layout different from the one it was told to set")
	}

	for _, c := range s.clients {
		if c != requester {
			c.ScreenLayoutChangeOrClose(session.ScreenLayoutChangeOtherClient)
		}
	}
	return session.SetDesktopSizeSuccess, nil
}

// RequestClipboard forwards a request for clipboard contents to the current
// owner; a no-op if there is no owner or sending clipboard data to clients
// is disabled.
func (s *ServerCore) RequestClipboard(sess session.ClientSession) {
	if !s.cfg.SendCutText || s.clipboardOwner == nil {
		return
	}
	s.clipboardOwner.RequestClipboardOrClose()
}

// AnnounceClipboard fans a clipboard-availability announcement out to every
// client and resets the requestor queue, since any pending request is now
// moot — the announcement itself is the answer.
func (s *ServerCore) AnnounceClipboard(sess session.ClientSession, available bool) {
	s.clipboardRequestors = nil
	if !s.cfg.SendCutText {
		return
	}
	for _, c := range s.clients {
		c.AnnounceClipboardOrClose(available)
	}
}

// SendClipboardData delivers data to every pending requestor and clears the
// queue. Data containing '\r' is rejected: clients only ever receive
// '\n'-terminated lines.
func (s *ServerCore) SendClipboardData(sess session.ClientSession, data string) error {
	if strings.ContainsRune(data, '\r') {
		return ErrInvalid
	}
	for _, r := range s.clipboardRequestors {
		r.SendClipboardDataOrClose(data)
	}
	s.clipboardRequestors = nil
	return nil
}

// HandleClipboardRequest queues sess as a clipboard requestor and, the first
// time the queue goes from empty to non-empty, asks the desktop to produce
// the data (the desktop replies asynchronously via SendClipboardData).
func (s *ServerCore) HandleClipboardRequest(sess session.ClientSession) {
	wasEmpty := len(s.clipboardRequestors) == 0
	s.clipboardRequestors = append(s.clipboardRequestors, sess)
	if wasEmpty {
		s.desktop.HandleClipboardRequest()
	}
}

// HandleClipboardAnnounce updates clipboard ownership — only the current
// owner may clear its own announcement — and forwards to the desktop,
// unless accepting clipboard content from clients is disabled.
func (s *ServerCore) HandleClipboardAnnounce(sess session.ClientSession, available bool) {
	if !s.cfg.AcceptCutText {
		return
	}
	if available {
		s.clipboardOwner = sess
	} else if s.clipboardOwner == sess {
		s.clipboardOwner = nil
	}
	s.desktop.HandleClipboardAnnounce(available)
}

// HandleClipboardData accepts clipboard data only from the current owner,
// and only when accepting clipboard content from clients is enabled;
// anything else is silently dropped, since only the owner's contents are
// authoritative.
func (s *ServerCore) HandleClipboardData(sess session.ClientSession, data string) {
	if !s.cfg.AcceptCutText || s.clipboardOwner != sess {
		return
	}
	s.desktop.HandleClipboardData(data)
}
