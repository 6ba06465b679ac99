package rfbserver

import (
	"net"

	"github.com/cyberinferno/vncmux/session"
)

const reasonServerInUse = "The server is already in use"
const reasonNonSharedRequested = "Non-shared connection requested"

// QueryConnection decides whether a session may proceed past authentication.
// It always clears the peer's blacklist mark first, since a successful
// authentication attempt wipes the strike history, and lazily starts the
// desktop on the first connection attempt of any kind.
func (s *ServerCore) QueryConnection(sess session.ClientSession, userName string) (bool, string) {
	s.blacklist.ClearBlackmark(peerAddr(sess.GetSock()))

	if !s.desktopStarted {
		if err := s.startDesktop(); err != nil {
			s.CloseClients(session.CloseReason(err.Error()), nil)
			return false, err.Error()
		}
	}

	if s.cfg.NeverShared && !s.cfg.DisconnectClients && s.authClientCount() > 0 {
		return false, reasonServerInUse
	}

	if !s.cfg.QueryConnect || sess.AccessCheck(session.AccessNoQuery) {
		return true, ""
	}

	return s.desktop.QueryConnection(sess.GetPeerEndpoint(), userName)
}

// startDesktop asks the desktop to start and requires it to have installed a
// PixelBuffer by the time it returns; failure here is a resource error that
// closes every client rather than leaving half-started state. Once started,
// any changes SetPixelBuffer/AddChanged accumulated while the frame clock
// was only ticking on its slow, no-desktop-yet cadence are flushed
// immediately and the clock is re-armed at the real frame rate, rather than
// leaving the first client to wait out whatever was left of the slow tick.
func (s *ServerCore) startDesktop() error {
	if err := s.desktop.Start(); err != nil {
		return err
	}
	s.desktopStarted = true
	if s.pixelBuffer == nil {
		s.cfg.Fatal("desktop.Start returned without installing a pixel buffer")
	}

	if s.comparer != nil && !s.comparer.IsEmpty() {
		s.writeUpdate()
	}
	if s.frameTimer.IsStarted() {
		s.stopFrameClock()
		s.startFrameClock()
	}
	return nil
}

// ClientReady is called once a session has finished its handshake and knows
// whether it wants a shared or exclusive connection.
func (s *ServerCore) ClientReady(sess session.ClientSession, shared bool) {
	if shared {
		return
	}
	if s.cfg.DisconnectClients && sess.AccessCheck(session.AccessNonShared) {
		s.CloseClients(session.CloseReason(reasonNonSharedRequested), sess.GetSock())
		return
	}
	if s.authClientCount() > 1 {
		sess.Close(session.CloseReason(reasonServerInUse))
	}
}

// ApproveConnection forwards a deferred query-connection decision — one the
// desktop's own QueryConnection answered asynchronously — to the session
// that asked for it. An unknown socket (the session already disconnected)
// is silently ignored, matching removeSocket's defensive handling of
// unknown sockets.
func (s *ServerCore) ApproveConnection(sock net.Conn, accept bool, reason string) {
	if sess, ok := s.byConn.Load(sock); ok {
		sess.ApproveConnectionOrClose(accept, reason)
	}
}
