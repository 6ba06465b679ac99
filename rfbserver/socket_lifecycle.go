package rfbserver

import (
	"encoding/binary"
	"net"

	"github.com/cyberinferno/vncmux/logger"
	"github.com/cyberinferno/vncmux/session"
)

const blacklistRejectionReason = "Too many security failures"

// AddSocket admits or rejects a newly accepted (or outgoing-connected)
// socket. A blacklisted peer gets a byte-exact RFB 3.3 rejection and is
// parked in closingSockets without ever gaining a session; everything else
// gets a session, prepended to clients so fan-out order stays deterministic
// (most-recently-connected first).
func (s *ServerCore) AddSocket(sock net.Conn, outgoing bool, accessRights session.AccessRight) {
	addr := peerAddr(sock)
	if s.blacklist.IsBlackmarked(addr, s.now()) {
		s.rejectBlacklisted(sock, addr)
		return
	}

	wasEmpty := len(s.clients) == 0

	sess, err := s.cfg.NewSession(s, sock, outgoing, accessRights)
	if err != nil {
		s.log.Warn("session construction failed, closing socket",
			logger.Field{Key: "peer", Value: addr},
			logger.Field{Key: "error", Value: err.Error()},
		)
		_ = sock.Close()
		s.closingSocks = append(s.closingSocks, sock)
		return
	}

	s.clients = append([]session.ClientSession{sess}, s.clients...)
	s.byConn.Store(sock, sess)
	sess.Init()

	if wasEmpty && s.cfg.MaxConnectionTime > 0 {
		s.connectTimer.Start(s.now(), s.cfg.MaxConnectionTime)
	}
	s.disconnectTimer.Stop()
}

func (s *ServerCore) rejectBlacklisted(sock net.Conn, addr string) {
	_, _ = sock.Write(blacklistRejectionBytes())
	s.log.Info("rejected blacklisted peer", logger.Field{Key: "peer", Value: addr})
	_ = sock.Close()
	s.closingSocks = append(s.closingSocks, sock)
}

// blacklistRejectionBytes builds the exact byte-for-byte RFB 3.3 rejection
// sequence: version line, u32be security-result failure, u32be reason
// length, reason bytes.
func blacklistRejectionBytes() []byte {
	reason := []byte(blacklistRejectionReason)
	out := make([]byte, 0, len("RFB 003.003\n")+4+4+len(reason))
	out = append(out, []byte("RFB 003.003\n")...)
	out = binary.BigEndian.AppendUint32(out, 0)
	out = binary.BigEndian.AppendUint32(out, uint32(len(reason)))
	out = append(out, reason...)
	return out
}

// RemoveSocket tears down whatever this socket owned — a live session or a
// still-closing rejected socket — and re-derives the connect/disconnect
// timer state from whether any client remains.
func (s *ServerCore) RemoveSocket(sock net.Conn) {
	if sess, ok := s.byConn.Load(sock); ok {
		s.releaseOwnership(sess)
		s.log.Info("client disconnected", logger.Field{Key: "peer", Value: sess.GetPeerEndpoint()})
		s.byConn.Delete(sock)
		s.removeClientFromSlice(sess)

		if s.authClientCount() == 0 {
			s.desktop.Stop()
		}
		if len(s.clients) == 0 {
			s.connectTimer.Stop()
		}
		if len(s.clients) == 0 && s.cfg.MaxDisconnectionTime > 0 {
			s.disconnectTimer.Start(s.now(), s.cfg.MaxDisconnectionTime)
		}
		return
	}

	for i, closing := range s.closingSocks {
		if closing == sock {
			s.closingSocks = append(s.closingSocks[:i], s.closingSocks[i+1:]...)
			return
		}
	}
	// Unknown socket: the carrier is allowed to report a removal we never
	// tracked (e.g. a socket that failed before addSocket ran); ignore it.
}

// releaseOwnership drops sess's pointer/clipboard ownership before it is
// destroyed, releasing any held buttons through the desktop first so the
// desktop doesn't see a client vanish mid-drag.
func (s *ServerCore) releaseOwnership(sess session.ClientSession) {
	if s.pointerOwner == sess {
		s.desktop.PointerEvent(s.cursorPos, 0)
		s.pointerOwner = nil
	}
	if s.clipboardOwner == sess {
		s.clipboardOwner = nil
	}
	s.removeClipboardRequestor(sess)
}

// ProcessSocketReadEvent dispatches a readable-socket notification to its
// owning session.
func (s *ServerCore) ProcessSocketReadEvent(sock net.Conn) error {
	sess, ok := s.byConn.Load(sock)
	if !ok {
		return ErrNotFound
	}
	return sess.ProcessMessages()
}

// ProcessSocketWriteEvent dispatches a writable-socket notification to its
// owning session so buffered output can drain.
func (s *ServerCore) ProcessSocketWriteEvent(sock net.Conn) error {
	sess, ok := s.byConn.Load(sock)
	if !ok {
		return ErrNotFound
	}
	return sess.FlushSocket()
}

// GetSockets returns every socket the core currently knows about: live
// client sockets followed by sockets still parked in closingSockets.
func (s *ServerCore) GetSockets() []net.Conn {
	out := make([]net.Conn, 0, len(s.clients)+len(s.closingSocks))
	for _, c := range s.clients {
		out = append(out, c.GetSock())
	}
	out = append(out, s.closingSocks...)
	return out
}

// CloseClients closes every client except one (pass nil for none) with the
// given reason, in clients-list order.
func (s *ServerCore) CloseClients(reason session.CloseReason, except net.Conn) {
	for _, c := range s.clients {
		if except != nil && c.GetSock() == except {
			continue
		}
		c.Close(reason)
	}
}

func peerAddr(sock net.Conn) string {
	if sock == nil || sock.RemoteAddr() == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(sock.RemoteAddr().String())
	if err != nil {
		return sock.RemoteAddr().String()
	}
	return host
}
