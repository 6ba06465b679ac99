package main

import (
	"net"

	"github.com/cyberinferno/vncmux/logger"
	"github.com/cyberinferno/vncmux/rfbserver"
	"github.com/cyberinferno/vncmux/safeset"
)

// acceptSession adapts a freshly accepted net.Conn to tcpserver.TCPServerSession
// without ever touching ServerCore from the goroutine tcpserver.AcceptLoop
// spawns to run it: Handle posts a single closure onto the shared dispatch
// channel and returns immediately. The actual per-connection read loop is
// started later, on its own goroutine, by rfbsession.Session.Init — which
// core.AddSocket calls once it runs on the dispatch goroutine. This is the
// "funneled through a single dispatch goroutine rather than one goroutine
// per connection" adaptation of tcpserver's accept-loop pattern: the
// goroutine-per-connection here is strictly a hand-off, never a caller of
// ServerCore.
type acceptSession struct {
	id       uint32
	conn     net.Conn
	dispatch func(func())
	core     *rfbserver.ServerCore
	log      logger.Logger

	// knownPeers is shared across every acceptSession accepted by the same
	// listener. Handle runs on its own goroutine per connection, so
	// concurrent accepts from the same source address are a real race here
	// (unlike ServerCore, which is never entered off the dispatch
	// goroutine) — hence a genuinely thread-safe set rather than a plain
	// map guarded by nothing.
	knownPeers *safeset.SafeSet[string]
}

func (a *acceptSession) ID() uint32 { return a.id }

func (a *acceptSession) Handle() {
	conn := a.conn
	core := a.core

	if host, _, err := net.SplitHostPort(conn.RemoteAddr().String()); err == nil {
		if a.knownPeers != nil && !a.knownPeers.Contains(host) {
			a.knownPeers.Add(host)
			a.log.Info("first connection from peer", logger.Field{Key: "peer", Value: host})
		}
	}

	a.dispatch(func() { core.AddSocket(conn, false, 0) })
}

func (a *acceptSession) Close() error {
	return a.conn.Close()
}

func (a *acceptSession) Send(data []byte) error {
	_, err := a.conn.Write(data)
	return err
}
