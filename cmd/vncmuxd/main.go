// Command vncmuxd runs a standalone vncmux server: a single TCP listener
// speaking RFB 3.8, backed by a synthetic animated desktop, multiplexed by
// rfbserver.ServerCore. All accept-loop and per-connection I/O goroutines
// funnel their effects on the core through one dispatch channel drained by
// a single goroutine, so ServerCore itself is only ever entered from that
// one goroutine.
package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cyberinferno/vncmux/cacher"
	"github.com/cyberinferno/vncmux/idgenerator"
	"github.com/cyberinferno/vncmux/logger"
	"github.com/cyberinferno/vncmux/rfbserver"
	"github.com/cyberinferno/vncmux/rfbsession"
	"github.com/cyberinferno/vncmux/safemap"
	"github.com/cyberinferno/vncmux/safeset"
	"github.com/cyberinferno/vncmux/session"
	"github.com/cyberinferno/vncmux/tcpserver"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	addr := flag.String("addr", ":5900", "address to listen on")
	width := flag.Int("width", 1024, "demo desktop width")
	height := flag.Int("height", 768, "demo desktop height")
	frameRate := flag.Int("framerate", 30, "frame clock rate in Hz")
	redisAddr := flag.String("redis", "", "redis address for the reverse-DNS cache; empty uses an in-memory cache")
	logLevel := flag.String("log-level", "info", "zerolog level: debug, info, warn, error")
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zl := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(level)
	log := logger.NewZerologLogger(zl, "vncmuxd", level)

	hostCache := newHostCache(*redisAddr)

	ctx, cancel := context.WithCancel(context.Background())

	dispatchCh := make(chan func(), 256)
	dispatch := func(fn func()) {
		select {
		case dispatchCh <- fn:
		case <-ctx.Done():
		}
	}

	desk := newDemoDesktop(log, *width, *height, cancel)

	knownPeers := safeset.NewSafeSet[string]()

	sessionFactory := rfbsession.NewFactory(rfbsession.Config{
		Log:       log,
		HostCache: hostCache,
		Dispatch:  dispatch,
		NotifyClosed: func(conn net.Conn) {
			if host, _, err := net.SplitHostPort(conn.RemoteAddr().String()); err == nil {
				knownPeers.Remove(host)
			}
			dispatch(func() { core.RemoveSocket(conn) })
		},
	})

	cfg := rfbserver.Config{
		NewSession: sessionFactory,

		FrameRate: *frameRate,
		CompareFB: 1,

		MaxIdleTime:          0,
		MaxDisconnectionTime: 0,
		MaxConnectionTime:    0,

		AcceptKeyEvents:      true,
		AcceptPointerEvents:  true,
		AcceptCutText:        true,
		SendCutText:          true,
		AcceptSetDesktopSize: true,
		QueryConnect:         false,
		NeverShared:          false,
		DisconnectClients:    false,

		BlacklistThreshold:   5,
		BlacklistBaseBackoff: time.Second,
		BlacklistMaxBackoff:  time.Minute,

		SlowFrameThreshold: 50 * time.Millisecond,

		RedisAddr:   *redisAddr,
		ServiceName: "vncmuxd",

		Logger: log,
	}

	core = rfbserver.New(cfg, desk)

	tcp := &tcpserver.TCPServer{
		Logger:      log,
		Name:        "vncmuxd",
		Addr:        *addr,
		Sessions:    safemap.NewSafeMap[uint32, tcpserver.TCPServerSession](),
		IdGenerator: idgenerator.NewIdGenerator(0),
		NewSession: func(id uint32, conn net.Conn) tcpserver.TCPServerSession {
			return &acceptSession{id: id, conn: conn, dispatch: dispatch, core: core, log: log, knownPeers: knownPeers}
		},
	}

	if err := tcp.Start(); err != nil {
		log.Error("failed to start listener", logger.Field{Key: "error", Value: err})
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(time.Second / time.Duration(max(*frameRate, 1)))
	defer ticker.Stop()
	go func() {
		for {
			select {
			case now := <-ticker.C:
				dispatch(func() { core.ProcessTimers(now) })
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		select {
		case sig := <-sigCh:
			log.Info("received signal, shutting down", logger.Field{Key: "signal", Value: sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	log.Info("vncmuxd listening", logger.Field{Key: "addr", Value: *addr})

	for {
		select {
		case fn := <-dispatchCh:
			fn()
		case <-ctx.Done():
			tcp.Stop()
			core.CloseClients(session.CloseReason("server shutting down"), nil)
			return
		}
	}
}

// core is the single ServerCore instance, entered only from the dispatch
// loop in main. It's a package variable because acceptSession's factory
// closure and NotifyClosed both need a reference to it before rfbserver.New
// has returned it, and both only ever read it after Start begins accepting.
var core *rfbserver.ServerCore

func newHostCache(redisAddr string) cacher.Cacher[string] {
	if redisAddr == "" {
		return cacher.NewMemoryCacher[string](time.Hour, 10*time.Minute)
	}
	client := redis.NewClient(&redis.Options{Addr: redisAddr})
	return cacher.NewRedisCacher[string](client)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
