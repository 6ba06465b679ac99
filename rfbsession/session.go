package rfbsession

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/cyberinferno/vncmux/cacher"
	"github.com/cyberinferno/vncmux/framebuffer"
	"github.com/cyberinferno/vncmux/logger"
	"github.com/cyberinferno/vncmux/region"
	"github.com/cyberinferno/vncmux/session"
	"github.com/cyberinferno/vncmux/utils"
	"github.com/rs/zerolog"
)

const (
	writeTimeout      = 2 * time.Second
	reverseDNSTimeout = 300 * time.Millisecond
	hostnameTTL       = 10 * time.Minute
)

// Config bundles the collaborators a Session needs beyond the
// session.CoreCallbacks contract itself.
type Config struct {
	Log logger.Logger
	// HostCache backs GetPeerEndpoint's reverse-DNS lookups. Required.
	HostCache cacher.Cacher[string]
	// Dispatch enqueues fn to run on the single goroutine driving the
	// ServerCore this session belongs to. Required.
	Dispatch func(fn func())
	// NotifyClosed is invoked, on the dispatch goroutine, exactly once per
	// session after its socket is fully closed, so the carrier can call
	// ServerCore.RemoveSocket. Required.
	NotifyClosed func(net.Conn)
}

// NewFactory builds a session constructor with the given shared
// collaborators, suitable for rfbserver.Config.NewSession — a plain func
// value here rather than importing rfbserver, since ClientSession
// construction is the only thing the core needs from this package.
func NewFactory(cfg Config) func(session.CoreCallbacks, net.Conn, bool, session.AccessRight) (session.ClientSession, error) {
	return func(core session.CoreCallbacks, sock net.Conn, outgoing bool, access session.AccessRight) (session.ClientSession, error) {
		return newSession(core, sock, outgoing, access, cfg), nil
	}
}

// Session is the reference session.ClientSession implementation: a minimal
// RFB 3.8 wire codec running its own I/O on a dedicated goroutine, funneling
// every effect on the shared ServerCore through cfg.Dispatch so the core is
// only ever entered from one goroutine.
type Session struct {
	core   session.CoreCallbacks
	sock   net.Conn
	log    logger.Logger
	access session.AccessRight

	dispatch     func(fn func())
	notifyClosed func(net.Conn)
	hostCache    cacher.Cacher[string]

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once

	authenticated bool
	pixelFormat   framebuffer.PixelFormat

	pendingChanged region.Region
	pendingCopied  region.Region
}

func newSession(core session.CoreCallbacks, sock net.Conn, outgoing bool, access session.AccessRight, cfg Config) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	log := cfg.Log
	if log == nil {
		log = logger.NewZerologLogger(zerolog.New(io.Discard), "rfbsession", zerolog.Disabled)
	}
	s := &Session{
		core:         core,
		sock:         sock,
		log:          log.With(logger.Field{Key: "peer", Value: peerAddr(sock)}),
		access:       access,
		dispatch:     cfg.Dispatch,
		notifyClosed: cfg.NotifyClosed,
		hostCache:    cfg.HostCache,
		ctx:          ctx,
		cancel:       cancel,
	}
	_ = outgoing // outgoing sessions skip the server-role handshake; not built out, see DESIGN.md
	return s
}

func (s *Session) dispatchSync(fn func()) {
	done := make(chan struct{})
	s.dispatch(func() {
		fn()
		close(done)
	})
	select {
	case <-done:
	case <-s.ctx.Done():
	}
}

// Init starts the connection's handshake and read loop on its own
// goroutine; it must return immediately since it is called from the
// dispatch goroutine by ServerCore.AddSocket.
func (s *Session) Init() {
	go s.serve()
}

// Close tears down the socket exactly once. It is safe to call concurrently
// with the read loop's own blocking Read — closing unblocks it with an
// error, which the read loop treats as its own cue to clean up.
func (s *Session) Close(reason session.CloseReason) {
	s.closeOnce.Do(func() {
		s.log.Info("closing session", logger.Field{Key: "reason", Value: string(reason)})
		s.cancel()
		_ = s.sock.Close()
	})
}

func (s *Session) serve() {
	defer func() {
		s.Close("connection closed")
		if s.notifyClosed != nil {
			sock := s.sock
			s.dispatch(func() { s.notifyClosed(sock) })
		}
	}()

	if err := s.handshake(); err != nil {
		s.log.Debug("handshake failed", logger.Field{Key: "error", Value: err.Error()})
		return
	}

	for {
		msgType, body, err := s.readMessage()
		if err != nil {
			return
		}
		mt, b := msgType, body
		s.dispatch(func() { s.handleMessage(mt, b) })
	}
}

// handshake runs the RFB 3.8 version/security/init exchange synchronously
// on this session's own goroutine, deferring into the shared dispatch
// goroutine only for the calls that touch ServerCore state.
func (s *Session) handshake() error {
	if err := sendVersion(s.sock); err != nil {
		return err
	}
	clientVersion, err := readVersion(s.sock)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(clientVersion, "RFB 00") {
		return fmt.Errorf("unrecognised client version %q", clientVersion)
	}

	if err := sendSecurityTypes(s.sock, securityTypeNone); err != nil {
		return err
	}
	chosen, err := readByte(s.sock)
	if err != nil {
		return err
	}
	if chosen != securityTypeNone {
		_ = sendSecurityResult(s.sock, securityResultFailed, "unsupported security type")
		return fmt.Errorf("client chose unsupported security type %d", chosen)
	}
	if err := sendSecurityResult(s.sock, securityResultOK, ""); err != nil {
		return err
	}

	shared, err := readClientInit(s.sock)
	if err != nil {
		return err
	}

	var accept bool
	var reason string
	var snap session.DesktopSnapshot
	s.dispatchSync(func() {
		accept, reason = s.core.QueryConnection(s, "")
		if accept {
			snap = s.core.DesktopSnapshot()
		}
	})
	if !accept {
		s.log.Info("connection rejected", logger.Field{Key: "reason", Value: reason})
		return fmt.Errorf("rejected: %s", reason)
	}

	s.pixelFormat = snap.PixelFormat
	if err := sendServerInit(s.sock, snap.Width, snap.Height, snap.PixelFormat, snap.Name); err != nil {
		return err
	}
	s.log.Info("client authenticated", logger.Field{Key: "shared", Value: utils.BoolToYesNo(shared)})

	// authenticated flips on the dispatch goroutine, the same goroutine every
	// *OrClose sender below is called from, so there is no race in reading it
	// there: it is what gates the core from ever writing wire output to this
	// socket before ServerInit has gone out, matching the original's
	// RFBSTATE_NORMAL check. Until it flips, this session sits in
	// ServerCore's client list (AddSocket prepends it before Init spawns this
	// goroutine) purely so it can be found and closed, never written to.
	s.dispatchSync(func() {
		s.authenticated = true
		s.core.ClientReady(s, shared)
	})
	return nil
}

// readMessage blocks until one complete client-to-server message has been
// read off the wire, returning its type and body (excluding the type byte).
func (s *Session) readMessage() (byte, []byte, error) {
	msgType, err := readByte(s.sock)
	if err != nil {
		return 0, nil, err
	}

	switch msgType {
	case msgSetPixelFormat:
		body := make([]byte, setPixelFormatBodyLen)
		if _, err := io.ReadFull(s.sock, body); err != nil {
			return 0, nil, err
		}
		return msgType, body, nil

	case msgSetEncodings:
		hdr := make([]byte, 3)
		if _, err := io.ReadFull(s.sock, hdr); err != nil {
			return 0, nil, err
		}
		n := int(binary.BigEndian.Uint16(hdr[1:3]))
		body := make([]byte, 3+n*4)
		copy(body, hdr)
		if _, err := io.ReadFull(s.sock, body[3:]); err != nil {
			return 0, nil, err
		}
		return msgType, body, nil

	case msgFramebufferUpdateReq:
		body := make([]byte, 9)
		if _, err := io.ReadFull(s.sock, body); err != nil {
			return 0, nil, err
		}
		return msgType, body, nil

	case msgKeyEvent:
		body := make([]byte, 7)
		if _, err := io.ReadFull(s.sock, body); err != nil {
			return 0, nil, err
		}
		return msgType, body, nil

	case msgPointerEvent:
		body := make([]byte, 5)
		if _, err := io.ReadFull(s.sock, body); err != nil {
			return 0, nil, err
		}
		return msgType, body, nil

	case msgClientCutText:
		hdr := make([]byte, 7)
		if _, err := io.ReadFull(s.sock, hdr); err != nil {
			return 0, nil, err
		}
		n := binary.BigEndian.Uint32(hdr[3:7])
		body := make([]byte, 7+int(n))
		copy(body, hdr)
		if _, err := io.ReadFull(s.sock, body[7:]); err != nil {
			return 0, nil, err
		}
		return msgType, body, nil

	default:
		return 0, nil, errUnknownMessageType(msgType)
	}
}

// handleMessage applies one decoded client message against the core. It
// must run on the dispatch goroutine.
func (s *Session) handleMessage(msgType byte, body []byte) {
	switch msgType {
	case msgSetPixelFormat:
		s.pixelFormat = readPixelFormat(body[3:19])

	case msgSetEncodings:
		n := binary.BigEndian.Uint16(body[1:3])
		s.log.Debug("set encodings received", logger.Field{Key: "count", Value: n})

	case msgFramebufferUpdateReq:
		// ServerCore fans updates out to every client unconditionally
		// (writeUpdate), so there is nothing to record per request.

	case msgKeyEvent:
		if !s.access.Has(session.AccessKeyEvents) {
			return
		}
		down := body[0] != 0
		keysym := binary.BigEndian.Uint32(body[3:7])
		s.core.KeyEvent(keysym, 0, down)

	case msgPointerEvent:
		if !s.access.Has(session.AccessPointerEvents) {
			return
		}
		mask := body[0]
		x := binary.BigEndian.Uint16(body[1:3])
		y := binary.BigEndian.Uint16(body[3:5])
		s.core.PointerEvent(s, region.NewPoint(int(x), int(y)), mask)

	case msgClientCutText:
		if !s.access.Has(session.AccessCutText) {
			return
		}
		n := binary.BigEndian.Uint32(body[3:7])
		text := string(body[7 : 7+n])
		s.core.HandleClipboardAnnounce(s, true)
		s.core.HandleClipboardData(s, text)
	}
}

// ProcessMessages decodes and applies exactly one pending client message
// synchronously. It is not used by this package's own goroutine-per-socket
// wiring (see serve), but keeps the ClientSession contract usable by a
// classic single-goroutine reactor that calls it directly.
func (s *Session) ProcessMessages() error {
	msgType, body, err := s.readMessage()
	if err != nil {
		return err
	}
	s.handleMessage(msgType, body)
	return nil
}

// FlushSocket is a no-op: every outgoing message is written synchronously
// with a deadline as soon as ServerCore calls the corresponding "OrClose"
// method, so nothing is ever queued waiting to drain.
func (s *Session) FlushSocket() error { return nil }

func (s *Session) writeOrClose(buf []byte) {
	_ = s.sock.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := s.sock.Write(buf); err != nil {
		s.Close(session.CloseReason("write failed: " + err.Error()))
	}
}

// PixelBufferChange is a no-op: WriteFramebufferUpdateOrClose always
// re-fetches the current DesktopSnapshot, so there is no cached dimension
// state here to invalidate.
func (s *Session) PixelBufferChange() {}

// ScreenLayoutChangeOrClose, RenderedCursorChange, CursorPositionChange,
// SetCursorOrClose, SetLEDStateOrClose and SetDesktopNameOrClose all
// correspond to RFB pseudo-encodings (ExtendedDesktopSize, RichCursor,
// PointerPos, LED state, DesktopName) this Raw-only codec never negotiates,
// so a compliant client never expects a message for any of them — see
// DESIGN.md.
func (s *Session) ScreenLayoutChangeOrClose(session.ScreenLayoutChangeReason) {}
func (s *Session) RenderedCursorChange()                                    {}
func (s *Session) CursorPositionChange()                                    {}
func (s *Session) SetCursorOrClose()                                        {}
func (s *Session) SetLEDStateOrClose(uint32)                                {}
func (s *Session) SetDesktopNameOrClose(string)                             {}

// BellOrClose sends the one-byte Bell message. A no-op before the handshake
// has finished: the client hasn't received ServerInit yet, so it has no
// message framing to interpret this against.
func (s *Session) BellOrClose() {
	if !s.authenticated {
		return
	}
	s.writeOrClose([]byte{msgBell})
}

// AnnounceClipboardOrClose and RequestClipboardOrClose have no
// representation in base RFB 3.8 (that needs the ExtendedClipboard
// pseudo-encoding this codec doesn't negotiate); ClientCutText carries
// content and availability together, so SendClipboardDataOrClose below is
// the only clipboard message this codec actually sends.
func (s *Session) AnnounceClipboardOrClose(available bool) {}
func (s *Session) RequestClipboardOrClose()                {}

// SendClipboardDataOrClose sends a ServerCutText message. A no-op before
// the handshake has finished, for the same reason as BellOrClose.
func (s *Session) SendClipboardDataOrClose(data string) {
	if !s.authenticated {
		return
	}
	header := []byte{msgServerCutText, 0, 0, 0}
	length := binary.BigEndian.AppendUint32(nil, uint32(len(data)))
	s.writeOrClose(utils.JoinBytes(header, length, []byte(data)))
}

// ApproveConnectionOrClose only matters if something outside this package's
// own (synchronous) handshake calls ServerCore.ApproveConnection directly;
// cmd/vncmuxd's desktop.QueryConnection always answers immediately, so the
// handshake above never actually defers. A late acceptance is a no-op since
// the connection already proceeded or failed on its own; a late rejection
// closes it.
func (s *Session) ApproveConnectionOrClose(accept bool, reason string) {
	if !accept {
		s.Close(session.CloseReason(reason))
	}
}

// AddCopied folds dst into the pending update region. CopyRect encoding is
// out of scope (Raw-only), so a copy is just treated as more changed pixels
// to re-send.
func (s *Session) AddCopied(dst region.Region, dx, dy int) {
	s.pendingCopied = s.pendingCopied.Union(dst)
}

// AddChanged folds r into the pending update region.
func (s *Session) AddChanged(r region.Region) {
	s.pendingChanged = s.pendingChanged.Union(r)
}

// WriteFramebufferUpdateOrClose sends every rectangle accumulated since the
// last call as a single Raw-encoded FramebufferUpdate, converting each
// rectangle from the framebuffer's native pixel format into this client's
// negotiated one.
//
// Before the handshake finishes this deliberately leaves pendingChanged and
// pendingCopied untouched rather than sending (or discarding) them: a
// still-handshaking session has no ServerInit on the wire yet for a
// FramebufferUpdate to follow, so writing here would corrupt the client's
// framing. The regions simply keep accumulating until authenticated flips
// and the next tick flushes them in full.
func (s *Session) WriteFramebufferUpdateOrClose() {
	if !s.authenticated {
		return
	}
	toSend := s.pendingChanged.Union(s.pendingCopied)
	s.pendingChanged = region.Region{}
	s.pendingCopied = region.Region{}
	if toSend.IsEmpty() {
		return
	}

	rects := toSend.Rects()
	snap := s.core.DesktopSnapshot()

	buf := make([]byte, 0, 4)
	buf = append(buf, msgFramebufferUpdate, 0)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(rects)))

	for _, r := range rects {
		native := s.core.GrabPixels(r)
		pixels := convertPixels(native, snap.PixelFormat, s.pixelFormat)

		buf = binary.BigEndian.AppendUint16(buf, uint16(r.Min.X))
		buf = binary.BigEndian.AppendUint16(buf, uint16(r.Min.Y))
		buf = binary.BigEndian.AppendUint16(buf, uint16(r.Dx()))
		buf = binary.BigEndian.AppendUint16(buf, uint16(r.Dy()))
		buf = binary.BigEndian.AppendUint32(buf, rawEncoding)
		buf = append(buf, pixels...)
	}

	s.writeOrClose(buf)
}

func (s *Session) Authenticated() bool { return s.authenticated }

func (s *Session) AccessCheck(right session.AccessRight) bool { return s.access.Has(right) }

func (s *Session) GetSock() net.Conn { return s.sock }

// GetPeerEndpoint resolves the peer's reverse-DNS hostname, caching
// successful lookups; a lookup that errors or times out falls back to the
// raw IP without being cached, so a transient resolver outage isn't pinned
// for HostnameTTL.
func (s *Session) GetPeerEndpoint() string {
	ip := peerAddr(s.sock)
	if ip == "" || s.hostCache == nil {
		return ip
	}

	ctx, cancel := context.WithTimeout(context.Background(), reverseDNSTimeout)
	defer cancel()

	host, err := s.hostCache.GetOrFetch(ctx, ip, hostnameTTL, func(ctx context.Context) (string, error) {
		names, err := net.DefaultResolver.LookupAddr(ctx, ip)
		if err != nil || len(names) == 0 {
			return "", fmt.Errorf("no reverse dns record for %s", ip)
		}
		return strings.TrimSuffix(names[0], "."), nil
	})
	if err != nil {
		return ip
	}
	return host
}

// NeedRenderedCursor is always false: the RichCursor pseudo-encoding this
// would gate is not part of this codec's Raw-only scope.
func (s *Session) NeedRenderedCursor() bool { return false }

// GetComparerState is always false: opting a client into Config.CompareFB
// mode 2 would need a custom pseudo-encoding this codec doesn't define.
func (s *Session) GetComparerState() bool { return false }

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
