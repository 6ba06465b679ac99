package main

import (
	"github.com/cyberinferno/vncmux/desktop"
	"github.com/cyberinferno/vncmux/framebuffer"
	"github.com/cyberinferno/vncmux/logger"
	"github.com/cyberinferno/vncmux/region"
)

// repaintEveryNTicks throttles the demo desktop's animation so it doesn't
// repaint (and mark the whole framebuffer changed) on every single frame
// tick, most of which would otherwise carry no actual work.
const repaintEveryNTicks = 15

// demoDesktop is a synthetic desktop.SystemDesktop: it has no real screen to
// capture, so it paints a shifting colour-bar pattern into a
// framebuffer.MemPixelBuffer to give a connecting client something to look
// at. Input and clipboard events are accepted and logged but never acted
// on — there is no real input sink to inject into.
type demoDesktop struct {
	server desktop.ServerHandle
	log    logger.Logger

	width, height int
	buf           *framebuffer.MemPixelBuffer
	started       bool

	tick  uint64
	phase int

	onTerminate func()
}

func newDemoDesktop(log logger.Logger, width, height int, onTerminate func()) *demoDesktop {
	return &demoDesktop{log: log, width: width, height: height, onTerminate: onTerminate}
}

func (d *demoDesktop) Init(server desktop.ServerHandle) {
	d.server = server
}

func (d *demoDesktop) Start() error {
	d.buf = framebuffer.NewMemPixelBuffer(d.width, d.height, framebuffer.DefaultPixelFormat())
	d.paint()
	layout := region.NewScreenSet(region.Screen{ID: 0, X: 0, Y: 0, W: d.width, H: d.height})
	d.server.SetPixelBuffer(d.buf, layout)
	d.started = true
	d.log.Info("demo desktop started",
		logger.Field{Key: "width", Value: d.width},
		logger.Field{Key: "height", Value: d.height},
	)
	return nil
}

func (d *demoDesktop) Stop() {
	d.started = false
	d.log.Info("demo desktop stopped")
}

// Terminate handles the "terminate process" outcome of the core's three exit
// timers (idle/connect/disconnect timeout): it asks main to begin a graceful shutdown rather than exiting inline, so
// in-flight dispatch work isn't torn down mid-call.
func (d *demoDesktop) Terminate() {
	d.log.Warn("terminate requested")
	if d.onTerminate != nil {
		d.onTerminate()
	}
}

func (d *demoDesktop) PointerEvent(pos region.Point, buttonMask uint8) {
	d.log.Debug("pointer event", logger.Field{Key: "x", Value: pos.X}, logger.Field{Key: "y", Value: pos.Y}, logger.Field{Key: "mask", Value: buttonMask})
}

func (d *demoDesktop) KeyEvent(keysym uint32, keycode uint32, down bool) {
	d.log.Debug("key event", logger.Field{Key: "keysym", Value: keysym}, logger.Field{Key: "down", Value: down})
}

// SetScreenLayout reallocates the demo framebuffer at the requested size
// and repaints it, so a client-requested resize is actually visible rather
// than just accepted on paper.
func (d *demoDesktop) SetScreenLayout(w, h int, layout region.ScreenSet) (desktop.SetScreenLayoutResult, error) {
	if w <= 0 || h <= 0 || w > 8192 || h > 8192 {
		return desktop.SetScreenLayoutProhibited, nil
	}
	d.width, d.height = w, h
	d.buf = framebuffer.NewMemPixelBuffer(w, h, framebuffer.DefaultPixelFormat())
	d.paint()
	d.server.SetPixelBuffer(d.buf, layout)
	return desktop.SetScreenLayoutSuccess, nil
}

// HandleClipboardRequest never replies: this demo has no real system
// clipboard to source data from, and ServerHandle intentionally has no
// method for a desktop to push clipboard content back.
func (d *demoDesktop) HandleClipboardRequest() {
	d.log.Debug("clipboard requested, demo desktop has no clipboard to offer")
}

func (d *demoDesktop) HandleClipboardAnnounce(available bool) {
	d.log.Debug("clipboard announce", logger.Field{Key: "available", Value: available})
}

func (d *demoDesktop) HandleClipboardData(data string) {
	d.log.Debug("clipboard data received", logger.Field{Key: "bytes", Value: len(data)})
}

func (d *demoDesktop) QueryConnection(peerAddress string, userName string) (bool, string) {
	d.log.Info("connection query", logger.Field{Key: "peer", Value: peerAddress}, logger.Field{Key: "user", Value: userName})
	return true, ""
}

// FrameTick advances the animation, repainting and marking the whole
// framebuffer changed every repaintEveryNTicks calls.
func (d *demoDesktop) FrameTick(msc uint64) {
	d.tick++
	if d.tick%repaintEveryNTicks != 0 {
		return
	}
	d.phase = (d.phase + 1) % 256
	d.paint()
	d.server.AddChanged(region.New(region.NewRect(0, 0, d.width, d.height)))
}

// paint fills the buffer with vertical colour bars that shift with d.phase.
func (d *demoDesktop) paint() {
	barCount := 8
	barWidth := d.width / barCount
	if barWidth <= 0 {
		barWidth = 1
	}
	for x := 0; x < d.width; x++ {
		bar := (x / barWidth) % barCount
		pixel := barColor(bar, d.phase)
		for y := 0; y < d.height; y++ {
			d.buf.SetPixel(x, y, pixel)
		}
	}
}

// barColor derives a 32bpp BGRA-ordered (per DefaultPixelFormat's shifts)
// pixel for bar index i, hue-shifted by phase.
func barColor(i, phase int) []byte {
	r := uint8((i*32 + phase) % 256)
	g := uint8((i*64 + phase*2) % 256)
	b := uint8((i*96 + phase*3) % 256)
	return []byte{b, g, r, 0}
}
