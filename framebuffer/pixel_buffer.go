package framebuffer

import "github.com/cyberinferno/vncmux/region"

// PixelBuffer is the desktop-owned image the core reads from when it
// assembles a FramebufferUpdate. ServerCore never mutates pixel data itself;
// it only reads through this interface and tracks which parts changed via
// the update tracker.
type PixelBuffer interface {
	// Width and Height are the buffer's dimensions in pixels.
	Width() int
	Height() int

	// PixelFormat is the buffer's native pixel format. ServerCore uses this
	// as the default before a client negotiates a SetPixelFormat of its own.
	PixelFormat() PixelFormat

	// Grab returns the raw pixel data covering r, row-major, in the
	// buffer's native PixelFormat. r is guaranteed to be within
	// {0, 0, Width(), Height()} by the caller.
	Grab(r region.Rect) []byte

	// Stride is the number of bytes between the start of one row and the
	// next in the slice Grab returns for a full-width capture.
	Stride() int
}
