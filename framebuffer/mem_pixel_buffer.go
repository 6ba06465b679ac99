package framebuffer

import "github.com/cyberinferno/vncmux/region"

// MemPixelBuffer is a plain in-memory PixelBuffer backed by a byte slice.
// It is the PixelBuffer a desktop.SystemDesktop implementation hands to
// ServerCore when it has no hardware framebuffer of its own to wrap.
type MemPixelBuffer struct {
	width, height int
	format        PixelFormat
	stride        int
	pixels        []byte
}

// NewMemPixelBuffer allocates a zeroed buffer of the given size and format.
func NewMemPixelBuffer(width, height int, format PixelFormat) *MemPixelBuffer {
	stride := width * format.BytesPerPixel()
	return &MemPixelBuffer{
		width:  width,
		height: height,
		format: format,
		stride: stride,
		pixels: make([]byte, stride*height),
	}
}

func (b *MemPixelBuffer) Width() int  { return b.width }
func (b *MemPixelBuffer) Height() int { return b.height }

func (b *MemPixelBuffer) PixelFormat() PixelFormat { return b.format }

func (b *MemPixelBuffer) Stride() int { return b.stride }

// Grab copies out the pixel rows covering r.
func (b *MemPixelBuffer) Grab(r region.Rect) []byte {
	bpp := b.format.BytesPerPixel()
	width := r.Dx()
	out := make([]byte, width*bpp*r.Dy())
	rowBytes := width * bpp
	for row := 0; row < r.Dy(); row++ {
		srcOffset := (r.Min.Y+row)*b.stride + r.Min.X*bpp
		dstOffset := row * rowBytes
		copy(out[dstOffset:dstOffset+rowBytes], b.pixels[srcOffset:srcOffset+rowBytes])
	}
	return out
}

// Fill overwrites the whole buffer with the given pixel value, repeated.
// Used by tests and by cmd/vncmuxd's demo desktop to produce visible output
// without a real capture source.
func (b *MemPixelBuffer) Fill(pixel []byte) {
	bpp := b.format.BytesPerPixel()
	if len(pixel) != bpp {
		panic("framebuffer: pixel length does not match format's bytes per pixel")
	}
	for i := 0; i < len(b.pixels); i += bpp {
		copy(b.pixels[i:i+bpp], pixel)
	}
}

// SetPixel writes a single pixel at (x, y), used by tests to create
// deterministic dirty regions.
func (b *MemPixelBuffer) SetPixel(x, y int, pixel []byte) {
	bpp := b.format.BytesPerPixel()
	offset := y*b.stride + x*bpp
	copy(b.pixels[offset:offset+bpp], pixel)
}
