// Package cursor holds the cursor shape and hotspot the desktop hands to
// ServerCore, and the software-composited RenderedCursor image that gets
// baked into an update when a client can't render its own cursor.
package cursor

import "github.com/cyberinferno/vncmux/framebuffer"

// Cursor is a client-agnostic cursor shape: RGBA pixel data plus a hotspot
// offset. W and H describe the bounding box actually stored in Pixels/Mask;
// setCursor crops away all-transparent leading/trailing rows and columns so
// two logically identical cursors compare equal regardless of how much
// padding the desktop originally handed over.
type Cursor struct {
	W, H       int
	HotspotX   int
	HotspotY   int
	Pixels     []byte // W*H*4, RGBA
	Mask       []byte // W*H, one byte per pixel, nonzero = opaque
}

// NewCursor crops pixels/mask to their tightest non-empty bounding box and
// adjusts the hotspot to match, mirroring what real cursor themes need: most
// glyphs (an I-beam, a thin arrow) don't fill their nominal bounding box.
func NewCursor(w, h, hotspotX, hotspotY int, pixels, mask []byte) Cursor {
	minX, minY, maxX, maxY := boundingBox(w, h, mask)
	if minX > maxX || minY > maxY {
		return Cursor{}
	}

	croppedW := maxX - minX + 1
	croppedH := maxY - minY + 1
	croppedPixels := make([]byte, croppedW*croppedH*4)
	croppedMask := make([]byte, croppedW*croppedH)

	for y := 0; y < croppedH; y++ {
		for x := 0; x < croppedW; x++ {
			srcIdx := (minY+y)*w + (minX + x)
			dstIdx := y*croppedW + x
			croppedMask[dstIdx] = mask[srcIdx]
			copy(croppedPixels[dstIdx*4:dstIdx*4+4], pixels[srcIdx*4:srcIdx*4+4])
		}
	}

	return Cursor{
		W:        croppedW,
		H:        croppedH,
		HotspotX: hotspotX - minX,
		HotspotY: hotspotY - minY,
		Pixels:   croppedPixels,
		Mask:     croppedMask,
	}
}

func boundingBox(w, h int, mask []byte) (minX, minY, maxX, maxY int) {
	minX, minY = w, h
	maxX, maxY = -1, -1
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if mask[y*w+x] == 0 {
				continue
			}
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
		}
	}
	return
}

// IsEmpty reports whether the cursor has no visible pixels at all (fully
// transparent shape, or a zero-value Cursor).
func (c Cursor) IsEmpty() bool {
	return c.W == 0 || c.H == 0
}

// RenderedCursor is a software-composited image: the cursor's pixels blended
// over whatever framebuffer content is beneath it, in the buffer's own pixel
// format, for sessions that requested needRenderedCursor.
type RenderedCursor struct {
	X, Y   int
	W, H   int
	Format framebuffer.PixelFormat
	Pixels []byte
}
