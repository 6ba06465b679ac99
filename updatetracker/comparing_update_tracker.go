package updatetracker

import (
	"bytes"

	"github.com/cyberinferno/vncmux/region"
)

// pixelSource is the narrow slice of framebuffer.PixelBuffer that Compare
// needs; declared locally so this package doesn't import framebuffer just
// for a method signature.
type pixelSource interface {
	Grab(r region.Rect) []byte
	Stride() int
	Height() int
}

// ComparingUpdateTracker accumulates add_changed/add_copied hints from the
// desktop and, when enabled, uses Compare to drop hinted regions whose
// pixels turn out identical to what was last sent — a screen full of static
// content that the desktop nonetheless re-announces every tick shouldn't
// cost a FramebufferUpdate.
type ComparingUpdateTracker struct {
	changed    region.Region
	copied     region.Region
	copyDeltaX int
	copyDeltaY int
	enabled    bool

	bpp      int
	snapshot []byte
	stride   int
}

// New creates a tracker sized for a buffer with the given stride/height and
// bytes-per-pixel, matching the PixelBuffer it will be asked to Compare
// against. It starts enabled, matching ServerCore's default comparer state.
func New(stride, height, bpp int) *ComparingUpdateTracker {
	return &ComparingUpdateTracker{
		enabled:  true,
		bpp:      bpp,
		stride:   stride,
		snapshot: make([]byte, stride*height),
	}
}

// AddChanged records that r's pixel content may have changed. It only
// unions into changed; changed and copied are allowed to overlap until
// GetUpdateInfo resolves the overlap in copied's favour.
func (t *ComparingUpdateTracker) AddChanged(r region.Region) {
	t.changed = t.changed.Union(r)
}

// AddCopied records that dst's content is a copy of itself shifted by
// (dx, dy). Only one shift can be represented at a time: a copy hint that
// agrees with the pending delta extends copied; one with a different delta
// can't be reconciled with the existing hint, so both the existing copied
// region and the new destination are demoted to plain changed instead,
// leaving copied empty.
func (t *ComparingUpdateTracker) AddCopied(dst region.Region, dx, dy int) {
	if t.copied.IsEmpty() {
		t.copied = dst
		t.copyDeltaX, t.copyDeltaY = dx, dy
		return
	}

	if dx == t.copyDeltaX && dy == t.copyDeltaY {
		t.copied = t.copied.Union(dst)
		return
	}

	t.changed = t.changed.Union(t.copied).Union(dst)
	t.copied = region.Region{}
	t.copyDeltaX, t.copyDeltaY = 0, 0
}

// IsEmpty reports whether there is nothing pending at all.
func (t *ComparingUpdateTracker) IsEmpty() bool {
	return t.changed.IsEmpty() && t.copied.IsEmpty()
}

// GetUpdateInfo returns the pending changed/copied regions clipped to clip,
// with copied subtracted out of changed so the two never overlap in the
// result (they may overlap internally between AddChanged/AddCopied calls).
func (t *ComparingUpdateTracker) GetUpdateInfo(clip region.Rect) UpdateInfo {
	clipRegion := region.New(clip)
	copied := t.copied.Intersect(clipRegion)
	changed := t.changed.Intersect(clipRegion).Subtract(copied)
	return UpdateInfo{
		Changed:    changed,
		Copied:     copied,
		CopyDeltaX: t.copyDeltaX,
		CopyDeltaY: t.copyDeltaY,
	}
}

// Clear discards all pending state after a frame has been dispatched.
func (t *ComparingUpdateTracker) Clear() {
	t.changed = region.Region{}
	t.copied = region.Region{}
	t.copyDeltaX = 0
	t.copyDeltaY = 0
}

// Enable turns pixel comparison on (the default).
func (t *ComparingUpdateTracker) Enable() { t.enabled = true }

// Disable turns pixel comparison off; Compare becomes a no-op and every
// hinted region is sent regardless of whether pixels actually changed. This
// backs Config.CompareFB's "never compare" mode.
func (t *ComparingUpdateTracker) Disable() { t.enabled = false }

// Enabled reports the current comparison mode.
func (t *ComparingUpdateTracker) Enabled() bool { return t.enabled }

// Compare pixel-checks the changed region against the last snapshot taken
// from pb, drops rows that are unchanged, and refreshes the snapshot with
// current content. It reports whether the changed region was modified by
// the comparison, so the caller knows to re-fetch UpdateInfo.
func (t *ComparingUpdateTracker) Compare(pb pixelSource) bool {
	if !t.enabled || t.changed.IsEmpty() {
		return false
	}

	before := t.changed
	var survivors region.Region
	for _, rect := range t.changed.Rects() {
		survivors = survivors.Union(t.diffRect(pb, rect))
	}
	t.changed = survivors

	return !t.changed.Equal(before)
}

// diffRect compares rect's pixels against the stored snapshot row by row,
// returns the sub-region that actually differs, and updates the snapshot
// with the freshly grabbed content for the whole rect regardless of outcome.
func (t *ComparingUpdateTracker) diffRect(pb pixelSource, rect region.Rect) region.Region {
	data := pb.Grab(rect)
	width := rect.Dx()
	rowBytes := width * t.bpp
	changedRows := make([]region.Rect, 0, rect.Dy())

	for row := 0; row < rect.Dy(); row++ {
		y := rect.Min.Y + row
		srcStart := row * rowBytes
		srcRow := data[srcStart : srcStart+rowBytes]

		dstStart := y*t.stride + rect.Min.X*t.bpp
		dstEnd := dstStart + rowBytes
		if dstEnd > len(t.snapshot) {
			// Snapshot predates a framebuffer resize; treat as changed.
			changedRows = append(changedRows, region.NewRect(rect.Min.X, y, width, 1))
			continue
		}
		dstRow := t.snapshot[dstStart:dstEnd]

		if !bytes.Equal(srcRow, dstRow) {
			changedRows = append(changedRows, region.NewRect(rect.Min.X, y, width, 1))
		}
		copy(dstRow, srcRow)
	}

	return region.New(changedRows...)
}
