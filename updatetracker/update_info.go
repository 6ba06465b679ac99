// Package updatetracker accumulates pending framebuffer changes between
// frames and filters out regions the desktop flagged as changed but which
// turned out, on pixel comparison, not to have moved at all.
package updatetracker

import "github.com/cyberinferno/vncmux/region"

// UpdateInfo is the snapshot of pending work handed to each session for one
// frame: the region that must be resent verbatim, the region that can be
// satisfied with a single CopyRect, and the shift that CopyRect uses.
type UpdateInfo struct {
	Changed    region.Region
	Copied     region.Region
	CopyDeltaX int
	CopyDeltaY int
}

// IsEmpty reports whether there is nothing pending in either region.
func (u UpdateInfo) IsEmpty() bool {
	return u.Changed.IsEmpty() && u.Copied.IsEmpty()
}
