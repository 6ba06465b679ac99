package region

import "fmt"

// Screen is one monitor within a ScreenSet.
type Screen struct {
	ID    uint32
	X, Y  int
	W, H  int
	Flags uint32
}

// Rect returns the screen's rectangle in framebuffer coordinates.
func (s Screen) Rect() Rect {
	return NewRect(s.X, s.Y, s.W, s.H)
}

// ScreenSet is an ordered collection of screens inside a framebuffer.
// Screen order is preserved; it is not itself a correctness invariant, only
// insertion-order bookkeeping for logging and deterministic test fixtures.
type ScreenSet struct {
	screens []Screen
}

// NewScreenSet builds a ScreenSet from the given screens without validating
// them against a framebuffer size; use Validate before treating it as
// authoritative.
func NewScreenSet(screens ...Screen) ScreenSet {
	return ScreenSet{screens: append([]Screen(nil), screens...)}
}

// Screens returns the set's screens in insertion order. The returned slice
// must not be mutated.
func (s ScreenSet) Screens() []Screen {
	return s.screens
}

// Len returns the number of screens.
func (s ScreenSet) Len() int {
	return len(s.screens)
}

// Validate checks the ScreenSet invariants against a framebuffer of the
// given size: at least one screen, every screen fully enclosed by the
// framebuffer rectangle, and unique IDs.
func (s ScreenSet) Validate(fbWidth, fbHeight int) error {
	if len(s.screens) == 0 {
		return fmt.Errorf("region: screen set must contain at least one screen")
	}

	fb := NewRect(0, 0, fbWidth, fbHeight)
	seen := make(map[uint32]struct{}, len(s.screens))
	for _, sc := range s.screens {
		if _, dup := seen[sc.ID]; dup {
			return fmt.Errorf("region: duplicate screen id %d", sc.ID)
		}
		seen[sc.ID] = struct{}{}

		if !sc.Rect().In(fb) {
			return fmt.Errorf("region: screen %d rect %v is not enclosed by framebuffer %v", sc.ID, sc.Rect(), fb)
		}
	}

	return nil
}

// Equal reports whether two screen sets contain the same screens (order
// insensitive, since layout equality is what setDesktopSize compares).
func (s ScreenSet) Equal(other ScreenSet) bool {
	if len(s.screens) != len(other.screens) {
		return false
	}

	byID := make(map[uint32]Screen, len(s.screens))
	for _, sc := range s.screens {
		byID[sc.ID] = sc
	}
	for _, sc := range other.screens {
		match, ok := byID[sc.ID]
		if !ok || match != sc {
			return false
		}
	}
	return true
}

// IntersectFramebuffer returns a new ScreenSet with every screen clipped to
// the given framebuffer rectangle, dropping screens that become empty.
// Dropped IDs are returned for the caller to log.
func (s ScreenSet) IntersectFramebuffer(fbWidth, fbHeight int) (kept ScreenSet, dropped []uint32) {
	fb := NewRect(0, 0, fbWidth, fbHeight)
	var out []Screen
	for _, sc := range s.screens {
		clipped := sc.Rect().Intersect(fb)
		if clipped.Empty() {
			dropped = append(dropped, sc.ID)
			continue
		}
		sc.X, sc.Y = clipped.Min.X, clipped.Min.Y
		sc.W, sc.H = clipped.Dx(), clipped.Dy()
		out = append(out, sc)
	}
	return NewScreenSet(out...), dropped
}
