package region

import (
	"image"
	"sort"
)

// Region is a finite union of axis-aligned rectangles, closed under
// union/intersect/subtract. Two regions are equal iff they cover the same
// set of points, regardless of how that area happens to be tiled — so the
// internal representation is always kept in a canonical, disjoint,
// deterministically-ordered decomposition and every mutating operation
// re-derives that decomposition rather than merely appending rectangles.
type Region struct {
	rects []Rect
}

// New builds a Region covering the union of the given rectangles. Empty
// rectangles are discarded.
func New(rects ...Rect) Region {
	r := Region{rects: append([]Rect(nil), rects...)}
	return combine(r, Region{}, func(a, _ bool) bool { return a })
}

// IsEmpty reports whether the region covers no points.
func (r Region) IsEmpty() bool {
	return len(r.rects) == 0
}

// Rects returns the region's canonical, disjoint rectangles. The returned
// slice must not be mutated.
func (r Region) Rects() []Rect {
	return r.rects
}

// Union returns the set union of r and other.
func (r Region) Union(other Region) Region {
	return combine(r, other, func(a, b bool) bool { return a || b })
}

// Intersect returns the set intersection of r and other.
func (r Region) Intersect(other Region) Region {
	return combine(r, other, func(a, b bool) bool { return a && b })
}

// Subtract returns the points in r that are not in other.
func (r Region) Subtract(other Region) Region {
	return combine(r, other, func(a, b bool) bool { return a && !b })
}

// Equal reports whether r and other cover exactly the same set of points.
func (r Region) Equal(other Region) bool {
	ra, rb := r.rects, other.rects
	if len(ra) != len(rb) {
		return false
	}
	for i := range ra {
		if ra[i] != rb[i] {
			return false
		}
	}
	return true
}

// Translate shifts every point in the region by (dx, dy).
func (r Region) Translate(dx, dy int) Region {
	out := make([]Rect, len(r.rects))
	for i, rect := range r.rects {
		out[i] = rect.Add(image.Pt(dx, dy))
	}
	return Region{rects: out}
}

// BoundingBox returns the smallest rectangle enclosing the whole region.
// The zero Rect is returned for an empty region.
func (r Region) BoundingBox() Rect {
	if len(r.rects) == 0 {
		return Rect{}
	}
	box := r.rects[0]
	for _, rect := range r.rects[1:] {
		box = box.Union(rect)
	}
	return box
}

// combine rasterizes a and b onto a shared coordinate grid, evaluates op at
// every cell, and re-merges covered cells into a canonical, deterministic
// set of maximal disjoint rectangles.
func combine(a, b Region, op func(inA, inB bool) bool) Region {
	if len(a.rects) == 0 && len(b.rects) == 0 {
		return Region{}
	}

	xs := boundarySet(a.rects, b.rects, func(r Rect) (int, int) { return r.Min.X, r.Max.X })
	ys := boundarySet(a.rects, b.rects, func(r Rect) (int, int) { return r.Min.Y, r.Max.Y })
	if len(xs) < 2 || len(ys) < 2 {
		return Region{}
	}

	cols := len(xs) - 1
	rows := len(ys) - 1
	covered := make([][]bool, rows)
	for row := 0; row < rows; row++ {
		covered[row] = make([]bool, cols)
		cy := ys[row]
		for col := 0; col < cols; col++ {
			cx := xs[col]
			covered[row][col] = op(containsPoint(a.rects, cx, cy), containsPoint(b.rects, cx, cy))
		}
	}

	return Region{rects: mergeGrid(covered, xs, ys)}
}

func boundarySet(a, b []Rect, get func(Rect) (int, int)) []int {
	seen := make(map[int]struct{})
	for _, r := range append(append([]Rect(nil), a...), b...) {
		lo, hi := get(r)
		seen[lo] = struct{}{}
		seen[hi] = struct{}{}
	}
	out := make([]int, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

func containsPoint(rects []Rect, x, y int) bool {
	for _, r := range rects {
		if x >= r.Min.X && x < r.Max.X && y >= r.Min.Y && y < r.Max.Y {
			return true
		}
	}
	return false
}

// mergeGrid sweeps the covered grid row by row, extending in-progress
// rectangles whose column span is unchanged and closing off the rest, which
// yields a deterministic maximal decomposition for a given grid.
func mergeGrid(covered [][]bool, xs, ys []int) []Rect {
	type active struct {
		colStart, colEnd int
		rect             Rect
	}

	var result []Rect
	var actives []active

	rows := len(covered)
	for row := 0; row < rows; row++ {
		runs := rowRuns(covered[row])

		matched := make([]bool, len(actives))
		var nextActives []active

		for _, run := range runs {
			extended := false
			for i, act := range actives {
				if matched[i] {
					continue
				}
				if act.colStart == run.colStart && act.colEnd == run.colEnd {
					act.rect.Max.Y = ys[row+1]
					nextActives = append(nextActives, act)
					matched[i] = true
					extended = true
					break
				}
			}
			if !extended {
				nextActives = append(nextActives, active{
					colStart: run.colStart,
					colEnd:   run.colEnd,
					rect:     NewRect(xs[run.colStart], ys[row], xs[run.colEnd]-xs[run.colStart], ys[row+1]-ys[row]),
				})
			}
		}

		for i, act := range actives {
			if !matched[i] {
				result = append(result, act.rect)
			}
		}
		actives = nextActives
	}

	for _, act := range actives {
		result = append(result, act.rect)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Min.Y != result[j].Min.Y {
			return result[i].Min.Y < result[j].Min.Y
		}
		return result[i].Min.X < result[j].Min.X
	})

	return result
}

type colRun struct{ colStart, colEnd int }

func rowRuns(row []bool) []colRun {
	var runs []colRun
	start := -1
	for col, v := range row {
		if v && start == -1 {
			start = col
		}
		if !v && start != -1 {
			runs = append(runs, colRun{start, col})
			start = -1
		}
	}
	if start != -1 {
		runs = append(runs, colRun{start, len(row)})
	}
	return runs
}
