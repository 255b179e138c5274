// Package gridsearch finds the closest grid coordinate satisfying a predicate.
//
// The search is an unweighted breadth-first expansion over 4-connected integer
// coordinates. Every edge costs one hop, so the first coordinate accepted by the
// predicate is nearest by hop count.
package gridsearch

// MaxCoord is the largest coordinate addressable on either axis. Coordinates are
// packed into a single uint32 key, 16 bits per axis.
const MaxCoord = 0xFFFF

// Point is an integer grid coordinate with origin at the top-left.
type Point struct {
	X int
	Y int
}

// Bounds is an inclusive coordinate rectangle.
type Bounds struct {
	MinX, MinY int
	MaxX, MaxY int
}

// Contains reports whether p lies within b.
func (b Bounds) Contains(p Point) bool {
	return p.X >= b.MinX && p.X <= b.MaxX && p.Y >= b.MinY && p.Y <= b.MaxY
}

// Valid reports whether b is non-empty and addressable by the packed key.
func (b Bounds) Valid() bool {
	return b.MinX >= 0 && b.MinY >= 0 &&
		b.MinX <= b.MaxX && b.MinY <= b.MaxY &&
		b.MaxX <= MaxCoord && b.MaxY <= MaxCoord
}

type key uint32

func pack(p Point) key {
	return key(uint32(p.X)<<16 | uint32(p.Y)&MaxCoord)
}

func (k key) point() Point {
	return Point{X: int(k >> 16), Y: int(k & MaxCoord)}
}

// neighbor offsets in expansion order.
var directions = [4]Point{{X: 1}, {X: -1}, {Y: 1}, {Y: -1}}

// Nearest returns the coordinate closest to start (in hops) for which fits
// returns true. Neighbors outside bounds are never visited.
//
// Precondition: fits must be non-nil.
// Postcondition: ok is false iff no reachable coordinate within bounds fits, or
// start lies outside bounds, or bounds is not Valid.
func Nearest(start Point, bounds Bounds, fits func(Point) bool) (Point, bool) {
	if !bounds.Valid() || !bounds.Contains(start) {
		return Point{}, false
	}

	frontier := []key{pack(start)}
	visited := map[key]struct{}{pack(start): {}}

	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]

		p := cur.point()
		if fits(p) {
			return p, true
		}
		for _, d := range directions {
			nb := Point{X: p.X + d.X, Y: p.Y + d.Y}
			if !bounds.Contains(nb) {
				continue
			}
			nk := pack(nb)
			if _, seen := visited[nk]; seen {
				continue
			}
			visited[nk] = struct{}{}
			frontier = append(frontier, nk)
		}
	}
	return Point{}, false
}
