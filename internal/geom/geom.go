// Package geom provides the 2D primitives the pipeline stages share.
// Coordinates are plain floats on an X-Y plane; for DXF sources they are
// model units, for plan-JSON sources whatever the file carries.
package geom

import (
	"math"
)

// Point is a 2D coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Dist returns the Euclidean distance to q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Round returns the point with both coordinates rounded to prec decimals.
// Graph construction rounds node coordinates to merge near-duplicates.
func (p Point) Round(prec int) Point {
	return Point{X: roundTo(p.X, prec), Y: roundTo(p.Y, prec)}
}

func roundTo(v float64, prec int) float64 {
	m := math.Pow(10, float64(prec))
	return math.Round(v*m) / m
}

// Segment is a straight edge between two points.
type Segment struct {
	A Point `json:"a"`
	B Point `json:"b"`
}

// Length returns the segment length.
func (s Segment) Length() float64 { return s.A.Dist(s.B) }

// Midpoint returns the segment midpoint.
func (s Segment) Midpoint() Point {
	return Point{X: (s.A.X + s.B.X) / 2, Y: (s.A.Y + s.B.Y) / 2}
}

// DistToPoint returns the distance from p to the closest point on s.
func (s Segment) DistToPoint(p Point) float64 {
	dx := s.B.X - s.A.X
	dy := s.B.Y - s.A.Y
	ll := dx*dx + dy*dy
	if ll == 0 {
		return s.A.Dist(p)
	}
	t := ((p.X-s.A.X)*dx + (p.Y-s.A.Y)*dy) / ll
	t = math.Max(0, math.Min(1, t))
	return p.Dist(Point{X: s.A.X + t*dx, Y: s.A.Y + t*dy})
}

// Coincident reports whether two segments describe the same wall within tol.
// Rooms that share a wall usually trace it with identical endpoints in reverse
// order; partial overlaps (one wall split in two) are accepted when the shorter
// segment lies entirely on the longer one.
func Coincident(a, b Segment, tol float64) bool {
	if a.A.Dist(b.A) <= tol && a.B.Dist(b.B) <= tol {
		return true
	}
	if a.A.Dist(b.B) <= tol && a.B.Dist(b.A) <= tol {
		return true
	}
	short, long := a, b
	if short.Length() > long.Length() {
		short, long = long, short
	}
	if short.Length() <= tol {
		return false
	}
	return long.DistToPoint(short.A) <= tol && long.DistToPoint(short.B) <= tol
}

// properIntersect reports whether segments ab and cd cross at an interior
// point of both. Shared endpoints do not count.
func properIntersect(a, b, c, d Point) bool {
	d1 := cross(c, d, a)
	d2 := cross(c, d, b)
	d3 := cross(a, b, c)
	d4 := cross(a, b, d)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

func cross(o, a, b Point) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

// Polygon is an ordered ring of vertices. The closing edge from the last
// vertex back to the first is implicit; callers must not repeat the first
// vertex at the end.
type Polygon []Point

// SignedArea computes the shoelace sum. Positive for counter-clockwise rings.
func (pg Polygon) SignedArea() float64 {
	if len(pg) < 3 {
		return 0
	}
	sum := 0.0
	for i := range pg {
		j := (i + 1) % len(pg)
		sum += pg[i].X*pg[j].Y - pg[j].X*pg[i].Y
	}
	return sum / 2
}

// Area returns the absolute polygon area.
func (pg Polygon) Area() float64 {
	return math.Abs(pg.SignedArea())
}

// Centroid returns the area centroid, falling back to the vertex mean for
// degenerate rings.
func (pg Polygon) Centroid() Point {
	if len(pg) == 0 {
		return Point{}
	}
	a := pg.SignedArea()
	if math.Abs(a) < 1e-12 {
		var c Point
		for _, p := range pg {
			c.X += p.X
			c.Y += p.Y
		}
		c.X /= float64(len(pg))
		c.Y /= float64(len(pg))
		return c
	}
	var cx, cy float64
	for i := range pg {
		j := (i + 1) % len(pg)
		f := pg[i].X*pg[j].Y - pg[j].X*pg[i].Y
		cx += (pg[i].X + pg[j].X) * f
		cy += (pg[i].Y + pg[j].Y) * f
	}
	return Point{X: cx / (6 * a), Y: cy / (6 * a)}
}

// Bounds returns the axis-aligned bounding box of the ring.
func (pg Polygon) Bounds() (min, max Point) {
	if len(pg) == 0 {
		return Point{}, Point{}
	}
	min, max = pg[0], pg[0]
	for _, p := range pg[1:] {
		min.X = math.Min(min.X, p.X)
		min.Y = math.Min(min.Y, p.Y)
		max.X = math.Max(max.X, p.X)
		max.Y = math.Max(max.Y, p.Y)
	}
	return min, max
}

// Contains reports whether p lies inside the ring (ray casting). Points on
// the boundary are treated as inside within a small epsilon so grid points
// landing exactly on a wall still count.
func (pg Polygon) Contains(p Point) bool {
	if len(pg) < 3 {
		return false
	}
	const eps = 1e-9
	inside := false
	for i := range pg {
		j := (i + 1) % len(pg)
		if (Segment{A: pg[i], B: pg[j]}).DistToPoint(p) <= eps {
			return true
		}
		if (pg[i].Y > p.Y) != (pg[j].Y > p.Y) {
			x := pg[i].X + (p.Y-pg[i].Y)*(pg[j].X-pg[i].X)/(pg[j].Y-pg[i].Y)
			if p.X < x {
				inside = !inside
			}
		}
	}
	return inside
}

// Segments returns the boundary edges, closing edge included.
func (pg Polygon) Segments() []Segment {
	if len(pg) < 2 {
		return nil
	}
	out := make([]Segment, 0, len(pg))
	for i := range pg {
		j := (i + 1) % len(pg)
		out = append(out, Segment{A: pg[i], B: pg[j]})
	}
	return out
}

// Distinct returns the number of distinct vertices.
func (pg Polygon) Distinct() int {
	seen := make(map[Point]struct{}, len(pg))
	for _, p := range pg {
		seen[p] = struct{}{}
	}
	return len(seen)
}

// SelfIntersects reports whether any two non-adjacent boundary edges cross.
func (pg Polygon) SelfIntersects() bool {
	segs := pg.Segments()
	n := len(segs)
	for i := 0; i < n; i++ {
		for j := i + 2; j < n; j++ {
			if i == 0 && j == n-1 {
				continue // adjacent through the closing edge
			}
			if properIntersect(segs[i].A, segs[i].B, segs[j].A, segs[j].B) {
				return true
			}
		}
	}
	return false
}

// Valid reports whether the ring is usable as a room: at least three distinct
// vertices, non-zero area, and no self-intersection.
func (pg Polygon) Valid() bool {
	return pg.Distinct() >= 3 && pg.Area() > 1e-9 && !pg.SelfIntersects()
}
