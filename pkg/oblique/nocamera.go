package oblique

import (
	"math"
	"sort"

	"github.com/golang/geo/r2"
)

// rays from a corner only count when the edge hit lies within this angle of
// the direction towards the query point
const rayTolerance = 5 * math.Pi / 180

// LineIntersection is the result of intersecting two lines given by two
// points each.
type LineIntersection struct {
	X, Y  float64
	Valid bool // false for parallel lines, X and Y are then meaningless

	// Ratio1 and Ratio2 locate the intersection along each line, 0 at the
	// first point and 1 at the second.
	Ratio1, Ratio2 float64

	// OnLine1 and OnLine2 report whether the intersection lies strictly
	// inside the respective segment.
	OnLine1, OnLine2 bool
}

// CheckLineIntersection intersects line a1-a2 with line b1-b2.
func CheckLineIntersection(a1, a2, b1, b2 r2.Point) LineIntersection {
	denom := (b2.Y-b1.Y)*(a2.X-a1.X) - (b2.X-b1.X)*(a2.Y-a1.Y)
	if denom == 0 {
		return LineIntersection{}
	}

	ua := ((b2.X-b1.X)*(a1.Y-b1.Y) - (b2.Y-b1.Y)*(a1.X-b1.X)) / denom
	ub := ((a2.X-a1.X)*(a1.Y-b1.Y) - (a2.Y-a1.Y)*(a1.X-b1.X)) / denom

	return LineIntersection{
		X:       a1.X + ua*(a2.X-a1.X),
		Y:       a1.Y + ua*(a2.Y-a1.Y),
		Valid:   true,
		Ratio1:  ua,
		Ratio2:  ub,
		OnLine1: ua > 0 && ua < 1,
		OnLine2: ub > 0 && ub < 1,
	}
}

// SortRealWorldEdgeCoordinates orders four corners as lower-left,
// lower-right, upper-right, upper-left and rotates the result by the view
// direction (East one step, South two, West three).
//
// Corners are matched greedily to the corners of their axis-aligned bounding
// box. Sorting an already sorted quad with the same direction returns it
// unchanged.
func SortRealWorldEdgeCoordinates(coords [4]r2.Point, dir ViewDirection) [4]r2.Point {
	return rotateCorners(canonicalCorners(coords), dir.cornerRotation())
}

func canonicalCorners(coords [4]r2.Point) [4]r2.Point {
	rect := r2.RectFromPoints(coords[:]...)
	targets := [4]r2.Point{
		rect.Lo(),
		{X: rect.X.Hi, Y: rect.Y.Lo},
		rect.Hi(),
		{X: rect.X.Lo, Y: rect.Y.Hi},
	}

	var sorted [4]r2.Point
	var used [4]bool
	for i, t := range targets {
		best, bestDist := -1, math.Inf(1)
		for j, c := range coords {
			if used[j] {
				continue
			}
			if d := c.Sub(t).Norm(); d < bestDist {
				best, bestDist = j, d
			}
		}
		used[best] = true
		sorted[i] = coords[best]
	}
	return sorted
}

func rotateCorners(c [4]r2.Point, k int) [4]r2.Point {
	var out [4]r2.Point
	for i := range out {
		out[i] = c[((i-k)%4+4)%4]
	}
	return out
}

// cornerHit is the best far-edge intersection of the ray from one corner
// through the query point.
type cornerHit struct {
	corner int
	edge   int // edge runs from corner edge to corner edge+1
	ratio  float64
	angle  float64
}

// transformNoCamera maps p from the origin quad into the target quad using
// only corner correspondences.
//
// For every origin corner the ray towards p is intersected with the two edges
// not touching that corner. The intersection with the steeper crossing angle
// is kept. Pairs of corners are then tried in order of their summed angles:
// both edge hits are moved to the target quad at the same edge ratio and the
// two target rays are intersected.
func transformNoCamera(origin, target [4]r2.Point, p r2.Point) (r2.Point, error) {
	var hits []cornerHit
	for i, c := range origin {
		ray := p.Sub(c)
		if ray.Norm() < 1e-9 {
			continue
		}
		bearing := math.Atan2(ray.Y, ray.X)

		var best *cornerHit
		for _, e := range []int{(i + 1) % 4, (i + 2) % 4} {
			e1, e2 := origin[e], origin[(e+1)%4]
			li := CheckLineIntersection(c, p, e1, e2)
			if !li.Valid {
				continue
			}
			toHit := r2.Point{X: li.X, Y: li.Y}.Sub(c)
			if toHit.Norm() < 1e-9 {
				continue
			}
			if angleBetween(math.Atan2(toHit.Y, toHit.X), bearing) > rayTolerance {
				continue
			}

			angle := crossingAngle(ray, e2.Sub(e1))
			if best == nil || angle > best.angle {
				best = &cornerHit{corner: i, edge: e, ratio: li.Ratio2, angle: angle}
			}
		}
		if best != nil {
			hits = append(hits, *best)
		}
	}

	type hitPair struct {
		a, b  cornerHit
		score float64
	}
	var pairs []hitPair
	for i := 0; i < len(hits); i++ {
		for j := i + 1; j < len(hits); j++ {
			pairs = append(pairs, hitPair{a: hits[i], b: hits[j], score: hits[i].angle + hits[j].angle})
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].score > pairs[j].score
	})

	for _, pair := range pairs {
		ta := pointOnEdge(target, pair.a)
		tb := pointOnEdge(target, pair.b)
		li := CheckLineIntersection(target[pair.a.corner], ta, target[pair.b.corner], tb)
		if li.Valid && finite(li.X) && finite(li.Y) {
			return r2.Point{X: li.X, Y: li.Y}, nil
		}
	}
	return r2.Point{}, ErrNoIntersection
}

func pointOnEdge(quad [4]r2.Point, h cornerHit) r2.Point {
	e1, e2 := quad[h.edge], quad[(h.edge+1)%4]
	return e1.Add(e2.Sub(e1).Mul(h.ratio))
}

// angleBetween returns the absolute difference of two bearings in [0, pi].
func angleBetween(a, b float64) float64 {
	d := math.Mod(a-b, 2*math.Pi)
	if d > math.Pi {
		d -= 2 * math.Pi
	} else if d < -math.Pi {
		d += 2 * math.Pi
	}
	return math.Abs(d)
}

// crossingAngle is the smaller of the two angles between two lines.
func crossingAngle(u, v r2.Point) float64 {
	n := u.Norm() * v.Norm()
	if n == 0 {
		return 0
	}
	cos := math.Abs(u.Dot(v)) / n
	if cos > 1 {
		cos = 1
	}
	return math.Acos(cos)
}
