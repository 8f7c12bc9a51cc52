package oblique

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/mat"
)

// rays closer than this to parallel with the ground plane are degenerate
const parallelEpsilon = 1e-12

var up = r3.Vector{X: 0, Y: 0, Z: 1}

// TransformImage2RealWorld converts a pixel coordinate into the image-native
// projection at the given ground height.
//
// With a camera the pixel ray is intersected with the plane z=height. Without
// one the footprint fallback is used and height is ignored. ok is false when
// the result is a substitute (the footprint center).
func (img *Image) TransformImage2RealWorld(pixel r2.Point, height float64) (orb.Point, bool) {
	if img.HasCamera() {
		return img.perspectiveImage2RealWorld(pixel, height)
	}

	p, err := transformNoCamera(img.imageCorners(), img.groundCorners(), pixel)
	if err != nil {
		return quadCenter(img.groundCorners()), false
	}
	return orb.Point{p.X, p.Y}, true
}

// TransformRealWorld2Image converts an image-native coordinate at the given
// height into a pixel coordinate. ok is false when the result is a substitute
// (the image center).
func (img *Image) TransformRealWorld2Image(world orb.Point, height float64) (r2.Point, bool) {
	if img.HasCamera() {
		return img.perspectiveRealWorld2Image(world, height)
	}

	p, err := transformNoCamera(img.groundCorners(), img.imageCorners(), r2.Point{X: world[0], Y: world[1]})
	if err != nil {
		return img.Meta.Center(), false
	}
	return p, true
}

func (img *Image) perspectiveImage2RealWorld(pixel r2.Point, height float64) (orb.Point, bool) {
	meta := img.Meta
	fallback := orb.Point{img.CenterPointOnGround.X, img.CenterPointOnGround.Y}

	if meta.HasRadial() {
		pixel = meta.RadialDistortionCoordinate(pixel, true)
	}
	row := float64(meta.Size[1]) - pixel.Y

	var d mat.VecDense
	d.MulVec(img.Camera.PToRealWorld, mat.NewVecDense(3, []float64{pixel.X, row, 1}))
	dir := r3.Vector{X: d.AtVec(0), Y: d.AtVec(1), Z: d.AtVec(2)}

	denom := up.Dot(dir)
	if math.Abs(denom) < parallelEpsilon {
		return fallback, false
	}

	c := img.Camera.Center
	plane := r3.Vector{X: c.X, Y: c.Y, Z: height}
	r := up.Dot(plane.Sub(c)) / denom
	world := c.Add(dir.Mul(r))

	if !finite(world.X) || !finite(world.Y) {
		return fallback, false
	}
	return orb.Point{world.X, world.Y}, true
}

func (img *Image) perspectiveRealWorld2Image(world orb.Point, height float64) (r2.Point, bool) {
	meta := img.Meta

	var out mat.VecDense
	out.MulVec(img.Camera.PToImage, mat.NewVecDense(4, []float64{world[0], world[1], height, 1}))
	u, v, w := out.AtVec(0), out.AtVec(1), out.AtVec(2)
	if math.Abs(w) < parallelEpsilon {
		return meta.Center(), false
	}

	pixel := r2.Point{X: u / w, Y: float64(meta.Size[1]) - v/w}
	if meta.HasRadial() {
		pixel = meta.RadialDistortionCoordinate(pixel, false)
	}
	if !finite(pixel.X) || !finite(pixel.Y) {
		return meta.Center(), false
	}
	return pixel, true
}

// imageCorners are the pixel corners in canonical order. They are already
// sorted and never rotated.
func (img *Image) imageCorners() [4]r2.Point {
	w, h := float64(img.Meta.Size[0]), float64(img.Meta.Size[1])
	return [4]r2.Point{{X: 0, Y: 0}, {X: w, Y: 0}, {X: w, Y: h}, {X: 0, Y: h}}
}

// groundCorners are the footprint corners sorted for the view direction, so
// that groundCorners()[i] corresponds to imageCorners()[i].
func (img *Image) groundCorners() [4]r2.Point {
	var pts [4]r2.Point
	for i, c := range img.GroundCoordinates {
		pts[i] = r2.Point{X: c.X, Y: c.Y}
	}
	return SortRealWorldEdgeCoordinates(pts, img.ViewDirection)
}

func quadCenter(q [4]r2.Point) orb.Point {
	var x, y float64
	for _, p := range q {
		x += p.X
		y += p.Y
	}
	return orb.Point{x / 4, y / 4}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
