package oblique

import (
	"context"
	"math"
	"sync"

	"github.com/golang/geo/r3"
	"github.com/paulmach/orb"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/beetlebugorg/oblique/internal/metadata"
)

// ImageKind distinguishes real photographs from the placeholder shown by an
// empty Provider.
type ImageKind int

const (
	ImageKindReal ImageKind = iota
	ImageKindPlaceholder
)

func (k ImageKind) String() string {
	if k == ImageKindPlaceholder {
		return "placeholder"
	}
	return "real"
}

// Camera is the calibrated projection of a single photograph.
type Camera struct {
	PToImage     *mat.Dense // 4x4, world to image
	PToRealWorld *mat.Dense // 3x3, image to world ray direction
	Center       r3.Vector  // projection center
}

// Image is one oblique photograph.
type Image struct {
	Name               string
	Meta               *ImageMeta
	Kind               ImageKind
	ViewDirection      ViewDirection
	ViewDirectionAngle *float64 // heading in radians, when known

	// GroundCoordinates are the footprint corners in the projection of Meta.
	// Z holds the corner height, 0 when unknown.
	GroundCoordinates   [4]r3.Vector
	CenterPointOnGround r3.Vector
	Camera              *Camera

	worldCenter orb.Point

	heightMu      sync.Mutex
	averageHeight *float64
}

// NewImage builds an Image from a parsed record.
func NewImage(rec metadata.ImageRecord, meta *ImageMeta) (*Image, error) {
	if meta == nil {
		return nil, errors.Errorf("image %s: missing camera meta", rec.Name)
	}
	dir := ViewDirection(rec.ViewDirection)
	if !dir.Valid() {
		return nil, errors.Errorf("image %s: invalid view direction %d", rec.Name, rec.ViewDirection)
	}
	if len(rec.GroundCoordinates) != 4 {
		return nil, errors.Errorf("image %s: expected 4 ground coordinates, got %d", rec.Name, len(rec.GroundCoordinates))
	}

	img := &Image{
		Name:               rec.Name,
		Meta:               meta,
		Kind:               ImageKindReal,
		ViewDirection:      dir,
		ViewDirectionAngle: rec.ViewDirectionAngle,
	}
	for i, c := range rec.GroundCoordinates {
		img.GroundCoordinates[i] = vectorFrom(c)
	}
	img.CenterPointOnGround = vectorFrom(rec.CenterPointOnGround)

	if rec.HasCamera() {
		img.Camera = &Camera{
			PToImage:     denseFrom(rec.PToImage),
			PToRealWorld: denseFrom(rec.PToRealWorld),
			Center:       vectorFrom(rec.ProjectionCenter),
		}
	}

	img.worldCenter = ToWorld(meta.Projection, orb.Point{img.CenterPointOnGround.X, img.CenterPointOnGround.Y})
	return img, nil
}

// NewPlaceholderImage creates an image covering bound (world coordinates)
// that carries no photograph.
func NewPlaceholderImage(name string, meta *ImageMeta, bound orb.Bound) *Image {
	native := [4]orb.Point{
		FromWorld(meta.Projection, bound.Min),
		FromWorld(meta.Projection, orb.Point{bound.Max[0], bound.Min[1]}),
		FromWorld(meta.Projection, bound.Max),
		FromWorld(meta.Projection, orb.Point{bound.Min[0], bound.Max[1]}),
	}
	img := &Image{
		Name:          name,
		Meta:          meta,
		Kind:          ImageKindPlaceholder,
		ViewDirection: North,
		worldCenter:   bound.Center(),
	}
	for i, p := range native {
		img.GroundCoordinates[i] = r3.Vector{X: p[0], Y: p[1]}
	}
	c := FromWorld(meta.Projection, bound.Center())
	img.CenterPointOnGround = r3.Vector{X: c[0], Y: c[1]}
	return img
}

func vectorFrom(v []float64) r3.Vector {
	var out r3.Vector
	if len(v) > 0 {
		out.X = v[0]
	}
	if len(v) > 1 {
		out.Y = v[1]
	}
	if len(v) > 2 {
		out.Z = v[2]
	}
	return out
}

func denseFrom(rows [][]float64) *mat.Dense {
	m := mat.NewDense(len(rows), len(rows[0]), nil)
	for i, row := range rows {
		m.SetRow(i, row)
	}
	return m
}

// HasCamera reports whether exact perspective projection is available.
func (img *Image) HasCamera() bool {
	return img.Camera != nil && img.Camera.PToImage != nil && img.Camera.PToRealWorld != nil
}

// IsPlaceholder reports whether img is the placeholder variant.
func (img *Image) IsPlaceholder() bool {
	return img.Kind == ImageKindPlaceholder
}

// WorldCenter returns the center on ground in world coordinates.
func (img *Image) WorldCenter() orb.Point {
	return img.worldCenter
}

// FootprintBound returns the world bounding box of the footprint.
func (img *Image) FootprintBound() orb.Bound {
	b := ToWorld(img.Meta.Projection, orb.Point{img.GroundCoordinates[0].X, img.GroundCoordinates[0].Y}).Bound()
	for _, c := range img.GroundCoordinates[1:] {
		b = b.Extend(ToWorld(img.Meta.Projection, orb.Point{c.X, c.Y}))
	}
	return b
}

// FootprintCenter is the mean of the four footprint corners in world
// coordinates.
func (img *Image) FootprintCenter() orb.Point {
	var x, y float64
	for _, c := range img.GroundCoordinates {
		w := ToWorld(img.Meta.Projection, orb.Point{c.X, c.Y})
		x += w[0]
		y += w[1]
	}
	return orb.Point{x / 4, y / 4}
}

// AverageHeight returns the mean ground height of the footprint.
//
// The height is sampled from the terrain source at the four corners and
// falls back to the corner heights of the metadata. The first successful
// computation is memoized.
func (img *Image) AverageHeight(ctx context.Context) float64 {
	img.heightMu.Lock()
	defer img.heightMu.Unlock()

	if img.averageHeight != nil {
		return *img.averageHeight
	}

	h, ok := img.terrainAverage(ctx)
	if !ok {
		if ctx.Err() != nil {
			return img.cornerAverage()
		}
		h = img.cornerAverage()
	}
	img.averageHeight = &h
	return h
}

func (img *Image) terrainAverage(ctx context.Context) (float64, bool) {
	terrain := img.Meta.Terrain
	if terrain == nil {
		return 0, false
	}
	points := make([]orb.Point, 4)
	for i, c := range img.GroundCoordinates {
		points[i] = img.Meta.Projection.ToWGS84(orb.Point{c.X, c.Y})
	}
	heights, err := terrain.SampleHeights(ctx, points)
	if err != nil || len(heights) != len(points) {
		return 0, false
	}
	var sum float64
	for _, h := range heights {
		if math.IsNaN(h) || math.IsInf(h, 0) {
			return 0, false
		}
		sum += h
	}
	return sum / float64(len(heights)), true
}

func (img *Image) cornerAverage() float64 {
	var sum float64
	for _, c := range img.GroundCoordinates {
		sum += c.Z
	}
	return sum / 4
}
