package oblique

import (
	"math"

	"github.com/golang/geo/r2"

	"github.com/beetlebugorg/oblique/internal/metadata"
)

// ImageMeta is the calibration shared by all images of one camera.
//
// An ImageMeta is built once from a resolved metadata.CameraRecord and never
// modified afterwards, so it can be shared between goroutines.
type ImageMeta struct {
	Name           string
	Size           [2]int // image size in pixels
	TileSize       [2]int
	TileResolution []float64
	PrincipalPoint []float64 // pixel coordinates, optional
	PixelSize      []float64 // mm per pixel, optional
	RadialE2F      []float64 // expected to found
	RadialF2E      []float64 // found to expected
	Projection     Projection
	BaseURL        string
	Format         string
	Terrain        TerrainSource
}

// NewImageMeta builds the calibration of one camera.
func NewImageMeta(rec metadata.CameraRecord, proj Projection, baseURL string, terrain TerrainSource) *ImageMeta {
	if proj == nil {
		proj = Mercator
	}
	return &ImageMeta{
		Name:           rec.Name,
		Size:           rec.Size,
		TileSize:       rec.TileSize,
		TileResolution: rec.TileResolution,
		PrincipalPoint: rec.PrincipalPoint,
		PixelSize:      rec.PixelSize,
		RadialE2F:      rec.RadialE2F,
		RadialF2E:      rec.RadialF2E,
		Projection:     proj,
		BaseURL:        baseURL,
		Format:         rec.Format,
		Terrain:        terrain,
	}
}

// HasRadial reports whether radial distortion can be applied.
func (m *ImageMeta) HasRadial() bool {
	return len(m.PixelSize) > 0 && m.PixelSize[0] > 0 &&
		len(m.RadialE2F) > 0 && len(m.RadialF2E) > 0
}

// Center returns the pixel center of the image.
func (m *ImageMeta) Center() r2.Point {
	return r2.Point{X: float64(m.Size[0]) / 2, Y: float64(m.Size[1]) / 2}
}

func (m *ImageMeta) principalPoint() r2.Point {
	if len(m.PrincipalPoint) >= 2 {
		return r2.Point{X: m.PrincipalPoint[0], Y: m.PrincipalPoint[1]}
	}
	return m.Center()
}

// RadialDistortionCoordinate shifts p radially around the principal point.
//
// The distance to the principal point in millimetres is fed through the
// coefficient polynomial c0 + c1*d + c2*d^2 + ...; the resulting offset is
// converted back to pixels and applied along the same angle. useF2E selects
// the found-to-expected coefficients (undistort), otherwise the
// expected-to-found ones (distort) are used.
func (m *ImageMeta) RadialDistortionCoordinate(p r2.Point, useF2E bool) r2.Point {
	if !m.HasRadial() {
		return p
	}
	coeffs := m.RadialE2F
	if useF2E {
		coeffs = m.RadialF2E
	}
	pixelSize := m.PixelSize[0]

	delta := p.Sub(m.principalPoint())
	dist := delta.Norm() * pixelSize
	if dist == 0 {
		return p
	}

	offset := coeffs[0]
	pow := 1.0
	for _, c := range coeffs[1:] {
		pow *= dist
		offset += c * pow
	}

	shift := offset / pixelSize
	angle := math.Atan2(delta.Y, delta.X)
	return r2.Point{
		X: p.X + shift*math.Cos(angle),
		Y: p.Y + shift*math.Sin(angle),
	}
}
