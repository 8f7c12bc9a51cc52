package oblique

import (
	"context"
	"math"

	"github.com/golang/geo/r2"
	"github.com/paulmach/orb"
)

// TransformOptions controls terrain refinement of world coordinates.
type TransformOptions struct {
	// TerrainErrorThreshold is the height change in metres below which the
	// refinement is considered converged.
	TerrainErrorThreshold float64

	// TerrainErrorCountThreshold bounds the number of refinement steps. At
	// most TerrainErrorCountThreshold+1 heights are queried.
	TerrainErrorCountThreshold int
}

// DefaultTransformOptions returns a 1m threshold and 3 refinement steps.
func DefaultTransformOptions() TransformOptions {
	return TransformOptions{
		TerrainErrorThreshold:      1,
		TerrainErrorCountThreshold: 3,
	}
}

// WorldCoordinate is a refined position in world (Web Mercator) space.
type WorldCoordinate struct {
	Point  orb.Point
	Height float64

	// Estimate is set when the height could not be confirmed by the terrain
	// source.
	Estimate bool
}

// ImageCoordinate is a pixel position in an image.
type ImageCoordinate struct {
	Point    r2.Point
	Estimate bool
}

// TransformFromImage converts a pixel coordinate into a world coordinate,
// refining the ground height with the terrain source of the image.
//
// Without a terrain source, or when a height query fails, the last computed
// coordinate is returned with Estimate set. The only error is the
// cancellation of ctx.
func (img *Image) TransformFromImage(ctx context.Context, pixel r2.Point, opts TransformOptions) (WorldCoordinate, error) {
	proj := img.Meta.Projection
	height := img.AverageHeight(ctx)
	if err := ctx.Err(); err != nil {
		return WorldCoordinate{}, err
	}

	native, ok := img.TransformImage2RealWorld(pixel, height)
	result := WorldCoordinate{Point: ToWorld(proj, native), Height: height, Estimate: !ok}

	terrain := img.Meta.Terrain
	if terrain == nil {
		result.Estimate = true
		return result, nil
	}

	count := 0
	for {
		heights, err := terrain.SampleHeights(ctx, []orb.Point{proj.ToWGS84(native)})
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}
		if err != nil || len(heights) == 0 || !finite(heights[0]) {
			result.Estimate = true
			return result, nil
		}
		count++

		previous := result.Height
		next := heights[0]
		native, ok = img.TransformImage2RealWorld(pixel, next)
		result = WorldCoordinate{Point: ToWorld(proj, native), Height: next, Estimate: !ok}

		if math.Abs(previous-next) < opts.TerrainErrorThreshold || count > opts.TerrainErrorCountThreshold {
			return result, nil
		}
	}
}

// TransformToImage converts a world coordinate into a pixel coordinate. The
// ground height is taken from the terrain source, or from the average height
// of the image with Estimate set.
func (img *Image) TransformToImage(ctx context.Context, world orb.Point) (ImageCoordinate, error) {
	proj := img.Meta.Projection
	native := FromWorld(proj, world)

	height, estimate := 0.0, true
	if terrain := img.Meta.Terrain; terrain != nil {
		heights, err := terrain.SampleHeights(ctx, []orb.Point{proj.ToWGS84(native)})
		if err == nil && len(heights) > 0 && finite(heights[0]) {
			height, estimate = heights[0], false
		}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ImageCoordinate{}, ctxErr
	}
	if estimate {
		height = img.AverageHeight(ctx)
	}

	pixel, ok := img.TransformRealWorld2Image(native, height)
	return ImageCoordinate{Point: pixel, Estimate: estimate || !ok}, nil
}
