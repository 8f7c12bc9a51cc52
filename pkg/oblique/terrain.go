package oblique

import (
	"context"
	"strconv"
	"time"

	"github.com/karlseguin/ccache/v3"
	"github.com/paulmach/orb"
	"github.com/pkg/errors"
)

// TerrainSource returns ground heights for WGS84 points.
//
// Implementations must return exactly one height per point or an error.
type TerrainSource interface {
	SampleHeights(ctx context.Context, points []orb.Point) ([]float64, error)
}

// TerrainFunc adapts a function to TerrainSource.
type TerrainFunc func(ctx context.Context, points []orb.Point) ([]float64, error)

// SampleHeights calls f.
func (f TerrainFunc) SampleHeights(ctx context.Context, points []orb.Point) ([]float64, error) {
	return f(ctx, points)
}

// TerrainCacheOptions configures a CachedTerrain.
type TerrainCacheOptions struct {
	// MaxSize is the maximum number of cached heights.
	MaxSize int64

	// TTL is how long a height stays valid.
	TTL time.Duration

	// Precision is the number of decimal degrees a point is rounded to when
	// building its cache key. 6 decimals is roughly 10cm.
	Precision int
}

// DefaultTerrainCacheOptions returns options for a 10000 entry cache.
func DefaultTerrainCacheOptions() TerrainCacheOptions {
	return TerrainCacheOptions{
		MaxSize:   10000,
		TTL:       time.Hour,
		Precision: 6,
	}
}

// CachedTerrain memoizes heights of another TerrainSource.
//
// Only the misses of a request are forwarded to the wrapped source, in a
// single call.
type CachedTerrain struct {
	source  TerrainSource
	cache   *ccache.Cache[float64]
	opts    TerrainCacheOptions
	metrics *Metrics
}

// NewCachedTerrain wraps source with a height cache. Call Stop when done.
func NewCachedTerrain(source TerrainSource, opts TerrainCacheOptions, metrics *Metrics) *CachedTerrain {
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultTerrainCacheOptions().MaxSize
	}
	if opts.Precision <= 0 {
		opts.Precision = DefaultTerrainCacheOptions().Precision
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTerrainCacheOptions().TTL
	}
	return &CachedTerrain{
		source:  source,
		cache:   ccache.New(ccache.Configure[float64]().MaxSize(opts.MaxSize)),
		opts:    opts,
		metrics: metrics,
	}
}

// SampleHeights returns cached heights and queries the source for the rest.
func (t *CachedTerrain) SampleHeights(ctx context.Context, points []orb.Point) ([]float64, error) {
	heights := make([]float64, len(points))
	var missIdx []int
	var missPts []orb.Point

	for i, p := range points {
		item := t.cache.Get(t.key(p))
		if item != nil && !item.Expired() {
			heights[i] = item.Value()
			continue
		}
		missIdx = append(missIdx, i)
		missPts = append(missPts, p)
	}

	t.metrics.terrainLookup(len(points)-len(missPts), len(missPts))
	if len(missPts) == 0 {
		return heights, nil
	}

	fetched, err := t.source.SampleHeights(ctx, missPts)
	if err != nil {
		return nil, errors.Wrap(err, "sample terrain")
	}
	if len(fetched) != len(missPts) {
		return nil, errors.Errorf("terrain returned %d heights for %d points", len(fetched), len(missPts))
	}

	for j, i := range missIdx {
		heights[i] = fetched[j]
		t.cache.Set(t.key(points[i]), fetched[j], t.opts.TTL)
	}
	return heights, nil
}

// Len returns the number of cached heights.
func (t *CachedTerrain) Len() int {
	return t.cache.ItemCount()
}

// Stop releases the cache's background worker.
func (t *CachedTerrain) Stop() {
	t.cache.Stop()
}

func (t *CachedTerrain) key(p orb.Point) string {
	return strconv.FormatFloat(p[0], 'f', t.opts.Precision, 64) + "," +
		strconv.FormatFloat(p[1], 'f', t.opts.Precision, 64)
}
