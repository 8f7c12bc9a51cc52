package oblique

import (
	"context"
	"math"
	"sync"

	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"

	"github.com/beetlebugorg/oblique/internal/logger"
)

// CollectionOptions configures a Collection and the data sets it creates.
type CollectionOptions struct {
	Fetcher Fetcher
	Terrain TerrainSource
	Logger  logger.ILogger
	Metrics *Metrics

	// AdjacentBuffer is the distance around an image's footprint center that
	// is loaded before searching for an adjacent image.
	AdjacentBuffer float64

	// AdjacentCandidates is the number of nearest images inspected by
	// LoadAdjacentImage.
	AdjacentCandidates int
}

// DefaultCollectionOptions returns the standard adjacency search settings.
func DefaultCollectionOptions() CollectionOptions {
	return CollectionOptions{
		Fetcher:            NewSchemeFetcher(),
		Logger:             &logger.NullLogger{},
		AdjacentBuffer:     200,
		AdjacentCandidates: 20,
	}
}

// DefaultAdjacentDeviation is the heading window of LoadAdjacentImage.
const DefaultAdjacentDeviation = math.Pi / 4

// Collection aggregates data sets and indexes their images per direction.
//
// Image names are unique within a Collection; an image whose name is already
// known is dropped, so the data set attached first wins.
type Collection struct {
	opts     CollectionOptions
	log      logger.ILogger
	registry *ProjectionRegistry
	index    *SpatialIndex

	mu          sync.RWMutex
	loaded      bool
	destroyed   bool
	dataSets    []*DataSet
	images      map[string]*Image
	byDirection map[ViewDirection][]*Image
}

// NewCollection creates an empty, unloaded collection.
func NewCollection(opts CollectionOptions) *Collection {
	if opts.Fetcher == nil {
		opts.Fetcher = NewSchemeFetcher()
	}
	if opts.AdjacentBuffer <= 0 {
		opts.AdjacentBuffer = DefaultCollectionOptions().AdjacentBuffer
	}
	if opts.AdjacentCandidates <= 0 {
		opts.AdjacentCandidates = DefaultCollectionOptions().AdjacentCandidates
	}
	return &Collection{
		opts:        opts,
		log:         logger.OrNull(opts.Logger),
		registry:    NewProjectionRegistry(),
		index:       NewSpatialIndex(),
		images:      make(map[string]*Image),
		byDirection: make(map[ViewDirection][]*Image),
	}
}

// NewDefaultCollection returns a loaded collection holding a single
// placeholder image that covers the world.
func NewDefaultCollection() *Collection {
	c := NewCollection(DefaultCollectionOptions())
	meta := &ImageMeta{
		Name:       "default",
		Size:       [2]int{1024, 1024},
		TileSize:   [2]int{512, 512},
		Projection: Mercator,
		Format:     "png",
	}
	const extent = 20037508.342789244
	img := NewPlaceholderImage("default", meta, orb.Bound{
		Min: orb.Point{-extent, -extent},
		Max: orb.Point{extent, extent},
	})
	c.mu.Lock()
	c.loaded = true
	c.mu.Unlock()
	c.ingest([]*Image{img})
	return c
}

// Registry returns the projection registry shared by the data sets of the
// collection.
func (c *Collection) Registry() *ProjectionRegistry {
	return c.registry
}

// NewDataSet creates a data set configured like the collection.
func (c *Collection) NewDataSet(url string) *DataSet {
	return NewDataSet(url, DataSetOptions{
		Registry: c.registry,
		Terrain:  c.opts.Terrain,
		Fetcher:  c.opts.Fetcher,
		Logger:   c.opts.Logger,
		Metrics:  c.opts.Metrics,
	})
}

// AddDataSet loads ds and adds its images. The collection counts as loaded
// afterwards.
func (c *Collection) AddDataSet(ctx context.Context, ds *DataSet) error {
	if err := ds.Load(ctx); err != nil {
		return err
	}
	c.attach(ds)
	c.mu.Lock()
	c.loaded = true
	c.mu.Unlock()
	return nil
}

// attach subscribes to ds and ingests the images it already holds.
func (c *Collection) attach(ds *DataSet) {
	c.mu.Lock()
	c.dataSets = append(c.dataSets, ds)
	c.mu.Unlock()

	ds.OnImages(c.ingest)
	c.ingest(ds.Images())
}

// ingest adds new images and rebuilds the index of every touched direction.
func (c *Collection) ingest(images []*Image) {
	if len(images) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return
	}

	touched := make(map[ViewDirection]bool)
	for _, img := range images {
		if existing, ok := c.images[img.Name]; ok {
			if existing != img {
				c.log.Errorf("collection: duplicate image %s dropped", img.Name)
			}
			continue
		}
		c.images[img.Name] = img
		c.byDirection[img.ViewDirection] = append(c.byDirection[img.ViewDirection], img)
		touched[img.ViewDirection] = true
	}

	for _, dir := range ViewDirections {
		if touched[dir] {
			c.index.Load(dir, c.byDirection[dir])
		}
	}
}

// Loaded reports whether a data set was added.
func (c *Collection) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// DataSets returns the attached data sets.
func (c *Collection) DataSets() []*DataSet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*DataSet(nil), c.dataSets...)
}

// Image returns the image with the given name, or nil.
func (c *Collection) Image(name string) *Image {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.images[name]
}

// Images returns all images.
func (c *Collection) Images() []*Image {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Image, 0, len(c.images))
	for _, dir := range ViewDirections {
		out = append(out, c.byDirection[dir]...)
	}
	return out
}

// ImageCount returns the number of images.
func (c *Collection) ImageCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images)
}

// HasImages reports whether any direction holds an image.
func (c *Collection) HasImages() bool {
	return c.ImageCount() > 0
}

// ImageForCoordinate returns the image closest to coord (world).
//
// The preferred direction is searched first, then the other directions in
// enumeration order. The result is nil when the collection holds no image.
func (c *Collection) ImageForCoordinate(coord orb.Point, preferred ViewDirection) (*Image, error) {
	if !c.Loaded() {
		return nil, ErrNotLoaded
	}

	order := make([]ViewDirection, 0, len(ViewDirections))
	if preferred.Valid() {
		order = append(order, preferred)
	}
	for _, dir := range ViewDirections {
		if dir != preferred {
			order = append(order, dir)
		}
	}

	for _, dir := range order {
		if names := c.index.Nearest(dir, coord, 1); len(names) > 0 {
			return c.Image(names[0]), nil
		}
	}
	return nil, nil
}

// LoadAdjacentImage returns a neighbor of img in the given heading.
//
// heading is a bearing in radians measured counter-clockwise from east, as
// returned by atan2(dy, dx). The data around the footprint center is loaded
// first; then the nearest images of the same direction are inspected
// nearest-first and the first one whose bearing lies within deviation of
// heading is returned. The result is nil when no candidate matches.
func (c *Collection) LoadAdjacentImage(ctx context.Context, img *Image, heading, deviation float64) (*Image, error) {
	if !c.Loaded() {
		return nil, ErrNotLoaded
	}

	center := img.FootprintCenter()
	if err := c.LoadDataForExtent(ctx, center.Bound().Pad(c.opts.AdjacentBuffer)); err != nil {
		return nil, err
	}

	for _, name := range c.index.Nearest(img.ViewDirection, center, c.opts.AdjacentCandidates) {
		if name == img.Name {
			continue
		}
		candidate := c.Image(name)
		if candidate == nil {
			continue
		}
		wc := candidate.WorldCenter()
		bearing := normalizeAngle(math.Atan2(wc[1]-center[1], wc[0]-center[0]))
		if angleBetween(bearing, heading) <= deviation {
			return candidate, nil
		}
	}
	return nil, nil
}

// normalizeAngle maps a to [0, 2pi).
func normalizeAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a
}

// LoadDataForCoordinate asks every data set to load the data around coord.
func (c *Collection) LoadDataForCoordinate(ctx context.Context, coord orb.Point) error {
	if !c.Loaded() {
		return ErrNotLoaded
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, ds := range c.DataSets() {
		ds := ds
		g.Go(func() error { return ds.LoadDataForCoordinate(gctx, coord) })
	}
	return g.Wait()
}

// LoadDataForExtent asks every data set to load the data within extent.
func (c *Collection) LoadDataForExtent(ctx context.Context, extent orb.Bound) error {
	if !c.Loaded() {
		return ErrNotLoaded
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, ds := range c.DataSets() {
		ds := ds
		g.Go(func() error { return ds.LoadDataForExtent(gctx, extent) })
	}
	return g.Wait()
}

// DataStateForCoordinate aggregates the data set states at coord. A
// collection without data sets is Ready.
func (c *Collection) DataStateForCoordinate(coord orb.Point) DataState {
	state := DataStateReady
	for _, ds := range c.DataSets() {
		state = CombineDataStates(state, ds.DataStateForCoordinate(coord))
	}
	return state
}

// DataStateForExtent aggregates the data set states within extent.
func (c *Collection) DataStateForExtent(extent orb.Bound) DataState {
	state := DataStateReady
	for _, ds := range c.DataSets() {
		state = CombineDataStates(state, ds.DataStateForExtent(extent))
	}
	return state
}

// Destroy drops all data sets and images. A destroyed collection stays
// unloaded and ignores images its former data sets still deliver.
func (c *Collection) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = false
	c.destroyed = true
	c.dataSets = nil
	c.images = make(map[string]*Image)
	c.byDirection = make(map[ViewDirection][]*Image)
	c.index.Clear()
}
