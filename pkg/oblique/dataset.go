package oblique

import (
	"context"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/project"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/beetlebugorg/oblique/internal/logger"
	"github.com/beetlebugorg/oblique/internal/metadata"
)

// DataSetOptions configures a DataSet.
type DataSetOptions struct {
	// Projection overrides the crs of the metadata document.
	Projection Projection

	// Registry resolves the crs of the metadata document. A private registry
	// is created when nil.
	Registry *ProjectionRegistry

	// Terrain is attached to every ImageMeta of the data set.
	Terrain TerrainSource

	Fetcher Fetcher
	Logger  logger.ILogger
	Metrics *Metrics
}

// DefaultDataSetOptions returns options fetching over HTTP and from local
// files.
func DefaultDataSetOptions() DataSetOptions {
	return DataSetOptions{
		Fetcher: NewSchemeFetcher(),
		Logger:  &logger.NullLogger{},
	}
}

type tileEntry struct {
	tile  maptile.Tile
	bound orb.Bound // world
	state DataState
}

// DataSet is one metadata source of images.
//
// Non-tiled data sets create all images during Initialize. Tiled data sets
// register their tiles and load them on request; every tile moves from
// Pending over Loading to Ready exactly once, failed tiles included.
type DataSet struct {
	URL     string
	BaseURL string

	opts    DataSetOptions
	log     logger.ILogger
	flights singleflight.Group

	mu          sync.RWMutex
	state       DataState
	initialized bool
	loaded      bool
	loadErr     error
	version     metadata.Version
	cameras     []metadata.CameraRecord
	metas       []*ImageMeta
	tileLevel   int
	tiles       map[string]*tileEntry
	tileKeys    []string // document order
	images      []*Image
	listeners   []func([]*Image)
}

// NewDataSet creates a data set for the metadata document at url.
func NewDataSet(url string, opts DataSetOptions) *DataSet {
	if opts.Fetcher == nil {
		opts.Fetcher = NewSchemeFetcher()
	}
	if opts.Registry == nil {
		opts.Registry = NewProjectionRegistry()
	}
	return &DataSet{
		URL:     url,
		BaseURL: baseURL(url),
		opts:    opts,
		log:     logger.OrNull(opts.Logger),
		state:   DataStatePending,
		tiles:   make(map[string]*tileEntry),
	}
}

// Load fetches and initializes the metadata document.
//
// Concurrent and repeated calls share one fetch and return its result.
func (ds *DataSet) Load(ctx context.Context) error {
	ds.mu.RLock()
	if ds.loaded || ds.initialized {
		err := ds.loadErr
		ds.mu.RUnlock()
		return err
	}
	ds.mu.RUnlock()

	ch := ds.flights.DoChan("document", func() (interface{}, error) {
		ds.mu.Lock()
		if ds.loaded || ds.initialized {
			ds.loaded = true
			err := ds.loadErr
			ds.mu.Unlock()
			return nil, err
		}
		ds.state = DataStateLoading
		ds.mu.Unlock()

		err := ds.fetchDocument(context.WithoutCancel(ctx))

		ds.mu.Lock()
		ds.loaded = true
		ds.loadErr = err
		if err != nil && !ds.initialized {
			// nothing will ever arrive; report the data set as settled
			ds.state = DataStateReady
		}
		ds.mu.Unlock()
		return nil, err
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (ds *DataSet) fetchDocument(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { ds.opts.Metrics.fetchDone("document", start, err) }()

	data, err := ds.opts.Fetcher.Fetch(ctx, ds.URL)
	if err != nil {
		return errors.Wrapf(err, "load data set %s", ds.URL)
	}
	doc, err := metadata.Decode(data)
	if err != nil {
		return errors.Wrapf(err, "load data set %s", ds.URL)
	}
	return ds.Initialize(doc)
}

// Initialize builds the cameras and either the images or the tile grid of
// doc. A data set can only be initialized once.
func (ds *DataSet) Initialize(doc *metadata.Document) error {
	ds.mu.Lock()
	if ds.initialized {
		ds.mu.Unlock()
		return ErrAlreadyInitialized
	}
	if doc.GeneralImageInfo == nil {
		ds.mu.Unlock()
		return &metadata.ErrInvalidMetadata{Reason: "missing generalImageInfo"}
	}

	proj, err := ds.projection(doc.GeneralImageInfo.CRS)
	if err != nil {
		ds.mu.Unlock()
		return err
	}
	ds.version = metadata.ParseVersion(doc.VersionString())

	var records []metadata.ImageRecord
	if !doc.IsTiled() {
		var errs []error
		records, errs = metadata.ParseImages(doc, ds.version)
		for _, e := range errs {
			ds.log.Errorf("data set %s: skipped %v", ds.URL, e)
		}
	}

	cameras, err := metadata.BuildCameras(doc.GeneralImageInfo, records)
	if err != nil {
		ds.mu.Unlock()
		return errors.Wrapf(err, "data set %s", ds.URL)
	}
	ds.cameras = cameras
	ds.metas = make([]*ImageMeta, len(cameras))
	for i, cam := range cameras {
		ds.metas[i] = NewImageMeta(cam, proj, ds.BaseURL, ds.opts.Terrain)
	}

	var images []*Image
	if doc.IsTiled() {
		ds.registerTiles(doc)
	} else {
		images = ds.buildImages(records)
		ds.images = images
	}

	ds.initialized = true
	ds.state = DataStateReady
	tileCount := len(ds.tileKeys)
	ds.mu.Unlock()

	ds.log.Infof("data set %s: %d cameras, %d images, %d tiles", ds.URL, len(cameras), len(images), tileCount)
	ds.emit(images)
	return nil
}

func (ds *DataSet) projection(crs string) (Projection, error) {
	if ds.opts.Projection != nil {
		return ds.opts.Projection, nil
	}
	if crs == "" {
		return Mercator, nil
	}
	return ds.opts.Registry.Resolve(crs)
}

// registerTiles records the available tiles as Pending. Must be called with
// ds.mu locked.
func (ds *DataSet) registerTiles(doc *metadata.Document) {
	ds.tileLevel = doc.TileLevel
	for _, key := range doc.AvailableTiles {
		tc, err := metadata.ParseTileCoordinate(key)
		if err != nil {
			ds.log.Errorf("data set %s: %v", ds.URL, err)
			continue
		}
		key = tc.String()
		if _, ok := ds.tiles[key]; ok {
			continue
		}
		t := maptile.New(uint32(tc.X), uint32(tc.Y), maptile.Zoom(tc.Z))
		ll := t.Bound()
		ds.tiles[key] = &tileEntry{
			tile: t,
			bound: orb.Bound{
				Min: project.WGS84.ToMercator(ll.Min),
				Max: project.WGS84.ToMercator(ll.Max),
			},
			state: DataStatePending,
		}
		ds.tileKeys = append(ds.tileKeys, key)
	}
}

// buildImages attaches records to the immutable metas. Must be called with
// ds.mu held.
func (ds *DataSet) buildImages(records []metadata.ImageRecord) []*Image {
	images := make([]*Image, 0, len(records))
	for i := range records {
		idx := metadata.CameraIndexFor(&records[i], ds.cameras)
		if idx < 0 {
			ds.log.Errorf("data set %s: image %s has no camera", ds.URL, records[i].Name)
			continue
		}
		img, err := NewImage(records[i], ds.metas[idx])
		if err != nil {
			ds.log.Errorf("data set %s: %v", ds.URL, err)
			continue
		}
		images = append(images, img)
	}
	return images
}

// OnImages registers fn to be called with every batch of new images.
func (ds *DataSet) OnImages(fn func([]*Image)) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.listeners = append(ds.listeners, fn)
}

func (ds *DataSet) emit(images []*Image) {
	if len(images) == 0 {
		return
	}
	ds.mu.RLock()
	listeners := append([]func([]*Image){}, ds.listeners...)
	ds.mu.RUnlock()

	ds.opts.Metrics.imagesAdded(len(images))
	for _, fn := range listeners {
		fn(images)
	}
}

// State returns the metadata-level state.
func (ds *DataSet) State() DataState {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.state
}

// IsTiled reports whether images are loaded per tile.
func (ds *DataSet) IsTiled() bool {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return len(ds.tileKeys) > 0
}

// Metas returns the camera calibrations.
func (ds *DataSet) Metas() []*ImageMeta {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return append([]*ImageMeta(nil), ds.metas...)
}

// Images returns all images loaded so far.
func (ds *DataSet) Images() []*Image {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return append([]*Image(nil), ds.images...)
}

// TileState returns the state of the tile with the given "z/x/y" key.
func (ds *DataSet) TileState(key string) (DataState, bool) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	t, ok := ds.tiles[key]
	if !ok {
		return DataStateReady, false
	}
	return t.state, true
}

// LoadDataForCoordinate loads the tile containing coord, or the nearest
// known tile when the grid cell is not available.
func (ds *DataSet) LoadDataForCoordinate(ctx context.Context, coord orb.Point) error {
	ds.mu.RLock()
	if !ds.initialized {
		ds.mu.RUnlock()
		return ErrNotLoaded
	}
	key := ds.tileKeyFor(coord)
	ds.mu.RUnlock()

	if key == "" {
		return nil
	}
	return ds.loadTile(ctx, key)
}

// LoadDataForExtent loads every known tile overlapping extent that is not
// Ready yet.
func (ds *DataSet) LoadDataForExtent(ctx context.Context, extent orb.Bound) error {
	ds.mu.RLock()
	if !ds.initialized {
		ds.mu.RUnlock()
		return ErrNotLoaded
	}
	var keys []string
	for _, key := range ds.tileKeys {
		t := ds.tiles[key]
		if t.state != DataStateReady && t.bound.Intersects(extent) {
			keys = append(keys, key)
		}
	}
	ds.mu.RUnlock()

	var wg sync.WaitGroup
	for _, key := range keys {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			ds.loadTile(ctx, key)
		}(key)
	}
	wg.Wait()
	return ctx.Err()
}

// DataStateForCoordinate returns the state of the tile that would be loaded
// for coord.
func (ds *DataSet) DataStateForCoordinate(coord orb.Point) DataState {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	if !ds.initialized {
		return ds.state
	}
	key := ds.tileKeyFor(coord)
	if key == "" {
		return DataStateReady
	}
	return ds.tiles[key].state
}

// DataStateForExtent aggregates the states of all tiles overlapping extent.
func (ds *DataSet) DataStateForExtent(extent orb.Bound) DataState {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	if !ds.initialized {
		return ds.state
	}
	result := DataStateReady
	for _, key := range ds.tileKeys {
		t := ds.tiles[key]
		if t.bound.Intersects(extent) {
			result = CombineDataStates(result, t.state)
		}
	}
	return result
}

// tileKeyFor returns the key of the tile covering coord or of the nearest
// known tile. Must be called with ds.mu held.
func (ds *DataSet) tileKeyFor(coord orb.Point) string {
	if len(ds.tileKeys) == 0 {
		return ""
	}
	t := maptile.At(project.Mercator.ToWGS84(coord), maptile.Zoom(ds.tileLevel))
	key := metadata.TileCoordinate{Z: int(t.Z), X: int(t.X), Y: int(t.Y)}.String()
	if _, ok := ds.tiles[key]; ok {
		return key
	}

	best, bestDist := "", int64(-1)
	for _, k := range ds.tileKeys {
		other := ds.tiles[k].tile
		dx := int64(other.X) - int64(t.X)
		dy := int64(other.Y) - int64(t.Y)
		if d := dx*dx + dy*dy; bestDist < 0 || d < bestDist {
			best, bestDist = k, d
		}
	}
	return best
}

// loadTile fetches one tile at most once, however many callers ask for it.
func (ds *DataSet) loadTile(ctx context.Context, key string) error {
	ds.mu.RLock()
	t, ok := ds.tiles[key]
	ready := ok && t.state == DataStateReady
	ds.mu.RUnlock()
	if !ok || ready {
		return nil
	}

	ch := ds.flights.DoChan("tile:"+key, func() (interface{}, error) {
		ds.mu.Lock()
		if t.state == DataStateReady {
			ds.mu.Unlock()
			return nil, nil
		}
		t.state = DataStateLoading
		ds.mu.Unlock()

		defer func() {
			ds.mu.Lock()
			t.state = DataStateReady
			ds.mu.Unlock()
		}()

		images, err := ds.fetchTile(context.WithoutCancel(ctx), key)
		if err != nil {
			ds.log.Errorf("data set %s: tile %s: %v", ds.URL, key, err)
			return nil, nil
		}

		ds.mu.Lock()
		ds.images = append(ds.images, images...)
		ds.mu.Unlock()
		ds.emit(images)
		return nil, nil
	})

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (ds *DataSet) fetchTile(ctx context.Context, key string) (images []*Image, err error) {
	start := time.Now()
	defer func() { ds.opts.Metrics.fetchDone("tile", start, err) }()

	data, err := ds.opts.Fetcher.Fetch(ctx, ds.BaseURL+"/"+key+".json")
	if err != nil {
		return nil, err
	}
	doc, err := metadata.Decode(data)
	if err != nil {
		return nil, err
	}

	ds.mu.RLock()
	version := ds.version
	ds.mu.RUnlock()

	records, errs := metadata.ParseImages(doc, version)
	for _, e := range errs {
		ds.log.Errorf("data set %s: tile %s: skipped %v", ds.URL, key, e)
	}

	ds.mu.RLock()
	images = ds.buildImages(records)
	ds.mu.RUnlock()
	return images, nil
}
