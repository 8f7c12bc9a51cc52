package oblique

import (
	"container/list"
	"sync"
	"time"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

// TileLayer is the rendering of one camera's images.
type TileLayer interface {
	// SetImageName switches the layer to another image of the same camera.
	SetImageName(name string)
	Dispose()
}

// LayerFactory creates the tile layer of a view.
type LayerFactory interface {
	NewLayer(meta *ImageMeta, view *View) (TileLayer, error)
}

// LayerFactoryFunc adapts a function to LayerFactory.
type LayerFactoryFunc func(meta *ImageMeta, view *View) (TileLayer, error)

// NewLayer calls f.
func (f LayerFactoryFunc) NewLayer(meta *ImageMeta, view *View) (TileLayer, error) {
	return f(meta, view)
}

// View is the rendering state shared by all images of one camera: its tile
// layer, resolutions and the last pixel center and zoom shown.
type View struct {
	Meta        *ImageMeta
	Layer       TileLayer
	Resolutions []float64

	mu     sync.Mutex
	center r2.Point
	zoom   float64
}

// newView creates a view centered on the image with its layer from factory.
func newView(meta *ImageMeta, factory LayerFactory) (*View, error) {
	v := &View{
		Meta:        meta,
		Resolutions: meta.TileResolution,
		center:      meta.Center(),
	}
	if factory != nil {
		layer, err := factory.NewLayer(meta, v)
		if err != nil {
			return nil, errors.Wrapf(err, "create layer for camera %s", meta.Name)
		}
		v.Layer = layer
	}
	return v, nil
}

// Center returns the pixel center last set on the view.
func (v *View) Center() r2.Point {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.center
}

// Zoom returns the zoom last set on the view.
func (v *View) Zoom() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.zoom
}

func (v *View) set(center r2.Point, zoom float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.center = center
	v.zoom = zoom
}

func (v *View) dispose() {
	if v.Layer != nil {
		v.Layer.Dispose()
	}
}

// ViewCache keeps the views of recently shown cameras with LRU eviction.
//
// Evicted views have their layer disposed. Neither the pinned view (the one
// on screen) nor the view just returned by Get is evicted, so the cache may
// hold one view more than its limit until the next Pin.
type ViewCache struct {
	maxViews int
	views    map[*ImageMeta]*viewEntry
	lru      *list.List // most recent at front
	pinned   *ImageMeta
	mu       sync.Mutex
}

// viewEntry tracks a cached view and its metadata
type viewEntry struct {
	meta         *ImageMeta
	view         *View
	element      *list.Element
	lastAccessed time.Time
	accessCount  int
}

// ViewCacheStats holds cache performance metrics.
type ViewCacheStats struct {
	ViewCount   int // Number of views currently cached
	MaxViews    int // Maximum number of views
	TotalAccess int // Total number of accesses across all cached views
}

// NewViewCache creates a cache holding at most maxViews views. Set to 0 for
// an unlimited cache.
func NewViewCache(maxViews int) *ViewCache {
	return &ViewCache{
		maxViews: maxViews,
		views:    make(map[*ImageMeta]*viewEntry),
		lru:      list.New(),
	}
}

// Get returns the view of meta, creating it with create on a miss.
//
// If two callers create the same view concurrently, the later one is
// disposed and the cached view is returned to both.
func (c *ViewCache) Get(meta *ImageMeta, create func() (*View, error)) (*View, error) {
	c.mu.Lock()
	if entry, ok := c.views[meta]; ok {
		c.touch(entry)
		c.mu.Unlock()
		return entry.view, nil
	}
	c.mu.Unlock()

	view, err := create()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.views[meta]; ok {
		view.dispose()
		c.touch(entry)
		return entry.view, nil
	}

	entry := &viewEntry{
		meta:         meta,
		view:         view,
		lastAccessed: time.Now(),
		accessCount:  1,
	}
	entry.element = c.lru.PushFront(entry)
	c.views[meta] = entry

	c.trim(meta)
	return view, nil
}

// trim evicts views until the limit holds, sparing keep and the pinned view.
// Must be called with c.mu locked.
func (c *ViewCache) trim(keep *ImageMeta) {
	if c.maxViews <= 0 {
		return
	}
	for len(c.views) > c.maxViews {
		if !c.evictLRU(keep) {
			return
		}
	}
}

// touch marks entry as most recently used. Must be called with c.mu locked.
func (c *ViewCache) touch(entry *viewEntry) {
	entry.lastAccessed = time.Now()
	entry.accessCount++
	c.lru.MoveToFront(entry.element)
}

// evictLRU removes the least recently used view other than keep and the
// pinned one. Must be called with c.mu locked.
func (c *ViewCache) evictLRU(keep *ImageMeta) bool {
	for elem := c.lru.Back(); elem != nil; elem = elem.Prev() {
		entry := elem.Value.(*viewEntry)
		if entry.meta == c.pinned || entry.meta == keep {
			continue
		}
		c.lru.Remove(elem)
		delete(c.views, entry.meta)
		entry.view.dispose()
		return true
	}
	return false
}

// Pin protects the view of meta from eviction. Only one view is pinned;
// views kept over the limit for the previous pin are evicted now.
func (c *ViewCache) Pin(meta *ImageMeta) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pinned = meta
	c.trim(meta)
}

// Unpin releases the pinned view, if any, to normal eviction.
func (c *ViewCache) Unpin() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pinned = nil
}

// Contains reports whether the view of meta is cached.
func (c *ViewCache) Contains(meta *ImageMeta) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.views[meta]
	return ok
}

// Clear disposes and removes all views.
func (c *ViewCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, entry := range c.views {
		entry.view.dispose()
	}
	c.views = make(map[*ImageMeta]*viewEntry)
	c.lru.Init()
	c.pinned = nil
}

// Stats returns cache statistics.
func (c *ViewCache) Stats() ViewCacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	totalAccess := 0
	for _, entry := range c.views {
		totalAccess += entry.accessCount
	}
	return ViewCacheStats{
		ViewCount:   len(c.views),
		MaxViews:    c.maxViews,
		TotalAccess: totalAccess,
	}
}
