package oblique

import (
	"sync"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
)

// index entries are points; rtreego needs a non-zero extent
const pointTolerance = 1e-6

// indexEntry is a degenerate rectangle at an image's world center.
type indexEntry struct {
	name   string
	center orb.Point
}

// Bounds method for rtreego.Spatial interface.
func (e *indexEntry) Bounds() rtreego.Rect {
	return rtreego.Point{e.center[0], e.center[1]}.ToRect(pointTolerance)
}

// SpatialIndex keeps one R-tree of image centers per view direction.
//
// Trees are never updated in place: Load replaces the tree of a direction
// with one bulk-loaded from the complete image list of that direction, so a
// query never observes a partially updated index.
//
// Example:
//
//	idx := oblique.NewSpatialIndex()
//	idx.Load(oblique.North, northImages)
//	names := idx.Nearest(oblique.North, center, 1)
type SpatialIndex struct {
	mu    sync.RWMutex
	trees map[ViewDirection]*rtreego.Rtree
}

// NewSpatialIndex creates an empty index.
func NewSpatialIndex() *SpatialIndex {
	return &SpatialIndex{trees: make(map[ViewDirection]*rtreego.Rtree)}
}

// Load replaces the tree of dir with the given images.
func (idx *SpatialIndex) Load(dir ViewDirection, images []*Image) {
	objs := make([]rtreego.Spatial, 0, len(images))
	for _, img := range images {
		objs = append(objs, &indexEntry{name: img.Name, center: img.WorldCenter()})
	}

	// Create R-tree (2D, min=25 children, max=50 children)
	tree := rtreego.NewTree(2, 25, 50, objs...)

	idx.mu.Lock()
	idx.trees[dir] = tree
	idx.mu.Unlock()
}

// Nearest returns the names of up to k images of dir closest to coord,
// nearest first.
func (idx *SpatialIndex) Nearest(dir ViewDirection, coord orb.Point, k int) []string {
	idx.mu.RLock()
	tree := idx.trees[dir]
	idx.mu.RUnlock()

	if tree == nil || tree.Size() == 0 || k <= 0 {
		return nil
	}

	spatials := tree.NearestNeighbors(k, rtreego.Point{coord[0], coord[1]})
	names := make([]string, 0, len(spatials))
	for _, s := range spatials {
		// rtreego pads the result with nil when the tree holds fewer than k entries
		if s == nil {
			continue
		}
		names = append(names, s.(*indexEntry).name)
	}
	return names
}

// Count returns the number of indexed images of dir.
func (idx *SpatialIndex) Count(dir ViewDirection) int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if tree := idx.trees[dir]; tree != nil {
		return tree.Size()
	}
	return 0
}

// Clear drops all trees.
func (idx *SpatialIndex) Clear() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.trees = make(map[ViewDirection]*rtreego.Rtree)
}
