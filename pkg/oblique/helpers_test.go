package oblique

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/beetlebugorg/oblique/internal/metadata"
)

// memFetcher serves documents from memory and counts requests per URL.
type memFetcher struct {
	mu    sync.Mutex
	docs  map[string][]byte
	calls map[string]int
	gate  chan struct{} // when set, every fetch waits for it to close
}

func newMemFetcher() *memFetcher {
	return &memFetcher{docs: make(map[string][]byte), calls: make(map[string]int)}
}

func (f *memFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.calls[url]++
	data, ok := f.docs[url]
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if !ok {
		return nil, &ErrFetch{URL: url, Status: 404}
	}
	return data, nil
}

func (f *memFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func (f *memFetcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// testRow is one image of a generated metadata document.
type testRow struct {
	name    string
	dir     ViewDirection
	corners [4][2]float64
}

// rectRow returns an image whose footprint is the axis-aligned rectangle
// [x0,x1]x[y0,y1] in counter-clockwise order starting at the lower left.
func rectRow(name string, dir ViewDirection, x0, y0, x1, y1 float64) testRow {
	return testRow{name: name, dir: dir, corners: [4][2]float64{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}}}
}

// tableDoc builds a columnar metadata document with 1000x1000 pixel images.
func tableDoc(t *testing.T, crs string, rows ...testRow) []byte {
	t.Helper()
	images := make([][]interface{}, 0, len(rows))
	for _, r := range rows {
		corners := make([][]float64, 4)
		for i, c := range r.corners {
			corners[i] = []float64{c[0], c[1]}
		}
		images = append(images, []interface{}{r.name, int(r.dir), corners})
	}
	doc := map[string]interface{}{
		"version":          "3.5",
		"generalImageInfo": map[string]interface{}{"width": 1000, "height": 1000, "crs": crs},
		"imagesHeader":     []string{"name", "viewDirection", "groundCoordinates"},
		"images":           images,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal document: %v", err)
	}
	return data
}

// tiledDoc builds a tiled metadata document.
func tiledDoc(t *testing.T, level int, tiles ...string) []byte {
	t.Helper()
	doc := map[string]interface{}{
		"version":          "3.5",
		"generalImageInfo": map[string]interface{}{"width": 1000, "height": 1000, "crs": "EPSG:3857"},
		"tileLevel":        level,
		"availableTiles":   tiles,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal document: %v", err)
	}
	return data
}

func testMeta(w, h int) *ImageMeta {
	return &ImageMeta{
		Name:       "cam",
		Size:       [2]int{w, h},
		TileSize:   [2]int{512, 512},
		Projection: Mercator,
		Format:     "jpg",
	}
}

// newTestImage builds an image without camera through NewImage.
func newTestImage(t *testing.T, meta *ImageMeta, row testRow) *Image {
	t.Helper()
	ground := make([][]float64, 4)
	for i, c := range row.corners {
		ground[i] = []float64{c[0], c[1]}
	}
	rec := metadata.ImageRecord{
		Name:              row.name,
		CameraIndex:       0,
		ViewDirection:     int(row.dir),
		GroundCoordinates: ground,
	}
	var cx, cy float64
	for _, c := range row.corners {
		cx += c[0] / 4
		cy += c[1] / 4
	}
	rec.CenterPointOnGround = []float64{cx, cy}

	img, err := NewImage(rec, meta)
	if err != nil {
		t.Fatalf("NewImage failed: %v", err)
	}
	return img
}

// nadirCamera returns a camera at c looking straight down with focal length
// f (pixels) on an image of w x h pixels. Image rows grow towards -Y.
func nadirCamera(c r3.Vector, f float64, w, h int) *Camera {
	k := mat.NewDense(3, 3, []float64{
		f, 0, float64(w) / 2,
		0, f, float64(h) / 2,
		0, 0, 1,
	})
	r := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, -1, 0,
		0, 0, -1,
	})
	var kr mat.Dense
	kr.Mul(k, r)

	var t mat.VecDense
	t.MulVec(&kr, mat.NewVecDense(3, []float64{c.X, c.Y, c.Z}))

	p := mat.NewDense(4, 4, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			p.Set(i, j, kr.At(i, j))
		}
		p.Set(i, 3, -t.AtVec(i))
	}
	p.Set(3, 3, 1)

	var inv mat.Dense
	if err := inv.Inverse(&kr); err != nil {
		panic(err)
	}
	return &Camera{PToImage: p, PToRealWorld: &inv, Center: c}
}

// cameraImage returns a 1000x800 nadir image centered on (5000, 3000) with
// the camera 1000m above ground.
func cameraImage(t *testing.T, meta *ImageMeta) *Image {
	t.Helper()
	img := newTestImage(t, meta, rectRow("cam-1", Nadir, 4500, 2600, 5500, 3400))
	img.Camera = nadirCamera(r3.Vector{X: 5000, Y: 3000, Z: 1000}, 1000, meta.Size[0], meta.Size[1])
	return img
}

// loadedCollection returns a loaded collection holding images.
func loadedCollection(images ...*Image) *Collection {
	c := NewCollection(DefaultCollectionOptions())
	c.mu.Lock()
	c.loaded = true
	c.mu.Unlock()
	c.ingest(images)
	return c
}

// fakeViewport records what the provider shows.
type fakeViewport struct {
	mu       sync.Mutex
	center   r2.Point
	zoom     float64
	view     *View
	views    int
	renders  []func()
	moveEnds []func()
}

func (v *fakeViewport) Center() r2.Point {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.center
}

func (v *fakeViewport) SetCenter(c r2.Point) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.center = c
}

func (v *fakeViewport) Zoom() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.zoom
}

func (v *fakeViewport) SetZoom(z float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.zoom = z
}

func (v *fakeViewport) SetView(view *View) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.view = view
	v.views++
}

func (v *fakeViewport) OnRender(fn func()) func() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.renders = append(v.renders, fn)
	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		v.renders = nil
	}
}

func (v *fakeViewport) OnMoveEnd(fn func()) func() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.moveEnds = append(v.moveEnds, fn)
	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		v.moveEnds = nil
	}
}

// fakeLayer counts image switches and disposal.
type fakeLayer struct {
	mu       sync.Mutex
	name     string
	disposed bool
}

func (l *fakeLayer) SetImageName(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.name = name
}

func (l *fakeLayer) Dispose() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.disposed = true
}

// layerRecorder is a LayerFactory remembering every layer it created.
type layerRecorder struct {
	mu     sync.Mutex
	layers []*fakeLayer
}

func (r *layerRecorder) NewLayer(meta *ImageMeta, view *View) (TileLayer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l := &fakeLayer{}
	r.layers = append(r.layers, l)
	return l, nil
}

func (r *layerRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.layers)
}
