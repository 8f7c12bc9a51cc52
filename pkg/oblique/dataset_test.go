package oblique

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/project"

	"github.com/beetlebugorg/oblique/internal/metadata"
)

const tileZoom = 14

func tileKey(tile maptile.Tile) string {
	return metadata.TileCoordinate{Z: int(tile.Z), X: int(tile.X), Y: int(tile.Y)}.String()
}

// tileCenter returns the world center of a tile.
func tileCenter(tile maptile.Tile) orb.Point {
	return project.WGS84.ToMercator(tile.Bound().Center())
}

// tileRow returns a small north image centered in tile.
func tileRow(name string, tile maptile.Tile) testRow {
	c := tileCenter(tile)
	return rectRow(name, North, c[0]-10, c[1]-10, c[0]+10, c[1]+10)
}

func waitForTileState(t *testing.T, ds *DataSet, key string, want DataState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if state, _ := ds.TileState(key); state == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("tile %s never reached state %s", key, want)
}

func TestDataSetInitializeOnce(t *testing.T) {
	fetcher := newMemFetcher()
	ds := NewDataSet("mem://x/image.json", DataSetOptions{Fetcher: fetcher})

	var batches [][]*Image
	ds.OnImages(func(images []*Image) { batches = append(batches, images) })

	doc, err := metadata.Decode(tableDoc(t, "EPSG:3857", rectRow("a", North, 0, 0, 10, 10), rectRow("b", East, 0, 0, 10, 10)))
	if err != nil {
		t.Fatal(err)
	}
	if err := ds.Initialize(doc); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := ds.Initialize(doc); err != ErrAlreadyInitialized {
		t.Errorf("Expected ErrAlreadyInitialized, got %v", err)
	}

	if len(ds.Images()) != 2 {
		t.Errorf("Expected 2 images, got %d", len(ds.Images()))
	}
	if len(batches) != 1 || len(batches[0]) != 2 {
		t.Errorf("Expected one batch of 2 images, got %v", batches)
	}
	if ds.State() != DataStateReady || ds.IsTiled() {
		t.Errorf("Expected a ready, non-tiled data set")
	}
	if metas := ds.Metas(); len(metas) != 1 || metas[0].Size != [2]int{1000, 1000} {
		t.Errorf("Unexpected metas %v", metas)
	}
	if ds.BaseURL != "mem://x" {
		t.Errorf("Expected base url mem://x, got %s", ds.BaseURL)
	}

	// an initialized data set never fetches its document
	if err := ds.Load(context.Background()); err != nil {
		t.Errorf("Load after Initialize failed: %v", err)
	}
	if fetcher.total() != 0 {
		t.Errorf("Expected no fetch, got %d", fetcher.total())
	}
}

func TestDataSetLoadShared(t *testing.T) {
	const url = "mem://x/image.json"
	fetcher := newMemFetcher()
	fetcher.docs[url] = tableDoc(t, "EPSG:3857", rectRow("a", North, 0, 0, 10, 10))
	fetcher.gate = make(chan struct{})
	ds := NewDataSet(url, DataSetOptions{Fetcher: fetcher})

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- ds.Load(context.Background())
		}()
	}
	time.Sleep(10 * time.Millisecond)
	close(fetcher.gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Load failed: %v", err)
		}
	}
	if n := fetcher.count(url); n != 1 {
		t.Errorf("Expected a single document fetch, got %d", n)
	}
}

func TestDataSetLoadFailure(t *testing.T) {
	const url = "mem://missing/image.json"
	fetcher := newMemFetcher()
	ds := NewDataSet(url, DataSetOptions{Fetcher: fetcher})

	err := ds.Load(context.Background())
	if err == nil {
		t.Fatal("expected load error")
	}
	if ds.State() != DataStateReady {
		t.Errorf("a failed data set settles as ready, got %s", ds.State())
	}
	if again := ds.Load(context.Background()); again == nil || again.Error() != err.Error() {
		t.Errorf("Expected memoized error, got %v", again)
	}
	if n := fetcher.count(url); n != 1 {
		t.Errorf("Expected a single fetch, got %d", n)
	}
	if err := ds.LoadDataForCoordinate(context.Background(), orb.Point{0, 0}); err != ErrNotLoaded {
		t.Errorf("Expected ErrNotLoaded, got %v", err)
	}
}

func TestTiledDataSetsLoadOnce(t *testing.T) {
	tileA := maptile.At(orb.Point{9.0, 48.0}, tileZoom)
	tileB := maptile.New(tileA.X+1, tileA.Y, tileZoom)

	fetcher := newMemFetcher()
	fetcher.docs["mem://a/image.json"] = tiledDoc(t, tileZoom, tileKey(tileA))
	fetcher.docs["mem://b/image.json"] = tiledDoc(t, tileZoom, tileKey(tileB))
	fetcher.docs["mem://a/"+tileKey(tileA)+".json"] = tableDoc(t, "EPSG:3857", tileRow("a-1", tileA))
	fetcher.docs["mem://b/"+tileKey(tileB)+".json"] = tableDoc(t, "EPSG:3857", tileRow("b-1", tileB))

	opts := DefaultCollectionOptions()
	opts.Fetcher = fetcher
	col := NewCollection(opts)
	dataSets, errs := col.LoadDataSets(context.Background(), []string{"mem://a/image.json", "mem://b/image.json"}, DefaultLoadOptions())
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	for _, ds := range dataSets {
		if !ds.IsTiled() {
			t.Fatalf("Expected tiled data set %s", ds.URL)
		}
	}
	if col.ImageCount() != 0 {
		t.Errorf("tiles must not load before they are requested, got %d images", col.ImageCount())
	}

	extent := tileCenter(tileA).Bound().Extend(tileCenter(tileB))
	if state := col.DataStateForExtent(extent); state != DataStatePending {
		t.Errorf("Expected pending, got %s", state)
	}

	if err := col.LoadDataForExtent(context.Background(), extent); err != nil {
		t.Fatalf("LoadDataForExtent failed: %v", err)
	}
	if col.ImageCount() != 2 {
		t.Errorf("Expected 2 images, got %d", col.ImageCount())
	}
	if state := col.DataStateForExtent(extent); state != DataStateReady {
		t.Errorf("Expected ready, got %s", state)
	}

	before := fetcher.total()
	if err := col.LoadDataForExtent(context.Background(), extent); err != nil {
		t.Fatalf("LoadDataForExtent failed: %v", err)
	}
	if fetcher.total() != before {
		t.Errorf("Expected no fetch for ready tiles, got %d", fetcher.total()-before)
	}
	for _, url := range []string{"mem://a/" + tileKey(tileA) + ".json", "mem://b/" + tileKey(tileB) + ".json"} {
		if n := fetcher.count(url); n != 1 {
			t.Errorf("Expected %s fetched once, got %d", url, n)
		}
	}

	img, err := col.ImageForCoordinate(tileCenter(tileB), North)
	if err != nil || img == nil || img.Name != "b-1" {
		t.Errorf("Expected b-1, got %v (%v)", img, err)
	}
}

func TestTiledDataSetFailedTile(t *testing.T) {
	tile := maptile.At(orb.Point{9.0, 48.0}, tileZoom)
	fetcher := newMemFetcher()
	fetcher.docs["mem://a/image.json"] = tiledDoc(t, tileZoom, tileKey(tile))

	ds := NewDataSet("mem://a/image.json", DataSetOptions{Fetcher: fetcher})
	if err := ds.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := ds.LoadDataForCoordinate(context.Background(), tileCenter(tile)); err != nil {
			t.Fatalf("LoadDataForCoordinate failed: %v", err)
		}
	}
	if state, ok := ds.TileState(tileKey(tile)); !ok || state != DataStateReady {
		t.Errorf("Expected failed tile to be ready, got %s", state)
	}
	if n := fetcher.count("mem://a/" + tileKey(tile) + ".json"); n != 1 {
		t.Errorf("a failed tile must not be retried, got %d fetches", n)
	}
}

func TestTiledDataSetSharedFlight(t *testing.T) {
	tile := maptile.At(orb.Point{9.0, 48.0}, tileZoom)
	tileURL := "mem://a/" + tileKey(tile) + ".json"
	fetcher := newMemFetcher()
	fetcher.docs["mem://a/image.json"] = tiledDoc(t, tileZoom, tileKey(tile))
	fetcher.docs[tileURL] = tableDoc(t, "EPSG:3857", tileRow("a-1", tile))

	ds := NewDataSet("mem://a/image.json", DataSetOptions{Fetcher: fetcher})
	if err := ds.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	gate := make(chan struct{})
	fetcher.mu.Lock()
	fetcher.gate = gate
	fetcher.mu.Unlock()

	var wg sync.WaitGroup
	load := func() {
		defer wg.Done()
		if err := ds.LoadDataForCoordinate(context.Background(), tileCenter(tile)); err != nil {
			t.Errorf("LoadDataForCoordinate failed: %v", err)
		}
	}
	wg.Add(1)
	go load()
	waitForTileState(t, ds, tileKey(tile), DataStateLoading)
	if state := ds.DataStateForCoordinate(tileCenter(tile)); state != DataStateLoading {
		t.Errorf("Expected loading, got %s", state)
	}

	wg.Add(1)
	go load()
	time.Sleep(10 * time.Millisecond)
	close(gate)
	wg.Wait()

	if n := fetcher.count(tileURL); n != 1 {
		t.Errorf("Expected a single tile fetch, got %d", n)
	}
	if len(ds.Images()) != 1 {
		t.Errorf("Expected 1 image, got %d", len(ds.Images()))
	}
}

func TestTiledDataSetNearestTile(t *testing.T) {
	near := maptile.At(orb.Point{9.0, 48.0}, tileZoom)
	far := maptile.New(near.X+3, near.Y, tileZoom)
	query := maptile.New(near.X-2, near.Y, tileZoom)

	fetcher := newMemFetcher()
	fetcher.docs["mem://a/image.json"] = tiledDoc(t, tileZoom, tileKey(near), tileKey(far))
	fetcher.docs["mem://a/"+tileKey(near)+".json"] = tableDoc(t, "EPSG:3857", tileRow("near", near))

	ds := NewDataSet("mem://a/image.json", DataSetOptions{Fetcher: fetcher})
	if err := ds.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if state := ds.DataStateForCoordinate(tileCenter(query)); state != DataStatePending {
		t.Errorf("Expected the nearest tile to be pending, got %s", state)
	}
	if err := ds.LoadDataForCoordinate(context.Background(), tileCenter(query)); err != nil {
		t.Fatalf("LoadDataForCoordinate failed: %v", err)
	}
	if state, _ := ds.TileState(tileKey(near)); state != DataStateReady {
		t.Errorf("Expected nearest tile to be loaded, got %s", state)
	}
	if state, _ := ds.TileState(tileKey(far)); state != DataStatePending {
		t.Errorf("Expected far tile untouched, got %s", state)
	}
}

func TestCombineDataStates(t *testing.T) {
	tests := []struct {
		states []DataState
		want   DataState
	}{
		{nil, DataStateReady},
		{[]DataState{DataStateReady, DataStateReady}, DataStateReady},
		{[]DataState{DataStateReady, DataStateLoading}, DataStateLoading},
		{[]DataState{DataStateLoading, DataStatePending, DataStateReady}, DataStatePending},
	}

	for _, tt := range tests {
		if got := CombineDataStates(tt.states...); got != tt.want {
			t.Errorf("CombineDataStates(%v) = %s, want %s", tt.states, got, tt.want)
		}
	}
}
