// Package oblique navigates collections of oblique aerial photographs.
//
// A Collection aggregates one or more DataSets. Each DataSet reads an
// image.json metadata document (optionally tiled) and turns it into Images
// that share per-camera ImageMeta calibration. The Collection indexes the
// Images per ViewDirection and answers "which photograph is closest to this
// ground coordinate".
//
// # Coordinates
//
// World coordinates are EPSG:3857 Web Mercator (orb.Point). Image-native
// coordinates (footprints, camera matrices) are in the projection of the
// ImageMeta. Image pixel coordinates (r2.Point) have their origin at the
// lower-left corner of the photograph with Y pointing up.
//
// # Basic Usage
//
//	col := oblique.NewCollection(oblique.DefaultCollectionOptions())
//	if err := col.LoadDataSets(ctx, []string{"https://example.com/oblique/image.json"},
//	    oblique.DefaultLoadOptions()); err != nil {
//	    log.Fatal(err)
//	}
//
//	img, err := col.ImageForCoordinate(center, oblique.North)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	pixel, _ := img.TransformToImage(ctx, center)
//
// # Switching Images
//
// A Provider holds the currently displayed Image and swaps it as the
// viewport drifts towards the edge of the photograph:
//
//	p := oblique.NewProvider(viewport, layers, oblique.DefaultProviderOptions())
//	p.SetCollection(col)
//	if err := p.Activate(); err != nil {
//	    log.Fatal(err)
//	}
//	err = p.SetView(ctx, center, oblique.East, nil)
//
// Later calls to SetImage and SetView supersede earlier ones; a superseded
// call returns false without touching the displayed image.
package oblique
