package main

import (
	"context"
	"fmt"
	"log"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"

	"github.com/beetlebugorg/oblique/pkg/oblique"
)

func main() {
	ctx := context.Background()

	// Load one metadata document
	col := oblique.NewCollection(oblique.DefaultCollectionOptions())
	ds := col.NewDataSet("https://example.com/oblique/stuttgart/image.json")
	if err := col.AddDataSet(ctx, ds); err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Cameras: %d\n", len(ds.Metas()))
	fmt.Printf("Tiled: %v\n", ds.IsTiled())

	// World coordinates are Web Mercator
	coord := project.WGS84.ToMercator(orb.Point{9.1829, 48.7758})
	if err := col.LoadDataForCoordinate(ctx, coord); err != nil {
		log.Fatal(err)
	}

	img, err := col.ImageForCoordinate(coord, oblique.East)
	if err != nil {
		log.Fatal(err)
	}
	if img == nil {
		log.Fatal("no image at this coordinate")
	}
	fmt.Printf("Image: %s (%s)\n", img.Name, img.ViewDirection)

	// Project the coordinate into the photograph and back
	pixel, err := img.TransformToImage(ctx, coord)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Pixel: [%.1f, %.1f]\n", pixel.Point.X, pixel.Point.Y)

	world, err := img.TransformFromImage(ctx, pixel.Point, oblique.DefaultTransformOptions())
	if err != nil {
		log.Fatal(err)
	}
	ll := project.Mercator.ToWGS84(world.Point)
	fmt.Printf("Ground: [%.6f, %.6f] at %.1fm\n", ll[0], ll[1], world.Height)
}
