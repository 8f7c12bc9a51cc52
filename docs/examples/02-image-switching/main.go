package main

import (
	"context"
	"fmt"
	"log"
	"math"

	"github.com/golang/geo/r2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"

	"github.com/beetlebugorg/oblique/pkg/oblique"
)

// consoleViewport prints what a map widget would display.
type consoleViewport struct {
	center r2.Point
	zoom   float64
}

func (v *consoleViewport) Center() r2.Point        { return v.center }
func (v *consoleViewport) SetCenter(c r2.Point)    { v.center = c }
func (v *consoleViewport) Zoom() float64           { return v.zoom }
func (v *consoleViewport) SetZoom(z float64)       { v.zoom = z }
func (v *consoleViewport) OnRender(func()) func()  { return func() {} }
func (v *consoleViewport) OnMoveEnd(func()) func() { return func() {} }
func (v *consoleViewport) SetView(view *oblique.View) {
	fmt.Printf("  view: camera %s\n", view.Meta.Name)
}

func main() {
	ctx := context.Background()

	col := oblique.NewCollection(oblique.DefaultCollectionOptions())
	if err := col.AddDataSet(ctx, col.NewDataSet("https://example.com/oblique/stuttgart/image.json")); err != nil {
		log.Fatal(err)
	}

	viewport := &consoleViewport{zoom: 1}
	provider := oblique.NewProvider(viewport, nil, oblique.DefaultProviderOptions())
	defer provider.Close()
	provider.SetCollection(col)
	provider.OnImageChanged(func(img *oblique.Image) {
		fmt.Printf("  image: %s\n", img.Name)
	})
	if err := provider.Activate(); err != nil {
		log.Fatal(err)
	}

	coord := project.WGS84.ToMercator(orb.Point{9.1829, 48.7758})
	if err := provider.SetView(ctx, coord, oblique.North, nil); err != nil {
		log.Fatal(err)
	}

	// Pan towards the right edge until the provider picks a better image
	img := provider.CurrentImage()
	w, h := float64(img.Meta.Size[0]), float64(img.Meta.Size[1])
	for x := w / 2; x < w; x += w / 10 {
		viewport.SetCenter(r2.Point{X: x, Y: h / 2})
		switched, err := provider.Tick(ctx)
		if err != nil {
			log.Fatal(err)
		}
		if switched {
			fmt.Printf("Switched at x=%.0f\n", x)
			break
		}
	}

	// Step to the neighbor in the west
	if ok, err := provider.LoadAdjacentImage(ctx, math.Pi, oblique.DefaultAdjacentDeviation); err != nil {
		log.Fatal(err)
	} else if !ok {
		fmt.Println("No neighbor to the west")
	}
}
