package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/paulmach/orb"

	"github.com/beetlebugorg/oblique/pkg/oblique"
)

func loadCollection(ctx context.Context, urls []string) (*oblique.Collection, error) {
	col := oblique.NewCollection(oblique.DefaultCollectionOptions())

	// Keep loading when single documents fail
	dataSets, errs := col.LoadDataSets(ctx, urls, oblique.LoadOptions{
		Parallel:   true,
		Workers:    4,
		SkipErrors: true,
	})
	for _, err := range errs {
		var fetchErr *oblique.ErrFetch
		if errors.As(err, &fetchErr) {
			log.Printf("Server answered %d for %s", fetchErr.Status, fetchErr.URL)
			continue
		}
		log.Printf("Failed data set: %v", err)
	}

	if len(dataSets) == 0 {
		return nil, fmt.Errorf("none of %d data sets could be loaded", len(urls))
	}
	return col, nil
}

func main() {
	ctx := context.Background()

	col, err := loadCollection(ctx, []string{
		"https://example.com/oblique/stuttgart/image.json",
		"https://example.com/oblique/missing/image.json",
	})
	if err != nil {
		log.Printf("Error: %v", err)
		return
	}

	provider := oblique.NewProvider(nil, nil, oblique.DefaultProviderOptions())
	if err := provider.Activate(); errors.Is(err, oblique.ErrNoCollection) {
		log.Printf("Expected error: %v", err)
	}
	provider.SetCollection(col)

	// Far away from any image the provider still picks the nearest one;
	// only an empty collection reports ErrNoImage
	var noImage *oblique.ErrNoImage
	if err := provider.SetView(ctx, orb.Point{0, 0}, oblique.Nadir, nil); errors.As(err, &noImage) {
		log.Printf("No %s image available", noImage.Direction)
	} else if err != nil {
		log.Printf("Error: %v", err)
	}
}
