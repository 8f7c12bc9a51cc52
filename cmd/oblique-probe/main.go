// Command oblique-probe loads oblique image metadata and reports which image
// shows a coordinate and where.
//
// Usage:
//
//	oblique-probe --config oblique.yaml --lon 9.18 --lat 48.78 --direction east
//	oblique-probe --data https://example.com/set/image.json --lon 9.18 --lat 48.78
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
	"github.com/prometheus/client_golang/prometheus"
	flag "github.com/spf13/pflag"

	"github.com/beetlebugorg/oblique/internal/logger"
	"github.com/beetlebugorg/oblique/pkg/oblique"
)

func main() {
	configPath := flag.StringP("config", "c", "", "YAML config file")
	dataSets := flag.StringSlice("data", nil, "metadata document URLs (overrides data_sets of the config)")
	lon := flag.Float64("lon", 0, "longitude of the probed coordinate")
	lat := flag.Float64("lat", 0, "latitude of the probed coordinate")
	direction := flag.StringP("direction", "d", "north", "preferred view direction")
	logLevel := flag.String("log-level", "", "log level (debug, info, error), overrides the config")
	ground := flag.Float64("ground", 0, "constant terrain height in metres, used when --terrain is set")
	useTerrain := flag.Bool("terrain", false, "refine coordinates against a constant terrain")
	showMetrics := flag.Bool("metrics", false, "print collected metrics before exiting")
	timeout := flag.Duration("timeout", 30*time.Second, "overall timeout")
	flag.Parse()

	cfg := oblique.DefaultConfig()
	if *configPath != "" {
		loaded, err := oblique.LoadConfigFile(*configPath)
		if err != nil {
			log.Fatal(err)
		}
		cfg = *loaded
	}
	if len(*dataSets) > 0 {
		cfg.DataSets = *dataSets
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if len(cfg.DataSets) == 0 {
		log.Fatal("no data sets configured (use --data or data_sets in the config)")
	}

	dir, err := oblique.ParseViewDirection(*direction)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	l := logger.NewWriterLogger(os.Stderr, logger.ParseLogLevel(cfg.Log.Level))
	reg := prometheus.NewRegistry()
	metrics := oblique.NewMetrics(reg)

	fetcher := oblique.NewSchemeFetcher()
	if cfg.S3.Region != "" {
		sess, err := session.NewSession(&aws.Config{Region: aws.String(cfg.S3.Region)})
		if err != nil {
			log.Fatalf("create AWS session: %v", err)
		}
		fetcher.S3 = &oblique.S3Fetcher{API: s3.New(sess)}
	}

	opts := oblique.DefaultCollectionOptions()
	opts.Fetcher = fetcher
	opts.Logger = l
	opts.Metrics = metrics
	if *useTerrain {
		height := *ground
		terrain := oblique.NewCachedTerrain(oblique.TerrainFunc(func(ctx context.Context, points []orb.Point) ([]float64, error) {
			heights := make([]float64, len(points))
			for i := range heights {
				heights[i] = height
			}
			return heights, nil
		}), cfg.TerrainCacheOptions(), metrics)
		defer terrain.Stop()
		opts.Terrain = terrain
	}

	col := oblique.NewCollection(opts)
	loadOpts := cfg.LoadOptions()
	loadOpts.ErrorLog = os.Stderr
	loadOpts.Progress = func(loaded, total int) {
		fmt.Fprintf(os.Stderr, "\rLoading: %d/%d", loaded, total)
	}
	loaded, errs := col.LoadDataSets(ctx, cfg.DataSets, loadOpts)
	fmt.Fprintln(os.Stderr)
	if loaded == nil && len(errs) > 0 {
		log.Fatal(errs[0])
	}
	fmt.Printf("Data sets: %d loaded, %d failed\n", len(loaded), len(errs))

	coord := project.WGS84.ToMercator(orb.Point{*lon, *lat})
	if err := col.LoadDataForCoordinate(ctx, coord); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Images: %d\n", col.ImageCount())

	img, err := col.ImageForCoordinate(coord, dir)
	if err != nil {
		log.Fatal(err)
	}
	if img == nil {
		fmt.Println("No image covers this coordinate.")
		os.Exit(1)
	}

	fmt.Printf("Image: %s\n", img.Name)
	fmt.Printf("Direction: %s (requested %s)\n", img.ViewDirection, dir)
	fmt.Printf("Camera: %s, %dx%d px, %s\n", img.Meta.Name, img.Meta.Size[0], img.Meta.Size[1], img.Meta.Projection.Code())
	fmt.Printf("Perspective: %v\n", img.HasCamera())

	pixel, err := img.TransformToImage(ctx, coord)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Pixel: [%.1f, %.1f] estimate=%v\n", pixel.Point.X, pixel.Point.Y, pixel.Estimate)

	world, err := img.TransformFromImage(ctx, pixel.Point, cfg.TransformOptions())
	if err != nil {
		log.Fatal(err)
	}
	ll := project.Mercator.ToWGS84(world.Point)
	fmt.Printf("Back-projected: [%.6f, %.6f] height %.1fm estimate=%v\n", ll[0], ll[1], world.Height, world.Estimate)

	if *showMetrics {
		families, err := reg.Gather()
		if err != nil {
			log.Fatal(err)
		}
		for _, mf := range families {
			for _, m := range mf.GetMetric() {
				value := m.GetCounter().GetValue() + m.GetGauge().GetValue()
				if h := m.GetHistogram(); h != nil {
					value = float64(h.GetSampleCount())
				}
				labels := ""
				for _, lp := range m.GetLabel() {
					labels += " " + lp.GetName() + "=" + lp.GetValue()
				}
				fmt.Printf("%s%s %g\n", mf.GetName(), labels, value)
			}
		}
	}
}
