package oblique

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sync"

	"github.com/pkg/errors"
)

// LoadOptions configures LoadDataSets.
type LoadOptions struct {
	// Parallel fetches the documents with a pool of Workers goroutines
	// (runtime.NumCPU() when zero).
	Parallel bool
	Workers  int

	// SkipErrors reports failed urls and keeps the others. Without it any
	// failure discards the whole batch.
	SkipErrors bool

	// Progress receives the number of processed urls and the total.
	Progress func(loaded, total int)

	// ErrorLog, when set, receives one line per failed url.
	ErrorLog io.Writer
}

// DefaultLoadOptions loads in parallel on every CPU and skips failures.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{
		Parallel:   true,
		Workers:    runtime.NumCPU(),
		SkipErrors: true,
	}
}

// LoadDataSets loads the metadata documents at urls with a worker pool and
// adds the data sets to the collection.
//
// Data sets are attached in the order of urls regardless of completion
// order, so duplicate image names always resolve to the earliest url. With
// SkipErrors the failed urls are reported and the rest is attached; without
// it nothing is attached when any url fails.
//
// Example:
//
//	dataSets, errs := col.LoadDataSets(ctx, urls, oblique.LoadOptions{
//	    Parallel:   true,
//	    Workers:    4,
//	    SkipErrors: true,
//	    Progress: func(loaded, total int) {
//	        fmt.Printf("\rLoading: %d/%d", loaded, total)
//	    },
//	})
func (c *Collection) LoadDataSets(ctx context.Context, urls []string, opts LoadOptions) ([]*DataSet, []error) {
	if len(urls) == 0 {
		c.mu.Lock()
		c.loaded = true
		c.mu.Unlock()
		return nil, nil
	}

	var loaded []*DataSet
	var errs []error
	if opts.Parallel {
		loaded, errs = c.loadParallel(ctx, urls, opts)
	} else {
		loaded, errs = c.loadSerial(ctx, urls, opts)
	}
	if loaded == nil {
		return nil, errs
	}

	for _, ds := range loaded {
		c.attach(ds)
	}
	c.mu.Lock()
	c.loaded = true
	c.mu.Unlock()
	return loaded, errs
}

func (c *Collection) loadParallel(ctx context.Context, urls []string, opts LoadOptions) ([]*DataSet, []error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(urls) {
		workers = len(urls)
	}

	type loadResult struct {
		index int
		ds    *DataSet
		err   error
	}

	jobs := make(chan int, len(urls))
	results := make(chan loadResult, len(urls))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				ds := c.NewDataSet(urls[index])
				err := ds.Load(ctx)
				results <- loadResult{index: index, ds: ds, err: err}
			}
		}()
	}

	for i := range urls {
		jobs <- i
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	byIndex := make(map[int]*DataSet)
	var errs []error
	var fatal error
	processed := 0

	for result := range results {
		processed++
		if opts.Progress != nil {
			opts.Progress(processed, len(urls))
		}

		if result.err != nil {
			err := c.reportLoadError(opts, urls[result.index], result.err)
			if opts.SkipErrors {
				errs = append(errs, err)
			} else if fatal == nil {
				fatal = err
			}
			continue
		}
		byIndex[result.index] = result.ds
	}

	if fatal != nil {
		return nil, []error{fatal}
	}

	dataSets := make([]*DataSet, 0, len(byIndex))
	for i := range urls {
		if ds, ok := byIndex[i]; ok {
			dataSets = append(dataSets, ds)
		}
	}
	return dataSets, errs
}

func (c *Collection) loadSerial(ctx context.Context, urls []string, opts LoadOptions) ([]*DataSet, []error) {
	dataSets := make([]*DataSet, 0, len(urls))
	var errs []error

	for i, url := range urls {
		if opts.Progress != nil {
			opts.Progress(i, len(urls))
		}

		ds := c.NewDataSet(url)
		if err := ds.Load(ctx); err != nil {
			err = c.reportLoadError(opts, url, err)
			if opts.SkipErrors {
				errs = append(errs, err)
				continue
			}
			return nil, []error{err}
		}
		dataSets = append(dataSets, ds)
	}

	if opts.Progress != nil {
		opts.Progress(len(urls), len(urls))
	}
	return dataSets, errs
}

func (c *Collection) reportLoadError(opts LoadOptions, url string, err error) error {
	err = errors.Wrap(err, url)
	if opts.ErrorLog != nil {
		fmt.Fprintf(opts.ErrorLog, "data set %v\n", err)
	}
	c.log.Errorf("collection: %v", err)
	return err
}
