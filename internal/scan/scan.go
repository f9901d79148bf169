package scan

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/mrsinham/dicomsort/internal/dicom"
	"github.com/mrsinham/dicomsort/internal/series"
	"github.com/rs/zerolog"
)

// Sink receives every successfully probed object.
type Sink interface {
	Ingest(obj *dicom.Object, path string) series.Outcome
}

// Options configures Run.
type Options struct {
	Workers int // Number of probe workers (0 = runtime.NumCPU())

	// Logger receives per-file debug events and walk warnings (nil = no logging).
	Logger *zerolog.Logger

	// Progress, if set, is called from the collecting goroutine after every
	// progressEvery files and once at the end.
	Progress func(Stats)
}

const progressEvery = 100

// Stats summarises one scan.
type Stats struct {
	Files         int // regular files found by the walk
	DICOM         int // files that parsed as DICOM
	Added         int
	Duplicates    int
	MissingSeries int
	MissingSOP    int
	Skipped       int // unreadable directories
	Elapsed       time.Duration
}

type result struct {
	path    string
	isDICOM bool
	outcome series.Outcome
}

// Run walks root and ingests every DICOM file into sink using a bounded pool of
// workers. A context that is already done aborts before any filesystem access;
// a cancellation during the walk stops discovery and returns ctx.Err() once the
// in-flight files are drained.
func Run(ctx context.Context, root string, sink Sink, opts Options) (Stats, error) {
	var stats Stats
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}

	numWorkers := opts.Workers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}

	start := time.Now()
	paths := make(chan string, numWorkers*4)
	results := make(chan result, numWorkers*4)

	var walkStats WalkStats
	var walkErr error
	walkDone := make(chan struct{})
	go func() {
		defer close(walkDone)
		defer close(paths)
		walkStats, walkErr = Walk(ctx, root, paths, log)
	}()

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range paths {
				obj, ok := dicom.Probe(path)
				if !ok {
					results <- result{path: path}
					continue
				}
				results <- result{path: path, isDICOM: true, outcome: sink.Ingest(obj, path)}
			}
		}()
	}

	// Wait for all workers to finish
	go func() {
		wg.Wait()
		close(results)
	}()

	for r := range results {
		stats.Files++
		if !r.isDICOM {
			log.Debug().Str("path", r.path).Msg("not a DICOM file")
		} else {
			stats.DICOM++
			switch r.outcome {
			case series.Added:
				stats.Added++
			case series.Duplicate:
				stats.Duplicates++
			case series.MissingSeries:
				stats.MissingSeries++
			case series.MissingSOP:
				stats.MissingSOP++
			}
			if r.outcome != series.Added {
				log.Debug().Str("path", r.path).Stringer("outcome", r.outcome).Msg("dropped")
			}
		}
		if opts.Progress != nil && stats.Files%progressEvery == 0 {
			stats.Elapsed = time.Since(start)
			opts.Progress(stats)
		}
	}

	<-walkDone
	stats.Skipped = walkStats.Skipped
	stats.Elapsed = time.Since(start)
	if opts.Progress != nil {
		opts.Progress(stats)
	}

	if err := ctx.Err(); err != nil {
		return stats, err
	}
	if walkErr != nil {
		return stats, fmt.Errorf("scan %s: %w", root, walkErr)
	}
	return stats, nil
}
