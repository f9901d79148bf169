// Package export writes aggregated series back to disk, either relocated into
// one directory per series or as de-identified copies.
package export

import (
	"context"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/mrsinham/dicomsort/internal/dicom"
	"github.com/mrsinham/dicomsort/internal/series"
	"github.com/rs/zerolog"
	"github.com/suyashkumar/dicom/pkg/tag"
	"golang.org/x/sync/errgroup"
)

// Default output directories, relative to the scan root.
const (
	DefaultSortedDir     = "processed/sorted"
	DefaultAnonymizedDir = "processed/anonymized"
)

// Operation names used in reports, errors and logs.
const (
	OpRelocate  = "relocate"
	OpAnonymize = "anonymize"
)

// Source is the read side of a series aggregator.
type Source interface {
	IDs() []string
	Get(seriesID string) ([]series.Entry, bool)
}

// Options configures an Exporter.
type Options struct {
	// Root is the scan root; output directories are created below it.
	// Ignored when FS is set.
	Root string

	// FS overrides the destination filesystem (nil = osfs rooted at Root).
	FS billy.Filesystem

	SortedDir     string // "" = DefaultSortedDir
	AnonymizedDir string // "" = DefaultAnonymizedDir
	Workers       int    // Concurrent series and concurrent files per series (0 = runtime.NumCPU())

	Logger *zerolog.Logger
}

// Exporter writes the series of a Source.
type Exporter struct {
	src           Source
	fs            billy.Filesystem
	sortedDir     string
	anonymizedDir string
	workers       int
	log           zerolog.Logger
}

// SeriesResult is the outcome of exporting one series.
type SeriesResult struct {
	SeriesID string
	Dir      string // destination directory, relative to the output filesystem
	Written  int
	Err      error
}

// Report summarises one Relocate or Anonymize call.
type Report struct {
	Op      string
	Series  []SeriesResult
	Elapsed time.Duration
}

// Written returns the number of files written across all series.
func (r Report) Written() int {
	n := 0
	for _, s := range r.Series {
		n += s.Written
	}
	return n
}

// Failed returns the number of series that did not complete.
func (r Report) Failed() int {
	n := 0
	for _, s := range r.Series {
		if s.Err != nil {
			n++
		}
	}
	return n
}

// New creates an Exporter reading from src.
func New(src Source, opts Options) *Exporter {
	fs := opts.FS
	if fs == nil {
		fs = osfs.New(opts.Root)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	e := &Exporter{
		src:           src,
		fs:            fs,
		sortedDir:     opts.SortedDir,
		anonymizedDir: opts.AnonymizedDir,
		workers:       workers,
		log:           log,
	}
	if e.sortedDir == "" {
		e.sortedDir = DefaultSortedDir
	}
	if e.anonymizedDir == "" {
		e.anonymizedDir = DefaultAnonymizedDir
	}
	return e
}

// Relocate writes every image of seriesID, in order, to
// {sorted}/{seriesID}/{source file name}. An empty seriesID relocates every
// series; an unknown one is a no-op. Existing files are overwritten.
func (e *Exporter) Relocate(ctx context.Context, seriesID string) (Report, error) {
	ids := e.src.IDs()
	if seriesID != "" {
		ids = nil
		if _, ok := e.src.Get(seriesID); ok {
			ids = []string{seriesID}
		}
	}
	return e.export(ctx, OpRelocate, ids, e.sortedDir, filepath.Base, nil)
}

// Anonymize writes a copy of every image of every series with fields removed to
// {anonymized}/{seriesID}/{stem}_anonymized.{ext}. An empty fields list removes
// DefaultAnonymizeFields. The aggregated objects are not modified.
func (e *Exporter) Anonymize(ctx context.Context, fields []tag.Tag) (Report, error) {
	if len(fields) == 0 {
		fields = DefaultAnonymizeFields
	}
	strip := func(obj *dicom.Object) *dicom.Object {
		return obj.Without(fields)
	}
	return e.export(ctx, OpAnonymize, e.src.IDs(), e.anonymizedDir, AnonymizedName, strip)
}

// AnonymizedName maps a source path to its de-identified file name. Names
// without an extension get ".dcm".
func AnonymizedName(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if ext == "" || stem == "" {
		stem, ext = base, ".dcm"
	}
	return stem + "_anonymized" + ext
}

// export fans out over series. A failing series does not stop the others; the
// returned error is the first failure in series order.
func (e *Exporter) export(ctx context.Context, op string, ids []string, dir string,
	name func(string) string, transform func(*dicom.Object) *dicom.Object) (Report, error) {

	start := time.Now()
	report := Report{Op: op, Series: make([]SeriesResult, len(ids))}

	var g errgroup.Group
	g.SetLimit(e.workers)
	for i, id := range ids {
		g.Go(func() error {
			report.Series[i] = e.exportSeries(ctx, op, id, dir, name, transform)
			return nil
		})
	}
	_ = g.Wait() // series errors are carried in the report

	report.Elapsed = time.Since(start)

	var firstErr error
	for _, s := range report.Series {
		if s.Err != nil && firstErr == nil {
			firstErr = s.Err
		}
	}
	e.log.Info().
		Str("op", op).
		Int("series", len(ids)).
		Int("written", report.Written()).
		Int("failed", report.Failed()).
		Dur("elapsed", report.Elapsed).
		Msg("export finished")
	return report, firstErr
}

// exportSeries writes one series. The first failed write cancels the remaining
// writes of that series.
func (e *Exporter) exportSeries(ctx context.Context, op, id, dir string,
	name func(string) string, transform func(*dicom.Object) *dicom.Object) SeriesResult {

	res := SeriesResult{SeriesID: id}
	if !safeDirName(id) {
		res.Err = &WriteError{Op: op, SeriesID: id, Path: dir, Err: ErrUnsafeSeriesID}
		return res
	}
	res.Dir = filepath.Join(dir, id)

	entries, ok := e.src.Get(id)
	if !ok {
		return res
	}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}
	if err := e.fs.MkdirAll(res.Dir, 0755); err != nil {
		res.Err = &WriteError{Op: op, SeriesID: id, Path: res.Dir, Err: err}
		e.log.Error().Err(err).Str("op", op).Str("series", id).Msg("create series directory")
		return res
	}

	// Entries sharing a target name would race on the same file; the last one
	// in series order is the only one written.
	targets := make(map[string]series.Entry, len(entries))
	order := make([]string, 0, len(entries))
	for _, entry := range entries {
		target := filepath.Join(res.Dir, name(entry.Path))
		if _, seen := targets[target]; !seen {
			order = append(order, target)
		}
		targets[target] = entry
	}
	if replaced := len(entries) - len(order); replaced > 0 {
		e.log.Warn().Str("op", op).Str("series", id).Int("replaced", replaced).
			Msg("source files share a name, keeping the last of each")
	}

	var written atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, target := range order {
		entry := targets[target]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			obj := entry.Object
			if transform != nil {
				obj = transform(obj)
			}
			if err := e.writeObject(target, obj); err != nil {
				return &WriteError{Op: op, SeriesID: id, Path: target, Err: err}
			}
			written.Add(1)
			return nil
		})
	}
	res.Err = g.Wait()
	res.Written = int(written.Load())

	if res.Err != nil {
		e.log.Error().Err(res.Err).Str("op", op).Str("series", id).Int("written", res.Written).Msg("series aborted")
	} else {
		e.log.Debug().Str("op", op).Str("series", id).Int("written", res.Written).Msg("series written")
	}
	return res
}

func (e *Exporter) writeObject(target string, obj *dicom.Object) error {
	f, err := e.fs.Create(target)
	if err != nil {
		return err
	}
	if err := obj.WriteTo(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func safeDirName(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}
