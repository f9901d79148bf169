// Package session holds the state of one sorting run: the series collected by
// the latest scan and the operations that read them.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/google/uuid"
	"github.com/mrsinham/dicomsort/internal/export"
	"github.com/mrsinham/dicomsort/internal/preview"
	"github.com/mrsinham/dicomsort/internal/scan"
	"github.com/mrsinham/dicomsort/internal/series"
	"github.com/rs/zerolog"
	"github.com/suyashkumar/dicom/pkg/tag"
)

var (
	// ErrNoScan is returned by Image and Preview before any scan completed.
	ErrNoScan = errors.New("session: no scan has been run")
	// ErrUnknownSeries is returned for a series id the latest scan did not find.
	ErrUnknownSeries = errors.New("session: unknown series")
	// ErrIndexOutOfRange is returned for an image index outside the series.
	ErrIndexOutOfRange = errors.New("session: image index out of range")
)

// Options configures a Session.
type Options struct {
	Workers       int    // 0 = runtime.NumCPU()
	SortedDir     string // relative to the scan root, "" = export.DefaultSortedDir
	AnonymizedDir string // relative to the scan root, "" = export.DefaultAnonymizedDir

	Logger   *zerolog.Logger
	Progress func(scan.Stats)
}

// Session owns a series aggregator. Each Scan replaces its content entirely.
type Session struct {
	opts Options
	base zerolog.Logger
	agg  *series.Aggregator

	mu      sync.RWMutex
	id      string
	root    string
	scanned bool
}

// New creates an empty session.
func New(opts Options) *Session {
	base := zerolog.Nop()
	if opts.Logger != nil {
		base = *opts.Logger
	}
	return &Session{
		opts: opts,
		base: base,
		agg:  series.NewAggregator(),
	}
}

// ID returns the run id of the latest scan, or "" before the first one.
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// Root returns the root directory of the latest scan.
func (s *Session) Root() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.root
}

// Scan discards the previous series and ingests every DICOM file below root.
func (s *Session) Scan(ctx context.Context, root string) (scan.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.agg.Reset()
	s.id = uuid.NewString()
	s.root = root
	s.scanned = false

	log := s.logger()
	log.Info().Str("root", root).Msg("scan started")

	stats, err := scan.Run(ctx, root, s.agg, scan.Options{
		Workers:  s.opts.Workers,
		Logger:   &log,
		Progress: s.opts.Progress,
	})
	if err != nil {
		return stats, fmt.Errorf("scan: %w", err)
	}
	s.scanned = true

	log.Info().
		Int("files", stats.Files).
		Int("dicom", stats.DICOM).
		Int("added", stats.Added).
		Int("duplicates", stats.Duplicates).
		Int("missing_series", stats.MissingSeries).
		Int("missing_sop", stats.MissingSOP).
		Int("series", s.agg.Len()).
		Dur("elapsed", stats.Elapsed).
		Msg("scan finished")
	return stats, nil
}

// Relocate writes one series (or all of them when seriesID is empty) below
// the sorted directory of the scan root. Before any scan it does nothing.
func (s *Session) Relocate(ctx context.Context, seriesID string) (export.Report, error) {
	e, ok := s.exporter()
	if !ok {
		return export.Report{Op: export.OpRelocate}, nil
	}
	return e.Relocate(ctx, seriesID)
}

// Anonymize writes de-identified copies of every series below the anonymized
// directory of the scan root. Before any scan it does nothing.
func (s *Session) Anonymize(ctx context.Context, fields []tag.Tag) (export.Report, error) {
	e, ok := s.exporter()
	if !ok {
		return export.Report{Op: export.OpAnonymize}, nil
	}
	return e.Anonymize(ctx, fields)
}

// Snapshot returns the number of images per series.
func (s *Session) Snapshot() map[string]int {
	return s.agg.Snapshot()
}

// IDs returns the series ids in lexical order.
func (s *Session) IDs() []string {
	return s.agg.IDs()
}

// Get returns the ordered images of a series.
func (s *Session) Get(seriesID string) ([]series.Entry, bool) {
	return s.agg.Get(seriesID)
}

// Image returns the image at index (0-based) of a series.
func (s *Session) Image(seriesID string, index int) (series.Entry, error) {
	s.mu.RLock()
	scanned := s.scanned
	s.mu.RUnlock()
	if !scanned {
		return series.Entry{}, ErrNoScan
	}

	entries, ok := s.agg.Get(seriesID)
	if !ok {
		return series.Entry{}, fmt.Errorf("%w: %s", ErrUnknownSeries, seriesID)
	}
	if index < 0 || index >= len(entries) {
		return series.Entry{}, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, index, len(entries))
	}
	return entries[index], nil
}

// Preview renders the image at index labelled "i/n" (1-based), scaled to
// width pixels (0 keeps the native size).
func (s *Session) Preview(seriesID string, index, width int) (image.Image, error) {
	entry, err := s.Image(seriesID, index)
	if err != nil {
		return nil, err
	}
	total := s.agg.Snapshot()[seriesID]
	img, err := preview.Render(entry.Object.Dataset(), width, fmt.Sprintf("%d/%d", index+1, total))
	if err != nil {
		return nil, fmt.Errorf("preview %s: %w", entry.Path, err)
	}
	return img, nil
}

func (s *Session) exporter() (*export.Exporter, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.scanned {
		return nil, false
	}
	log := s.logger()
	return export.New(s.agg, export.Options{
		Root:          s.root,
		SortedDir:     s.opts.SortedDir,
		AnonymizedDir: s.opts.AnonymizedDir,
		Workers:       s.opts.Workers,
		Logger:        &log,
	}), true
}

// logger must be called with s.mu held.
func (s *Session) logger() zerolog.Logger {
	return s.base.With().Str("run", s.id).Logger()
}
