// Package scan walks a directory tree and feeds every DICOM file it finds to a
// Sink through a pool of probe workers.
package scan

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// WalkStats summarises one directory walk.
type WalkStats struct {
	Files   int
	Skipped int
}

// Walk sends the path of every regular file below root to out, recursively and
// in no particular order. Unreadable subdirectories are skipped and counted;
// only an unreadable root is an error. Walk does not close out.
func Walk(ctx context.Context, root string, out chan<- string, log zerolog.Logger) (WalkStats, error) {
	var stats WalkStats

	info, err := os.Stat(root)
	if err != nil {
		return stats, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return stats, fmt.Errorf("root %s is not a directory", root)
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			stats.Skipped++
			log.Warn().Err(err).Str("path", path).Msg("skipping unreadable entry")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		select {
		case out <- path:
			stats.Files++
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err != nil {
		return stats, fmt.Errorf("walk %s: %w", root, err)
	}
	return stats, nil
}
