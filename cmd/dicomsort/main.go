package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/mrsinham/dicomsort/cmd/dicomsort/picker"
	"github.com/mrsinham/dicomsort/internal/config"
	"github.com/mrsinham/dicomsort/internal/export"
	"github.com/mrsinham/dicomsort/internal/preview"
	"github.com/mrsinham/dicomsort/internal/scan"
	"github.com/mrsinham/dicomsort/internal/session"
	"github.com/mrsinham/dicomsort/internal/util"
	"github.com/rs/zerolog"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// version is set at build time via -ldflags
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Check for preview subcommand (before flag.Parse)
	if len(os.Args) > 1 && os.Args[1] == "preview" {
		if err := runPreview(ctx, os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	relocate := flag.Bool("relocate", false, "Relocate series into the sorted layout")
	seriesID := flag.String("series", "", "Restrict relocation to one Series Instance UID (default: all)")
	anonymize := flag.Bool("anonymize", false, "Write de-identified copies of every series")
	fields := flag.String("fields", "", "Comma-separated fields to remove when anonymizing (default: built-in set)")
	workers := flag.Int("workers", 0, fmt.Sprintf("Number of parallel workers (default: %d = CPU cores)", runtime.NumCPU()))
	configFile := flag.String("config", "", "Load configuration from YAML file")
	writeConfig := flag.String("write-config", "", "Write the effective configuration to a YAML file and exit")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (default: info)")
	logFormat := flag.String("log-format", "", "Log format: console or json (default: console)")
	quiet := flag.Bool("quiet", false, "Suppress progress and summary output")

	interactive := flag.Bool("interactive", false, "Choose the series and action interactively after the scan")
	flag.BoolVar(interactive, "i", false, "Choose interactively (shortcut)")

	help := flag.Bool("help", false, "Show help message")
	showVersion := flag.Bool("version", false, "Show version")

	flag.Parse()

	if *showVersion {
		fmt.Printf("dicomsort %s\n", version)
		return
	}
	if *help {
		printHelp()
		return
	}

	cfg := config.Default()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Flags given on the command line override the file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "workers":
			cfg.Workers = *workers
		case "log-level":
			cfg.Log.Level = *logLevel
		case "log-format":
			cfg.Log.Format = *logFormat
		}
	})
	if flag.NArg() > 1 {
		fmt.Fprintf(os.Stderr, "Error: expected one root directory, got %d arguments\n", flag.NArg())
		printUsage()
		os.Exit(1)
	}
	if flag.NArg() == 1 {
		cfg.Root = flag.Arg(0)
	}
	if cfg.Root == "" {
		fmt.Fprintf(os.Stderr, "Error: a root directory is required\n")
		printUsage()
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration:\n%v\n", err)
		os.Exit(1)
	}

	anonymizeFields, err := cfg.Fields()
	if err == nil && *fields != "" {
		anonymizeFields, err = util.ParseTagList(*fields)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *writeConfig != "" {
		if *fields != "" {
			cfg.Anonymize.Fields = make([]string, 0, len(anonymizeFields))
			for _, t := range anonymizeFields {
				cfg.Anonymize.Fields = append(cfg.Anonymize.Fields, util.NameOf(t))
			}
		}
		if err := config.Save(*writeConfig, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("✓ Configuration written to %s\n", *writeConfig)
		return
	}

	opts := runOptions{
		cfg:         cfg,
		relocate:    *relocate,
		seriesID:    *seriesID,
		anonymize:   *anonymize,
		fields:      anonymizeFields,
		quiet:       *quiet,
		interactive: *interactive,
	}
	if err := run(ctx, opts); err != nil {
		if errors.Is(err, picker.ErrCancelled) {
			fmt.Println("Cancelled.")
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type runOptions struct {
	cfg         config.Config
	relocate    bool
	seriesID    string
	anonymize   bool
	fields      []tag.Tag
	quiet       bool
	interactive bool
}

func run(ctx context.Context, opts runOptions) error {
	log := newLogger(opts.cfg.Log, os.Stderr).Level(opts.cfg.Level())
	out := io.Writer(os.Stdout)
	if opts.quiet {
		out = io.Discard
	}

	sess := session.New(session.Options{
		Workers:       opts.cfg.Workers,
		SortedDir:     opts.cfg.Output.Sorted,
		AnonymizedDir: opts.cfg.Output.Anonymized,
		Logger:        &log,
		Progress: func(s scan.Stats) {
			if s.Files%1000 == 0 && s.Files > 0 {
				fmt.Fprintf(out, "  Progress: %d files scanned, %d DICOM\n", s.Files, s.DICOM)
			}
		},
	})

	fmt.Fprintln(out, "dicomsort")
	fmt.Fprintln(out, "=========")
	fmt.Fprintf(out, "Scanning %s...\n", opts.cfg.Root)

	stats, err := sess.Scan(ctx, opts.cfg.Root)
	if err != nil {
		return err
	}
	ids := sess.IDs()
	counts := sess.Snapshot()
	fmt.Fprintf(out, "\n✓ %d files scanned, %d DICOM, %d images in %d series (%s)\n",
		stats.Files, stats.DICOM, stats.Added, len(ids), stats.Elapsed.Round(time.Millisecond))
	if dropped := stats.Duplicates + stats.MissingSeries + stats.MissingSOP; dropped > 0 {
		fmt.Fprintf(out, "  Skipped: %d duplicates, %d without series id, %d without instance id\n",
			stats.Duplicates, stats.MissingSeries, stats.MissingSOP)
	}
	if stats.Skipped > 0 {
		fmt.Fprintf(out, "  Unreadable directories: %d\n", stats.Skipped)
	}
	fmt.Fprintln(out, picker.RenderSummary(ids, counts))

	if opts.interactive {
		if len(ids) == 0 {
			return nil
		}
		choice, err := picker.Run(ids, counts)
		if err != nil {
			return err
		}
		opts.seriesID = choice.SeriesID
		opts.relocate = choice.Relocate()
		opts.anonymize = choice.Anonymize()
	}

	var firstErr error
	if opts.relocate {
		report, err := sess.Relocate(ctx, opts.seriesID)
		printReport(out, report, opts.cfg.Output.Sorted)
		firstErr = err
	}
	if opts.anonymize {
		report, err := sess.Anonymize(ctx, opts.fields)
		printReport(out, report, opts.cfg.Output.Anonymized)
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func printReport(out io.Writer, report export.Report, dir string) {
	verb := "Relocated"
	if report.Op == export.OpAnonymize {
		verb = "Anonymized"
	}
	fmt.Fprintf(out, "\n✓ %s %d files from %d series into %s/ (%s)\n",
		verb, report.Written(), len(report.Series)-report.Failed(), dir, report.Elapsed.Round(time.Millisecond))
	for _, s := range report.Series {
		if s.Err != nil {
			fmt.Fprintf(out, "  ✗ series %s: %v\n", s.SeriesID, s.Err)
		}
	}
}

func newLogger(cfg config.LogConfig, w io.Writer) zerolog.Logger {
	if cfg.Format == config.FormatJSON {
		return zerolog.New(w).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
}

func runPreview(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("preview", flag.ContinueOnError)
	seriesID := fs.String("series", "", "Series Instance UID (required)")
	index := fs.Int("index", 0, "Image index within the series, 0-based")
	width := fs.Int("width", 512, "Output width in pixels (0 = native size)")
	outPath := fs.String("out", "", "Output PNG file (required)")
	workers := fs.Int("workers", 0, "Number of parallel workers (default: CPU cores)")
	logLevel := fs.String("log-level", "warn", "Log level")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 || *seriesID == "" || *outPath == "" {
		fs.Usage()
		return errors.New("preview needs --series, --out and one root directory")
	}

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	log := newLogger(config.LogConfig{Format: config.FormatConsole}, os.Stderr).Level(level)

	sess := session.New(session.Options{Workers: *workers, Logger: &log})
	if _, err := sess.Scan(ctx, fs.Arg(0)); err != nil {
		return err
	}
	img, err := sess.Preview(*seriesID, *index, *width)
	if err != nil {
		return err
	}

	f, err := os.Create(*outPath)
	if err != nil {
		return fmt.Errorf("create preview file: %w", err)
	}
	if err := preview.WritePNG(f, img); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close preview file: %w", err)
	}
	fmt.Printf("✓ Preview of %s image %d written to %s\n", *seriesID, *index, *outPath)
	return nil
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "\nUsage:")
	fmt.Fprintln(os.Stderr, "  dicomsort [options] <root>")
	fmt.Fprintln(os.Stderr, "  dicomsort preview --series <UID> --index <N> --out <file.png> <root>")
	fmt.Fprintln(os.Stderr, "\nOptions:")
	flag.PrintDefaults()
}

func printHelp() {
	fmt.Println("dicomsort")
	fmt.Println("=========")
	fmt.Println()
	fmt.Println("Group a directory tree of DICOM files into series, order each series by slice")
	fmt.Println("position, and write them back relocated or de-identified.")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  dicomsort [options] <root>")
	fmt.Println("  dicomsort preview --series <UID> --index <N> [--width W] --out <file.png> <root>")
	fmt.Println()
	fmt.Println("Without --relocate or --anonymize the tree is only scanned and summarised.")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --relocate            Write every series to <root>/processed/sorted/<series>/")
	fmt.Println("  --series <UID>        Relocate only this series (default: all)")
	fmt.Println("  --anonymize           Write de-identified copies to <root>/processed/anonymized/<series>/")
	fmt.Println("  --fields <LIST>       Comma-separated fields to remove, by name or tag")
	fmt.Println("                        Example: \"PatientName,PatientID,(0008,0080)\"")
	fmt.Printf("  --workers <N>         Number of parallel workers (default: %d = CPU cores)\n", runtime.NumCPU())
	fmt.Println("  --config <FILE>       Load settings from a YAML file (flags take precedence)")
	fmt.Println("  --write-config <FILE> Write the effective settings to a YAML file and exit")
	fmt.Println("  --log-level <LEVEL>   debug, info, warn, error (default: info)")
	fmt.Println("  --log-format <FMT>    console or json (default: console)")
	fmt.Println("  --quiet               Suppress progress and summary output")
	fmt.Println("  -i, --interactive     Pick the series and action after the scan")
	fmt.Println("  --version             Show version")
	fmt.Println("  --help                Show this help message")
	fmt.Println()
	fmt.Println("Fields removed by default when anonymizing:")
	groups := util.GroupByScope(export.DefaultAnonymizeFields)
	scopes := append(append([]util.TagScope{}, util.Scopes...), util.ScopeUnknown)
	for _, scope := range scopes {
		if len(groups[scope]) == 0 {
			continue
		}
		fmt.Printf("  %s:\n", scope)
		for _, t := range groups[scope] {
			fmt.Printf("    %s %s\n", t, util.NameOf(t))
		}
	}
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  # Summarise the series found below a directory")
	fmt.Println("  dicomsort /data/exam")
	fmt.Println()
	fmt.Println("  # Relocate and anonymize everything with 4 workers")
	fmt.Println("  dicomsort --relocate --anonymize --workers 4 /data/exam")
	fmt.Println()
	fmt.Println("  # Render the 10th slice of a series")
	fmt.Println("  dicomsort preview --series 1.2.840.1234 --index 9 --out slice.png /data/exam")
}
