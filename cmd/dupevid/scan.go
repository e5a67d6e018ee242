package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ivoronin/dupevid/internal/cache"
	"github.com/ivoronin/dupevid/internal/pathfilter"
	"github.com/ivoronin/dupevid/internal/progress"
	"github.com/ivoronin/dupevid/internal/report"
	"github.com/ivoronin/dupevid/internal/scan"
)

// scanOptions holds CLI flags for the scan command.
type scanOptions struct {
	directories []string
	extensions  []string
	excludes    []string
	output      string
	format      string
	workers     int
	batchSize   int
	cacheFile   string
	noCache     bool
	noProgress  bool
}

// newScanCmd creates the scan subcommand.
func newScanCmd(g *globalOptions) *cobra.Command {
	opts := &scanOptions{}

	cmd := &cobra.Command{
		Use:   "scan [directories...]",
		Short: "Scan directories for duplicate videos and save the results",
		Long: `Hashes every video file under the given directories and writes groups of
identical files to a result file, keyed by SHA-256 digest.

Directories may be given as arguments, with -d, or both. Directories that do
not exist are reported and skipped. The scan runs at full speed; press Ctrl-C
to stop early and keep the partial results.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, g, collectDirectories(args, opts.directories), opts)
		},
	}

	// Bind flags to options
	cmd.Flags().StringSliceVarP(&opts.directories, "directories", "d", nil, "Directories to scan")
	cmd.Flags().StringSliceVarP(&opts.extensions, "extensions", "e", nil, "Video file extensions (default from config: .mp4,.avi,.mkv,.mov,.wmv,.flv,.webm)")
	cmd.Flags().StringSliceVarP(&opts.excludes, "exclude", "x", nil, "Additional paths or directory names to exclude, on top of the configured list")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "duplicates.json", "Result file")
	cmd.Flags().StringVar(&opts.format, "format", "", "Result format: json or yaml (default from --output extension)")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "Number of files hashed in parallel (default from config)")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 0, "Files per batch (default from config)")
	cmd.Flags().StringVar(&opts.cacheFile, "cache-file", "", "Path to digest cache file (default from config)")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "Disable the digest cache")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "Disable progress output")

	return cmd
}

// runScan executes a synchronous, unthrottled scan and writes its results.
func runScan(cmd *cobra.Command, g *globalOptions, dirs []string, opts *scanOptions) error {
	cfg := g.cfg
	if len(dirs) == 0 {
		return errors.New("at least one directory is required")
	}

	printer := report.NewPrinter(cmd.OutOrStdout())
	dirs = existingDirectories(dirs, printer.Missing)
	if len(dirs) == 0 {
		return scan.ErrNoValidRoots
	}

	extensions := cfg.Extensions
	if len(opts.extensions) > 0 {
		extensions = opts.extensions
	}
	extensions, err := validateExtensions(extensions)
	if err != nil {
		return fmt.Errorf("invalid --extensions: %w", err)
	}

	format := report.FormatForPath(opts.output)
	if opts.format != "" {
		if format, err = report.ParseFormat(opts.format); err != nil {
			return fmt.Errorf("invalid --format: %w", err)
		}
	}

	cacheFile := cfg.CacheFile
	if opts.cacheFile != "" {
		cacheFile = opts.cacheFile
	}
	if opts.noCache {
		cacheFile = ""
	}
	hashCache, err := cache.Open(cacheFile)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer func() { _ = hashCache.Close() }()

	// Create shared error channel
	errs := make(chan error, 100)
	drained := make(chan struct{})
	go drainErrors(errs, drained)

	ctrl := scan.NewController(scan.ControllerOptions{
		DisableThrottle: true,
		MemoryHighWater: cfg.MemoryHighWater,
		ReliefPause:     cfg.ReliefPause,
		Cache:           hashCache,
		OnError:         func(err error) { errs <- err },
	})

	state, err := execute(cmd.Context(), ctrl, scan.Options{
		Roots:      dirs,
		Extensions: extensions,
		Workers:    pick(opts.workers, cfg.Workers),
		BatchSize:  pick(opts.batchSize, cfg.BatchSize),
		Filter:     pathfilter.Parse(cfg.Exclude).With(opts.excludes...),
	}, !opts.noProgress)

	ctrl.Close()
	close(errs)
	<-drained

	if err != nil {
		return err
	}

	switch state.Phase {
	case scan.Failed:
		return fmt.Errorf("scan failed: %s", state.CurrentFile)
	case scan.Cancelled:
		printer.Cancelled()
	}

	groups := state.Groups()
	printer.Discovered(state.TotalFiles)
	if err := report.WriteFile(opts.output, groups, format); err != nil {
		return err
	}
	printer.Summary(groups, opts.output)
	return nil
}

// execute runs one scan to completion, cancelling it on SIGINT or SIGTERM.
func execute(parent context.Context, ctrl *scan.Controller, opts scan.Options, showProgress bool) (scan.State, error) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sub := ctrl.Subscribe()
	if sub == nil {
		return scan.State{}, errors.New("controller closed")
	}
	defer ctrl.Unsubscribe(sub.ID)

	if !ctrl.Start(opts) {
		return scan.State{}, errors.New("scan already in progress")
	}

	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-ctx.Done():
			ctrl.Cancel()
		case <-finished:
		}
	}()

	progress.Follow(showProgress, sub.Events)
	return ctrl.Wait(context.Background())
}

// pick returns flag when set, otherwise fallback.
func pick(flag, fallback int) int {
	if flag > 0 {
		return flag
	}
	return fallback
}
