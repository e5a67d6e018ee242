package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ivoronin/dupevid/internal/api"
	"github.com/ivoronin/dupevid/internal/cache"
	"github.com/ivoronin/dupevid/internal/config"
	"github.com/ivoronin/dupevid/internal/logging"
	"github.com/ivoronin/dupevid/internal/pathfilter"
	"github.com/ivoronin/dupevid/internal/scan"
	"github.com/ivoronin/dupevid/internal/throttle"
)

// serveOptions holds CLI flags for the serve command.
type serveOptions struct {
	listen    string
	cacheFile string
	noCache   bool
}

// newServeCmd creates the serve subcommand.
func newServeCmd(g *globalOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scan engine behind an HTTP control API",
		Long: `Runs a long-lived scan controller for a host application. Scans are started,
paused, resumed and cancelled over HTTP, hash under a CPU ceiling, and push
progress snapshots over a WebSocket at /api/scan/events.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, g.cfg, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.listen, "listen", "l", "", "Listen address (default from config: "+config.DefaultListen+")")
	cmd.Flags().StringVar(&opts.cacheFile, "cache-file", "", "Path to digest cache file (default from config)")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "Disable the digest cache")

	return cmd
}

func runServe(cmd *cobra.Command, cfg *config.Config, opts *serveOptions) error {
	log := logging.Get("serve")

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

	ctrl := scan.NewController(scan.ControllerOptions{
		Sampler:         throttle.Host{},
		ThrottleDelay:   cfg.ThrottleDelay,
		MemoryHighWater: cfg.MemoryHighWater,
		ReliefPause:     cfg.ReliefPause,
		Cache:           hashCache,
	})
	defer ctrl.Close()

	server := api.New(ctrl, throttle.Host{}, api.Defaults{
		Roots:      scan.DefaultRoots,
		Extensions: cfg.Extensions,
		CPUCeiling: cfg.CPUCeiling,
		BatchSize:  cfg.BatchSize,
		Workers:    cfg.Workers,
		Filter:     pathfilter.Parse(cfg.Exclude),
	})

	listen := cfg.Listen
	if opts.listen != "" {
		listen = opts.listen
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "Listening on http://%s\n", listen)
	log.Info("serving", "listen", listen, "cache", cacheFile, "cpu_ceiling", cfg.CPUCeiling)
	return server.ListenAndServe(ctx, listen, config.DefaultShutdownTimeout)
}
