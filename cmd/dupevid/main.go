package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ivoronin/dupevid/internal/config"
	"github.com/ivoronin/dupevid/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
)

// globalOptions holds flags shared by every subcommand.
type globalOptions struct {
	configFile string
	logLevel   string
	cfg        *config.Config
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)
	defer func() { _ = logging.Close() }()

	if err := root.Execute(); err != nil {
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	g := &globalOptions{}

	root := &cobra.Command{
		Use:     "dupevid",
		Short:   "Find duplicate video files by content",
		Version: version + " (" + commit + ")",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return g.load()
		},
	}

	root.PersistentFlags().StringVar(&g.configFile, "config", "", "Path to config file (default $XDG_CONFIG_HOME/dupevid/config.yaml)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Also log to stderr at this level (debug, info, warn, error)")

	root.AddCommand(newScanCmd(g))
	root.AddCommand(newServeCmd(g))
	return root
}

// load reads configuration and starts logging.
func (g *globalOptions) load() error {
	cfg, err := config.Load(g.configFile)
	if err != nil {
		return err
	}
	if g.logLevel != "" {
		if _, err := logging.ParseLevel(g.logLevel); err != nil {
			return err
		}
		cfg.Logging.ConsoleLevel = g.logLevel
	}
	if err := logging.Init(cfg.LogConfig()); err != nil {
		return err
	}
	g.cfg = cfg
	return nil
}
