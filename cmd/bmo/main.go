package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vanderheijden86/bmo/pkg/config"
	"github.com/vanderheijden86/bmo/pkg/debug"
	"github.com/vanderheijden86/bmo/pkg/version"
)

// Environment variables read by the command line only.
const (
	envDebug   = "BMO_DEBUG"
	envLogFile = "BMO_LOG_FILE"
)

// app carries the global flags and what PersistentPreRunE derives from
// them. Subcommands read cfg and logger.
type app struct {
	configPath string
	sourceURL  string
	sourceDir  string
	verbose    bool
	logFile    string

	cfg    config.Config
	logger *zap.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{logger: zap.NewNop()}

	root := &cobra.Command{
		Use:   "bmo",
		Short: "Administrative command center over evaluations, governance, tickets and recouvrements",
		Long: `bmo polls a REST backend (or a directory of JSON files) and derives KPIs,
insights and alert timelines for every module.

Run without arguments to start the terminal dashboard.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Parent() == nil)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.logger.Sync()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTUI(cmd.Context())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "Config file (default: $XDG_CONFIG_HOME/bmo/config.yaml)")
	pf.StringVar(&a.sourceURL, "source-url", "", "REST base URL (overrides source.url)")
	pf.StringVar(&a.sourceDir, "source-dir", "", "Directory of <module>.json files (overrides source.dir)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	pf.StringVar(&a.logFile, "log-file", "", "Write logs to this file (required to see logs from the dashboard)")

	root.AddCommand(
		a.kpisCmd(),
		a.insightsCmd(),
		a.recordsCmd(),
		a.exportCmd(),
		a.serveCmd(),
		versionCmd(),
	)
	return root
}

// setup loads the configuration (file, then environment, then flags) and
// builds the logger. The dashboard logs nowhere unless a log file is set,
// since stdout belongs to the alternate screen.
func (a *app) setup(tui bool) error {
	var (
		cfg config.Config
		err error
	)
	if a.configPath != "" {
		cfg, err = config.LoadFrom(a.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	cfg = config.ApplyEnv(cfg)
	if a.sourceURL != "" {
		cfg.Source.URL = a.sourceURL
	}
	if a.sourceDir != "" {
		cfg.Source.Dir = a.sourceDir
		// An explicit directory wins over a configured URL.
		if a.sourceURL == "" {
			cfg.Source.URL = ""
		}
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg

	logFile := a.logFile
	if logFile == "" {
		logFile = strings.TrimSpace(os.Getenv(envLogFile))
	}
	debugOn := a.verbose || os.Getenv(envDebug) == "1"
	if tui && logFile == "" {
		a.logger = zap.NewNop()
		return nil
	}

	logger, err := buildLogger(debugOn, logFile)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.logger = logger
	debug.SetLogger(logger)
	if debugOn {
		debug.SetEnabled(true)
	}
	debug.Dump("policy", cfg.Policy)
	return nil
}

func buildLogger(debugOn bool, logFile string) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if debugOn {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	zc.EncoderConfig.TimeKey = "time"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if logFile != "" {
		zc.OutputPaths = []string{logFile}
		zc.ErrorOutputPaths = []string{logFile}
	}
	return zc.Build()
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version.String())
			return err
		},
	}
}
