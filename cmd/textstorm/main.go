// Package main is the entry point for the textstorm expander.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dshills/textstorm/internal/app"
	"github.com/dshills/textstorm/internal/config"
	"github.com/dshills/textstorm/internal/logging"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// options holds the global flags.
type options struct {
	ConfigPath  string
	LogLevel    string
	LogFile     string
	DBPath      string
	MetricsAddr string
	ControlURL  string
	Headless    bool
}

// errUsage is returned for malformed command lines.
var errUsage = errors.New("usage")

func main() {
	os.Exit(run())
}

func run() int {
	opts, args := parseFlags()
	if len(args) == 0 {
		flag.Usage()
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch args[0] {
	case "attach":
		err = withRuntime(ctx, opts, os.Stderr, func(ctx context.Context, rt *app.Runtime, logger *logging.Logger) error {
			return attach(ctx, rt, opts, args[1:], logger)
		})
	case "play":
		// The screen owns the terminal, so logs only go to a file.
		err = withRuntime(ctx, opts, io.Discard, play)
	case "check":
		err = withRuntime(ctx, opts, os.Stderr, func(ctx context.Context, rt *app.Runtime, _ *logging.Logger) error {
			return check(ctx, rt, args[1:], os.Stdout)
		})
	case "snippet":
		err = withRuntime(ctx, opts, os.Stderr, func(ctx context.Context, rt *app.Runtime, _ *logging.Logger) error {
			return snippetCmd(ctx, rt.Store(), args[1:], os.Stdout)
		})
	case "version":
		fmt.Printf("textstorm %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		return 0
	default:
		err = fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, errUsage) {
			return 2
		}
		return 1
	}
	return 0
}

// withRuntime loads the settings, applies the flag overrides and runs fn
// against a fresh runtime.
func withRuntime(ctx context.Context, opts options, logOut io.Writer, fn func(context.Context, *app.Runtime, *logging.Logger) error) error {
	if opts.LogFile != "" {
		f, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logOut = f
	}
	logger := logging.New(logging.Config{
		Level:  logging.ParseLevel(opts.LogLevel),
		Output: logOut,
		Prefix: "textstorm",
	})

	mgr, err := config.NewManager(opts.ConfigPath, config.WithLogger(logger))
	if err != nil {
		return err
	}
	defer mgr.Close()
	if err := mgr.Update(func(s *config.Settings) { applyOverrides(s, opts) }); err != nil {
		return err
	}
	if opts.LogLevel == "" {
		logger.SetLevel(logging.ParseLevel(mgr.Settings().Log.Level))
	}

	rt, err := app.New(ctx, app.Options{Settings: mgr, Logger: logger})
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt, logger)
}

// applyOverrides copies the non-empty global flags over the settings.
func applyOverrides(s *config.Settings, opts options) {
	if opts.LogLevel != "" {
		s.Log.Level = opts.LogLevel
	}
	if opts.DBPath != "" {
		s.Store.Driver = config.DriverSQLite
		s.Store.Path = opts.DBPath
	}
	if opts.MetricsAddr != "" {
		s.Metrics.Addr = opts.MetricsAddr
	}
}

func parseFlags() (options, []string) {
	var opts options
	var showVersion bool
	var showHelp bool

	flag.StringVar(&opts.ConfigPath, "config", config.DefaultPath(), "Path to configuration file")
	flag.StringVar(&opts.ConfigPath, "c", config.DefaultPath(), "Path to configuration file (shorthand)")
	flag.StringVar(&opts.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.StringVar(&opts.LogFile, "log-file", "", "Write logs to this file")
	flag.StringVar(&opts.DBPath, "db", "", "SQLite snippet database")
	flag.StringVar(&opts.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	flag.StringVar(&opts.ControlURL, "control-url", "", "DevTools WebSocket URL of a running Chrome")
	flag.BoolVar(&opts.Headless, "headless", false, "Launch Chrome without a window")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")
	flag.BoolVar(&showHelp, "help", false, "Show help message")
	flag.BoolVar(&showHelp, "h", false, "Show help message (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "textstorm - snippet expansion for the browser\n\n")
		fmt.Fprintf(os.Stderr, "Usage: textstorm [options] <command> [args...]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  attach [url...]               Expand in Chrome tabs (all open tabs if no url)\n")
		fmt.Fprintf(os.Stderr, "  play                          Expand in a terminal text field\n")
		fmt.Fprintf(os.Stderr, "  check <text>                  Print what typing text would expand to\n")
		fmt.Fprintf(os.Stderr, "  snippet add <trigger> <text>  Add a snippet\n")
		fmt.Fprintf(os.Stderr, "  snippet list                  List snippets\n")
		fmt.Fprintf(os.Stderr, "  snippet rm <trigger|id>       Remove a snippet\n")
		fmt.Fprintf(os.Stderr, "  version                       Show version information\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		return opts, []string{"version"}
	}

	switch opts.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		fmt.Fprintf(os.Stderr, "Error: invalid log level %q (must be debug, info, warn, or error)\n", opts.LogLevel)
		os.Exit(1)
	}

	if _, err := os.Stat(opts.ConfigPath); errors.Is(err, os.ErrNotExist) {
		opts.ConfigPath = ""
	}

	return opts, flag.Args()
}
