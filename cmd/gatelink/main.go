package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gatelink-dev/gatelink/internal/config"
	"github.com/gatelink-dev/gatelink/internal/discovery"
	"github.com/gatelink-dev/gatelink/pkg/hub"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ╔═╗┌─┐┌┬┐┌─┐╦  ┬┌┐┌┬┌─
  ║ ╦├─┤ │ ├┤ ║  ││││├┴┐
  ╚═╝┴ ┴ ┴ └─┘╩═╝┴┘└┘┴ ┴
`

// Global flags.
var (
	flagConfig  string
	flagVerbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gatelink",
		Short: "Local TCP gateway for GateLink smart-home hubs",
		Long: `GateLink talks to a smart-home hub over its local TCP protocol,
without the vendor cloud: it logs in, loads the full device tree, and
streams live state changes.

  • monitor   run the gateway daemon with the HTTP status server
  • discover  find hubs on the LAN via mDNS
  • set       write device channel values
  • scene     trigger a scene
  • ir        send infrared remote keys
  • capture   record raw frames for offline analysis
  • decode    pretty-print captured or hex-encoded frames
  • simulate  run a scripted in-process hub`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c",
		config.ConfigFileName, "path to the gateway config file")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v",
		false, "enable debug logging")

	rootCmd.AddCommand(
		monitorCmd(),
		discoverCmd(),
		setCmd(),
		sceneCmd(),
		irCmd(),
		captureCmd(),
		decodeCmd(),
		simulateCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		os.Exit(1)
	}
}

// printBanner prints the GateLink ASCII art banner.
func printBanner() {
	fmt.Print(banner)
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(format string, args ...any) {
	fmt.Printf("\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}

// errorMsg prints an error message.
func errorMsg(format string, args ...any) {
	fmt.Printf("\033[31m✗\033[0m %s\n", fmt.Sprintf(format, args...))
}

// newLogger builds the process logger from the config and --verbose.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if flagVerbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// loadConfig reads the config file named by --config.
func loadConfig() (*config.Config, error) {
	return config.Load(flagConfig)
}

// resolveAddress fills the hub address from mDNS discovery when the
// config names a serial instead.
func resolveAddress(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.Hub.Address != "" {
		return nil
	}
	logger.Info("discovering hub", "serial", cfg.Hub.Serial)
	h, err := discovery.NewScanner().Find(ctx, cfg.Hub.Serial)
	if err != nil {
		return err
	}
	logger.Info("hub discovered", "serial", h.Serial, "addr", h.Addr)
	cfg.Hub.Address = h.Addr
	return nil
}

// withSession runs fn against a connected, ready session, then shuts it
// down. One-shot commands (set, scene, ir, capture) use it.
func withSession(ctx context.Context, cfg *config.Config, logger *slog.Logger,
	handler hub.DeltaHandler, fn func(s *hub.Session) error) error {

	if err := resolveAddress(ctx, cfg, logger); err != nil {
		return err
	}
	sc := cfg.SessionConfig()
	sc.Logger = logger
	s, err := hub.NewSession(sc, handler)
	if err != nil {
		return err
	}

	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(ctx) }()
	defer func() {
		s.Stop()
		<-runErr
	}()

	select {
	case <-s.Ready():
	case err := <-runErr:
		runErr <- err // withSession's deferred drain still needs it
		return fmt.Errorf("session ended before becoming ready: %w", err)
	case <-time.After(30 * time.Second):
		return fmt.Errorf("hub at %s did not become ready", sc.Address)
	case <-ctx.Done():
		return ctx.Err()
	}

	return fn(s)
}
