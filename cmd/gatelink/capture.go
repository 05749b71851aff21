package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gatelink-dev/gatelink/pkg/capture"
	"github.com/gatelink-dev/gatelink/pkg/hub"
)

func captureCmd() *cobra.Command {
	var (
		duration time.Duration
		dir      string
		prefix   string
	)

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Record raw hub frames to a capture file",
		Long: `Connects to the hub and records every frame crossing the socket,
login and config load included, until the duration elapses. Decode the
resulting file with "gatelink decode".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			if dir != "" {
				cfg.Capture.Dir = dir
			}
			if prefix != "" {
				cfg.Capture.Prefix = prefix
			}

			ctx := cmd.Context()
			if err := resolveAddress(ctx, cfg, logger); err != nil {
				return err
			}

			store, err := capture.NewFileStore(cfg.Capture.Dir)
			if err != nil {
				return err
			}
			dst, name, err := store.Create(cfg.Capture.Prefix)
			if err != nil {
				return err
			}
			w := capture.NewWriter(dst)

			sc := cfg.SessionConfig()
			sc.Logger = logger
			sc.WithTap(w)

			s, err := hub.NewSession(sc, nil)
			if err != nil {
				w.Close()
				return err
			}

			info("Capturing to %s for %s...", name, duration)
			runErr := make(chan error, 1)
			go func() { runErr <- s.Run(ctx) }()

			timer := time.NewTimer(duration)
			defer timer.Stop()
			select {
			case <-timer.C:
			case err := <-runErr:
				w.Close()
				return fmt.Errorf("session ended during capture: %w", err)
			case <-ctx.Done():
			}
			s.Stop()
			<-runErr

			if err := w.Close(); err != nil {
				return fmt.Errorf("finish capture: %w", err)
			}
			success("Captured %d frames to %s", w.Records(), name)
			return nil
		},
	}

	cmd.Flags().DurationVar(&duration, "duration", 30*time.Second, "how long to record")
	cmd.Flags().StringVar(&dir, "dir", "", "capture store directory (overrides config)")
	cmd.Flags().StringVar(&prefix, "prefix", "", "capture file name prefix (overrides config)")
	return cmd
}
