package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gatelink-dev/gatelink/internal/config"
	"github.com/gatelink-dev/gatelink/pkg/capture"
	"github.com/gatelink-dev/gatelink/pkg/hub"
	"github.com/gatelink-dev/gatelink/pkg/monitor"
)

func monitorCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Run the gateway daemon",
		Long: `Connects to the hub, keeps the device tree current, and serves the
monitor HTTP endpoints. Edits to the config file restart the hub session
in place; the HTTP server keeps running across restarts.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Monitor.Addr = addr
				cfg.Monitor.Enabled = true
			}
			return runMonitor(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "monitor listen address (overrides config)")
	return cmd
}

// sessionHolder lets the monitor server observe whichever session is
// current across config-triggered restarts.
type sessionHolder struct {
	mu sync.RWMutex
	s  *hub.Session
}

func (h *sessionHolder) set(s *hub.Session) {
	h.mu.Lock()
	h.s = s
	h.mu.Unlock()
}

func (h *sessionHolder) get() *hub.Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.s
}

func (h *sessionHolder) HubID() string {
	if s := h.get(); s != nil {
		return s.HubID()
	}
	return ""
}

func (h *sessionHolder) State() hub.State {
	if s := h.get(); s != nil {
		return s.State()
	}
	return hub.StateDisconnected
}

func (h *sessionHolder) Devices() hub.DeviceTree {
	if s := h.get(); s != nil {
		return s.Devices()
	}
	return hub.DeviceTree{}
}

func (h *sessionHolder) Metrics() hub.SessionMetrics {
	if s := h.get(); s != nil {
		return s.Metrics()
	}
	return hub.SessionMetrics{}
}

func runMonitor(parent context.Context, cfg *config.Config) error {
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	holder := &sessionHolder{}
	var srv *monitor.Server
	if cfg.Monitor.Enabled {
		srv = monitor.NewServer(holder, monitor.Config{
			Addr:   cfg.Monitor.Addr,
			Logger: logger,
		})
		go func() {
			if err := srv.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("monitor server failed", "error", err)
			}
		}()
		logger.Info("monitor server listening", "addr", cfg.Monitor.Addr)
	}

	handler := func(d hub.Delta) {
		if srv != nil {
			srv.HandleDelta(d)
		}
	}

	// Config edits arrive here; nil config means the watcher stopped.
	reload := make(chan *config.Config, 1)
	if path := cfg.Path(); path != "" {
		go func() {
			err := config.Watch(ctx, path, logger, func(next *config.Config) {
				select {
				case reload <- next:
				default:
					logger.Warn("config reload already pending, dropping")
				}
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("config watcher failed", "error", err)
			}
		}()
	}

	for {
		err := runHubSession(ctx, cfg, logger, holder, handler, reload)
		switch {
		case err == errConfigChanged:
			logger.Info("config changed, restarting hub session")
			continue
		case errors.Is(err, context.Canceled):
			logger.Info("shutting down")
			return nil
		default:
			return err
		}
	}
}

// errConfigChanged signals runHubSession ended to pick up a new config.
var errConfigChanged = errors.New("config changed")

// runHubSession runs one hub session until the context ends or a config
// reload arrives. On reload it updates *cfg and returns errConfigChanged.
func runHubSession(ctx context.Context, cfg *config.Config, logger *slog.Logger,
	holder *sessionHolder, handler hub.DeltaHandler, reload <-chan *config.Config) error {

	if err := resolveAddress(ctx, cfg, logger); err != nil {
		return err
	}

	sc := cfg.SessionConfig()
	sc.Logger = logger

	var capWriter *capture.Writer
	if cfg.Capture.Enabled {
		store, err := capture.NewFileStore(cfg.Capture.Dir)
		if err != nil {
			return err
		}
		dst, name, err := store.Create(cfg.Capture.Prefix)
		if err != nil {
			return err
		}
		capWriter = capture.NewWriter(dst)
		sc.WithTap(capWriter)
		logger.Info("capturing frames", "file", name)
	}

	s, err := hub.NewSession(sc, handler)
	if err != nil {
		if capWriter != nil {
			capWriter.Close()
		}
		return err
	}
	holder.set(s)

	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(ctx) }()

	defer func() {
		holder.set(nil)
		if capWriter != nil {
			if cerr := capWriter.Close(); cerr != nil {
				logger.Warn("closing capture", "error", cerr)
			}
		}
	}()

	select {
	case next := <-reload:
		s.Stop()
		<-runErr
		*cfg = *next
		return errConfigChanged
	case err := <-runErr:
		if err == nil {
			err = fmt.Errorf("hub session ended unexpectedly")
		}
		return err
	}
}
