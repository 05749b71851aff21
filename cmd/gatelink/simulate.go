package main

import (
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gatelink-dev/gatelink/internal/hubsim"
	"github.com/gatelink-dev/gatelink/pkg/protocol"
)

func simulateCmd() *cobra.Command {
	var (
		addr     string
		user     string
		password string
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a scripted in-process hub",
		Long: `Starts a local hub speaking the wire protocol with a small fixed
device tree, useful for developing against the gateway without
hardware. The simulator pushes a random lamp toggle at each interval.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

			sim, err := hubsim.Start(addr, hubsim.Config{
				NodeID:   "N-SIM",
				HubID:    "H-SIM",
				UserID:   user,
				Password: password,
				Tree:     simulatedTree(),
				Logger:   logger,
			})
			if err != nil {
				return err
			}
			defer sim.Close()

			printBanner()
			success("Simulated hub listening on %s", sim.Addr())
			info("user=%s password=%s", user, password)
			info("Point a gateway at it:")
			info("  gatelink set 0000000000000001 L1=1 --config <cfg with address %s>", sim.Addr())

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					info("Simulator stopped")
					return nil
				case <-ticker.C:
					val := rand.Int63n(2)
					if err := sim.PushUpdate("0000000000000001", "L1", map[string]any{"val": val}); err != nil {
						logger.Warn("push update", "error", err)
					}
				}
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:4196", "listen address")
	cmd.Flags().StringVar(&user, "user", "admin", "accepted user id")
	cmd.Flags().StringVar(&password, "password", "admin", "accepted password")
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "delay between pushed state changes")
	return cmd
}

// simulatedTree is two devices: a dimmable lamp and a wall switch.
func simulatedTree() protocol.Value {
	return hubsim.TreeOf(
		hubsim.Device{
			ID:   "0000000000000001",
			Name: "Hallway",
			Type: 129,
			Channels: map[string]map[string]any{
				"L1": {"name": "{$EPN} Lamp", "type": int64(129), "val": int64(0), "bright": int64(80)},
			},
		},
		hubsim.Device{
			ID:   "0000000000000002",
			Name: "Kitchen",
			Type: 130,
			Channels: map[string]map[string]any{
				"S1": {"name": "{$EPN} Switch", "type": int64(130), "val": int64(1)},
				"S2": {"name": "Hood", "type": int64(130), "val": int64(0)},
			},
		},
	)
}
