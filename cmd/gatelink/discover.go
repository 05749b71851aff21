package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/gatelink-dev/gatelink/internal/discovery"
)

func discoverCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Find hubs on the local network",
		Long: `Browses mDNS for GateLink hubs and prints each one found with its
serial number and protocol endpoint.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			printBanner()
			info("Scanning for hubs (%s)...", timeout)

			scanner := discovery.NewScanner()
			scanner.Timeout = timeout
			hubs, err := scanner.Scan(cmd.Context())
			if err != nil {
				return err
			}

			if len(hubs) == 0 {
				warn("No hubs found. Is the hub on the same network segment?")
				return nil
			}
			for _, h := range hubs {
				success("%s at %s (%s)", h.Serial, h.Addr, h.Hostname)
				for k, v := range h.Metadata {
					info("  %s=%s", k, v)
				}
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", discovery.DefaultScanTimeout,
		"how long to browse for hubs")
	return cmd
}
