package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gatelink-dev/gatelink/pkg/hub"
	"github.com/gatelink-dev/gatelink/pkg/protocol"
)

func setCmd() *cobra.Command {
	var devType int64

	cmd := &cobra.Command{
		Use:   "set <device-id> <channel>=<value> [<channel>=<value>...]",
		Short: "Write device channel values",
		Long: `Writes one or more channel values on a device. A single pair sends a
single-IO write; several pairs go out as one multi-IO packet.

Examples:
  gatelink set 00158D0001A2B3C4 L1=1
  gatelink set 00158D0001A2B3C4 L1=0 L2=1 --type 129
  gatelink set 00158D0001A2B3C4 bright=70`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			devID := args[0]
			ios, err := parseIOPairs(args[1:], devType)
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			return withSession(cmd.Context(), cfg, logger, nil, func(s *hub.Session) error {
				if len(ios) == 1 {
					if err := s.SetSingleIO(devID, ios[0].Idx, ios[0].Type, ios[0].Val); err != nil {
						return err
					}
				} else {
					if err := s.SetMultiIO(devID, ios); err != nil {
						return err
					}
				}
				success("Sent %d write(s) to %s", len(ios), devID)
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&devType, "type", 0, "device type code sent with each write")
	return cmd
}

// parseIOPairs turns channel=value arguments into IO writes.
func parseIOPairs(args []string, devType int64) ([]protocol.IOValue, error) {
	ios := make([]protocol.IOValue, 0, len(args))
	for _, arg := range args {
		idx, raw, ok := strings.Cut(arg, "=")
		if !ok || idx == "" {
			return nil, fmt.Errorf("expected <channel>=<value>, got %q", arg)
		}
		ios = append(ios, protocol.IOValue{
			Idx:  idx,
			Type: devType,
			Val:  parseValue(raw),
		})
	}
	return ios, nil
}

// parseValue picks the narrowest wire type a literal fits.
func parseValue(raw string) any {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return raw
}
