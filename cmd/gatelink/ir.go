package main

import (
	"github.com/spf13/cobra"

	"github.com/gatelink-dev/gatelink/pkg/hub"
	"github.com/gatelink-dev/gatelink/pkg/protocol"
)

func irCmd() *cobra.Command {
	var category, brand string

	cmd := &cobra.Command{
		Use:   "ir <device-id> <keys>",
		Short: "Send infrared remote keys through a blaster device",
		Long: `Sends a key sequence through an IR blaster. Keys is the blaster's
key string, for example "POWER" or a learned code reference.

Example:
  gatelink ir 00158D0001A2B3C4 POWER --category TV --brand samsung`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			irc := protocol.IRCommand{
				DevID:    args[0],
				Category: category,
				Brand:    brand,
				Keys:     args[1],
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			return withSession(cmd.Context(), cfg, logger, nil, func(s *hub.Session) error {
				if err := s.SendIRKeys(irc); err != nil {
					return err
				}
				success("IR keys %q sent via %s", irc.Keys, irc.DevID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "appliance category, e.g. TV")
	cmd.Flags().StringVar(&brand, "brand", "", "appliance brand")
	return cmd
}
