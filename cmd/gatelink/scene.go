package main

import (
	"github.com/spf13/cobra"

	"github.com/gatelink-dev/gatelink/pkg/hub"
)

func sceneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scene <scene-id>",
		Short: "Trigger a scene on the hub",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sceneID := args[0]

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			return withSession(cmd.Context(), cfg, logger, nil, func(s *hub.Session) error {
				if err := s.RunScene(sceneID); err != nil {
					return err
				}
				success("Scene %s triggered", sceneID)
				return nil
			})
		},
	}
	return cmd
}
