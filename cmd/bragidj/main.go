/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/friendsincode/bragi_dj/internal/config"
	"github.com/friendsincode/bragi_dj/internal/logging"
	"github.com/friendsincode/bragi_dj/internal/server"
	"github.com/friendsincode/bragi_dj/internal/station"
	"github.com/friendsincode/bragi_dj/internal/version"
)

func main() {
	root := &cobra.Command{
		Use:          "bragidj",
		Short:        "Ambient radio and request-queue DJ for media rooms",
		SilenceUsage: true,
	}

	root.AddCommand(serveCmd(), stationsCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the player and its control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			logger := logging.Setup(cfg.Environment)

			srv, err := server.New(cfg, logger)
			if err != nil {
				logger.Error().Err(err).Msg("startup failed")
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return srv.Run(ctx)
		},
	}
}

func stationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stations",
		Short: "List the configured station catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := station.Load(config.StationsFile(), config.DefaultStationID())
			if err != nil {
				return err
			}

			def := catalog.Default()
			for _, st := range catalog.List() {
				marker := " "
				if st.ID == def.ID {
					marker = "*"
				}
				fmt.Printf("%s %-16s %-12s %s\n", marker, st.ID, st.Genre, st.URL)
			}
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.Version)
		},
	}
}
