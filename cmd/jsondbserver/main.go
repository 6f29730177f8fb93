/*
Copyright (C) 2024  Carl-Philip Hänsch

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Command jsondbserver starts the document store server of spec §6:
// config path as the first positional argument (defaulting to
// ./config.json), plus flags for log level and max frame size.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/launix-de/jsondbserver/apperr"
	"github.com/launix-de/jsondbserver/catalog"
	"github.com/launix-de/jsondbserver/frame"
	"github.com/launix-de/jsondbserver/server"
)

func main() {
	var logLevel string
	var maxFrameSize string

	root := &cobra.Command{
		Use:   "jsondbserver [config-path]",
		Short: "multi-database, multi-tenant JSON document store server",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := "./config.json"
			if len(args) == 1 {
				configPath = args[0]
			}
			return run(configPath, logLevel, maxFrameSize)
		},
	}

	root.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.Flags().StringVar(&maxFrameSize, "max-frame-size", "", "maximum accepted frame size (e.g. 64MB); default 64MB")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

func run(configPath, logLevel, maxFrameSize string) error {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	cat, err := catalog.Load(configPath)
	if err != nil {
		return err
	}

	frameSize, err := frame.ParseMaxSize(maxFrameSize)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(cat, frameSize, log)
	return srv.Serve(ctx)
}

// exitCode maps a fatal startup error to the process exit code of spec
// §6: 0 on clean shutdown (handled by cobra before this is reached), 1
// on a missing config, 2 on any other fatal bind/startup error.
func exitCode(err error) int {
	if ae, ok := apperr.As(err); ok && ae.Kind == apperr.MissingConfig {
		return 1
	}
	return 2
}
