package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var logLevel string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "asyncioctl",
		Short:        "Drive TaskScheduler and IOCore from the command line",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug, info, warn, error")

	root.AddCommand(newEchoCmd())
	root.AddCommand(newDelayCmd())
	return root
}

// newLogger builds a console-writer zerolog.Logger at the level named by
// --log-level, falling back to info on an unrecognized value.
func newLogger() zerolog.Logger {
	lvl, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(lvl).
		With().Timestamp().Logger()
}
