// cmd/insights/main.go
package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const appVersion = "0.1.0"

func newRootCommand() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:           "insights",
		Short:         "Reservation revenue and court utilization from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := zerolog.WarnLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).Level(level).With().Timestamp().Logger()
		},
	}
	cmd.Version = appVersion
	cmd.SetVersionTemplate("insights v{{.Version}}\n")
	cmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Log debug output to stderr")

	cmd.AddCommand(newSummarizeCommand(), newExportCommand(), newHashMagicCommand())
	return cmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}
