// Package commands holds the vivarium CLI: a serve command running the HTTP
// facade over the engine, plus offline export and sync utilities that work
// against the persisted snapshot.
package commands

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "vivarium",
	Short: "Vivarium - animal facility state engine",
	Long: `Vivarium manages an animal research facility as a single validated
state: cages, animals, breeding, genotyping, cohorts, experiments, tasks,
and the audit and sync queues that every mutation feeds.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

// Execute runs the CLI.
func Execute() error {
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// newLogger builds the process logger. VIVARIUM_LOG_LEVEL selects the level
// (default info); VIVARIUM_LOG_PRETTY=true switches to the console writer.
func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if raw := os.Getenv("VIVARIUM_LOG_LEVEL"); raw != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(raw)); err == nil {
			level = parsed
		}
	}
	var log zerolog.Logger
	if strings.EqualFold(os.Getenv("VIVARIUM_LOG_PRETTY"), "true") {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		log = zerolog.New(os.Stderr)
	}
	return log.Level(level).With().Timestamp().Logger()
}
