// Command fastrank ranks pairwise feature interactions of a dataset, serves
// the ranking over HTTP and manages stored runs.
package main

import (
	"os"

	"fast-interactions/internal/cfg"
	"fast-interactions/internal/features"
	"fast-interactions/internal/ml"
	"fast-interactions/internal/objective"
	"fast-interactions/internal/ranking"
	"fast-interactions/internal/storage"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	settings cfg.Settings
	logLevel string

	rootCmd = &cobra.Command{
		Use:           "fastrank",
		Short:         "Rank pairwise feature interactions",
		Long:          `fastrank scores feature pairs by how much a model gains from modeling them jointly and lists the strongest pairs first.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
	rootCmd.AddCommand(rankCmd, serveCmd, historyCmd)
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("fastrank failed")
	}
}

// setup loads .env and the settings and configures logging.
func setup() error {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file loaded")
	}

	var err error
	settings, err = cfg.Load()
	if err != nil {
		return err
	}

	level := settings.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}

// newMeasurer wires the measurement pipeline with the configured worker count.
func newMeasurer(m ranking.MetricsInterface) *ml.Measurer {
	table := objective.DefaultTable()
	return ml.NewMeasurer(table, features.NewBinner(), ranking.NewFASTWithMetrics(table, m, settings.Workers))
}

// openStore opens the run store under DataPath, or returns nil when storage
// is not configured.
func openStore() (*storage.Store, error) {
	if settings.DataPath == "" {
		return nil, nil
	}
	store, err := storage.New(settings.DataPath)
	if err != nil {
		return nil, err
	}
	log.Info().Str("path", settings.DataPath).Msg("Run storage initialized")
	return store, nil
}
