package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/selkies/backend/internal/domain/delivery"
	"github.com/selkies/backend/internal/infrastructure/config"
	"github.com/selkies/backend/internal/infrastructure/logger"
)

var (
	Version   = "dev"
	CommitSHA = "none"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "bakeryctl",
		Short:         "Operator tools for the bakery subscription backend",
		Version:       Version + " (" + CommitSHA + ")",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			// A missing .env is normal outside development
			_ = godotenv.Load()
		},
	}

	root.AddCommand(newDatesCmd())
	root.AddCommand(newCheckCmd())
	root.AddCommand(newQuoteCmd())
	root.AddCommand(newProductsCmd())
	root.AddCommand(newImportCmd())
	return root
}

// loadConfig reads config.toml and BAKERY_* overrides
func loadConfig() (*config.Config, error) {
	return config.Load()
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: "console",
		Output: "stderr",
	})
}

// calendar returns the delivery calendar in the configured business time zone
func calendar(cfg *config.Config) (*delivery.Calendar, error) {
	loc, err := cfg.Subscription.Location()
	if err != nil {
		return nil, err
	}
	return delivery.NewCalendar(delivery.WithLocation(loc)), nil
}
