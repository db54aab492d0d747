package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	catalogapp "github.com/selkies/backend/internal/application/catalog"
	"github.com/selkies/backend/internal/domain/shared/valueobject"
	"github.com/selkies/backend/internal/infrastructure/config"
	"github.com/selkies/backend/internal/infrastructure/logger"
	"github.com/selkies/backend/internal/infrastructure/persistence"
)

// openCatalog connects to the database and builds an uncached catalog service
func openCatalog(cfg *config.Config, log *zap.Logger) (*catalogapp.Service, func(), error) {
	db, err := persistence.NewDatabase(&cfg.Database,
		logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level)))
	if err != nil {
		return nil, nil, err
	}
	svc := catalogapp.NewService(persistence.NewGormProductRepository(db.DB), log,
		catalogapp.WithCategories(cfg.Subscription.Categories),
		catalogapp.WithCurrency(valueobject.Currency(cfg.Subscription.Currency)),
	)
	closeFn := func() {
		if err := db.Close(); err != nil {
			log.Warn("Error closing database", zap.Error(err))
		}
	}
	return svc, closeFn, nil
}

func newProductsCmd() *cobra.Command {
	var filter catalogapp.ListFilter
	c := &cobra.Command{
		Use:   "products",
		Short: "List the catalog on sale, grouped by category",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			svc, closeDB, err := openCatalog(cfg, log)
			if err != nil {
				return err
			}
			defer closeDB()

			resp, err := svc.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if !resp.Available {
				return fmt.Errorf("catalog unavailable: %s", resp.Message)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, g := range resp.Groups {
				fmt.Fprintf(w, "%s\n", g.Category)
				for _, p := range g.Products {
					fmt.Fprintf(w, "  %s\t%s %s\t%s\t%s\n", p.Name, p.Price.StringFixed(2), p.Currency, p.DietType, p.ID)
				}
			}
			return w.Flush()
		},
	}
	c.Flags().StringVar(&filter.Diet, "diet", "", "only list veg, egg or non-veg products")
	c.Flags().StringVar(&filter.Category, "category", "", "only list one category")
	return c
}

func newImportCmd() *cobra.Command {
	var dryRun bool
	c := &cobra.Command{
		Use:   "import FILE",
		Short: "Create or update products from a JSON array",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reqs, err := readProducts(args[0])
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			currency := valueobject.Currency(cfg.Subscription.Currency)
			for i, req := range reqs {
				if _, err := req.ToDomain(currency); err != nil {
					return fmt.Errorf("product %d (%s): %w", i+1, req.Name, err)
				}
			}
			if dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "%d products valid\n", len(reqs))
				return nil
			}

			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			svc, closeDB, err := openCatalog(cfg, log)
			if err != nil {
				return err
			}
			defer closeDB()

			saved, err := svc.Import(cmd.Context(), reqs)
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d products saved\n", saved, len(reqs))
			return err
		},
	}
	c.Flags().BoolVar(&dryRun, "dry-run", false, "validate the file without writing")
	return c
}

func readProducts(path string) ([]catalogapp.ProductRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reqs []catalogapp.ProductRequest
	if err := json.Unmarshal(data, &reqs); err != nil {
		return nil, fmt.Errorf("invalid products file: %w", err)
	}
	return reqs, nil
}
