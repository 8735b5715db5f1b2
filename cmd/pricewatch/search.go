package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/maltedev/grocery-price-scraper/internal/models"
	"github.com/maltedev/grocery-price-scraper/internal/scraper"
)

func newSearchCmd(a *app) *cobra.Command {
	var (
		site     string
		query    string
		htmlFile string
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Run one search and print its outcome as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			target := models.Target{Site: site, Query: query}
			if errs := target.Validate(); len(errs) > 0 {
				return fmt.Errorf("invalid search: %v", errs)
			}

			reg, err := a.loadSites()
			if err != nil {
				return err
			}
			profile, err := reg.Get(site)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			var searcher scraper.Searcher
			if htmlFile != "" {
				searcher, err = newSnapshotSearcher(htmlFile)
				if err != nil {
					return err
				}
			} else {
				engine, err := a.openEngine()
				if err != nil {
					return fmt.Errorf("start browser: %w", err)
				}
				defer engine.Close()
				searcher = engine
			}

			orch, err := a.newOrchestrator(ctx, searcher)
			if err != nil {
				return err
			}

			outcome, err := orch.Run(ctx, profile, query)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(models.TargetOutcome{Target: models.Target{Site: profile.ID, Query: query}, Outcome: outcome})
		},
	}

	cmd.Flags().StringVar(&site, "site", "", "Site id (see 'pricewatch sites')")
	cmd.Flags().StringVarP(&query, "query", "q", "", "Product to search for")
	cmd.Flags().StringVar(&htmlFile, "html", "", "Extract from a saved result page instead of a live search")
	_ = cmd.MarkFlagRequired("site")
	_ = cmd.MarkFlagRequired("query")

	return cmd
}
