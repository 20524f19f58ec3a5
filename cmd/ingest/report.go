package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fieldops-platform/apps/api/internal/report"
)

var (
	reportScope   string
	reportYear    int
	reportRegions string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print aggregated metrics as JSON",
}

func reportSubcommand(use, short string, fn func(ctx context.Context, agg *report.Aggregator, q report.Query) (any, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			scope, err := report.ParseScope(reportScope)
			if err != nil {
				return err
			}
			q := report.Query{Scope: scope, Year: reportYear}
			for _, region := range strings.Split(reportRegions, ",") {
				if trimmed := strings.TrimSpace(region); trimmed != "" {
					q.Regions = append(q.Regions, trimmed)
				}
			}

			ctx := cmd.Context()
			cfg, st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			result, err := fn(ctx, report.NewAggregator(st, cfg.RegionVisibility), q)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return fmt.Errorf("encode report: %w", err)
			}
			return nil
		},
	}
}

func init() {
	reportCmd.PersistentFlags().StringVar(&reportScope, "scope", string(report.ScopeMonthly), "monthly, quarterly, semiannual or annual")
	reportCmd.PersistentFlags().IntVar(&reportYear, "year", 0, "calendar year to anchor the window in (default current)")
	reportCmd.PersistentFlags().StringVar(&reportRegions, "regions", "", "comma-separated region filter")

	reportCmd.AddCommand(
		reportSubcommand("trend", "Daily SLA and backlog trend", func(ctx context.Context, agg *report.Aggregator, q report.Query) (any, error) {
			return agg.Trend(ctx, q)
		}),
		reportSubcommand("regions", "Per-region opened/closed trend", func(ctx context.Context, agg *report.Aggregator, q report.Query) (any, error) {
			return agg.Regions(ctx, q)
		}),
		reportSubcommand("sla", "SLA compliance by cohort and region", func(ctx context.Context, agg *report.Aggregator, q report.Query) (any, error) {
			return agg.SLA(ctx, q)
		}),
	)
	rootCmd.AddCommand(reportCmd)
}
