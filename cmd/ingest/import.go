package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fieldops-platform/apps/api/internal/ingest"
)

var (
	importDryRun        bool
	importResolveGhosts bool
)

var importCmd = &cobra.Command{
	Use:   "import FILE...",
	Short: "Import spreadsheets as one batch, in the order given",
	Long: `Classify each file by name, normalize its rows and reconcile them into the
incident store. Files are processed strictly in argument order, so pass the
supplier territory file before the incident feeds that rely on it.

After the batch, open incidents missing from the main feed are reported as
ghosts. --resolve-ghosts marks them Riassegnato in the same invocation.`,
	Example: `
  # Preview a batch without writing
  ingest import --dry-run "Distribuzione Territoriale.xlsx" MTZ.xlsx

  # Apply and reassign ghosts
  ingest import --resolve-ghosts "Distribuzione Territoriale.xlsx" MTZ.xlsx "MTZ OUT.xlsx"
`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if importDryRun && importResolveGhosts {
			return fmt.Errorf("--resolve-ghosts cannot be combined with --dry-run")
		}

		files := make([]ingest.File, 0, len(args))
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			files = append(files, ingest.File{Name: filepath.Base(path), Data: data})
		}

		ctx := cmd.Context()
		cfg, st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		pipeline, err := newPipeline(cfg, st, newLogger())
		if err != nil {
			return err
		}

		mode := ingest.ModeApply
		if importDryRun {
			mode = ingest.ModeDryRun
		}
		run, _, err := pipeline.Run(ctx, files, ingest.RunOptions{Mode: mode, Trigger: ingest.TriggerCLI})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, f := range run.Summary.Files {
			fmt.Fprintf(out, "%-40s %-18s %-13s rows=%d created=%d updated=%d skipped=%d errors=%d\n",
				f.File, f.Strategy, f.Status,
				f.RowsTotal, f.Counts.Created, f.Counts.Updated, f.Counts.Skipped, f.Counts.Error)
			if f.Error != "" {
				fmt.Fprintf(out, "  error: %s\n", f.Error)
			}
		}
		fmt.Fprintf(out, "Import %s (%s): status=%s, ghosts=%d\n", run.ID, run.Mode, run.Status, len(run.Ghosts))
		for _, numero := range run.Ghosts {
			fmt.Fprintf(out, "  ghost %s\n", numero)
		}

		if run.Status == ingest.RunStatusFailed {
			return fmt.Errorf("import %s failed", run.ID)
		}
		if importResolveGhosts && len(run.Ghosts) > 0 {
			resolved, err := pipeline.ResolveAllGhosts(ctx, run)
			if err != nil {
				return fmt.Errorf("resolve ghosts: %w", err)
			}
			fmt.Fprintf(out, "Reassigned %d ghosts, status=%s\n", len(run.Ghosts)-len(resolved.Ghosts), resolved.Status)
		}
		return nil
	},
}

func init() {
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "classify and normalize without writing")
	importCmd.Flags().BoolVar(&importResolveGhosts, "resolve-ghosts", false, "mark detected ghosts Riassegnato after the batch")
	rootCmd.AddCommand(importCmd)
}
