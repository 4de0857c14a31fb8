package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/invoice-pipeline/internal/app"
	"github.com/joseph-ayodele/invoice-pipeline/internal/export"
	"github.com/joseph-ayodele/invoice-pipeline/internal/repository"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations to DB_URL",
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, err := app.OpenDB(cmd.Context(), cfg, false, logger)
		if err != nil {
			return err
		}
		defer db.Close(logger)
		fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
		return nil
	},
}

var (
	exportUser       string
	exportOut        string
	exportFrom       string
	exportTo         string
	exportReviewOnly bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write stored invoices for a user to an XLSX workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		from, to, err := parseWindow(exportFrom, exportTo)
		if err != nil {
			return err
		}
		db, err := app.OpenDB(cmd.Context(), cfg, false, logger)
		if err != nil {
			return err
		}
		defer db.Close(logger)

		svc := export.NewService(repository.NewInvoiceRepository(db, logger), logger)
		res, err := svc.ExportXLSX(cmd.Context(), exportUser, export.Filter{From: from, To: to, ReviewOnly: exportReviewOnly})
		if err != nil {
			return err
		}
		if err := os.WriteFile(exportOut, res.XLSX, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", exportOut, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d rows (%d need review) -> %s\n", res.Rows, res.NeedsReview, exportOut)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportUser, "user", "", "user id to export (required)")
	exportCmd.Flags().StringVar(&exportOut, "out", "invoices.xlsx", "output XLSX path")
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "from date YYYY-MM-DD")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "to date YYYY-MM-DD")
	exportCmd.Flags().BoolVar(&exportReviewOnly, "review-only", false, "only invoices that need review")
	_ = exportCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(migrateCmd, exportCmd)
}
