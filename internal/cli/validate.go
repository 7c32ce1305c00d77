package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"printvault/internal/backup"
)

// validateCommand creates the validate command, a read-only dry run of an
// import.
func (c *CLI) validateCommand() *cobra.Command {
	var (
		mode    string
		samples int
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "validate <archive>",
		Short: "Check an archive against the current data without writing anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runValidate(cmd.Context(), args[0], mode, samples, asJSON)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "merge", "import mode the dry run previews: merge or replace")
	cmd.Flags().IntVar(&samples, "samples", 0, "max error samples reported per entity type (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full report as JSON")
	return cmd
}

func (c *CLI) runValidate(ctx context.Context, archivePath, mode string, samples int, asJSON bool) error {
	parsed, err := backup.ParseMode(mode)
	if err != nil {
		return err
	}

	svc, cleanup, err := c.openService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	f, size, err := openArchiveFile(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	report, err := svc.ValidateImportFrom(ctx, f, size, backup.ValidateOptions{
		Mode:            parsed,
		MaxErrorSamples: samples,
	})
	if err != nil {
		return fmt.Errorf("validate: %w", err)
	}

	if asJSON {
		enc := json.NewEncoder(c.stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printValidationReport(c.stdout, report)
	}
	if !report.Valid {
		return fmt.Errorf("archive failed validation with %d errors", report.TotalErrors)
	}
	return nil
}

func printValidationReport(w io.Writer, report *backup.ValidationReport) {
	fmt.Fprintf(w, "mode: %s\n", report.Mode)
	fmt.Fprintf(w, "records: %d total, %d valid\n", report.Stats.TotalRecords, report.Stats.ValidRecords)
	if report.Valid {
		fmt.Fprintln(w, "archive is valid")
	} else {
		fmt.Fprintf(w, "errors: %d\n", report.TotalErrors)
		for _, display := range slices.Sorted(maps.Keys(report.ErrorsByType)) {
			typeErrors := report.ErrorsByType[display]
			fmt.Fprintf(w, "  %s: %d\n", display, typeErrors.Count)
			for _, sample := range typeErrors.Samples {
				fmt.Fprintf(w, "    %s: %s\n", sample.ID, sample.Error)
			}
			if typeErrors.HasMore {
				fmt.Fprintf(w, "    ... and %d more\n", typeErrors.Count-len(typeErrors.Samples))
			}
		}
	}
	for _, warning := range report.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
}
