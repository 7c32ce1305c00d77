package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// exportCommand creates the export command writing a full archive to disk.
func (c *CLI) exportCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all records and media to a zip archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runExport(cmd.Context(), output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: printvault-export-<timestamp>.zip)")
	return cmd
}

func (c *CLI) runExport(ctx context.Context, output string) error {
	svc, cleanup, err := c.openService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if output == "" {
		output = fmt.Sprintf("printvault-export-%s.zip", time.Now().UTC().Format("20060102T150405Z"))
	}
	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create %s: %w", output, err)
	}

	summary, err := svc.Export(ctx, f)
	if err != nil {
		f.Close()
		os.Remove(output)
		return fmt.Errorf("export: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", output, err)
	}

	fmt.Fprintf(c.stdout, "exported %d records and %d media files to %s\n",
		summary.RecordsTotal, summary.MediaFiles, output)
	for _, warning := range summary.Warnings {
		fmt.Fprintf(c.stdout, "warning: %s\n", warning)
	}
	return nil
}
