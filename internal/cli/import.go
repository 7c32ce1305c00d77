package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"printvault/internal/backup"
)

// importCommand creates the import command committing an archive into the
// store.
func (c *CLI) importCommand() *cobra.Command {
	var (
		mode string
		yes  bool
	)
	cmd := &cobra.Command{
		Use:   "import <archive>",
		Short: "Import an archive into the database",
		Long: `Import an archive into the database.

In merge mode (the default) records are added alongside existing data, and
lookup rows such as brands or locations are matched by name instead of being
duplicated. In replace mode all existing records and media are deleted first,
so the database ends up holding exactly the archive's contents.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runImport(cmd.Context(), args[0], mode, yes)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "merge", "import mode: merge or replace")
	cmd.Flags().BoolVar(&yes, "yes", false, "skip the confirmation prompt for replace mode")
	return cmd
}

func (c *CLI) runImport(ctx context.Context, archivePath, mode string, yes bool) error {
	parsed, err := backup.ParseMode(mode)
	if err != nil {
		return err
	}
	if parsed == backup.ModeReplace && !yes {
		ok, err := c.confirm("replace mode deletes all existing records and media first. Continue? [y/N] ")
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("import aborted")
		}
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

	report, err := svc.CommitImportFrom(ctx, f, size, parsed)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}

	fmt.Fprintln(c.stdout, report.Message)
	for _, importError := range report.Errors {
		fmt.Fprintf(c.stdout, "error: %s\n", importError)
	}
	for _, warning := range report.Warnings {
		fmt.Fprintf(c.stdout, "warning: %s\n", warning)
	}
	if !report.Success {
		return fmt.Errorf("import finished with %d errors", report.ErrorsCount)
	}
	return nil
}
