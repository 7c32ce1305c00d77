package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// wipeCommand creates the wipe command deleting all records and media.
func (c *CLI) wipeCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "wipe",
		Short: "Delete all records and media",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runWipe(cmd.Context(), yes)
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "skip the confirmation prompt")
	return cmd
}

func (c *CLI) runWipe(ctx context.Context, yes bool) error {
	if !yes {
		ok, err := c.confirm("this deletes every record and media file. Continue? [y/N] ")
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("wipe aborted")
		}
	}

	svc, cleanup, err := c.openService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	summary, err := svc.DeleteAll(ctx)
	if err != nil {
		return fmt.Errorf("wipe: %w", err)
	}
	fmt.Fprintf(c.stdout, "deleted %d records and %d media files\n",
		summary.RecordsDeleted, summary.MediaDeleted)
	return nil
}
