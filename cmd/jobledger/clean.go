package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/caevv/jobledger/internal/ledger"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Repair and purge recorded history",
	Long: `Maintenance operations on the ledger.

Subcommands:
  sweep          - Cancel running jobs older than their purge age
  fixup          - Delete orphan keys and repair the linear index
  purge-class    - Delete every run and key of one class
  purge-invalid  - Purge every class that is no longer configured
  purge-linear   - Empty the linear history
  purge-all      - Delete all recorded history`,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep [class]",
	Short: "Cancel stale running jobs of one class or every class",
	Args:  cobra.MaximumNArgs(1),
	RunE: withCleaner(func(cmd *cobra.Command, c *ledger.Cleaner, args []string) error {
		var (
			n   int
			err error
		)
		if len(args) == 1 {
			n, err = c.SweepStaleRunning(cmd.Context(), args[0])
		} else {
			n, err = c.CleanAllOldRunningJobs(cmd.Context())
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Canceled %d stale running jobs\n", n)
		return err
	}),
}

var fixupCmd = &cobra.Command{
	Use:   "fixup",
	Short: "Delete orphan keys and repair the linear index",
	Args:  cobra.NoArgs,
	RunE: withCleaner(func(cmd *cobra.Command, c *ledger.Cleaner, args []string) error {
		n, err := c.FixupAllKeys(cmd.Context())
		fmt.Fprintf(cmd.OutOrStdout(), "Repaired %d keys\n", n)
		return err
	}),
}

var purgeClassCmd = &cobra.Command{
	Use:   "purge-class <class>",
	Short: "Delete every run and key of a class",
	Args:  cobra.ExactArgs(1),
	RunE: withCleaner(func(cmd *cobra.Command, c *ledger.Cleaner, args []string) error {
		purged, err := c.PurgeClass(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !purged {
			return fmt.Errorf("refusing to purge %s: another class name starts with it", args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Purged class %s\n", args[0])
		return nil
	}),
}

var purgeInvalidCmd = &cobra.Command{
	Use:   "purge-invalid",
	Short: "Purge every class that is no longer configured",
	Args:  cobra.NoArgs,
	RunE: withCleaner(func(cmd *cobra.Command, c *ledger.Cleaner, args []string) error {
		purged, err := c.PurgeInvalidJobs(cmd.Context())
		if len(purged) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No invalid classes")
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Purged %s\n", strings.Join(purged, ", "))
		}
		return err
	}),
}

var purgeLinearCmd = &cobra.Command{
	Use:   "purge-linear",
	Short: "Empty the linear history",
	Args:  cobra.NoArgs,
	RunE: withCleaner(func(cmd *cobra.Command, c *ledger.Cleaner, args []string) error {
		if err := c.PurgeLinearHistory(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Linear history purged")
		return nil
	}),
}

var purgeAllCmd = &cobra.Command{
	Use:   "purge-all",
	Short: "Delete all recorded history",
	Args:  cobra.NoArgs,
	RunE: withCleaner(func(cmd *cobra.Command, c *ledger.Cleaner, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			return fmt.Errorf("purge-all deletes every recorded run; pass --yes to confirm")
		}
		if err := c.PurgeAllJobs(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "✓ All history purged")
		return nil
	}),
}

func init() {
	cleanCmd.AddCommand(sweepCmd)
	cleanCmd.AddCommand(fixupCmd)
	cleanCmd.AddCommand(purgeClassCmd)
	cleanCmd.AddCommand(purgeInvalidCmd)
	cleanCmd.AddCommand(purgeLinearCmd)
	cleanCmd.AddCommand(purgeAllCmd)

	purgeAllCmd.Flags().Bool("yes", false, "Confirm deleting all history")
}

// withCleaner opens the app and hands its cleaner to fn.
func withCleaner(fn func(cmd *cobra.Command, c *ledger.Cleaner, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, ledger.NewCleaner(a.ledger), args)
	}
}
