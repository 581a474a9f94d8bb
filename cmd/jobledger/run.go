package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <class> [args...]",
	Short: "Execute one recorded run of a class",
	Long: `Execute the command of a configured class once and record the run.

Arguments after the class name are appended to the class's configured
arguments and recorded with the run, so a later retry repeats them.

Example:
  jobledger run ReportJob --config ./jobledger.yaml -- --month 2024-05`,
	Args: cobra.MinimumNArgs(1),
	RunE: runClass,
}

func runClass(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	runArgs := make([]any, 0, len(args)-1)
	for _, arg := range args[1:] {
		runArgs = append(runArgs, arg)
	}

	ctx := setupSignalHandler()
	jobID, err := a.runner.Execute(ctx, args[0], runArgs)
	if jobID != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", args[0], jobID)
	}
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}
	return nil
}
