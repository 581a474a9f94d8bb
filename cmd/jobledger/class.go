package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/caevv/jobledger/internal/config"
	"github.com/caevv/jobledger/internal/scheduler"
)

var classCmd = &cobra.Command{
	Use:   "class",
	Short: "Manage classes in the configuration",
	Long: `Manage job classes in the jobledger configuration file.

Subcommands:
  add     - Add a class to the configuration
  list    - List the configured classes
  show    - Show one class with its resolved settings
  update  - Change the settings of a configured class
  remove  - Remove a class from the configuration

Removing a class keeps its recorded history; "jobledger clean purge-invalid"
deletes it.

Examples:
  jobledger class add ReportJob --command /usr/bin/report --schedule "@daily"
  jobledger class list
  jobledger class show ReportJob
  jobledger class update ReportJob --history-len 200
  jobledger class remove ReportJob`,
}

var addClassCmd = &cobra.Command{
	Use:   "add <class>",
	Short: "Add a class to the configuration",
	Long: `Add a job class to the configuration file. Retention overrides left at
zero use the defaults. A class without --command is recorded only; a class
with --schedule also needs --command.

Examples:
  # Record-only class with a longer history
  jobledger class add ImportJob --history-len 500

  # Scheduled command
  jobledger class add ReportJob \
    --command /usr/bin/report \
    --arg --full \
    --schedule "*/5 * * * *" \
    --timeout 30 \
    --env "REPORT_DIR=/var/reports"`,
	Args: cobra.ExactArgs(1),
	RunE: runAddClass,
}

var listClassesCmd = &cobra.Command{
	Use:   "list",
	Short: "List the configured classes",
	RunE:  runListConfiguredClasses,
}

var showClassCmd = &cobra.Command{
	Use:   "show <class>",
	Short: "Show one configured class",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowClass,
}

var updateClassCmd = &cobra.Command{
	Use:   "update <class>",
	Short: "Change the settings of a configured class",
	Long: `Change the settings of a configured class. Only the flags given are
applied; everything else keeps its current value. Pass an empty --schedule to
make the class run on demand only.

Examples:
  jobledger class update ReportJob --history-len 200 --purge-age 2h
  jobledger class update ReportJob --schedule ""`,
	Args: cobra.ExactArgs(1),
	RunE: runUpdateClass,
}

var removeClassCmd = &cobra.Command{
	Use:   "remove <class>",
	Short: "Remove a class from the configuration",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemoveClass,
}

func init() {
	classCmd.AddCommand(addClassCmd)
	classCmd.AddCommand(listClassesCmd)
	classCmd.AddCommand(showClassCmd)
	classCmd.AddCommand(updateClassCmd)
	classCmd.AddCommand(removeClassCmd)

	addClassCmd.Flags().Int("history-len", 0, "Maximum runs kept per list (default: defaults.history_len)")
	addClassCmd.Flags().Duration("purge-age", 0, "Age after which a running job is stale (default: defaults.purge_age)")
	addClassCmd.Flags().Int("page-size", 0, "Page size of the class lists (default: defaults.page_size)")
	addClassCmd.Flags().Bool("exclude-from-linear", false, "Keep runs of this class out of the linear history")
	addClassCmd.Flags().String("command", "", "Command to execute")
	addClassCmd.Flags().StringArray("arg", nil, "Command argument (repeatable)")
	addClassCmd.Flags().String("schedule", "", "Cron expression or interval")
	addClassCmd.Flags().String("workdir", "", "Working directory")
	addClassCmd.Flags().Int("timeout", 0, "Timeout in seconds")
	addClassCmd.Flags().StringSlice("env", []string{}, "Environment variables (KEY=VALUE, repeatable)")

	updateClassCmd.Flags().Int("history-len", 0, "Maximum runs kept per list (0 uses defaults.history_len)")
	updateClassCmd.Flags().Duration("purge-age", 0, "Age after which a running job is stale (0 uses defaults.purge_age)")
	updateClassCmd.Flags().Int("page-size", 0, "Page size of the class lists (0 uses defaults.page_size)")
	updateClassCmd.Flags().Bool("exclude-from-linear", false, "Keep runs of this class out of the linear history")
	updateClassCmd.Flags().String("command", "", "Command to execute")
	updateClassCmd.Flags().StringArray("arg", nil, "Command argument (repeatable, replaces the current arguments)")
	updateClassCmd.Flags().String("schedule", "", "Cron expression or interval")
	updateClassCmd.Flags().String("workdir", "", "Working directory")
	updateClassCmd.Flags().Int("timeout", 0, "Timeout in seconds")
	updateClassCmd.Flags().StringSlice("env", []string{}, "Environment variables (KEY=VALUE, repeatable, replaces the current environment)")
}

func parseEnv(envVars []string) (map[string]string, error) {
	env := make(map[string]string)
	for _, envVar := range envVars {
		parts := strings.SplitN(envVar, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid environment variable format: %s (expected KEY=VALUE)", envVar)
		}
		env[parts[0]] = parts[1]
	}
	return env, nil
}

func checkSchedule(schedule, command string) error {
	if schedule == "" {
		return nil
	}
	if command == "" {
		return fmt.Errorf("--command is required with --schedule")
	}
	if err := scheduler.ValidateSchedule(schedule); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}
	return nil
}

func runAddClass(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	historyLen, _ := cmd.Flags().GetInt("history-len")
	purgeAge, _ := cmd.Flags().GetDuration("purge-age")
	pageSize, _ := cmd.Flags().GetInt("page-size")
	exclude, _ := cmd.Flags().GetBool("exclude-from-linear")
	command, _ := cmd.Flags().GetString("command")
	cmdArgs, _ := cmd.Flags().GetStringArray("arg")
	schedule, _ := cmd.Flags().GetString("schedule")
	workdir, _ := cmd.Flags().GetString("workdir")
	timeout, _ := cmd.Flags().GetInt("timeout")
	envVars, _ := cmd.Flags().GetStringSlice("env")

	env, err := parseEnv(envVars)
	if err != nil {
		return err
	}
	if err := checkSchedule(schedule, command); err != nil {
		return err
	}

	class := config.Class{
		Name:                     args[0],
		HistoryLen:               historyLen,
		PurgeAge:                 purgeAge,
		PageSize:                 pageSize,
		ExcludeFromLinearHistory: exclude,
		Command:                  command,
		Args:                     cmdArgs,
		Schedule:                 schedule,
		TimeoutSec:               timeout,
		Workdir:                  workdir,
	}
	if len(env) > 0 {
		class.Env = env
	}

	if err := config.AddClass(configPath, class); err != nil {
		return fmt.Errorf("failed to add class: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Class '%s' added to %s\n", class.Name, configPath)
	if class.Command != "" {
		fmt.Fprintf(out, "  Command:  %s\n", class.Command)
	}
	if class.Schedule != "" {
		fmt.Fprintf(out, "  Schedule: %s\n", class.Schedule)
	}
	return nil
}

func runListConfiguredClasses(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", configPath)
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(cfg.Classes) == 0 {
		fmt.Fprintln(out, "No classes configured")
		return nil
	}

	defaults := cfg.ClassDefaults()
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "NAME\tHISTORY\tPURGE AGE\tPAGE\tLINEAR\tSCHEDULE\tCOMMAND")
	for _, class := range cfg.Classes {
		resolved := class.LedgerConfig(defaults)
		linear := "yes"
		if resolved.ExcludeFromLinearHistory {
			linear = "no"
		}
		schedule := class.Schedule
		if schedule == "" {
			schedule = "-"
		}
		command := class.Command
		if command == "" {
			command = "-"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%s\t%s\t%s\n",
			class.Name,
			resolved.HistoryLen,
			resolved.PurgeAge,
			resolved.PageSize,
			linear,
			schedule,
			truncate(command, 40),
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nTotal classes: %d\n", len(cfg.Classes))
	return nil
}

func runShowClass(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	class, err := config.GetClass(configPath, args[0])
	if err != nil {
		return err
	}
	resolved := class.LedgerConfig(cfg.ClassDefaults())

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Class:             %s\n", class.Name)
	fmt.Fprintf(out, "History length:    %d\n", resolved.HistoryLen)
	fmt.Fprintf(out, "Purge age:         %s\n", resolved.PurgeAge)
	fmt.Fprintf(out, "Page size:         %d\n", resolved.PageSize)
	fmt.Fprintf(out, "Linear history:    %t\n", !resolved.ExcludeFromLinearHistory)
	if class.Command == "" {
		fmt.Fprintln(out, "Command:           - (record only)")
		return nil
	}
	fmt.Fprintf(out, "Command:           %s %s\n", class.Command, strings.Join(class.Args, " "))
	if class.Schedule != "" {
		fmt.Fprintf(out, "Schedule:          %s\n", class.Schedule)
	}
	if class.Workdir != "" {
		fmt.Fprintf(out, "Workdir:           %s\n", class.Workdir)
	}
	if class.TimeoutSec > 0 {
		fmt.Fprintf(out, "Timeout:           %ds\n", class.TimeoutSec)
	}
	for k, v := range class.Env {
		fmt.Fprintf(out, "Env:               %s=%s\n", k, v)
	}
	return nil
}

func runUpdateClass(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	flags := cmd.Flags()

	class, err := config.GetClass(configPath, args[0])
	if err != nil {
		return err
	}

	if flags.Changed("history-len") {
		class.HistoryLen, _ = flags.GetInt("history-len")
	}
	if flags.Changed("purge-age") {
		class.PurgeAge, _ = flags.GetDuration("purge-age")
	}
	if flags.Changed("page-size") {
		class.PageSize, _ = flags.GetInt("page-size")
	}
	if flags.Changed("exclude-from-linear") {
		class.ExcludeFromLinearHistory, _ = flags.GetBool("exclude-from-linear")
	}
	if flags.Changed("command") {
		class.Command, _ = flags.GetString("command")
	}
	if flags.Changed("arg") {
		class.Args, _ = flags.GetStringArray("arg")
	}
	if flags.Changed("schedule") {
		class.Schedule, _ = flags.GetString("schedule")
	}
	if flags.Changed("workdir") {
		class.Workdir, _ = flags.GetString("workdir")
	}
	if flags.Changed("timeout") {
		class.TimeoutSec, _ = flags.GetInt("timeout")
	}
	if flags.Changed("env") {
		envVars, _ := flags.GetStringSlice("env")
		env, err := parseEnv(envVars)
		if err != nil {
			return err
		}
		class.Env = nil
		if len(env) > 0 {
			class.Env = env
		}
	}

	if err := checkSchedule(class.Schedule, class.Command); err != nil {
		return err
	}
	if err := config.UpdateClass(configPath, *class); err != nil {
		return fmt.Errorf("failed to update class: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Class '%s' updated in %s\n", class.Name, configPath)
	return nil
}

func runRemoveClass(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	if err := config.RemoveClass(configPath, args[0]); err != nil {
		return fmt.Errorf("failed to remove class: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Class '%s' removed from %s\n", args[0], configPath)
	return nil
}
