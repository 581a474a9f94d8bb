package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/caevv/jobledger/internal/ledger"
	"github.com/caevv/jobledger/internal/search"
)

var timeNow = time.Now

var classesCmd = &cobra.Command{
	Use:   "classes",
	Short: "List recorded classes with their summaries",
	Long: `List every class in the ledger with running, finished and failed counts
and its latest run.

Sort keys: class_name, running_jobs, finished_jobs, total_finished_jobs,
total_run_jobs, max_concurrent_jobs, start_time, duration, success.

Example:
  jobledger classes --sort total_run_jobs --order desc`,
	RunE: runListClasses,
}

var runsCmd = &cobra.Command{
	Use:   "runs [class]",
	Short: "List one page of a history list",
	Long: `List the running or finished runs of a class, newest first. Without a
class the linear history spanning every class is listed.

Examples:
  jobledger runs ReportJob --list finished --page 2
  jobledger runs`,
	Args: cobra.MaximumNArgs(1),
	RunE: runListRuns,
}

var showCmd = &cobra.Command{
	Use:   "show <class> <job-id>",
	Short: "Show one recorded run",
	Args:  cobra.ExactArgs(2),
	RunE:  runShow,
}

var searchCmd = &cobra.Command{
	Use:   "search [term]",
	Short: "Search recorded runs and class names",
	Long: `Search run arguments and, for --type all, class names. An empty term finds
runs recorded without arguments.

Examples:
  jobledger search invoice
  jobledger search --type job --class ReportJob -i "2024-0[45]" --regex
  jobledger search --type linear`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

var retryCmd = &cobra.Command{
	Use:   "retry <class> <job-id>",
	Short: "Execute a recorded run again with its original arguments",
	Args:  cobra.ExactArgs(2),
	RunE:  runRetry,
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <class> <job-id>",
	Short: "Mark a run as canceled",
	Args:  cobra.ExactArgs(2),
	RunE:  runCancel,
}

var purgeCmd = &cobra.Command{
	Use:   "purge <class> <job-id>",
	Short: "Delete a recorded run",
	Args:  cobra.ExactArgs(2),
	RunE:  runPurge,
}

func init() {
	classesCmd.Flags().String("sort", ledger.SortClassName, "Sort key")
	classesCmd.Flags().String("order", "asc", "Sort order (asc or desc)")
	classesCmd.Flags().Int("page", 1, "Page number")
	classesCmd.Flags().Int("page-size", 0, "Page size (default: class_list_page_size)")

	runsCmd.Flags().String("list", string(ledger.Finished), "List to show for a class (running or finished)")
	runsCmd.Flags().Int("page", 1, "Page number")
	runsCmd.Flags().Int("page-size", 0, "Page size (default: the list's page size)")

	searchCmd.Flags().String("type", "all", "Search type (all, job or linear)")
	searchCmd.Flags().String("class", "", "Class to search for --type job")
	searchCmd.Flags().Bool("regex", false, "Treat the term as a regular expression")
	searchCmd.Flags().BoolP("ignore-case", "i", false, "Match case-insensitively")
}

func runListClasses(cmd *cobra.Command, args []string) error {
	sortKey, _ := cmd.Flags().GetString("sort")
	order, _ := cmd.Flags().GetString("order")
	page, _ := cmd.Flags().GetInt("page")
	pageSize, _ := cmd.Flags().GetInt("page-size")

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	summaries, err := a.ledger.JobSummaries(cmd.Context(), sortKey, order, page, pageSize)
	if err != nil {
		return fmt.Errorf("failed to list classes: %w", err)
	}
	if len(summaries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No classes recorded")
		return nil
	}

	now := a.ledger.Now()
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "CLASS\tRUNNING\tFINISHED\tTOTAL RUN\tTOTAL FINISHED\tMAX CONCURRENT\tFAILED\tLAST START\tLAST DURATION\tLAST STATUS")
	for _, s := range summaries {
		name := s.ClassName
		if !s.ClassNameValid {
			name += " (unknown)"
		}
		lastStart, lastDuration, lastStatus := "-", "-", "-"
		if s.LastRun != nil {
			lastStart = formatTime(s.LastRun.StartTime)
			lastDuration = s.LastRun.Duration(now).Round(time.Millisecond).String()
			lastStatus = runStatus(s.LastRun)
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%s\t%s\t%s\n",
			name, s.RunningJobs, s.FinishedJobs, s.TotalRunJobs, s.TotalFinishedJobs,
			s.MaxConcurrentJobs, s.TotalFailedJobs, lastStart, lastDuration, lastStatus)
	}
	return w.Flush()
}

func runListRuns(cmd *cobra.Command, args []string) error {
	listName, _ := cmd.Flags().GetString("list")
	page, _ := cmd.Flags().GetInt("page")
	pageSize, _ := cmd.Flags().GetInt("page-size")

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	var list *ledger.HistoryList
	switch {
	case len(args) == 0:
		list = a.ledger.LinearJobs()
	case listName == string(ledger.Running):
		list = a.ledger.RunningJobs(args[0])
	case listName == string(ledger.Finished):
		list = a.ledger.FinishedJobs(args[0])
	default:
		return fmt.Errorf("unknown list %q (expected running or finished)", listName)
	}

	ctx := cmd.Context()
	jobs, err := list.PagedJobs(ctx, page, pageSize)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	records := make([]*ledger.Record, 0, len(jobs))
	for _, job := range jobs {
		rec, err := job.Load(ctx)
		if err != nil {
			return err
		}
		if rec.Exists() {
			records = append(records, rec)
		}
	}
	numJobs, err := list.NumJobs(ctx)
	if err != nil {
		return err
	}

	if err := printRuns(cmd.OutOrStdout(), records, a.ledger.Now()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d runs in the %s list\n", len(records), numJobs, list.Kind())
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.ledger.Job(args[0], args[1]).Load(cmd.Context())
	if err != nil {
		return err
	}
	if !rec.Exists() {
		return fmt.Errorf("run %s of %s not found", args[1], args[0])
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Class:    %s\n", rec.ClassName)
	fmt.Fprintf(out, "Job ID:   %s\n", rec.JobID)
	fmt.Fprintf(out, "Status:   %s\n", runStatus(rec))
	fmt.Fprintf(out, "Started:  %s\n", formatTime(rec.StartTime))
	fmt.Fprintf(out, "Ended:    %s\n", formatTime(rec.EndTime))
	fmt.Fprintf(out, "Duration: %s\n", rec.Duration(a.ledger.Now()).Round(time.Millisecond))
	fmt.Fprintf(out, "Args:     %s\n", rec.EncodedArgs)
	if rec.Error != "" {
		fmt.Fprintf(out, "Error:    %s\n", rec.Error)
	}
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	searchType, _ := cmd.Flags().GetString("type")
	className, _ := cmd.Flags().GetString("class")
	regex, _ := cmd.Flags().GetBool("regex")
	ignoreCase, _ := cmd.Flags().GetBool("ignore-case")

	q := search.Query{
		ClassName:       className,
		Regex:           regex,
		CaseInsensitive: ignoreCase,
	}
	if len(args) > 0 {
		q.Term = args[0]
	}
	switch searchType {
	case "all":
		q.Type = search.TypeAll
	case "job":
		if className == "" {
			return errors.New("--class is required for --type job")
		}
		q.Type = search.TypeJob
	case "linear":
		q.Type = search.TypeLinearHistory
	default:
		q.Type = searchType
	}
	if err := q.Validate(); err != nil {
		return err
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.searcher().Collect(cmd.Context(), q)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(res.ClassResults) > 0 {
		fmt.Fprintf(out, "Classes: %s\n\n", strings.Join(res.ClassResults, ", "))
	}
	if len(res.RunResults) == 0 {
		fmt.Fprintln(out, "No matching runs")
		return nil
	}
	return printRuns(out, res.RunResults, a.ledger.Now())
}

func runRetry(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	job := a.ledger.Job(args[0], args[1])
	rec, err := job.Load(cmd.Context())
	if err != nil {
		return err
	}
	if !rec.Exists() {
		return fmt.Errorf("run %s of %s not found", args[1], args[0])
	}
	if !a.ledger.ClassNameValid(args[0]) {
		return fmt.Errorf("class %s is no longer configured", args[0])
	}
	if err := job.Retry(cmd.Context()); err != nil {
		return fmt.Errorf("retry failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Retrying %s %s with %s\n", args[0], args[1], rec.EncodedArgs)
	return nil
}

func runCancel(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.ledger.Job(args[0], args[1]).Cancel(cmd.Context()); err != nil {
		return fmt.Errorf("cancel failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Canceled %s %s\n", args[0], args[1])
	return nil
}

func runPurge(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.ledger.Job(args[0], args[1]).Purge(cmd.Context()); err != nil {
		return fmt.Errorf("purge failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Purged %s %s\n", args[0], args[1])
	return nil
}

// printRuns writes records as a table.
func printRuns(out io.Writer, records []*ledger.Record, now time.Time) error {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "CLASS\tJOB ID\tSTATUS\tSTARTED\tDURATION\tARGS\tERROR")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.ClassName,
			rec.JobID,
			runStatus(rec),
			formatTime(rec.StartTime),
			rec.Duration(now).Round(time.Millisecond),
			truncate(rec.EncodedArgs, 40),
			truncate(rec.Error, 60))
	}
	return w.Flush()
}

func runStatus(rec *ledger.Record) string {
	switch {
	case rec.Error != "":
		return "failed"
	case rec.Finished():
		return "succeeded"
	default:
		return "running"
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
