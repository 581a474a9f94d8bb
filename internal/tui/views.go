package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/caevv/jobledger/internal/ledger"
	"github.com/caevv/jobledger/internal/search"
)

// View renders the UI.
func (m Model) View() string {
	if m.quitting {
		return "Bye.\n"
	}

	sections := []string{m.renderHeader()}

	switch m.viewMode {
	case ViewRuns:
		sections = append(sections, m.renderRuns())
	case ViewSearch:
		sections = append(sections, m.renderSearch())
	case ViewRun:
		sections = append(sections, m.renderRun())
	default:
		sections = append(sections, m.renderClasses())
	}

	if m.inputActive {
		sections = append(sections, m.renderPrompt())
	}
	sections = append(sections, m.renderStatusBar())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderHeader() string {
	crumb := "Classes"
	switch m.viewMode {
	case ViewRuns:
		crumb = m.listTitle()
	case ViewSearch:
		crumb = "Search"
	case ViewRun:
		if m.run != nil {
			crumb = m.run.ClassName + " / " + m.run.JobID
		}
	}

	title := titleStyle.Render("⚡ Job Ledger")
	subtitle := subtitleStyle.Render(fmt.Sprintf("%s  │  Last updated: %s", crumb, m.lastUpdate.Format("15:04:05")))
	return headerStyle.Render(lipgloss.JoinHorizontal(lipgloss.Top, title, "  ", subtitle))
}

func (m Model) listTitle() string {
	if m.className == "" {
		return "Linear history"
	}
	return fmt.Sprintf("%s: %s runs", m.className, m.listKind)
}

// sortHeader labels a class list column, marking the active sort.
func (m Model) sortHeader(label, sortKey string) string {
	if sortKey != m.sortKey {
		return label
	}
	if m.order == "desc" {
		return label + "▼"
	}
	return label + "▲"
}

func (m Model) renderClasses() string {
	var rows []string
	rows = append(rows, titleStyle.Render(fmt.Sprintf("Job classes (%d)", m.numClasses)), "")

	if len(m.classes) == 0 {
		rows = append(rows, subtitleStyle.Render("No job history recorded"))
		return panelStyle.Render(strings.Join(rows, "\n"))
	}

	header := fmt.Sprintf("   %-24s  %8s  %8s  %8s  %8s  %6s  %6s  %-19s  %-8s  %s",
		m.sortHeader("Class", ledger.SortClassName),
		m.sortHeader("Running", ledger.SortRunningJobs),
		m.sortHeader("Finished", ledger.SortFinishedJobs),
		m.sortHeader("Runs", ledger.SortTotalRunJobs),
		m.sortHeader("Done", ledger.SortTotalFinishedJobs),
		"Failed",
		m.sortHeader("Max", ledger.SortMaxConcurrentJobs),
		m.sortHeader("Last start", ledger.SortStartTime),
		m.sortHeader("Duration", ledger.SortDuration),
		m.sortHeader("Last", ledger.SortSuccess),
	)
	rows = append(rows, keyStyle.Render(header), keyStyle.Render(strings.Repeat("─", 120)))

	now := m.ledger.Now()
	for i, s := range m.classes {
		cursor := " "
		if i == m.selectedClass {
			cursor = iconArrow
		}

		name := padRight(truncate(s.ClassName, 24), 24)
		if !s.ClassNameValid {
			name = invalidClassStyle.Render(name)
		}

		lastStart, duration, status := "-", "-", ""
		if s.LastRun != nil {
			lastStart = formatTime(s.LastRun.StartTime)
			duration = formatDuration(s.LastRun.Duration(now))
			status = renderStatus(s.LastRun)
		}

		row := fmt.Sprintf("%s  %s  %8d  %8d  %8d  %8d  %6d  %6d  %-19s  %s  %s",
			cursor,
			name,
			s.RunningJobs,
			s.FinishedJobs,
			s.TotalRunJobs,
			s.TotalFinishedJobs,
			s.TotalFailedJobs,
			s.MaxConcurrentJobs,
			lastStart,
			durationStyle.Render(padRight(duration, 8)),
			status,
		)
		if i == m.selectedClass {
			rows = append(rows, rowSelectedStyle.Render(row))
		} else {
			rows = append(rows, rowStyle.Render(row))
		}
	}

	pages := pageCount(int64(m.numClasses), m.ledger.Settings().ClassListPageSize)
	rows = append(rows, "", subtitleStyle.Render(fmt.Sprintf("Page %d of %d", m.classPage, pages)))
	return panelStyle.Render(strings.Join(rows, "\n"))
}

func (m Model) renderRuns() string {
	var rows []string
	rows = append(rows, titleStyle.Render(fmt.Sprintf("%s (%d)", m.listTitle(), m.numRuns)), "")

	if len(m.runs) == 0 {
		rows = append(rows, subtitleStyle.Render("No runs in this list"))
		return panelStyle.Render(strings.Join(rows, "\n"))
	}

	rows = append(rows, m.runHeader(), keyStyle.Render(strings.Repeat("─", 110)))
	for i, rec := range m.runs {
		rows = append(rows, m.renderRunRow(rec, i == m.selectedRun))
	}

	pages := pageCount(m.numRuns, m.runPageSize)
	rows = append(rows, "", subtitleStyle.Render(fmt.Sprintf("Page %d of %d", m.runPage, pages)))
	return panelStyle.Render(strings.Join(rows, "\n"))
}

func (m Model) runHeader() string {
	return keyStyle.Render(fmt.Sprintf("   %-24s  %-36s  %-19s  %-8s  %-10s  %s",
		"Class", "Job ID", "Started", "Duration", "Status", "Args"))
}

func (m Model) renderRunRow(rec *ledger.Record, selected bool) string {
	cursor := " "
	if selected {
		cursor = iconArrow
	}

	row := fmt.Sprintf("%s  %-24s  %-36s  %-19s  %s  %s  %s",
		cursor,
		truncate(rec.ClassName, 24),
		truncate(rec.JobID, 36),
		formatTime(rec.StartTime),
		durationStyle.Render(padRight(formatDuration(rec.Duration(m.ledger.Now())), 8)),
		padRight(renderStatus(rec), 10),
		truncate(rec.EncodedArgs, 40),
	)
	if selected {
		return rowSelectedStyle.Render(row)
	}
	return rowStyle.Render(row)
}

func (m Model) renderSearch() string {
	var rows []string

	scope := "all classes"
	switch m.query.Type {
	case search.TypeJob:
		scope = m.query.ClassName
	case search.TypeLinearHistory:
		scope = "linear history"
	}
	rows = append(rows, titleStyle.Render(fmt.Sprintf("Results for %q in %s", m.query.Term, scope)))
	rows = append(rows, subtitleStyle.Render(searchFlags(m.query)), "")

	if len(m.classResults) > 0 {
		rows = append(rows, keyStyle.Render("   Matching classes"))
		for i, className := range m.classResults {
			cursor := " "
			style := rowStyle
			if i == m.selectedResult {
				cursor = iconArrow
				style = rowSelectedStyle
			}
			rows = append(rows, style.Render(fmt.Sprintf("%s  %s %s", cursor, iconBullet, className)))
		}
		rows = append(rows, "")
	}

	if len(m.runResults) > 0 {
		rows = append(rows, m.runHeader(), keyStyle.Render(strings.Repeat("─", 110)))
		for i, rec := range m.runResults {
			rows = append(rows, m.renderRunRow(rec, i+len(m.classResults) == m.selectedResult))
		}
		rows = append(rows, "")
	}

	if len(m.classResults) == 0 && len(m.runResults) == 0 {
		rows = append(rows, subtitleStyle.Render("No matches yet"))
	}
	if m.moreResults {
		rows = append(rows, noticeStyle.Render("Search stopped at its time limit; press m to load more"))
	} else {
		rows = append(rows, subtitleStyle.Render("Search complete"))
	}
	return panelStyle.Render(strings.Join(rows, "\n"))
}

func searchFlags(q search.Query) string {
	var flags []string
	if q.Regex {
		flags = append(flags, "regex")
	}
	if q.CaseInsensitive {
		flags = append(flags, "case insensitive")
	}
	if len(flags) == 0 {
		return "exact substring"
	}
	return strings.Join(flags, ", ")
}

func (m Model) renderRun() string {
	rec := m.run
	if rec == nil {
		return panelStyle.Render(subtitleStyle.Render("No run selected"))
	}
	cfg := m.ledger.ClassConfig(rec.ClassName)

	kv := func(k, v string) string {
		return fmt.Sprintf("%s %s", keyStyle.Render(padRight(k+":", 12)), valueStyle.Render(v))
	}

	lines := []string{
		titleStyle.Render("Run"),
		"",
		kv("Class", rec.ClassName),
		kv("Job ID", rec.JobID),
		fmt.Sprintf("%s %s", keyStyle.Render(padRight("Status:", 12)), renderStatus(rec)),
		kv("Started", formatTime(rec.StartTime)),
		kv("Ended", formatTime(rec.EndTime)),
		fmt.Sprintf("%s %s", keyStyle.Render(padRight("Duration:", 12)),
			durationStyle.Render(formatDuration(rec.Duration(m.ledger.Now())))),
		kv("Args", rec.EncodedArgs),
	}
	if rec.Error != "" {
		lines = append(lines, fmt.Sprintf("%s %s", keyStyle.Render(padRight("Error:", 12)), statusErrorStyle.Render(rec.Error)))
	}

	lines = append(lines, "", titleStyle.Render("Class configuration"), "")
	if !m.ledger.ClassNameValid(rec.ClassName) {
		lines = append(lines, invalidClassStyle.Render("Class is not configured; defaults apply and retry is unavailable"))
	}
	lines = append(lines,
		kv("History", fmt.Sprintf("%d runs", cfg.HistoryLen)),
		kv("Purge age", cfg.PurgeAge.String()),
		kv("Linear", fmt.Sprintf("%t", !cfg.ExcludeFromLinearHistory)),
	)
	return panelStyle.Render(strings.Join(lines, "\n"))
}

func (m Model) renderPrompt() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		m.input.View(),
		subtitleStyle.Render(fmt.Sprintf("enter: search  │  esc: cancel  │  ctrl+r: regex (%s)  │  ctrl+t: ignore case (%s)",
			onOff(m.query.Regex), onOff(m.query.CaseInsensitive))),
	)
}

func (m Model) renderStatusBar() string {
	var lines []string
	if m.errorMessage != "" {
		lines = append(lines, statusErrorStyle.Render("Error: "+m.errorMessage))
	} else if m.notice != "" {
		lines = append(lines, noticeStyle.Render(m.notice))
	}
	lines = append(lines, m.help.View(m.keys))
	return statusBarStyle.Render(strings.Join(lines, "\n"))
}

// renderStatus renders the icon and word for a run's state.
func renderStatus(rec *ledger.Record) string {
	switch {
	case !rec.Finished():
		return statusRunningStyle.Render(iconRunning + " running")
	case strings.HasPrefix(rec.Error, ledger.CancelMessage):
		return statusCanceledStyle.Render(iconCanceled + " canceled")
	case rec.Error != "":
		return statusErrorStyle.Render(iconError + " failed")
	default:
		return statusSuccessStyle.Render(iconSuccess + " ok")
	}
}

// Helper functions

func pageCount(n int64, pageSize int) int64 {
	if pageSize < 1 || n == 0 {
		return 1
	}
	return (n + int64(pageSize) - 1) / int64(pageSize)
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
	return fmt.Sprintf("%.1fh", d.Hours())
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// truncate shortens s to limit runes, marking the cut with an ellipsis.
func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	if limit <= 3 {
		return string(r[:limit])
	}
	return string(r[:limit-3]) + "..."
}

// padRight pads s with spaces to the display width.
func padRight(s string, width int) string {
	if w := lipgloss.Width(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}
