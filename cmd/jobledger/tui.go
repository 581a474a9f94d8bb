package main

import (
	"fmt"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/caevv/jobledger/internal/config"
	"github.com/caevv/jobledger/internal/logging"
	"github.com/caevv/jobledger/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Browse the ledger in a terminal UI",
	Long: `Browse recorded job history in an interactive terminal UI.

The browser reads the store directly, so it shows runs recorded by a
running "jobledger serve" or any other process sharing the store. Retry
executes the class's configured command from this process.

Navigation:
  ↑/↓ or k/j  - Move the selection
  enter       - Open a class's runs or a run's detail
  esc         - Go back
  s / o       - Sort the class list by the next column / flip the order
  tab         - Switch a class between running and finished runs
  l           - Linear history across classes
  n / p       - Next / previous page
  c / R / x   - Cancel / retry / purge the selected run
  X           - Purge the selected class
  /           - Search; m loads more results when a search hits its time limit
  r           - Refresh
  ?           - Full help
  q           - Quit

Example:
  jobledger tui --config ./jobledger.yaml`,
	RunE: runTUI,
}

func runTUI(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Logs would draw over the interface unless sent elsewhere
	logOutput := cfg.Logging.Output
	if logOutput == "" || logOutput == "stdout" || logOutput == "stderr" {
		logOutput = "discard"
	}
	tuiLogger, err := logging.NewFromConfig(cfg.Logging.Format, cfg.Logging.Level, logOutput)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger = tuiLogger
	slog.SetDefault(tuiLogger)

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	model := tui.New(a.ledger, a.searcher(), logger)
	p := tea.NewProgram(model, tea.WithAltScreen())

	finalModel, err := p.Run()
	if err != nil {
		logger.Error("TUI error", "error", err)
		return fmt.Errorf("TUI error: %w", err)
	}
	if m, ok := finalModel.(tui.Model); ok && m.Quitting() {
		logger.Info("ledger browser closed")
	}
	return nil
}
