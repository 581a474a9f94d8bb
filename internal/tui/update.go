package tui

import (
	"slices"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/caevv/jobledger/internal/ledger"
	"github.com/caevv/jobledger/internal/search"
)

// Update handles incoming messages and updates the model state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.inputActive {
			m, cmd = m.handleInputKey(msg)
		} else {
			m, cmd = m.handleKeyPress(msg)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case tickMsg:
		if !m.inputActive {
			m.refresh()
		}
		cmd = tickCmd()

	case error:
		m.errorMessage = msg.Error()
	}

	m.syncKeys()
	return m, cmd
}

// handleInputKey edits the search term. ctrl+r toggles regex matching and
// ctrl+t case folding.
func (m Model) handleInputKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "esc":
		m.inputActive = false
		m.input.Blur()
		return m, nil

	case "ctrl+r":
		m.query.Regex = !m.query.Regex
		return m, nil

	case "ctrl+t":
		m.query.CaseInsensitive = !m.query.CaseInsensitive
		return m, nil

	case "enter":
		m.inputActive = false
		m.input.Blur()
		m.query.Term = m.input.Value()
		m.notice = ""
		if err := m.runSearch(search.Cursor{}, false); err != nil {
			m.setErr(err)
			return m, nil
		}
		m.setErr(nil)
		if m.viewMode != ViewSearch {
			m.searchBack = m.viewMode
		}
		m.viewMode = ViewSearch
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleKeyPress processes keyboard input outside the search prompt.
func (m Model) handleKeyPress(msg tea.KeyMsg) (Model, tea.Cmd) {
	k := m.keys
	m.notice = ""

	switch {
	case key.Matches(msg, k.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, k.Help):
		m.help.ShowAll = !m.help.ShowAll

	case key.Matches(msg, k.Up):
		m.moveSelection(-1)

	case key.Matches(msg, k.Down):
		m.moveSelection(1)

	case key.Matches(msg, k.Top):
		m.moveSelection(-m.listLen())

	case key.Matches(msg, k.Bottom):
		m.moveSelection(m.listLen())

	case key.Matches(msg, k.Open):
		m.open()

	case key.Matches(msg, k.Back):
		m.goBack()

	case key.Matches(msg, k.NextPage):
		m.turnPage(1)

	case key.Matches(msg, k.PrevPage):
		m.turnPage(-1)

	case key.Matches(msg, k.Sort):
		i := (slices.Index(sortColumns, m.sortKey) + 1) % len(sortColumns)
		m.order = ledger.OrderParam(sortColumns[i], m.sortKey, m.order)
		m.sortKey = sortColumns[i]
		m.classPage = 1
		m.refresh()

	case key.Matches(msg, k.Order):
		m.order = ledger.OrderParam(m.sortKey, m.sortKey, m.order)
		m.refresh()

	case key.Matches(msg, k.Toggle):
		if m.listKind == ledger.Running {
			m.listKind = ledger.Finished
		} else {
			m.listKind = ledger.Running
		}
		m.runPage, m.selectedRun = 1, 0
		m.refresh()

	case key.Matches(msg, k.Linear):
		m.className = ""
		m.listKind = ledger.Linear
		m.runPage, m.selectedRun = 1, 0
		m.viewMode = ViewRuns
		m.refresh()

	case key.Matches(msg, k.Cancel):
		if err := m.cancelRun(); err != nil {
			m.setErr(err)
			break
		}
		m.refresh()

	case key.Matches(msg, k.Retry):
		m.setErr(m.retryRun())

	case key.Matches(msg, k.Purge):
		if err := m.purgeRun(); err != nil {
			m.setErr(err)
			break
		}
		m.refresh()

	case key.Matches(msg, k.PurgeClass):
		if err := m.purgeClass(); err != nil {
			m.setErr(err)
			break
		}
		m.refresh()

	case key.Matches(msg, k.Search):
		return m.startSearch()

	case key.Matches(msg, k.More):
		m.setErr(m.runSearch(m.cursor, true))

	case key.Matches(msg, k.Refresh):
		m.refresh()
	}

	return m, nil
}

// startSearch opens the search prompt. The class list searches everything,
// a class's runs search that class and the linear list searches itself. From
// search results the new term keeps the previous scope.
func (m Model) startSearch() (Model, tea.Cmd) {
	q := search.Query{Type: search.TypeAll, CaseInsensitive: m.query.CaseInsensitive, Regex: m.query.Regex}
	switch m.viewMode {
	case ViewSearch:
		q.Type = m.query.Type
		q.ClassName = m.query.ClassName
	case ViewRuns:
		if m.className == "" {
			q.Type = search.TypeLinearHistory
		} else {
			q.Type = search.TypeJob
			q.ClassName = m.className
		}
	}
	m.query = q
	m.inputActive = true
	m.input.SetValue("")
	return m, m.input.Focus()
}

func (m *Model) listLen() int {
	switch m.viewMode {
	case ViewClasses:
		return len(m.classes)
	case ViewRuns:
		return len(m.runs)
	case ViewSearch:
		return len(m.classResults) + len(m.runResults)
	}
	return 0
}

func (m *Model) moveSelection(delta int) {
	n := m.listLen()
	switch m.viewMode {
	case ViewClasses:
		m.selectedClass = clampIndex(m.selectedClass+delta, n)
	case ViewRuns:
		m.selectedRun = clampIndex(m.selectedRun+delta, n)
	case ViewSearch:
		m.selectedResult = clampIndex(m.selectedResult+delta, n)
	}
}

// open descends into the item under the cursor: a class shows its finished
// runs and a run shows its detail.
func (m *Model) open() {
	if className := m.selectedClassName(); className != "" {
		m.className = className
		m.listKind = ledger.Finished
		m.runPage, m.selectedRun = 1, 0
		m.viewMode = ViewRuns
		m.refresh()
		return
	}
	if rec := m.selectedRecord(); rec != nil && m.viewMode != ViewRun {
		m.run = rec
		m.runBack = m.viewMode
		m.viewMode = ViewRun
		m.refresh()
	}
}

func (m *Model) goBack() {
	switch m.viewMode {
	case ViewRun:
		m.run = nil
		m.viewMode = m.runBack
	case ViewSearch:
		m.viewMode = m.searchBack
	case ViewRuns:
		m.viewMode = ViewClasses
	default:
		return
	}
	m.refresh()
}

// turnPage moves delta pages. Paging past the last page serves the first.
func (m *Model) turnPage(delta int) {
	switch m.viewMode {
	case ViewClasses:
		m.classPage = max(m.classPage+delta, 1)
		m.selectedClass = 0
	case ViewRuns:
		m.runPage = max(m.runPage+delta, 1)
		m.selectedRun = 0
	default:
		return
	}
	m.refresh()
}

// syncKeys enables the bindings that apply to the current view.
func (m *Model) syncKeys() {
	k := &m.keys
	lists := m.viewMode == ViewClasses || m.viewMode == ViewRuns
	hasRun := m.selectedRecord() != nil

	k.Up.SetEnabled(m.viewMode != ViewRun)
	k.Down.SetEnabled(m.viewMode != ViewRun)
	k.Top.SetEnabled(m.viewMode != ViewRun)
	k.Bottom.SetEnabled(m.viewMode != ViewRun)
	k.Open.SetEnabled(m.viewMode != ViewRun)
	k.Back.SetEnabled(m.viewMode != ViewClasses)
	k.NextPage.SetEnabled(lists)
	k.PrevPage.SetEnabled(lists)
	k.Sort.SetEnabled(m.viewMode == ViewClasses)
	k.Order.SetEnabled(m.viewMode == ViewClasses)
	k.Toggle.SetEnabled(m.viewMode == ViewRuns && m.className != "")
	k.Linear.SetEnabled(lists)
	k.Cancel.SetEnabled(hasRun)
	k.Retry.SetEnabled(hasRun)
	k.Purge.SetEnabled(hasRun)
	k.PurgeClass.SetEnabled(m.viewMode == ViewClasses && len(m.classes) > 0)
	k.Search.SetEnabled(lists || m.viewMode == ViewSearch)
	k.More.SetEnabled(m.viewMode == ViewSearch && m.moreResults)
}
