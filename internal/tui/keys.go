package tui

import (
	"github.com/charmbracelet/bubbles/key"
)

// keyMap holds every binding of the browser. Bindings that do not apply to
// the current view are disabled by Model.syncKeys, which also hides them from
// the help bar.
type keyMap struct {
	Up         key.Binding
	Down       key.Binding
	Top        key.Binding
	Bottom     key.Binding
	Open       key.Binding
	Back       key.Binding
	NextPage   key.Binding
	PrevPage   key.Binding
	Sort       key.Binding
	Order      key.Binding
	Toggle     key.Binding
	Linear     key.Binding
	Cancel     key.Binding
	Retry      key.Binding
	Purge      key.Binding
	PurgeClass key.Binding
	Search     key.Binding
	More       key.Binding
	Refresh    key.Binding
	Help       key.Binding
	Quit       key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Up:         key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:       key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Top:        key.NewBinding(key.WithKeys("g", "home"), key.WithHelp("g", "top")),
		Bottom:     key.NewBinding(key.WithKeys("G", "end"), key.WithHelp("G", "bottom")),
		Open:       key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
		Back:       key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		NextPage:   key.NewBinding(key.WithKeys("n", "right"), key.WithHelp("n", "next page")),
		PrevPage:   key.NewBinding(key.WithKeys("p", "left"), key.WithHelp("p", "prev page")),
		Sort:       key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "sort column")),
		Order:      key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "flip order")),
		Toggle:     key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "running/finished")),
		Linear:     key.NewBinding(key.WithKeys("l"), key.WithHelp("l", "linear history")),
		Cancel:     key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "cancel run")),
		Retry:      key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "retry run")),
		Purge:      key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "purge run")),
		PurgeClass: key.NewBinding(key.WithKeys("X"), key.WithHelp("X", "purge class")),
		Search:     key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
		More:       key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "load more")),
		Refresh:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		Help:       key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Open, k.Back, k.Toggle, k.Linear, k.Search, k.More, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Top, k.Bottom},
		{k.Open, k.Back, k.NextPage, k.PrevPage},
		{k.Sort, k.Order, k.Toggle, k.Linear},
		{k.Cancel, k.Retry, k.Purge, k.PurgeClass},
		{k.Search, k.More, k.Refresh, k.Help, k.Quit},
	}
}
