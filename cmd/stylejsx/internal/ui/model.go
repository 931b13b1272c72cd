package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/recera/stylejsx/pkg/styling/registry"
)

// KeyMap defines keybindings for the inspector
type KeyMap struct {
	Up       key.Binding
	Down     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Quit     key.Binding
	Help     key.Binding
}

var DefaultKeyMap = KeyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "previous style"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "next style"),
	),
	PageUp: key.NewBinding(
		key.WithKeys("pgup", "b"),
		key.WithHelp("pgup/b", "scroll css up"),
	),
	PageDown: key.NewBinding(
		key.WithKeys("pgdown", "f"),
		key.WithHelp("pgdn/f", "scroll css down"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c", "esc"),
		key.WithHelp("q", "quit"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "toggle help"),
	),
}

// Style is one identity shown by the inspector.
type Style struct {
	registry.Entry
	Count int
}

// Model is the interactive registry inspector
type Model struct {
	title    string
	styles   []Style
	selected int
	viewport viewport.Model
	render   func(css string) string

	width    int
	height   int
	showHelp bool
	quitting bool
}

// NewModel creates an inspector over styles. render formats the css of
// the selected style, e.g. with syntax highlighting; nil shows it as is.
func NewModel(title string, styles []Style, render func(string) string) Model {
	if render == nil {
		render = func(s string) string { return s }
	}
	m := Model{
		title:    title,
		styles:   styles,
		render:   render,
		viewport: viewport.New(0, 0),
	}
	m.refresh()
	return m
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = m.detailWidth()
		m.viewport.Height = max(msg.Height-4, 1)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, DefaultKeyMap.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, DefaultKeyMap.Help):
			m.showHelp = !m.showHelp
		case key.Matches(msg, DefaultKeyMap.Up):
			if m.selected > 0 {
				m.selected--
				m.refresh()
			}
		case key.Matches(msg, DefaultKeyMap.Down):
			if m.selected < len(m.styles)-1 {
				m.selected++
				m.refresh()
			}
		case key.Matches(msg, DefaultKeyMap.PageUp):
			m.viewport.SetYOffset(m.viewport.YOffset - m.viewport.Height/2)
		case key.Matches(msg, DefaultKeyMap.PageDown):
			m.viewport.SetYOffset(m.viewport.YOffset + m.viewport.Height/2)
		}
	}
	return m, nil
}

// Selected returns the highlighted style, if any.
func (m Model) Selected() (Style, bool) {
	if len(m.styles) == 0 {
		return Style{}, false
	}
	return m.styles[m.selected], true
}

func (m *Model) refresh() {
	s, ok := m.Selected()
	if !ok {
		m.viewport.SetContent(mutedStyle.Render("no styles registered"))
		return
	}
	m.viewport.SetContent(m.render(s.CSS))
	m.viewport.GotoTop()
}

func (m Model) listWidth() int {
	w := 0
	for _, s := range m.styles {
		w = max(w, len(s.ID)+8)
	}
	return min(max(w, 20), 48)
}

func (m Model) detailWidth() int {
	return max(m.width-m.listWidth()-6, 10)
}

// View renders the UI
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}
	if m.showHelp {
		return m.renderHelp()
	}

	header := titleStyle.Render(m.title) + " " +
		mutedStyle.Render(fmt.Sprintf("%d styles", len(m.styles)))

	var list strings.Builder
	for i, s := range m.styles {
		line := fmt.Sprintf("%s ×%d", s.ID, s.Count)
		if s.Hydrated {
			line += " " + hydratedBadge
		}
		if i == m.selected {
			list.WriteString(selectedStyle.Render("› " + line))
		} else {
			list.WriteString(normalStyle.Render("  " + line))
		}
		list.WriteString("\n")
	}

	body := joinColumns(
		listStyle.Width(m.listWidth()).Render(strings.TrimRight(list.String(), "\n")),
		boxStyle.Width(m.detailWidth()).Render(m.viewport.View()),
	)

	footer := helpStyle.Render("↑/↓ select • pgup/pgdn scroll • ? help • q quit")
	return header + "\n" + body + "\n" + footer
}

func (m Model) renderHelp() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Keybindings"))
	sb.WriteString("\n")
	for _, b := range []key.Binding{
		DefaultKeyMap.Up, DefaultKeyMap.Down, DefaultKeyMap.PageUp,
		DefaultKeyMap.PageDown, DefaultKeyMap.Help, DefaultKeyMap.Quit,
	} {
		h := b.Help()
		sb.WriteString(fmt.Sprintf("  %-8s %s\n", h.Key, mutedStyle.Render(h.Desc)))
	}
	return sb.String()
}
