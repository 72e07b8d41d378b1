package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/justapithecus/chunkprobe/pool"
)

// defaultPageSize is used until the first WindowSizeMsg arrives.
const defaultPageSize = 16

// PoolModel is a Bubble Tea model listing the templates of a pool.
type PoolModel struct {
	summary  *pool.Summary
	cursor   int
	offset   int
	height   int
	quitting bool
}

// NewPoolModel creates a pool model from a *pool.Summary.
func NewPoolModel(data any) (PoolModel, error) {
	summary, ok := data.(*pool.Summary)
	if !ok || summary == nil {
		return PoolModel{}, fmt.Errorf("invalid data type for %s: %T", ViewPool, data)
	}
	return PoolModel{summary: summary}, nil
}

// Init implements tea.Model.
func (m PoolModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m PoolModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.height = msg.Height
		m.clamp()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, keys.Down):
			if m.cursor < len(m.summary.Templates)-1 {
				m.cursor++
			}
		case key.Matches(msg, keys.Top):
			m.cursor = 0
		case key.Matches(msg, keys.Bottom):
			m.cursor = max(len(m.summary.Templates)-1, 0)
		}
		m.clamp()
	}

	return m, nil
}

// pageSize is the number of template rows that fit below the header.
func (m PoolModel) pageSize() int {
	if m.height <= 0 {
		return defaultPageSize
	}
	// Header box, table heading and help take roughly 16 lines.
	return max(m.height-16, 3)
}

// clamp keeps the cursor inside the visible window.
func (m *PoolModel) clamp() {
	page := m.pageSize()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+page {
		m.offset = m.cursor - page + 1
	}
}

// View implements tea.Model.
func (m PoolModel) View() string {
	if m.quitting {
		return ""
	}
	s := m.summary

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Template Pool"))
	b.WriteString("\n\n")

	rows := [][]string{
		{"Directory", s.Dir},
		{"Templates", fmt.Sprintf("%d", s.Count)},
		{"Total Bytes", fmt.Sprintf("%d", s.TotalBytes)},
	}
	if s.Count > 0 {
		rows = append(rows,
			[]string{"X Range", fmt.Sprintf("%d .. %d", s.MinX, s.MaxX)},
			[]string{"Z Range", fmt.Sprintf("%d .. %d", s.MinZ, s.MaxZ)},
		)
	}
	for _, row := range rows {
		b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render(row[0]+":"), ValueStyle.Render(row[1])))
	}
	header := BoxStyle.Render(strings.TrimRight(b.String(), "\n"))

	if s.Count == 0 {
		empty := WarningStyle.Render("No templates in this pool.")
		return header + "\n" + empty + "\n" + HelpStyle.Render("Press q or Ctrl+C to quit")
	}

	var t strings.Builder
	t.WriteString(HeaderRowStyle.Render(fmt.Sprintf("%5s  %-24s %9s %9s %9s", "#", "file", "x", "z", "bytes")))
	t.WriteString("\n")
	end := min(m.offset+m.pageSize(), len(s.Templates))
	for i := m.offset; i < end; i++ {
		tpl := s.Templates[i]
		line := fmt.Sprintf("%5d  %-24s %9d %9d %9d", tpl.Index, tpl.Name, tpl.X, tpl.Z, tpl.Size)
		if i == m.cursor {
			t.WriteString(SelectedStyle.Render(line))
		} else {
			t.WriteString(ValueStyle.Render(line))
		}
		t.WriteString("\n")
	}

	help := HelpStyle.Render(fmt.Sprintf("%d/%d  ↑/↓ move  g/G top/bottom  q quit", m.cursor+1, len(s.Templates)))
	return header + "\n" + t.String() + help
}

// keyMap defines key bindings.
type keyMap struct {
	Quit   key.Binding
	Up     key.Binding
	Down   key.Binding
	Top    key.Binding
	Bottom key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	Top: key.NewBinding(
		key.WithKeys("home", "g"),
		key.WithHelp("g", "top"),
	),
	Bottom: key.NewBinding(
		key.WithKeys("end", "G"),
		key.WithHelp("G", "bottom"),
	),
}
