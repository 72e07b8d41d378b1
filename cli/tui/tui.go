package tui

import (
	"fmt"
	"slices"

	tea "github.com/charmbracelet/bubbletea"
)

// View types with an interactive rendering.
const (
	ViewPool   = "inspect_pool"
	ViewReport = "inspect_report"
)

// Run starts the appropriate TUI based on the view type.
// Returns an error if the view type doesn't support TUI.
func Run(viewType string, data any) error {
	model, err := NewModel(viewType, data)
	if err != nil {
		return err
	}
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

// NewModel builds the model for a view type, checking the payload type.
func NewModel(viewType string, data any) (tea.Model, error) {
	switch viewType {
	case ViewPool:
		return NewPoolModel(data)
	case ViewReport:
		return NewReportModel(data)
	default:
		return nil, fmt.Errorf("TUI mode is not supported for %s", viewType)
	}
}

// IsTUISupported returns true if the view type supports TUI mode.
// Only inspect views do; TUI is read-only.
func IsTUISupported(viewType string) bool {
	return slices.Contains(SupportedTUIViews(), viewType)
}

// SupportedTUIViews returns a list of view types that support TUI.
func SupportedTUIViews() []string {
	return []string{ViewPool, ViewReport}
}

// RenderStatic renders a view once without starting a program.
func RenderStatic(viewType string, data any) (string, error) {
	model, err := NewModel(viewType, data)
	if err != nil {
		return "", err
	}
	return model.View(), nil
}
