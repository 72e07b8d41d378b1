package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/justapithecus/chunkprobe/runtime"
)

// ReportModel is a Bubble Tea model summarizing a capture report.
type ReportModel struct {
	report   *runtime.CaptureReport
	width    int
	quitting bool
}

// NewReportModel creates a report model from a *runtime.CaptureReport.
func NewReportModel(data any) (ReportModel, error) {
	report, ok := data.(*runtime.CaptureReport)
	if !ok || report == nil {
		return ReportModel{}, fmt.Errorf("invalid data type for %s: %T", ViewReport, data)
	}
	return ReportModel{report: report}, nil
}

// Init implements tea.Model.
func (m ReportModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m ReportModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m ReportModel) View() string {
	if m.quitting {
		return ""
	}
	r := m.report

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Capture Run"))
	b.WriteString("\n\n")

	rows := [][]string{
		{"Run ID", r.RunID},
		{"Target", r.Target},
		{"Outcome", string(r.Outcome)},
		{"Stop Reason", string(r.StopReason)},
		{"Message", r.Message},
		{"Exit Code", fmt.Sprintf("%d", r.ExitCode)},
		{"Duration", fmt.Sprintf("%dms", r.DurationMs)},
		{"Final State", r.FinalState},
	}
	if r.PoolDir != "" {
		rows = append(rows, []string{"Pool", r.PoolDir})
	}
	if r.MirrorPath != "" {
		rows = append(rows, []string{"Mirror", r.MirrorPath})
	}
	for _, row := range rows {
		value := ValueStyle.Render(row[1])
		if row[0] == "Outcome" {
			value = OutcomeStyle(row[1]).Render(row[1])
		}
		b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render(row[0]+":"), value))
	}
	details := BoxStyle.Render(strings.TrimRight(b.String(), "\n"))

	captureColor := successColor
	if r.Captured < r.TargetCount {
		captureColor = warningColor
	}
	boxes := []string{
		renderStatBox("Captured", int64(r.Captured), captureColor),
		renderStatBox("Target", int64(r.TargetCount), highlightColor),
	}
	if s := r.Metrics; s != nil {
		boxes = append(boxes,
			renderStatBox("Chunks Seen", s.ChunksSeen, highlightColor),
			renderStatBox("Duplicates", s.ChunksDuplicate, mutedColor),
			renderStatBox("Frames Read", s.FramesRead, highlightColor),
		)
	}

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return details + "\n" + lipgloss.JoinHorizontal(lipgloss.Top, boxes...) + "\n" + help
}

func renderStatBox(label string, value int64, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)

	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)

	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr))
}
