package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/justapithecus/chunkprobe/metrics"
	"github.com/justapithecus/chunkprobe/pool"
	"github.com/justapithecus/chunkprobe/runtime"
	"github.com/justapithecus/chunkprobe/types"
)

func testSummary(n int) *pool.Summary {
	templates := make([]pool.Template, n)
	for i := range templates {
		templates[i] = pool.Template{Index: i, Name: pool.FileName(i), X: int32(i), Z: int32(-i), Size: 100}
	}
	return pool.Summarize("assets/chunks", templates)
}

func TestIsTUISupported(t *testing.T) {
	tests := []struct {
		viewType string
		want     bool
	}{
		{ViewPool, true},
		{ViewReport, true},
		{"capture", false},
		{"version", false},
		{"inspect_", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.viewType, func(t *testing.T) {
			if got := IsTUISupported(tt.viewType); got != tt.want {
				t.Errorf("IsTUISupported(%q) = %v, want %v", tt.viewType, got, tt.want)
			}
		})
	}
}

func TestRun_UnsupportedViewType(t *testing.T) {
	if err := Run("capture", nil); err == nil {
		t.Error("expected error for unsupported view type")
	}
}

func TestNewModel_WrongPayload(t *testing.T) {
	if _, err := NewModel(ViewPool, "not a summary"); err == nil {
		t.Error("expected error for pool view with wrong payload")
	}
	if _, err := NewModel(ViewReport, testSummary(1)); err == nil {
		t.Error("expected error for report view with wrong payload")
	}
}

func TestPoolModel_View(t *testing.T) {
	out, err := RenderStatic(ViewPool, testSummary(3))
	if err != nil {
		t.Fatalf("RenderStatic: %v", err)
	}
	for _, want := range []string{"Template Pool", "assets/chunks", "chunk_template_00.bin", "chunk_template_02.bin", "1/3"} {
		if !strings.Contains(out, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestPoolModel_EmptyPool(t *testing.T) {
	out, err := RenderStatic(ViewPool, testSummary(0))
	if err != nil {
		t.Fatalf("RenderStatic: %v", err)
	}
	if !strings.Contains(out, "No templates") {
		t.Errorf("empty pool view = %q", out)
	}
}

func TestPoolModel_Navigation(t *testing.T) {
	m, err := NewPoolModel(testSummary(40))
	if err != nil {
		t.Fatal(err)
	}

	var model tea.Model = m
	model, _ = model.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	for range 12 {
		model, _ = model.Update(tea.KeyMsg{Type: tea.KeyDown})
	}
	pm := model.(PoolModel)
	if pm.cursor != 12 {
		t.Errorf("cursor = %d, want 12", pm.cursor)
	}
	if pm.cursor < pm.offset || pm.cursor >= pm.offset+pm.pageSize() {
		t.Errorf("cursor %d outside window [%d, %d)", pm.cursor, pm.offset, pm.offset+pm.pageSize())
	}

	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("G")})
	if got := model.(PoolModel).cursor; got != 39 {
		t.Errorf("cursor after G = %d, want 39", got)
	}
	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("g")})
	if got := model.(PoolModel).cursor; got != 0 {
		t.Errorf("cursor after g = %d, want 0", got)
	}
	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyUp})
	if got := model.(PoolModel).cursor; got != 0 {
		t.Errorf("cursor moved above first row: %d", got)
	}

	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Error("expected quit command")
	}
}

func TestReportModel_View(t *testing.T) {
	report := &runtime.CaptureReport{
		RunID:       "run-1",
		Target:      "127.0.0.1:25566",
		Outcome:     types.OutcomeUnderTarget,
		StopReason:  types.StopDeadline,
		Captured:    3,
		TargetCount: 10,
		PoolDir:     "assets/chunks",
		Metrics:     &metrics.Snapshot{ChunksSeen: 7, ChunksDuplicate: 4},
	}

	out, err := RenderStatic(ViewReport, report)
	if err != nil {
		t.Fatalf("RenderStatic: %v", err)
	}
	for _, want := range []string{"run-1", "under_target", "deadline", "Captured", "Duplicates"} {
		if !strings.Contains(out, want) {
			t.Errorf("view missing %q", want)
		}
	}
}
