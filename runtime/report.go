package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/justapithecus/chunkprobe/iox"
	"github.com/justapithecus/chunkprobe/metrics"
	"github.com/justapithecus/chunkprobe/types"
)

// CaptureReport is the structured JSON report written by --report.
type CaptureReport struct {
	RunID       string              `json:"run_id"`
	Target      string              `json:"target"`
	Outcome     types.OutcomeStatus `json:"outcome"`
	StopReason  types.StopReason    `json:"stop_reason"`
	Message     string              `json:"message"`
	ExitCode    int                 `json:"exit_code"`
	DurationMs  int64               `json:"duration_ms"`
	Captured    int                 `json:"captured"`
	TargetCount int                 `json:"target_count"`
	FinalState  string              `json:"final_state"`
	Threshold   int32               `json:"compression_threshold"`
	PoolDir     string              `json:"pool_dir,omitempty"`
	MirrorPath  string              `json:"mirror_path,omitempty"`

	Templates []ReportTemplate `json:"templates"`
	Metrics   *metrics.Snapshot `json:"metrics"`
}

// ReportTemplate is one captured template in the report.
type ReportTemplate struct {
	Index int    `json:"index"`
	Name  string `json:"name,omitempty"`
	X     int32  `json:"x"`
	Z     int32  `json:"z"`
	Bytes int    `json:"bytes"`
}

// BuildReport composes a CaptureReport from a result and metrics snapshot.
// The exitCode is the process exit code that will be returned to the caller.
func BuildReport(result *CaptureResult, snap metrics.Snapshot, exitCode int) *CaptureReport {
	report := &CaptureReport{
		RunID:       result.RunID,
		Target:      result.Target,
		Outcome:     result.Outcome.Status,
		StopReason:  result.Outcome.Stop,
		Message:     result.Outcome.Message,
		ExitCode:    exitCode,
		DurationMs:  result.Duration.Milliseconds(),
		Captured:    result.Captured,
		TargetCount: result.TargetCount,
		FinalState:  result.FinalState.String(),
		Threshold:   result.Threshold,
		Templates:   make([]ReportTemplate, 0, len(result.Entries)),
		Metrics:     &snap,
	}

	if result.Pool != nil {
		report.PoolDir = result.Pool.Dir
	}
	if result.Mirror != nil {
		report.MirrorPath = result.Mirror.Prefix
	}

	for i, e := range result.Entries {
		t := ReportTemplate{Index: i, X: e.X, Z: e.Z, Bytes: len(e.Body)}
		if result.Pool != nil && i < len(result.Pool.Files) {
			t.Name = result.Pool.Files[i]
		}
		report.Templates = append(report.Templates, t)
	}

	return report
}

// WriteReport writes the report as JSON to the specified path.
// If path is "-", writes to stderr.
func WriteReport(report *CaptureReport, path string) error {
	if path == "" {
		return errors.New("report path must not be empty")
	}

	w, closeFn, err := iox.OpenOutput(path)
	if err != nil {
		return fmt.Errorf("failed to open report %s: %w", path, err)
	}
	if err := writeReportTo(report, w); err != nil {
		_ = closeFn()
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return closeFn()
}

// writeReportTo writes report JSON to any writer.
func writeReportTo(report *CaptureReport, w io.Writer) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// ReadReport loads a report previously written by WriteReport.
func ReadReport(path string) (*CaptureReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report %s: %w", path, err)
	}
	var report CaptureReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("invalid report %s: %w", path, err)
	}
	return &report, nil
}
