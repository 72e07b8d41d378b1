package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/chunkprobe/cli/config"
	"github.com/justapithecus/chunkprobe/lode"
	"github.com/justapithecus/chunkprobe/runtime"
	"github.com/justapithecus/chunkprobe/types"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chunkprobe.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// newTestApp creates a cli.App with every command wired up and
// ExitErrHandler suppressed so errors are returned instead of calling os.Exit.
func newTestApp(out *bytes.Buffer) *cli.App {
	app := cli.NewApp()
	app.Commands = Commands("test")
	app.Writer = out
	app.ErrWriter = io.Discard
	app.ExitErrHandler = func(*cli.Context, error) {}
	return app
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	if err == nil {
		return 0
	}
	var exitErr cli.ExitCoder
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected cli.ExitCoder, got %T: %v", err, err)
	}
	return exitErr.ExitCode()
}

// closedPort returns a loopback port with nothing listening on it.
func closedPort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return strconv.Itoa(port)
}

// silentServer accepts one connection, swallows what the client sends for
// a moment and hangs up without ever answering.
func silentServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		_, _ = io.Copy(io.Discard, conn)
		_ = conn.Close()
	}()
	return strconv.Itoa(ln.Addr().(*net.TCPAddr).Port)
}

func seedTemplate(t *testing.T, dir string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "chunk_template_00.bin")
	if err := os.WriteFile(path, []byte{0x2C, 0, 0, 0, 1, 0, 0, 0, 2, 0xAA}, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCaptureAction_ConnectError(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "chunks")
	seeded := seedTemplate(t, outDir)
	reportPath := filepath.Join(dir, "report.json")

	var out bytes.Buffer
	err := newTestApp(&out).Run([]string{"chunkprobe", "capture",
		"--port", closedPort(t),
		"--timeout", "2s",
		"--outdir", outDir,
		"--report", reportPath,
		"--run-id", "run-cli",
	})
	if got := exitCode(t, err); got != runtime.ExitCodeConnectError {
		t.Fatalf("exit code = %d, want %d", got, runtime.ExitCodeConnectError)
	}

	if _, err := os.Stat(seeded); err != nil {
		t.Errorf("existing template should be untouched: %v", err)
	}
	if !strings.Contains(out.String(), "connect_error") {
		t.Errorf("summary missing outcome:\n%s", out.String())
	}

	report, err := runtime.ReadReport(reportPath)
	if err != nil {
		t.Fatalf("ReadReport: %v", err)
	}
	if report.RunID != "run-cli" || report.Outcome != types.OutcomeConnectError || report.ExitCode != runtime.ExitCodeConnectError {
		t.Errorf("report = %+v", report)
	}
}

func TestCaptureAction_NoTemplates(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "chunks")
	seeded := seedTemplate(t, outDir)

	var out bytes.Buffer
	err := newTestApp(&out).Run([]string{"chunkprobe", "capture",
		"--port", silentServer(t),
		"--timeout", "3s",
		"--outdir", outDir,
	})
	if got := exitCode(t, err); got != runtime.ExitCodeSuccess {
		t.Fatalf("exit code = %d, want %d", got, runtime.ExitCodeSuccess)
	}

	if _, err := os.Stat(seeded); err != nil {
		t.Errorf("existing template should be untouched: %v", err)
	}
	if !strings.Contains(out.String(), "No templates captured") {
		t.Errorf("summary missing advisory:\n%s", out.String())
	}
}

func TestCaptureAction_Quiet(t *testing.T) {
	var out bytes.Buffer
	err := newTestApp(&out).Run([]string{"chunkprobe", "capture",
		"--port", closedPort(t),
		"--timeout", "1s",
		"--outdir", filepath.Join(t.TempDir(), "chunks"),
		"--quiet",
	})
	if got := exitCode(t, err); got != runtime.ExitCodeConnectError {
		t.Fatalf("exit code = %d, want %d", got, runtime.ExitCodeConnectError)
	}
	if out.Len() != 0 {
		t.Errorf("--quiet should suppress the summary, got:\n%s", out.String())
	}
}

func TestCaptureAction_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"zero target", []string{"--target", "0"}},
		{"bad log level", []string{"--log-level", "loud"}},
		{"unknown adapter", []string{"--adapter", "kafka"}},
		{"bad mirror backend", []string{"--mirror-backend", "gcs", "--mirror-path", "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			args := append([]string{"chunkprobe", "capture", "--outdir", filepath.Join(t.TempDir(), "chunks")}, tt.args...)
			err := newTestApp(&out).Run(args)
			if got := exitCode(t, err); got != exitConfigError {
				t.Errorf("exit code = %d, want %d (err %v)", got, exitConfigError, err)
			}
		})
	}
}

func TestBuildMirror(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	cfg := config.Default()
	m, err := buildMirror(ctx, cfg, "127.0.0.1:25566", "run-1", start)
	if err != nil || m != nil {
		t.Fatalf("no mirror path: got %v, %v", m, err)
	}

	cfg.Mirror.Path = t.TempDir()
	m, err = buildMirror(ctx, cfg, "127.0.0.1:25566", "run-1", start)
	if err != nil {
		t.Fatalf("fs mirror: %v", err)
	}
	pm, ok := m.(*lode.PoolMirror)
	if !ok {
		t.Fatalf("fs mirror type = %T", m)
	}
	if !strings.Contains(pm.Prefix(), "day=2026-03-04/run_id=run-1") {
		t.Errorf("Prefix() = %q", pm.Prefix())
	}

	cfg.Mirror.Backend = "s3"
	cfg.Mirror.Path = ""
	if m, err := buildMirror(ctx, cfg, "127.0.0.1:25566", "run-1", start); err != nil || m != nil {
		t.Errorf("s3 without path: got %v, %v", m, err)
	}

	cfg.Mirror.Path = "s3:///no-bucket"
	if _, err := buildMirror(ctx, cfg, "127.0.0.1:25566", "run-1", start); err == nil {
		t.Error("expected error for s3 path without bucket")
	}

	cfg.Mirror.Backend = "tape"
	cfg.Mirror.Path = "x"
	if _, err := buildMirror(ctx, cfg, "127.0.0.1:25566", "run-1", start); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestBuildAdapter(t *testing.T) {
	tests := []struct {
		name    string
		ac      config.AdapterConfig
		wantNil bool
		wantErr bool
	}{
		{"none", config.AdapterConfig{}, true, false},
		{"webhook", config.AdapterConfig{Type: "webhook", URL: "http://127.0.0.1:1/hook", Retries: 1}, false, false},
		{"redis", config.AdapterConfig{Type: "redis", URL: "redis://127.0.0.1:1"}, false, false},
		{"redis bad url", config.AdapterConfig{Type: "redis", URL: "://nope"}, false, true},
		{"webhook missing url", config.AdapterConfig{Type: "webhook"}, false, true},
		{"unknown", config.AdapterConfig{Type: "kafka", URL: "x"}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := buildAdapter(tt.ac)
			if (err != nil) != tt.wantErr {
				t.Fatalf("buildAdapter() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if (a == nil) != tt.wantNil {
				t.Fatalf("buildAdapter() = %v, wantNil %v", a, tt.wantNil)
			}
			if a != nil {
				_ = a.Close()
			}
		})
	}
}

func TestPrintCaptureResult_UnderTargetAdvice(t *testing.T) {
	var out bytes.Buffer
	cfg := config.Default()
	printCaptureResult(&out, &runtime.CaptureResult{
		RunID:       "run-1",
		Target:      "127.0.0.1:25566",
		Outcome:     &types.Outcome{Status: types.OutcomeUnderTarget, Stop: types.StopDeadline},
		Captured:    3,
		TargetCount: 64,
	}, cfg)

	got := out.String()
	if !strings.Contains(got, "3 / 64") {
		t.Errorf("summary missing counts:\n%s", got)
	}
	if !strings.Contains(got, "longer --timeout") {
		t.Errorf("summary missing advice:\n%s", got)
	}
}
