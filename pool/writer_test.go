package pool

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"testing"

	"github.com/justapithecus/chunkprobe/capture"
)

func entry(x, z int32, tail string) capture.Entry {
	b := []byte{0x2C}
	b = binary.BigEndian.AppendUint32(b, uint32(x))
	b = binary.BigEndian.AppendUint32(b, uint32(z))
	b = append(b, tail...)
	return capture.Entry{X: x, Z: z, Body: b}
}

// snapshot returns name -> contents for every regular file in dir.
func snapshot(t *testing.T, dir string) map[string]string {
	t.Helper()
	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	out := make(map[string]string, len(ents))
	for _, e := range ents {
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		out[e.Name()] = string(data)
	}
	return out
}

func equalSnapshots(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

func TestWrite_ReplacesPreviousSet(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "chunks")
	w := NewWriter(dir)

	first := []capture.Entry{entry(0, 0, "a"), entry(1, 0, "b"), entry(2, 0, "c")}
	if _, err := w.Write(first); err != nil {
		t.Fatalf("first Write: %v", err)
	}

	second := []capture.Entry{entry(5, 5, "x"), entry(6, 5, "y")}
	res, err := w.Write(second)
	if err != nil {
		t.Fatalf("second Write: %v", err)
	}
	if res.Removed != 3 {
		t.Errorf("Removed = %d, want 3", res.Removed)
	}

	got := snapshot(t, dir)
	if len(got) != 2 {
		t.Fatalf("dir has %d files, want 2: %v", len(got), got)
	}
	for i, e := range second {
		name := FileName(i)
		if got[name] != string(e.Body) {
			t.Errorf("%s = %x, want %x", name, got[name], e.Body)
		}
	}

	if _, err := os.Stat(w.StagingDir()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("staging dir should be removed, stat err = %v", err)
	}
}

func TestWrite_NoEntriesLeavesDirUntouched(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "chunk_template_00.bin"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	before := snapshot(t, dir)

	_, err := NewWriter(dir).Write(nil)
	if !errors.Is(err, ErrNoTemplates) {
		t.Fatalf("err = %v, want ErrNoTemplates", err)
	}
	if after := snapshot(t, dir); !equalSnapshots(before, after) {
		t.Errorf("dir changed: before %v after %v", before, after)
	}
}

func TestWrite_StagingFailureLeavesDirUntouched(t *testing.T) {
	dir := t.TempDir()
	for i, body := range []string{"old0", "old1"} {
		if err := os.WriteFile(filepath.Join(dir, FileName(i)), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	before := snapshot(t, dir)

	w := NewWriter(dir)
	calls := 0
	w.writeFile = func(name string, data []byte, perm os.FileMode) error {
		calls++
		if calls == 2 {
			return errors.New("disk full")
		}
		return os.WriteFile(name, data, perm)
	}

	_, err := w.Write([]capture.Entry{entry(0, 0, "n0"), entry(1, 1, "n1"), entry(2, 2, "n2")})
	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("err = %v, want *StageError", err)
	}
	if after := snapshot(t, dir); !equalSnapshots(before, after) {
		t.Errorf("dir changed: before %v after %v", before, after)
	}
	if _, err := os.Stat(w.StagingDir()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("staging dir should be discarded, stat err = %v", err)
	}
}

func TestWrite_KeepsNonMemberFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "README.txt"), []byte("keep"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "chunk_template_07.bin"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewWriter(dir).Write([]capture.Entry{entry(0, 0, "new")}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got := snapshot(t, dir)
	if got["README.txt"] != "keep" {
		t.Error("non-member file should survive")
	}
	if _, ok := got["chunk_template_07.bin"]; ok {
		t.Error("previous member should be removed")
	}
	if len(got) != 2 {
		t.Errorf("files = %v, want README.txt + one template", got)
	}
}

func TestWrite_ClearsLeftoverStaging(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "chunks")
	w := NewWriter(dir)
	if err := os.MkdirAll(w.StagingDir(), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(w.StagingDir(), "chunk_template_99.bin"), []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := w.Write([]capture.Entry{entry(0, 0, "fresh")}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got := snapshot(t, dir)
	if len(got) != 1 || got["chunk_template_00.bin"] == "" {
		t.Errorf("files = %v, want only chunk_template_00.bin", got)
	}
}

func TestFileName(t *testing.T) {
	tests := []struct {
		index int
		want  string
	}{
		{0, "chunk_template_00.bin"},
		{7, "chunk_template_07.bin"},
		{99, "chunk_template_99.bin"},
		{100, "chunk_template_100.bin"},
		{1234, "chunk_template_1234.bin"},
	}
	for _, tt := range tests {
		if got := FileName(tt.index); got != tt.want {
			t.Errorf("FileName(%d) = %q, want %q", tt.index, got, tt.want)
		}
	}
}

func TestWrite_LargePoolKeepsTwoDigitNames(t *testing.T) {
	dir := t.TempDir()
	var entries []capture.Entry
	for i := range 101 {
		entries = append(entries, entry(int32(i), 0, "p"))
	}
	res, err := NewWriter(dir).Write(entries)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if res.Files[0] != "chunk_template_00.bin" || res.Files[100] != "chunk_template_100.bin" {
		t.Errorf("files = %s .. %s", res.Files[0], res.Files[100])
	}

	// The server loads chunk_template_%02d.bin for the first 64 indices.
	for i := range 64 {
		name := fmt.Sprintf("chunk_template_%02d.bin", i)
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "chunk_template_000.bin")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("unexpected three-digit name, stat err = %v", err)
	}
}

func TestMembers_OnlyDigitIndices(t *testing.T) {
	dir := t.TempDir()
	names := []string{
		"chunk_template_00.bin",
		"chunk_template_100.bin",
		"chunk_template_+1.bin",
		"chunk_template_-1.bin",
		"chunk_template_ 1.bin",
		"chunk_template_.bin",
		"chunk_template_0x1.bin",
	}
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	members, err := Members(dir)
	if err != nil {
		t.Fatalf("Members: %v", err)
	}
	sort.Strings(members)
	want := []string{"chunk_template_00.bin", "chunk_template_100.bin"}
	if !slices.Equal(members, want) {
		t.Errorf("members = %v, want %v", members, want)
	}

	if _, err := NewWriter(dir).Write([]capture.Entry{entry(0, 0, "new")}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "chunk_template_+1.bin")); err != nil {
		t.Errorf("signed name should survive the swap: %v", err)
	}
}

func TestLoad_OrderAndCoordinates(t *testing.T) {
	dir := t.TempDir()
	var entries []capture.Entry
	for i := range 101 {
		entries = append(entries, entry(int32(i), int32(-i), "p"))
	}
	if _, err := NewWriter(dir).Write(entries); err != nil {
		t.Fatalf("Write: %v", err)
	}

	templates, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(templates) != 101 {
		t.Fatalf("loaded %d, want 101", len(templates))
	}
	if !sort.SliceIsSorted(templates, func(i, j int) bool { return templates[i].Index < templates[j].Index }) {
		t.Error("templates not sorted by index")
	}
	for i, tpl := range templates {
		if tpl.X != int32(i) || tpl.Z != int32(-i) {
			t.Errorf("template %d coords = (%d,%d)", i, tpl.X, tpl.Z)
		}
		if !bytes.Equal(tpl.Body, entries[i].Body) {
			t.Errorf("template %d body mismatch", i)
		}
	}

	s := Summarize(dir, templates)
	if s.Count != 101 || s.MinX != 0 || s.MaxX != 100 || s.MinZ != -100 || s.MaxZ != 0 {
		t.Errorf("summary = %+v", s)
	}
	if s.TotalBytes != int64(101*10) {
		t.Errorf("TotalBytes = %d, want %d", s.TotalBytes, 101*10)
	}
}

func TestLoad_MissingDirIsEmpty(t *testing.T) {
	templates, err := Load(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(templates) != 0 {
		t.Errorf("loaded %d templates from missing dir", len(templates))
	}
}

func TestLoad_RejectsShortTemplate(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "chunk_template_00.bin"), []byte{0x2C, 1}, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Error("expected error for short template")
	}
}

func TestPatch(t *testing.T) {
	orig := entry(1, 2, "payload").Body
	patched, err := Patch(orig, -4, 9)
	if err != nil {
		t.Fatalf("Patch: %v", err)
	}
	key, _ := capture.ChunkKey(patched)
	if key != (capture.Key{X: -4, Z: 9}) {
		t.Errorf("patched key = %+v", key)
	}
	if !bytes.Equal(patched[9:], orig[9:]) || patched[0] != orig[0] {
		t.Error("patch must only touch the coordinates")
	}
	if key, _ := capture.ChunkKey(orig); key != (capture.Key{X: 1, Z: 2}) {
		t.Error("Patch must not modify its input")
	}
	if _, err := Patch([]byte{0x2C}, 0, 0); err == nil {
		t.Error("expected error for short body")
	}
}
