// Package pool persists captured chunk bodies as a Template Pool directory.
//
// A pool is a directory of chunk_template_NN.bin files, each holding exactly
// one raw message body. Writes go to a staging directory first; the live
// directory is only touched after every staged file is written.
package pool

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/justapithecus/chunkprobe/capture"
)

const (
	// FilePrefix and FileSuffix delimit pool member file names.
	FilePrefix = "chunk_template_"
	FileSuffix = ".bin"
	// StagingSuffix is appended to the output directory to name the staging directory.
	StagingSuffix = ".tmp_refresh"

	filePerm = 0o644
	dirPerm  = 0o755
)

// ErrNoTemplates is returned by Write when there is nothing to persist.
// The output directory is left untouched.
var ErrNoTemplates = errors.New("no templates captured")

// StageError is returned when writing to the staging directory fails.
// The output directory is left untouched.
type StageError struct {
	Path string
	Err  error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Path, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// SwapError is returned when the staged set could not be moved into place.
type SwapError struct {
	Path string
	Err  error
}

func (e *SwapError) Error() string {
	return fmt.Sprintf("swap %s: %v", e.Path, e.Err)
}

func (e *SwapError) Unwrap() error { return e.Err }

// Result describes a completed pool write.
type Result struct {
	Dir string
	// Files are the written file names in capture order.
	Files []string
	// Removed is the number of previous pool members deleted.
	Removed int
	// Bytes is the total size of the written bodies.
	Bytes int64
}

// Writer writes pools to one output directory.
type Writer struct {
	dir       string
	writeFile func(name string, data []byte, perm os.FileMode) error
}

// NewWriter creates a writer for dir.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir, writeFile: os.WriteFile}
}

// Dir returns the output directory.
func (w *Writer) Dir() string { return w.dir }

// StagingDir returns the staging directory used by Write.
func (w *Writer) StagingDir() string {
	return filepath.Clean(w.dir) + StagingSuffix
}

// Write replaces the pool with entries.
//
// Order of operations:
//  1. Write every entry to a fresh staging directory
//  2. Remove the previous pool members from the output directory
//  3. Move the staged files into the output directory
//  4. Remove the staging directory
//
// A failure in step 1 discards the staging directory and leaves the output
// directory as it was.
func (w *Writer) Write(entries []capture.Entry) (*Result, error) {
	if len(entries) == 0 {
		return nil, ErrNoTemplates
	}

	staging := w.StagingDir()
	if err := os.RemoveAll(staging); err != nil {
		return nil, &StageError{Path: staging, Err: err}
	}
	if err := os.MkdirAll(staging, dirPerm); err != nil {
		return nil, &StageError{Path: staging, Err: err}
	}

	result := &Result{Dir: w.dir, Files: make([]string, 0, len(entries))}
	for i, e := range entries {
		name := FileName(i)
		path := filepath.Join(staging, name)
		if err := w.writeFile(path, e.Body, filePerm); err != nil {
			_ = os.RemoveAll(staging)
			return nil, &StageError{Path: path, Err: err}
		}
		result.Files = append(result.Files, name)
		result.Bytes += int64(len(e.Body))
	}

	if err := os.MkdirAll(w.dir, dirPerm); err != nil {
		_ = os.RemoveAll(staging)
		return nil, &StageError{Path: w.dir, Err: err}
	}

	existing, err := Members(w.dir)
	if err != nil {
		_ = os.RemoveAll(staging)
		return nil, &StageError{Path: w.dir, Err: err}
	}

	// Destructive steps start here.
	for _, name := range existing {
		path := filepath.Join(w.dir, name)
		if err := os.Remove(path); err != nil {
			return nil, &SwapError{Path: path, Err: err}
		}
		result.Removed++
	}
	for _, name := range result.Files {
		if err := os.Rename(filepath.Join(staging, name), filepath.Join(w.dir, name)); err != nil {
			return nil, &SwapError{Path: name, Err: err}
		}
	}
	if err := os.RemoveAll(staging); err != nil {
		return nil, &SwapError{Path: staging, Err: err}
	}

	return result, nil
}

// FileName returns the name of the index-th template. Each index is padded
// to two digits on its own, so 00..99 keep the names the server loads and
// 100 onward simply grow.
func FileName(index int) string {
	return fmt.Sprintf("%s%02d%s", FilePrefix, index, FileSuffix)
}

// Members lists pool member file names in dir (unsorted).
// A missing directory has no members.
func Members(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, ent := range ents {
		if ent.IsDir() {
			continue
		}
		if _, ok := parseIndex(ent.Name()); ok {
			names = append(names, ent.Name())
		}
	}
	return names, nil
}

// parseIndex extracts NN from chunk_template_NN.bin.
func parseIndex(name string) (int, bool) {
	if !strings.HasPrefix(name, FilePrefix) || !strings.HasSuffix(name, FileSuffix) {
		return 0, false
	}
	digits := strings.TrimSuffix(strings.TrimPrefix(name, FilePrefix), FileSuffix)
	if digits == "" {
		return 0, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}
