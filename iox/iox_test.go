package iox

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type spyCloser struct{ closed bool }

func (s *spyCloser) Close() error { s.closed = true; return errors.New("ignored") }

func TestDiscardClose(t *testing.T) {
	s := &spyCloser{}
	DiscardClose(s)
	if !s.closed {
		t.Fatal("Close was not called")
	}
}

func TestCloseFunc(t *testing.T) {
	s := &spyCloser{}
	fn := CloseFunc(s)
	if s.closed {
		t.Fatal("Close called before invoking returned func")
	}
	fn()
	if !s.closed {
		t.Fatal("Close was not called")
	}
}

func TestDiscardErr(t *testing.T) {
	called := false
	DiscardErr(func() error {
		called = true
		return errors.New("ignored")
	})
	if !called {
		t.Fatal("fn was not called")
	}
}

func TestOpenOutput(t *testing.T) {
	w, closeFn, err := OpenOutput("-")
	if err != nil || w != os.Stderr {
		t.Fatalf("OpenOutput(-) = %v, %v", w, err)
	}
	if err := closeFn(); err != nil {
		t.Errorf("stderr close: %v", err)
	}

	path := filepath.Join(t.TempDir(), "report.json")
	w, closeFn, err = OpenOutput(path)
	if err != nil {
		t.Fatalf("OpenOutput(file): %v", err)
	}
	if _, err := w.Write([]byte("{}")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "{}" {
		t.Errorf("file = %q, %v", data, err)
	}
}
