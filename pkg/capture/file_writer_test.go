package capture

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/celltrace/celltrace-go/pkg/frame"
)

func TestFileWriterAppends(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "append.ctlog")

	w1, err := NewFileWriter(path)
	if err != nil {
		t.Fatalf("NewFileWriter failed: %v", err)
	}
	w1.Log(NewFrameEvent("a", "can0", DirectionRX, frame.New(1, false, nil)))
	w1.Close()

	w2, err := NewFileWriter(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	w2.Log(NewFrameEvent("b", "can0", DirectionRX, frame.New(2, false, nil)))
	w2.Close()

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	count := 0
	for {
		if _, err := reader.Next(); err == io.EOF {
			break
		} else if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		count++
	}
	if count != 2 {
		t.Errorf("got %d events across two writer sessions, want 2", count)
	}
}

func TestFileWriterCloseIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "close.ctlog")

	w, err := NewFileWriter(path)
	if err != nil {
		t.Fatalf("NewFileWriter failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("first Close failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestFileWriterIgnoresLogAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "after.ctlog")

	w, err := NewFileWriter(path)
	if err != nil {
		t.Fatalf("NewFileWriter failed: %v", err)
	}
	w.Close()

	// Must not panic or write.
	w.Log(NewFrameEvent("s", "can0", DirectionRX, frame.New(1, false, nil)))

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	if _, err := reader.Next(); err != io.EOF {
		t.Errorf("expected no events after Close, got %v", err)
	}
}

func TestMultiSinkFansOut(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.ctlog")
	pathB := filepath.Join(dir, "b.ctlog")

	a, err := NewFileWriter(pathA)
	if err != nil {
		t.Fatalf("NewFileWriter failed: %v", err)
	}
	b, err := NewFileWriter(pathB)
	if err != nil {
		t.Fatalf("NewFileWriter failed: %v", err)
	}

	multi := NewMultiSink(a, b, NoopSink{})
	multi.Log(NewFrameEvent("s", "can0", DirectionRX, frame.New(7, false, []byte{0xFF})))

	a.Close()
	b.Close()

	for _, path := range []string{pathA, pathB} {
		reader, err := NewReader(path)
		if err != nil {
			t.Fatalf("NewReader(%s) failed: %v", path, err)
		}
		event, err := reader.Next()
		if err != nil {
			t.Fatalf("Next(%s) failed: %v", path, err)
		}
		if event.Frame == nil || event.Frame.ID != 7 {
			t.Errorf("%s: unexpected event %+v", path, event)
		}
		reader.Close()
	}
}
