package randio

import (
	"bytes"
	"io"
	"os"
	"testing"
)

func TestMemFileReadWrite(t *testing.T) {
	m := NewMemFile([]byte("hello world"))

	buf := make([]byte, 5)
	if _, err := m.ReadAt(buf, 6); err != nil {
		t.Fatal(err)
	}
	if string(buf) != "world" {
		t.Fatalf("got %q, want %q", buf, "world")
	}

	if _, err := m.WriteAt([]byte("WORLD!"), 6); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(m.Bytes(), []byte("hello WORLD!")) {
		t.Fatalf("unexpected buffer: %q", m.Bytes())
	}
}

func TestMemFileWriteExtends(t *testing.T) {
	m := NewMemFile(nil)
	if _, err := m.WriteAt([]byte("late"), 10); err != nil {
		t.Fatal(err)
	}
	size, _ := m.Size()
	if size != 14 {
		t.Fatalf("got size %d, want 14", size)
	}
}

func TestMemFileTruncate(t *testing.T) {
	m := NewMemFile([]byte("abcdef"))
	if err := m.Truncate(3); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(m.Bytes(), []byte("abc")) {
		t.Fatalf("got %q", m.Bytes())
	}
	if err := m.Truncate(5); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(m.Bytes(), []byte("abc\x00\x00")) {
		t.Fatalf("got %q", m.Bytes())
	}
}

func TestOSFile(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "randio")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	o := NewOSFile(f)
	if _, err := o.WriteAt([]byte("payload"), 0); err != nil {
		t.Fatal(err)
	}
	size, err := o.Size()
	if err != nil {
		t.Fatal(err)
	}
	if size != 7 {
		t.Fatalf("got size %d, want 7", size)
	}
	if err := o.Truncate(4); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 4)
	if _, err := o.ReadAt(buf, 0); err != nil {
		t.Fatal(err)
	}
	if string(buf) != "payl" {
		t.Fatalf("got %q", buf)
	}
}

func TestReadAheadByteAt(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	m := NewMemFile(data)
	ra := NewReadAhead(m, int64(len(data)), 8)

	for i, want := range data {
		got, err := ra.ByteAt(int64(i))
		if err != nil {
			t.Fatalf("at %d: %v", i, err)
		}
		if got != want {
			t.Fatalf("at %d: got %q, want %q", i, got, want)
		}
	}

	if _, err := ra.ByteAt(int64(len(data))); err != io.EOF {
		t.Fatalf("expected EOF past end, got %v", err)
	}
}
