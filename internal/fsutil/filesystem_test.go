package fsutil

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestOSFileSystem_Exists(t *testing.T) {
	fsys := OSFileSystem{}
	dir := t.TempDir()

	if !fsys.Exists(dir) {
		t.Error("Expected temp dir to exist")
	}
	if fsys.Exists(filepath.Join(dir, "missing")) {
		t.Error("Expected missing file not to exist")
	}
}

func TestOSFileSystem_CreateSeekPatch(t *testing.T) {
	fsys := OSFileSystem{}
	path := filepath.Join(t.TempDir(), "patch.bin")

	f, err := fsys.Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	f.Write([]byte("hello world"))
	if _, err := f.Seek(6, io.SeekStart); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	f.Write([]byte("WORLD"))
	if err := f.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := fsys.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "hello WORLD" {
		t.Errorf("got %q, want %q", data, "hello WORLD")
	}
}

func TestOSFileSystem_MkdirAll(t *testing.T) {
	fsys := OSFileSystem{}
	nested := filepath.Join(t.TempDir(), "a", "b")
	if err := fsys.MkdirAll(nested, 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	info, err := fsys.Stat(nested)
	if err != nil || !info.IsDir() {
		t.Errorf("Expected %s to be a directory (err=%v)", nested, err)
	}
}

func TestMemoryFileSystem_WriteAndRead(t *testing.T) {
	fsys := NewMemoryFileSystem()
	if err := fsys.WriteFile("/rf/rf.pgm", []byte("P5"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	data, err := fsys.ReadFile("/rf/rf.pgm")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "P5" {
		t.Errorf("got %q", data)
	}
}

func TestMemoryFileSystem_ReadNonExistent(t *testing.T) {
	fsys := NewMemoryFileSystem()
	_, err := fsys.ReadFile("/missing")
	if !os.IsNotExist(err) {
		t.Errorf("Expected not-exist error, got %v", err)
	}
}

func TestMemoryFileSystem_CreateSeekPatch(t *testing.T) {
	fsys := NewMemoryFileSystem()
	f, err := fsys.Create("/out.bin")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	f.Write([]byte{1, 0, 0, 0, 0, 9})
	if pos, err := f.Seek(1, io.SeekStart); err != nil || pos != 1 {
		t.Fatalf("Seek = %d, %v", pos, err)
	}
	f.Write([]byte{4, 3, 2, 1})
	if pos, _ := f.Seek(0, io.SeekEnd); pos != 6 {
		t.Errorf("end position = %d, want 6", pos)
	}

	// Not visible until closed.
	if data, _ := fsys.ReadFile("/out.bin"); len(data) != 0 {
		t.Errorf("expected empty file before Close, got %v", data)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := f.Close(); err == nil {
		t.Error("expected error on second Close")
	}

	data, _ := fsys.ReadFile("/out.bin")
	if want := []byte{1, 4, 3, 2, 1, 9}; !bytes.Equal(data, want) {
		t.Errorf("got %v, want %v", data, want)
	}
}

func TestMemoryFileSystem_SeekPastEndExtends(t *testing.T) {
	fsys := NewMemoryFileSystem()
	f, _ := fsys.Create("/sparse.bin")
	f.Seek(3, io.SeekStart)
	f.Write([]byte{7})
	f.Close()

	data, _ := fsys.ReadFile("/sparse.bin")
	if want := []byte{0, 0, 0, 7}; !bytes.Equal(data, want) {
		t.Errorf("got %v, want %v", data, want)
	}
}

func TestMemoryFileSystem_StatAndExists(t *testing.T) {
	fsys := NewMemoryFileSystem()
	fsys.MkdirAll("/a/b/c", 0755)
	fsys.WriteFile("/a/b/c/file.wf", []byte("1234"), 0600)

	for _, p := range []string{"/a", "/a/b", "/a/b/c", "/a/b/c/file.wf", "/a/b/../b/c/file.wf"} {
		if !fsys.Exists(p) {
			t.Errorf("Exists(%q) = false", p)
		}
	}

	info, err := fsys.Stat("/a/b/c/file.wf")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size() != 4 || info.Mode() != 0600 || info.IsDir() || info.Name() != "file.wf" {
		t.Errorf("unexpected info: size=%d mode=%v dir=%v name=%s", info.Size(), info.Mode(), info.IsDir(), info.Name())
	}

	if _, err := fsys.Stat("/nope"); !os.IsNotExist(err) {
		t.Errorf("Expected not-exist error, got %v", err)
	}
}
