package archive

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCreateArchiveFromHostTree(t *testing.T) {
	src := t.TempDir()
	if err := os.MkdirAll(filepath.Join(src, "sub"), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "top.txt"), []byte("hello, cib"), 0644); err != nil {
		t.Fatalf("WriteFile top.txt: %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "sub", "leaf.txt"), []byte("nested"), 0644); err != nil {
		t.Fatalf("WriteFile leaf.txt: %v", err)
	}

	archivePath := filepath.Join(t.TempDir(), "out.cib")
	topArg := filepath.Join(src, "top.txt")
	subArg := filepath.Join(src, "sub")

	if err := CreateArchive(archivePath, []string{topArg, subArg}, false); err != nil {
		t.Fatalf("CreateArchive: %v", err)
	}

	a, err := Open(archivePath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer a.Close()

	topID, found := a.Paths.GetEntry(0, "top.txt")
	if !found {
		t.Fatalf("top.txt not found in archive")
	}
	entry := a.Table.Get(topID)
	if !entry.IsFile() {
		t.Fatalf("top.txt entry is not a regular file")
	}
	if got := string(a.Allocator().Payload(entry.Pointer)); got != "hello, cib" {
		t.Fatalf("top.txt payload = %q, want %q", got, "hello, cib")
	}

	leafID, found := a.Paths.GetEntry(0, "sub/leaf.txt")
	if !found {
		t.Fatalf("sub/leaf.txt not found in archive")
	}
	leaf := a.Table.Get(leafID)
	if got := string(a.Allocator().Payload(leaf.Pointer)); got != "nested" {
		t.Fatalf("sub/leaf.txt payload = %q, want %q", got, "nested")
	}
}
