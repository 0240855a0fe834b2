package transfer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFormatEntryFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("0123456789"), 0o644); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}

	line := FormatEntry(info)
	if !strings.HasPrefix(line, "-rw-rw-rw-") {
		t.Errorf("line prefix = %q", line)
	}
	if !strings.HasSuffix(line, " notes.txt\r\n") {
		t.Errorf("line suffix = %q", line)
	}
	if !strings.Contains(line, " 10 ") {
		t.Errorf("size missing from %q", line)
	}
	mt := info.ModTime()
	stamp := fmt.Sprintf("%s %2d %02d:%02d", mt.Format("Jan"), mt.Day(), mt.Hour(), mt.Minute())
	if !strings.Contains(line, stamp) {
		t.Errorf("timestamp %q missing from %q", stamp, line)
	}
}

func TestFormatEntryDirectoryAndReadOnly(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "docs")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	info, _ := os.Stat(sub)
	line := FormatEntry(info)
	if !strings.HasPrefix(line, "drw-rw-rw-") {
		t.Errorf("directory flag missing: %q", line)
	}
	if !strings.HasSuffix(line, " docs/\r\n") {
		t.Errorf("trailing slash missing: %q", line)
	}

	ro := filepath.Join(dir, "frozen.txt")
	if err := os.WriteFile(ro, nil, 0o444); err != nil {
		t.Fatal(err)
	}
	info, _ = os.Stat(ro)
	if line := FormatEntry(info); !strings.HasPrefix(line, "-r--r--r--") {
		t.Errorf("read-only rights missing: %q", line)
	}
}

func TestRenderListing(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "b.txt"), []byte("b"), 0o644)
	os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644)
	os.Mkdir(filepath.Join(dir, "sub"), 0o755)
	os.WriteFile(filepath.Join(dir, "ftpd.toml"), []byte("server_port = 1234"), 0o644)

	buf, err := RenderListing(dir, func(name string) bool { return name == "ftpd.toml" })
	if err != nil {
		t.Fatalf("RenderListing: %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(string(buf), "\r\n"), "\r\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines: %q", len(lines), lines)
	}
	// Name order, hidden entry filtered out.
	for i, want := range []string{" a.txt", " b.txt", " sub/"} {
		if !strings.HasSuffix(lines[i], want) {
			t.Errorf("line %d = %q, want suffix %q", i, lines[i], want)
		}
	}

	// Single file target lists itself.
	buf, err = RenderListing(filepath.Join(dir, "a.txt"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := string(buf); !strings.HasSuffix(got, " a.txt\r\n") || strings.Count(got, "\r\n") != 1 {
		t.Errorf("single-file listing = %q", got)
	}

	if _, err := RenderListing(filepath.Join(dir, "missing"), nil); err == nil {
		t.Error("listing a missing path succeeded")
	}
}
