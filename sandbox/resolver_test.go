package sandbox

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestResolver(t *testing.T) (*Resolver, string) {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "pub", "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "pub", "notes.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}
	r, err := New(root, "ftpd.toml")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r, r.Root()
}

func TestResolveStaysInsideRoot(t *testing.T) {
	r, root := newTestResolver(t)

	tests := []struct {
		name string
		cwd  string
		p    string
		want string // relative to root, "" for root itself
	}{
		{"root itself", "/", "/", ""},
		{"absolute", "/", "/pub", "pub"},
		{"relative", "/", "pub", "pub"},
		{"from cwd", "/pub", "sub", "pub/sub"},
		{"dot", "/pub", ".", "pub"},
		{"dotdot clamped at root", "/", "..", ""},
		{"dotdot within", "/pub/sub", "..", "pub"},
		{"file", "/pub", "notes.txt", "pub/notes.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.cwd, tt.p)
			if err != nil {
				t.Fatalf("Resolve(%q, %q): %v", tt.cwd, tt.p, err)
			}
			want := filepath.Join(root, filepath.FromSlash(tt.want))
			if got != want {
				t.Errorf("Resolve(%q, %q) = %q, want %q", tt.cwd, tt.p, got, want)
			}
		})
	}
}

func TestResolveEscapeAttempts(t *testing.T) {
	r, root := newTestResolver(t)

	for _, p := range []string{
		"../../etc/passwd",
		"/../..",
		"pub/../../..",
		"/pub/../../../tmp",
	} {
		got, err := r.Resolve("/", p)
		if err != nil {
			continue // rejected or nonexistent, both fine
		}
		if got != root && !strings.HasPrefix(got, root+string(filepath.Separator)) {
			t.Errorf("Resolve(%q) = %q escapes root %q", p, got, root)
		}
	}
}

func TestResolveSymlinkEscape(t *testing.T) {
	r, root := newTestResolver(t)

	outside := t.TempDir()
	if err := os.Symlink(outside, filepath.Join(root, "escape")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if _, err := r.Resolve("/", "escape"); !errors.Is(err, ErrOutsideRoot) {
		t.Errorf("Resolve over escaping symlink: err = %v, want ErrOutsideRoot", err)
	}

	// A symlink that stays inside the root is fine and canonicalizes.
	if err := os.Symlink(filepath.Join(root, "pub"), filepath.Join(root, "alias")); err != nil {
		t.Fatal(err)
	}
	got, err := r.Resolve("/", "alias")
	if err != nil {
		t.Fatalf("Resolve over internal symlink: %v", err)
	}
	if got != filepath.Join(root, "pub") {
		t.Errorf("Resolve = %q, want canonical %q", got, filepath.Join(root, "pub"))
	}
}

func TestResolveForCreate(t *testing.T) {
	r, root := newTestResolver(t)

	got, err := r.ResolveForCreate("/pub", "upload.bin")
	if err != nil {
		t.Fatalf("ResolveForCreate: %v", err)
	}
	if want := filepath.Join(root, "pub", "upload.bin"); got != want {
		t.Errorf("ResolveForCreate = %q, want %q", got, want)
	}

	for _, p := range []string{"../secret", "a/../../secret", "..", "pub/.."} {
		if _, err := r.ResolveForCreate("/", p); !errors.Is(err, ErrTraversal) {
			t.Errorf("ResolveForCreate(%q): err = %v, want ErrTraversal", p, err)
		}
	}

	// Parent must exist.
	if _, err := r.ResolveForCreate("/", "missing/upload.bin"); err == nil {
		t.Error("ResolveForCreate under missing parent succeeded")
	}
}

func TestVirtual(t *testing.T) {
	r, root := newTestResolver(t)

	tests := []struct {
		real string
		want string
	}{
		{root, "/"},
		{filepath.Join(root, "pub"), "/pub"},
		{filepath.Join(root, "pub", "sub"), "/pub/sub"},
	}
	for _, tt := range tests {
		got, err := r.Virtual(tt.real)
		if err != nil {
			t.Fatalf("Virtual(%q): %v", tt.real, err)
		}
		if got != tt.want {
			t.Errorf("Virtual(%q) = %q, want %q", tt.real, got, tt.want)
		}
	}

	if _, err := r.Virtual("/definitely/elsewhere"); !errors.Is(err, ErrOutsideRoot) {
		t.Errorf("Virtual outside root: err = %v, want ErrOutsideRoot", err)
	}
}

func TestProtectedConfigFile(t *testing.T) {
	r, root := newTestResolver(t)

	cfg := filepath.Join(root, "ftpd.toml")
	if !r.Protected(cfg, false) {
		t.Error("config file not protected from regular user")
	}
	if r.Protected(cfg, true) {
		t.Error("config file protected from admin")
	}
	if r.Protected(filepath.Join(root, "pub", "notes.txt"), false) {
		t.Error("ordinary file reported protected")
	}
	// Base-name match applies anywhere in the tree.
	if !r.Protected(filepath.Join(root, "pub", "ftpd.toml"), false) {
		t.Error("nested config-named file not protected")
	}
	if !r.ProtectedName("ftpd.toml", false) || r.ProtectedName("ftpd.toml", true) {
		t.Error("ProtectedName admin handling wrong")
	}
}

func FuzzResolveContainment(f *testing.F) {
	f.Add("/", "pub")
	f.Add("/pub", "../..")
	f.Add("/", "/etc/passwd")
	f.Add("/pub/sub", "a/b/../../../../../../x")

	root, err := os.MkdirTemp("", "sandbox-fuzz")
	if err != nil {
		f.Fatal(err)
	}
	f.Cleanup(func() { os.RemoveAll(root) })
	os.MkdirAll(filepath.Join(root, "pub", "sub"), 0o755)
	r, err := New(root, "ftpd.toml")
	if err != nil {
		f.Fatal(err)
	}

	f.Fuzz(func(t *testing.T, cwd, p string) {
		got, err := r.Resolve(cwd, p)
		if err != nil {
			return
		}
		if got != r.Root() && !strings.HasPrefix(got, r.Root()+string(filepath.Separator)) {
			t.Errorf("Resolve(%q, %q) = %q escapes %q", cwd, p, got, r.Root())
		}
	})
}
