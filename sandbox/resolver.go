// Package sandbox confines every client-visible path beneath the configured
// server root. Virtual paths are always /-separated and rooted at the
// sandbox, never at the host filesystem.
package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var (
	// ErrOutsideRoot reports a path that canonicalizes outside the root.
	ErrOutsideRoot = errors.New("sandbox: path escapes server root")
	// ErrTraversal reports a parent-directory component in a path that
	// cannot be canonicalized (an upload target that does not exist yet).
	ErrTraversal = errors.New("sandbox: parent-directory component not allowed")
	// ErrProtected reports access to the server's own configuration file.
	ErrProtected = errors.New("sandbox: access to configuration file denied")
)

// Resolver maps virtual paths to real filesystem paths under an immutable,
// canonicalized root.
type Resolver struct {
	root       string // canonical absolute path, no trailing separator
	configName string // protected base name, "" disables protection
}

// New canonicalizes root (resolving symlinks) and returns a resolver.
// configName is the base name of the server configuration file; any entry
// with that name inside the sandbox is hidden from non-admin callers.
func New(root, configName string) (*Resolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("sandbox: %w", err)
	}
	canon, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("sandbox: root %s: %w", root, err)
	}
	info, err := os.Stat(canon)
	if err != nil {
		return nil, fmt.Errorf("sandbox: root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("sandbox: root %s is not a directory", root)
	}
	return &Resolver{root: canon, configName: configName}, nil
}

// Root returns the canonical real path of the sandbox root.
func (r *Resolver) Root() string {
	return r.root
}

// joinVirtual interprets p against the virtual working directory cwd and
// returns a cleaned absolute virtual path. A leading / makes p absolute
// within the sandbox, not within the host filesystem.
func joinVirtual(cwd, p string) string {
	if !strings.HasPrefix(p, "/") {
		p = path.Join(cwd, p)
	}
	return path.Clean("/" + strings.TrimPrefix(p, "/"))
}

// Resolve maps the candidate path p, relative to the virtual directory cwd,
// to its canonical real path. The target must exist: canonicalization
// follows symlinks before the containment check runs, so a link inside the
// root pointing outside it is rejected even though each path component
// taken alone looks harmless.
func (r *Resolver) Resolve(cwd, p string) (string, error) {
	virt := joinVirtual(cwd, p)
	real := filepath.Join(r.root, filepath.FromSlash(strings.TrimPrefix(virt, "/")))
	canon, err := filepath.EvalSymlinks(real)
	if err != nil {
		return "", err
	}
	if !r.contains(canon) {
		return "", ErrOutsideRoot
	}
	return canon, nil
}

// ResolveForCreate maps a path whose final component may not exist yet
// (an upload or mkdir target). The candidate is first rejected outright if
// it carries any parent-directory component, a syntactic first line of
// defense since the missing target cannot be canonicalized. The parent is
// then resolved normally and must be an existing directory inside the root.
func (r *Resolver) ResolveForCreate(cwd, p string) (string, error) {
	if hasParentComponent(p) {
		return "", ErrTraversal
	}
	virt := joinVirtual(cwd, p)
	base := path.Base(virt)
	if base == "/" || base == "." {
		return "", ErrTraversal
	}
	parent, err := r.Resolve(cwd, path.Dir(virt))
	if err != nil {
		return "", err
	}
	info, err := os.Stat(parent)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("sandbox: %s is not a directory", path.Dir(virt))
	}
	return filepath.Join(parent, base), nil
}

// Virtual converts a canonical real path back to its virtual form.
func (r *Resolver) Virtual(real string) (string, error) {
	if !r.contains(real) {
		return "", ErrOutsideRoot
	}
	rel, err := filepath.Rel(r.root, real)
	if err != nil {
		return "", err
	}
	if rel == "." {
		return "/", nil
	}
	return "/" + filepath.ToSlash(rel), nil
}

// Protected reports whether the given real path is the server configuration
// file, which only the admin user may read, write, list or delete.
func (r *Resolver) Protected(real string, admin bool) bool {
	if admin || r.configName == "" {
		return false
	}
	return filepath.Base(real) == r.configName
}

// ProtectedName reports whether a bare directory-entry name is the
// configuration file name; used to filter listings.
func (r *Resolver) ProtectedName(name string, admin bool) bool {
	if admin || r.configName == "" {
		return false
	}
	return name == r.configName
}

func (r *Resolver) contains(p string) bool {
	return p == r.root || strings.HasPrefix(p, r.root+string(filepath.Separator))
}

func hasParentComponent(p string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(p), "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}
