// ABOUTME: Path sandbox restricting every file access to configured safe roots
// ABOUTME: Canonicalizes through symlinks and .. before the containment check; enforces text extensions

package permission

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mauromedda/pi-effector/internal/types"
)

// Sandbox validates file paths against a set of allowed root directories.
type Sandbox struct {
	roots []string        // canonical absolute paths; roots[0] is the primary root
	exts  map[string]bool // lower-case extensions including the dot
}

// NewSandbox creates a Sandbox. The first root is the primary root used to
// resolve relative paths when no working directory is set.
func NewSandbox(roots []string, textExts []string) (*Sandbox, error) {
	if len(roots) == 0 {
		return nil, errors.New("sandbox: at least one safe root is required")
	}

	normalized := make([]string, 0, len(roots))
	for _, dir := range roots {
		abs, err := filepath.Abs(ExpandPath(dir))
		if err != nil {
			return nil, fmt.Errorf("resolving root %q: %w", dir, err)
		}
		canon, err := canonicalize(abs)
		if err != nil {
			return nil, fmt.Errorf("canonicalizing root %q: %w", dir, err)
		}
		normalized = append(normalized, canon)
	}

	exts := make(map[string]bool, len(textExts))
	for _, e := range textExts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[e] = true
	}

	return &Sandbox{roots: normalized, exts: exts}, nil
}

// Roots returns the canonical safe roots.
func (s *Sandbox) Roots() []string {
	return append([]string(nil), s.roots...)
}

// Primary returns the primary safe root.
func (s *Sandbox) Primary() string {
	return s.roots[0]
}

// Resolve turns input into a canonical absolute path inside a safe root.
// Relative inputs are joined to base, or to the primary root when base is empty.
func (s *Sandbox) Resolve(base, input string) (string, error) {
	if strings.ContainsRune(input, 0) {
		return "", types.Errorf(types.KindInvalidPath, "path contains a null byte")
	}

	p := ExpandPath(input)
	if !filepath.IsAbs(p) {
		if base == "" {
			base = s.roots[0]
		}
		p = filepath.Join(base, p)
	}
	p = existingVariant(filepath.Clean(p))

	canon, err := canonicalize(p)
	if err != nil {
		return "", types.Wrap(types.KindInvalidPath, err, "resolving "+input)
	}

	if !s.Contains(canon) {
		return "", types.Errorf(types.KindOutsideSafeRoots,
			"path outside safe roots: %s (allowed roots: %s)", canon, strings.Join(s.roots, ", "))
	}
	return canon, nil
}

// Contains reports whether the canonical path lies in one of the safe roots.
func (s *Sandbox) Contains(canon string) bool {
	for _, root := range s.roots {
		if isUnder(root, canon) {
			return true
		}
	}
	return false
}

// EnsureTextSafe rejects paths whose extension is not an allowed text type.
func (s *Sandbox) EnsureTextSafe(path string) error {
	if strings.ContainsRune(path, 0) {
		return types.Errorf(types.KindInvalidPath, "path contains a null byte")
	}
	ext := strings.ToLower(filepath.Ext(path))
	if !s.exts[ext] {
		if ext == "" {
			ext = "(none)"
		}
		return types.Errorf(types.KindDisallowedExtension, "disallowed file extension %s (text only)", ext)
	}
	return nil
}

// isUnder reports whether target equals root or descends from it.
func isUnder(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// canonicalize resolves symlinks in the longest existing prefix of p and
// re-appends the non-existent remainder, so paths that are about to be
// created are still checked against their real parent.
func canonicalize(p string) (string, error) {
	p = filepath.Clean(p)
	existing := p
	var rest []string

	for {
		_, err := os.Lstat(existing)
		if err == nil {
			break
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		rest = append(rest, filepath.Base(existing))
		existing = parent
	}

	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", err
	}
	for i := len(rest) - 1; i >= 0; i-- {
		resolved = filepath.Join(resolved, rest[i])
	}
	return resolved, nil
}
