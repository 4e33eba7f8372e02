// ABOUTME: Tests for the path sandbox: containment, traversal, symlink escape, text extensions
// ABOUTME: Uses t.TempDir roots canonicalized through EvalSymlinks

package permission

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mauromedda/pi-effector/internal/types"
)

var testExts = []string{".txt", ".md", "go", ".JSON"}

func newTestSandbox(t *testing.T) (*Sandbox, string) {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	sb, err := NewSandbox([]string{root}, testExts)
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	return sb, root
}

func TestNewSandbox_RequiresRoot(t *testing.T) {
	t.Parallel()

	if _, err := NewSandbox(nil, testExts); err == nil {
		t.Fatal("expected error for empty roots")
	}
}

func TestResolve_InsideRoot(t *testing.T) {
	t.Parallel()

	sb, root := newTestSandbox(t)

	tests := []struct {
		name  string
		base  string
		input string
		want  string
	}{
		{"relative to primary", "", "a/b.txt", filepath.Join(root, "a", "b.txt")},
		{"relative to base", filepath.Join(root, "proj"), "x.md", filepath.Join(root, "proj", "x.md")},
		{"absolute", "", filepath.Join(root, "z.txt"), filepath.Join(root, "z.txt")},
		{"root itself", "", root, root},
		{"dot-dot staying inside", "", "a/../c.txt", filepath.Join(root, "c.txt")},
		{"at prefix", "", "@notes.md", filepath.Join(root, "notes.md")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sb.Resolve(tt.base, tt.input)
			if err != nil {
				t.Fatalf("Resolve(%q): %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.input, got, tt.want)
			}
			again, err := sb.Resolve(tt.base, tt.input)
			if err != nil || again != got {
				t.Errorf("Resolve not stable: %q vs %q (%v)", got, again, err)
			}
		})
	}
}

func TestResolve_OutsideRoot(t *testing.T) {
	t.Parallel()

	sb, root := newTestSandbox(t)

	for _, input := range []string{
		"/etc/passwd",
		"../outside.txt",
		filepath.Join(root, "..", "sibling"),
		"a/../../escape.md",
	} {
		_, err := sb.Resolve("", input)
		if !errors.Is(err, types.ErrOf(types.KindOutsideSafeRoots)) {
			t.Errorf("Resolve(%q) err = %v, want outside_safe_roots", input, err)
		}
	}
}

func TestResolve_SymlinkEscape(t *testing.T) {
	t.Parallel()

	sb, root := newTestSandbox(t)
	outside := t.TempDir()

	link := filepath.Join(root, "link")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	_, err := sb.Resolve("", "link/secret.txt")
	if types.KindOf(err) != types.KindOutsideSafeRoots {
		t.Errorf("expected symlink escape to be rejected, got %v", err)
	}
}

func TestResolve_SiblingPrefixNotContained(t *testing.T) {
	t.Parallel()

	parent, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	root := filepath.Join(parent, "work")
	if err := os.Mkdir(root, 0o755); err != nil {
		t.Fatal(err)
	}
	sb, err := NewSandbox([]string{root}, testExts)
	if err != nil {
		t.Fatal(err)
	}

	_, err = sb.Resolve("", filepath.Join(parent, "workspace-other", "f.txt"))
	if types.KindOf(err) != types.KindOutsideSafeRoots {
		t.Errorf("expected prefix sibling to be rejected, got %v", err)
	}
}

func TestResolve_NullByte(t *testing.T) {
	t.Parallel()

	sb, _ := newTestSandbox(t)
	_, err := sb.Resolve("", "a\x00b.txt")
	if types.KindOf(err) != types.KindInvalidPath {
		t.Errorf("expected invalid_path, got %v", err)
	}
}

func TestEnsureTextSafe(t *testing.T) {
	t.Parallel()

	sb, _ := newTestSandbox(t)

	tests := []struct {
		path string
		want types.Kind
	}{
		{"notes.md", ""},
		{"NOTES.MD", ""},
		{"main.go", ""},
		{"data.json", ""},
		{"image.png", types.KindDisallowedExtension},
		{"Makefile", types.KindDisallowedExtension},
		{"bad\x00.txt", types.KindInvalidPath},
	}

	for _, tt := range tests {
		err := sb.EnsureTextSafe(tt.path)
		if got := types.KindOf(err); got != tt.want {
			t.Errorf("EnsureTextSafe(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestExpandPath(t *testing.T) {
	t.Parallel()

	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	if got := ExpandPath("~/x"); got != home+"/x" {
		t.Errorf("ExpandPath(~/x) = %q", got)
	}
	if got := ExpandPath("a\u00a0b"); got != "a b" {
		t.Errorf("ExpandPath with nbsp = %q", got)
	}
	if got := ExpandPath("~user"); got != "~user" {
		t.Errorf("ExpandPath(~user) = %q, want unchanged", got)
	}
}
