// ABOUTME: Tests for unified diff rendering and line statistics
// ABOUTME: Verifies headers, hunk ranges, context trimming, and identical-input handling

package diff

import (
	"strings"
	"testing"
)

func TestUnified_Identical(t *testing.T) {
	t.Parallel()

	if got := Unified("f.txt", "a\nb\n", "a\nb\n"); got != "" {
		t.Errorf("expected empty diff, got %q", got)
	}
}

func TestUnified_NewFile(t *testing.T) {
	t.Parallel()

	got := Unified("new.md", "", "one\ntwo\n")
	want := "--- new.md (before)\n+++ new.md (after)\n@@ -0,0 +1,2 @@\n+one\n+two\n"
	if got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestUnified_SingleChangeWithContext(t *testing.T) {
	t.Parallel()

	before := "1\n2\n3\n4\n5\n6\n7\n8\n9\n"
	after := "1\n2\n3\n4\nFIVE\n6\n7\n8\n9\n"

	got := Unified("n.txt", before, after)
	want := "--- n.txt (before)\n+++ n.txt (after)\n" +
		"@@ -2,7 +2,7 @@\n 2\n 3\n 4\n-5\n+FIVE\n 6\n 7\n 8\n"
	if got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestUnified_SeparateHunks(t *testing.T) {
	t.Parallel()

	var before, after strings.Builder
	for i := 0; i < 30; i++ {
		before.WriteString("line\n")
		switch i {
		case 2:
			after.WriteString("changed-a\n")
		case 25:
			after.WriteString("changed-b\n")
		default:
			after.WriteString("line\n")
		}
	}

	got := Unified("x", before.String(), after.String())
	if n := strings.Count(got, "@@ -"); n != 2 {
		t.Errorf("expected 2 hunks, got %d:\n%s", n, got)
	}
}

func TestUnified_AppendOnly(t *testing.T) {
	t.Parallel()

	got := Unified("NOTES.md", "# Notes\n", "# Notes\n\n- item\n")
	if !strings.Contains(got, "+- item\n") {
		t.Errorf("expected appended line in diff:\n%s", got)
	}
	if strings.Contains(got, "-# Notes") {
		t.Errorf("unchanged line reported as removed:\n%s", got)
	}
}

func TestStats(t *testing.T) {
	t.Parallel()

	added, removed := Stats("a\nb\nc\n", "a\nB\nc\nd\n")
	if added != 2 || removed != 1 {
		t.Errorf("Stats = +%d -%d, want +2 -1", added, removed)
	}
}
