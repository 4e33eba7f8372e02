// ABOUTME: Pending-change snapshot of a repository: status, unstaged diff, staged diff
// ABOUTME: The inspections and the root lookup run concurrently; any failure fails the snapshot

package git

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Snapshot is what a reviewer sees before approving git writes.
type Snapshot struct {
	Dir    string
	Root   string // git rev-parse --show-toplevel
	Status string // git status --porcelain
	Diff   string // git diff
	Staged string // git diff --staged
}

// HasChanges reports whether any of the three views is non-empty.
func (s Snapshot) HasChanges() bool {
	return strings.TrimSpace(s.Status) != "" ||
		strings.TrimSpace(s.Diff) != "" ||
		strings.TrimSpace(s.Staged) != ""
}

// Render formats the snapshot as labelled sections.
func (s Snapshot) Render() string {
	var b strings.Builder
	section := func(title, body string) {
		fmt.Fprintf(&b, "== %s ==\n", title)
		if strings.TrimSpace(body) == "" {
			b.WriteString("(no output)\n")
			return
		}
		b.WriteString(strings.TrimRight(body, "\n"))
		b.WriteString("\n")
	}
	repo := s.Root
	if repo == "" {
		repo = s.Dir
	}
	fmt.Fprintf(&b, "repository: %s\n", repo)
	section("git status --porcelain", s.Status)
	section("git diff", s.Diff)
	section("git diff --staged", s.Staged)
	return b.String()
}

// Take collects a Snapshot of dir.
func Take(ctx context.Context, dir string) (Snapshot, error) {
	snap := Snapshot{Dir: dir}
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		root, err := RepoRoot(gCtx, dir)
		snap.Root = root
		return err
	})

	views := []struct {
		dst  *string
		args []string
	}{
		{&snap.Status, []string{"status", "--porcelain"}},
		{&snap.Diff, []string{"diff"}},
		{&snap.Staged, []string{"diff", "--staged"}},
	}
	for _, v := range views {
		g.Go(func() error {
			out, err := gitCmd(gCtx, dir, v.args...)
			if err != nil {
				return fmt.Errorf("git %s: %w: %s", strings.Join(v.args, " "), err, strings.TrimSpace(out))
			}
			*v.dst = out
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
