// ABOUTME: Read-only git inspection helpers: repository detection and root lookup
// ABOUTME: Wraps the git CLI with exec.CommandContext; only inspection subcommands are permitted

package git

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const gitTimeout = 30 * time.Second

// inspectCommands are the only subcommands this package runs. Anything that
// mutates the index or a remote goes through the command whitelist instead.
var inspectCommands = map[string]bool{
	"status":    true,
	"diff":      true,
	"rev-parse": true,
}

// HasGitDir reports whether dir contains a .git entry (directory or file,
// the latter for worktrees and submodules).
func HasGitDir(dir string) bool {
	_, err := os.Lstat(filepath.Join(dir, ".git"))
	return err == nil
}

// IsWorktree reports whether dir is inside a git working tree.
func IsWorktree(ctx context.Context, dir string) bool {
	out, err := gitCmd(ctx, dir, "rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(out) == "true"
}

// RepoRoot returns the repository root for dir via git rev-parse --show-toplevel.
func RepoRoot(ctx context.Context, dir string) (string, error) {
	out, err := gitCmd(ctx, dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", fmt.Errorf("git repo root: %w: %s", err, strings.TrimSpace(out))
	}
	return strings.TrimSpace(out), nil
}

// gitCmd runs an inspection subcommand in dir and returns combined output.
func gitCmd(ctx context.Context, dir string, args ...string) (string, error) {
	if len(args) == 0 || !inspectCommands[args[0]] {
		return "", fmt.Errorf("git subcommand not allowed: %v", args)
	}
	ctx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", append([]string{"--no-pager"}, args...)...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "GIT_OPTIONAL_LOCKS=0")
	out, err := cmd.CombinedOutput()
	return string(out), err
}
