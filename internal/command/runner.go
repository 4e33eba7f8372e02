// ABOUTME: Whitelisted command dispatcher: argument validation, git workdir resolution, execution
// ABOUTME: Validation happens before any process starts; failures never escape as panics

package command

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/mauromedda/pi-effector/internal/log"
	"github.com/mauromedda/pi-effector/internal/permission"
	"github.com/mauromedda/pi-effector/internal/tools"
	"github.com/mauromedda/pi-effector/internal/types"
)

const (
	defaultTimeout   = 120 * time.Second
	defaultMaxOutput = 8000
)

// Invocation is a validated command ready to run.
type Invocation struct {
	Key  Key      `json:"cmd_key"`
	Argv []string `json:"cmd"`
	Dir  string   `json:"cwd,omitempty"`
}

// Output is the result of a command, successful or not.
type Output struct {
	Invocation
	Output    string `json:"output"`
	Truncated bool   `json:"truncated,omitempty"`
}

// ExecFunc runs argv in dir and returns combined stdout and stderr.
type ExecFunc func(ctx context.Context, dir string, argv []string) ([]byte, error)

// Runner executes whitelisted commands.
type Runner struct {
	sb        *permission.Sandbox
	timeout   time.Duration
	maxOutput int
	exec      ExecFunc
}

// Option configures a Runner.
type Option func(*Runner)

// WithTimeout bounds every command's wall-clock time.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithMaxOutput caps the captured output in bytes.
func WithMaxOutput(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.maxOutput = n
		}
	}
}

// WithExec replaces process execution, for tests.
func WithExec(fn ExecFunc) Option {
	return func(r *Runner) { r.exec = fn }
}

// NewRunner creates a Runner that validates paths through sb.
func NewRunner(sb *permission.Sandbox, opts ...Option) *Runner {
	r := &Runner{sb: sb, timeout: defaultTimeout, maxOutput: defaultMaxOutput, exec: runProcess}
	for _, o := range opts {
		o(r)
	}
	return r
}

// ResolveGitDir picks the repository directory for a git command. A first
// argument naming an existing sandboxed directory is consumed; otherwise
// workdir is used. With neither, the call fails no_current_project.
func (r *Runner) ResolveGitDir(workdir string, args []string) (string, []string, error) {
	if len(args) > 0 && args[0] != "" {
		if dir, err := r.sb.Resolve(workdir, args[0]); err == nil {
			if info, err := os.Stat(dir); err == nil && info.IsDir() {
				return dir, args[1:], nil
			}
		}
	}
	if workdir == "" {
		return "", args, types.Errorf(types.KindNoCurrentProject, "no current project; run set_project first")
	}
	return workdir, args, nil
}

// Build validates key and args and computes the argv and directory.
// It starts no process.
func (r *Runner) Build(workdir, key string, args []string) (Invocation, error) {
	e, ok := table[Key(key)]
	if !ok {
		return Invocation{}, types.Errorf(types.KindCommandNotAllowed, "command %q is not allowed", key)
	}
	inv := Invocation{Key: Key(key), Argv: slices.Clone(e.argv)}

	switch Key(key) {
	case DockerLogsTail:
		if len(args) != 2 {
			return Invocation{}, types.Errorf(types.KindInvalidArguments, "docker_logs_tail needs [lines, container]")
		}
		if !isDigits(args[0]) {
			return Invocation{}, types.Errorf(types.KindInvalidArguments, "lines must be a numeric string, got %q", args[0])
		}
		inv.Argv = append(inv.Argv, args[0], args[1])
		return inv, nil

	case SystemctlStat:
		if len(args) != 1 {
			return Invocation{}, types.Errorf(types.KindInvalidArguments, "systemctl_status needs [service]")
		}
		inv.Argv = append(inv.Argv, args[0])
		return inv, nil

	case JournalctlTail:
		if len(args) != 2 {
			return Invocation{}, types.Errorf(types.KindInvalidArguments, "journalctl_tail needs [lines, service]")
		}
		if !isDigits(args[0]) {
			return Invocation{}, types.Errorf(types.KindInvalidArguments, "lines must be a numeric string, got %q", args[0])
		}
		inv.Argv = append(inv.Argv, args[0], "-u", args[1], "--no-pager")
		return inv, nil
	}

	if e.class == classSystem {
		return inv, nil
	}
	if e.class == classLocal {
		inv.Dir = workdir
		return inv, nil
	}

	dir, rest, err := r.ResolveGitDir(workdir, args)
	if err != nil {
		return Invocation{}, err
	}
	inv.Dir = dir

	switch Key(key) {
	case GitAdd:
		path := "."
		if len(rest) > 0 {
			path = rest[0]
		}
		if path != "." {
			if _, err := r.sb.Resolve(dir, path); err != nil {
				return Invocation{}, err
			}
		}
		inv.Argv = append(inv.Argv, path)

	case GitCommit:
		var msg string
		switch {
		case len(rest) == 0:
			return Invocation{}, types.Errorf(types.KindInvalidArguments, "git_commit needs [message] or [-m, message]")
		case rest[0] == "-m":
			if len(rest) != 2 {
				return Invocation{}, types.Errorf(types.KindInvalidArguments, "git_commit needs [-m, message]")
			}
			msg = rest[1]
		default:
			msg = rest[0]
		}
		msg = strings.TrimSpace(msg)
		if msg == "" {
			return Invocation{}, types.Errorf(types.KindEmptyCommitMessage, "commit message cannot be empty")
		}
		inv.Argv = append(inv.Argv, msg)

	case GitPush:
		remote, branch := "origin", "main"
		switch len(rest) {
		case 0:
		case 1:
			remote = rest[0]
		case 2:
			remote, branch = rest[0], rest[1]
		default:
			return Invocation{}, types.Errorf(types.KindInvalidArguments, "git_push takes [], [remote] or [remote, branch]")
		}
		inv.Argv = append(inv.Argv, remote, branch)
	}
	return inv, nil
}

// Execute validates and runs a whitelisted command. A non-zero exit or a
// missing executable is a command_failed error; the returned Output still
// carries whatever was captured.
func (r *Runner) Execute(ctx context.Context, workdir, key string, args []string) (Output, error) {
	inv, err := r.Build(workdir, key, args)
	if err != nil {
		return Output{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	log.Debug("exec %v (cwd %q)", inv.Argv, inv.Dir)
	raw, runErr := r.exec(ctx, inv.Dir, inv.Argv)
	tr := tools.TruncateHead(string(raw), 0, r.maxOutput)
	out := Output{Invocation: inv, Output: tr.Content, Truncated: tr.Truncated}

	if runErr != nil {
		detail := strings.TrimSpace(out.Output)
		if ctx.Err() != nil {
			runErr = fmt.Errorf("timed out after %s: %w", r.timeout, ctx.Err())
		}
		if detail == "" {
			detail = runErr.Error()
		}
		return out, types.Wrap(types.KindCommandFailed, errors.New(detail), strings.Join(inv.Argv, " "))
	}
	return out, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
