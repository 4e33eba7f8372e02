// ABOUTME: Process execution for whitelisted commands with bounded output capture
// ABOUTME: Runs argv directly (no shell) under a filtered environment

package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// captureLimit bounds memory use; Execute truncates further for display.
const captureLimit = 4 * 1024 * 1024

var errOutputLimitExceeded = errors.New("output limit exceeded")

// limitedWriter wraps an io.Writer and stops accepting data after limit bytes.
type limitedWriter struct {
	w        io.Writer
	limit    int
	written  int
	exceeded bool
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	remaining := lw.limit - lw.written
	if remaining <= 0 {
		lw.exceeded = true
		return 0, errOutputLimitExceeded
	}
	if len(p) > remaining {
		n, err := lw.w.Write(p[:remaining])
		lw.written += n
		lw.exceeded = true
		if err != nil {
			return n, err
		}
		return n, errOutputLimitExceeded
	}
	n, err := lw.w.Write(p)
	lw.written += n
	return n, err
}

func runProcess(ctx context.Context, dir string, argv []string) ([]byte, error) {
	bin, err := exec.LookPath(argv[0])
	if err != nil {
		return nil, fmt.Errorf("%s not found on PATH: %w", argv[0], err)
	}
	cmd := exec.CommandContext(ctx, bin, argv[1:]...)
	cmd.Dir = dir
	cmd.Env = commandEnvironment()

	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, limit: captureLimit}
	cmd.Stdout = lw
	cmd.Stderr = lw

	err = cmd.Run()
	if err != nil && lw.exceeded {
		// Hitting the cap kills the writer side; what was captured is enough.
		return buf.Bytes(), nil
	}
	return buf.Bytes(), err
}

// passEnv lists the variables forwarded to child processes. git needs the
// identity and credential plumbing; everything else is dropped.
var passEnv = []string{
	"PATH", "HOME", "USER", "LOGNAME", "LANG", "LC_ALL", "TZ", "TMPDIR",
	"SSH_AUTH_SOCK", "GIT_AUTHOR_NAME", "GIT_AUTHOR_EMAIL",
	"GIT_COMMITTER_NAME", "GIT_COMMITTER_EMAIL", "GIT_CONFIG_GLOBAL", "GIT_CEILING_DIRECTORIES",
	"DOCKER_HOST", "XDG_CONFIG_HOME", "XDG_RUNTIME_DIR",
}

func commandEnvironment() []string {
	env := make([]string, 0, len(passEnv)+2)
	for _, k := range passEnv {
		if v, ok := os.LookupEnv(k); ok {
			env = append(env, k+"="+v)
		}
	}
	// Never block on a credential prompt or a pager.
	env = append(env, "GIT_TERMINAL_PROMPT=0", "GIT_PAGER=cat")
	if _, ok := os.LookupEnv("PATH"); !ok {
		env = append(env, "PATH=/usr/local/bin:/usr/bin:/bin")
	}
	return env
}
