// ABOUTME: Terminal approval prompt: colored diff or git snapshot, then a y/N question
// ABOUTME: Blocks until the human answers; EOF counts as no

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mauromedda/pi-effector/internal/approval"
)

var (
	diffAdded   = lipgloss.NewStyle().Foreground(lipgloss.Color("2")) // green
	diffRemoved = lipgloss.NewStyle().Foreground(lipgloss.Color("1")) // red
	diffHeader  = lipgloss.NewStyle().Foreground(lipgloss.Color("6")) // cyan
	diffHunk    = lipgloss.NewStyle().Foreground(lipgloss.Color("5")) // magenta

	promptBanner = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3"))
)

type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out}
}

// ask renders req and reads the answer. Anything but y/yes/n/no/empty
// repeats the question.
func (p *prompter) ask(_ context.Context, req approval.Request) (bool, error) {
	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, promptBanner.Render(fmt.Sprintf("=== APPROVAL REQUIRED (%s) ===", req.Kind)))
	fmt.Fprintln(p.out, req.Title)
	if req.CommitMessage != "" {
		fmt.Fprintf(p.out, "commit message: %q\n", req.CommitMessage)
	}
	if req.Body != "" {
		body := req.Body
		if req.Kind == approval.RequestFile {
			body = renderDiff(body)
		}
		fmt.Fprintln(p.out, body)
	}

	for {
		fmt.Fprint(p.out, "Proceed? [y/N]: ")
		line, err := p.in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return false, fmt.Errorf("reading answer: %w", err)
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		case "n", "no", "":
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(p.out)
			}
			return false, nil
		}
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		fmt.Fprintln(p.out, "please answer y or n")
	}
}

// renderDiff colors a unified diff line by line.
func renderDiff(diff string) string {
	if diff == "" {
		return ""
	}

	lines := strings.Split(diff, "\n")
	var b strings.Builder
	b.Grow(len(diff) + len(lines)*10)

	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "+++") || strings.HasPrefix(line, "---"):
			b.WriteString(diffHeader.Render(line))
		case strings.HasPrefix(line, "@@"):
			b.WriteString(diffHunk.Render(line))
		case strings.HasPrefix(line, "+"):
			b.WriteString(diffAdded.Render(line))
		case strings.HasPrefix(line, "-"):
			b.WriteString(diffRemoved.Render(line))
		default:
			b.WriteString(line)
		}
		b.WriteByte('\n')
	}

	return strings.TrimRight(b.String(), "\n")
}
