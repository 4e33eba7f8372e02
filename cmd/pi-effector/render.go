// ABOUTME: Trace and answer rendering for the terminal (text) or for programs (json)
// ABOUTME: Final answers are markdown and go through glamour in text mode

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/mauromedda/pi-effector/internal/agent"
	"github.com/mauromedda/pi-effector/internal/plan"
)

const (
	answerWidth  = 80
	summaryWidth = 120 // terminal cells for a step header
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	errStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	skipStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	dimStyle  = lipgloss.NewStyle().Faint(true)
)

func checkFormat(format string) error {
	switch format {
	case "text", "json":
		return nil
	default:
		return fmt.Errorf("unknown --format %q (want text or json)", format)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// renderTrace prints tr in the requested format.
func renderTrace(w io.Writer, format string, tr agent.Trace) error {
	if format == "json" {
		return writeJSON(w, tr)
	}

	if tr.FinalAnswer != "" {
		fmt.Fprintln(w, renderMarkdown(tr.FinalAnswer))
		return nil
	}

	fmt.Fprintf(w, "[plan] %s steps=%d run=%s\n", tr.Reason, len(tr.Entries), tr.RunID)
	if tr.GitApproval != "" {
		fmt.Fprintf(w, "[git approval] %s\n", tr.GitApproval)
	}
	for _, s := range tr.Removed {
		fmt.Fprintln(w, skipStyle.Render("[removed] "+s.Summary()))
	}

	for _, e := range tr.Entries {
		step := plan.Step{Action: e.Action, Params: e.Params}
		summary := runewidth.Truncate(strings.TrimSpace(step.Summary()), summaryWidth, "...")
		fmt.Fprintf(w, "\n[step %d/%d] %s\n", e.Step, len(tr.Entries), summary)

		r := e.Result
		switch {
		case r.Skipped:
			fmt.Fprintln(w, skipStyle.Render("  skipped: "+r.Reason))
		case r.Failed():
			fmt.Fprintln(w, errStyle.Render(fmt.Sprintf("  error %s: %s", r.Error, r.Detail)))
		default:
			fmt.Fprintln(w, okStyle.Render("  ok"))
		}
		if r.Warning != "" {
			fmt.Fprintln(w, skipStyle.Render("  warning: "+r.Warning))
		}
		if r.Data != nil {
			data, err := json.MarshalIndent(r.Data, "  ", "  ")
			if err == nil {
				fmt.Fprintln(w, dimStyle.Render("  "+string(data)))
			}
		}
		if fb := e.Fallback; fb != nil {
			switch {
			case fb.Error != "":
				fmt.Fprintln(w, errStyle.Render("  fallback failed: "+fb.Error))
			case fb.ReadTail != nil:
				fmt.Fprintf(w, "  fallback %s (%d lines of %s):\n%s\n", fb.Kind, fb.ReadTail.Lines, fb.ReadTail.Path, indent(fb.ReadTail.Content))
			}
		}
	}

	if tr.Aborted {
		fmt.Fprintln(w, errStyle.Render("\n[abort] set_project failed; remaining steps were not run"))
	}
	return nil
}

// renderMarkdown styles md for the terminal, falling back to the raw text.
func renderMarkdown(md string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(answerWidth),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n ")
}

func indent(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = "    " + l
	}
	return strings.Join(lines, "\n")
}
