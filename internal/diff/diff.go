// ABOUTME: Unified diff rendering for mutation previews shown at approval time
// ABOUTME: Line diff via diffmatchpatch, grouped into hunks with surrounding context

package diff

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// ContextLines is the number of unchanged lines kept around each change.
const ContextLines = 3

type line struct {
	op   byte // ' ', '-', '+'
	text string
}

// Unified renders a unified diff of before → after for path.
// It returns the empty string when the contents are identical.
func Unified(path, before, after string) string {
	if before == after {
		return ""
	}

	lines := lineOps(before, after)

	var b strings.Builder
	fmt.Fprintf(&b, "--- %s (before)\n+++ %s (after)\n", path, path)
	for _, h := range hunks(lines, ContextLines) {
		writeHunk(&b, lines, h)
	}
	return b.String()
}

// Stats counts added and removed lines.
func Stats(before, after string) (added, removed int) {
	for _, l := range lineOps(before, after) {
		switch l.op {
		case '+':
			added++
		case '-':
			removed++
		}
	}
	return added, removed
}

// lineOps computes a line-granular edit script.
func lineOps(before, after string) []line {
	dmp := diffmatchpatch.New()
	a, b, table := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), table)

	var out []line
	for _, d := range diffs {
		var op byte
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			op = ' '
		case diffmatchpatch.DiffDelete:
			op = '-'
		case diffmatchpatch.DiffInsert:
			op = '+'
		}
		for _, text := range splitLines(d.Text) {
			out = append(out, line{op: op, text: text})
		}
	}
	return out
}

// splitLines splits s into lines without their terminators.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.SplitAfter(s, "\n")
	if parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	for i, p := range parts {
		parts[i] = strings.TrimSuffix(p, "\n")
	}
	return parts
}

type span struct{ start, end int } // [start, end) over lines

// hunks groups changed lines into spans padded with ctx lines of context.
// Changes closer than 2*ctx lines share a hunk.
func hunks(lines []line, ctx int) []span {
	var out []span
	for i := 0; i < len(lines); i++ {
		if lines[i].op == ' ' {
			continue
		}
		start := max(0, i-ctx)
		end := i + 1
		for j := i + 1; j < len(lines); j++ {
			if lines[j].op != ' ' {
				end = j + 1
				continue
			}
			if j-end >= 2*ctx {
				break
			}
		}
		end = min(len(lines), end+ctx)
		if n := len(out); n > 0 && start <= out[n-1].end {
			out[n-1].end = end
		} else {
			out = append(out, span{start, end})
		}
		i = end - 1
	}
	return out
}

func writeHunk(b *strings.Builder, lines []line, h span) {
	oldStart, newStart := 1, 1
	for _, l := range lines[:h.start] {
		if l.op != '+' {
			oldStart++
		}
		if l.op != '-' {
			newStart++
		}
	}

	oldLen, newLen := 0, 0
	for _, l := range lines[h.start:h.end] {
		if l.op != '+' {
			oldLen++
		}
		if l.op != '-' {
			newLen++
		}
	}
	if oldLen == 0 {
		oldStart--
	}
	if newLen == 0 {
		newStart--
	}

	fmt.Fprintf(b, "@@ -%d,%d +%d,%d @@\n", oldStart, oldLen, newStart, newLen)
	for _, l := range lines[h.start:h.end] {
		b.WriteByte(l.op)
		b.WriteString(l.text)
		b.WriteByte('\n')
	}
}
