// ABOUTME: Anchor and marker based text patching used by the patch mutation
// ABOUTME: Pure string functions: no filesystem access

package tools

import (
	"strings"

	"github.com/mauromedda/pi-effector/internal/types"
)

// PatchOp selects how a Patch edits the file.
type PatchOp string

const (
	PatchInsertAfter    PatchOp = "insert_after"
	PatchInsertBefore   PatchOp = "insert_before"
	PatchReplaceBetween PatchOp = "replace_between"
	PatchReplaceAll     PatchOp = "replace_all"
)

// ParsePatchOp validates a patch operation name.
func ParsePatchOp(s string) (PatchOp, error) {
	switch op := PatchOp(strings.TrimSpace(s)); op {
	case PatchInsertAfter, PatchInsertBefore, PatchReplaceBetween, PatchReplaceAll:
		return op, nil
	default:
		return "", types.Errorf(types.KindUnsupportedPatchOp, "unsupported patch op %q", s)
	}
}

// applyPatch returns text with p applied.
func applyPatch(text string, p Patch) (string, error) {
	switch p.Op {
	case PatchInsertAfter, PatchInsertBefore:
		if p.Anchor == "" {
			return "", types.Errorf(types.KindAnchorRequired, "%s requires an anchor", p.Op)
		}
		idx := nthIndex(text, p.Anchor, max(1, p.Occurrence))
		if idx < 0 {
			return "", types.Errorf(types.KindAnchorNotFound, "anchor %q not found (occurrence %d)", p.Anchor, max(1, p.Occurrence))
		}
		pos := idx
		if p.Op == PatchInsertAfter {
			pos += len(p.Anchor)
		}
		return text[:pos] + normalizeInsert(p.Content) + text[pos:], nil

	case PatchReplaceBetween:
		if p.StartMarker == "" || p.EndMarker == "" {
			return "", types.Errorf(types.KindMarkersRequired, "replace_between requires start_marker and end_marker")
		}
		a := strings.Index(text, p.StartMarker)
		if a < 0 {
			return "", types.Errorf(types.KindStartMarkerNotFound, "start_marker %q not found", p.StartMarker)
		}
		regionStart := a + len(p.StartMarker)
		b := strings.Index(text[regionStart:], p.EndMarker)
		if b < 0 {
			return "", types.Errorf(types.KindEndMarkerNotFound, "end_marker %q not found after start_marker", p.EndMarker)
		}
		return text[:regionStart] + normalizeInsert(p.Content) + text[regionStart+b:], nil

	case PatchReplaceAll:
		if p.Anchor == "" {
			return "", types.Errorf(types.KindAnchorRequired, "replace_all requires an anchor")
		}
		if !strings.Contains(text, p.Anchor) {
			return "", types.Errorf(types.KindAnchorNotFound, "anchor %q not found", p.Anchor)
		}
		return strings.ReplaceAll(text, p.Anchor, p.Content), nil

	default:
		return "", types.Errorf(types.KindUnsupportedPatchOp, "unsupported patch op %q", p.Op)
	}
}

// nthIndex returns the byte offset of the n-th (1-indexed) occurrence of
// sub in s, or -1. Occurrences do not overlap.
func nthIndex(s, sub string, n int) int {
	offset := 0
	for i := 1; ; i++ {
		idx := strings.Index(s[offset:], sub)
		if idx < 0 {
			return -1
		}
		if i == n {
			return offset + idx
		}
		offset += idx + len(sub)
	}
}

// normalizeInsert makes non-empty inserted content start and end with a
// newline so it never glues onto the anchor's line.
func normalizeInsert(content string) string {
	if content == "" {
		return content
	}
	if !strings.HasPrefix(content, "\n") {
		content = "\n" + content
	}
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return content
}
