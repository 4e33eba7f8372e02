// ABOUTME: Tests for anchor/marker patch operations
// ABOUTME: Covers occurrence selection, marker regions, and error kinds

package tools

import (
	"errors"
	"testing"

	"github.com/mauromedda/pi-effector/internal/types"
)

func TestApplyPatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		p    Patch
		want string
	}{
		{
			name: "insert after first anchor",
			text: "A\nB\nA\n",
			p:    Patch{Op: PatchInsertAfter, Anchor: "A", Content: "x"},
			want: "A\nx\n\nB\nA\n",
		},
		{
			name: "insert after second anchor",
			text: "A\nB\nA\n",
			p:    Patch{Op: PatchInsertAfter, Anchor: "A", Content: "x\n", Occurrence: 2},
			want: "A\nB\nA\nx\n\n",
		},
		{
			name: "insert before",
			text: "head\n# end\n",
			p:    Patch{Op: PatchInsertBefore, Anchor: "# end", Content: "mid"},
			want: "head\n\nmid\n# end\n",
		},
		{
			name: "replace between markers",
			text: "<!-- a -->old<!-- b -->",
			p:    Patch{Op: PatchReplaceBetween, StartMarker: "<!-- a -->", EndMarker: "<!-- b -->", Content: "new"},
			want: "<!-- a -->\nnew\n<!-- b -->",
		},
		{
			name: "replace between, end searched after start",
			text: "END START x END",
			p:    Patch{Op: PatchReplaceBetween, StartMarker: "START", EndMarker: "END", Content: ""},
			want: "END STARTEND",
		},
		{
			name: "replace all is literal",
			text: "foo foo bar",
			p:    Patch{Op: PatchReplaceAll, Anchor: "foo", Content: "baz"},
			want: "baz baz bar",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := applyPatch(tt.text, tt.p)
			if err != nil {
				t.Fatalf("applyPatch: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestApplyPatch_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		p    Patch
		want types.Kind
	}{
		{"missing anchor", "x", Patch{Op: PatchInsertAfter}, types.KindAnchorRequired},
		{"occurrence beyond count", "A only once", Patch{Op: PatchInsertAfter, Anchor: "A", Occurrence: 2}, types.KindAnchorNotFound},
		{"missing markers", "x", Patch{Op: PatchReplaceBetween, StartMarker: "s"}, types.KindMarkersRequired},
		{"start not found", "x", Patch{Op: PatchReplaceBetween, StartMarker: "s", EndMarker: "e"}, types.KindStartMarkerNotFound},
		{"end before start only", "e s", Patch{Op: PatchReplaceBetween, StartMarker: "s", EndMarker: "e"}, types.KindEndMarkerNotFound},
		{"replace all without match", "x", Patch{Op: PatchReplaceAll, Anchor: "y"}, types.KindAnchorNotFound},
		{"unknown op", "x", Patch{Op: "rewrite"}, types.KindUnsupportedPatchOp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := applyPatch(tt.text, tt.p)
			if !errors.Is(err, types.ErrOf(tt.want)) {
				t.Errorf("err = %v, want kind %s", err, tt.want)
			}
		})
	}
}

func TestParsePatchOp(t *testing.T) {
	t.Parallel()

	if op, err := ParsePatchOp(" replace_all "); err != nil || op != PatchReplaceAll {
		t.Errorf("ParsePatchOp = %q, %v", op, err)
	}
	if _, err := ParsePatchOp("delete"); types.KindOf(err) != types.KindUnsupportedPatchOp {
		t.Errorf("kind = %s", types.KindOf(err))
	}
}
