// ABOUTME: Project resolution: sandboxed path, exact folder name, then closest fuzzy name
// ABOUTME: Candidates are the non-hidden immediate subdirectories of the primary safe root

package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/sahilm/fuzzy"

	"github.com/mauromedda/pi-effector/internal/permission"
	"github.com/mauromedda/pi-effector/internal/types"
)

// DefaultCutoff is the minimum similarity for a fuzzy match.
const DefaultCutoff = 0.55

// maxPreview caps the candidate list reported on failure.
const maxPreview = 50

// How a project was resolved.
const (
	ByPath  = "path"
	ByExact = "exact_name"
	ByFuzzy = "fuzzy"
)

// Resolution is a successfully resolved project.
type Resolution struct {
	Dir         string `json:"current_workdir"`
	ResolvedBy  string `json:"resolved_by"`
	MatchedName string `json:"matched_name,omitempty"`
}

// NotFoundError reports a failed resolution with the names that were tried.
type NotFoundError struct {
	Input          string
	Candidates     []string // best first, at most 50
	CandidateCount int
}

func (e *NotFoundError) Error() string {
	return e.Unwrap().Error()
}

// Unwrap classifies the failure as project_not_found.
func (e *NotFoundError) Unwrap() error {
	msg := fmt.Sprintf("no project matches %q", e.Input)
	if len(e.Candidates) > 0 {
		msg += "; candidates: " + strings.Join(e.Candidates, ", ")
	}
	return types.Errorf(types.KindProjectNotFound, "%s", msg)
}

// Resolver maps a name or path to a project directory.
type Resolver struct {
	sb     *permission.Sandbox
	cutoff float64
}

// NewResolver creates a Resolver. A non-positive cutoff uses DefaultCutoff.
func NewResolver(sb *permission.Sandbox, cutoff float64) *Resolver {
	if cutoff <= 0 {
		cutoff = DefaultCutoff
	}
	return &Resolver{sb: sb, cutoff: cutoff}
}

// Resolve tries input as a sandboxed directory path relative to base, then
// as an exact folder name, then as the closest fuzzy name.
func (r *Resolver) Resolve(base, input string) (Resolution, error) {
	if strings.TrimSpace(input) == "" {
		return Resolution{}, types.Errorf(types.KindInvalidPath, "workdir is required")
	}

	if dir, err := r.sb.Resolve(base, input); err == nil {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return Resolution{Dir: dir, ResolvedBy: ByPath}, nil
		}
	}

	names, err := r.Candidates()
	if err != nil {
		return Resolution{}, err
	}
	if len(names) == 0 {
		return Resolution{}, &NotFoundError{Input: input}
	}

	for _, n := range names {
		if n == input {
			return r.resolveName(n, ByExact)
		}
	}

	if best, ok := closest(input, names, r.cutoff); ok {
		return r.resolveName(best, ByFuzzy)
	}

	ranked := rank(input, names)
	if len(ranked) > maxPreview {
		ranked = ranked[:maxPreview]
	}
	return Resolution{}, &NotFoundError{Input: input, Candidates: ranked, CandidateCount: len(names)}
}

func (r *Resolver) resolveName(name, by string) (Resolution, error) {
	dir, err := r.sb.Resolve(r.sb.Primary(), name)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Dir: dir, ResolvedBy: by, MatchedName: name}, nil
}

// Candidates lists non-hidden immediate subdirectories of the primary root.
func (r *Resolver) Candidates() ([]string, error) {
	entries, err := os.ReadDir(r.sb.Primary())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	var names []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if e.IsDir() {
			names = append(names, e.Name())
			continue
		}
		// Symlinked project folders count when they point at a directory.
		if e.Type()&os.ModeSymlink != 0 {
			if info, err := os.Stat(filepath.Join(r.sb.Primary(), e.Name())); err == nil && info.IsDir() {
				names = append(names, e.Name())
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

// closest returns the name with the highest similarity ratio at or above
// cutoff. Ties go to the lexically greater name.
func closest(input string, names []string, cutoff float64) (string, bool) {
	best, bestScore := "", -1.0
	for _, n := range names {
		s := similarity(input, n)
		if s < cutoff {
			continue
		}
		if s > bestScore || (s == bestScore && n > best) {
			best, bestScore = n, s
		}
	}
	return best, bestScore >= 0
}

// similarity is the SequenceMatcher ratio of name against input, compared
// character by character. 1 means identical.
func similarity(input, name string) float64 {
	return difflib.NewMatcher(strings.Split(name, ""), strings.Split(input, "")).Ratio()
}

// rank orders names for display: subsequence matches by score first, the
// rest alphabetically.
func rank(input string, names []string) []string {
	matches := fuzzy.Find(input, names)
	seen := make(map[int]bool, len(matches))
	out := make([]string, 0, len(names))
	for _, m := range matches {
		seen[m.Index] = true
		out = append(out, m.Str)
	}
	for i, n := range names {
		if !seen[i] {
			out = append(out, n)
		}
	}
	return out
}
