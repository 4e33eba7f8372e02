// ABOUTME: Approval gate for write-class steps: file diffs per step, git writes per plan
// ABOUTME: Decisions come from a caller-supplied AskFunc; tests inject fixed answers

package approval

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mauromedda/pi-effector/internal/git"
	"github.com/mauromedda/pi-effector/internal/log"
	"github.com/mauromedda/pi-effector/internal/plan"
	"github.com/mauromedda/pi-effector/internal/tools"
)

// RequestKind tells the AskFunc what is being approved.
type RequestKind string

const (
	RequestFile RequestKind = "file"     // one filesystem mutation
	RequestGit  RequestKind = "git"      // git add/commit for the whole plan
	RequestPush RequestKind = "git_push" // the push alone, after RequestGit was approved
)

// Request is shown to the human before a decision.
type Request struct {
	Kind          RequestKind
	Action        string
	Title         string
	Body          string // unified diff or git snapshot
	CommitMessage string
}

// AskFunc blocks until the human answers. There is no timeout.
type AskFunc func(ctx context.Context, req Request) (bool, error)

// SnapshotFunc collects pending git changes for dir.
type SnapshotFunc func(ctx context.Context, dir string) (git.Snapshot, error)

// Decision is the outcome of one review.
type Decision struct {
	Approved bool
	Asked    bool
	Reason   string
}

func approved(reason string) Decision { return Decision{Approved: true, Reason: reason} }
func denied(reason string) Decision   { return Decision{Reason: reason} }

// Gate decides whether write-class steps may run.
type Gate struct {
	mode        Mode
	ask         AskFunc
	reviewFiles bool
	rules       []Rule
	snapshot    SnapshotFunc
}

// Option configures a Gate.
type Option func(*Gate)

// WithFileReview toggles per-step diff review of filesystem mutations.
func WithFileReview(on bool) Option {
	return func(g *Gate) { g.reviewFiles = on }
}

// WithRules installs allow/deny rules.
func WithRules(rules []Rule) Option {
	return func(g *Gate) { g.rules = append(g.rules, rules...) }
}

// WithSnapshot replaces git inspection, for tests.
func WithSnapshot(fn SnapshotFunc) Option {
	return func(g *Gate) { g.snapshot = fn }
}

// NewGate creates a Gate. File review is on whenever ask is non-nil.
func NewGate(mode Mode, ask AskFunc, opts ...Option) *Gate {
	g := &Gate{mode: mode, ask: ask, reviewFiles: ask != nil, snapshot: git.Take}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Mode returns the gate's mode.
func (g *Gate) Mode() Mode {
	return g.mode
}

// CheckStep applies mode and deny rules to a step before anything runs.
// An approved result here is not final for file mutations; see ReviewMutation.
func (g *Gate) CheckStep(s plan.Step) Decision {
	if !s.IsWriteClass() {
		return approved("")
	}
	if g.mode == ModePlan {
		return denied("plan mode: write-class steps are not executed")
	}
	action := string(s.Action)
	specs := []string{s.CmdKey()}
	for _, k := range []string{"path", "src", "dst", "new_name"} {
		specs = append(specs, s.StringParam(k, ""))
	}
	if d, r := evaluate(g.rules, action, specs...); d == ActionDeny {
		return denied("denied by rule " + r.String())
	}
	return approved("")
}

// ReviewMutation shows the preview of a filesystem mutation and asks for a
// decision. base is the workspace directory used for relative rule matching.
func (g *Gate) ReviewMutation(ctx context.Context, action, base string, p tools.Preview) Decision {
	if g.mode == ModePlan {
		return denied("plan mode: write-class steps are not executed")
	}

	specs := []string{p.Path, p.Src, p.Dst}
	for _, abs := range []string{p.Path, p.Src, p.Dst} {
		if abs == "" {
			continue
		}
		if rel, err := filepath.Rel(base, abs); err == nil && !strings.HasPrefix(rel, "..") {
			specs = append(specs, filepath.ToSlash(rel))
		}
		specs = append(specs, filepath.Base(abs))
	}
	switch d, r := evaluate(g.rules, action, specs...); d {
	case ActionDeny:
		return denied("denied by rule " + r.String())
	case ActionAllow:
		return approved("allowed by rule " + r.String())
	}

	if g.mode == ModeYolo {
		return approved("yolo mode")
	}
	if !g.reviewFiles || g.ask == nil {
		return approved("")
	}

	req := Request{Kind: RequestFile, Action: action, Title: previewTitle(p), Body: previewBody(p)}
	return g.askDecision(ctx, req, "user denied "+action)
}

func previewTitle(p tools.Preview) string {
	switch p.Kind {
	case tools.KindRename:
		return fmt.Sprintf("rename %s -> %s", p.Src, p.Dst)
	case tools.KindMkdir:
		return fmt.Sprintf("mkdir %s (%s)", p.Path, p.Note)
	default:
		return fmt.Sprintf("%s %s", p.Kind, p.Path)
	}
}

func previewBody(p tools.Preview) string {
	if p.Kind == tools.KindRename || p.Kind == tools.KindMkdir {
		return ""
	}
	if d := p.Diff(); d != "" {
		return d
	}
	return "(no diff: content unchanged)"
}

func (g *Gate) askDecision(ctx context.Context, req Request, denyReason string) Decision {
	ok, err := g.ask(ctx, req)
	if err != nil {
		log.Warn("approval prompt failed: %v", err)
		return Decision{Asked: true, Reason: "approval failed: " + err.Error()}
	}
	if !ok {
		return Decision{Asked: true, Reason: denyReason}
	}
	return Decision{Approved: true, Asked: true}
}

// GitReview is the outcome of ReviewPlan.
type GitReview struct {
	Steps    []plan.Step // steps to execute, in order
	Removed  []plan.Step // git-write steps dropped by a "no"
	Reviewed bool        // a snapshot was taken
	Asked    bool
	Reason   string
}

// ReviewPlan gates every git write in steps with at most two decisions:
// one for add and commit, and one for push if the first was yes. repoDir
// is the repository the writes will target; empty skips the review.
// Steps that are not git writes are never removed.
func (g *Gate) ReviewPlan(ctx context.Context, steps []plan.Step, repoDir string) GitReview {
	rev := GitReview{Steps: steps}

	var hasWrite, hasPush bool
	for _, s := range steps {
		if s.IsGitWrite() {
			hasWrite = true
			hasPush = hasPush || s.CmdKey() == "git_push"
		}
	}
	if !hasWrite || g.mode != ModeNormal {
		return rev
	}
	if repoDir == "" {
		rev.Reason = "no repository to preview"
		return rev
	}

	snap, err := g.snapshot(ctx, repoDir)
	rev.Reviewed = true
	body := ""
	if err != nil {
		body = fmt.Sprintf("repository: %s\ncould not inspect pending changes: %v\n", repoDir, err)
	} else {
		if !snap.HasChanges() {
			rev.Reason = "no pending changes"
			return rev
		}
		body = snap.Render()
	}

	if g.ask == nil {
		rev.Reason = "git writes need approval but no interactive approval is available"
		return dropSteps(rev, func(s plan.Step) bool { return s.IsGitWrite() })
	}

	rev.Asked = true
	first := g.askDecision(ctx, Request{
		Kind:          RequestGit,
		Action:        "git_add/git_commit",
		Title:         "Apply these changes with git add/commit?",
		Body:          body,
		CommitMessage: commitMessage(steps),
	}, "user denied git add/commit")
	if !first.Approved {
		rev.Reason = first.Reason
		return dropSteps(rev, func(s plan.Step) bool { return s.IsGitWrite() })
	}

	if hasPush {
		second := g.askDecision(ctx, Request{
			Kind:   RequestPush,
			Action: "git_push",
			Title:  "Also push to the remote?",
		}, "user denied git push")
		if !second.Approved {
			rev.Reason = second.Reason
			return dropSteps(rev, func(s plan.Step) bool { return s.CmdKey() == "git_push" })
		}
	}
	rev.Reason = "approved"
	return rev
}

func dropSteps(rev GitReview, drop func(plan.Step) bool) GitReview {
	kept := make([]plan.Step, 0, len(rev.Steps))
	for _, s := range rev.Steps {
		if drop(s) {
			rev.Removed = append(rev.Removed, s)
			continue
		}
		kept = append(kept, s)
	}
	rev.Steps = kept
	return rev
}

// commitMessage returns the first git_commit message in steps, if any.
func commitMessage(steps []plan.Step) string {
	for _, s := range steps {
		if s.CmdKey() != "git_commit" {
			continue
		}
		args, err := s.Args()
		if err != nil {
			continue
		}
		for i, a := range args {
			if a == "-m" && i+1 < len(args) {
				return args[i+1]
			}
		}
		if len(args) > 0 {
			return args[len(args)-1]
		}
	}
	return ""
}
