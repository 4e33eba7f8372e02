// ABOUTME: Step dispatch: maps each ActionKind onto the engine, runner, resolver, or session
// ABOUTME: File mutations are previewed and reviewed before they are applied

package agent

import (
	"context"
	"strings"

	"github.com/mauromedda/pi-effector/internal/git"
	"github.com/mauromedda/pi-effector/internal/plan"
	"github.com/mauromedda/pi-effector/internal/tools"
	"github.com/mauromedda/pi-effector/internal/types"
)

// noGitWarning is attached to a set_project result whose target is not
// inside a git working tree.
const noGitWarning = "workdir has no .git directory (still set)"

func (e *Executor) dispatch(ctx context.Context, sess *Session, s plan.Step) types.Result {
	switch s.Action {
	case plan.SetProject:
		return e.setProject(ctx, sess, s.StringParam("workdir", ""))

	case plan.IndexProject:
		return e.indexProject(ctx, sess, s.StringParam("workdir", ""))

	case plan.ListDir:
		return result(e.engine.ListDir(e.workspace(sess), s.StringParam("path", ".")))

	case plan.ReadTail:
		return result(e.engine.ReadTail(e.workspace(sess), s.StringParam("path", ""), s.IntParam("lines", defaultTailLines)))

	case plan.Mkdir:
		return e.mutate(ctx, sess, s, tools.Mkdir{
			Path:    s.StringParam("path", ""),
			Parents: s.BoolParam("parents", true),
		})

	case plan.WriteFile:
		return e.mutate(ctx, sess, s, tools.Write{
			Path:      s.StringParam("path", ""),
			Content:   s.StringParam("content", ""),
			Overwrite: s.BoolParam("overwrite", true),
		})

	case plan.AppendFile:
		return e.mutate(ctx, sess, s, tools.Append{
			Path:    s.StringParam("path", ""),
			Content: s.StringParam("content", ""),
		})

	case plan.PatchFile:
		op, err := tools.ParsePatchOp(s.StringParam("op", ""))
		if err != nil {
			return types.Failure(err)
		}
		return e.mutate(ctx, sess, s, tools.Patch{
			Path:        s.StringParam("path", ""),
			Op:          op,
			Content:     s.StringParam("content", ""),
			Anchor:      s.StringParam("anchor", ""),
			StartMarker: s.StringParam("start_marker", ""),
			EndMarker:   s.StringParam("end_marker", ""),
			Occurrence:  s.IntParam("occurrence", 1),
		})

	case plan.RenamePath:
		return e.mutate(ctx, sess, s, tools.Rename{
			Src:     s.StringParam("src", ""),
			Dst:     s.StringParam("dst", ""),
			NewName: s.StringParam("new_name", ""),
		})

	case plan.UndoLast:
		return result(e.workspace(sess).Ledger.UndoLast())

	case plan.RunCmd:
		return e.runCmd(ctx, sess, s)

	case plan.SetLLM:
		return types.Success(sess.SetLLM(s.StringParam("provider", ""), s.StringParam("model", "")))

	default:
		return unknownAction(s.Action)
	}
}

func unknownAction(a plan.ActionKind) types.Result {
	known := make([]string, len(plan.Actions))
	for i, k := range plan.Actions {
		known[i] = string(k)
	}
	return types.Failure(types.Errorf(types.KindUnknownAction,
		"unknown action %q; known actions: %s", a, strings.Join(known, ", ")))
}

// result adapts a (payload, error) pair.
func result[T any](v T, err error) types.Result {
	if err != nil {
		return types.Failure(err)
	}
	return types.Success(v)
}

// mutate previews m, asks the gate, and applies m if approved.
func (e *Executor) mutate(ctx context.Context, sess *Session, s plan.Step, m tools.Mutation) types.Result {
	ws := e.workspace(sess)

	p, err := e.engine.Preview(ws, m)
	if err != nil {
		return types.Failure(err)
	}

	base := ws.Dir
	if base == "" {
		base = e.engine.Sandbox().Primary()
	}
	if d := e.gate.ReviewMutation(ctx, string(s.Action), base, p); !d.Approved {
		return types.Denied(d.Reason)
	}

	return result(e.engine.Apply(ctx, ws, m))
}

func (e *Executor) setProject(ctx context.Context, sess *Session, workdir string) types.Result {
	res, err := e.resolver.Resolve(sess.Workdir(), workdir)
	if err != nil {
		return types.Failure(err)
	}

	sess.SetWorkdir(res.Dir)
	r := types.Success(res)
	// A project nested inside a repository has no .git of its own.
	if !git.HasGitDir(res.Dir) && !git.IsWorktree(ctx, res.Dir) {
		r.Warning = noGitWarning
	}
	return r
}

func (e *Executor) indexProject(ctx context.Context, sess *Session, workdir string) types.Result {
	if e.indexer == nil {
		return types.Failure(types.Errorf(types.KindNotConfigured, "no project indexer is configured"))
	}

	dir := sess.Workdir()
	if workdir != "" {
		resolved, err := e.engine.Sandbox().Resolve(dir, workdir)
		if err != nil {
			return types.Failure(err)
		}
		dir = resolved
	}
	if dir == "" {
		return types.Failure(types.Errorf(types.KindNoCurrentProject, "set_project first or pass workdir"))
	}

	return result(e.indexer.Index(ctx, dir))
}

func (e *Executor) runCmd(ctx context.Context, sess *Session, s plan.Step) types.Result {
	args, err := s.Args()
	if err != nil {
		return types.Failure(err)
	}
	return result(e.runner.Execute(ctx, sess.Workdir(), s.StringParam("cmd_key", ""), args))
}

// patchNotFound lists the patch failures that trigger a read-only fallback.
var patchNotFound = []types.Kind{
	types.KindAnchorNotFound,
	types.KindStartMarkerNotFound,
	types.KindEndMarkerNotFound,
}

// patchFallback shows the current tail of a file whose patch anchor or
// markers were missing, so the next plan can be built from what is there.
func (e *Executor) patchFallback(sess *Session, s plan.Step, r types.Result) *Fallback {
	if s.Action != plan.PatchFile || !r.Failed() {
		return nil
	}
	hit := false
	for _, k := range patchNotFound {
		hit = hit || r.Error == k
	}
	if !hit {
		return nil
	}

	ws := e.workspace(sess)
	path := s.StringParam("path", "")
	abs, err := e.engine.Sandbox().Resolve(ws.Dir, path)
	if err == nil {
		err = e.engine.Sandbox().EnsureTextSafe(abs)
	}
	if err != nil {
		return &Fallback{Error: types.DetailOf(err)}
	}

	tail, err := e.engine.ReadTail(ws, abs, e.fallbackLines)
	if err != nil {
		return &Fallback{Error: "read_tail_failed: " + types.DetailOf(err)}
	}

	what := strings.ReplaceAll(string(r.Error), "_", " ")
	return &Fallback{
		Kind:     "read_tail_only",
		Reason:   what + "; current file content attached, nothing was rewritten",
		ReadTail: &tail,
	}
}
