// ABOUTME: Plan executor: normalize, gate git writes, then run steps strictly in order
// ABOUTME: Every step yields a trace entry; a failed set_project aborts the rest of the plan

package agent

import (
	"context"
	"fmt"
	"io"
	"runtime/debug"

	"github.com/google/uuid"

	"github.com/mauromedda/pi-effector/internal/approval"
	"github.com/mauromedda/pi-effector/internal/command"
	"github.com/mauromedda/pi-effector/internal/log"
	"github.com/mauromedda/pi-effector/internal/plan"
	"github.com/mauromedda/pi-effector/internal/project"
	"github.com/mauromedda/pi-effector/internal/revert"
	"github.com/mauromedda/pi-effector/internal/tools"
	"github.com/mauromedda/pi-effector/internal/types"
)

const (
	defaultStateDir          = ".pi-effector"
	defaultFallbackReadLines = 500
	defaultTailLines         = 200
)

// Indexer builds the retrieval index for a project directory. The index
// itself lives outside this module.
type Indexer interface {
	Index(ctx context.Context, dir string) (any, error)
}

// Executor runs validated plans against the filesystem and git.
type Executor struct {
	engine   *tools.Engine
	runner   *command.Runner
	resolver *project.Resolver
	gate     *approval.Gate
	indexer  Indexer
	audit    *log.Audit

	stateDir      string
	fallbackLines int
	newRunID      func() string
}

// Option configures an Executor.
type Option func(*Executor)

// WithIndexer installs the index_project backend.
func WithIndexer(ix Indexer) Option {
	return func(e *Executor) { e.indexer = ix }
}

// WithAudit sends one structured record per step and per plan to a.
func WithAudit(a *log.Audit) Option {
	return func(e *Executor) {
		if a != nil {
			e.audit = a
		}
	}
}

// WithStateDir sets the per-project directory holding the recovery record.
func WithStateDir(dir string) Option {
	return func(e *Executor) {
		if dir != "" {
			e.stateDir = dir
		}
	}
}

// WithFallbackReadLines sets how many lines the patch fallback shows.
func WithFallbackReadLines(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.fallbackLines = n
		}
	}
}

// New creates an Executor. gate may be nil, which approves everything.
func New(engine *tools.Engine, runner *command.Runner, resolver *project.Resolver, gate *approval.Gate, opts ...Option) *Executor {
	if gate == nil {
		gate = approval.NewGate(approval.ModeYolo, nil)
	}
	e := &Executor{
		engine:        engine,
		runner:        runner,
		resolver:      resolver,
		gate:          gate,
		audit:         log.NewAuditWriter(io.Discard),
		stateDir:      defaultStateDir,
		fallbackLines: defaultFallbackReadLines,
		newRunID:      uuid.NewString,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Run executes p in sess. Plans of one session never overlap: a second Run
// waits for the first. The returned error is reserved for a plan that
// cannot run at all; step failures are recorded in the trace.
func (e *Executor) Run(ctx context.Context, sess *Session, p plan.Plan) (Trace, error) {
	sess.run.Lock()
	defer sess.run.Unlock()

	tr := Trace{RunID: e.newRunID(), Reason: p.Reason}
	if p.IsFinal() {
		tr.FinalAnswer = p.FinalAnswer
		return tr, nil
	}
	if err := p.Validate(); err != nil {
		return tr, err
	}

	p = plan.Normalize(p, sess.Workdir(), func(w string) (string, error) {
		res, err := e.resolver.Resolve(sess.Workdir(), w)
		return res.Dir, err
	})

	review := e.gate.ReviewPlan(ctx, p.Actions, e.gitReviewDir(sess.Workdir(), p.Actions))
	tr.Removed = review.Removed
	tr.GitApproval = review.Reason
	if review.Reason != "" {
		log.Info("git approval: %s", review.Reason)
	}

	for i, s := range review.Steps {
		if err := ctx.Err(); err != nil {
			return tr, fmt.Errorf("plan cancelled before step %d: %w", i+1, err)
		}

		entry := e.runStep(ctx, sess, i+1, s)
		tr.Entries = append(tr.Entries, entry)
		e.audit.Info("step",
			"run_id", tr.RunID,
			"step", entry.Step,
			"action", string(entry.Action),
			"ok", entry.Result.OK,
			"skipped", entry.Result.Skipped,
			"error", string(entry.Result.Error),
		)

		if s.Action == plan.SetProject && entry.Result.Failed() {
			log.Warn("set_project failed, skipping the remaining %d step(s)", len(review.Steps)-i-1)
			tr.Aborted = true
			break
		}
	}

	e.audit.Info("plan",
		"run_id", tr.RunID,
		"steps", len(tr.Entries),
		"failures", tr.Failures(),
		"removed", len(tr.Removed),
		"aborted", tr.Aborted,
		"workdir", sess.Workdir(),
	)
	return tr, nil
}

// runStep gates and executes one step. A panic in a tool becomes a
// tool_exception result rather than ending the plan.
func (e *Executor) runStep(ctx context.Context, sess *Session, n int, s plan.Step) (entry Entry) {
	entry = Entry{Step: n, Action: s.Action, Params: s.Params}
	log.Debug("step %d: %s", n, s.Summary())

	defer func() {
		if r := recover(); r != nil {
			log.Error("step %d (%s) panicked: %v\n%s", n, s.Action, r, debug.Stack())
			entry.Result = types.Failure(types.Errorf(types.KindToolException, "%s: %v", s.Action, r))
			entry.Fallback = nil
		}
	}()

	// Unknown actions are reported as such, not as approval denials.
	if !s.Action.Known() {
		entry.Result = unknownAction(s.Action)
		return entry
	}
	if d := e.gate.CheckStep(s); !d.Approved {
		entry.Result = types.Denied(d.Reason)
		return entry
	}

	entry.Result = e.dispatch(ctx, sess, s)
	entry.Fallback = e.patchFallback(sess, s, entry.Result)
	return entry
}

// gitReviewDir finds the repository the plan's first git write will
// target, following set_project steps that precede it.
func (e *Executor) gitReviewDir(workdir string, steps []plan.Step) string {
	for _, s := range steps {
		switch {
		case s.Action == plan.SetProject:
			if res, err := e.resolver.Resolve(workdir, s.StringParam("workdir", "")); err == nil {
				workdir = res.Dir
			}
		case s.IsGitWrite():
			args, err := s.Args()
			if err != nil {
				return ""
			}
			dir, _, err := e.runner.ResolveGitDir(workdir, args)
			if err != nil {
				return ""
			}
			return dir
		}
	}
	return ""
}

// workspace binds file operations to the session's project. The ledger
// lives in the project, or in the primary root when no project is set.
func (e *Executor) workspace(sess *Session) tools.Workspace {
	dir := sess.Workdir()
	home := dir
	if home == "" {
		home = e.engine.Sandbox().Primary()
	}
	return tools.Workspace{Dir: dir, Ledger: revert.NewLedger(home, e.stateDir)}
}
