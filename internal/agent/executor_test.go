// ABOUTME: Tests for the plan executor: end-to-end traces, approval flows, fallback, undo
// ABOUTME: Commands go through a recording ExecFunc; approvals through a scripted AskFunc

package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mauromedda/pi-effector/internal/approval"
	"github.com/mauromedda/pi-effector/internal/command"
	"github.com/mauromedda/pi-effector/internal/git"
	"github.com/mauromedda/pi-effector/internal/log"
	"github.com/mauromedda/pi-effector/internal/permission"
	"github.com/mauromedda/pi-effector/internal/plan"
	"github.com/mauromedda/pi-effector/internal/project"
	"github.com/mauromedda/pi-effector/internal/tools"
	"github.com/mauromedda/pi-effector/internal/types"
)

// recorder stands in for process execution.
type recorder struct {
	mu    sync.Mutex
	calls [][]string
	reply func(argv []string) (string, error)
}

func (r *recorder) exec(_ context.Context, _ string, argv []string) ([]byte, error) {
	r.mu.Lock()
	r.calls = append(r.calls, argv)
	r.mu.Unlock()
	if r.reply == nil {
		return nil, nil
	}
	out, err := r.reply(argv)
	return []byte(out), err
}

// scripted answers approval prompts from a queue.
type scripted struct {
	answers []bool
	asked   []approval.Request
}

func (s *scripted) ask(_ context.Context, req approval.Request) (bool, error) {
	s.asked = append(s.asked, req)
	if len(s.answers) == 0 {
		return false, errors.New("unexpected prompt")
	}
	a := s.answers[0]
	s.answers = s.answers[1:]
	return a, nil
}

func pendingChanges(changes bool) approval.SnapshotFunc {
	return func(_ context.Context, dir string) (git.Snapshot, error) {
		s := git.Snapshot{Dir: dir}
		if changes {
			s.Status = " M NOTES.md\n"
		}
		return s, nil
	}
}

type setup struct {
	mode     approval.Mode
	ask      approval.AskFunc
	snapshot approval.SnapshotFunc
	rules    []approval.Rule
	opts     []Option
}

type harness struct {
	root string
	exec *Executor
	sess *Session
	cmds *recorder
}

func newHarness(t *testing.T, s setup, dirs ...string) *harness {
	t.Helper()
	sb, err := permission.NewSandbox([]string{t.TempDir()}, []string{".txt", ".md", ".json"})
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	root := sb.Primary()
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	if s.snapshot == nil {
		s.snapshot = pendingChanges(false)
	}
	gate := approval.NewGate(s.mode, s.ask, approval.WithSnapshot(s.snapshot), approval.WithRules(s.rules))
	cmds := &recorder{}
	ex := New(
		tools.NewEngine(sb, tools.DefaultLimits(), tools.DefaultValidators()),
		command.NewRunner(sb, command.WithExec(cmds.exec)),
		project.NewResolver(sb, 0),
		gate,
		s.opts...,
	)
	ex.newRunID = func() string { return "run-1" }

	return &harness{root: root, exec: ex, sess: NewSession(LLM{}, nil), cmds: cmds}
}

func (h *harness) run(t *testing.T, doc string) Trace {
	t.Helper()
	p, err := plan.ParseText(doc)
	if err != nil {
		t.Fatalf("ParseText: %v", err)
	}
	tr, err := h.exec.Run(context.Background(), h.sess, p)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return tr
}

func actionsOf(tr Trace) []string {
	out := make([]string, 0, len(tr.Entries))
	for _, e := range tr.Entries {
		out = append(out, string(e.Action))
	}
	return out
}

func TestRun_FreshProjectScenario(t *testing.T) {
	t.Parallel()
	h := newHarness(t, setup{mode: approval.ModeNormal}, "demo")
	h.cmds.reply = func([]string) (string, error) {
		return "fatal: not a git repository (or any of the parent directories): .git\n", errors.New("exit status 128")
	}

	tr := h.run(t, `{"action":"plan","reason":"note it","actions":[
		{"action":"set_project","params":{"workdir":"demo"}},
		{"action":"append_file","params":{"path":"NOTES.md","content":"\n- item\n"}},
		{"action":"run_cmd","params":{"cmd_key":"git_status","args":[]}}
	]}`)

	if len(tr.Entries) != 3 {
		t.Fatalf("got %d entries, want 3: %v", len(tr.Entries), actionsOf(tr))
	}
	for i, e := range tr.Entries {
		if e.Step != i+1 {
			t.Errorf("entry %d has step %d", i, e.Step)
		}
	}

	demo := filepath.Join(h.root, "demo")
	first := tr.Entries[0].Result
	if !first.OK || first.Warning != noGitWarning {
		t.Errorf("set_project result = %+v", first)
	}
	if h.sess.Workdir() != demo {
		t.Errorf("workdir = %q, want %q", h.sess.Workdir(), demo)
	}

	second := tr.Entries[1].Result
	out, ok := second.Data.(tools.Outcome)
	if !second.OK || !ok || out.BackupCount != 0 {
		t.Errorf("append result = %+v", second)
	}
	data, err := os.ReadFile(filepath.Join(demo, "NOTES.md"))
	if err != nil || string(data) != "\n- item\n" {
		t.Errorf("NOTES.md = %q, %v", data, err)
	}

	third := tr.Entries[2].Result
	if third.Error != types.KindCommandFailed || !strings.Contains(third.Detail, "not a git repository") {
		t.Errorf("git_status result = %+v", third)
	}
	if len(h.cmds.calls) != 1 || !strings.HasPrefix(strings.Join(h.cmds.calls[0], " "), "git status") {
		t.Errorf("commands = %v", h.cmds.calls)
	}
}

func TestRun_GitDenialKeepsReadOnlySteps(t *testing.T) {
	t.Parallel()
	ask := &scripted{answers: []bool{false}}
	h := newHarness(t, setup{mode: approval.ModeNormal, ask: ask.ask, snapshot: pendingChanges(true)}, "demo")
	h.sess.SetWorkdir(filepath.Join(h.root, "demo"))

	tr := h.run(t, `{"action":"plan","reason":"ship","actions":[
		{"action":"list_dir","params":{"path":"."}},
		{"action":"run_cmd","params":{"cmd_key":"git_add","args":["."]}},
		{"action":"run_cmd","params":{"cmd_key":"git_commit","args":["-m","update notes"]}},
		{"action":"run_cmd","params":{"cmd_key":"git_push","args":[]}}
	]}`)

	if diff := cmp.Diff([]string{"list_dir"}, actionsOf(tr)); diff != "" {
		t.Errorf("executed actions (-want +got):\n%s", diff)
	}
	if !tr.Entries[0].Result.OK {
		t.Errorf("list_dir result = %+v", tr.Entries[0].Result)
	}
	if len(tr.Removed) != 3 || len(h.cmds.calls) != 0 {
		t.Errorf("removed %d steps, ran %v", len(tr.Removed), h.cmds.calls)
	}
	if len(ask.asked) != 1 || ask.asked[0].CommitMessage != "update notes" {
		t.Errorf("asked = %+v", ask.asked)
	}
}

func TestRun_GitPushDeniedSeparately(t *testing.T) {
	t.Parallel()
	ask := &scripted{answers: []bool{true, false}}
	h := newHarness(t, setup{mode: approval.ModeNormal, ask: ask.ask, snapshot: pendingChanges(true)}, "demo")
	h.sess.SetWorkdir(filepath.Join(h.root, "demo"))

	tr := h.run(t, `{"action":"plan","actions":[
		{"action":"run_cmd","params":{"cmd_key":"git_add"}},
		{"action":"run_cmd","params":{"cmd_key":"git_commit","args":["wip"]}},
		{"action":"run_cmd","params":{"cmd_key":"git_push","args":["origin","main"]}}
	]}`)

	if len(tr.Entries) != 2 || len(tr.Removed) != 1 || tr.Removed[0].CmdKey() != "git_push" {
		t.Fatalf("entries %v, removed %+v", actionsOf(tr), tr.Removed)
	}
	for _, call := range h.cmds.calls {
		if len(call) > 1 && call[1] == "push" {
			t.Errorf("push ran: %v", call)
		}
	}
	if len(h.cmds.calls) != 2 {
		t.Errorf("calls = %v", h.cmds.calls)
	}
}

func TestRun_GitWithoutChangesDoesNotAsk(t *testing.T) {
	t.Parallel()
	ask := &scripted{}
	h := newHarness(t, setup{mode: approval.ModeNormal, ask: ask.ask}, "demo")

	tr := h.run(t, `{"action":"plan","actions":[
		{"action":"set_project","params":{"workdir":"demo"}},
		{"action":"run_cmd","params":{"cmd_key":"git_commit","args":["wip"]}}
	]}`)

	if len(ask.asked) != 0 {
		t.Errorf("asked %d times", len(ask.asked))
	}
	if tr.GitApproval != "no pending changes" {
		t.Errorf("GitApproval = %q", tr.GitApproval)
	}
	if len(tr.Entries) != 2 || !tr.Entries[1].Result.OK {
		t.Fatalf("entries = %+v", tr.Entries)
	}
	if got := h.cmds.calls[0]; got[0] != "git" || got[1] != "commit" || got[len(got)-1] != "wip" {
		t.Errorf("argv = %v", got)
	}
}

func TestRun_SetProjectFailureAborts(t *testing.T) {
	t.Parallel()
	h := newHarness(t, setup{mode: approval.ModeYolo}, "alpha")

	tr := h.run(t, `{"action":"plan","actions":[
		{"action":"set_project","params":{"workdir":"zzzz"}},
		{"action":"list_dir","params":{}}
	]}`)

	if len(tr.Entries) != 1 || !tr.Aborted {
		t.Fatalf("entries = %v, aborted = %v", actionsOf(tr), tr.Aborted)
	}
	r := tr.Entries[0].Result
	if r.Error != types.KindProjectNotFound || !strings.Contains(r.Detail, "alpha") {
		t.Errorf("result = %+v", r)
	}
	if h.sess.Workdir() != "" {
		t.Errorf("workdir changed to %q", h.sess.Workdir())
	}
}

func TestRun_RedundantSetProjectIsDropped(t *testing.T) {
	t.Parallel()
	h := newHarness(t, setup{mode: approval.ModeYolo}, "demo")
	h.sess.SetWorkdir(filepath.Join(h.root, "demo"))

	tr := h.run(t, `{"action":"plan","actions":[
		{"action":"set_project","params":{"workdir":"demo"}},
		{"action":"list_dir","params":{}}
	]}`)

	if diff := cmp.Diff([]string{"list_dir"}, actionsOf(tr)); diff != "" {
		t.Errorf("actions (-want +got):\n%s", diff)
	}
}

func TestRun_PatchFallbackReadsTail(t *testing.T) {
	t.Parallel()
	h := newHarness(t, setup{mode: approval.ModeYolo})
	path := filepath.Join(h.root, "README.md")
	if err := os.WriteFile(path, []byte("# Demo\nline two\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	tr := h.run(t, `{"action":"patch_file","params":{"path":"README.md","op":"insert_after","anchor":"## Usage","content":"x"}}`)

	e := tr.Entries[0]
	if e.Result.Error != types.KindAnchorNotFound {
		t.Fatalf("result = %+v", e.Result)
	}
	if e.Fallback == nil || e.Fallback.Kind != "read_tail_only" || e.Fallback.ReadTail == nil {
		t.Fatalf("fallback = %+v", e.Fallback)
	}
	if e.Fallback.ReadTail.Content != "# Demo\nline two" {
		t.Errorf("tail = %q", e.Fallback.ReadTail.Content)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "# Demo\nline two\n" {
		t.Errorf("fallback must not write; file = %q", data)
	}
}

func TestRun_FileReviewDenied(t *testing.T) {
	t.Parallel()
	ask := &scripted{answers: []bool{false}}
	h := newHarness(t, setup{mode: approval.ModeNormal, ask: ask.ask})

	tr := h.run(t, `{"action":"write_file","params":{"path":"hello.txt","content":"hello\n"}}`)

	r := tr.Entries[0].Result
	if !r.Skipped || r.Error != types.KindUserDenied || r.Failed() {
		t.Errorf("result = %+v", r)
	}
	if _, err := os.Stat(filepath.Join(h.root, "hello.txt")); !os.IsNotExist(err) {
		t.Error("denied write must not create the file")
	}
	if len(ask.asked) != 1 || ask.asked[0].Kind != approval.RequestFile || !strings.Contains(ask.asked[0].Body, "+hello") {
		t.Errorf("asked = %+v", ask.asked)
	}
}

func TestRun_PlanModeOnlyReads(t *testing.T) {
	t.Parallel()
	h := newHarness(t, setup{mode: approval.ModePlan})

	tr := h.run(t, `{"action":"plan","actions":[
		{"action":"write_file","params":{"path":"a.txt","content":"x"}},
		{"action":"list_dir","params":{"path":"."}}
	]}`)

	if r := tr.Entries[0].Result; !r.Skipped || r.Error != types.KindUserDenied {
		t.Errorf("write result = %+v", r)
	}
	if !tr.Entries[1].Result.OK {
		t.Errorf("list_dir result = %+v", tr.Entries[1].Result)
	}
	if _, err := os.Stat(filepath.Join(h.root, "a.txt")); !os.IsNotExist(err) {
		t.Error("plan mode must not write")
	}
}

func TestRun_DenyRuleBlocksStep(t *testing.T) {
	t.Parallel()
	rules := approval.ParseRules(nil, []string{"write_file(secrets/**)"})
	h := newHarness(t, setup{mode: approval.ModeYolo, rules: rules}, "secrets")

	tr := h.run(t, `{"action":"plan","actions":[
		{"action":"write_file","params":{"path":"secrets/key.txt","content":"x"}},
		{"action":"write_file","params":{"path":"public.txt","content":"y"}}
	]}`)

	if r := tr.Entries[0].Result; r.Error != types.KindUserDenied || !strings.Contains(r.Reason, "secrets/**") {
		t.Errorf("secret write = %+v", r)
	}
	if !tr.Entries[1].Result.OK {
		t.Errorf("public write = %+v", tr.Entries[1].Result)
	}
}

func TestRun_WriteThenUndo(t *testing.T) {
	t.Parallel()
	h := newHarness(t, setup{mode: approval.ModeYolo})
	path := filepath.Join(h.root, "notes.txt")
	if err := os.WriteFile(path, []byte("before\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	tr := h.run(t, `{"action":"plan","actions":[
		{"action":"write_file","params":{"path":"notes.txt","content":"after\n"}},
		{"action":"undo_last","params":{}},
		{"action":"undo_last","params":{}}
	]}`)

	if !tr.Entries[0].Result.OK || !tr.Entries[1].Result.OK {
		t.Fatalf("entries = %+v", tr.Entries)
	}
	if r := tr.Entries[2].Result; r.Error != types.KindNoBackupAvailable {
		t.Errorf("second undo = %+v", r)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "before\n" {
		t.Errorf("after undo = %q", data)
	}
	if _, err := os.Stat(filepath.Join(h.root, defaultStateDir, "recovery_state.json")); err != nil {
		t.Errorf("ledger not in primary root: %v", err)
	}
}

type fakeIndexer struct {
	dirs []string
	boom bool
}

func (f *fakeIndexer) Index(_ context.Context, dir string) (any, error) {
	if f.boom {
		panic("index corrupted")
	}
	f.dirs = append(f.dirs, dir)
	return map[string]int{"chunks": 3}, nil
}

func TestRun_SessionActions(t *testing.T) {
	t.Parallel()
	h := newHarness(t, setup{mode: approval.ModeYolo}, "demo")

	tr := h.run(t, `{"action":"plan","actions":[
		{"action":"set_llm","params":{"provider":"Claude","model":""}},
		{"action":"index_project","params":{}},
		{"action":"drop_database","params":{}},
		{"action":"list_dir","params":{"path":"."}}
	]}`)

	if got := h.sess.LLM(); got != (LLM{Provider: ProviderOpenAI, Model: "gpt-4o-mini"}) {
		t.Errorf("llm = %+v", got)
	}
	if r := tr.Entries[1].Result; r.Error != types.KindNotConfigured {
		t.Errorf("index_project = %+v", r)
	}
	if r := tr.Entries[2].Result; r.Error != types.KindUnknownAction || !strings.Contains(r.Detail, "set_project") {
		t.Errorf("unknown action = %+v", r)
	}
	if !tr.Entries[3].Result.OK {
		t.Errorf("step after failures did not run: %+v", tr.Entries[3].Result)
	}
}

func TestRun_IndexerAndPanicRecovery(t *testing.T) {
	t.Parallel()
	ix := &fakeIndexer{}
	h := newHarness(t, setup{mode: approval.ModeYolo, opts: []Option{WithIndexer(ix)}}, "demo")

	tr := h.run(t, `{"action":"plan","actions":[
		{"action":"index_project","params":{"workdir":"demo"}}
	]}`)
	if !tr.Entries[0].Result.OK || len(ix.dirs) != 1 || ix.dirs[0] != filepath.Join(h.root, "demo") {
		t.Errorf("index result = %+v, dirs = %v", tr.Entries[0].Result, ix.dirs)
	}

	ix.boom = true
	tr = h.run(t, `{"action":"plan","actions":[
		{"action":"index_project","params":{"workdir":"demo"}},
		{"action":"list_dir","params":{}}
	]}`)
	if r := tr.Entries[0].Result; r.Error != types.KindToolException || !strings.Contains(r.Detail, "index corrupted") {
		t.Errorf("panic result = %+v", r)
	}
	if len(tr.Entries) != 2 || !tr.Entries[1].Result.OK {
		t.Errorf("plan did not continue after panic: %+v", tr.Entries)
	}
}

func TestRun_FinalAndInvalidPlans(t *testing.T) {
	t.Parallel()
	h := newHarness(t, setup{mode: approval.ModeYolo})

	tr := h.run(t, "```json\n{\"action\":\"final\",\"final_answer\":\"done\"}\n```")
	if tr.FinalAnswer != "done" || len(tr.Entries) != 0 {
		t.Errorf("final trace = %+v", tr)
	}

	_, err := h.exec.Run(context.Background(), h.sess, plan.Plan{Action: plan.KindPlan})
	if !errors.Is(err, types.ErrOf(types.KindInvalidPlan)) {
		t.Errorf("empty plan err = %v", err)
	}
}

func TestRun_AuditRecords(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	h := newHarness(t, setup{mode: approval.ModeYolo, opts: []Option{WithAudit(log.NewAuditWriter(&buf))}})

	h.run(t, `{"action":"plan","actions":[
		{"action":"list_dir","params":{}},
		{"action":"read_tail","params":{"path":"missing.txt"}}
	]}`)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d audit records, want 3:\n%s", len(lines), buf.String())
	}
	var rec struct {
		Msg    string `json:"msg"`
		RunID  string `json:"run_id"`
		Step   int    `json:"step"`
		Action string `json:"action"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal([]byte(lines[1]), &rec); err != nil {
		t.Fatalf("decoding %q: %v", lines[1], err)
	}
	want := struct {
		Msg    string `json:"msg"`
		RunID  string `json:"run_id"`
		Step   int    `json:"step"`
		Action string `json:"action"`
		Error  string `json:"error"`
	}{"step", "run-1", 2, "read_tail", "file_not_found"}
	if diff := cmp.Diff(want, rec); diff != "" {
		t.Errorf("audit record (-want +got):\n%s", diff)
	}
}

func TestSession_SetLLM(t *testing.T) {
	t.Parallel()
	s := NewSession(LLM{Provider: "ollama", Model: "qwen2.5:7b-instruct"}, map[string]string{ProviderOllama: "llama3"})

	tests := []struct {
		provider, model string
		want            LLM
	}{
		{"ollama", "", LLM{ProviderOllama, "llama3"}},
		{" OpenAI ", "gpt-4.1", LLM{ProviderOpenAI, "gpt-4.1"}},
		{"anthropic", "", LLM{ProviderOpenAI, "gpt-4o-mini"}},
		{"", "", LLM{ProviderOpenAI, "gpt-4o-mini"}},
	}
	if got := s.LLM(); got != (LLM{ProviderOllama, "qwen2.5:7b-instruct"}) {
		t.Errorf("initial llm = %+v", got)
	}
	for _, tt := range tests {
		if got := s.SetLLM(tt.provider, tt.model); got != tt.want {
			t.Errorf("SetLLM(%q, %q) = %+v, want %+v", tt.provider, tt.model, got, tt.want)
		}
	}
}

func TestRun_SetProjectInsideRepoHasNoWarning(t *testing.T) {
	t.Parallel()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	h := newHarness(t, setup{mode: approval.ModeYolo}, "mono/service")
	gitInit := exec.Command("git", "init", "-q", filepath.Join(h.root, "mono"))
	if out, err := gitInit.CombinedOutput(); err != nil {
		t.Fatalf("git init: %v\n%s", err, out)
	}

	tr := h.run(t, `{"action":"plan","actions":[
		{"action":"set_project","params":{"workdir":"mono/service"}},
		{"action":"set_project","params":{"workdir":"mono"}}
	]}`)

	for _, e := range tr.Entries {
		if !e.Result.OK || e.Result.Warning != "" {
			t.Errorf("step %d = %+v", e.Step, e.Result)
		}
	}
}

func TestRun_UnknownActionIsNotADenial(t *testing.T) {
	t.Parallel()
	rules := approval.ParseRules(nil, []string{"drop_*"})
	h := newHarness(t, setup{mode: approval.ModePlan, rules: rules})

	tr := h.run(t, `{"action":"plan","actions":[
		{"action":"drop_database","params":{}},
		{"action":"write_file","params":{"path":"a.txt","content":"x"}}
	]}`)

	if r := tr.Entries[0].Result; r.Error != types.KindUnknownAction || r.Skipped {
		t.Errorf("unknown action = %+v", r)
	}
	if r := tr.Entries[1].Result; r.Error != types.KindUserDenied || !r.Skipped {
		t.Errorf("write in plan mode = %+v", r)
	}
}
