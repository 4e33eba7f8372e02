// ABOUTME: ActionKind: the closed set of plan step actions and their classification
// ABOUTME: Unknown names are kept as-is so the executor can report them per step

package plan

import (
	"slices"

	"github.com/mauromedda/pi-effector/internal/command"
)

// ActionKind names a plan step.
type ActionKind string

const (
	SetProject   ActionKind = "set_project"
	IndexProject ActionKind = "index_project"
	ListDir      ActionKind = "list_dir"
	ReadTail     ActionKind = "read_tail"
	Mkdir        ActionKind = "mkdir"
	WriteFile    ActionKind = "write_file"
	AppendFile   ActionKind = "append_file"
	PatchFile    ActionKind = "patch_file"
	RenamePath   ActionKind = "rename_path"
	UndoLast     ActionKind = "undo_last"
	RunCmd       ActionKind = "run_cmd"
	SetLLM       ActionKind = "set_llm"
)

// Actions lists every known action in display order.
var Actions = []ActionKind{
	SetProject, IndexProject, ListDir, ReadTail, Mkdir, WriteFile,
	AppendFile, PatchFile, RenamePath, UndoLast, RunCmd, SetLLM,
}

// Known reports whether a is a recognised action.
func (a ActionKind) Known() bool {
	return slices.Contains(Actions, a)
}

// MutatesFiles reports whether a goes through the file mutation engine.
func (a ActionKind) MutatesFiles() bool {
	switch a {
	case Mkdir, WriteFile, AppendFile, PatchFile, RenamePath:
		return true
	}
	return false
}

// CmdKey returns the run_cmd command key, or "" for other actions.
func (s Step) CmdKey() string {
	if s.Action != RunCmd {
		return ""
	}
	return s.StringParam("cmd_key", "")
}

// IsGitWrite reports whether s is a run_cmd of git_add, git_commit or git_push.
func (s Step) IsGitWrite() bool {
	return command.IsGitWrite(s.CmdKey())
}

// IsWriteClass reports whether s mutates the filesystem, the git index, or a remote.
func (s Step) IsWriteClass() bool {
	return s.Action.MutatesFiles() || s.Action == UndoLast || s.IsGitWrite()
}
