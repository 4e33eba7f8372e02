// ABOUTME: Result trace returned to the plan originator: one entry per executed step
// ABOUTME: Also carries git review decisions and the patch fallback payload

package agent

import (
	"github.com/mauromedda/pi-effector/internal/plan"
	"github.com/mauromedda/pi-effector/internal/tools"
	"github.com/mauromedda/pi-effector/internal/types"
)

// Entry is the outcome of one step.
type Entry struct {
	Step     int             `json:"step"`
	Action   plan.ActionKind `json:"action"`
	Params   map[string]any  `json:"params"`
	Result   types.Result    `json:"result"`
	Fallback *Fallback       `json:"fallback,omitempty"`
}

// Fallback is attached to a patch_file entry whose anchor or markers were
// not found. It only ever reads.
type Fallback struct {
	Kind     string      `json:"fallback,omitempty"`
	Reason   string      `json:"reason,omitempty"`
	ReadTail *tools.Tail `json:"read_tail,omitempty"`
	Error    string      `json:"fallback_error,omitempty"`
}

// Trace is the ordered record of a Run.
type Trace struct {
	RunID       string      `json:"run_id"`
	Reason      string      `json:"reason,omitempty"`
	Entries     []Entry     `json:"results"`
	Aborted     bool        `json:"aborted,omitempty"`
	Removed     []plan.Step `json:"removed,omitempty"`
	GitApproval string      `json:"git_approval,omitempty"`
	FinalAnswer string      `json:"final_answer,omitempty"`
}

// Failures counts entries whose result is an error.
func (t Trace) Failures() int {
	n := 0
	for _, e := range t.Entries {
		if e.Result.Failed() {
			n++
		}
	}
	return n
}
